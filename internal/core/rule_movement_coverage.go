package core

import (
	"context"
	"fmt"

	"cylindercore/pkg/domain"
)

// MovementCoverageRule requires one ledger entry per cylinder write within a
// transaction, so every accepted change stays explainable.
func MovementCoverageRule() domain.Rule {
	return movementCoverageRule{}
}

type movementCoverageRule struct{}

func (movementCoverageRule) Name() string { return "movement_coverage" }

func (movementCoverageRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	writes := make(map[string]int)
	appends := make(map[string]int)
	var order []string
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityCylinder:
			c, ok := domain.DecodeChangePayload[domain.Cylinder](change.After)
			if !ok {
				continue
			}
			if _, seen := writes[c.ID]; !seen {
				order = append(order, c.ID)
			}
			writes[c.ID]++
		case domain.EntityMovement:
			m, ok := domain.DecodeChangePayload[domain.MovementRecord](change.After)
			if ok {
				appends[m.CylinderID]++
			}
		}
	}
	res := domain.Result{}
	for _, id := range order {
		if writes[id] == appends[id] {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "movement_coverage",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("cylinder %s has %d writes but %d movement records", id, writes[id], appends[id]),
			Entity:   domain.EntityCylinder,
			EntityID: id,
		})
	}
	return res, nil
}
