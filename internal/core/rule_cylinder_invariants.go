package core

import (
	"context"

	"cylindercore/pkg/domain"
)

// CylinderInvariantRule blocks commits leaving a cylinder whose gas,
// warehouse or owner attributes contradict its status.
func CylinderInvariantRule() domain.Rule {
	return cylinderInvariantRule{}
}

type cylinderInvariantRule struct{}

func (cylinderInvariantRule) Name() string { return "cylinder_invariants" }

func (cylinderInvariantRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCylinder {
			continue
		}
		c, ok := domain.DecodeChangePayload[domain.Cylinder](change.After)
		if !ok {
			continue
		}
		if err := domain.CheckCylinderInvariants(c); err != nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cylinder_invariants",
				Severity: domain.SeverityBlock,
				Message:  err.Error(),
				Entity:   domain.EntityCylinder,
				EntityID: c.ID,
			})
		}
	}
	return res, nil
}
