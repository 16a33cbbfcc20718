package core

import (
	"context"
	"fmt"

	"cylindercore/pkg/domain"
)

// ReferenceIntegrityRule blocks cylinders pointing at unknown reference data.
func ReferenceIntegrityRule() domain.Rule {
	return referenceIntegrityRule{}
}

type referenceIntegrityRule struct{}

func (referenceIntegrityRule) Name() string { return "reference_integrity" }

func (referenceIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCylinder {
			continue
		}
		c, ok := domain.DecodeChangePayload[domain.Cylinder](change.After)
		if !ok {
			continue
		}
		var missing []string
		if _, ok := view.FindProperty(c.PropertyID); !ok {
			missing = append(missing, "property "+c.PropertyID)
		}
		if c.GasTypeID != nil {
			if _, ok := view.FindGasType(*c.GasTypeID); !ok {
				missing = append(missing, "gas type "+*c.GasTypeID)
			}
		}
		if c.WarehouseID != nil {
			if _, ok := view.FindWarehouse(*c.WarehouseID); !ok {
				missing = append(missing, "warehouse "+*c.WarehouseID)
			}
		}
		if c.OwnerID != nil {
			if _, ok := view.FindCustomer(*c.OwnerID); !ok {
				missing = append(missing, "customer "+*c.OwnerID)
			}
		}
		for _, ref := range missing {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "reference_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cylinder %s references unknown %s", c.ID, ref),
				Entity:   domain.EntityCylinder,
				EntityID: c.ID,
			})
		}
	}
	return res, nil
}
