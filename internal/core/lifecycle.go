package core

import (
	"context"
	"fmt"

	"cylindercore/pkg/domain"
)

// TransitionContext carries the attributes a target status may require. Empty
// fields are not supplied; the cylinder keeps its current value where the
// target status allows it.
type TransitionContext struct {
	GasTypeID       string
	WarehouseID     string
	CustomerID      string
	ExpectedVersion int64
	Notes           string
}

// cylinderMove describes one cylinder write and its ledger entry.
type cylinderMove struct {
	target      domain.CylinderStatus
	keepStatus  bool
	movement    domain.MovementType
	tc          TransitionContext
	propertyID  string
	referenceID string
}

type cylinderAttrs struct {
	gasTypeID   *string
	warehouseID *string
	ownerID     *string
	propertyID  string
	filled      bool
}

// ApplyTransition moves a cylinder to target and appends one movement record.
func (s *Service) ApplyTransition(ctx context.Context, actor Actor, cylinderID string, target domain.CylinderStatus, tc TransitionContext) (domain.Cylinder, domain.Result, error) {
	var updated domain.Cylinder
	res, err := s.run(ctx, "apply_transition", actor, func(tx domain.Transaction) (string, error) {
		current, ok := tx.FindCylinder(cylinderID)
		if !ok {
			return cylinderID, domain.NotFoundError{Entity: domain.EntityCylinder, ID: cylinderID}
		}
		if !target.Valid() {
			return cylinderID, domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)}
		}
		var err error
		updated, err = s.moveCylinder(tx, actor, current, cylinderMove{target: target, tc: tc})
		return cylinderID, err
	})
	return updated, res, err
}

// moveCylinder checks the version token, validates the transition, resolves
// the target attributes, writes the cylinder and appends its movement.
func (s *Service) moveCylinder(tx domain.Transaction, actor Actor, current domain.Cylinder, mv cylinderMove) (domain.Cylinder, error) {
	if v := mv.tc.ExpectedVersion; v != 0 && v != current.Version {
		return domain.Cylinder{}, domain.ConcurrencyError{Entity: domain.EntityCylinder, ID: current.ID, Expected: v, Actual: current.Version}
	}
	target := mv.target
	if mv.keepStatus {
		target = current.Status
	} else if !domain.CanTransition(current.Status, target) {
		return domain.Cylinder{}, domain.InvalidTransitionError{Entity: string(domain.EntityCylinder), ID: current.ID, From: string(current.Status), To: string(target)}
	}
	attrs, err := s.resolveAttributes(tx, current, target, mv)
	if err != nil {
		return domain.Cylinder{}, err
	}

	now := s.now()
	updated, err := tx.UpdateCylinder(current.ID, current.Version, func(c *domain.Cylinder) error {
		c.Status = target
		c.GasTypeID = attrs.gasTypeID
		c.WarehouseID = attrs.warehouseID
		c.OwnerID = attrs.ownerID
		c.PropertyID = attrs.propertyID
		if attrs.filled {
			c.LastFillDate = &now
		}
		return nil
	})
	if err != nil {
		return domain.Cylinder{}, err
	}

	movement := mv.movement
	if movement == "" {
		movement = domain.ClassifyTransition(current.Status, target)
	}
	if _, err := tx.AppendMovement(domain.MovementRecord{
		CylinderID:    current.ID,
		Type:          movement,
		FromStatus:    current.Status,
		ToStatus:      target,
		FromWarehouse: current.WarehouseID,
		ToWarehouse:   updated.WarehouseID,
		FromOwner:     current.OwnerID,
		ToOwner:       updated.OwnerID,
		ActorID:       actor.ID,
		ReferenceID:   mv.referenceID,
		Notes:         mv.tc.Notes,
		Timestamp:     now,
	}); err != nil {
		return domain.Cylinder{}, err
	}
	return updated, nil
}

func (s *Service) resolveAttributes(view domain.TransactionView, current domain.Cylinder, target domain.CylinderStatus, mv cylinderMove) (cylinderAttrs, error) {
	attrs := cylinderAttrs{propertyID: current.PropertyID}
	if mv.propertyID != "" {
		attrs.propertyID = mv.propertyID
	}
	property, ok := view.FindProperty(attrs.propertyID)
	if !ok {
		return attrs, domain.NotFoundError{Entity: domain.EntityProperty, ID: attrs.propertyID}
	}
	tc := mv.tc

	switch rule := domain.GasRuleFor(target); rule {
	case domain.GasRequired, domain.GasOptional:
		attrs.gasTypeID = current.GasTypeID
		if tc.GasTypeID != "" {
			switch {
			case attrs.gasTypeID != nil && *attrs.gasTypeID != tc.GasTypeID:
				return attrs, domain.ValidationError{Field: "gas_type_id", Message: fmt.Sprintf("cylinder already holds %s; gas changes only when filling an empty cylinder", *attrs.gasTypeID)}
			case attrs.gasTypeID == nil && rule == domain.GasOptional:
				return attrs, domain.ValidationError{Field: "gas_type_id", Message: "gas cannot be assigned in status " + string(target)}
			case attrs.gasTypeID == nil:
				if err := s.checkFill(view, tc.GasTypeID, property); err != nil {
					return attrs, err
				}
				gas := tc.GasTypeID
				attrs.gasTypeID = &gas
				attrs.filled = true
			}
		}
		if rule == domain.GasRequired && attrs.gasTypeID == nil {
			return attrs, domain.ValidationError{Field: "gas_type_id", Message: "required for status " + string(target)}
		}
		if attrs.gasTypeID != nil && mv.propertyID != "" && !s.catalog.Compatible(*attrs.gasTypeID, property) {
			return attrs, domain.ValidationError{Field: "cylinder_property_id", Message: fmt.Sprintf("property %s cannot hold %s", property.ID, *attrs.gasTypeID)}
		}
	default:
		if tc.GasTypeID != "" {
			return attrs, domain.ValidationError{Field: "gas_type_id", Message: "must be empty for status " + string(target)}
		}
	}

	if domain.IsOnPremises(target) {
		warehouse := tc.WarehouseID
		if warehouse == "" && current.WarehouseID != nil {
			warehouse = *current.WarehouseID
		}
		if warehouse == "" {
			return attrs, domain.ValidationError{Field: "warehouse_id", Message: "required for status " + string(target)}
		}
		if _, ok := view.FindWarehouse(warehouse); !ok {
			return attrs, domain.NotFoundError{Entity: domain.EntityWarehouse, ID: warehouse}
		}
		attrs.warehouseID = &warehouse
	}

	switch {
	case domain.IsAtCustomer(target), domain.IsCarrier(target):
		owner := tc.CustomerID
		if owner == "" && current.OwnerID != nil {
			owner = *current.OwnerID
		}
		if owner == "" {
			if domain.IsAtCustomer(target) {
				return attrs, domain.ValidationError{Field: "customer_id", Message: "required for status " + string(target)}
			}
			break
		}
		if _, ok := view.FindCustomer(owner); !ok {
			return attrs, domain.NotFoundError{Entity: domain.EntityCustomer, ID: owner}
		}
		attrs.ownerID = &owner
	case tc.CustomerID != "" && !mv.keepStatus:
		return attrs, domain.ValidationError{Field: "customer_id", Message: "must be empty for status " + string(target)}
	}
	return attrs, nil
}

// checkFill validates a gas type being filled into a property profile.
func (s *Service) checkFill(view domain.TransactionView, gasTypeID string, property domain.CylinderProperty) error {
	if _, ok := view.FindGasType(gasTypeID); !ok {
		return domain.NotFoundError{Entity: domain.EntityGasType, ID: gasTypeID}
	}
	if !s.catalog.Compatible(gasTypeID, property) {
		return domain.ValidationError{Field: "gas_type_id", Message: fmt.Sprintf("%s is not compatible with property %s", gasTypeID, property.ID)}
	}
	return nil
}
