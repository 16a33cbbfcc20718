package domain

import (
	"iter"
	"slices"
)

// CylinderStatus enumerates the lifecycle states of a cylinder.
type CylinderStatus string

// Cylinder lifecycle states.
const (
	StatusAtWarehouseEmpty     CylinderStatus = "AtWarehouseEmpty"
	StatusAtWarehouseFilled    CylinderStatus = "AtWarehouseFilled"
	StatusAllocatedToOrder     CylinderStatus = "AllocatedToOrder"
	StatusReadyToShip          CylinderStatus = "ReadyToShip"
	StatusInTransit            CylinderStatus = "InTransit"
	StatusAtCustomerLoan       CylinderStatus = "AtCustomerLoan"
	StatusAtCustomerPurchase   CylinderStatus = "AtCustomerPurchase"
	StatusReturningToWarehouse CylinderStatus = "ReturningToWarehouse"
	StatusNeedsInspection      CylinderStatus = "NeedsInspection"
	StatusDamaged              CylinderStatus = "Damaged"
	StatusInactive             CylinderStatus = "Inactive"
)

// cylinderSuccessors is the single successor table for cylinder status
// transitions. Every caller goes through CanTransition.
var cylinderSuccessors = map[CylinderStatus][]CylinderStatus{
	StatusAtWarehouseEmpty: {
		StatusAtWarehouseFilled, StatusInTransit, StatusNeedsInspection, StatusDamaged, StatusInactive,
	},
	StatusAtWarehouseFilled: {
		StatusAllocatedToOrder, StatusReadyToShip, StatusInTransit, StatusAtCustomerLoan, StatusAtCustomerPurchase,
		StatusAtWarehouseEmpty, StatusNeedsInspection, StatusDamaged, StatusInactive,
	},
	StatusAllocatedToOrder: {
		StatusReadyToShip, StatusAtWarehouseFilled, StatusAtCustomerLoan, StatusAtCustomerPurchase,
		StatusNeedsInspection, StatusDamaged,
	},
	StatusReadyToShip: {
		StatusInTransit, StatusAllocatedToOrder, StatusAtWarehouseFilled, StatusAtCustomerLoan,
		StatusAtCustomerPurchase, StatusNeedsInspection, StatusDamaged,
	},
	StatusInTransit: {
		StatusAtCustomerLoan, StatusAtCustomerPurchase, StatusAtWarehouseFilled, StatusAtWarehouseEmpty,
		StatusReturningToWarehouse, StatusNeedsInspection, StatusDamaged,
	},
	StatusAtCustomerLoan: {
		StatusReturningToWarehouse, StatusAtWarehouseFilled, StatusAtWarehouseEmpty, StatusNeedsInspection,
		StatusAtCustomerPurchase, StatusDamaged,
	},
	StatusAtCustomerPurchase: {
		StatusReturningToWarehouse, StatusAtWarehouseEmpty, StatusAtWarehouseFilled, StatusNeedsInspection,
	},
	StatusReturningToWarehouse: {
		StatusAtWarehouseEmpty, StatusAtWarehouseFilled, StatusNeedsInspection, StatusDamaged,
	},
	// inspection resolution
	StatusNeedsInspection: {
		StatusAtWarehouseEmpty, StatusAtWarehouseFilled, StatusDamaged, StatusInactive,
	},
	StatusDamaged: {
		StatusAtWarehouseEmpty, StatusInactive,
	},
	StatusInactive: {},
}

// AllCylinderStatuses lists every lifecycle state in declaration order.
func AllCylinderStatuses() []CylinderStatus {
	return []CylinderStatus{
		StatusAtWarehouseEmpty, StatusAtWarehouseFilled, StatusAllocatedToOrder, StatusReadyToShip,
		StatusInTransit, StatusAtCustomerLoan, StatusAtCustomerPurchase, StatusReturningToWarehouse,
		StatusNeedsInspection, StatusDamaged, StatusInactive,
	}
}

// Valid reports whether s is a known lifecycle state.
func (s CylinderStatus) Valid() bool {
	_, ok := cylinderSuccessors[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s CylinderStatus) Terminal() bool {
	next, ok := cylinderSuccessors[s]
	return ok && len(next) == 0
}

// Successors returns a copy of the allowed next states of s.
func (s CylinderStatus) Successors() []CylinderStatus {
	return slices.Clone(cylinderSuccessors[s])
}

// CanTransition reports whether to is an allowed successor of from.
func CanTransition(from, to CylinderStatus) bool {
	return slices.Contains(cylinderSuccessors[from], to)
}

// IsIntakeStatus reports whether a cylinder may be registered in s.
func IsIntakeStatus(s CylinderStatus) bool {
	return s == StatusAtWarehouseEmpty || s == StatusAtWarehouseFilled
}

// GasRule describes whether a state carries a gas type.
type GasRule int

// Gas rules per state. Carrier states keep whatever the cylinder held.
const (
	GasForbidden GasRule = iota
	GasRequired
	GasOptional
)

// GasRuleFor returns the gas rule of s.
func GasRuleFor(s CylinderStatus) GasRule {
	switch s {
	case StatusAtWarehouseFilled, StatusAllocatedToOrder, StatusReadyToShip, StatusAtCustomerLoan, StatusAtCustomerPurchase:
		return GasRequired
	case StatusInTransit, StatusReturningToWarehouse:
		return GasOptional
	default:
		return GasForbidden
	}
}

// IsOnPremises reports whether s places the cylinder inside a warehouse.
func IsOnPremises(s CylinderStatus) bool {
	switch s {
	case StatusAtWarehouseEmpty, StatusAtWarehouseFilled, StatusAllocatedToOrder, StatusReadyToShip,
		StatusNeedsInspection, StatusDamaged:
		return true
	}
	return false
}

// IsAtCustomer reports whether s places the cylinder with a customer.
func IsAtCustomer(s CylinderStatus) bool {
	return s == StatusAtCustomerLoan || s == StatusAtCustomerPurchase
}

// IsCarrier reports whether s is a transport state that preserves the owner.
func IsCarrier(s CylinderStatus) bool {
	return s == StatusInTransit || s == StatusReturningToWarehouse
}

// IsLoanEligible reports whether a cylinder in s can be added to a customer loan.
func IsLoanEligible(s CylinderStatus) bool {
	return s == StatusAtWarehouseFilled || s == StatusAllocatedToOrder || s == StatusReadyToShip
}

// CheckCylinderInvariants verifies the attribute invariants that must hold for
// a cylinder in its current state. It returns a ValidationError listing the
// first broken invariant.
func CheckCylinderInvariants(c Cylinder) error {
	if !c.Status.Valid() {
		return ValidationError{Field: "status", Message: "unknown status " + string(c.Status)}
	}
	switch GasRuleFor(c.Status) {
	case GasRequired:
		if c.GasTypeID == nil {
			return ValidationError{Field: "gas_type_id", Message: "required in status " + string(c.Status)}
		}
	case GasForbidden:
		if c.GasTypeID != nil {
			return ValidationError{Field: "gas_type_id", Message: "must be empty in status " + string(c.Status)}
		}
	}
	if IsOnPremises(c.Status) != (c.WarehouseID != nil) {
		if c.WarehouseID == nil {
			return ValidationError{Field: "warehouse_id", Message: "required in status " + string(c.Status)}
		}
		return ValidationError{Field: "warehouse_id", Message: "must be empty in status " + string(c.Status)}
	}
	if IsAtCustomer(c.Status) && c.OwnerID == nil {
		return ValidationError{Field: "owner_id", Message: "required in status " + string(c.Status)}
	}
	if IsOnPremises(c.Status) && c.OwnerID != nil {
		return ValidationError{Field: "owner_id", Message: "must be empty in status " + string(c.Status)}
	}
	return nil
}

// MovementType classifies a movement ledger entry.
type MovementType string

// Movement types recorded by the ledger.
const (
	MovementIntake               MovementType = "intake"
	MovementTransition           MovementType = "transition"
	MovementFill                 MovementType = "fill"
	MovementInspectionResolution MovementType = "inspection_resolution"
	MovementLoanAddition         MovementType = "loan_addition"
	MovementLoanRemoval          MovementType = "loan_removal"
	MovementLoanTransfer         MovementType = "loan_transfer"
	MovementRefillDispatch       MovementType = "refill_dispatch"
	MovementRefillReceipt        MovementType = "refill_receipt"
	MovementConversion           MovementType = "conversion"
)

// ClassifyTransition picks the movement type for a plain status transition.
func ClassifyTransition(from, to CylinderStatus) MovementType {
	switch {
	case from == StatusAtWarehouseEmpty && to == StatusAtWarehouseFilled:
		return MovementFill
	case (from == StatusNeedsInspection || from == StatusDamaged) && IsOnPremises(to):
		return MovementInspectionResolution
	default:
		return MovementTransition
	}
}

// ReplayStatus folds a movement sequence and returns the resulting status. The
// second return value is false when the sequence is empty.
func ReplayStatus(movements iter.Seq[MovementRecord]) (CylinderStatus, bool) {
	var status CylinderStatus
	seen := false
	for m := range movements {
		status = m.ToStatus
		seen = true
	}
	return status, seen
}

// AdjustmentType enumerates loan ledger operations.
type AdjustmentType string

// Loan adjustment types.
const (
	AdjustmentAddition AdjustmentType = "ADDITION"
	AdjustmentRemoval  AdjustmentType = "REMOVAL"
	AdjustmentTransfer AdjustmentType = "TRANSFER"
)

// ReturnCondition describes a cylinder handed back by a customer.
type ReturnCondition string

// Return conditions accepted by loan removals.
const (
	ReturnFull    ReturnCondition = "FULL"
	ReturnEmpty   ReturnCondition = "EMPTY"
	ReturnPartial ReturnCondition = "PARTIAL"
)

// TargetStatus maps the condition to the on-premises state the cylinder enters.
func (c ReturnCondition) TargetStatus() (CylinderStatus, bool) {
	switch c {
	case ReturnFull:
		return StatusAtWarehouseFilled, true
	case ReturnEmpty:
		return StatusAtWarehouseEmpty, true
	case ReturnPartial:
		return StatusNeedsInspection, true
	}
	return "", false
}
