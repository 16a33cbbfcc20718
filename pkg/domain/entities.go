// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by cylindercore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCylinder identifies an individually tracked cylinder.
	EntityCylinder EntityType = "cylinder"
	// EntityMovement identifies an append-only movement ledger record.
	EntityMovement EntityType = "movement"
	// EntityLoanAdjustment identifies a committed loan ledger adjustment.
	EntityLoanAdjustment EntityType = "loan_adjustment"
	// EntityAuditSession identifies a customer stock-take session.
	EntityAuditSession EntityType = "audit_session"
	// EntityConversion identifies a gas conversion request.
	EntityConversion EntityType = "gas_conversion"
	// EntityRefillOrder identifies a refill supplier order.
	EntityRefillOrder  EntityType = "refill_order"
	EntityWarehouse    EntityType = "warehouse"
	EntityCustomer     EntityType = "customer"
	EntityGasType      EntityType = "gas_type"
	EntityProperty     EntityType = "cylinder_property"
	EntityProduct      EntityType = "product"
	EntitySupplier     EntityType = "supplier"
	EntityDriver       EntityType = "driver"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cylinder is the canonical identity and current state of one physical cylinder.
// Barcode and SerialNumber never change after intake.
type Cylinder struct {
	Base
	Barcode         string         `json:"barcode"`
	SerialNumber    string         `json:"serial_number"`
	Status          CylinderStatus `json:"status"`
	PropertyID      string         `json:"cylinder_property_id"`
	GasTypeID       *string        `json:"gas_type_id"`
	WarehouseID     *string        `json:"warehouse_id"`
	OwnerID         *string        `json:"owner_id"`
	ManufactureDate time.Time      `json:"manufacture_date"`
	LastFillDate    *time.Time     `json:"last_fill_date"`
	Version         int64          `json:"version"`
}

// MovementRecord is one immutable entry of the movement ledger. Seq is assigned
// by the ledger and increases monotonically per cylinder.
type MovementRecord struct {
	ID            string         `json:"id"`
	CylinderID    string         `json:"cylinder_id"`
	Seq           int64          `json:"seq"`
	Type          MovementType   `json:"movement_type"`
	FromStatus    CylinderStatus `json:"from_status,omitempty"`
	ToStatus      CylinderStatus `json:"to_status"`
	FromWarehouse *string        `json:"from_warehouse_id"`
	ToWarehouse   *string        `json:"to_warehouse_id"`
	FromOwner     *string        `json:"from_owner_id"`
	ToOwner       *string        `json:"to_owner_id"`
	ActorID       string         `json:"actor_id"`
	ReferenceID   string         `json:"reference_id,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Warehouse is an on-premises storage location.
type Warehouse struct {
	Base
	Code     string `json:"code"`
	Name     string `json:"name"`
	BranchID string `json:"branch_id"`
}

// Customer is an external party that can hold cylinders.
type Customer struct {
	Base
	Code     string `json:"code"`
	Name     string `json:"name"`
	BranchID string `json:"branch_id"`
}

// GasType is a fillable gas.
type GasType struct {
	Base
	Code string `json:"code"`
	Name string `json:"name"`
}

// CylinderProperty is the physical profile of a cylinder model.
type CylinderProperty struct {
	Base
	Name           string  `json:"name"`
	Material       string  `json:"material"`
	CapacityLiters float64 `json:"capacity_liters"`
}

// Product pairs a gas type with a cylinder property profile (packaging).
type Product struct {
	Base
	Code       string `json:"code"`
	Name       string `json:"name"`
	GasTypeID  string `json:"gas_type_id"`
	PropertyID string `json:"cylinder_property_id"`
}

// Supplier refills cylinders off-site.
type Supplier struct {
	Base
	Code string `json:"code"`
	Name string `json:"name"`
}

// Driver transports refill orders.
type Driver struct {
	Base
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number"`
	Active        bool   `json:"active"`
}

// LoanAdjustment is a committed change to which customer holds which cylinders.
type LoanAdjustment struct {
	Base
	CustomerID     string                     `json:"customer_id"`
	Type           AdjustmentType             `json:"adjustment_type"`
	CylinderIDs    []string                   `json:"cylinder_ids"`
	Conditions     map[string]ReturnCondition `json:"return_conditions,omitempty"`
	FromCustomerID *string                    `json:"from_customer_id,omitempty"`
	ToCustomerID   *string                    `json:"to_customer_id,omitempty"`
	WarehouseID    *string                    `json:"warehouse_id,omitempty"`
	AdjustmentDate time.Time                  `json:"adjustment_date"`
	Notes          string                     `json:"notes"`
	CreatedBy      string                     `json:"created_by"`
}

// AuditExpectation is one cylinder the system believed the customer held when
// the session was opened.
type AuditExpectation struct {
	CylinderID   string `json:"cylinder_id"`
	Barcode      string `json:"barcode"`
	SerialNumber string `json:"serial_number"`
}

// AuditScan is one accepted scan. The classification is frozen at scan time.
type AuditScan struct {
	Identifier     string              `json:"identifier"`
	CylinderID     string              `json:"cylinder_id"`
	Classification AuditClassification `json:"classification"`
	OwnerID        *string             `json:"owner_id"`
	ScannedAt      time.Time           `json:"scanned_at"`
	ScannedBy      string              `json:"scanned_by"`
}

// AuditSummary counts reconciliation outcomes.
type AuditSummary struct {
	Match      int `json:"match"`
	Missing    int `json:"missing"`
	Unexpected int `json:"unexpected"`
	Foreign    int `json:"foreign"`
}

// AuditSession is a physical stock-take of one customer's holdings.
type AuditSession struct {
	Base
	CustomerID  string             `json:"customer_id"`
	AuditorID   string             `json:"auditor_id"`
	BranchID    string             `json:"branch_id"`
	Status      AuditStatus        `json:"status"`
	Expected    []AuditExpectation `json:"expected"`
	Scans       []AuditScan        `json:"scans"`
	Summary     *AuditSummary      `json:"summary"`
	CompletedAt *time.Time         `json:"completed_at"`
}

// AuditResultItem is a derived reconciliation line.
type AuditResultItem struct {
	Identifier     string              `json:"scanned_identifier"`
	Classification AuditClassification `json:"classification"`
	CylinderID     *string             `json:"matched_cylinder_id"`
	Notes          string              `json:"notes,omitempty"`
}

// GasConversionRequest asks to repurpose cylinders from one product to another.
type GasConversionRequest struct {
	Base
	RequestNumber        string           `json:"request_number"`
	FromProductID        string           `json:"from_product_id"`
	ToProductID          string           `json:"to_product_id"`
	Quantity             int              `json:"quantity"`
	Status               ConversionStatus `json:"status"`
	RequesterID          string           `json:"requester_id"`
	ApproverID           *string          `json:"approver_id"`
	AssignedWarehouseID  *string          `json:"assigned_warehouse_id"`
	CompletedCount       int              `json:"completed_count"`
	ConvertedCylinderIDs []string         `json:"converted_cylinder_ids"`
	DecisionNotes        string           `json:"decision_notes,omitempty"`
	Notes                []string         `json:"notes"`
}

// RefillOrderDetail is one cylinder travelling with a refill order.
type RefillOrderDetail struct {
	CylinderID string     `json:"cylinder_id"`
	ProductID  string     `json:"product_id"`
	IsReturned bool       `json:"is_returned"`
	ReturnedAt *time.Time `json:"returned_at"`
}

// RefillOrder dispatches cylinders to an external refill supplier.
type RefillOrder struct {
	Base
	SupplierID   string              `json:"supplier_id"`
	WarehouseID  string              `json:"warehouse_id"`
	Status       RefillStatus        `json:"status"`
	RequesterID  string              `json:"requester_id"`
	ApproverID   *string             `json:"approver_id"`
	DriverID     *string             `json:"driver_id"`
	VehiclePlate string              `json:"vehicle_plate"`
	Details      []RefillOrderDetail `json:"details"`
	Notes        string              `json:"notes,omitempty"`
}

// OpenDetails reports how many details have not been returned yet.
func (o RefillOrder) OpenDetails() int {
	n := 0
	for _, d := range o.Details {
		if !d.IsReturned {
			n++
		}
	}
	return n
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the change set.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionAppend Action = "append"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
