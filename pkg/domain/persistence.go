package domain

import "context"

// CylinderFilter narrows cylinder listings. Empty fields do not filter.
type CylinderFilter struct {
	Status      CylinderStatus
	WarehouseID string
	OwnerID     string
	PropertyID  string
}

// Matches reports whether c satisfies the filter.
func (f CylinderFilter) Matches(c Cylinder) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.WarehouseID != "" && (c.WarehouseID == nil || *c.WarehouseID != f.WarehouseID) {
		return false
	}
	if f.OwnerID != "" && (c.OwnerID == nil || *c.OwnerID != f.OwnerID) {
		return false
	}
	if f.PropertyID != "" && c.PropertyID != f.PropertyID {
		return false
	}
	return true
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	FindCylinder(id string) (Cylinder, bool)
	FindCylinderByBarcode(barcode string) (Cylinder, bool)
	FindCylinderBySerial(serial string) (Cylinder, bool)
	ListCylinders(filter CylinderFilter) []Cylinder
	// ListMovements returns up to limit records of the cylinder's ledger in
	// timestamp order starting at offset. A non-positive limit returns the rest.
	ListMovements(cylinderID string, offset, limit int) []MovementRecord

	FindWarehouse(id string) (Warehouse, bool)
	ListWarehouses() []Warehouse
	FindCustomer(id string) (Customer, bool)
	ListCustomers() []Customer
	FindGasType(id string) (GasType, bool)
	ListGasTypes() []GasType
	FindProperty(id string) (CylinderProperty, bool)
	ListProperties() []CylinderProperty
	FindProduct(id string) (Product, bool)
	ListProducts() []Product
	FindSupplier(id string) (Supplier, bool)
	ListSuppliers() []Supplier
	FindDriver(id string) (Driver, bool)
	ListDrivers() []Driver

	ListLoanAdjustments(customerID string) []LoanAdjustment
	FindAuditSession(id string) (AuditSession, bool)
	ListAuditSessions(customerID string) []AuditSession
	FindConversion(id string) (GasConversionRequest, bool)
	ListConversions() []GasConversionRequest
	FindRefillOrder(id string) (RefillOrder, bool)
	ListRefillOrders() []RefillOrder
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Every mutation is visible to later reads in the same
// transaction and discarded entirely when the transaction fails.
type Transaction interface {
	TransactionView

	// CreateCylinder stores a new cylinder at version 1. Duplicate barcodes or
	// serial numbers yield a ConflictError.
	CreateCylinder(Cylinder) (Cylinder, error)
	// UpdateCylinder applies mutator when expectedVersion is zero or equals
	// the stored version, then increments the version. Identity fields are
	// restored after the mutator runs.
	UpdateCylinder(id string, expectedVersion int64, mutator func(*Cylinder) error) (Cylinder, error)
	// AppendMovement assigns the record's id and per-cylinder sequence.
	AppendMovement(MovementRecord) (MovementRecord, error)

	CreateWarehouse(Warehouse) (Warehouse, error)
	CreateCustomer(Customer) (Customer, error)
	CreateGasType(GasType) (GasType, error)
	CreateProperty(CylinderProperty) (CylinderProperty, error)
	CreateProduct(Product) (Product, error)
	CreateSupplier(Supplier) (Supplier, error)
	CreateDriver(Driver) (Driver, error)

	CreateLoanAdjustment(LoanAdjustment) (LoanAdjustment, error)
	CreateAuditSession(AuditSession) (AuditSession, error)
	UpdateAuditSession(id string, mutator func(*AuditSession) error) (AuditSession, error)
	CreateConversion(GasConversionRequest) (GasConversionRequest, error)
	UpdateConversion(id string, mutator func(*GasConversionRequest) error) (GasConversionRequest, error)
	// NextConversionSequence reserves the next request number sequence for year.
	NextConversionSequence(year int) int
	CreateRefillOrder(RefillOrder) (RefillOrder, error)
	UpdateRefillOrder(id string, mutator func(*RefillOrder) error) (RefillOrder, error)
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
