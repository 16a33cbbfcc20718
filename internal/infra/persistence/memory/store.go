// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cylindercore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*transaction)(nil)
	_ domain.RuleView        = transactionView{}
)

type (
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	cylinders   map[string]domain.Cylinder
	barcodes    map[string]string
	serials     map[string]string
	movements   map[string][]domain.MovementRecord
	warehouses  map[string]domain.Warehouse
	customers   map[string]domain.Customer
	gasTypes    map[string]domain.GasType
	properties  map[string]domain.CylinderProperty
	products    map[string]domain.Product
	suppliers   map[string]domain.Supplier
	drivers     map[string]domain.Driver
	loans       map[string]domain.LoanAdjustment
	audits      map[string]domain.AuditSession
	conversions map[string]domain.GasConversionRequest
	refills     map[string]domain.RefillOrder
	sequences   map[int]int
}

func newMemoryState() memoryState {
	return memoryState{
		cylinders:   make(map[string]domain.Cylinder),
		barcodes:    make(map[string]string),
		serials:     make(map[string]string),
		movements:   make(map[string][]domain.MovementRecord),
		warehouses:  make(map[string]domain.Warehouse),
		customers:   make(map[string]domain.Customer),
		gasTypes:    make(map[string]domain.GasType),
		properties:  make(map[string]domain.CylinderProperty),
		products:    make(map[string]domain.Product),
		suppliers:   make(map[string]domain.Supplier),
		drivers:     make(map[string]domain.Driver),
		loans:       make(map[string]domain.LoanAdjustment),
		audits:      make(map[string]domain.AuditSession),
		conversions: make(map[string]domain.GasConversionRequest),
		refills:     make(map[string]domain.RefillOrder),
		sequences:   make(map[int]int),
	}
}

// clone copies every map. Movement slices are clipped so an append inside a
// transaction reallocates instead of writing into the committed backing array.
func (s memoryState) clone() memoryState {
	c := memoryState{
		cylinders:   make(map[string]domain.Cylinder, len(s.cylinders)),
		barcodes:    maps.Clone(s.barcodes),
		serials:     maps.Clone(s.serials),
		movements:   make(map[string][]domain.MovementRecord, len(s.movements)),
		warehouses:  maps.Clone(s.warehouses),
		customers:   maps.Clone(s.customers),
		gasTypes:    maps.Clone(s.gasTypes),
		properties:  maps.Clone(s.properties),
		products:    maps.Clone(s.products),
		suppliers:   maps.Clone(s.suppliers),
		drivers:     maps.Clone(s.drivers),
		loans:       maps.Clone(s.loans),
		audits:      make(map[string]domain.AuditSession, len(s.audits)),
		conversions: make(map[string]domain.GasConversionRequest, len(s.conversions)),
		refills:     make(map[string]domain.RefillOrder, len(s.refills)),
		sequences:   maps.Clone(s.sequences),
	}
	for k, v := range s.cylinders {
		c.cylinders[k] = cloneCylinder(v)
	}
	for k, v := range s.movements {
		c.movements[k] = slices.Clip(v)
	}
	for k, v := range s.audits {
		c.audits[k] = cloneAudit(v)
	}
	for k, v := range s.conversions {
		c.conversions[k] = cloneConversion(v)
	}
	for k, v := range s.refills {
		c.refills[k] = cloneRefill(v)
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCylinder(c domain.Cylinder) domain.Cylinder {
	c.GasTypeID = clonePtr(c.GasTypeID)
	c.WarehouseID = clonePtr(c.WarehouseID)
	c.OwnerID = clonePtr(c.OwnerID)
	c.LastFillDate = clonePtr(c.LastFillDate)
	return c
}

func cloneLoan(l domain.LoanAdjustment) domain.LoanAdjustment {
	l.CylinderIDs = slices.Clone(l.CylinderIDs)
	l.Conditions = maps.Clone(l.Conditions)
	l.FromCustomerID = clonePtr(l.FromCustomerID)
	l.ToCustomerID = clonePtr(l.ToCustomerID)
	l.WarehouseID = clonePtr(l.WarehouseID)
	return l
}

func cloneAudit(a domain.AuditSession) domain.AuditSession {
	a.Expected = slices.Clone(a.Expected)
	a.Scans = slices.Clone(a.Scans)
	a.Summary = clonePtr(a.Summary)
	a.CompletedAt = clonePtr(a.CompletedAt)
	return a
}

func cloneConversion(r domain.GasConversionRequest) domain.GasConversionRequest {
	r.ApproverID = clonePtr(r.ApproverID)
	r.AssignedWarehouseID = clonePtr(r.AssignedWarehouseID)
	r.ConvertedCylinderIDs = slices.Clone(r.ConvertedCylinderIDs)
	r.Notes = slices.Clone(r.Notes)
	return r
}

func cloneRefill(o domain.RefillOrder) domain.RefillOrder {
	o.ApproverID = clonePtr(o.ApproverID)
	o.DriverID = clonePtr(o.DriverID)
	o.Details = slices.Clone(o.Details)
	for i := range o.Details {
		o.Details[i].ReturnedAt = clonePtr(o.Details[i].ReturnedAt)
	}
	return o
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
}

// SetNowFunc replaces the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

type transaction struct {
	transactionView
	store   *Store
	changes []Change
	now     time.Time
}

// RunInTransaction clones the state, applies fn, evaluates the rules engine on
// the recorded changes and commits only when fn and every blocking rule pass.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.clone()
	tx := &transaction{
		transactionView: transactionView{state: &state},
		store:           s,
		now:             s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state. The
// snapshot shares no mutable data with the live state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, before, after any) {
	change := Change{Entity: entity, Action: action}
	if before != nil {
		change.Before = domain.MustChangePayload(before)
	}
	if after != nil {
		change.After = domain.MustChangePayload(after)
	}
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) assignBase(b *domain.Base) {
	if b.ID == "" {
		b.ID = tx.store.idFn()
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
}

// CreateCylinder stores a new cylinder and indexes its identifiers.
func (tx *transaction) CreateCylinder(c domain.Cylinder) (domain.Cylinder, error) {
	tx.assignBase(&c.Base)
	if _, exists := tx.state.cylinders[c.ID]; exists {
		return domain.Cylinder{}, domain.ConflictError{Message: fmt.Sprintf("cylinder %q already exists", c.ID)}
	}
	if owner, exists := tx.state.barcodes[c.Barcode]; exists {
		return domain.Cylinder{}, domain.ConflictError{Message: "barcode already registered", Items: []domain.ItemFailure{{ID: c.Barcode, Reason: "assigned to cylinder " + owner}}}
	}
	if owner, exists := tx.state.serials[c.SerialNumber]; exists {
		return domain.Cylinder{}, domain.ConflictError{Message: "serial number already registered", Items: []domain.ItemFailure{{ID: c.SerialNumber, Reason: "assigned to cylinder " + owner}}}
	}
	c.Version = 1
	tx.state.cylinders[c.ID] = cloneCylinder(c)
	tx.state.barcodes[c.Barcode] = c.ID
	tx.state.serials[c.SerialNumber] = c.ID
	tx.recordChange(domain.EntityCylinder, domain.ActionCreate, nil, c)
	return cloneCylinder(c), nil
}

// UpdateCylinder mutates a cylinder after checking the optimistic version.
func (tx *transaction) UpdateCylinder(id string, expectedVersion int64, mutator func(*domain.Cylinder) error) (domain.Cylinder, error) {
	current, ok := tx.state.cylinders[id]
	if !ok {
		return domain.Cylinder{}, domain.NotFoundError{Entity: domain.EntityCylinder, ID: id}
	}
	if expectedVersion != 0 && expectedVersion != current.Version {
		return domain.Cylinder{}, domain.ConcurrencyError{Entity: domain.EntityCylinder, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneCylinder(current)
	if err := mutator(&current); err != nil {
		return domain.Cylinder{}, err
	}
	current.ID = id
	current.Barcode = before.Barcode
	current.SerialNumber = before.SerialNumber
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.cylinders[id] = cloneCylinder(current)
	tx.recordChange(domain.EntityCylinder, domain.ActionUpdate, before, current)
	return cloneCylinder(current), nil
}

// AppendMovement adds a record to the cylinder's ledger. Timestamps never
// decrease within one cylinder's ledger so timestamp order equals sequence order.
func (tx *transaction) AppendMovement(m domain.MovementRecord) (domain.MovementRecord, error) {
	if _, ok := tx.state.cylinders[m.CylinderID]; !ok {
		return domain.MovementRecord{}, domain.NotFoundError{Entity: domain.EntityCylinder, ID: m.CylinderID}
	}
	ledger := tx.state.movements[m.CylinderID]
	if m.ID == "" {
		m.ID = tx.store.idFn()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = tx.now
	}
	m.Seq = 1
	if n := len(ledger); n > 0 {
		last := ledger[n-1]
		m.Seq = last.Seq + 1
		if m.Timestamp.Before(last.Timestamp) {
			m.Timestamp = last.Timestamp
		}
	}
	m.FromWarehouse = clonePtr(m.FromWarehouse)
	m.ToWarehouse = clonePtr(m.ToWarehouse)
	m.FromOwner = clonePtr(m.FromOwner)
	m.ToOwner = clonePtr(m.ToOwner)
	tx.state.movements[m.CylinderID] = append(ledger, m)
	tx.recordChange(domain.EntityMovement, domain.ActionAppend, nil, m)
	return m, nil
}

func createRecord[T any](tx *transaction, entity domain.EntityType, bucket map[string]T, base *domain.Base, value *T) (T, error) {
	tx.assignBase(base)
	if _, exists := bucket[base.ID]; exists {
		var zero T
		return zero, domain.ConflictError{Message: fmt.Sprintf("%s %q already exists", entity, base.ID)}
	}
	bucket[base.ID] = *value
	tx.recordChange(entity, domain.ActionCreate, nil, *value)
	return *value, nil
}

// CreateWarehouse stores a warehouse.
func (tx *transaction) CreateWarehouse(w domain.Warehouse) (domain.Warehouse, error) {
	return createRecord(tx, domain.EntityWarehouse, tx.state.warehouses, &w.Base, &w)
}

// CreateCustomer stores a customer.
func (tx *transaction) CreateCustomer(c domain.Customer) (domain.Customer, error) {
	return createRecord(tx, domain.EntityCustomer, tx.state.customers, &c.Base, &c)
}

// CreateGasType stores a gas type.
func (tx *transaction) CreateGasType(g domain.GasType) (domain.GasType, error) {
	return createRecord(tx, domain.EntityGasType, tx.state.gasTypes, &g.Base, &g)
}

// CreateProperty stores a cylinder property profile.
func (tx *transaction) CreateProperty(p domain.CylinderProperty) (domain.CylinderProperty, error) {
	return createRecord(tx, domain.EntityProperty, tx.state.properties, &p.Base, &p)
}

// CreateProduct stores a product.
func (tx *transaction) CreateProduct(p domain.Product) (domain.Product, error) {
	return createRecord(tx, domain.EntityProduct, tx.state.products, &p.Base, &p)
}

// CreateSupplier stores a refill supplier.
func (tx *transaction) CreateSupplier(s domain.Supplier) (domain.Supplier, error) {
	return createRecord(tx, domain.EntitySupplier, tx.state.suppliers, &s.Base, &s)
}

// CreateDriver stores a driver.
func (tx *transaction) CreateDriver(d domain.Driver) (domain.Driver, error) {
	return createRecord(tx, domain.EntityDriver, tx.state.drivers, &d.Base, &d)
}

// CreateLoanAdjustment stores a committed loan adjustment.
func (tx *transaction) CreateLoanAdjustment(l domain.LoanAdjustment) (domain.LoanAdjustment, error) {
	l = cloneLoan(l)
	out, err := createRecord(tx, domain.EntityLoanAdjustment, tx.state.loans, &l.Base, &l)
	return cloneLoan(out), err
}

// CreateAuditSession stores a new audit session.
func (tx *transaction) CreateAuditSession(a domain.AuditSession) (domain.AuditSession, error) {
	a = cloneAudit(a)
	out, err := createRecord(tx, domain.EntityAuditSession, tx.state.audits, &a.Base, &a)
	return cloneAudit(out), err
}

// UpdateAuditSession mutates an audit session.
func (tx *transaction) UpdateAuditSession(id string, mutator func(*domain.AuditSession) error) (domain.AuditSession, error) {
	current, ok := tx.state.audits[id]
	if !ok {
		return domain.AuditSession{}, domain.NotFoundError{Entity: domain.EntityAuditSession, ID: id}
	}
	before := cloneAudit(current)
	if err := mutator(&current); err != nil {
		return domain.AuditSession{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.audits[id] = cloneAudit(current)
	tx.recordChange(domain.EntityAuditSession, domain.ActionUpdate, before, current)
	return cloneAudit(current), nil
}

// CreateConversion stores a gas conversion request.
func (tx *transaction) CreateConversion(r domain.GasConversionRequest) (domain.GasConversionRequest, error) {
	r = cloneConversion(r)
	out, err := createRecord(tx, domain.EntityConversion, tx.state.conversions, &r.Base, &r)
	return cloneConversion(out), err
}

// UpdateConversion mutates a gas conversion request.
func (tx *transaction) UpdateConversion(id string, mutator func(*domain.GasConversionRequest) error) (domain.GasConversionRequest, error) {
	current, ok := tx.state.conversions[id]
	if !ok {
		return domain.GasConversionRequest{}, domain.NotFoundError{Entity: domain.EntityConversion, ID: id}
	}
	before := cloneConversion(current)
	if err := mutator(&current); err != nil {
		return domain.GasConversionRequest{}, err
	}
	current.ID = id
	current.RequestNumber = before.RequestNumber
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.conversions[id] = cloneConversion(current)
	tx.recordChange(domain.EntityConversion, domain.ActionUpdate, before, current)
	return cloneConversion(current), nil
}

// NextConversionSequence reserves the next request sequence for year.
func (tx *transaction) NextConversionSequence(year int) int {
	tx.state.sequences[year]++
	return tx.state.sequences[year]
}

// CreateRefillOrder stores a refill order.
func (tx *transaction) CreateRefillOrder(o domain.RefillOrder) (domain.RefillOrder, error) {
	o = cloneRefill(o)
	out, err := createRecord(tx, domain.EntityRefillOrder, tx.state.refills, &o.Base, &o)
	return cloneRefill(out), err
}

// UpdateRefillOrder mutates a refill order.
func (tx *transaction) UpdateRefillOrder(id string, mutator func(*domain.RefillOrder) error) (domain.RefillOrder, error) {
	current, ok := tx.state.refills[id]
	if !ok {
		return domain.RefillOrder{}, domain.NotFoundError{Entity: domain.EntityRefillOrder, ID: id}
	}
	before := cloneRefill(current)
	if err := mutator(&current); err != nil {
		return domain.RefillOrder{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.refills[id] = cloneRefill(current)
	tx.recordChange(domain.EntityRefillOrder, domain.ActionUpdate, before, current)
	return cloneRefill(current), nil
}

// transactionView exposes read-only access over a state snapshot.
type transactionView struct {
	state *memoryState
}

func sortedValues[T any](bucket map[string]T, keep func(T) bool, key func(T) string, clone func(T) T) []T {
	out := make([]T, 0, len(bucket))
	for _, v := range bucket {
		if keep != nil && !keep(v) {
			continue
		}
		if clone != nil {
			v = clone(v)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

// FindCylinder looks up a cylinder by id.
func (v transactionView) FindCylinder(id string) (domain.Cylinder, bool) {
	c, ok := v.state.cylinders[id]
	if !ok {
		return domain.Cylinder{}, false
	}
	return cloneCylinder(c), true
}

// FindCylinderByBarcode looks up a cylinder by barcode.
func (v transactionView) FindCylinderByBarcode(barcode string) (domain.Cylinder, bool) {
	id, ok := v.state.barcodes[barcode]
	if !ok {
		return domain.Cylinder{}, false
	}
	return v.FindCylinder(id)
}

// FindCylinderBySerial looks up a cylinder by serial number.
func (v transactionView) FindCylinderBySerial(serial string) (domain.Cylinder, bool) {
	id, ok := v.state.serials[serial]
	if !ok {
		return domain.Cylinder{}, false
	}
	return v.FindCylinder(id)
}

// ListCylinders returns cylinders matching filter ordered by barcode.
func (v transactionView) ListCylinders(filter domain.CylinderFilter) []domain.Cylinder {
	return sortedValues(v.state.cylinders, filter.Matches, func(c domain.Cylinder) string { return c.Barcode }, cloneCylinder)
}

// ListMovements pages through a cylinder's ledger.
func (v transactionView) ListMovements(cylinderID string, offset, limit int) []domain.MovementRecord {
	ledger := v.state.movements[cylinderID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ledger) {
		return nil
	}
	end := len(ledger)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.MovementRecord, 0, end-offset)
	for _, m := range ledger[offset:end] {
		m.FromWarehouse = clonePtr(m.FromWarehouse)
		m.ToWarehouse = clonePtr(m.ToWarehouse)
		m.FromOwner = clonePtr(m.FromOwner)
		m.ToOwner = clonePtr(m.ToOwner)
		out = append(out, m)
	}
	return out
}

func find[T any](bucket map[string]T, id string) (T, bool) {
	v, ok := bucket[id]
	return v, ok
}

// FindWarehouse looks up a warehouse.
func (v transactionView) FindWarehouse(id string) (domain.Warehouse, bool) {
	return find(v.state.warehouses, id)
}

// ListWarehouses lists warehouses ordered by code.
func (v transactionView) ListWarehouses() []domain.Warehouse {
	return sortedValues(v.state.warehouses, nil, func(w domain.Warehouse) string { return w.Code }, nil)
}

// FindCustomer looks up a customer.
func (v transactionView) FindCustomer(id string) (domain.Customer, bool) {
	return find(v.state.customers, id)
}

// ListCustomers lists customers ordered by code.
func (v transactionView) ListCustomers() []domain.Customer {
	return sortedValues(v.state.customers, nil, func(c domain.Customer) string { return c.Code }, nil)
}

// FindGasType looks up a gas type.
func (v transactionView) FindGasType(id string) (domain.GasType, bool) {
	return find(v.state.gasTypes, id)
}

// ListGasTypes lists gas types ordered by code.
func (v transactionView) ListGasTypes() []domain.GasType {
	return sortedValues(v.state.gasTypes, nil, func(g domain.GasType) string { return g.Code }, nil)
}

// FindProperty looks up a cylinder property profile.
func (v transactionView) FindProperty(id string) (domain.CylinderProperty, bool) {
	return find(v.state.properties, id)
}

// ListProperties lists property profiles ordered by name.
func (v transactionView) ListProperties() []domain.CylinderProperty {
	return sortedValues(v.state.properties, nil, func(p domain.CylinderProperty) string { return p.Name }, nil)
}

// FindProduct looks up a product.
func (v transactionView) FindProduct(id string) (domain.Product, bool) {
	return find(v.state.products, id)
}

// ListProducts lists products ordered by code.
func (v transactionView) ListProducts() []domain.Product {
	return sortedValues(v.state.products, nil, func(p domain.Product) string { return p.Code }, nil)
}

// FindSupplier looks up a supplier.
func (v transactionView) FindSupplier(id string) (domain.Supplier, bool) {
	return find(v.state.suppliers, id)
}

// ListSuppliers lists suppliers ordered by code.
func (v transactionView) ListSuppliers() []domain.Supplier {
	return sortedValues(v.state.suppliers, nil, func(s domain.Supplier) string { return s.Code }, nil)
}

// FindDriver looks up a driver.
func (v transactionView) FindDriver(id string) (domain.Driver, bool) {
	return find(v.state.drivers, id)
}

// ListDrivers lists drivers ordered by name.
func (v transactionView) ListDrivers() []domain.Driver {
	return sortedValues(v.state.drivers, nil, func(d domain.Driver) string { return d.Name }, nil)
}

// ListLoanAdjustments lists adjustments touching customerID (all when empty),
// oldest first.
func (v transactionView) ListLoanAdjustments(customerID string) []domain.LoanAdjustment {
	keep := func(l domain.LoanAdjustment) bool {
		if customerID == "" || l.CustomerID == customerID {
			return true
		}
		return l.FromCustomerID != nil && *l.FromCustomerID == customerID
	}
	out := sortedValues(v.state.loans, keep, func(l domain.LoanAdjustment) string { return l.ID }, cloneLoan)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FindAuditSession looks up an audit session.
func (v transactionView) FindAuditSession(id string) (domain.AuditSession, bool) {
	a, ok := v.state.audits[id]
	if !ok {
		return domain.AuditSession{}, false
	}
	return cloneAudit(a), true
}

// ListAuditSessions lists sessions for customerID (all when empty), oldest first.
func (v transactionView) ListAuditSessions(customerID string) []domain.AuditSession {
	keep := func(a domain.AuditSession) bool { return customerID == "" || a.CustomerID == customerID }
	out := sortedValues(v.state.audits, keep, func(a domain.AuditSession) string { return a.ID }, cloneAudit)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FindConversion looks up a gas conversion request.
func (v transactionView) FindConversion(id string) (domain.GasConversionRequest, bool) {
	r, ok := v.state.conversions[id]
	if !ok {
		return domain.GasConversionRequest{}, false
	}
	return cloneConversion(r), true
}

// ListConversions lists conversion requests ordered by request number.
func (v transactionView) ListConversions() []domain.GasConversionRequest {
	return sortedValues(v.state.conversions, nil, func(r domain.GasConversionRequest) string { return r.RequestNumber }, cloneConversion)
}

// FindRefillOrder looks up a refill order.
func (v transactionView) FindRefillOrder(id string) (domain.RefillOrder, bool) {
	o, ok := v.state.refills[id]
	if !ok {
		return domain.RefillOrder{}, false
	}
	return cloneRefill(o), true
}

// ListRefillOrders lists refill orders, oldest first.
func (v transactionView) ListRefillOrders() []domain.RefillOrder {
	out := sortedValues(v.state.refills, nil, func(o domain.RefillOrder) string { return o.ID }, cloneRefill)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
