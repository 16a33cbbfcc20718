package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"cylindercore/pkg/domain"
)

var fixtureTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	svc   *Service
	actor Actor
	clock *stepClock
}

// stepClock advances one second per read so ledger timestamps are distinct.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var fixtureCatalog = domain.CompatibilityRules{
	{GasTypeID: "acetylene", Materials: []string{"steel"}, MinCapacity: 40},
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	clock := &stepClock{now: fixtureTime}
	base := []ServiceOption{WithClock(clock), WithCatalog(fixtureCatalog)}
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		svc:   NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...),
		actor: Actor{ID: "clerk-1", Roles: []string{"clerk"}},
		clock: clock,
	}
	f.seed()
	return f
}

func (f *fixture) seed() {
	f.t.Helper()
	must := func(_ any, _ domain.Result, err error) {
		f.t.Helper()
		if err != nil {
			f.t.Fatalf("seed: %v", err)
		}
	}
	must(f.svc.CreateWarehouse(f.ctx, f.actor, domain.Warehouse{Base: domain.Base{ID: "w1"}, Code: "W1", Name: "Main", BranchID: "north"}))
	must(f.svc.CreateWarehouse(f.ctx, f.actor, domain.Warehouse{Base: domain.Base{ID: "w2"}, Code: "W2", Name: "Annex", BranchID: "north"}))
	must(f.svc.CreateCustomer(f.ctx, f.actor, domain.Customer{Base: domain.Base{ID: "alpha"}, Code: "ALP", Name: "Alpha Welding", BranchID: "north"}))
	must(f.svc.CreateCustomer(f.ctx, f.actor, domain.Customer{Base: domain.Base{ID: "beta"}, Code: "BET", Name: "Beta Clinic", BranchID: "north"}))
	must(f.svc.CreateCustomer(f.ctx, f.actor, domain.Customer{Base: domain.Base{ID: "gamma"}, Code: "GAM", Name: "Gamma Labs", BranchID: "south"}))
	must(f.svc.CreateGasType(f.ctx, f.actor, domain.GasType{Base: domain.Base{ID: "o2"}, Code: "O2", Name: "Oxygen"}))
	must(f.svc.CreateGasType(f.ctx, f.actor, domain.GasType{Base: domain.Base{ID: "acetylene"}, Code: "C2H2", Name: "Acetylene"}))
	must(f.svc.CreateProperty(f.ctx, f.actor, domain.CylinderProperty{Base: domain.Base{ID: "steel40"}, Name: "Steel 40L", Material: "steel", CapacityLiters: 40}))
	must(f.svc.CreateProperty(f.ctx, f.actor, domain.CylinderProperty{Base: domain.Base{ID: "alu5"}, Name: "Aluminium 5L", Material: "aluminium", CapacityLiters: 5}))
	must(f.svc.CreateProduct(f.ctx, f.actor, domain.Product{Base: domain.Base{ID: "o2-steel40"}, Code: "O2-40", Name: "Oxygen 40L", GasTypeID: "o2", PropertyID: "steel40"}))
	must(f.svc.CreateProduct(f.ctx, f.actor, domain.Product{Base: domain.Base{ID: "c2h2-steel40"}, Code: "C2H2-40", Name: "Acetylene 40L", GasTypeID: "acetylene", PropertyID: "steel40"}))
	must(f.svc.CreateProduct(f.ctx, f.actor, domain.Product{Base: domain.Base{ID: "o2-alu5"}, Code: "O2-5", Name: "Oxygen 5L", GasTypeID: "o2", PropertyID: "alu5"}))
	must(f.svc.CreateSupplier(f.ctx, f.actor, domain.Supplier{Base: domain.Base{ID: "sup1"}, Code: "SUP", Name: "Gas Supply Co"}))
	must(f.svc.CreateDriver(f.ctx, f.actor, domain.Driver{Base: domain.Base{ID: "drv1"}, Name: "Dana", LicenseNumber: "L-100", Active: true}))
	must(f.svc.CreateDriver(f.ctx, f.actor, domain.Driver{Base: domain.Base{ID: "drv-off"}, Name: "Omar", LicenseNumber: "L-200"}))
}

// register intakes a cylinder at w1. Serial numbers derive from the barcode.
func (f *fixture) register(barcode string, status domain.CylinderStatus, gas string) domain.Cylinder {
	f.t.Helper()
	c, _, err := f.svc.RegisterCylinder(f.ctx, f.actor, CylinderRegistration{
		Barcode:         barcode,
		SerialNumber:    "SN-" + barcode,
		PropertyID:      "steel40",
		Status:          status,
		WarehouseID:     "w1",
		GasTypeID:       gas,
		ManufactureDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		f.t.Fatalf("register %s: %v", barcode, err)
	}
	return c
}

func (f *fixture) filled(barcode string) domain.Cylinder {
	f.t.Helper()
	return f.register(barcode, domain.StatusAtWarehouseFilled, "o2")
}

func (f *fixture) empty(barcode string) domain.Cylinder {
	f.t.Helper()
	return f.register(barcode, domain.StatusAtWarehouseEmpty, "")
}

func (f *fixture) get(id string) domain.Cylinder {
	f.t.Helper()
	c, err := f.svc.GetCylinder(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get %s: %v", id, err)
	}
	return c
}

func (f *fixture) movements(id string) []domain.MovementRecord {
	f.t.Helper()
	seq, err := f.svc.ListMovements(f.ctx, id)
	if err != nil {
		f.t.Fatalf("list movements %s: %v", id, err)
	}
	return slices.Collect(seq)
}

func (f *fixture) loan(customer string, ids ...string) domain.LoanAdjustment {
	f.t.Helper()
	adj, _, err := f.svc.CommitAddition(f.ctx, f.actor, LoanAddition{CustomerID: customer, CylinderIDs: ids})
	if err != nil {
		f.t.Fatalf("loan to %s: %v", customer, err)
	}
	return adj
}

func (f *fixture) assertInvariants(ids ...string) {
	f.t.Helper()
	for _, id := range ids {
		if err := domain.CheckCylinderInvariants(f.get(id)); err != nil {
			f.t.Fatalf("cylinder %s: %v", id, err)
		}
	}
}

func expectError[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}

func barcode(n int) string {
	return fmt.Sprintf("%09d", n)
}
