package core

import (
	"context"
	"path/filepath"
	"testing"

	"cylindercore/internal/infra/persistence/memory"
	"cylindercore/internal/infra/persistence/sqlite"
	"cylindercore/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, closer, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer closer.Close()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "nested", "cylinders.db")}

	store, closer, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("empty driver must select sqlite, got %T", store)
	}
	svc := NewService(store, WithCatalog(fixtureCatalog))
	actor := Actor{ID: "clerk-1"}
	if _, _, err := svc.CreateWarehouse(ctx, actor, domain.Warehouse{Base: domain.Base{ID: "w1"}, Code: "W1", Name: "Main", BranchID: "north"}); err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	if _, _, err := svc.CreateProperty(ctx, actor, domain.CylinderProperty{Base: domain.Base{ID: "steel40"}, Name: "Steel 40L", Material: "steel", CapacityLiters: 40}); err != nil {
		t.Fatalf("create property: %v", err)
	}
	c, _, err := svc.RegisterCylinder(ctx, actor, CylinderRegistration{
		Barcode: "920000001", SerialNumber: "SN-1", PropertyID: "steel40",
		Status: domain.StatusAtWarehouseEmpty, WarehouseID: "w1", ManufactureDate: fixtureTime,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, closer2, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageSQLite, SQLitePath: cfg.SQLitePath}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closer2.Close()
	svc = NewService(reopened)
	got, err := svc.FindCylinder(ctx, "920000001")
	if err != nil || got.ID != c.ID || got.Version != 1 {
		t.Fatalf("expected persisted cylinder, got %+v (%v)", got, err)
	}
	moves, err := svc.MovementPage(ctx, c.ID, 0, 10)
	if err != nil || len(moves) != 1 || moves[0].Type != domain.MovementIntake {
		t.Fatalf("expected persisted ledger, got %+v (%v)", moves, err)
	}
}

func TestOpenPersistentStoreRejectsUnknownDriver(t *testing.T) {
	if _, _, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: "cassandra"}, nil); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
