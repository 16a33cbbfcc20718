package integration

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"cylindercore/internal/archive"
	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

var admin = core.Actor{ID: "integration", Roles: []string{"admin"}}

// TestIntegrationSmoke runs a short loan and audit cycle against every
// in-process storage and archive backend.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name   string
		driver core.StorageDriver
	}{
		{name: "memory-store", driver: core.StorageMemory},
		{name: "sqlite-store", driver: core.StorageSQLite},
	}
	archiveVariants := []struct {
		name   string
		driver archive.Driver
	}{
		{name: "memory-archive", driver: archive.DriverMemory},
		{name: "fs-archive", driver: archive.DriverFilesystem},
	}

	for _, sv := range storeVariants {
		for _, av := range archiveVariants {
			t.Run(sv.name+"/"+av.name, func(t *testing.T) {
				store, closer, err := core.OpenPersistentStore(ctx, core.StorageConfig{
					Driver:     sv.driver,
					SQLitePath: filepath.Join(t.TempDir(), "core.db"),
				}, nil)
				if err != nil {
					t.Fatalf("open store: %v", err)
				}
				t.Cleanup(func() { _ = closer.Close() })
				objects, err := archive.Open(ctx, archive.Config{Driver: av.driver, FSRoot: t.TempDir()})
				if err != nil {
					t.Fatalf("open archive: %v", err)
				}
				reports := archive.NewReportArchive(objects)
				metrics := core.NewExpvarMetricsRecorder("")
				var traces bytes.Buffer
				tracer := core.NewJSONTracer(&traces)
				svc := core.NewService(store,
					core.WithMetricsRecorder(metrics),
					core.WithTracer(tracer),
					core.WithArchive(reports),
				)

				seedReference(t, svc)
				c := registerFilled(t, svc, "400000001")
				if _, _, err := svc.CommitAddition(ctx, admin, core.LoanAddition{CustomerID: "acme", CylinderIDs: []string{c.ID}}); err != nil {
					t.Fatalf("loan: %v", err)
				}
				session, _, err := svc.OpenAuditSession(ctx, admin, "acme", "", "")
				if err != nil {
					t.Fatalf("open audit: %v", err)
				}
				if _, _, err := svc.SubmitScan(ctx, admin, session.ID, c.Barcode); err != nil {
					t.Fatalf("scan: %v", err)
				}
				summary, _, err := svc.CompleteAuditSession(ctx, admin, session.ID)
				if err != nil || summary.Match != 1 || summary.Missing != 0 {
					t.Fatalf("unexpected summary %+v (%v)", summary, err)
				}

				report, err := reports.LoadAuditReport(ctx, archive.ReportKey("acme", session.ID))
				if err != nil {
					t.Fatalf("completion must archive the report: %v", err)
				}
				if report.Summary != summary || len(report.Items) != 1 {
					t.Fatalf("unexpected archived report %+v", report)
				}

				status, consistent, err := svc.ReplayCylinderStatus(ctx, c.ID)
				if err != nil || !consistent || status != domain.StatusAtCustomerLoan {
					t.Fatalf("ledger replay %s consistent=%v (%v)", status, consistent, err)
				}

				snap := metrics.Snapshot()
				if snap.Results["complete_audit_session"]["success"] != 1 {
					t.Fatalf("expected complete_audit_session metric, got %+v", snap.Results)
				}
				if traces.Len() == 0 || len(tracer.Entries()) == 0 {
					t.Fatalf("expected trace exporter to emit spans")
				}
			})
		}
	}
}

// TestSQLiteStateSurvivesRestart reopens a sqlite file and checks that
// cylinders, the ledger and loan history were persisted.
func TestSQLiteStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "core.db")}

	open := func() (*core.Service, io.Closer) {
		t.Helper()
		store, closer, err := core.OpenPersistentStore(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		return core.NewService(store), closer
	}

	svc, closer := open()
	seedReference(t, svc)
	c := registerFilled(t, svc, "400000011")
	if _, _, err := svc.CommitAddition(ctx, admin, core.LoanAddition{CustomerID: "acme", CylinderIDs: []string{c.ID}}); err != nil {
		t.Fatalf("loan: %v", err)
	}
	if _, _, err := svc.CommitRemoval(ctx, admin, core.LoanRemoval{
		CustomerID: "acme", WarehouseID: "w1",
		Items: []core.ReturnItem{{CylinderID: c.ID, Condition: domain.ReturnPartial}},
	}); err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	svc, closer = open()
	defer func() { _ = closer.Close() }()
	got, err := svc.GetCylinder(ctx, c.ID)
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if got.Status != domain.StatusNeedsInspection || got.OwnerID != nil || got.Version != 3 {
		t.Fatalf("unexpected cylinder after restart %+v", got)
	}
	page, err := svc.MovementPage(ctx, c.ID, 0, 10)
	if err != nil || len(page) != 3 {
		t.Fatalf("expected intake, loan and return movements, got %d (%v)", len(page), err)
	}
	adjustments, err := svc.ListLoanAdjustments(ctx, "acme")
	if err != nil || len(adjustments) != 2 {
		t.Fatalf("expected two adjustments, got %+v (%v)", adjustments, err)
	}
	if _, _, err := svc.RegisterCylinder(ctx, admin, core.CylinderRegistration{
		Barcode: c.Barcode, SerialNumber: "SN-other", PropertyID: "steel40",
		Status: domain.StatusAtWarehouseEmpty, WarehouseID: "w1", ManufactureDate: time.Now(),
	}); err == nil {
		t.Fatalf("barcode uniqueness must survive a restart")
	}
}

func seedReference(t *testing.T, svc *core.Service) {
	t.Helper()
	ctx := context.Background()
	check := func(_ any, _ domain.Result, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	check(svc.CreateWarehouse(ctx, admin, domain.Warehouse{Base: domain.Base{ID: "w1"}, Code: "W1", Name: "Main", BranchID: "north"}))
	check(svc.CreateCustomer(ctx, admin, domain.Customer{Base: domain.Base{ID: "acme"}, Code: "ACM", Name: "Acme", BranchID: "north"}))
	check(svc.CreateGasType(ctx, admin, domain.GasType{Base: domain.Base{ID: "o2"}, Code: "O2", Name: "Oxygen"}))
	check(svc.CreateProperty(ctx, admin, domain.CylinderProperty{Base: domain.Base{ID: "steel40"}, Name: "Steel 40L", Material: "steel", CapacityLiters: 40}))
}

func registerFilled(t *testing.T, svc *core.Service, barcode string) domain.Cylinder {
	t.Helper()
	c, _, err := svc.RegisterCylinder(context.Background(), admin, core.CylinderRegistration{
		Barcode: barcode, SerialNumber: "SN-" + barcode, PropertyID: "steel40",
		Status: domain.StatusAtWarehouseFilled, WarehouseID: "w1", GasTypeID: "o2",
		ManufactureDate: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("register %s: %v", barcode, err)
	}
	return c
}
