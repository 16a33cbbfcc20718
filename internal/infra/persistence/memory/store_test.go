package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cylindercore/pkg/domain"
)

func strPtr(s string) *string { return &s }

func seedCylinder(t *testing.T, store *Store, barcode, serial string) domain.Cylinder {
	t.Helper()
	var created domain.Cylinder
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		c, err := tx.CreateCylinder(domain.Cylinder{
			Barcode:      barcode,
			SerialNumber: serial,
			Status:       domain.StatusAtWarehouseEmpty,
			PropertyID:   "p1",
			WarehouseID:  strPtr("w1"),
		})
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		t.Fatalf("create cylinder: %v", err)
	}
	return created
}

func TestCreateCylinderAssignsIdentityAndVersion(t *testing.T) {
	store := NewStore(nil)
	c := seedCylinder(t, store, "123456789", "SN-0001")
	if c.ID == "" || c.Version != 1 || c.CreatedAt.IsZero() {
		t.Fatalf("unexpected cylinder %+v", c)
	}
	_ = store.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindCylinderByBarcode("123456789"); !ok {
			t.Fatalf("expected barcode index")
		}
		if _, ok := v.FindCylinderBySerial("SN-0001"); !ok {
			t.Fatalf("expected serial index")
		}
		return nil
	})
}

func TestCreateCylinderRejectsDuplicates(t *testing.T) {
	store := NewStore(nil)
	seedCylinder(t, store, "123456789", "SN-0001")
	for _, tc := range []struct{ barcode, serial string }{
		{"123456789", "SN-0002"},
		{"987654321", "SN-0001"},
	} {
		_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.CreateCylinder(domain.Cylinder{Barcode: tc.barcode, SerialNumber: tc.serial, Status: domain.StatusAtWarehouseEmpty})
			return err
		})
		var conflict domain.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError for %+v, got %v", tc, err)
		}
	}
}

func TestUpdateCylinderVersionCheck(t *testing.T) {
	store := NewStore(nil)
	c := seedCylinder(t, store, "123456789", "SN-0001")
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateCylinder(c.ID, c.Version, func(cur *domain.Cylinder) error {
			cur.Status = domain.StatusDamaged
			cur.Barcode = "000000000"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateCylinder(c.ID, c.Version, func(*domain.Cylinder) error { return nil })
		return err
	})
	if !domain.IsRetryable(err) {
		t.Fatalf("expected ConcurrencyError for stale version, got %v", err)
	}

	_ = store.View(ctx, func(v TransactionView) error {
		got, _ := v.FindCylinder(c.ID)
		if got.Version != 2 || got.Status != domain.StatusDamaged {
			t.Fatalf("unexpected state %+v", got)
		}
		if got.Barcode != "123456789" {
			t.Fatalf("barcode must be immutable, got %s", got.Barcode)
		}
		return nil
	})
}

func TestUpdateCylinderNotFound(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateCylinder("missing", 0, func(*domain.Cylinder) error { return nil })
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := NewStore(nil)
	c := seedCylinder(t, store, "123456789", "SN-0001")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.UpdateCylinder(c.ID, 0, func(cur *domain.Cylinder) error {
			cur.Status = domain.StatusDamaged
			return nil
		}); err != nil {
			return err
		}
		if _, err := tx.AppendMovement(domain.MovementRecord{CylinderID: c.ID, ToStatus: domain.StatusDamaged}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected abort error")
	}
	_ = store.View(context.Background(), func(v TransactionView) error {
		got, _ := v.FindCylinder(c.ID)
		if got.Status != domain.StatusAtWarehouseEmpty || got.Version != 1 {
			t.Fatalf("expected rollback, got %+v", got)
		}
		if len(v.ListMovements(c.ID, 0, 0)) != 0 {
			t.Fatalf("expected no movements after rollback")
		}
		return nil
	})
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block_all" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock}}}, nil
}

func TestRunInTransactionBlockedByRules(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateWarehouse(domain.Warehouse{Code: "W1"})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	_ = store.View(context.Background(), func(v TransactionView) error {
		if len(v.ListWarehouses()) != 0 {
			t.Fatalf("blocked transaction must not commit")
		}
		return nil
	})
}

func TestAppendMovementSequencing(t *testing.T) {
	store := NewStore(nil)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })
	c := seedCylinder(t, store, "123456789", "SN-0001")
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		for i := 0; i < 3; i++ {
			ts := base.Add(time.Duration(-i) * time.Hour)
			if _, err := tx.AppendMovement(domain.MovementRecord{CylinderID: c.ID, ToStatus: domain.StatusAtWarehouseEmpty, Timestamp: ts}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = store.View(ctx, func(v TransactionView) error {
		all := v.ListMovements(c.ID, 0, 0)
		if len(all) != 3 {
			t.Fatalf("expected 3 movements, got %d", len(all))
		}
		for i, m := range all {
			if m.Seq != int64(i+1) {
				t.Fatalf("movement %d has seq %d", i, m.Seq)
			}
			if i > 0 && m.Timestamp.Before(all[i-1].Timestamp) {
				t.Fatalf("timestamps must not decrease within a ledger")
			}
		}
		page := v.ListMovements(c.ID, 1, 1)
		if len(page) != 1 || page[0].Seq != 2 {
			t.Fatalf("unexpected page %+v", page)
		}
		if v.ListMovements(c.ID, 5, 1) != nil {
			t.Fatalf("expected empty page past the end")
		}
		return nil
	})
}

func TestAppendMovementUnknownCylinder(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendMovement(domain.MovementRecord{CylinderID: "ghost"})
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestViewIsIsolatedFromLaterCommits(t *testing.T) {
	store := NewStore(nil)
	c := seedCylinder(t, store, "123456789", "SN-0001")
	ctx := context.Background()
	_ = store.View(ctx, func(v TransactionView) error {
		_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.UpdateCylinder(c.ID, 0, func(cur *domain.Cylinder) error {
				cur.Status = domain.StatusDamaged
				return nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("update during view: %v", err)
		}
		got, _ := v.FindCylinder(c.ID)
		if got.Status != domain.StatusAtWarehouseEmpty {
			t.Fatalf("view must be a snapshot, got %s", got.Status)
		}
		return nil
	})
}

func TestReferenceDataAndWorkflowRecords(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var convID, refillID, auditID string
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateCustomer(domain.Customer{Base: domain.Base{ID: "alpha"}, Code: "A"}); err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(domain.Customer{Base: domain.Base{ID: "alpha"}, Code: "A2"}); err == nil {
			return errors.New("expected duplicate customer conflict")
		}
		r, err := tx.CreateConversion(domain.GasConversionRequest{RequestNumber: fmt.Sprintf("GC-2026-%06d", tx.NextConversionSequence(2026)), Status: domain.ConversionPendingApproval})
		if err != nil {
			return err
		}
		convID = r.ID
		o, err := tx.CreateRefillOrder(domain.RefillOrder{Status: domain.RefillPendingConfirmation, Details: []domain.RefillOrderDetail{{CylinderID: "c1"}}})
		if err != nil {
			return err
		}
		refillID = o.ID
		a, err := tx.CreateAuditSession(domain.AuditSession{CustomerID: "alpha", Status: domain.AuditDraft})
		if err != nil {
			return err
		}
		auditID = a.ID
		_, err = tx.CreateLoanAdjustment(domain.LoanAdjustment{CustomerID: "alpha", Type: domain.AdjustmentAddition, CylinderIDs: []string{"c1"}})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		if seq := tx.NextConversionSequence(2026); seq != 2 {
			return fmt.Errorf("expected sequence 2, got %d", seq)
		}
		if _, err := tx.UpdateConversion(convID, func(r *domain.GasConversionRequest) error {
			r.Status = domain.ConversionApproved
			r.RequestNumber = "tampered"
			return nil
		}); err != nil {
			return err
		}
		if _, err := tx.UpdateRefillOrder(refillID, func(o *domain.RefillOrder) error {
			o.Details[0].IsReturned = true
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateAuditSession(auditID, func(a *domain.AuditSession) error {
			a.Status = domain.AuditInProgress
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = store.View(ctx, func(v TransactionView) error {
		r, _ := v.FindConversion(convID)
		if r.Status != domain.ConversionApproved || r.RequestNumber != "GC-2026-000001" {
			t.Fatalf("unexpected conversion %+v", r)
		}
		o, _ := v.FindRefillOrder(refillID)
		if !o.Details[0].IsReturned {
			t.Fatalf("expected returned detail")
		}
		if len(v.ListLoanAdjustments("alpha")) != 1 || len(v.ListLoanAdjustments("beta")) != 0 {
			t.Fatalf("unexpected loan listing")
		}
		if len(v.ListAuditSessions("alpha")) != 1 {
			t.Fatalf("expected audit session listing")
		}
		return nil
	})
	for _, fn := range []func(Transaction) error{
		func(tx Transaction) error {
			_, err := tx.UpdateConversion("missing", func(*domain.GasConversionRequest) error { return nil })
			return err
		},
		func(tx Transaction) error {
			_, err := tx.UpdateRefillOrder("missing", func(*domain.RefillOrder) error { return nil })
			return err
		},
		func(tx Transaction) error {
			_, err := tx.UpdateAuditSession("missing", func(*domain.AuditSession) error { return nil })
			return err
		},
	} {
		if _, err := store.RunInTransaction(ctx, fn); !domain.IsNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewStore(nil)
	c := seedCylinder(t, store, "123456789", "SN-0001")
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		tx.NextConversionSequence(2026)
		_, err := tx.AppendMovement(domain.MovementRecord{CylinderID: c.ID, Type: domain.MovementIntake, ToStatus: c.Status})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	snapshot := store.ExportState()
	encoded, err := snapshot.EncodeBuckets()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded Snapshot
	for i, bucket := range Buckets {
		if err := decoded.DecodeBucket(bucket, encoded[i]); err != nil {
			t.Fatalf("decode %s: %v", bucket, err)
		}
	}
	if err := decoded.DecodeBucket("unknown", []byte("{")); err != nil {
		t.Fatalf("unknown buckets must be ignored: %v", err)
	}
	if err := decoded.DecodeBucket("cylinders", []byte("{")); err == nil {
		t.Fatalf("expected decode error for malformed bucket")
	}

	restored := NewStore(nil)
	restored.ImportState(decoded)
	_ = restored.View(ctx, func(v TransactionView) error {
		got, ok := v.FindCylinderByBarcode("123456789")
		if !ok || got.ID != c.ID {
			t.Fatalf("expected restored cylinder, got %+v", got)
		}
		if len(v.ListMovements(c.ID, 0, 0)) != 1 {
			t.Fatalf("expected restored ledger")
		}
		return nil
	})
	_, _ = restored.RunInTransaction(ctx, func(tx Transaction) error {
		if seq := tx.NextConversionSequence(2026); seq != 2 {
			t.Fatalf("expected restored sequence, got %d", seq)
		}
		return nil
	})
}
