package core

import (
	"strings"
	"testing"

	"cylindercore/pkg/domain"
)

func TestCommitAdditionLoansEveryCylinder(t *testing.T) {
	f := newFixture(t)
	a := f.filled("500000001")
	b := f.filled("500000002")
	adj := f.loan("alpha", a.ID, b.ID)
	if adj.Type != domain.AdjustmentAddition || adj.CreatedBy != f.actor.ID || len(adj.CylinderIDs) != 2 || adj.AdjustmentDate.IsZero() {
		t.Fatalf("unexpected adjustment %+v", adj)
	}
	for _, id := range []string{a.ID, b.ID} {
		c := f.get(id)
		if c.Status != domain.StatusAtCustomerLoan || c.OwnerID == nil || *c.OwnerID != "alpha" || c.WarehouseID != nil {
			t.Fatalf("unexpected loaned cylinder %+v", c)
		}
		moves := f.movements(id)
		last := moves[len(moves)-1]
		if last.Type != domain.MovementLoanAddition || last.ReferenceID != adj.ID || *last.FromWarehouse != "w1" {
			t.Fatalf("unexpected loan movement %+v", last)
		}
	}
	f.assertInvariants(a.ID, b.ID)
}

func TestCommitAdditionRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	eligible := f.filled("500000011")
	empty := f.empty("500000012")
	loaned := f.filled("500000013")
	f.loan("beta", loaned.ID)

	_, _, err := f.svc.CommitAddition(f.ctx, f.actor, LoanAddition{CustomerID: "alpha", CylinderIDs: []string{eligible.ID, empty.ID, loaned.ID, "ghost"}})
	conflict := expectError[domain.ConflictError](t, err)
	if len(conflict.Items) != 3 {
		t.Fatalf("expected three failing members, got %+v", conflict.Items)
	}
	failed := map[string]string{}
	for _, item := range conflict.Items {
		failed[item.ID] = item.Reason
	}
	if _, found := failed[eligible.ID]; found {
		t.Fatalf("eligible cylinder reported as failing")
	}
	if !strings.Contains(failed[empty.ID], "AtWarehouseEmpty") || failed["ghost"] != "not found" {
		t.Fatalf("unexpected reasons %+v", failed)
	}
	if got := f.get(eligible.ID); got.Status != domain.StatusAtWarehouseFilled || len(f.movements(eligible.ID)) != 1 {
		t.Fatalf("no member may be applied on rejection: %+v", got)
	}
	adjustments, err := f.svc.ListLoanAdjustments(f.ctx, "alpha")
	if err != nil || len(adjustments) != 0 {
		t.Fatalf("rejected batch must not be recorded: %+v (%v)", adjustments, err)
	}
}

func TestCommitAdditionInputValidation(t *testing.T) {
	f := newFixture(t)
	a := f.filled("500000021")
	if _, _, err := f.svc.CommitAddition(f.ctx, f.actor, LoanAddition{CustomerID: "alpha"}); err == nil {
		t.Fatalf("expected empty batch to fail")
	}
	_, _, err := f.svc.CommitAddition(f.ctx, f.actor, LoanAddition{CustomerID: "alpha", CylinderIDs: []string{a.ID, a.ID}})
	expectError[domain.ValidationError](t, err)
	if _, _, err := f.svc.CommitAddition(f.ctx, f.actor, LoanAddition{CustomerID: "nobody", CylinderIDs: []string{a.ID}}); !domain.IsNotFound(err) {
		t.Fatalf("expected unknown customer, got %v", err)
	}
	_, _, err = f.svc.CommitAddition(f.ctx, f.actor, LoanAddition{CustomerID: "alpha", CylinderIDs: []string{a.ID}, ExpectedVersions: map[string]int64{a.ID: 7}})
	if !domain.IsRetryable(err) {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestCommitRemovalMapsReturnConditions(t *testing.T) {
	f := newFixture(t)
	full := f.filled("500000031")
	empty := f.filled("500000032")
	partial := f.filled("500000033")
	f.loan("alpha", full.ID, empty.ID, partial.ID)

	adj, _, err := f.svc.CommitRemoval(f.ctx, f.actor, LoanRemoval{
		CustomerID:  "alpha",
		WarehouseID: "w2",
		Items: []ReturnItem{
			{CylinderID: full.ID, Condition: domain.ReturnFull},
			{CylinderID: empty.ID, Condition: domain.ReturnEmpty},
			{CylinderID: partial.ID, Condition: domain.ReturnPartial},
		},
		Notes: "route 7",
	})
	if err != nil {
		t.Fatalf("removal: %v", err)
	}
	if adj.Type != domain.AdjustmentRemoval || adj.Conditions[partial.ID] != domain.ReturnPartial || *adj.WarehouseID != "w2" {
		t.Fatalf("unexpected adjustment %+v", adj)
	}
	want := map[string]domain.CylinderStatus{
		full.ID:    domain.StatusAtWarehouseFilled,
		empty.ID:   domain.StatusAtWarehouseEmpty,
		partial.ID: domain.StatusNeedsInspection,
	}
	for id, status := range want {
		c := f.get(id)
		if c.Status != status || c.OwnerID != nil || *c.WarehouseID != "w2" {
			t.Fatalf("cylinder %s: unexpected state %+v", id, c)
		}
	}
	f.assertInvariants(full.ID, empty.ID, partial.ID)
	if f.get(full.ID).GasTypeID == nil {
		t.Fatalf("full return keeps its gas")
	}
}

func TestCommitRemovalRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	mine := f.filled("500000041")
	theirs := f.filled("500000042")
	stock := f.filled("500000043")
	f.loan("alpha", mine.ID)
	f.loan("beta", theirs.ID)

	_, _, err := f.svc.CommitRemoval(f.ctx, f.actor, LoanRemoval{
		CustomerID:  "alpha",
		WarehouseID: "w1",
		Items: []ReturnItem{
			{CylinderID: mine.ID, Condition: domain.ReturnEmpty},
			{CylinderID: theirs.ID, Condition: domain.ReturnEmpty},
			{CylinderID: stock.ID, Condition: domain.ReturnEmpty},
		},
	})
	conflict := expectError[domain.ConflictError](t, err)
	if len(conflict.Items) != 2 || !strings.Contains(conflict.Error(), "held by beta") || !strings.Contains(conflict.Error(), "company stock") {
		t.Fatalf("unexpected conflict %v", conflict)
	}
	if f.get(mine.ID).Status != domain.StatusAtCustomerLoan {
		t.Fatalf("eligible member must stay untouched")
	}

	_, _, err = f.svc.CommitRemoval(f.ctx, f.actor, LoanRemoval{CustomerID: "alpha", WarehouseID: "w1", Items: []ReturnItem{{CylinderID: mine.ID, Condition: "BROKEN"}}})
	expectError[domain.ValidationError](t, err)
	_, _, err = f.svc.CommitRemoval(f.ctx, f.actor, LoanRemoval{CustomerID: "alpha", Items: []ReturnItem{{CylinderID: mine.ID, Condition: domain.ReturnFull}}})
	expectError[domain.ValidationError](t, err)
}

func TestCommitTransferReassignsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	a := f.filled("500000051")
	f.loan("alpha", a.ID)

	_, _, err := f.svc.CommitTransfer(f.ctx, f.actor, LoanTransfer{FromCustomerID: "alpha", ToCustomerID: "alpha", CylinderIDs: []string{a.ID}})
	expectError[domain.ValidationError](t, err)
	_, _, err = f.svc.CommitTransfer(f.ctx, f.actor, LoanTransfer{FromCustomerID: "beta", ToCustomerID: "gamma", CylinderIDs: []string{a.ID}})
	expectError[domain.ConflictError](t, err)

	adj, _, err := f.svc.CommitTransfer(f.ctx, f.actor, LoanTransfer{FromCustomerID: "alpha", ToCustomerID: "gamma", CylinderIDs: []string{a.ID}})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	c := f.get(a.ID)
	if c.Status != domain.StatusAtCustomerLoan || *c.OwnerID != "gamma" {
		t.Fatalf("unexpected transferred cylinder %+v", c)
	}
	moves := f.movements(a.ID)
	last := moves[len(moves)-1]
	if last.Type != domain.MovementLoanTransfer || last.FromStatus != last.ToStatus || *last.FromOwner != "alpha" || *last.ToOwner != "gamma" || last.ReferenceID != adj.ID {
		t.Fatalf("unexpected transfer movement %+v", last)
	}

	for _, customer := range []string{"alpha", "gamma"} {
		list, err := f.svc.ListLoanAdjustments(f.ctx, customer)
		if err != nil {
			t.Fatalf("list %s: %v", customer, err)
		}
		found := false
		for _, l := range list {
			found = found || l.ID == adj.ID
		}
		if !found {
			t.Fatalf("transfer must be listed for %s", customer)
		}
	}
}
