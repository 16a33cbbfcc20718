package core

import (
	"context"
	"fmt"
	"time"

	"cylindercore/pkg/domain"
)

// LoanAddition hands filled cylinders to a customer on loan.
type LoanAddition struct {
	CustomerID       string
	CylinderIDs      []string
	ExpectedVersions map[string]int64
	Date             time.Time
	Notes            string
}

// ReturnItem is one cylinder handed back with its condition.
type ReturnItem struct {
	CylinderID string
	Condition  domain.ReturnCondition
}

// LoanRemoval takes cylinders back from a customer into a warehouse.
type LoanRemoval struct {
	CustomerID       string
	WarehouseID      string
	Items            []ReturnItem
	ExpectedVersions map[string]int64
	Date             time.Time
	Notes            string
}

// LoanTransfer reassigns cylinders between customers without moving them.
type LoanTransfer struct {
	FromCustomerID   string
	ToCustomerID     string
	CylinderIDs      []string
	ExpectedVersions map[string]int64
	Date             time.Time
	Notes            string
}

// batchMember is a cylinder checked for a loan batch.
type batchMember struct {
	cylinder domain.Cylinder
	target   domain.CylinderStatus
}

// checkBatch loads every member and verifies its version token before any
// write. eligible returns a non-empty reason to reject a member. All rejected
// members are reported together.
func checkBatch(view domain.TransactionView, op string, ids []string, versions map[string]int64, eligible func(domain.Cylinder) (domain.CylinderStatus, string)) ([]batchMember, error) {
	if len(ids) == 0 {
		return nil, domain.ValidationError{Field: "cylinder_ids", Message: "at least one cylinder is required"}
	}
	seen := make(map[string]struct{}, len(ids))
	members := make([]batchMember, 0, len(ids))
	var failures []domain.ItemFailure
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, domain.ValidationError{Field: "cylinder_ids", Message: fmt.Sprintf("cylinder %s listed twice", id)}
		}
		seen[id] = struct{}{}
		c, ok := view.FindCylinder(id)
		if !ok {
			failures = append(failures, domain.ItemFailure{ID: id, Reason: "not found"})
			continue
		}
		if v := versions[id]; v != 0 && v != c.Version {
			return nil, domain.ConcurrencyError{Entity: domain.EntityCylinder, ID: id, Expected: v, Actual: c.Version}
		}
		target, reason := eligible(c)
		if reason != "" {
			failures = append(failures, domain.ItemFailure{ID: id, Reason: reason})
			continue
		}
		members = append(members, batchMember{cylinder: c, target: target})
	}
	if len(failures) > 0 {
		return nil, domain.ConflictError{Message: op + " rejected", Items: failures}
	}
	return members, nil
}

func ownerOf(c domain.Cylinder) string {
	if c.OwnerID == nil {
		return "company stock"
	}
	return "held by " + *c.OwnerID
}

func (s *Service) adjustmentDate(d time.Time) time.Time {
	if d.IsZero() {
		return s.now()
	}
	return d.UTC()
}

// CommitAddition loans eligible cylinders to a customer. Any ineligible
// cylinder rejects the whole batch.
func (s *Service) CommitAddition(ctx context.Context, actor Actor, req LoanAddition) (domain.LoanAdjustment, domain.Result, error) {
	var created domain.LoanAdjustment
	res, err := s.run(ctx, "commit_loan_addition", actor, func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindCustomer(req.CustomerID); !ok {
			return "", domain.NotFoundError{Entity: domain.EntityCustomer, ID: req.CustomerID}
		}
		members, err := checkBatch(tx, "loan addition", req.CylinderIDs, req.ExpectedVersions, func(c domain.Cylinder) (domain.CylinderStatus, string) {
			if !domain.IsLoanEligible(c.Status) {
				return "", "status " + string(c.Status) + " is not eligible for loan"
			}
			if c.OwnerID != nil {
				return "", ownerOf(c)
			}
			return domain.StatusAtCustomerLoan, ""
		})
		if err != nil {
			return "", err
		}
		created, err = tx.CreateLoanAdjustment(domain.LoanAdjustment{
			CustomerID:     req.CustomerID,
			Type:           domain.AdjustmentAddition,
			CylinderIDs:    append([]string(nil), req.CylinderIDs...),
			AdjustmentDate: s.adjustmentDate(req.Date),
			Notes:          req.Notes,
			CreatedBy:      actor.ID,
		})
		if err != nil {
			return "", err
		}
		return created.ID, s.applyBatch(tx, actor, members, domain.MovementLoanAddition, created.ID, TransitionContext{CustomerID: req.CustomerID, Notes: req.Notes})
	})
	return created, res, err
}

// CommitRemoval returns a customer's cylinders to a warehouse in the status
// implied by each return condition.
func (s *Service) CommitRemoval(ctx context.Context, actor Actor, req LoanRemoval) (domain.LoanAdjustment, domain.Result, error) {
	var created domain.LoanAdjustment
	res, err := s.run(ctx, "commit_loan_removal", actor, func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindCustomer(req.CustomerID); !ok {
			return "", domain.NotFoundError{Entity: domain.EntityCustomer, ID: req.CustomerID}
		}
		if req.WarehouseID == "" {
			return "", domain.ValidationError{Field: "warehouse_id", Message: "required"}
		}
		if _, ok := tx.FindWarehouse(req.WarehouseID); !ok {
			return "", domain.NotFoundError{Entity: domain.EntityWarehouse, ID: req.WarehouseID}
		}
		conditions := make(map[string]domain.ReturnCondition, len(req.Items))
		ids := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			if _, ok := item.Condition.TargetStatus(); !ok {
				return "", domain.ValidationError{Field: "return_condition", Message: fmt.Sprintf("cylinder %s: unknown condition %q", item.CylinderID, item.Condition)}
			}
			conditions[item.CylinderID] = item.Condition
			ids = append(ids, item.CylinderID)
		}
		members, err := checkBatch(tx, "loan removal", ids, req.ExpectedVersions, func(c domain.Cylinder) (domain.CylinderStatus, string) {
			if c.OwnerID == nil || *c.OwnerID != req.CustomerID {
				return "", ownerOf(c)
			}
			target, _ := conditions[c.ID].TargetStatus()
			if !domain.CanTransition(c.Status, target) {
				return "", fmt.Sprintf("cannot return from %s to %s", c.Status, target)
			}
			if domain.GasRuleFor(target) == domain.GasRequired && c.GasTypeID == nil {
				return "", "no gas type recorded for a full return"
			}
			return target, ""
		})
		if err != nil {
			return "", err
		}
		created, err = tx.CreateLoanAdjustment(domain.LoanAdjustment{
			CustomerID:     req.CustomerID,
			Type:           domain.AdjustmentRemoval,
			CylinderIDs:    ids,
			Conditions:     conditions,
			WarehouseID:    &req.WarehouseID,
			AdjustmentDate: s.adjustmentDate(req.Date),
			Notes:          req.Notes,
			CreatedBy:      actor.ID,
		})
		if err != nil {
			return "", err
		}
		return created.ID, s.applyBatch(tx, actor, members, domain.MovementLoanRemoval, created.ID, TransitionContext{WarehouseID: req.WarehouseID, Notes: req.Notes})
	})
	return created, res, err
}

// CommitTransfer moves ownership of cylinders from one customer to another
// without changing their physical status.
func (s *Service) CommitTransfer(ctx context.Context, actor Actor, req LoanTransfer) (domain.LoanAdjustment, domain.Result, error) {
	var created domain.LoanAdjustment
	res, err := s.run(ctx, "commit_loan_transfer", actor, func(tx domain.Transaction) (string, error) {
		if req.FromCustomerID == "" || req.ToCustomerID == "" {
			return "", domain.ValidationError{Field: "customer_id", Message: "both source and destination customers are required"}
		}
		if req.FromCustomerID == req.ToCustomerID {
			return "", domain.ValidationError{Field: "to_customer_id", Message: "must differ from the source customer"}
		}
		for _, id := range []string{req.FromCustomerID, req.ToCustomerID} {
			if _, ok := tx.FindCustomer(id); !ok {
				return "", domain.NotFoundError{Entity: domain.EntityCustomer, ID: id}
			}
		}
		members, err := checkBatch(tx, "loan transfer", req.CylinderIDs, req.ExpectedVersions, func(c domain.Cylinder) (domain.CylinderStatus, string) {
			if c.OwnerID == nil || *c.OwnerID != req.FromCustomerID {
				return "", ownerOf(c)
			}
			return c.Status, ""
		})
		if err != nil {
			return "", err
		}
		from, to := req.FromCustomerID, req.ToCustomerID
		created, err = tx.CreateLoanAdjustment(domain.LoanAdjustment{
			CustomerID:     to,
			Type:           domain.AdjustmentTransfer,
			CylinderIDs:    append([]string(nil), req.CylinderIDs...),
			FromCustomerID: &from,
			ToCustomerID:   &to,
			AdjustmentDate: s.adjustmentDate(req.Date),
			Notes:          req.Notes,
			CreatedBy:      actor.ID,
		})
		if err != nil {
			return "", err
		}
		for _, m := range members {
			if _, err := s.moveCylinder(tx, actor, m.cylinder, cylinderMove{
				keepStatus:  true,
				movement:    domain.MovementLoanTransfer,
				tc:          TransitionContext{CustomerID: to, Notes: req.Notes},
				referenceID: created.ID,
			}); err != nil {
				return created.ID, err
			}
		}
		return created.ID, nil
	})
	return created, res, err
}

func (s *Service) applyBatch(tx domain.Transaction, actor Actor, members []batchMember, movement domain.MovementType, referenceID string, tc TransitionContext) error {
	for _, m := range members {
		if _, err := s.moveCylinder(tx, actor, m.cylinder, cylinderMove{
			target:      m.target,
			movement:    movement,
			tc:          tc,
			referenceID: referenceID,
		}); err != nil {
			return fmt.Errorf("cylinder %s: %w", m.cylinder.ID, err)
		}
	}
	return nil
}

// ListLoanAdjustments lists adjustments touching a customer, oldest first.
func (s *Service) ListLoanAdjustments(ctx context.Context, customerID string) ([]domain.LoanAdjustment, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.LoanAdjustment, error) {
		if customerID != "" {
			if _, ok := v.FindCustomer(customerID); !ok {
				return nil, domain.NotFoundError{Entity: domain.EntityCustomer, ID: customerID}
			}
		}
		return v.ListLoanAdjustments(customerID), nil
	})
}
