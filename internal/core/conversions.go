package core

import (
	"context"
	"fmt"
	"strings"

	"cylindercore/pkg/domain"
)

// ConversionSubmission requests that quantity cylinders of one product be
// repurposed as another.
type ConversionSubmission struct {
	FromProductID string
	ToProductID   string
	Quantity      int
	Notes         string
}

// ConversionCompletion reports converted cylinders. When CylinderIDs is set
// its length must equal Count and each cylinder is re-profiled.
type ConversionCompletion struct {
	Count            int
	CylinderIDs      []string
	ExpectedVersions map[string]int64
	Notes            string
}

// RequestNumber formats a conversion request number.
func RequestNumber(year, seq int) string {
	return fmt.Sprintf("GC-%d-%06d", year, seq)
}

// SubmitGasConversion files a request pending approval.
func (s *Service) SubmitGasConversion(ctx context.Context, actor Actor, req ConversionSubmission) (domain.GasConversionRequest, domain.Result, error) {
	var created domain.GasConversionRequest
	res, err := s.run(ctx, "submit_gas_conversion", actor, func(tx domain.Transaction) (string, error) {
		if req.Quantity <= 0 {
			return "", domain.ValidationError{Field: "quantity", Message: "must be positive"}
		}
		if req.FromProductID == req.ToProductID {
			return "", domain.ValidationError{Field: "to_product_id", Message: "must differ from the source product"}
		}
		for _, id := range []string{req.FromProductID, req.ToProductID} {
			if _, ok := tx.FindProduct(id); !ok {
				return "", domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
			}
		}
		year := s.now().Year()
		var notes []string
		if n := strings.TrimSpace(req.Notes); n != "" {
			notes = append(notes, n)
		}
		var err error
		created, err = tx.CreateConversion(domain.GasConversionRequest{
			RequestNumber: RequestNumber(year, tx.NextConversionSequence(year)),
			FromProductID: req.FromProductID,
			ToProductID:   req.ToProductID,
			Quantity:      req.Quantity,
			Status:        domain.ConversionPendingApproval,
			RequesterID:   actor.ID,
			Notes:         notes,
		})
		return created.ID, err
	})
	return created, res, err
}

// ApproveConversion approves a pending request and assigns the warehouse that
// performs the work.
func (s *Service) ApproveConversion(ctx context.Context, actor Actor, id, warehouseID, notes string) (domain.GasConversionRequest, domain.Result, error) {
	return s.decideConversion(ctx, "approve_conversion", actor, id, func(tx domain.Transaction, r *domain.GasConversionRequest) error {
		if err := domain.ConversionMachine.Transition(r.ID, r.Status, domain.ConversionApproved); err != nil {
			return err
		}
		if err := firstError(required("notes", notes), required("assigned_warehouse_id", warehouseID)); err != nil {
			return err
		}
		if _, ok := tx.FindWarehouse(warehouseID); !ok {
			return domain.NotFoundError{Entity: domain.EntityWarehouse, ID: warehouseID}
		}
		approver := actor.ID
		r.Status = domain.ConversionApproved
		r.ApproverID = &approver
		r.AssignedWarehouseID = &warehouseID
		r.DecisionNotes = notes
		r.Notes = append(r.Notes, notes)
		return nil
	})
}

// RejectConversion rejects a pending request. No cylinder is touched.
func (s *Service) RejectConversion(ctx context.Context, actor Actor, id, notes string) (domain.GasConversionRequest, domain.Result, error) {
	return s.decideConversion(ctx, "reject_conversion", actor, id, func(_ domain.Transaction, r *domain.GasConversionRequest) error {
		if err := domain.ConversionMachine.Transition(r.ID, r.Status, domain.ConversionRejected); err != nil {
			return err
		}
		if err := required("notes", notes); err != nil {
			return err
		}
		approver := actor.ID
		r.Status = domain.ConversionRejected
		r.ApproverID = &approver
		r.DecisionNotes = notes
		r.Notes = append(r.Notes, notes)
		return nil
	})
}

// ReassignConversionWarehouse replaces the assigned warehouse of an approved
// or partially completed request without restarting approval.
func (s *Service) ReassignConversionWarehouse(ctx context.Context, actor Actor, id, warehouseID, notes string) (domain.GasConversionRequest, domain.Result, error) {
	return s.decideConversion(ctx, "reassign_conversion_warehouse", actor, id, func(tx domain.Transaction, r *domain.GasConversionRequest) error {
		if r.Status != domain.ConversionApproved && r.Status != domain.ConversionPartiallyCompleted {
			return domain.InvalidTransitionError{Entity: domain.ConversionMachine.Label, ID: r.ID, From: string(r.Status), To: string(domain.ConversionApproved)}
		}
		if err := required("assigned_warehouse_id", warehouseID); err != nil {
			return err
		}
		if _, ok := tx.FindWarehouse(warehouseID); !ok {
			return domain.NotFoundError{Entity: domain.EntityWarehouse, ID: warehouseID}
		}
		r.AssignedWarehouseID = &warehouseID
		if n := strings.TrimSpace(notes); n != "" {
			r.Notes = append(r.Notes, n)
		}
		return nil
	})
}

// RecordConversionCompletion adds to the completed count. The request becomes
// COMPLETED when the count reaches the quantity.
func (s *Service) RecordConversionCompletion(ctx context.Context, actor Actor, id string, done ConversionCompletion) (domain.GasConversionRequest, domain.Result, error) {
	return s.decideConversion(ctx, "record_conversion_completion", actor, id, func(tx domain.Transaction, r *domain.GasConversionRequest) error {
		if done.Count <= 0 {
			return domain.ValidationError{Field: "completed_count", Message: "must be positive"}
		}
		if r.CompletedCount+done.Count > r.Quantity {
			return domain.ValidationError{Field: "completed_count", Message: fmt.Sprintf("%d already completed of %d; %d more exceeds the quantity", r.CompletedCount, r.Quantity, done.Count)}
		}
		next := domain.ConversionPartiallyCompleted
		if r.CompletedCount+done.Count == r.Quantity {
			next = domain.ConversionCompleted
		}
		if err := domain.ConversionMachine.Transition(r.ID, r.Status, next); err != nil {
			return err
		}
		if len(done.CylinderIDs) > 0 {
			if len(done.CylinderIDs) != done.Count {
				return domain.ValidationError{Field: "cylinder_ids", Message: fmt.Sprintf("%d cylinders listed for a count of %d", len(done.CylinderIDs), done.Count)}
			}
			if err := s.convertCylinders(tx, actor, *r, done); err != nil {
				return err
			}
			r.ConvertedCylinderIDs = append(r.ConvertedCylinderIDs, done.CylinderIDs...)
		}
		r.CompletedCount += done.Count
		r.Status = next
		if n := strings.TrimSpace(done.Notes); n != "" {
			r.Notes = append(r.Notes, n)
		}
		return nil
	})
}

// convertCylinders re-profiles empty cylinders at the assigned warehouse from
// the source product's property to the target product's property.
func (s *Service) convertCylinders(tx domain.Transaction, actor Actor, r domain.GasConversionRequest, done ConversionCompletion) error {
	from, ok := tx.FindProduct(r.FromProductID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProduct, ID: r.FromProductID}
	}
	to, ok := tx.FindProduct(r.ToProductID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProduct, ID: r.ToProductID}
	}
	warehouse := ""
	if r.AssignedWarehouseID != nil {
		warehouse = *r.AssignedWarehouseID
	}
	members, err := checkBatch(tx, "conversion", done.CylinderIDs, done.ExpectedVersions, func(c domain.Cylinder) (domain.CylinderStatus, string) {
		switch {
		case c.Status != domain.StatusAtWarehouseEmpty:
			return "", "status " + string(c.Status) + " is not empty stock"
		case c.WarehouseID == nil || *c.WarehouseID != warehouse:
			return "", "not at the assigned warehouse"
		case c.PropertyID != from.PropertyID:
			return "", "property " + c.PropertyID + " does not match the source product"
		}
		return c.Status, ""
	})
	if err != nil {
		return err
	}
	for _, m := range members {
		if _, err := s.moveCylinder(tx, actor, m.cylinder, cylinderMove{
			keepStatus:  true,
			movement:    domain.MovementConversion,
			propertyID:  to.PropertyID,
			tc:          TransitionContext{Notes: r.RequestNumber},
			referenceID: r.ID,
		}); err != nil {
			return fmt.Errorf("cylinder %s: %w", m.cylinder.ID, err)
		}
	}
	return nil
}

func (s *Service) decideConversion(ctx context.Context, op string, actor Actor, id string, apply func(domain.Transaction, *domain.GasConversionRequest) error) (domain.GasConversionRequest, domain.Result, error) {
	var updated domain.GasConversionRequest
	res, err := s.run(ctx, op, actor, func(tx domain.Transaction) (string, error) {
		current, ok := tx.FindConversion(id)
		if !ok {
			return id, domain.NotFoundError{Entity: domain.EntityConversion, ID: id}
		}
		if err := apply(tx, &current); err != nil {
			return id, err
		}
		var err error
		updated, err = tx.UpdateConversion(id, func(r *domain.GasConversionRequest) error {
			*r = current
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// GetConversion returns a conversion request by id.
func (s *Service) GetConversion(ctx context.Context, id string) (domain.GasConversionRequest, error) {
	return query(ctx, s, func(v domain.TransactionView) (domain.GasConversionRequest, error) {
		r, ok := v.FindConversion(id)
		if !ok {
			return domain.GasConversionRequest{}, domain.NotFoundError{Entity: domain.EntityConversion, ID: id}
		}
		return r, nil
	})
}

// ListConversions lists requests, optionally filtered by status.
func (s *Service) ListConversions(ctx context.Context, status domain.ConversionStatus) ([]domain.GasConversionRequest, error) {
	if status != "" && !domain.ConversionMachine.Valid(status) {
		return nil, domain.ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	return query(ctx, s, func(v domain.TransactionView) ([]domain.GasConversionRequest, error) {
		all := v.ListConversions()
		if status == "" {
			return all, nil
		}
		out := all[:0]
		for _, r := range all {
			if r.Status == status {
				out = append(out, r)
			}
		}
		return out, nil
	})
}
