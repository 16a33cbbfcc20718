package core

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"cylindercore/pkg/domain"
)

// RefillItem is one cylinder sent for refilling as a product.
type RefillItem struct {
	CylinderID string
	ProductID  string
}

// RefillSubmission creates a refill order.
type RefillSubmission struct {
	SupplierID  string
	WarehouseID string
	Items       []RefillItem
	Notes       string
}

// RefillDispatch carries the transport details of an order.
type RefillDispatch struct {
	VehiclePlate string
	DriverID     string
}

// RefillReceipt is the per-identifier outcome of a receive batch.
type RefillReceipt struct {
	Accepted        []string            `json:"accepted"`
	Rejected        []string            `json:"rejected"`
	AlreadyReceived []string            `json:"already_received"`
	Status          domain.RefillStatus `json:"status"`
}

// SubmitRefillOrder creates an order for empty cylinders at the warehouse.
// Cylinders already on another open order are rejected.
func (s *Service) SubmitRefillOrder(ctx context.Context, actor Actor, req RefillSubmission) (domain.RefillOrder, domain.Result, error) {
	var created domain.RefillOrder
	res, err := s.run(ctx, "submit_refill_order", actor, func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindSupplier(req.SupplierID); !ok {
			return "", domain.NotFoundError{Entity: domain.EntitySupplier, ID: req.SupplierID}
		}
		if _, ok := tx.FindWarehouse(req.WarehouseID); !ok {
			return "", domain.NotFoundError{Entity: domain.EntityWarehouse, ID: req.WarehouseID}
		}
		onOrder := make(map[string]string)
		for _, o := range tx.ListRefillOrders() {
			if !domain.RefillOpen(o.Status) {
				continue
			}
			for _, d := range o.Details {
				onOrder[d.CylinderID] = o.ID
			}
		}
		products := make(map[string]string, len(req.Items))
		ids := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			products[item.CylinderID] = item.ProductID
			ids = append(ids, item.CylinderID)
		}
		if _, err := checkBatch(tx, "refill order", ids, nil, func(c domain.Cylinder) (domain.CylinderStatus, string) {
			switch {
			case c.Status != domain.StatusAtWarehouseEmpty:
				return "", "status " + string(c.Status) + " is not empty stock"
			case c.WarehouseID == nil || *c.WarehouseID != req.WarehouseID:
				return "", "not at warehouse " + req.WarehouseID
			case onOrder[c.ID] != "":
				return "", "already on open refill order " + onOrder[c.ID]
			}
			return s.refillProductFits(tx, c, products[c.ID])
		}); err != nil {
			return "", err
		}
		details := make([]domain.RefillOrderDetail, 0, len(req.Items))
		for _, item := range req.Items {
			details = append(details, domain.RefillOrderDetail{CylinderID: item.CylinderID, ProductID: item.ProductID})
		}
		var err error
		created, err = tx.CreateRefillOrder(domain.RefillOrder{
			SupplierID:  req.SupplierID,
			WarehouseID: req.WarehouseID,
			Status:      domain.RefillPendingConfirmation,
			RequesterID: actor.ID,
			Details:     details,
			Notes:       req.Notes,
		})
		return created.ID, err
	})
	return created, res, err
}

func (s *Service) refillProductFits(view domain.TransactionView, c domain.Cylinder, productID string) (domain.CylinderStatus, string) {
	product, ok := view.FindProduct(productID)
	if !ok {
		return "", "unknown product " + productID
	}
	if product.PropertyID != c.PropertyID {
		return "", "product " + product.Code + " does not match property " + c.PropertyID
	}
	property, ok := view.FindProperty(c.PropertyID)
	if !ok || !s.catalog.Compatible(product.GasTypeID, property) {
		return "", "gas " + product.GasTypeID + " is not compatible with property " + c.PropertyID
	}
	return domain.StatusAtWarehouseFilled, ""
}

// ConfirmRefillDispatch approves a pending order with its vehicle and driver.
func (s *Service) ConfirmRefillDispatch(ctx context.Context, actor Actor, id string, d RefillDispatch) (domain.RefillOrder, domain.Result, error) {
	return s.updateRefill(ctx, "confirm_refill_dispatch", actor, id, func(tx domain.Transaction, o *domain.RefillOrder) error {
		if o.Status != domain.RefillPendingConfirmation {
			return domain.InvalidTransitionError{Entity: domain.RefillMachine.Label, ID: o.ID, From: string(o.Status), To: string(domain.RefillConfirmed)}
		}
		if err := s.assignTransport(tx, o, d); err != nil {
			return err
		}
		approver := actor.ID
		o.ApproverID = &approver
		o.Status = domain.RefillConfirmed
		return nil
	})
}

// DispatchRefillOrder marks the truck as departed. Every cylinder still on
// the order leaves the warehouse in transit.
func (s *Service) DispatchRefillOrder(ctx context.Context, actor Actor, id string, d RefillDispatch) (domain.RefillOrder, domain.Result, error) {
	return s.updateRefill(ctx, "dispatch_refill_order", actor, id, func(tx domain.Transaction, o *domain.RefillOrder) error {
		if err := domain.RefillMachine.Transition(o.ID, o.Status, domain.RefillInTransitToSupplier); err != nil {
			return err
		}
		if d.VehiclePlate != "" || d.DriverID != "" || o.DriverID == nil {
			if err := s.assignTransport(tx, o, d); err != nil {
				return err
			}
		}
		if o.ApproverID == nil {
			approver := actor.ID
			o.ApproverID = &approver
		}
		for _, detail := range o.Details {
			if detail.IsReturned {
				continue
			}
			c, ok := tx.FindCylinder(detail.CylinderID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityCylinder, ID: detail.CylinderID}
			}
			if _, err := s.moveCylinder(tx, actor, c, cylinderMove{
				target:      domain.StatusInTransit,
				movement:    domain.MovementRefillDispatch,
				referenceID: o.ID,
			}); err != nil {
				return fmt.Errorf("cylinder %s: %w", c.ID, err)
			}
		}
		o.Status = domain.RefillInTransitToSupplier
		return nil
	})
}

// inRefillFlow reports whether c is still where a refill order left it: empty
// stock at the order warehouse or in transit, and owned by nobody.
func inRefillFlow(c domain.Cylinder, warehouseID string) bool {
	if c.OwnerID != nil {
		return false
	}
	switch c.Status {
	case domain.StatusAtWarehouseEmpty:
		return c.WarehouseID != nil && *c.WarehouseID == warehouseID
	case domain.StatusInTransit:
		return true
	}
	return false
}

func (s *Service) assignTransport(view domain.TransactionView, o *domain.RefillOrder, d RefillDispatch) error {
	plate := strings.TrimSpace(d.VehiclePlate)
	if err := firstError(required("vehicle_plate", plate), required("driver_id", d.DriverID)); err != nil {
		return err
	}
	driver, ok := view.FindDriver(d.DriverID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityDriver, ID: d.DriverID}
	}
	if !driver.Active {
		return domain.ValidationError{Field: "driver_id", Message: "driver " + driver.Name + " is inactive"}
	}
	o.VehiclePlate = plate
	o.DriverID = &driver.ID
	return nil
}

// ReceiveRefillItems applies a scanned batch against the order. Identifiers
// may be cylinder ids, barcodes or serial numbers; repeats within the batch
// count once. Items already received are reported and skipped.
func (s *Service) ReceiveRefillItems(ctx context.Context, actor Actor, id string, identifiers []string) (RefillReceipt, domain.Result, error) {
	var receipt RefillReceipt
	res, err := s.run(ctx, "receive_refill_items", actor, func(tx domain.Transaction) (string, error) {
		order, ok := tx.FindRefillOrder(id)
		if !ok {
			return id, domain.NotFoundError{Entity: domain.EntityRefillOrder, ID: id}
		}
		if !domain.RefillReceivable(order.Status) {
			return id, domain.InvalidTransitionError{Entity: domain.RefillMachine.Label, ID: id, From: string(order.Status), To: string(domain.RefillPartiallyReceived)}
		}
		receipt = RefillReceipt{Accepted: []string{}, Rejected: []string{}, AlreadyReceived: []string{}, Status: order.Status}

		index := make(map[string]int, len(order.Details))
		for i, d := range order.Details {
			index[d.CylinderID] = i
		}
		seen := make(map[string]struct{}, len(identifiers))
		var accepted []int
		var failures []domain.ItemFailure
		for _, raw := range identifiers {
			identifier := domain.NormalizeIdentifier(raw)
			if _, dup := seen[identifier]; dup || identifier == "" {
				continue
			}
			seen[identifier] = struct{}{}
			c, found := resolveCylinder(tx, identifier)
			i, onOrder := index[c.ID]
			switch {
			case !found || !onOrder:
				receipt.Rejected = append(receipt.Rejected, identifier)
			case order.Details[i].IsReturned || slices.Contains(accepted, i):
				receipt.AlreadyReceived = append(receipt.AlreadyReceived, identifier)
			case !inRefillFlow(c, order.WarehouseID):
				failures = append(failures, domain.ItemFailure{ID: identifier, Reason: "cannot receive from status " + string(c.Status)})
			default:
				accepted = append(accepted, i)
				receipt.Accepted = append(receipt.Accepted, identifier)
			}
		}
		if len(failures) > 0 {
			return id, domain.ConflictError{Message: "refill receipt rejected", Items: failures}
		}
		if len(accepted) == 0 {
			return id, nil
		}

		now := s.now()
		for _, i := range accepted {
			detail := order.Details[i]
			product, ok := tx.FindProduct(detail.ProductID)
			if !ok {
				return id, domain.NotFoundError{Entity: domain.EntityProduct, ID: detail.ProductID}
			}
			c, _ := tx.FindCylinder(detail.CylinderID)
			if _, err := s.moveCylinder(tx, actor, c, cylinderMove{
				target:      domain.StatusAtWarehouseFilled,
				movement:    domain.MovementRefillReceipt,
				tc:          TransitionContext{GasTypeID: product.GasTypeID, WarehouseID: order.WarehouseID},
				referenceID: order.ID,
			}); err != nil {
				return id, fmt.Errorf("cylinder %s: %w", c.ID, err)
			}
			order.Details[i].IsReturned = true
			order.Details[i].ReturnedAt = &now
		}
		next := domain.RefillPartiallyReceived
		if order.OpenDetails() == 0 {
			next = domain.RefillCompleted
		}
		if err := domain.RefillMachine.Transition(id, order.Status, next); err != nil {
			return id, err
		}
		_, err := tx.UpdateRefillOrder(id, func(o *domain.RefillOrder) error {
			o.Details = order.Details
			o.Status = next
			return nil
		})
		receipt.Status = next
		return id, err
	})
	return receipt, res, err
}

// CancelRefillOrder cancels a live order. Cylinders are left where they are.
func (s *Service) CancelRefillOrder(ctx context.Context, actor Actor, id, reason string) (domain.RefillOrder, domain.Result, error) {
	return s.updateRefill(ctx, "cancel_refill_order", actor, id, func(_ domain.Transaction, o *domain.RefillOrder) error {
		if err := domain.RefillMachine.Transition(o.ID, o.Status, domain.RefillCancelled); err != nil {
			return err
		}
		o.Status = domain.RefillCancelled
		if r := strings.TrimSpace(reason); r != "" {
			if o.Notes != "" {
				o.Notes += "\n"
			}
			o.Notes += "cancelled: " + r
		}
		return nil
	})
}

func (s *Service) updateRefill(ctx context.Context, op string, actor Actor, id string, apply func(domain.Transaction, *domain.RefillOrder) error) (domain.RefillOrder, domain.Result, error) {
	var updated domain.RefillOrder
	res, err := s.run(ctx, op, actor, func(tx domain.Transaction) (string, error) {
		current, ok := tx.FindRefillOrder(id)
		if !ok {
			return id, domain.NotFoundError{Entity: domain.EntityRefillOrder, ID: id}
		}
		if err := apply(tx, &current); err != nil {
			return id, err
		}
		var err error
		updated, err = tx.UpdateRefillOrder(id, func(o *domain.RefillOrder) error {
			*o = current
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// GetRefillOrder returns an order by id.
func (s *Service) GetRefillOrder(ctx context.Context, id string) (domain.RefillOrder, error) {
	return query(ctx, s, func(v domain.TransactionView) (domain.RefillOrder, error) {
		o, ok := v.FindRefillOrder(id)
		if !ok {
			return domain.RefillOrder{}, domain.NotFoundError{Entity: domain.EntityRefillOrder, ID: id}
		}
		return o, nil
	})
}

// ListRefillOrders lists orders, optionally filtered by status.
func (s *Service) ListRefillOrders(ctx context.Context, status domain.RefillStatus) ([]domain.RefillOrder, error) {
	if status != "" && !domain.RefillMachine.Valid(status) {
		return nil, domain.ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	return query(ctx, s, func(v domain.TransactionView) ([]domain.RefillOrder, error) {
		all := v.ListRefillOrders()
		if status == "" {
			return all, nil
		}
		out := all[:0]
		for _, o := range all {
			if o.Status == status {
				out = append(out, o)
			}
		}
		return out, nil
	})
}
