package core

import (
	"context"
	"iter"

	"cylindercore/pkg/domain"
)

// MovementPageSize is the number of ledger records read per view.
const MovementPageSize = 128

// ListMovements returns the cylinder's ledger in timestamp order as a lazy
// sequence. Each range over the sequence re-reads the ledger page by page, so
// the sequence can be restarted. Iteration stops early if a page read fails;
// the failure is logged.
func (s *Service) ListMovements(ctx context.Context, cylinderID string) (iter.Seq[domain.MovementRecord], error) {
	if _, err := s.GetCylinder(ctx, cylinderID); err != nil {
		return nil, err
	}
	return func(yield func(domain.MovementRecord) bool) {
		for offset := 0; ; offset += MovementPageSize {
			page, err := s.MovementPage(ctx, cylinderID, offset, MovementPageSize)
			if err != nil {
				s.logger.Error("movement page read failed", "cylinder_id", cylinderID, "offset", offset, "error", err)
				return
			}
			for _, m := range page {
				if !yield(m) {
					return
				}
			}
			if len(page) < MovementPageSize {
				return
			}
		}
	}, nil
}

// MovementPage returns up to limit ledger records starting at offset.
func (s *Service) MovementPage(ctx context.Context, cylinderID string, offset, limit int) ([]domain.MovementRecord, error) {
	if offset < 0 {
		return nil, domain.ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return query(ctx, s, func(v domain.TransactionView) ([]domain.MovementRecord, error) {
		if _, ok := v.FindCylinder(cylinderID); !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityCylinder, ID: cylinderID}
		}
		return v.ListMovements(cylinderID, offset, limit), nil
	})
}

// ReplayCylinderStatus folds the ledger and reports whether the replayed
// status equals the stored one.
func (s *Service) ReplayCylinderStatus(ctx context.Context, cylinderID string) (domain.CylinderStatus, bool, error) {
	c, err := s.GetCylinder(ctx, cylinderID)
	if err != nil {
		return "", false, err
	}
	seq, err := s.ListMovements(ctx, cylinderID)
	if err != nil {
		return "", false, err
	}
	status, ok := domain.ReplayStatus(seq)
	return status, ok && status == c.Status, nil
}
