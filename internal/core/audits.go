package core

import (
	"context"
	"errors"

	"cylindercore/pkg/domain"
)

// ReportArchive stores completed audit reports and returns their location key.
type ReportArchive interface {
	StoreAuditReport(ctx context.Context, report domain.AuditReport) (string, error)
}

// ErrArchiveNotConfigured is returned by ArchiveAuditReport without an archive.
var ErrArchiveNotConfigured = errors.New("audit report archive not configured")

// OpenAuditSession freezes the customer's current holdings as the expected set
// of a new Draft session. An empty auditor defaults to the actor and an empty
// branch to the customer's branch.
func (s *Service) OpenAuditSession(ctx context.Context, actor Actor, customerID, auditorID, branchID string) (domain.AuditSession, domain.Result, error) {
	var created domain.AuditSession
	res, err := s.run(ctx, "open_audit_session", actor, func(tx domain.Transaction) (string, error) {
		customer, ok := tx.FindCustomer(customerID)
		if !ok {
			return "", domain.NotFoundError{Entity: domain.EntityCustomer, ID: customerID}
		}
		if auditorID == "" {
			auditorID = actor.ID
		}
		if branchID == "" {
			branchID = customer.BranchID
		}
		holdings := tx.ListCylinders(domain.CylinderFilter{OwnerID: customerID})
		expected := make([]domain.AuditExpectation, 0, len(holdings))
		for _, c := range holdings {
			expected = append(expected, domain.AuditExpectation{CylinderID: c.ID, Barcode: c.Barcode, SerialNumber: c.SerialNumber})
		}
		var err error
		created, err = tx.CreateAuditSession(domain.AuditSession{
			CustomerID: customerID,
			AuditorID:  auditorID,
			BranchID:   branchID,
			Status:     domain.AuditDraft,
			Expected:   expected,
			Scans:      []domain.AuditScan{},
		})
		return created.ID, err
	})
	return created, res, err
}

// StartAuditSession moves a Draft session to InProgress.
func (s *Service) StartAuditSession(ctx context.Context, actor Actor, sessionID string) (domain.AuditSession, domain.Result, error) {
	var updated domain.AuditSession
	res, err := s.run(ctx, "start_audit_session", actor, func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateAuditSession(sessionID, func(a *domain.AuditSession) error {
			if err := domain.AuditMachine.Transition(a.ID, a.Status, domain.AuditInProgress); err != nil {
				return err
			}
			a.Status = domain.AuditInProgress
			return nil
		})
		return sessionID, err
	})
	return updated, res, err
}

// SubmitScan resolves a scanned barcode or serial number, classifies it and
// records it. A repeated scan of the same cylinder returns the original result
// without recording anything.
func (s *Service) SubmitScan(ctx context.Context, actor Actor, sessionID, identifier string) (domain.AuditResultItem, domain.Result, error) {
	var item domain.AuditResultItem
	res, err := s.run(ctx, "submit_audit_scan", actor, func(tx domain.Transaction) (string, error) {
		session, ok := tx.FindAuditSession(sessionID)
		if !ok {
			return sessionID, domain.NotFoundError{Entity: domain.EntityAuditSession, ID: sessionID}
		}
		if session.Status == domain.AuditCompleted {
			return sessionID, domain.ConflictError{Message: "audit session " + sessionID + " is completed"}
		}
		identifier = domain.NormalizeIdentifier(identifier)
		if identifier == "" {
			return sessionID, domain.ValidationError{Field: "identifier", Message: "required"}
		}
		c, ok := tx.FindCylinderByBarcode(identifier)
		if !ok {
			c, ok = tx.FindCylinderBySerial(identifier)
		}
		if !ok {
			return sessionID, domain.NotFoundError{Entity: domain.EntityCylinder, ID: identifier}
		}
		for _, scan := range session.Scans {
			if scan.CylinderID == c.ID {
				item = domain.ScanResult(scan)
				return sessionID, nil
			}
		}
		ownerBranch := func(customerID string) (string, bool) {
			customer, ok := tx.FindCustomer(customerID)
			return customer.BranchID, ok
		}
		scan := domain.AuditScan{
			Identifier:     identifier,
			CylinderID:     c.ID,
			Classification: domain.ClassifyScan(c, domain.ExpectedSet(session.Expected), session.CustomerID, session.BranchID, ownerBranch),
			OwnerID:        c.OwnerID,
			ScannedAt:      s.now(),
			ScannedBy:      actor.ID,
		}
		_, err := tx.UpdateAuditSession(sessionID, func(a *domain.AuditSession) error {
			if a.Status == domain.AuditDraft {
				a.Status = domain.AuditInProgress
			}
			a.Scans = append(a.Scans, scan)
			return nil
		})
		item = domain.ScanResult(scan)
		return sessionID, err
	})
	return item, res, err
}

// CompleteAuditSession freezes the reconciliation summary. It never touches
// cylinders. When an archive is configured the report is stored after commit;
// archive failures are logged and do not undo completion.
func (s *Service) CompleteAuditSession(ctx context.Context, actor Actor, sessionID string) (domain.AuditSummary, domain.Result, error) {
	var completed domain.AuditSession
	res, err := s.run(ctx, "complete_audit_session", actor, func(tx domain.Transaction) (string, error) {
		var err error
		completed, err = tx.UpdateAuditSession(sessionID, func(a *domain.AuditSession) error {
			if err := domain.AuditMachine.Transition(a.ID, a.Status, domain.AuditCompleted); err != nil {
				return err
			}
			summary := domain.Summarize(domain.Reconcile(*a))
			now := s.now()
			a.Status = domain.AuditCompleted
			a.Summary = &summary
			a.CompletedAt = &now
			return nil
		})
		return sessionID, err
	})
	if err != nil {
		return domain.AuditSummary{}, res, err
	}
	if s.archive != nil {
		if _, err := s.storeReport(ctx, completed); err != nil {
			s.logger.Warn("audit report archive failed", "session_id", sessionID, "error", err)
		}
	}
	return *completed.Summary, res, nil
}

// ArchiveAuditReport stores the report of a completed session and returns its key.
func (s *Service) ArchiveAuditReport(ctx context.Context, sessionID string) (string, error) {
	if s.archive == nil {
		return "", ErrArchiveNotConfigured
	}
	session, err := s.GetAuditSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Status != domain.AuditCompleted {
		return "", domain.ConflictError{Message: "audit session " + sessionID + " is not completed"}
	}
	return s.storeReport(ctx, session)
}

func (s *Service) storeReport(ctx context.Context, session domain.AuditSession) (string, error) {
	key, err := s.archive.StoreAuditReport(ctx, domain.NewAuditReport(session, s.now()))
	if err != nil {
		return "", err
	}
	s.logger.Info("audit report archived", "session_id", session.ID, "key", key)
	return key, nil
}

// GetAuditSession returns a session by id.
func (s *Service) GetAuditSession(ctx context.Context, sessionID string) (domain.AuditSession, error) {
	return query(ctx, s, func(v domain.TransactionView) (domain.AuditSession, error) {
		a, ok := v.FindAuditSession(sessionID)
		if !ok {
			return domain.AuditSession{}, domain.NotFoundError{Entity: domain.EntityAuditSession, ID: sessionID}
		}
		return a, nil
	})
}

// ListAuditSessions lists sessions, optionally for one customer.
func (s *Service) ListAuditSessions(ctx context.Context, customerID string) ([]domain.AuditSession, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.AuditSession, error) {
		return v.ListAuditSessions(customerID), nil
	})
}

// AuditResults derives the reconciliation items of a session, including
// MISSING items for expectations not scanned so far.
func (s *Service) AuditResults(ctx context.Context, sessionID string) ([]domain.AuditResultItem, error) {
	session, err := s.GetAuditSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return domain.Reconcile(session), nil
}
