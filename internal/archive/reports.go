package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"cylindercore/pkg/domain"
)

// ReportPrefix is the key prefix under which audit reports are stored.
const ReportPrefix = "audit-reports/"

// ReportArchive stores audit reports as JSON documents keyed by customer and
// session. A session's report is written once; storing it again returns the
// existing key.
type ReportArchive struct {
	store Store
}

// NewReportArchive wraps store.
func NewReportArchive(store Store) *ReportArchive {
	return &ReportArchive{store: store}
}

// Store returns the underlying object store.
func (a *ReportArchive) Store() Store { return a.store }

// ReportKey returns the object key of a session's report.
func ReportKey(customerID, sessionID string) string {
	return ReportPrefix + path.Join(safeSegment(customerID), safeSegment(sessionID)+".json")
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}

// StoreAuditReport writes report and returns its key.
func (a *ReportArchive) StoreAuditReport(ctx context.Context, report domain.AuditReport) (string, error) {
	if report.Session.ID == "" {
		return "", fmt.Errorf("audit report without session id")
	}
	key := ReportKey(report.Session.CustomerID, report.Session.ID)
	if _, err := a.store.Head(ctx, key); err == nil {
		return key, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("check report %s: %w", key, err)
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	_, err = a.store.Put(ctx, key, bytes.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"session":      report.Session.ID,
			"customer":     report.Session.CustomerID,
			"generated-at": report.GeneratedAt.UTC().Format(time.RFC3339),
		},
	})
	if errors.Is(err, ErrExists) {
		return key, nil
	}
	if err != nil {
		return "", fmt.Errorf("store report %s: %w", key, err)
	}
	return key, nil
}

// LoadAuditReport reads the report stored under key.
func (a *ReportArchive) LoadAuditReport(ctx context.Context, key string) (domain.AuditReport, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return domain.AuditReport{}, err
	}
	defer func() { _ = rc.Close() }()
	var report domain.AuditReport
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return domain.AuditReport{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return report, nil
}

// ListReports lists stored reports, optionally for one customer.
func (a *ReportArchive) ListReports(ctx context.Context, customerID string) ([]Info, error) {
	prefix := ReportPrefix
	if customerID != "" {
		prefix += safeSegment(customerID) + "/"
	}
	return a.store.List(ctx, prefix)
}

// ReportURL returns a time limited download URL for key.
func (a *ReportArchive) ReportURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return a.store.PresignURL(ctx, key, SignedURLOptions{Expiry: expiry})
}
