package domain

import "time"

// AuditReport is the frozen outcome of a completed session as archived.
type AuditReport struct {
	Session     AuditSession      `json:"session"`
	Items       []AuditResultItem `json:"items"`
	Summary     AuditSummary      `json:"summary"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// NewAuditReport derives the report of session.
func NewAuditReport(session AuditSession, generatedAt time.Time) AuditReport {
	items := Reconcile(session)
	return AuditReport{Session: session, Items: items, Summary: Summarize(items), GeneratedAt: generatedAt}
}

// OwnerBranchFunc resolves the branch of the customer owning a cylinder.
type OwnerBranchFunc func(customerID string) (branchID string, ok bool)

// ClassifyScan classifies a resolved cylinder scanned during a session for
// customerID at branchID. expected holds the frozen expected cylinder ids.
func ClassifyScan(c Cylinder, expected map[string]struct{}, customerID, branchID string, ownerBranch OwnerBranchFunc) AuditClassification {
	if _, ok := expected[c.ID]; ok {
		return ClassMatch
	}
	if c.OwnerID == nil || *c.OwnerID == customerID {
		return ClassUnexpected
	}
	if ownerBranch != nil {
		if b, ok := ownerBranch(*c.OwnerID); ok && b == branchID {
			return ClassUnexpected
		}
	}
	return ClassForeign
}

// ExpectedSet indexes a session's expectations by cylinder id.
func ExpectedSet(expected []AuditExpectation) map[string]struct{} {
	set := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		set[e.CylinderID] = struct{}{}
	}
	return set
}

// Reconcile derives the result items of a session: one item per accepted
// scan in scan order, followed by one MISSING item per unscanned expectation.
// Every expected or scanned cylinder appears in exactly one item.
func Reconcile(session AuditSession) []AuditResultItem {
	items := make([]AuditResultItem, 0, len(session.Scans)+len(session.Expected))
	scanned := make(map[string]struct{}, len(session.Scans))
	for _, scan := range session.Scans {
		if _, dup := scanned[scan.CylinderID]; dup {
			continue
		}
		scanned[scan.CylinderID] = struct{}{}
		items = append(items, ScanResult(scan))
	}
	for _, e := range session.Expected {
		if _, ok := scanned[e.CylinderID]; ok {
			continue
		}
		id := e.CylinderID
		items = append(items, AuditResultItem{
			Identifier:     e.Barcode,
			Classification: ClassMissing,
			CylinderID:     &id,
			Notes:          "expected but not scanned",
		})
	}
	return items
}

// ScanResult renders the result item of one accepted scan.
func ScanResult(scan AuditScan) AuditResultItem {
	id := scan.CylinderID
	return AuditResultItem{
		Identifier:     scan.Identifier,
		Classification: scan.Classification,
		CylinderID:     &id,
		Notes:          scanNotes(scan),
	}
}

func scanNotes(scan AuditScan) string {
	switch scan.Classification {
	case ClassUnexpected:
		if scan.OwnerID == nil {
			return "company stock not expected at customer"
		}
		return "held by " + *scan.OwnerID
	case ClassForeign:
		return "belongs to customer " + *scan.OwnerID
	}
	return ""
}

// Summarize counts items per classification.
func Summarize(items []AuditResultItem) AuditSummary {
	var s AuditSummary
	for _, item := range items {
		switch item.Classification {
		case ClassMatch:
			s.Match++
		case ClassMissing:
			s.Missing++
		case ClassUnexpected:
			s.Unexpected++
		case ClassForeign:
			s.Foreign++
		}
	}
	return s
}
