package domain

import "slices"

// AuditStatus enumerates audit session states.
type AuditStatus string

// Audit session states.
const (
	AuditDraft      AuditStatus = "Draft"
	AuditInProgress AuditStatus = "InProgress"
	AuditCompleted  AuditStatus = "Completed"
)

// AuditClassification is the reconciliation outcome of one identifier.
type AuditClassification string

// Reconciliation outcomes.
const (
	ClassMatch      AuditClassification = "MATCH"
	ClassMissing    AuditClassification = "MISSING"
	ClassUnexpected AuditClassification = "UNEXPECTED"
	ClassForeign    AuditClassification = "FOREIGN"
)

// ConversionStatus enumerates gas conversion request states.
type ConversionStatus string

// Gas conversion states.
const (
	ConversionPendingApproval    ConversionStatus = "PENDING_APPROVAL"
	ConversionApproved           ConversionStatus = "APPROVED"
	ConversionRejected           ConversionStatus = "REJECTED"
	ConversionPartiallyCompleted ConversionStatus = "PARTIALLY_COMPLETED"
	ConversionCompleted          ConversionStatus = "COMPLETED"
)

// RefillStatus enumerates refill order states.
type RefillStatus string

// Refill order states.
const (
	RefillPendingConfirmation RefillStatus = "PENDING_CONFIRMATION"
	RefillConfirmed           RefillStatus = "CONFIRMED"
	RefillInTransitToSupplier RefillStatus = "IN_TRANSIT_TO_SUPPLIER"
	RefillPartiallyReceived   RefillStatus = "PARTIALLY_RECEIVED"
	RefillCompleted           RefillStatus = "COMPLETED"
	RefillCancelled           RefillStatus = "CANCELLED"
)

// StateMachine is a closed transition table over a string-backed state type.
type StateMachine[S ~string] struct {
	Label string
	next  map[S][]S
}

// NewStateMachine builds a machine from a successor table. States that map to
// an empty list are terminal.
func NewStateMachine[S ~string](label string, next map[S][]S) StateMachine[S] {
	return StateMachine[S]{Label: label, next: next}
}

// Valid reports whether s is a state of the machine.
func (m StateMachine[S]) Valid(s S) bool {
	_, ok := m.next[s]
	return ok
}

// Terminal reports whether s has no successors.
func (m StateMachine[S]) Terminal(s S) bool {
	next, ok := m.next[s]
	return ok && len(next) == 0
}

// CanTransition reports whether to is an allowed successor of from.
func (m StateMachine[S]) CanTransition(from, to S) bool {
	return slices.Contains(m.next[from], to)
}

// Transition returns an InvalidTransitionError when to is not reachable from from.
func (m StateMachine[S]) Transition(id string, from, to S) error {
	if m.CanTransition(from, to) {
		return nil
	}
	return InvalidTransitionError{Entity: m.Label, ID: id, From: string(from), To: string(to)}
}

// AuditMachine governs audit session status.
var AuditMachine = NewStateMachine("audit_session", map[AuditStatus][]AuditStatus{
	AuditDraft:      {AuditInProgress, AuditCompleted},
	AuditInProgress: {AuditCompleted},
	AuditCompleted:  {},
})

// ConversionMachine governs gas conversion request status.
var ConversionMachine = NewStateMachine("gas_conversion", map[ConversionStatus][]ConversionStatus{
	ConversionPendingApproval:    {ConversionApproved, ConversionRejected},
	ConversionApproved:           {ConversionPartiallyCompleted, ConversionCompleted},
	ConversionPartiallyCompleted: {ConversionPartiallyCompleted, ConversionCompleted},
	ConversionRejected:           {},
	ConversionCompleted:          {},
})

// RefillMachine governs refill order status. Receiving may start before the
// truck is marked in transit, and cancellation is open to every live state.
var RefillMachine = NewStateMachine("refill_order", map[RefillStatus][]RefillStatus{
	RefillPendingConfirmation: {RefillConfirmed, RefillInTransitToSupplier, RefillCancelled},
	RefillConfirmed:           {RefillInTransitToSupplier, RefillPartiallyReceived, RefillCompleted, RefillCancelled},
	RefillInTransitToSupplier: {RefillPartiallyReceived, RefillCompleted, RefillCancelled},
	RefillPartiallyReceived:   {RefillPartiallyReceived, RefillCompleted, RefillCancelled},
	RefillCompleted:           {},
	RefillCancelled:           {},
})

// RefillReceivable reports whether items can be received against an order in s.
func RefillReceivable(s RefillStatus) bool {
	return s == RefillConfirmed || s == RefillInTransitToSupplier || s == RefillPartiallyReceived
}

// RefillOpen reports whether an order in s still holds its cylinders.
func RefillOpen(s RefillStatus) bool {
	return !RefillMachine.Terminal(s)
}
