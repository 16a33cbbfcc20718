package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cylindercore/pkg/domain"
)

func TestMapError(t *testing.T) {
	blocked := domain.RuleViolationError{Result: domain.Result{Violations: []domain.Violation{
		{Rule: "movement_coverage", Severity: domain.SeverityBlock, Message: "missing movement", Entity: domain.EntityCylinder, EntityID: "c1"},
	}}}
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", domain.ValidationError{Field: "barcode", Message: "must be exactly 9 digits"}, http.StatusBadRequest, "VALIDATION_ERROR", false},
		{"permission", domain.PermissionError{Actor: "a", Action: "create_driver"}, http.StatusForbidden, "FORBIDDEN", false},
		{"not found", domain.NotFoundError{Entity: domain.EntityCylinder, ID: "x"}, http.StatusNotFound, "NOT_FOUND", false},
		{"transition", domain.InvalidTransitionError{Entity: "cylinder", ID: "x", From: "Inactive", To: "Damaged"}, http.StatusConflict, "INVALID_TRANSITION", false},
		{"conflict", domain.ConflictError{Message: "batch", Items: []domain.ItemFailure{{ID: "c1", Reason: "owned"}}}, http.StatusConflict, "CONFLICT", false},
		{"concurrency", domain.ConcurrencyError{Entity: domain.EntityCylinder, ID: "x", Expected: 1, Actual: 2}, http.StatusConflict, "CONCURRENCY_CONFLICT", true},
		{"rules", blocked, http.StatusUnprocessableEntity, "RULE_VIOLATION", false},
		{"wrapped", fmt.Errorf("commit: %w", domain.NotFoundError{Entity: domain.EntityCustomer, ID: "y"}), http.StatusNotFound, "NOT_FOUND", false},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := mapError(tc.err)
			if e.status != tc.status || e.Code != tc.code || e.Retryable != tc.retryable {
				t.Fatalf("unexpected mapping %+v", e)
			}
		})
	}

	if e := mapError(errors.New("secret detail")); e.Message == "secret detail" {
		t.Fatalf("internal errors must not leak their message")
	}
	if items, ok := mapError(domain.ConflictError{Message: "batch", Items: []domain.ItemFailure{{ID: "c1", Reason: "owned"}}}).Details.([]domain.ItemFailure); !ok || len(items) != 1 {
		t.Fatalf("conflict details must list failing members")
	}
	if vs, ok := mapError(blocked).Details.([]violation); !ok || len(vs) != 1 || vs[0].Severity != "block" {
		t.Fatalf("rule violations must be listed")
	}
	if fe, ok := mapError(domain.ValidationError{Field: "notes", Message: "required"}).Details.([]fieldError); !ok || fe[0].Field != "notes" {
		t.Fatalf("validation details must name the field")
	}
}
