package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"cylindercore/pkg/domain"
)

// envelope is the body of every API response.
type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Violations []violation `json:"violations,omitempty"`
	Error      *apiError   `json:"error,omitempty"`
}

// apiError is the error member of a failed response.
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`

	status int
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

func violations(res domain.Result) []violation {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violation, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violation{Rule: v.Rule, Severity: string(v.Severity), Message: v.Message, Entity: string(v.Entity), EntityID: v.EntityID})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// mutated writes the outcome of a mutating operation with its non-blocking
// rule violations.
func mutated(w http.ResponseWriter, status int, data any, res domain.Result) {
	writeJSON(w, status, envelope{Success: true, Data: data, Violations: violations(res)})
}

func fail(w http.ResponseWriter, e *apiError) {
	writeJSON(w, e.status, envelope{Success: false, Error: e})
}

func badRequest(message string) *apiError {
	return &apiError{status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

// mapError classifies a service error.
func mapError(err error) *apiError {
	var (
		ve  domain.ValidationError
		pe  domain.PermissionError
		nf  domain.NotFoundError
		ite domain.InvalidTransitionError
		ce  domain.ConflictError
		cce domain.ConcurrencyError
		rve domain.RuleViolationError
	)
	switch {
	case errors.As(err, &ve):
		e := &apiError{status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: err.Error()}
		if ve.Field != "" {
			e.Details = []fieldError{{Field: ve.Field, Message: ve.Message}}
		}
		return e
	case errors.As(err, &pe):
		return &apiError{status: http.StatusForbidden, Code: "FORBIDDEN", Message: err.Error()}
	case errors.As(err, &nf):
		return &apiError{status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.As(err, &ite):
		return &apiError{status: http.StatusConflict, Code: "INVALID_TRANSITION", Message: err.Error(),
			Details: map[string]string{"entity": ite.Entity, "id": ite.ID, "from": ite.From, "to": ite.To}}
	case errors.As(err, &cce):
		return &apiError{status: http.StatusConflict, Code: "CONCURRENCY_CONFLICT", Message: err.Error(), Retryable: true,
			Details: map[string]any{"id": cce.ID, "expected_version": cce.Expected, "current_version": cce.Actual}}
	case errors.As(err, &ce):
		e := &apiError{status: http.StatusConflict, Code: "CONFLICT", Message: err.Error()}
		if len(ce.Items) > 0 {
			e.Details = ce.Items
		}
		return e
	case errors.As(err, &rve):
		return &apiError{status: http.StatusUnprocessableEntity, Code: "RULE_VIOLATION", Message: err.Error(), Details: violations(rve.Result)}
	default:
		return &apiError{status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"}
	}
}
