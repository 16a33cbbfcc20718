package domain

import "encoding/json"

// ChangePayload wraps a JSON snapshot of a change's before/after state.
// Callers decode the raw bytes into typed structures with DecodeChangePayload.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload wrapper from raw JSON. The bytes are cloned
// to prevent callers from mutating shared state.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// MustChangePayload marshals value into a payload. Domain records always
// marshal, so a failure here is a programming error and yields an undefined
// payload instead of panicking.
func MustChangePayload[T any](value T) ChangePayload {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}
	}
	return NewChangePayload(raw)
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// DecodeChangePayload decodes the payload into T. It reports false when the
// payload is undefined, empty or not a T.
func DecodeChangePayload[T any](payload ChangePayload) (T, bool) {
	var out T
	if payload.IsEmpty() {
		return out, false
	}
	if err := json.Unmarshal(payload.raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
