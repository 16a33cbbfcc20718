package core

import (
	"context"
	"fmt"

	"cylindercore/pkg/domain"
)

// LifecycleTransitionRule blocks state changes that the successor tables do
// not allow, for cylinders and for every workflow record.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	label     string
	valid     func(state string) bool
	initial   func(state string) bool
	allowed   func(from, to string) bool
	extractor func(payload domain.ChangePayload) (id string, state string, ok bool)
}

func machineFor[T any, S ~string](m domain.StateMachine[S], initial S, state func(T) (string, S)) lifecycleMachine {
	return lifecycleMachine{
		label:   m.Label,
		valid:   func(s string) bool { return m.Valid(S(s)) },
		initial: func(s string) bool { return S(s) == initial },
		allowed: func(from, to string) bool { return m.CanTransition(S(from), S(to)) },
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			v, ok := domain.DecodeChangePayload[T](payload)
			if !ok {
				return "", "", false
			}
			id, s := state(v)
			return id, string(s), true
		},
	}
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityCylinder: {
		label:   "cylinder",
		valid:   func(s string) bool { return domain.CylinderStatus(s).Valid() },
		initial: func(s string) bool { return domain.IsIntakeStatus(domain.CylinderStatus(s)) },
		allowed: func(from, to string) bool {
			return domain.CanTransition(domain.CylinderStatus(from), domain.CylinderStatus(to))
		},
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			c, ok := domain.DecodeChangePayload[domain.Cylinder](payload)
			if !ok {
				return "", "", false
			}
			return c.ID, string(c.Status), true
		},
	},
	domain.EntityAuditSession: machineFor(domain.AuditMachine, domain.AuditDraft, func(a domain.AuditSession) (string, domain.AuditStatus) {
		return a.ID, a.Status
	}),
	domain.EntityConversion: machineFor(domain.ConversionMachine, domain.ConversionPendingApproval, func(r domain.GasConversionRequest) (string, domain.ConversionStatus) {
		return r.ID, r.Status
	}),
	domain.EntityRefillOrder: machineFor(domain.RefillMachine, domain.RefillPendingConfirmation, func(o domain.RefillOrder) (string, domain.RefillStatus) {
		return o.ID, o.Status
	}),
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (r lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}
		id, after, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if !machine.valid(after) {
			res.Violations = append(res.Violations, r.violation(change.Entity, id, fmt.Sprintf("%s %s is set to invalid state %s", machine.label, id, after)))
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			if !machine.initial(after) {
				res.Violations = append(res.Violations, r.violation(change.Entity, id, fmt.Sprintf("%s %s cannot be created in state %s", machine.label, id, after)))
			}
		case domain.ActionUpdate:
			_, before, ok := machine.extractor(change.Before)
			if !ok || before == after {
				continue
			}
			if !machine.allowed(before, after) {
				res.Violations = append(res.Violations, r.violation(change.Entity, id, fmt.Sprintf("cannot move %s %s from %s to %s", machine.label, id, before, after)))
			}
		}
	}
	return res, nil
}

func (lifecycleTransitionRule) violation(entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "lifecycle_transition",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
