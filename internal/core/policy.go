package core

import (
	"context"
	"slices"

	"cylindercore/pkg/domain"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// Authorizer decides whether an actor may perform an action. Actions are
// service operation names such as "apply_transition".
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, action string) error
}

// AllowAll permits every action.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, Actor, string) error { return nil }

// RoleAuthorizer grants actions to roles. Actions without an entry are allowed
// to every actor.
type RoleAuthorizer map[string][]string

// Authorize implements Authorizer.
func (r RoleAuthorizer) Authorize(_ context.Context, actor Actor, action string) error {
	roles, governed := r[action]
	if !governed {
		return nil
	}
	for _, role := range roles {
		if actor.HasRole(role) {
			return nil
		}
	}
	return domain.PermissionError{Actor: actor.ID, Action: action}
}
