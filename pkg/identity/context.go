package identity

import (
	"context"
	"errors"
)

// Context keys for actor information
type contextKey string

const (
	actorIDKey         contextKey = "actorId"
	actorNameKey       contextKey = "actorName"
	actorRoleKey       contextKey = "actorRole"
	actorDepartmentKey contextKey = "actorDepartment"
)

// Roles understood by the policy layer. Elevated roles may cancel
// requisitions submitted by other users and see cost prices.
const (
	RoleApplicant = "applicant"
	RoleManager   = "manager"
	RoleAdmin     = "admin"
)

// Errors for actor context operations
var (
	ErrMissingActorContext = errors.New("actor context is required")
	ErrMissingActorID      = errors.New("actorId is required")
)

// Actor identifies the user performing an operation. Every write path
// requires one; read paths use it to decide which price fields to expose.
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// IsElevated reports whether the actor holds a role that may act on
// requisitions it did not submit.
func (a *Actor) IsElevated() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}

// IsEmpty reports whether the actor carries no identity
func (a *Actor) IsEmpty() bool {
	return a == nil || a.ID == ""
}

// CanActOn reports whether the actor may operate on a resource owned by
// the given applicant ID.
func (a *Actor) CanActOn(applicantID string) bool {
	if a.IsEmpty() {
		return false
	}
	return a.ID == applicantID || a.IsElevated()
}

// FromContext extracts the Actor from context.Context.
// Returns an error if no actor ID is present.
func FromContext(ctx context.Context) (*Actor, error) {
	actor := &Actor{}

	if v := ctx.Value(actorIDKey); v != nil {
		if id, ok := v.(string); ok {
			actor.ID = id
		}
	}
	if v := ctx.Value(actorNameKey); v != nil {
		if name, ok := v.(string); ok {
			actor.Name = name
		}
	}
	if v := ctx.Value(actorRoleKey); v != nil {
		if role, ok := v.(string); ok {
			actor.Role = role
		}
	}
	if v := ctx.Value(actorDepartmentKey); v != nil {
		if dept, ok := v.(string); ok {
			actor.Department = dept
		}
	}

	if actor.ID == "" {
		return nil, ErrMissingActorContext
	}

	return actor, nil
}

// FromContextOptional extracts the Actor from context.Context.
// Unlike FromContext, this returns an empty actor if none exists.
func FromContextOptional(ctx context.Context) *Actor {
	actor, _ := FromContext(ctx)
	if actor == nil {
		return &Actor{}
	}
	return actor
}

// ToContext adds Actor values to context.Context.
func ToContext(ctx context.Context, actor *Actor) context.Context {
	if actor == nil {
		return ctx
	}

	if actor.ID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actor.ID)
	}
	if actor.Name != "" {
		ctx = context.WithValue(ctx, actorNameKey, actor.Name)
	}
	if actor.Role != "" {
		ctx = context.WithValue(ctx, actorRoleKey, actor.Role)
	}
	if actor.Department != "" {
		ctx = context.WithValue(ctx, actorDepartmentKey, actor.Department)
	}

	return ctx
}
