package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of caller roles issued by the identity provider.
type Role string

const (
	RolePatient      Role = "PATIENT"
	RoleProfessional Role = "PROFESSIONAL"
	RoleAdmin        Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RolePatient, RoleProfessional, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Caller is an already-authenticated identity.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Caller) String() string {
	return fmt.Sprintf("%s:%s", c.Role, c.UserID)
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
