package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is the portal role carried in the session credential.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleLab      Role = "lab"
	RoleAdmin    Role = "admin"
	RoleMilling  Role = "milling"
	RoleSales    Role = "sales"
)

// ValidRoles is the closed set of roles the portal understands.
var ValidRoles = map[Role]bool{
	RoleCustomer: true,
	RoleLab:      true,
	RoleAdmin:    true,
	RoleMilling:  true,
	RoleSales:    true,
}

// Identity is the authenticated caller as established by the session
// credential. ClinicID is set only for customer users.
type Identity struct {
	UserID   uuid.UUID
	Role     Role
	ClinicID *uuid.UUID
}

// IsStaff reports whether the identity belongs to lab-side personnel.
func (id Identity) IsStaff() bool {
	return id.Role == RoleLab || id.Role == RoleAdmin || id.Role == RoleMilling || id.Role == RoleSales
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a child context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated identity. The second return
// value is false when the request carried no valid session.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
