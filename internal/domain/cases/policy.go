package cases

import (
	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
)

// transitionPolicy gates status changes by role and target status. Customers
// additionally must own the case (be its submitting doctor); that check lives
// in the service because it needs the case row.
//
// SHIPPED is deliberately absent: shipping goes through the shipping
// endpoints, which also set stage and the shipment fields.
var transitionPolicy = map[Status]map[auth.Role]bool{
	StatusApproved: {
		auth.RoleCustomer: true, auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusChangesRequested: {
		auth.RoleCustomer: true, auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusReadyForReview: {
		auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusInDesign: {
		auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusInMilling: {
		auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusCompleted: {
		auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusDelivered: {
		auth.RoleCustomer: true, auth.RoleLab: true, auth.RoleAdmin: true,
	},
	StatusCancelled: {
		auth.RoleAdmin: true,
	},
}

// checkTransition validates the target status and the caller's right to move
// a case there. ownsCase is whether the caller submitted the case; it only
// matters for customers.
func checkTransition(role auth.Role, to Status, ownsCase bool) error {
	if !ValidStatuses[to] {
		return apperr.Invalid("unknown status %q", to)
	}
	allowed, ok := transitionPolicy[to]
	if !ok {
		return apperr.Invalid("status %q is not a valid transition target", to)
	}
	if !allowed[role] {
		return apperr.Forbidden("role " + string(role) + " may not set status " + string(to))
	}
	if role == auth.RoleCustomer && !ownsCase {
		return apperr.Forbidden("customers may only change their own cases")
	}
	return nil
}
