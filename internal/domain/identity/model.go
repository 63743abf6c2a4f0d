package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
)

// PendingSetupPassword is the sentinel stored in the password column between
// registration approval and the user's first password set. It is never a
// valid bcrypt hash, so it can never authenticate.
const PendingSetupPassword = "PENDING_SETUP"

// User is a portal account. ClinicID is the primary clinic for customer
// accounts; additional clinic affiliations live in a join table.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Name         string     `db:"name" json:"name"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Role         auth.Role  `db:"role" json:"role"`
	ClinicID     *uuid.UUID `db:"clinic_id" json:"clinic_id,omitempty"`
	AddressID    *uuid.UUID `db:"address_id" json:"address_id,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	SetupToken   *string    `db:"setup_token" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PendingSetup reports whether the account still awaits its first password.
func (u *User) PendingSetup() bool {
	return u.PasswordHash == PendingSetupPassword
}

// Address is a mailing address. Addresses may be referenced by several users
// or clinics at once and are never cascading-deleted.
type Address struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Street    string    `db:"street" json:"street"`
	City      string    `db:"city" json:"city"`
	State     string    `db:"state" json:"state"`
	Zip       string    `db:"zip" json:"zip"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
