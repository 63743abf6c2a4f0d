package registration

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the registration request state machine. PENDING moves to
// exactly one of PROCESSED or REJECTED; both are terminal.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusProcessed RequestStatus = "PROCESSED"
	StatusRejected  RequestStatus = "REJECTED"
)

// Request is one public signup awaiting admin review. Approval spawns a
// User, Clinic, and Address.
type Request struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	Email      string        `db:"email" json:"email"`
	Name       string        `db:"name" json:"name"`
	Phone      *string       `db:"phone" json:"phone,omitempty"`
	ClinicName string        `db:"clinic_name" json:"clinic_name"`
	Street     string        `db:"street" json:"street"`
	City       string        `db:"city" json:"city"`
	State      string        `db:"state" json:"state"`
	Zip        string        `db:"zip" json:"zip"`
	Status     RequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}
