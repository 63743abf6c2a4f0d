package cases

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/clinic"
)

// SearchFilter narrows a case list. Nil/zero fields are ignored.
type SearchFilter struct {
	Status      *Status
	Stage       *Stage
	ClinicID    *uuid.UUID
	NeedsReview *bool
	BatchID     *uuid.UUID
}

// ShipmentFields is the uniform update applied to every case in a shipment.
type ShipmentFields struct {
	Carrier     string
	Tracking    string
	Eta         *time.Time
	CostPerCase float64
	BatchID     uuid.UUID
	ShippedAt   time.Time
}

type Repository interface {
	Create(ctx context.Context, c *DentalCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*DentalCase, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*DentalCase, error)
	// UpdateCAS writes the full row guarded by the version column: the update
	// applies only if the stored version still equals expectedVersion, and
	// bumps it by one. Returns false when the guard missed.
	UpdateCAS(ctx context.Context, c *DentalCase, expectedVersion int) (bool, error)
	Search(ctx context.Context, v Visibility, f SearchFilter, limit, offset int) ([]*DentalCase, int, error)

	AppendEvent(ctx context.Context, e *StatusEvent) error
	ListEvents(ctx context.Context, caseID uuid.UUID) ([]*StatusEvent, error)

	AddFile(ctx context.Context, f *CaseFile) error
	ListFiles(ctx context.Context, caseID uuid.UUID) ([]*CaseFile, error)

	AddComment(ctx context.Context, cm *CaseComment) error
	ListComments(ctx context.Context, caseID uuid.UUID) ([]*CaseComment, error)

	// MarkRead moves the viewer's per-case watermark forward.
	MarkRead(ctx context.Context, userID, caseID uuid.UUID, at time.Time) error
	Triage(ctx context.Context, v Visibility) (TriageCounts, error)

	BillableLines(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]clinic.BillingLine, error)
}
