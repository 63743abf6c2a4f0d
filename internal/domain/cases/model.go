package cases

import (
	"time"

	"github.com/google/uuid"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/pricing"
)

// Status is the customer-facing workflow position of a case.
type Status string

const (
	StatusNew              Status = "NEW"
	StatusInDesign         Status = "IN_DESIGN"
	StatusReadyForReview   Status = "READY_FOR_REVIEW"
	StatusChangesRequested Status = "CHANGES_REQUESTED"
	StatusApproved         Status = "APPROVED"
	StatusInMilling        Status = "IN_MILLING"
	StatusShipped          Status = "SHIPPED"
	StatusCompleted        Status = "COMPLETED"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
)

var ValidStatuses = map[Status]bool{
	StatusNew: true, StatusInDesign: true, StatusReadyForReview: true,
	StatusChangesRequested: true, StatusApproved: true, StatusInMilling: true,
	StatusShipped: true, StatusCompleted: true, StatusDelivered: true,
	StatusCancelled: true,
}

// Stage is the physical production position of a case. Status and stage are
// two projections of the same order: status is customer-facing, stage is
// lab-internal. Only the shipping paths set both together.
type Stage string

const (
	StageDesign         Stage = "DESIGN"
	StageMillingGlazing Stage = "MILLING_GLAZING"
	StageShipping       Stage = "SHIPPING"
	StageCompleted      Stage = "COMPLETED"
)

var ValidStages = map[Stage]bool{
	StageDesign: true, StageMillingGlazing: true, StageShipping: true, StageCompleted: true,
}

// DentalCase is one restoration order. Version guards concurrent mutations:
// every write goes through a compare-and-swap on it.
type DentalCase struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ClinicID     uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	DoctorUserID uuid.UUID  `db:"doctor_user_id" json:"doctor_user_id"`
	AssigneeID   *uuid.UUID `db:"assignee_id" json:"assignee_id,omitempty"`
	SalesRepID   *uuid.UUID `db:"sales_rep_id" json:"sales_rep_id,omitempty"`

	PatientRef  string              `db:"patient_ref" json:"patient_ref"`
	ProductType string              `db:"product_type" json:"product_type"`
	Material    string              `db:"material" json:"material"`
	Units       int                 `db:"units" json:"units"`
	BillingType pricing.BillingType `db:"billing_type" json:"billing_type"`

	Status Status `db:"status" json:"status"`
	Stage  Stage  `db:"stage" json:"stage"`

	NeedsReview       bool       `db:"needs_review" json:"needs_review"`
	ReviewQuestion    *string    `db:"review_question" json:"review_question,omitempty"`
	ReviewRequestedAt *time.Time `db:"review_requested_at" json:"review_requested_at,omitempty"`

	CaseNotes *string `db:"case_notes" json:"case_notes,omitempty"`

	ShippingCarrier *string    `db:"shipping_carrier" json:"shipping_carrier,omitempty"`
	TrackingNumber  *string    `db:"tracking_number" json:"tracking_number,omitempty"`
	ShippingEta     *time.Time `db:"shipping_eta" json:"shipping_eta,omitempty"`
	ShippingCost    *float64   `db:"shipping_cost" json:"shipping_cost,omitempty"`
	ShippingBatchID *uuid.UUID `db:"shipping_batch_id" json:"shipping_batch_id,omitempty"`

	DesignedAt *time.Time `db:"designed_at" json:"designed_at,omitempty"`
	MilledAt   *time.Time `db:"milled_at" json:"milled_at,omitempty"`
	ShippedAt  *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Event kinds on the transition log.
const (
	EventKindStatus = "status"
	EventKindStage  = "stage"
)

// StatusEvent is one append-only entry in a case's transition log. From is
// nil for the first transition of its kind.
type StatusEvent struct {
	ID     uuid.UUID `db:"id" json:"id"`
	CaseID uuid.UUID `db:"case_id" json:"case_id"`
	Kind   string    `db:"kind" json:"kind"`
	From   *string   `db:"from_value" json:"from,omitempty"`
	To     string    `db:"to_value" json:"to"`
	Note   *string   `db:"note" json:"note,omitempty"`
	At     time.Time `db:"at" json:"at"`
}

// CaseFile is an uploaded attachment. Append-only; re-uploads of the same
// kind add new rows.
type CaseFile struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CaseID     uuid.UUID `db:"case_id" json:"case_id"`
	Kind       string    `db:"kind" json:"kind"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	Label      string    `db:"label" json:"label"`
	UploadedBy uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CaseComment is one message on a case thread. Append-only.
type CaseComment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CaseID    uuid.UUID `db:"case_id" json:"case_id"`
	AuthorID  uuid.UUID `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TriageCounts drive the case-list filter toggles.
type TriageCounts struct {
	ActionCount  int `json:"action_count"`
	UnreadCount  int `json:"unread_count"`
	ShippedCount int `json:"shipped_count"`
}

// Visibility is the case scope of a viewer. Staff viewers see every case;
// customers see only cases of their affiliated clinics or cases they
// submitted themselves.
type Visibility struct {
	ViewerID  uuid.UUID
	Staff     bool
	ClinicIDs []uuid.UUID
}

// CanSee reports whether a single case falls inside the scope.
func (v Visibility) CanSee(c *DentalCase) bool {
	if v.Staff {
		return true
	}
	if c.DoctorUserID == v.ViewerID {
		return true
	}
	for _, id := range v.ClinicIDs {
		if c.ClinicID == id {
			return true
		}
	}
	return false
}
