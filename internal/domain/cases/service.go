package cases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/blobstore"
)

const maxReviewQuestionLen = 500

// AffiliationSource supplies a user's secondary clinic memberships.
type AffiliationSource interface {
	SecondaryClinicIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// TxRunner runs fn inside one transaction; every repo call made through the
// ctx it passes joins that transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	affils    AffiliationSource
	signer    blobstore.Signer
	uploadTTL time.Duration
	inTx      TxRunner
	now       func() time.Time
}

func NewService(repo Repository, affils AffiliationSource, signer blobstore.Signer, uploadTTL time.Duration, inTx TxRunner) *Service {
	return &Service{
		repo:      repo,
		affils:    affils,
		signer:    signer,
		uploadTTL: uploadTTL,
		inTx:      inTx,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// visibility resolves the caller's case scope. Staff roles see everything;
// customers see their affiliated clinics plus cases they submitted.
func (s *Service) visibility(ctx context.Context, ident auth.Identity) (Visibility, error) {
	v := Visibility{ViewerID: ident.UserID, Staff: ident.IsStaff()}
	if v.Staff {
		return v, nil
	}
	if ident.ClinicID != nil {
		v.ClinicIDs = append(v.ClinicIDs, *ident.ClinicID)
	}
	secondary, err := s.affils.SecondaryClinicIDs(ctx, ident.UserID)
	if err != nil {
		return v, apperr.Dependency("load clinic affiliations", err)
	}
	v.ClinicIDs = append(v.ClinicIDs, secondary...)
	return v, nil
}

// getVisible loads a case and enforces the read rule. A case hidden from a
// customer reads as NotFound, never Forbidden, so existence does not leak.
func (s *Service) getVisible(ctx context.Context, ident auth.Identity) (func(id uuid.UUID) (*DentalCase, error), error) {
	v, err := s.visibility(ctx, ident)
	if err != nil {
		return nil, err
	}
	return func(id uuid.UUID) (*DentalCase, error) {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.NotFound("case")
			}
			return nil, apperr.Dependency("get case", err)
		}
		if !v.CanSee(c) {
			return nil, apperr.NotFound("case")
		}
		return c, nil
	}, nil
}

// Create submits a new case. Customers may only submit against a clinic they
// are affiliated with; staff may submit for any clinic.
func (s *Service) Create(ctx context.Context, ident auth.Identity, c *DentalCase) error {
	if c.ClinicID == uuid.Nil {
		return apperr.Invalid("clinic_id is required")
	}
	if c.Units <= 0 {
		return apperr.Invalid("units must be a positive integer")
	}
	if c.BillingType == "" {
		c.BillingType = "BILLABLE"
	}

	if ident.Role == auth.RoleCustomer {
		v, err := s.visibility(ctx, ident)
		if err != nil {
			return err
		}
		affiliated := false
		for _, id := range v.ClinicIDs {
			if id == c.ClinicID {
				affiliated = true
				break
			}
		}
		if !affiliated {
			return apperr.Forbidden("cannot submit a case for an unaffiliated clinic")
		}
		c.DoctorUserID = ident.UserID
	} else if c.DoctorUserID == uuid.Nil {
		c.DoctorUserID = ident.UserID
	}

	c.Status = StatusNew
	c.Stage = StageDesign

	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return apperr.Dependency("create case", err)
		}
		ev := &StatusEvent{CaseID: c.ID, Kind: EventKindStatus, To: string(StatusNew), At: s.now()}
		if err := s.repo.AppendEvent(ctx, ev); err != nil {
			return apperr.Dependency("append creation event", err)
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, ident auth.Identity, id uuid.UUID) (*DentalCase, error) {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	return get(id)
}

func (s *Service) List(ctx context.Context, ident auth.Identity, f SearchFilter, limit, offset int) ([]*DentalCase, int, error) {
	v, err := s.visibility(ctx, ident)
	if err != nil {
		return nil, 0, err
	}
	list, total, err := s.repo.Search(ctx, v, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Dependency("search cases", err)
	}
	return list, total, nil
}

// Transition moves a case to a new status, appending exactly one event and
// updating the row in the same transaction. A stale version is a Conflict.
func (s *Service) Transition(ctx context.Context, ident auth.Identity, id uuid.UUID, to Status, note *string) (*DentalCase, error) {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	c, err := get(id)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(ident.Role, to, c.DoctorUserID == ident.UserID); err != nil {
		return nil, err
	}
	if c.Status == to {
		return c, nil
	}

	prev := string(c.Status)
	c.Status = to
	err = s.inTx(ctx, func(ctx context.Context) error {
		ev := &StatusEvent{CaseID: c.ID, Kind: EventKindStatus, From: &prev, To: string(to), Note: note, At: s.now()}
		if err := s.repo.AppendEvent(ctx, ev); err != nil {
			return apperr.Dependency("append status event", err)
		}
		return s.casUpdate(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ChangeStage moves a case to a new production stage, stamping the matching
// timestamp. Lab and admin only.
func (s *Service) ChangeStage(ctx context.Context, ident auth.Identity, id uuid.UUID, stage Stage, note *string) (*DentalCase, error) {
	if ident.Role != auth.RoleLab && ident.Role != auth.RoleAdmin {
		return nil, apperr.Forbidden("only lab or admin may change the production stage")
	}
	if !ValidStages[stage] {
		return nil, apperr.Invalid("unknown stage %q", stage)
	}

	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	c, err := get(id)
	if err != nil {
		return nil, err
	}
	if c.Stage == stage {
		return c, nil
	}

	now := s.now()
	prev := string(c.Stage)
	c.Stage = stage
	switch stage {
	case StageDesign:
		c.DesignedAt = &now
	case StageMillingGlazing:
		c.MilledAt = &now
	case StageShipping:
		c.ShippedAt = &now
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		ev := &StatusEvent{CaseID: c.ID, Kind: EventKindStage, From: &prev, To: string(stage), Note: note, At: now}
		if err := s.repo.AppendEvent(ctx, ev); err != nil {
			return apperr.Dependency("append stage event", err)
		}
		return s.casUpdate(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetReview sets or clears the doctor-attention flag. Only lab and admin may
// raise it; lab, admin, or the owning doctor may clear it.
func (s *Service) SetReview(ctx context.Context, ident auth.Identity, id uuid.UUID, needsReview bool, question string) (*DentalCase, error) {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	c, err := get(id)
	if err != nil {
		return nil, err
	}

	isLabOrAdmin := ident.Role == auth.RoleLab || ident.Role == auth.RoleAdmin
	if needsReview {
		if !isLabOrAdmin {
			return nil, apperr.Forbidden("only lab or admin may request a review")
		}
	} else {
		if !isLabOrAdmin && c.DoctorUserID != ident.UserID {
			return nil, apperr.Forbidden("only lab, admin, or the owning doctor may clear a review")
		}
	}

	now := s.now()
	c.NeedsReview = needsReview
	if needsReview {
		q := truncate(question, maxReviewQuestionLen)
		c.ReviewQuestion = &q
		c.ReviewRequestedAt = &now
	} else {
		c.ReviewQuestion = nil
		c.ReviewRequestedAt = nil
	}

	if err := s.casUpdate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Assign sets or clears the lab technician assignee. Admin only.
func (s *Service) Assign(ctx context.Context, ident auth.Identity, id uuid.UUID, assigneeID *uuid.UUID) (*DentalCase, error) {
	if ident.Role != auth.RoleAdmin {
		return nil, apperr.Forbidden("only admin may reassign cases")
	}
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	c, err := get(id)
	if err != nil {
		return nil, err
	}
	c.AssigneeID = assigneeID
	if err := s.casUpdate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetNotes replaces the internal case notes. Lab, admin, and milling.
func (s *Service) SetNotes(ctx context.Context, ident auth.Identity, id uuid.UUID, notes string) (*DentalCase, error) {
	switch ident.Role {
	case auth.RoleLab, auth.RoleAdmin, auth.RoleMilling:
	default:
		return nil, apperr.Forbidden("only lab, admin, or milling may edit case notes")
	}
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	c, err := get(id)
	if err != nil {
		return nil, err
	}
	c.CaseNotes = &notes
	if err := s.casUpdate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Ship marks a single case shipped, setting both workflow projections and
// the shipment fields together.
func (s *Service) Ship(ctx context.Context, ident auth.Identity, id uuid.UUID, carrier, tracking string, eta *time.Time) (*DentalCase, error) {
	switch ident.Role {
	case auth.RoleLab, auth.RoleAdmin, auth.RoleMilling:
	default:
		return nil, apperr.Forbidden("only lab, admin, or milling may ship cases")
	}
	if tracking == "" {
		return nil, apperr.Invalid("tracking number is required")
	}

	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	c, err := get(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	prevStatus := string(c.Status)
	prevStage := string(c.Stage)
	c.Status = StatusShipped
	c.Stage = StageShipping
	c.ShippedAt = &now
	c.ShippingCarrier = &carrier
	c.TrackingNumber = &tracking
	c.ShippingEta = eta

	err = s.inTx(ctx, func(ctx context.Context) error {
		ev := &StatusEvent{CaseID: c.ID, Kind: EventKindStatus, From: &prevStatus, To: string(StatusShipped), At: now}
		if err := s.repo.AppendEvent(ctx, ev); err != nil {
			return apperr.Dependency("append status event", err)
		}
		sv := &StatusEvent{CaseID: c.ID, Kind: EventKindStage, From: &prevStage, To: string(StageShipping), At: now}
		if err := s.repo.AppendEvent(ctx, sv); err != nil {
			return apperr.Dependency("append stage event", err)
		}
		return s.casUpdate(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddComment posts to the case thread. Any role with read access may post.
func (s *Service) AddComment(ctx context.Context, ident auth.Identity, id uuid.UUID, body string) (*CaseComment, error) {
	if body == "" {
		return nil, apperr.Invalid("comment body is required")
	}
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := get(id); err != nil {
		return nil, err
	}
	cm := &CaseComment{CaseID: id, AuthorID: ident.UserID, Body: body, CreatedAt: s.now()}
	if err := s.repo.AddComment(ctx, cm); err != nil {
		return nil, apperr.Dependency("add comment", err)
	}
	return cm, nil
}

func (s *Service) ListComments(ctx context.Context, ident auth.Identity, id uuid.UUID) ([]*CaseComment, error) {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := get(id); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("list comments", err)
	}
	return comments, nil
}

func (s *Service) ListEvents(ctx context.Context, ident auth.Identity, id uuid.UUID) ([]*StatusEvent, error) {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := get(id); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("list events", err)
	}
	return events, nil
}

// UploadTarget is a presigned destination for one file upload.
type UploadTarget struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// CreateUploadURL hands out a presigned upload slot. Customers may not
// upload files at all.
func (s *Service) CreateUploadURL(ctx context.Context, ident auth.Identity, id uuid.UUID, kind, filename, contentType string) (*UploadTarget, error) {
	switch ident.Role {
	case auth.RoleLab, auth.RoleAdmin, auth.RoleMilling:
	default:
		return nil, apperr.Forbidden("file upload is restricted to lab, admin, and milling")
	}
	if kind == "" || filename == "" {
		return nil, apperr.Invalid("kind and filename are required")
	}

	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := get(id); err != nil {
		return nil, err
	}

	key := blobstore.ObjectKey(id, kind, filename)
	url, err := s.signer.SignUpload(ctx, key, contentType, s.uploadTTL)
	if err != nil {
		return nil, apperr.Dependency("sign upload url", err)
	}
	return &UploadTarget{URL: url, Key: key}, nil
}

// ConfirmFile records a completed upload against the case.
func (s *Service) ConfirmFile(ctx context.Context, ident auth.Identity, id uuid.UUID, kind, key, label string) (*CaseFile, error) {
	switch ident.Role {
	case auth.RoleLab, auth.RoleAdmin, auth.RoleMilling:
	default:
		return nil, apperr.Forbidden("file upload is restricted to lab, admin, and milling")
	}
	if key == "" {
		return nil, apperr.Invalid("storage key is required")
	}

	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := get(id); err != nil {
		return nil, err
	}

	f := &CaseFile{CaseID: id, Kind: kind, StorageKey: key, Label: label, UploadedBy: ident.UserID}
	if err := s.repo.AddFile(ctx, f); err != nil {
		return nil, apperr.Dependency("record file", err)
	}
	return f, nil
}

func (s *Service) ListFiles(ctx context.Context, ident auth.Identity, id uuid.UUID) ([]*CaseFile, error) {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return nil, err
	}
	if _, err := get(id); err != nil {
		return nil, err
	}
	files, err := s.repo.ListFiles(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("list files", err)
	}
	return files, nil
}

// MarkRead moves the caller's unread watermark for a case to now.
func (s *Service) MarkRead(ctx context.Context, ident auth.Identity, id uuid.UUID) error {
	get, err := s.getVisible(ctx, ident)
	if err != nil {
		return err
	}
	if _, err := get(id); err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, ident.UserID, id, s.now()); err != nil {
		return apperr.Dependency("mark case read", err)
	}
	return nil
}

// Triage returns the action/unread/shipped counters for the caller's scope.
func (s *Service) Triage(ctx context.Context, ident auth.Identity) (TriageCounts, error) {
	v, err := s.visibility(ctx, ident)
	if err != nil {
		return TriageCounts{}, err
	}
	counts, err := s.repo.Triage(ctx, v)
	if err != nil {
		return TriageCounts{}, apperr.Dependency("triage counts", err)
	}
	return counts, nil
}

func (s *Service) casUpdate(ctx context.Context, c *DentalCase) error {
	ok, err := s.repo.UpdateCAS(ctx, c, c.Version)
	if err != nil {
		return apperr.Dependency("update case", err)
	}
	if !ok {
		return apperr.Conflict("case was modified concurrently, reload and retry")
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
