package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/pricing"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
)

// BillingLine is one billable case as seen by the billing preview. Supplied
// by the case store through the CaseSource seam.
type BillingLine struct {
	CaseID      uuid.UUID           `json:"case_id"`
	ProductType string              `json:"product_type"`
	Material    string              `json:"material"`
	Units       int                 `json:"units"`
	BillingType pricing.BillingType `json:"billing_type"`
}

// CaseSource supplies the cases billed to a clinic in a period.
type CaseSource interface {
	BillableLines(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]BillingLine, error)
}

type Service struct {
	repo  Repository
	cases CaseSource
}

func NewService(repo Repository, cases CaseSource) *Service {
	return &Service{repo: repo, cases: cases}
}

func (s *Service) Create(ctx context.Context, c *Clinic) error {
	if c.Name == "" {
		return apperr.Invalid("clinic name is required")
	}
	if c.PriceTier == "" {
		c.PriceTier = pricing.TierStandard
	}
	if c.PriceTier != pricing.TierStandard && c.PriceTier != pricing.TierInHouse {
		return apperr.Invalid("unknown price tier %q", c.PriceTier)
	}
	if c.BillingDay < 0 || c.BillingDay > 28 {
		return apperr.Invalid("billing day must be between 0 and 28")
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return apperr.Dependency("create clinic", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("clinic")
		}
		return nil, apperr.Dependency("get clinic", err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, c *Clinic) error {
	if _, err := s.Get(ctx, c.ID); err != nil {
		return err
	}
	if c.PriceTier != pricing.TierStandard && c.PriceTier != pricing.TierInHouse {
		return apperr.Invalid("unknown price tier %q", c.PriceTier)
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return apperr.Dependency("update clinic", err)
	}
	return nil
}

// Delete removes a clinic. A clinic still referenced by users or cases
// cannot be deleted; the foreign key violation surfaces as a Conflict so
// callers see a precondition failure instead of a generic store error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperr.Conflict("clinic still has users or cases attached")
		}
		return apperr.Dependency("delete clinic", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	clinics, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Dependency("list clinics", err)
	}
	return clinics, total, nil
}

// BillingPreviewLine is one priced case in a billing preview.
type BillingPreviewLine struct {
	BillingLine
	Amount float64 `json:"amount"`
}

// BillingPreview prices every billable case for the clinic in [from, to)
// using the clinic's tier. Warranty cases appear with a zero amount.
type BillingPreview struct {
	ClinicID  uuid.UUID            `json:"clinic_id"`
	PriceTier pricing.Tier         `json:"price_tier"`
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Lines     []BillingPreviewLine `json:"lines"`
	Total     float64              `json:"total"`
}

func (s *Service) PreviewBilling(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (*BillingPreview, error) {
	if !from.Before(to) {
		return nil, apperr.Invalid("billing period start must precede end")
	}
	c, err := s.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	lines, err := s.cases.BillableLines(ctx, clinicID, from, to)
	if err != nil {
		return nil, apperr.Dependency("load billable cases", err)
	}

	preview := &BillingPreview{
		ClinicID:  clinicID,
		PriceTier: c.PriceTier,
		From:      from,
		To:        to,
		Lines:     make([]BillingPreviewLine, 0, len(lines)),
	}
	for _, line := range lines {
		amount, err := pricing.Price(c.PriceTier, line.BillingType, line.ProductType, line.Material, line.Units)
		if err != nil {
			return nil, err
		}
		preview.Lines = append(preview.Lines, BillingPreviewLine{BillingLine: line, Amount: amount})
		preview.Total += amount
	}
	return preview, nil
}
