// Package shipping processes outbound shipments: batches of finished cases
// leaving the lab under one tracking number and freight cost.
package shipping

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/cases"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/identity"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/mailer"
)

// DoctorSource resolves the submitting doctor for shipped-case notifications.
type DoctorSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	repo    cases.Repository
	doctors DoctorSource
	mail    mailer.Sender
	inTx    cases.TxRunner
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo cases.Repository, doctors DoctorSource, mail mailer.Sender, inTx cases.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		doctors: doctors,
		mail:    mail,
		inTx:    inTx,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BatchResult reports one processed shipment.
type BatchResult struct {
	BatchID     uuid.UUID   `json:"batch_id"`
	ShippedIDs  []uuid.UUID `json:"shipped_ids"`
	CostPerCase float64     `json:"cost_per_case"`
}

// ShipBatch marks every listed case shipped under one fresh batch id. The
// freight cost splits evenly across the listed cases. Field updates and the
// per-case transition events commit in one transaction.
func (s *Service) ShipBatch(ctx context.Context, ident auth.Identity, ids []uuid.UUID, tracking, carrier string, totalCost *float64) (*BatchResult, error) {
	if ident.Role != auth.RoleMilling && ident.Role != auth.RoleAdmin {
		return nil, apperr.Forbidden("only milling or admin may ship batches")
	}
	if len(ids) == 0 {
		return nil, apperr.Invalid("case ids must not be empty")
	}
	if tracking == "" {
		return nil, apperr.Invalid("tracking number is required")
	}

	costPerCase := 0.0
	if totalCost != nil {
		if *totalCost < 0 {
			return nil, apperr.Invalid("shipping cost must not be negative")
		}
		costPerCase = *totalCost / float64(len(ids))
	}

	batchID := uuid.New()
	now := s.now()
	result := &BatchResult{BatchID: batchID, CostPerCase: costPerCase}

	err := s.inTx(ctx, func(ctx context.Context) error {
		list, err := s.repo.ListByIDs(ctx, ids)
		if err != nil {
			return apperr.Dependency("load batch cases", err)
		}
		if len(list) == 0 {
			return apperr.NotFound("cases")
		}

		for _, c := range list {
			prevStatus := string(c.Status)
			c.Status = cases.StatusShipped
			c.Stage = cases.StageShipping
			c.ShippedAt = &now
			c.ShippingCarrier = &carrier
			c.TrackingNumber = &tracking
			cost := costPerCase
			c.ShippingCost = &cost
			bid := batchID
			c.ShippingBatchID = &bid

			ev := &cases.StatusEvent{
				CaseID: c.ID,
				Kind:   cases.EventKindStatus,
				From:   &prevStatus,
				To:     string(cases.StatusShipped),
				At:     now,
			}
			if err := s.repo.AppendEvent(ctx, ev); err != nil {
				return apperr.Dependency("append shipment event", err)
			}

			ok, err := s.repo.UpdateCAS(ctx, c, c.Version)
			if err != nil {
				return apperr.Dependency("update shipped case", err)
			}
			if !ok {
				return apperr.Conflict("case " + c.ID.String() + " was modified concurrently")
			}
			result.ShippedIDs = append(result.ShippedIDs, c.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyShipped(ctx, result.ShippedIDs, tracking)
	return result, nil
}

// notifyShipped emails the submitting doctors. Best effort: failures are
// logged and never surface to the caller.
func (s *Service) notifyShipped(ctx context.Context, ids []uuid.UUID, tracking string) {
	if s.mail == nil || s.doctors == nil {
		return
	}
	list, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load shipped cases for notification")
		return
	}
	for _, c := range list {
		doctor, err := s.doctors.GetByID(ctx, c.DoctorUserID)
		if err != nil {
			s.logger.Warn().Err(err).Str("case_id", c.ID.String()).Msg("lookup doctor for shipment mail")
			continue
		}
		msg := mailer.CaseShipped(doctor.Email, c.PatientRef, tracking)
		if err := s.mail.Send(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("case_id", c.ID.String()).Msg("send shipment mail")
		}
	}
}
