package registration

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/cases"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/clinic"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/identity"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/pricing"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/mailer"
)

type Service struct {
	repo      Repository
	users     identity.UserRepository
	addrs     identity.AddressRepository
	clinics   clinic.Repository
	mail      mailer.Sender
	inTx      cases.TxRunner
	portalURL string
	logger    zerolog.Logger
}

func NewService(repo Repository, users identity.UserRepository, addrs identity.AddressRepository,
	clinics clinic.Repository, mail mailer.Sender, inTx cases.TxRunner, portalURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		addrs:     addrs,
		clinics:   clinics,
		mail:      mail,
		inTx:      inTx,
		portalURL: portalURL,
		logger:    logger,
	}
}

// Submit files a public registration request. One pending request per email.
func (s *Service) Submit(ctx context.Context, req *Request) error {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return apperr.Invalid("a valid email is required")
	}
	if req.Name == "" {
		return apperr.Invalid("name is required")
	}
	if req.ClinicName == "" {
		return apperr.Invalid("clinic name is required")
	}

	if existing, err := s.repo.GetPendingByEmail(ctx, req.Email); err == nil && existing != nil {
		return apperr.Conflict("a registration for this email is already pending")
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperr.Dependency("check pending registration", err)
	}

	req.Status = StatusPending
	if err := s.repo.Create(ctx, req); err != nil {
		return apperr.Dependency("create registration request", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("registration request")
		}
		return nil, apperr.Dependency("get registration request", err)
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, status *RequestStatus, limit, offset int) ([]*Request, int, error) {
	reqs, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.Dependency("list registration requests", err)
	}
	return reqs, total, nil
}

// ApproveResult carries the processed request plus a non-fatal warning when
// approval was a no-op.
type ApproveResult struct {
	Request *Request `json:"request"`
	Warning string   `json:"warning,omitempty"`
}

// Approve turns a pending request into a User, Clinic, and Address in one
// transaction. Approving twice, or approving a request whose email already
// belongs to a user, marks the request processed without creating anything
// and reports a warning. The clinic is created with the request's clinic
// name only: the submitted address belongs to the new user's profile, not
// the clinic record.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*ApproveResult, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case StatusRejected:
		return nil, apperr.Conflict("request was already rejected")
	case StatusProcessed:
		return &ApproveResult{Request: req, Warning: "request was already processed"}, nil
	}

	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Dependency("lookup user by email", err)
	}
	if existing != nil {
		if err := s.repo.SetStatus(ctx, req.ID, StatusProcessed); err != nil {
			return nil, apperr.Dependency("mark request processed", err)
		}
		req.Status = StatusProcessed
		return &ApproveResult{Request: req, Warning: "a user with this email already exists; no account was created"}, nil
	}

	var newUser *identity.User
	err = s.inTx(ctx, func(ctx context.Context) error {
		addr := &identity.Address{Street: req.Street, City: req.City, State: req.State, Zip: req.Zip}
		if err := s.addrs.Create(ctx, addr); err != nil {
			return apperr.Dependency("create address", err)
		}

		cl := &clinic.Clinic{Name: req.ClinicName, PriceTier: pricing.TierStandard}
		if err := s.clinics.Create(ctx, cl); err != nil {
			return apperr.Dependency("create clinic", err)
		}

		token := uuid.New().String()
		newUser = &identity.User{
			Email:        req.Email,
			Name:         req.Name,
			Phone:        req.Phone,
			Role:         auth.RoleCustomer,
			ClinicID:     &cl.ID,
			AddressID:    &addr.ID,
			PasswordHash: identity.PendingSetupPassword,
			SetupToken:   &token,
		}
		if err := s.users.Create(ctx, newUser); err != nil {
			return apperr.Dependency("create user", err)
		}

		if err := s.repo.SetStatus(ctx, req.ID, StatusProcessed); err != nil {
			return apperr.Dependency("mark request processed", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	req.Status = StatusProcessed

	// Best effort: a failed invitation mail never rolls back the account.
	msg := mailer.AccountSetup(newUser.Email, newUser.Name, req.ClinicName, s.portalURL, *newUser.SetupToken)
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID.String()).Msg("send account setup mail")
	}

	return &ApproveResult{Request: req}, nil
}

// Reject marks a pending request rejected. No accounts are touched.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, apperr.Conflict("request is no longer pending")
	}

	if err := s.repo.SetStatus(ctx, req.ID, StatusRejected); err != nil {
		return nil, apperr.Dependency("mark request rejected", err)
	}
	req.Status = StatusRejected

	msg := mailer.RegistrationRejected(req.Email, req.Name)
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID.String()).Msg("send rejection mail")
	}
	return req, nil
}
