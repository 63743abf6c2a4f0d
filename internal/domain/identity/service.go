package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
)

const minPasswordLen = 8

type Service struct {
	users UserRepository
	addrs AddressRepository
}

func NewService(users UserRepository, addrs AddressRepository) *Service {
	return &Service{users: users, addrs: addrs}
}

// CreateUser registers an account directly, bypassing the public registration
// flow. The account starts in pending-setup state with a fresh one-time token.
func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return apperr.Invalid("a valid email is required")
	}
	if u.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !auth.ValidRoles[u.Role] {
		return apperr.Invalid("unknown role %q", u.Role)
	}
	if u.Role == auth.RoleCustomer && u.ClinicID == nil {
		return apperr.Invalid("customer accounts require a clinic")
	}

	if existing, err := s.users.GetByEmail(ctx, u.Email); err == nil && existing != nil {
		return apperr.Conflict("a user with this email already exists")
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperr.Dependency("lookup user by email", err)
	}

	token := uuid.New().String()
	u.PasswordHash = PendingSetupPassword
	u.SetupToken = &token

	if err := s.users.Create(ctx, u); err != nil {
		return apperr.Dependency("create user", err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.Dependency("get user", err)
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	users, total, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Dependency("list users", err)
	}
	return users, total, nil
}

// UpdateUser applies admin edits. Email, password hash, and setup token are
// not editable through this path.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, name string, phone *string, role auth.Role, clinicID *uuid.UUID) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		u.Name = name
	}
	if phone != nil {
		u.Phone = phone
	}
	if role != "" {
		if !auth.ValidRoles[role] {
			return nil, apperr.Invalid("unknown role %q", role)
		}
		u.Role = role
	}
	if clinicID != nil {
		u.ClinicID = clinicID
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, apperr.Dependency("update user", err)
	}
	return u, nil
}

// AddClinicAffiliation grants a user read access to an additional clinic's
// cases.
func (s *Service) AddClinicAffiliation(ctx context.Context, userID, clinicID uuid.UUID) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.AddClinicAffiliation(ctx, userID, clinicID); err != nil {
		return apperr.Dependency("add clinic affiliation", err)
	}
	return nil
}

// CompleteSetup consumes a one-time setup token and stores the user's first
// password. The token is cleared in the same update, so a second call with
// the same token fails.
func (s *Service) CompleteSetup(ctx context.Context, token, password string) error {
	if token == "" {
		return apperr.Invalid("setup token is required")
	}
	if len(password) < minPasswordLen {
		return apperr.Invalid("password must be at least %d characters", minPasswordLen)
	}

	u, err := s.users.GetBySetupToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("setup token")
		}
		return apperr.Dependency("lookup setup token", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Dependency("hash password", err)
	}

	u.PasswordHash = string(hash)
	u.SetupToken = nil
	if err := s.users.Update(ctx, u); err != nil {
		return apperr.Dependency("complete setup", err)
	}
	return nil
}

func (s *Service) CreateAddress(ctx context.Context, a *Address) error {
	if a.Street == "" || a.City == "" {
		return apperr.Invalid("street and city are required")
	}
	if err := s.addrs.Create(ctx, a); err != nil {
		return apperr.Dependency("create address", err)
	}
	return nil
}

func (s *Service) GetAddress(ctx context.Context, id uuid.UUID) (*Address, error) {
	a, err := s.addrs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("address")
		}
		return nil, apperr.Dependency("get address", err)
	}
	return a, nil
}
