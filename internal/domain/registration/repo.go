package registration

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetPendingByEmail(ctx context.Context, email string) (*Request, error)
	SetStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error
	List(ctx context.Context, status *RequestStatus, limit, offset int) ([]*Request, int, error)
}
