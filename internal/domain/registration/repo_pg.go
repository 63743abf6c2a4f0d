package registration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reqCols = `id, email, name, phone, clinic_name, street, city, state, zip,
	status, created_at, processed_at`

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO registration_request (id, email, name, phone, clinic_name, street, city, state, zip, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		req.ID, req.Email, req.Name, req.Phone, req.ClinicName, req.Street, req.City, req.State, req.Zip, req.Status,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM registration_request WHERE id = $1`, id))
}

func (r *repoPG) GetPendingByEmail(ctx context.Context, email string) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reqCols+` FROM registration_request WHERE lower(email) = lower($1) AND status = $2`,
		email, StatusPending))
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE registration_request SET status = $2, processed_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) List(ctx context.Context, status *RequestStatus, limit, offset int) ([]*Request, int, error) {
	where := ""
	args := []interface{}{}
	if status != nil {
		args = append(args, *status)
		where = " WHERE status = $1"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM registration_request`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM registration_request%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			reqCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reqs []*Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.Email, &req.Name, &req.Phone, &req.ClinicName,
			&req.Street, &req.City, &req.State, &req.Zip, &req.Status, &req.CreatedAt, &req.ProcessedAt); err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, &req)
	}
	return reqs, total, nil
}

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.Email, &req.Name, &req.Phone, &req.ClinicName,
		&req.Street, &req.City, &req.State, &req.Zip, &req.Status, &req.CreatedAt, &req.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
