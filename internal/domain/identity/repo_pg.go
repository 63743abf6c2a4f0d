package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *userRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, email, name, phone, role, clinic_id, address_id,
	password_hash, setup_token, created_at, updated_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO portal_user (id, email, name, phone, role, clinic_id, address_id, password_hash, setup_token)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, u.Name, u.Phone, u.Role, u.ClinicID, u.AddressID, u.PasswordHash, u.SetupToken,
	)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM portal_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM portal_user WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) GetBySetupToken(ctx context.Context, token string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM portal_user WHERE setup_token = $1`, token))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE portal_user SET
			email=$2, name=$3, phone=$4, role=$5, clinic_id=$6, address_id=$7,
			password_hash=$8, setup_token=$9, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.Email, u.Name, u.Phone, u.Role, u.ClinicID, u.AddressID, u.PasswordHash, u.SetupToken,
	)
	return err
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM portal_user`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userCols+` FROM portal_user ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role, &u.ClinicID, &u.AddressID,
			&u.PasswordHash, &u.SetupToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, &u)
	}
	return users, total, nil
}

func (r *userRepoPG) AddClinicAffiliation(ctx context.Context, userID, clinicID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_clinic_affiliation (user_id, clinic_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, userID, clinicID)
	return err
}

func (r *userRepoPG) SecondaryClinicIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT clinic_id FROM user_clinic_affiliation WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role, &u.ClinicID, &u.AddressID,
		&u.PasswordHash, &u.SetupToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type addressRepoPG struct {
	pool *pgxpool.Pool
}

func NewAddressRepo(pool *pgxpool.Pool) AddressRepository {
	return &addressRepoPG{pool: pool}
}

func (r *addressRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *addressRepoPG) Create(ctx context.Context, a *Address) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO address (id, street, city, state, zip)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.Street, a.City, a.State, a.Zip,
	)
	return err
}

func (r *addressRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Address, error) {
	var a Address
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, street, city, state, zip, created_at FROM address WHERE id = $1`, id).
		Scan(&a.ID, &a.Street, &a.City, &a.State, &a.Zip, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
