package cases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/clinic"
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

const caseCols = `id, clinic_id, doctor_user_id, assignee_id, sales_rep_id,
	patient_ref, product_type, material, units, billing_type,
	status, stage, needs_review, review_question, review_requested_at,
	case_notes, shipping_carrier, tracking_number, shipping_eta,
	shipping_cost, shipping_batch_id, designed_at, milled_at, shipped_at,
	version, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, c *DentalCase) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dental_case (
			id, clinic_id, doctor_user_id, assignee_id, sales_rep_id,
			patient_ref, product_type, material, units, billing_type,
			status, stage, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.ClinicID, c.DoctorUserID, c.AssigneeID, c.SalesRepID,
		c.PatientRef, c.ProductType, c.Material, c.Units, c.BillingType,
		c.Status, c.Stage, c.Version,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*DentalCase, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM dental_case WHERE id = $1`, id))
}

func (r *repoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*DentalCase, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+caseCols+` FROM dental_case WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

func (r *repoPG) UpdateCAS(ctx context.Context, c *DentalCase, expectedVersion int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE dental_case SET
			assignee_id=$2, sales_rep_id=$3, patient_ref=$4, product_type=$5,
			material=$6, units=$7, billing_type=$8, status=$9, stage=$10,
			needs_review=$11, review_question=$12, review_requested_at=$13,
			case_notes=$14, shipping_carrier=$15, tracking_number=$16,
			shipping_eta=$17, shipping_cost=$18, shipping_batch_id=$19,
			designed_at=$20, milled_at=$21, shipped_at=$22,
			version=$23+1, updated_at=NOW()
		WHERE id = $1 AND version = $23`,
		c.ID, c.AssigneeID, c.SalesRepID, c.PatientRef, c.ProductType,
		c.Material, c.Units, c.BillingType, c.Status, c.Stage,
		c.NeedsReview, c.ReviewQuestion, c.ReviewRequestedAt,
		c.CaseNotes, c.ShippingCarrier, c.TrackingNumber,
		c.ShippingEta, c.ShippingCost, c.ShippingBatchID,
		c.DesignedAt, c.MilledAt, c.ShippedAt,
		expectedVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	c.Version = expectedVersion + 1
	return true, nil
}

// scopeSQL renders the visibility predicate. Staff viewers get no predicate.
func scopeSQL(v Visibility, args *[]interface{}) string {
	if v.Staff {
		return ""
	}
	*args = append(*args, v.ClinicIDs)
	clinicArg := len(*args)
	*args = append(*args, v.ViewerID)
	viewerArg := len(*args)
	return fmt.Sprintf("(clinic_id = ANY($%d) OR doctor_user_id = $%d)", clinicArg, viewerArg)
}

func (r *repoPG) Search(ctx context.Context, v Visibility, f SearchFilter, limit, offset int) ([]*DentalCase, int, error) {
	var conds []string
	var args []interface{}

	if s := scopeSQL(v, &args); s != "" {
		conds = append(conds, s)
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Stage != nil {
		args = append(args, *f.Stage)
		conds = append(conds, fmt.Sprintf("stage = $%d", len(args)))
	}
	if f.ClinicID != nil {
		args = append(args, *f.ClinicID)
		conds = append(conds, fmt.Sprintf("clinic_id = $%d", len(args)))
	}
	if f.NeedsReview != nil {
		args = append(args, *f.NeedsReview)
		conds = append(conds, fmt.Sprintf("needs_review = $%d", len(args)))
	}
	if f.BatchID != nil {
		args = append(args, *f.BatchID)
		conds = append(conds, fmt.Sprintf("shipping_batch_id = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dental_case`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM dental_case%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
			caseCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list, err := collectCases(rows)
	return list, total, err
}

func (r *repoPG) AppendEvent(ctx context.Context, e *StatusEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO status_event (id, case_id, kind, from_value, to_value, note, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.CaseID, e.Kind, e.From, e.To, e.Note, e.At,
	)
	return err
}

func (r *repoPG) ListEvents(ctx context.Context, caseID uuid.UUID) ([]*StatusEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, kind, from_value, to_value, note, at
		FROM status_event WHERE case_id = $1 ORDER BY at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Kind, &e.From, &e.To, &e.Note, &e.At); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, nil
}

func (r *repoPG) AddFile(ctx context.Context, f *CaseFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO case_file (id, case_id, kind, storage_key, label, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		f.ID, f.CaseID, f.Kind, f.StorageKey, f.Label, f.UploadedBy,
	)
	return err
}

func (r *repoPG) ListFiles(ctx context.Context, caseID uuid.UUID) ([]*CaseFile, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, kind, storage_key, label, uploaded_by, created_at
		FROM case_file WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*CaseFile
	for rows.Next() {
		var f CaseFile
		if err := rows.Scan(&f.ID, &f.CaseID, &f.Kind, &f.StorageKey, &f.Label, &f.UploadedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, nil
}

func (r *repoPG) AddComment(ctx context.Context, cm *CaseComment) error {
	if cm.ID == uuid.Nil {
		cm.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO case_comment (id, case_id, author_id, body)
		VALUES ($1,$2,$3,$4)`,
		cm.ID, cm.CaseID, cm.AuthorID, cm.Body,
	)
	return err
}

func (r *repoPG) ListComments(ctx context.Context, caseID uuid.UUID) ([]*CaseComment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, author_id, body, created_at
		FROM case_comment WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*CaseComment
	for rows.Next() {
		var cm CaseComment
		if err := rows.Scan(&cm.ID, &cm.CaseID, &cm.AuthorID, &cm.Body, &cm.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, &cm)
	}
	return comments, nil
}

func (r *repoPG) MarkRead(ctx context.Context, userID, caseID uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO case_read (user_id, case_id, last_seen_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, case_id) DO UPDATE SET last_seen_at = GREATEST(case_read.last_seen_at, $3)`,
		userID, caseID, at,
	)
	return err
}

func (r *repoPG) Triage(ctx context.Context, v Visibility) (TriageCounts, error) {
	var counts TriageCounts

	var scopeArgs []interface{}
	scope := scopeSQL(v, &scopeArgs)
	and := ""
	if scope != "" {
		and = " AND " + scope
	}

	// Action-required differs by role: customers act on review flags, staff
	// act on change requests.
	actionPred := `status = 'CHANGES_REQUESTED'`
	if !v.Staff {
		actionPred = `needs_review = TRUE`
	}
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM dental_case WHERE `+actionPred+and, scopeArgs...).Scan(&counts.ActionCount); err != nil {
		return counts, err
	}

	unreadArgs := append([]interface{}{v.ViewerID}, scopeArgs...)
	unreadScope := ""
	if scope != "" {
		// Shift placeholders: $1/$2 in scope become $2/$3 behind the viewer arg.
		unreadScope = " AND (dc.clinic_id = ANY($2) OR dc.doctor_user_id = $3)"
	}
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM dental_case dc
		LEFT JOIN case_read cr ON cr.case_id = dc.id AND cr.user_id = $1
		WHERE (cr.last_seen_at IS NULL OR dc.updated_at > cr.last_seen_at)`+unreadScope,
		unreadArgs...).Scan(&counts.UnreadCount); err != nil {
		return counts, err
	}

	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM dental_case WHERE status = 'SHIPPED'`+and, scopeArgs...).Scan(&counts.ShippedCount); err != nil {
		return counts, err
	}
	return counts, nil
}

func (r *repoPG) BillableLines(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]clinic.BillingLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, product_type, material, units, billing_type
		FROM dental_case
		WHERE clinic_id = $1 AND created_at >= $2 AND created_at < $3
			AND status NOT IN ('CANCELLED')
		ORDER BY created_at ASC`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []clinic.BillingLine
	for rows.Next() {
		var l clinic.BillingLine
		if err := rows.Scan(&l.CaseID, &l.ProductType, &l.Material, &l.Units, &l.BillingType); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func scanCase(row pgx.Row) (*DentalCase, error) {
	var c DentalCase
	err := row.Scan(
		&c.ID, &c.ClinicID, &c.DoctorUserID, &c.AssigneeID, &c.SalesRepID,
		&c.PatientRef, &c.ProductType, &c.Material, &c.Units, &c.BillingType,
		&c.Status, &c.Stage, &c.NeedsReview, &c.ReviewQuestion, &c.ReviewRequestedAt,
		&c.CaseNotes, &c.ShippingCarrier, &c.TrackingNumber, &c.ShippingEta,
		&c.ShippingCost, &c.ShippingBatchID, &c.DesignedAt, &c.MilledAt, &c.ShippedAt,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCases(rows pgx.Rows) ([]*DentalCase, error) {
	var out []*DentalCase
	for rows.Next() {
		var c DentalCase
		err := rows.Scan(
			&c.ID, &c.ClinicID, &c.DoctorUserID, &c.AssigneeID, &c.SalesRepID,
			&c.PatientRef, &c.ProductType, &c.Material, &c.Units, &c.BillingType,
			&c.Status, &c.Stage, &c.NeedsReview, &c.ReviewQuestion, &c.ReviewRequestedAt,
			&c.CaseNotes, &c.ShippingCarrier, &c.TrackingNumber, &c.ShippingEta,
			&c.ShippingCost, &c.ShippingBatchID, &c.DesignedAt, &c.MilledAt, &c.ShippedAt,
			&c.Version, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, nil
}
