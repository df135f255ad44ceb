package labresult

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/db"
)

type repoPG struct{ pool db.Querier }

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

var resultCols = []string{
	"r.id", "r.sample_id", "r.created_by", "r.created_at", "r.comment", "r.status",
	"smp.queue_id", "d.booking_id", "q.lab_service_id", "s.name", "smp.sample_type",
	"b.client_first_name", "b.client_last_name",
	"v.id", "v.verified_at", "v.verified_by", "v.comment", "v.status",
}

func resultBase() sq.SelectBuilder {
	return db.PSQL.Select().
		From("lab_sample_result r").
		Join("lab_collected_sample smp ON smp.id = r.sample_id").
		Join("lab_queue q ON q.id = smp.queue_id").
		Join("service_booking_detail d ON d.id = q.booking_detail_id").
		Join("service_booking b ON b.id = d.booking_id").
		Join("lab_service s ON s.id = q.lab_service_id").
		LeftJoin("lab_verified_result v ON v.result_id = r.id")
}

func scanResult(row pgx.Row) (*Result, error) {
	var (
		res        Result
		vID        *int64
		verifiedAt *time.Time
		verifiedBy *string
		vComment   *string
		vStatus    *string
	)
	err := row.Scan(&res.ID, &res.SampleID, &res.CreatedBy, &res.CreatedAt, &res.Comment, &res.Status,
		&res.QueueID, &res.BookingID, &res.LabServiceID, &res.LabServiceName, &res.SampleType,
		&res.ClientFirstName, &res.ClientLastName,
		&vID, &verifiedAt, &verifiedBy, &vComment, &vStatus)
	if err != nil {
		return nil, err
	}
	if vID != nil {
		v := &Verification{ID: *vID, ResultID: res.ID}
		if verifiedAt != nil {
			v.VerifiedAt = *verifiedAt
		}
		if verifiedBy != nil {
			v.VerifiedBy = *verifiedBy
		}
		if vComment != nil {
			v.Comment = *vComment
		}
		if vStatus != nil {
			v.Status = Status(*vStatus)
		}
		res.Verification = v
	}
	return &res, nil
}

func (r *repoPG) CreateResult(ctx context.Context, res *Result) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_sample_result (sample_id, created_by, comment, status)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		res.SampleID, res.CreatedBy, res.Comment, string(res.Status)).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		err = db.MapError(err, "result", res.SampleID)
		if errors.Is(err, apperror.ErrConflict) {
			return apperror.Conflict("result", "sample %d already has a result", res.SampleID)
		}
		return err
	}
	return nil
}

func (r *repoPG) GetResult(ctx context.Context, id int64) (*Result, error) {
	query, args, err := resultBase().Columns(resultCols...).Where("r.id = ?", id).ToSql()
	if err != nil {
		return nil, err
	}
	res, err := scanResult(r.conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.MapError(err, "result", id)
	}
	return res, nil
}

func (r *repoPG) ListResults(ctx context.Context, f ListFilter) ([]*Result, int, error) {
	b := resultBase()
	if f.LabID != nil {
		b = b.Where("s.lab_id = ?", *f.LabID)
	}
	if f.From != nil {
		b = b.Where("r.created_at >= ?", *f.From)
	}
	if f.To != nil {
		b = b.Where("r.created_at < ?", *f.To)
	}
	switch f.Verified {
	case FilterVerified:
		b = b.Where("v.id IS NOT NULL")
	case FilterNotVerified:
		b = b.Where("v.id IS NULL")
	}
	if f.Keyword != "" {
		b = b.Where(db.ILikeAny(f.Keyword, "b.client_first_name", "b.client_last_name", "s.name"))
	}

	countSQL, countArgs, err := b.Column("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "result", nil)
	}

	query, args, err := b.Columns(resultCols...).OrderBy("r.created_at DESC", "r.id DESC").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	results, err := r.queryResults(ctx, query, args...)
	return results, total, err
}

func (r *repoPG) ListResultsByBooking(ctx context.Context, bookingID int64) ([]*Result, error) {
	query, args, err := resultBase().Columns(resultCols...).
		Where("d.booking_id = ?", bookingID).OrderBy("r.id").ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryResults(ctx, query, args...)
}

func (r *repoPG) queryResults(ctx context.Context, query string, args ...any) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "result", nil)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *repoPG) DeleteResult(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_sample_result WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError(err, "result", id)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("result", id)
	}
	return nil
}

func (r *repoPG) CreateReading(ctx context.Context, rd *Reading) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_experiment_reading (sample_id, parameter_id, parameter_value)
		VALUES ($1, $2, $3) RETURNING id, created_at`,
		rd.SampleID, rd.ParameterID, rd.Value).Scan(&rd.ID, &rd.CreatedAt)
	if err != nil {
		err = db.MapError(err, "reading", rd.ParameterID)
		if errors.Is(err, apperror.ErrConflict) {
			return apperror.Conflict("reading", "parameter %d already recorded for sample %d", rd.ParameterID, rd.SampleID)
		}
		return err
	}
	return nil
}

func (r *repoPG) ReadingsBySample(ctx context.Context, sampleIDs []int64) (map[int64][]*Reading, error) {
	out := make(map[int64][]*Reading, len(sampleIDs))
	if len(sampleIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, sample_id, parameter_id, parameter_value, created_at
		FROM lab_experiment_reading WHERE sample_id = ANY($1) ORDER BY id`, sampleIDs)
	if err != nil {
		return nil, db.MapError(err, "reading", nil)
	}
	defer rows.Close()
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.ID, &rd.SampleID, &rd.ParameterID, &rd.Value, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out[rd.SampleID] = append(out[rd.SampleID], &rd)
	}
	return out, rows.Err()
}

func (r *repoPG) DeleteReadings(ctx context.Context, sampleID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_experiment_reading WHERE sample_id = $1`, sampleID)
	if err != nil {
		return 0, db.MapDeleteError(err, "reading", sampleID)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) CreateVerification(ctx context.Context, v *Verification) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_verified_result (result_id, verified_by, comment, status)
		VALUES ($1, $2, $3, $4) RETURNING id, verified_at`,
		v.ResultID, v.VerifiedBy, v.Comment, string(v.Status)).Scan(&v.ID, &v.VerifiedAt)
	if err != nil {
		err = db.MapError(err, "verification", v.ResultID)
		if errors.Is(err, apperror.ErrConflict) {
			return apperror.Conflict("verification", "result %d is already verified", v.ResultID)
		}
		return err
	}
	return nil
}

func (r *repoPG) VerificationProgress(ctx context.Context, bookingID int64) (int, int, error) {
	var samples, verified int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(smp.id), COUNT(v.id)
		FROM lab_collected_sample smp
		JOIN lab_queue q ON q.id = smp.queue_id
		JOIN service_booking_detail d ON d.id = q.booking_detail_id
		LEFT JOIN lab_sample_result r ON r.sample_id = smp.id
		LEFT JOIN lab_verified_result v ON v.result_id = r.id
		WHERE d.booking_id = $1`, bookingID).Scan(&samples, &verified)
	if err != nil {
		return 0, 0, db.MapError(err, "booking", bookingID)
	}
	return samples, verified, nil
}

const logCols = `id, booking_id, action, logged_by, logged_at, prior_status`

func scanLog(row pgx.Row) (*LogEntry, error) {
	var l LogEntry
	err := row.Scan(&l.ID, &l.BookingID, &l.Action, &l.LoggedBy, &l.LoggedAt, &l.PriorStatus)
	return &l, err
}

func (r *repoPG) CreateLog(ctx context.Context, l *LogEntry) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_result_log (booking_id, action, logged_by, prior_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id, action) DO NOTHING
		RETURNING id, logged_at`,
		l.BookingID, string(l.Action), l.LoggedBy, string(l.PriorStatus)).Scan(&l.ID, &l.LoggedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.MapError(err, "result log", l.BookingID)
	}
	return true, nil
}

func (r *repoPG) DeleteLog(ctx context.Context, bookingID int64, action Status) (*LogEntry, error) {
	l, err := scanLog(r.conn(ctx).QueryRow(ctx,
		`DELETE FROM lab_result_log WHERE booking_id = $1 AND action = $2 RETURNING `+logCols,
		bookingID, string(action)))
	if err != nil {
		return nil, db.MapError(err, "archive log", bookingID)
	}
	return l, nil
}

func (r *repoPG) ListLog(ctx context.Context, bookingID int64) ([]*LogEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+logCols+` FROM lab_result_log WHERE booking_id = $1 ORDER BY logged_at`, bookingID)
	if err != nil {
		return nil, db.MapError(err, "result log", bookingID)
	}
	defer rows.Close()

	out := []*LogEntry{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const approvalCols = `id, booking_id, approved_by, approved_at, comment, status`

func scanApproval(row pgx.Row) (*Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.BookingID, &a.ApprovedBy, &a.ApprovedAt, &a.Comment, &a.Status)
	return &a, err
}

func (r *repoPG) CreateApproval(ctx context.Context, a *Approval) (*Approval, bool, error) {
	created, err := scanApproval(r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_approved_booking_result (booking_id, approved_by, comment, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING `+approvalCols,
		a.BookingID, a.ApprovedBy, a.Comment, string(a.Status)))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, db.MapError(err, "approval", a.BookingID)
	}
	existing, err := r.GetApproval(ctx, a.BookingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repoPG) GetApproval(ctx context.Context, bookingID int64) (*Approval, error) {
	a, err := scanApproval(r.conn(ctx).QueryRow(ctx,
		`SELECT `+approvalCols+` FROM lab_approved_booking_result WHERE booking_id = $1`, bookingID))
	if err != nil {
		return nil, db.MapError(err, "approval", bookingID)
	}
	return a, nil
}

func (r *repoPG) UpdateApproval(ctx context.Context, bookingID int64, p ApprovalPatch) (*Approval, error) {
	b := db.PSQL.Update("lab_approved_booking_result").Where("booking_id = ?", bookingID)
	if p.Comment != nil {
		b = b.Set("comment", *p.Comment)
	}
	if p.Status != nil {
		b = b.Set("status", string(*p.Status))
	}
	if p.Comment == nil && p.Status == nil {
		return r.GetApproval(ctx, bookingID)
	}
	query, args, err := b.Suffix("RETURNING " + approvalCols).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanApproval(r.conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.MapError(err, "approval", bookingID)
	}
	return a, nil
}

func (r *repoPG) DeleteApproval(ctx context.Context, bookingID int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_approved_booking_result WHERE booking_id = $1`, bookingID)
	if err != nil {
		return db.MapDeleteError(err, "approval", bookingID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("approval", bookingID)
	}
	return nil
}
