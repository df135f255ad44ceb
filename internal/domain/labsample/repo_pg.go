package labsample

import (
	"context"
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

var sampleCols = []string{
	"smp.id", "smp.queue_id", "smp.sample_type", "smp.collected_by", "smp.collected_at",
	"smp.container_label", "smp.status", "d.booking_id", "q.lab_service_id", "s.name",
	"b.client_first_name", "b.client_last_name",
	"r.id", "r.created_by", "r.created_at", "r.comment", "r.status",
}

func sampleBase() sq.SelectBuilder {
	return db.PSQL.Select().
		From("lab_collected_sample smp").
		Join("lab_queue q ON q.id = smp.queue_id").
		Join("service_booking_detail d ON d.id = q.booking_detail_id").
		Join("service_booking b ON b.id = d.booking_id").
		Join("lab_service s ON s.id = q.lab_service_id").
		LeftJoin("lab_sample_result r ON r.sample_id = smp.id")
}

func scanSample(row pgx.Row) (*Sample, error) {
	var (
		s         Sample
		resultID  *int64
		createdBy *string
		createdAt *time.Time
		comment   *string
		status    *string
	)
	err := row.Scan(&s.ID, &s.QueueID, &s.SampleType, &s.CollectedBy, &s.CollectedAt,
		&s.ContainerLabel, &s.Status, &s.BookingID, &s.LabServiceID, &s.LabServiceName,
		&s.ClientFirstName, &s.ClientLastName,
		&resultID, &createdBy, &createdAt, &comment, &status)
	if err != nil {
		return nil, err
	}
	if resultID != nil {
		s.Result = &ResultSummary{ID: *resultID}
		if createdBy != nil {
			s.Result.CreatedBy = *createdBy
		}
		if createdAt != nil {
			s.Result.CreatedAt = *createdAt
		}
		if comment != nil {
			s.Result.Comment = *comment
		}
		if status != nil {
			s.Result.Status = *status
		}
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Sample) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_collected_sample (queue_id, sample_type, collected_by, collected_at, container_label, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		s.QueueID, s.SampleType, s.CollectedBy, s.CollectedAt, s.ContainerLabel, string(s.Status)).Scan(&s.ID)
	return db.MapError(err, "sample", s.QueueID)
}

func (r *repoPG) get(ctx context.Context, id int64, suffix string) (*Sample, error) {
	b := sampleBase().Columns(sampleCols...).Where("smp.id = ?", id)
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	s, err := scanSample(r.conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.MapError(err, "sample", id)
	}
	return s, nil
}

func (r *repoPG) Get(ctx context.Context, id int64) (*Sample, error) {
	return r.get(ctx, id, "")
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Sample, error) {
	return r.get(ctx, id, "FOR UPDATE OF smp")
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Sample, int, error) {
	b := sampleBase()
	if f.LabID != nil {
		b = b.Where("s.lab_id = ?", *f.LabID)
	}
	if f.BookingID != nil {
		b = b.Where("d.booking_id = ?", *f.BookingID)
	}
	if f.From != nil {
		b = b.Where("smp.collected_at >= ?", *f.From)
	}
	if f.To != nil {
		b = b.Where("smp.collected_at < ?", *f.To)
	}
	if f.Status != nil {
		b = b.Where("smp.status = ?", string(*f.Status))
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
		return nil, 0, db.MapError(err, "sample", nil)
	}

	query, args, err := b.Columns(sampleCols...).OrderBy("smp.collected_at DESC", "smp.id DESC").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	samples, err := r.query(ctx, query, args...)
	return samples, total, err
}

func (r *repoPG) ListByQueue(ctx context.Context, queueID int64) ([]*Sample, error) {
	query, args, err := sampleBase().Columns(sampleCols...).
		Where("smp.queue_id = ?", queueID).OrderBy("smp.id").ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *repoPG) ListByBooking(ctx context.Context, bookingID int64) ([]*Sample, error) {
	query, args, err := sampleBase().Columns(sampleCols...).
		Where("d.booking_id = ?", bookingID).OrderBy("smp.id").ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *repoPG) query(ctx context.Context, query string, args ...any) ([]*Sample, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "sample", nil)
	}
	defer rows.Close()

	var out []*Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_collected_sample SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return db.MapError(err, "sample", id)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("sample", id)
	}
	return nil
}

func (r *repoPG) HasResult(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lab_sample_result WHERE sample_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, db.MapError(err, "sample", id)
	}
	return exists, nil
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_collected_sample WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError(err, "sample", id)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("sample", id)
	}
	return nil
}
