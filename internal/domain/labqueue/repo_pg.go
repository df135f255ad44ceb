package labqueue

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

var entryCols = []string{
	"q.id", "q.lab_service_id", "q.booking_detail_id", "d.booking_id", "q.scheduled_at",
	"q.status", "q.priority", "s.lab_id", "s.name", "l.name",
	"b.client_first_name", "b.client_last_name",
}

func entryBase() sq.SelectBuilder {
	return db.PSQL.Select().
		From("lab_queue q").
		Join("service_booking_detail d ON d.id = q.booking_detail_id").
		Join("service_booking b ON b.id = d.booking_id").
		Join("lab_service s ON s.id = q.lab_service_id").
		Join("laboratory l ON l.id = s.lab_id")
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.LabServiceID, &e.BookingDetailID, &e.BookingID, &e.ScheduledAt,
		&e.Status, &e.Priority, &e.LabID, &e.LabServiceName, &e.LabName,
		&e.ClientFirstName, &e.ClientLastName)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_queue (lab_service_id, booking_detail_id, scheduled_at, status, priority)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.LabServiceID, e.BookingDetailID, e.ScheduledAt, string(e.Status), string(e.Priority)).Scan(&e.ID)
	return db.MapError(err, "queue entry", e.BookingDetailID)
}

func (r *repoPG) get(ctx context.Context, id int64, suffix string) (*Entry, error) {
	b := entryBase().Columns(entryCols...).Where("q.id = ?", id)
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, db.MapError(err, "queue entry", id)
	}
	return e, nil
}

func (r *repoPG) Get(ctx context.Context, id int64) (*Entry, error) {
	return r.get(ctx, id, "")
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Entry, error) {
	return r.get(ctx, id, "FOR UPDATE OF q")
}

func applyFilter(b sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.LabID != nil {
		b = b.Where("s.lab_id = ?", *f.LabID)
	}
	if f.BookingID != nil {
		b = b.Where("d.booking_id = ?", *f.BookingID)
	}
	if f.From != nil {
		b = b.Where("q.scheduled_at >= ?", *f.From)
	}
	if f.To != nil {
		b = b.Where("q.scheduled_at < ?", *f.To)
	}
	if f.Keyword != "" {
		b = b.Where(db.ILikeAny(f.Keyword, "s.name", "l.name", "b.client_first_name", "b.client_last_name"))
	}
	return b
}

func (r *repoPG) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	query, args, err := b.Column("COUNT(*)").ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, db.MapError(err, "queue entry", nil)
	}
	return n, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) (*ListResult, error) {
	filtered := applyFilter(entryBase(), f)

	processed, err := r.count(ctx, filtered.Where("q.status = ?", string(StatusProcessed)))
	if err != nil {
		return nil, err
	}

	page := filtered
	if !f.AllStatuses && f.Status != nil {
		page = page.Where("q.status = ?", string(*f.Status))
	}
	total, err := r.count(ctx, page)
	if err != nil {
		return nil, err
	}

	query, args, err := page.Columns(entryCols...).OrderBy("q.id DESC").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, err
	}
	entries, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &ListResult{Entries: entries, Total: total, TotalProcessed: processed}, nil
}

func (r *repoPG) ListByBooking(ctx context.Context, bookingID int64) ([]*Entry, error) {
	query, args, err := entryBase().Columns(entryCols...).
		Where("d.booking_id = ?", bookingID).OrderBy("q.id").ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *repoPG) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "queue entry", nil)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) exec(ctx context.Context, id int64, query string, args ...any) error {
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return db.MapError(err, "queue entry", id)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("queue entry", id)
	}
	return nil
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, status Status) error {
	return r.exec(ctx, id, `UPDATE lab_queue SET status = $1 WHERE id = $2`, string(status), id)
}

func (r *repoPG) SetPriority(ctx context.Context, id int64, p Priority) error {
	return r.exec(ctx, id, `UPDATE lab_queue SET priority = $1 WHERE id = $2`, string(p), id)
}

func (r *repoPG) SetScheduledAt(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, id, `UPDATE lab_queue SET scheduled_at = $1 WHERE id = $2`, at, id)
}

func (r *repoPG) HasSamples(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lab_collected_sample WHERE queue_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, db.MapError(err, "queue entry", id)
	}
	return exists, nil
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_queue WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError(err, "queue entry", id)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("queue entry", id)
	}
	return nil
}
