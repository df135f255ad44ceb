package labanalytics

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/db"
)

type repoPG struct{ pool db.Querier }

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

// CompletionRows runs on the caller's transaction when there is one, so a
// result written moments earlier is counted.
func (r *repoPG) CompletionRows(ctx context.Context, bookingID int64) ([]CompletionRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT d.id, q.status, smp.status
		FROM service_booking_detail d
		LEFT JOIN lab_queue q ON q.booking_detail_id = d.id
		LEFT JOIN LATERAL (
			SELECT s.status FROM lab_collected_sample s
			WHERE s.queue_id = q.id ORDER BY s.id LIMIT 1
		) smp ON true
		WHERE d.booking_id = $1
		ORDER BY d.id`, bookingID)
	if err != nil {
		return nil, db.MapError(err, "booking", bookingID)
	}
	defer rows.Close()

	var out []CompletionRow
	for rows.Next() {
		var (
			row          CompletionRow
			queueStatus  *string
			sampleStatus *string
		)
		if err := rows.Scan(&row.DetailID, &queueStatus, &sampleStatus); err != nil {
			return nil, fmt.Errorf("scan completion row: %w", err)
		}
		if queueStatus != nil {
			st := labqueue.Status(*queueStatus)
			row.QueueStatus = &st
		}
		if sampleStatus != nil {
			st := labsample.Status(*sampleStatus)
			row.SampleStatus = &st
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) ProcessingRows(ctx context.Context, f ProcessingFilter) ([]ProcessingRow, error) {
	b := db.PSQL.Select(
		"b.transaction_id", "d.booking_id", "q.scheduled_at",
		"smp.collected_at", "res.created_at", "v.verified_at",
		"s.name", "s.est_turn_around_time",
	).
		From("lab_queue q").
		Join("lab_service s ON s.id = q.lab_service_id").
		Join("service_booking_detail d ON d.id = q.booking_detail_id").
		Join("service_booking b ON b.id = d.booking_id")

	if f.IncludeIncomplete {
		b = b.LeftJoin("lab_collected_sample smp ON smp.queue_id = q.id").
			LeftJoin("lab_sample_result res ON res.sample_id = smp.id").
			LeftJoin("lab_verified_result v ON v.result_id = res.id")
	} else {
		b = b.Join("lab_collected_sample smp ON smp.queue_id = q.id").
			Join("lab_sample_result res ON res.sample_id = smp.id").
			Join("lab_verified_result v ON v.result_id = res.id")
	}

	// A lab filter wins over a service filter.
	if f.LabID != nil {
		b = b.Where("s.lab_id = ?", *f.LabID)
	} else if f.LabServiceID != nil {
		b = b.Where("s.id = ?", *f.LabServiceID)
	}
	if f.From != nil {
		b = b.Where("q.scheduled_at >= ?", *f.From)
	}
	if f.To != nil {
		b = b.Where("q.scheduled_at < ?", *f.To)
	}

	query, args, err := b.OrderBy("q.scheduled_at", "q.id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "processing time", nil)
	}
	defer rows.Close()

	var out []ProcessingRow
	for rows.Next() {
		var row ProcessingRow
		if err := rows.Scan(&row.TransactionID, &row.BookingID, &row.BookingTime,
			&row.CollectedAt, &row.ResultProcessedAt, &row.VerifiedAt,
			&row.LabServiceName, &row.EstTurnAroundTime); err != nil {
			return nil, fmt.Errorf("scan processing row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) BookingTimes(ctx context.Context, f ThroughputFilter) ([]BookingTime, error) {
	b := db.PSQL.Select("s.name", "t.transaction_time").
		From("lab_service s").
		Join("service_booking_detail d ON d.lab_service_id = s.id").
		Join("service_booking b ON b.id = d.booking_id").
		Join("service_transaction t ON t.id = b.transaction_id")
	if f.LabID != nil {
		b = b.Where("s.lab_id = ?", *f.LabID)
	}
	if f.LabServiceID != nil {
		b = b.Where("s.id = ?", *f.LabServiceID)
	}
	if f.From != nil {
		b = b.Where(sq.GtOrEq{"t.transaction_time": *f.From})
	}
	if f.To != nil {
		b = b.Where(sq.Lt{"t.transaction_time": *f.To})
	}

	query, args, err := b.OrderBy("t.transaction_time").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "throughput", nil)
	}
	defer rows.Close()

	var out []BookingTime
	for rows.Next() {
		var bt BookingTime
		if err := rows.Scan(&bt.LabServiceName, &bt.TransactionTime); err != nil {
			return nil, fmt.Errorf("scan booking time: %w", err)
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

func (r *repoPG) BookingsPerService(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT s.name, COUNT(d.id)
		FROM lab_service s
		JOIN service_booking_detail d ON d.lab_service_id = s.id
		GROUP BY s.name`)
	if err != nil {
		return nil, db.MapError(err, "bookings per service", nil)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan bookings per service: %w", err)
		}
		out[name] = count
	}
	return out, rows.Err()
}
