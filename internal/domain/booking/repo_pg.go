package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/db"
)

type ledgerPG struct{ pool db.Querier }

func NewLedgerPG(pool db.Querier) Ledger {
	return &ledgerPG{pool: pool}
}

func (r *ledgerPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const bookingSelect = `SELECT b.id, b.transaction_id, t.transaction_time,
	b.client_first_name, b.client_last_name, b.booking_status
	FROM service_booking b
	JOIN service_transaction t ON t.id = b.transaction_id
	WHERE b.id = $1`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.TransactionID, &b.TransactionTime,
		&b.ClientFirstName, &b.ClientLastName, &b.Status)
	return &b, err
}

func (r *ledgerPG) Get(ctx context.Context, bookingID int64) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, bookingSelect, bookingID))
	if err != nil {
		return nil, db.MapError(err, "booking", bookingID)
	}
	return b, nil
}

func (r *ledgerPG) LockForUpdate(ctx context.Context, bookingID int64) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, bookingSelect+` FOR UPDATE OF b`, bookingID))
	if err != nil {
		return nil, db.MapError(err, "booking", bookingID)
	}
	return b, nil
}

func (r *ledgerPG) SetStatus(ctx context.Context, bookingID int64, status Status) error {
	if !status.Valid() {
		return apperror.Validation("booking_status", "unknown status %q", status)
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE service_booking SET booking_status = $1 WHERE id = $2`, string(status), bookingID)
	if err != nil {
		return db.MapError(err, "booking", bookingID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("booking", bookingID)
	}
	return nil
}

func (r *ledgerPG) GetDetail(ctx context.Context, detailID int64) (*Detail, error) {
	var d Detail
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, booking_id, lab_service_id FROM service_booking_detail WHERE id = $1`, detailID).
		Scan(&d.ID, &d.BookingID, &d.LabServiceID)
	if err != nil {
		return nil, db.MapError(err, "booking detail", detailID)
	}
	return &d, nil
}

func (r *ledgerPG) ListDetails(ctx context.Context, bookingID int64) ([]*Detail, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, booking_id, lab_service_id FROM service_booking_detail
		WHERE booking_id = $1 ORDER BY id`, bookingID)
	if err != nil {
		return nil, db.MapError(err, "booking detail", nil)
	}
	defer rows.Close()

	var out []*Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.BookingID, &d.LabServiceID); err != nil {
			return nil, fmt.Errorf("scan booking detail: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *ledgerPG) DeleteDetail(ctx context.Context, detailID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM service_booking_detail WHERE id = $1`, detailID)
	return db.MapDeleteError(err, "booking detail", detailID)
}

func (r *ledgerPG) ReferralForTransaction(ctx context.Context, transactionID int64) (*Referral, error) {
	var ref Referral
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, transaction_id, referred_by, facility, note FROM referral
		WHERE transaction_id = $1 ORDER BY id DESC LIMIT 1`, transactionID).
		Scan(&ref.ID, &ref.TransactionID, &ref.ReferredBy, &ref.Facility, &ref.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.MapError(err, "referral", transactionID)
	}
	return &ref, nil
}

type actorDirectoryPG struct{ pool db.Querier }

func NewActorDirectoryPG(pool db.Querier) ActorDirectory {
	return &actorDirectoryPG{pool: pool}
}

func (r *actorDirectoryPG) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := db.QuerierFrom(ctx, r.pool).Query(ctx,
		`SELECT id, display_name FROM actor WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, db.MapError(err, "actor", nil)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}
