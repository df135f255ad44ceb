package labqueue

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id int64) (*Entry, error)
	// GetForUpdate locks the queue row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*Entry, error)
	List(ctx context.Context, f Filter) (*ListResult, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]*Entry, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	SetPriority(ctx context.Context, id int64, p Priority) error
	SetScheduledAt(ctx context.Context, id int64, at time.Time) error
	HasSamples(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}
