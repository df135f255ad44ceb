package labsample

import "context"

type Repository interface {
	Create(ctx context.Context, s *Sample) error
	Get(ctx context.Context, id int64) (*Sample, error)
	GetForUpdate(ctx context.Context, id int64) (*Sample, error)
	List(ctx context.Context, f Filter) ([]*Sample, int, error)
	ListByQueue(ctx context.Context, queueID int64) ([]*Sample, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]*Sample, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	HasResult(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}
