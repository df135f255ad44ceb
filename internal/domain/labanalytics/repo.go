package labanalytics

import "context"

// Repository reads the rows the analytics are computed from. Aggregation
// and period bucketing happen in Go.
type Repository interface {
	CompletionRows(ctx context.Context, bookingID int64) ([]CompletionRow, error)
	ProcessingRows(ctx context.Context, f ProcessingFilter) ([]ProcessingRow, error)
	BookingTimes(ctx context.Context, f ThroughputFilter) ([]BookingTime, error)
	BookingsPerService(ctx context.Context) (map[string]int, error)
}
