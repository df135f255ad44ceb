package labresult

import "context"

type Repository interface {
	// CreateResult fails with a ConflictError when the sample already has one.
	CreateResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, id int64) (*Result, error)
	ListResults(ctx context.Context, f ListFilter) ([]*Result, int, error)
	ListResultsByBooking(ctx context.Context, bookingID int64) ([]*Result, error)
	DeleteResult(ctx context.Context, id int64) error

	// CreateReading fails with a ConflictError for a repeated parameter.
	CreateReading(ctx context.Context, rd *Reading) error
	ReadingsBySample(ctx context.Context, sampleIDs []int64) (map[int64][]*Reading, error)
	DeleteReadings(ctx context.Context, sampleID int64) (int64, error)

	CreateVerification(ctx context.Context, v *Verification) error
	// VerificationProgress counts the booking's samples and how many of
	// them have a verified result.
	VerificationProgress(ctx context.Context, bookingID int64) (samples, verified int, err error)

	// CreateLog is a no-op when the booking already has a row for the action.
	CreateLog(ctx context.Context, l *LogEntry) (bool, error)
	// DeleteLog removes and returns the row, or NotFoundError.
	DeleteLog(ctx context.Context, bookingID int64, action Status) (*LogEntry, error)
	ListLog(ctx context.Context, bookingID int64) ([]*LogEntry, error)

	// CreateApproval returns the existing approval when the booking has one.
	CreateApproval(ctx context.Context, a *Approval) (*Approval, bool, error)
	GetApproval(ctx context.Context, bookingID int64) (*Approval, error)
	UpdateApproval(ctx context.Context, bookingID int64, p ApprovalPatch) (*Approval, error)
	DeleteApproval(ctx context.Context, bookingID int64) error
}
