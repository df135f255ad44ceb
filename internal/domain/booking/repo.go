package booking

import "context"

// Ledger is the narrow contract onto the booking/transaction ledger.
type Ledger interface {
	Get(ctx context.Context, bookingID int64) (*Booking, error)
	// LockForUpdate reads the booking and holds its row lock until the
	// surrounding transaction ends.
	LockForUpdate(ctx context.Context, bookingID int64) (*Booking, error)
	SetStatus(ctx context.Context, bookingID int64, status Status) error
	GetDetail(ctx context.Context, detailID int64) (*Detail, error)
	ListDetails(ctx context.Context, bookingID int64) ([]*Detail, error)
	DeleteDetail(ctx context.Context, detailID int64) error
	// ReferralForTransaction returns nil, nil when the transaction has no referral.
	ReferralForTransaction(ctx context.Context, transactionID int64) (*Referral, error)
}

// ActorDirectory resolves opaque actor ids to display names.
type ActorDirectory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}
