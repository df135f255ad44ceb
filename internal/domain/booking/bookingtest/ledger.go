// Package bookingtest provides an in-memory booking.Ledger for service tests.
package bookingtest

import (
	"context"
	"sync"
	"time"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/platform/apperror"
)

type Ledger struct {
	mu        sync.Mutex
	nextID    int64
	Bookings  map[int64]*booking.Booking
	Details   map[int64]*booking.Detail
	Referrals map[int64]*booking.Referral
	// StatusWrites records every SetStatus call in order.
	StatusWrites []booking.Status
}

func NewLedger() *Ledger {
	return &Ledger{
		nextID:    1000,
		Bookings:  map[int64]*booking.Booking{},
		Details:   map[int64]*booking.Detail{},
		Referrals: map[int64]*booking.Referral{},
	}
}

// AddBooking registers booking id with one detail per lab service and
// returns the detail ids in order.
func (l *Ledger) AddBooking(id int64, txTime time.Time, labServiceIDs ...int64) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Bookings[id] = &booking.Booking{
		ID:              id,
		TransactionID:   id,
		TransactionTime: txTime,
		ClientFirstName: "Test",
		ClientLastName:  "Client",
		Status:          booking.StatusProcessing,
	}
	ids := make([]int64, 0, len(labServiceIDs))
	for _, svc := range labServiceIDs {
		l.nextID++
		l.Details[l.nextID] = &booking.Detail{ID: l.nextID, BookingID: id, LabServiceID: svc}
		ids = append(ids, l.nextID)
	}
	return ids
}

func (l *Ledger) Get(_ context.Context, id int64) (*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.Bookings[id]
	if !ok {
		return nil, apperror.NotFound("booking", id)
	}
	cp := *b
	return &cp, nil
}

func (l *Ledger) LockForUpdate(ctx context.Context, id int64) (*booking.Booking, error) {
	return l.Get(ctx, id)
}

func (l *Ledger) SetStatus(_ context.Context, id int64, status booking.Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.Bookings[id]
	if !ok {
		return apperror.NotFound("booking", id)
	}
	b.Status = status
	l.StatusWrites = append(l.StatusWrites, status)
	return nil
}

func (l *Ledger) GetDetail(_ context.Context, id int64) (*booking.Detail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.Details[id]
	if !ok {
		return nil, apperror.NotFound("booking detail", id)
	}
	cp := *d
	return &cp, nil
}

func (l *Ledger) ListDetails(_ context.Context, bookingID int64) ([]*booking.Detail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*booking.Detail
	for id := int64(0); id <= l.nextID; id++ {
		if d, ok := l.Details[id]; ok && d.BookingID == bookingID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *Ledger) DeleteDetail(_ context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.Details, id)
	return nil
}

func (l *Ledger) ReferralForTransaction(_ context.Context, txID int64) (*booking.Referral, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Referrals[txID], nil
}

func (l *Ledger) Status(id int64) booking.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.Bookings[id]; ok {
		return b.Status
	}
	return ""
}

// Directory is a fixed booking.ActorDirectory.
type Directory map[string]string

func (d Directory) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

// Tx runs fn directly and counts the calls.
type Tx struct{ Calls int }

func (t *Tx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.Calls++
	return fn(ctx)
}
