package labqueue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/telemetry"
	"github.com/labflow/labflow/pkg/pagination"
)

type Service struct {
	repo    Repository
	ledger  booking.Ledger
	tx      db.UnitOfWork
	initial Status
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewService builds the queue ledger. initial is the status new entries
// start in unless the request asks for Waiting or Processing.
func NewService(repo Repository, ledger booking.Ledger, tx db.UnitOfWork, initial Status, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	if initial != StatusWaiting {
		initial = StatusProcessing
	}
	return &Service{
		repo:    repo,
		ledger:  ledger,
		tx:      tx,
		initial: initial,
		metrics: metrics,
		logger:  logger.With().Str("component", "queue").Logger(),
	}
}

type CreateRequest struct {
	BookingDetailID int64      `json:"booking_detail_id" validate:"required"`
	LabServiceID    int64      `json:"lab_service_id"`
	Priority        Priority   `json:"priority"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	Status          Status     `json:"status"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	priority, err := ParsePriority(string(req.Priority))
	if err != nil {
		return nil, err
	}
	status := s.initial
	switch req.Status {
	case "":
	case StatusWaiting, StatusProcessing:
		status = req.Status
	default:
		return nil, apperror.Validation("status", "a new queue entry cannot start as %q", req.Status)
	}

	var created *Entry
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		detail, err := s.ledger.GetDetail(ctx, req.BookingDetailID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Validation("booking_detail_id", "%d is not a booking detail", req.BookingDetailID)
		}
		if err != nil {
			return err
		}
		if req.LabServiceID != 0 && req.LabServiceID != detail.LabServiceID {
			return apperror.Validation("lab_service_id", "booking detail %d books lab service %d", detail.ID, detail.LabServiceID)
		}

		e := &Entry{
			LabServiceID:    detail.LabServiceID,
			BookingDetailID: detail.ID,
			ScheduledAt:     time.Now().UTC(),
			Status:          status,
			Priority:        priority,
		}
		if req.ScheduledAt != nil {
			e.ScheduledAt = req.ScheduledAt.UTC()
		}
		if err := s.repo.Create(ctx, e); err != nil {
			return err
		}
		created, err = s.repo.Get(ctx, e.ID)
		return err
	})
	s.metrics.Operation("queue.create", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("queue_id", created.ID).Int64("booking_id", created.BookingID).
		Str("status", string(created.Status)).Msg("queue entry created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Entry, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of entries. Without an explicit status only
// Processing entries are listed; TotalProcessed ignores the status filter.
func (s *Service) List(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = pagination.DefaultLimit
	}
	if f.Status == nil && !f.AllStatuses {
		st := StatusProcessing
		f.Status = &st
	}
	res, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if res.Entries == nil {
		res.Entries = []*Entry{}
	}
	return res, nil
}

func (s *Service) ListByBooking(ctx context.Context, bookingID int64) ([]*Entry, error) {
	return s.repo.ListByBooking(ctx, bookingID)
}

// UpdateStatus applies the non-nil fields of p. A status change must be a
// legal transition; revert is never accepted here.
func (s *Service) UpdateStatus(ctx context.Context, id int64, p Patch) (*Entry, error) {
	var updated *Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != nil {
			if _, err := ParseStatus(string(*p.Status)); err != nil {
				return err
			}
			ev, ok := eventFor(e.Status, *p.Status)
			if !ok || ev == EventRevert {
				return apperror.Validation("status", "illegal transition %s -> %s", e.Status, *p.Status)
			}
			if ev != "" {
				if err := s.apply(ctx, e, ev); err != nil {
					return err
				}
			}
		}
		if p.Priority != nil {
			pr, err := ParsePriority(string(*p.Priority))
			if err != nil {
				return err
			}
			if err := s.repo.SetPriority(ctx, id, pr); err != nil {
				return err
			}
		}
		if p.ScheduledAt != nil {
			if err := s.repo.SetScheduledAt(ctx, id, p.ScheduledAt.UTC()); err != nil {
				return err
			}
		}
		updated, err = s.repo.Get(ctx, id)
		return err
	})
	s.metrics.Operation("queue.update", err)
	return updated, err
}

func (s *Service) Reprioritize(ctx context.Context, id int64, p Priority) (*Entry, error) {
	if p == "" {
		return nil, apperror.Validation("priority", "is required")
	}
	return s.UpdateStatus(ctx, id, Patch{Priority: &p})
}

// Advance applies ev to the entry inside the caller's transaction, if any.
// Sample and result workflows use it to move the queue along.
func (s *Service) Advance(ctx context.Context, id int64, ev Event) (*Entry, error) {
	var e *Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return s.apply(ctx, e, ev)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) apply(ctx context.Context, e *Entry, ev Event) error {
	to, err := Next(e.Status, ev)
	if err != nil {
		return err
	}
	if to == e.Status {
		return nil
	}
	if err := s.repo.SetStatus(ctx, e.ID, to); err != nil {
		return err
	}
	s.logger.Info().Int64("queue_id", e.ID).Str("from", string(e.Status)).
		Str("to", string(to)).Str("event", string(ev)).Msg("queue transition")
	s.metrics.Transition("queue", string(to))
	e.Status = to
	return nil
}

// Delete removes the entry and its booking detail. It fails with a
// ConflictError while any collected sample references the entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		has, err := s.repo.HasSamples(ctx, id)
		if err != nil {
			return err
		}
		if has {
			return apperror.Conflict("queue entry", "sample exists")
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.ledger.DeleteDetail(ctx, e.BookingDetailID)
	})
	s.metrics.Operation("queue.delete", err)
	if err == nil {
		s.logger.Info().Int64("queue_id", id).Msg("queue entry deleted")
	}
	return err
}
