package labresult

import (
	"context"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/platform/apperror"
)

// SubmitResult stores the result and its readings, marks the sample
// Processed, completes the queue entry and, once every booked service is
// complete, moves the booking to Processed. Everything commits together.
func (s *Service) SubmitResult(ctx context.Context, req SubmitRequest) (*Result, error) {
	seen := make(map[int64]bool, len(req.Readings))
	for _, in := range req.Readings {
		if seen[in.ParameterID] {
			return nil, apperror.Validation("readings", "parameter %d is repeated", in.ParameterID)
		}
		seen[in.ParameterID] = true
	}

	var (
		created    *Result
		completion float64
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		smp, err := s.samples.Get(ctx, req.SampleID)
		if err != nil {
			return err
		}
		res, err := s.CreateResult(ctx, req.CreateRequest)
		if err != nil {
			return err
		}
		for _, in := range req.Readings {
			if _, err := s.AddReading(ctx, smp.ID, in); err != nil {
				return err
			}
		}
		if err := s.samples.MarkProcessed(ctx, smp.ID); err != nil {
			return err
		}

		entry, err := s.queue.Get(ctx, smp.QueueID)
		if err != nil {
			return err
		}
		if entry.Status == labqueue.StatusWaiting {
			if _, err := s.queue.Advance(ctx, entry.ID, labqueue.EventStart); err != nil {
				return err
			}
		}
		if _, err := s.queue.Advance(ctx, entry.ID, labqueue.EventComplete); err != nil {
			return err
		}

		completion, err = s.completion.ComputeCompletionPercentage(ctx, entry.BookingID)
		if err != nil {
			return err
		}
		if completion >= 100 {
			if err := s.setBookingStatus(ctx, entry.BookingID, booking.StatusProcessed); err != nil {
				return err
			}
		}
		created, err = s.repo.GetResult(ctx, res.ID)
		return err
	})
	s.metrics.Operation("result.submit", err)
	if err != nil {
		return nil, err
	}
	s.samples.InvalidateListings(ctx)
	s.logger.Info().Int64("result_id", created.ID).Int64("sample_id", created.SampleID).
		Int64("booking_id", created.BookingID).Int("readings", len(req.Readings)).
		Float64("completion", completion).Msg("result submitted")
	return created, nil
}

// RemoveResult deletes the result, reopens the queue entry and takes the
// booking back to Processing when it had been completed or verified.
func (s *Service) RemoveResult(ctx context.Context, id int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.repo.GetResult(ctx, id)
		if err != nil {
			return err
		}
		b, err := s.ledger.LockForUpdate(ctx, res.BookingID)
		if err != nil {
			return err
		}
		if err := s.deleteResult(ctx, res); err != nil {
			return err
		}
		entry, err := s.queue.Get(ctx, res.QueueID)
		if err != nil {
			return err
		}
		if entry.Status == labqueue.StatusProcessed {
			if _, err := s.queue.Advance(ctx, entry.ID, labqueue.EventRevert); err != nil {
				return err
			}
		}
		if b.Status == booking.StatusProcessed || b.Status == booking.StatusVerified {
			return s.setBookingStatus(ctx, b.ID, booking.StatusProcessing)
		}
		return nil
	})
	s.metrics.Operation("result.remove", err)
	if err != nil {
		return err
	}
	s.samples.InvalidateListings(ctx)
	return nil
}

type VerifyRequest struct {
	VerifiedBy string `json:"verified_by"`
	Comment    string `json:"comment"`
	Status     Status `json:"status"`
}

// VerifyResult attests the result. When it was the last unverified result
// of its booking, the booking becomes All Verified. The booking row is
// locked first so concurrent verifications of one booking serialize.
func (s *Service) VerifyResult(ctx context.Context, resultID int64, req VerifyRequest) (*Verification, error) {
	status, err := parseStatus("status", string(req.Status), StatusIssued)
	if err != nil {
		return nil, err
	}
	if req.VerifiedBy == "" {
		return nil, apperror.Validation("verified_by", "is required")
	}

	var (
		v           *Verification
		allVerified bool
		bookingID   int64
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.repo.GetResult(ctx, resultID)
		if err != nil {
			return err
		}
		bookingID = res.BookingID
		b, err := s.ledger.LockForUpdate(ctx, res.BookingID)
		if err != nil {
			return err
		}
		v = &Verification{ResultID: resultID, VerifiedBy: req.VerifiedBy, Comment: req.Comment, Status: status}
		if err := s.repo.CreateVerification(ctx, v); err != nil {
			return err
		}

		samples, verified, err := s.repo.VerificationProgress(ctx, res.BookingID)
		if err != nil {
			return err
		}
		allVerified = samples > 0 && verified == samples
		if allVerified && b.Status != booking.StatusVerified {
			return s.setBookingStatus(ctx, b.ID, booking.StatusVerified)
		}
		return nil
	})
	s.metrics.Operation("result.verify", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("result_id", resultID).Int64("booking_id", bookingID).
		Bool("all_verified", allVerified).Msg("result verified")
	return v, nil
}

// ArchiveBooking files the booking's results. The booking's current status
// is kept on the log row and the booking moves to Processed. Archiving an
// archived booking returns the existing log row.
func (s *Service) ArchiveBooking(ctx context.Context, bookingID int64, actor string) (*LogEntry, error) {
	if actor == "" {
		return nil, apperror.Validation("logged_by", "is required")
	}
	var entry *LogEntry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.ledger.LockForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		entry = &LogEntry{BookingID: bookingID, Action: StatusArchived, LoggedBy: actor, PriorStatus: b.Status}
		created, err := s.repo.CreateLog(ctx, entry)
		if err != nil {
			return err
		}
		if !created {
			entry, err = s.archiveEntry(ctx, bookingID)
			return err
		}
		return s.setBookingStatus(ctx, bookingID, booking.StatusProcessed)
	})
	s.metrics.Operation("booking.archive", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", bookingID).Str("logged_by", actor).Msg("booking archived")
	return entry, nil
}

func (s *Service) archiveEntry(ctx context.Context, bookingID int64) (*LogEntry, error) {
	entries, err := s.repo.ListLog(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for _, l := range entries {
		if l.Action == StatusArchived {
			return l, nil
		}
	}
	return nil, apperror.NotFound("archive log", bookingID)
}

// UnarchiveBooking removes the archive row and restores the status the
// booking had before it was archived.
func (s *Service) UnarchiveBooking(ctx context.Context, bookingID int64) error {
	var restored booking.Status
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.LockForUpdate(ctx, bookingID); err != nil {
			return err
		}
		l, err := s.repo.DeleteLog(ctx, bookingID, StatusArchived)
		if err != nil {
			return err
		}
		restored = l.PriorStatus
		if !restored.Valid() {
			restored = booking.StatusProcessing
		}
		return s.setBookingStatus(ctx, bookingID, restored)
	})
	s.metrics.Operation("booking.unarchive", err)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("booking_id", bookingID).Str("restored", string(restored)).Msg("booking unarchived")
	return nil
}

func (s *Service) setBookingStatus(ctx context.Context, bookingID int64, status booking.Status) error {
	if err := s.ledger.SetStatus(ctx, bookingID, status); err != nil {
		return err
	}
	s.metrics.Transition("booking", string(status))
	return nil
}
