package labsample

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/cache"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/telemetry"
	"github.com/labflow/labflow/pkg/pagination"
)

const (
	listingNamespace = "samples"
	listingPrefix    = listingNamespace + ":"
)

// QueueWorkflow is the part of the queue ledger samples drive.
type QueueWorkflow interface {
	Get(ctx context.Context, id int64) (*labqueue.Entry, error)
	Advance(ctx context.Context, id int64, ev labqueue.Event) (*labqueue.Entry, error)
}

type Service struct {
	repo    Repository
	queue   QueueWorkflow
	actors  booking.ActorDirectory
	cache   *cache.Cache
	tx      db.UnitOfWork
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

func NewService(repo Repository, queue QueueWorkflow, actors booking.ActorDirectory, c *cache.Cache,
	tx db.UnitOfWork, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		queue:   queue,
		actors:  actors,
		cache:   c,
		tx:      tx,
		metrics: metrics,
		logger:  logger.With().Str("component", "samples").Logger(),
	}
}

type AddRequest struct {
	QueueID        int64      `json:"queue_id" validate:"required"`
	SampleType     string     `json:"sample_type" validate:"required"`
	CollectedBy    string     `json:"collected_by"`
	ContainerLabel string     `json:"container_label"`
	CollectedAt    *time.Time `json:"collected_at"`
}

func ListSampleTypes() []SampleType {
	return SampleTypes()
}

// AddSample records a collected specimen. It does not move the queue entry.
func (s *Service) AddSample(ctx context.Context, req AddRequest) (*Sample, error) {
	sampleType, err := NormalizeSampleType(req.SampleType)
	if err != nil {
		return nil, err
	}
	if req.CollectedBy == "" {
		return nil, apperror.Validation("collected_by", "is required")
	}
	if _, err := s.queue.Get(ctx, req.QueueID); err != nil {
		return nil, err
	}

	smp := &Sample{
		QueueID:        req.QueueID,
		SampleType:     sampleType,
		CollectedBy:    req.CollectedBy,
		CollectedAt:    time.Now().UTC(),
		ContainerLabel: req.ContainerLabel,
		Status:         StatusProcessing,
	}
	if req.CollectedAt != nil {
		smp.CollectedAt = req.CollectedAt.UTC()
	}
	if err := s.repo.Create(ctx, smp); err != nil {
		return nil, err
	}
	return smp, nil
}

// CollectSample adds the sample and starts the queue entry in one
// transaction.
func (s *Service) CollectSample(ctx context.Context, req AddRequest) (*Sample, error) {
	var created *Sample
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		smp, err := s.AddSample(ctx, req)
		if err != nil {
			return err
		}
		if _, err := s.queue.Advance(ctx, smp.QueueID, labqueue.EventStart); err != nil {
			return err
		}
		created, err = s.repo.Get(ctx, smp.ID)
		return err
	})
	s.metrics.Operation("sample.collect", err)
	if err != nil {
		return nil, err
	}
	s.InvalidateListings(ctx)
	s.logger.Info().Int64("sample_id", created.ID).Int64("queue_id", created.QueueID).
		Str("sample_type", created.SampleType).Msg("sample collected")
	return created, nil
}

// List returns a page of samples, served from the cache unless refresh is
// set.
func (s *Service) List(ctx context.Context, f Filter, refresh bool) (*Page, error) {
	if f.Limit <= 0 {
		f.Limit = pagination.DefaultLimit
	}
	return cache.Fetch(ctx, s.cache, f.cacheKey(), refresh, func(ctx context.Context) (*Page, error) {
		samples, total, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, err
		}
		if err := s.enrich(ctx, samples); err != nil {
			return nil, err
		}
		if samples == nil {
			samples = []*Sample{}
		}
		return &Page{Samples: samples, Total: total}, nil
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*Sample, error) {
	smp, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, []*Sample{smp}); err != nil {
		return nil, err
	}
	return smp, nil
}

func (s *Service) ListByQueue(ctx context.Context, queueID int64) ([]*Sample, error) {
	return s.repo.ListByQueue(ctx, queueID)
}

func (s *Service) ListByBooking(ctx context.Context, bookingID int64) ([]*Sample, error) {
	samples, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return samples, s.enrich(ctx, samples)
}

func (s *Service) enrich(ctx context.Context, samples []*Sample) error {
	if len(samples) == 0 || s.actors == nil {
		return nil
	}
	seen := map[string]bool{}
	var ids []string
	for _, smp := range samples {
		if !seen[smp.CollectedBy] {
			seen[smp.CollectedBy] = true
			ids = append(ids, smp.CollectedBy)
		}
	}
	names, err := s.actors.DisplayNames(ctx, ids)
	if err != nil {
		return err
	}
	for _, smp := range samples {
		smp.CollectorName = names[smp.CollectedBy]
	}
	return nil
}

// DeleteSample reverts a Processed queue entry to Processing and deletes the
// sample. It does not look for a result; use RemoveSample for that.
func (s *Service) DeleteSample(ctx context.Context, id int64) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		smp, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		entry, err := s.queue.Get(ctx, smp.QueueID)
		if err != nil {
			return err
		}
		if entry.Status == labqueue.StatusProcessed {
			if _, err := s.queue.Advance(ctx, entry.ID, labqueue.EventRevert); err != nil {
				return err
			}
		}
		return s.repo.Delete(ctx, id)
	})
}

// RemoveSample deletes a sample that has no result. A sample with a result
// yields a ConflictError.
func (s *Service) RemoveSample(ctx context.Context, id int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		has, err := s.repo.HasResult(ctx, id)
		if err != nil {
			return err
		}
		if has {
			return apperror.Conflict("sample", "result exists")
		}
		return s.DeleteSample(ctx, id)
	})
	s.metrics.Operation("sample.remove", err)
	if err != nil {
		return err
	}
	s.InvalidateListings(ctx)
	s.logger.Info().Int64("sample_id", id).Msg("sample removed")
	return nil
}

func (s *Service) MarkProcessed(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusProcessed)
}

func (s *Service) MarkProcessing(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusProcessing)
}

func (s *Service) setStatus(ctx context.Context, id int64, status Status) error {
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.metrics.Transition("sample", string(status))
	return nil
}

// InvalidateListings drops every cached sample page. Failures are logged;
// entries expire with the cache TTL regardless.
func (s *Service) InvalidateListings(ctx context.Context) {
	if err := s.cache.InvalidatePrefix(ctx, listingPrefix); err != nil {
		s.logger.Warn().Err(err).Msg("sample listing invalidation failed")
	}
}
