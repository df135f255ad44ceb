package labresult

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labregistry"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/telemetry"
)

// SampleTracker is the part of the sample tracker results drive.
type SampleTracker interface {
	Get(ctx context.Context, id int64) (*labsample.Sample, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]*labsample.Sample, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkProcessing(ctx context.Context, id int64) error
	InvalidateListings(ctx context.Context)
}

type QueueWorkflow interface {
	Get(ctx context.Context, id int64) (*labqueue.Entry, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]*labqueue.Entry, error)
	Advance(ctx context.Context, id int64, ev labqueue.Event) (*labqueue.Entry, error)
}

type ParameterCatalog interface {
	ParameterExists(ctx context.Context, id int64) error
	Parameters(ctx context.Context, ids []int64) (map[int64]*labregistry.Parameter, error)
}

// CompletionCalculator reports how much of a booking is complete, 0 to 100.
type CompletionCalculator interface {
	ComputeCompletionPercentage(ctx context.Context, bookingID int64) (float64, error)
}

// Deps are the collaborators the workflow reads from and writes through.
type Deps struct {
	Samples    SampleTracker
	Queue      QueueWorkflow
	Params     ParameterCatalog
	Completion CompletionCalculator
	Ledger     booking.Ledger
	Actors     booking.ActorDirectory
}

type Service struct {
	repo       Repository
	samples    SampleTracker
	queue      QueueWorkflow
	params     ParameterCatalog
	completion CompletionCalculator
	ledger     booking.Ledger
	actors     booking.ActorDirectory
	tx         db.UnitOfWork
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

func NewService(repo Repository, deps Deps, tx db.UnitOfWork, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		samples:    deps.Samples,
		queue:      deps.Queue,
		params:     deps.Params,
		completion: deps.Completion,
		ledger:     deps.Ledger,
		actors:     deps.Actors,
		tx:         tx,
		metrics:    metrics,
		logger:     logger.With().Str("component", "results").Logger(),
	}
}

type CreateRequest struct {
	SampleID  int64  `json:"sample_id" validate:"required"`
	CreatedBy string `json:"created_by"`
	Comment   string `json:"comment"`
	Status    Status `json:"status"`
}

type ReadingInput struct {
	ParameterID int64  `json:"parameter_id" validate:"required"`
	Value       string `json:"parameter_value" validate:"required"`
}

// SubmitRequest is a result together with its readings.
type SubmitRequest struct {
	CreateRequest
	Readings []ReadingInput `json:"readings" validate:"dive"`
}

// CreateResult stores a result for the sample. A second result for the same
// sample is a ConflictError. It does not touch the sample status.
func (s *Service) CreateResult(ctx context.Context, req CreateRequest) (*Result, error) {
	status, err := parseStatus("status", string(req.Status), StatusReady)
	if err != nil {
		return nil, err
	}
	if req.CreatedBy == "" {
		return nil, apperror.Validation("created_by", "is required")
	}
	if _, err := s.samples.Get(ctx, req.SampleID); err != nil {
		return nil, err
	}
	res := &Result{
		SampleID:  req.SampleID,
		CreatedBy: req.CreatedBy,
		Comment:   req.Comment,
		Status:    status,
	}
	if err := s.repo.CreateResult(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// AddReading records one parameter value for the sample. The value is kept
// as text whatever the parameter type.
func (s *Service) AddReading(ctx context.Context, sampleID int64, in ReadingInput) (*Reading, error) {
	if in.Value == "" {
		return nil, apperror.Validation("parameter_value", "is required")
	}
	if _, err := s.samples.Get(ctx, sampleID); err != nil {
		return nil, err
	}
	if err := s.params.ParameterExists(ctx, in.ParameterID); err != nil {
		return nil, err
	}
	rd := &Reading{SampleID: sampleID, ParameterID: in.ParameterID, Value: in.Value}
	if err := s.repo.CreateReading(ctx, rd); err != nil {
		return nil, err
	}
	return rd, nil
}

// AddResultReading adds a reading to the sample behind resultID.
func (s *Service) AddResultReading(ctx context.Context, resultID int64, in ReadingInput) (*Reading, error) {
	res, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	rd, err := s.AddReading(ctx, res.SampleID, in)
	s.metrics.Operation("reading.add", err)
	if err != nil {
		return nil, err
	}
	s.samples.InvalidateListings(ctx)
	return rd, nil
}

// DeleteResult removes the sample's readings, reverts the sample to
// Processing and deletes the result, all in one transaction.
func (s *Service) DeleteResult(ctx context.Context, id int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.repo.GetResult(ctx, id)
		if err != nil {
			return err
		}
		return s.deleteResult(ctx, res)
	})
	if err == nil {
		s.samples.InvalidateListings(ctx)
	}
	return err
}

func (s *Service) deleteResult(ctx context.Context, res *Result) error {
	n, err := s.repo.DeleteReadings(ctx, res.SampleID)
	if err != nil {
		return err
	}
	if err := s.samples.MarkProcessing(ctx, res.SampleID); err != nil {
		return err
	}
	if err := s.repo.DeleteResult(ctx, res.ID); err != nil {
		return err
	}
	s.logger.Info().Int64("result_id", res.ID).Int64("sample_id", res.SampleID).
		Int64("readings", n).Msg("result deleted")
	return nil
}
