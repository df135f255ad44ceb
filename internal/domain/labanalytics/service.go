package labanalytics

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/labflow/labflow/internal/platform/telemetry"
)

type Service struct {
	repo    Repository
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

func NewService(repo Repository, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With().Str("component", "analytics").Logger(),
	}
}

// ComputeCompletionPercentage is the share of the booking's services whose
// queue entry is under way and whose first sample is Processed. A booking
// with no services is 0.
func (s *Service) ComputeCompletionPercentage(ctx context.Context, bookingID int64) (float64, error) {
	rows, err := s.repo.CompletionRows(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, r := range rows {
		if r.complete() {
			done++
		}
	}
	return float64(done) / float64(max(1, len(rows))) * 100, nil
}

// ComputeAverageProcessingTime averages the booking to collection, result
// and verification intervals in minutes.
func (s *Service) ComputeAverageProcessingTime(ctx context.Context, f ProcessingFilter) (*ProcessingMetrics, error) {
	rows, err := s.repo.ProcessingRows(ctx, f)
	if err != nil {
		return nil, err
	}
	return summarize(rows), nil
}

func summarize(rows []ProcessingRow) *ProcessingMetrics {
	m := &ProcessingMetrics{Data: rows, TotalBookings: len(rows)}
	if m.Data == nil {
		m.Data = []ProcessingRow{}
	}
	if len(rows) == 0 {
		return m
	}
	m.EstTurnAroundTime = rows[0].EstTurnAroundTime

	var (
		toCollection, toProcessing, toVerification float64
		nCollection, nProcessing, nVerification    int
	)
	for _, r := range rows {
		if r.CollectedAt != nil {
			toCollection += r.CollectedAt.Sub(r.BookingTime).Seconds()
			nCollection++
		}
		if r.ResultProcessedAt != nil {
			toProcessing += r.ResultProcessedAt.Sub(r.BookingTime).Seconds()
			nProcessing++
		}
		if r.VerifiedAt == nil {
			m.IncompleteChains++
			continue
		}
		secs := r.VerifiedAt.Sub(r.BookingTime).Seconds()
		toVerification += secs
		nVerification++
		if secs <= float64(r.EstTurnAroundTime*60) {
			m.CompletedBeforeEst++
		} else {
			m.CompletedAfterEst++
		}
	}

	m.AvgBookingToCollection = meanMinutes(toCollection, nCollection)
	m.AvgBookingToProcessing = meanMinutes(toProcessing, nProcessing)
	m.AvgBookingToVerification = meanMinutes(toVerification, nVerification)
	m.ComputedEstTurnAroundTime = m.AvgBookingToCollection + m.AvgBookingToProcessing + m.AvgBookingToVerification
	return m
}

func meanMinutes(totalSeconds float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return totalSeconds / float64(n) / 60
}

// GenerateThroughputSeries counts bookings per service and period.
func (s *Service) GenerateThroughputSeries(ctx context.Context, f ThroughputFilter) (Series, error) {
	if _, err := ParseInterval(string(f.Interval)); err != nil {
		return nil, err
	}
	times, err := s.repo.BookingTimes(ctx, f)
	if err != nil {
		return nil, err
	}
	series := Series{}
	for _, bt := range times {
		key, err := PeriodKey(bt.TransactionTime.UTC(), f.Interval)
		if err != nil {
			return nil, err
		}
		if series[bt.LabServiceName] == nil {
			series[bt.LabServiceName] = map[string]int{}
		}
		series[bt.LabServiceName][key]++
	}
	return series, nil
}

func (s *Service) GetTotalBookingsPerService(ctx context.Context) (map[string]int, error) {
	return s.repo.BookingsPerService(ctx)
}

// Dashboard loads the three aggregates concurrently.
func (s *Service) Dashboard(ctx context.Context, pf ProcessingFilter, tf ThroughputFilter) (*Dashboard, error) {
	if tf.Interval == "" {
		tf.Interval = IntervalMonthly
	}
	d := &Dashboard{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.BookingsPerService, err = s.GetTotalBookingsPerService(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Throughput, err = s.GenerateThroughputSeries(gctx, tf)
		return err
	})
	g.Go(func() error {
		var err error
		d.ProcessingTime, err = s.ComputeAverageProcessingTime(gctx, pf)
		return err
	})
	err := g.Wait()
	s.metrics.Operation("analytics.dashboard", err)
	if err != nil {
		return nil, err
	}
	return d, nil
}
