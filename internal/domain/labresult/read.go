package labresult

import (
	"context"
	"errors"
	"sort"

	"github.com/labflow/labflow/internal/domain/labregistry"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/pkg/pagination"
)

// ParseVerificationFilter accepts "", "Verified" and "Not Verified".
func ParseVerificationFilter(s string) (VerificationFilter, error) {
	switch f := VerificationFilter(s); f {
	case FilterAny, FilterVerified, FilterNotVerified:
		return f, nil
	}
	return "", apperror.Validation("verified", "must be %q or %q", FilterVerified, FilterNotVerified)
}

func (s *Service) GetResult(ctx context.Context, id int64) (*Result, error) {
	res, err := s.repo.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, []*Result{res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) ListResults(ctx context.Context, f ListFilter) ([]*Result, int, error) {
	if f.Limit <= 0 {
		f.Limit = pagination.DefaultLimit
	}
	results, total, err := s.repo.ListResults(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if err := s.enrich(ctx, results); err != nil {
		return nil, 0, err
	}
	if results == nil {
		results = []*Result{}
	}
	return results, total, nil
}

// enrich attaches readings and creator display names.
func (s *Service) enrich(ctx context.Context, results []*Result) error {
	if len(results) == 0 {
		return nil
	}
	sampleIDs := make([]int64, 0, len(results))
	var actorIDs []string
	seen := map[string]bool{}
	for _, r := range results {
		sampleIDs = append(sampleIDs, r.SampleID)
		if !seen[r.CreatedBy] {
			seen[r.CreatedBy] = true
			actorIDs = append(actorIDs, r.CreatedBy)
		}
	}
	readings, err := s.repo.ReadingsBySample(ctx, sampleIDs)
	if err != nil {
		return err
	}
	names := map[string]string{}
	if s.actors != nil {
		if names, err = s.actors.DisplayNames(ctx, actorIDs); err != nil {
			return err
		}
	}
	for _, r := range results {
		r.Readings = readings[r.SampleID]
		r.CreatorName = names[r.CreatedBy]
	}
	return nil
}

// ListReadings returns the result's readings annotated with their
// parameter definition, boundaries and classification.
func (s *Service) ListReadings(ctx context.Context, resultID int64) ([]*Reading, error) {
	res, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	bySample, err := s.repo.ReadingsBySample(ctx, []int64{res.SampleID})
	if err != nil {
		return nil, err
	}
	readings := bySample[res.SampleID]
	if len(readings) == 0 {
		return []*Reading{}, nil
	}

	ids := make([]int64, 0, len(readings))
	for _, rd := range readings {
		ids = append(ids, rd.ParameterID)
	}
	params, err := s.params.Parameters(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rd := range readings {
		p, ok := params[rd.ParameterID]
		if !ok {
			rd.Classification = labregistry.ClassUnclassified
			continue
		}
		rd.Parameter = p.Name
		rd.ParameterType = p.Type
		rd.MeasuringUnit = p.MeasuringUnit
		rd.Boundaries = p.Boundaries
		rd.Classification = labregistry.Classify(p.Type, p.Boundaries, rd.Value)
	}
	return readings, nil
}

// GetAggregatedResult assembles everything recorded against the booking.
// A booking with no queue entries is a NotFoundError.
func (s *Service) GetAggregatedResult(ctx context.Context, bookingID int64) (*Aggregate, error) {
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	entries, err := s.queue.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperror.NotFound("booking result", bookingID)
	}
	samples, err := s.samples.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.ListResultsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, results); err != nil {
		return nil, err
	}

	agg := &Aggregate{Booking: b, Services: make([]*ServiceResults, 0, len(entries))}
	if agg.Approval, err = s.repo.GetApproval(ctx, bookingID); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
	}
	if agg.ArchiveLog, err = s.repo.ListLog(ctx, bookingID); err != nil {
		return nil, err
	}
	if agg.Referral, err = s.ledger.ReferralForTransaction(ctx, b.TransactionID); err != nil {
		return nil, err
	}

	resultBySample := make(map[int64]*Result, len(results))
	for _, r := range results {
		resultBySample[r.SampleID] = r
	}
	samplesByQueue := make(map[int64][]*labsample.Sample)
	for _, smp := range samples {
		samplesByQueue[smp.QueueID] = append(samplesByQueue[smp.QueueID], smp)
	}
	for _, e := range entries {
		sr := &ServiceResults{Queue: e, Samples: []*SampleResults{}}
		for _, smp := range samplesByQueue[e.ID] {
			sr.Samples = append(sr.Samples, &SampleResults{Sample: smp, Result: resultBySample[smp.ID]})
		}
		agg.Services = append(agg.Services, sr)
	}
	return agg, nil
}

// TrackBooking reports, per queue entry, which of the four pipeline
// milestones have been reached and when.
func (s *Service) TrackBooking(ctx context.Context, bookingID int64) (*Tracking, error) {
	entries, err := s.queue.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperror.NotFound("booking", bookingID)
	}
	samples, err := s.samples.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.ListResultsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	resultBySample := make(map[int64]*Result, len(results))
	for _, r := range results {
		resultBySample[r.SampleID] = r
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].ID < samples[j].ID })
	firstSample := make(map[int64]*labsample.Sample)
	for _, smp := range samples {
		if _, ok := firstSample[smp.QueueID]; !ok {
			firstSample[smp.QueueID] = smp
		}
	}

	t := &Tracking{BookingID: bookingID, Entries: make([]*EntryTracking, 0, len(entries))}
	var sum float64
	for _, e := range entries {
		scheduled := e.ScheduledAt
		ms := []MilestoneState{
			{Name: MilestoneQueuing, Reached: true, ReachedAt: &scheduled},
			{Name: MilestoneCollection},
			{Name: MilestoneResult},
			{Name: MilestoneVerification},
		}
		if smp := firstSample[e.ID]; smp != nil {
			at := smp.CollectedAt
			ms[1].Reached, ms[1].ReachedAt = true, &at
			if r := resultBySample[smp.ID]; r != nil {
				at := r.CreatedAt
				ms[2].Reached, ms[2].ReachedAt = true, &at
				if r.Verification != nil {
					at := r.Verification.VerifiedAt
					ms[3].Reached, ms[3].ReachedAt = true, &at
				}
			}
		}
		reached := 0
		for _, m := range ms {
			if m.Reached {
				reached++
			}
		}
		et := &EntryTracking{
			QueueID:        e.ID,
			LabServiceName: e.LabServiceName,
			Status:         e.Status,
			Milestones:     ms,
			Completion:     float64(reached) / float64(len(ms)) * 100,
		}
		sum += et.Completion
		t.Entries = append(t.Entries, et)
	}
	t.Completion = sum / float64(len(t.Entries))
	return t, nil
}
