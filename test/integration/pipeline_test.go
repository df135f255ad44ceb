//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labresult"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/apperror"
)

func TestBookingFulfilment_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack()
	f := seedBooking(t, ctx)

	q1, s1 := s.queueAndCollect(t, ctx, f.DetailIDs[0], labqueue.PriorityNormal)
	entry, err := s.queue.Get(ctx, q1.ID)
	if err != nil {
		t.Fatalf("get queue entry: %v", err)
	}
	if entry.Status != labqueue.StatusProcessing {
		t.Fatalf("queue status after collection = %s, want Processing", entry.Status)
	}

	s.submit(t, ctx, s1.ID, f.ParameterID)
	pct, err := s.analytics.ComputeCompletionPercentage(ctx, f.BookingID)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if pct != 50 {
		t.Fatalf("completion after first result = %v, want 50", pct)
	}
	if got := bookingStatus(t, ctx, s, f.BookingID); got != booking.StatusProcessing {
		t.Fatalf("booking status = %s, want Processing", got)
	}

	_, s2 := s.queueAndCollect(t, ctx, f.DetailIDs[1], labqueue.PriorityHigh)
	s.submit(t, ctx, s2.ID, f.ParameterID)
	pct, err = s.analytics.ComputeCompletionPercentage(ctx, f.BookingID)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if pct != 100 {
		t.Fatalf("completion after second result = %v, want 100", pct)
	}
	if got := bookingStatus(t, ctx, s, f.BookingID); got != booking.StatusProcessed {
		t.Fatalf("booking status = %s, want Processed", got)
	}

	agg, err := s.results.GetAggregatedResult(ctx, f.BookingID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Booking == nil || agg.Booking.ID != f.BookingID {
		t.Fatalf("aggregate booking = %+v, want id %d", agg.Booking, f.BookingID)
	}
	if len(agg.Services) != 2 {
		t.Errorf("aggregate services = %d, want 2", len(agg.Services))
	}
}

func TestDeleteQueueEntry_BlockedBySample(t *testing.T) {
	ctx := context.Background()
	s := newStack()
	f := seedBooking(t, ctx)

	q1, _ := s.queueAndCollect(t, ctx, f.DetailIDs[0], labqueue.PriorityNormal)
	err := s.queue.Delete(ctx, q1.ID)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Delete with sample: err = %v, want conflict", err)
	}
	if _, err := s.queue.Get(ctx, q1.ID); err != nil {
		t.Fatalf("entry should survive a blocked delete: %v", err)
	}

	q2, err := s.queue.Create(ctx, labqueue.CreateRequest{BookingDetailID: f.DetailIDs[1], Status: labqueue.StatusWaiting})
	if err != nil {
		t.Fatalf("create queue entry: %v", err)
	}
	if err := s.queue.Delete(ctx, q2.ID); err != nil {
		t.Fatalf("Delete without samples: %v", err)
	}
	if _, err := s.queue.Get(ctx, q2.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Get after delete: err = %v, want not found", err)
	}
}

func TestCreateResult_ConcurrentCallsYieldOneResult(t *testing.T) {
	ctx := context.Background()
	s := newStack()
	f := seedBooking(t, ctx)
	_, smp := s.queueAndCollect(t, ctx, f.DetailIDs[0], labqueue.PriorityNormal)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.results.CreateResult(ctx, labresult.CreateRequest{SampleID: smp.ID, CreatedBy: "7"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperror.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d CreateResult calls succeeded, want 1", succeeded)
	}

	var n int
	if err := globalPool.QueryRow(ctx, `SELECT COUNT(*) FROM lab_sample_result WHERE sample_id = $1`, smp.ID).Scan(&n); err != nil {
		t.Fatalf("count results: %v", err)
	}
	if n != 1 {
		t.Fatalf("results for sample = %d, want 1", n)
	}
}

func TestDeleteResult_AllowsRecreate(t *testing.T) {
	ctx := context.Background()
	s := newStack()
	f := seedBooking(t, ctx)
	_, smp := s.queueAndCollect(t, ctx, f.DetailIDs[0], labqueue.PriorityNormal)
	res := s.submit(t, ctx, smp.ID, f.ParameterID)

	if err := s.results.DeleteResult(ctx, res.ID); err != nil {
		t.Fatalf("DeleteResult: %v", err)
	}

	var readings int
	if err := globalPool.QueryRow(ctx, `SELECT COUNT(*) FROM lab_experiment_reading WHERE sample_id = $1`, smp.ID).Scan(&readings); err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if readings != 0 {
		t.Fatalf("readings after delete = %d, want 0", readings)
	}
	got, err := s.samples.Get(ctx, smp.ID)
	if err != nil {
		t.Fatalf("get sample: %v", err)
	}
	if got.Status != labsample.StatusProcessing {
		t.Fatalf("sample status = %s, want Processing", got.Status)
	}

	if _, err := s.results.CreateResult(ctx, labresult.CreateRequest{SampleID: smp.ID, CreatedBy: "7"}); err != nil {
		t.Fatalf("recreate result: %v", err)
	}
}

func TestVerifyResult_LastVerificationFlipsBooking(t *testing.T) {
	ctx := context.Background()
	s := newStack()
	f := seedBooking(t, ctx)
	_, s1 := s.queueAndCollect(t, ctx, f.DetailIDs[0], labqueue.PriorityNormal)
	_, s2 := s.queueAndCollect(t, ctx, f.DetailIDs[1], labqueue.PriorityNormal)
	r1 := s.submit(t, ctx, s1.ID, f.ParameterID)
	r2 := s.submit(t, ctx, s2.ID, f.ParameterID)

	if _, err := s.results.VerifyResult(ctx, r1.ID, labresult.VerifyRequest{VerifiedBy: "7"}); err != nil {
		t.Fatalf("verify first: %v", err)
	}
	if got := bookingStatus(t, ctx, s, f.BookingID); got != booking.StatusProcessed {
		t.Fatalf("status after first verification = %s, want Processed", got)
	}

	if _, err := s.results.VerifyResult(ctx, r2.ID, labresult.VerifyRequest{VerifiedBy: "7"}); err != nil {
		t.Fatalf("verify last: %v", err)
	}
	if got := bookingStatus(t, ctx, s, f.BookingID); got != booking.StatusVerified {
		t.Fatalf("status after last verification = %s, want %s", got, booking.StatusVerified)
	}

	_, err := s.results.VerifyResult(ctx, r2.ID, labresult.VerifyRequest{VerifiedBy: "7"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second verification: err = %v, want conflict", err)
	}
}

func TestArchiveBooking_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStack()
	f := seedBooking(t, ctx)
	_, smp := s.queueAndCollect(t, ctx, f.DetailIDs[0], labqueue.PriorityNormal)
	s.submit(t, ctx, smp.ID, f.ParameterID)

	before := bookingStatus(t, ctx, s, f.BookingID)
	if _, err := s.results.ArchiveBooking(ctx, f.BookingID, "7"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := s.results.UnarchiveBooking(ctx, f.BookingID); err != nil {
		t.Fatalf("unarchive: %v", err)
	}

	if got := bookingStatus(t, ctx, s, f.BookingID); got != before {
		t.Fatalf("status after round trip = %s, want %s", got, before)
	}
	var n int
	if err := globalPool.QueryRow(ctx, `SELECT COUNT(*) FROM lab_result_log WHERE booking_id = $1`, f.BookingID).Scan(&n); err != nil {
		t.Fatalf("count log rows: %v", err)
	}
	if n != 0 {
		t.Fatalf("log rows after round trip = %d, want 0", n)
	}
}
