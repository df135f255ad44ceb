package labanalytics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/apperror"
)

// -- Mocks --

type mockRepo struct {
	completion map[int64][]CompletionRow
	processing []ProcessingRow
	times      []BookingTime
	perService map[string]int
	err        error

	lastProcessing ProcessingFilter
}

func (m *mockRepo) CompletionRows(_ context.Context, bookingID int64) ([]CompletionRow, error) {
	return m.completion[bookingID], m.err
}

func (m *mockRepo) ProcessingRows(_ context.Context, f ProcessingFilter) ([]ProcessingRow, error) {
	m.lastProcessing = f
	if m.err != nil {
		return nil, m.err
	}
	var out []ProcessingRow
	for _, r := range m.processing {
		if !f.IncludeIncomplete && r.VerifiedAt == nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRepo) BookingTimes(_ context.Context, _ ThroughputFilter) ([]BookingTime, error) {
	return m.times, m.err
}

func (m *mockRepo) BookingsPerService(context.Context) (map[string]int, error) {
	return m.perService, m.err
}

var booked = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func after(minutes int) *time.Time {
	t := booked.Add(time.Duration(minutes) * time.Minute)
	return &t
}

// Two verified chains against a 180 minute estimate, one finishing inside
// it and one outside, plus a chain that stopped at collection.
func processingFixture() []ProcessingRow {
	return []ProcessingRow{
		{TransactionID: 1, BookingID: 500, BookingTime: booked, CollectedAt: after(30), ResultProcessedAt: after(60),
			VerifiedAt: after(120), LabServiceName: "Lipid panel", EstTurnAroundTime: 180},
		{TransactionID: 2, BookingID: 501, BookingTime: booked, CollectedAt: after(60), ResultProcessedAt: after(120),
			VerifiedAt: after(240), LabServiceName: "Lipid panel", EstTurnAroundTime: 180},
		{TransactionID: 3, BookingID: 502, BookingTime: booked, CollectedAt: after(90),
			LabServiceName: "Lipid panel", EstTurnAroundTime: 180},
	}
}

func newService(repo *mockRepo) *Service {
	return NewService(repo, nil, zerolog.Nop())
}

func statusPtrs(q labqueue.Status, s labsample.Status) CompletionRow {
	return CompletionRow{QueueStatus: &q, SampleStatus: &s}
}

// -- Tests --

func TestComputeCompletionPercentage(t *testing.T) {
	repo := &mockRepo{completion: map[int64][]CompletionRow{
		500: {
			statusPtrs(labqueue.StatusProcessed, labsample.StatusProcessed),
			statusPtrs(labqueue.StatusProcessing, labsample.StatusProcessing),
		},
	}}
	svc := newService(repo)

	pct, err := svc.ComputeCompletionPercentage(context.Background(), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pct != 50 {
		t.Errorf("expected 50, got %v", pct)
	}

	repo.completion[500][1] = statusPtrs(labqueue.StatusProcessing, labsample.StatusProcessed)
	if pct, _ = svc.ComputeCompletionPercentage(context.Background(), 500); pct != 100 {
		t.Errorf("expected 100 once every sample is Processed, got %v", pct)
	}

	if pct, _ = svc.ComputeCompletionPercentage(context.Background(), 404); pct != 0 {
		t.Errorf("a booking without services is 0, got %v", pct)
	}
}

func TestComputeCompletionPercentage_Monotonic(t *testing.T) {
	rows := []CompletionRow{
		statusPtrs(labqueue.StatusProcessing, labsample.StatusProcessing),
		statusPtrs(labqueue.StatusProcessing, labsample.StatusProcessing),
		statusPtrs(labqueue.StatusProcessing, labsample.StatusProcessing),
	}
	repo := &mockRepo{completion: map[int64][]CompletionRow{1: rows}}
	svc := newService(repo)

	prev := -1.0
	for i := range rows {
		done := labsample.StatusProcessed
		rows[i].SampleStatus = &done
		pct, err := svc.ComputeCompletionPercentage(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if pct < prev {
			t.Fatalf("completion went down: %v after %v", pct, prev)
		}
		prev = pct
	}
	if prev != 100 {
		t.Errorf("expected 100 at the end, got %v", prev)
	}
}

func TestComputeAverageProcessingTime_VerifiedOnly(t *testing.T) {
	repo := &mockRepo{processing: processingFixture()}
	m, err := newService(repo).ComputeAverageProcessingTime(context.Background(), ProcessingFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalBookings != 2 || m.IncompleteChains != 0 {
		t.Errorf("expected 2 complete chains, got %d/%d", m.TotalBookings, m.IncompleteChains)
	}
	if m.AvgBookingToCollection != 45 || m.AvgBookingToProcessing != 90 || m.AvgBookingToVerification != 180 {
		t.Errorf("unexpected means %v %v %v", m.AvgBookingToCollection, m.AvgBookingToProcessing, m.AvgBookingToVerification)
	}
	if m.ComputedEstTurnAroundTime != 315 {
		t.Errorf("expected computed estimate 315, got %v", m.ComputedEstTurnAroundTime)
	}
	if m.EstTurnAroundTime != 180 || m.CompletedBeforeEst != 1 || m.CompletedAfterEst != 1 {
		t.Errorf("unexpected estimate split %+v", m)
	}
}

func TestComputeAverageProcessingTime_IncludeIncomplete(t *testing.T) {
	repo := &mockRepo{processing: processingFixture()}
	m, err := newService(repo).ComputeAverageProcessingTime(context.Background(), ProcessingFilter{IncludeIncomplete: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.lastProcessing.IncludeIncomplete {
		t.Error("filter not passed through")
	}
	if m.TotalBookings != 3 || m.IncompleteChains != 1 {
		t.Errorf("expected 3 rows with 1 incomplete, got %d/%d", m.TotalBookings, m.IncompleteChains)
	}
	if m.AvgBookingToCollection != 60 || m.AvgBookingToProcessing != 90 || m.AvgBookingToVerification != 180 {
		t.Errorf("unexpected means %v %v %v", m.AvgBookingToCollection, m.AvgBookingToProcessing, m.AvgBookingToVerification)
	}
	if m.CompletedBeforeEst+m.CompletedAfterEst != 2 {
		t.Errorf("only verified chains count against the estimate, got %d", m.CompletedBeforeEst+m.CompletedAfterEst)
	}
}

func TestComputeAverageProcessingTime_Empty(t *testing.T) {
	m, err := newService(&mockRepo{}).ComputeAverageProcessingTime(context.Background(), ProcessingFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalBookings != 0 || m.Data == nil || m.ComputedEstTurnAroundTime != 0 {
		t.Errorf("unexpected empty metrics %+v", m)
	}
}

func TestGenerateThroughputSeries(t *testing.T) {
	repo := &mockRepo{times: []BookingTime{
		{LabServiceName: "Lipid panel", TransactionTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		{LabServiceName: "Lipid panel", TransactionTime: time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)},
		{LabServiceName: "Lipid panel", TransactionTime: time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)},
		{LabServiceName: "Glucose", TransactionTime: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)},
	}}
	svc := newService(repo)

	daily, err := svc.GenerateThroughputSeries(context.Background(), ThroughputFilter{Interval: IntervalDaily})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if daily["Lipid panel"]["2024-03-01"] != 2 || daily["Glucose"]["2024-03-20"] != 1 {
		t.Errorf("unexpected daily series %v", daily)
	}

	monthly, _ := svc.GenerateThroughputSeries(context.Background(), ThroughputFilter{Interval: IntervalMonthly})
	if monthly["Lipid panel"]["2024-03"] != 2 || monthly["Lipid panel"]["2024-04"] != 1 {
		t.Errorf("unexpected monthly series %v", monthly)
	}

	if _, err := svc.GenerateThroughputSeries(context.Background(), ThroughputFilter{Interval: "yearly"}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	repo := &mockRepo{
		processing: processingFixture(),
		times:      []BookingTime{{LabServiceName: "Glucose", TransactionTime: booked}},
		perService: map[string]int{"Glucose": 1},
	}
	d, err := newService(repo).Dashboard(context.Background(), ProcessingFilter{}, ThroughputFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.BookingsPerService["Glucose"] != 1 || d.Throughput["Glucose"]["2024-03"] != 1 || d.ProcessingTime.TotalBookings != 2 {
		t.Errorf("unexpected dashboard %+v", d)
	}

	repo.err = apperror.Transient("analytics", errors.New("connection reset"))
	if _, err := newService(repo).Dashboard(context.Background(), ProcessingFilter{}, ThroughputFilter{}); !errors.Is(err, apperror.ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestExport(t *testing.T) {
	repo := &mockRepo{
		processing: processingFixture(),
		times:      []BookingTime{{LabServiceName: "Glucose", TransactionTime: booked}},
		perService: map[string]int{"Glucose": 1},
	}
	var buf bytes.Buffer
	if err := newService(repo).Export(context.Background(), &buf, ProcessingFilter{IncludeIncomplete: true}, ThroughputFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Throughput" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	rows, err := f.GetRows("Processing time")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Errorf("expected header plus 3 rows, got %d", len(rows))
	}
	if v, _ := f.GetCellValue("Throughput", "C2"); v != "1" {
		t.Errorf("expected count 1, got %q", v)
	}
}
