package labanalytics

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/labflow/labflow/internal/platform/reporting"
)

const exportTimeLayout = "2006-01-02 15:04"

// Export writes the throughput series and processing-time metrics as an
// xlsx workbook with Throughput, Processing time and Summary sheets.
func (s *Service) Export(ctx context.Context, w io.Writer, pf ProcessingFilter, tf ThroughputFilter) error {
	d, err := s.Dashboard(ctx, pf, tf)
	if err != nil {
		return err
	}
	err = reporting.WriteWorkbook(w, throughputSheet(d.Throughput), processingSheet(d.ProcessingTime), summarySheet(d.ProcessingTime))
	if err != nil {
		return err
	}
	s.logger.Info().Int("services", len(d.Throughput)).Int("bookings", d.ProcessingTime.TotalBookings).
		Msg("analytics exported")
	return nil
}

func throughputSheet(series Series) reporting.Sheet {
	sh := reporting.Sheet{Name: "Throughput", Header: []string{"Lab service", "Period", "Bookings"}}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		periods := make([]string, 0, len(series[name]))
		for p := range series[name] {
			periods = append(periods, p)
		}
		sort.Strings(periods)
		for _, p := range periods {
			sh.Rows = append(sh.Rows, []any{name, p, series[name][p]})
		}
	}
	return sh
}

func processingSheet(m *ProcessingMetrics) reporting.Sheet {
	sh := reporting.Sheet{
		Name:   "Processing time",
		Header: []string{"Transaction", "Booking", "Lab service", "Booked at", "Collected at", "Result at", "Verified at"},
	}
	for _, r := range m.Data {
		sh.Rows = append(sh.Rows, []any{
			r.TransactionID, r.BookingID, r.LabServiceName, r.BookingTime.UTC().Format(exportTimeLayout),
			formatOptional(r.CollectedAt), formatOptional(r.ResultProcessedAt), formatOptional(r.VerifiedAt),
		})
	}
	return sh
}

func summarySheet(m *ProcessingMetrics) reporting.Sheet {
	return reporting.Sheet{
		Name:   "Summary",
		Header: []string{"Metric", "Value"},
		Rows: [][]any{
			{"Bookings", m.TotalBookings},
			{"Estimated turnaround (min)", m.EstTurnAroundTime},
			{"Completed before estimate", m.CompletedBeforeEst},
			{"Completed after estimate", m.CompletedAfterEst},
			{"Avg booking to collection (min)", m.AvgBookingToCollection},
			{"Avg booking to result (min)", m.AvgBookingToProcessing},
			{"Avg booking to verification (min)", m.AvgBookingToVerification},
			{"Computed turnaround (min)", m.ComputedEstTurnAroundTime},
			{"Incomplete chains", m.IncompleteChains},
		},
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(exportTimeLayout)
}
