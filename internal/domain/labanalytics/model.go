// Package labanalytics is the read-only side of the pipeline: booking
// completion, turnaround averages and booking throughput.
package labanalytics

import (
	"fmt"
	"time"

	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/apperror"
)

// CompletionRow is one booked service with the status of its queue entry
// and of the entry's first sample. Missing links are nil.
type CompletionRow struct {
	DetailID     int64
	QueueStatus  *labqueue.Status
	SampleStatus *labsample.Status
}

func (r CompletionRow) complete() bool {
	if r.QueueStatus == nil || r.SampleStatus == nil {
		return false
	}
	q := *r.QueueStatus
	if q != labqueue.StatusProcessing && q != labqueue.StatusProcessed {
		return false
	}
	return *r.SampleStatus == labsample.StatusProcessed
}

type ProcessingFilter struct {
	LabID        *int64
	LabServiceID *int64
	From         *time.Time
	To           *time.Time // exclusive
	// IncludeIncomplete keeps chains that have not reached verification.
	// Each mean is then taken over the rows that reached that milestone.
	IncludeIncomplete bool
}

// ProcessingRow is one queue entry's journey from booking to verification.
type ProcessingRow struct {
	TransactionID     int64      `json:"transaction_id"`
	BookingID         int64      `json:"booking_id"`
	BookingTime       time.Time  `json:"booking_time"`
	CollectedAt       *time.Time `json:"collected_at"`
	ResultProcessedAt *time.Time `json:"result_processed_at"`
	VerifiedAt        *time.Time `json:"verified_at"`
	LabServiceName    string     `json:"lab_service_name"`
	// EstTurnAroundTime is the service's estimate in minutes.
	EstTurnAroundTime int `json:"-"`
}

type ProcessingMetrics struct {
	Data                      []ProcessingRow `json:"data"`
	TotalBookings             int             `json:"total_number_of_bookings"`
	EstTurnAroundTime         int             `json:"est_turn_around_time"`
	CompletedBeforeEst        int             `json:"booking_completed_before_est_delivery"`
	CompletedAfterEst         int             `json:"booking_completed_after_est_delivery"`
	AvgBookingToCollection    float64         `json:"avg_booking_to_collection"`
	AvgBookingToProcessing    float64         `json:"avg_booking_to_processing"`
	AvgBookingToVerification  float64         `json:"avg_booking_to_verification"`
	ComputedEstTurnAroundTime float64         `json:"computed_est_turn_around_time"`
	IncompleteChains          int             `json:"incomplete_chains,omitempty"`
}

type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

func ParseInterval(s string) (Interval, error) {
	switch i := Interval(s); i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return i, nil
	}
	return "", apperror.Validation("interval", "must be daily, weekly or monthly")
}

// PeriodKey buckets t for the interval. Weekly keys are YYYY-WW with
// Monday-first week numbers; days before the year's first Monday fall in
// week 00.
func PeriodKey(t time.Time, i Interval) (string, error) {
	switch i {
	case IntervalDaily:
		return t.Format("2006-01-02"), nil
	case IntervalWeekly:
		yday := t.YearDay() - 1
		mon0 := (int(t.Weekday()) + 6) % 7
		return fmt.Sprintf("%04d-%02d", t.Year(), (yday+7-mon0)/7), nil
	case IntervalMonthly:
		return t.Format("2006-01"), nil
	}
	return "", apperror.Validation("interval", "must be daily, weekly or monthly")
}

type ThroughputFilter struct {
	From         *time.Time
	To           *time.Time // exclusive
	Interval     Interval
	LabID        *int64
	LabServiceID *int64
}

// BookingTime is one booked service and when its transaction happened.
type BookingTime struct {
	LabServiceName  string
	TransactionTime time.Time
}

// Series maps service name to period key to booking count.
type Series map[string]map[string]int

type Dashboard struct {
	BookingsPerService map[string]int     `json:"bookings_per_service"`
	Throughput         Series             `json:"throughput"`
	ProcessingTime     *ProcessingMetrics `json:"processing_time"`
}
