// Package booking is the pipeline's view of the external booking ledger:
// bookings, their per-service detail rows, transaction timestamps, referrals
// and actor display names. The only write is the aggregate booking status.
package booking

import "time"

type Status string

const (
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusSuspended  Status = "Suspended"
	StatusVerified   Status = "All Verified"
)

func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusProcessed, StatusSuspended, StatusVerified:
		return true
	}
	return false
}

type Booking struct {
	ID              int64     `json:"id"`
	TransactionID   int64     `json:"transaction_id"`
	TransactionTime time.Time `json:"transaction_time"`
	ClientFirstName string    `json:"client_first_name"`
	ClientLastName  string    `json:"client_last_name"`
	Status          Status    `json:"status"`
}

// Detail is one booked laboratory service within a booking.
type Detail struct {
	ID           int64 `json:"id"`
	BookingID    int64 `json:"booking_id"`
	LabServiceID int64 `json:"lab_service_id"`
}

type Referral struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	ReferredBy    string `json:"referred_by"`
	Facility      string `json:"facility"`
	Note          string `json:"note,omitempty"`
}
