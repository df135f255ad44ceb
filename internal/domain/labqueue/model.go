// Package labqueue owns the queue entry of every booked laboratory service
// and the state machine that moves it from Waiting to Processed.
package labqueue

import (
	"time"

	"github.com/labflow/labflow/internal/platform/apperror"
)

type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusCancelled  Status = "Cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusWaiting, StatusProcessing, StatusProcessed, StatusCancelled:
		return st, nil
	}
	return "", apperror.Validation("status", "unknown queue status %q", s)
}

type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityLow    Priority = "Low"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityNormal, PriorityHigh, PriorityLow:
		return p, nil
	case "":
		return PriorityNormal, nil
	}
	return "", apperror.Validation("priority", "unknown priority %q", s)
}

type Event string

const (
	EventStart    Event = "start"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
	// EventRevert is raised only when the sample workflow is undone.
	EventRevert Event = "revert"
)

var transitions = map[Status]map[Event]Status{
	StatusWaiting: {
		EventStart:  StatusProcessing,
		EventCancel: StatusCancelled,
	},
	StatusProcessing: {
		EventComplete: StatusProcessed,
		EventCancel:   StatusCancelled,
	},
	StatusProcessed: {
		EventRevert: StatusProcessing,
	},
}

// Next returns the state reached by applying ev in from. Applying the event
// that produced from again leaves it unchanged.
func Next(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	for _, events := range transitions {
		if events[ev] == from {
			return from, nil
		}
	}
	return "", apperror.Validation("status", "cannot %s a %s queue entry", ev, from)
}

// eventFor finds the event that moves from into to.
func eventFor(from, to Status) (Event, bool) {
	if from == to {
		return "", true
	}
	for ev, target := range transitions[from] {
		if target == to {
			return ev, true
		}
	}
	return "", false
}

type Entry struct {
	ID              int64     `json:"id"`
	LabServiceID    int64     `json:"lab_service_id"`
	BookingDetailID int64     `json:"booking_detail_id"`
	BookingID       int64     `json:"booking_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Status          Status    `json:"status"`
	Priority        Priority  `json:"priority"`

	LabID           int64  `json:"lab_id"`
	LabServiceName  string `json:"lab_service_name"`
	LabName         string `json:"lab_name"`
	ClientFirstName string `json:"client_first_name"`
	ClientLastName  string `json:"client_last_name"`
}

type Filter struct {
	LabID     *int64
	BookingID *int64
	From      *time.Time
	To        *time.Time // exclusive
	// Status nil means Processing. AllStatuses disables the status filter.
	Status      *Status
	AllStatuses bool
	Keyword     string
	Limit       int
	Offset      int
}

type ListResult struct {
	Entries        []*Entry `json:"queue"`
	Total          int      `json:"total"`
	TotalProcessed int      `json:"total_processed"`
}

// Patch carries the fields of a partial update; nil fields are untouched.
type Patch struct {
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}
