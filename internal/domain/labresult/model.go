// Package labresult captures results and readings for collected samples and
// runs the verify, archive and approval steps that close out a booking.
package labresult

import (
	"time"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labregistry"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/apperror"
)

type Status string

const (
	StatusReady    Status = "Ready"
	StatusIssued   Status = "Issued"
	StatusArchived Status = "Archived"
	StatusApproved Status = "Approved"
)

// parseStatus returns def for an empty string.
func parseStatus(field, s string, def Status) (Status, error) {
	switch st := Status(s); st {
	case "":
		return def, nil
	case StatusReady, StatusIssued, StatusArchived, StatusApproved:
		return st, nil
	}
	return "", apperror.Validation(field, "unknown result status %q", s)
}

type Result struct {
	ID        int64     `json:"id"`
	SampleID  int64     `json:"sample_id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Comment   string    `json:"comment"`
	Status    Status    `json:"status"`

	QueueID         int64         `json:"queue_id"`
	BookingID       int64         `json:"booking_id"`
	LabServiceID    int64         `json:"lab_service_id"`
	LabServiceName  string        `json:"lab_service_name"`
	SampleType      string        `json:"sample_type"`
	ClientFirstName string        `json:"client_first_name"`
	ClientLastName  string        `json:"client_last_name"`
	CreatorName     string        `json:"creator_name,omitempty"`
	Verification    *Verification `json:"verification"`
	Readings        []*Reading    `json:"readings,omitempty"`
}

// Reading is one measured parameter value. The display fields are filled
// from the experiment registry on read.
type Reading struct {
	ID          int64     `json:"id"`
	SampleID    int64     `json:"sample_id"`
	ParameterID int64     `json:"parameter_id"`
	Value       string    `json:"parameter_value"`
	CreatedAt   time.Time `json:"created_at"`

	Parameter      string                     `json:"parameter,omitempty"`
	ParameterType  labregistry.ParameterType  `json:"parameter_type,omitempty"`
	MeasuringUnit  string                     `json:"measuring_unit,omitempty"`
	Boundaries     []*labregistry.Boundary    `json:"parameter_boundaries,omitempty"`
	Classification labregistry.Classification `json:"classification,omitempty"`
}

type Verification struct {
	ID         int64     `json:"id"`
	ResultID   int64     `json:"result_id"`
	VerifiedAt time.Time `json:"verified_at"`
	VerifiedBy string    `json:"verified_by"`
	Comment    string    `json:"comment"`
	Status     Status    `json:"status"`
}

type LogEntry struct {
	ID          int64          `json:"id"`
	BookingID   int64          `json:"booking_id"`
	Action      Status         `json:"action"`
	LoggedBy    string         `json:"logged_by"`
	LoggedAt    time.Time      `json:"logged_at"`
	PriorStatus booking.Status `json:"prior_status"`
}

type Approval struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"booking_id"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Comment    string    `json:"comment"`
	Status     Status    `json:"status"`
}

type ApprovalPatch struct {
	Comment *string `json:"comment"`
	Status  *Status `json:"status"`
}

// VerificationFilter selects results by verification state.
type VerificationFilter string

const (
	FilterAny         VerificationFilter = ""
	FilterVerified    VerificationFilter = "Verified"
	FilterNotVerified VerificationFilter = "Not Verified"
)

type ListFilter struct {
	LabID    *int64
	From     *time.Time
	To       *time.Time // exclusive
	Keyword  string
	Verified VerificationFilter
	Limit    int
	Offset   int
}

// Aggregate is the full result view of one booking.
type Aggregate struct {
	Booking    *booking.Booking  `json:"booking"`
	Services   []*ServiceResults `json:"services"`
	Approval   *Approval         `json:"approval"`
	ArchiveLog []*LogEntry       `json:"archive_log"`
	Referral   *booking.Referral `json:"referral"`
}

type ServiceResults struct {
	Queue   *labqueue.Entry  `json:"queue"`
	Samples []*SampleResults `json:"samples"`
}

type SampleResults struct {
	Sample *labsample.Sample `json:"sample"`
	Result *Result           `json:"result"`
}

type Milestone string

const (
	MilestoneQueuing      Milestone = "Queuing"
	MilestoneCollection   Milestone = "SampleCollection"
	MilestoneResult       Milestone = "Result"
	MilestoneVerification Milestone = "Verification"
)

type MilestoneState struct {
	Name      Milestone  `json:"name"`
	Reached   bool       `json:"reached"`
	ReachedAt *time.Time `json:"reached_at,omitempty"`
}

type EntryTracking struct {
	QueueID        int64            `json:"queue_id"`
	LabServiceName string           `json:"lab_service_name"`
	Status         labqueue.Status  `json:"status"`
	Milestones     []MilestoneState `json:"milestones"`
	Completion     float64          `json:"completion"`
}

type Tracking struct {
	BookingID  int64            `json:"booking_id"`
	Entries    []*EntryTracking `json:"entries"`
	Completion float64          `json:"completion"`
}
