// Package labsample tracks the physical specimens collected for queue
// entries and whether a result has been produced for each.
package labsample

import (
	"fmt"
	"time"

	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/cache"
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
	return "", apperror.Validation("status", "unknown sample status %q", s)
}

// SampleType is one entry of the specimen vocabulary. Requests may name a
// type by Name or by Value.
type SampleType struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var sampleTypes = []SampleType{
	{"WholeBlood", "Whole blood"},
	{"Serum", "Serum"},
	{"Plasma", "Plasma"},
	{"CapillaryBlood", "Capillary blood"},
	{"RandomUrine", "Random urine"},
	{"FirstMorningUrine", "First morning urine"},
	{"TimedUrine", "Timed urine"},
	{"CatheterizedUrine", "Catheterized urine"},
	{"Stool", "Stool (fecal)"},
	{"ThroatSwabs", "Throat swabs"},
	{"NasalSwabs", "Nasal/nasopharyngeal swabs"},
	{"WoundSwabs", "Wound swabs"},
	{"UrogenitalSwabs", "Urogenital swabs"},
	{"CerebrospinalFluid", "Cerebrospinal fluid"},
	{"PleuralFluid", "Pleural fluid"},
	{"PeritonealFluid", "Peritoneal fluid"},
	{"PericardialFluid", "Pericardial fluid"},
	{"SynovialFluid", "Synovial fluid"},
	{"BronchoalveolarLavage", "Bronchoalveolar lavage"},
	{"Biopsy", "Biopsy"},
	{"Sputum", "Sputum - Mucus from the lungs"},
	{"Hair", "Hair"},
	{"Nail", "Nail"},
	{"AmnioticFluid", "Amniotic fluid"},
	{"Saliva", "Saliva"},
	{"Semen", "Semen"},
	{"Tissue", "Tissue"},
	{"BoneMarrow", "Bone marrow"},
	{"BreastMilk", "Breast milk"},
}

// SampleTypes returns a copy of the vocabulary.
func SampleTypes() []SampleType {
	out := make([]SampleType, len(sampleTypes))
	copy(out, sampleTypes)
	return out
}

// NormalizeSampleType maps a name or value to the stored value. Matching is
// case-sensitive.
func NormalizeSampleType(s string) (string, error) {
	for _, st := range sampleTypes {
		if s == st.Name || s == st.Value {
			return st.Value, nil
		}
	}
	return "", apperror.Validation("sample_type", "unknown sample type %q", s)
}

type Sample struct {
	ID             int64     `json:"id"`
	QueueID        int64     `json:"queue_id"`
	SampleType     string    `json:"sample_type"`
	CollectedBy    string    `json:"collected_by"`
	CollectedAt    time.Time `json:"collected_at"`
	ContainerLabel string    `json:"container_label"`
	Status         Status    `json:"status"`

	BookingID       int64          `json:"booking_id"`
	LabServiceID    int64          `json:"lab_service_id"`
	LabServiceName  string         `json:"lab_service_name"`
	ClientFirstName string         `json:"client_first_name"`
	ClientLastName  string         `json:"client_last_name"`
	CollectorName   string         `json:"collector_name,omitempty"`
	Result          *ResultSummary `json:"result"`
}

// ResultSummary is the result attached to a sample, if any.
type ResultSummary struct {
	ID        int64     `json:"id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Comment   string    `json:"comment"`
	Status    string    `json:"status"`
}

type Filter struct {
	LabID     *int64
	BookingID *int64
	From      *time.Time
	To        *time.Time // exclusive
	Status    *Status
	Keyword   string
	Limit     int
	Offset    int
}

func (f Filter) cacheKey() string {
	opt := func(p *int64) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	}
	optTime := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	status := "-"
	if f.Status != nil {
		status = string(*f.Status)
	}
	return cache.Key(listingNamespace,
		"lab="+opt(f.LabID), "booking="+opt(f.BookingID),
		"from="+optTime(f.From), "to="+optTime(f.To),
		"status="+status, "kw="+f.Keyword,
		fmt.Sprintf("limit=%d", f.Limit), fmt.Sprintf("offset=%d", f.Offset))
}

type Page struct {
	Samples []*Sample `json:"samples"`
	Total   int       `json:"total"`
}
