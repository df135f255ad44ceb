// Package labregistry defines what a laboratory service measures: its
// experiments, their parameters and the reference boundaries used to
// annotate readings.
package labregistry

import "github.com/labflow/labflow/internal/platform/apperror"

type ParameterType string

const (
	ParameterNumber           ParameterType = "Number"
	ParameterRatio            ParameterType = "Ratio"
	ParameterDescription      ParameterType = "Description"
	ParameterExclusiveOptions ParameterType = "Exclusive_Options"
	ParameterInclusiveOptions ParameterType = "Inclusive_Options"
)

func (t ParameterType) Valid() bool {
	switch t {
	case ParameterNumber, ParameterRatio, ParameterDescription, ParameterExclusiveOptions, ParameterInclusiveOptions:
		return true
	}
	return false
}

// Numeric reports whether readings of this type can be range-checked.
func (t ParameterType) Numeric() bool {
	return t == ParameterNumber || t == ParameterRatio
}

type BoundaryType string

const (
	BoundaryNormal   BoundaryType = "Normal"
	BoundaryAbnormal BoundaryType = "Abnormal"
	BoundaryInvalid  BoundaryType = "Invalid"
)

func (t BoundaryType) Valid() bool {
	return t == BoundaryNormal || t == BoundaryAbnormal || t == BoundaryInvalid
}

type Laboratory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type LabService struct {
	ID          int64  `json:"id"`
	LabID       int64  `json:"lab_id"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	// EstTurnAroundTime is the declared turnaround in minutes.
	EstTurnAroundTime int           `json:"est_turn_around_time" validate:"gte=0"`
	Experiments       []*Experiment `json:"experiments,omitempty" validate:"dive"`
}

type Experiment struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name" validate:"required"`
	Parameters []*Parameter `json:"parameters,omitempty" validate:"dive"`
}

type Parameter struct {
	ID            int64         `json:"id"`
	ExperimentID  int64         `json:"experiment_id"`
	Name          string        `json:"name" validate:"required"`
	MeasuringUnit string        `json:"measuring_unit"`
	Type          ParameterType `json:"parameter_type" validate:"required"`
	Boundaries    []*Boundary   `json:"boundaries,omitempty" validate:"dive"`
}

type Boundary struct {
	ID          int64        `json:"boundary_id"`
	ParameterID int64        `json:"parameter_id"`
	LowerBound  string       `json:"lower_bound"`
	UpperBound  string       `json:"upper_bound"`
	Type        BoundaryType `json:"boundary_type" validate:"required"`
}

func (s *LabService) validate() error {
	if s.EstTurnAroundTime < 0 {
		return apperror.Validation("est_turn_around_time", "must not be negative")
	}
	for _, e := range s.Experiments {
		for _, p := range e.Parameters {
			if !p.Type.Valid() {
				return apperror.Validation("parameter_type", "unknown parameter type %q", p.Type)
			}
			for _, b := range p.Boundaries {
				if !b.Type.Valid() {
					return apperror.Validation("boundary_type", "unknown boundary type %q", b.Type)
				}
			}
		}
	}
	return nil
}
