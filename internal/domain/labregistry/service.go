package labregistry

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/pkg/pagination"
)

type Service struct {
	repo   Repository
	tx     db.UnitOfWork
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.UnitOfWork, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger.With().Str("component", "registry").Logger()}
}

func (s *Service) CreateLaboratory(ctx context.Context, lab *Laboratory) error {
	lab.Name = strings.TrimSpace(lab.Name)
	if lab.Name == "" {
		return apperror.Validation("name", "is required")
	}
	return s.repo.CreateLaboratory(ctx, lab)
}

func (s *Service) GetLaboratory(ctx context.Context, id int64) (*Laboratory, error) {
	return s.repo.GetLaboratory(ctx, id)
}

func (s *Service) ListLaboratories(ctx context.Context, f LabFilter) ([]*Laboratory, int, error) {
	if f.Limit <= 0 {
		f.Limit = pagination.DefaultLimit
	}
	return s.repo.ListLaboratories(ctx, f)
}

// CreateLabService stores a lab service together with its experiments,
// parameters and boundaries. Nothing is written unless all of it is.
func (s *Service) CreateLabService(ctx context.Context, svc *LabService) error {
	if strings.TrimSpace(svc.Name) == "" {
		return apperror.Validation("name", "is required")
	}
	if err := svc.validate(); err != nil {
		return err
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetLaboratory(ctx, svc.LabID); err != nil {
			return err
		}
		if err := s.repo.CreateLabService(ctx, svc); err != nil {
			return err
		}
		for _, exp := range svc.Experiments {
			if err := s.repo.CreateExperiment(ctx, svc.ID, exp); err != nil {
				return err
			}
			for _, p := range exp.Parameters {
				p.ExperimentID = exp.ID
				if err := s.repo.CreateParameter(ctx, p); err != nil {
					return err
				}
				for _, b := range p.Boundaries {
					b.ParameterID = p.ID
					if err := s.repo.CreateBoundary(ctx, b); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("lab_service_id", svc.ID).Int64("lab_id", svc.LabID).
		Int("experiments", len(svc.Experiments)).Msg("lab service created")
	return nil
}

func (s *Service) GetLabService(ctx context.Context, id int64) (*LabService, error) {
	return s.repo.GetLabService(ctx, id)
}

func (s *Service) ListLabServices(ctx context.Context, f ServiceFilter) ([]*LabService, int, error) {
	if f.Limit <= 0 {
		f.Limit = pagination.DefaultLimit
	}
	return s.repo.ListLabServices(ctx, f)
}

func (s *Service) ListBoundaries(ctx context.Context, parameterID int64) ([]*Boundary, error) {
	if _, err := s.repo.GetParameter(ctx, parameterID); err != nil {
		return nil, err
	}
	bounds, err := s.repo.ListBoundaries(ctx, parameterID)
	if err != nil {
		return nil, err
	}
	if bounds == nil {
		bounds = []*Boundary{}
	}
	return bounds, nil
}

// ClassifyReading annotates value against the parameter's boundaries.
func (s *Service) ClassifyReading(ctx context.Context, parameterID int64, value string) (Classification, error) {
	p, err := s.repo.GetParameter(ctx, parameterID)
	if err != nil {
		return "", err
	}
	if !p.Type.Numeric() {
		return ClassUnclassified, nil
	}
	bounds, err := s.repo.ListBoundaries(ctx, parameterID)
	if err != nil {
		return "", err
	}
	return Classify(p.Type, bounds, value), nil
}

// Parameters returns the requested parameters keyed by id, boundaries
// included.
func (s *Service) Parameters(ctx context.Context, ids []int64) (map[int64]*Parameter, error) {
	return s.repo.ParametersByID(ctx, ids)
}

// ParameterExists fails with NotFoundError for an unknown parameter.
func (s *Service) ParameterExists(ctx context.Context, id int64) error {
	_, err := s.repo.GetParameter(ctx, id)
	return err
}
