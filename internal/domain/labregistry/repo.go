package labregistry

import "context"

type LabFilter struct {
	Keyword string
	Limit   int
	Offset  int
}

type ServiceFilter struct {
	LabID   *int64
	Keyword string
	Limit   int
	Offset  int
}

type Repository interface {
	CreateLaboratory(ctx context.Context, lab *Laboratory) error
	GetLaboratory(ctx context.Context, id int64) (*Laboratory, error)
	ListLaboratories(ctx context.Context, f LabFilter) ([]*Laboratory, int, error)

	CreateLabService(ctx context.Context, svc *LabService) error
	// CreateExperiment inserts the experiment and links it to labServiceID.
	CreateExperiment(ctx context.Context, labServiceID int64, exp *Experiment) error
	CreateParameter(ctx context.Context, p *Parameter) error
	CreateBoundary(ctx context.Context, b *Boundary) error

	// GetLabService returns the service with experiments, parameters and
	// boundaries filled in.
	GetLabService(ctx context.Context, id int64) (*LabService, error)
	ListLabServices(ctx context.Context, f ServiceFilter) ([]*LabService, int, error)

	GetParameter(ctx context.Context, id int64) (*Parameter, error)
	ListBoundaries(ctx context.Context, parameterID int64) ([]*Boundary, error)
	// ParametersByID loads the parameters with their boundaries. Unknown ids
	// are absent from the map.
	ParametersByID(ctx context.Context, ids []int64) (map[int64]*Parameter, error)
}
