package labregistry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/apperror"
)

// -- Mock Repository --

type mockRepo struct {
	nextID     int64
	labs       map[int64]*Laboratory
	services   map[int64]*LabService
	params     map[int64]*Parameter
	boundaries map[int64][]*Boundary
	failOn     string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		labs:       map[int64]*Laboratory{},
		services:   map[int64]*LabService{},
		params:     map[int64]*Parameter{},
		boundaries: map[int64][]*Boundary{},
	}
}

func (m *mockRepo) id() int64 { m.nextID++; return m.nextID }

func (m *mockRepo) CreateLaboratory(_ context.Context, lab *Laboratory) error {
	for _, l := range m.labs {
		if l.Name == lab.Name {
			return apperror.Conflict("laboratory", "already exists")
		}
	}
	lab.ID = m.id()
	m.labs[lab.ID] = lab
	return nil
}

func (m *mockRepo) GetLaboratory(_ context.Context, id int64) (*Laboratory, error) {
	lab, ok := m.labs[id]
	if !ok {
		return nil, apperror.NotFound("laboratory", id)
	}
	return lab, nil
}

func (m *mockRepo) ListLaboratories(_ context.Context, f LabFilter) ([]*Laboratory, int, error) {
	var out []*Laboratory
	for _, l := range m.labs {
		if f.Keyword == "" || strings.Contains(strings.ToLower(l.Name), strings.ToLower(f.Keyword)) {
			out = append(out, l)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateLabService(_ context.Context, svc *LabService) error {
	svc.ID = m.id()
	m.services[svc.ID] = svc
	return nil
}

func (m *mockRepo) CreateExperiment(_ context.Context, _ int64, exp *Experiment) error {
	exp.ID = m.id()
	return nil
}

func (m *mockRepo) CreateParameter(_ context.Context, p *Parameter) error {
	if m.failOn == "parameter" {
		return errors.New("insert failed")
	}
	p.ID = m.id()
	m.params[p.ID] = p
	return nil
}

func (m *mockRepo) CreateBoundary(_ context.Context, b *Boundary) error {
	b.ID = m.id()
	m.boundaries[b.ParameterID] = append(m.boundaries[b.ParameterID], b)
	return nil
}

func (m *mockRepo) GetLabService(_ context.Context, id int64) (*LabService, error) {
	svc, ok := m.services[id]
	if !ok {
		return nil, apperror.NotFound("lab service", id)
	}
	return svc, nil
}

func (m *mockRepo) ListLabServices(_ context.Context, f ServiceFilter) ([]*LabService, int, error) {
	var out []*LabService
	for _, s := range m.services {
		if f.LabID == nil || s.LabID == *f.LabID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) GetParameter(_ context.Context, id int64) (*Parameter, error) {
	p, ok := m.params[id]
	if !ok {
		return nil, apperror.NotFound("parameter", id)
	}
	return p, nil
}

func (m *mockRepo) ListBoundaries(_ context.Context, parameterID int64) ([]*Boundary, error) {
	return m.boundaries[parameterID], nil
}

func (m *mockRepo) ParametersByID(_ context.Context, ids []int64) (map[int64]*Parameter, error) {
	out := map[int64]*Parameter{}
	for _, id := range ids {
		if p, ok := m.params[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeTx struct{ calls int }

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

func newTestService() (*Service, *mockRepo, *fakeTx) {
	repo := newMockRepo()
	tx := &fakeTx{}
	return NewService(repo, tx, zerolog.Nop()), repo, tx
}

func panelService(labID int64) *LabService {
	return &LabService{
		LabID:             labID,
		Name:              "Full Blood Count",
		EstTurnAroundTime: 120,
		Experiments: []*Experiment{{
			Name: "Haematology",
			Parameters: []*Parameter{{
				Name:          "Haemoglobin",
				MeasuringUnit: "g/dL",
				Type:          ParameterNumber,
				Boundaries: []*Boundary{
					{LowerBound: "12", UpperBound: "17.5", Type: BoundaryNormal},
					{LowerBound: "", UpperBound: "11.9", Type: BoundaryAbnormal},
				},
			}},
		}},
	}
}

// -- Tests --

func TestCreateLaboratory(t *testing.T) {
	svc, _, _ := newTestService()
	lab := &Laboratory{Name: "  Haematology Lab "}
	if err := svc.CreateLaboratory(context.Background(), lab); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lab.ID == 0 || lab.Name != "Haematology Lab" {
		t.Errorf("unexpected lab %+v", lab)
	}

	err := svc.CreateLaboratory(context.Background(), &Laboratory{Name: " "})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateLabService_Nested(t *testing.T) {
	svc, repo, tx := newTestService()
	lab := &Laboratory{Name: "Main"}
	_ = svc.CreateLaboratory(context.Background(), lab)

	ls := panelService(lab.ID)
	if err := svc.CreateLabService(context.Background(), ls); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.calls != 1 {
		t.Errorf("expected one transaction, got %d", tx.calls)
	}
	p := ls.Experiments[0].Parameters[0]
	if p.ExperimentID != ls.Experiments[0].ID {
		t.Errorf("parameter not linked to experiment")
	}
	if got := len(repo.boundaries[p.ID]); got != 2 {
		t.Errorf("expected 2 boundaries, got %d", got)
	}
}

func TestCreateLabService_UnknownLab(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.CreateLabService(context.Background(), panelService(99))
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateLabService_InvalidTypes(t *testing.T) {
	svc, _, tx := newTestService()
	ls := panelService(1)
	ls.Experiments[0].Parameters[0].Type = "Colour"
	if err := svc.CreateLabService(context.Background(), ls); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	ls = panelService(1)
	ls.Experiments[0].Parameters[0].Boundaries[0].Type = "Borderline"
	if err := svc.CreateLabService(context.Background(), ls); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if tx.calls != 0 {
		t.Error("no transaction should start for invalid input")
	}
}

func TestCreateLabService_PropagatesRepoError(t *testing.T) {
	svc, repo, _ := newTestService()
	lab := &Laboratory{Name: "Main"}
	_ = svc.CreateLaboratory(context.Background(), lab)
	repo.failOn = "parameter"

	if err := svc.CreateLabService(context.Background(), panelService(lab.ID)); err == nil {
		t.Fatal("expected error")
	}
}

func TestClassifyReading(t *testing.T) {
	svc, _, _ := newTestService()
	lab := &Laboratory{Name: "Main"}
	_ = svc.CreateLaboratory(context.Background(), lab)
	ls := panelService(lab.ID)
	_ = svc.CreateLabService(context.Background(), ls)
	pid := ls.Experiments[0].Parameters[0].ID

	tests := map[string]Classification{
		"14":    ClassNormal,
		"9.5":   ClassAbnormal,
		"30":    ClassUnclassified,
		"blank": ClassUnclassified,
	}
	for value, want := range tests {
		got, err := svc.ClassifyReading(context.Background(), pid, value)
		if err != nil {
			t.Fatalf("ClassifyReading(%q) error: %v", value, err)
		}
		if got != want {
			t.Errorf("ClassifyReading(%q) = %s, want %s", value, got, want)
		}
	}

	if _, err := svc.ClassifyReading(context.Background(), 999, "1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListBoundaries(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.params[5] = &Parameter{ID: 5, Type: ParameterDescription}

	bounds, err := svc.ListBoundaries(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bounds == nil || len(bounds) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", bounds)
	}

	if _, err := svc.ListBoundaries(context.Background(), 6); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListLabServices_DefaultLimit(t *testing.T) {
	svc, _, _ := newTestService()
	lab := &Laboratory{Name: "Main"}
	_ = svc.CreateLaboratory(context.Background(), lab)
	_ = svc.CreateLabService(context.Background(), panelService(lab.ID))

	items, total, err := svc.ListLabServices(context.Background(), ServiceFilter{LabID: &lab.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected 1 service, got %d", total)
	}
}
