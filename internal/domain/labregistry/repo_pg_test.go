package labregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/labflow/labflow/internal/platform/apperror"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRepoPG_ListLaboratories(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM laboratory WHERE \(name ILIKE \$1 OR description ILIKE \$2\)`).
		WithArgs("%chem%", "%chem%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT id, name, description FROM laboratory .* ORDER BY name LIMIT 20 OFFSET 0`).
		WithArgs("%chem%", "%chem%").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}).
			AddRow(int64(3), "Chemistry", "Clinical chemistry"))

	labs, total, err := NewRepoPG(mock).ListLaboratories(context.Background(), LabFilter{Keyword: "chem", Limit: 20})
	if err != nil {
		t.Fatalf("ListLaboratories() error: %v", err)
	}
	if total != 1 || len(labs) != 1 || labs[0].Name != "Chemistry" {
		t.Errorf("unexpected result %d %+v", total, labs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRepoPG_CreateLaboratory_Duplicate(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`INSERT INTO laboratory`).WithArgs("Chemistry", "").
		WillReturnError(&uniqueViolation)

	err := NewRepoPG(mock).CreateLaboratory(context.Background(), &Laboratory{Name: "Chemistry"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRepoPG_GetLabService_Nested(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`FROM lab_service WHERE id = \$1`).WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "lab_id", "name", "description", "est_turn_around_time"}).
			AddRow(int64(2), int64(1), "FBC", "", 90))
	mock.ExpectQuery(`FROM lab_experiment e`).WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(10), "Haematology"))
	mock.ExpectQuery(`FROM lab_experiment_parameter WHERE experiment_id = ANY`).WithArgs([]int64{10}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "experiment_id", "name", "measuring_unit", "parameter_type"}).
			AddRow(int64(20), int64(10), "Hb", "g/dL", ParameterNumber).
			AddRow(int64(21), int64(10), "Film", "", ParameterDescription))
	mock.ExpectQuery(`FROM lab_parameter_boundary`).WithArgs([]int64{20, 21}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "parameter_id", "lower_bound", "upper_bound", "boundary_type"}).
			AddRow(int64(30), int64(20), "12", "17.5", BoundaryNormal))

	svc, err := NewRepoPG(mock).GetLabService(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetLabService() error: %v", err)
	}
	if len(svc.Experiments) != 1 || len(svc.Experiments[0].Parameters) != 2 {
		t.Fatalf("unexpected nesting %+v", svc)
	}
	hb := svc.Experiments[0].Parameters[0]
	if len(hb.Boundaries) != 1 || hb.Boundaries[0].UpperBound != "17.5" {
		t.Errorf("expected Hb boundary, got %+v", hb.Boundaries)
	}
	if svc.Experiments[0].Parameters[1].Boundaries != nil {
		t.Error("Film should have no boundaries")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRepoPG_GetParameter_NotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`FROM lab_experiment_parameter WHERE id = \$1`).WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := NewRepoPG(mock).GetParameter(context.Background(), 9)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepoPG_ParametersByID_Empty(t *testing.T) {
	mock := newMockPool(t)
	got, err := NewRepoPG(mock).ParametersByID(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty map, got %v %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

var uniqueViolation = pgconn.PgError{Code: "23505", ConstraintName: "laboratory_name_key"}
