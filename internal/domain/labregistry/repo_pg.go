package labregistry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labflow/labflow/internal/platform/db"
)

type repoPG struct{ pool db.Querier }

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const (
	labCols       = `id, name, description`
	serviceCols   = `id, lab_id, name, description, est_turn_around_time`
	parameterCols = `id, experiment_id, name, measuring_unit, parameter_type`
	boundaryCols  = `id, parameter_id, lower_bound, upper_bound, boundary_type`
)

func scanService(row pgx.Row) (*LabService, error) {
	var s LabService
	err := row.Scan(&s.ID, &s.LabID, &s.Name, &s.Description, &s.EstTurnAroundTime)
	return &s, err
}

func scanParameter(row pgx.Row) (*Parameter, error) {
	var p Parameter
	err := row.Scan(&p.ID, &p.ExperimentID, &p.Name, &p.MeasuringUnit, &p.Type)
	return &p, err
}

func scanBoundary(row pgx.Row) (*Boundary, error) {
	var b Boundary
	err := row.Scan(&b.ID, &b.ParameterID, &b.LowerBound, &b.UpperBound, &b.Type)
	return &b, err
}

func (r *repoPG) CreateLaboratory(ctx context.Context, lab *Laboratory) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO laboratory (name, description) VALUES ($1, $2) RETURNING id`,
		lab.Name, lab.Description).Scan(&lab.ID)
	return db.MapError(err, "laboratory", lab.Name)
}

func (r *repoPG) GetLaboratory(ctx context.Context, id int64) (*Laboratory, error) {
	var lab Laboratory
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM laboratory WHERE id = $1`, id).
		Scan(&lab.ID, &lab.Name, &lab.Description)
	if err != nil {
		return nil, db.MapError(err, "laboratory", id)
	}
	return &lab, nil
}

func (r *repoPG) ListLaboratories(ctx context.Context, f LabFilter) ([]*Laboratory, int, error) {
	base := db.PSQL.Select().From("laboratory")
	if f.Keyword != "" {
		base = base.Where(db.ILikeAny(f.Keyword, "name", "description"))
	}

	var total int
	countSQL, countArgs, err := base.Column("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, err
	}
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "laboratory", nil)
	}

	query, args, err := base.Columns(labCols).OrderBy("name").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "laboratory", nil)
	}
	defer rows.Close()

	var labs []*Laboratory
	for rows.Next() {
		var lab Laboratory
		if err := rows.Scan(&lab.ID, &lab.Name, &lab.Description); err != nil {
			return nil, 0, fmt.Errorf("scan laboratory: %w", err)
		}
		labs = append(labs, &lab)
	}
	return labs, total, rows.Err()
}

func (r *repoPG) CreateLabService(ctx context.Context, svc *LabService) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_service (lab_id, name, description, est_turn_around_time)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		svc.LabID, svc.Name, svc.Description, svc.EstTurnAroundTime).Scan(&svc.ID)
	return db.MapError(err, "lab service", svc.Name)
}

func (r *repoPG) CreateExperiment(ctx context.Context, labServiceID int64, exp *Experiment) error {
	q := r.conn(ctx)
	if err := q.QueryRow(ctx,
		`INSERT INTO lab_experiment (name) VALUES ($1) RETURNING id`, exp.Name).Scan(&exp.ID); err != nil {
		return db.MapError(err, "experiment", exp.Name)
	}
	_, err := q.Exec(ctx,
		`INSERT INTO lab_service_experiment (lab_service_id, experiment_id) VALUES ($1, $2)`,
		labServiceID, exp.ID)
	return db.MapError(err, "experiment", exp.ID)
}

func (r *repoPG) CreateParameter(ctx context.Context, p *Parameter) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_experiment_parameter (experiment_id, name, measuring_unit, parameter_type)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		p.ExperimentID, p.Name, p.MeasuringUnit, string(p.Type)).Scan(&p.ID)
	return db.MapError(err, "parameter", p.Name)
}

func (r *repoPG) CreateBoundary(ctx context.Context, b *Boundary) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO lab_parameter_boundary (parameter_id, lower_bound, upper_bound, boundary_type)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		b.ParameterID, b.LowerBound, b.UpperBound, string(b.Type)).Scan(&b.ID)
	return db.MapError(err, "boundary", b.ParameterID)
}

func (r *repoPG) GetLabService(ctx context.Context, id int64) (*LabService, error) {
	q := r.conn(ctx)
	svc, err := scanService(q.QueryRow(ctx, `SELECT `+serviceCols+` FROM lab_service WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "lab service", id)
	}

	rows, err := q.Query(ctx,
		`SELECT e.id, e.name FROM lab_experiment e
		JOIN lab_service_experiment se ON se.experiment_id = e.id
		WHERE se.lab_service_id = $1 ORDER BY e.id`, id)
	if err != nil {
		return nil, db.MapError(err, "experiment", nil)
	}
	byID := map[int64]*Experiment{}
	var expIDs []int64
	for rows.Next() {
		var e Experiment
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		svc.Experiments = append(svc.Experiments, &e)
		byID[e.ID] = &e
		expIDs = append(expIDs, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(expIDs) == 0 {
		return svc, nil
	}

	params, err := r.queryParameters(ctx,
		`SELECT `+parameterCols+` FROM lab_experiment_parameter WHERE experiment_id = ANY($1) ORDER BY id`, expIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		if e, ok := byID[p.ExperimentID]; ok {
			e.Parameters = append(e.Parameters, p)
		}
	}
	return svc, nil
}

func (r *repoPG) ListLabServices(ctx context.Context, f ServiceFilter) ([]*LabService, int, error) {
	base := db.PSQL.Select().From("lab_service")
	if f.LabID != nil {
		base = base.Where("lab_id = ?", *f.LabID)
	}
	if f.Keyword != "" {
		base = base.Where(db.ILikeAny(f.Keyword, "name", "description"))
	}

	var total int
	countSQL, countArgs, err := base.Column("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, err
	}
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "lab service", nil)
	}

	query, args, err := base.Columns(serviceCols).OrderBy("id").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err, "lab service", nil)
	}
	defer rows.Close()

	var out []*LabService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lab service: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repoPG) GetParameter(ctx context.Context, id int64) (*Parameter, error) {
	p, err := scanParameter(r.conn(ctx).QueryRow(ctx,
		`SELECT `+parameterCols+` FROM lab_experiment_parameter WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "parameter", id)
	}
	return p, nil
}

func (r *repoPG) ListBoundaries(ctx context.Context, parameterID int64) ([]*Boundary, error) {
	byParam, err := r.boundariesFor(ctx, []int64{parameterID})
	if err != nil {
		return nil, err
	}
	return byParam[parameterID], nil
}

func (r *repoPG) ParametersByID(ctx context.Context, ids []int64) (map[int64]*Parameter, error) {
	out := make(map[int64]*Parameter, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	params, err := r.queryParameters(ctx,
		`SELECT `+parameterCols+` FROM lab_experiment_parameter WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		out[p.ID] = p
	}
	return out, nil
}

// queryParameters runs a parameter query and attaches each row's boundaries.
func (r *repoPG) queryParameters(ctx context.Context, query string, args ...any) ([]*Parameter, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "parameter", nil)
	}
	var params []*Parameter
	var ids []int64
	for rows.Next() {
		p, err := scanParameter(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		params = append(params, p)
		ids = append(ids, p.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return params, nil
	}

	bounds, err := r.boundariesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		p.Boundaries = bounds[p.ID]
	}
	return params, nil
}

func (r *repoPG) boundariesFor(ctx context.Context, parameterIDs []int64) (map[int64][]*Boundary, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+boundaryCols+` FROM lab_parameter_boundary WHERE parameter_id = ANY($1) ORDER BY id`,
		parameterIDs)
	if err != nil {
		return nil, db.MapError(err, "boundary", nil)
	}
	defer rows.Close()

	out := map[int64][]*Boundary{}
	for rows.Next() {
		b, err := scanBoundary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan boundary: %w", err)
		}
		out[b.ParameterID] = append(out[b.ParameterID], b)
	}
	return out, rows.Err()
}
