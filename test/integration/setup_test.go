//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labanalytics"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labregistry"
	"github.com/labflow/labflow/internal/domain/labresult"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/cache"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/migrations"
)

var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DatabaseURL: dsn, MaxConns: 10, MinConns: 1})
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	globalPool = pool

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// startPostgres runs postgres:17-alpine and applies the embedded migrations.
func startPostgres(ctx context.Context) (string, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "labtest",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start container: %w", err)
	}
	cleanup := func() {
		_ = container.Terminate(context.Background())
	}

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("get mapped port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/labtest?sslmode=disable", host, port.Port())

	m, err := db.NewMigrator(dsn, migrations.FS)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	defer m.Close()
	if _, err := m.Up(ctx); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("goose up: %w", err)
	}
	return dsn, cleanup, nil
}

// stack is the pipeline wired the way the server wires it, without Redis.
type stack struct {
	queue     *labqueue.Service
	samples   *labsample.Service
	results   *labresult.Service
	analytics *labanalytics.Service
	ledger    booking.Ledger
}

func newStack() *stack {
	logger := zerolog.Nop()
	tx := db.NewTxManager(globalPool)
	ledger := booking.NewLedgerPG(globalPool)
	actors := booking.NewActorDirectoryPG(globalPool)

	registry := labregistry.NewService(labregistry.NewRepoPG(globalPool), tx, logger)
	queue := labqueue.NewService(labqueue.NewRepoPG(globalPool), ledger, tx, labqueue.StatusWaiting, nil, logger)
	samples := labsample.NewService(labsample.NewRepoPG(globalPool), queue, actors, cache.New(nil, time.Minute, logger, nil), tx, nil, logger)
	analytics := labanalytics.NewService(labanalytics.NewRepoPG(globalPool), nil, logger)
	results := labresult.NewService(labresult.NewRepoPG(globalPool), labresult.Deps{
		Samples:    samples,
		Queue:      queue,
		Params:     registry,
		Completion: analytics,
		Ledger:     ledger,
		Actors:     actors,
	}, tx, nil, logger)

	return &stack{queue: queue, samples: samples, results: results, analytics: analytics, ledger: ledger}
}

// fixture is one booking with two booked services and a numeric parameter.
type fixture struct {
	BookingID   int64
	DetailIDs   [2]int64
	ParameterID int64
}

func seedBooking(t *testing.T, ctx context.Context) fixture {
	t.Helper()
	var f fixture
	var txnID, labID, expID int64
	var svcIDs [2]int64

	mustScan := func(dst *int64, sql string, args ...any) {
		t.Helper()
		if err := globalPool.QueryRow(ctx, sql, args...).Scan(dst); err != nil {
			t.Fatalf("seed %q: %v", sql, err)
		}
	}

	mustScan(&txnID, `INSERT INTO service_transaction DEFAULT VALUES RETURNING id`)
	mustScan(&f.BookingID, `INSERT INTO service_booking (transaction_id, client_first_name, client_last_name)
		VALUES ($1, 'Ada', 'Lovelace') RETURNING id`, txnID)
	mustScan(&labID, `INSERT INTO laboratory (name) VALUES ($1) RETURNING id`,
		fmt.Sprintf("Haematology %d", f.BookingID))
	for i := range svcIDs {
		mustScan(&svcIDs[i], `INSERT INTO lab_service (lab_id, name, est_turn_around_time) VALUES ($1, $2, 60) RETURNING id`,
			labID, fmt.Sprintf("Panel %d", i+1))
		mustScan(&f.DetailIDs[i], `INSERT INTO service_booking_detail (booking_id, lab_service_id) VALUES ($1, $2) RETURNING id`,
			f.BookingID, svcIDs[i])
	}
	mustScan(&expID, `INSERT INTO lab_experiment (name) VALUES ('Vitals') RETURNING id`)
	mustScan(&f.ParameterID, `INSERT INTO lab_experiment_parameter (experiment_id, name, measuring_unit, parameter_type)
		VALUES ($1, 'Temperature', 'F', 'Number') RETURNING id`, expID)
	if _, err := globalPool.Exec(ctx, `INSERT INTO lab_parameter_boundary (parameter_id, lower_bound, upper_bound, boundary_type)
		VALUES ($1, '97', '99', 'Normal')`, f.ParameterID); err != nil {
		t.Fatalf("seed boundary: %v", err)
	}
	if _, err := globalPool.Exec(ctx, `INSERT INTO actor (id, display_name) VALUES ('7', 'Tech Seven') ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed actor: %v", err)
	}
	return f
}

// queueAndCollect creates a Waiting queue entry for detailID and collects a
// sample against it.
func (s *stack) queueAndCollect(t *testing.T, ctx context.Context, detailID int64, priority labqueue.Priority) (*labqueue.Entry, *labsample.Sample) {
	t.Helper()
	entry, err := s.queue.Create(ctx, labqueue.CreateRequest{
		BookingDetailID: detailID,
		Priority:        priority,
		Status:          labqueue.StatusWaiting,
	})
	if err != nil {
		t.Fatalf("create queue entry: %v", err)
	}
	smp, err := s.samples.CollectSample(ctx, labsample.AddRequest{
		QueueID:        entry.ID,
		SampleType:     "Whole blood",
		CollectedBy:    "7",
		ContainerLabel: "TUBE-01",
	})
	if err != nil {
		t.Fatalf("collect sample: %v", err)
	}
	return entry, smp
}

func (s *stack) submit(t *testing.T, ctx context.Context, sampleID, parameterID int64) *labresult.Result {
	t.Helper()
	res, err := s.results.SubmitResult(ctx, labresult.SubmitRequest{
		CreateRequest: labresult.CreateRequest{SampleID: sampleID, CreatedBy: "7", Comment: "normal panel"},
		Readings:      []labresult.ReadingInput{{ParameterID: parameterID, Value: "98.6"}},
	})
	if err != nil {
		t.Fatalf("submit result: %v", err)
	}
	return res
}

func bookingStatus(t *testing.T, ctx context.Context, s *stack, bookingID int64) booking.Status {
	t.Helper()
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	return b.Status
}
