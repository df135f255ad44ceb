package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver used by goose
	"github.com/pressly/goose/v3"
)

// Migrator applies the embedded goose migrations.
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

// MigrationStatus describes one migration source and whether it has been applied.
type MigrationStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// NewMigrator opens a database/sql handle for databaseURL and prepares a goose
// provider over fsys.
func NewMigrator(databaseURL string, fsys fs.FS) (*Migrator, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	m, err := NewMigratorFromDB(sqlDB, fsys)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return m, nil
}

func NewMigratorFromDB(sqlDB *sql.DB, fsys fs.FS) (*Migrator, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return &Migrator{db: sqlDB, provider: provider}, nil
}

func (m *Migrator) Close() error {
	return m.db.Close()
}

// Sources lists the migrations known to the provider, oldest first.
func (m *Migrator) Sources() []MigrationStatus {
	sources := m.provider.ListSources()
	out := make([]MigrationStatus, 0, len(sources))
	for _, s := range sources {
		out = append(out, MigrationStatus{Version: s.Version, Name: path.Base(s.Path)})
	}
	return out
}

// Up applies all pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}

// Down rolls back the most recent migration. It returns nil, nil when
// nothing is applied.
func (m *Migrator) Down(ctx context.Context) (*MigrationStatus, error) {
	res, err := m.provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("roll back migration: %w", err)
	}
	return &MigrationStatus{Version: res.Source.Version, Name: path.Base(res.Source.Path)}, nil
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		ms := MigrationStatus{
			Version: s.Source.Version,
			Name:    path.Base(s.Source.Path),
			Applied: s.State == goose.StateApplied,
		}
		if ms.Applied && !s.AppliedAt.IsZero() {
			at := s.AppliedAt
			ms.AppliedAt = &at
		}
		out = append(out, ms)
	}
	return out, nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}
