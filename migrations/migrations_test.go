package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreGooseAnnotated(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", len(names))
	}
	for _, name := range names {
		raw, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(raw)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Errorf("%s is missing goose Up/Down annotations", name)
		}
	}
}

func TestPipelineUniqueness(t *testing.T) {
	raw, err := fs.ReadFile(FS, "00003_lab_pipeline.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		"sample_id  BIGINT NOT NULL UNIQUE",
		"UNIQUE (sample_id, parameter_id)",
		"result_id   BIGINT NOT NULL UNIQUE",
		"booking_id  BIGINT NOT NULL UNIQUE",
		"UNIQUE (booking_id, action)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected constraint %q", want)
		}
	}
}
