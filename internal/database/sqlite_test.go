package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
)

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate-test.db")
	db, err := NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate pass %d: %v", i+1, err)
		}
	}

	// The ledger records each migration file once, no matter how many
	// times Migrate runs.
	var applied int
	row := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`)
	if err := row.Scan(&applied); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", applied)
	}

	// The schema is usable after repeated passes.
	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO audit_runs (status, inventory, device_count, workers, started_at)
		 VALUES ('completed', 'devices.yaml', 1, 5, '2026-08-30T00:00:00Z')`); err != nil {
		t.Errorf("inserting into migrated schema: %v", err)
	}
}
