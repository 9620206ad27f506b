package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrate.sql
var migrateSQL string

// Migrate applies the full schema idempotently. Safe to call on every
// startup — every statement uses IF NOT EXISTS. If a prior partial
// migration left a single table in a state the embedded schema no longer
// matches, it self-heals by dropping and recreating that one table rather
// than failing startup outright.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrateSQL)
	if err == nil {
		return nil
	}
	if !schemaDrift(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.TableName == "" {
		return fmt.Errorf("schema drift detected but no table identified, manual migration required: %w", err)
	}
	if recreateErr := s.recreateTable(ctx, pgErr.TableName); recreateErr != nil {
		return fmt.Errorf("recreate drifted table %s: %w", pgErr.TableName, recreateErr)
	}
	return nil
}

// schemaDrift reports whether err looks like the schema is out of date
// (missing column/table) rather than a data problem.
func schemaDrift(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42703", "42P01": // undefined_column, undefined_table
		return true
	}
	return false
}

// recreateTable drops and recreates a single table from the embedded schema
// when drift is detected — mirrors the ingest_state self-healing pattern: a
// single stale table shouldn't require a manual migration to fix in a
// single-operator deployment.
func (s *Store) recreateTable(ctx context.Context, table string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return s.Migrate(ctx)
}
