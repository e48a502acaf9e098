package database

import (
	"context"
	"fmt"
	"strings"
)

// IntegrityError carries every diagnostic row returned by a failed
// PRAGMA integrity_check.
type IntegrityError struct {
	Diagnostics []string
}

func (e *IntegrityError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "integrity check failed: no result returned"
	}
	return "integrity check failed: " + strings.Join(e.Diagnostics, "; ")
}

// Is makes errors.Is(err, ErrIntegrityCheckFailed) match.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityCheckFailed
}

// Analyze refreshes the query planner statistics.
func (s *Session) Analyze(ctx context.Context) error {
	if err := s.Exec(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}
	return nil
}

// Vacuum rebuilds the database file to reclaim unused space.
func (s *Session) Vacuum(ctx context.Context) error {
	if err := s.Exec(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check and succeeds only when the engine
// returns the single row "ok".
func (s *Session) IntegrityCheck(ctx context.Context) error {
	rows, err := s.QueryStrings(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if len(rows) == 1 && rows[0] == "ok" {
		return nil
	}
	return &IntegrityError{Diagnostics: rows}
}

// Tables lists user tables, skipping the engine's internal sqlite_ tables.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	tables, err := s.QueryStrings(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// CountRows returns the number of rows in table.
func (s *Session) CountRows(ctx context.Context, table string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var count int64
	stmt := "SELECT COUNT(*) FROM " + quoteIdent(table)
	if err := s.queryRow(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count rows in %s: %w", ErrEngine, table, err)
	}
	return count, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
