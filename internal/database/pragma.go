package database

import (
	"context"
	"fmt"
	"regexp"
)

// Pragma is the name of an SQLite engine parameter.
type Pragma string

const (
	PragmaJournalMode Pragma = "journal_mode"
	PragmaSynchronous Pragma = "synchronous"
	PragmaCacheSize   Pragma = "cache_size"
	PragmaTempStore   Pragma = "temp_store"
	PragmaMmapSize    Pragma = "mmap_size"
	PragmaPageSize    Pragma = "page_size"
	PragmaAutoVacuum  Pragma = "auto_vacuum"
)

// Setting pairs a pragma with the value to assign to it.
type Setting struct {
	Pragma Pragma
	Value  string
}

// Pragma values are interpolated into the statement, so only bare keywords
// and integers are accepted.
var pragmaValuePattern = regexp.MustCompile(`^-?[A-Za-z0-9_]+$`)

// SetPragma assigns value to the pragma. Any rows the engine returns (for
// example the new journal mode) are read and discarded.
func (s *Session) SetPragma(ctx context.Context, p Pragma, value string) error {
	if !pragmaValuePattern.MatchString(value) {
		return fmt.Errorf("%w: invalid value %q for pragma %s", ErrEngine, value, p)
	}
	stmt := fmt.Sprintf("PRAGMA %s = %s", p, value)
	if _, err := s.Query(ctx, stmt); err != nil {
		return err
	}
	return nil
}

// GetPragma reads the current value of the pragma as text.
func (s *Session) GetPragma(ctx context.Context, p Pragma) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	var value string
	stmt := fmt.Sprintf("PRAGMA %s", p)
	if err := s.queryRow(ctx, stmt).Scan(&value); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrEngine, stmt, err)
	}
	return value, nil
}

// Apply sets each pragma in order and stops at the first failure.
func (s *Session) Apply(ctx context.Context, settings []Setting) error {
	for _, setting := range settings {
		if err := s.SetPragma(ctx, setting.Pragma, setting.Value); err != nil {
			return err
		}
	}
	return nil
}
