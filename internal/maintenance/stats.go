package maintenance

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/sqlitectl/internal/database"
	"github.com/saltyorg/sqlitectl/internal/fsutil"
)

// KnownTables are the tables whose row counts appear in the stats report.
// Tables that do not exist in the file are left out of the report.
var KnownTables = []string{"users", "streamers", "user_gifts", "avatars", "gifts"}

// ReportedPragmas are read back, in order, for the stats report.
var ReportedPragmas = []database.Pragma{
	database.PragmaJournalMode,
	database.PragmaSynchronous,
	database.PragmaCacheSize,
	database.PragmaPageSize,
	database.PragmaAutoVacuum,
}

const unknownValue = "unknown"

// TableCount is the row count of one table.
type TableCount struct {
	Name string
	Rows int64
}

// PragmaValue is the current value of one pragma.
type PragmaValue struct {
	Pragma database.Pragma
	Value  string
}

// Report is the read-only summary produced by Stats.
type Report struct {
	Path       string
	SizeBytes  int64
	TableCount int
	RowCounts  []TableCount
	Pragmas    []PragmaValue
}

// SizeMB returns the file size in megabytes.
func (r *Report) SizeMB() float64 {
	return float64(r.SizeBytes) / 1024 / 1024
}

// Pragma returns the reported value for p, or "" if it was not reported.
func (r *Report) Pragma(p database.Pragma) string {
	for _, pv := range r.Pragmas {
		if pv.Pragma == p {
			return pv.Value
		}
	}
	return ""
}

// WriteTo renders the report as text.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Database: %s\n", r.Path)
	fmt.Fprintf(&b, "Size: %.2f MB\n", r.SizeMB())
	fmt.Fprintf(&b, "Tables: %d\n", r.TableCount)

	if len(r.RowCounts) > 0 {
		b.WriteString("\nRow counts:\n")
		for _, tc := range r.RowCounts {
			fmt.Fprintf(&b, "  %-12s %d\n", tc.Name, tc.Rows)
		}
	}

	b.WriteString("\nSettings:\n")
	for _, pv := range r.Pragmas {
		fmt.Fprintf(&b, "  %-12s %s\n", pv.Pragma, pv.Value)
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Stats collects the report for path without modifying it. Only a missing
// file or a failure to list tables is returned as an error; missing known
// tables and unreadable pragmas are tolerated.
func Stats(ctx context.Context, path string) (*Report, error) {
	if err := fsutil.RequireFile(path); err != nil {
		return nil, err
	}

	size, err := fsutil.Size(path)
	if err != nil {
		return nil, err
	}

	s, err := database.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to close database")
		}
	}()

	report := &Report{
		Path:      path,
		SizeBytes: size,
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	report.TableCount = len(tables)

	for _, table := range KnownTables {
		rows, err := s.CountRows(ctx, table)
		if err != nil {
			log.Trace().Err(err).Str("table", table).Msg("Skipping table")
			continue
		}
		report.RowCounts = append(report.RowCounts, TableCount{Name: table, Rows: rows})
	}

	for _, p := range ReportedPragmas {
		value, err := s.GetPragma(ctx, p)
		if err != nil {
			log.Error().Err(err).Str("pragma", string(p)).Msg("Failed to read pragma")
			value = unknownValue
		}
		report.Pragmas = append(report.Pragmas, PragmaValue{Pragma: p, Value: value})
	}

	return report, nil
}
