// Package maintenance implements the optimize and stats operations against a
// single SQLite database file.
package maintenance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/sqlitectl/internal/config"
	"github.com/saltyorg/sqlitectl/internal/database"
	"github.com/saltyorg/sqlitectl/internal/fsutil"
)

// Settings returns the pragma assignments for t in the order optimize applies
// them. page_size only takes effect on the following VACUUM and is silently
// ignored by the engine for WAL databases.
func Settings(t config.Tuning) []database.Setting {
	return []database.Setting{
		{Pragma: database.PragmaJournalMode, Value: t.JournalMode},
		{Pragma: database.PragmaSynchronous, Value: t.Synchronous},
		{Pragma: database.PragmaCacheSize, Value: strconv.Itoa(t.CacheSize)},
		{Pragma: database.PragmaTempStore, Value: t.TempStore},
		{Pragma: database.PragmaMmapSize, Value: strconv.FormatInt(t.MmapSize, 10)},
		{Pragma: database.PragmaPageSize, Value: strconv.Itoa(t.PageSize)},
		{Pragma: database.PragmaAutoVacuum, Value: t.AutoVacuum},
	}
}

type step struct {
	name string
	run  func(context.Context, *database.Session) error
}

func steps(t config.Tuning) []step {
	var out []step
	for _, setting := range Settings(t) {
		setting := setting // per-iteration copy for the closure below (go < 1.22)
		out = append(out, step{
			name: fmt.Sprintf("set %s=%s", setting.Pragma, setting.Value),
			run: func(ctx context.Context, s *database.Session) error {
				return s.SetPragma(ctx, setting.Pragma, setting.Value)
			},
		})
	}
	return append(out,
		step{name: "analyze", run: func(ctx context.Context, s *database.Session) error {
			return s.Analyze(ctx)
		}},
		step{name: "vacuum", run: func(ctx context.Context, s *database.Session) error {
			return s.Vacuum(ctx)
		}},
		step{name: "integrity check", run: func(ctx context.Context, s *database.Session) error {
			return s.IntegrityCheck(ctx)
		}},
	)
}

// Optimize applies the tuning pragmas, then runs ANALYZE, VACUUM and an
// integrity check, in that order. The first failing step aborts the rest.
// The session is closed on every path.
func Optimize(ctx context.Context, path string, tuning config.Tuning) (err error) {
	if err := fsutil.RequireFile(path); err != nil {
		return err
	}

	sizeBefore := fileSize(path)
	start := time.Now()

	log.Info().Str("path", path).Msg("Optimizing database")

	s, err := database.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				log.Warn().Err(cerr).Str("path", path).Msg("Failed to close database after error")
			}
		}
	}()

	for _, st := range steps(tuning) {
		stepStart := time.Now()
		if err := st.run(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		log.Debug().
			Str("step", st.name).
			Dur("duration", time.Since(stepStart).Truncate(time.Millisecond)).
			Msg("Optimize step complete")
	}

	sizeAfter := fileSize(path)
	log.Info().
		Str("path", path).
		Str("size_before", humanize.IBytes(uint64(sizeBefore))).
		Str("size_after", humanize.IBytes(uint64(sizeAfter))).
		Dur("duration", time.Since(start).Truncate(time.Millisecond)).
		Msg("Database optimized")

	return nil
}

// fileSize is used for log fields only, so a failed stat is not fatal.
func fileSize(path string) int64 {
	size, err := fsutil.Size(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Failed to read database size")
	}
	return size
}
