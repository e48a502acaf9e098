// Package backup copies database files to and from backups. Copies are plain
// filesystem copies, not engine-level online backups: a file that is being
// written while it is copied may produce an inconsistent backup.
package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/sqlitectl/internal/database"
	"github.com/saltyorg/sqlitectl/internal/fsutil"
)

const (
	backupInfix   = ".backup."
	snapshotInfix = ".before-restore."

	// timestampLayout is ISO 8601 in UTC with millisecond precision.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Options controls optional backup behaviour.
type Options struct {
	// Verify runs an integrity check against the finished copy.
	Verify bool
}

// Result describes a file written by Backup or Restore.
type Result struct {
	Path string
	Size int64
	// Snapshot is the pre-restore copy of the previous database, if one was
	// taken.
	Snapshot string
}

// Timestamp renders t as a filesystem-safe ISO 8601 UTC string, with ':' and
// '.' replaced by '-', e.g. 2026-10-16T08-30-12-345Z.
func Timestamp(t time.Time) string {
	s := t.UTC().Format(timestampLayout)
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// DefaultPath returns the backup path used when none is given.
func DefaultPath(src string, now time.Time) string {
	return src + backupInfix + Timestamp(now)
}

// SnapshotPath returns the path of the safety copy taken before dst is
// overwritten by a restore.
func SnapshotPath(dst string, now time.Time) string {
	return dst + snapshotInfix + strconv.FormatInt(now.UnixMilli(), 10)
}

// Backup copies src to dst and restricts dst to owner read/write. An empty
// dst is replaced by DefaultPath(src, now), which must not exist yet; an
// explicit dst is overwritten. dst may not be src itself.
func Backup(ctx context.Context, src, dst string, now time.Time, opts Options) (*Result, error) {
	if err := fsutil.RequireFile(src); err != nil {
		return nil, err
	}
	copyFn := fsutil.CopyFile
	if dst == "" {
		dst = DefaultPath(src, now)
		copyFn = fsutil.CopyNew
	}

	if sidecars := fsutil.Sidecars(src); len(sidecars) > 0 {
		log.Warn().
			Str("path", src).
			Strs("sidecars", sidecars).
			Msg("Database has WAL sidecar files; uncheckpointed transactions are not part of the backup")
	}

	log.Info().Str("source", src).Str("destination", dst).Msg("Creating backup")

	size, err := copyRestricted(copyFn, src, dst)
	if err != nil {
		return nil, err
	}

	if opts.Verify {
		if err := verify(ctx, dst); err != nil {
			return nil, fmt.Errorf("backup verification failed for %s: %w", dst, err)
		}
		log.Debug().Str("path", dst).Msg("Backup passed integrity check")
	}

	log.Info().
		Str("path", dst).
		Str("size", humanize.IBytes(uint64(size))).
		Msg("Backup created")

	return &Result{Path: dst, Size: size}, nil
}

// Restore copies the backup at src over dst. When dst already exists it is
// first copied to SnapshotPath(dst, now); a failed snapshot, including one
// whose path is already taken, aborts the restore and leaves dst untouched.
func Restore(src, dst string, now time.Time) (*Result, error) {
	if err := fsutil.RequireFile(src); err != nil {
		return nil, err
	}

	same, err := fsutil.SameFile(src, dst)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, fmt.Errorf("%w: cannot restore %s onto itself", fsutil.ErrFilesystem, dst)
	}

	result := &Result{Path: dst}

	exists, err := fsutil.Exists(dst)
	if err != nil {
		return nil, err
	}
	if exists {
		snapshot := SnapshotPath(dst, now)
		if _, err := copyRestricted(fsutil.CopyNew, dst, snapshot); err != nil {
			return nil, fmt.Errorf("failed to snapshot %s before restore: %w", dst, err)
		}
		result.Snapshot = snapshot
		log.Info().Str("path", dst).Str("snapshot", snapshot).Msg("Saved current database before restore")
	}

	log.Info().Str("source", src).Str("destination", dst).Msg("Restoring backup")

	size, err := copyRestricted(fsutil.CopyFile, src, dst)
	if err != nil {
		return nil, err
	}
	result.Size = size

	if sidecars := fsutil.Sidecars(dst); len(sidecars) > 0 {
		log.Warn().
			Str("path", dst).
			Strs("sidecars", sidecars).
			Msg("Stale WAL sidecar files remain next to the restored database; remove them before opening it")
	}

	log.Info().
		Str("path", dst).
		Str("size", humanize.IBytes(uint64(size))).
		Msg("Backup restored")

	return result, nil
}

func copyRestricted(copyFn func(src, dst string) (int64, error), src, dst string) (int64, error) {
	size, err := copyFn(src, dst)
	if err != nil {
		return 0, err
	}
	if err := fsutil.Restrict(dst); err != nil {
		return 0, err
	}
	return size, nil
}

func verify(ctx context.Context, path string) error {
	s, err := database.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to close backup after verification")
		}
	}()
	return s.IntegrityCheck(ctx)
}
