package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/sqlitectl/internal/backup"
	"github.com/saltyorg/sqlitectl/internal/config"
	"github.com/saltyorg/sqlitectl/internal/database"
	"github.com/saltyorg/sqlitectl/internal/fsutil"
	"github.com/saltyorg/sqlitectl/internal/logging"
	"github.com/saltyorg/sqlitectl/internal/maintenance"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDBPath = "data.sqlite"
	autoLogFile   = "auto"
)

// errFailed is returned by commands that have already logged why they failed.
var errFailed = errors.New("operation failed")

// CLI flags. Positional arguments beyond the documented ones are ignored.
var (
	verbosity    int
	logFile      string
	verifyBackup bool
)

// now is replaced in tests.
var now = time.Now

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout io.Writer) int {
	defer func() {
		if err := logging.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()

	loader := config.NewLoader(config.EnvSettings{})
	logging.Apply("info", loader, "")

	rootCmd := newRootCmd(loader, stdout)
	rootCmd.SetArgs(args)

	if cmd, err := rootCmd.ExecuteContextC(context.Background()); err != nil {
		if !errors.Is(err, errFailed) {
			log.Error().Err(err).Msg("Invalid usage")
			_ = cmd.Usage()
		}
		return 1
	}
	return 0
}

func newRootCmd(loader *config.Loader, stdout io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlitectl",
		Short: "sqlitectl - SQLite database maintenance tool",
		Long: `sqlitectl tunes, inspects, backs up and restores a single SQLite database file.

The database path defaults to ./` + defaultDBPath + ` (or SQLITECTL_DB_PATH).
Engine parameters applied by optimize can be overridden with SQLITECTL_TUNING_* variables.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(loader, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetOut(stdout)

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", `Also write logs to a rotating file ("auto" places it next to the database)`)
	rootCmd.PersistentFlags().Lookup("log-file").NoOptDefVal = autoLogFile

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "optimize [db_path]",
			Short: "Apply tuning pragmas, then ANALYZE, VACUUM and verify integrity",
			Args:  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOptimize(cmd.Context(), loader, dbPathFromArgs(loader, args))
			},
		},
		&cobra.Command{
			Use:   "stats [db_path]",
			Short: "Report file size, tables, row counts and engine settings",
			Args:  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				runStats(cmd.Context(), dbPathFromArgs(loader, args), cmd.OutOrStdout())
				return nil
			},
		},
		newBackupCmd(loader),
		&cobra.Command{
			Use:   "restore [db_path] [backup_path]",
			Short: "Restore a backup over the database, keeping a copy of the current file",
			Args:  requireBackupPath,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRestore(args[1], dbPathFromArgs(loader, args))
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sqlitectl %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	return rootCmd
}

func newBackupCmd(loader *config.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [db_path] [backup_path]",
		Short: "Copy the database to a backup file readable only by its owner",
		Long: `Copy the database to backup_path. Without backup_path the copy is written to
<db_path>.backup.<UTC timestamp>. This is a plain file copy; stop writers first
for a consistent backup.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var dst string
			if len(args) > 1 {
				dst = args[1]
			}
			return runBackup(cmd.Context(), dbPathFromArgs(loader, args), dst)
		},
	}
	cmd.Flags().BoolVar(&verifyBackup, "verify", false, "Run an integrity check against the finished backup")
	return cmd
}

// requireBackupPath runs before the persistent pre-run, so a missing backup
// path is rejected before logging touches the filesystem.
func requireBackupPath(cmd *cobra.Command, args []string) error {
	if len(args) < 2 || args[1] == "" {
		return errors.New("restore requires a backup path")
	}
	return nil
}

func dbPathFromArgs(loader *config.Loader, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return loader.String("db_path", defaultDBPath)
}

func setupLogging(loader *config.Loader, args []string) {
	level := loader.String("log.level", "info")
	if verbosity > 0 {
		level = logging.LevelForVerbosity(verbosity)
	}

	path := logFile
	if path == "" {
		path = loader.String("log.file", "")
	}
	if path == autoLogFile {
		path = logging.FilePathForDB(dbPathFromArgs(loader, args))
	}

	logging.Apply(level, loader, path)
}

func runOptimize(ctx context.Context, loader *config.Loader, path string) error {
	if err := maintenance.Optimize(ctx, path, config.LoadTuning(loader)); err != nil {
		logFailure(err, path, "Optimize failed")
		return errFailed
	}
	return nil
}

func runStats(ctx context.Context, path string, out io.Writer) {
	report, err := maintenance.Stats(ctx, path)
	if err != nil {
		logFailure(err, path, "Stats failed")
		return
	}
	if _, err := report.WriteTo(out); err != nil {
		log.Error().Err(err).Msg("Failed to write stats report")
	}
}

func runBackup(ctx context.Context, src, dst string) error {
	if _, err := backup.Backup(ctx, src, dst, now(), backup.Options{Verify: verifyBackup}); err != nil {
		logFailure(err, src, "Backup failed")
		return errFailed
	}
	return nil
}

func runRestore(src, dst string) error {
	if _, err := backup.Restore(src, dst, now()); err != nil {
		logFailure(err, dst, "Restore failed")
		return errFailed
	}
	return nil
}

func logFailure(err error, path, msg string) {
	if errors.Is(err, fsutil.ErrNotFound) {
		log.Error().Err(err).Str("path", path).Msg(msg + ": file not found")
		return
	}

	var integrityErr *database.IntegrityError
	if errors.As(err, &integrityErr) {
		for _, diagnostic := range integrityErr.Diagnostics {
			log.Error().Str("path", path).Str("diagnostic", diagnostic).Msg("Integrity check")
		}
	}

	log.Error().Err(err).Str("path", path).Msg(msg)
}
