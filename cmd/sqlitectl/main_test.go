package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saltyorg/sqlitectl/internal/backup"
	"github.com/saltyorg/sqlitectl/internal/database"
)

var fixedNow = time.Date(2026, 10, 16, 8, 30, 12, 345_000_000, time.UTC)

func setupCLI(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevWD) })
	t.Setenv("SQLITECTL_DB_PATH", "")
	t.Setenv("SQLITECTL_LOG_FILE", "")

	prevNow := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = prevNow })

	return dir
}

func createTestDB(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()

	for _, stmt := range []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE streamers (id INTEGER PRIMARY KEY)",
		"INSERT INTO users (name) VALUES ('alice'), ('bob')",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

func run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := execute(args, &out)
	return code, out.String()
}

func TestExecute_HelpExitsZero(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no subcommand", args: nil},
		{name: "unknown subcommand", args: []string{"defragment"}},
		{name: "help flag", args: []string{"--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := run(t, tt.args...)
			if code != 0 {
				t.Fatalf("expected exit 0, got %d", code)
			}
			if !strings.Contains(out, "Usage:") {
				t.Fatalf("expected usage text, got %q", out)
			}
		})
	}
}

func TestExecute_OptimizeDefaultPath(t *testing.T) {
	dir := setupCLI(t)
	createTestDB(t, filepath.Join(dir, defaultDBPath))

	if code, _ := run(t, "optimize"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := database.Open(ctx, filepath.Join(dir, defaultDBPath))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer s.Close()

	mode, err := s.GetPragma(ctx, database.PragmaJournalMode)
	if err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal mode wal, got %q", mode)
	}
}

func TestExecute_OptimizeMissingFile(t *testing.T) {
	dir := setupCLI(t)

	if code, _ := run(t, "optimize", "missing.sqlite"); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files to be created, found %d", len(entries))
	}
}

func TestExecute_StatsAlwaysExitsZero(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, "app.sqlite")
	createTestDB(t, path)

	code, out := run(t, "stats", path)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "Tables: 2") || !strings.Contains(out, "streamers") {
		t.Fatalf("unexpected stats report:\n%s", out)
	}
	if strings.Contains(out, "avatars") {
		t.Fatalf("expected missing tables to be omitted:\n%s", out)
	}

	if code, _ := run(t, "stats", "missing.sqlite"); code != 0 {
		t.Fatalf("expected exit 0 for missing file, got %d", code)
	}
}

func TestExecute_BackupDefaultDestination(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, defaultDBPath)
	createTestDB(t, path)

	if code, _ := run(t, "backup", "--verify"); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	if _, err := os.Stat(backup.DefaultPath(defaultDBPath, fixedNow)); err != nil {
		t.Fatalf("expected default backup file: %v", err)
	}

	if code, _ := run(t, "backup", "missing.sqlite"); code != 1 {
		t.Fatalf("expected exit 1 for missing source, got %d", code)
	}
}

func TestExecute_RestoreRequiresBackupPath(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, defaultDBPath)
	createTestDB(t, path)

	logDir := filepath.Join(dir, "logs")
	if code, _ := run(t, "restore", path, "--log-file="+filepath.Join(logDir, "sqlitectl.log")); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}

	snapshots, _ := filepath.Glob(path + ".before-restore.*")
	if len(snapshots) != 0 {
		t.Fatalf("expected no snapshot, got %v", snapshots)
	}
	if _, err := os.Stat(logDir); !os.IsNotExist(err) {
		t.Fatalf("expected usage error before any log file is created, stat err: %v", err)
	}
}

func TestExecute_RestoreMissingBackup(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, defaultDBPath)
	createTestDB(t, path)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read db: %v", err)
	}

	if code, _ := run(t, "restore", path, filepath.Join(dir, "missing-backup.db")); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read db: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("database changed despite failed restore")
	}
	snapshots, _ := filepath.Glob(path + ".before-restore.*")
	if len(snapshots) != 0 {
		t.Fatalf("expected no snapshot, got %v", snapshots)
	}
}

func TestExecute_BackupThenRestore(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, defaultDBPath)
	backupPath := filepath.Join(dir, "nightly.backup")
	createTestDB(t, path)

	if code, _ := run(t, "backup", path, backupPath); code != 0 {
		t.Fatalf("backup: expected exit 0, got %d", code)
	}
	if code, _ := run(t, "restore", path, backupPath); code != 0 {
		t.Fatalf("restore: expected exit 0, got %d", code)
	}

	restored, _ := os.ReadFile(path)
	saved, _ := os.ReadFile(backupPath)
	if !bytes.Equal(restored, saved) {
		t.Fatal("restored database differs from backup")
	}

	if _, err := os.Stat(backup.SnapshotPath(path, fixedNow)); err != nil {
		t.Fatalf("expected pre-restore snapshot: %v", err)
	}
}

func TestExecute_SurplusArgsIgnored(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, "app.sqlite")
	createTestDB(t, path)

	code, out := run(t, "stats", path, "extra", "more")
	if code != 0 {
		t.Fatalf("stats: expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "Tables: 2") {
		t.Fatalf("expected stats report despite surplus args:\n%s", out)
	}

	if code, _ := run(t, "optimize", path, "extra"); code != 0 {
		t.Fatalf("optimize: expected exit 0, got %d", code)
	}

	backupPath := filepath.Join(dir, "copy.sqlite")
	if code, _ := run(t, "backup", path, backupPath, "extra"); code != 0 {
		t.Fatalf("backup: expected exit 0, got %d", code)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("expected backup at the second argument: %v", err)
	}
}

func TestExecute_BackupOntoItself(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, defaultDBPath)
	createTestDB(t, path)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read db: %v", err)
	}

	if code, _ := run(t, "backup", path, path); code != 1 {
		t.Fatalf("backup: expected exit 1, got %d", code)
	}
	if code, _ := run(t, "restore", path, path); code != 1 {
		t.Fatalf("restore: expected exit 1, got %d", code)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read db: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("database changed after copying onto itself")
	}
}

func TestExecute_Version(t *testing.T) {
	setupCLI(t)

	code, out := run(t, "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out, "sqlitectl dev") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestExecute_LogFileAuto(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, "app.sqlite")
	createTestDB(t, path)

	if code, _ := run(t, "stats", "-v", "--log-file", path); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "sqlitectl.log")); err != nil {
		t.Fatalf("expected log file next to database: %v", err)
	}
}
