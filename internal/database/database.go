package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/saltyorg/sqlitectl/internal/fsutil"
)

var (
	// ErrEngine wraps every failure raised by the SQLite engine.
	ErrEngine = errors.New("sqlite engine error")

	// ErrIntegrityCheckFailed is matched by *IntegrityError.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
)

// Session is a single pinned connection to one database file. Pragmas such
// as cache_size and temp_store are per connection, so every statement of a
// session runs on the same *sql.Conn.
type Session struct {
	db   *sql.DB
	conn *sql.Conn
	path string
}

// Open opens the database file at path. The file must already exist: the
// driver would otherwise create an empty database.
func Open(ctx context.Context, path string) (*Session, error) {
	if err := fsutil.RequireFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrEngine, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to acquire connection: %w", ErrEngine, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrEngine, err)
	}

	log.Debug().Str("path", path).Msg("Database connection established")

	return &Session{
		db:   db,
		conn: conn,
		path: path,
	}, nil
}

// Path returns the database file path
func (s *Session) Path() string {
	return s.path
}

// Close releases the connection and the underlying pool. It is safe to call
// more than once.
func (s *Session) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	var errs []error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		s.conn = nil
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	s.db = nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: failed to close database: %w", ErrEngine, err)
	}

	log.Debug().Str("path", s.path).Msg("Database connection closed")
	return nil
}
