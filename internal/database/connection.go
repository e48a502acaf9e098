package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var errClosed = errors.New("database session is closed")

func (s *Session) ready() error {
	if s == nil || s.conn == nil {
		return fmt.Errorf("%w: %w", ErrEngine, errClosed)
	}
	return nil
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEngine, stmt, err)
	}
	return nil
}

// Query runs a statement and returns every row with its columns rendered as
// text. NULL columns become empty strings.
func (s *Session) Query(ctx context.Context, stmt string, args ...any) ([][]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEngine, stmt, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEngine, stmt, err)
	}

	var result [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEngine, stmt, err)
		}

		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEngine, stmt, err)
	}

	return result, nil
}

// QueryStrings runs a statement and returns the first column of every row.
func (s *Session) QueryStrings(ctx context.Context, stmt string, args ...any) ([]string, error) {
	rows, err := s.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			out = append(out, row[0])
		}
	}
	return out, nil
}

func (s *Session) queryRow(ctx context.Context, stmt string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, stmt, args...)
}
