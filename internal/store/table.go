package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
)

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Table describes how records of type T map onto a SQLite table. Columns
// must start with the key column; Values returns one value per column in the
// same order.
type Table[T any] struct {
	Name    string
	Key     string
	Columns []string
	// Indexes maps a secondary index name to the column it covers.
	Indexes map[string]string
	// OrderBy is the ordering used by GetAll and Query. Defaults to rowid.
	OrderBy string
	Values  func(record *T) ([]any, error)
	Scan    func(row Scanner) (*T, error)
}

func (t Table[T]) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.Columns, ", "), t.Name)
}

func (t Table[T]) orderSQL() string {
	if t.OrderBy == "" {
		return " ORDER BY rowid"
	}
	return " ORDER BY " + t.OrderBy
}

func (t Table[T]) upsertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	updates := make([]string, 0, len(t.Columns)-1)
	for _, column := range t.Columns {
		if column == t.Key {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", column, column))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		t.Name,
		strings.Join(t.Columns, ", "),
		placeholders,
		t.Key,
		strings.Join(updates, ", "),
	)
}

func (t Table[T]) insertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(t.Columns, ", "), placeholders)
}

// Put inserts record or replaces the record with the same key.
func Put[T any](ctx context.Context, s *Store, t Table[T], record *T) error {
	return write(ctx, s, t, t.upsertSQL(), record)
}

// Insert inserts record, failing with ErrConflict when the key or a unique
// index is already taken.
func Insert[T any](ctx context.Context, s *Store, t Table[T], record *T) error {
	return write(ctx, s, t, t.insertSQL(), record)
}

func write[T any](ctx context.Context, s *Store, t Table[T], query string, record *T) error {
	values, err := t.Values(record)
	if err != nil {
		return err
	}
	if len(values) != len(t.Columns) {
		return fmt.Errorf("%s: %d values for %d columns", t.Name, len(values), len(t.Columns))
	}

	return s.Do(ctx, []string{t.Name}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)
		_, err := querier.ExecContext(ctx, query, values...)
		return err
	})
}

// Get returns the record stored under key or ErrNotFound.
func Get[T any](ctx context.Context, s *Store, t Table[T], key any) (*T, error) {
	var record *T
	err := s.Do(ctx, []string{t.Name}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)
		row := querier.QueryRowContext(ctx, t.selectSQL()+fmt.Sprintf(" WHERE %s = ?", t.Key), key)

		var err error
		record, err = t.Scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Wrapf(apperrors.ErrNotFound, "%s %v", t.Name, key)
		}
		return err
	})
	return record, err
}

// GetAll returns every record of the table.
func GetAll[T any](ctx context.Context, s *Store, t Table[T]) ([]*T, error) {
	return list(ctx, s, t, t.selectSQL()+t.orderSQL())
}

// Query returns the records whose indexed column equals match.
func Query[T any](ctx context.Context, s *Store, t Table[T], index string, match any) ([]*T, error) {
	column, ok := t.Indexes[index]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "%s has no index %q", t.Name, index)
	}
	return list(ctx, s, t, t.selectSQL()+fmt.Sprintf(" WHERE %s = ?", column)+t.orderSQL(), match)
}

// Select runs a custom WHERE clause against the table. clause must only
// reference trusted column names; values go through args.
func Select[T any](ctx context.Context, s *Store, t Table[T], clause string, args ...any) ([]*T, error) {
	return list(ctx, s, t, t.selectSQL()+" WHERE "+clause, args...)
}

func list[T any](ctx context.Context, s *Store, t Table[T], query string, args ...any) ([]*T, error) {
	var records []*T
	err := s.Do(ctx, []string{t.Name}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)
		rows, err := querier.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		records = make([]*T, 0)
		for rows.Next() {
			record, err := t.Scan(rows)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return rows.Err()
	})
	return records, err
}

// Delete removes the record stored under key. Deleting a missing key is not an error.
func Delete[T any](ctx context.Context, s *Store, t Table[T], key any) error {
	return s.Do(ctx, []string{t.Name}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)
		_, err := querier.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.Name, t.Key), key)
		return err
	})
}
