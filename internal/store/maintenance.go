package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
)

// CapacityThreshold is the used fraction at which EnsureCapacity evicts.
const CapacityThreshold = 0.9

// timestampColumns holds the column each table is aged by.
var timestampColumns = map[string]string{
	TableSessions:          "last_accessed",
	TableCredentials:       "cached_at",
	TableConfig:            "updated_at",
	TablePendingOperations: "created_at",
	TableSyncErrors:        "timestamp",
	TableReferenceEntities: "cached_at",
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Predicate restricts an eviction to rows whose Column equals Value, or
// differs from it when Not is set.
type Predicate struct {
	Column string
	Value  any
	Not    bool
}

// Quota describes how much of the storage budget is in use.
type Quota struct {
	UsedBytes    int64
	BudgetBytes  int64
	UsedFraction float64
}

// CountPending counts operations not yet synced using the (synced, created_at) index.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.Do(ctx, []string{TablePendingOperations}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)
		return querier.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_operations WHERE synced = 0").
			Scan(&count)
	})
	return count, err
}

// EvictOlderThan deletes rows of table aged before cutoff that match every
// predicate, returning the number of rows removed.
func (s *Store) EvictOlderThan(
	ctx context.Context,
	table string,
	cutoff time.Time,
	predicates ...Predicate,
) (int64, error) {
	tsColumn, ok := timestampColumns[table]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown table %q", table)
	}

	clauses := []string{fmt.Sprintf("%s < ?", tsColumn)}
	args := []any{cutoff.UnixMilli()}
	for _, p := range predicates {
		if !identifierPattern.MatchString(p.Column) {
			return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid column %q", p.Column)
		}
		op := "="
		if p.Not {
			op = "<>"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", p.Column, op))
		args = append(args, p.Value)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(clauses, " AND "))

	var removed int64
	err := s.Do(ctx, []string{table}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)
		result, err := querier.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info("evicted aged records",
			slog.String("table", table),
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}

// CheckQuota reports storage usage against the configured budget.
func (s *Store) CheckQuota(ctx context.Context) (Quota, error) {
	var pageCount, freePages, pageSize, maxPages int64
	querier := database.GetTx(ctx, s.db)
	for pragma, dest := range map[string]*int64{
		"page_count":     &pageCount,
		"freelist_count": &freePages,
		"page_size":      &pageSize,
		"max_page_count": &maxPages,
	} {
		if err := querier.QueryRowContext(ctx, "PRAGMA "+pragma).Scan(dest); err != nil {
			return Quota{}, database.Classify(err)
		}
	}

	budget := s.cfg.QuotaBytes
	if budget <= 0 {
		budget = maxPages * pageSize
	}

	q := Quota{
		UsedBytes:   (pageCount - freePages) * pageSize,
		BudgetBytes: budget,
	}
	if budget > 0 {
		q.UsedFraction = float64(q.UsedBytes) / float64(budget)
	}
	return q, nil
}

// EnsureCapacity runs evict when writing need more bytes would take usage
// to CapacityThreshold or beyond.
func (s *Store) EnsureCapacity(ctx context.Context, need int64, evict func(ctx context.Context) error) error {
	q, err := s.CheckQuota(ctx)
	if err != nil {
		return err
	}
	if q.BudgetBytes <= 0 {
		return nil
	}

	fraction := float64(q.UsedBytes+need) / float64(q.BudgetBytes)
	if fraction < CapacityThreshold {
		return nil
	}

	s.logger.Warn("store close to quota, evicting",
		slog.Int64("used_bytes", q.UsedBytes),
		slog.Int64("budget_bytes", q.BudgetBytes),
	)
	return evict(ctx)
}
