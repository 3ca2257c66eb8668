package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
)

// QueueSweeper removes synced operations and sync errors past retention.
type QueueSweeper interface {
	Stats(ctx context.Context) (*outboxDomain.QueueStats, error)
	Sweep(ctx context.Context, operationsBefore, errorsBefore time.Time) (*outboxUsecase.SweepResult, error)
}

// SessionSweeper removes idle sessions past retention.
type SessionSweeper interface {
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

// Retention holds the retention windows applied by RunClean.
type Retention struct {
	Operations time.Duration
	Errors     time.Duration
	Sessions   time.Duration
}

// RunClean runs a retention sweep. In dry-run mode nothing is deleted and the
// retained counts eligible for sweeping are reported instead.
func RunClean(
	ctx context.Context,
	queue QueueSweeper,
	sessions SessionSweeper,
	logger *slog.Logger,
	writer io.Writer,
	retention Retention,
	now time.Time,
	dryRun bool,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if retention.Operations < 0 || retention.Errors < 0 || retention.Sessions < 0 {
		return fmt.Errorf("retention must not be negative")
	}

	logger.Info("cleaning local store",
		slog.Duration("operations_retention", retention.Operations),
		slog.Duration("errors_retention", retention.Errors),
		slog.Duration("sessions_retention", retention.Sessions),
		slog.Bool("dry_run", dryRun),
	)

	if dryRun {
		stats, err := queue.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read queue stats: %w", err)
		}
		if format == "json" {
			return writeJSON(writer, map[string]any{
				"dry_run":         true,
				"synced_retained": stats.SyncedRetained,
				"errors":          stats.Errors,
			})
		}
		_, err = fmt.Fprintf(writer,
			"Dry-run mode: %d synced operation(s) and %d sync error(s) retained; records older than the retention window would be deleted\n",
			stats.SyncedRetained, stats.Errors,
		)
		return err
	}

	result, err := queue.Sweep(ctx, now.Add(-retention.Operations), now.Add(-retention.Errors))
	if err != nil {
		return fmt.Errorf("failed to sweep queue: %w", err)
	}

	var sessionsDeleted int64
	if sessions != nil {
		sessionsDeleted, err = sessions.Sweep(ctx, now.Add(-retention.Sessions))
		if err != nil {
			return fmt.Errorf("failed to sweep sessions: %w", err)
		}
	}

	logger.Info("cleanup completed",
		slog.Int64("operations", result.Operations),
		slog.Int64("errors", result.Errors),
		slog.Int64("sessions", sessionsDeleted),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"dry_run":    false,
			"operations": result.Operations,
			"errors":     result.Errors,
			"sessions":   sessionsDeleted,
		})
	}

	_, err = fmt.Fprintf(writer,
		"Successfully deleted %d synced operation(s), %d sync error(s) and %d session(s)\n",
		result.Operations, result.Errors, sessionsDeleted,
	)
	return err
}
