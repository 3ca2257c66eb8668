package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
)

// QueueStatsReader reports the state of the pending-operation queue.
type QueueStatsReader interface {
	Stats(ctx context.Context) (*outboxDomain.QueueStats, error)
}

// RunQueueStats prints the pending, dead-lettered and retained counts of the queue.
func RunQueueStats(
	ctx context.Context,
	reader QueueStatsReader,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	stats, err := reader.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}

	logger.Debug("queue stats read", slog.Int64("pending", stats.Pending))

	if format == "json" {
		return writeJSON(writer, stats)
	}

	_, err = fmt.Fprintf(writer,
		"Pending: %d\nDead-lettered: %d\nSynced (retained): %d\nSync errors: %d\n",
		stats.Pending, stats.DeadLettered, stats.SyncedRetained, stats.Errors,
	)
	return err
}
