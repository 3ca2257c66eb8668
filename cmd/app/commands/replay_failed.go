package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Replayer puts dead-lettered operations back in the queue.
type Replayer interface {
	ReplayFailed(ctx context.Context, ids []uuid.UUID) (int, error)
}

// RunReplayFailed resets the attempt counter of dead-lettered operations so
// the next pass retries them. With no ids every dead-lettered operation is replayed.
func RunReplayFailed(
	ctx context.Context,
	replayer Replayer,
	logger *slog.Logger,
	writer io.Writer,
	ids []string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	var parsed []uuid.UUID
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid operation id %q: %w", raw, err)
		}
		parsed = append(parsed, id)
	}

	count, err := replayer.ReplayFailed(ctx, parsed)
	if err != nil {
		return fmt.Errorf("failed to replay operations: %w", err)
	}

	logger.Info("dead-lettered operations replayed", slog.Int("count", count))

	if format == "json" {
		return writeJSON(writer, map[string]any{"replayed": count})
	}
	_, err = fmt.Fprintf(writer, "Replayed %d operation(s)\n", count)
	return err
}
