package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	"github.com/allisson/posoffline/internal/syncer"
)

// Rechecker probes the remote authority on demand.
type Rechecker interface {
	Recheck(ctx context.Context) error
}

// PassRunner runs a sync pass on demand.
type PassRunner interface {
	ForceSyncNow(ctx context.Context) (*syncer.PassResult, error)
}

// RunSyncNow probes the remote authority once and runs a full sync pass.
// Phase failures are reported in the output and make the command fail.
func RunSyncNow(
	ctx context.Context,
	rechecker Rechecker,
	runner PassRunner,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	if err := rechecker.Recheck(ctx); err != nil {
		logger.Warn("reachability probe failed", slog.Any("error", err))
	}

	result, err := runner.ForceSyncNow(ctx)
	if err != nil {
		return fmt.Errorf("failed to run sync pass: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"result": result,
			"failed": result.Failed(),
			"errors": result.ErrorMessages(),
		}); err != nil {
			return err
		}
	} else {
		outputSyncText(writer, result)
	}

	logger.Info("sync pass completed",
		slog.Bool("failed", result.Failed()),
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)

	if result.Failed() {
		return fmt.Errorf("sync pass finished with %d failed phase(s)", len(result.PhaseErrors))
	}
	return nil
}

func outputSyncText(writer io.Writer, result *syncer.PassResult) {
	if result.Drain != nil {
		_, _ = fmt.Fprintf(writer, "Operations: %d processed, %d succeeded, %d failed, %d dead-lettered\n",
			result.Drain.Processed, result.Drain.Succeeded, result.Drain.Failed, result.Drain.DeadLettered)
	}
	if result.Credentials != nil {
		_, _ = fmt.Fprintf(writer, "Credentials: %d cached, %d failed\n",
			result.Credentials.Cached, result.Credentials.Failed)
	}
	if len(result.Entities) > 0 {
		types := make([]string, 0, len(result.Entities))
		for t := range result.Entities {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			_, _ = fmt.Fprintf(writer, "Reference %s: %d record(s)\n", t, result.Entities[catalogDomain.EntityType(t)])
		}
	}
	if result.Sweep != nil {
		_, _ = fmt.Fprintf(writer, "Swept: %d operation(s), %d error(s), %d session(s)\n",
			result.Sweep.Operations, result.Sweep.Errors, result.SessionsEvicted)
	}

	messages := result.ErrorMessages()
	phases := make([]string, 0, len(messages))
	for phase := range messages {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		_, _ = fmt.Fprintf(writer, "Phase %s failed: %s\n", phase, messages[phase])
	}
}
