package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// StoreVerifier checks the durable store schema and integrity.
type StoreVerifier interface {
	Verify(ctx context.Context) error
	Corrupted() bool
}

// StoreResetter drops and recreates the durable store schema.
type StoreResetter interface {
	Reset(ctx context.Context) error
}

// RunStoreVerify checks the durable store and fails when it is corrupted.
func RunStoreVerify(
	ctx context.Context,
	verifier StoreVerifier,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	if err := verifier.Verify(ctx); err != nil {
		return fmt.Errorf("failed to verify store: %w", err)
	}

	corrupted := verifier.Corrupted()
	logger.Info("store verified", slog.Bool("corrupted", corrupted))

	if format == "json" {
		if err := writeJSON(writer, map[string]any{"corrupted": corrupted}); err != nil {
			return err
		}
	} else if corrupted {
		_, _ = fmt.Fprintln(writer, "Store is corrupted; run 'store reset' to rebuild it")
	} else {
		_, _ = fmt.Fprintln(writer, "Store is healthy")
	}

	if corrupted {
		return fmt.Errorf("store failed verification")
	}
	return nil
}

// RunStoreReset destroys every local record and recreates the schema.
// Unless force is set the operator must confirm by typing "yes".
func RunStoreReset(
	ctx context.Context,
	resetter StoreResetter,
	logger *slog.Logger,
	streams IOTuple,
	force bool,
) error {
	if !force {
		confirmed, err := confirm(streams, "This deletes every pending operation, session and cached record. Type 'yes' to continue: ")
		if err != nil {
			return err
		}
		if !confirmed {
			_, err = fmt.Fprintln(streams.Writer, "Aborted")
			return err
		}
	}

	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}

	logger.Warn("store reset by operator")
	_, err := fmt.Fprintln(streams.Writer, "Store reset")
	return err
}
