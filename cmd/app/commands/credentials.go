package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
)

// CredentialCache caches, lists and clears offline credentials.
type CredentialCache interface {
	CacheCredential(
		ctx context.Context,
		remote *credentialDomain.RemoteCredential,
	) (*credentialDomain.CachedCredential, error)
	List(ctx context.Context) ([]*credentialDomain.CachedCredential, error)
	Clear(ctx context.Context) error
}

// RunCacheCredential stores a credential record issued by the remote authority
// so the user can log in while offline.
func RunCacheCredential(
	ctx context.Context,
	cache CredentialCache,
	logger *slog.Logger,
	writer io.Writer,
	remote *credentialDomain.RemoteCredential,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	cached, err := cache.CacheCredential(ctx, remote)
	if err != nil {
		return fmt.Errorf("failed to cache credential: %w", err)
	}

	logger.Info("credential cached", slog.Int64("user_id", cached.ID), slog.String("login", cached.Login))

	if format == "json" {
		return writeJSON(writer, credentialOutput(cached))
	}
	_, err = fmt.Fprintf(writer, "Cached credential for %s (id %d)\n", cached.Login, cached.ID)
	return err
}

// RunListCredentials prints every cached credential without its secret hash.
func RunListCredentials(
	ctx context.Context,
	cache CredentialCache,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	creds, err := cache.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if format == "json" {
		out := make([]map[string]any, 0, len(creds))
		for _, c := range creds {
			out = append(out, credentialOutput(c))
		}
		return writeJSON(writer, out)
	}

	if len(creds) == 0 {
		_, err = fmt.Fprintln(writer, "No cached credentials")
		return err
	}

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tLOGIN\tNAME\tCACHED AT")
	for _, c := range creds {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Login, c.DisplayName, c.CachedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

// RunClearCredentials removes every cached credential and the offline
// sessions fabricated from them. Unless force is set the operator must
// confirm by typing "yes".
func RunClearCredentials(
	ctx context.Context,
	cache CredentialCache,
	logger *slog.Logger,
	streams IOTuple,
	force bool,
) error {
	if !force {
		confirmed, err := confirm(streams, "This removes every cached credential. Type 'yes' to continue: ")
		if err != nil {
			return err
		}
		if !confirmed {
			_, err = fmt.Fprintln(streams.Writer, "Aborted")
			return err
		}
	}

	if err := cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	logger.Info("credential cache cleared")
	_, err := fmt.Fprintln(streams.Writer, "Credential cache cleared")
	return err
}

func credentialOutput(c *credentialDomain.CachedCredential) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"login":        c.Login,
		"display_name": c.DisplayName,
		"cached_at":    c.CachedAt.UTC(),
	}
}

// confirm prints prompt and reports whether the next input line is "yes".
func confirm(streams IOTuple, prompt string) (bool, error) {
	if _, err := fmt.Fprint(streams.Writer, prompt); err != nil {
		return false, err
	}

	line, err := bufio.NewReader(streams.Reader).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes"), nil
}
