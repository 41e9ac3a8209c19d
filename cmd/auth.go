package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/scrob/internal/session"
	"github.com/urfave/cli/v3"
)

// AuthSet writes the session file. A running daemon picks the change up through its file watcher.
func (r *Runner) AuthSet(ctx context.Context, cmd *cli.Command) error {
	provider := session.NewProvider(r.config.Lastfm, r.logger)
	if err := provider.Save(cmd.String("username"), cmd.String("session-key")); err != nil {
		return err
	}

	r.logger.Info("session saved", "path", provider.Path())
	return r.writePlain("✓ Session saved to %s\n", provider.Path())
}

// AuthStatus reports which credentials are configured without contacting the service.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	lastfm := r.config.Lastfm
	provider := session.NewProvider(lastfm, r.logger)
	if _, err := provider.Load(); err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	current := provider.Current()

	r.writePlain("API key:      %s\n", present(lastfm.APIKey != ""))
	r.writePlain("API secret:   %s\n", present(lastfm.APISecret != ""))
	r.writePlain("Session file: %s\n", provider.Path())
	if !current.Valid() {
		return r.writePlain("Session:      ✗ not authenticated\n")
	}

	r.writePlain("Session:      ✓ %s\n", mask(current.Key))
	if current.Username != "" {
		r.writePlain("Username:     %s\n", current.Username)
	}
	if !current.UpdatedAt.IsZero() {
		r.writePlain("Updated:      %s\n", current.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func present(ok bool) string {
	if ok {
		return "✓ configured"
	}
	return "✗ missing"
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
