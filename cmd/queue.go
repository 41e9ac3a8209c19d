package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/scrob/internal/formatter"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/server"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/desertthunder/scrob/internal/tasks"
	"github.com/urfave/cli/v3"
)

const flushPollInterval = 250 * time.Millisecond

// QueueList prints the pending queue.
func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.openStore(); err != nil {
		return err
	}
	return formatter.WriteQueue(r.output, format, r.queue.Snapshot())
}

// QueueAdd queues a finished play. A running daemon receives it over the ingest API so its
// in-memory queue stays authoritative; otherwise the play is written to the database directly.
func (r *Runner) QueueAdd(ctx context.Context, cmd *cli.Command) error {
	now := time.Now()
	ev := models.PlayEvent{
		Artist:          strings.TrimSpace(cmd.String("artist")),
		Title:           strings.TrimSpace(cmd.String("title")),
		Album:           strings.TrimSpace(cmd.String("album")),
		DurationSeconds: int(cmd.Int("duration")),
		TrackNumber:     int(cmd.Int("track-number")),
		MusicBrainzID:   cmd.String("mbid"),
	}
	if cmd.Bool("recommended") {
		ev.TrackAuth = "recommended"
	}

	if raw := cmd.String("started-at"); raw != "" {
		started, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("%w: --started-at must be RFC 3339: %v", shared.ErrInvalidFlag, err)
		}
		ev.StartedAt = started
	} else {
		ev.StartedAt = now.Add(-ev.Duration())
	}

	if err := ev.Validate(now); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	if r.daemonRunning(ctx) {
		resp, err := r.daemon().PostJSON(ctx, "/scrobble", ev)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
		}
		var accepted server.ScrobbleAccepted
		if err := resp.Decode(&accepted); err != nil {
			return err
		}
		return r.writePlain("✓ Queued %s - %s via daemon (%s, %d pending)\n", ev.Artist, ev.Title, accepted.ID, accepted.Queued)
	}

	if err := r.openStore(); err != nil {
		return err
	}
	entry, err := r.queue.Enqueue(ev)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Queued %s - %s (%s, %d pending)\n", ev.Artist, ev.Title, entry.ID, r.queue.Count())
}

// QueuePurge drops entries the service would reject.
func (r *Runner) QueuePurge(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireNoDaemon(ctx); err != nil {
		return err
	}
	if err := r.openStore(); err != nil {
		return err
	}

	removed := r.queue.RemoveInvalidTracks()
	return r.writePlain("Removed %d invalid scrobbles, %d pending\n", removed, r.queue.Count())
}

// QueueFlush starts the engine and waits until the queue is drained, the service backs off or the timeout passes.
func (r *Runner) QueueFlush(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireNoDaemon(ctx); err != nil {
		return err
	}
	if err := r.openEngine(); err != nil {
		return err
	}

	before := r.queue.Count()
	if before == 0 {
		return r.writePlain("Nothing to submit\n")
	}
	if !r.client.Authenticated() {
		return fmt.Errorf("%w: run 'scrob auth set' first", shared.ErrNotAuthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	if err := r.engine.Start(); err != nil {
		return err
	}
	defer r.engine.Stop()

	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d scrobbles still pending", shared.ErrTimeout, r.queue.Count())

		case ev := <-r.events:
			if ev.Kind == tasks.AuthFailure {
				return fmt.Errorf("%w: %s", shared.ErrInvalidSession, ev.Message)
			}
			r.logger.Info(ev.Message, "event", ev.Kind)

		case <-ticker.C:
			status := r.engine.Status()
			if status.Queued == 0 && status.State == tasks.Idle.String() {
				return r.writePlain("✓ Submitted %d scrobbles\n", before)
			}
			if status.NextRetry.After(time.Now()) {
				return fmt.Errorf("%w: %s; %d scrobbles still pending", shared.ErrServiceUnavailable, status.LastError, status.Queued)
			}
		}
	}
}

// QueueHistory prints recent submission outcomes.
func (r *Runner) QueueHistory(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.openStore(); err != nil {
		return err
	}

	records, err := r.history.Recent(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return formatter.WriteHistory(r.output, format, records)
}

// requireNoDaemon guards commands that rewrite the queue table, which a running daemon owns.
func (r *Runner) requireNoDaemon(ctx context.Context) error {
	if r.daemonRunning(ctx) {
		return fmt.Errorf("%w: a daemon is running at %s and owns the queue; stop it first", shared.ErrInvalidInput, r.config.Server.Addr())
	}
	return nil
}
