package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/services"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/desertthunder/scrob/internal/tasks"
	"github.com/urfave/cli/v3"
)

// NowPlaying sends one now playing announcement, through a running daemon when there is one.
func (r *Runner) NowPlaying(ctx context.Context, cmd *cli.Command) error {
	np := models.NowPlaying{
		Artist:          strings.TrimSpace(cmd.String("artist")),
		Title:           strings.TrimSpace(cmd.String("title")),
		Album:           strings.TrimSpace(cmd.String("album")),
		DurationSeconds: int(cmd.Int("duration")),
		TrackNumber:     int(cmd.Int("track-number")),
		MusicBrainzID:   cmd.String("mbid"),
	}
	if np.Artist == "" || np.Title == "" {
		return fmt.Errorf("%w: --artist and --title", shared.ErrMissingArgument)
	}

	if r.daemonRunning(ctx) {
		resp, err := r.daemon().PostJSON(ctx, "/nowplaying", np)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		if !resp.OK() {
			return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
		}
		return r.writePlain("✓ Now playing %s - %s (via daemon)\n", np.Artist, np.Title)
	}

	if err := r.openClient(); err != nil {
		return err
	}
	if !r.client.Authenticated() {
		return fmt.Errorf("%w: run 'scrob auth set' first", shared.ErrNotAuthenticated)
	}

	req := r.client.NewWriteRequest(services.MethodUpdateNowPlaying)
	if err := req.AddParameters(tasks.NowPlayingParameters(np)); err != nil {
		return err
	}

	h := req.BeginSend(nil)
	if !h.Wait(cmd.Duration("timeout")) {
		return fmt.Errorf("%w: no response from %s", shared.ErrTimeout, services.MethodUpdateNowPlaying)
	}
	if err := h.Err(); err != nil {
		if req.StationError() == services.StationInvalidSessionKey {
			return fmt.Errorf("%w: run 'scrob auth set' with a fresh session key", shared.ErrInvalidSession)
		}
		return err
	}
	return r.writePlain("✓ Now playing %s - %s\n", np.Artist, np.Title)
}
