package tasks

import (
	"time"

	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/services"
)

// NowPlaying announces the current track. Calls with an empty artist or title are ignored, as are
// calls made while a previous announcement is still in flight.
//
// While disconnected the request is kept and sent by the next idle tick.
func (e *SubmissionEngine) NowPlaying(artist, title, album string, duration time.Duration, trackNumber int, mbid string) {
	e.Announce(models.NowPlaying{
		Artist:          artist,
		Title:           title,
		Album:           album,
		DurationSeconds: int(duration / time.Second),
		TrackNumber:     trackNumber,
		MusicBrainzID:   mbid,
	})
}

// Announce is [SubmissionEngine.NowPlaying] taking a [models.NowPlaying].
func (e *SubmissionEngine) Announce(np models.NowPlaying) {
	if np.Artist == "" || np.Title == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.nowPlayingInFlight {
		e.logger.Debug("now playing in flight, dropping", "artist", np.Artist, "title", np.Title)
		return
	}

	req := e.newRequest(services.MethodUpdateNowPlaying)
	if err := req.AddParameters(NowPlayingParameters(np)); err != nil {
		e.logger.Warn("failed to build now playing request", "error", err)
		return
	}
	e.nowPlaying = req

	if e.connected {
		e.dispatchNowPlayingLocked()
		return
	}
	e.logger.Debug("offline, now playing deferred", "artist", np.Artist, "title", np.Title)
	if e.running {
		e.startTimerLocked()
	}
}

func (e *SubmissionEngine) dispatchNowPlayingLocked() {
	req := e.nowPlaying
	e.nowPlaying = nil
	e.nowPlayingInFlight = true
	epoch := e.epoch

	req.BeginSend(func(h *services.Handle) {
		e.onNowPlayingResponse(req, h, epoch)
	})
}

// onNowPlayingResponse clears the in-flight guard. Failures are logged and never retried.
// Responses arriving after a stop or restart only clear the guard.
func (e *SubmissionEngine) onNowPlayingResponse(req Request, h *services.Handle, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nowPlayingInFlight = false
	if !e.running || epoch != e.epoch {
		return
	}

	err := h.Err()
	switch {
	case err == nil:
		e.logger.Debug("now playing announced")
	case req.StationError() == services.StationInvalidSessionKey:
		e.logger.Warn("session key rejected while announcing now playing", "error", err)
		e.sendEvent(authFailureEvent(e.now(), services.MethodUpdateNowPlaying))
	default:
		e.logger.Warn("failed to announce now playing", "error", err)
	}
}
