package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingArtist = errors.New("artist is required")
	ErrMissingTitle  = errors.New("title is required")
	ErrTooShort      = errors.New("track is too short to scrobble")
	ErrTooOld        = errors.New("play started too long ago")
	ErrInFuture      = errors.New("play starts in the future")
)

const (
	// MinScrobbleSeconds is the shortest known duration the service accepts.
	MinScrobbleSeconds = 30
	// MaxScrobbleAge is how far in the past a play may start.
	MaxScrobbleAge = 14 * 24 * time.Hour
	// MaxClockSkew is how far in the future a play may start.
	MaxClockSkew = 24 * time.Hour
)

// PlayEvent is one completed (or sufficiently played) track playback.
type PlayEvent struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album,omitempty"`
	TrackNumber     int       `json:"track_number,omitempty"`
	DurationSeconds int       `json:"duration,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	MusicBrainzID   string    `json:"mbid,omitempty"`
	// TrackAuth is set by recommendation sources; empty means the user chose the track.
	TrackAuth string `json:"track_auth,omitempty"`
}

// ChosenByUser reports whether the user picked the track themselves.
func (e PlayEvent) ChosenByUser() bool {
	return e.TrackAuth == ""
}

// Duration returns the track length, zero when unknown.
func (e PlayEvent) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// Validate returns the reason the service would reject e, or nil.
func (e PlayEvent) Validate(now time.Time) error {
	switch {
	case strings.TrimSpace(e.Artist) == "":
		return ErrMissingArtist
	case strings.TrimSpace(e.Title) == "":
		return ErrMissingTitle
	case e.DurationSeconds > 0 && e.DurationSeconds <= MinScrobbleSeconds:
		return ErrTooShort
	case e.StartedAt.Before(now.Add(-MaxScrobbleAge)):
		return ErrTooOld
	case e.StartedAt.After(now.Add(MaxClockSkew)):
		return ErrInFuture
	}
	return nil
}

// QueuedEvent is a [PlayEvent] held by the pending queue.
type QueuedEvent struct {
	PlayEvent
	Sequence int64 `json:"sequence"`
	// InvalidReason is non-empty once the event is known to be permanently rejected.
	InvalidReason string `json:"invalid_reason,omitempty"`
}

// Invalid reports whether the entry should be purged, either because it was flagged or fails validation.
func (q QueuedEvent) Invalid(now time.Time) (string, bool) {
	if q.InvalidReason != "" {
		return q.InvalidReason, true
	}
	if err := q.Validate(now); err != nil {
		return err.Error(), true
	}
	return "", false
}

// NowPlaying is an announcement of the currently playing track.
type NowPlaying struct {
	Artist          string `json:"artist"`
	Title           string `json:"title"`
	Album           string `json:"album,omitempty"`
	DurationSeconds int    `json:"duration,omitempty"`
	TrackNumber     int    `json:"track_number,omitempty"`
	MusicBrainzID   string `json:"mbid,omitempty"`
}

// SubmissionOutcome classifies a batch result for history.
type SubmissionOutcome string

const (
	OutcomeAccepted    SubmissionOutcome = "accepted"
	OutcomeSoftFailure SubmissionOutcome = "soft_failure"
	OutcomeFailure     SubmissionOutcome = "failure"
	OutcomeTimeout     SubmissionOutcome = "timeout"
	OutcomeError       SubmissionOutcome = "error"
)

// SubmissionRecord is the persisted outcome of one batch submission.
type SubmissionRecord struct {
	ID          int64             `json:"id"`
	BatchSize   int               `json:"batch_size"`
	Accepted    int               `json:"accepted"`
	Ignored     int               `json:"ignored"`
	Outcome     SubmissionOutcome `json:"outcome"`
	Detail      string            `json:"detail,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}
