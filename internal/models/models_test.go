package models

import (
	"errors"
	"testing"
	"time"
)

func TestPlayEventValidate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	valid := PlayEvent{Artist: "Boards of Canada", Title: "Roygbiv", DurationSeconds: 151, StartedAt: now.Add(-time.Hour)}

	tc := []struct {
		name   string
		modify func(*PlayEvent)
		want   error
	}{
		{name: "valid", modify: func(*PlayEvent) {}, want: nil},
		{name: "unknown duration", modify: func(e *PlayEvent) { e.DurationSeconds = 0 }, want: nil},
		{name: "missing artist", modify: func(e *PlayEvent) { e.Artist = "  " }, want: ErrMissingArtist},
		{name: "missing title", modify: func(e *PlayEvent) { e.Title = "" }, want: ErrMissingTitle},
		{name: "thirty seconds", modify: func(e *PlayEvent) { e.DurationSeconds = 30 }, want: ErrTooShort},
		{name: "thirty one seconds", modify: func(e *PlayEvent) { e.DurationSeconds = 31 }, want: nil},
		{name: "too old", modify: func(e *PlayEvent) { e.StartedAt = now.Add(-15 * 24 * time.Hour) }, want: ErrTooOld},
		{name: "thirteen days", modify: func(e *PlayEvent) { e.StartedAt = now.Add(-13 * 24 * time.Hour) }, want: nil},
		{name: "future", modify: func(e *PlayEvent) { e.StartedAt = now.Add(25 * time.Hour) }, want: ErrInFuture},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.modify(&ev)
			if err := ev.Validate(now); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestQueuedEventInvalid(t *testing.T) {
	now := time.Now()
	ev := QueuedEvent{PlayEvent: PlayEvent{Artist: "a", Title: "t", StartedAt: now}}

	if _, bad := ev.Invalid(now); bad {
		t.Error("valid event reported invalid")
	}

	ev.InvalidReason = "too large"
	if reason, bad := ev.Invalid(now); !bad || reason != "too large" {
		t.Errorf("expected flagged reason, got %q %v", reason, bad)
	}
}

func TestChosenByUser(t *testing.T) {
	if !(PlayEvent{}).ChosenByUser() {
		t.Error("empty track auth means chosen by user")
	}
	if (PlayEvent{TrackAuth: "abc12"}).ChosenByUser() {
		t.Error("track auth means recommended")
	}
}
