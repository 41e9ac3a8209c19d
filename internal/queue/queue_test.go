package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
	tu "github.com/desertthunder/scrob/internal/testing"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func play(artist, title string) models.PlayEvent {
	return models.PlayEvent{Artist: artist, Title: title, DurationSeconds: 200, StartedAt: testNow.Add(-10 * time.Minute)}
}

func newQueue(t *testing.T, events ...models.QueuedEvent) (*PendingQueue, *tu.MemoryStore) {
	t.Helper()
	store := tu.NewMemoryStore(events...)
	q := New(store, nil)
	q.SetClock(func() time.Time { return testNow })
	if err := q.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return q, store
}

func TestEnqueue(t *testing.T) {
	t.Run("persists and assigns identity", func(t *testing.T) {
		q, store := newQueue(t)

		entry, err := q.Enqueue(play("Stereolab", "French Disko"))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if entry.ID == "" || entry.Sequence != 1 {
			t.Errorf("expected generated id and sequence 1, got %+v", entry)
		}
		if q.Count() != 1 || !q.Any() {
			t.Errorf("expected one pending entry, got %d", q.Count())
		}
		if stored := store.Stored(); len(stored) != 1 || stored[0].ID != entry.ID {
			t.Errorf("expected entry in store, got %+v", stored)
		}
	})

	t.Run("keeps caller id", func(t *testing.T) {
		q, _ := newQueue(t)
		ev := play("Stereolab", "Cybele's Reverie")
		ev.ID = "fixed"
		entry, _ := q.Enqueue(ev)
		if entry.ID != "fixed" {
			t.Errorf("expected caller id, got %q", entry.ID)
		}
	})

	t.Run("store failure leaves queue unchanged", func(t *testing.T) {
		q, store := newQueue(t)
		store.FailAdd = errors.New("disk full")

		if _, err := q.Enqueue(play("Stereolab", "Ping Pong")); err == nil {
			t.Fatal("expected error")
		}
		if q.Any() {
			t.Error("failed enqueue must not add an entry")
		}
	})
}

func TestListeners(t *testing.T) {
	q, store := newQueue(t)

	var calls atomic.Int32
	cancel := q.OnTrackAdded(func() {
		// listeners run outside the lock
		_ = q.Count()
		calls.Add(1)
	})

	q.Enqueue(play("Broadcast", "Tears in the Typing Pool"))
	if calls.Load() != 1 {
		t.Fatalf("expected listener call, got %d", calls.Load())
	}

	store.FailAdd = errors.New("boom")
	q.Enqueue(play("Broadcast", "Papercuts"))
	if calls.Load() != 1 {
		t.Error("listener must not fire on failed enqueue")
	}

	store.FailAdd = nil
	cancel()
	q.Enqueue(play("Broadcast", "Corporeal"))
	if calls.Load() != 1 {
		t.Error("cancelled listener still fired")
	}
}

func TestLoadRestoresOrder(t *testing.T) {
	store := tu.NewMemoryStore()
	first := New(store, nil)
	for _, title := range []string{"A", "B", "C"} {
		if _, err := first.Enqueue(play("Artist", title)); err != nil {
			t.Fatal(err)
		}
	}

	second := New(store, nil)
	if err := second.Load(); err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"A", "B", "C"} {
		ev, ok := second.GetNextTrack(i)
		if !ok || ev.Title != want {
			t.Errorf("position %d: expected %q, got %q", i, want, ev.Title)
		}
	}
	if _, ok := second.GetNextTrack(3); ok {
		t.Error("expected no entry past the end")
	}
	if _, ok := second.GetNextTrack(-1); ok {
		t.Error("expected no entry for negative index")
	}
}

func TestRemoveRange(t *testing.T) {
	tc := []struct {
		name         string
		start, count int
		wantErr      bool
		wantTitles   []string
	}{
		{name: "head", start: 0, count: 2, wantTitles: []string{"C", "D"}},
		{name: "middle", start: 1, count: 2, wantTitles: []string{"A", "D"}},
		{name: "all", start: 0, count: 4, wantTitles: nil},
		{name: "zero", start: 0, count: 0, wantTitles: []string{"A", "B", "C", "D"}},
		{name: "past end", start: 2, count: 3, wantErr: true, wantTitles: []string{"A", "B", "C", "D"}},
		{name: "negative", start: -1, count: 1, wantErr: true, wantTitles: []string{"A", "B", "C", "D"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			q, store := newQueue(t)
			for _, title := range []string{"A", "B", "C", "D"} {
				q.Enqueue(play("Artist", title))
			}

			err := q.RemoveRange(tt.start, tt.count)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrRangeOutOfBound) {
					t.Errorf("expected ErrRangeOutOfBound, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := q.Snapshot()
			if len(got) != len(tt.wantTitles) {
				t.Fatalf("expected %d entries, got %d", len(tt.wantTitles), len(got))
			}
			for i, want := range tt.wantTitles {
				if got[i].Title != want {
					t.Errorf("position %d: expected %q, got %q", i, want, got[i].Title)
				}
			}

			if len(store.Stored()) != 4 {
				t.Error("RemoveRange must not persist on its own")
			}
			if err := q.Save(); err != nil {
				t.Fatal(err)
			}
			if len(store.Stored()) != len(tt.wantTitles) {
				t.Errorf("expected %d stored after Save, got %d", len(tt.wantTitles), len(store.Stored()))
			}
		})
	}
}

func TestRemoveInvalidTracks(t *testing.T) {
	t.Run("drops flagged and unacceptable entries", func(t *testing.T) {
		tooOld := play("Old", "Song")
		tooOld.StartedAt = testNow.Add(-15 * 24 * time.Hour)
		short := play("Short", "Song")
		short.DurationSeconds = 20

		q, store := newQueue(t,
			models.QueuedEvent{PlayEvent: play("Keep", "One")},
			models.QueuedEvent{PlayEvent: tooOld},
			models.QueuedEvent{PlayEvent: play("Flagged", "Song"), InvalidReason: "too large"},
			models.QueuedEvent{PlayEvent: short},
			models.QueuedEvent{PlayEvent: play("Keep", "Two")},
		)

		if removed := q.RemoveInvalidTracks(); removed != 3 {
			t.Errorf("expected 3 removed, got %d", removed)
		}
		got := q.Snapshot()
		if len(got) != 2 || got[0].Title != "One" || got[1].Title != "Two" {
			t.Errorf("unexpected remaining entries %+v", got)
		}
		if len(store.Stored()) != 2 {
			t.Error("purge should be persisted")
		}
	})

	t.Run("no-op does not save", func(t *testing.T) {
		q, store := newQueue(t, models.QueuedEvent{PlayEvent: play("Keep", "One")})
		if removed := q.RemoveInvalidTracks(); removed != 0 {
			t.Errorf("expected nothing removed, got %d", removed)
		}
		if store.Saves != 0 {
			t.Errorf("expected no saves, got %d", store.Saves)
		}
	})

	t.Run("save failure still removes in memory", func(t *testing.T) {
		q, store := newQueue(t, models.QueuedEvent{PlayEvent: play("Bad", "One"), InvalidReason: "x"})
		store.FailSave = errors.New("read-only")
		if removed := q.RemoveInvalidTracks(); removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}
		if q.Any() {
			t.Error("expected empty queue")
		}
	})
}

func TestMarkInvalid(t *testing.T) {
	q, _ := newQueue(t)
	entry, _ := q.Enqueue(play("Artist", "Huge"))

	if q.MarkInvalid("missing", "x") {
		t.Error("expected false for unknown id")
	}
	if !q.MarkInvalid(entry.ID, "too large") {
		t.Fatal("expected entry to be marked")
	}
	ev, _ := q.GetNextTrack(0)
	if ev.InvalidReason != "too large" {
		t.Errorf("expected reason recorded, got %q", ev.InvalidReason)
	}
	if q.RemoveInvalidTracks() != 1 {
		t.Error("marked entry should be purged")
	}
}

func TestSaveError(t *testing.T) {
	q, store := newQueue(t)
	store.FailSave = errors.New("locked")
	if err := q.Save(); err == nil {
		t.Error("expected save error")
	}
}

func TestConcurrentEnqueueAndSave(t *testing.T) {
	q, store := newQueue(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			q.Enqueue(play("Artist", string(rune('A'+i))))
		}()
		go func() {
			defer wg.Done()
			q.Save()
		}()
	}
	wg.Wait()

	if q.Count() != 20 {
		t.Errorf("expected 20 entries, got %d", q.Count())
	}
	if err := q.Save(); err != nil {
		t.Fatal(err)
	}
	if len(store.Stored()) != 20 {
		t.Errorf("expected 20 stored, got %d", len(store.Stored()))
	}
}
