// Package queue holds play events that have not been accepted by the scrobbling service yet.
//
// [PendingQueue] is an in-memory FIFO mirrored to a [Store]. Enqueue persists
// immediately; removals are persisted by an explicit [PendingQueue.Save].
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
)

// Store is the durable backing of a [PendingQueue].
type Store interface {
	LoadEvents() ([]models.QueuedEvent, error)
	SaveEvents(events []models.QueuedEvent) error
	Append(ev *models.QueuedEvent) error
}

// PendingQueue is a durable, ordered queue of play events. It is safe for concurrent use.
type PendingQueue struct {
	mu        sync.Mutex
	store     Store
	entries   []models.QueuedEvent
	listeners map[int]func()
	nextID    int
	logger    *log.Logger
	now       func() time.Time
}

// New creates an empty queue over store. Call [PendingQueue.Load] to read persisted entries.
func New(store Store, logger *log.Logger) *PendingQueue {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PendingQueue{
		store:     store,
		listeners: make(map[int]func()),
		logger:    shared.WithLogger(logger, "component", "queue"),
		now:       time.Now,
	}
}

// SetClock replaces the time source used to validate entries.
func (q *PendingQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Load replaces the in-memory entries with the persisted ones.
func (q *PendingQueue) Load() error {
	events, err := q.store.LoadEvents()
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}

	q.mu.Lock()
	q.entries = events
	q.mu.Unlock()

	q.logger.Debug("loaded pending events", "count", len(events))
	return nil
}

// Save persists the current entries, replacing what the store holds.
func (q *PendingQueue) Save() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.saveLocked()
}

// saveLocked runs under q.mu so a concurrent Append cannot be overwritten by an older snapshot.
func (q *PendingQueue) saveLocked() error {
	if err := q.store.SaveEvents(q.entries); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}

// Enqueue appends ev, persists it and notifies listeners. The assigned entry is returned.
func (q *PendingQueue) Enqueue(ev models.PlayEvent) (models.QueuedEvent, error) {
	if ev.ID == "" {
		ev.ID = shared.GenerateID()
	}
	entry := models.QueuedEvent{PlayEvent: ev}

	q.mu.Lock()
	if err := q.store.Append(&entry); err != nil {
		q.mu.Unlock()
		return entry, fmt.Errorf("failed to persist event: %w", err)
	}
	q.entries = append(q.entries, entry)
	listeners := q.listenersLocked()
	q.mu.Unlock()

	q.logger.Debug("enqueued", "artist", ev.Artist, "title", ev.Title, "id", ev.ID)
	for _, fn := range listeners {
		fn()
	}
	return entry, nil
}

// GetNextTrack returns the event at position i from the head.
func (q *PendingQueue) GetNextTrack(i int) (models.QueuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i < 0 || i >= len(q.entries) {
		return models.QueuedEvent{}, false
	}
	return q.entries[i], true
}

// RemoveRange drops count entries starting at start. It does not persist; call [PendingQueue.Save].
func (q *PendingQueue) RemoveRange(start, count int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if start < 0 || count < 0 || start+count > len(q.entries) {
		return fmt.Errorf("%w: remove %d at %d from %d entries", shared.ErrRangeOutOfBound, count, start, len(q.entries))
	}
	q.entries = append(q.entries[:start], q.entries[start+count:]...)
	return nil
}

// RemoveInvalidTracks drops entries the service would reject permanently and persists the result.
// It returns the number of entries removed.
func (q *PendingQueue) RemoveInvalidTracks() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	kept := q.entries[:0]
	removed := 0
	for _, ev := range q.entries {
		if reason, bad := ev.Invalid(now); bad {
			q.logger.Warn("dropping invalid event", "artist", ev.Artist, "title", ev.Title, "reason", reason)
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	clear(q.entries[len(kept):])
	q.entries = kept

	if removed > 0 {
		if err := q.saveLocked(); err != nil {
			q.logger.Error("failed to persist purge", "error", err)
		}
	}
	return removed
}

// MarkInvalid flags the entry with id so the next purge removes it.
func (q *PendingQueue) MarkInvalid(id, reason string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].ID == id {
			q.entries[i].InvalidReason = reason
			return true
		}
	}
	return false
}

// Count returns the number of pending entries.
func (q *PendingQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Any reports whether the queue has entries.
func (q *PendingQueue) Any() bool {
	return q.Count() > 0
}

// Snapshot returns a copy of the entries in queue order.
func (q *PendingQueue) Snapshot() []models.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.QueuedEvent(nil), q.entries...)
}

// OnTrackAdded registers fn to run after each successful enqueue, outside the queue lock.
// The returned function unregisters it.
func (q *PendingQueue) OnTrackAdded(fn func()) (cancel func()) {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

func (q *PendingQueue) listenersLocked() []func() {
	fns := make([]func(), 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	return fns
}
