package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
)

const eventColumns = `id, sequence, title, artist, album, track_number, duration, started_at, mbid, track_auth, invalid_reason`

// EventRepository persists pending play events in queue order.
//
// It is the durable backing store of the pending queue: Append is called on every enqueue,
// SaveEvents replaces the whole table after removals.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository with the given database connection
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// LoadEvents returns every stored event ordered by sequence.
func (r *EventRepository) LoadEvents() ([]models.QueuedEvent, error) {
	rows, err := r.db.Query(`SELECT ` + eventColumns + ` FROM pending_events ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []models.QueuedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending events: %w", err)
	}
	return events, nil
}

// Append stores ev after every existing entry, assigning its ID and Sequence when unset.
func (r *EventRepository) Append(ev *models.QueuedEvent) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if ev.ID == "" {
		ev.ID = shared.GenerateID()
	}
	if ev.Sequence == 0 {
		if ev.Sequence, err = nextSequenceTx(tx, "pending_events"); err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}
	}

	if err := insertEvent(tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveEvents replaces the stored queue with events in a single transaction.
//
// Entries without a sequence are numbered after the highest saved one.
func (r *EventRepository) SaveEvents(events []models.QueuedEvent) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM pending_events"); err != nil {
		return fmt.Errorf("failed to clear pending events: %w", err)
	}

	var highest int64
	for _, ev := range events {
		highest = max(highest, ev.Sequence)
	}
	if err := advanceSequenceTx(tx, "pending_events", highest); err != nil {
		return err
	}

	for i := range events {
		ev := events[i]
		if ev.ID == "" {
			ev.ID = shared.GenerateID()
		}
		if ev.Sequence == 0 {
			if ev.Sequence, err = nextSequenceTx(tx, "pending_events"); err != nil {
				return fmt.Errorf("failed to generate sequence: %w", err)
			}
		}
		if err := insertEvent(tx, &ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pending events: %w", err)
	}
	return nil
}

// Get retrieves a single pending event by ID.
func (r *EventRepository) Get(id string) (models.QueuedEvent, error) {
	row := r.db.QueryRow(`SELECT `+eventColumns+` FROM pending_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, fmt.Errorf("%w: %s", shared.ErrEventNotFound, id)
	}
	return ev, err
}

// Count returns the number of stored events.
func (r *EventRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM pending_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}

func insertEvent(tx *sql.Tx, ev *models.QueuedEvent) error {
	query := `
		INSERT INTO pending_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.Exec(query,
		ev.ID,
		ev.Sequence,
		ev.Title,
		ev.Artist,
		ev.Album,
		ev.TrackNumber,
		ev.DurationSeconds,
		ev.StartedAt.Unix(),
		ev.MusicBrainzID,
		ev.TrackAuth,
		ev.InvalidReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending event %s: %w", ev.ID, err)
	}
	return nil
}

func scanEvent(s scanner) (models.QueuedEvent, error) {
	var (
		ev        models.QueuedEvent
		startedAt int64
	)
	err := s.Scan(
		&ev.ID,
		&ev.Sequence,
		&ev.Title,
		&ev.Artist,
		&ev.Album,
		&ev.TrackNumber,
		&ev.DurationSeconds,
		&startedAt,
		&ev.MusicBrainzID,
		&ev.TrackAuth,
		&ev.InvalidReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ev, err
		}
		return ev, fmt.Errorf("failed to scan pending event: %w", err)
	}
	ev.StartedAt = time.Unix(startedAt, 0)
	return ev, nil
}
