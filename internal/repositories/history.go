package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/scrob/internal/models"
)

// HistoryRepository appends and lists batch submission outcomes.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record inserts rec and sets its ID.
func (r *HistoryRepository) Record(rec *models.SubmissionRecord) error {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}

	result, err := r.db.Exec(`
		INSERT INTO submission_log (batch_size, accepted, ignored, outcome, detail, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.BatchSize, rec.Accepted, rec.Ignored, string(rec.Outcome), rec.Detail, rec.SubmittedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get submission id: %w", err)
	}
	rec.ID = id
	return nil
}

// Recent returns up to limit records, newest first.
func (r *HistoryRepository) Recent(limit int) ([]models.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, batch_size, accepted, ignored, outcome, detail, submitted_at
		FROM submission_log
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission log: %w", err)
	}
	defer rows.Close()

	var records []models.SubmissionRecord
	for rows.Next() {
		var (
			rec     models.SubmissionRecord
			outcome string
			at      int64
		)
		if err := rows.Scan(&rec.ID, &rec.BatchSize, &rec.Accepted, &rec.Ignored, &outcome, &rec.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		rec.Outcome = models.SubmissionOutcome(outcome)
		rec.SubmittedAt = time.Unix(at, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}
