package repositories

import (
	"database/sql"
	"fmt"
)

// NextSequence atomically increments and returns the next sequence number for the given table.
func NextSequence(db *sql.DB, table string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequenceTx(tx, table)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}
	return sequence, nil
}

func nextSequenceTx(tx *sql.Tx, table string) (int64, error) {
	sequenceTable := table + "_sequence"

	if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int64
	if err := tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}

// advanceSequenceTx raises the counter to at least floor so later appends sort after saved entries.
func advanceSequenceTx(tx *sql.Tx, table string, floor int64) error {
	query := fmt.Sprintf("UPDATE %s_sequence SET value = MAX(value, ?) WHERE id = 1", table)
	if _, err := tx.Exec(query, floor); err != nil {
		return fmt.Errorf("failed to advance sequence: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
