package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

// ErrActiveTrigger is returned when a session already has a pending or
// running trigger. The partial unique index on consolidation_triggers
// enforces this even across processes.
var ErrActiveTrigger = errors.New("session already has an active trigger")

// InsertTrigger persists a new pending trigger record.
func (s *DB) InsertTrigger(rec *types.TriggerRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO consolidation_triggers (id, session_id, trigger_type, status, event_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, string(rec.TriggerType), string(rec.Status),
		rec.EventCount, rec.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrActiveTrigger
		}
		return fmt.Errorf("failed to insert trigger: %w", err)
	}
	return nil
}

// GetTrigger returns a trigger record by id, or nil if not found.
func (s *DB) GetTrigger(id string) (*types.TriggerRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, trigger_type, status, event_count, consolidated_events,
		       patterns_extracted, procedures_created, error_message, created_at, started_at, completed_at
		FROM consolidation_triggers WHERE id = ?`, id)

	rec, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// LatestBlockingTrigger returns the most recent trigger for the session
// whose status blocks a new consolidation run (running, success, or
// partial), or nil if none exists.
func (s *DB) LatestBlockingTrigger(sessionID string) (*types.TriggerRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, trigger_type, status, event_count, consolidated_events,
		       patterns_extracted, procedures_created, error_message, created_at, started_at, completed_at
		FROM consolidation_triggers
		WHERE session_id = ? AND status IN ('running', 'success', 'partial')
		ORDER BY created_at DESC, id DESC LIMIT 1`, sessionID)

	rec, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListSessionTriggers returns all trigger records for a session, newest first.
func (s *DB) ListSessionTriggers(sessionID string) ([]*types.TriggerRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, trigger_type, status, event_count, consolidated_events,
		       patterns_extracted, procedures_created, error_message, created_at, started_at, completed_at
		FROM consolidation_triggers
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var recs []*types.TriggerRecord
	for rows.Next() {
		rec, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ExpireStalePendingTriggers fails every pending trigger for the session
// created before the cutoff. A trigger stranded in pending (a crash
// between insert and start) would otherwise hold the session's active
// slot forever, since completion only transitions from running.
func (s *DB) ExpireStalePendingTriggers(sessionID string, before time.Time) (int, error) {
	result, err := s.db.Exec(`
		UPDATE consolidation_triggers
		SET status = 'failed', error_message = 'expired: never left pending', completed_at = CURRENT_TIMESTAMP
		WHERE session_id = ? AND status = 'pending' AND created_at < ?`, sessionID, before)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale triggers: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// MarkTriggerStarted moves a pending trigger to running. Returns false if
// the trigger was not pending (no transition happens).
func (s *DB) MarkTriggerStarted(id string, at time.Time) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE consolidation_triggers SET status = 'running', started_at = ?
		WHERE id = ? AND status = 'pending'`, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark trigger started: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// TriggerCounts holds the result counters written at run completion.
type TriggerCounts struct {
	ConsolidatedEvents int
	PatternsExtracted  int
	ProceduresCreated  int
}

// MarkTriggerCompleted moves a running trigger to a terminal status.
// The guarded WHERE clause makes terminal states immutable: calling this
// on an already-terminal trigger is a no-op and returns false.
func (s *DB) MarkTriggerCompleted(id string, status types.TriggerStatus, counts TriggerCounts, errMsg string, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}

	result, err := s.db.Exec(`
		UPDATE consolidation_triggers
		SET status = ?, consolidated_events = ?, patterns_extracted = ?,
		    procedures_created = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'running'`,
		string(status), counts.ConsolidatedEvents, counts.PatternsExtracted,
		counts.ProceduresCreated, errMsg, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark trigger completed: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func scanTrigger(row rowScanner) (*types.TriggerRecord, error) {
	var rec types.TriggerRecord
	var triggerType, status string
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.SessionID, &triggerType, &status,
		&rec.EventCount, &rec.ConsolidatedEvents, &rec.PatternsExtracted,
		&rec.ProceduresCreated, &rec.ErrorMessage, &rec.CreatedAt,
		&startedAt, &completedAt); err != nil {
		return nil, err
	}
	rec.TriggerType = types.TriggerType(triggerType)
	rec.Status = types.TriggerStatus(status)
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time
	}
	return &rec, nil
}
