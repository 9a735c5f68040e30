package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/calyptra/mnemo/internal/types"
)

// AddEvent inserts an episodic event. Used by ingestion adapters and
// tests; the consolidation pipeline itself only reads events and flips
// their consolidation status.
func (s *DB) AddEvent(e *types.EpisodicEvent) error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Outcome == "" {
		e.Outcome = types.OutcomeNone
	}
	if e.ConsolidationStatus == "" {
		e.ConsolidationStatus = types.StatusUnconsolidated
	}

	_, err := s.db.Exec(`
		INSERT INTO episodic_events (id, project_id, session_id, type, content, timestamp, outcome, consolidation_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.SessionID, e.Type, e.Content, e.Timestamp,
		string(e.Outcome), string(e.ConsolidationStatus))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event by id, or nil if not found.
func (s *DB) GetEvent(id string) (*types.EpisodicEvent, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, session_id, type, content, timestamp, outcome, consolidation_status
		FROM episodic_events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// GetUnconsolidatedEvents returns a session's unconsolidated events in
// ascending timestamp order, ties broken by id.
func (s *DB) GetUnconsolidatedEvents(projectID, sessionID string) ([]*types.EpisodicEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, session_id, type, content, timestamp, outcome, consolidation_status
		FROM episodic_events
		WHERE project_id = ? AND session_id = ? AND consolidation_status = 'unconsolidated'
		ORDER BY timestamp ASC, id ASC`, projectID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsolidated events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// GetSessionEvents returns all of a session's events in ascending
// timestamp order, ties broken by id.
func (s *DB) GetSessionEvents(sessionID string) ([]*types.EpisodicEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, session_id, type, content, timestamp, outcome, consolidation_status
		FROM episodic_events
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// CountUnconsolidated returns the number of unconsolidated events in a session.
func (s *DB) CountUnconsolidated(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM episodic_events
		WHERE session_id = ? AND consolidation_status = 'unconsolidated'`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unconsolidated events: %w", err)
	}
	return count, nil
}

// MarkConsolidated flips the given events to consolidated and returns how
// many rows actually changed. Idempotent: already-consolidated events are
// untouched and not counted.
func (s *DB) MarkConsolidated(eventIDs []string) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(eventIDs))
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		UPDATE episodic_events SET consolidation_status = 'consolidated'
		WHERE id IN (%s) AND consolidation_status = 'unconsolidated'`,
		strings.Join(placeholders, ","))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark events consolidated: %w", err)
	}

	count, _ := result.RowsAffected()
	return int(count), nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*types.EpisodicEvent, error) {
	var e types.EpisodicEvent
	var outcome, status string
	if err := row.Scan(&e.ID, &e.ProjectID, &e.SessionID, &e.Type, &e.Content,
		&e.Timestamp, &outcome, &status); err != nil {
		return nil, err
	}
	e.Outcome = types.Outcome(outcome)
	e.ConsolidationStatus = types.ConsolidationStatus(status)
	return &e, nil
}

func collectEvents(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]*types.EpisodicEvent, error) {
	var events []*types.EpisodicEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
