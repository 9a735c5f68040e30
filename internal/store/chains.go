package store

import (
	"fmt"

	"github.com/calyptra/mnemo/internal/types"
)

// AddTemporalLink persists a pairwise temporal link. Insert-only.
func (s *DB) AddTemporalLink(link *types.TemporalLink) error {
	_, err := s.db.Exec(`
		INSERT INTO temporal_chains (id, from_event_id, to_event_id, relation_type, time_delta_seconds, causal_strength)
		VALUES (?, ?, ?, ?, ?, ?)`,
		link.ID, link.FromEventID, link.ToEventID, string(link.RelationType),
		link.TimeDelta, link.CausalStrength)
	if err != nil {
		return fmt.Errorf("failed to insert temporal link: %w", err)
	}
	return nil
}

// GetLinksFrom returns links whose from side is the given event, ordered
// by causal strength descending.
func (s *DB) GetLinksFrom(eventID string) ([]*types.TemporalLink, error) {
	return s.queryLinks(`
		SELECT id, from_event_id, to_event_id, relation_type, time_delta_seconds, causal_strength
		FROM temporal_chains WHERE from_event_id = ?
		ORDER BY causal_strength DESC, id ASC`, eventID)
}

// GetLinksTo returns links whose to side is the given event, ordered by
// causal strength descending.
func (s *DB) GetLinksTo(eventID string) ([]*types.TemporalLink, error) {
	return s.queryLinks(`
		SELECT id, from_event_id, to_event_id, relation_type, time_delta_seconds, causal_strength
		FROM temporal_chains WHERE to_event_id = ?
		ORDER BY causal_strength DESC, id ASC`, eventID)
}

func (s *DB) queryLinks(query string, args ...interface{}) ([]*types.TemporalLink, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query temporal links: %w", err)
	}
	defer rows.Close()

	var links []*types.TemporalLink
	for rows.Next() {
		var l types.TemporalLink
		var relation string
		if err := rows.Scan(&l.ID, &l.FromEventID, &l.ToEventID, &relation,
			&l.TimeDelta, &l.CausalStrength); err != nil {
			return nil, fmt.Errorf("failed to scan temporal link: %w", err)
		}
		l.RelationType = types.RelationType(relation)
		links = append(links, &l)
	}
	return links, rows.Err()
}

// ReplaceSessionSequence atomically replaces the stored total ordering
// for a session.
func (s *DB) ReplaceSessionSequence(sessionID string, entries []types.SequenceEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin sequence transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM execution_sequences WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear session sequence: %w", err)
	}

	for _, entry := range entries {
		if _, err := tx.Exec(`
			INSERT INTO execution_sequences (session_id, event_id, sequence_order)
			VALUES (?, ?, ?)`, sessionID, entry.EventID, entry.SequenceOrder); err != nil {
			return fmt.Errorf("failed to insert sequence entry: %w", err)
		}
	}

	return tx.Commit()
}

// GetSessionSequence returns the stored ordering for a session, in order.
func (s *DB) GetSessionSequence(sessionID string) ([]types.SequenceEntry, error) {
	rows, err := s.db.Query(`
		SELECT session_id, event_id, sequence_order
		FROM execution_sequences WHERE session_id = ?
		ORDER BY sequence_order ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session sequence: %w", err)
	}
	defer rows.Close()

	var entries []types.SequenceEntry
	for rows.Next() {
		var entry types.SequenceEntry
		if err := rows.Scan(&entry.SessionID, &entry.EventID, &entry.SequenceOrder); err != nil {
			return nil, fmt.Errorf("failed to scan sequence entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
