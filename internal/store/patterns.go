package store

import (
	"fmt"

	"github.com/calyptra/mnemo/internal/types"
)

// AddPatternSources records provenance edges from a promoted pattern to
// its contributing events. Duplicate edges are ignored.
func (s *DB) AddPatternSources(sources []types.PatternSource) error {
	if len(sources) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin pattern source transaction: %w", err)
	}
	defer tx.Rollback()

	for _, src := range sources {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO pattern_sources (pattern_id, source_event_id, strength, source_type)
			VALUES (?, ?, ?, ?)`,
			src.PatternID, src.SourceEventID, src.Strength, src.SourceType); err != nil {
			return fmt.Errorf("failed to insert pattern source: %w", err)
		}
	}

	return tx.Commit()
}

// GetPatternSources returns the provenance edges for a pattern.
func (s *DB) GetPatternSources(patternID string) ([]types.PatternSource, error) {
	rows, err := s.db.Query(`
		SELECT pattern_id, source_event_id, strength, source_type
		FROM pattern_sources WHERE pattern_id = ?
		ORDER BY source_event_id ASC`, patternID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern sources: %w", err)
	}
	defer rows.Close()

	var sources []types.PatternSource
	for rows.Next() {
		var src types.PatternSource
		if err := rows.Scan(&src.PatternID, &src.SourceEventID, &src.Strength, &src.SourceType); err != nil {
			return nil, fmt.Errorf("failed to scan pattern source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
