package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/calyptra/mnemo/internal/types"
)

// InsertPathway persists a new learning pathway.
func (s *DB) InsertPathway(p *types.LearningPathway) error {
	_, err := s.db.Exec(`
		INSERT INTO learning_pathways (id, session_id, pathway_type, source_id, source_type, episodic_id, semantic_id, procedural_id, confidence, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, string(p.PathwayType), p.SourceID, p.SourceType,
		p.EpisodicID, p.SemanticID, p.ProceduralID, p.Confidence, string(p.Status))
	if err != nil {
		return fmt.Errorf("failed to insert pathway: %w", err)
	}
	return nil
}

// GetPathway returns a pathway by id, or nil if not found.
func (s *DB) GetPathway(id string) (*types.LearningPathway, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, pathway_type, source_id, source_type, episodic_id,
		       semantic_id, procedural_id, confidence, status, created_at
		FROM learning_pathways WHERE id = ?`, id)

	var p types.LearningPathway
	var pathwayType, status string
	err := row.Scan(&p.ID, &p.SessionID, &pathwayType, &p.SourceID, &p.SourceType,
		&p.EpisodicID, &p.SemanticID, &p.ProceduralID, &p.Confidence, &status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pathway: %w", err)
	}
	p.PathwayType = types.PathwayType(pathwayType)
	p.Status = types.PathwayStatus(status)
	return &p, nil
}

// SetPathwaySemantic links a pathway to its promoted semantic memory and
// flips the pathway status to consolidated.
func (s *DB) SetPathwaySemantic(pathwayID, semanticID string) error {
	_, err := s.db.Exec(`
		UPDATE learning_pathways SET semantic_id = ?, status = 'consolidated'
		WHERE id = ?`, semanticID, pathwayID)
	if err != nil {
		return fmt.Errorf("failed to link pathway to semantic memory: %w", err)
	}
	return nil
}

// SetPathwayProcedural links a pathway to a procedure. Status is left
// unchanged: semantic consolidation, not procedural reuse, is what marks
// a pathway learned.
func (s *DB) SetPathwayProcedural(pathwayID, proceduralID string) error {
	_, err := s.db.Exec(`
		UPDATE learning_pathways SET procedural_id = ?
		WHERE id = ?`, proceduralID, pathwayID)
	if err != nil {
		return fmt.Errorf("failed to link pathway to procedure: %w", err)
	}
	return nil
}

// PathwayTypeStats holds per-type aggregates for a session's pathways.
type PathwayTypeStats struct {
	PathwayType   types.PathwayType
	Count         int
	AvgConfidence float64
	Consolidated  int
}

// SessionPathwayStats returns per-type pathway aggregates for a session.
func (s *DB) SessionPathwayStats(sessionID string) ([]PathwayTypeStats, error) {
	rows, err := s.db.Query(`
		SELECT pathway_type, COUNT(*), AVG(confidence),
		       SUM(CASE WHEN status = 'consolidated' THEN 1 ELSE 0 END)
		FROM learning_pathways
		WHERE session_id = ?
		GROUP BY pathway_type
		ORDER BY pathway_type ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pathway stats: %w", err)
	}
	defer rows.Close()

	var stats []PathwayTypeStats
	for rows.Next() {
		var st PathwayTypeStats
		var pathwayType string
		if err := rows.Scan(&pathwayType, &st.Count, &st.AvgConfidence, &st.Consolidated); err != nil {
			return nil, fmt.Errorf("failed to scan pathway stats: %w", err)
		}
		st.PathwayType = types.PathwayType(pathwayType)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RecordPathwayMetric persists a per-session effectiveness snapshot.
func (s *DB) RecordPathwayMetric(sessionID string, pathwayType types.PathwayType, count int, avgConfidence, consolidationRate float64) error {
	_, err := s.db.Exec(`
		INSERT INTO pathway_metrics (session_id, pathway_type, pathway_count, avg_confidence, consolidation_rate)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(pathwayType), count, avgConfidence, consolidationRate)
	if err != nil {
		return fmt.Errorf("failed to record pathway metric: %w", err)
	}
	return nil
}
