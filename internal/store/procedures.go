package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/calyptra/mnemo/internal/types"
)

// InsertProcedure persists a newly created procedure.
func (s *DB) InsertProcedure(p *types.Procedure) error {
	sourcePattern := sql.NullString{String: p.SourcePatternID, Valid: p.SourcePatternID != ""}
	sourceLesson := sql.NullString{String: p.SourceLessonID, Valid: p.SourceLessonID != ""}

	_, err := s.db.Exec(`
		INSERT INTO procedure_creations (id, name, category, template, source_pattern_id, source_lesson_id, confidence, success_rate, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Category), p.Template, sourcePattern, sourceLesson,
		p.Confidence, p.SuccessRate, p.UsageCount)
	if err != nil {
		return fmt.Errorf("failed to insert procedure: %w", err)
	}
	return nil
}

// GetProcedure returns a procedure by id, or nil if not found.
func (s *DB) GetProcedure(id string) (*types.Procedure, error) {
	row := s.db.QueryRow(`
		SELECT id, name, category, template, source_pattern_id, source_lesson_id,
		       confidence, success_rate, usage_count, first_use_at, created_at
		FROM procedure_creations WHERE id = ?`, id)

	var p types.Procedure
	var category string
	var sourcePattern, sourceLesson sql.NullString
	var firstUse sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &category, &p.Template, &sourcePattern,
		&sourceLesson, &p.Confidence, &p.SuccessRate, &p.UsageCount,
		&firstUse, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read procedure: %w", err)
	}
	p.Category = types.ProcedureCategory(category)
	p.SourcePatternID = sourcePattern.String
	p.SourceLessonID = sourceLesson.String
	if firstUse.Valid {
		p.FirstUseAt = firstUse.Time
	}
	return &p, nil
}

// AppendProcedureUsage inserts a usage row and returns the updated usage
// totals, all in one transaction. first_use_at is set on the first
// recorded use and never overwritten afterwards.
func (s *DB) AppendProcedureUsage(u *types.ProcedureUsage) (totalUses, successfulUses int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer tx.Rollback()

	var effectiveness sql.NullFloat64
	if u.Effectiveness != nil {
		effectiveness = sql.NullFloat64{Float64: *u.Effectiveness, Valid: true}
	}
	if _, err := tx.Exec(`
		INSERT INTO procedure_usage (id, procedure_id, session_id, goal_id, outcome, effectiveness)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.ProcedureID, u.SessionID, u.GoalID, string(u.Outcome), effectiveness); err != nil {
		return 0, 0, fmt.Errorf("failed to insert procedure usage: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE procedure_creations SET first_use_at = CURRENT_TIMESTAMP
		WHERE id = ? AND first_use_at IS NULL`, u.ProcedureID); err != nil {
		return 0, 0, fmt.Errorf("failed to set first use: %w", err)
	}

	if err := tx.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0)
		FROM procedure_usage WHERE procedure_id = ?`, u.ProcedureID).
		Scan(&totalUses, &successfulUses); err != nil {
		return 0, 0, fmt.Errorf("failed to count procedure usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit usage transaction: %w", err)
	}
	return totalUses, successfulUses, nil
}

// SetProcedureStats writes the recomputed success rate and usage count.
func (s *DB) SetProcedureStats(procedureID string, successRate float64, usageCount int) error {
	_, err := s.db.Exec(`
		UPDATE procedure_creations SET success_rate = ?, usage_count = ?
		WHERE id = ?`, successRate, usageCount, procedureID)
	if err != nil {
		return fmt.Errorf("failed to update procedure stats: %w", err)
	}
	return nil
}
