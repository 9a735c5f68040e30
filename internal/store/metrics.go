package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MetricRow is one persisted metric snapshot for a consolidation run.
type MetricRow struct {
	ID         int64          `json:"id"`
	TriggerID  string         `json:"trigger_id"`
	Name       string         `json:"name"`
	Value      float64        `json:"value"`
	Detail     map[string]any `json:"detail,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// RecordMetric persists a named metric value, optionally with a detail
// payload, scoped to a trigger run.
func (s *DB) RecordMetric(triggerID, name string, value float64, detail map[string]any) error {
	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal metric detail: %w", err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO consolidation_metrics (trigger_id, name, value, detail)
		VALUES (?, ?, ?, ?)`, triggerID, name, value, string(detailJSON))
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}

// ListMetrics returns the persisted metrics for a trigger run, oldest first.
func (s *DB) ListMetrics(triggerID string) ([]MetricRow, error) {
	rows, err := s.db.Query(`
		SELECT id, trigger_id, name, value, detail, recorded_at
		FROM consolidation_metrics WHERE trigger_id = ?
		ORDER BY id ASC`, triggerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []MetricRow
	for rows.Next() {
		var m MetricRow
		var detailJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.TriggerID, &m.Name, &m.Value, &detailJSON, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		if detailJSON.Valid && detailJSON.String != "" {
			if err := json.Unmarshal([]byte(detailJSON.String), &m.Detail); err != nil {
				return nil, fmt.Errorf("failed to parse metric detail: %w", err)
			}
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
