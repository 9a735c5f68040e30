package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SemanticMemory is a durable piece of generalized knowledge promoted
// from episodic events.
type SemanticMemory struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateMemory stores a new semantic memory and returns its id.
func (s *DB) CreateMemory(title, content string, metadata map[string]any) (string, error) {
	id := "mem-" + uuid.NewString()

	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal memory metadata: %w", err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO semantic_memories (id, title, content, metadata)
		VALUES (?, ?, ?, ?)`, id, title, content, string(metaJSON))
	if err != nil {
		return "", fmt.Errorf("failed to insert semantic memory: %w", err)
	}
	return id, nil
}

// GetMemory returns a semantic memory by id, or nil if not found.
func (s *DB) GetMemory(id string) (*SemanticMemory, error) {
	var m SemanticMemory
	var metaJSON sql.NullString
	err := s.db.QueryRow(`
		SELECT id, title, content, metadata, created_at
		FROM semantic_memories WHERE id = ?`, id).
		Scan(&m.ID, &m.Title, &m.Content, &metaJSON, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read semantic memory: %w", err)
	}

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse memory metadata: %w", err)
		}
	}
	return &m, nil
}

// ListMemories returns all semantic memories, newest first.
func (s *DB) ListMemories() ([]*SemanticMemory, error) {
	rows, err := s.db.Query(`
		SELECT id, title, content, metadata, created_at
		FROM semantic_memories ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query semantic memories: %w", err)
	}
	defer rows.Close()

	var memories []*SemanticMemory
	for rows.Next() {
		var m SemanticMemory
		var metaJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &metaJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan semantic memory: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse memory metadata: %w", err)
			}
		}
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}
