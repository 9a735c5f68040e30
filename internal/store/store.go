// Package store wraps the SQLite database holding episodic events,
// promoted semantic memories, and every table the consolidation engine
// owns: triggers, temporal chains, execution sequences, pattern sources,
// procedures, learning pathways, and metric snapshots.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection for the consolidation engine.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the consolidation database at dbPath.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &DB{db: db, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// migrate creates the base schema and applies incremental migrations.
func (s *DB) migrate() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Episodic events (append-only; only consolidation_status is ever updated)
	CREATE TABLE IF NOT EXISTS episodic_events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'none',
		consolidation_status TEXT NOT NULL DEFAULT 'unconsolidated',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_session_ts ON episodic_events(session_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_status ON episodic_events(consolidation_status);
	CREATE INDEX IF NOT EXISTS idx_events_project ON episodic_events(project_id);

	-- Semantic memories promoted from patterns and discoveries
	CREATE TABLE IF NOT EXISTS semantic_memories (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Consolidation run lifecycle
	CREATE TABLE IF NOT EXISTS consolidation_triggers (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		event_count INTEGER NOT NULL DEFAULT 0,
		consolidated_events INTEGER NOT NULL DEFAULT 0,
		patterns_extracted INTEGER NOT NULL DEFAULT 0,
		procedures_created INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_triggers_session ON consolidation_triggers(session_id, created_at);

	-- At most one pending/running trigger per session, enforced in the
	-- database so the guarantee holds across processes too.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_triggers_active
		ON consolidation_triggers(session_id)
		WHERE status IN ('pending', 'running');

	-- Pattern provenance (pattern -> contributing event)
	CREATE TABLE IF NOT EXISTS pattern_sources (
		pattern_id TEXT NOT NULL,
		source_event_id TEXT NOT NULL,
		strength REAL NOT NULL DEFAULT 1.0,
		source_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (pattern_id, source_event_id)
	);

	-- Metric snapshots per consolidation run
	CREATE TABLE IF NOT EXISTS consolidation_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trigger_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		value REAL NOT NULL,
		detail TEXT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_trigger ON consolidation_metrics(trigger_id);

	-- Learning pathways (provenance: source -> episodic -> semantic -> procedural)
	CREATE TABLE IF NOT EXISTS learning_pathways (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		pathway_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		source_type TEXT NOT NULL DEFAULT '',
		episodic_id TEXT NOT NULL DEFAULT '',
		semantic_id TEXT NOT NULL DEFAULT '',
		procedural_id TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pathways_session ON learning_pathways(session_id);

	-- Per-session pathway effectiveness snapshots
	CREATE TABLE IF NOT EXISTS pathway_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		pathway_type TEXT NOT NULL,
		pathway_count INTEGER NOT NULL,
		avg_confidence REAL NOT NULL,
		consolidation_rate REAL NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Auto-created procedures
	CREATE TABLE IF NOT EXISTS procedure_creations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		template TEXT NOT NULL DEFAULT '',
		source_pattern_id TEXT,
		source_lesson_id TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0.5,
		usage_count INTEGER NOT NULL DEFAULT 0,
		first_use_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		CHECK ((source_pattern_id IS NULL) != (source_lesson_id IS NULL))
	);

	-- Recorded real-world procedure usage
	CREATE TABLE IF NOT EXISTS procedure_usage (
		id TEXT PRIMARY KEY,
		procedure_id TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		goal_id TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		effectiveness REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (procedure_id) REFERENCES procedure_creations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_usage_procedure ON procedure_usage(procedure_id);

	-- Pairwise temporal/causal links between events
	CREATE TABLE IF NOT EXISTS temporal_chains (
		id TEXT PRIMARY KEY,
		from_event_id TEXT NOT NULL,
		to_event_id TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		time_delta_seconds REAL NOT NULL,
		causal_strength REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chains_from ON temporal_chains(from_event_id);
	CREATE INDEX IF NOT EXISTS idx_chains_to ON temporal_chains(to_event_id);

	-- Per-session total event ordering
	CREATE TABLE IF NOT EXISTS execution_sequences (
		session_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		sequence_order INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, event_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sequences_order ON execution_sequences(session_id, sequence_order);

	-- Record schema version
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations applies incremental schema changes beyond the base schema.
func (s *DB) runMigrations() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		version = 1 // Assume v1 if can't read
	}

	// Migration v2: index for causal-strength-ordered chain reads
	if version < 2 {
		s.db.Exec("CREATE INDEX IF NOT EXISTS idx_chains_strength ON temporal_chains(causal_strength)")
		s.db.Exec("INSERT INTO schema_version (version) VALUES (2)")
	}

	return nil
}

// Stats returns row counts for the engine's tables.
func (s *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	tables := []string{
		"episodic_events", "semantic_memories", "consolidation_triggers",
		"pattern_sources", "consolidation_metrics", "learning_pathways",
		"pathway_metrics", "procedure_creations", "procedure_usage",
		"temporal_chains", "execution_sequences",
	}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}

	return stats, nil
}

// Clear removes all data (for testing/reset).
func (s *DB) Clear() error {
	tables := []string{
		"procedure_usage", "procedure_creations", "pathway_metrics",
		"learning_pathways", "consolidation_metrics", "pattern_sources",
		"execution_sequences", "temporal_chains", "consolidation_triggers",
		"semantic_memories", "episodic_events",
	}

	for _, table := range tables {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	return nil
}
