// seed-events inserts a synthetic session of episodic events, for
// exercising the consolidation pipeline against a fresh database.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
)

type seedEvent struct {
	eventType string
	content   string
	offset    time.Duration
	outcome   types.Outcome
}

var scenario = []seedEvent{
	{"tool_execution:read", "read internal/server/handler.go", 0, types.OutcomeSuccess},
	{"tool_execution:read", "read internal/server/router.go", 30 * time.Second, types.OutcomeSuccess},
	{"tool_execution:read", "read internal/server/middleware.go", 70 * time.Second, types.OutcomeSuccess},
	{"tool_execution:edit", "edit internal/server/handler.go: add timeout", 2 * time.Minute, types.OutcomeSuccess},
	{"tool_execution:test", "run handler tests", 3 * time.Minute, types.OutcomeFailure},
	{"tool_execution:edit", "edit internal/server/handler.go: fix timeout default", 4 * time.Minute, types.OutcomeSuccess},
	{"tool_execution:test", "run handler tests", 5 * time.Minute, types.OutcomeSuccess},
	{"discovery:analysis", "Root cause: handler reused a cancelled context across retries", 6 * time.Minute, types.OutcomeCritical},
	{"tool_execution:git", "commit handler timeout fix", 7 * time.Minute, types.OutcomeSuccess},
	{"tool_execution:git", "push to origin", 8 * time.Minute, types.OutcomeSuccess},
	// A second burst of reads well past the gap threshold.
	{"tool_execution:read", "read internal/server/metrics.go", 20 * time.Minute, types.OutcomeSuccess},
	{"tool_execution:read", "read internal/server/metrics_test.go", 21 * time.Minute, types.OutcomeSuccess},
}

func main() {
	dbPath := flag.String("db", "mnemo.db", "SQLite database path")
	projectID := flag.String("project", "default", "Project id for seeded events")
	sessionID := flag.String("session", "", "Session id (default: generated)")
	flag.Parse()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	session := *sessionID
	if session == "" {
		session = "seed-" + uuid.NewString()[:8]
	}

	base := time.Now().Add(-time.Hour).UnixMilli()
	for i, s := range scenario {
		err := db.AddEvent(&types.EpisodicEvent{
			ID:        fmt.Sprintf("%s-e%02d", session, i),
			ProjectID: *projectID,
			SessionID: session,
			Type:      s.eventType,
			Content:   s.content,
			Timestamp: base + s.offset.Milliseconds(),
			Outcome:   s.outcome,
		})
		if err != nil {
			log.Fatalf("Failed to insert event %d: %v", i, err)
		}
	}

	log.Printf("Seeded %d events into session %s", len(scenario), session)
	log.Printf("Run: consolidate -db %s -session %s", *dbPath, session)
}
