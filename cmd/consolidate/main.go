package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/calyptra/mnemo/internal/config"
	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/pipeline"
	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	projectID := flag.String("project", "default", "Project to consolidate")
	sessionID := flag.String("session", "", "Session to consolidate (required)")
	reasoningURL := flag.String("reasoning-url", "", "Reasoning service base URL (overrides config)")
	manual := flag.Bool("manual", false, "Force a run even below the event threshold")
	dryRun := flag.Bool("dry-run", false, "Print eligibility and stats without consolidating")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// .env carries MNEMO_REASONING_API_KEY locally; absence is fine.
	godotenv.Load()

	if *sessionID == "" {
		log.Fatal("-session is required")
	}
	if *verbose {
		logging.SetDebug(true)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *reasoningURL != "" {
		cfg.Reasoning.BaseURL = *reasoningURL
	}
	if key := os.Getenv("MNEMO_REASONING_API_KEY"); key != "" {
		cfg.Reasoning.APIKey = key
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Database: %s", cfg.DBPath)
	printStats(db, "Current state")

	runner := pipeline.New(db, cfg)

	decision, err := runner.Triggers().ShouldConsolidate(*sessionID)
	if err != nil {
		log.Fatalf("Failed to evaluate trigger: %v", err)
	}
	log.Printf("Session %s: consolidate=%v (%s)", *sessionID, decision.Consolidate, decision.Reason)

	if *dryRun {
		log.Println("Dry run - exiting")
		return
	}
	if !decision.Consolidate && !*manual {
		log.Println("Nothing to do (use -manual to force)")
		return
	}

	triggerType := types.TriggerEventThreshold
	if *manual {
		triggerType = types.TriggerManual
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := runner.Run(ctx, *projectID, *sessionID, triggerType)
	if err != nil {
		log.Fatalf("Consolidation failed: %v", err)
	}

	log.Printf("Consolidation %s in %v", res.Status, time.Since(start).Round(time.Millisecond))
	log.Printf("  Clusters: %d", res.ClusterCount)
	log.Printf("  Events consolidated: %d", res.ConsolidatedEvents)
	log.Printf("  Patterns extracted: %d", len(res.Patterns))
	log.Printf("  Memories created: %d", res.MemoriesCreated)
	log.Printf("  Procedures created: %d", res.ProceduresCreated)
	log.Printf("  Hallucination rate: %.2f", res.HallucinationRate)
	log.Printf("  Pattern diversity: %.2f", res.PatternDiversity)
	for _, seq := range res.RepeatingSequences {
		log.Printf("  Repeating sequence (x%d): %v", seq.Count, seq.Types)
	}
	for _, msg := range res.Errors {
		log.Printf("  Warning: %s", msg)
	}

	printStats(db, "After consolidation")
}

func printStats(db *store.DB, label string) {
	stats, err := db.Stats()
	if err != nil {
		log.Printf("Failed to get stats: %v", err)
		return
	}
	log.Printf("%s:", label)
	for _, table := range []string{"episodic_events", "semantic_memories", "consolidation_triggers", "procedure_creations", "learning_pathways", "temporal_chains"} {
		log.Printf("  %s: %d", table, stats[table])
	}
	fmt.Println()
}
