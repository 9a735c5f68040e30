// Package promote turns high-confidence pattern candidates and
// significant discovery events into durable semantic memories.
package promote

import (
	"fmt"
	"strings"

	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
)

const (
	// DefaultMinConfidence gates pattern promotion. Discovery events are
	// exempt: they are always promoted.
	DefaultMinConfidence = 0.7

	maxTitleLen   = 100
	maxContentLen = 500
)

// Promoter writes semantic memories and their provenance links.
type Promoter struct {
	db            *store.DB
	minConfidence float64
}

// New creates a promoter. A non-positive confidence falls back to the
// default.
func New(db *store.DB, minConfidence float64) *Promoter {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Promoter{db: db, minConfidence: minConfidence}
}

// Promotion records one pattern-to-memory promotion.
type Promotion struct {
	PatternID string
	MemoryID  string
}

// PromotePatterns promotes every candidate at or above the confidence
// gate. Each promoted pattern gets a semantic memory plus provenance
// rows pointing back at its source events. Candidates below the gate are
// skipped, not failed.
func (p *Promoter) PromotePatterns(patterns []*types.PatternCandidate) ([]Promotion, error) {
	var promotions []Promotion
	for _, pat := range patterns {
		if pat.Confidence < p.minConfidence {
			logging.Debug("promote", "skipping pattern %s at confidence %.2f", pat.ID, pat.Confidence)
			continue
		}

		title := fmt.Sprintf("[%s] %s", pat.Type, firstLine(pat.Content, maxTitleLen-len(pat.Type)-3))
		memID, err := p.db.CreateMemory(title, truncate(pat.Content, maxContentLen), map[string]any{
			"pattern_id":        pat.ID,
			"pattern_type":      string(pat.Type),
			"cluster":           pat.Cluster,
			"confidence":        pat.Confidence,
			"extraction_method": string(pat.ExtractionMethod),
			"source_count":      len(pat.SourceEventIDs),
		})
		if err != nil {
			return promotions, fmt.Errorf("failed to promote pattern %s: %w", pat.ID, err)
		}

		sources := make([]types.PatternSource, len(pat.SourceEventIDs))
		for i, eventID := range pat.SourceEventIDs {
			sources[i] = types.PatternSource{
				PatternID:     pat.ID,
				SourceEventID: eventID,
				Strength:      pat.Confidence,
				SourceType:    string(pat.Type),
			}
		}
		if err := p.db.AddPatternSources(sources); err != nil {
			return promotions, fmt.Errorf("failed to record pattern sources for %s: %w", pat.ID, err)
		}

		logging.Info("promote", "promoted %s pattern %s to memory %s", pat.Type, pat.ID, memID)
		promotions = append(promotions, Promotion{PatternID: pat.ID, MemoryID: memID})
	}
	return promotions, nil
}

// PromoteDiscoveries promotes every discovery event to a semantic memory
// unconditionally: discoveries are rare and valuable regardless of any
// pattern confidence. Non-discovery events are ignored.
func (p *Promoter) PromoteDiscoveries(events []*types.EpisodicEvent) ([]string, error) {
	var memIDs []string
	for _, e := range events {
		if !e.IsDiscovery() {
			continue
		}

		memID, err := p.db.CreateMemory(
			firstLine(e.Content, maxTitleLen),
			truncate(e.Content, maxContentLen),
			map[string]any{
				"source_event_id": e.ID,
				"event_type":      e.Type,
				"session_id":      e.SessionID,
				"outcome":         string(e.Outcome),
			})
		if err != nil {
			return memIDs, fmt.Errorf("failed to promote discovery %s: %w", e.ID, err)
		}
		logging.Info("promote", "promoted discovery %s to memory %s: %s", e.ID, memID, logging.Truncate(e.Content, 80))
		memIDs = append(memIDs, memID)
	}
	return memIDs, nil
}

// firstLine returns the first line of s, truncated to max runes.
func firstLine(s string, max int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return truncate(strings.TrimSpace(s), max)
}

func truncate(s string, max int) string {
	if max <= 3 {
		max = 3
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
