package extract

import (
	"context"
	"time"

	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/reasoning"
	"github.com/calyptra/mnemo/internal/types"
	"github.com/google/uuid"
)

// Reasoner is the slow-path pattern extraction backend. Implemented by
// reasoning.Client; tests substitute fakes.
type Reasoner interface {
	ExtractPatterns(ctx context.Context, events []*types.EpisodicEvent) ([]reasoning.PatternResult, error)
}

// validSystem2Types restricts what the reasoning service may label a
// pattern as; anything else is dropped.
var validSystem2Types = map[types.PatternType]bool{
	types.PatternFrequency:    true,
	types.PatternTemporal:     true,
	types.PatternDiscovery:    true,
	types.PatternWorkflow:     true,
	types.PatternAntiPattern:  true,
	types.PatternBestPractice: true,
	types.PatternRelationship: true,
}

// system2 asks the reasoning service for patterns over one cluster,
// bounded by the configured timeout. Fails closed: any transport, parse,
// or deadline error yields an empty result, never an error. The run then
// proceeds on heuristics alone.
func (e *Extractor) system2(ctx context.Context, clusterKey string, events []*types.EpisodicEvent) []*types.PatternCandidate {
	if e.reasoner == nil || len(events) == 0 {
		return nil
	}

	timeout := e.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := e.reasoner.ExtractPatterns(callCtx, events)
	if err != nil {
		logging.Debug("extract", "slow-path extraction degraded for %s: %v", clusterKey, err)
		return nil
	}

	ids := eventIDs(events)
	var patterns []*types.PatternCandidate
	for _, r := range results {
		patternType := types.PatternType(r.Type)
		if !validSystem2Types[patternType] {
			logging.Debug("extract", "dropping unknown pattern type %q for %s: %s",
				r.Type, clusterKey, logging.Truncate(r.Description, 80))
			continue
		}
		patterns = append(patterns, &types.PatternCandidate{
			ID:               "pat-" + uuid.NewString(),
			Type:             patternType,
			Cluster:          clusterKey,
			Content:          r.Description,
			Confidence:       r.Confidence,
			ExtractionMethod: types.MethodSystem2,
			SourceEventIDs:   ids,
		})
	}
	return patterns
}
