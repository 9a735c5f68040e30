// Package extract implements dual-process pattern detection over event
// clusters: fast heuristics that always run, plus selective slow-path
// extraction delegated to an external reasoning service.
package extract

import (
	"context"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

// Extractor detects pattern candidates in event clusters.
type Extractor struct {
	reasoner Reasoner      // nil disables the slow path
	timeout  time.Duration // per-cluster bound on the slow path
}

// New creates an extractor. A nil reasoner runs heuristics only.
func New(reasoner Reasoner, timeout time.Duration) *Extractor {
	return &Extractor{reasoner: reasoner, timeout: timeout}
}

// ExtractCluster returns the union of heuristic and reasoning-service
// patterns for one cluster. The input cluster is never mutated, and a
// degraded slow path silently reduces the result to heuristics only.
func (e *Extractor) ExtractCluster(ctx context.Context, clusterKey string, events []*types.EpisodicEvent) []*types.PatternCandidate {
	patterns := system1(clusterKey, events)
	patterns = append(patterns, e.system2(ctx, clusterKey, events)...)
	return patterns
}
