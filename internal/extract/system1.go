package extract

import (
	"fmt"

	"github.com/calyptra/mnemo/internal/types"
	"github.com/google/uuid"
)

// Fast-path heuristic thresholds.
const (
	frequencyMinSize    = 3
	frequencyBaseConf   = 0.5
	frequencyConfPerHit = 0.1
	frequencyMaxConf    = 0.9
	temporalMinSize     = 2
	temporalConf        = 0.7
	discoveryConf       = 0.85
)

// system1 runs the fast heuristics over one cluster. These always run and
// never fail: frequency, temporal span, and significant-discovery detection.
func system1(clusterKey string, events []*types.EpisodicEvent) []*types.PatternCandidate {
	if len(events) == 0 {
		return nil
	}

	var patterns []*types.PatternCandidate

	if p := frequencyPattern(clusterKey, events); p != nil {
		patterns = append(patterns, p)
	}
	if p := temporalPattern(clusterKey, events); p != nil {
		patterns = append(patterns, p)
	}
	if p := discoveryPattern(clusterKey, events); p != nil {
		patterns = append(patterns, p)
	}

	return patterns
}

// frequencyPattern fires when an operation repeats at least 3 times in a
// cluster. Confidence grows with repetition, capped at 0.9.
func frequencyPattern(clusterKey string, events []*types.EpisodicEvent) *types.PatternCandidate {
	if len(events) < frequencyMinSize {
		return nil
	}

	confidence := frequencyBaseConf + frequencyConfPerHit*float64(len(events))
	if confidence > frequencyMaxConf {
		confidence = frequencyMaxConf
	}

	return &types.PatternCandidate{
		ID:               "pat-" + uuid.NewString(),
		Type:             types.PatternFrequency,
		Cluster:          clusterKey,
		Content:          fmt.Sprintf("Repeated %s operations (%d times)", clusterKey, len(events)),
		Confidence:       confidence,
		ExtractionMethod: types.MethodSystem1,
		SourceEventIDs:   eventIDs(events),
	}
}

// temporalPattern fires when a cluster of 2+ events spans a measurable
// duration.
func temporalPattern(clusterKey string, events []*types.EpisodicEvent) *types.PatternCandidate {
	if len(events) < temporalMinSize {
		return nil
	}

	durationMinutes := float64(events[len(events)-1].Timestamp-events[0].Timestamp) / 60000.0
	if durationMinutes <= 0 {
		return nil
	}

	return &types.PatternCandidate{
		ID:               "pat-" + uuid.NewString(),
		Type:             types.PatternTemporal,
		Cluster:          clusterKey,
		Content:          fmt.Sprintf("%s operations sustained over %.1f minutes (%d events)", clusterKey, durationMinutes, len(events)),
		Confidence:       temporalConf,
		ExtractionMethod: types.MethodSystem1,
		SourceEventIDs:   eventIDs(events),
	}
}

// discoveryPattern fires when a cluster contains at least one high or
// critical outcome. Source ids carry only the significant members.
func discoveryPattern(clusterKey string, events []*types.EpisodicEvent) *types.PatternCandidate {
	var significant []*types.EpisodicEvent
	for _, e := range events {
		if e.Outcome == types.OutcomeHigh || e.Outcome == types.OutcomeCritical {
			significant = append(significant, e)
		}
	}
	if len(significant) == 0 {
		return nil
	}

	return &types.PatternCandidate{
		ID:               "pat-" + uuid.NewString(),
		Type:             types.PatternDiscovery,
		Cluster:          clusterKey,
		Content:          fmt.Sprintf("%d significant discoveries in %s", len(significant), clusterKey),
		Confidence:       discoveryConf,
		ExtractionMethod: types.MethodSystem1,
		SourceEventIDs:   eventIDs(significant),
	}
}

func eventIDs(events []*types.EpisodicEvent) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
