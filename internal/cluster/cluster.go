// Package cluster groups unconsolidated episodic events by type namespace
// and temporal proximity. Clusters are ephemeral: they exist only for the
// duration of a consolidation run and are never persisted.
package cluster

import (
	"fmt"
	"sort"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

// DefaultGapThreshold splits same-type events into separate clusters when
// consecutive events are at least this far apart.
const DefaultGapThreshold = 5 * time.Minute

// Clusterer partitions events into type-and-time clusters.
type Clusterer struct {
	// GapThreshold is the minimum gap that starts a new sub-cluster
	// within a type partition.
	GapThreshold time.Duration
}

// New creates a clusterer with the default gap threshold.
func New() *Clusterer {
	return &Clusterer{GapThreshold: DefaultGapThreshold}
}

// Cluster partitions events by the namespace portion of their type, then
// splits each partition chronologically wherever the gap to the previous
// event reaches the threshold. Keys are "{type}_{ordinal}" with ordinals
// assigned per type in chronological order.
//
// Every input event lands in exactly one cluster, and the result is
// deterministic for a fixed input and threshold.
func (c *Clusterer) Cluster(events []*types.EpisodicEvent) map[string][]*types.EpisodicEvent {
	clusters := make(map[string][]*types.EpisodicEvent)
	if len(events) == 0 {
		return clusters
	}

	// Re-sort so clustering does not depend on caller ordering.
	sorted := make([]*types.EpisodicEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	gapMs := c.GapThreshold.Milliseconds()

	// Walk each type partition chronologically, opening a new sub-cluster
	// whenever the gap to the previous event reaches the threshold.
	ordinals := make(map[string]int)   // type prefix -> next ordinal
	current := make(map[string]string) // type prefix -> open cluster key
	lastTS := make(map[string]int64)   // type prefix -> last event timestamp

	for _, e := range sorted {
		prefix := e.TypePrefix()

		key, open := current[prefix]
		if !open || e.Timestamp-lastTS[prefix] >= gapMs {
			key = fmt.Sprintf("%s_%d", prefix, ordinals[prefix])
			ordinals[prefix]++
			current[prefix] = key
		}
		lastTS[prefix] = e.Timestamp
		clusters[key] = append(clusters[key], e)
	}

	return clusters
}

// SortedKeys returns cluster keys in a stable order for deterministic
// processing.
func SortedKeys(clusters map[string][]*types.EpisodicEvent) []string {
	keys := make([]string, 0, len(clusters))
	for k := range clusters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
