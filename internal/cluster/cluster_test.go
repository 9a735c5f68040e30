package cluster

// Tests for type/time event clustering.
// Covers: gap splitting, type partitioning, conservation, determinism, edge cases.

import (
	"reflect"
	"testing"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

func ev(id, eventType string, ts int64) *types.EpisodicEvent {
	return &types.EpisodicEvent{
		ID:        id,
		ProjectID: "proj",
		SessionID: "sess",
		Type:      eventType,
		Timestamp: ts,
	}
}

func TestClusterEmpty(t *testing.T) {
	c := New()

	clusters := c.Cluster(nil)
	if len(clusters) != 0 {
		t.Errorf("Expected empty map for nil input, got %d clusters", len(clusters))
	}

	clusters = c.Cluster([]*types.EpisodicEvent{})
	if len(clusters) != 0 {
		t.Errorf("Expected empty map for empty input, got %d clusters", len(clusters))
	}
}

func TestClusterGapSplit(t *testing.T) {
	c := New()

	// Timestamps 0, 100s, 250s are within 5 minutes of each other;
	// 700s is 450s after 250s, which crosses the gap threshold.
	events := []*types.EpisodicEvent{
		ev("e1", "tool_execution:read", 0),
		ev("e2", "tool_execution:read", 100000),
		ev("e3", "tool_execution:read", 250000),
		ev("e4", "tool_execution:read", 700000),
	}

	clusters := c.Cluster(events)

	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters, got %d: %v", len(clusters), SortedKeys(clusters))
	}

	first := clusters["tool_execution_0"]
	if len(first) != 3 {
		t.Errorf("Expected 3 events in tool_execution_0, got %d", len(first))
	}
	second := clusters["tool_execution_1"]
	if len(second) != 1 {
		t.Errorf("Expected 1 event in tool_execution_1, got %d", len(second))
	}
	if len(second) == 1 && second[0].ID != "e4" {
		t.Errorf("Expected e4 in second cluster, got %s", second[0].ID)
	}
}

func TestClusterSubThresholdGapNeverSplits(t *testing.T) {
	c := New()

	// Consecutive gaps just under 5 minutes must stay in one cluster.
	gap := int64(5*time.Minute/time.Millisecond) - 1
	events := []*types.EpisodicEvent{
		ev("e1", "decision:plan", 0),
		ev("e2", "decision:plan", gap),
		ev("e3", "decision:plan", 2*gap),
	}

	clusters := c.Cluster(events)
	if len(clusters) != 1 {
		t.Fatalf("Expected 1 cluster for sub-threshold gaps, got %d", len(clusters))
	}
	if len(clusters["decision_0"]) != 3 {
		t.Errorf("Expected all 3 events in decision_0, got %d", len(clusters["decision_0"]))
	}
}

func TestClusterExactThresholdSplits(t *testing.T) {
	c := New()

	// A gap of exactly the threshold starts a new cluster.
	gap := int64(5 * time.Minute / time.Millisecond)
	events := []*types.EpisodicEvent{
		ev("e1", "tool_execution:write", 0),
		ev("e2", "tool_execution:write", gap),
	}

	clusters := c.Cluster(events)
	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters for exact-threshold gap, got %d", len(clusters))
	}
}

func TestClusterTypePartition(t *testing.T) {
	c := New()

	events := []*types.EpisodicEvent{
		ev("e1", "tool_execution:read", 0),
		ev("e2", "discovery:analysis", 1000),
		ev("e3", "tool_execution:write", 2000),
		ev("e4", "discovery:insight", 3000),
	}

	clusters := c.Cluster(events)

	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters (one per type prefix), got %d: %v",
			len(clusters), SortedKeys(clusters))
	}
	if len(clusters["tool_execution_0"]) != 2 {
		t.Errorf("Expected 2 tool_execution events, got %d", len(clusters["tool_execution_0"]))
	}
	if len(clusters["discovery_0"]) != 2 {
		t.Errorf("Expected 2 discovery events, got %d", len(clusters["discovery_0"]))
	}
}

func TestClusterConservation(t *testing.T) {
	c := New()

	// A mixed bag of types and gaps: every event must land in exactly
	// one cluster.
	events := []*types.EpisodicEvent{
		ev("e1", "tool_execution:read", 0),
		ev("e2", "decision:plan", 60000),
		ev("e3", "tool_execution:read", 120000),
		ev("e4", "tool_execution:read", 900000),
		ev("e5", "decision:plan", 1000000),
		ev("e6", "discovery:analysis", 1100000),
	}

	clusters := c.Cluster(events)

	total := 0
	seen := make(map[string]bool)
	for _, members := range clusters {
		total += len(members)
		for _, e := range members {
			if seen[e.ID] {
				t.Errorf("Event %s appears in more than one cluster", e.ID)
			}
			seen[e.ID] = true
		}
	}
	if total != len(events) {
		t.Errorf("Cluster sizes sum to %d, expected %d", total, len(events))
	}
}

func TestClusterDeterministic(t *testing.T) {
	c := New()

	events := []*types.EpisodicEvent{
		ev("e1", "tool_execution:read", 0),
		ev("e2", "tool_execution:read", 400000),
		ev("e3", "decision:plan", 100000),
	}

	first := c.Cluster(events)
	second := c.Cluster(events)

	if !reflect.DeepEqual(SortedKeys(first), SortedKeys(second)) {
		t.Errorf("Cluster keys differ between runs: %v vs %v",
			SortedKeys(first), SortedKeys(second))
	}
	for key := range first {
		if len(first[key]) != len(second[key]) {
			t.Errorf("Cluster %s size differs between runs", key)
		}
	}
}

func TestClusterUnnamespacedType(t *testing.T) {
	c := New()

	clusters := c.Cluster([]*types.EpisodicEvent{ev("e1", "heartbeat", 0)})
	if len(clusters["heartbeat_0"]) != 1 {
		t.Errorf("Expected un-namespaced type to form its own partition, got %v",
			SortedKeys(clusters))
	}
}

func TestClusterOrderWithinCluster(t *testing.T) {
	c := New()

	// Out-of-order input is tolerated; members come out chronological.
	events := []*types.EpisodicEvent{
		ev("e2", "tool_execution:read", 100000),
		ev("e1", "tool_execution:read", 0),
		ev("e3", "tool_execution:read", 200000),
	}

	clusters := c.Cluster(events)
	members := clusters["tool_execution_0"]
	if len(members) != 3 {
		t.Fatalf("Expected 3 members, got %d", len(members))
	}
	for i := 1; i < len(members); i++ {
		if members[i].Timestamp < members[i-1].Timestamp {
			t.Errorf("Members not chronological: %s before %s", members[i-1].ID, members[i].ID)
		}
	}
}
