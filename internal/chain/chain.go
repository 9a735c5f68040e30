// Package chain builds temporal relationships between episodic events:
// pairwise causal links, per-session total orderings, and repeating
// subsequence detection.
package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
	"github.com/google/uuid"
)

// Link strength bases by temporal proximity, and the window bounds in
// seconds that select them.
const (
	immediateWindow = 300.0
	shortWindow     = 3600.0
	maxLinkWindow   = 86400.0

	immediateBase = 0.8
	shortBase     = 0.6
	laterBase     = 0.4

	continuityBonus  = 0.15
	fileOverlapBonus = 0.10
)

// Chainer builds and persists temporal chains.
type Chainer struct {
	db *store.DB
}

// New creates a chainer backed by the given store.
func New(db *store.DB) *Chainer {
	return &Chainer{db: db}
}

// LinkEvents creates a pairwise link from one event to a later one.
// Returns (nil, nil) when no link applies: backwards-in-time pairs and
// pairs more than 24 hours apart are never linked.
func (c *Chainer) LinkEvents(from, to *types.EpisodicEvent) (*types.TemporalLink, error) {
	deltaSeconds := float64(to.Timestamp-from.Timestamp) / 1000.0
	if deltaSeconds < 0 || deltaSeconds > maxLinkWindow {
		return nil, nil
	}

	var relation types.RelationType
	var base float64
	switch {
	case deltaSeconds <= immediateWindow:
		relation, base = types.RelationImmediatelyAfter, immediateBase
	case deltaSeconds <= shortWindow:
		relation, base = types.RelationShortlyAfter, shortBase
	default:
		relation, base = types.RelationLaterAfter, laterBase
	}

	var continuity float64
	if from.SessionID == to.SessionID {
		continuity = 1.0
	}

	strength := base + continuityBonus*continuity + fileOverlapBonus*fileOverlap(from.Content, to.Content)
	if strength > 1.0 {
		strength = 1.0
	}

	link := &types.TemporalLink{
		ID:             "link-" + uuid.NewString(),
		FromEventID:    from.ID,
		ToEventID:      to.ID,
		RelationType:   relation,
		TimeDelta:      deltaSeconds,
		CausalStrength: strength,
	}
	if err := c.db.AddTemporalLink(link); err != nil {
		return nil, fmt.Errorf("failed to persist temporal link: %w", err)
	}
	return link, nil
}

// BuildSessionSequence computes and stores the total ordering of a
// session's events, by timestamp then id, numbered from zero.
func (c *Chainer) BuildSessionSequence(sessionID string) ([]types.SequenceEntry, error) {
	events, err := c.db.GetSessionEvents(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})

	entries := make([]types.SequenceEntry, len(events))
	for i, e := range events {
		entries[i] = types.SequenceEntry{
			SessionID:     sessionID,
			EventID:       e.ID,
			SequenceOrder: i,
		}
	}

	if err := c.db.ReplaceSessionSequence(sessionID, entries); err != nil {
		return nil, fmt.Errorf("failed to store session sequence: %w", err)
	}
	return entries, nil
}

// RepeatedSequence is a run of event types that occurs more than once in
// a session's ordering.
type RepeatedSequence struct {
	Types []string
	Count int
}

// DetectRepeatingPatterns finds length-k runs of event types that repeat
// within a session's total ordering. Comparison is exact window equality,
// O(n^2 * k); session orderings are small enough that this is fine.
func (c *Chainer) DetectRepeatingPatterns(sessionID string, k int) ([]RepeatedSequence, error) {
	if k < 2 {
		return nil, fmt.Errorf("window length must be at least 2, got %d", k)
	}

	events, err := c.db.GetSessionEvents(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}
	if len(events) < 2*k {
		return nil, nil
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})

	eventTypes := make([]string, len(events))
	for i, e := range events {
		eventTypes[i] = e.Type
	}

	var found []RepeatedSequence
	seen := make(map[string]bool)
	for i := 0; i+k <= len(eventTypes); i++ {
		key := strings.Join(eventTypes[i:i+k], "\x00")
		if seen[key] {
			continue
		}
		count := 1
		for j := i + 1; j+k <= len(eventTypes); j++ {
			if windowsEqual(eventTypes, i, j, k) {
				count++
			}
		}
		if count > 1 {
			seen[key] = true
			found = append(found, RepeatedSequence{
				Types: append([]string(nil), eventTypes[i:i+k]...),
				Count: count,
			})
		}
	}
	return found, nil
}

func windowsEqual(s []string, i, j, k int) bool {
	for off := 0; off < k; off++ {
		if s[i+off] != s[j+off] {
			return false
		}
	}
	return true
}

// Chain is an event's immediate temporal neighborhood.
type Chain struct {
	EventID      string
	Predecessors []*types.TemporalLink // links into the event, strongest first
	Successors   []*types.TemporalLink // links out of the event, strongest first
}

// GetChain returns the links into and out of one event.
func (c *Chainer) GetChain(eventID string) (*Chain, error) {
	preds, err := c.db.GetLinksTo(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load predecessor links: %w", err)
	}
	succs, err := c.db.GetLinksFrom(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load successor links: %w", err)
	}
	return &Chain{EventID: eventID, Predecessors: preds, Successors: succs}, nil
}

// fileOverlap is the Jaccard similarity of path-like tokens in two
// content strings. A token counts as path-like if it contains a slash or
// a dot, which covers file paths and dotted names.
func fileOverlap(a, b string) float64 {
	setA := pathTokens(a)
	setB := pathTokens(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func pathTokens(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, ".,;:()\"'")
		if strings.ContainsAny(f, "/.") {
			tokens[f] = true
		}
	}
	return tokens
}
