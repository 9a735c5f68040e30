// Package metrics computes consolidation quality and performance
// measures: hallucination risk, pattern diversity, dual-process
// effectiveness, clustering cohesion, stage timing, and search impact.
package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

// Confidence thresholds for hallucination risk scoring.
const (
	highRiskBelow   = 0.6
	mediumRiskBelow = 0.75
)

// bottleneckShare is the fraction of total pipeline time above which a
// stage is flagged as the bottleneck.
const bottleneckShare = 0.2

// Collector accumulates stage timings for one consolidation run. The
// quality measures are pure functions and carry no state; construct one
// collector per run and pass it down, there is no global instance.
type Collector struct {
	mu     sync.Mutex
	stages map[string]time.Duration
	order  []string
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{stages: make(map[string]time.Duration)}
}

// Reset discards all recorded stage timings.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = make(map[string]time.Duration)
	c.order = nil
}

// RecordStage adds elapsed time to a named pipeline stage.
func (c *Collector) RecordStage(stage string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.stages[stage]; !seen {
		c.order = append(c.order, stage)
	}
	c.stages[stage] += d
}

// TimeStage runs fn and records its duration under the stage name.
func (c *Collector) TimeStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.RecordStage(stage, time.Since(start))
	return err
}

// HallucinationRate scores how much of a pattern batch is at risk of
// being confabulated, weighting low-confidence patterns fully and
// mid-confidence patterns by half:
//
//	rate = (high + 0.5*medium) / total
//
// where high risk is confidence below 0.6 and medium risk below 0.75.
// An empty batch scores 0.
func (c *Collector) HallucinationRate(patterns []*types.PatternCandidate) float64 {
	if len(patterns) == 0 {
		return 0
	}

	var high, medium float64
	for _, p := range patterns {
		switch {
		case p.Confidence < highRiskBelow:
			high++
		case p.Confidence < mediumRiskBelow:
			medium++
		}
	}
	return (high + 0.5*medium) / float64(len(patterns))
}

// PatternDiversity is the normalized Shannon entropy (base 2) of the
// pattern type distribution: 0 when every pattern has the same type, 1
// when the observed types are uniformly represented.
func (c *Collector) PatternDiversity(patterns []*types.PatternCandidate) float64 {
	if len(patterns) == 0 {
		return 0
	}

	counts := make(map[types.PatternType]int)
	for _, p := range patterns {
		counts[p.Type]++
	}
	if len(counts) < 2 {
		return 0
	}

	total := float64(len(patterns))
	var entropy float64
	for _, n := range counts {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(float64(len(counts)))
}

// DualProcessReport compares heuristic and reasoning-service extraction
// over one batch.
type DualProcessReport struct {
	System1Count     int
	System2Count     int
	System1AvgConf   float64
	System2AvgConf   float64
	System2Preferred bool // slow path produced higher mean confidence
}

// DualProcessEffectiveness summarizes how the two extraction paths
// performed relative to each other.
func (c *Collector) DualProcessEffectiveness(patterns []*types.PatternCandidate) DualProcessReport {
	var report DualProcessReport
	var sum1, sum2 float64
	for _, p := range patterns {
		switch p.ExtractionMethod {
		case types.MethodSystem1:
			report.System1Count++
			sum1 += p.Confidence
		case types.MethodSystem2:
			report.System2Count++
			sum2 += p.Confidence
		}
	}
	if report.System1Count > 0 {
		report.System1AvgConf = sum1 / float64(report.System1Count)
	}
	if report.System2Count > 0 {
		report.System2AvgConf = sum2 / float64(report.System2Count)
	}
	report.System2Preferred = report.System2Count > 0 && report.System2AvgConf > report.System1AvgConf
	return report
}

// ClusteringCohesion measures how alike the members of each cluster are,
// averaged across clusters. Pair similarity is the cosine of the two
// events' embeddings when both are present in the embeddings map (keyed
// by event id); otherwise it falls back to the Jaccard overlap of content
// tokens, a lexical proxy. Pass nil embeddings for the lexical-only form.
// Singleton clusters are perfectly cohesive; an empty input scores 0.
func (c *Collector) ClusteringCohesion(clusters map[string][]*types.EpisodicEvent, embeddings map[string][]float64) float64 {
	if len(clusters) == 0 {
		return 0
	}

	var total float64
	for _, events := range clusters {
		total += clusterCohesion(events, embeddings)
	}
	return total / float64(len(clusters))
}

func clusterCohesion(events []*types.EpisodicEvent, embeddings map[string][]float64) float64 {
	if len(events) <= 1 {
		return 1.0
	}

	// Token sets are only built for pairs that fall back to the lexical path.
	tokens := make([]map[string]bool, len(events))
	tok := func(i int) map[string]bool {
		if tokens[i] == nil {
			tokens[i] = tokenSet(events[i].Content)
		}
		return tokens[i]
	}

	var sum float64
	var pairs int
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, okA := embeddings[events[i].ID]
			b, okB := embeddings[events[j].ID]
			if okA && okB {
				sum += cosine(a, b)
			} else {
				sum += jaccard(tok(i), tok(j))
			}
			pairs++
		}
	}
	return sum / float64(pairs)
}

// cosine is the cosine similarity of two vectors. Mismatched lengths and
// zero-norm vectors score 0.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		set[f] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	return float64(intersection) / float64(len(a)+len(b)-intersection)
}

// StageShare is one stage's contribution to total pipeline time.
type StageShare struct {
	Stage    string
	Duration time.Duration
	Percent  float64
}

// ThroughputReport summarizes a run's performance from recorded stage
// timings.
type ThroughputReport struct {
	TotalDuration      time.Duration
	PatternsPerSecond  float64
	Stages             []StageShare
	Bottleneck         string // slowest stage above the 20% share, if any
	BottleneckDetected bool
}

// PipelineThroughput builds a performance report from the timings
// recorded so far and the number of patterns the run produced.
func (c *Collector) PipelineThroughput(patternCount int) ThroughputReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report ThroughputReport
	for _, d := range c.stages {
		report.TotalDuration += d
	}
	if report.TotalDuration <= 0 {
		return report
	}

	report.PatternsPerSecond = float64(patternCount) / report.TotalDuration.Seconds()

	var slowest time.Duration
	for _, stage := range c.order {
		d := c.stages[stage]
		share := StageShare{
			Stage:    stage,
			Duration: d,
			Percent:  float64(d) / float64(report.TotalDuration) * 100.0,
		}
		report.Stages = append(report.Stages, share)
		if float64(d) > float64(report.TotalDuration)*bottleneckShare && d > slowest {
			slowest = d
			report.Bottleneck = stage
			report.BottleneckDetected = true
		}
	}
	sort.SliceStable(report.Stages, func(i, j int) bool {
		return report.Stages[i].Duration > report.Stages[j].Duration
	})
	return report
}

// QueryImpact is one search query's score change after consolidation.
type QueryImpact struct {
	Query  string
	Before float64
	After  float64
}

// SearchImpactReport summarizes how consolidation moved search quality.
type SearchImpactReport struct {
	Improved  int
	Degraded  int
	Unchanged int
	MeanDelta float64
}

// SearchImpact compares per-query search scores from before and after a
// consolidation run.
func (c *Collector) SearchImpact(queries []QueryImpact) SearchImpactReport {
	var report SearchImpactReport
	if len(queries) == 0 {
		return report
	}

	var sum float64
	for _, q := range queries {
		delta := q.After - q.Before
		sum += delta
		switch {
		case delta > 0:
			report.Improved++
		case delta < 0:
			report.Degraded++
		default:
			report.Unchanged++
		}
	}
	report.MeanDelta = sum / float64(len(queries))
	return report
}
