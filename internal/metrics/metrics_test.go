package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

func pats(confs ...float64) []*types.PatternCandidate {
	out := make([]*types.PatternCandidate, len(confs))
	for i, c := range confs {
		out[i] = &types.PatternCandidate{
			Type:             types.PatternFrequency,
			Confidence:       c,
			ExtractionMethod: types.MethodSystem1,
		}
	}
	return out
}

func TestHallucinationRateAllHighConfidence(t *testing.T) {
	c := NewCollector()
	if rate := c.HallucinationRate(pats(0.9, 0.95, 0.92)); rate != 0.0 {
		t.Errorf("Expected 0.0 for all-confident batch, got %f", rate)
	}
}

func TestHallucinationRateAllLowConfidence(t *testing.T) {
	c := NewCollector()
	if rate := c.HallucinationRate(pats(0.5, 0.55, 0.59)); rate != 1.0 {
		t.Errorf("Expected 1.0 for all-low batch, got %f", rate)
	}
}

func TestHallucinationRateMixed(t *testing.T) {
	c := NewCollector()
	// One low (1.0), one medium (0.5), one high-confidence (0): 1.5/3.
	rate := c.HallucinationRate(pats(0.95, 0.70, 0.50))
	if math.Abs(rate-0.5) > 1e-9 {
		t.Errorf("Expected 0.5, got %f", rate)
	}
}

func TestHallucinationRateEmpty(t *testing.T) {
	c := NewCollector()
	if rate := c.HallucinationRate(nil); rate != 0.0 {
		t.Errorf("Expected 0.0 for empty batch, got %f", rate)
	}
}

func TestPatternDiversitySingleType(t *testing.T) {
	c := NewCollector()
	if d := c.PatternDiversity(pats(0.8, 0.9, 0.7)); d != 0.0 {
		t.Errorf("Expected 0.0 diversity for a single type, got %f", d)
	}
}

func TestPatternDiversityUniform(t *testing.T) {
	c := NewCollector()
	patterns := []*types.PatternCandidate{
		{Type: types.PatternFrequency},
		{Type: types.PatternTemporal},
		{Type: types.PatternDiscovery},
		{Type: types.PatternWorkflow},
	}
	d := c.PatternDiversity(patterns)
	if d < 0.9 {
		t.Errorf("Expected near-maximal diversity for 4 uniform types, got %f", d)
	}
	if math.Abs(d-1.0) > 1e-9 {
		t.Errorf("Expected exactly 1.0 for uniform distribution, got %f", d)
	}
}

func TestPatternDiversitySkewed(t *testing.T) {
	c := NewCollector()
	patterns := []*types.PatternCandidate{
		{Type: types.PatternFrequency},
		{Type: types.PatternFrequency},
		{Type: types.PatternFrequency},
		{Type: types.PatternTemporal},
	}
	d := c.PatternDiversity(patterns)
	if d <= 0 || d >= 1 {
		t.Errorf("Expected skewed distribution strictly between 0 and 1, got %f", d)
	}
}

func TestDualProcessEffectiveness(t *testing.T) {
	c := NewCollector()
	patterns := []*types.PatternCandidate{
		{ExtractionMethod: types.MethodSystem1, Confidence: 0.7},
		{ExtractionMethod: types.MethodSystem1, Confidence: 0.8},
		{ExtractionMethod: types.MethodSystem2, Confidence: 0.9},
	}

	r := c.DualProcessEffectiveness(patterns)
	if r.System1Count != 2 || r.System2Count != 1 {
		t.Errorf("Unexpected counts: %+v", r)
	}
	if math.Abs(r.System1AvgConf-0.75) > 1e-9 {
		t.Errorf("Expected system1 avg 0.75, got %f", r.System1AvgConf)
	}
	if !r.System2Preferred {
		t.Error("Expected system2 preferred with higher mean confidence")
	}
}

func TestDualProcessEffectivenessNoSystem2(t *testing.T) {
	c := NewCollector()
	r := c.DualProcessEffectiveness(pats(0.8, 0.9))
	if r.System2Preferred {
		t.Error("Expected system2 not preferred when absent")
	}
}

func TestClusteringCohesion(t *testing.T) {
	c := NewCollector()

	tight := map[string][]*types.EpisodicEvent{
		"a_0": {
			{Content: "read config file"},
			{Content: "read config file"},
		},
	}
	if v := c.ClusteringCohesion(tight, nil); math.Abs(v-1.0) > 1e-9 {
		t.Errorf("Expected 1.0 for identical contents, got %f", v)
	}

	loose := map[string][]*types.EpisodicEvent{
		"a_0": {
			{Content: "alpha beta"},
			{Content: "gamma delta"},
		},
	}
	if v := c.ClusteringCohesion(loose, nil); v != 0.0 {
		t.Errorf("Expected 0.0 for disjoint contents, got %f", v)
	}
}

func TestClusteringCohesionEmbeddings(t *testing.T) {
	c := NewCollector()
	clusters := map[string][]*types.EpisodicEvent{
		"a_0": {
			{ID: "e1", Content: "alpha"},
			{ID: "e2", Content: "beta"},
		},
	}

	// Orthogonal vectors: cosine 0 even though the lexical fallback
	// would also score these contents 0.
	orthogonal := map[string][]float64{
		"e1": {1, 0},
		"e2": {0, 1},
	}
	if v := c.ClusteringCohesion(clusters, orthogonal); v != 0.0 {
		t.Errorf("Expected 0.0 for orthogonal embeddings, got %f", v)
	}

	// Parallel vectors: cosine 1 despite disjoint contents, so the
	// embedding path must be the one taken.
	parallel := map[string][]float64{
		"e1": {1, 2},
		"e2": {2, 4},
	}
	if v := c.ClusteringCohesion(clusters, parallel); math.Abs(v-1.0) > 1e-9 {
		t.Errorf("Expected 1.0 for parallel embeddings, got %f", v)
	}
}

func TestClusteringCohesionEmbeddingFallback(t *testing.T) {
	c := NewCollector()
	clusters := map[string][]*types.EpisodicEvent{
		"a_0": {
			{ID: "e1", Content: "read config file"},
			{ID: "e2", Content: "read config file"},
		},
	}

	// Only one member has an embedding, so the pair falls back to the
	// lexical path: identical contents score 1.0.
	partial := map[string][]float64{"e1": {1, 0}}
	if v := c.ClusteringCohesion(clusters, partial); math.Abs(v-1.0) > 1e-9 {
		t.Errorf("Expected lexical fallback 1.0, got %f", v)
	}
}

func TestClusteringCohesionSingleton(t *testing.T) {
	c := NewCollector()
	clusters := map[string][]*types.EpisodicEvent{
		"a_0": {{Content: "anything"}},
	}
	if v := c.ClusteringCohesion(clusters, nil); v != 1.0 {
		t.Errorf("Expected 1.0 for singleton cluster, got %f", v)
	}
}

func TestClusteringCohesionEmpty(t *testing.T) {
	c := NewCollector()
	if v := c.ClusteringCohesion(nil, nil); v != 0.0 {
		t.Errorf("Expected 0.0 for no clusters, got %f", v)
	}
}

func TestPipelineThroughput(t *testing.T) {
	c := NewCollector()
	c.RecordStage("cluster", 100*time.Millisecond)
	c.RecordStage("extract", 700*time.Millisecond)
	c.RecordStage("promote", 200*time.Millisecond)

	r := c.PipelineThroughput(10)
	if r.TotalDuration != time.Second {
		t.Errorf("Expected 1s total, got %v", r.TotalDuration)
	}
	if math.Abs(r.PatternsPerSecond-10.0) > 1e-6 {
		t.Errorf("Expected 10 patterns/sec, got %f", r.PatternsPerSecond)
	}
	if !r.BottleneckDetected || r.Bottleneck != "extract" {
		t.Errorf("Expected extract flagged as bottleneck, got %+v", r)
	}
	if r.Stages[0].Stage != "extract" {
		t.Errorf("Expected stages sorted by duration, got %+v", r.Stages)
	}
	if math.Abs(r.Stages[0].Percent-70.0) > 1e-6 {
		t.Errorf("Expected 70%% share for extract, got %f", r.Stages[0].Percent)
	}
}

func TestPipelineThroughputNoTimings(t *testing.T) {
	c := NewCollector()
	r := c.PipelineThroughput(5)
	if r.TotalDuration != 0 || r.BottleneckDetected {
		t.Errorf("Expected empty report without timings, got %+v", r)
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.RecordStage("cluster", time.Second)
	c.Reset()
	if r := c.PipelineThroughput(1); r.TotalDuration != 0 {
		t.Errorf("Expected no timings after reset, got %+v", r)
	}
}

func TestTimeStage(t *testing.T) {
	c := NewCollector()
	if err := c.TimeStage("work", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}); err != nil {
		t.Fatalf("TimeStage failed: %v", err)
	}
	r := c.PipelineThroughput(1)
	if r.TotalDuration < 10*time.Millisecond {
		t.Errorf("Expected at least 10ms recorded, got %v", r.TotalDuration)
	}
}

func TestSearchImpact(t *testing.T) {
	c := NewCollector()
	r := c.SearchImpact([]QueryImpact{
		{Query: "q1", Before: 0.5, After: 0.8},
		{Query: "q2", Before: 0.6, After: 0.4},
		{Query: "q3", Before: 0.7, After: 0.7},
	})
	if r.Improved != 1 || r.Degraded != 1 || r.Unchanged != 1 {
		t.Errorf("Unexpected buckets: %+v", r)
	}
	want := (0.3 + (-0.2) + 0.0) / 3.0
	if math.Abs(r.MeanDelta-want) > 1e-9 {
		t.Errorf("Expected mean delta %f, got %f", want, r.MeanDelta)
	}
}

func TestSearchImpactEmpty(t *testing.T) {
	c := NewCollector()
	r := c.SearchImpact(nil)
	if r.MeanDelta != 0 || r.Improved != 0 {
		t.Errorf("Expected zero report, got %+v", r)
	}
}
