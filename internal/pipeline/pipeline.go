// Package pipeline orchestrates a full consolidation run: trigger,
// cluster, dual-process extraction, semantic promotion, temporal
// chaining, procedure mining, pathway tracking, and metrics.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/calyptra/mnemo/internal/chain"
	"github.com/calyptra/mnemo/internal/cluster"
	"github.com/calyptra/mnemo/internal/config"
	"github.com/calyptra/mnemo/internal/extract"
	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/metrics"
	"github.com/calyptra/mnemo/internal/pathway"
	"github.com/calyptra/mnemo/internal/procedure"
	"github.com/calyptra/mnemo/internal/promote"
	"github.com/calyptra/mnemo/internal/reasoning"
	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/trigger"
	"github.com/calyptra/mnemo/internal/types"
)

// repeatWindow is the subsequence length used for repeating-pattern
// detection over a session's ordering.
const repeatWindow = 3

// Runner executes consolidation runs end to end.
type Runner struct {
	db         *store.DB
	cfg        config.Config
	clusterer  *cluster.Clusterer
	extractor  *extract.Extractor
	chainer    *chain.Chainer
	triggers   *trigger.Manager
	promoter   *promote.Promoter
	procedures *procedure.Creator
	pathways   *pathway.Tracker
}

// New wires a runner from configuration. An empty reasoning base URL
// disables the slow extraction path; everything else still runs.
func New(db *store.DB, cfg config.Config) *Runner {
	var reasoner extract.Reasoner
	if cfg.Reasoning.BaseURL != "" {
		reasoner = reasoning.NewClient(cfg.Reasoning.BaseURL, cfg.Reasoning.APIKey, cfg.Reasoning.Model)
	}

	return &Runner{
		db:         db,
		cfg:        cfg,
		clusterer:  &cluster.Clusterer{GapThreshold: cfg.Cluster.GapThreshold.Std()},
		extractor:  extract.New(reasoner, cfg.Reasoning.Timeout.Std()),
		chainer:    chain.New(db),
		triggers:   trigger.New(db, cfg.Trigger.EventThreshold),
		promoter:   promote.New(db, cfg.Promote.MinConfidence),
		procedures: procedure.New(db),
		pathways:   pathway.New(db),
	}
}

// Triggers exposes the trigger manager, for callers that want to check
// eligibility without running.
func (r *Runner) Triggers() *trigger.Manager {
	return r.triggers
}

// Result summarizes one consolidation run.
type Result struct {
	TriggerID          string
	Status             types.TriggerStatus
	ClusterCount       int
	ConsolidatedEvents int
	Patterns           []*types.PatternCandidate
	MemoriesCreated    int
	ProceduresCreated  int
	RepeatingSequences []chain.RepeatedSequence
	HallucinationRate  float64
	PatternDiversity   float64
	ClusteringCohesion float64
	Errors             []string
}

// clusterOutcome is one cluster's processing result.
type clusterOutcome struct {
	patterns     []*types.PatternCandidate
	memories     int
	consolidated int
	err          error
}

// Run executes a consolidation run for one session. The trigger record
// is created first and always driven to a terminal status: success when
// every cluster consolidates, partial when some fail, failed when the
// run cannot proceed or nothing consolidates.
func (r *Runner) Run(ctx context.Context, projectID, sessionID string, triggerType types.TriggerType) (*Result, error) {
	rec, err := r.triggers.Trigger(sessionID, triggerType)
	if err != nil {
		return nil, err
	}
	res := &Result{TriggerID: rec.ID}

	started, err := r.triggers.MarkStarted(rec.ID)
	if err != nil || !started {
		if err == nil {
			err = fmt.Errorf("trigger %s was not pending", rec.ID)
		}
		return nil, err
	}

	collector := metrics.NewCollector()

	var events []*types.EpisodicEvent
	err = collector.TimeStage("load", func() error {
		var loadErr error
		events, loadErr = r.db.GetUnconsolidatedEvents(projectID, sessionID)
		return loadErr
	})
	if err != nil {
		return r.fail(res, fmt.Errorf("failed to load events: %w", err))
	}
	if len(events) == 0 {
		return r.fail(res, fmt.Errorf("no unconsolidated events for session %s", sessionID))
	}

	var clusters map[string][]*types.EpisodicEvent
	collector.TimeStage("cluster", func() error {
		clusters = r.clusterer.Cluster(events)
		return nil
	})
	res.ClusterCount = len(clusters)
	res.ClusteringCohesion = collector.ClusteringCohesion(clusters, nil)
	logging.Info("pipeline", "session %s: %d events in %d clusters", sessionID, len(events), len(clusters))

	outcomes := r.processClusters(ctx, clusters, collector)

	var failed int
	for _, key := range cluster.SortedKeys(clusters) {
		out := outcomes[key]
		if out.err != nil {
			failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", key, out.err))
			continue
		}
		res.Patterns = append(res.Patterns, out.patterns...)
		res.MemoriesCreated += out.memories
		res.ConsolidatedEvents += out.consolidated
	}

	if failed == len(clusters) {
		return r.fail(res, fmt.Errorf("all %d clusters failed: %v", failed, res.Errors))
	}

	// Enrichment stages run after consolidation and degrade to warnings:
	// a chaining or mining failure does not undo consolidated events.
	collector.TimeStage("chain", func() error {
		if err := r.buildChains(events, sessionID, res); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
		return nil
	})
	collector.TimeStage("procedures", func() error {
		if err := r.mineProcedures(events, sessionID, res); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
		return nil
	})

	res.HallucinationRate = collector.HallucinationRate(res.Patterns)
	res.PatternDiversity = collector.PatternDiversity(res.Patterns)
	r.recordMetrics(rec.ID, sessionID, collector, res)

	status := types.TriggerSuccess
	var errMsg string
	if failed > 0 {
		status = types.TriggerPartial
		errMsg = fmt.Sprintf("%d of %d clusters failed", failed, len(clusters))
	}
	res.Status = status

	counts := store.TriggerCounts{
		ConsolidatedEvents: res.ConsolidatedEvents,
		PatternsExtracted:  len(res.Patterns),
		ProceduresCreated:  res.ProceduresCreated,
	}
	if _, err := r.triggers.MarkCompleted(rec.ID, status, counts, errMsg); err != nil {
		return res, err
	}
	return res, nil
}

// processClusters runs extraction, promotion, and consolidation for each
// cluster, bounded by the configured parallelism. One cluster failing
// does not stop the others.
func (r *Runner) processClusters(ctx context.Context, clusters map[string][]*types.EpisodicEvent, collector *metrics.Collector) map[string]clusterOutcome {
	outcomes := make(map[string]clusterOutcome, len(clusters))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pipeline.MaxParallelClusters)

	for _, key := range cluster.SortedKeys(clusters) {
		key := key
		members := clusters[key]
		g.Go(func() error {
			out := r.processCluster(gctx, key, members, collector)
			mu.Lock()
			outcomes[key] = out
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// processCluster runs the per-cluster unit of work. Extraction and
// promotion durations accumulate on the shared collector, which is
// mutex-guarded, so concurrent clusters can record into the same stages.
func (r *Runner) processCluster(ctx context.Context, key string, members []*types.EpisodicEvent, collector *metrics.Collector) clusterOutcome {
	var out clusterOutcome
	collector.TimeStage("extract", func() error {
		out.patterns = r.extractor.ExtractCluster(ctx, key, members)
		return nil
	})

	var promotions []promote.Promotion
	err := collector.TimeStage("promote", func() error {
		var err error
		promotions, err = r.promoter.PromotePatterns(out.patterns)
		if err != nil {
			return fmt.Errorf("promotion failed: %w", err)
		}
		out.memories += len(promotions)

		discoveryMems, err := r.promoter.PromoteDiscoveries(members)
		if err != nil {
			return fmt.Errorf("discovery promotion failed: %w", err)
		}
		out.memories += len(discoveryMems)
		return nil
	})
	if err != nil {
		out.err = err
		return out
	}

	// Pathways tie each promotion back to its source for effectiveness
	// reporting. A pathway failure is not worth failing the cluster over.
	byID := make(map[string]*types.PatternCandidate, len(out.patterns))
	for _, p := range out.patterns {
		byID[p.ID] = p
	}
	for _, promo := range promotions {
		pat := byID[promo.PatternID]
		if pat == nil || len(members) == 0 {
			continue
		}
		pw, err := r.pathways.CreatePathway(members[0].SessionID, types.PathwayExecution,
			pat.ID, "pattern", firstSource(pat), pat.Confidence)
		if err != nil {
			logging.Debug("pipeline", "pathway creation failed for %s: %v", pat.ID, err)
			continue
		}
		if err := r.pathways.LinkToSemantic(pw.ID, promo.MemoryID); err != nil {
			logging.Debug("pipeline", "pathway link failed for %s: %v", pw.ID, err)
		}
	}

	ids := make([]string, len(members))
	for i, e := range members {
		ids[i] = e.ID
	}
	n, err := r.db.MarkConsolidated(ids)
	if err != nil {
		out.err = fmt.Errorf("failed to mark consolidated: %w", err)
		return out
	}
	out.consolidated = n
	return out
}

func firstSource(p *types.PatternCandidate) string {
	if len(p.SourceEventIDs) > 0 {
		return p.SourceEventIDs[0]
	}
	return ""
}

// buildChains links adjacent events, stores the session ordering, and
// detects repeating subsequences.
func (r *Runner) buildChains(events []*types.EpisodicEvent, sessionID string, res *Result) error {
	for i := 0; i+1 < len(events); i++ {
		if _, err := r.chainer.LinkEvents(events[i], events[i+1]); err != nil {
			return fmt.Errorf("chaining failed: %w", err)
		}
	}
	if _, err := r.chainer.BuildSessionSequence(sessionID); err != nil {
		return err
	}

	repeats, err := r.chainer.DetectRepeatingPatterns(sessionID, repeatWindow)
	if err != nil {
		return err
	}
	res.RepeatingSequences = repeats
	return nil
}

// mineProcedures creates procedures from promoted-quality patterns whose
// source events succeeded often enough, and ties them into pathways.
func (r *Runner) mineProcedures(events []*types.EpisodicEvent, sessionID string, res *Result) error {
	byID := make(map[string]*types.EpisodicEvent, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	for _, pat := range res.Patterns {
		if pat.Confidence < r.cfg.Promote.MinConfidence {
			continue
		}
		rate := sourceSuccessRate(pat, byID)
		proc, err := r.procedures.CreateFromPattern(pat, rate)
		if err != nil {
			return fmt.Errorf("procedure mining failed: %w", err)
		}
		if proc == nil {
			continue
		}
		res.ProceduresCreated++

		pw, err := r.pathways.CreatePathway(sessionID, types.PathwayActionCycle,
			pat.ID, "pattern", firstSource(pat), pat.Confidence)
		if err == nil {
			if err := r.pathways.LinkToProcedural(pw.ID, proc.ID); err != nil {
				logging.Debug("pipeline", "procedural link failed for %s: %v", pw.ID, err)
			}
		}
	}
	return nil
}

// sourceSuccessRate is the fraction of a pattern's source events that
// succeeded. Patterns without resolvable sources rate 0.
func sourceSuccessRate(p *types.PatternCandidate, byID map[string]*types.EpisodicEvent) float64 {
	if len(p.SourceEventIDs) == 0 {
		return 0
	}
	var known, successes int
	for _, id := range p.SourceEventIDs {
		e, ok := byID[id]
		if !ok {
			continue
		}
		known++
		// High and critical are discovery outcomes, which count as
		// successful executions here.
		if e.Outcome == types.OutcomeSuccess || e.Outcome == types.OutcomeHigh || e.Outcome == types.OutcomeCritical {
			successes++
		}
	}
	if known == 0 {
		return 0
	}
	return float64(successes) / float64(known)
}

// recordMetrics persists the run's quality and throughput numbers
// alongside the trigger record.
func (r *Runner) recordMetrics(triggerID, sessionID string, collector *metrics.Collector, res *Result) {
	throughput := collector.PipelineThroughput(len(res.Patterns))

	rows := map[string]float64{
		"hallucination_rate":  res.HallucinationRate,
		"pattern_diversity":   res.PatternDiversity,
		"clustering_cohesion": res.ClusteringCohesion,
		"patterns_per_second": throughput.PatternsPerSecond,
	}
	for name, value := range rows {
		if err := r.db.RecordMetric(triggerID, name, value, nil); err != nil {
			logging.Debug("pipeline", "failed to record metric %s: %v", name, err)
		}
	}
	if throughput.BottleneckDetected {
		logging.Info("pipeline", "bottleneck stage: %s", throughput.Bottleneck)
	}

	if _, err := r.pathways.GetLearningEffectiveness(sessionID, true); err != nil {
		logging.Debug("pipeline", "failed to persist pathway metrics: %v", err)
	}
}

// fail drives the trigger to the failed state and returns the error.
func (r *Runner) fail(res *Result, cause error) (*Result, error) {
	res.Status = types.TriggerFailed
	res.Errors = append(res.Errors, cause.Error())
	if _, err := r.triggers.MarkCompleted(res.TriggerID, types.TriggerFailed, store.TriggerCounts{}, cause.Error()); err != nil {
		logging.Info("pipeline", "failed to mark trigger %s failed: %v", res.TriggerID, err)
	}
	return res, cause
}
