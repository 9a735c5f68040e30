// Package types defines the shared data model for the consolidation engine:
// episodic events, extracted pattern candidates, temporal links, trigger
// records, learning pathways, and procedure records.
package types

import (
	"strings"
	"time"
)

// Outcome classifies how an episodic event ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomePartial  Outcome = "partial"
	OutcomeHigh     Outcome = "high"     // high-value discovery
	OutcomeCritical Outcome = "critical" // critical discovery
	OutcomeNone     Outcome = "none"
)

// ConsolidationStatus tracks whether an event has been folded into
// semantic memory yet.
type ConsolidationStatus string

const (
	StatusUnconsolidated ConsolidationStatus = "unconsolidated"
	StatusConsolidated   ConsolidationStatus = "consolidated"
)

// EpisodicEvent is a single logged occurrence from an agent session.
// Events are append-only: the engine only ever flips consolidation_status.
type EpisodicEvent struct {
	ID                  string              `json:"id"`
	ProjectID           string              `json:"project_id"`
	SessionID           string              `json:"session_id"`
	Type                string              `json:"type"` // namespaced, e.g. "tool_execution:read"
	Content             string              `json:"content"`
	Timestamp           int64               `json:"timestamp"` // ms since epoch
	Outcome             Outcome             `json:"outcome"`
	ConsolidationStatus ConsolidationStatus `json:"consolidation_status"`
}

// TypePrefix returns the namespace portion of the event type, the
// substring before the first ':'. An un-namespaced type is its own prefix.
func (e *EpisodicEvent) TypePrefix() string {
	if idx := strings.Index(e.Type, ":"); idx >= 0 {
		return e.Type[:idx]
	}
	return e.Type
}

// IsDiscovery reports whether the event is a discovery-namespaced event.
func (e *EpisodicEvent) IsDiscovery() bool {
	return strings.HasPrefix(e.Type, "discovery:")
}

// Time returns the event timestamp as a time.Time.
func (e *EpisodicEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// PatternType classifies extracted pattern candidates.
type PatternType string

const (
	PatternFrequency    PatternType = "frequency"
	PatternTemporal     PatternType = "temporal"
	PatternDiscovery    PatternType = "discovery"
	PatternWorkflow     PatternType = "workflow"
	PatternAntiPattern  PatternType = "anti-pattern"
	PatternBestPractice PatternType = "best-practice"
	PatternRelationship PatternType = "relationship"
)

// ExtractionMethod records which half of the dual process produced a pattern.
type ExtractionMethod string

const (
	MethodSystem1 ExtractionMethod = "system1_heuristics"
	MethodSystem2 ExtractionMethod = "system2_llm"
)

// PatternCandidate is a generalized pattern detected over a cluster of events.
type PatternCandidate struct {
	ID               string           `json:"id"`
	Type             PatternType      `json:"type"`
	Cluster          string           `json:"cluster"`
	Content          string           `json:"content"`
	Confidence       float64          `json:"confidence"` // [0,1]
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	SourceEventIDs   []string         `json:"source_event_ids"`
}

// RelationType buckets a temporal link by how close the two events are.
type RelationType string

const (
	RelationImmediatelyAfter RelationType = "immediately_after" // <= 5 min
	RelationShortlyAfter     RelationType = "shortly_after"     // <= 1 hour
	RelationLaterAfter       RelationType = "later_after"       // <= 24 hours
)

// TemporalLink is a pairwise causal/temporal edge between two events.
// Insert-only; links are never created backwards in time or beyond 24h.
type TemporalLink struct {
	ID             string       `json:"id"`
	FromEventID    string       `json:"from_event_id"`
	ToEventID      string       `json:"to_event_id"`
	RelationType   RelationType `json:"relation_type"`
	TimeDelta      float64      `json:"time_delta_seconds"`
	CausalStrength float64      `json:"causal_strength"` // [0,1]
}

// TriggerType records what caused a consolidation run.
type TriggerType string

const (
	TriggerSessionEnd     TriggerType = "session_end"
	TriggerEventThreshold TriggerType = "event_threshold"
	TriggerTimeBased      TriggerType = "time_based"
	TriggerManual         TriggerType = "manual"
)

// TriggerStatus is the consolidation run lifecycle state.
// pending -> running -> {success, failed, partial}; terminal states are immutable.
type TriggerStatus string

const (
	TriggerPending TriggerStatus = "pending"
	TriggerRunning TriggerStatus = "running"
	TriggerSuccess TriggerStatus = "success"
	TriggerFailed  TriggerStatus = "failed"
	TriggerPartial TriggerStatus = "partial"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TriggerStatus) IsTerminal() bool {
	return s == TriggerSuccess || s == TriggerFailed || s == TriggerPartial
}

// TriggerRecord is one consolidation run, from decision to terminal state.
type TriggerRecord struct {
	ID                 string        `json:"id"`
	SessionID          string        `json:"session_id"`
	TriggerType        TriggerType   `json:"trigger_type"`
	Status             TriggerStatus `json:"status"`
	EventCount         int           `json:"event_count"` // snapshot at trigger time
	ConsolidatedEvents int           `json:"consolidated_events"`
	PatternsExtracted  int           `json:"patterns_extracted"`
	ProceduresCreated  int           `json:"procedures_created"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	StartedAt          time.Time     `json:"started_at,omitempty"`
	CompletedAt        time.Time     `json:"completed_at,omitempty"`
}

// PathwayType classifies a learning pathway's origin.
type PathwayType string

const (
	PathwayExecution   PathwayType = "execution"
	PathwayThinking    PathwayType = "thinking"
	PathwayActionCycle PathwayType = "action_cycle"
)

// PathwayStatus moves forward only: active -> consolidated -> archived.
type PathwayStatus string

const (
	PathwayActive       PathwayStatus = "active"
	PathwayConsolidated PathwayStatus = "consolidated"
	PathwayArchived     PathwayStatus = "archived"
)

// LearningPathway records provenance from a source trace through the
// episodic, semantic, and procedural stages.
type LearningPathway struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	PathwayType  PathwayType   `json:"pathway_type"`
	SourceID     string        `json:"source_id"`
	SourceType   string        `json:"source_type"`
	EpisodicID   string        `json:"episodic_id,omitempty"`
	SemanticID   string        `json:"semantic_id,omitempty"`
	ProceduralID string        `json:"procedural_id,omitempty"`
	Confidence   float64       `json:"confidence"` // [0,1]
	Status       PathwayStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ProcedureCategory is the inferred category of an auto-created procedure.
type ProcedureCategory string

const (
	CategoryGit          ProcedureCategory = "git"
	CategoryDebugging    ProcedureCategory = "debugging"
	CategoryTesting      ProcedureCategory = "testing"
	CategoryRefactoring  ProcedureCategory = "refactoring"
	CategoryDeployment   ProcedureCategory = "deployment"
	CategoryCodeTemplate ProcedureCategory = "code_template"
)

// Procedure is a reusable template mined from a successful pattern or an
// explicit lesson. Exactly one of SourcePatternID / SourceLessonID is set.
type Procedure struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Category        ProcedureCategory `json:"category"`
	Template        string            `json:"template"`
	SourcePatternID string            `json:"source_pattern_id,omitempty"`
	SourceLessonID  string            `json:"source_lesson_id,omitempty"`
	Confidence      float64           `json:"confidence"`
	SuccessRate     float64           `json:"success_rate"` // cumulative average
	UsageCount      int               `json:"usage_count"`
	FirstUseAt      time.Time         `json:"first_use_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ProcedureUsage is one recorded real-world use of a procedure.
// Effectiveness is nil when the caller did not score the use; a reported
// score of 0.0 is distinct from not reporting one.
type ProcedureUsage struct {
	ID            string    `json:"id"`
	ProcedureID   string    `json:"procedure_id"`
	SessionID     string    `json:"session_id"`
	GoalID        string    `json:"goal_id,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Effectiveness *float64  `json:"effectiveness,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PatternSource is a provenance reference from a promoted pattern back to
// a contributing event. Reference, not ownership: events outlive patterns.
type PatternSource struct {
	PatternID     string  `json:"pattern_id"`
	SourceEventID string  `json:"source_event_id"`
	Strength      float64 `json:"strength"` // [0,1]
	SourceType    string  `json:"source_type"`
}

// SequenceEntry is one position in a session's total event ordering.
type SequenceEntry struct {
	SessionID     string `json:"session_id"`
	EventID       string `json:"event_id"`
	SequenceOrder int    `json:"sequence_order"`
}
