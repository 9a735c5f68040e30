// Package pathway tracks learning provenance: how a source trace moves
// through the episodic, semantic, and procedural stages, and how
// effective each pathway type is per session.
package pathway

import (
	"fmt"

	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
	"github.com/google/uuid"
)

// Tracker records and reports on learning pathways.
type Tracker struct {
	db *store.DB
}

// New creates a pathway tracker backed by the given store.
func New(db *store.DB) *Tracker {
	return &Tracker{db: db}
}

// CreatePathway records a new active pathway. Confidence above 1.0 is
// clamped rather than rejected; upstream scores occasionally overshoot
// and a clamp keeps the pathway instead of dropping the provenance.
func (t *Tracker) CreatePathway(sessionID string, pathwayType types.PathwayType, sourceID, sourceType, episodicID string, confidence float64) (*types.LearningPathway, error) {
	if confidence < 0 {
		return nil, fmt.Errorf("pathway confidence must not be negative, got %f", confidence)
	}
	if confidence > 1.0 {
		logging.Debug("pathway", "clamping confidence %.3f to 1.0 for source %s", confidence, sourceID)
		confidence = 1.0
	}

	p := &types.LearningPathway{
		ID:          "path-" + uuid.NewString(),
		SessionID:   sessionID,
		PathwayType: pathwayType,
		SourceID:    sourceID,
		SourceType:  sourceType,
		EpisodicID:  episodicID,
		Confidence:  confidence,
		Status:      types.PathwayActive,
	}
	if err := t.db.InsertPathway(p); err != nil {
		return nil, err
	}
	return p, nil
}

// LinkToSemantic attaches a promoted semantic memory to a pathway,
// marking it consolidated.
func (t *Tracker) LinkToSemantic(pathwayID, semanticID string) error {
	if err := t.db.SetPathwaySemantic(pathwayID, semanticID); err != nil {
		return err
	}
	logging.Debug("pathway", "pathway %s consolidated into memory %s", pathwayID, semanticID)
	return nil
}

// LinkToProcedural attaches a mined procedure to a pathway. This does
// not consolidate the pathway on its own.
func (t *Tracker) LinkToProcedural(pathwayID, proceduralID string) error {
	return t.db.SetPathwayProcedural(pathwayID, proceduralID)
}

// TypeEffectiveness is one pathway type's per-session report.
type TypeEffectiveness struct {
	PathwayType       types.PathwayType
	Count             int
	AvgConfidence     float64
	ConsolidationRate float64 // percent of pathways consolidated
}

// GetLearningEffectiveness reports, per pathway type, how many pathways
// a session produced and what fraction reached semantic memory. When
// persist is set, each row is also written as a pathway metric snapshot.
func (t *Tracker) GetLearningEffectiveness(sessionID string, persist bool) ([]TypeEffectiveness, error) {
	stats, err := t.db.SessionPathwayStats(sessionID)
	if err != nil {
		return nil, err
	}

	report := make([]TypeEffectiveness, 0, len(stats))
	for _, st := range stats {
		eff := TypeEffectiveness{
			PathwayType:   st.PathwayType,
			Count:         st.Count,
			AvgConfidence: st.AvgConfidence,
		}
		if st.Count > 0 {
			eff.ConsolidationRate = float64(st.Consolidated) / float64(st.Count) * 100.0
		}
		if persist {
			if err := t.db.RecordPathwayMetric(sessionID, st.PathwayType, st.Count, st.AvgConfidence, eff.ConsolidationRate); err != nil {
				return nil, fmt.Errorf("failed to persist pathway metric: %w", err)
			}
		}
		report = append(report, eff)
	}
	return report, nil
}
