// Package trigger decides when a session's unconsolidated events warrant
// a consolidation run, and owns the run's lifecycle records.
package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
	"github.com/google/uuid"
)

// DefaultEventThreshold is the unconsolidated-event count at which a
// session becomes eligible for consolidation.
const DefaultEventThreshold = 10

// stalePendingAfter is how long a trigger may sit in pending before it is
// written off as abandoned and failed, freeing the session's active slot.
const stalePendingAfter = 10 * time.Minute

// Manager evaluates trigger conditions and manages run lifecycle state.
type Manager struct {
	db             *store.DB
	eventThreshold int

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// New creates a trigger manager. A non-positive threshold falls back to
// the default.
func New(db *store.DB, eventThreshold int) *Manager {
	if eventThreshold <= 0 {
		eventThreshold = DefaultEventThreshold
	}
	return &Manager{
		db:             db,
		eventThreshold: eventThreshold,
		sessions:       make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the per-session mutex, creating it on first use.
// Check-then-act sequences on one session serialize through it; the
// partial unique index in the store backs this up across processes.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.sessions[sessionID] = lock
	}
	return lock
}

// Decision explains a ShouldConsolidate outcome.
type Decision struct {
	Consolidate bool
	EventCount  int
	Reason      string
}

// ShouldConsolidate reports whether a session is eligible for a run: at
// least the threshold of unconsolidated events, and no running or
// already-successful trigger for the session.
func (m *Manager) ShouldConsolidate(sessionID string) (*Decision, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.shouldConsolidateLocked(sessionID)
}

func (m *Manager) shouldConsolidateLocked(sessionID string) (*Decision, error) {
	count, err := m.db.CountUnconsolidated(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unconsolidated events: %w", err)
	}
	if count < m.eventThreshold {
		return &Decision{
			EventCount: count,
			Reason:     fmt.Sprintf("%d unconsolidated events, need %d", count, m.eventThreshold),
		}, nil
	}

	blocking, err := m.db.LatestBlockingTrigger(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for blocking trigger: %w", err)
	}
	if blocking != nil {
		return &Decision{
			EventCount: count,
			Reason:     fmt.Sprintf("blocked by trigger %s (%s)", blocking.ID, blocking.Status),
		}, nil
	}

	return &Decision{
		Consolidate: true,
		EventCount:  count,
		Reason:      fmt.Sprintf("%d unconsolidated events", count),
	}, nil
}

// Trigger records a new pending run for the session. The eligibility
// check and the insert happen under the session lock, so two concurrent
// callers cannot both create a trigger; the loser gets ErrNotEligible or
// store.ErrActiveTrigger.
func (m *Manager) Trigger(sessionID string, triggerType types.TriggerType) (*types.TriggerRecord, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	expired, err := m.db.ExpireStalePendingTriggers(sessionID, time.Now().UTC().Add(-stalePendingAfter))
	if err != nil {
		return nil, err
	}
	if expired > 0 {
		logging.Info("trigger", "expired %d stale pending trigger(s) for session %s", expired, sessionID)
	}

	decision, err := m.shouldConsolidateLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if !decision.Consolidate && triggerType != types.TriggerManual {
		return nil, fmt.Errorf("session %s not eligible: %s", sessionID, decision.Reason)
	}

	rec := &types.TriggerRecord{
		ID:          "trig-" + uuid.NewString(),
		SessionID:   sessionID,
		TriggerType: triggerType,
		Status:      types.TriggerPending,
		EventCount:  decision.EventCount,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.db.InsertTrigger(rec); err != nil {
		return nil, err
	}

	logging.Info("trigger", "created %s trigger %s for session %s (%d events)",
		triggerType, rec.ID, sessionID, rec.EventCount)
	return rec, nil
}

// MarkStarted moves a pending trigger to running. Returns false when the
// trigger was not pending.
func (m *Manager) MarkStarted(triggerID string) (bool, error) {
	ok, err := m.db.MarkTriggerStarted(triggerID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if !ok {
		logging.Debug("trigger", "trigger %s not pending, start skipped", triggerID)
	}
	return ok, nil
}

// MarkCompleted moves a running trigger to a terminal status with its
// result counters. Calling it on an already-terminal trigger is a no-op.
func (m *Manager) MarkCompleted(triggerID string, status types.TriggerStatus, counts store.TriggerCounts, errMsg string) (bool, error) {
	ok, err := m.db.MarkTriggerCompleted(triggerID, status, counts, errMsg, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if ok {
		logging.Info("trigger", "trigger %s completed with status %s (%d events, %d patterns, %d procedures)",
			triggerID, status, counts.ConsolidatedEvents, counts.PatternsExtracted, counts.ProceduresCreated)
	}
	return ok, nil
}
