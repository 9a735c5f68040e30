package trigger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addEvents(t *testing.T, db *store.DB, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := db.AddEvent(&types.EpisodicEvent{
			ID:        fmt.Sprintf("%s-e%d", sessionID, i),
			ProjectID: "proj-1",
			SessionID: sessionID,
			Type:      "tool_execution:read",
			Content:   "read file",
			Timestamp: int64(i) * 1000,
			Outcome:   types.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("AddEvent failed: %v", err)
		}
	}
}

func TestShouldConsolidateBelowThreshold(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 9)

	d, err := m.ShouldConsolidate("s1")
	if err != nil {
		t.Fatalf("ShouldConsolidate failed: %v", err)
	}
	if d.Consolidate {
		t.Errorf("Expected not eligible below threshold, got %+v", d)
	}
	if d.EventCount != 9 {
		t.Errorf("Expected count 9, got %d", d.EventCount)
	}
}

func TestShouldConsolidateAtThreshold(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 10)

	d, err := m.ShouldConsolidate("s1")
	if err != nil {
		t.Fatalf("ShouldConsolidate failed: %v", err)
	}
	if !d.Consolidate {
		t.Errorf("Expected eligible at threshold, got %+v", d)
	}
}

func TestShouldConsolidateBlockedByActive(t *testing.T) {
	for _, status := range []types.TriggerStatus{types.TriggerRunning, types.TriggerSuccess, types.TriggerPartial} {
		t.Run(string(status), func(t *testing.T) {
			db := setupTestDB(t)
			m := New(db, 10)
			addEvents(t, db, "s1", 12)

			rec, err := m.Trigger("s1", types.TriggerEventThreshold)
			if err != nil {
				t.Fatalf("Trigger failed: %v", err)
			}
			if _, err := m.MarkStarted(rec.ID); err != nil {
				t.Fatalf("MarkStarted failed: %v", err)
			}
			if status != types.TriggerRunning {
				if _, err := m.MarkCompleted(rec.ID, status, store.TriggerCounts{}, ""); err != nil {
					t.Fatalf("MarkCompleted failed: %v", err)
				}
			}

			d, err := m.ShouldConsolidate("s1")
			if err != nil {
				t.Fatalf("ShouldConsolidate failed: %v", err)
			}
			if d.Consolidate {
				t.Errorf("Expected %s trigger to block, got %+v", status, d)
			}
		})
	}
}

func TestShouldConsolidateNotBlockedByFailed(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 12)

	rec, err := m.Trigger("s1", types.TriggerEventThreshold)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if _, err := m.MarkStarted(rec.ID); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}
	if _, err := m.MarkCompleted(rec.ID, types.TriggerFailed, store.TriggerCounts{}, "boom"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	d, err := m.ShouldConsolidate("s1")
	if err != nil {
		t.Fatalf("ShouldConsolidate failed: %v", err)
	}
	if !d.Consolidate {
		t.Errorf("Expected failed trigger not to block a retry, got %+v", d)
	}
}

func TestTriggerNotEligible(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 3)

	if _, err := m.Trigger("s1", types.TriggerEventThreshold); err == nil {
		t.Error("Expected error when below threshold")
	}
}

func TestManualTriggerBypassesThreshold(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 3)

	rec, err := m.Trigger("s1", types.TriggerManual)
	if err != nil {
		t.Fatalf("Manual trigger failed: %v", err)
	}
	if rec.Status != types.TriggerPending {
		t.Errorf("Expected pending, got %s", rec.Status)
	}
	if rec.EventCount != 3 {
		t.Errorf("Expected event count snapshot 3, got %d", rec.EventCount)
	}
}

func TestDuplicateActiveTriggerRejected(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 12)

	if _, err := m.Trigger("s1", types.TriggerManual); err != nil {
		t.Fatalf("First trigger failed: %v", err)
	}
	_, err := m.Trigger("s1", types.TriggerManual)
	if !errors.Is(err, store.ErrActiveTrigger) {
		t.Errorf("Expected ErrActiveTrigger for second trigger, got %v", err)
	}
}

func TestConcurrentTriggersSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 12)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Trigger("s1", types.TriggerEventThreshold)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly 1 winning trigger, got %d", wins)
	}
}

func TestMarkStartedOnlyFromPending(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 12)

	rec, err := m.Trigger("s1", types.TriggerEventThreshold)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	ok, err := m.MarkStarted(rec.ID)
	if err != nil || !ok {
		t.Fatalf("Expected first MarkStarted to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = m.MarkStarted(rec.ID)
	if err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}
	if ok {
		t.Error("Expected second MarkStarted to be a no-op")
	}
}

func TestMarkCompletedTerminalImmutable(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)
	addEvents(t, db, "s1", 12)

	rec, err := m.Trigger("s1", types.TriggerEventThreshold)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if _, err := m.MarkStarted(rec.ID); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}

	counts := store.TriggerCounts{ConsolidatedEvents: 12, PatternsExtracted: 2}
	ok, err := m.MarkCompleted(rec.ID, types.TriggerSuccess, counts, "")
	if err != nil || !ok {
		t.Fatalf("Expected completion to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = m.MarkCompleted(rec.ID, types.TriggerFailed, store.TriggerCounts{}, "late failure")
	if err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if ok {
		t.Error("Expected terminal trigger to be immutable")
	}

	got, err := db.GetTrigger(rec.ID)
	if err != nil {
		t.Fatalf("GetTrigger failed: %v", err)
	}
	if got.Status != types.TriggerSuccess {
		t.Errorf("Expected status to remain success, got %s", got.Status)
	}
	if got.ConsolidatedEvents != 12 {
		t.Errorf("Expected counters preserved, got %+v", got)
	}
}

func TestMarkCompletedRejectsNonTerminal(t *testing.T) {
	db := setupTestDB(t)
	m := New(db, 10)

	if _, err := m.MarkCompleted("trig-x", types.TriggerRunning, store.TriggerCounts{}, ""); err == nil {
		t.Error("Expected error for non-terminal status")
	}
}

// A trigger stranded in pending past the expiry window must stop
// blocking its session: the next Trigger call fails it and proceeds.
func TestTriggerExpiresStalePending(t *testing.T) {
	db := setupTestDB(t)
	addEvents(t, db, "s1", 10)
	mgr := New(db, 10)

	stale := &types.TriggerRecord{
		ID:          "trig-stale",
		SessionID:   "s1",
		TriggerType: types.TriggerEventThreshold,
		Status:      types.TriggerPending,
		EventCount:  10,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	if err := db.InsertTrigger(stale); err != nil {
		t.Fatalf("InsertTrigger failed: %v", err)
	}

	rec, err := mgr.Trigger("s1", types.TriggerEventThreshold)
	if err != nil {
		t.Fatalf("Expected stale pending trigger expired, got: %v", err)
	}
	if rec.ID == "trig-stale" {
		t.Error("Expected a fresh trigger record, got the stale one")
	}

	old, err := db.GetTrigger("trig-stale")
	if err != nil {
		t.Fatalf("GetTrigger failed: %v", err)
	}
	if old.Status != types.TriggerFailed {
		t.Errorf("Expected stale trigger failed, got %s", old.Status)
	}
	if old.ErrorMessage == "" {
		t.Error("Expected an error message on the expired trigger")
	}
}
