package session

import (
	"context"
	"testing"
	"time"
)

// TestEndToEndScenario walks the full session lifecycle: start a
// 3-exercise strength workout, log a set, autosave, reload, verify
// recovery, complete, and check exactly one record with one result row.
func TestEndToEndScenario(t *testing.T) {
	def := strengthWorkout(3)
	drafts := newFakeDraftStore()
	completions := newFakeCompletionStore()
	lookups := []DefinitionLookup{lookupMiss, lookupHit(def)}
	cfg := Config{Debounce: 20 * time.Millisecond, MinDirty: 1}

	userID := newUserID()
	ctx := context.Background()

	// Start and log set 1 of exercise 1.
	e, err := Start(ctx, lookups, drafts, completions, def.ID, userID, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ex1 := def.Exercises[0].ID
	if err := e.Store.UpdateSet(ex1, SetUpdate{SetNumber: 1, Weight: ptr(100.0), Reps: ptr(10), Completed: ptr(true)}); err != nil {
		t.Fatal(err)
	}

	// Wait past the debounce window for the draft to land.
	if !waitFor(2*time.Second, func() bool { s, _ := e.SaveStatus(); return s == StatusSaved }) {
		s, serr := e.SaveStatus()
		t.Fatalf("save status = %q (err %v), want saved", s, serr)
	}
	e.Close()

	// Reload: a fresh engine recovers the draft.
	e2, err := Start(ctx, lookups, drafts, completions, def.ID, userID, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e2.Close()

	s, ok := e2.Store.Get(ex1)
	if !ok {
		t.Fatal("exercise 1 missing after reload")
	}
	set := s.Strength.Sets[0]
	if set.Weight != 100 || set.Reps != 10 || !set.Completed {
		t.Fatalf("recovered set = %+v, want 100/10/completed", set)
	}

	// Complete the workout.
	id, err := e2.Complete(ctx, CompleteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if id2, done := e2.Completed(); !done || id2 != id {
		t.Errorf("Completed() = %s/%v, want %s/true", id2, done, id)
	}
	if got := len(completions.completions); got != 1 {
		t.Errorf("completion records = %d, want 1", got)
	}
	if got := completions.resultCount(); got != 1 {
		t.Errorf("result rows = %d, want 1 (only exercise 1 set 1 has data)", got)
	}
	if drafts.stored(def.ID, userID, DraftKind) != nil {
		t.Error("draft survived completion")
	}
}

// TestCompletionRemovesInFlightDraft verifies the draft lifecycle end:
// a save still in flight when the session completes must not land after
// the completion's draft delete and bring the draft back.
func TestCompletionRemovesInFlightDraft(t *testing.T) {
	def := strengthWorkout(1)
	drafts := newFakeDraftStore()
	release := make(chan struct{})
	slow := &blockingDraftStore{inner: drafts, release: release, entered: make(chan struct{}, 1)}
	completions := newFakeCompletionStore()
	cfg := Config{Debounce: 5 * time.Millisecond, MinDirty: 1}
	userID := newUserID()

	e, err := Start(context.Background(), []DefinitionLookup{lookupHit(def)}, slow, completions, def.ID, userID, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ex := def.Exercises[0].ID
	if err := e.Store.UpdateSet(ex, SetUpdate{SetNumber: 1, Weight: ptr(100.0), Completed: ptr(true)}); err != nil {
		t.Fatal(err)
	}
	<-slow.entered // the save is now held open in flight

	// Let the held save land while completion is running; its write
	// must not outlive the completion's draft cleanup.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	if _, err := e.Complete(context.Background(), CompleteOptions{}); err != nil {
		t.Fatal(err)
	}
	if d := drafts.stored(def.ID, userID, DraftKind); d != nil {
		t.Errorf("draft survived completion: %+v", d)
	}
	if got := len(completions.completions); got != 1 {
		t.Errorf("completion records = %d, want 1", got)
	}
}

// TestEngineCloseStopsAutosave verifies Close cancels the debounce so
// no save fires after the session is gone.
func TestEngineCloseStopsAutosave(t *testing.T) {
	def := strengthWorkout(1)
	drafts := newFakeDraftStore()
	cfg := Config{Debounce: 30 * time.Millisecond, MinDirty: 1}

	e, err := Start(context.Background(), []DefinitionLookup{lookupHit(def)}, drafts, newFakeCompletionStore(), def.ID, newUserID(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Store.UpdateSet(def.Exercises[0].ID, SetUpdate{SetNumber: 1, Weight: ptr(1.0)}); err != nil {
		t.Fatal(err)
	}
	e.Close()

	time.Sleep(100 * time.Millisecond)
	if got := drafts.putCount(); got != 0 {
		t.Errorf("puts after Close = %d, want 0", got)
	}
}
