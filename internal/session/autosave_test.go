package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testSaver(drafts *fakeDraftStore, cfg AutosaverConfig) (*Autosaver, uuid.UUID, uuid.UUID) {
	workoutID, userID := uuid.New(), uuid.New()
	return NewAutosaver(drafts, workoutID, userID, DraftKind, cfg, nil), workoutID, userID
}

// TestDebounceCoalesces verifies N mutations inside one quiet period
// produce exactly one save.
func TestDebounceCoalesces(t *testing.T) {
	drafts := newFakeDraftStore()
	a, workoutID, userID := testSaver(drafts, AutosaverConfig{
		Debounce: 30 * time.Millisecond,
		MinDirty: 1,
	})
	defer a.Stop()

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	exID := def.Exercises[0].ID

	for i := 1; i <= 10; i++ {
		w := float64(i * 10)
		if err := st.UpdateSet(exID, SetUpdate{SetNumber: 1, Weight: &w}); err != nil {
			t.Fatal(err)
		}
	}

	if !waitFor(time.Second, func() bool { return drafts.putCount() == 1 }) {
		t.Fatalf("puts = %d, want exactly 1", drafts.putCount())
	}
	// Quiet period with no further mutations: still one save.
	time.Sleep(100 * time.Millisecond)
	if got := drafts.putCount(); got != 1 {
		t.Errorf("puts after quiet period = %d, want 1", got)
	}

	d := drafts.stored(workoutID, userID, DraftKind)
	if d == nil {
		t.Fatal("no draft stored")
	}
	if w := d.Snapshot[exID].Strength.Sets[0].Weight; w != 100 {
		t.Errorf("stored weight = %v, want the last write (100)", w)
	}
}

// TestMinDirtyThreshold verifies the first save requires a minimum
// number of accumulated changes.
func TestMinDirtyThreshold(t *testing.T) {
	drafts := newFakeDraftStore()
	a, _, _ := testSaver(drafts, AutosaverConfig{
		Debounce: 10 * time.Millisecond,
		MinDirty: 3,
	})
	defer a.Stop()

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	exID := def.Exercises[0].ID

	// Two mutations: below the threshold, no save.
	st.UpdateSet(exID, SetUpdate{SetNumber: 1, Weight: ptr(10.0)})
	st.UpdateSet(exID, SetUpdate{SetNumber: 1, Weight: ptr(20.0)})
	time.Sleep(60 * time.Millisecond)
	if got := drafts.putCount(); got != 0 {
		t.Fatalf("puts below threshold = %d, want 0", got)
	}

	// Third mutation crosses it.
	st.UpdateSet(exID, SetUpdate{SetNumber: 1, Weight: ptr(30.0)})
	if !waitFor(time.Second, func() bool { return drafts.putCount() == 1 }) {
		t.Fatalf("puts = %d, want 1 after crossing threshold", drafts.putCount())
	}
}

// TestStatusTransitions verifies idle -> saved on the happy path.
func TestStatusTransitions(t *testing.T) {
	drafts := newFakeDraftStore()
	a, _, _ := testSaver(drafts, AutosaverConfig{
		Debounce: 10 * time.Millisecond,
		MinDirty: 1,
	})
	defer a.Stop()

	if status, _ := a.Status(); status != StatusIdle {
		t.Errorf("initial status = %q, want idle", status)
	}

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	st.UpdateSet(def.Exercises[0].ID, SetUpdate{SetNumber: 1, Weight: ptr(1.0)})

	if !waitFor(time.Second, func() bool { s, _ := a.Status(); return s == StatusSaved }) {
		s, err := a.Status()
		t.Fatalf("status = %q (err %v), want saved", s, err)
	}
}

// TestRetryThenRecover verifies automatic bounded retries with the save
// counter reset on success.
func TestRetryThenRecover(t *testing.T) {
	drafts := newFakeDraftStore()
	drafts.setPutErr(errors.New("network partition"))
	a, _, _ := testSaver(drafts, AutosaverConfig{
		Debounce:     10 * time.Millisecond,
		RetryBackoff: 20 * time.Millisecond,
		MinDirty:     1,
	})
	defer a.Stop()

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	st.UpdateSet(def.Exercises[0].ID, SetUpdate{SetNumber: 1, Weight: ptr(1.0)})

	// First attempt fails and surfaces as error status.
	if !waitFor(time.Second, func() bool { s, _ := a.Status(); return s == StatusError }) {
		t.Fatal("status never reached error")
	}

	// The store recovers; an automatic retry lands the save.
	drafts.setPutErr(nil)
	if !waitFor(2*time.Second, func() bool { s, _ := a.Status(); return s == StatusSaved }) {
		s, err := a.Status()
		t.Fatalf("status = %q (err %v), want saved after retry", s, err)
	}
}

// TestRetriesExhausted verifies automatic retries stop after the bound
// and the failure waits for a manual Flush.
func TestRetriesExhausted(t *testing.T) {
	drafts := newFakeDraftStore()
	drafts.setPutErr(errors.New("still down"))
	a, _, _ := testSaver(drafts, AutosaverConfig{
		Debounce:     5 * time.Millisecond,
		RetryBackoff: 5 * time.Millisecond,
		MinDirty:     1,
	})
	defer a.Stop()

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	st.UpdateSet(def.Exercises[0].ID, SetUpdate{SetNumber: 1, Weight: ptr(1.0)})

	// 1 initial attempt + 3 automatic retries, then nothing.
	if !waitFor(2*time.Second, func() bool { return drafts.putCount() >= 4 }) {
		t.Fatalf("attempts = %d, want 4", drafts.putCount())
	}
	time.Sleep(50 * time.Millisecond)
	if got := drafts.putCount(); got != 4 {
		t.Errorf("attempts after exhaustion = %d, want exactly 4", got)
	}
	if s, err := a.Status(); s != StatusError || err == nil {
		t.Errorf("status = %q err = %v, want surfaced error", s, err)
	}

	// Manual retry succeeds once the store is back.
	drafts.setPutErr(nil)
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if s, _ := a.Status(); s != StatusSaved {
		t.Errorf("status after Flush = %q, want saved", s)
	}
}

// TestMutationDuringFlightExtendsWindow verifies at most one save in
// flight: a mutation landing mid-save re-arms the debounce instead of
// firing concurrently, and its data is persisted by the follow-up save.
func TestMutationDuringFlightExtendsWindow(t *testing.T) {
	drafts := newFakeDraftStore()
	release := make(chan struct{})
	slow := &blockingDraftStore{inner: drafts, release: release, entered: make(chan struct{}, 1)}

	workoutID, userID := uuid.New(), uuid.New()
	a := NewAutosaver(slow, workoutID, userID, DraftKind, AutosaverConfig{
		Debounce: 10 * time.Millisecond,
		MinDirty: 1,
	}, nil)
	defer a.Stop()

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	exID := def.Exercises[0].ID

	st.UpdateSet(exID, SetUpdate{SetNumber: 1, Weight: ptr(10.0)})
	<-slow.entered // first save is now in flight

	// Mutation during flight: must not start a second concurrent save.
	st.UpdateSet(exID, SetUpdate{SetNumber: 1, Weight: ptr(99.0)})
	close(release)

	if !waitFor(2*time.Second, func() bool { return drafts.putCount() == 2 }) {
		t.Fatalf("puts = %d, want 2 (initial + deferred)", drafts.putCount())
	}
	d := drafts.stored(workoutID, userID, DraftKind)
	if w := d.Snapshot[exID].Strength.Sets[0].Weight; w != 99 {
		t.Errorf("final stored weight = %v, want 99", w)
	}
	if peak := slow.maxConcurrent(); peak > 1 {
		t.Errorf("concurrent saves = %d, want at most 1", peak)
	}
}

// TestStopCancelsTimer verifies no save fires after Stop.
func TestStopCancelsTimer(t *testing.T) {
	drafts := newFakeDraftStore()
	a, _, _ := testSaver(drafts, AutosaverConfig{
		Debounce: 20 * time.Millisecond,
		MinDirty: 1,
	})

	def := strengthWorkout(1)
	st := NewStore(def)
	st.SetOnChange(a.Schedule)
	st.UpdateSet(def.Exercises[0].ID, SetUpdate{SetNumber: 1, Weight: ptr(1.0)})

	a.Stop()
	time.Sleep(80 * time.Millisecond)
	if got := drafts.putCount(); got != 0 {
		t.Errorf("puts after Stop = %d, want 0", got)
	}
}
