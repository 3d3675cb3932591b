package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

// SaveStatus is the externally visible state of the draft autosaver.
type SaveStatus string

const (
	StatusIdle   SaveStatus = "idle"
	StatusSaving SaveStatus = "saving"
	StatusSaved  SaveStatus = "saved"
	StatusError  SaveStatus = "error"
)

const (
	// DefaultDebounce is the quiet period required before a save fires.
	DefaultDebounce = 1500 * time.Millisecond
	// DefaultRetryBackoff separates automatic retries after a failed save.
	DefaultRetryBackoff = 5 * time.Second
	// DefaultMinDirty is the number of mutations required before the
	// first save of a session; earlier snapshots are effectively still
	// the initial defaults and not worth persisting.
	DefaultMinDirty = 2

	maxAutoRetries = 3
	saveTimeout    = 10 * time.Second
)

// Autosaver write-backs the exercise state store to the draft store
// with bounded staleness: saves are debounced, at most one is in flight
// at a time, and failures retry automatically a bounded number of times
// before surfacing for manual retry.
type Autosaver struct {
	drafts    DraftStore
	workoutID uuid.UUID
	userID    uuid.UUID
	kind      string
	debounce  time.Duration
	backoff   time.Duration
	minDirty  int
	log       *slog.Logger

	mu        sync.Mutex
	landed    sync.Cond // signaled when an in-flight save returns
	pending   models.Snapshot
	dirty     int
	everSaved bool
	inFlight  bool
	deferred  bool // mutation arrived mid-flight; re-arm once it lands
	retries   int
	status    SaveStatus
	lastErr   error
	timer     *time.Timer
	stopped   bool
}

// AutosaverConfig tunes an Autosaver; zero values fall back to defaults.
type AutosaverConfig struct {
	Debounce     time.Duration
	RetryBackoff time.Duration
	MinDirty     int
}

// NewAutosaver creates an autosaver for one session's draft.
func NewAutosaver(drafts DraftStore, workoutID, userID uuid.UUID, kind string, cfg AutosaverConfig, log *slog.Logger) *Autosaver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.MinDirty <= 0 {
		cfg.MinDirty = DefaultMinDirty
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Autosaver{
		drafts:    drafts,
		workoutID: workoutID,
		userID:    userID,
		kind:      kind,
		debounce:  cfg.Debounce,
		backoff:   cfg.RetryBackoff,
		minDirty:  cfg.MinDirty,
		log:       log,
		status:    StatusIdle,
	}
	a.landed.L = &a.mu
	return a
}

// Schedule records the latest snapshot and (re)arms the debounce timer.
// Called on every store mutation; N mutations within one quiet period
// produce a single save. A mutation arriving while a save is in flight
// extends the window instead of firing a concurrent save.
func (a *Autosaver) Schedule(snap models.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.pending = snap
	a.dirty++

	// Until the first successful save, require a minimum number of
	// accumulated changes so a barely-touched session never persists
	// what is effectively the initial defaults.
	if !a.everSaved && a.dirty < a.minDirty {
		return
	}
	if a.inFlight {
		a.deferred = true
		return
	}
	a.armLocked(a.debounce)
}

// Flush forces an immediate save of the latest snapshot, bypassing the
// debounce window. Used for the user-facing manual retry and when the
// session view is leaving the screen. Resets the automatic retry budget.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped || a.pending == nil {
		a.mu.Unlock()
		return nil
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.retries = 0
	a.mu.Unlock()
	return a.save(ctx)
}

// Status returns the current save status and, when status is
// StatusError, the error that put it there.
func (a *Autosaver) Status() (SaveStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.lastErr
}

// Stop cancels any pending debounce or retry timer and waits for an
// in-flight save to return. Once Stop returns, no write-back is running
// and none will start; snapshots scheduled afterwards are ignored.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	for a.inFlight {
		a.landed.Wait()
	}
}

// armLocked (re)starts the fire timer. Caller holds a.mu.
func (a *Autosaver) armLocked(d time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		// Failures are surfaced through Status; retry timers are armed
		// inside save.
		_ = a.save(ctx)
	})
}

// save performs one write-back. At most one runs at a time.
func (a *Autosaver) save(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped || a.inFlight || a.pending == nil {
		a.mu.Unlock()
		return nil
	}
	snap := a.pending
	a.inFlight = true
	a.deferred = false
	a.status = StatusSaving
	a.mu.Unlock()

	err := a.drafts.PutDraft(ctx, &models.Draft{
		WorkoutID: a.workoutID,
		UserID:    a.userID,
		Kind:      a.kind,
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC(),
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight = false
	a.landed.Broadcast()

	if err != nil {
		a.retries++
		a.status = StatusError
		a.lastErr = err
		if !a.stopped && a.retries <= maxAutoRetries {
			a.log.Warn("draft save failed, retrying",
				"workout", a.workoutID, "attempt", a.retries, "backoff", a.backoff, "error", err)
			a.armLocked(a.backoff)
		} else {
			a.log.Error("draft save failed, waiting for manual retry",
				"workout", a.workoutID, "attempts", a.retries, "error", err)
		}
		return err
	}

	a.status = StatusSaved
	a.lastErr = nil
	a.retries = 0
	a.everSaved = true
	if a.deferred {
		// A mutation landed mid-flight; its snapshot is still pending,
		// so restart the debounce window for it.
		a.deferred = false
		if !a.stopped {
			a.armLocked(a.debounce)
		}
	} else {
		a.pending = nil
	}
	return nil
}
