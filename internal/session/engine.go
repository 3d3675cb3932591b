package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/run"
)

// DraftKind distinguishes session drafts from other draft families
// sharing the drafts table.
const DraftKind = "session"

// Config tunes one session engine.
type Config struct {
	Debounce     time.Duration
	RetryBackoff time.Duration
	MinDirty     int
	InitTimeout  time.Duration
}

// Engine is one user's active attempt at a workout: the state store
// wired to its autosaver, the completion coordinator, and an optional
// run recorder. Engines own their timers and must be closed when the
// session leaves the screen.
type Engine struct {
	WorkoutID uuid.UUID
	UserID    uuid.UUID
	Resolved  ResolvedWorkout
	Store     *Store

	saver     *Autosaver
	completer *Completer
	recorder  *run.Recorder
	log       *slog.Logger
}

// Start resolves the workout, recovers any draft, and returns a running
// engine. Fatal only when the definition cannot be resolved.
func Start(ctx context.Context, lookups []DefinitionLookup, drafts DraftStore, completions CompletionStore,
	id, userID uuid.UUID, cfg Config, log *slog.Logger) (*Engine, error) {

	if log == nil {
		log = slog.Default()
	}

	init := &Initializer{
		Lookups: lookups,
		Drafts:  drafts,
		Kind:    DraftKind,
		Timeout: cfg.InitTimeout,
		Log:     log,
	}
	res, err := init.Init(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	workoutID := res.Resolved.Definition.ID
	e := &Engine{
		WorkoutID: workoutID,
		UserID:    userID,
		Resolved:  res.Resolved,
		Store:     res.Store,
		saver: NewAutosaver(drafts, workoutID, userID, DraftKind, AutosaverConfig{
			Debounce:     cfg.Debounce,
			RetryBackoff: cfg.RetryBackoff,
			MinDirty:     cfg.MinDirty,
		}, log),
		completer: &Completer{
			Completions: completions,
			Drafts:      drafts,
			Kind:        DraftKind,
			Log:         log,
		},
		recorder: run.NewRecorder(log),
		log:      log,
	}
	e.Store.SetOnChange(e.saver.Schedule)

	log.Info("session started",
		"workout", workoutID, "user", userID,
		"exercises", len(res.Resolved.Definition.Exercises),
		"draft_merged", res.DraftMerged, "draft_timed_out", res.DraftTimedOut)
	return e, nil
}

// SaveStatus exposes the autosaver's status for the UI.
func (e *Engine) SaveStatus() (SaveStatus, error) {
	return e.saver.Status()
}

// FlushDraft forces an immediate draft save (manual retry).
func (e *Engine) FlushDraft(ctx context.Context) error {
	return e.saver.Flush(ctx)
}

// Recorder returns the engine's run recorder.
func (e *Engine) Recorder() *run.Recorder {
	return e.recorder
}

// Complete finalizes the session. See Completer.Complete. On success
// the autosaver is stopped and the draft deleted once more: a save
// already in flight when the completer ran its delete would otherwise
// land afterwards and resurrect the draft.
func (e *Engine) Complete(ctx context.Context, opts CompleteOptions) (uuid.UUID, error) {
	id, err := e.completer.Complete(ctx, e.WorkoutID, e.UserID, e.Store, opts)
	if err != nil {
		return id, err
	}
	e.saver.Stop()
	if derr := e.completer.Drafts.DeleteDraft(ctx, e.WorkoutID, e.UserID, e.completer.Kind); derr != nil {
		e.log.Warn("draft cleanup after completion failed", "workout", e.WorkoutID, "error", derr)
	}
	return id, nil
}

// Completed reports whether this engine already finalized.
func (e *Engine) Completed() (uuid.UUID, bool) {
	return e.completer.Done()
}

// Close cancels the debounce timer and any active location watch.
// Leaking either would leave a callback mutating state after the
// owning session is gone.
func (e *Engine) Close() {
	e.saver.Stop()
	e.recorder.Cancel()
}
