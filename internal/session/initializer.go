package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

// DefaultInitTimeout bounds how long initialization waits for the draft
// fetch once the definition has resolved. Forward progress is preferred
// over a possibly-unmerged draft.
const DefaultInitTimeout = 5 * time.Second

// Initializer resolves the authoritative workout definition, recovers
// any saved draft, and produces the initial exercise state store.
type Initializer struct {
	Lookups []DefinitionLookup
	Drafts  DraftStore
	Kind    string
	Timeout time.Duration
	Log     *slog.Logger
}

// InitResult is a fully-populated session starting point.
type InitResult struct {
	Resolved ResolvedWorkout
	Store    *Store

	// DraftMerged reports whether a recovered draft was overlaid onto
	// the defaults. DraftTimedOut reports that the draft fetch was
	// still outstanding when the safety timeout fired; the session
	// starts from defaults in that case.
	DraftMerged  bool
	DraftTimedOut bool
}

// Init runs the lookup chain and the draft fetch and assembles the
// store. The definition is mandatory: if every strategy misses, Init
// fails with ErrNotFound. The draft is best-effort: a fetch that errors
// or outlasts the safety timeout is dropped and the session starts from
// defaults.
func (in *Initializer) Init(ctx context.Context, id, userID uuid.UUID) (*InitResult, error) {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	log := in.Log
	if log == nil {
		log = slog.Default()
	}

	type draftOutcome struct {
		draft *models.Draft
		err   error
	}
	draftCh := make(chan draftOutcome, 1)

	// Drafts are keyed by the workout definition id. The session is
	// usually reached with that id directly, so the fetch starts
	// optimistically in parallel with the lookup chain; when the chain
	// resolves the entry id to a different definition the stale fetch
	// is discarded and re-issued under the resolved id.
	fetch := func(ch chan draftOutcome, workoutID uuid.UUID) {
		d, err := in.Drafts.GetDraft(ctx, workoutID, userID, in.Kind)
		ch <- draftOutcome{draft: d, err: err}
	}
	go fetch(draftCh, id)

	resolved, err := in.resolve(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	draftID := id
	if resolved.Definition != nil && resolved.Definition.ID != id {
		draftID = resolved.Definition.ID
		stale := draftCh
		go func() { <-stale }()
		draftCh = make(chan draftOutcome, 1)
		go fetch(draftCh, draftID)
	}

	res := &InitResult{
		Resolved: *resolved,
		Store:    NewStore(resolved.Definition),
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case out := <-draftCh:
		switch {
		case out.err != nil:
			// Non-fatal: the session continues from defaults.
			log.Warn("draft fetch failed, starting from defaults", "workout", draftID, "error", out.err)
		case out.draft != nil && len(out.draft.Snapshot) > 0:
			res.Store.Overlay(out.draft.Snapshot)
			res.DraftMerged = true
		}
	case <-deadline.C:
		res.DraftTimedOut = true
		log.Warn("draft fetch outlasted safety timeout, starting from defaults", "workout", draftID, "timeout", timeout)
		// Drain the late result so the goroutine can exit; a draft
		// arriving after this point is never merged.
		go func() { <-draftCh }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return res, nil
}

// resolve walks the ordered fallback chain. The first hit wins;
// strategy errors are collected but do not stop the walk, so a flaky
// primary route still falls through to the others.
func (in *Initializer) resolve(ctx context.Context, id, userID uuid.UUID) (*ResolvedWorkout, error) {
	var errs []error
	for _, lookup := range in.Lookups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rw, err := lookup(ctx, id, userID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rw != nil && rw.Definition != nil {
			return rw, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrNotFound}, errs...)...)
	}
	return nil, ErrNotFound
}
