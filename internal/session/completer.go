package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
	"golang.org/x/sync/errgroup"
)

// resultWriteConcurrency bounds the parallel SetResult writes during
// finalization.
const resultWriteConcurrency = 4

// Completer converts the final exercise state store into durable
// SetResults and exactly one CompletionRecord. It is one-shot per
// session instance: a local guard stops duplicate clicks, and the
// remote existence check resolves duplicate tabs to the same record.
type Completer struct {
	Completions CompletionStore
	Drafts      DraftStore
	Kind        string
	Log         *slog.Logger

	mu           sync.Mutex
	inFlight     bool
	done         bool
	completionID uuid.UUID
}

// CompleteOptions carries the user's optional subjective feedback.
type CompleteOptions struct {
	Rating *int
	Notes  string
}

// Done reports whether this session instance already finalized, and the
// completion id if so.
func (c *Completer) Done() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completionID, c.done
}

// Complete finalizes the session. Safe to call again after a partial
// failure: results already written are upserted, not duplicated. A call
// after success returns the same completion id. A call while another is
// running returns ErrCompletionInFlight.
func (c *Completer) Complete(ctx context.Context, workoutID, userID uuid.UUID, store *Store, opts CompleteOptions) (uuid.UUID, error) {
	c.mu.Lock()
	if c.done {
		id := c.completionID
		c.mu.Unlock()
		return id, nil
	}
	if c.inFlight {
		c.mu.Unlock()
		return uuid.Nil, ErrCompletionInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	id, err := c.run(ctx, workoutID, userID, store, opts)

	c.mu.Lock()
	c.inFlight = false
	if err == nil {
		c.done = true
		c.completionID = id
	}
	c.mu.Unlock()
	return id, err
}

func (c *Completer) run(ctx context.Context, workoutID, userID uuid.UUID, store *Store, opts CompleteOptions) (uuid.UUID, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	// Duplicate-tab guard: reuse an existing record rather than error.
	id, found, err := c.Completions.FindCompletion(ctx, workoutID, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("checking for existing completion: %w", err)
	}
	if found {
		log.Info("reusing existing completion", "workout", workoutID, "completion", id)
	} else {
		id, err = c.Completions.CreateCompletion(ctx, &models.CompletionRecord{
			WorkoutID:   workoutID,
			UserID:      userID,
			CompletedAt: time.Now().UTC(),
			Rating:      opts.Rating,
			Notes:       opts.Notes,
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("creating completion: %w", err)
		}
	}

	results := buildResults(id, store.Snapshot())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resultWriteConcurrency)
	for _, res := range results {
		g.Go(func() error {
			if err := c.Completions.UpsertSetResult(gctx, res); err != nil {
				return fmt.Errorf("writing result for exercise %s set %d: %w", res.ExerciseID, res.SetNumber, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// The session stays open; the user retries and already-written
		// results are upserted in place.
		return uuid.Nil, fmt.Errorf("finalizing session: %w", err)
	}

	if err := c.Drafts.DeleteDraft(ctx, workoutID, userID, c.Kind); err != nil {
		// The completion is durable; a leftover draft is harmless and
		// cleaned up on the next visit.
		log.Warn("deleting draft after completion failed", "workout", workoutID, "error", err)
	}

	log.Info("session completed", "workout", workoutID, "completion", id, "results", len(results))
	return id, nil
}

// buildResults expands the snapshot into result rows: one per strength
// set carrying data, one aggregate per cardio/run/flexibility exercise
// with data. Exercises with nothing entered produce no rows.
func buildResults(completionID uuid.UUID, snap models.Snapshot) []models.SetResult {
	var out []models.SetResult
	for exID, s := range snap {
		if !s.HasData() {
			continue
		}
		switch {
		case s.Strength != nil:
			for _, set := range s.Strength.Sets {
				if !set.Completed && set.Weight == 0 && set.Reps == 0 {
					continue
				}
				out = append(out, models.SetResult{
					CompletionID: completionID,
					ExerciseID:   exID,
					SetNumber:    set.SetNumber,
					Weight:       set.Weight,
					Reps:         set.Reps,
					Completed:    set.Completed,
				})
			}
		case s.Cardio != nil:
			out = append(out, models.SetResult{
				CompletionID: completionID,
				ExerciseID:   exID,
				SetNumber:    1,
				Distance:     s.Cardio.Distance,
				Duration:     s.Cardio.Duration,
				Completed:    s.Cardio.Completed,
			})
		case s.Flexibility != nil:
			out = append(out, models.SetResult{
				CompletionID: completionID,
				ExerciseID:   exID,
				SetNumber:    1,
				Duration:     s.Flexibility.Duration,
				Completed:    s.Flexibility.Completed,
			})
		}
	}
	return out
}
