package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

var (
	// ErrNotFound means the workout definition could not be resolved
	// through any lookup strategy. Fatal to the session.
	ErrNotFound = errors.New("workout not found")

	// ErrUnknownExercise means a mutation addressed an exercise the
	// definition does not contain.
	ErrUnknownExercise = errors.New("unknown exercise")

	// ErrWrongCategory means a mutation used the wrong update path for
	// the exercise's category.
	ErrWrongCategory = errors.New("wrong exercise category")

	// ErrCompletionInFlight means a completion attempt is already
	// running for this session instance.
	ErrCompletionInFlight = errors.New("completion already in flight")
)

// ResolvedWorkout is the outcome of the definition lookup chain: the
// authoritative definition, plus any completion record already on file
// when the session was reached through a completion route.
type ResolvedWorkout struct {
	Definition *models.WorkoutDefinition
	Completion *models.CompletionRecord
}

// DefinitionLookup is one strategy in the ordered fallback chain that
// resolves a session identifier to a workout definition. Returning
// (nil, nil) means "not found here, try the next strategy".
type DefinitionLookup func(ctx context.Context, id, userID uuid.UUID) (*ResolvedWorkout, error)

// DraftStore persists recoverable snapshots of in-progress edits. A
// missing draft is (nil, nil), not an error. Implementations must
// return failures rather than panic when the backing store is
// unreachable.
type DraftStore interface {
	GetDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) (*models.Draft, error)
	PutDraft(ctx context.Context, draft *models.Draft) error
	DeleteDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) error
}

// CompletionStore persists the terminal record of a finished session
// and its per-set results. CreateCompletion must resolve the
// duplicate-submission race to a single surviving row and return that
// row's id to every caller. UpsertSetResult must be idempotent per
// (completion, exercise, set number).
type CompletionStore interface {
	FindCompletion(ctx context.Context, workoutID, userID uuid.UUID) (uuid.UUID, bool, error)
	CreateCompletion(ctx context.Context, rec *models.CompletionRecord) (uuid.UUID, error)
	UpsertSetResult(ctx context.Context, res models.SetResult) error
}
