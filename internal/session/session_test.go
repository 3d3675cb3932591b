package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

// Shared in-memory fakes for the storage contracts.

type fakeDraftStore struct {
	mu      sync.Mutex
	drafts  map[string]*models.Draft
	puts    int
	gets    int
	deletes int

	getErr   error
	putErr   error
	getDelay time.Duration
}

func newFakeDraftStore() *fakeDraftStore {
	return &fakeDraftStore{drafts: make(map[string]*models.Draft)}
}

func draftKey(workoutID, userID uuid.UUID, kind string) string {
	return workoutID.String() + "/" + userID.String() + "/" + kind
}

func (f *fakeDraftStore) GetDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) (*models.Draft, error) {
	if f.getDelay > 0 {
		select {
		case <-time.After(f.getDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.drafts[draftKey(workoutID, userID, kind)]
	if !ok {
		return nil, nil
	}
	return d, nil
}

func (f *fakeDraftStore) PutDraft(ctx context.Context, draft *models.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.drafts[draftKey(draft.WorkoutID, draft.UserID, draft.Kind)] = draft
	return nil
}

func (f *fakeDraftStore) DeleteDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.drafts, draftKey(workoutID, userID, kind))
	return nil
}

func (f *fakeDraftStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *fakeDraftStore) stored(workoutID, userID uuid.UUID, kind string) *models.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[draftKey(workoutID, userID, kind)]
}

func (f *fakeDraftStore) setPutErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErr = err
}

// blockingDraftStore holds the first PutDraft open until released, so
// tests can observe in-flight behavior. Tracks peak concurrency.
type blockingDraftStore struct {
	inner   *fakeDraftStore
	release chan struct{}
	entered chan struct{}

	mu      sync.Mutex
	active  int
	peak    int
	blocked bool
}

func (b *blockingDraftStore) GetDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) (*models.Draft, error) {
	return b.inner.GetDraft(ctx, workoutID, userID, kind)
}

func (b *blockingDraftStore) PutDraft(ctx context.Context, draft *models.Draft) error {
	b.mu.Lock()
	b.active++
	if b.active > b.peak {
		b.peak = b.active
	}
	first := !b.blocked
	b.blocked = true
	b.mu.Unlock()

	if first {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-b.release
	}

	err := b.inner.PutDraft(ctx, draft)

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return err
}

func (b *blockingDraftStore) DeleteDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) error {
	return b.inner.DeleteDraft(ctx, workoutID, userID, kind)
}

func (b *blockingDraftStore) maxConcurrent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

type fakeCompletionStore struct {
	mu          sync.Mutex
	completions map[string]uuid.UUID // workout/user -> completion id
	results     map[string]models.SetResult
	creates     int
	failWrites  map[string]int // exercise/set key -> remaining failures
}

func newFakeCompletionStore() *fakeCompletionStore {
	return &fakeCompletionStore{
		completions: make(map[string]uuid.UUID),
		results:     make(map[string]models.SetResult),
		failWrites:  make(map[string]int),
	}
}

func complKey(workoutID, userID uuid.UUID) string {
	return workoutID.String() + "/" + userID.String()
}

func resultKey(res models.SetResult) string {
	return res.CompletionID.String() + "/" + res.ExerciseID.String() + "/" + strconv.Itoa(res.SetNumber)
}

func (f *fakeCompletionStore) FindCompletion(ctx context.Context, workoutID, userID uuid.UUID) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.completions[complKey(workoutID, userID)]
	return id, ok, nil
}

func (f *fakeCompletionStore) CreateCompletion(ctx context.Context, rec *models.CompletionRecord) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	key := complKey(rec.WorkoutID, rec.UserID)
	// Mirrors the ON CONFLICT DO NOTHING + re-read contract: the race
	// resolves to the surviving row's id.
	if id, ok := f.completions[key]; ok {
		return id, nil
	}
	id := uuid.New()
	f.completions[key] = id
	return id, nil
}

func (f *fakeCompletionStore) UpsertSetResult(ctx context.Context, res models.SetResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fk := res.ExerciseID.String() + "/" + strconv.Itoa(res.SetNumber)
	if n := f.failWrites[fk]; n > 0 {
		f.failWrites[fk] = n - 1
		return errors.New("write failed")
	}
	f.results[resultKey(res)] = res
	return nil
}

func (f *fakeCompletionStore) resultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

// Test workout fixtures.

func strengthWorkout(n int) *models.WorkoutDefinition {
	def := &models.WorkoutDefinition{ID: uuid.New(), Name: "Push Day"}
	for i := 0; i < n; i++ {
		def.Exercises = append(def.Exercises, models.Exercise{
			ID:       uuid.New(),
			Category: models.CategoryStrength,
			Catalog: models.CatalogEntry{
				ID:          uuid.New(),
				Name:        "Bench Press",
				MuscleGroup: "chest",
			},
			TargetSets: 3,
			TargetReps: 10,
			Position:   i,
		})
	}
	return def
}

func mixedWorkout() *models.WorkoutDefinition {
	def := strengthWorkout(1)
	def.Exercises = append(def.Exercises,
		models.Exercise{
			ID:       uuid.New(),
			Category: models.CategoryRun,
			Catalog:  models.CatalogEntry{ID: uuid.New(), Name: "Outdoor Run"},
			Position: 1,
		},
		models.Exercise{
			ID:       uuid.New(),
			Category: models.CategoryFlexibility,
			Catalog:  models.CatalogEntry{ID: uuid.New(), Name: "Hamstring Stretch"},
			Position: 2,
		},
	)
	return def
}

func ptr[T any](v T) *T { return &v }

func newUserID() uuid.UUID { return uuid.New() }

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
