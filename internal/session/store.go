// Package session implements the in-progress workout session engine:
// the per-exercise state store, the initializer that reconciles the
// workout definition with a recovered draft, the debounced draft
// autosaver, and the one-shot completion coordinator.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

// Store is the mutable per-exercise state of one active session. It is
// owned exclusively by that session's engine; all mutations are applied
// under a single lock in the order received, last write wins per field.
type Store struct {
	mu       sync.Mutex
	order    []uuid.UUID
	states   map[uuid.UUID]models.ExerciseState
	onChange func(models.Snapshot)
}

// NewStore builds the default state store for a workout definition:
// one entry per exercise, expanded, with strength sets sized to the
// prescribed count.
func NewStore(def *models.WorkoutDefinition) *Store {
	st := &Store{
		states: make(map[uuid.UUID]models.ExerciseState, len(def.Exercises)),
		order:  make([]uuid.UUID, 0, len(def.Exercises)),
	}
	for _, ex := range def.Exercises {
		st.order = append(st.order, ex.ID)
		st.states[ex.ID] = defaultState(ex)
	}
	return st
}

func defaultState(ex models.Exercise) models.ExerciseState {
	s := models.ExerciseState{
		ExerciseID:      ex.ID,
		Category:        ex.Category,
		CurrentExercise: ex.Catalog,
		Expanded:        true,
	}
	switch ex.Category {
	case models.CategoryStrength:
		n := ex.TargetSets
		if n < 1 {
			n = 1
		}
		sets := make([]models.SetEntry, n)
		for i := range sets {
			sets[i].SetNumber = i + 1
		}
		s.Strength = &models.StrengthState{Sets: sets}
	case models.CategoryCardio, models.CategoryRun:
		s.Cardio = &models.CardioState{}
	case models.CategoryFlexibility:
		s.Flexibility = &models.FlexibilityState{}
	}
	return s
}

// SetOnChange registers the hook invoked with a fresh snapshot after
// every mutation. The hook runs outside the store lock.
func (st *Store) SetOnChange(fn func(models.Snapshot)) {
	st.mu.Lock()
	st.onChange = fn
	st.mu.Unlock()
}

// Snapshot returns a deep copy of all exercise states.
func (st *Store) Snapshot() models.Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

func (st *Store) snapshotLocked() models.Snapshot {
	snap := make(models.Snapshot, len(st.states))
	for id, s := range st.states {
		snap[id] = s.Clone()
	}
	return snap
}

// Order returns exercise instance ids in definition order.
func (st *Store) Order() []uuid.UUID {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]uuid.UUID, len(st.order))
	copy(out, st.order)
	return out
}

// Get returns a copy of one exercise's state.
func (st *Store) Get(exerciseID uuid.UUID) (models.ExerciseState, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.states[exerciseID]
	if !ok {
		return models.ExerciseState{}, false
	}
	return s.Clone(), true
}

// SetUpdate is a partial update of one strength set; nil fields are
// left untouched.
type SetUpdate struct {
	SetNumber int
	Weight    *float64
	Reps      *int
	Completed *bool
}

// UpdateSet applies a partial update to one set of a strength exercise.
// A set number past the current list grows the list, so a user may log
// more sets than prescribed.
func (st *Store) UpdateSet(exerciseID uuid.UUID, u SetUpdate) error {
	return st.mutate(exerciseID, func(s *models.ExerciseState) error {
		if s.Strength == nil {
			return fmt.Errorf("exercise %s: %w", exerciseID, ErrWrongCategory)
		}
		if u.SetNumber < 1 {
			return fmt.Errorf("set number %d out of range", u.SetNumber)
		}
		for len(s.Strength.Sets) < u.SetNumber {
			s.Strength.Sets = append(s.Strength.Sets, models.SetEntry{SetNumber: len(s.Strength.Sets) + 1})
		}
		set := &s.Strength.Sets[u.SetNumber-1]
		if u.Weight != nil {
			set.Weight = *u.Weight
		}
		if u.Reps != nil {
			set.Reps = *u.Reps
		}
		if u.Completed != nil {
			set.Completed = *u.Completed
		}
		return nil
	})
}

// CardioUpdate is a partial update of a cardio or run exercise.
type CardioUpdate struct {
	Distance  *float64
	Duration  *string
	Location  *string
	Completed *bool
}

// UpdateCardio applies a partial update to a cardio or run exercise.
func (st *Store) UpdateCardio(exerciseID uuid.UUID, u CardioUpdate) error {
	return st.mutate(exerciseID, func(s *models.ExerciseState) error {
		if s.Cardio == nil {
			return fmt.Errorf("exercise %s: %w", exerciseID, ErrWrongCategory)
		}
		if u.Distance != nil {
			s.Cardio.Distance = *u.Distance
		}
		if u.Duration != nil {
			s.Cardio.Duration = *u.Duration
		}
		if u.Location != nil {
			s.Cardio.Location = *u.Location
		}
		if u.Completed != nil {
			s.Cardio.Completed = *u.Completed
		}
		return nil
	})
}

// FlexibilityUpdate is a partial update of a flexibility exercise.
type FlexibilityUpdate struct {
	Duration  *string
	Completed *bool
}

// UpdateFlexibility applies a partial update to a flexibility exercise.
func (st *Store) UpdateFlexibility(exerciseID uuid.UUID, u FlexibilityUpdate) error {
	return st.mutate(exerciseID, func(s *models.ExerciseState) error {
		if s.Flexibility == nil {
			return fmt.Errorf("exercise %s: %w", exerciseID, ErrWrongCategory)
		}
		if u.Duration != nil {
			s.Flexibility.Duration = *u.Duration
		}
		if u.Completed != nil {
			s.Flexibility.Completed = *u.Completed
		}
		return nil
	})
}

// ToggleExpanded flips the expansion flag and returns the new value.
func (st *Store) ToggleExpanded(exerciseID uuid.UUID) (bool, error) {
	var expanded bool
	err := st.mutate(exerciseID, func(s *models.ExerciseState) error {
		s.Expanded = !s.Expanded
		expanded = s.Expanded
		return nil
	})
	return expanded, err
}

// SwapExercise substitutes the catalog entry backing an exercise
// instance. Only the denormalized reference changes; entered set data
// is preserved.
func (st *Store) SwapExercise(exerciseID uuid.UUID, replacement models.CatalogEntry) error {
	return st.mutate(exerciseID, func(s *models.ExerciseState) error {
		s.CurrentExercise = replacement
		return nil
	})
}

// Overlay merges a recovered draft snapshot onto the current defaults.
// Draft values win field-by-field for exercises present in the draft;
// exercises absent from the draft keep their defaults (the definition
// may have changed since the draft was written). Draft entries whose
// category no longer matches the definition are dropped.
func (st *Store) Overlay(snap models.Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, cur := range st.states {
		d, ok := snap[id]
		if !ok || d.Category != cur.Category {
			continue
		}
		merged := d.Clone()
		merged.ExerciseID = cur.ExerciseID
		if merged.CurrentExercise.ID == uuid.Nil {
			merged.CurrentExercise = cur.CurrentExercise
		}
		// Pad strength sets back up to the prescribed count if the
		// draft recorded fewer.
		if merged.Strength != nil && cur.Strength != nil {
			for len(merged.Strength.Sets) < len(cur.Strength.Sets) {
				merged.Strength.Sets = append(merged.Strength.Sets,
					models.SetEntry{SetNumber: len(merged.Strength.Sets) + 1})
			}
		}
		st.states[id] = merged
	}
}

func (st *Store) mutate(exerciseID uuid.UUID, fn func(*models.ExerciseState) error) error {
	st.mu.Lock()
	s, ok := st.states[exerciseID]
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("exercise %s: %w", exerciseID, ErrUnknownExercise)
	}
	if err := fn(&s); err != nil {
		st.mu.Unlock()
		return err
	}
	st.states[exerciseID] = s
	hook := st.onChange
	var snap models.Snapshot
	if hook != nil {
		snap = st.snapshotLocked()
	}
	st.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	return nil
}
