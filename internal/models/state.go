package models

import (
	"time"

	"github.com/google/uuid"
)

// SetEntry is one editable strength set.
type SetEntry struct {
	SetNumber int     `json:"set_number"`
	Weight    float64 `json:"weight"`
	Reps      int     `json:"reps"`
	Completed bool    `json:"completed"`
}

// StrengthState holds the editable fields of a strength exercise.
type StrengthState struct {
	Sets []SetEntry `json:"sets"`
}

// CardioState holds the editable fields of a cardio or run exercise.
type CardioState struct {
	Distance  float64 `json:"distance"`
	Duration  string  `json:"duration"`
	Location  string  `json:"location"`
	Completed bool    `json:"completed"`
}

// FlexibilityState holds the editable fields of a flexibility exercise.
type FlexibilityState struct {
	Duration  string `json:"duration"`
	Completed bool   `json:"completed"`
}

// ExerciseState is the tagged variant tracked per exercise instance.
// Exactly one of Strength, Cardio, Flexibility is non-nil, matching
// Category. CurrentExercise may differ from the definition's catalog
// entry after a mid-session swap; entered data survives the swap.
type ExerciseState struct {
	ExerciseID      uuid.UUID         `json:"exercise_id"`
	Category        Category          `json:"category"`
	CurrentExercise CatalogEntry      `json:"current_exercise"`
	Expanded        bool              `json:"expanded"`
	Strength        *StrengthState    `json:"strength,omitempty"`
	Cardio          *CardioState      `json:"cardio,omitempty"`
	Flexibility     *FlexibilityState `json:"flexibility,omitempty"`
}

// Clone returns a deep copy. Snapshots handed to the autosaver must not
// alias live store state.
func (s ExerciseState) Clone() ExerciseState {
	out := s
	if s.Strength != nil {
		sets := make([]SetEntry, len(s.Strength.Sets))
		copy(sets, s.Strength.Sets)
		out.Strength = &StrengthState{Sets: sets}
	}
	if s.Cardio != nil {
		c := *s.Cardio
		out.Cardio = &c
	}
	if s.Flexibility != nil {
		f := *s.Flexibility
		out.Flexibility = &f
	}
	return out
}

// HasData reports whether the user entered anything worth persisting:
// any completed set, or any non-zero weight/reps/distance/duration.
func (s ExerciseState) HasData() bool {
	switch {
	case s.Strength != nil:
		for _, set := range s.Strength.Sets {
			if set.Completed || set.Weight != 0 || set.Reps != 0 {
				return true
			}
		}
	case s.Cardio != nil:
		return s.Cardio.Completed || s.Cardio.Distance != 0 || s.Cardio.Duration != ""
	case s.Flexibility != nil:
		return s.Flexibility.Completed || s.Flexibility.Duration != ""
	}
	return false
}

// Snapshot is the serializable form of the whole exercise state store.
type Snapshot map[uuid.UUID]ExerciseState

// Draft is a recoverable, non-authoritative snapshot of in-progress
// edits, addressed by (workout, kind).
type Draft struct {
	WorkoutID uuid.UUID `json:"workout_id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Snapshot  Snapshot  `json:"snapshot"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunSample is one append-only GPS fix attached to a run exercise.
type RunSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Time      time.Time `json:"time"`
}
