package models

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies how an exercise is tracked during a session.
type Category string

const (
	CategoryStrength    Category = "strength"
	CategoryCardio      Category = "cardio"
	CategoryFlexibility Category = "flexibility"
	CategoryRun         Category = "run"
)

// CatalogEntry is a denormalized reference into the exercise catalog.
// Carried on each exercise instance so a swap can replace name/media
// without touching entered set data.
type CatalogEntry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	MediaURL    string    `json:"media_url"`
	MuscleGroup string    `json:"muscle_group"`
}

// Exercise is one row of a workout definition.
type Exercise struct {
	ID         uuid.UUID    `json:"id"` // exercise-instance id, stable across swaps
	Category   Category     `json:"category"`
	Catalog    CatalogEntry `json:"catalog"`
	TargetSets int          `json:"target_sets"`
	TargetReps int          `json:"target_reps"`
	Position   int          `json:"position"`
}

// WorkoutDefinition is the authoritative description of a workout.
// Immutable once fetched; the session engine never writes it back.
type WorkoutDefinition struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	CoachID    *uuid.UUID `json:"coach_id,omitempty"` // nil for standalone workouts
	Standalone bool       `json:"standalone"`
	Exercises  []Exercise `json:"exercises"`
}

// CompletionRecord is the authoritative, terminal record of a finished
// session. At most one exists per (workout, user).
type CompletionRecord struct {
	ID          uuid.UUID `json:"id"`
	WorkoutID   uuid.UUID `json:"workout_id"`
	UserID      uuid.UUID `json:"user_id"`
	CompletedAt time.Time `json:"completed_at"`
	Rating      *int      `json:"rating,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// SetResult is one durable per-set (or per-exercise aggregate) result row
// attached to a completion.
type SetResult struct {
	CompletionID uuid.UUID `json:"completion_id"`
	ExerciseID   uuid.UUID `json:"exercise_id"`
	SetNumber    int       `json:"set_number"`
	Weight       float64   `json:"weight"`
	Reps         int       `json:"reps"`
	Distance     float64   `json:"distance"`
	Duration     string    `json:"duration"`
	Completed    bool      `json:"completed"`
}
