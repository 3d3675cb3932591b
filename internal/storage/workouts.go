package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulsefit/sessiond/internal/models"
	"github.com/pulsefit/sessiond/internal/session"
)

// Lookups returns the ordered definition fallback chain used by the
// session initializer. A session may be reached through several entry
// routes; the first strategy that resolves wins:
//  1. the id is a completion record: join to its workout,
//  2. the id is a workout this user already completed,
//  3. the id is a coach-assigned workout not yet started,
//  4. the id is a standalone (coach-independent) workout.
func (db *DB) Lookups() []session.DefinitionLookup {
	return []session.DefinitionLookup{
		db.resolveByCompletionID,
		db.resolveByCompletedWorkout,
		db.resolveAssignedWorkout,
		db.resolveStandaloneWorkout,
	}
}

func (db *DB) resolveByCompletionID(ctx context.Context, id, userID uuid.UUID) (*session.ResolvedWorkout, error) {
	rec, err := db.scanCompletion(ctx,
		`SELECT id, workout_id, user_id, completed_at, rating, notes
		 FROM completions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	def, err := db.GetDefinition(ctx, rec.WorkoutID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}
	return &session.ResolvedWorkout{Definition: def, Completion: rec}, nil
}

func (db *DB) resolveByCompletedWorkout(ctx context.Context, id, userID uuid.UUID) (*session.ResolvedWorkout, error) {
	rec, err := db.scanCompletion(ctx,
		`SELECT id, workout_id, user_id, completed_at, rating, notes
		 FROM completions WHERE workout_id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	def, err := db.GetDefinition(ctx, id)
	if err != nil || def == nil {
		return nil, err
	}
	return &session.ResolvedWorkout{Definition: def, Completion: rec}, nil
}

func (db *DB) resolveAssignedWorkout(ctx context.Context, id, userID uuid.UUID) (*session.ResolvedWorkout, error) {
	def, err := db.getDefinitionWhere(ctx, id, "AND standalone = FALSE")
	if err != nil || def == nil {
		return nil, err
	}
	return &session.ResolvedWorkout{Definition: def}, nil
}

func (db *DB) resolveStandaloneWorkout(ctx context.Context, id, userID uuid.UUID) (*session.ResolvedWorkout, error) {
	def, err := db.getDefinitionWhere(ctx, id, "AND standalone = TRUE")
	if err != nil || def == nil {
		return nil, err
	}
	return &session.ResolvedWorkout{Definition: def}, nil
}

// GetDefinition loads a workout and its ordered exercise list.
func (db *DB) GetDefinition(ctx context.Context, workoutID uuid.UUID) (*models.WorkoutDefinition, error) {
	return db.getDefinitionWhere(ctx, workoutID, "")
}

func (db *DB) getDefinitionWhere(ctx context.Context, workoutID uuid.UUID, cond string) (*models.WorkoutDefinition, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, name, coach_id, standalone FROM workouts WHERE id = $1 `+cond, workoutID)

	var def models.WorkoutDefinition
	err := row.Scan(&def.ID, &def.Name, &def.CoachID, &def.Standalone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying workout: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT id, category, catalog_id, catalog_name, media_url, muscle_group,
		 target_sets, target_reps, position
		 FROM workout_exercises
		 WHERE workout_id = $1
		 ORDER BY position ASC`, workoutID)
	if err != nil {
		return nil, fmt.Errorf("querying workout exercises: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ex models.Exercise
		if err := rows.Scan(&ex.ID, &ex.Category, &ex.Catalog.ID, &ex.Catalog.Name,
			&ex.Catalog.MediaURL, &ex.Catalog.MuscleGroup,
			&ex.TargetSets, &ex.TargetReps, &ex.Position); err != nil {
			return nil, fmt.Errorf("scanning workout exercise: %w", err)
		}
		def.Exercises = append(def.Exercises, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &def, nil
}

// GetCatalogEntry loads one exercise catalog entry, used to validate a
// mid-session swap target.
func (db *DB) GetCatalogEntry(ctx context.Context, catalogID uuid.UUID) (*models.CatalogEntry, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, name, media_url, muscle_group FROM exercise_catalog WHERE id = $1`, catalogID)

	var e models.CatalogEntry
	err := row.Scan(&e.ID, &e.Name, &e.MediaURL, &e.MuscleGroup)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying catalog entry: %w", err)
	}
	return &e, nil
}
