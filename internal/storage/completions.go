package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulsefit/sessiond/internal/models"
	"github.com/pulsefit/sessiond/internal/session"
)

// Compile-time check: *DB satisfies the engine's completion contract.
var _ session.CompletionStore = (*DB)(nil)

// FindCompletion returns the completion id for (workout, user), if one
// exists.
func (db *DB) FindCompletion(ctx context.Context, workoutID, userID uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx,
		`SELECT id FROM completions WHERE workout_id = $1 AND user_id = $2`,
		workoutID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("querying completion: %w", err)
	}
	return id, true, nil
}

// CreateCompletion inserts the completion record. The unique constraint
// on (workout_id, user_id) backstops the engine's check-then-act: when
// two tabs race, ON CONFLICT DO NOTHING lets one row survive and the
// re-read hands every caller that row's id.
func (db *DB) CreateCompletion(ctx context.Context, rec *models.CompletionRecord) (uuid.UUID, error) {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO completions (id, workout_id, user_id, completed_at, rating, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (workout_id, user_id) DO NOTHING`,
		id, rec.WorkoutID, rec.UserID, completedAt, rec.Rating, rec.Notes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting completion: %w", err)
	}

	var surviving uuid.UUID
	err = db.Pool.QueryRow(ctx,
		`SELECT id FROM completions WHERE workout_id = $1 AND user_id = $2`,
		rec.WorkoutID, rec.UserID).Scan(&surviving)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reading back completion: %w", err)
	}
	return surviving, nil
}

// UpsertSetResult writes one result row, idempotent per
// (completion, exercise, set number): retrying a partially failed
// finalization overwrites rather than duplicates.
func (db *DB) UpsertSetResult(ctx context.Context, res models.SetResult) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO set_results (completion_id, exercise_id, set_number,
		 weight, reps, distance, duration, completed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (completion_id, exercise_id, set_number)
		 DO UPDATE SET weight = EXCLUDED.weight, reps = EXCLUDED.reps,
		   distance = EXCLUDED.distance, duration = EXCLUDED.duration,
		   completed = EXCLUDED.completed`,
		res.CompletionID, res.ExerciseID, res.SetNumber,
		res.Weight, res.Reps, res.Distance, res.Duration, res.Completed)
	if err != nil {
		return fmt.Errorf("upserting set result: %w", err)
	}
	return nil
}

// QueryCompletions retrieves a user's completion records in a time
// range, newest first. Backs the coach tooling.
func (db *DB) QueryCompletions(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.CompletionRecord, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, workout_id, user_id, completed_at, rating, notes
		 FROM completions
		 WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
		 ORDER BY completed_at DESC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	defer rows.Close()

	var result []models.CompletionRecord
	for rows.Next() {
		var c models.CompletionRecord
		if err := rows.Scan(&c.ID, &c.WorkoutID, &c.UserID, &c.CompletedAt, &c.Rating, &c.Notes); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// QuerySetResults retrieves the result rows of one completion in
// exercise/set order.
func (db *DB) QuerySetResults(ctx context.Context, completionID uuid.UUID) ([]models.SetResult, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT completion_id, exercise_id, set_number, weight, reps, distance, duration, completed
		 FROM set_results
		 WHERE completion_id = $1
		 ORDER BY exercise_id ASC, set_number ASC`,
		completionID)
	if err != nil {
		return nil, fmt.Errorf("querying set results: %w", err)
	}
	defer rows.Close()

	var result []models.SetResult
	for rows.Next() {
		var r models.SetResult
		if err := rows.Scan(&r.CompletionID, &r.ExerciseID, &r.SetNumber,
			&r.Weight, &r.Reps, &r.Distance, &r.Duration, &r.Completed); err != nil {
			return nil, fmt.Errorf("scanning set result: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (db *DB) scanCompletion(ctx context.Context, query string, args ...any) (*models.CompletionRecord, error) {
	var c models.CompletionRecord
	err := db.Pool.QueryRow(ctx, query, args...).Scan(
		&c.ID, &c.WorkoutID, &c.UserID, &c.CompletedAt, &c.Rating, &c.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying completion: %w", err)
	}
	return &c, nil
}
