package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulsefit/sessiond/internal/models"
	"github.com/pulsefit/sessiond/internal/session"
)

// Compile-time check: *DB satisfies the engine's draft contract.
var _ session.DraftStore = (*DB)(nil)

// GetDraft fetches the saved draft for (workout, user, kind). A missing
// draft is (nil, nil).
func (db *DB) GetDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) (*models.Draft, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT workout_id, user_id, kind, snapshot, updated_at
		 FROM drafts WHERE workout_id = $1 AND user_id = $2 AND kind = $3`,
		workoutID, userID, kind)

	var d models.Draft
	var raw []byte
	err := row.Scan(&d.WorkoutID, &d.UserID, &d.Kind, &raw, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	if err := json.Unmarshal(raw, &d.Snapshot); err != nil {
		// A draft that no longer parses is structural, not transient:
		// surface it rather than silently recovering nothing.
		return nil, fmt.Errorf("decoding draft snapshot: %w", err)
	}
	return &d, nil
}

// PutDraft creates or overwrites the draft. Saving the same snapshot
// twice leaves a single row whose updated_at reflects the latest write.
func (db *DB) PutDraft(ctx context.Context, draft *models.Draft) error {
	raw, err := json.Marshal(draft.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding draft snapshot: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO drafts (workout_id, user_id, kind, snapshot, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workout_id, user_id, kind)
		 DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		draft.WorkoutID, draft.UserID, draft.Kind, raw, draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting draft: %w", err)
	}
	return nil
}

// DeleteDraft removes the draft once the session completes or the user
// discards it. Deleting an absent draft is not an error.
func (db *DB) DeleteDraft(ctx context.Context, workoutID, userID uuid.UUID, kind string) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM drafts WHERE workout_id = $1 AND user_id = $2 AND kind = $3`,
		workoutID, userID, kind)
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	return nil
}
