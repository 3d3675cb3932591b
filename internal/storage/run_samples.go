package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
)

// InsertRunSamples batch-inserts GPS samples for a run exercise.
// Samples are append-only; replays of the same (exercise, time) pair
// are dropped. Returns count inserted.
func (db *DB) InsertRunSamples(ctx context.Context, exerciseID, userID uuid.UUID, samples []models.RunSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	query := `INSERT INTO run_samples (exercise_id, user_id, time, latitude, longitude) VALUES `
	args := make([]any, 0, len(samples)*5)
	valueStrings := make([]string, 0, len(samples))

	for i, s := range samples {
		base := i * 5
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, exerciseID, userID, s.Time, s.Latitude, s.Longitude)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting run samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueryRunSamples retrieves a run's samples in time order.
func (db *DB) QueryRunSamples(ctx context.Context, exerciseID, userID uuid.UUID, start, end time.Time) ([]models.RunSample, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT time, latitude, longitude
		 FROM run_samples
		 WHERE exercise_id = $1 AND user_id = $2 AND time >= $3 AND time < $4
		 ORDER BY time ASC`,
		exerciseID, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying run samples: %w", err)
	}
	defer rows.Close()

	var result []models.RunSample
	for rows.Next() {
		var s models.RunSample
		if err := rows.Scan(&s.Time, &s.Latitude, &s.Longitude); err != nil {
			return nil, fmt.Errorf("scanning run sample: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
