package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
	"github.com/pulsefit/sessiond/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetDefinition(ctx context.Context, workoutID uuid.UUID) (*models.WorkoutDefinition, error)
	QueryCompletions(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.CompletionRecord, error)
	QuerySetResults(ctx context.Context, completionID uuid.UUID) ([]models.SetResult, error)
	QueryRunSamples(ctx context.Context, exerciseID, userID uuid.UUID, start, end time.Time) ([]models.RunSample, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
