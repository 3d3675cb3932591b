package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulsefit/sessiond/internal/models"
)

// defaultTimeRange returns start/end defaulting to the last 30 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -30)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolGetCompletions = mcp.NewTool("get_completions",
	mcp.WithDescription("Query completed workouts over a time range. Returns completion records with rating, notes, and completion time."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetSetResults = mcp.NewTool("get_set_results",
	mcp.WithDescription("Get per-set results for one completed workout: weight, reps, distance, and duration for each recorded set."),
	mcp.WithString("completion_id", mcp.Required(), mcp.Description("Completion record id (UUID)")),
)

var toolGetWorkout = mcp.NewTool("get_workout",
	mcp.WithDescription("Get a workout definition: its exercises, categories, and set/rep prescriptions."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout id (UUID)")),
)

var toolGetRunTrack = mcp.NewTool("get_run_track",
	mcp.WithDescription("Get the recorded GPS track for a run exercise: ordered latitude/longitude samples with timestamps."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Run exercise instance id (UUID)")),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

var toolGetTrainingVolume = mcp.NewTool("get_training_volume",
	mcp.WithDescription("Aggregate training volume over a time range: completed workouts, total sets, reps, tonnage (weight x reps), and distance."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

// --- Tool handlers ---

func (h *handlers) getCompletions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	rows, err := h.ds.QueryCompletions(ctx, uid, start, end)
	if err != nil {
		h.log.Error("mcp get_completions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSetResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("completion_id")
	if err != nil {
		return mcp.NewToolResultError("completion_id parameter is required"), nil
	}
	completionID, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("completion_id is not a valid UUID"), nil
	}

	results, err := h.ds.QuerySetResults(ctx, completionID)
	if err != nil {
		h.log.Error("mcp get_set_results", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(results)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("workout_id")
	if err != nil {
		return mcp.NewToolResultError("workout_id parameter is required"), nil
	}
	workoutID, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("workout_id is not a valid UUID"), nil
	}

	def, err := h.ds.GetDefinition(ctx, workoutID)
	if err != nil {
		h.log.Error("mcp get_workout", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if def == nil {
		return mcp.NewToolResultError("workout not found"), nil
	}

	result, err := mcp.NewToolResultJSON(def)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRunTrack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	exerciseID, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("exercise_id is not a valid UUID"), nil
	}

	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	samples, err := h.ds.QueryRunSamples(ctx, exerciseID, uid, start, end)
	if err != nil {
		h.log.Error("mcp get_run_track", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(samples)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// trainingVolume is the aggregate shape returned by get_training_volume.
type trainingVolume struct {
	Workouts   int     `json:"workouts"`
	Sets       int     `json:"sets"`
	Reps       int     `json:"reps"`
	TonnageKg  float64 `json:"tonnage_kg"`
	DistanceKm float64 `json:"distance_km"`
}

func (h *handlers) getTrainingVolume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	completions, err := h.ds.QueryCompletions(ctx, uid, start, end)
	if err != nil {
		h.log.Error("mcp get_training_volume", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	vol := trainingVolume{Workouts: len(completions)}
	for _, rec := range completions {
		results, err := h.ds.QuerySetResults(ctx, rec.ID)
		if err != nil {
			h.log.Error("mcp get_training_volume results", "completion", rec.ID, "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		vol.accumulate(results)
	}

	result, err := mcp.NewToolResultJSON(vol)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (v *trainingVolume) accumulate(results []models.SetResult) {
	for _, res := range results {
		if !res.Completed {
			continue
		}
		v.Sets++
		v.Reps += res.Reps
		v.TonnageKg += res.Weight * float64(res.Reps)
		v.DistanceKm += res.Distance
	}
}
