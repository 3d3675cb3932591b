package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/format"
	"github.com/pulsefit/sessiond/internal/models"
	"github.com/pulsefit/sessiond/internal/session"
	"github.com/pulsefit/sessiond/internal/timer"
)

// sessionView is the JSON shape of an active session.
type sessionView struct {
	SessionID    uuid.UUID          `json:"session_id"`
	WorkoutID    uuid.UUID          `json:"workout_id"`
	WorkoutName  string             `json:"workout_name"`
	Exercises    []exerciseView     `json:"exercises"`
	SaveStatus   session.SaveStatus `json:"save_status"`
	SaveError    string             `json:"save_error,omitempty"`
	CompletionID *uuid.UUID         `json:"completion_id,omitempty"`
}

type exerciseView struct {
	models.ExerciseState
	Position int `json:"position"`
}

func (s *Server) sessionParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, userIDFromRequest(r), true
}

// activeEngine resolves the engine for a session or replies 404.
func (s *Server) activeEngine(w http.ResponseWriter, r *http.Request) (*session.Engine, uuid.UUID, bool) {
	sessionID, userID, ok := s.sessionParams(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	e, ok := s.engine(sessionID, userID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session; start it first"})
		return nil, uuid.Nil, false
	}
	return e, sessionID, true
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.sessionParams(w, r)
	if !ok {
		return
	}

	if e, ok := s.engine(sessionID, userID); ok {
		s.writeSessionView(w, sessionID, e)
		return
	}

	e, err := session.Start(r.Context(), s.db.Lookups(), s.db, s.db, sessionID, userID, s.sessCfg, s.log)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "workout not found"})
			return
		}
		s.log.Error("session start failed", "session", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	e = s.putEngine(sessionID, userID, e)
	s.writeSessionView(w, sessionID, e)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, sessionID, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	s.writeSessionView(w, sessionID, e)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	if e, found := s.engine(sessionID, userID); found {
		// Best effort: push any pending edits out before the timers die.
		if err := e.FlushDraft(r.Context()); err != nil {
			s.log.Warn("final draft flush failed", "session", sessionID, "error", err)
		}
	}
	s.dropEngine(sessionID, userID)
	w.WriteHeader(http.StatusNoContent)
}

// setUpdateRequest carries free-text field input from the form; the
// formatters normalize it before it reaches the store.
type setUpdateRequest struct {
	ExerciseID uuid.UUID `json:"exercise_id"`
	SetNumber  int       `json:"set_number"`
	Weight     *string   `json:"weight,omitempty"`
	Reps       *string   `json:"reps,omitempty"`
	Completed  *bool     `json:"completed,omitempty"`
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req setUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	u := session.SetUpdate{SetNumber: req.SetNumber, Completed: req.Completed}
	if req.Weight != nil {
		kg := format.Weight(*req.Weight)
		u.Weight = &kg
	}
	if req.Reps != nil {
		n := format.Reps(*req.Reps)
		u.Reps = &n
	}
	s.applyMutation(w, e, e.Store.UpdateSet(req.ExerciseID, u))
}

type cardioUpdateRequest struct {
	ExerciseID uuid.UUID `json:"exercise_id"`
	Distance   *float64  `json:"distance,omitempty"`
	Duration   *string   `json:"duration,omitempty"`
	Location   *string   `json:"location,omitempty"`
	Completed  *bool     `json:"completed,omitempty"`
}

func (s *Server) handleUpdateCardio(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req cardioUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	u := session.CardioUpdate{Distance: req.Distance, Location: req.Location, Completed: req.Completed}
	if req.Duration != nil {
		d := format.Duration(*req.Duration)
		u.Duration = &d
	}
	s.applyMutation(w, e, e.Store.UpdateCardio(req.ExerciseID, u))
}

type flexibilityUpdateRequest struct {
	ExerciseID uuid.UUID `json:"exercise_id"`
	Duration   *string   `json:"duration,omitempty"`
	Completed  *bool     `json:"completed,omitempty"`
}

func (s *Server) handleUpdateFlexibility(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req flexibilityUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	u := session.FlexibilityUpdate{Completed: req.Completed}
	if req.Duration != nil {
		d := format.Duration(*req.Duration)
		u.Duration = &d
	}
	s.applyMutation(w, e, e.Store.UpdateFlexibility(req.ExerciseID, u))
}

func (s *Server) handleToggleExpanded(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	expanded, err := e.Store.ToggleExpanded(req.ExerciseID)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"expanded": expanded})
}

func (s *Server) handleSwapExercise(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
		CatalogID  uuid.UUID `json:"catalog_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	entry, err := s.db.GetCatalogEntry(r.Context(), req.CatalogID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "catalog entry not found"})
		return
	}
	s.applyMutation(w, e, e.Store.SwapExercise(req.ExerciseID, *entry))
}

func (s *Server) handleDraftRetry(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	if err := e.FlushDraft(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	status, _ := e.SaveStatus()
	writeJSON(w, http.StatusOK, map[string]session.SaveStatus{"save_status": status})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	e, sessionID, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req struct {
		Rating *int   `json:"rating,omitempty"`
		Notes  string `json:"notes,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}

	id, err := e.Complete(r.Context(), session.CompleteOptions{Rating: req.Rating, Notes: req.Notes})
	if err != nil {
		if errors.Is(err, session.ErrCompletionInFlight) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "completion already in progress"})
			return
		}
		// Partial failure: the session stays open for retry.
		s.log.Error("completion failed", "session", sessionID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(), "retryable": "true",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uuid.UUID{"completion_id": id})
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	if err := e.Recorder().Start(nil); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"tracking": true})
}

func (s *Server) handleRunSamples(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req struct {
		ExerciseID uuid.UUID          `json:"exercise_id"`
		Samples    []models.RunSample `json:"samples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	rec := e.Recorder()
	for _, sample := range req.Samples {
		if err := rec.Append(sample); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
	}
	// Archive the raw track; failures here never interrupt a recording.
	if _, err := s.db.InsertRunSamples(r.Context(), req.ExerciseID, e.UserID, req.Samples); err != nil {
		s.log.Warn("archiving run samples failed", "exercise", req.ExerciseID, "error", err)
	}
	writeJSON(w, http.StatusOK, rec.Snapshot())
}

func (s *Server) handleRunStop(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.activeEngine(w, r)
	if !ok {
		return
	}
	var req struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	sum, err := e.Recorder().Stop()
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	// Feed the summary back through the cardio update path.
	duration := format.Duration(formatMinutes(sum.DurationMinutes))
	completed := true
	err = e.Store.UpdateCardio(req.ExerciseID, session.CardioUpdate{
		Distance:  &sum.DistanceKm,
		Duration:  &duration,
		Completed: &completed,
	})
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTimerGet(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	st, err := s.timers.Get(sessionID.String())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if st == nil {
		writeJSON(w, http.StatusOK, timer.State{SessionID: sessionID.String()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTimerPut(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	var st timer.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	st.SessionID = sessionID.String()
	if err := s.timers.Put(st); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleQueryCompletions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	rows, err := s.db.QueryCompletions(r.Context(), userIDFromRequest(r), start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	workoutID, err := uuid.Parse(chi.URLParam(r, "workoutID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid workout ID"})
		return
	}
	def, err := s.db.GetDefinition(r.Context(), workoutID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if def == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workout not found"})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleQueryRunSamples(w http.ResponseWriter, r *http.Request) {
	exerciseID, err := uuid.Parse(chi.URLParam(r, "exerciseID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise ID"})
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	samples, err := s.db.QueryRunSamples(r.Context(), exerciseID, userIDFromRequest(r), start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleQuerySetResults(w http.ResponseWriter, r *http.Request) {
	completionID, err := uuid.Parse(chi.URLParam(r, "completionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid completion ID"})
		return
	}
	rows, err := s.db.QuerySetResults(r.Context(), completionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) writeSessionView(w http.ResponseWriter, sessionID uuid.UUID, e *session.Engine) {
	status, saveErr := e.SaveStatus()
	view := sessionView{
		SessionID:   sessionID,
		WorkoutID:   e.WorkoutID,
		WorkoutName: e.Resolved.Definition.Name,
		SaveStatus:  status,
	}
	if saveErr != nil {
		view.SaveError = saveErr.Error()
	}
	if id, done := e.Completed(); done {
		view.CompletionID = &id
	}

	snap := e.Store.Snapshot()
	for pos, exID := range e.Store.Order() {
		if state, ok := snap[exID]; ok {
			view.Exercises = append(view.Exercises, exerciseView{ExerciseState: state, Position: pos})
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) applyMutation(w http.ResponseWriter, e *session.Engine, err error) {
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	status, _ := e.SaveStatus()
	writeJSON(w, http.StatusOK, map[string]session.SaveStatus{"save_status": status})
}

func (s *Server) writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownExercise):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrWrongCategory):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

// formatMinutes renders fractional minutes as digit input for the
// duration formatter: mmss below an hour, hhmmss above.
func formatMinutes(minutes float64) string {
	total := int(math.Round(minutes * 60))
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d%02d%02d", h, m, s)
	}
	return fmt.Sprintf("%02d%02d", m, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseTimeRange reads optional start/end query params (RFC 3339 or
// YYYY-MM-DD), defaulting to the last 30 days.
func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("end"); v != "" {
		t, err := parseFlexTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end time")
		}
		end = t
	}
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := parseFlexTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start time")
		}
		start = t
	}
	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
