// Package server exposes the session engine over HTTP for the member
// portal. One engine runs per (session id, user); the registry owns
// engine lifecycle.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pulsefit/sessiond/internal/models"
	"github.com/pulsefit/sessiond/internal/session"
	"github.com/pulsefit/sessiond/internal/storage"
	"github.com/pulsefit/sessiond/internal/timer"
)

// Backend is the durable storage surface the handlers need. *storage.DB
// satisfies it; tests substitute in-memory fakes.
type Backend interface {
	session.DraftStore
	session.CompletionStore

	Lookups() []session.DefinitionLookup
	GetDefinition(ctx context.Context, workoutID uuid.UUID) (*models.WorkoutDefinition, error)
	GetCatalogEntry(ctx context.Context, catalogID uuid.UUID) (*models.CatalogEntry, error)
	QueryCompletions(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.CompletionRecord, error)
	QuerySetResults(ctx context.Context, completionID uuid.UUID) ([]models.SetResult, error)
	InsertRunSamples(ctx context.Context, exerciseID, userID uuid.UUID, samples []models.RunSample) (int64, error)
	QueryRunSamples(ctx context.Context, exerciseID, userID uuid.UUID, start, end time.Time) ([]models.RunSample, error)
}

// Compile-time check: *storage.DB satisfies Backend.
var _ Backend = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db      Backend
	timers  *timer.Store
	log     *slog.Logger
	apiKey  string
	sessCfg session.Config
	router  chi.Router

	mu      sync.Mutex
	engines map[engineKey]*session.Engine
}

// engineKey identifies one active session: the id the session was
// reached with, scoped to the member.
type engineKey struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// New creates a new Server with all routes configured.
func New(db Backend, timers *timer.Store, apiKey string, sessCfg session.Config, log *slog.Logger) *Server {
	s := &Server{
		db:      db,
		timers:  timers,
		log:     log,
		apiKey:  apiKey,
		sessCfg: sessCfg,
		router:  chi.NewRouter(),
		engines: make(map[engineKey]*session.Engine),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Session routes (API key + member identity required)
	s.router.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Use(UserIdentity)

		r.Post("/start", s.handleStartSession)
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleCloseSession)

		r.Post("/sets", s.handleUpdateSet)
		r.Post("/cardio", s.handleUpdateCardio)
		r.Post("/flexibility", s.handleUpdateFlexibility)
		r.Post("/expanded", s.handleToggleExpanded)
		r.Post("/swap", s.handleSwapExercise)

		r.Post("/draft/retry", s.handleDraftRetry)
		r.Post("/complete", s.handleComplete)

		r.Post("/run/start", s.handleRunStart)
		r.Post("/run/samples", s.handleRunSamples)
		r.Post("/run/stop", s.handleRunStop)

		r.Get("/timer", s.handleTimerGet)
		r.Put("/timer", s.handleTimerPut)
	})

	// Coach/history API (read-only, identity required)
	s.router.Route("/api/v1/completions", func(r chi.Router) {
		r.Use(UserIdentity)
		r.Get("/", s.handleQueryCompletions)
		r.Get("/{completionID}/results", s.handleQuerySetResults)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(UserIdentity)
		r.Get("/api/v1/workouts/{workoutID}", s.handleGetWorkout)
		r.Get("/api/v1/exercises/{exerciseID}/run-samples", s.handleQueryRunSamples)
	})
}

// engine returns the running engine for a session, if any.
func (s *Server) engine(sessionID, userID uuid.UUID) (*session.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[engineKey{sessionID: sessionID, userID: userID}]
	return e, ok
}

// putEngine registers an engine, returning the existing one if another
// request won the race.
func (s *Server) putEngine(sessionID, userID uuid.UUID, e *session.Engine) *session.Engine {
	key := engineKey{sessionID: sessionID, userID: userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.engines[key]; ok {
		e.Close()
		return existing
	}
	s.engines[key] = e
	return e
}

// dropEngine removes and closes a session's engine.
func (s *Server) dropEngine(sessionID, userID uuid.UUID) {
	key := engineKey{sessionID: sessionID, userID: userID}
	s.mu.Lock()
	e, ok := s.engines[key]
	delete(s.engines, key)
	s.mu.Unlock()
	if ok {
		e.Close()
	}
}

// CloseAll shuts down every active engine; used on server shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	engines := make([]*session.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.engines = make(map[engineKey]*session.Engine)
	s.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}
