package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/routinely/routined/internal/controller"
	"github.com/routinely/routined/internal/db"
)

// Server represents the API server
type Server struct {
	db         *db.DB
	controller *controller.Controller
	router     chi.Router
}

// NewServer creates a new API server
func NewServer(database *db.DB, ctrl *controller.Controller) *Server {
	s := &Server{
		db:         database,
		controller: ctrl,
		router:     chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	// API routes - all at top level to avoid chi subrouter issues with multiple params
	r.Get("/api/v1/health", s.HealthCheck)

	// Routines
	r.Get("/api/v1/routines", s.ListRoutines)
	r.Post("/api/v1/routines", s.CreateRoutine)
	r.Get("/api/v1/routines/{id}", s.GetRoutine)
	r.Put("/api/v1/routines/{id}", s.UpdateRoutine)
	r.Delete("/api/v1/routines/{id}", s.DeleteRoutine)
	r.Get("/api/v1/routines/{id}/tasks", s.ListRoutineTasks)
	r.Post("/api/v1/routines/{id}/tasks", s.CreateRoutineTask)

	// Routine tasks
	r.Get("/api/v1/tasks/routine/{id}", s.GetRoutineTask)
	r.Put("/api/v1/tasks/routine/{id}", s.UpdateRoutineTask)
	r.Delete("/api/v1/tasks/routine/{id}", s.DeleteRoutineTask)
	r.Post("/api/v1/tasks/routine/{id}/toggle", s.ToggleRoutineTask)

	// Standalone tasks
	r.Get("/api/v1/tasks/standalone", s.ListStandaloneTasks)
	r.Post("/api/v1/tasks/standalone", s.CreateStandaloneTask)
	r.Get("/api/v1/tasks/standalone/{id}", s.GetStandaloneTask)
	r.Put("/api/v1/tasks/standalone/{id}", s.UpdateStandaloneTask)
	r.Delete("/api/v1/tasks/standalone/{id}", s.DeleteStandaloneTask)
	r.Post("/api/v1/tasks/standalone/{id}/toggle", s.ToggleStandaloneTask)

	// History
	r.Get("/api/v1/history", s.GetHistory)

	// Maintenance
	r.Post("/api/v1/rollover", s.TriggerRollover)
}

// Router returns the chi router for use with http.Server
func (s *Server) Router() http.Handler {
	return s.router
}
