package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/routinely/routined/internal/db"
	"github.com/routinely/routined/internal/recurrence"
	"github.com/routinely/routined/internal/version"
)

// HealthCheck handles GET /api/v1/health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

// ListRoutines handles GET /api/v1/routines
func (s *Server) ListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.db.AllRoutines()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch routines", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, RoutineListResponse{
		Routines: routines,
		Total:    len(routines),
	})
}

// CreateRoutine handles POST /api/v1/routines
func (s *Server) CreateRoutine(w http.ResponseWriter, r *http.Request) {
	var req RoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	routine, err := routineFromRequest(&req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.db.CreateRoutine(routine); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create routine", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, routine)
}

// GetRoutine handles GET /api/v1/routines/{id}
func (s *Server) GetRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid routine ID", err)
		return
	}

	routine, err := s.db.RoutineByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Routine not found", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, routine)
}

// UpdateRoutine handles PUT /api/v1/routines/{id}
func (s *Server) UpdateRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid routine ID", err)
		return
	}

	if _, err := s.db.RoutineByID(id); err != nil {
		s.errorResponse(w, http.StatusNotFound, "Routine not found", err)
		return
	}

	var req RoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	routine, err := routineFromRequest(&req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	routine.ID = id

	if err := s.db.UpdateRoutine(routine); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update routine", err)
		return
	}

	// A changed default weekday set shifts every inheriting task's alarm.
	warning := s.resyncRoutineTasks(id)

	if warning != "" {
		s.jsonResponse(w, http.StatusOK, SuccessResponse{Success: true, Warning: warning})
		return
	}
	s.jsonResponse(w, http.StatusOK, routine)
}

// DeleteRoutine handles DELETE /api/v1/routines/{id}
func (s *Server) DeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid routine ID", err)
		return
	}

	if err := s.controller.DeleteRoutine(id); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete routine", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Routine deleted",
	})
}

// ListRoutineTasks handles GET /api/v1/routines/{id}/tasks
func (s *Server) ListRoutineTasks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid routine ID", err)
		return
	}

	tasks, err := s.db.TasksForRoutine(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch tasks", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, RoutineTaskListResponse{
		Tasks: tasks,
		Total: len(tasks),
	})
}

// CreateRoutineTask handles POST /api/v1/routines/{id}/tasks
func (s *Server) CreateRoutineTask(w http.ResponseWriter, r *http.Request) {
	routineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid routine ID", err)
		return
	}

	if _, err := s.db.RoutineByID(routineID); err != nil {
		s.errorResponse(w, http.StatusNotFound, "Routine not found", err)
		return
	}

	var req RoutineTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := routineTaskFromRequest(&req, routineID)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.db.CreateRoutineTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create task", err)
		return
	}

	// Alarm registration is best-effort: the task is already persisted.
	_ = s.controller.SyncRoutineTask(task)

	s.jsonResponse(w, http.StatusCreated, task)
}

// GetRoutineTask handles GET /api/v1/tasks/routine/{id}
func (s *Server) GetRoutineTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	task, err := s.db.RoutineTaskByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Task not found", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, task)
}

// UpdateRoutineTask handles PUT /api/v1/tasks/routine/{id}
func (s *Server) UpdateRoutineTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	existing, err := s.db.RoutineTaskByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Task not found", err)
		return
	}

	var req RoutineTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := routineTaskFromRequest(&req, existing.RoutineID)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	task.ID = id
	task.Done = existing.Done

	if err := s.db.UpdateRoutineTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update task", err)
		return
	}

	_ = s.controller.SyncRoutineTask(task)

	s.jsonResponse(w, http.StatusOK, task)
}

// DeleteRoutineTask handles DELETE /api/v1/tasks/routine/{id}
func (s *Server) DeleteRoutineTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	if err := s.controller.DeleteRoutineTask(id); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete task", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Task deleted",
	})
}

// ToggleRoutineTask handles POST /api/v1/tasks/routine/{id}/toggle
func (s *Server) ToggleRoutineTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.controller.SetRoutineTaskDone(id, req.Done); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.errorResponse(w, http.StatusNotFound, "Task not found", err)
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to toggle task", err)
		return
	}

	task, err := s.db.RoutineTaskByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch task", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, task)
}

// ListStandaloneTasks handles GET /api/v1/tasks/standalone
func (s *Server) ListStandaloneTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []*db.StandaloneTask
	var err error

	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, perr := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if perr != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", perr)
			return
		}
		tasks, err = s.db.StandaloneTasksForDate(date)
	} else {
		tasks, err = s.db.AllStandaloneTasks()
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch tasks", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, StandaloneTaskListResponse{
		Tasks: tasks,
		Total: len(tasks),
	})
}

// CreateStandaloneTask handles POST /api/v1/tasks/standalone
func (s *Server) CreateStandaloneTask(w http.ResponseWriter, r *http.Request) {
	var req StandaloneTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := standaloneTaskFromRequest(&req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.db.CreateStandaloneTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create task", err)
		return
	}

	_ = s.controller.SyncStandaloneTask(task)

	s.jsonResponse(w, http.StatusCreated, task)
}

// GetStandaloneTask handles GET /api/v1/tasks/standalone/{id}
func (s *Server) GetStandaloneTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	task, err := s.db.StandaloneTaskByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Task not found", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, task)
}

// UpdateStandaloneTask handles PUT /api/v1/tasks/standalone/{id}
func (s *Server) UpdateStandaloneTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	existing, err := s.db.StandaloneTaskByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Task not found", err)
		return
	}

	var req StandaloneTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := standaloneTaskFromRequest(&req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	task.ID = id
	task.Done = existing.Done

	if err := s.db.UpdateStandaloneTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update task", err)
		return
	}

	_ = s.controller.SyncStandaloneTask(task)

	s.jsonResponse(w, http.StatusOK, task)
}

// DeleteStandaloneTask handles DELETE /api/v1/tasks/standalone/{id}
func (s *Server) DeleteStandaloneTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	if err := s.controller.DeleteStandaloneTask(id); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete task", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Task deleted",
	})
}

// ToggleStandaloneTask handles POST /api/v1/tasks/standalone/{id}/toggle
func (s *Server) ToggleStandaloneTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.controller.SetStandaloneTaskDone(id, req.Done); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.errorResponse(w, http.StatusNotFound, "Task not found", err)
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to toggle task", err)
		return
	}

	task, err := s.db.StandaloneTaskByID(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch task", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, task)
}

// GetHistory handles GET /api/v1/history?date=YYYY-MM-DD
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = time.Now().Format("2006-01-02")
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	records, err := s.db.HistoryForDate(date)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch history", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, HistoryResponse{
		Date:    dateStr,
		Records: records,
		Total:   len(records),
	})
}

// TriggerRollover handles POST /api/v1/rollover
func (s *Server) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Rollover()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Rollover failed", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, res)
}

// Helper functions

// resyncRoutineTasks re-derives alarms for every task under a routine.
// Returns a warning string when any task could not be loaded.
func (s *Server) resyncRoutineTasks(routineID int64) string {
	tasks, err := s.db.TasksForRoutine(routineID)
	if err != nil {
		return "routine saved but tasks could not be resynced"
	}
	for _, t := range tasks {
		_ = s.controller.SyncRoutineTask(t)
	}
	return ""
}

func routineFromRequest(req *RoutineRequest) (*db.Routine, error) {
	if req.Name == "" {
		return nil, errEmptyName
	}
	days, err := recurrence.ParseDaySet(strings.Join(req.RecurringDays, ","))
	if err != nil {
		return nil, errInvalidDays
	}
	if days.IsEmpty() {
		return nil, errEmptyDays
	}
	return &db.Routine{
		Name:          req.Name,
		RecurringDays: days,
		Position:      req.Position,
	}, nil
}

func routineTaskFromRequest(req *RoutineTaskRequest, routineID int64) (*db.RoutineTask, error) {
	if req.Title == "" {
		return nil, errEmptyTitle
	}
	tod, err := parseOptionalTime(req.TimeOfDay)
	if err != nil {
		return nil, errInvalidTime
	}
	days, err := recurrence.ParseDaySet(strings.Join(req.SpecificDays, ","))
	if err != nil {
		return nil, errInvalidDays
	}
	return &db.RoutineTask{
		RoutineID:    routineID,
		Title:        req.Title,
		Description:  req.Description,
		TimeOfDay:    tod,
		PlaySound:    req.PlaySound,
		SoundRef:     req.SoundRef,
		SpecificDays: days,
	}, nil
}

func standaloneTaskFromRequest(req *StandaloneTaskRequest) (*db.StandaloneTask, error) {
	if req.Title == "" {
		return nil, errEmptyTitle
	}
	tod, err := parseOptionalTime(req.TimeOfDay)
	if err != nil {
		return nil, errInvalidTime
	}
	var date *time.Time
	if req.Date != nil && *req.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", *req.Date, time.Local)
		if err != nil {
			return nil, errInvalidDate
		}
		date = &d
	}
	return &db.StandaloneTask{
		Title:       req.Title,
		Description: req.Description,
		TimeOfDay:   tod,
		Date:        date,
		PlaySound:   req.PlaySound,
		SoundRef:    req.SoundRef,
	}, nil
}

func parseOptionalTime(raw *string) (*recurrence.TimeOfDay, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	tod, err := recurrence.ParseTimeOfDay(*raw)
	if err != nil {
		return nil, err
	}
	return &tod, nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{
		Error: message,
	}
	if err != nil {
		resp.Details = err.Error()
	}
	s.jsonResponse(w, status, resp)
}

// Validation errors
type validationError string

func (e validationError) Error() string { return string(e) }

const (
	errEmptyName   validationError = "Name is required"
	errEmptyTitle  validationError = "Title is required"
	errEmptyDays   validationError = "Recurring days must not be empty"
	errInvalidDays validationError = "Invalid weekday name"
	errInvalidTime validationError = "Invalid time of day (use HH:MM)"
	errInvalidDate validationError = "Invalid date (use YYYY-MM-DD)"
)
