package api

import (
	"github.com/routinely/routined/internal/db"
)

// RoutineRequest represents a routine creation/update request
type RoutineRequest struct {
	Name          string   `json:"name"`
	RecurringDays []string `json:"recurring_days"`
	Position      int      `json:"position"`
}

// RoutineTaskRequest represents a routine task creation/update request
type RoutineTaskRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	TimeOfDay    *string  `json:"time_of_day,omitempty"` // "HH:MM"
	PlaySound    bool     `json:"play_sound"`
	SoundRef     string   `json:"sound_ref,omitempty"`
	SpecificDays []string `json:"specific_days,omitempty"`
}

// StandaloneTaskRequest represents a standalone task creation/update request
type StandaloneTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	TimeOfDay   *string `json:"time_of_day,omitempty"` // "HH:MM"
	Date        *string `json:"date,omitempty"`        // "2006-01-02"
	PlaySound   bool    `json:"play_sound"`
	SoundRef    string  `json:"sound_ref,omitempty"`
}

// ToggleRequest represents a completion toggle request
type ToggleRequest struct {
	Done bool `json:"done"`
}

// RoutineListResponse represents a list of routines
type RoutineListResponse struct {
	Routines []*db.Routine `json:"routines"`
	Total    int           `json:"total"`
}

// RoutineTaskListResponse represents a list of routine tasks
type RoutineTaskListResponse struct {
	Tasks []*db.RoutineTask `json:"tasks"`
	Total int               `json:"total"`
}

// StandaloneTaskListResponse represents a list of standalone tasks
type StandaloneTaskListResponse struct {
	Tasks []*db.StandaloneTask `json:"tasks"`
	Total int                  `json:"total"`
}

// HistoryResponse represents history records for a date
type HistoryResponse struct {
	Date    string              `json:"date"`
	Records []*db.HistoryRecord `json:"records"`
	Total   int                 `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
