package db

import (
	"time"

	"github.com/routinely/routined/internal/recurrence"
)

// TaskKind discriminates the two task variants. The strings are used as-is
// in storage and in alarm payloads.
type TaskKind string

const (
	KindRoutine    TaskKind = "ROUTINE"
	KindStandalone TaskKind = "STANDALONE"
)

// Routine is a named collection of tasks with a default set of active weekdays.
type Routine struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	RecurringDays recurrence.DaySet `json:"recurring_days"`
	Position      int               `json:"position"`
}

// RoutineTask belongs to exactly one Routine. SpecificDays, when non-empty,
// overrides the parent routine's recurring days.
type RoutineTask struct {
	ID           int64                 `json:"id"`
	RoutineID    int64                 `json:"routine_id"`
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	TimeOfDay    *recurrence.TimeOfDay `json:"time_of_day,omitempty"`
	Done         bool                  `json:"done"`
	PlaySound    bool                  `json:"play_sound"`
	SoundRef     string                `json:"sound_ref,omitempty"`
	SpecificDays recurrence.DaySet     `json:"specific_days"`
}

// StandaloneTask is an independent task. A non-nil Date makes it a single
// occurrence on that date; a nil Date makes it daily-recurring at TimeOfDay.
type StandaloneTask struct {
	ID          int64                 `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	TimeOfDay   *recurrence.TimeOfDay `json:"time_of_day,omitempty"`
	Date        *time.Time            `json:"date,omitempty"`
	Done        bool                  `json:"done"`
	PlaySound   bool                  `json:"play_sound"`
	SoundRef    string                `json:"sound_ref,omitempty"`
}

// HistoryRecord marks that a task was completed on a calendar date. At most
// one record exists per (TaskID, TaskKind, Date).
type HistoryRecord struct {
	ID       int64     `json:"id"`
	TaskID   int64     `json:"task_id"`
	TaskKind TaskKind  `json:"task_kind"`
	Date     time.Time `json:"date"`
}

// dateLayout is the storage format for calendar dates.
const dateLayout = "2006-01-02"
