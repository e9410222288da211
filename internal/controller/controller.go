// Package controller keeps each task's single pending alarm consistent with
// its persisted state, and runs the daily rollover that resets completion
// flags for the new day.
package controller

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/routinely/routined/internal/alarm"
	"github.com/routinely/routined/internal/db"
	"github.com/routinely/routined/internal/recurrence"
)

// Store is the persistence surface the controller drives. *db.DB implements
// it.
type Store interface {
	RoutineByID(id int64) (*db.Routine, error)
	AllRoutines() ([]*db.Routine, error)
	DeleteRoutine(id int64) error
	TasksForRoutine(routineID int64) ([]*db.RoutineTask, error)
	AllRoutineTasks() ([]*db.RoutineTask, error)
	RoutineTaskByID(id int64) (*db.RoutineTask, error)
	SetRoutineTaskDone(id int64, done bool) error
	ResetTask(id int64) error
	DeleteRoutineTask(id int64) error
	AllStandaloneTasks() ([]*db.StandaloneTask, error)
	StandaloneTaskByID(id int64) (*db.StandaloneTask, error)
	SetStandaloneTaskDone(id int64, done bool) error
	DeleteStandaloneTask(id int64) error
	InsertHistory(rec *db.HistoryRecord) error
	DeleteHistory(taskID int64, kind db.TaskKind, date time.Time) error
}

// Controller reacts to task lifecycle events. All dependencies are injected;
// there is no process-wide registry.
type Controller struct {
	db     Store
	alarms *alarm.Registry
	now    func() time.Time
}

// New creates a controller. The clock defaults to time.Now.
func New(database Store, alarms *alarm.Registry) *Controller {
	return &Controller{
		db:     database,
		alarms: alarms,
		now:    time.Now,
	}
}

// SetClock overrides the controller's clock. Intended for tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// BatchResult summarizes a rollover or boot-resync pass. Individual task
// failures are logged, never fatal to the batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Reset     int `json:"reset"`
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
}

// SyncRoutineTask brings the task's alarm in line with its current state
// after a create or edit. Scheduling failures are logged as warnings and do
// not fail the operation; the alarm self-heals on the next event.
func (c *Controller) SyncRoutineTask(t *db.RoutineTask) error {
	days, err := c.effectiveDays(t)
	if err != nil {
		return err
	}
	c.scheduleRoutine(t, days)
	return nil
}

// SyncStandaloneTask brings a standalone task's alarm in line with its state.
func (c *Controller) SyncStandaloneTask(t *db.StandaloneTask) error {
	c.scheduleStandalone(t)
	return nil
}

// SetRoutineTaskDone toggles completion on a routine task. Marking done rolls
// the alarm to the next qualifying day and records today's history entry;
// unmarking deletes the entry and schedules fresh.
func (c *Controller) SetRoutineTaskDone(id int64, done bool) error {
	t, err := c.db.RoutineTaskByID(id)
	if err != nil {
		return fmt.Errorf("controller: load routine task %d: %w", id, err)
	}
	if err := c.db.SetRoutineTaskDone(id, done); err != nil {
		return fmt.Errorf("controller: persist done flag for routine task %d: %w", id, err)
	}
	t.Done = done

	today := c.today()
	if done {
		rec := &db.HistoryRecord{TaskID: id, TaskKind: db.KindRoutine, Date: today}
		if err := c.db.InsertHistory(rec); err != nil {
			return fmt.Errorf("controller: record history for routine task %d: %w", id, err)
		}
	} else {
		if err := c.db.DeleteHistory(id, db.KindRoutine, today); err != nil {
			return fmt.Errorf("controller: delete history for routine task %d: %w", id, err)
		}
	}

	days, err := c.effectiveDays(t)
	if err != nil {
		return err
	}
	c.scheduleRoutine(t, days)
	return nil
}

// SetStandaloneTaskDone toggles completion on a standalone task. For a
// fixed-date task, marking done cancels the alarm outright: the single
// occurrence is consumed.
func (c *Controller) SetStandaloneTaskDone(id int64, done bool) error {
	t, err := c.db.StandaloneTaskByID(id)
	if err != nil {
		return fmt.Errorf("controller: load standalone task %d: %w", id, err)
	}
	if err := c.db.SetStandaloneTaskDone(id, done); err != nil {
		return fmt.Errorf("controller: persist done flag for standalone task %d: %w", id, err)
	}
	t.Done = done

	today := c.today()
	if done {
		rec := &db.HistoryRecord{TaskID: id, TaskKind: db.KindStandalone, Date: today}
		if err := c.db.InsertHistory(rec); err != nil {
			return fmt.Errorf("controller: record history for standalone task %d: %w", id, err)
		}
	} else {
		if err := c.db.DeleteHistory(id, db.KindStandalone, today); err != nil {
			return fmt.Errorf("controller: delete history for standalone task %d: %w", id, err)
		}
	}

	c.scheduleStandalone(t)
	return nil
}

// DeleteRoutineTask removes the task and unconditionally cancels its alarm.
func (c *Controller) DeleteRoutineTask(id int64) error {
	if err := c.db.DeleteRoutineTask(id); err != nil {
		return fmt.Errorf("controller: delete routine task %d: %w", id, err)
	}
	c.cancel(db.KindRoutine, id)
	return nil
}

// DeleteStandaloneTask removes the task and unconditionally cancels its alarm.
func (c *Controller) DeleteStandaloneTask(id int64) error {
	if err := c.db.DeleteStandaloneTask(id); err != nil {
		return fmt.Errorf("controller: delete standalone task %d: %w", id, err)
	}
	c.cancel(db.KindStandalone, id)
	return nil
}

// DeleteRoutine removes a routine (tasks cascade) and cancels the alarms of
// every task it held.
func (c *Controller) DeleteRoutine(id int64) error {
	tasks, err := c.db.TasksForRoutine(id)
	if err != nil {
		return fmt.Errorf("controller: load tasks for routine %d: %w", id, err)
	}
	if err := c.db.DeleteRoutine(id); err != nil {
		return fmt.Errorf("controller: delete routine %d: %w", id, err)
	}
	for _, t := range tasks {
		c.cancel(db.KindRoutine, t.ID)
	}
	return nil
}

// Rollover is the midnight pass: for every routine task whose effective
// weekday set contains today (or is empty), the done flag resets; every timed
// routine task then gets its alarm re-derived for the new day. Fixed-date
// standalone tasks are never touched; undated ones only have their alarms
// re-derived. Per-task failures are logged and counted, never aborting the
// batch.
func (c *Controller) Rollover() (BatchResult, error) {
	var res BatchResult
	today := c.now().Weekday()

	routineDays, err := c.routineDayIndex()
	if err != nil {
		return res, err
	}
	tasks, err := c.db.AllRoutineTasks()
	if err != nil {
		return res, fmt.Errorf("controller: load routine tasks: %w", err)
	}

	for _, t := range tasks {
		res.Processed++
		days := recurrence.EffectiveDays(t.SpecificDays, routineDays[t.RoutineID])
		if t.Done && (days.IsEmpty() || days.Contains(today)) {
			if err := c.db.ResetTask(t.ID); err != nil {
				slog.Error("rollover: reset failed", "task", t.ID, "error", err)
				res.Failed++
				continue
			}
			t.Done = false
			res.Reset++
		}
		if t.TimeOfDay != nil {
			if c.scheduleRoutine(t, days) {
				res.Scheduled++
			}
		}
	}

	standalone, err := c.db.AllStandaloneTasks()
	if err != nil {
		return res, fmt.Errorf("controller: load standalone tasks: %w", err)
	}
	for _, t := range standalone {
		if t.Date != nil {
			continue
		}
		res.Processed++
		if t.TimeOfDay != nil {
			if c.scheduleStandalone(t) {
				res.Scheduled++
			}
		}
	}

	return res, nil
}

// RescheduleAll re-derives and re-registers the alarm of every timed task of
// both kinds. Runs at boot, when all previously registered platform alarms
// are lost.
func (c *Controller) RescheduleAll() (BatchResult, error) {
	var res BatchResult

	routineDays, err := c.routineDayIndex()
	if err != nil {
		return res, err
	}
	tasks, err := c.db.AllRoutineTasks()
	if err != nil {
		return res, fmt.Errorf("controller: load routine tasks: %w", err)
	}
	for _, t := range tasks {
		if t.TimeOfDay == nil {
			continue
		}
		res.Processed++
		days := recurrence.EffectiveDays(t.SpecificDays, routineDays[t.RoutineID])
		if c.scheduleRoutine(t, days) {
			res.Scheduled++
		}
	}

	standalone, err := c.db.AllStandaloneTasks()
	if err != nil {
		return res, fmt.Errorf("controller: load standalone tasks: %w", err)
	}
	for _, t := range standalone {
		if t.TimeOfDay == nil {
			continue
		}
		res.Processed++
		if c.scheduleStandalone(t) {
			res.Scheduled++
		}
	}

	return res, nil
}

// effectiveDays resolves the task's weekday set against its parent routine.
// A missing parent falls back to daily (empty set).
func (c *Controller) effectiveDays(t *db.RoutineTask) (recurrence.DaySet, error) {
	if !t.SpecificDays.IsEmpty() {
		return t.SpecificDays, nil
	}
	r, err := c.db.RoutineByID(t.RoutineID)
	if err != nil {
		if isNotFound(err) {
			return recurrence.DaySet(0), nil
		}
		return 0, fmt.Errorf("controller: load routine %d: %w", t.RoutineID, err)
	}
	return recurrence.EffectiveDays(t.SpecificDays, r.RecurringDays), nil
}

func (c *Controller) routineDayIndex() (map[int64]recurrence.DaySet, error) {
	routines, err := c.db.AllRoutines()
	if err != nil {
		return nil, fmt.Errorf("controller: load routines: %w", err)
	}
	index := make(map[int64]recurrence.DaySet, len(routines))
	for _, r := range routines {
		index[r.ID] = r.RecurringDays
	}
	return index, nil
}

// scheduleRoutine computes and registers the next alarm for a routine task.
// Returns whether an alarm is now pending.
func (c *Controller) scheduleRoutine(t *db.RoutineTask, days recurrence.DaySet) bool {
	if t.TimeOfDay == nil {
		c.cancel(db.KindRoutine, t.ID)
		return false
	}
	next, ok := recurrence.NextOccurrence(c.now(), *t.TimeOfDay, days, t.Done)
	if !ok {
		// Unreachable for a well-formed weekday set.
		slog.Error("no occurrence within scan window", "task", t.ID, "days", days.String())
		c.cancel(db.KindRoutine, t.ID)
		return false
	}
	if err := c.alarms.Schedule(db.KindRoutine, t.ID, t.Title, t.SoundRef, t.PlaySound, next); err != nil {
		slog.Warn("alarm registration failed", "task", t.ID, "kind", db.KindRoutine, "error", err)
		return false
	}
	return true
}

// scheduleStandalone computes and registers the next alarm for a standalone
// task. A fixed-date task that is done or whose instant has passed gets no
// alarm.
func (c *Controller) scheduleStandalone(t *db.StandaloneTask) bool {
	if t.TimeOfDay == nil {
		c.cancel(db.KindStandalone, t.ID)
		return false
	}

	var next time.Time
	if t.Date != nil {
		if t.Done {
			c.cancel(db.KindStandalone, t.ID)
			return false
		}
		next = t.TimeOfDay.On(*t.Date)
		if !next.After(c.now()) {
			c.cancel(db.KindStandalone, t.ID)
			return false
		}
	} else {
		var ok bool
		next, ok = recurrence.NextOccurrence(c.now(), *t.TimeOfDay, recurrence.DaySet(0), t.Done)
		if !ok {
			c.cancel(db.KindStandalone, t.ID)
			return false
		}
	}

	if err := c.alarms.Schedule(db.KindStandalone, t.ID, t.Title, t.SoundRef, t.PlaySound, next); err != nil {
		slog.Warn("alarm registration failed", "task", t.ID, "kind", db.KindStandalone, "error", err)
		return false
	}
	return true
}

func (c *Controller) cancel(kind db.TaskKind, id int64) {
	if err := c.alarms.Cancel(kind, id); err != nil {
		slog.Warn("alarm cancel failed", "task", id, "kind", kind, "error", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (c *Controller) today() time.Time {
	y, m, d := c.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.now().Location())
}
