package controller

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/routinely/routined/internal/alarm"
	"github.com/routinely/routined/internal/db"
	"github.com/routinely/routined/internal/recurrence"
)

// memScheduler is an in-memory alarm.Scheduler for asserting slot state.
type memScheduler struct {
	slots map[int64]time.Time
	err   error
}

func newMemScheduler() *memScheduler {
	return &memScheduler{slots: make(map[int64]time.Time)}
}

func (m *memScheduler) RegisterOneShot(slot int64, at time.Time, p alarm.Payload) error {
	if m.err != nil {
		return m.err
	}
	m.slots[slot] = at
	return nil
}

func (m *memScheduler) Cancel(slot int64) error {
	delete(m.slots, slot)
	return nil
}

// Monday 2025-03-10, noon local.
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

func newTestController(t *testing.T) (*Controller, *db.DB, *memScheduler) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	sched := newMemScheduler()
	ctrl := New(database, alarm.NewRegistry(sched))
	ctrl.SetClock(func() time.Time { return testNow })
	return ctrl, database, sched
}

func mustCreateRoutine(t *testing.T, database *db.DB, days recurrence.DaySet) *db.Routine {
	t.Helper()
	r := &db.Routine{Name: "Morning", RecurringDays: days}
	if err := database.CreateRoutine(r); err != nil {
		t.Fatalf("create routine: %v", err)
	}
	return r
}

func mustCreateRoutineTask(t *testing.T, database *db.DB, routineID int64, at *recurrence.TimeOfDay, specific recurrence.DaySet) *db.RoutineTask {
	t.Helper()
	task := &db.RoutineTask{
		RoutineID:    routineID,
		Title:        "Stretch",
		TimeOfDay:    at,
		SpecificDays: specific,
	}
	if err := database.CreateRoutineTask(task); err != nil {
		t.Fatalf("create routine task: %v", err)
	}
	return task
}

func tod(h, m int) *recurrence.TimeOfDay {
	return &recurrence.TimeOfDay{Hour: h, Minute: m}
}

func TestSyncRoutineTaskSchedules(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday, time.Thursday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	if err := ctrl.SyncRoutineTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}

	at, ok := sched.slots[task.ID]
	if !ok {
		t.Fatal("no alarm registered")
	}
	want := time.Date(2025, 3, 10, 18, 0, 0, 0, time.Local)
	if !at.Equal(want) {
		t.Errorf("alarm at %v, want %v", at, want)
	}
}

func TestSyncRoutineTaskOverrideDays(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	// Saturday override beats the routine's Monday default.
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), recurrence.Days(time.Saturday))

	if err := ctrl.SyncRoutineTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}

	want := time.Date(2025, 3, 15, 18, 0, 0, 0, time.Local)
	if at := sched.slots[task.ID]; !at.Equal(want) {
		t.Errorf("alarm at %v, want %v", at, want)
	}
}

func TestSyncRoutineTaskUntimedCancels(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	if err := ctrl.SyncRoutineTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := sched.slots[task.ID]; !ok {
		t.Fatal("precondition: alarm registered")
	}

	// Removing the time removes the alarm.
	task.TimeOfDay = nil
	if err := database.UpdateRoutineTask(task); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := ctrl.SyncRoutineTask(task); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if _, ok := sched.slots[task.ID]; ok {
		t.Error("alarm still pending for untimed task")
	}
}

func TestSyncRoutineTaskDanglingRoutine(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Saturday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	// Orphan the task's routine reference in memory; the lookup misses.
	task.RoutineID = r.ID + 999

	if err := ctrl.SyncRoutineTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Falls back to daily cadence: today at 18:00.
	want := time.Date(2025, 3, 10, 18, 0, 0, 0, time.Local)
	if at := sched.slots[task.ID]; !at.Equal(want) {
		t.Errorf("alarm at %v, want %v (daily fallback)", at, want)
	}
}

func TestSyncSchedulingFailureIsNotFatal(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	sched.err = errors.New("platform unavailable")
	if err := ctrl.SyncRoutineTask(task); err != nil {
		t.Fatalf("sync should not fail on scheduler error: %v", err)
	}
}

func TestSetRoutineTaskDone(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	if err := ctrl.SetRoutineTaskDone(task.ID, true); err != nil {
		t.Fatalf("set done: %v", err)
	}

	got, err := database.RoutineTaskByID(task.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Done {
		t.Error("done flag not persisted")
	}

	// History for today exists.
	recs, err := database.HistoryForDate(testNow)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 || recs[0].TaskID != task.ID || recs[0].TaskKind != db.KindRoutine {
		t.Fatalf("history = %+v", recs)
	}

	// Alarm rolled to the next Monday, skipping today.
	want := time.Date(2025, 3, 17, 18, 0, 0, 0, time.Local)
	if at := sched.slots[task.ID]; !at.Equal(want) {
		t.Errorf("alarm at %v, want %v", at, want)
	}
}

func TestSetRoutineTaskDoneIdempotentHistory(t *testing.T) {
	ctrl, database, _ := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	if err := ctrl.SetRoutineTaskDone(task.ID, true); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if err := ctrl.SetRoutineTaskDone(task.ID, true); err != nil {
		t.Fatalf("repeat toggle: %v", err)
	}

	recs, err := database.HistoryForDate(testNow)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("history count = %d, want 1", len(recs))
	}
}

func TestSetRoutineTaskUndone(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)

	if err := ctrl.SetRoutineTaskDone(task.ID, true); err != nil {
		t.Fatalf("set done: %v", err)
	}
	if err := ctrl.SetRoutineTaskDone(task.ID, false); err != nil {
		t.Fatalf("unset done: %v", err)
	}

	recs, err := database.HistoryForDate(testNow)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("history not cleared: %+v", recs)
	}

	// Alarm back on today's slot since 18:00 is still ahead.
	want := time.Date(2025, 3, 10, 18, 0, 0, 0, time.Local)
	if at := sched.slots[task.ID]; !at.Equal(want) {
		t.Errorf("alarm at %v, want %v", at, want)
	}
}

func TestSetStandaloneTaskDoneFixedDateCancels(t *testing.T) {
	ctrl, database, sched := newTestController(t)

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.Local)
	task := &db.StandaloneTask{Title: "Dentist", TimeOfDay: tod(9, 0), Date: &date}
	if err := database.CreateStandaloneTask(task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.SyncStandaloneTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}
	slot := alarm.SlotID(db.KindStandalone, task.ID)
	if _, ok := sched.slots[slot]; !ok {
		t.Fatal("precondition: alarm registered")
	}

	if err := ctrl.SetStandaloneTaskDone(task.ID, true); err != nil {
		t.Fatalf("set done: %v", err)
	}
	if _, ok := sched.slots[slot]; ok {
		t.Error("fixed-date alarm still pending after completion")
	}

	recs, err := database.HistoryForDate(testNow)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 || recs[0].TaskKind != db.KindStandalone {
		t.Fatalf("history = %+v", recs)
	}
}

func TestSyncStandalonePastFixedDateSkipped(t *testing.T) {
	ctrl, database, sched := newTestController(t)

	past := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	task := &db.StandaloneTask{Title: "Expired", TimeOfDay: tod(9, 0), Date: &past}
	if err := database.CreateStandaloneTask(task); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ctrl.SyncStandaloneTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := sched.slots[alarm.SlotID(db.KindStandalone, task.ID)]; ok {
		t.Error("alarm registered for a past fixed date")
	}
}

func TestSyncStandaloneUndatedRecursDaily(t *testing.T) {
	ctrl, database, sched := newTestController(t)

	task := &db.StandaloneTask{Title: "Journal", TimeOfDay: tod(7, 0)}
	if err := database.CreateStandaloneTask(task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.SyncStandaloneTask(task); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// 07:00 already passed today, so tomorrow.
	want := time.Date(2025, 3, 11, 7, 0, 0, 0, time.Local)
	if at := sched.slots[alarm.SlotID(db.KindStandalone, task.ID)]; !at.Equal(want) {
		t.Errorf("alarm at %v, want %v", at, want)
	}
}

func TestDeleteRoutineTaskCancels(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	task := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)
	_ = ctrl.SyncRoutineTask(task)

	if err := ctrl.DeleteRoutineTask(task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := sched.slots[task.ID]; ok {
		t.Error("alarm still pending after delete")
	}
	if _, err := database.RoutineTaskByID(task.ID); err == nil {
		t.Error("task still present after delete")
	}
}

func TestDeleteRoutineCancelsAllTasks(t *testing.T) {
	ctrl, database, sched := newTestController(t)
	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	t1 := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)
	t2 := mustCreateRoutineTask(t, database, r.ID, tod(19, 0), 0)
	_ = ctrl.SyncRoutineTask(t1)
	_ = ctrl.SyncRoutineTask(t2)

	if err := ctrl.DeleteRoutine(r.ID); err != nil {
		t.Fatalf("delete routine: %v", err)
	}
	if len(sched.slots) != 0 {
		t.Errorf("alarms still pending: %v", sched.slots)
	}
	if tasks, _ := database.TasksForRoutine(r.ID); len(tasks) != 0 {
		t.Errorf("tasks survived cascade: %d", len(tasks))
	}
}

func TestRolloverResetsOnlyQualifyingTasks(t *testing.T) {
	ctrl, database, _ := newTestController(t)

	mondays := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	saturdays := mustCreateRoutine(t, database, recurrence.Days(time.Saturday))

	active := mustCreateRoutineTask(t, database, mondays.ID, tod(18, 0), 0)
	inactive := mustCreateRoutineTask(t, database, saturdays.ID, tod(18, 0), 0)
	for _, id := range []int64{active.ID, inactive.ID} {
		if err := database.SetRoutineTaskDone(id, true); err != nil {
			t.Fatalf("mark done: %v", err)
		}
	}

	res, err := ctrl.Rollover()
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if res.Reset != 1 {
		t.Errorf("Reset = %d, want 1", res.Reset)
	}

	// Today is Monday: the Monday task resets, the Saturday one keeps its flag.
	got, _ := database.RoutineTaskByID(active.ID)
	if got.Done {
		t.Error("Monday task not reset")
	}
	got, _ = database.RoutineTaskByID(inactive.ID)
	if !got.Done {
		t.Error("Saturday task reset outside its active day")
	}
}

// poisonedStore fails ResetTask for one task id and delegates the rest.
type poisonedStore struct {
	*db.DB
	failID int64
}

func (p *poisonedStore) ResetTask(id int64) error {
	if id == p.failID {
		return errors.New("disk full")
	}
	return p.DB.ResetTask(id)
}

func TestRolloverIsolatesFailedTask(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	r := &db.Routine{Name: "Morning", RecurringDays: recurrence.Days(time.Monday)}
	if err := database.CreateRoutine(r); err != nil {
		t.Fatalf("create routine: %v", err)
	}
	var tasks []*db.RoutineTask
	for _, title := range []string{"first", "second", "third"} {
		task := &db.RoutineTask{RoutineID: r.ID, Title: title, TimeOfDay: tod(18, 0)}
		if err := database.CreateRoutineTask(task); err != nil {
			t.Fatalf("create task %s: %v", title, err)
		}
		if err := database.SetRoutineTaskDone(task.ID, true); err != nil {
			t.Fatalf("mark done: %v", err)
		}
		tasks = append(tasks, task)
	}

	poisoned := tasks[1]
	sched := newMemScheduler()
	ctrl := New(&poisonedStore{DB: database, failID: poisoned.ID}, alarm.NewRegistry(sched))
	ctrl.SetClock(func() time.Time { return testNow })

	res, err := ctrl.Rollover()
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if res.Processed != 3 {
		t.Errorf("Processed = %d, want 3", res.Processed)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if res.Reset != 2 {
		t.Errorf("Reset = %d, want 2", res.Reset)
	}

	// The healthy tasks reset and rescheduled; the failed one keeps its flag
	// and gets no alarm.
	for _, task := range []*db.RoutineTask{tasks[0], tasks[2]} {
		got, _ := database.RoutineTaskByID(task.ID)
		if got.Done {
			t.Errorf("task %s not reset", task.Title)
		}
		if _, ok := sched.slots[task.ID]; !ok {
			t.Errorf("task %s not rescheduled", task.Title)
		}
	}
	got, _ := database.RoutineTaskByID(poisoned.ID)
	if !got.Done {
		t.Error("failed task's flag was reset anyway")
	}
	if _, ok := sched.slots[poisoned.ID]; ok {
		t.Error("failed task was rescheduled")
	}
}

func TestRolloverLeavesFixedDateStandaloneAlone(t *testing.T) {
	ctrl, database, sched := newTestController(t)

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.Local)
	fixed := &db.StandaloneTask{Title: "Dentist", TimeOfDay: tod(9, 0), Date: &date, Done: true}
	if err := database.CreateStandaloneTask(fixed); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := database.SetStandaloneTaskDone(fixed.ID, true); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	undated := &db.StandaloneTask{Title: "Journal", TimeOfDay: tod(7, 0)}
	if err := database.CreateStandaloneTask(undated); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := ctrl.Rollover()
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}

	got, _ := database.StandaloneTaskByID(fixed.ID)
	if !got.Done {
		t.Error("fixed-date task flag was reset by rollover")
	}
	if _, ok := sched.slots[alarm.SlotID(db.KindStandalone, fixed.ID)]; ok {
		t.Error("fixed-date task rescheduled by rollover")
	}
	if _, ok := sched.slots[alarm.SlotID(db.KindStandalone, undated.ID)]; !ok {
		t.Error("undated task not rescheduled by rollover")
	}
	if res.Scheduled == 0 {
		t.Error("Scheduled = 0")
	}
}

func TestRescheduleAll(t *testing.T) {
	ctrl, database, sched := newTestController(t)

	r := mustCreateRoutine(t, database, recurrence.Days(time.Monday))
	timed := mustCreateRoutineTask(t, database, r.ID, tod(18, 0), 0)
	mustCreateRoutineTask(t, database, r.ID, nil, 0)

	undated := &db.StandaloneTask{Title: "Journal", TimeOfDay: tod(7, 0)}
	if err := database.CreateStandaloneTask(undated); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := ctrl.RescheduleAll()
	if err != nil {
		t.Fatalf("reschedule all: %v", err)
	}

	// Only timed tasks count.
	if res.Processed != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed)
	}
	if res.Scheduled != 2 {
		t.Errorf("Scheduled = %d, want 2", res.Scheduled)
	}
	if _, ok := sched.slots[timed.ID]; !ok {
		t.Error("routine task alarm missing")
	}
	if _, ok := sched.slots[alarm.SlotID(db.KindStandalone, undated.ID)]; !ok {
		t.Error("standalone task alarm missing")
	}
}
