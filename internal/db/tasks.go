package db

import (
	"database/sql"
	"time"

	"github.com/routinely/routined/internal/recurrence"
)

// CreateRoutineTask creates a new routine task
func (db *DB) CreateRoutineTask(t *RoutineTask) error {
	result, err := db.conn.Exec(`
		INSERT INTO routine_tasks (routine_id, title, description, time_of_day, done, play_sound, sound_ref, specific_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.RoutineID, t.Title, t.Description, timeOfDayString(t.TimeOfDay), t.Done, t.PlaySound, t.SoundRef, t.SpecificDays.String())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// RoutineTaskByID retrieves a routine task by ID
func (db *DB) RoutineTaskByID(id int64) (*RoutineTask, error) {
	row := db.conn.QueryRow(`
		SELECT id, routine_id, title, description, time_of_day, done, play_sound, sound_ref, specific_days
		FROM routine_tasks WHERE id = ?
	`, id)
	return scanRoutineTask(row)
}

// TasksForRoutine retrieves all tasks belonging to a routine
func (db *DB) TasksForRoutine(routineID int64) ([]*RoutineTask, error) {
	rows, err := db.conn.Query(`
		SELECT id, routine_id, title, description, time_of_day, done, play_sound, sound_ref, specific_days
		FROM routine_tasks WHERE routine_id = ? ORDER BY id
	`, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoutineTasks(rows)
}

// AllRoutineTasks retrieves every routine task across all routines
func (db *DB) AllRoutineTasks() ([]*RoutineTask, error) {
	rows, err := db.conn.Query(`
		SELECT id, routine_id, title, description, time_of_day, done, play_sound, sound_ref, specific_days
		FROM routine_tasks ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoutineTasks(rows)
}

// UpdateRoutineTask updates a routine task
func (db *DB) UpdateRoutineTask(t *RoutineTask) error {
	_, err := db.conn.Exec(`
		UPDATE routine_tasks SET routine_id = ?, title = ?, description = ?, time_of_day = ?, done = ?, play_sound = ?, sound_ref = ?, specific_days = ?
		WHERE id = ?
	`, t.RoutineID, t.Title, t.Description, timeOfDayString(t.TimeOfDay), t.Done, t.PlaySound, t.SoundRef, t.SpecificDays.String(), t.ID)
	return err
}

// DeleteRoutineTask deletes a routine task
func (db *DB) DeleteRoutineTask(id int64) error {
	_, err := db.conn.Exec("DELETE FROM routine_tasks WHERE id = ?", id)
	return err
}

// SetRoutineTaskDone sets the completion flag on a routine task
func (db *DB) SetRoutineTaskDone(id int64, done bool) error {
	_, err := db.conn.Exec("UPDATE routine_tasks SET done = ? WHERE id = ?", done, id)
	return err
}

// ResetTask clears the completion flag on a routine task
func (db *DB) ResetTask(id int64) error {
	return db.SetRoutineTaskDone(id, false)
}

// CreateStandaloneTask creates a new standalone task
func (db *DB) CreateStandaloneTask(t *StandaloneTask) error {
	result, err := db.conn.Exec(`
		INSERT INTO standalone_tasks (title, description, time_of_day, date, done, play_sound, sound_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.Title, t.Description, timeOfDayString(t.TimeOfDay), dateString(t.Date), t.Done, t.PlaySound, t.SoundRef)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// StandaloneTaskByID retrieves a standalone task by ID
func (db *DB) StandaloneTaskByID(id int64) (*StandaloneTask, error) {
	row := db.conn.QueryRow(`
		SELECT id, title, description, time_of_day, date, done, play_sound, sound_ref
		FROM standalone_tasks WHERE id = ?
	`, id)
	return scanStandaloneTask(row)
}

// AllStandaloneTasks retrieves all standalone tasks
func (db *DB) AllStandaloneTasks() ([]*StandaloneTask, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, description, time_of_day, date, done, play_sound, sound_ref
		FROM standalone_tasks ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStandaloneTasks(rows)
}

// StandaloneTasksForDate retrieves standalone tasks pinned to the given date
// plus all undated daily-recurring tasks
func (db *DB) StandaloneTasksForDate(date time.Time) ([]*StandaloneTask, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, description, time_of_day, date, done, play_sound, sound_ref
		FROM standalone_tasks WHERE date = ? OR date IS NULL ORDER BY id
	`, date.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStandaloneTasks(rows)
}

// UpdateStandaloneTask updates a standalone task
func (db *DB) UpdateStandaloneTask(t *StandaloneTask) error {
	_, err := db.conn.Exec(`
		UPDATE standalone_tasks SET title = ?, description = ?, time_of_day = ?, date = ?, done = ?, play_sound = ?, sound_ref = ?
		WHERE id = ?
	`, t.Title, t.Description, timeOfDayString(t.TimeOfDay), dateString(t.Date), t.Done, t.PlaySound, t.SoundRef, t.ID)
	return err
}

// DeleteStandaloneTask deletes a standalone task
func (db *DB) DeleteStandaloneTask(id int64) error {
	_, err := db.conn.Exec("DELETE FROM standalone_tasks WHERE id = ?", id)
	return err
}

// SetStandaloneTaskDone sets the completion flag on a standalone task
func (db *DB) SetStandaloneTaskDone(id int64, done bool) error {
	_, err := db.conn.Exec("UPDATE standalone_tasks SET done = ? WHERE id = ?", done, id)
	return err
}

func scanRoutineTask(row rowScanner) (*RoutineTask, error) {
	t := &RoutineTask{}
	var tod sql.NullString
	var days string
	if err := row.Scan(&t.ID, &t.RoutineID, &t.Title, &t.Description, &tod, &t.Done, &t.PlaySound, &t.SoundRef, &days); err != nil {
		return nil, err
	}
	var err error
	if t.TimeOfDay, err = parseNullTimeOfDay(tod); err != nil {
		return nil, err
	}
	if t.SpecificDays, err = recurrence.ParseDaySet(days); err != nil {
		return nil, err
	}
	return t, nil
}

func collectRoutineTasks(rows *sql.Rows) ([]*RoutineTask, error) {
	var tasks []*RoutineTask
	for rows.Next() {
		t, err := scanRoutineTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanStandaloneTask(row rowScanner) (*StandaloneTask, error) {
	t := &StandaloneTask{}
	var tod, date sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &tod, &date, &t.Done, &t.PlaySound, &t.SoundRef); err != nil {
		return nil, err
	}
	var err error
	if t.TimeOfDay, err = parseNullTimeOfDay(tod); err != nil {
		return nil, err
	}
	if date.Valid && date.String != "" {
		d, err := time.ParseInLocation(dateLayout, date.String, time.Local)
		if err != nil {
			return nil, err
		}
		t.Date = &d
	}
	return t, nil
}

func collectStandaloneTasks(rows *sql.Rows) ([]*StandaloneTask, error) {
	var tasks []*StandaloneTask
	for rows.Next() {
		t, err := scanStandaloneTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func parseNullTimeOfDay(raw sql.NullString) (*recurrence.TimeOfDay, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	tod, err := recurrence.ParseTimeOfDay(raw.String)
	if err != nil {
		return nil, err
	}
	return &tod, nil
}

func timeOfDayString(t *recurrence.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func dateString(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(dateLayout)
}
