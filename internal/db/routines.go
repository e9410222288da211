package db

import (
	"github.com/routinely/routined/internal/recurrence"
)

// CreateRoutine creates a new routine
func (db *DB) CreateRoutine(r *Routine) error {
	result, err := db.conn.Exec(`
		INSERT INTO routines (name, recurring_days, position)
		VALUES (?, ?, ?)
	`, r.Name, r.RecurringDays.String(), r.Position)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// RoutineByID retrieves a routine by ID
func (db *DB) RoutineByID(id int64) (*Routine, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, recurring_days, position FROM routines WHERE id = ?
	`, id)
	return scanRoutine(row)
}

// AllRoutines retrieves all routines in display order
func (db *DB) AllRoutines() ([]*Routine, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, recurring_days, position FROM routines ORDER BY position, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routines []*Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

// UpdateRoutine updates a routine
func (db *DB) UpdateRoutine(r *Routine) error {
	_, err := db.conn.Exec(`
		UPDATE routines SET name = ?, recurring_days = ?, position = ? WHERE id = ?
	`, r.Name, r.RecurringDays.String(), r.Position, r.ID)
	return err
}

// DeleteRoutine deletes a routine; its tasks cascade
func (db *DB) DeleteRoutine(id int64) error {
	_, err := db.conn.Exec("DELETE FROM routines WHERE id = ?", id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoutine(row rowScanner) (*Routine, error) {
	r := &Routine{}
	var days string
	if err := row.Scan(&r.ID, &r.Name, &days, &r.Position); err != nil {
		return nil, err
	}
	set, err := recurrence.ParseDaySet(days)
	if err != nil {
		return nil, err
	}
	r.RecurringDays = set
	return r, nil
}
