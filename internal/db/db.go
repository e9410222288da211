package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS routines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		recurring_days TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS routine_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		routine_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		time_of_day TEXT,
		done INTEGER NOT NULL DEFAULT 0,
		play_sound INTEGER NOT NULL DEFAULT 0,
		sound_ref TEXT NOT NULL DEFAULT '',
		specific_days TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (routine_id) REFERENCES routines(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_routine_tasks_routine_id ON routine_tasks(routine_id);

	CREATE TABLE IF NOT EXISTS standalone_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		time_of_day TEXT,
		date TEXT,
		done INTEGER NOT NULL DEFAULT 0,
		play_sound INTEGER NOT NULL DEFAULT 0,
		sound_ref TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		task_kind TEXT NOT NULL CHECK (task_kind IN ('ROUTINE', 'STANDALONE')),
		date TEXT NOT NULL,
		UNIQUE (task_id, task_kind, date)
	);

	CREATE INDEX IF NOT EXISTS idx_history_date ON history(date);
	`

	_, err := db.conn.Exec(schema)
	return err
}
