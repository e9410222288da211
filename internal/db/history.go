package db

import "time"

// InsertHistory records a completion for (task, kind, date). Re-inserting the
// same triple is a no-op, preserving the one-record-per-day invariant.
func (db *DB) InsertHistory(rec *HistoryRecord) error {
	result, err := db.conn.Exec(`
		INSERT OR IGNORE INTO history (task_id, task_kind, date) VALUES (?, ?, ?)
	`, rec.TaskID, string(rec.TaskKind), rec.Date.Format(dateLayout))
	if err != nil {
		return err
	}

	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// DeleteHistory removes the completion record for (task, kind, date), if any
func (db *DB) DeleteHistory(taskID int64, kind TaskKind, date time.Time) error {
	_, err := db.conn.Exec(`
		DELETE FROM history WHERE task_id = ? AND task_kind = ? AND date = ?
	`, taskID, string(kind), date.Format(dateLayout))
	return err
}

// HistoryForDate retrieves all completion records for a calendar date
func (db *DB) HistoryForDate(date time.Time) ([]*HistoryRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_id, task_kind, date FROM history WHERE date = ? ORDER BY id
	`, date.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*HistoryRecord
	for rows.Next() {
		rec := &HistoryRecord{}
		var kind, raw string
		if err := rows.Scan(&rec.ID, &rec.TaskID, &kind, &raw); err != nil {
			return nil, err
		}
		d, err := time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			return nil, err
		}
		rec.TaskKind = TaskKind(kind)
		rec.Date = d
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteOrphanedHistory removes history records whose referenced task no
// longer exists. Returns the number of records removed.
func (db *DB) DeleteOrphanedHistory() (int64, error) {
	result, err := db.conn.Exec(`
		DELETE FROM history
		WHERE (task_kind = 'ROUTINE' AND task_id NOT IN (SELECT id FROM routine_tasks))
		   OR (task_kind = 'STANDALONE' AND task_id NOT IN (SELECT id FROM standalone_tasks))
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
