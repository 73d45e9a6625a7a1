package store

import (
	"database/sql"
	"time"

	"weather-etl/internal/model"
)

// SaveRun stores a new pipeline run record as RUNNING.
func SaveRun(db *sql.DB, runID, stage string) error {
	now := time.Now().UTC().Format(model.SQLTime)
	_, err := db.Exec(`INSERT INTO `+RunsTable+` (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, stage, model.StatusRunning, now)
	return err
}

// FinishRun closes a run record with a terminal status; errMsg may be empty.
func FinishRun(db *sql.DB, runID, status, errMsg string) error {
	now := time.Now().UTC().Format(model.SQLTime)
	_, err := db.Exec(`UPDATE `+RunsTable+` SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		status, now, model.TruncateError(errMsg), runID)
	return err
}

// UpdateRunStage records which stage a run is currently executing.
func UpdateRunStage(db *sql.DB, runID, stage string) error {
	_, err := db.Exec(`UPDATE `+RunsTable+` SET stage = ? WHERE id = ?`, stage, runID)
	return err
}

// ListRuns returns the most recent pipeline runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, stage, status, started_at, finished_at, COALESCE(error_message, '')
		FROM `+RunsTable+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var r model.PipelineRun
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Stage, &r.Status, &started, &finished, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(model.SQLTime, started)
		if finished.Valid {
			t, err := time.Parse(model.SQLTime, finished.String)
			if err == nil {
				r.FinishedAt = &t
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
