// Package lineage owns the batch_log table: batch id allocation and the
// RUNNING -> SUCCESS/FAILED lifecycle every pipeline stage reports into.
package lineage

import (
	"database/sql"
	"fmt"
	"time"

	"weather-etl/internal/model"
	"weather-etl/internal/store"
)

// Tracker assigns batch identifiers and records batch lifecycles. It is the
// only writer of batch_log.
type Tracker struct {
	db *sql.DB
}

// New returns a Tracker over the staging database.
func New(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// NextBatchID returns the smallest unused batch id greater than the current
// maximum. Ids are never reused: closed batches stay in batch_log forever.
func (t *Tracker) NextBatchID() (int64, error) {
	var id int64
	err := t.db.QueryRow(`SELECT COALESCE(MAX(batch_id), 0) + 1 FROM ` + store.BatchLogTable).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate batch id: %w", err)
	}
	return id, nil
}

// Open inserts a RUNNING record for batchID. Visible to all stages
// immediately; no transaction spans stages.
func (t *Tracker) Open(batchID int64, sourceSystem, sourceEndpoint, sourceFile, locName, locKey string) error {
	now := time.Now().UTC().Format(model.SQLTime)
	_, err := t.db.Exec(`INSERT INTO `+store.BatchLogTable+`
		(batch_id, source_system, source_endpoint, source_file, location_name, location_key, start_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID, sourceSystem, sourceEndpoint, sourceFile, locName, locKey, now, model.StatusRunning)
	if err != nil {
		return fmt.Errorf("open batch %d: %w", batchID, err)
	}
	return nil
}

// CloseSuccess marks the batch SUCCESS. total_records is re-derived from the
// raw table's current row count for the batch, which the transformer calls
// before truncating raw.
func (t *Tracker) CloseSuccess(batchID, successCount int64) error {
	now := time.Now().UTC().Format(model.SQLTime)
	res, err := t.db.Exec(`UPDATE `+store.BatchLogTable+` SET
			status = ?,
			success_count = ?,
			total_records = (SELECT COUNT(*) FROM `+store.RawTable+` WHERE batch_id = ?),
			end_time = ?
		WHERE batch_id = ? AND status = ?`,
		model.StatusSuccess, successCount, batchID, now, batchID, model.StatusRunning)
	if err != nil {
		return fmt.Errorf("close batch %d success: %w", batchID, err)
	}
	return t.requireClosed(res, batchID)
}

// CloseFailure marks the batch FAILED with a bounded error message.
func (t *Tracker) CloseFailure(batchID int64, msg string) error {
	now := time.Now().UTC().Format(model.SQLTime)
	res, err := t.db.Exec(`UPDATE `+store.BatchLogTable+` SET
			status = ?, error_message = ?, end_time = ?
		WHERE batch_id = ? AND status = ?`,
		model.StatusFailed, model.TruncateError(msg), now, batchID, model.StatusRunning)
	if err != nil {
		return fmt.Errorf("close batch %d failed: %w", batchID, err)
	}
	return t.requireClosed(res, batchID)
}

// CloseFailureWithTotal is CloseFailure recording how many rows the failed
// stage attempted; used by the raw loader when the landing append fails.
func (t *Tracker) CloseFailureWithTotal(batchID, attempted int64, msg string) error {
	now := time.Now().UTC().Format(model.SQLTime)
	res, err := t.db.Exec(`UPDATE `+store.BatchLogTable+` SET
			status = ?, total_records = ?, error_message = ?, end_time = ?
		WHERE batch_id = ? AND status = ?`,
		model.StatusFailed, attempted, model.TruncateError(msg), now, batchID, model.StatusRunning)
	if err != nil {
		return fmt.Errorf("close batch %d failed: %w", batchID, err)
	}
	return t.requireClosed(res, batchID)
}

// requireClosed enforces the close-exactly-once contract: a batch already in
// a terminal state is never mutated again.
func (t *Tracker) requireClosed(res sql.Result, batchID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %d is not open", batchID)
	}
	return nil
}

const batchSelect = `SELECT batch_id, COALESCE(source_system, ''), COALESCE(source_endpoint, ''),
	COALESCE(source_file, ''), COALESCE(location_name, ''), COALESCE(location_key, ''),
	start_time, end_time, status, total_records, success_count, COALESCE(error_message, '')
	FROM ` + store.BatchLogTable

// Get fetches a single batch record.
func (t *Tracker) Get(batchID int64) (model.Batch, error) {
	row := t.db.QueryRow(batchSelect+` WHERE batch_id = ?`, batchID)
	return scanBatch(row)
}

// List returns recent batches, newest first, optionally filtered by status.
func (t *Tracker) List(status string, limit int) ([]model.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = t.db.Query(batchSelect+` WHERE status = ? ORDER BY batch_id DESC LIMIT ?`, status, limit)
	} else {
		rows, err = t.db.Query(batchSelect+` ORDER BY batch_id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (model.Batch, error) {
	var b model.Batch
	var start string
	var end sql.NullString
	err := row.Scan(&b.BatchID, &b.SourceSystem, &b.SourceEndpoint, &b.SourceFile,
		&b.LocationName, &b.LocationKey, &start, &end, &b.Status,
		&b.TotalRecords, &b.SuccessCount, &b.ErrorMessage)
	if err != nil {
		return model.Batch{}, err
	}
	b.StartTime, _ = time.Parse(model.SQLTime, start)
	if end.Valid {
		if ts, err := time.Parse(model.SQLTime, end.String); err == nil {
			b.EndTime = &ts
		}
	}
	return b, nil
}
