package pipeline

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"weather-etl/internal/lineage"
	"weather-etl/internal/model"
	"weather-etl/internal/store"
	"weather-etl/pkg/utils"
)

// Lineage labels for batches opened by the raw loader.
const (
	sourceSystem = "STAGING"
	rawEndpoint  = "load_to_raw"
)

// RawLoadResult reports what a raw-load run did.
type RawLoadResult struct {
	BatchID    int64
	SourceFile string
	Rows       int64
}

// LoadRaw appends the most recently modified CSV file in outputDir to the
// raw landing table as untyped text, under a freshly allocated batch id, and
// opens the batch's lineage record. The lineage record stays RUNNING; only
// the transformer moves it to a terminal state, except when the append itself
// fails, in which case the batch is closed FAILED with the attempted count.
func LoadRaw(db *sql.DB, tracker *lineage.Tracker, outputDir string) (RawLoadResult, error) {
	var res RawLoadResult

	file, err := utils.LatestFile(outputDir, ".csv")
	if err != nil {
		return res, fmt.Errorf("scan output dir %s: %w", outputDir, err)
	}
	if file == "" {
		return res, fmt.Errorf("%w in %s", model.ErrNoSourceFile, outputDir)
	}
	fmt.Printf("📄 Raw load: processing %s\n", file)

	rows, err := readSourceCSV(file)
	if err != nil {
		return res, err
	}
	if len(rows) == 0 {
		return res, fmt.Errorf("%w: %s is empty", model.ErrNoSourceFile, file)
	}

	batchID, err := tracker.NextBatchID()
	if err != nil {
		return res, err
	}

	locName := utils.DefaultIfEmpty(rows[0]["location_name"], "Unknown")
	locKey := utils.DefaultIfEmpty(rows[0]["location_key"], "Unknown")
	if err := tracker.Open(batchID, sourceSystem, rawEndpoint, filepath.Base(file), locName, locKey); err != nil {
		return res, err
	}

	if err := appendRawRows(db, batchID, rows); err != nil {
		msg := fmt.Sprintf("raw load failed: %v", err)
		if logErr := tracker.CloseFailureWithTotal(batchID, int64(len(rows)), msg); logErr != nil {
			fmt.Printf("⚠️ could not record raw-load failure for batch %d: %v\n", batchID, logErr)
		}
		return res, fmt.Errorf("append to %s: %w", store.RawTable, err)
	}

	res = RawLoadResult{BatchID: batchID, SourceFile: file, Rows: int64(len(rows))}
	fmt.Printf("✅ Raw load: batch #%d → %d rows landed in %s\n", batchID, res.Rows, store.RawTable)
	return res, nil
}

// readSourceCSV reads every row as text, renames source columns to the raw
// table's canonical names and drops columns outside the raw schema.
func readSourceCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	known := make(map[string]bool, len(store.ForecastColumns))
	for _, c := range store.ForecastColumns {
		known[c] = true
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		if canonical, ok := store.RawSourceRenames[h]; ok {
			h = canonical
		}
		headers[i] = h
	}

	var rows []map[string]string
	for _, rec := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i >= len(rec) || !known[h] {
				continue
			}
			row[h] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// appendRawRows lands all rows in a single transaction, stamped with batchID.
func appendRawRows(db *sql.DB, batchID int64, rows []map[string]string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cols := store.ForecastColumns
	stmt, err := tx.Prepare(`INSERT INTO ` + store.RawTable + ` (` +
		store.ColumnList(cols) + `) VALUES (` + store.Placeholders(len(cols)) + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, 0, len(cols))
		args = append(args, batchID)
		for _, c := range cols[1:] {
			args = append(args, row[c])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}
