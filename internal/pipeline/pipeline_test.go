package pipeline

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"weather-etl/internal/store"
)

func newStagingDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("open staging db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.InitStaging(db); err != nil {
		t.Fatalf("init staging schema: %v", err)
	}
	return db
}

func newWarehouseDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "warehouse.db"))
	if err != nil {
		t.Fatalf("open warehouse db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.InitWarehouse(db); err != nil {
		t.Fatalf("init warehouse schema: %v", err)
	}
	return db
}

// seedDimDate inserts a minimal calendar row so the fact merge can resolve
// the date.
func seedDimDate(t *testing.T, db *sql.DB, dateSK int64, fullDate string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO `+store.DimDateTable+` (date_sk, full_date) VALUES (?, ?)`,
		dateSK, fullDate)
	if err != nil {
		t.Fatalf("seed dim_date: %v", err)
	}
}

func seedDimLocation(t *testing.T, db *sql.DB, key, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO `+store.DimLocTable+` (location_key, location_name) VALUES (?, ?)`,
		key, name)
	if err != nil {
		t.Fatalf("seed dim_location: %v", err)
	}
}

// writeCSVFile writes content into dir and pushes its mtime to ts so
// newest-file selection is deterministic.
func writeCSVFile(t *testing.T, dir, name, content string, ts time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
