package pipeline

import (
	"database/sql"
	"testing"

	"weather-etl/internal/store"
)

func seedStagingRow(t *testing.T, db *sql.DB, locKey, dateTime string, minTemp, maxTemp float64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO `+store.StagingTable+
		` (batch_id, date_time, location_name, location_key, min_temp_c, max_temp_c,
		   day_phrase, night_phrase, created_at, is_update)
		VALUES (1, ?, 'Ha Noi', ?, ?, ?, 'Sunny', 'Clear', '2026-08-01 08:00:00', 0)`,
		dateTime, locKey, minTemp, maxTemp)
	if err != nil {
		t.Fatalf("seed staging row: %v", err)
	}
}

func TestLoadWarehouseMergesResolvedRows(t *testing.T) {
	stagingDB := newStagingDB(t)
	warehouseDB := newWarehouseDB(t)
	dumpDir := t.TempDir()

	seedDimDate(t, warehouseDB, 20260801, "2026-08-01")
	seedDimLocation(t, warehouseDB, "353412", "Ha Noi")

	seedStagingRow(t, stagingDB, "353412", "2026-08-01 07:00:00", 22, 30)
	// Unknown location and unknown date: both dropped by the joins.
	seedStagingRow(t, stagingDB, "999999", "2026-08-01 07:00:00", 20, 28)
	seedStagingRow(t, stagingDB, "353412", "2030-01-01 07:00:00", 18, 25)

	res, err := LoadWarehouse(stagingDB, warehouseDB, dumpDir)
	if err != nil {
		t.Fatalf("load warehouse: %v", err)
	}
	if res.SnapshotRows != 3 {
		t.Fatalf("expected 3 snapshot rows, got %d", res.SnapshotRows)
	}
	if res.MergedRows != 1 {
		t.Fatalf("expected 1 merged row, got %d", res.MergedRows)
	}

	var dateSK int64
	var locKey string
	var minTemp float64
	err = warehouseDB.QueryRow(`SELECT date_sk, location_key, min_temp_c FROM ` + store.FactTable).
		Scan(&dateSK, &locKey, &minTemp)
	if err != nil {
		t.Fatalf("read fact: %v", err)
	}
	if dateSK != 20260801 || locKey != "353412" || minTemp != 22 {
		t.Fatalf("unexpected fact row: %d %s %v", dateSK, locKey, minTemp)
	}

	// The transient snapshot copy must not survive in the warehouse.
	var n int
	err = warehouseDB.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		store.StagingTable).Scan(&n)
	if err != nil {
		t.Fatalf("check snapshot table: %v", err)
	}
	if n != 0 {
		t.Fatal("snapshot table left behind in warehouse")
	}
}

func TestLoadWarehouseUpsertPreservesCreatedAt(t *testing.T) {
	stagingDB := newStagingDB(t)
	warehouseDB := newWarehouseDB(t)
	dumpDir := t.TempDir()

	seedDimDate(t, warehouseDB, 20260801, "2026-08-01")
	seedDimLocation(t, warehouseDB, "353412", "Ha Noi")
	seedStagingRow(t, stagingDB, "353412", "2026-08-01 07:00:00", 22, 30)

	if _, err := LoadWarehouse(stagingDB, warehouseDB, dumpDir); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := warehouseDB.Exec(`UPDATE ` + store.FactTable +
		` SET created_at = '2020-01-01 00:00:00'`); err != nil {
		t.Fatalf("pin created_at: %v", err)
	}

	// The forecast for the same grain is revised.
	if _, err := stagingDB.Exec(`UPDATE `+store.StagingTable+
		` SET min_temp_c = 19, day_phrase = 'Storms'`); err != nil {
		t.Fatalf("revise staging: %v", err)
	}
	if _, err := LoadWarehouse(stagingDB, warehouseDB, dumpDir); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if got := countRows(t, warehouseDB, store.FactTable); got != 1 {
		t.Fatalf("re-merge duplicated the grain: %d rows", got)
	}
	var minTemp float64
	var phrase, createdAt string
	err := warehouseDB.QueryRow(`SELECT min_temp_c, day_phrase, created_at FROM ` + store.FactTable).
		Scan(&minTemp, &phrase, &createdAt)
	if err != nil {
		t.Fatalf("read fact: %v", err)
	}
	if minTemp != 19 || phrase != "Storms" {
		t.Fatalf("revision not applied: %v %q", minTemp, phrase)
	}
	if createdAt != "2020-01-01 00:00:00" {
		t.Fatalf("created_at must keep the first load's value, got %q", createdAt)
	}
}
