// Package dimension seeds the calendar and location dimensions the fact
// merge resolves against.
package dimension

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"weather-etl/internal/model"
	"weather-etl/internal/store"
)

// dimDateColumnCount matches the dim_date DDL.
const dimDateColumnCount = 18

// LoadDimDate loads the headerless calendar CSV into dim_date in every given
// database with replace semantics: the table is cleared and reloaded so the
// seed file is authoritative.
func LoadDimDate(csvPath string, dbs ...*sql.DB) (int64, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open dim_date seed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = dimDateColumnCount
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read dim_date seed: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("dim_date seed %s is empty", csvPath)
	}

	for _, db := range dbs {
		if err := loadDimDateInto(db, records); err != nil {
			return 0, err
		}
	}
	fmt.Printf("✅ Dimensions: %d dim_date rows loaded into %d databases\n", len(records), len(dbs))
	return int64(len(records)), nil
}

func loadDimDateInto(db *sql.DB, records [][]string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ` + store.DimDateTable); err != nil {
		return fmt.Errorf("clear %s: %w", store.DimDateTable, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO ` + store.DimDateTable +
		` VALUES (` + store.Placeholders(dimDateColumnCount) + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]any, len(rec))
		for i, v := range rec {
			args[i] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert %s row: %w", store.DimDateTable, err)
		}
	}
	return tx.Commit()
}

// UpsertLocations ensures every configured location exists in dim_location.
// An existing key gets its name refreshed and updated_at bumped; created_at
// keeps the first insert's value.
func UpsertLocations(db *sql.DB, locations []model.Location) error {
	now := time.Now().UTC().Format(model.SQLTime)
	for _, loc := range locations {
		_, err := db.Exec(`INSERT INTO `+store.DimLocTable+` (location_key, location_name, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(location_key) DO UPDATE SET
				location_name = excluded.location_name,
				updated_at = excluded.updated_at`,
			loc.Key, loc.Name, now, now)
		if err != nil {
			return fmt.Errorf("upsert location %s: %w", loc.Key, err)
		}
	}
	fmt.Printf("✅ Dimensions: %d locations upserted into %s\n", len(locations), store.DimLocTable)
	return nil
}
