package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Canonical table names. The pipeline's SQL is built from these constants and
// the column lists in identifiers.go, never from configuration strings.
const (
	BatchLogTable  = "batch_log"
	RawTable       = "raw_weather_forecast"
	TransformTable = "transform_weather_forecast"
	StagingTable   = "staging_weather_forecast"
	DimDateTable   = "dim_date"
	DimLocTable    = "dim_location"
	FactTable      = "fact_weather_forecast"
	SummaryTable   = "dm_monthly_summary"
	OverviewTable  = "dm_monthly_overview"
	RunsTable      = "pipeline_runs"
)

// Open opens a sqlite database at path and verifies the connection.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// InitStaging creates the staging-database tables if they do not exist:
// lineage, raw landing, transform scratch, long-lived staging and run
// tracking. The unique merge key on the staging table is NOT created here;
// the staging merger establishes it lazily (see pipeline.MergeStaging).
func InitStaging(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + BatchLogTable + ` (
			batch_id INTEGER PRIMARY KEY,
			source_system TEXT,
			source_endpoint TEXT,
			source_file TEXT,
			location_name TEXT,
			location_key TEXT,
			start_time DATETIME,
			end_time DATETIME,
			status TEXT,
			total_records INTEGER DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			error_message TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS ` + RawTable + ` (
			batch_id INTEGER,
			date_time TEXT,
			location_name TEXT,
			location_key TEXT,
			min_temp_c TEXT,
			max_temp_c TEXT,
			day_icon TEXT,
			day_phrase TEXT,
			day_precip TEXT,
			day_precip_type TEXT,
			day_precip_intensity TEXT,
			night_icon TEXT,
			night_phrase TEXT,
			night_precip TEXT,
			night_precip_type TEXT,
			night_precip_intensity TEXT,
			source TEXT,
			mobile_link TEXT,
			link TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS ` + TransformTable + ` (
			batch_id INTEGER,
			date_time DATETIME,
			location_name TEXT,
			location_key TEXT,
			min_temp_c REAL,
			max_temp_c REAL,
			day_icon INTEGER,
			day_phrase TEXT,
			day_precip INTEGER,
			day_precip_type TEXT,
			day_precip_intensity TEXT,
			night_icon INTEGER,
			night_phrase TEXT,
			night_precip INTEGER,
			night_precip_type TEXT,
			night_precip_intensity TEXT,
			source TEXT,
			mobile_link TEXT,
			link TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS ` + StagingTable + ` (
			batch_id INTEGER,
			date_time DATETIME,
			location_name TEXT,
			location_key TEXT,
			min_temp_c REAL,
			max_temp_c REAL,
			day_icon INTEGER,
			day_phrase TEXT,
			day_precip INTEGER,
			day_precip_type TEXT,
			day_precip_intensity TEXT,
			night_icon INTEGER,
			night_phrase TEXT,
			night_precip INTEGER,
			night_precip_type TEXT,
			night_precip_intensity TEXT,
			source TEXT,
			mobile_link TEXT,
			link TEXT,
			created_at DATETIME,
			is_update INTEGER DEFAULT 0,
			date_update DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS ` + RunsTable + ` (
			id TEXT PRIMARY KEY,
			stage TEXT,
			status TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			error_message TEXT
		);`,
	}
	return execAll(db, stmts)
}

// InitWarehouse creates the dimension and fact tables. The fact grain
// (date_sk, location_key) is declared as an explicit unique constraint so the
// fact merge's upsert semantics never rely on incidental behavior.
func InitWarehouse(db *sql.DB) error {
	stmts := []string{
		dimDateDDL,
		`CREATE TABLE IF NOT EXISTS ` + DimLocTable + ` (
			location_key TEXT NOT NULL PRIMARY KEY,
			location_name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS ` + FactTable + ` (
			id_fact INTEGER PRIMARY KEY AUTOINCREMENT,
			date_sk INTEGER NOT NULL,
			location_key TEXT NOT NULL,
			date_time DATETIME,
			min_temp_c REAL DEFAULT 0,
			max_temp_c REAL DEFAULT 0,
			day_icon INTEGER DEFAULT 0,
			day_phrase TEXT,
			day_precip INTEGER DEFAULT 0,
			day_precip_type TEXT,
			day_precip_intensity TEXT,
			night_icon INTEGER DEFAULT 0,
			night_phrase TEXT,
			night_precip INTEGER DEFAULT 0,
			night_precip_type TEXT,
			night_precip_intensity TEXT,
			source TEXT,
			mobile_link TEXT,
			link TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (date_sk, location_key)
		);`,
	}
	return execAll(db, stmts)
}

// InitStagingDimDate creates dim_date in the staging database; the calendar
// dimension is loaded into both systems.
func InitStagingDimDate(db *sql.DB) error {
	return execAll(db, []string{dimDateDDL})
}

const dimDateDDL = `CREATE TABLE IF NOT EXISTS ` + DimDateTable + ` (
	date_sk INTEGER PRIMARY KEY,
	full_date DATE,
	day_since_2005 INTEGER,
	month_sk INTEGER,
	day_name TEXT,
	month_name TEXT,
	year INTEGER,
	year_month TEXT,
	day_of_month INTEGER,
	day_of_year INTEGER,
	week_of_year_sunday INTEGER,
	year_week_sunday TEXT,
	week_sunday_start DATE,
	week_of_year_monday INTEGER,
	year_week_monday TEXT,
	week_monday_start DATE,
	holiday_flag TEXT,
	day_type TEXT
);`

// InitMart creates the per-location detail marts and both aggregate marts.
// Detail mart table names come from the validated location config.
func InitMart(db *sql.DB, martTables []string) error {
	var stmts []string
	for _, name := range martTables {
		if err := ValidateMartTable(name); err != nil {
			return err
		}
		stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+name+` (
			date_sk INTEGER NOT NULL,
			location_key TEXT NOT NULL,
			date_time DATETIME,
			min_temp_c REAL,
			max_temp_c REAL,
			day_icon INTEGER,
			day_phrase TEXT,
			day_precip INTEGER,
			night_icon INTEGER,
			night_phrase TEXT,
			night_precip INTEGER,
			source TEXT,
			created_at DATETIME,
			last_updated DATETIME,
			PRIMARY KEY (date_sk, location_key)
		);`)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS `+SummaryTable+` (
			month_sk INTEGER NOT NULL,
			location_key TEXT NOT NULL,
			avg_max_temp_c REAL,
			avg_min_temp_c REAL,
			avg_temp_c REAL,
			total_rainy_days INTEGER,
			total_forecast_days INTEGER,
			last_updated DATETIME,
			PRIMARY KEY (month_sk, location_key)
		);`,
		`CREATE TABLE IF NOT EXISTS `+OverviewTable+` (
			month_sk INTEGER NOT NULL PRIMARY KEY,
			avg_max_temp_c REAL,
			avg_min_temp_c REAL,
			avg_temp_c REAL,
			total_locations INTEGER,
			max_rainy_days INTEGER,
			last_updated DATETIME
		);`,
	)
	return execAll(db, stmts)
}

func execAll(db *sql.DB, stmts []string) error {
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
