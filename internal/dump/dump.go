// Package dump is the snapshot collaborator: it copies the staging table
// verbatim from the staging database into the warehouse database by way of
// SQL script files in a dump directory, mirroring an external dump/restore
// utility. The warehouse loader only depends on "the newest snapshot file
// materializes the table".
package dump

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"weather-etl/internal/store"
	"weather-etl/pkg/utils"
)

// snapshotColumns is the full staging column set, bookkeeping included.
var snapshotColumns = append(append([]string{}, store.ForecastColumns...),
	"created_at", "is_update", "date_update")

const snapshotDDL = `CREATE TABLE ` + store.StagingTable + ` (
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
	is_update INTEGER,
	date_update DATETIME
);`

// Export writes the staging table's current contents to a timestamped .sql
// file under dumpDir and returns the file path.
func Export(db *sql.DB, dumpDir string) (string, error) {
	if err := utils.EnsureDir(dumpDir); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("DROP TABLE IF EXISTS " + store.StagingTable + ";\n")
	sb.WriteString(snapshotDDL + "\n")

	rows, err := db.Query(`SELECT ` + store.ColumnList(snapshotColumns) + ` FROM ` + store.StagingTable)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", store.StagingTable, err)
	}
	defer rows.Close()

	insertPrefix := "INSERT INTO " + store.StagingTable + " (" + store.ColumnList(snapshotColumns) + ") VALUES ("
	count := 0
	for rows.Next() {
		vals := make([]sql.NullString, len(snapshotColumns))
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return "", err
		}

		lits := make([]string, len(vals))
		for i, v := range vals {
			lits[i] = sqlLiteral(v)
		}
		sb.WriteString(insertPrefix + strings.Join(lits, ", ") + ");\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.sql", store.StagingTable, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dumpDir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Printf("📦 Dump: %d staging rows exported to %s\n", count, path)
	return path, nil
}

// Restore executes the most recently modified .sql snapshot in dumpDir
// against db, materializing the staging table there. Returns the file used.
func Restore(db *sql.DB, dumpDir string) (string, error) {
	file, err := utils.LatestFile(dumpDir, ".sql")
	if err != nil {
		return "", fmt.Errorf("scan dump dir %s: %w", dumpDir, err)
	}
	if file == "" {
		return "", fmt.Errorf("no snapshot file found in %s", dumpDir)
	}

	script, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read snapshot %s: %w", file, err)
	}
	if _, err := db.Exec(string(script)); err != nil {
		return "", fmt.Errorf("restore snapshot %s: %w", file, err)
	}
	fmt.Printf("📦 Restore: snapshot %s materialized\n", filepath.Base(file))
	return file, nil
}

// Materialize exports the staging table and restores the snapshot into the
// warehouse database in one step.
func Materialize(stagingDB, warehouseDB *sql.DB, dumpDir string) error {
	if _, err := Export(stagingDB, dumpDir); err != nil {
		return err
	}
	_, err := Restore(warehouseDB, dumpDir)
	return err
}

// sqlLiteral renders a scanned value as a SQL literal. Everything is quoted;
// sqlite's type affinity restores numeric columns on insert.
func sqlLiteral(v sql.NullString) string {
	if !v.Valid {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(v.String, "'", "''") + "'"
}
