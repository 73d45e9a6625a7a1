package pipeline

import (
	"database/sql"
	"fmt"

	"weather-etl/internal/dump"
	"weather-etl/internal/store"
)

// WarehouseResult reports what a warehouse-load run did.
type WarehouseResult struct {
	SnapshotRows int64
	MergedRows   int64
}

// LoadWarehouse moves staged forecasts into the fact table in two phases.
//
// Phase one materializes a verbatim copy of the staging table inside the
// warehouse database through the snapshot mechanism; a failure here is fatal
// because the merge would otherwise silently run against a stale copy.
//
// Phase two resolves each snapshot row against dim_location and dim_date and
// upserts it into the fact table on (date_sk, location_key). Rows whose
// location or calendar date has no dimension entry are dropped by the inner
// joins. Re-merging an existing grain overwrites only the forecast fields;
// the fact row's created_at keeps the first load's value. The snapshot copy
// is dropped afterwards so the warehouse never exposes transient tables.
func LoadWarehouse(stagingDB, warehouseDB *sql.DB, dumpDir string) (WarehouseResult, error) {
	var res WarehouseResult

	if err := dump.Materialize(stagingDB, warehouseDB, dumpDir); err != nil {
		return res, fmt.Errorf("materialize staging snapshot: %w", err)
	}
	if err := warehouseDB.QueryRow(`SELECT COUNT(*) FROM ` + store.StagingTable).Scan(&res.SnapshotRows); err != nil {
		return res, fmt.Errorf("count snapshot rows: %w", err)
	}

	mergeSQL := `INSERT INTO ` + store.FactTable + ` (
			date_sk, location_key, date_time, min_temp_c, max_temp_c,
			day_icon, day_phrase, day_precip, day_precip_type, day_precip_intensity,
			night_icon, night_phrase, night_precip, night_precip_type, night_precip_intensity,
			source, mobile_link, link)
		SELECT d.date_sk, s.location_key, s.date_time, s.min_temp_c, s.max_temp_c,
			s.day_icon, s.day_phrase, s.day_precip, s.day_precip_type, s.day_precip_intensity,
			s.night_icon, s.night_phrase, s.night_precip, s.night_precip_type, s.night_precip_intensity,
			s.source, s.mobile_link, s.link
		FROM ` + store.StagingTable + ` s
		JOIN ` + store.DimLocTable + ` l ON s.location_key = l.location_key
		JOIN ` + store.DimDateTable + ` d ON date(s.date_time) = d.full_date
		WHERE true
		ON CONFLICT(date_sk, location_key) DO UPDATE SET
			min_temp_c = excluded.min_temp_c,
			max_temp_c = excluded.max_temp_c,
			day_phrase = excluded.day_phrase,
			night_phrase = excluded.night_phrase`

	mergeRes, err := warehouseDB.Exec(mergeSQL)
	if err != nil {
		return res, fmt.Errorf("merge snapshot into %s: %w", store.FactTable, err)
	}
	res.MergedRows, err = mergeRes.RowsAffected()
	if err != nil {
		return res, err
	}

	if _, err := warehouseDB.Exec(`DROP TABLE IF EXISTS ` + store.StagingTable); err != nil {
		return res, fmt.Errorf("drop snapshot table: %w", err)
	}

	fmt.Printf("✅ Warehouse load: %d of %d snapshot rows merged into %s\n",
		res.MergedRows, res.SnapshotRows, store.FactTable)
	return res, nil
}
