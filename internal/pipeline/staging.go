package pipeline

import (
	"database/sql"
	"fmt"
	"time"

	"weather-etl/internal/model"
	"weather-etl/internal/store"
)

// mergeKeyIndex is the unique constraint the staging upsert depends on.
const mergeKeyIndex = "uq_forecast"

// MergeStaging copies every row currently in the transform table into the
// long-lived staging table with insert-or-update semantics on
// (location_key, date_time). Fresh inserts get is_update=0 and a null
// date_update; key collisions overwrite the mutable fields and mark the row
// is_update=1 with the merge time. Replaying the same transform batch
// converges to identical content apart from that bookkeeping, which is what
// makes the merge safe to re-run.
func MergeStaging(db *sql.DB) (int64, error) {
	if err := ensureMergeKey(db); err != nil {
		return 0, err
	}

	mergeTime := time.Now().UTC().Format(model.SQLTime)
	cols := store.ColumnList(store.ForecastColumns)
	res, err := db.Exec(`INSERT INTO `+store.StagingTable+` (`+cols+`, created_at, is_update, date_update)
		SELECT `+cols+`, created_at, 0, NULL FROM `+store.TransformTable+` WHERE true
		ON CONFLICT(location_key, date_time) DO UPDATE SET
			batch_id = excluded.batch_id,
			location_name = excluded.location_name,
			min_temp_c = excluded.min_temp_c,
			max_temp_c = excluded.max_temp_c,
			day_icon = excluded.day_icon,
			day_phrase = excluded.day_phrase,
			day_precip = excluded.day_precip,
			day_precip_type = excluded.day_precip_type,
			day_precip_intensity = excluded.day_precip_intensity,
			night_icon = excluded.night_icon,
			night_phrase = excluded.night_phrase,
			night_precip = excluded.night_precip,
			night_precip_type = excluded.night_precip_type,
			night_precip_intensity = excluded.night_precip_intensity,
			source = excluded.source,
			mobile_link = excluded.mobile_link,
			link = excluded.link,
			is_update = 1,
			date_update = ?`, mergeTime)
	if err != nil {
		return 0, fmt.Errorf("merge %s into %s: %w", store.TransformTable, store.StagingTable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	fmt.Printf("✅ Staging merge: %d rows inserted/updated\n", n)
	return n, nil
}

// ensureMergeKey lazily creates the unique (location_key, date_time) index.
// If pre-existing duplicate rows block index creation the error is fatal and
// requires manual cleanup; nothing here tries to pick a survivor.
func ensureMergeKey(db *sql.DB) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type = 'index' AND name = ?`,
		mergeKeyIndex).Scan(&count)
	if err != nil {
		return fmt.Errorf("check merge key: %w", err)
	}
	if count > 0 {
		return nil
	}

	fmt.Printf("⚠️ Staging merge: creating unique index %s on (location_key, date_time)\n", mergeKeyIndex)
	_, err = db.Exec(`CREATE UNIQUE INDEX ` + mergeKeyIndex + ` ON ` + store.StagingTable + ` (location_key, date_time)`)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMergeConstraint, err)
	}
	return nil
}
