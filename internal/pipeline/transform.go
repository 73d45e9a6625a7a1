package pipeline

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"weather-etl/internal/lineage"
	"weather-etl/internal/model"
	"weather-etl/internal/store"
	"weather-etl/pkg/utils"
)

// Field coercion bounds and placeholders.
const (
	phraseMaxLen = 100
	precipMaxLen = 20

	defaultPhrase       = "Unknown"
	defaultPrecipText   = "None"
	defaultLocationName = "Ho Chi Minh City"
	defaultLocationKey  = "353981"
	defaultSource       = "AccuWeather"
)

// TransformResult reports the outcome of one transform run.
type TransformResult struct {
	BatchID    int64
	RawCount   int64
	CleanCount int64
	Dropped    int64
}

// TransformBatch validates and casts the current raw batch into the
// transform table.
//
// The transform table is a single-writer, single-reader scratch buffer: it is
// reset at the start of every run so it only ever holds the current batch's
// cleaned output, and the staging merger is its only reader. On success the
// batch is closed SUCCESS and the raw rows for the batch are deleted; on any
// failure the batch is closed FAILED and the raw rows are left intact for
// inspection and retry.
func TransformBatch(db *sql.DB, tracker *lineage.Tracker) (TransformResult, error) {
	var res TransformResult

	batchID, err := currentBatchID(db)
	if err != nil {
		return res, err
	}
	res.BatchID = batchID
	fmt.Printf("🔄 Transform: batch #%d detected in %s\n", batchID, store.RawTable)

	if err := transformBatch(db, batchID, &res); err != nil {
		msg := model.TruncateError(fmt.Sprintf("transform failed: %v", err))
		if logErr := tracker.CloseFailure(batchID, msg); logErr != nil {
			fmt.Printf("⚠️ could not record transform failure for batch %d: %v\n", batchID, logErr)
		}
		return res, err
	}

	// Close SUCCESS while the raw rows still exist: total_records is
	// re-derived from the raw table's count for this batch.
	if err := tracker.CloseSuccess(batchID, res.CleanCount); err != nil {
		return res, err
	}
	if _, err := db.Exec(`DELETE FROM `+store.RawTable+` WHERE batch_id = ?`, batchID); err != nil {
		return res, fmt.Errorf("clear raw batch %d: %w", batchID, err)
	}

	fmt.Printf("✅ Transform: batch #%d → %d clean rows (%d dropped of %d raw)\n",
		batchID, res.CleanCount, res.Dropped, res.RawCount)
	return res, nil
}

// currentBatchID returns the batch present in the raw table, or
// ErrNoPendingData when the table is empty. At most one batch is in flight.
func currentBatchID(db *sql.DB) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT DISTINCT batch_id FROM ` + store.RawTable + ` LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrNoPendingData
	}
	if err != nil {
		return 0, fmt.Errorf("detect pending batch: %w", err)
	}
	return id, nil
}

func transformBatch(db *sql.DB, batchID int64, res *TransformResult) error {
	// Reset-before-write: the scratch table holds only the current batch.
	if _, err := db.Exec(`DELETE FROM ` + store.TransformTable); err != nil {
		return fmt.Errorf("reset %s: %w", store.TransformTable, err)
	}

	raws, err := readRawBatch(db, batchID)
	if err != nil {
		return err
	}
	res.RawCount = int64(len(raws))

	var cleaned []model.CleanForecast
	for _, raw := range raws {
		clean, ok := CleanRecord(raw)
		if !ok {
			res.Dropped++
			continue
		}
		cleaned = append(cleaned, clean)
	}
	if res.Dropped > 0 {
		fmt.Printf("🔄 Transform: dropped %d rows missing timestamp or temperatures\n", res.Dropped)
	}
	res.CleanCount = int64(len(cleaned))

	if err := writeCleanRows(db, cleaned); err != nil {
		return fmt.Errorf("write %s: %w", store.TransformTable, err)
	}
	return nil
}

// CleanRecord validates and casts one raw row. ok is false when the row must
// be dropped: a missing timestamp or temperature after coercion is an
// unrecoverable grain violation, not a nullable field.
func CleanRecord(raw model.RawForecast) (model.CleanForecast, bool) {
	ts, tsOK := ParseForecastTime(raw.DateTime)
	minT, minOK := utils.ParseNumber(raw.MinTempC)
	maxT, maxOK := utils.ParseNumber(raw.MaxTempC)
	if !tsOK || !minOK || !maxOK {
		return model.CleanForecast{}, false
	}

	return model.CleanForecast{
		BatchID:              raw.BatchID,
		DateTime:             ts,
		LocationName:         utils.DefaultIfEmpty(raw.LocationName, defaultLocationName),
		LocationKey:          utils.DefaultIfEmpty(raw.LocationKey, defaultLocationKey),
		MinTempC:             minT,
		MaxTempC:             maxT,
		DayIcon:              utils.ParseIcon(raw.DayIcon),
		DayPhrase:            utils.Truncate(utils.DefaultIfEmpty(raw.DayPhrase, defaultPhrase), phraseMaxLen),
		DayPrecip:            precipFlag(raw.DayPrecip),
		DayPrecipType:        utils.Truncate(utils.DefaultIfEmpty(raw.DayPrecipType, defaultPrecipText), precipMaxLen),
		DayPrecipIntensity:   utils.Truncate(utils.DefaultIfEmpty(raw.DayPrecipIntensity, defaultPrecipText), precipMaxLen),
		NightIcon:            utils.ParseIcon(raw.NightIcon),
		NightPhrase:          utils.Truncate(utils.DefaultIfEmpty(raw.NightPhrase, defaultPhrase), phraseMaxLen),
		NightPrecip:          precipFlag(raw.NightPrecip),
		NightPrecipType:      utils.Truncate(utils.DefaultIfEmpty(raw.NightPrecipType, defaultPrecipText), precipMaxLen),
		NightPrecipIntensity: utils.Truncate(utils.DefaultIfEmpty(raw.NightPrecipIntensity, defaultPrecipText), precipMaxLen),
		Source:               utils.DefaultIfEmpty(raw.Source, defaultSource),
		MobileLink:           raw.MobileLink,
		Link:                 raw.Link,
	}, true
}

// ParseForecastTime strips trailing offset, zone and fractional-second
// suffixes and parses the remainder as a local date-time.
func ParseForecastTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"+", "Z", "."} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// precipFlag is true iff the source value is present and not a textual zero.
func precipFlag(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "0"
}

func readRawBatch(db *sql.DB, batchID int64) ([]model.RawForecast, error) {
	cols := store.ForecastColumns
	selects := make([]string, len(cols))
	for i, c := range cols {
		if c == "batch_id" {
			selects[i] = c
			continue
		}
		selects[i] = "COALESCE(" + c + ", '')"
	}
	rows, err := db.Query(`SELECT `+strings.Join(selects, ", ")+
		` FROM `+store.RawTable+` WHERE batch_id = ?`, batchID)
	if err != nil {
		return nil, fmt.Errorf("read raw batch: %w", err)
	}
	defer rows.Close()

	var raws []model.RawForecast
	for rows.Next() {
		var r model.RawForecast
		if err := rows.Scan(&r.BatchID, &r.DateTime, &r.LocationName, &r.LocationKey,
			&r.MinTempC, &r.MaxTempC,
			&r.DayIcon, &r.DayPhrase, &r.DayPrecip, &r.DayPrecipType, &r.DayPrecipIntensity,
			&r.NightIcon, &r.NightPhrase, &r.NightPrecip, &r.NightPrecipType, &r.NightPrecipIntensity,
			&r.Source, &r.MobileLink, &r.Link); err != nil {
			return nil, err
		}
		raws = append(raws, r)
	}
	return raws, rows.Err()
}

func writeCleanRows(db *sql.DB, cleaned []model.CleanForecast) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cols := store.ForecastColumns
	stmt, err := tx.Prepare(`INSERT INTO ` + store.TransformTable + ` (` +
		store.ColumnList(cols) + `) VALUES (` + store.Placeholders(len(cols)) + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cleaned {
		if _, err := stmt.Exec(
			c.BatchID, c.DateTime.Format(model.SQLTime), c.LocationName, c.LocationKey,
			c.MinTempC, c.MaxTempC,
			c.DayIcon, c.DayPhrase, boolInt(c.DayPrecip), c.DayPrecipType, c.DayPrecipIntensity,
			c.NightIcon, c.NightPhrase, boolInt(c.NightPrecip), c.NightPrecipType, c.NightPrecipIntensity,
			c.Source, c.MobileLink, c.Link,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
