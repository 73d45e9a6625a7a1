package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"weather-etl/internal/lineage"
	"weather-etl/internal/model"
	"weather-etl/internal/store"
)

func TestParseForecastTime(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2026-08-01T07:00:00+07:00", "2026-08-01 07:00:00", true},
		{"2026-08-01T07:00:00Z", "2026-08-01 07:00:00", true},
		{"2026-08-01 07:00:00.123", "2026-08-01 07:00:00", true},
		{"2026-08-01", "2026-08-01 00:00:00", true},
		{"  2026-08-01  ", "2026-08-01 00:00:00", true},
		{"", "", false},
		{"yesterday", "", false},
		{"2026-13-40", "", false},
	}
	for _, c := range cases {
		got, ok := ParseForecastTime(c.in)
		if ok != c.ok {
			t.Errorf("ParseForecastTime(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got.Format(model.SQLTime) != c.want {
			t.Errorf("ParseForecastTime(%q) = %s, want %s", c.in, got.Format(model.SQLTime), c.want)
		}
	}
}

func TestCleanRecordCoercion(t *testing.T) {
	raw := model.RawForecast{
		BatchID:     1,
		DateTime:    "2026-08-01T07:00:00+07:00",
		MinTempC:    "22.5",
		MaxTempC:    "30",
		DayIcon:     "not-a-number",
		DayPrecip:   "1",
		NightIcon:   "33",
		NightPhrase: strings.Repeat("p", 150),
		NightPrecip: "0",
	}
	clean, ok := CleanRecord(raw)
	if !ok {
		t.Fatal("expected record to survive cleaning")
	}
	if clean.LocationName != defaultLocationName || clean.LocationKey != defaultLocationKey {
		t.Fatalf("expected location defaults, got %q/%q", clean.LocationName, clean.LocationKey)
	}
	if clean.Source != defaultSource {
		t.Fatalf("expected source default, got %q", clean.Source)
	}
	if clean.DayIcon != 0 {
		t.Fatalf("non-numeric icon must coerce to 0, got %d", clean.DayIcon)
	}
	if clean.NightIcon != 33 {
		t.Fatalf("expected icon 33, got %d", clean.NightIcon)
	}
	if clean.DayPhrase != defaultPhrase {
		t.Fatalf("expected phrase default, got %q", clean.DayPhrase)
	}
	if len(clean.NightPhrase) != phraseMaxLen {
		t.Fatalf("expected phrase truncated to %d, got %d", phraseMaxLen, len(clean.NightPhrase))
	}
	if clean.DayPrecipType != defaultPrecipText || clean.DayPrecipIntensity != defaultPrecipText {
		t.Fatalf("expected precip text defaults, got %q/%q", clean.DayPrecipType, clean.DayPrecipIntensity)
	}
	if !clean.DayPrecip {
		t.Fatal("day precip flag should be true for \"1\"")
	}
	if clean.NightPrecip {
		t.Fatal("night precip flag should be false for \"0\"")
	}
	if clean.DateTime.Format(model.SQLTime) != "2026-08-01 07:00:00" {
		t.Fatalf("unexpected timestamp %s", clean.DateTime.Format(model.SQLTime))
	}
}

func TestCleanRecordDropRules(t *testing.T) {
	base := model.RawForecast{
		DateTime: "2026-08-01",
		MinTempC: "20",
		MaxTempC: "30",
	}

	cases := []struct {
		name   string
		mutate func(*model.RawForecast)
	}{
		{"bad timestamp", func(r *model.RawForecast) { r.DateTime = "n/a" }},
		{"missing min temp", func(r *model.RawForecast) { r.MinTempC = "" }},
		{"non-numeric max temp", func(r *model.RawForecast) { r.MaxTempC = "hot" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := base
			c.mutate(&raw)
			if _, ok := CleanRecord(raw); ok {
				t.Fatal("expected record to be dropped")
			}
		})
	}

	if _, ok := CleanRecord(base); !ok {
		t.Fatal("baseline record should survive")
	}
}

func TestPrecipFlag(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		" 0 ":   false,
		"1":     true,
		"True":  true,
		"False": true, // textual booleans other than "0" count as present
	}
	for in, want := range cases {
		if got := precipFlag(in); got != want {
			t.Errorf("precipFlag(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTransformBatchEndToEnd(t *testing.T) {
	db := newStagingDB(t)
	tr := lineage.New(db)
	dir := t.TempDir()

	csv := sampleCSV +
		"bad-date,Ha Noi,353412,20,30,1,Sunny,0,,,33,Clear,0,,,AccuWeather,,,x\n"
	writeCSVFile(t, dir, "weather.csv", csv, time.Now())

	loaded, err := LoadRaw(db, tr, dir)
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}

	res, err := TransformBatch(db, tr)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if res.BatchID != loaded.BatchID {
		t.Fatalf("transform picked batch %d, want %d", res.BatchID, loaded.BatchID)
	}
	if res.RawCount != 3 || res.CleanCount != 2 || res.Dropped != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}

	if got := countRows(t, db, store.TransformTable); got != 2 {
		t.Fatalf("expected 2 clean rows, got %d", got)
	}
	if got := countRows(t, db, store.RawTable); got != 0 {
		t.Fatalf("raw rows must be cleared after success, got %d", got)
	}

	b, err := tr.Get(res.BatchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if b.Status != model.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", b.Status)
	}
	if b.TotalRecords != 3 {
		t.Fatalf("expected total_records 3, got %d", b.TotalRecords)
	}
	if b.SuccessCount != 2 {
		t.Fatalf("expected success_count 2, got %d", b.SuccessCount)
	}
}

func TestTransformBatchNoPendingData(t *testing.T) {
	db := newStagingDB(t)
	tr := lineage.New(db)

	_, err := TransformBatch(db, tr)
	if !errors.Is(err, model.ErrNoPendingData) {
		t.Fatalf("expected ErrNoPendingData, got %v", err)
	}
	if got := countRows(t, db, store.BatchLogTable); got != 0 {
		t.Fatalf("lineage touched with no pending data: %d rows", got)
	}
}

func TestTransformFailureClosesBatchAndKeepsRaw(t *testing.T) {
	db := newStagingDB(t)
	tr := lineage.New(db)
	dir := t.TempDir()
	writeCSVFile(t, dir, "weather.csv", sampleCSV, time.Now())

	loaded, err := LoadRaw(db, tr, dir)
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}

	// Sabotage the scratch table so the transform write blows up.
	if _, err := db.Exec(`DROP TABLE ` + store.TransformTable); err != nil {
		t.Fatalf("drop transform table: %v", err)
	}

	if _, err := TransformBatch(db, tr); err == nil {
		t.Fatal("expected transform to fail")
	}

	b, err := tr.Get(loaded.BatchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if b.Status != model.StatusFailed {
		t.Fatalf("expected FAILED, got %s", b.Status)
	}
	if b.ErrorMessage == "" {
		t.Fatal("expected failure text recorded against the batch")
	}
	if got := countRows(t, db, store.RawTable); got != 2 {
		t.Fatalf("raw rows must survive a failed transform for retry, got %d", got)
	}
}

func TestTransformResetsScratchTable(t *testing.T) {
	db := newStagingDB(t)
	tr := lineage.New(db)
	dir := t.TempDir()
	writeCSVFile(t, dir, "weather.csv", sampleCSV, time.Now())

	// Stale leftovers from an earlier run must not leak into this batch.
	if _, err := db.Exec(`INSERT INTO ` + store.TransformTable +
		` (batch_id, date_time) VALUES (99, '2020-01-01 00:00:00')`); err != nil {
		t.Fatalf("seed stale row: %v", err)
	}

	if _, err := LoadRaw(db, tr, dir); err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if _, err := TransformBatch(db, tr); err != nil {
		t.Fatalf("transform: %v", err)
	}

	var stale int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + store.TransformTable +
		` WHERE batch_id = 99`).Scan(&stale); err != nil {
		t.Fatalf("count stale: %v", err)
	}
	if stale != 0 {
		t.Fatalf("scratch table not reset, %d stale rows", stale)
	}
}
