package pipeline

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"weather-etl/internal/model"
	"weather-etl/internal/store"
	"weather-etl/pkg/utils"
)

const martLogFile = "load_mart_log.txt"

// MartBuilder publishes warehouse facts into the serving-layer marts: one
// detail table per configured location plus two monthly aggregates.
type MartBuilder struct {
	warehouseDB *sql.DB
	martDB      *sql.DB
	locations   []model.Location
	logPath     string
}

// NewMartBuilder wires a builder over the warehouse and mart databases for
// the configured locations. Progress lines go to the console and to a run
// log under logDir.
func NewMartBuilder(warehouseDB, martDB *sql.DB, locations []model.Location, logDir string) *MartBuilder {
	return &MartBuilder{
		warehouseDB: warehouseDB,
		martDB:      martDB,
		locations:   locations,
		logPath:     filepath.Join(logDir, martLogFile),
	}
}

// MartResult reports what a mart build did.
type MartResult struct {
	FactRows   int64
	DetailRows int64
	Summaries  int
	Overviews  int
}

// Build extracts the facts for the configured locations, refreshes each
// location's detail mart and recomputes both monthly aggregates. A location
// with no facts is skipped rather than truncated; aggregate rows are
// upserted so months outside the current forecast window keep their history.
func (b *MartBuilder) Build() (MartResult, error) {
	var res MartResult

	rows, err := b.extractFacts()
	if err != nil {
		return res, err
	}
	res.FactRows = int64(len(rows))
	b.log(fmt.Sprintf("extracted %d fact rows for %d locations", len(rows), len(b.locations)))

	byLocation := make(map[string][]model.FactRow)
	for _, r := range rows {
		byLocation[r.LocationKey] = append(byLocation[r.LocationKey], r)
	}

	for _, loc := range b.locations {
		facts := byLocation[loc.Key]
		if len(facts) == 0 {
			b.log(fmt.Sprintf("no facts for %s (%s), mart %s left untouched", loc.Name, loc.Key, loc.MartTable))
			continue
		}
		n, err := b.loadDetailMart(loc, facts)
		if err != nil {
			return res, fmt.Errorf("load detail mart %s: %w", loc.MartTable, err)
		}
		res.DetailRows += n
		b.log(fmt.Sprintf("mart %s refreshed with %d rows for %s", loc.MartTable, n, loc.Name))
	}

	summaries, overviews := Aggregate(rows)
	if err := b.loadSummaries(summaries); err != nil {
		return res, fmt.Errorf("load %s: %w", store.SummaryTable, err)
	}
	if err := b.loadOverviews(overviews); err != nil {
		return res, fmt.Errorf("load %s: %w", store.OverviewTable, err)
	}
	res.Summaries = len(summaries)
	res.Overviews = len(overviews)

	b.log(fmt.Sprintf("aggregates refreshed: %d summary rows, %d overview rows", res.Summaries, res.Overviews))
	fmt.Printf("✅ Mart build: %d detail rows, %d summaries, %d overviews\n",
		res.DetailRows, res.Summaries, res.Overviews)
	return res, nil
}

// extractFacts reads the fact table joined to dim_date, restricted to the
// configured location keys. Rows missing a timestamp or either temperature
// are dropped with a log line rather than aborting the build; averaging a
// missing temperature as zero would skew every mean downstream.
func (b *MartBuilder) extractFacts() ([]model.FactRow, error) {
	keys := make([]string, 0, len(b.locations))
	args := make([]any, 0, len(b.locations))
	for _, loc := range b.locations {
		keys = append(keys, "?")
		args = append(args, loc.Key)
	}

	q := `SELECT f.date_sk, f.location_key,
			COALESCE(f.date_time, ''),
			f.min_temp_c, f.max_temp_c,
			COALESCE(f.day_icon, 0), COALESCE(f.day_phrase, 'Unknown'), COALESCE(f.day_precip, 0),
			COALESCE(f.night_icon, 0), COALESCE(f.night_phrase, 'Unknown'), COALESCE(f.night_precip, 0),
			COALESCE(f.source, 'AccuWeather'), COALESCE(f.created_at, '')
		FROM ` + store.FactTable + ` f
		JOIN ` + store.DimDateTable + ` d ON f.date_sk = d.date_sk
		WHERE f.location_key IN (` + store.ColumnList(keys) + `)`

	rows, err := b.warehouseDB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}
	defer rows.Close()

	var out []model.FactRow
	dropped := 0
	for rows.Next() {
		var r model.FactRow
		var rawTime string
		var minTemp, maxTemp sql.NullFloat64
		var dayPrecip, nightPrecip int
		if err := rows.Scan(&r.DateSK, &r.LocationKey, &rawTime,
			&minTemp, &maxTemp,
			&r.DayIcon, &r.DayPhrase, &dayPrecip,
			&r.NightIcon, &r.NightPhrase, &nightPrecip,
			&r.Source, &r.CreatedAt); err != nil {
			return nil, err
		}
		ts, ok := ParseForecastTime(rawTime)
		if !ok || !minTemp.Valid || !maxTemp.Valid {
			dropped++
			continue
		}
		r.DateTime = ts
		r.MinTempC = minTemp.Float64
		r.MaxTempC = maxTemp.Float64
		r.DayPrecip = dayPrecip != 0
		r.NightPrecip = nightPrecip != 0
		out = append(out, r)
	}
	if dropped > 0 {
		b.log(fmt.Sprintf("dropped %d fact rows missing timestamp or temperatures", dropped))
	}
	return out, rows.Err()
}

// loadDetailMart upserts one location's facts into its detail mart table on
// (date_sk, location_key). Refreshed rows get a new last_updated stamp.
func (b *MartBuilder) loadDetailMart(loc model.Location, facts []model.FactRow) (int64, error) {
	if err := store.ValidateMartTable(loc.MartTable); err != nil {
		return 0, err
	}

	tx, err := b.martDB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cols := store.DetailMartColumns
	stmt, err := tx.Prepare(`INSERT INTO ` + loc.MartTable + ` (` +
		store.ColumnList(cols) + `, last_updated) VALUES (` + store.Placeholders(len(cols)+1) + `)
		ON CONFLICT(date_sk, location_key) DO UPDATE SET
			date_time = excluded.date_time,
			min_temp_c = excluded.min_temp_c,
			max_temp_c = excluded.max_temp_c,
			day_icon = excluded.day_icon,
			day_phrase = excluded.day_phrase,
			day_precip = excluded.day_precip,
			night_icon = excluded.night_icon,
			night_phrase = excluded.night_phrase,
			night_precip = excluded.night_precip,
			source = excluded.source,
			last_updated = excluded.last_updated`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(model.SQLTime)
	var n int64
	for _, f := range facts {
		if _, err := stmt.Exec(
			f.DateSK, f.LocationKey, f.DateTime.Format(model.SQLTime),
			f.MinTempC, f.MaxTempC,
			f.DayIcon, f.DayPhrase, boolInt(f.DayPrecip),
			f.NightIcon, f.NightPhrase, boolInt(f.NightPrecip),
			f.Source, f.CreatedAt, now,
		); err != nil {
			return 0, err
		}
		n++
	}
	return n, tx.Commit()
}

// Aggregate folds fact rows into month-and-location summaries and month-only
// overviews. Months come from each row's timestamp, never from upstream
// month columns. Results are ordered by month then location for stable
// output.
func Aggregate(rows []model.FactRow) ([]model.MonthlySummary, []model.MonthlyOverview) {
	type bucket struct {
		sumMax, sumMin, sumAvg float64
		rainy                  int
		days                   map[int64]bool
	}
	type key struct {
		month int
		loc   string
	}

	buckets := make(map[key]*bucket)
	for _, r := range rows {
		k := key{r.MonthKey(), r.LocationKey}
		bk := buckets[k]
		if bk == nil {
			bk = &bucket{days: make(map[int64]bool)}
			buckets[k] = bk
		}
		bk.sumMax += r.MaxTempC
		bk.sumMin += r.MinTempC
		bk.sumAvg += r.AvgTemp()
		if r.RainyDay() {
			bk.rainy++
		}
		bk.days[r.DateSK] = true
	}

	var summaries []model.MonthlySummary
	for k, bk := range buckets {
		n := float64(len(bk.days))
		if n == 0 {
			continue
		}
		summaries = append(summaries, model.MonthlySummary{
			MonthSK:           k.month,
			LocationKey:       k.loc,
			AvgMaxTempC:       bk.sumMax / n,
			AvgMinTempC:       bk.sumMin / n,
			AvgTempC:          bk.sumAvg / n,
			TotalRainyDays:    bk.rainy,
			TotalForecastDays: len(bk.days),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].MonthSK != summaries[j].MonthSK {
			return summaries[i].MonthSK < summaries[j].MonthSK
		}
		return summaries[i].LocationKey < summaries[j].LocationKey
	})

	type monthAgg struct {
		sumMax, sumMin, sumAvg float64
		locs                   int
		maxRainy               int
	}
	months := make(map[int]*monthAgg)
	for _, s := range summaries {
		m := months[s.MonthSK]
		if m == nil {
			m = &monthAgg{}
			months[s.MonthSK] = m
		}
		m.sumMax += s.AvgMaxTempC
		m.sumMin += s.AvgMinTempC
		m.sumAvg += s.AvgTempC
		m.locs++
		if s.TotalRainyDays > m.maxRainy {
			m.maxRainy = s.TotalRainyDays
		}
	}

	var overviews []model.MonthlyOverview
	for monthSK, m := range months {
		n := float64(m.locs)
		overviews = append(overviews, model.MonthlyOverview{
			MonthSK:        monthSK,
			AvgMaxTempC:    m.sumMax / n,
			AvgMinTempC:    m.sumMin / n,
			AvgTempC:       m.sumAvg / n,
			TotalLocations: m.locs,
			MaxRainyDays:   m.maxRainy,
		})
	}
	sort.Slice(overviews, func(i, j int) bool { return overviews[i].MonthSK < overviews[j].MonthSK })

	return summaries, overviews
}

func (b *MartBuilder) loadSummaries(summaries []model.MonthlySummary) error {
	now := time.Now().UTC().Format(model.SQLTime)
	for _, s := range summaries {
		_, err := b.martDB.Exec(`INSERT INTO `+store.SummaryTable+` (
				month_sk, location_key, avg_max_temp_c, avg_min_temp_c, avg_temp_c,
				total_rainy_days, total_forecast_days, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(month_sk, location_key) DO UPDATE SET
				avg_max_temp_c = excluded.avg_max_temp_c,
				avg_min_temp_c = excluded.avg_min_temp_c,
				avg_temp_c = excluded.avg_temp_c,
				total_rainy_days = excluded.total_rainy_days,
				total_forecast_days = excluded.total_forecast_days,
				last_updated = excluded.last_updated`,
			s.MonthSK, s.LocationKey, s.AvgMaxTempC, s.AvgMinTempC, s.AvgTempC,
			s.TotalRainyDays, s.TotalForecastDays, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *MartBuilder) loadOverviews(overviews []model.MonthlyOverview) error {
	now := time.Now().UTC().Format(model.SQLTime)
	for _, o := range overviews {
		_, err := b.martDB.Exec(`INSERT INTO `+store.OverviewTable+` (
				month_sk, avg_max_temp_c, avg_min_temp_c, avg_temp_c,
				total_locations, max_rainy_days, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(month_sk) DO UPDATE SET
				avg_max_temp_c = excluded.avg_max_temp_c,
				avg_min_temp_c = excluded.avg_min_temp_c,
				avg_temp_c = excluded.avg_temp_c,
				total_locations = excluded.total_locations,
				max_rainy_days = excluded.max_rainy_days,
				last_updated = excluded.last_updated`,
			o.MonthSK, o.AvgMaxTempC, o.AvgMinTempC, o.AvgTempC,
			o.TotalLocations, o.MaxRainyDays, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// log writes one stamped progress line to stdout and the mart run log.
func (b *MartBuilder) log(msg string) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(model.SQLTime), msg)
	fmt.Println("🧱 " + line)
	if err := utils.AppendLine(b.logPath, line); err != nil {
		fmt.Printf("⚠️ could not write mart log: %v\n", err)
	}
}
