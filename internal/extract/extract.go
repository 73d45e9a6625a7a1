package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"weather-etl/internal/config"
	"weather-etl/pkg/utils"
)

// csvHeader is the flat column order the raw loader expects to find.
var csvHeader = []string{
	"date", "location_name", "location_key", "min_temp", "max_temp",
	"day_icon", "day_phrase", "day_precip", "day_precip_type", "day_precip_intensity",
	"night_icon", "night_phrase", "night_precip", "night_precip_type", "night_precip_intensity",
	"source", "mobile_link", "link",
}

// Result reports one extraction run.
type Result struct {
	File      string
	Rows      int
	Locations int
	Skipped   []string
}

// Run fetches forecasts for every configured location and writes them to one
// CSV file in the output directory. A failing location is skipped with a
// console note so the remaining locations still land; no data at all is an
// error. The file is named after the first successful location's first
// forecast date, so re-extracting the same forecast window overwrites the
// same file.
func Run(ctx context.Context, client *Client, cfg *config.Config) (Result, error) {
	var res Result
	var rows [][]string
	var representativeDate time.Time

	for _, loc := range cfg.Locations {
		forecasts, err := client.fetch(ctx, cfg.EndpointFor(loc.Key))
		if err != nil {
			fmt.Printf("⚠️ Extract: skipping %s (%s): %v\n", loc.Name, loc.Key, err)
			res.Skipped = append(res.Skipped, loc.Key)
			continue
		}
		res.Locations++

		for _, f := range forecasts {
			if representativeDate.IsZero() {
				if ts, ok := parseForecastDate(f.Date); ok {
					representativeDate = ts
				}
			}
			rows = append(rows, flatten(loc.Name, loc.Key, f))
		}
		fmt.Printf("🌤 Extract: %d forecasts for %s (%s)\n", len(forecasts), loc.Name, loc.Key)
	}

	if len(rows) == 0 {
		return res, fmt.Errorf("no forecast data collected from any location")
	}
	if representativeDate.IsZero() {
		representativeDate = time.Now().UTC()
	}

	if err := utils.EnsureDir(cfg.OutputDir); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	file := filepath.Join(cfg.OutputDir, fmt.Sprintf("weather_%s.csv", representativeDate.Format("2006_Jan_02")))
	if err := writeCSV(file, rows); err != nil {
		return res, err
	}

	res.File = file
	res.Rows = len(rows)
	fmt.Printf("✅ Extract: %d rows for %d locations written to %s\n", res.Rows, res.Locations, file)
	return res, nil
}

// flatten turns one daily forecast into a CSV row in csvHeader order.
// Precipitation flags are written as "1"/"0" so the transformer's textual
// zero rule reads them back correctly.
func flatten(locName, locKey string, f dailyForecast) []string {
	return []string{
		f.Date,
		locName,
		locKey,
		strconv.FormatFloat(f.Temperature.Minimum.Value, 'f', -1, 64),
		strconv.FormatFloat(f.Temperature.Maximum.Value, 'f', -1, 64),
		strconv.Itoa(f.Day.Icon),
		f.Day.IconPhrase,
		flagString(f.Day.HasPrecipitation),
		f.Day.PrecipitationType,
		f.Day.PrecipitationIntensity,
		strconv.Itoa(f.Night.Icon),
		f.Night.IconPhrase,
		flagString(f.Night.HasPrecipitation),
		f.Night.PrecipitationType,
		f.Night.PrecipitationIntensity,
		strings.Join(f.Sources, ", "),
		f.MobileLink,
		f.Link,
	}
}

func flagString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// parseForecastDate handles the upstream ISO timestamp with its offset.
func parseForecastDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
