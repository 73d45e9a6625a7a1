package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"weather-etl/internal/config"
	"weather-etl/internal/model"
)

const forecastJSON = `{
	"DailyForecasts": [
		{
			"Date": "2026-08-01T07:00:00+07:00",
			"Temperature": {"Minimum": {"Value": 22.5}, "Maximum": {"Value": 30}},
			"Day": {"Icon": 12, "IconPhrase": "Showers", "HasPrecipitation": true,
				"PrecipitationType": "Rain", "PrecipitationIntensity": "Light"},
			"Night": {"Icon": 33, "IconPhrase": "Clear", "HasPrecipitation": false},
			"Sources": ["AccuWeather"],
			"MobileLink": "http://m.example/1",
			"Link": "http://example/1"
		}
	]
}`

func testConfig(baseURL, outputDir string, locations ...model.Location) *config.Config {
	return &config.Config{
		OutputDir:  outputDir,
		APIBaseURL: baseURL,
		Locations:  locations,
	}
}

func TestFlattenPrecipFlags(t *testing.T) {
	f := dailyForecast{
		Date: "2026-08-01T07:00:00+07:00",
		Day:  halfDay{HasPrecipitation: true},
	}
	row := flatten("Ha Noi", "353412", f)
	if len(row) != len(csvHeader) {
		t.Fatalf("row has %d fields, header has %d", len(row), len(csvHeader))
	}
	// Flags are written as 1/0, never as textual booleans, so the
	// transformer's zero rule reads them back correctly.
	if row[7] != "1" {
		t.Fatalf("day_precip = %q, want \"1\"", row[7])
	}
	if row[12] != "0" {
		t.Fatalf("night_precip = %q, want \"0\"", row[12])
	}
}

func TestRunWritesCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		fmt.Fprint(w, forecastJSON)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := testConfig(srv.URL, dir, model.Location{Key: "353412", Name: "Ha Noi", MartTable: "dm_hanoi"})
	client := NewClient("test-key")

	res, err := Run(context.Background(), client, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Rows != 1 || res.Locations != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasSuffix(res.File, "weather_2026_Aug_01.csv") {
		t.Fatalf("file named after first forecast date, got %s", res.File)
	}

	f, err := os.Open(res.File)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 row, got %d records", len(records))
	}
	row := records[1]
	if row[0] != "2026-08-01T07:00:00+07:00" || row[2] != "353412" || row[4] != "30" {
		t.Fatalf("unexpected row %v", row)
	}
	if row[15] != "AccuWeather" {
		t.Fatalf("sources not joined: %q", row[15])
	}
}

func TestRunSkipsFailingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/404404") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, forecastJSON)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir(),
		model.Location{Key: "404404", Name: "Nowhere", MartTable: "dm_nowhere"},
		model.Location{Key: "353412", Name: "Ha Noi", MartTable: "dm_hanoi"},
	)
	client := NewClient("test-key")

	res, err := Run(context.Background(), client, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Locations != 1 || len(res.Skipped) != 1 || res.Skipped[0] != "404404" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Rows != 1 {
		t.Fatalf("expected surviving location's rows, got %d", res.Rows)
	}
}

func TestRunAllLocationsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir(), model.Location{Key: "353412", Name: "Ha Noi", MartTable: "dm_hanoi"})
	if _, err := Run(context.Background(), NewClient("k"), cfg); err == nil {
		t.Fatal("expected error when no data is collected")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, forecastJSON)
	}))
	defer srv.Close()

	client := NewClient("k")
	client.backoff.InitialInterval = time.Millisecond

	forecasts, err := client.fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(forecasts) != 1 || forecasts[0].Temperature.Maximum.Value != 30 {
		t.Fatalf("unexpected forecasts %+v", forecasts)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("k")
	client.backoff.InitialInterval = time.Millisecond

	if _, err := client.fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("client error retried: %d calls", calls)
	}
}
