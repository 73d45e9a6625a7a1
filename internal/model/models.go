package model

import "time"

// Batch lifecycle states recorded in batch_log.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// SQLTime is the datetime layout used for every sqlite column bound as text.
const SQLTime = "2006-01-02 15:04:05"

// ErrorMessageLimit bounds the error text persisted to batch_log.
const ErrorMessageLimit = 2000

// Batch is one lineage record: a single end-to-end unit of extracted data.
// Owned exclusively by the lineage tracker; transitions to a terminal state
// exactly once.
type Batch struct {
	BatchID        int64      `json:"batch_id"`
	SourceSystem   string     `json:"source_system"`
	SourceEndpoint string     `json:"source_endpoint"`
	SourceFile     string     `json:"source_file"`
	LocationName   string     `json:"location_name"`
	LocationKey    string     `json:"location_key"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Status         string     `json:"status"`
	TotalRecords   int64      `json:"total_records"`
	SuccessCount   int64      `json:"success_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// RawForecast is one forecast observation exactly as landed: every field is
// untyped text tagged with the batch that brought it in.
type RawForecast struct {
	BatchID              int64
	DateTime             string
	LocationName         string
	LocationKey          string
	MinTempC             string
	MaxTempC             string
	DayIcon              string
	DayPhrase            string
	DayPrecip            string
	DayPrecipType        string
	DayPrecipIntensity   string
	NightIcon            string
	NightPhrase          string
	NightPrecip          string
	NightPrecipType      string
	NightPrecipIntensity string
	Source               string
	MobileLink           string
	Link                 string
}

// CleanForecast is a validated, typed forecast observation produced by the
// transformer and merged into staging.
type CleanForecast struct {
	BatchID              int64
	DateTime             time.Time
	LocationName         string
	LocationKey          string
	MinTempC             float64
	MaxTempC             float64
	DayIcon              int
	DayPhrase            string
	DayPrecip            bool
	DayPrecipType        string
	DayPrecipIntensity   string
	NightIcon            int
	NightPhrase          string
	NightPrecip          bool
	NightPrecipType      string
	NightPrecipIntensity string
	Source               string
	MobileLink           string
	Link                 string
}

// Location is one configured forecast location together with its dedicated
// detail mart table.
type Location struct {
	Key       string `validate:"required,numeric"`
	Name      string `validate:"required"`
	MartTable string `validate:"required"`
}

// FactRow is a fact-table row joined to the date dimension, as extracted by
// the mart builder.
type FactRow struct {
	DateSK      int64
	LocationKey string
	DateTime    time.Time
	MinTempC    float64
	MaxTempC    float64
	DayIcon     int
	DayPhrase   string
	DayPrecip   bool
	NightIcon   int
	NightPhrase string
	NightPrecip bool
	Source      string
	CreatedAt   string
}

// AvgTemp is the per-row derived metric (min+max)/2.
func (f FactRow) AvgTemp() float64 { return (f.MinTempC + f.MaxTempC) / 2 }

// RainyDay reports whether either half of the day carries precipitation.
func (f FactRow) RainyDay() bool { return f.DayPrecip || f.NightPrecip }

// MonthKey derives the 6-digit year-month bucket directly from the row's
// timestamp. Upstream month columns are never trusted here.
func (f FactRow) MonthKey() int { return f.DateTime.Year()*100 + int(f.DateTime.Month()) }

// MonthlySummary is one aggregate mart row at month-and-location grain.
type MonthlySummary struct {
	MonthSK           int
	LocationKey       string
	AvgMaxTempC       float64
	AvgMinTempC       float64
	AvgTempC          float64
	TotalRainyDays    int
	TotalForecastDays int
}

// MonthlyOverview is one aggregate mart row at month grain, rolled up across
// all configured locations.
type MonthlyOverview struct {
	MonthSK        int
	AvgMaxTempC    float64
	AvgMinTempC    float64
	AvgTempC       float64
	TotalLocations int
	MaxRainyDays   int
}

// PipelineRun records one invocation of the pipeline runner.
type PipelineRun struct {
	ID           string     `json:"id"`
	Stage        string     `json:"stage"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
