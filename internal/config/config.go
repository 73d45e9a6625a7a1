// Package config builds the single configuration object every component
// receives by reference. Nothing else in the repository reads the
// environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"weather-etl/internal/model"
)

// ConfigError means the pipeline cannot start: a connection or path setting
// is missing or malformed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

// Config carries every tunable the pipeline and its collaborators need.
type Config struct {
	// Logical databases.
	StagingDB   string `validate:"required"`
	WarehouseDB string `validate:"required"`
	MartDB      string `validate:"required"`

	// Directories.
	OutputDir string `validate:"required"` // extractor CSV output / raw loader input
	DumpDir   string `validate:"required"` // staging snapshots for the warehouse loader
	LogDir    string `validate:"required"`

	// Extraction.
	APIKey          string
	APIBaseURL      string        `validate:"required,url"`
	ExtractInterval time.Duration `validate:"required"`
	MetricsAddr     string

	// Lineage API.
	APIAddr string

	// Dimension seed file for dim_date.
	DimDateCSV string

	// Configured forecast locations with their detail mart tables.
	Locations []model.Location `validate:"required,min=1,dive"`
}

const defaultLocations = "353981:Ho Chi Minh:dm_hcm,353412:Ha Noi:dm_hanoi,427264:Da Nang:dm_danang"

// Load reads configuration from the environment with sensible defaults.
// A missing .env file is fine; explicit environment always wins.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: no .env file found: %v", err)
	}

	cfg := &Config{
		StagingDB:   os.Getenv("STAGING_DB_PATH"),
		WarehouseDB: os.Getenv("WAREHOUSE_DB_PATH"),
		MartDB:      os.Getenv("MART_DB_PATH"),
		OutputDir:   os.Getenv("OUTPUT_DIR"),
		DumpDir:     os.Getenv("DUMP_DIR"),
		LogDir:      getenvDefault("LOG_DIR", "logs"),
		APIKey:      os.Getenv("API_KEY"),
		APIBaseURL:  getenvDefault("API_BASE_URL", "https://dataservice.accuweather.com/forecasts/v1/daily/5day"),
		MetricsAddr: getenvDefault("METRICS_ADDR", ":9102"),
		APIAddr:     getenvDefault("API_ADDR", ":8080"),
		DimDateCSV:  getenvDefault("DIM_DATE_CSV", "date_dim_without_quarter.csv"),
	}

	intervalStr := getenvDefault("EXTRACT_INTERVAL", "2m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid EXTRACT_INTERVAL %q: %v", intervalStr, err)}
	}
	cfg.ExtractInterval = interval

	locs, err := parseLocations(getenvDefault("LOCATIONS", defaultLocations))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	return cfg, nil
}

// parseLocations parses "key:name:mart_table" triples separated by commas.
func parseLocations(raw string) ([]model.Location, error) {
	var locs []model.Location
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, &ConfigError{Reason: fmt.Sprintf("invalid LOCATIONS entry %q: want key:name:mart_table", part)}
		}
		locs = append(locs, model.Location{
			Key:       strings.TrimSpace(fields[0]),
			Name:      strings.TrimSpace(fields[1]),
			MartTable: strings.TrimSpace(fields[2]),
		})
	}
	if len(locs) == 0 {
		return nil, &ConfigError{Reason: "LOCATIONS is empty"}
	}
	return locs, nil
}

// MartTables lists the configured detail mart table names.
func (c *Config) MartTables() []string {
	tables := make([]string, 0, len(c.Locations))
	for _, loc := range c.Locations {
		tables = append(tables, loc.MartTable)
	}
	return tables
}

// LocationKeys lists the configured location keys.
func (c *Config) LocationKeys() []string {
	keys := make([]string, 0, len(c.Locations))
	for _, loc := range c.Locations {
		keys = append(keys, loc.Key)
	}
	return keys
}

// EndpointFor builds the forecast endpoint URL for one location key.
func (c *Config) EndpointFor(locationKey string) string {
	return strings.TrimRight(c.APIBaseURL, "/") + "/" + locationKey
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
