package store

import (
	"fmt"
	"regexp"
	"strings"
)

// The only identifiers that may ever be spliced into SQL text are the table
// constants above, the column lists below, and detail-mart names that pass
// ValidateMartTable. Data values always go through placeholders.

var martTableRe = regexp.MustCompile(`^dm_[a-z][a-z0-9_]{0,29}$`)

// ForecastColumns is the shared column set of the raw, transform and staging
// forecast tables (staging adds bookkeeping columns on top).
var ForecastColumns = []string{
	"batch_id", "date_time", "location_name", "location_key",
	"min_temp_c", "max_temp_c",
	"day_icon", "day_phrase", "day_precip", "day_precip_type", "day_precip_intensity",
	"night_icon", "night_phrase", "night_precip", "night_precip_type", "night_precip_intensity",
	"source", "mobile_link", "link",
}

// RawSourceRenames maps extractor CSV column names onto the raw table's
// canonical names. Columns absent from ForecastColumns after renaming are
// dropped by the raw loader.
var RawSourceRenames = map[string]string{
	"date":     "date_time",
	"min_temp": "min_temp_c",
	"max_temp": "max_temp_c",
}

// DetailMartColumns is the column subset copied into each per-location
// detail mart.
var DetailMartColumns = []string{
	"date_sk", "location_key", "date_time", "min_temp_c", "max_temp_c",
	"day_icon", "day_phrase", "day_precip",
	"night_icon", "night_phrase", "night_precip",
	"source", "created_at",
}

// ValidateMartTable rejects any detail-mart table name outside the dm_ slug
// shape. Mart names are the only identifiers that originate in configuration.
func ValidateMartTable(name string) error {
	if !martTableRe.MatchString(name) {
		return fmt.Errorf("invalid mart table name %q: must match %s", name, martTableRe.String())
	}
	return nil
}

// ColumnList renders a column slice as a comma-separated SQL fragment.
func ColumnList(cols []string) string { return strings.Join(cols, ", ") }

// Placeholders renders n comma-separated ? markers.
func Placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
