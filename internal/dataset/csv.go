package dataset

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/solarcast/internal/models"
)

// Raw collector columns.
const (
	ColDate        = "DATE"
	ColCity        = "CITY"
	ColIrradiance  = "ALLSKY_SFC_SW_DWN"
	ColTemperature = "T2M"
	ColHumidity    = "RH2M"
	ColWindSpeed   = "WS2M"
)

// Cleaned and forecast columns.
const (
	ColSolarIrradiance = "Solar_Irradiance(kWh/m2)"
	ColTemperatureC    = "Temperature(C)"
	ColHumidityPct     = "Humidity(%)"
	ColWindSpeedMS     = "Wind_Speed(m/s)"
	ColActualDC        = "Actual_DC_Power(kW)"
	ColActualAC        = "Actual_AC_Power(kW)"
	ColPredictedDC     = "Predicted_DC_Power(kW)"
	ColPredictedAC     = "Predicted_AC_Power(kW)"
)

var (
	RawColumns        = []string{ColDate, ColIrradiance, ColTemperature, ColHumidity, ColWindSpeed, ColCity}
	CleanedColumns    = []string{ColDate, ColSolarIrradiance, ColTemperatureC, ColHumidityPct, ColWindSpeedMS, ColCity, ColActualDC, ColActualAC}
	ComparisonColumns = []string{"Actual", "Predicted", "Error", "Error_%"}
	SummaryColumns    = []string{"Model", "MAE_DC", "RMSE_DC", "R2_DC", "MAE_AC", "RMSE_AC", "R2_AC", "Avg_R2"}
	ForecastColumns   = []string{ColDate, ColCity, ColSolarIrradiance, ColTemperatureC, ColHumidityPct, ColWindSpeedMS, ColPredictedDC, ColPredictedAC}
)

// RenameMap maps raw collector columns to their cleaned names.
var RenameMap = map[string]string{
	ColIrradiance:  ColSolarIrradiance,
	ColTemperature: ColTemperatureC,
	ColHumidity:    ColHumidityPct,
	ColWindSpeed:   ColWindSpeedMS,
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FormatFloat renders a value the way the CSV files store it: shortest
// round-trip digits, empty for missing, inf for infinities.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeTable(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if len(rows) == 0 {
		// dataframe refuses to load a header with no rows.
		if _, err := f.WriteString(strings.Join(header, ",") + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return f.Close()
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	records = append(records, rows...)

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return fmt.Errorf("build table: %w", df.Err)
	}
	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// table is a loaded CSV whose numeric columns are typed as floats.
type table struct {
	df    dataframe.DataFrame
	names map[string]bool
}

func readTable(path string, floatCols []string) (*table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(string(b))
	if content == "" {
		return &table{names: map[string]bool{}}, nil
	}
	if !strings.Contains(content, "\n") {
		t := &table{names: make(map[string]bool)}
		for _, n := range strings.Split(content, ",") {
			t.names[strings.TrimSpace(n)] = true
		}
		return t, nil
	}

	types := make(map[string]series.Type, len(floatCols))
	for _, c := range floatCols {
		types[c] = series.Float
	}
	df := dataframe.ReadCSV(bytes.NewReader(b),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read %s: %w", path, df.Err)
	}

	t := &table{df: df, names: make(map[string]bool)}
	for _, n := range df.Names() {
		t.names[n] = true
	}
	return t, nil
}

func (t *table) rows() int {
	if len(t.names) == 0 {
		return 0
	}
	return t.df.Nrow()
}

func (t *table) has(col string) bool { return t.names[col] }

// floats returns a numeric column, all NaN when absent.
func (t *table) floats(col string) []float64 {
	if t.rows() == 0 {
		return nil
	}
	if !t.has(col) {
		out := make([]float64, t.rows())
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	return t.df.Col(col).Float()
}

// text returns a string column, all empty when absent.
func (t *table) text(col string) []string {
	if t.rows() == 0 {
		return nil
	}
	if !t.has(col) {
		return make([]string, t.rows())
	}
	recs := t.df.Col(col).Records()
	for i, r := range recs {
		if r == "NaN" {
			recs[i] = ""
		}
	}
	return recs
}

// dateLayouts are accepted in DATE columns, most specific last.
var dateLayouts = []string{
	models.DateLayout,
	"20060102",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a DATE cell in any of the layouts the pipeline has written or read.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
