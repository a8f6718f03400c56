package preprocess

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/models"
)

// PV model constants.
const (
	PanelEfficiency    = 0.20
	TempCoefficient    = -0.005 // per °C above ReferenceTemp
	ReferenceTemp      = 25.0
	InverterEfficiency = 0.9
)

// Drop reasons, used as the rows_dropped metric label.
const (
	DropBadDate       = "bad_date"
	DropMissingValue  = "missing_value"
	DropNonPositiveIr = "non_positive_irradiance"
)

// DCPower estimates panel output from daily irradiance and air temperature, floored at zero.
func DCPower(irradiance, temperature float64) float64 {
	return math.Max(0, irradiance*PanelEfficiency*(1+TempCoefficient*(temperature-ReferenceTemp)))
}

func ACPower(dc float64) float64 {
	return dc * InverterEfficiency
}

// Round3 rounds half to even at three decimals.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.RoundToEven(v*1000) / 1000
}

// Clean converts raw rows to records. today stamps every row when the DATE
// column is absent. The returned map counts dropped rows by reason.
func Clean(raw *dataset.RawTable, today time.Time) ([]models.Record, map[string]int) {
	dropped := make(map[string]int)
	stamp := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	recs := make([]models.Record, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		date := stamp
		if raw.HasDate {
			d, err := dataset.ParseDate(row.Date)
			if err != nil {
				dropped[DropBadDate]++
				continue
			}
			date = d
		}

		if math.IsNaN(row.Irradiance) || math.IsNaN(row.Temperature) {
			dropped[DropMissingValue]++
			continue
		}
		if row.Irradiance <= 0 {
			dropped[DropNonPositiveIr]++
			continue
		}

		dc := DCPower(row.Irradiance, row.Temperature)
		recs = append(recs, models.Record{
			Date:        date,
			City:        row.City,
			Irradiance:  Round3(row.Irradiance),
			Temperature: Round3(row.Temperature),
			Humidity:    Round3(row.Humidity),
			WindSpeed:   Round3(row.WindSpeed),
			DCPower:     Round3(dc),
			ACPower:     Round3(ACPower(dc)),
		})
	}
	return recs, dropped
}

// Merge appends fresh after existing and keeps the last record for each
// (date, city). Keys stay in order of first appearance.
func Merge(existing, fresh []models.Record) []models.Record {
	index := make(map[models.Key]int, len(existing)+len(fresh))
	out := make([]models.Record, 0, len(existing)+len(fresh))

	for _, batch := range [][]models.Record{existing, fresh} {
		for _, r := range batch {
			k := r.Key()
			if i, ok := index[k]; ok {
				out[i] = r
				continue
			}
			index[k] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// Stats are the aggregates printed after cleaning.
type Stats struct {
	Records       int
	Cities        int
	AvgIrradiance float64
	AvgDCPower    float64
}

// Summarize computes Stats over recs, ignoring missing values.
func Summarize(recs []models.Record) Stats {
	s := Stats{Records: len(recs), AvgIrradiance: math.NaN(), AvgDCPower: math.NaN()}
	cities := make(map[string]bool)
	var irrSum, dcSum float64
	var irrN, dcN int
	for _, r := range recs {
		if r.City != "" {
			cities[r.City] = true
		}
		if !math.IsNaN(r.Irradiance) {
			irrSum += r.Irradiance
			irrN++
		}
		if !math.IsNaN(r.DCPower) {
			dcSum += r.DCPower
			dcN++
		}
	}
	s.Cities = len(cities)
	if irrN > 0 {
		s.AvgIrradiance = irrSum / float64(irrN)
	}
	if dcN > 0 {
		s.AvgDCPower = dcSum / float64(dcN)
	}
	return s
}

// Preprocessor reads the raw file, cleans it, merges it into the cleaned
// dataset and writes the result back.
type Preprocessor struct {
	RawPath     string
	CleanedPath string
	// ParquetPath, when set, receives a columnar copy of the cleaned dataset.
	ParquetPath string

	Out io.Writer
	now func() time.Time
}

func New(rawPath, cleanedPath, parquetPath string) *Preprocessor {
	return &Preprocessor{
		RawPath:     rawPath,
		CleanedPath: cleanedPath,
		ParquetPath: parquetPath,
		Out:         os.Stdout,
		now:         time.Now,
	}
}

// Run returns the merged dataset, or nil without error when there is no raw data yet.
func (p *Preprocessor) Run() ([]models.Record, error) {
	if !dataset.Exists(p.RawPath) {
		slog.Warn("preprocess: no raw data found, run collect first", "path", p.RawPath)
		return nil, nil
	}

	raw, err := dataset.ReadRaw(p.RawPath)
	if err != nil {
		return nil, fmt.Errorf("read raw data: %w", err)
	}
	if !raw.HasDate {
		slog.Warn("preprocess: DATE column missing, stamping today's date")
	}

	fresh, dropped := Clean(raw, p.now().UTC())
	for reason, n := range dropped {
		metrics.RowsDropped.WithLabelValues(reason).Add(float64(n))
		slog.Info("preprocess: dropped rows", "reason", reason, "rows", n)
	}

	merged := fresh
	if dataset.Exists(p.CleanedPath) {
		slog.Info("preprocess: merging with existing cleaned data", "path", p.CleanedPath)
		existing, err := dataset.ReadCleaned(p.CleanedPath)
		if err != nil {
			return nil, fmt.Errorf("read cleaned data: %w", err)
		}
		merged = Merge(existing, fresh)
	}

	if err := dataset.WriteCleaned(p.CleanedPath, merged); err != nil {
		return nil, fmt.Errorf("write cleaned data: %w", err)
	}
	if p.ParquetPath != "" {
		if err := dataset.WriteCleanedParquet(p.ParquetPath, merged); err != nil {
			return nil, fmt.Errorf("write cleaned parquet: %w", err)
		}
	}
	metrics.RecordsCleaned.Set(float64(len(merged)))

	st := Summarize(merged)
	fmt.Fprintf(p.Out, "Cleaned & merged dataset saved to %s\n", p.CleanedPath)
	fmt.Fprintf(p.Out, "Records: %d | Cities: %d\n", st.Records, st.Cities)
	fmt.Fprintf(p.Out, "Avg Irradiance: %.2f\n", st.AvgIrradiance)
	return merged, nil
}
