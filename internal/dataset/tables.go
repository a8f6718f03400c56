package dataset

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/lox/solarcast/internal/models"
)

// RawRow is one line of the collector output, with DATE kept as text so the
// preprocessor can decide how to treat bad or missing dates.
type RawRow struct {
	Date        string
	City        string
	Irradiance  float64
	Temperature float64
	Humidity    float64
	WindSpeed   float64
}

// RawTable is the collector output as read back from disk.
type RawTable struct {
	Rows    []RawRow
	HasDate bool
}

func WriteRaw(path string, recs []models.RawRecord) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{
			r.Date.Format(models.DateLayout),
			FormatFloat(r.Irradiance),
			FormatFloat(r.Temperature),
			FormatFloat(r.Humidity),
			FormatFloat(r.WindSpeed),
			r.City,
		}
	}
	return writeTable(path, RawColumns, rows)
}

// ReadRaw loads the collector output. Absent numeric columns read as NaN.
func ReadRaw(path string) (*RawTable, error) {
	t, err := readTable(path, []string{ColIrradiance, ColTemperature, ColHumidity, ColWindSpeed})
	if err != nil {
		return nil, err
	}

	dates := t.text(ColDate)
	cities := t.text(ColCity)
	irr := t.floats(ColIrradiance)
	temp := t.floats(ColTemperature)
	hum := t.floats(ColHumidity)
	wind := t.floats(ColWindSpeed)

	out := &RawTable{HasDate: t.has(ColDate), Rows: make([]RawRow, t.rows())}
	for i := range out.Rows {
		out.Rows[i] = RawRow{
			Date:        dates[i],
			City:        cities[i],
			Irradiance:  irr[i],
			Temperature: temp[i],
			Humidity:    hum[i],
			WindSpeed:   wind[i],
		}
	}
	return out, nil
}

func WriteCleaned(path string, recs []models.Record) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{
			r.Date.Format(models.DateLayout),
			FormatFloat(r.Irradiance),
			FormatFloat(r.Temperature),
			FormatFloat(r.Humidity),
			FormatFloat(r.WindSpeed),
			r.City,
			FormatFloat(r.DCPower),
			FormatFloat(r.ACPower),
		}
	}
	return writeTable(path, CleanedColumns, rows)
}

// ReadCleaned loads the cleaned dataset. Rows whose DATE does not parse are
// skipped with a warning since they cannot be keyed.
func ReadCleaned(path string) ([]models.Record, error) {
	t, err := readTable(path, []string{ColSolarIrradiance, ColTemperatureC, ColHumidityPct, ColWindSpeedMS, ColActualDC, ColActualAC})
	if err != nil {
		return nil, err
	}
	for _, c := range CleanedColumns {
		if !t.has(c) && len(t.names) > 0 {
			return nil, fmt.Errorf("read %s: missing column %q", path, c)
		}
	}

	dates := t.text(ColDate)
	cities := t.text(ColCity)
	irr := t.floats(ColSolarIrradiance)
	temp := t.floats(ColTemperatureC)
	hum := t.floats(ColHumidityPct)
	wind := t.floats(ColWindSpeedMS)
	dc := t.floats(ColActualDC)
	ac := t.floats(ColActualAC)

	recs := make([]models.Record, 0, t.rows())
	skipped := 0
	for i := 0; i < t.rows(); i++ {
		date, err := ParseDate(dates[i])
		if err != nil {
			skipped++
			continue
		}
		recs = append(recs, models.Record{
			Date:        date,
			City:        cities[i],
			Irradiance:  irr[i],
			Temperature: temp[i],
			Humidity:    hum[i],
			WindSpeed:   wind[i],
			DCPower:     dc[i],
			ACPower:     ac[i],
		})
	}
	if skipped > 0 {
		slog.Warn("dataset: skipped cleaned rows with bad dates", "path", path, "rows", skipped)
	}
	return recs, nil
}

func WriteComparison(path string, rows []models.Comparison) error {
	out := make([][]string, len(rows))
	for i, c := range rows {
		out[i] = []string{
			FormatFloat(c.Actual),
			FormatFloat(c.Predicted),
			FormatFloat(c.Error),
			FormatFloat(c.ErrorPct),
		}
	}
	return writeTable(path, ComparisonColumns, out)
}

// WriteSummary writes model scores sorted by Avg_R2, best first.
func WriteSummary(path string, scores []models.ModelScore) error {
	sorted := append([]models.ModelScore(nil), scores...)
	SortScores(sorted)

	rows := make([][]string, len(sorted))
	for i, s := range sorted {
		rows[i] = []string{
			s.Model,
			FormatFloat(s.MAEDC),
			FormatFloat(s.RMSEDC),
			FormatFloat(s.R2DC),
			FormatFloat(s.MAEAC),
			FormatFloat(s.RMSEAC),
			FormatFloat(s.R2AC),
			FormatFloat(s.AvgR2),
		}
	}
	return writeTable(path, SummaryColumns, rows)
}

func ReadSummary(path string) ([]models.ModelScore, error) {
	t, err := readTable(path, SummaryColumns[1:])
	if err != nil {
		return nil, err
	}
	if !t.has("Model") || !t.has("Avg_R2") {
		return nil, fmt.Errorf("read %s: not a model summary", path)
	}

	names := t.text("Model")
	cols := make([][]float64, len(SummaryColumns)-1)
	for i, c := range SummaryColumns[1:] {
		cols[i] = t.floats(c)
	}

	scores := make([]models.ModelScore, t.rows())
	for i := range scores {
		scores[i] = models.ModelScore{
			Model:  names[i],
			MAEDC:  cols[0][i],
			RMSEDC: cols[1][i],
			R2DC:   cols[2][i],
			MAEAC:  cols[3][i],
			RMSEAC: cols[4][i],
			R2AC:   cols[5][i],
			AvgR2:  cols[6][i],
		}
	}
	return scores, nil
}

// SortScores orders scores by Avg_R2 descending. NaN scores sort last; ties keep input order.
func SortScores(scores []models.ModelScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i].AvgR2, scores[j].AvgR2
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})
}

func WriteForecast(path string, days []models.ForecastDay) error {
	rows := make([][]string, len(days))
	for i, d := range days {
		rows[i] = []string{
			d.Date.Format(models.DateLayout),
			d.City,
			FormatFloat(d.Irradiance),
			FormatFloat(d.Temperature),
			FormatFloat(d.Humidity),
			FormatFloat(d.WindSpeed),
			FormatFloat(d.PredictedDC),
			FormatFloat(d.PredictedAC),
		}
	}
	return writeTable(path, ForecastColumns, rows)
}

// ReadForecast loads a forecast table written by WriteForecast.
func ReadForecast(path string) ([]models.ForecastDay, error) {
	t, err := readTable(path, []string{ColSolarIrradiance, ColTemperatureC, ColHumidityPct, ColWindSpeedMS, ColPredictedDC, ColPredictedAC})
	if err != nil {
		return nil, err
	}

	dates := t.text(ColDate)
	cities := t.text(ColCity)
	irr := t.floats(ColSolarIrradiance)
	temp := t.floats(ColTemperatureC)
	hum := t.floats(ColHumidityPct)
	wind := t.floats(ColWindSpeedMS)
	dc := t.floats(ColPredictedDC)
	ac := t.floats(ColPredictedAC)

	days := make([]models.ForecastDay, 0, t.rows())
	for i := 0; i < t.rows(); i++ {
		date, err := ParseDate(dates[i])
		if err != nil {
			return nil, fmt.Errorf("read %s: row %d: %w", path, i+1, err)
		}
		days = append(days, models.ForecastDay{
			Date:        date,
			City:        cities[i],
			Irradiance:  irr[i],
			Temperature: temp[i],
			Humidity:    hum[i],
			WindSpeed:   wind[i],
			PredictedDC: dc[i],
			PredictedAC: ac[i],
		})
	}
	return days, nil
}
