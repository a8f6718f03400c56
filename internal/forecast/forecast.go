package forecast

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/training"
)

const (
	Days         = 7
	ForecastFile = "predicted_next_7_days.csv"
	PlotsDir     = "plots"
)

// ErrNoModel is returned when training produced nothing usable.
var ErrNoModel = errors.New("no trained model available")

// Range is a half-open interval [Min, Max) for a synthetic input.
type Range struct {
	Min, Max float64
}

func (r Range) draw(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// InputRanges bound the synthetic weather drawn for each forecast day.
type InputRanges struct {
	Irradiance  Range
	Temperature Range
	Humidity    Range
	WindSpeed   Range
}

var DefaultRanges = InputRanges{
	Irradiance:  Range{4, 7},
	Temperature: Range{25, 38},
	Humidity:    Range{40, 75},
	WindSpeed:   Range{1, 5},
}

type Forecaster struct {
	OutputDir string
	Cities    []models.City
	Seed      uint64
	Ranges    InputRanges
	Out       io.Writer

	// SkipPlots disables PNG rendering.
	SkipPlots bool

	now func() time.Time
}

func New(outputDir string, cities []models.City, seed uint64) *Forecaster {
	return &Forecaster{
		OutputDir: outputDir,
		Cities:    cities,
		Seed:      seed,
		Ranges:    DefaultRanges,
		Out:       os.Stdout,
		now:       time.Now,
	}
}

// Inputs draws Days rows of weather per city, starting today.
func (f *Forecaster) Inputs() []models.ForecastDay {
	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x5851f42d4c957f2d))
	now := f.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	days := make([]models.ForecastDay, 0, len(f.Cities)*Days)
	for _, city := range f.Cities {
		for d := 0; d < Days; d++ {
			days = append(days, models.ForecastDay{
				Date:        today.AddDate(0, 0, d),
				City:        city.Name,
				Irradiance:  f.Ranges.Irradiance.draw(rng),
				Temperature: f.Ranges.Temperature.draw(rng),
				Humidity:    f.Ranges.Humidity.draw(rng),
				WindSpeed:   f.Ranges.WindSpeed.draw(rng),
			})
		}
	}
	return days
}

// Predict fills in DC and AC power using the best-scoring model in result.
func Predict(result *training.Result, days []models.ForecastDay) (*training.Fitted, error) {
	best := result.Best()
	if best == nil {
		return nil, ErrNoModel
	}
	if len(days) == 0 {
		return best, nil
	}

	X := mat.NewDense(len(days), len(models.FeatureNames), nil)
	for i, d := range days {
		X.SetRow(i, []float64{d.Irradiance, d.Temperature, d.Humidity, d.WindSpeed})
	}
	dc, ac := best.Predict(X)
	for i := range days {
		days[i].PredictedDC = dc[i]
		days[i].PredictedAC = ac[i]
	}
	return best, nil
}

// Run generates, predicts and persists the forecast.
func (f *Forecaster) Run(result *training.Result) ([]models.ForecastDay, error) {
	days := f.Inputs()
	best, err := Predict(result, days)
	if err != nil {
		return nil, err
	}
	slog.Info("forecast: using model", "model", best.Name, "avg_r2", best.Score.AvgR2)
	fmt.Fprintf(f.Out, "Using model for forecasting: %s\n", best.Name)

	path := filepath.Join(f.OutputDir, ForecastFile)
	if err := dataset.WriteForecast(path, days); err != nil {
		return nil, fmt.Errorf("write forecast: %w", err)
	}
	metrics.ForecastDays.Add(float64(len(days)))
	fmt.Fprintf(f.Out, "Forecast saved to %s\n", path)

	if f.SkipPlots {
		return days, nil
	}
	plotDir := filepath.Join(f.OutputDir, PlotsDir)
	for city, rows := range groupByCity(days) {
		if err := PlotCity(plotDir, city, rows); err != nil {
			return nil, fmt.Errorf("plot %s: %w", city, err)
		}
	}
	fmt.Fprintf(f.Out, "Forecast plots saved under %s\n", plotDir)
	return days, nil
}

func groupByCity(days []models.ForecastDay) map[string][]models.ForecastDay {
	out := make(map[string][]models.ForecastDay)
	for _, d := range days {
		out[d.City] = append(out[d.City], d)
	}
	return out
}

// PlotPath is where the weekly chart for city is written.
func PlotPath(dir, city string) string {
	return filepath.Join(dir, city+"_Next7DaysForecast.png")
}

var (
	dcColor = color.RGBA{R: 0xd0, G: 0x70, B: 0x20, A: 0xff}
	acColor = color.RGBA{R: 0x4f, G: 0xc3, B: 0xf7, A: 0xff}
)

// PlotCity renders DC and AC predictions for one city as marked lines.
func PlotCity(dir, city string, days []models.ForecastDay) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dc := make(plotter.XYs, len(days))
	ac := make(plotter.XYs, len(days))
	for i, d := range days {
		x := float64(d.Date.Unix())
		dc[i] = plotter.XY{X: x, Y: d.PredictedDC}
		ac[i] = plotter.XY{X: x, Y: d.PredictedAC}
	}

	p := plot.New()
	p.Title.Text = city + " - Next 7 Days Solar Power Forecast"
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Power (kW)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	for _, s := range []struct {
		label string
		xys   plotter.XYs
		shape draw.GlyphDrawer
		color color.Color
	}{
		{"Predicted DC Power", dc, draw.CircleGlyph{}, dcColor},
		{"Predicted AC Power", ac, draw.CrossGlyph{}, acColor},
	} {
		line, points, err := plotter.NewLinePoints(s.xys)
		if err != nil {
			return err
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		points.GlyphStyle.Shape = s.shape
		points.GlyphStyle.Color = s.color
		points.GlyphStyle.Radius = vg.Points(3)
		p.Add(line, points)
		p.Legend.Add(s.label, line, points)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 5*vg.Inch, PlotPath(dir, city))
}
