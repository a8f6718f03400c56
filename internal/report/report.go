package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/preprocess"
)

const (
	PlotsDir       = "plots"
	ComparisonPlot = "Model_R2_Comparison.png"
	CardImage      = "Summary_Card.png"
)

var barColor = color.RGBA{R: 135, G: 206, B: 235, A: 255}

// PrintSummary writes the aggregate performance block for recs.
func PrintSummary(w io.Writer, recs []models.Record) preprocess.Stats {
	s := preprocess.Summarize(recs)
	fmt.Fprintln(w, "\n=== SOLAR PERFORMANCE SUMMARY ===")
	fmt.Fprintf(w, "Records: %d\n", s.Records)
	fmt.Fprintf(w, "Cities: %d\n", s.Cities)
	fmt.Fprintf(w, "Avg Irradiance: %.2f\n", s.AvgIrradiance)
	fmt.Fprintf(w, "Avg DC Power: %.2f\n", s.AvgDCPower)
	fmt.Fprintln(w, "=================================")
	return s
}

type Visualizer struct {
	OutputDir string
	Out       io.Writer
}

func NewVisualizer(outputDir string) *Visualizer {
	return &Visualizer{OutputDir: outputDir, Out: os.Stdout}
}

// Run renders the model comparison chart from the saved summary table. A
// missing summary is logged and skipped. It returns the chart path, or "" when
// nothing was drawn.
func (v *Visualizer) Run(summaryPath string) (string, error) {
	if !dataset.Exists(summaryPath) {
		slog.Warn("report: no model summary found, run training first", "path", summaryPath)
		return "", nil
	}
	scores, err := dataset.ReadSummary(summaryPath)
	if err != nil {
		return "", fmt.Errorf("read summary: %w", err)
	}
	if len(scores) == 0 {
		slog.Warn("report: model summary is empty", "path", summaryPath)
		return "", nil
	}

	path := filepath.Join(v.OutputDir, PlotsDir, ComparisonPlot)
	if err := PlotModelComparison(path, scores); err != nil {
		return "", err
	}
	fmt.Fprintf(v.Out, "Saved model comparison plot to %s\n", path)
	return path, nil
}

// PlotModelComparison draws one bar per model at its Avg_R2.
func PlotModelComparison(path string, scores []models.ModelScore) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var values plotter.Values
	var names []string
	for _, s := range scores {
		// Bars cannot be drawn at NaN; unscored models are left off the chart.
		if math.IsNaN(s.AvgR2) || math.IsInf(s.AvgR2, 0) {
			slog.Warn("report: skipping unscored model", "model", s.Model)
			continue
		}
		values = append(values, s.AvgR2)
		names = append(names, s.Model)
	}
	if len(values) == 0 {
		return errors.New("no scored models to plot")
	}

	p := plot.New()
	p.Title.Text = "Model Comparison for Solar Power Prediction"
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Y.Label.Text = "Average R² Score"

	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
