package training

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/regress"
	"github.com/lox/solarcast/internal/store"
)

// MinRows is the smallest dataset worth splitting.
const MinRows = 5

const (
	TestFraction = 0.2
	DefaultSeed  = 42
	SummaryFile  = "model_performance_summary.csv"
	previewRows  = 10
)

// ModelSpec names a regressor and builds fresh instances of it.
type ModelSpec struct {
	Name string
	New  func() regress.Regressor
}

// DefaultModels is the comparison set, in reporting order.
func DefaultModels(seed uint64) []ModelSpec {
	return []ModelSpec{
		{Name: "Linear Regression", New: func() regress.Regressor { return regress.NewLinear() }},
		{Name: "Random Forest", New: func() regress.Regressor { return regress.NewRandomForest(200, seed) }},
		{Name: "Gradient Boosting", New: func() regress.Regressor { return regress.NewGradientBoosting(200, 0.1, 3) }},
		{Name: "XGBoost", New: func() regress.Regressor { return regress.NewXGBoost(300, 0.05, 6, 1) }},
	}
}

// Fitted holds one model's DC and AC fits and their test scores.
type Fitted struct {
	Name  string
	DC    regress.Regressor
	AC    regress.Regressor
	Score models.ModelScore
}

// Predict returns DC and AC estimates for each feature row.
func (f *Fitted) Predict(X *mat.Dense) (dc, ac []float64) {
	return f.DC.Predict(X), f.AC.Predict(X)
}

// Result is the outcome of a training pass.
type Result struct {
	// Scores are sorted by Avg_R2, best first.
	Scores    []models.ModelScore
	Models    map[string]*Fitted
	TrainRows int
	TestRows  int
}

// Best returns the fitted model with the highest Avg_R2, or nil if none scored.
func (r *Result) Best() *Fitted {
	if r == nil {
		return nil
	}
	for _, s := range r.Scores {
		if math.IsNaN(s.AvgR2) {
			continue
		}
		if f, ok := r.Models[s.Model]; ok {
			return f
		}
	}
	return nil
}

type Trainer struct {
	OutputDir string
	Seed      uint64
	Models    []ModelSpec
	Out       io.Writer

	// Store, when set, receives each model's scores.
	Store         *store.Store
	PipelineRunID *string
}

func New(outputDir string, seed uint64) *Trainer {
	return &Trainer{
		OutputDir: outputDir,
		Seed:      seed,
		Models:    DefaultModels(seed),
		Out:       os.Stdout,
	}
}

// FeatureMatrix builds the design matrix and both targets, skipping rows with
// any missing feature or target. It returns the indices of the rows kept.
func FeatureMatrix(recs []models.Record) (X *mat.Dense, dc, ac []float64, kept []int) {
	data := make([]float64, 0, len(recs)*len(models.FeatureNames))
	for i, r := range recs {
		f := r.Features()
		if !allFinite(f...) || !allFinite(r.DCPower, r.ACPower) {
			continue
		}
		data = append(data, f...)
		dc = append(dc, r.DCPower)
		ac = append(ac, r.ACPower)
		kept = append(kept, i)
	}
	if len(kept) == 0 {
		return &mat.Dense{}, nil, nil, nil
	}
	return mat.NewDense(len(kept), len(models.FeatureNames), data), dc, ac, kept
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Train splits the records, fits every model against both targets and writes
// the comparison and summary tables. It returns nil without error when there
// are too few rows to train on.
func (t *Trainer) Train(recs []models.Record) (*Result, error) {
	X, dc, ac, kept := FeatureMatrix(recs)
	if skipped := len(recs) - len(kept); skipped > 0 {
		slog.Warn("training: skipped rows with missing values", "rows", skipped)
	}
	if len(kept) < MinRows {
		slog.Warn("training: not enough data to train", "rows", len(kept), "min", MinRows)
		return nil, nil
	}

	trainIdx, testIdx := regress.Split(len(kept), TestFraction, t.Seed)
	Xtr, Xte := selectRows(X, trainIdx), selectRows(X, testIdx)
	dcTr, dcTe := pick(dc, trainIdx), pick(dc, testIdx)
	acTr, acTe := pick(ac, trainIdx), pick(ac, testIdx)

	fmt.Fprintf(t.Out, "Training and comparing %d models for DC & AC power prediction (%d train / %d test rows)\n",
		len(t.Models), len(trainIdx), len(testIdx))

	result := &Result{
		Models:    make(map[string]*Fitted, len(t.Models)),
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
	}

	for _, spec := range t.Models {
		fmt.Fprintf(t.Out, "\nTraining model: %s\n", spec.Name)
		slog.Debug("training: fitting", "model", spec.Name)

		fitted := &Fitted{Name: spec.Name, DC: spec.New(), AC: spec.New()}
		if err := fitted.DC.Fit(Xtr, dcTr); err != nil {
			return nil, fmt.Errorf("fit %s on DC: %w", spec.Name, err)
		}
		if err := fitted.AC.Fit(Xtr, acTr); err != nil {
			return nil, fmt.Errorf("fit %s on AC: %w", spec.Name, err)
		}
		predDC, predAC := fitted.Predict(Xte)

		score := models.ModelScore{
			Model:  spec.Name,
			MAEDC:  regress.MAE(dcTe, predDC),
			RMSEDC: regress.RMSE(dcTe, predDC),
			R2DC:   regress.R2(dcTe, predDC),
			MAEAC:  regress.MAE(acTe, predAC),
			RMSEAC: regress.RMSE(acTe, predAC),
			R2AC:   regress.R2(acTe, predAC),
		}
		score.AvgR2 = (score.R2DC + score.R2AC) / 2
		fitted.Score = score

		metrics.ModelR2.WithLabelValues(spec.Name, string(models.TargetDC)).Set(score.R2DC)
		metrics.ModelR2.WithLabelValues(spec.Name, string(models.TargetAC)).Set(score.R2AC)

		for _, target := range []struct {
			label             string
			actual, predicted []float64
		}{
			{"DC", dcTe, predDC},
			{"AC", acTe, predAC},
		} {
			rows := comparisonRows(target.actual, target.predicted)
			t.printComparison(spec.Name+"_"+target.label, rows)
			path := filepath.Join(t.OutputDir, fmt.Sprintf("%s_%s_comparison.csv", spec.Name, target.label))
			if err := dataset.WriteComparison(path, rows); err != nil {
				return nil, fmt.Errorf("write %s comparison: %w", target.label, err)
			}
		}

		if t.Store != nil {
			if err := t.Store.InsertModelScore(t.PipelineRunID, score, len(trainIdx), len(testIdx)); err != nil {
				slog.Warn("training: store model score", "model", spec.Name, "error", err)
			}
		}

		result.Models[spec.Name] = fitted
		result.Scores = append(result.Scores, score)
	}

	dataset.SortScores(result.Scores)
	summaryPath := filepath.Join(t.OutputDir, SummaryFile)
	if err := dataset.WriteSummary(summaryPath, result.Scores); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	fmt.Fprintf(t.Out, "\nResults saved to %s\n", summaryPath)

	return result, nil
}

func comparisonRows(actual, predicted []float64) []models.Comparison {
	rows := make([]models.Comparison, len(actual))
	for i := range actual {
		rows[i] = models.NewComparison(actual[i], predicted[i])
	}
	return rows
}

func (t *Trainer) printComparison(label string, rows []models.Comparison) {
	fmt.Fprintf(t.Out, "\n--- %s Comparison Table (sample) ---\n", label)
	tw := tabwriter.NewWriter(t.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Actual\tPredicted\tError\tError_%\t")
	for i, r := range rows {
		if i == previewRows {
			break
		}
		fmt.Fprintf(tw, "%.6f\t%.6f\t%.6f\t%.6f\t\n", r.Actual, r.Predicted, r.Error, r.ErrorPct)
	}
	tw.Flush()
}

func selectRows(X *mat.Dense, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return &mat.Dense{}
	}
	_, p := X.Dims()
	out := mat.NewDense(len(idx), p, nil)
	for k, i := range idx {
		out.SetRow(k, X.RawRowView(i))
	}
	return out
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}
