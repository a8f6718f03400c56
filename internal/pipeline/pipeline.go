package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/forecast"
	"github.com/lox/solarcast/internal/ingest"
	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/preprocess"
	"github.com/lox/solarcast/internal/report"
	"github.com/lox/solarcast/internal/store"
	"github.com/lox/solarcast/internal/training"
)

const (
	StageCollect    = "collect"
	StagePreprocess = "preprocess"
	StageTrain      = "train"
	StageSummary    = "summary"
	StageForecast   = "forecast"
	StageVisualize  = "visualize"
)

// Audit defaults.
const (
	DefaultPayloadRetentionDays = 90
	healthWindowDays            = 7
	recentFailures              = 5
	trendRuns                   = 5
)

type Config struct {
	DataDir   string
	OutputDir string
	Cities    []models.City
	Days      int
	Seed      uint64
	// Replay rebuilds the raw dataset from archived payloads instead of the API.
	Replay bool
	// PayloadRetentionDays bounds the raw payload archive. Zero uses the default.
	PayloadRetentionDays int
}

// Paths is the on-disk layout derived from Config.
type Paths struct {
	Raw      string
	Cleaned  string
	Parquet  string
	Summary  string
	Forecast string
	Plots    string
}

func (c Config) Paths() Paths {
	cleaned := filepath.Join(c.DataDir, "cleaned")
	return Paths{
		Raw:      filepath.Join(c.DataDir, "combined_data.csv"),
		Cleaned:  filepath.Join(cleaned, "cleaned_data.csv"),
		Parquet:  filepath.Join(cleaned, "cleaned_data.parquet"),
		Summary:  filepath.Join(c.OutputDir, training.SummaryFile),
		Forecast: filepath.Join(c.OutputDir, forecast.ForecastFile),
		Plots:    filepath.Join(c.OutputDir, report.PlotsDir),
	}
}

type Pipeline struct {
	cfg    Config
	paths  Paths
	store  *store.Store
	client *ingest.PowerClient
	Out    io.Writer

	now func() time.Time
}

// New creates a pipeline. st may be nil, which disables run auditing.
func New(cfg Config, st *store.Store) *Pipeline {
	if len(cfg.Cities) == 0 {
		cfg.Cities = append([]models.City(nil), models.DefaultCities...)
	}
	if cfg.Days <= 0 {
		cfg.Days = ingest.DefaultDays
	}
	if cfg.PayloadRetentionDays <= 0 {
		cfg.PayloadRetentionDays = DefaultPayloadRetentionDays
	}
	return &Pipeline{
		cfg:    cfg,
		paths:  cfg.Paths(),
		store:  st,
		client: ingest.NewPowerClient(),
		Out:    os.Stdout,
		now:    time.Now,
	}
}

// WithClient replaces the NASA POWER client.
func (p *Pipeline) WithClient(c *ingest.PowerClient) *Pipeline {
	p.client = c
	return p
}

func (p *Pipeline) Paths() Paths { return p.paths }

// stage wraps fn with an audit row, a duration gauge and a log line.
func (p *Pipeline) stage(name string, fn func(runID *string) (int, error)) error {
	start := time.Now()

	var run *store.PipelineRun
	var runID *string
	if p.store != nil {
		r, err := p.store.StartPipelineRun(name)
		if err != nil {
			slog.Warn("pipeline: start run audit", "stage", name, "error", err)
		} else {
			run, runID = r, &r.ID
		}
	}

	n, err := fn(runID)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(name).Set(elapsed.Seconds())

	if run != nil {
		run.Records = sql.NullInt64{Int64: int64(n), Valid: true}
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := p.store.CompletePipelineRun(run); cerr != nil {
			slog.Warn("pipeline: complete run audit", "stage", name, "error", cerr)
		}
	}

	if err != nil {
		slog.Error("pipeline: stage failed", "stage", name, "duration", elapsed, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	slog.Info("pipeline: stage complete", "stage", name, "records", n, "duration", elapsed)
	return nil
}

// Collect fetches every city and writes the raw dataset. Nothing is written
// when no city produced records.
func (p *Pipeline) Collect(ctx context.Context) (*ingest.CollectResult, error) {
	var result *ingest.CollectResult
	err := p.stage(StageCollect, func(runID *string) (int, error) {
		c := ingest.NewCollector(p.client, p.store, p.cfg.Cities, p.cfg.Days)
		c.Replay = p.cfg.Replay
		c.PipelineRunID = runID

		res, err := c.Collect(ctx)
		if err != nil {
			return 0, err
		}
		result = res
		p.pruneArchive()
		if res.Failures != nil {
			slog.Warn("pipeline: some cities failed", "failed", len(res.Failures.Errors), "error", res.Failures.ErrorOrNil())
		}
		if len(res.Records) == 0 {
			fmt.Fprintln(p.Out, "No data collected.")
			return 0, nil
		}
		if err := dataset.WriteRaw(p.paths.Raw, res.Records); err != nil {
			return 0, fmt.Errorf("write raw data: %w", err)
		}
		fmt.Fprintf(p.Out, "Combined data saved to %s (%d records, %d cities)\n",
			p.paths.Raw, len(res.Records), len(res.Succeeded))
		return len(res.Records), nil
	})
	return result, err
}

// pruneArchive drops archived payloads older than the retention window.
func (p *Pipeline) pruneArchive() {
	if p.store == nil {
		return
	}
	n, err := p.store.CleanupOldRawPayloads(p.cfg.PayloadRetentionDays)
	if err != nil {
		slog.Warn("pipeline: prune payload archive", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pipeline: pruned payload archive", "payloads", n, "retention_days", p.cfg.PayloadRetentionDays)
	}
}

// Preprocess cleans the raw dataset and merges it into the cleaned one.
func (p *Pipeline) Preprocess() ([]models.Record, error) {
	var recs []models.Record
	err := p.stage(StagePreprocess, func(*string) (int, error) {
		pp := preprocess.New(p.paths.Raw, p.paths.Cleaned, p.paths.Parquet)
		pp.Out = p.Out
		out, err := pp.Run()
		recs = out
		return len(out), err
	})
	return recs, err
}

func (p *Pipeline) loadCleaned() ([]models.Record, error) {
	if !dataset.Exists(p.paths.Cleaned) {
		slog.Warn("pipeline: no cleaned data found, run preprocess first", "path", p.paths.Cleaned)
		return nil, nil
	}
	return dataset.ReadCleaned(p.paths.Cleaned)
}

// Train fits and compares the models. recs nil means load the cleaned dataset.
// The result is nil when there was too little data.
func (p *Pipeline) Train(recs []models.Record) (*training.Result, error) {
	var result *training.Result
	err := p.stage(StageTrain, func(runID *string) (int, error) {
		if recs == nil {
			loaded, err := p.loadCleaned()
			if err != nil {
				return 0, fmt.Errorf("read cleaned data: %w", err)
			}
			recs = loaded
		}
		tr := training.New(p.cfg.OutputDir, p.cfg.Seed)
		tr.Out = p.Out
		tr.Store = p.store
		tr.PipelineRunID = runID

		res, err := tr.Train(recs)
		if err != nil {
			return 0, err
		}
		result = res
		if res == nil {
			return 0, nil
		}
		return res.TrainRows + res.TestRows, nil
	})
	return result, err
}

// Summary prints the aggregate statistics and renders the summary card.
// recs nil means load the cleaned dataset.
func (p *Pipeline) Summary(recs []models.Record, result *training.Result) error {
	return p.stage(StageSummary, func(*string) (int, error) {
		if recs == nil {
			loaded, err := p.loadCleaned()
			if err != nil {
				return 0, fmt.Errorf("read cleaned data: %w", err)
			}
			if loaded == nil {
				return 0, nil
			}
			recs = loaded
		}
		stats := report.PrintSummary(p.Out, recs)

		best := p.bestScore(result)
		card := report.CardData{Stats: stats, Best: best, GeneratedAt: p.now()}
		if err := report.WriteCard(filepath.Join(p.paths.Plots, report.CardImage), card); err != nil {
			return 0, fmt.Errorf("summary card: %w", err)
		}
		p.printAudit(best)
		return stats.Records, nil
	})
}

// printAudit reports collection health, the last run of each stage and the
// best model's score history from the audit store. Query failures are logged.
func (p *Pipeline) printAudit(best *models.ModelScore) {
	if p.store == nil {
		return
	}

	cities, err := p.store.GetCities()
	if err != nil {
		slog.Warn("pipeline: read cities", "error", err)
		return
	}
	health, err := p.store.GetIngestHealth(healthWindowDays)
	if err != nil {
		slog.Warn("pipeline: read ingest health", "error", err)
		return
	}
	failures, err := p.store.GetRecentIngestErrors(recentFailures)
	if err != nil {
		slog.Warn("pipeline: read ingest errors", "error", err)
		return
	}
	report.PrintIngestHealth(p.Out, healthWindowDays, cities, health, failures)

	if runs, err := p.store.GetLatestPipelineRuns(); err != nil {
		slog.Warn("pipeline: read stage runs", "error", err)
	} else {
		report.PrintStageRuns(p.Out, runs)
	}

	if best == nil {
		return
	}
	history, err := p.store.GetModelScoreHistory(best.Model, trendRuns)
	if err != nil {
		slog.Warn("pipeline: read model score history", "model", best.Model, "error", err)
		return
	}
	report.PrintScoreTrend(p.Out, best.Model, history)
}

// bestScore prefers the in-memory result and falls back to the saved summary.
func (p *Pipeline) bestScore(result *training.Result) *models.ModelScore {
	if best := result.Best(); best != nil {
		s := best.Score
		return &s
	}
	if !dataset.Exists(p.paths.Summary) {
		return nil
	}
	scores, err := dataset.ReadSummary(p.paths.Summary)
	if err != nil {
		slog.Warn("pipeline: read model summary", "error", err)
		return nil
	}
	for _, s := range scores {
		if !math.IsNaN(s.AvgR2) {
			return &s
		}
	}
	return nil
}

// Forecast predicts the coming week. Models are not persisted, so a nil
// result retrains from the cleaned dataset first.
func (p *Pipeline) Forecast(result *training.Result) ([]models.ForecastDay, error) {
	if result == nil {
		res, err := p.Train(nil)
		if err != nil {
			return nil, err
		}
		if res == nil {
			slog.Warn("pipeline: no trained model, skipping forecast")
			return nil, nil
		}
		result = res
	}

	var days []models.ForecastDay
	err := p.stage(StageForecast, func(*string) (int, error) {
		f := forecast.New(p.cfg.OutputDir, p.cfg.Cities, p.cfg.Seed)
		f.Out = p.Out
		out, err := f.Run(result)
		days = out
		return len(out), err
	})
	return days, err
}

// Visualize renders the model comparison chart from the saved summary.
func (p *Pipeline) Visualize() error {
	return p.stage(StageVisualize, func(*string) (int, error) {
		v := report.NewVisualizer(p.cfg.OutputDir)
		v.Out = p.Out
		path, err := v.Run(p.paths.Summary)
		if err != nil || path == "" {
			return 0, err
		}
		return 1, nil
	})
}

// Run executes every stage in order. Stages with nothing to work on are
// skipped with a warning rather than failing the run.
func (p *Pipeline) Run(ctx context.Context) error {
	fmt.Fprintln(p.Out, "Collecting data...")
	if _, err := p.Collect(ctx); err != nil {
		return err
	}

	fmt.Fprintln(p.Out, "\nPreprocessing data...")
	recs, err := p.Preprocess()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintln(p.Out, "\nTraining models...")
	result, err := p.Train(recs)
	if err != nil {
		return err
	}

	fmt.Fprintln(p.Out, "\nGenerating summary...")
	if err := p.Summary(recs, result); err != nil {
		return err
	}

	if result != nil {
		fmt.Fprintln(p.Out, "\nForecasting next 7 days of solar power...")
		if _, err := p.Forecast(result); err != nil {
			return err
		}
	} else {
		slog.Warn("pipeline: no trained model, skipping forecast")
	}

	fmt.Fprintln(p.Out, "\nVisualizing results...")
	if err := p.Visualize(); err != nil {
		return err
	}

	fmt.Fprintf(p.Out, "\nDone! Check the '%s' folder for results.\n", p.cfg.OutputDir)
	return nil
}
