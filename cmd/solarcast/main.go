package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/solarcast/internal/ingest"
	"github.com/lox/solarcast/internal/logging"
	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/pipeline"
	"github.com/lox/solarcast/internal/store"
)

type Globals struct {
	DataDir     string `help:"Directory for raw and cleaned datasets." default:"data" env:"SOLARCAST_DATA_DIR"`
	OutputDir   string `help:"Directory for model tables, forecasts and plots." default:"output" env:"SOLARCAST_OUTPUT_DIR"`
	DB          string `help:"SQLite audit database (empty disables auditing)." default:"data/solarcast.db" env:"SOLARCAST_DB"`
	CitiesFile  string `help:"YAML file overriding the default city list." env:"SOLARCAST_CITIES_FILE"`
	Days        int    `help:"Days of history to collect per city." default:"60"`
	Seed        uint64 `help:"Seed for the train/test split, forests and forecast inputs." default:"42"`
	Retention   int    `name:"payload-retention-days" help:"Days to keep archived API payloads." default:"90"`
	LogLevel    string `help:"Log level (debug, info, warn, error)." default:"info" env:"LOG_LEVEL"`
	LogFormat   string `help:"Log format (text, json)." default:"text" env:"LOG_FORMAT" enum:"text,json"`
	MetricsFile string `help:"Prometheus textfile to write on exit (defaults to <output-dir>/metrics.prom)."`
	NoMetrics   bool   `help:"Do not write the Prometheus textfile."`
}

// metricsPath resolves where the textfile goes, or "" when disabled.
func (g *Globals) metricsPath() string {
	switch {
	case g.NoMetrics:
		return ""
	case g.MetricsFile != "":
		return g.MetricsFile
	}
	return filepath.Join(g.OutputDir, "metrics.prom")
}

type CLI struct {
	Globals

	Run        RunCmd        `cmd:"" default:"1" help:"Run every stage: collect, preprocess, train, forecast, visualize."`
	Collect    CollectCmd    `cmd:"" help:"Fetch daily NASA POWER data for each city."`
	Preprocess PreprocessCmd `cmd:"" help:"Clean the raw data and merge it into the cleaned dataset."`
	Train      TrainCmd      `cmd:"" help:"Train and compare the regression models."`
	Forecast   ForecastCmd   `cmd:"" help:"Retrain and forecast the next 7 days."`
	Visualize  VisualizeCmd  `cmd:"" help:"Print the summary and render the model comparison chart."`
}

// app carries what every subcommand needs.
type app struct {
	ctx      context.Context
	pipeline *pipeline.Pipeline
}

type RunCmd struct {
	Replay bool `help:"Rebuild raw data from archived payloads instead of calling the API."`
}

func (c *RunCmd) Run(g *Globals) error {
	return withApp(g, c.Replay, func(a *app) error {
		return a.pipeline.Run(a.ctx)
	})
}

type CollectCmd struct {
	Replay bool `help:"Rebuild raw data from archived payloads instead of calling the API."`
}

func (c *CollectCmd) Run(g *Globals) error {
	return withApp(g, c.Replay, func(a *app) error {
		res, err := a.pipeline.Collect(a.ctx)
		if err != nil {
			return err
		}
		if ferr := res.Failures.ErrorOrNil(); ferr != nil {
			slog.Warn("collect finished with failures", "succeeded", len(res.Succeeded), "error", ferr)
		}
		return nil
	})
}

type PreprocessCmd struct{}

func (c *PreprocessCmd) Run(g *Globals) error {
	return withApp(g, false, func(a *app) error {
		_, err := a.pipeline.Preprocess()
		return err
	})
}

type TrainCmd struct{}

func (c *TrainCmd) Run(g *Globals) error {
	return withApp(g, false, func(a *app) error {
		_, err := a.pipeline.Train(nil)
		return err
	})
}

type ForecastCmd struct{}

func (c *ForecastCmd) Run(g *Globals) error {
	return withApp(g, false, func(a *app) error {
		_, err := a.pipeline.Forecast(nil)
		return err
	})
}

type VisualizeCmd struct{}

func (c *VisualizeCmd) Run(g *Globals) error {
	return withApp(g, false, func(a *app) error {
		if err := a.pipeline.Summary(nil, nil); err != nil {
			return err
		}
		return a.pipeline.Visualize()
	})
}

func withApp(g *Globals, replay bool, fn func(*app) error) error {
	logger, err := logging.New(os.Stderr, g.LogLevel, g.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cities, err := ingest.LoadCities(g.CitiesFile)
	if err != nil {
		return err
	}

	var st *store.Store
	if g.DB != "" {
		st, err = store.Open(g.DB)
		if err != nil {
			return err
		}
		defer st.Close()
		slog.Debug("audit database ready", "path", g.DB)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(pipeline.Config{
		DataDir:   g.DataDir,
		OutputDir: g.OutputDir,
		Cities:    cities,
		Days:      g.Days,
		Seed:      g.Seed,
		Replay:    replay,

		PayloadRetentionDays: g.Retention,
	}, st)

	runErr := fn(&app{ctx: ctx, pipeline: p})

	if path := g.metricsPath(); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			slog.Warn("write metrics", "path", path, "error", err)
		}
	}
	return runErr
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("solarcast"),
		kong.Description("Collect solar irradiance data, train power models and forecast the coming week."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
