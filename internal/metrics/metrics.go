package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds only pipeline metrics, so the textfile carries no Go runtime noise.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	APICallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_api_calls_total",
			Help: "Total NASA POWER API calls",
		},
		[]string{"city", "status"},
	)

	APILatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarcast_api_latency_seconds",
			Help:    "NASA POWER API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"city"},
	)

	RecordsCollected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_records_collected_total",
			Help: "Raw city-day records collected",
		},
		[]string{"city"},
	)

	RecordsCleaned = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "solarcast_records_cleaned",
			Help: "Rows in the cleaned dataset after merge",
		},
	)

	RowsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_rows_dropped_total",
			Help: "Raw rows dropped during preprocessing",
		},
		[]string{"reason"},
	)

	ModelR2 = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarcast_model_r2",
			Help: "Test-split R² per model and target",
		},
		[]string{"model", "target"},
	)

	ForecastDays = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "solarcast_forecast_days_total",
			Help: "City-days forecast",
		},
	)

	StageDuration = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarcast_stage_duration_seconds",
			Help: "Wall time of the last run of each pipeline stage",
		},
		[]string{"stage"},
	)
)

// WriteTextfile writes the registry in Prometheus text format for a node_exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
