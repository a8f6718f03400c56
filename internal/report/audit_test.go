package report

import (
	"bytes"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/store"
)

func TestPrintIngestHealth(t *testing.T) {
	collected := time.Date(2024, 6, 10, 6, 30, 0, 0, time.UTC)
	cities := []store.CityStatus{
		{City: models.City{Name: "Jaipur"}},
		{City: models.City{Name: "Pune"}, LastCollectedAt: sql.NullTime{Time: collected, Valid: true}},
		{City: models.City{Name: "Leh"}},
	}
	health := []store.CityIngestHealth{
		{City: "Jaipur", TotalRuns: 2, SuccessRuns: 1, FailedRuns: 1, TotalRecords: 60},
		{City: "Pune", TotalRuns: 3, SuccessRuns: 3, TotalRecords: 180},
		{City: "Delhi", TotalRuns: 1, FailedRuns: 1},
	}
	failures := []store.IngestRun{
		{StartedAt: collected, City: sql.NullString{String: "Jaipur", Valid: true}, ErrorMessage: sql.NullString{String: "status 500", Valid: true}},
		{StartedAt: collected.Add(-time.Hour), City: sql.NullString{String: "Delhi", Valid: true}},
	}

	var out bytes.Buffer
	PrintIngestHealth(&out, 7, cities, health, failures)
	text := out.String()

	assert.Contains(t, text, "--- Collection health (last 7 days) ---")
	assert.Contains(t, text, "Jaipur: 1/2 fetches ok, 60 records\n")
	assert.Contains(t, text, "Pune: 3/3 fetches ok, 180 records, last collected 2024-06-10 06:30\n")
	assert.Contains(t, text, "Leh: no fetches\n")
	assert.Contains(t, text, "Delhi: 0/1 fetches ok, 0 records\n")
	assert.Contains(t, text, "  2024-06-10 06:30 Jaipur: status 500\n")
	assert.Contains(t, text, "  2024-06-10 05:30 Delhi: unknown error\n")
}

func TestPrintIngestHealth_Empty(t *testing.T) {
	var out bytes.Buffer
	PrintIngestHealth(&out, 7, nil, nil, nil)
	assert.Contains(t, out.String(), "No collection history.")
	assert.NotContains(t, out.String(), "Recent failures")
}

func TestPrintScoreTrend(t *testing.T) {
	at := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	history := []store.ModelScoreRow{
		{ModelScore: models.ModelScore{AvgR2: 0.95}, TrainedAt: at, TrainRows: 40, TestRows: 10},
		{ModelScore: models.ModelScore{AvgR2: 0.91}, TrainedAt: at.AddDate(0, 0, -1), TrainRows: 32, TestRows: 8},
		{ModelScore: models.ModelScore{AvgR2: math.NaN()}, TrainedAt: at.AddDate(0, 0, -2), TrainRows: 4, TestRows: 1},
	}

	var out bytes.Buffer
	PrintScoreTrend(&out, "Random Forest", history)
	text := out.String()

	assert.Contains(t, text, "--- Avg R² trend: Random Forest ---")
	assert.Contains(t, text, "2024-06-10 12:00  0.950 (+0.040)  [40 train / 10 test]\n")
	assert.Contains(t, text, "2024-06-09 12:00  0.910  [32 train / 8 test]\n")
	assert.Contains(t, text, "2024-06-08 12:00  n/a  [4 train / 1 test]\n")

	out.Reset()
	PrintScoreTrend(&out, "XGBoost", nil)
	assert.Contains(t, out.String(), "No scored runs.")
}

func TestPrintStageRuns(t *testing.T) {
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	runs := []store.PipelineRun{
		{
			Stage: "collect", StartedAt: start, Success: true,
			FinishedAt: sql.NullTime{Time: start.Add(1500 * time.Millisecond), Valid: true},
			Records:    sql.NullInt64{Int64: 120, Valid: true},
		},
		{
			Stage: "train", StartedAt: start, Success: false,
			FinishedAt:   sql.NullTime{Time: start.Add(2 * time.Second), Valid: true},
			ErrorMessage: sql.NullString{String: "boom", Valid: true},
		},
	}

	var out bytes.Buffer
	PrintStageRuns(&out, runs)
	text := out.String()

	assert.Contains(t, text, "--- Last stage runs ---")
	assert.Contains(t, text, "collect: ok, 120 records, 1.5s  (2024-06-10 12:00)\n")
	assert.Contains(t, text, "train: failed: boom, 2s  (2024-06-10 12:00)\n")

	out.Reset()
	PrintStageRuns(&out, nil)
	assert.Empty(t, out.String())
}
