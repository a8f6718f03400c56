package training

import (
	"bytes"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/preprocess"
	"github.com/lox/solarcast/internal/regress"
	"github.com/lox/solarcast/internal/store"
)

func syntheticRecords(n int) []models.Record {
	recs := make([]models.Record, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range recs {
		irr := 3 + float64(i%9)*0.45
		temp := 22 + float64((i*7)%15)
		dc := preprocess.DCPower(irr, temp)
		recs[i] = models.Record{
			Date:        start.AddDate(0, 0, i),
			City:        "Pune",
			Irradiance:  irr,
			Temperature: temp,
			Humidity:    40 + float64((i*3)%30),
			WindSpeed:   1 + float64(i%4),
			DCPower:     dc,
			ACPower:     preprocess.ACPower(dc),
		}
	}
	return recs
}

func fastModels() []ModelSpec {
	return []ModelSpec{
		{Name: "Linear Regression", New: func() regress.Regressor { return regress.NewLinear() }},
		{Name: "Shallow Tree", New: func() regress.Regressor { return regress.NewDecisionTree(1) }},
	}
}

func newTestTrainer(t *testing.T) (*Trainer, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	tr := New(t.TempDir(), DefaultSeed)
	tr.Out = &out
	return tr, &out
}

func TestTrain_TooFewRows(t *testing.T) {
	tr, _ := newTestTrainer(t)

	result, err := tr.Train(syntheticRecords(4))
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoFileExists(t, filepath.Join(tr.OutputDir, SummaryFile))
}

func TestTrain_SkipsIncompleteRows(t *testing.T) {
	tr, _ := newTestTrainer(t)
	tr.Models = fastModels()

	recs := syntheticRecords(6)
	recs[0].Humidity = math.NaN()
	recs[1].DCPower = math.NaN()

	// Four complete rows is below the minimum.
	result, err := tr.Train(recs)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestTrain_SingleTestRowLeavesNoBestModel(t *testing.T) {
	tr, _ := newTestTrainer(t)
	tr.Models = fastModels()

	result, err := tr.Train(syntheticRecords(MinRows))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.TestRows)

	for _, s := range result.Scores {
		assert.True(t, math.IsNaN(s.AvgR2), "%s Avg_R2 = %v", s.Model, s.AvgR2)
	}
	assert.Nil(t, result.Best())
}

func TestTrain_WritesTablesAndRanks(t *testing.T) {
	tr, out := newTestTrainer(t)
	tr.Models = fastModels()

	result, err := tr.Train(syntheticRecords(50))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 40, result.TrainRows)
	assert.Equal(t, 10, result.TestRows)
	require.Len(t, result.Scores, 2)
	assert.GreaterOrEqual(t, result.Scores[0].AvgR2, result.Scores[1].AvgR2)

	best := result.Best()
	require.NotNil(t, best)
	assert.Equal(t, result.Scores[0].Model, best.Name)
	assert.Equal(t, "Linear Regression", best.Name)
	assert.Greater(t, best.Score.R2DC, 0.9)
	assert.InDelta(t, (best.Score.R2DC+best.Score.R2AC)/2, best.Score.AvgR2, 1e-12)

	for _, name := range []string{"Linear Regression", "Shallow Tree"} {
		for _, target := range []string{"DC", "AC"} {
			path := filepath.Join(tr.OutputDir, name+"_"+target+"_comparison.csv")
			b, err := os.ReadFile(path)
			require.NoError(t, err, path)
			lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
			assert.Equal(t, "Actual,Predicted,Error,Error_%", string(lines[0]))
			assert.Len(t, lines, 11, "header plus one row per test sample")
		}
	}

	summary, err := dataset.ReadSummary(filepath.Join(tr.OutputDir, SummaryFile))
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Linear Regression", summary[0].Model)
	assert.InDelta(t, result.Scores[0].AvgR2, summary[0].AvgR2, 1e-12)

	assert.Contains(t, out.String(), "--- Linear Regression_DC Comparison Table (sample) ---")
	assert.Contains(t, out.String(), "--- Shallow Tree_AC Comparison Table (sample) ---")
}

func TestTrain_ACModelIsFittedSeparately(t *testing.T) {
	tr, _ := newTestTrainer(t)
	tr.Models = fastModels()

	recs := syntheticRecords(30)
	result, err := tr.Train(recs)
	require.NoError(t, err)

	lin := result.Models["Linear Regression"]
	require.NotNil(t, lin)
	X, dc, ac, _ := FeatureMatrix(recs)
	predDC, predAC := lin.Predict(X)
	for i := range dc {
		assert.InDelta(t, dc[i], predDC[i], 0.05)
		assert.InDelta(t, ac[i], predAC[i], 0.05)
		assert.InDelta(t, predDC[i]*preprocess.InverterEfficiency, predAC[i], 1e-6)
	}
}

func TestTrain_DefaultModels(t *testing.T) {
	tr, _ := newTestTrainer(t)

	result, err := tr.Train(syntheticRecords(40))
	require.NoError(t, err)
	require.Len(t, result.Scores, 4)

	names := map[string]bool{}
	for _, s := range result.Scores {
		names[s.Model] = true
		assert.False(t, math.IsNaN(s.AvgR2), s.Model)
	}
	assert.Equal(t, map[string]bool{"Linear Regression": true, "Random Forest": true, "Gradient Boosting": true, "XGBoost": true}, names)
	for i := 1; i < len(result.Scores); i++ {
		assert.GreaterOrEqual(t, result.Scores[i-1].AvgR2, result.Scores[i].AvgR2)
	}
}

func TestTrain_RecordsScoreHistory(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	require.NoError(t, st.Migrate())

	run, err := st.StartPipelineRun("train")
	require.NoError(t, err)

	tr, _ := newTestTrainer(t)
	tr.Models = fastModels()
	tr.Store = st
	tr.PipelineRunID = &run.ID

	_, err = tr.Train(syntheticRecords(20))
	require.NoError(t, err)

	history, err := st.GetModelScoreHistory("Shallow Tree", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 16, history[0].TrainRows)
	assert.Equal(t, 4, history[0].TestRows)
	assert.Equal(t, run.ID, history[0].PipelineRunID.String)
}

func TestFeatureMatrix(t *testing.T) {
	recs := syntheticRecords(3)
	recs[1].WindSpeed = math.Inf(1)

	X, dc, ac, kept := FeatureMatrix(recs)
	r, c := X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, []int{0, 2}, kept)
	assert.Len(t, dc, 2)
	assert.Len(t, ac, 2)
	assert.Equal(t, recs[2].Irradiance, X.At(1, 0))

	empty, _, _, none := FeatureMatrix(nil)
	assert.True(t, empty.IsEmpty())
	assert.Empty(t, none)
}
