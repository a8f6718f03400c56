package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lox/solarcast/internal/models"
)

// Store is the run audit database. It is never the source of truth for the
// dataset itself; the CSV files are.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite database at path and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if v, err := st.MigrationVersion(); err == nil {
		slog.Debug("store: schema ready", "path", path, "version", v)
	}
	return st, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertCity(c models.City) error {
	_, err := s.db.Exec(`
		INSERT INTO cities (name, latitude, longitude)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, c.Name, c.Latitude, c.Longitude)
	return err
}

func (s *Store) MarkCityCollected(name string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE cities SET last_collected_at = ? WHERE name = ?`, at.UTC(), name)
	return err
}

// CityStatus is a known city and when its data was last collected.
type CityStatus struct {
	models.City
	LastCollectedAt sql.NullTime
}

func (s *Store) GetCities() ([]CityStatus, error) {
	rows, err := s.db.Query(`SELECT name, latitude, longitude, last_collected_at FROM cities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []CityStatus
	for rows.Next() {
		var c CityStatus
		if err := rows.Scan(&c.Name, &c.Latitude, &c.Longitude, &c.LastCollectedAt); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// PipelineRun is one invocation of a pipeline stage.
type PipelineRun struct {
	ID           string
	Stage        string // "collect", "preprocess", "train", "summary", "forecast", "visualize"
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Records      sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

func (s *Store) StartPipelineRun(stage string) (*PipelineRun, error) {
	run := &PipelineRun{
		ID:        uuid.NewString(),
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, stage, started_at, success)
		VALUES (?, ?, ?, FALSE)
	`, run.ID, run.Stage, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) CompletePipelineRun(run *PipelineRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET
			finished_at = ?,
			records = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Records, run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetLatestPipelineRuns returns the most recent finished run of each stage,
// ordered by stage name.
func (s *Store) GetLatestPipelineRuns() ([]PipelineRun, error) {
	rows, err := s.db.Query(`
		SELECT id, stage, started_at, finished_at, records, success, error_message
		FROM pipeline_runs r
		WHERE id = (
			SELECT id FROM pipeline_runs l
			WHERE l.stage = r.stage AND l.finished_at IS NOT NULL
			ORDER BY l.started_at DESC, l.rowid DESC LIMIT 1
		)
		ORDER BY stage
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(&r.ID, &r.Stage, &r.StartedAt, &r.FinishedAt, &r.Records, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ModelScoreRow is a stored model evaluation.
type ModelScoreRow struct {
	models.ModelScore
	PipelineRunID sql.NullString
	TrainedAt     time.Time
	TrainRows     int
	TestRows      int
}

func (s *Store) InsertModelScore(runID *string, score models.ModelScore, trainRows, testRows int) error {
	var pipelineRunID sql.NullString
	if runID != nil {
		pipelineRunID = sql.NullString{String: *runID, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO model_scores (pipeline_run_id, model, trained_at, train_rows, test_rows,
			mae_dc, rmse_dc, r2_dc, mae_ac, rmse_ac, r2_ac, avg_r2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pipelineRunID, score.Model, time.Now().UTC(), trainRows, testRows,
		score.MAEDC, score.RMSEDC, score.R2DC, score.MAEAC, score.RMSEAC, score.R2AC, score.AvgR2)
	return err
}

// GetModelScoreHistory returns the most recent evaluations of a model, newest first.
func (s *Store) GetModelScoreHistory(model string, limit int) ([]ModelScoreRow, error) {
	rows, err := s.db.Query(`
		SELECT pipeline_run_id, model, trained_at, train_rows, test_rows,
		       mae_dc, rmse_dc, r2_dc, mae_ac, rmse_ac, r2_ac, avg_r2
		FROM model_scores
		WHERE model = ?
		ORDER BY trained_at DESC, id DESC
		LIMIT ?
	`, model, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ModelScoreRow
	for rows.Next() {
		var r ModelScoreRow
		// SQLite stores NaN as NULL.
		var vals [7]sql.NullFloat64
		if err := rows.Scan(&r.PipelineRunID, &r.Model, &r.TrainedAt, &r.TrainRows, &r.TestRows,
			&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6]); err != nil {
			return nil, err
		}
		dst := []*float64{&r.MAEDC, &r.RMSEDC, &r.R2DC, &r.MAEAC, &r.RMSEAC, &r.R2AC, &r.AvgR2}
		for i, v := range vals {
			*dst[i] = math.NaN()
			if v.Valid {
				*dst[i] = v.Float64
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
