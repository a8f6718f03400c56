package store

import (
	"database/sql"
	"time"
)

// IngestRun represents a single API fetch for one city.
type IngestRun struct {
	ID                int64
	PipelineRunID     sql.NullString
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "nasa_power"
	Endpoint          string // "temporal/daily/point"
	City              sql.NullString
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(pipelineRunID *string, source, endpoint, city string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Endpoint:  endpoint,
		City:      sql.NullString{String: city, Valid: city != ""},
	}
	if pipelineRunID != nil {
		run.PipelineRunID = sql.NullString{String: *pipelineRunID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (pipeline_run_id, started_at, source, endpoint, city, success)
		VALUES (?, ?, ?, ?, ?, FALSE)
	`, run.PipelineRunID, run.StartedAt, run.Source, run.Endpoint, run.City)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			records_parsed = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// CityIngestHealth summarises fetch outcomes for one city.
type CityIngestHealth struct {
	City         string
	TotalRuns    int
	SuccessRuns  int
	FailedRuns   int
	TotalRecords int64
	LastError    sql.NullString
}

// GetIngestHealth returns per-city fetch outcomes over the last N days.
func (s *Store) GetIngestHealth(days int) ([]CityIngestHealth, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT
			COALESCE(city, '') AS city,
			COUNT(*) AS total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) AS failed_runs,
			COALESCE(SUM(records_parsed), 0) AS total_records,
			(SELECT error_message FROM ingest_runs e
			  WHERE e.city IS r.city AND NOT e.success
			  ORDER BY e.started_at DESC, e.id DESC LIMIT 1) AS last_error
		FROM ingest_runs r
		WHERE started_at >= ?
		GROUP BY city
		ORDER BY city
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CityIngestHealth
	for rows.Next() {
		var h CityIngestHealth
		if err := rows.Scan(&h.City, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns,
			&h.TotalRecords, &h.LastError); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentIngestErrors returns recent failed ingest runs.
func (s *Store) GetRecentIngestErrors(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, pipeline_run_id, started_at, finished_at, source, endpoint, city,
			   http_status, response_size_bytes, records_parsed, success, error_message
		FROM ingest_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.PipelineRunID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
			&r.City, &r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
