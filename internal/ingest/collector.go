package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/store"
)

// DefaultDays is the trailing window collected when none is configured.
const DefaultDays = 60

// Collector fetches the trailing window for each city in turn.
type Collector struct {
	client *PowerClient
	store  *store.Store
	cities []models.City
	days   int
	now    func() time.Time

	// Replay reads each city's most recently archived payload instead of calling the API.
	Replay bool
	// PipelineRunID links ingest audit rows to the enclosing pipeline run.
	PipelineRunID *string
}

// NewCollector creates a collector. st may be nil, which disables auditing and replay.
func NewCollector(client *PowerClient, st *store.Store, cities []models.City, days int) *Collector {
	if days <= 0 {
		days = DefaultDays
	}
	return &Collector{
		client: client,
		store:  st,
		cities: cities,
		days:   days,
		now:    time.Now,
	}
}

// CollectResult is the outcome of one collection pass.
type CollectResult struct {
	Records   []models.RawRecord
	Succeeded []string
	// Failures aggregates per-city errors. Nil when every city succeeded.
	Failures *multierror.Error
}

// Collect fetches every city sequentially. Per-city failures are logged,
// aggregated into the result and never abort the pass; only context
// cancellation returns an error.
func (c *Collector) Collect(ctx context.Context) (*CollectResult, error) {
	end := c.now().UTC()
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -c.days)

	result := &CollectResult{}
	for _, city := range c.cities {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, err := c.collectCity(ctx, city, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			slog.Warn("collector: city failed", "city", city.Name, "error", err)
			result.Failures = multierror.Append(result.Failures, fmt.Errorf("%s: %w", city.Name, err))
			continue
		}

		flagged := 0
		for _, r := range records {
			if len(ValidateRecord(r)) > 0 {
				flagged++
			}
		}
		if flagged > 0 {
			slog.Warn("collector: implausible values", "city", city.Name, "records", flagged)
		}

		metrics.RecordsCollected.WithLabelValues(city.Name).Add(float64(len(records)))
		result.Records = append(result.Records, records...)
		result.Succeeded = append(result.Succeeded, city.Name)
		slog.Info("collector: fetched", "city", city.Name, "records", len(records))
	}

	if len(result.Succeeded) == 0 {
		slog.Warn("collector: no city data fetched successfully")
	}
	return result, nil
}

func (c *Collector) collectCity(ctx context.Context, city models.City, start, end time.Time) ([]models.RawRecord, error) {
	if c.Replay {
		return c.replayCity(city)
	}

	slog.Debug("collector: fetching", "city", city.Name,
		"lat", city.Latitude, "lon", city.Longitude,
		"start", start.Format(requestDateLayout), "end", end.Format(requestDateLayout))

	var run *store.IngestRun
	if c.store != nil {
		if err := c.store.UpsertCity(city); err != nil {
			slog.Warn("collector: upsert city", "city", city.Name, "error", err)
		}
		var err error
		run, err = c.store.StartIngestRun(c.PipelineRunID, Source, Endpoint, city.Name)
		if err != nil {
			slog.Warn("collector: start ingest run", "city", city.Name, "error", err)
		}
	}

	records, fetch, err := c.client.Fetch(ctx, city, start, end)
	if errors.Is(err, ErrNoData) {
		err = fmt.Errorf("no data for %s: %w", city.Name, err)
	}
	if err == nil && len(records) == 0 {
		err = fmt.Errorf("no records for %s: %w", city.Name, ErrNoData)
	}

	if c.store != nil {
		c.audit(run, city, fetch, len(records), err)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Collector) audit(run *store.IngestRun, city models.City, fetch *FetchResult, records int, fetchErr error) {
	if run != nil {
		run.Success = fetchErr == nil
		if fetch != nil {
			if fetch.HTTPStatus != 0 {
				run.HTTPStatus = sql.NullInt64{Int64: int64(fetch.HTTPStatus), Valid: true}
			}
			run.ResponseSizeBytes = sql.NullInt64{Int64: int64(fetch.ResponseSize), Valid: true}
		}
		run.RecordsParsed = sql.NullInt64{Int64: int64(records), Valid: true}
		if fetchErr != nil {
			run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
		}
		if err := c.store.CompleteIngestRun(run); err != nil {
			slog.Warn("collector: complete ingest run", "city", city.Name, "error", err)
		}
	}

	if fetch != nil && len(fetch.Body) > 0 {
		var runID *int64
		if run != nil {
			runID = &run.ID
		}
		if _, err := c.store.StoreRawPayload(runID, Source, Endpoint, city.Name, fetch.Body); err != nil {
			slog.Warn("collector: archive payload", "city", city.Name, "error", err)
		}
	}

	if fetchErr == nil {
		if err := c.store.MarkCityCollected(city.Name, c.now()); err != nil {
			slog.Warn("collector: mark collected", "city", city.Name, "error", err)
		}
	}
}

func (c *Collector) replayCity(city models.City) ([]models.RawRecord, error) {
	if c.store == nil {
		return nil, errors.New("replay needs the audit store")
	}
	body, err := c.store.LatestRawPayload(city.Name)
	if err != nil {
		return nil, fmt.Errorf("load archived payload: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("no archived payload for %s", city.Name)
	}
	records, err := ParsePowerResponse(city.Name, body)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records for %s: %w", city.Name, ErrNoData)
	}
	return records, nil
}
