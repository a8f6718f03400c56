package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/solarcast/internal/httputil"
	"github.com/lox/solarcast/internal/metrics"
	"github.com/lox/solarcast/internal/models"
)

const (
	// DefaultBaseURL is the NASA POWER daily point endpoint.
	DefaultBaseURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

	Source   = "nasa_power"
	Endpoint = "temporal/daily/point"

	requestDateLayout = "20060102"
)

// POWER parameter names, also the raw CSV column names.
const (
	ParamIrradiance  = "ALLSKY_SFC_SW_DWN"
	ParamTemperature = "T2M"
	ParamHumidity    = "RH2M"
	ParamWindSpeed   = "WS2M"
)

var Parameters = []string{ParamIrradiance, ParamTemperature, ParamHumidity, ParamWindSpeed}

// fillThreshold catches the -999 fill value POWER uses for missing data.
const fillThreshold = -990

// ErrNoData is returned when a response has no properties.parameter block.
var ErrNoData = errors.New("no parameter data in response")

// FetchResult contains metadata about a fetch for audit logging.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	Attempts     int
	Body         []byte
}

type PowerClient struct {
	baseURL    string
	client     *http.Client
	maxElapsed time.Duration
	initial    time.Duration
}

func NewPowerClient() *PowerClient {
	return &PowerClient{
		baseURL:    DefaultBaseURL,
		client:     httputil.NewClient(),
		maxElapsed: time.Minute,
		initial:    500 * time.Millisecond,
	}
}

// WithBaseURL points the client at another server, e.g. a test double.
func (p *PowerClient) WithBaseURL(u string) *PowerClient {
	p.baseURL = u
	return p
}

// WithRetry overrides the backoff bounds. A zero maxElapsed disables retries.
func (p *PowerClient) WithRetry(initial, maxElapsed time.Duration) *PowerClient {
	p.initial = initial
	p.maxElapsed = maxElapsed
	return p
}

type powerResponse struct {
	Properties *struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

func (p *PowerClient) requestURL(city models.City, start, end time.Time) string {
	q := url.Values{}
	q.Set("parameters", ParamIrradiance+","+ParamTemperature+","+ParamHumidity+","+ParamWindSpeed)
	q.Set("community", "RE")
	q.Set("format", "JSON")
	q.Set("latitude", strconv.FormatFloat(city.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(city.Longitude, 'f', -1, 64))
	q.Set("start", start.Format(requestDateLayout))
	q.Set("end", end.Format(requestDateLayout))
	return p.baseURL + "?" + q.Encode()
}

// Fetch retrieves daily observations for one city over [start, end].
// Rate limiting and server errors are retried; everything else fails fast.
func (p *PowerClient) Fetch(ctx context.Context, city models.City, start, end time.Time) ([]models.RawRecord, *FetchResult, error) {
	reqURL := p.requestURL(city, start, end)
	result := &FetchResult{}

	operation := func() error {
		result.Attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		began := time.Now()
		resp, err := p.client.Do(req)
		metrics.APILatency.WithLabelValues(city.Name).Observe(time.Since(began).Seconds())
		if err != nil {
			metrics.APICallsTotal.WithLabelValues(city.Name, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", city.Name, err))
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		metrics.APICallsTotal.WithLabelValues(city.Name, strconv.Itoa(resp.StatusCode)).Inc()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		result.ResponseSize = len(body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch %s: status %d", city.Name, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", city.Name, resp.StatusCode, truncate(body, 200)))
		}
		result.Body = body
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if p.maxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.initial
		exp.MaxElapsedTime = p.maxElapsed
		bo = exp
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, result, err
	}

	records, err := ParsePowerResponse(city.Name, result.Body)
	if err != nil {
		return nil, result, err
	}
	result.RecordCount = len(records)
	return records, result, nil
}

// ParsePowerResponse decodes a POWER JSON body into one record per date, sorted by date.
// A date missing from a parameter, or carrying the fill value, decodes as NaN.
func ParsePowerResponse(city string, body []byte) ([]models.RawRecord, error) {
	var data powerResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if data.Properties == nil || data.Properties.Parameter == nil {
		return nil, ErrNoData
	}
	params := data.Properties.Parameter

	seen := make(map[string]bool)
	var dates []string
	for _, series := range params {
		for d := range series {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Strings(dates)

	value := func(param, date string) float64 {
		v, ok := params[param][date]
		if !ok || v <= fillThreshold {
			return math.NaN()
		}
		return v
	}

	records := make([]models.RawRecord, 0, len(dates))
	for _, d := range dates {
		date, err := time.Parse(requestDateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", d, err)
		}
		records = append(records, models.RawRecord{
			Date:        date,
			City:        city,
			Irradiance:  value(ParamIrradiance, d),
			Temperature: value(ParamTemperature, d),
			Humidity:    value(ParamHumidity, d),
			WindSpeed:   value(ParamWindSpeed, d),
		})
	}
	return records, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
