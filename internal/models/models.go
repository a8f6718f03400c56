package models

import (
	"math"
	"time"
)

// DateLayout is the on-disk layout of the DATE column.
const DateLayout = "2006-01-02"

type City struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DefaultCities are the cities collected and forecast when no cities file is given.
var DefaultCities = []City{
	{Name: "Hyderabad", Latitude: 17.3850, Longitude: 78.4867},
	{Name: "Mumbai", Latitude: 19.0760, Longitude: 72.8777},
	{Name: "Delhi", Latitude: 28.6139, Longitude: 77.2090},
	{Name: "Chennai", Latitude: 13.0827, Longitude: 80.2707},
	{Name: "Bengaluru", Latitude: 12.9716, Longitude: 77.5946},
	{Name: "Kolkata", Latitude: 22.5726, Longitude: 88.3639},
	{Name: "Ahmedabad", Latitude: 23.0225, Longitude: 72.5714},
	{Name: "Pune", Latitude: 18.5204, Longitude: 73.8567},
	{Name: "Jaipur", Latitude: 26.9124, Longitude: 75.7873},
}

// RawRecord is one city-day as returned by the weather API. Missing values are NaN.
type RawRecord struct {
	Date        time.Time
	City        string
	Irradiance  float64 // kWh/m²/day
	Temperature float64 // °C at 2m
	Humidity    float64 // % at 2m
	WindSpeed   float64 // m/s at 2m
}

// Record is a cleaned observation with derived power output.
type Record struct {
	Date        time.Time
	City        string
	Irradiance  float64
	Temperature float64
	Humidity    float64
	WindSpeed   float64
	DCPower     float64 // kW
	ACPower     float64 // kW
}

// Key identifies a record for merge deduplication.
type Key struct {
	Date string
	City string
}

func (r Record) Key() Key {
	return Key{Date: r.Date.Format(DateLayout), City: r.City}
}

// Features returns the model inputs in training column order.
func (r Record) Features() []float64 {
	return []float64{r.Irradiance, r.Temperature, r.Humidity, r.WindSpeed}
}

// FeatureNames matches the order of Record.Features.
var FeatureNames = []string{"Solar_Irradiance(kWh/m2)", "Temperature(C)", "Humidity(%)", "Wind_Speed(m/s)"}

// Target selects which derived power column a model predicts.
type Target string

const (
	TargetDC Target = "DC"
	TargetAC Target = "AC"
)

// ModelScore holds accuracy metrics for one model against the test split.
type ModelScore struct {
	Model  string
	MAEDC  float64
	RMSEDC float64
	R2DC   float64
	MAEAC  float64
	RMSEAC float64
	R2AC   float64
	AvgR2  float64
}

// Comparison is one row of a per-model actual-vs-predicted table.
type Comparison struct {
	Actual    float64
	Predicted float64
	Error     float64
	ErrorPct  float64
}

func NewComparison(actual, predicted float64) Comparison {
	errVal := predicted - actual
	return Comparison{
		Actual:    actual,
		Predicted: predicted,
		Error:     errVal,
		ErrorPct:  math.Abs(errVal/actual) * 100,
	}
}

// ForecastDay is one predicted city-day.
type ForecastDay struct {
	Date        time.Time
	City        string
	Irradiance  float64
	Temperature float64
	Humidity    float64
	WindSpeed   float64
	PredictedDC float64
	PredictedAC float64
}
