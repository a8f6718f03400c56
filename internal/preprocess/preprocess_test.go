package preprocess

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solarcast/internal/dataset"
	"github.com/lox/solarcast/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestDCPower(t *testing.T) {
	tests := []struct {
		name string
		irr  float64
		temp float64
		want float64
	}{
		{"reference temperature", 5, 25, 1.0},
		{"hot day derates", 5, 35, 0.95},
		{"cold day uprates", 5, 15, 1.05},
		{"zero irradiance", 0, 30, 0},
		{"extreme heat floors at zero", 5, 250, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DCPower(tt.irr, tt.temp), 1e-12)
		})
	}
}

func TestDCPower_MonotonicInIrradiance(t *testing.T) {
	for _, temp := range []float64{-10, 0, 25, 38, 60, 225, 300} {
		prev := DCPower(0, temp)
		assert.GreaterOrEqual(t, prev, 0.0)
		for irr := 0.25; irr <= 12; irr += 0.25 {
			got := DCPower(irr, temp)
			assert.GreaterOrEqual(t, got, prev, "temp=%v irr=%v", temp, irr)
			assert.GreaterOrEqual(t, got, 0.0)
			prev = got
		}
	}
}

func TestACPower(t *testing.T) {
	assert.InDelta(t, 0.9, ACPower(1), 1e-12)
	assert.Equal(t, 0.0, ACPower(0))
}

func TestRound3(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.23456, 1.235},
		{1.0004, 1.0},
		{-2.71828, -2.718},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Round3(tt.in), 1e-12, "Round3(%v)", tt.in)
	}
	assert.True(t, math.IsNaN(Round3(math.NaN())))
}

func TestClean(t *testing.T) {
	raw := &dataset.RawTable{
		HasDate: true,
		Rows: []dataset.RawRow{
			{Date: "2024-01-01", City: "Pune", Irradiance: 5.4321, Temperature: 30, Humidity: 55.55555, WindSpeed: 2.1},
			{Date: "not a date", City: "Pune", Irradiance: 5, Temperature: 30},
			{Date: "2024-01-02", City: "Pune", Irradiance: math.NaN(), Temperature: 30},
			{Date: "2024-01-03", City: "Pune", Irradiance: 5, Temperature: math.NaN()},
			{Date: "2024-01-04", City: "Pune", Irradiance: 0, Temperature: 30},
			{Date: "2024-01-05", City: "Pune", Irradiance: -1, Temperature: 30},
			{Date: "20240106", City: "Delhi", Irradiance: 4, Temperature: 20, Humidity: math.NaN(), WindSpeed: math.NaN()},
		},
	}

	recs, dropped := Clean(raw, day(20))
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]int{DropBadDate: 1, DropMissingValue: 2, DropNonPositiveIr: 2}, dropped)

	first := recs[0]
	assert.Equal(t, day(1), first.Date)
	assert.Equal(t, 5.432, first.Irradiance)
	assert.Equal(t, 55.556, first.Humidity)
	// 5.4321 * 0.2 * (1 - 0.005*5) = 1.05926
	assert.Equal(t, 1.059, first.DCPower)
	assert.Equal(t, 0.953, first.ACPower)

	second := recs[1]
	assert.Equal(t, day(6), second.Date)
	assert.True(t, math.IsNaN(second.Humidity), "missing humidity stays missing")
	assert.Equal(t, 0.82, second.DCPower)
	assert.Equal(t, 0.738, second.ACPower)
}

func TestClean_NoDateColumn(t *testing.T) {
	raw := &dataset.RawTable{
		Rows: []dataset.RawRow{
			{City: "Delhi", Irradiance: 4, Temperature: 25},
			{City: "Pune", Irradiance: 5, Temperature: 25},
		},
	}
	recs, dropped := Clean(raw, time.Date(2024, 6, 1, 17, 45, 0, 0, time.UTC))
	require.Len(t, recs, 2)
	assert.Empty(t, dropped)
	for _, r := range recs {
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), r.Date)
	}
}

func TestMerge_KeepsLatestPerKey(t *testing.T) {
	existing := []models.Record{
		{Date: day(1), City: "Pune", DCPower: 1},
		{Date: day(2), City: "Pune", DCPower: 2},
		{Date: day(1), City: "Delhi", DCPower: 3},
	}
	fresh := []models.Record{
		{Date: day(2), City: "Pune", DCPower: 20},
		{Date: day(3), City: "Pune", DCPower: 30},
		{Date: day(3), City: "Pune", DCPower: 31},
	}

	merged := Merge(existing, fresh)
	require.Len(t, merged, 4)

	seen := make(map[models.Key]int)
	for _, r := range merged {
		seen[r.Key()]++
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "key %v", k)
	}

	assert.Equal(t, []float64{1, 20, 3, 31}, []float64{merged[0].DCPower, merged[1].DCPower, merged[2].DCPower, merged[3].DCPower})
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	fresh := []models.Record{{Date: day(1), City: "Pune"}}
	assert.Equal(t, fresh, Merge(nil, fresh))
}

func TestSummarize(t *testing.T) {
	st := Summarize([]models.Record{
		{City: "Pune", Irradiance: 4, DCPower: 0.8},
		{City: "Pune", Irradiance: 6, DCPower: 1.2},
		{City: "Delhi", Irradiance: math.NaN(), DCPower: math.NaN()},
	})
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 2, st.Cities)
	assert.InDelta(t, 5, st.AvgIrradiance, 1e-12)
	assert.InDelta(t, 1, st.AvgDCPower, 1e-12)

	empty := Summarize(nil)
	assert.True(t, math.IsNaN(empty.AvgIrradiance))
}

func TestPreprocessor_MissingRawFile(t *testing.T) {
	dir := t.TempDir()
	p := New(filepath.Join(dir, "combined_data.csv"), filepath.Join(dir, "cleaned", "cleaned_data.csv"), "")
	p.Out = &bytes.Buffer{}

	recs, err := p.Run()
	require.NoError(t, err)
	assert.Nil(t, recs)
	assert.NoFileExists(t, p.CleanedPath)
}

func TestPreprocessor_RunMergesWithExisting(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "combined_data.csv")
	cleanedPath := filepath.Join(dir, "cleaned", "cleaned_data.csv")
	parquetPath := filepath.Join(dir, "cleaned", "cleaned_data.parquet")

	require.NoError(t, dataset.WriteCleaned(cleanedPath, []models.Record{
		{Date: day(1), City: "Pune", Irradiance: 9, Temperature: 25, Humidity: 50, WindSpeed: 1, DCPower: 1.8, ACPower: 1.62},
		{Date: day(1), City: "Delhi", Irradiance: 3, Temperature: 25, Humidity: 50, WindSpeed: 1, DCPower: 0.6, ACPower: 0.54},
	}))
	require.NoError(t, dataset.WriteRaw(rawPath, []models.RawRecord{
		{Date: day(1), City: "Pune", Irradiance: 5, Temperature: 25, Humidity: 40, WindSpeed: 2},
		{Date: day(2), City: "Pune", Irradiance: 6, Temperature: 25, Humidity: 40, WindSpeed: 2},
		{Date: day(3), City: "Pune", Irradiance: -999, Temperature: 25, Humidity: 40, WindSpeed: 2},
	}))

	var out bytes.Buffer
	p := New(rawPath, cleanedPath, parquetPath)
	p.Out = &out

	recs, err := p.Run()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Pune", recs[0].City)
	assert.Equal(t, 1.0, recs[0].DCPower, "fresh row replaces existing")
	assert.Equal(t, "Delhi", recs[1].City)
	assert.Equal(t, day(2), recs[2].Date)

	onDisk, err := dataset.ReadCleaned(cleanedPath)
	require.NoError(t, err)
	assert.Equal(t, recs, onDisk)
	assert.FileExists(t, parquetPath)

	assert.Contains(t, out.String(), "Records: 3 | Cities: 2")
	assert.Contains(t, out.String(), "Avg Irradiance: 4.67")
}

func TestPreprocessor_RawWithoutDateColumn(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "combined_data.csv")
	body := strings.Join([]string{"ALLSKY_SFC_SW_DWN", "T2M", "RH2M", "WS2M", "CITY"}, ",") + "\n4,25,50,2,Jaipur\n"
	require.NoError(t, os.WriteFile(rawPath, []byte(body), 0644))

	p := New(rawPath, filepath.Join(dir, "cleaned_data.csv"), "")
	p.Out = &bytes.Buffer{}
	fixed := time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	recs, err := p.Run()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), recs[0].Date)
	assert.Equal(t, 0.8, recs[0].DCPower)
}
