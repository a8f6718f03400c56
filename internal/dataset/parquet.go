package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lox/solarcast/internal/models"
)

// CleanedRow is the columnar layout of a cleaned record.
type CleanedRow struct {
	Date        string  `parquet:"name=date,type=BYTE_ARRAY,convertedtype=UTF8"`
	City        string  `parquet:"name=city,type=BYTE_ARRAY,convertedtype=UTF8"`
	Irradiance  float64 `parquet:"name=solar_irradiance_kwh_m2,type=DOUBLE"`
	Temperature float64 `parquet:"name=temperature_c,type=DOUBLE"`
	Humidity    float64 `parquet:"name=humidity_pct,type=DOUBLE"`
	WindSpeed   float64 `parquet:"name=wind_speed_m_s,type=DOUBLE"`
	DCPower     float64 `parquet:"name=actual_dc_power_kw,type=DOUBLE"`
	ACPower     float64 `parquet:"name=actual_ac_power_kw,type=DOUBLE"`
}

// EncodeCleanedParquet returns the records as a snappy-compressed parquet file.
func EncodeCleanedParquet(recs []models.Record) (data []byte, err error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(CleanedRow), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range recs {
		row := CleanedRow{
			Date:        r.Date.Format(models.DateLayout),
			City:        r.City,
			Irradiance:  r.Irradiance,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			WindSpeed:   r.WindSpeed,
			DCPower:     r.DCPower,
			ACPower:     r.ACPower,
		}
		if err := pw.Write(row); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}

	// WriteStop can panic on malformed schemas.
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("stop parquet writer: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("stop parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCleanedParquet writes the cleaned dataset alongside its CSV.
func WriteCleanedParquet(path string, recs []models.Record) error {
	data, err := EncodeCleanedParquet(recs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
