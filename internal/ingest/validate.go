package ingest

import (
	"math"

	"github.com/lox/solarcast/internal/models"
)

const (
	FlagIrradianceNegative = "irradiance_negative"
	FlagIrradianceUnlikely = "irradiance_unlikely"
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
)

// ValidateRecord returns quality flags for physically implausible values.
// Missing (NaN) values are not flagged; the preprocessor decides what to drop.
func ValidateRecord(r models.RawRecord) []string {
	var flags []string

	if !math.IsNaN(r.Irradiance) {
		if r.Irradiance < 0 {
			flags = append(flags, FlagIrradianceNegative)
		} else if r.Irradiance > 12 {
			// Top-of-atmosphere daily insolation tops out near 12 kWh/m².
			flags = append(flags, FlagIrradianceUnlikely)
		}
	}

	if !math.IsNaN(r.Temperature) && (r.Temperature < -60 || r.Temperature > 60) {
		flags = append(flags, FlagTempOutOfRange)
	}

	if !math.IsNaN(r.Humidity) && (r.Humidity < 0 || r.Humidity > 100) {
		flags = append(flags, FlagHumidityInvalid)
	}

	if !math.IsNaN(r.WindSpeed) && (r.WindSpeed < 0 || r.WindSpeed > 75) {
		flags = append(flags, FlagWindSpeedUnlikely)
	}

	return flags
}
