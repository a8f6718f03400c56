package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	ForecastDays.Add(7)
	ModelR2.WithLabelValues("Linear Regression", "DC").Set(0.99)

	path := filepath.Join(t.TempDir(), "nested", "metrics.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	for _, want := range []string{
		"solarcast_forecast_days_total",
		`solarcast_model_r2{model="Linear Regression",target="DC"} 0.99`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "go_goroutines") {
		t.Error("textfile should not contain runtime collectors")
	}
}

func TestWriteTextfile_Disabled(t *testing.T) {
	if err := WriteTextfile(""); err != nil {
		t.Fatalf("WriteTextfile(\"\") = %v, want nil", err)
	}
}
