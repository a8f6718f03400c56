package main

import (
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default output dir", []string{"train"}, filepath.Join("output", "metrics.prom")},
		{"follows output dir", []string{"--output-dir", "/tmp/run1", "train"}, filepath.Join("/tmp/run1", "metrics.prom")},
		{"explicit file", []string{"--output-dir", "/tmp/run1", "--metrics-file", "/var/lib/metrics/solar.prom", "train"}, "/var/lib/metrics/solar.prom"},
		{"disabled", []string{"--no-metrics", "train"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Name("solarcast"))
			require.NoError(t, err)
			_, err = parser.Parse(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cli.Globals.metricsPath())
		})
	}
}
