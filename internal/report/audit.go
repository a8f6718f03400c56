package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/lox/solarcast/internal/store"
)

const auditTimeLayout = "2006-01-02 15:04"

// PrintIngestHealth writes per-city fetch outcomes over the last days, then
// the most recent failures.
func PrintIngestHealth(w io.Writer, days int, cities []store.CityStatus, health []store.CityIngestHealth, failures []store.IngestRun) {
	fmt.Fprintf(w, "\n--- Collection health (last %d days) ---\n", days)

	byCity := make(map[string]store.CityIngestHealth, len(health))
	for _, h := range health {
		byCity[h.City] = h
	}

	names := make([]string, 0, len(cities)+len(health))
	last := make(map[string]store.CityStatus, len(cities))
	for _, c := range cities {
		names = append(names, c.Name)
		last[c.Name] = c
	}
	for _, h := range health {
		if _, ok := last[h.City]; !ok {
			names = append(names, h.City)
		}
	}

	if len(names) == 0 {
		fmt.Fprintln(w, "No collection history.")
		return
	}

	for _, name := range names {
		line := name + ": "
		if h, ok := byCity[name]; ok {
			line += fmt.Sprintf("%d/%d fetches ok, %d records", h.SuccessRuns, h.TotalRuns, h.TotalRecords)
		} else {
			line += "no fetches"
		}
		if c, ok := last[name]; ok && c.LastCollectedAt.Valid {
			line += ", last collected " + c.LastCollectedAt.Time.UTC().Format(auditTimeLayout)
		}
		fmt.Fprintln(w, line)
	}

	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w, "Recent failures:")
	for _, f := range failures {
		msg := "unknown error"
		if f.ErrorMessage.Valid {
			msg = f.ErrorMessage.String
		}
		fmt.Fprintf(w, "  %s %s: %s\n", f.StartedAt.UTC().Format(auditTimeLayout), f.City.String, msg)
	}
}

// PrintStageRuns writes the outcome of the latest finished run of each stage.
func PrintStageRuns(w io.Writer, runs []store.PipelineRun) {
	if len(runs) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Last stage runs ---")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
			if r.ErrorMessage.Valid {
				status += ": " + r.ErrorMessage.String
			}
		}
		line := fmt.Sprintf("%s: %s", r.Stage, status)
		if r.Records.Valid {
			line += fmt.Sprintf(", %d records", r.Records.Int64)
		}
		if r.FinishedAt.Valid {
			line += fmt.Sprintf(", %s", r.FinishedAt.Time.Sub(r.StartedAt).Round(time.Millisecond))
		}
		fmt.Fprintf(w, "%s  (%s)\n", line, r.StartedAt.UTC().Format(auditTimeLayout))
	}
}

// PrintScoreTrend writes a model's recent Avg_R2 values, newest first, with
// the change from the run before each.
func PrintScoreTrend(w io.Writer, model string, history []store.ModelScoreRow) {
	fmt.Fprintf(w, "\n--- Avg R² trend: %s ---\n", model)
	if len(history) == 0 {
		fmt.Fprintln(w, "No scored runs.")
		return
	}
	for i, h := range history {
		line := fmt.Sprintf("%s  %s", h.TrainedAt.UTC().Format(auditTimeLayout), formatScore(h.AvgR2))
		if i+1 < len(history) {
			prev := history[i+1].AvgR2
			if !math.IsNaN(h.AvgR2) && !math.IsNaN(prev) {
				line += fmt.Sprintf(" (%+.3f)", h.AvgR2-prev)
			}
		}
		fmt.Fprintf(w, "%s  [%d train / %d test]\n", line, h.TrainRows, h.TestRows)
	}
}

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}
