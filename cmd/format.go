package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/monitoring"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tFOUND\tPROCESSED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t---------\t-------\t--------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Config.Kind,
			r.Status,
			r.TotalFound,
			r.TotalProcessed,
			r.StartedAt.Format("2006-01-02 15:04"),
			runDuration(r),
		)
	}
	_ = w.Flush()
}

// runDuration is empty for a run still in progress.
func runDuration(r model.Run) string {
	if r.CompletedAt == nil {
		return ""
	}
	return r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func formatRunDetail(out io.Writer, r *model.Run, attempts []model.Attempt) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", r.Config.Kind)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	_, _ = fmt.Fprintf(w, "Found:\t%d\n", r.TotalFound)
	if r.Config.TargetCount > 0 {
		_, _ = fmt.Fprintf(w, "Target:\t%d\n", r.Config.TargetCount)
	}
	_, _ = fmt.Fprintf(w, "Processed:\t%d\n", r.TotalProcessed)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	if d := runDuration(*r); d != "" {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", d)
	}
	for _, e := range r.Errors {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", e)
	}
	_ = w.Flush()

	if len(attempts) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)

	counts := map[model.AttemptStatus]int{}
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PLATFORM\tHANDLE\tSTATUS\tMS\tERROR")
	for _, a := range attempts {
		counts[a.Status]++
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			a.Platform, a.Handle, a.Status, a.DurationMs, truncate(a.Error, 60))
	}
	_ = w.Flush()

	parts := make([]string, 0, 4)
	for _, s := range []model.AttemptStatus{
		model.AttemptSuccess, model.AttemptFailed, model.AttemptNotFound, model.AttemptSkippedPrivate,
	} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
		}
	}
	_, _ = fmt.Fprintf(out, "\n%d attempts: %s\n", len(attempts), strings.Join(parts, " "))
}

func formatStats(out io.Writer, s *model.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Candidates:\t%d\n", s.TotalCandidates)
	_, _ = fmt.Fprintf(w, "  With data:\t%d\n", s.WithData)
	_, _ = fmt.Fprintf(w, "  Missing data:\t%d\n", s.MissingData)
	_, _ = fmt.Fprintf(w, "  Never attempted:\t%d\n", s.NeverAttempted)
	_, _ = fmt.Fprintf(w, "Failed attempts:\t%d\n", s.FailedAttempts)
	if s.LastRun != nil {
		_, _ = fmt.Fprintf(w, "Last run:\t%s (%s, %s)\n",
			truncateID(s.LastRun.ID), s.LastRun.Status, s.LastRun.StartedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func formatImportResult(out io.Writer, read int, r model.ImportResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Read:\t%d\n", read)
	_, _ = fmt.Fprintf(w, "Created:\t%d\n", r.Created)
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", r.Updated)
	_, _ = fmt.Fprintf(w, "Batch duplicates:\t%d\n", r.BatchDuplicatesSkipped)
	_, _ = fmt.Fprintf(w, "Store duplicates:\t%d\n", r.StoreDuplicatesSkipped)
	_, _ = fmt.Fprintf(w, "Invalid:\t%d\n", r.Invalid)
	_ = w.Flush()
}

func formatEndpoints(out io.Writer, eps []model.Endpoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tENDPOINT\tACTIVE\tSUCCESS\tREQUESTS\tFAILED\tLAST_USED")
	for _, e := range eps {
		last := ""
		if e.LastUsedAt != nil {
			last = e.LastUsedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%t\t%.1f%%\t%d\t%d\t%s\n",
			e.ID, e.Key(), e.IsActive, e.SuccessRate, e.TotalRequests, e.FailedRequests, last)
	}
	_ = w.Flush()
}

func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (%d running, %d completed, %d failed)\n",
		s.RunsTotal, s.RunsRunning, s.RunsCompleted, s.RunsFailed)
	_, _ = fmt.Fprintf(w, "Run failure rate:\t%.1f%%\n", s.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Attempts:\t%d (%d failed)\n", s.AttemptsTotal, s.AttemptsFailed)
	_, _ = fmt.Fprintf(w, "Attempt failure rate:\t%.1f%%\n", s.AttemptFailRate*100)
	_, _ = fmt.Fprintf(w, "Endpoints:\t%d/%d active\n", s.EndpointsActive, s.EndpointsTotal)
	_, _ = fmt.Fprintf(w, "Pool success rate:\t%.1f%%\n", s.PoolAvgSuccessRate)
	_, _ = fmt.Fprintf(w, "Candidates:\t%d (%d missing data)\n", s.CandidatesTotal, s.CandidatesMissingData)
	_ = w.Flush()

	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
