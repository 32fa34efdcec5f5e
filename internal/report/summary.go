package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/FranksOps/serper/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Summary contains aggregated figures about recorded fetch attempts.
type Summary struct {
	TotalAttempts   int            `json:"total_attempts" yaml:"total_attempts"`
	TotalErrors     int            `json:"total_errors" yaml:"total_errors"`
	TotalBlocked    int            `json:"total_blocked" yaml:"total_blocked"`
	DistinctURLs    int            `json:"distinct_urls" yaml:"distinct_urls"`
	StatusCodes     map[int]int    `json:"status_codes" yaml:"status_codes"`
	DetectionsBySrc map[string]int `json:"detections_by_src" yaml:"detections_by_src"`
	TotalBytes      int64          `json:"total_bytes" yaml:"total_bytes"`
	StartTime       time.Time      `json:"start_time" yaml:"start_time"`
	EndTime         time.Time      `json:"end_time" yaml:"end_time"`
	Duration        time.Duration  `json:"duration" yaml:"duration"`
}

// GenerateSummary aggregates a slice of attempts.
func GenerateSummary(attempts []*storage.Attempt) Summary {
	s := Summary{
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
	}

	if len(attempts) == 0 {
		return s
	}

	s.StartTime = attempts[0].CreatedAt
	s.EndTime = attempts[0].CreatedAt
	urls := make(map[string]struct{})

	for _, a := range attempts {
		s.TotalAttempts++
		urls[a.URL] = struct{}{}
		if !a.Succeeded() {
			s.TotalErrors++
		}
		if a.Blocked {
			s.TotalBlocked++
			s.DetectionsBySrc[a.DetectionSrc]++
		}
		if a.StatusCode > 0 {
			s.StatusCodes[a.StatusCode]++
		}
		s.TotalBytes += int64(a.BodyBytes)

		if a.CreatedAt.Before(s.StartTime) {
			s.StartTime = a.CreatedAt
		}
		if end := a.CreatedAt.Add(a.Duration); end.After(s.EndTime) {
			s.EndTime = end
		}
	}

	s.DistinctURLs = len(urls)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteSummaryJSON writes the summary to the provided writer in JSON format.
func WriteSummaryJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

var summaryFuncs = template.FuncMap{
	"bytes": func(n int64) string { return humanize.Bytes(uint64(max(n, 0))) },
}

var summaryTmpl = template.Must(template.New("summary").Funcs(summaryFuncs).Parse(`Fetch Attempt Summary
---------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Attempts:      {{.TotalAttempts}} ({{.DistinctURLs}} urls)
Total Bytes:   {{bytes .TotalBytes}}
Failed:        {{.TotalErrors}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Blocked: {{.TotalBlocked}}
{{- range $src, $count := .DetectionsBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`))

// WriteSummaryText writes a human-readable text summary to the provided writer.
func WriteSummaryText(w io.Writer, summary Summary) error {
	if err := summaryTmpl.Execute(w, summary); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

// WriteAttemptsJSON writes the attempts together with their summary.
func WriteAttemptsJSON(w io.Writer, attempts []*storage.Attempt, summary Summary) error {
	if attempts == nil {
		attempts = []*storage.Attempt{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(struct {
		Summary  Summary            `json:"summary"`
		Attempts []*storage.Attempt `json:"attempts"`
	}{summary, attempts})
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

// WriteAttemptsText writes one aligned line per attempt. Errors are printed
// in red when color output is enabled.
func WriteAttemptsText(w io.Writer, attempts []*storage.Attempt) error {
	red := color.New(color.FgRed).SprintFunc()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tATTEMPT\tSTATUS\tBLOCKED\tDURATION\tURL\tERROR")
	for _, a := range attempts {
		blocked := "-"
		if a.Blocked {
			blocked = a.DetectionSrc
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Format(time.RFC3339),
			a.Attempt,
			a.StatusCode,
			blocked,
			a.Duration.Round(time.Millisecond),
			a.URL,
			red(a.Error),
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}
