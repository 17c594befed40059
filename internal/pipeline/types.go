// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"sort"
	"strings"
	"time"
)

// UnitStatus represents the lifecycle state of a work unit.
type UnitStatus string

// Unit status values reported in run summaries and completion events.
const (
	UnitStatusPending   UnitStatus = "pending"
	UnitStatusSkipped   UnitStatus = "skipped"
	UnitStatusRunning   UnitStatus = "running"
	UnitStatusCompleted UnitStatus = "completed"
	UnitStatusFailed    UnitStatus = "failed"
)

// WorkUnit is one project's worth of fetch-and-process work. It is the
// granularity at which the checkpoint records completion.
type WorkUnit struct {
	Project string   `json:"project"`
	URLs    []string `json:"urls"`
}

// Page is the content returned by a fetcher for a single URL. RawHTML is
// carried for promotion heuristics only and never persisted.
type Page struct {
	URL          string
	Title        string
	Text         string
	RawHTML      []byte
	StatusCode   int
	UsedHeadless bool
	Duration     time.Duration
}

// FullText renders the page the way downstream prompts consume it.
func (p Page) FullText() string {
	if p.Title == "" {
		return p.Text
	}
	return p.Title + ".\n\n" + p.Text
}

// ResultRow is the merged view of every prompt response for one URL.
// Values maps a field name to the distinct values observed for it, in
// first-seen order.
type ResultRow struct {
	URL    string              `json:"url"`
	Values map[string][]string `json:"values"`
}

// UnitResult is the durable outcome of one completed work unit.
type UnitResult struct {
	Project     string      `json:"project"`
	Rows        []ResultRow `json:"rows"`
	FailedURLs  []string    `json:"failed_urls,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}

// FieldNames returns the sorted union of field names across all rows.
func (r UnitResult) FieldNames() []string {
	seen := map[string]struct{}{}
	for _, row := range r.Rows {
		for name := range row.Values {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeResponses folds per-prompt field maps for one URL into a ResultRow.
// Fields merge strictly by name: a value already recorded for a field is
// not repeated, conflicting values are all kept. Blank values are dropped.
func MergeResponses(url string, responses []map[string]string) ResultRow {
	row := ResultRow{URL: url, Values: map[string][]string{}}
	for _, resp := range responses {
		names := make([]string, 0, len(resp))
		for name := range resp {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := strings.TrimSpace(resp[name])
			if value == "" {
				continue
			}
			if contains(row.Values[name], value) {
				continue
			}
			row.Values[name] = append(row.Values[name], value)
		}
	}
	return row
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// CompletionEvent is the payload published when a work unit finishes,
// successfully or not. Subscribers use it to track batch progress
// without access to the checkpoint file.
type CompletionEvent struct {
	Project    string     `json:"project"`
	Status     UnitStatus `json:"status"`
	Rows       int        `json:"rows"`
	FailedURLs []string   `json:"failed_urls,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// RunSummary captures the outcome of a whole orchestrator run.
type RunSummary struct {
	Completed   int
	Failed      int
	Skipped     int
	FailedUnits []string
	Duration    time.Duration
}
