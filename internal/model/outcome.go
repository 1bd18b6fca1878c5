package model

import "time"

// RunStatus is the terminal state of one council run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusDisabled  RunStatus = "disabled"
)

// IssueKind classifies a per-item problem.
type IssueKind string

const (
	IssueSkip  IssueKind = "skip"
	IssueError IssueKind = "error"
)

// Issue records one item that did not produce a record.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Index   int       `json:"index"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
}

// RunOutcome is the result of running one strategy once.
type RunOutcome struct {
	Council    string        `json:"council"`
	Kind       StrategyKind  `json:"scraper_type"`
	Status     RunStatus     `json:"status"`
	Records    []Councillor  `json:"records"`
	Issues     []Issue       `json:"issues"`
	Error      string        `json:"error,omitempty"`
	Incomplete bool          `json:"incomplete,omitempty"`
	StartedAt  time.Time     `json:"start_time"`
	FinishedAt time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
}

// Skipped returns the skip reasons in order.
func (o RunOutcome) Skipped() []string {
	var out []string
	for _, is := range o.Issues {
		if is.Kind == IssueSkip {
			out = append(out, is.Message)
		}
	}
	return out
}

// Errored returns the item errors in order.
func (o RunOutcome) Errored() []string {
	var out []string
	for _, is := range o.Issues {
		if is.Kind == IssueError {
			out = append(out, is.Message)
		}
	}
	return out
}

// RunLogEntry is the persisted summary of one run, used for "only failed"
// dispatch and refresh windows.
type RunLogEntry struct {
	Council    string    `json:"council"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Records    int       `json:"records"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// LogEntry summarises the outcome for the run log.
func (o RunOutcome) LogEntry() RunLogEntry {
	return RunLogEntry{
		Council:    o.Council,
		Status:     o.Status,
		Error:      o.Error,
		Records:    len(o.Records),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
}
