package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/queue"
	"github.com/sells-group/council-scraper/internal/store"
)

// Snapshot holds a point-in-time view of scraping health.
type Snapshot struct {
	// Runs finished within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsDisabled  int     `json:"runs_disabled"`
	FailureRate   float64 `json:"failure_rate"`
	Records       int     `json:"records"`

	// Councils whose latest run failed, regardless of window.
	Failing []string `json:"failing"`

	Queue queue.Depth `json:"queue"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// DepthReader is the part of the queue the collector needs.
type DepthReader interface {
	Depth(ctx context.Context) (queue.Depth, error)
}

// Collector gathers a Snapshot from the run log and the queue.
type Collector struct {
	runs  store.RunLog
	queue DepthReader
	now   func() time.Time
}

// NewCollector creates a collector. q may be nil when no queue is configured.
func NewCollector(runs store.RunLog, q DepthReader) *Collector {
	return &Collector{runs: runs, queue: q, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window and refreshes
// the failing-councils and queue-depth gauges.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.RunsSince(ctx, sinceHours(now, lookbackHours))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusDisabled:
			snap.RunsDisabled++
		}
		snap.Records += r.Records
	}
	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(finished)
	}

	failing, err := c.runs.Failing(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failing")
	}
	for _, f := range failing {
		snap.Failing = append(snap.Failing, f.Council)
	}
	FailingCouncils.Set(float64(len(failing)))

	if c.queue != nil {
		depth, err := c.queue.Depth(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: queue depth")
		}
		snap.Queue = depth
		SetQueueDepth(depth)
	}

	return snap, nil
}
