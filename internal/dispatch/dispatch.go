// Package dispatch fans a "scrape these councils" request out into one
// queued task per council.
package dispatch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/queue"
	"github.com/sells-group/council-scraper/internal/store"
)

// Filter narrows which councils are dispatched. The zero Filter selects
// every enabled council.
type Filter struct {
	Codes []string `json:"codes,omitempty"`
	Tags  []string `json:"tags,omitempty"`

	// OnlyFailed keeps councils whose most recent run failed.
	OnlyFailed bool `json:"only_failed,omitempty"`

	// Refresh skips councils with a completed run newer than this.
	Refresh time.Duration `json:"refresh,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// Dispatcher publishes tasks. It never scrapes.
type Dispatcher struct {
	cat  *catalogue.Catalogue
	pub  queue.Publisher
	runs store.RunLog
	now  func() time.Time
}

// New creates a dispatcher. runs may be nil when neither OnlyFailed nor
// Refresh is used.
func New(cat *catalogue.Catalogue, pub queue.Publisher, runs store.RunLog) *Dispatcher {
	return &Dispatcher{cat: cat, pub: pub, runs: runs, now: time.Now}
}

// Select returns the descriptors f matches without publishing anything.
func (d *Dispatcher) Select(ctx context.Context, f Filter) ([]model.CouncilDescriptor, error) {
	descs, err := d.cat.Select(catalogue.Filter{Codes: f.Codes, Tags: f.Tags})
	if err != nil {
		return nil, err
	}

	if f.OnlyFailed {
		if d.runs == nil {
			return nil, eris.New("dispatch: only-failed requires a run log")
		}
		failing, err := d.runs.Failing(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "dispatch: load failing councils")
		}
		failed := make(map[string]bool, len(failing))
		for _, e := range failing {
			failed[e.Council] = true
		}
		descs = keep(descs, func(desc model.CouncilDescriptor) bool { return failed[desc.Code] })
	}

	if f.Refresh > 0 {
		if d.runs == nil {
			return nil, eris.New("dispatch: refresh requires a run log")
		}
		last, err := d.runs.LastRuns(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "dispatch: load last runs")
		}
		cutoff := d.now().UTC().Add(-f.Refresh)
		fresh := make(map[string]bool, len(last))
		for _, e := range last {
			if e.Status == model.RunStatusCompleted && e.FinishedAt.After(cutoff) {
				fresh[e.Council] = true
			}
		}
		descs = keep(descs, func(desc model.CouncilDescriptor) bool { return !fresh[desc.Code] })
	}

	return descs, nil
}

// Dispatch publishes one task per selected council and returns the tasks
// published. It does not wait for any of them to run. On a publish error
// the tasks published so far are returned with the error.
func (d *Dispatcher) Dispatch(ctx context.Context, f Filter) ([]model.QueuedTask, error) {
	log := zap.L().With(zap.String("component", "dispatch"))

	descs, err := d.Select(ctx, f)
	if err != nil {
		return nil, err
	}

	tasks := make([]model.QueuedTask, 0, len(descs))
	for _, desc := range descs {
		task := model.NewTask(desc.Code, model.TaskOptions{Verbose: f.Verbose, Tags: f.Tags})
		if err := d.pub.Publish(ctx, task); err != nil {
			return tasks, eris.Wrapf(err, "dispatch: publish %s", desc.Code)
		}
		log.Debug("task published", zap.String("council", desc.Code), zap.String("task_id", task.ID))
		tasks = append(tasks, task)
	}

	log.Info("dispatch complete",
		zap.Int("published", len(tasks)),
		zap.Strings("codes", f.Codes),
		zap.Strings("tags", f.Tags),
		zap.Bool("only_failed", f.OnlyFailed),
	)
	return tasks, nil
}

func keep(descs []model.CouncilDescriptor, fn func(model.CouncilDescriptor) bool) []model.CouncilDescriptor {
	var out []model.CouncilDescriptor
	for _, d := range descs {
		if fn(d) {
			out = append(out, d)
		}
	}
	return out
}
