// Package runner drives one strategy through a single council run:
// discovery, per-item extraction, and outcome reporting.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/monitoring"
	"github.com/sells-group/council-scraper/internal/strategy"
)

// State is the controller's position in a run.
type State int

const (
	StatePending State = iota
	StateDiscovering
	StateExtracting
	StateCompleted
	StateFailed
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDiscovering:
		return "discovering"
	case StateExtracting:
		return "extracting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateDisabled
}

// Options bounds a run.
type Options struct {
	// MaxDuration fails the run once exceeded. Zero means unbounded.
	MaxDuration time.Duration

	// MinRecords logs a warning when a completed run yields fewer records.
	MinRecords int

	// Verbose logs every skipped or failed item at info level.
	Verbose bool
}

// Controller runs one strategy once. It is not safe for concurrent use and
// must not be reused.
type Controller struct {
	strat strategy.Strategy
	opts  Options
	state State
	now   func() time.Time
}

// New creates a controller in StatePending.
func New(s strategy.Strategy, opts Options) *Controller {
	return &Controller{strat: s, opts: opts, now: time.Now}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Run executes the strategy and returns its outcome. Item-level problems
// are collected as issues; only run-level errors fail the outcome. A
// disabled council completes immediately without any network activity.
func (c *Controller) Run(ctx context.Context) model.RunOutcome {
	if c.state != StatePending {
		panic(fmt.Sprintf("runner: Run called in state %s", c.state))
	}

	desc := c.strat.Council()
	log := zap.L().With(
		zap.String("component", "runner"),
		zap.String("council", desc.Code),
		zap.String("kind", string(desc.Kind)),
	)

	start := c.now().UTC()
	out := model.RunOutcome{
		Council:   desc.Code,
		Kind:      desc.Kind,
		StartedAt: start,
	}

	if desc.Disabled {
		c.state = StateDisabled
		out.Status = model.RunStatusDisabled
		out.FinishedAt = start
		log.Info("council disabled, skipping run")
		monitoring.ObserveRun(out)
		return out
	}

	if c.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.MaxDuration)
		defer cancel()
	}

	col := strategy.NewCollector()
	err := c.drive(ctx, col, log)

	out.Records = col.Records()
	out.Issues = col.Issues()
	out.FinishedAt = c.now().UTC()
	out.Duration = out.FinishedAt.Sub(start)

	if err != nil {
		c.state = StateFailed
		out.Status = model.RunStatusFailed
		out.Error = err.Error()
		out.Incomplete = true
		log.Error("run failed",
			zap.Error(err),
			zap.Int("items", col.Items()),
			zap.Int("records", len(out.Records)),
			zap.Duration("elapsed", out.Duration),
		)
	} else {
		c.state = StateCompleted
		out.Status = model.RunStatusCompleted
		log.Info("run complete",
			zap.Int("items", col.Items()),
			zap.Int("records", len(out.Records)),
			zap.Int("issues", len(out.Issues)),
			zap.Duration("elapsed", out.Duration),
		)
		if len(out.Records) < c.opts.MinRecords {
			log.Warn("fewer records than expected",
				zap.Int("records", len(out.Records)),
				zap.Int("min_records", c.opts.MinRecords),
			)
		}
	}

	monitoring.ObserveRun(out)
	return out
}

// drive runs either the strategy's own Runner or the discover/extract
// template. A panic inside the strategy fails the run.
func (c *Controller) drive(ctx context.Context, col *strategy.Collector, log *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("runner: strategy panicked: %v", r)
		}
	}()

	c.state = StateDiscovering

	if r, ok := c.strat.(strategy.Runner); ok {
		c.state = StateExtracting
		if err := r.Run(ctx, col); err != nil {
			return err
		}
		return c.deadline(ctx)
	}

	for item, derr := range c.strat.Discover(ctx) {
		if derr != nil {
			return derr
		}
		c.state = StateExtracting
		if err := c.deadline(ctx); err != nil {
			return err
		}

		res := c.strat.ExtractOne(ctx, item)
		col.Add(item, res)
		c.logItem(log, item, res)
	}
	return c.deadline(ctx)
}

// deadline converts an expired or cancelled context into a run-level error.
func (c *Controller) deadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if eris.Is(err, context.DeadlineExceeded) && c.opts.MaxDuration > 0 {
			return eris.Wrapf(err, "runner: exceeded max duration %s", c.opts.MaxDuration)
		}
		return eris.Wrap(err, "runner: run cancelled")
	}
	return nil
}

func (c *Controller) logItem(log *zap.Logger, item strategy.RawItem, res strategy.Result) {
	if res.Kind == strategy.ResultRecord {
		return
	}
	lvl := log.Debug
	if c.opts.Verbose {
		lvl = log.Info
	}
	switch res.Kind {
	case strategy.ResultSkip:
		lvl("item skipped", zap.Int("index", item.Index), zap.String("reason", res.Reason))
	case strategy.ResultError:
		lvl("item failed", zap.Int("index", item.Index), zap.Error(res.Err))
	}
}

// Run is shorthand for New(s, opts).Run(ctx).
func Run(ctx context.Context, s strategy.Strategy, opts Options) model.RunOutcome {
	return New(s, opts).Run(ctx)
}
