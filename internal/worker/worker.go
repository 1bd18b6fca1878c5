// Package worker processes queued council tasks: it resolves each task to a
// strategy, runs it once, and reports the outcome to the sink and back to
// the queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/config"
	"github.com/sells-group/council-scraper/internal/fetcher"
	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/resilience"
	"github.com/sells-group/council-scraper/internal/runner"
	"github.com/sells-group/council-scraper/internal/store"
	"github.com/sells-group/council-scraper/internal/strategy"
)

// saveTimeout bounds the sink write for a completed run.
const saveTimeout = 30 * time.Second

// Status is the tri-state result a worker reports for one task.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusDisabled Status = "disabled"
)

// Report is what Handle returns for one task.
type Report struct {
	TaskID  string           `json:"task_id"`
	Council string           `json:"council"`
	Status  Status           `json:"status"`
	Error   string           `json:"error,omitempty"`
	Outcome model.RunOutcome `json:"outcome"`

	// Interrupted is set when the worker's context was cancelled before the
	// run finished. Such a run is neither logged nor settled; the delivery
	// is left in flight for the queue to reap.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Options configures a Worker.
type Options struct {
	Fetch config.FetchConfig
	Run   config.RunConfig

	// Concurrency is the number of tasks processed at once by Serve and
	// HandleAll. Default: 4.
	Concurrency int

	// PollInterval is how long an idle consumer waits before polling again.
	PollInterval time.Duration

	// ReapInterval is how often Serve requeues expired deliveries.
	ReapInterval time.Duration
}

// OptionsFromConfig maps application config onto worker options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Fetch:        cfg.Fetch,
		Run:          cfg.Run,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
		ReapInterval: time.Duration(cfg.Worker.ReapIntervalSecs) * time.Second,
	}
}

// Worker runs councils. It holds no per-council state, so one Worker can
// process any number of tasks concurrently.
type Worker struct {
	cat  *catalogue.Catalogue
	sink store.Sink
	runs store.RunLog
	opts Options

	newFetcher func(council string) fetcher.Fetcher
}

// New creates a worker. runs may be nil.
func New(cat *catalogue.Catalogue, sink store.Sink, runs store.RunLog, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 30 * time.Second
	}
	w := &Worker{cat: cat, sink: sink, runs: runs, opts: opts}
	w.newFetcher = func(council string) fetcher.Fetcher {
		return fetcher.NewHTTPFetcher(HTTPOptions(opts.Fetch, council))
	}
	return w
}

// HTTPOptions builds the fetcher options for one council run.
func HTTPOptions(cfg config.FetchConfig, council string) fetcher.HTTPOptions {
	return fetcher.HTTPOptions{
		Council:          council,
		UserAgent:        cfg.UserAgent,
		Timeout:          time.Duration(cfg.TimeoutSecs) * time.Second,
		Retry:            resilience.FromConfig(cfg.MaxAttempts, cfg.InitialBackoffMs, cfg.MaxBackoffMs),
		RatePerSecond:    cfg.RatePerSecond,
		Burst:            cfg.Burst,
		MaxBodyBytes:     int64(cfg.MaxBodyMB) << 20,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.BreakerCooldownSecs) * time.Second,
	}
}

// Handle runs the task's council once and reports the outcome. It never
// panics and never returns an error: every problem becomes a failure
// report. Only completed runs replace the council's stored records; a run
// whose records could not be saved is logged as failed. Every run except
// an unknown council or an interrupted one is written to the run log.
func (w *Worker) Handle(ctx context.Context, task model.QueuedTask) (rep Report) {
	log := zap.L().With(
		zap.String("component", "worker"),
		zap.String("task_id", task.ID),
		zap.String("council", task.Council),
	)
	rep = Report{TaskID: task.ID, Council: task.Council}

	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", zap.Any("panic", r))
			rep.Status = StatusFailure
			rep.Error = fmt.Sprintf("worker: panic: %v", r)
		}
	}()

	desc, ok := w.cat.Get(task.Council)
	if !ok {
		rep.Status = StatusFailure
		rep.Error = fmt.Sprintf("worker: unknown council %q", task.Council)
		rep.Outcome = model.RunOutcome{Council: task.Council, Status: model.RunStatusFailed, Error: rep.Error}
		log.Error("unknown council")
		return rep
	}

	strat, err := strategy.New(desc, w.newFetcher(desc.Code))
	if err != nil {
		rep.Status = StatusFailure
		rep.Error = err.Error()
		now := time.Now().UTC()
		rep.Outcome = model.RunOutcome{
			Council: desc.Code, Kind: desc.Kind, Status: model.RunStatusFailed,
			Error: rep.Error, StartedAt: now, FinishedAt: now,
		}
		log.Error("build strategy", zap.Error(err))
		w.recordRun(ctx, log, rep.Outcome)
		return rep
	}

	out := runner.New(strat, runner.Options{
		MaxDuration: time.Duration(w.opts.Run.MaxDurationSecs) * time.Second,
		MinRecords:  w.opts.Run.MinRecords,
		Verbose:     task.Options.Verbose,
	}).Run(ctx)

	switch out.Status {
	case model.RunStatusDisabled:
		rep.Status = StatusDisabled
	case model.RunStatusCompleted:
		rep.Status = StatusSuccess
		if err := w.save(ctx, desc.Code, out); err != nil {
			log.Error("save outcome", zap.Error(err))
			rep.Status = StatusFailure
			rep.Error = err.Error()
			out.Status = model.RunStatusFailed
			out.Error = rep.Error
		}
	default:
		rep.Status = StatusFailure
		rep.Error = out.Error
		if ctx.Err() != nil {
			rep.Outcome = out
			rep.Interrupted = true
			log.Warn("run interrupted", zap.String("error", out.Error))
			return rep
		}
	}

	rep.Outcome = out
	w.recordRun(ctx, log, out)
	return rep
}

// save stores a completed run's records. The run already finished, so the
// write is not abandoned when ctx is cancelled mid-save.
func (w *Worker) save(ctx context.Context, council string, out model.RunOutcome) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := w.sink.SaveOutcome(sctx, council, out.Records, out.Issues); err != nil {
		return eris.Wrap(err, "worker: save outcome")
	}
	return nil
}

func (w *Worker) recordRun(ctx context.Context, log *zap.Logger, out model.RunOutcome) {
	if w.runs == nil {
		return
	}
	if err := w.runs.RecordRun(context.WithoutCancel(ctx), out.LogEntry()); err != nil {
		log.Warn("record run", zap.Error(err))
	}
}

// HandleAll runs the given councils without a queue, Concurrency at a time,
// and returns one report per code in input order. One council's failure
// never stops the others.
func (w *Worker) HandleAll(ctx context.Context, codes []string, opts model.TaskOptions) []Report {
	reports := make([]Report, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for i, code := range codes {
		g.Go(func() error {
			reports[i] = w.Handle(gctx, model.NewTask(code, opts))
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
