package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/queue"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_runs_total",
			Help: "Council runs by terminal status and strategy kind.",
		},
		[]string{"status", "kind"},
	)
	RecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "council_records_total",
			Help: "Councillor records produced by completed or partial runs.",
		},
	)
	IssuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_issues_total",
			Help: "Per-item skips and errors, labeled by kind.",
		},
		[]string{"kind"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_run_duration_seconds",
			Help:    "Wall-clock duration of one council run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_tasks_total",
			Help: "Queue tasks settled by workers, labeled by result (acked, retried, dead_lettered, interrupted).",
		},
		[]string{"result"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "council_queue_depth",
			Help: "Length of each work queue list.",
		},
		[]string{"list"},
	)
	FailingCouncils = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "council_failing_councils",
			Help: "Councils whose most recent run failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(IssuesTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(FailingCouncils)
}

// ObserveRun records one finished run.
func ObserveRun(o model.RunOutcome) {
	RunsTotal.WithLabelValues(string(o.Status), string(o.Kind)).Inc()
	RecordsTotal.Add(float64(len(o.Records)))
	for _, is := range o.Issues {
		IssuesTotal.WithLabelValues(string(is.Kind)).Inc()
	}
	if o.Status != model.RunStatusDisabled {
		RunDuration.WithLabelValues(string(o.Kind)).Observe(o.Duration.Seconds())
	}
}

// ObserveTask records how a worker settled a delivery.
func ObserveTask(result string) {
	TasksTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth publishes a queue depth snapshot.
func SetQueueDepth(d queue.Depth) {
	QueueDepth.WithLabelValues("pending").Set(float64(d.Pending))
	QueueDepth.WithLabelValues("processing").Set(float64(d.Processing))
	QueueDepth.WithLabelValues("dead").Set(float64(d.Dead))
}

func sinceHours(now time.Time, hours int) time.Time {
	return now.Add(-time.Duration(hours) * time.Hour)
}
