package monitoring

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/config"
)

// Checker runs periodic alert checks in the background. Between checks it
// remembers which councils were failing, so a council that breaks is
// reported once rather than on every tick.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu      sync.Mutex
	seeded  bool
	failing map[string]struct{}
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		failing:   make(map[string]struct{}),
	}
}

// Run checks once immediately and then on every interval until ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	c.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and sends any triggered alerts. The first
// check only records which councils are failing; later checks raise
// AlertNewlyFailing for councils that joined that set. It returns the
// number of alerts sent.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return 0
	}

	started, recovered, first := c.track(snap.Failing)
	switch {
	case first && len(snap.Failing) > 0:
		log.Warn("monitoring: councils failing at startup", zap.Strings("councils", snap.Failing))
	case len(recovered) > 0:
		log.Info("monitoring: councils recovered", zap.Strings("councils", recovered))
	}

	alerts := c.alerter.Evaluate(snap)
	if len(started) > 0 {
		alerts = append(alerts, newlyFailingAlert(started, len(snap.Failing)))
	}
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered",
			zap.Int("failing", len(snap.Failing)),
			zap.Int64("pending", snap.Queue.Pending),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
		zap.Strings("newly_failing", started),
	)
	return sent
}

// track replaces the remembered failing set with now and reports the
// councils that entered and left it. first is true on the initial call.
func (c *Checker) track(now []string) (started, recovered []string, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]struct{}, len(now))
	for _, code := range now {
		next[code] = struct{}{}
		if _, ok := c.failing[code]; !ok && c.seeded {
			started = append(started, code)
		}
	}
	for code := range c.failing {
		if _, ok := next[code]; !ok {
			recovered = append(recovered, code)
		}
	}
	slices.Sort(started)
	slices.Sort(recovered)

	first = !c.seeded
	c.seeded = true
	c.failing = next
	return started, recovered, first
}

func newlyFailingAlert(codes []string, total int) Alert {
	return Alert{
		Type:     AlertNewlyFailing,
		Severity: "medium",
		Message: fmt.Sprintf("%d council(s) started failing: %s (%d failing in total)",
			len(codes), strings.Join(codes, ", "), total),
		Details: map[string]any{
			"councils": codes,
			"failing":  total,
		},
		Timestamp: time.Now().UTC(),
	}
}
