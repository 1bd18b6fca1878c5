package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/config"
	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/queue"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	collector := NewCollector(&fakeRunLog{}, nil)
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.25}
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:          srv.URL,
		DeadLetterThreshold: 1,
		LookbackWindowHours: 24,
	}
	collector := NewCollector(&fakeRunLog{}, &fakeDepth{depth: queue.Depth{Dead: 2}})
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{DeadLetterThreshold: 1}
	collector := NewCollector(&fakeRunLog{}, &fakeDepth{err: assert.AnError})
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	assert.Equal(t, 0, checker.Check(context.Background()))
}

func TestChecker_AlertsOnceWhenCouncilStartsFailing(t *testing.T) {
	received := make(chan Alert, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err == nil {
			received <- a
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	failing := func(codes ...string) []model.RunLogEntry {
		var out []model.RunLogEntry
		for _, c := range codes {
			out = append(out, model.RunLogEntry{Council: c, Status: model.RunStatusFailed, Error: "boom"})
		}
		return out
	}

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, LookbackWindowHours: 24}
	runs := &fakeRunLog{failing: failing("KIR")}
	checker := NewChecker(NewCollector(runs, nil), NewAlerter(cfg), cfg)
	ctx := context.Background()

	// Councils already failing at startup are only logged.
	assert.Equal(t, 0, checker.Check(ctx))

	runs.failing = failing("KIR", "LDS")
	require.Equal(t, 1, checker.Check(ctx))
	a := <-received
	assert.Equal(t, AlertNewlyFailing, a.Type)
	assert.Equal(t, []any{"LDS"}, a.Details["councils"])
	assert.EqualValues(t, 2, a.Details["failing"])

	assert.Equal(t, 0, checker.Check(ctx), "unchanged failing set")

	runs.failing = failing("LDS")
	assert.Equal(t, 0, checker.Check(ctx), "recovery is not alerted")

	runs.failing = failing("KIR", "LDS")
	require.Equal(t, 1, checker.Check(ctx), "a recovered council that breaks again is reported")
	a = <-received
	assert.Equal(t, []any{"KIR"}, a.Details["councils"])
	assert.Empty(t, received)
}
