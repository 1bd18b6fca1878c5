package monitoring

import (
	"context"
	"time"

	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/queue"
)

type fakeRunLog struct {
	runs    []model.RunLogEntry
	failing []model.RunLogEntry
	err     error
	since   time.Time
}

func (f *fakeRunLog) RecordRun(_ context.Context, e model.RunLogEntry) error {
	f.runs = append(f.runs, e)
	return f.err
}

func (f *fakeRunLog) LastRuns(_ context.Context) ([]model.RunLogEntry, error) {
	return f.failing, f.err
}

func (f *fakeRunLog) Failing(_ context.Context) ([]model.RunLogEntry, error) {
	return f.failing, f.err
}

func (f *fakeRunLog) RunsSince(_ context.Context, since time.Time) ([]model.RunLogEntry, error) {
	f.since = since
	return f.runs, f.err
}

type fakeDepth struct {
	depth queue.Depth
	err   error
}

func (f *fakeDepth) Depth(_ context.Context) (queue.Depth, error) {
	return f.depth, f.err
}
