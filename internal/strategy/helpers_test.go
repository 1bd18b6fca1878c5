package strategy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/fetcher"
)

// stubFetcher serves canned bodies by URL and records every request.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	types map[string]string
	errs  map[string]error
	calls []string
}

var _ fetcher.Fetcher = (*stubFetcher)(nil)

func newStub() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]string),
		types: make(map[string]string),
		errs:  make(map[string]error),
	}
}

func (s *stubFetcher) page(url, body string) *stubFetcher {
	s.pages[url] = body
	return s
}

func (s *stubFetcher) fail(url string, err error) *stubFetcher {
	s.errs[url] = err
	return s
}

func (s *stubFetcher) Get(_ context.Context, url string) (*fetcher.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)

	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	body, ok := s.pages[url]
	if !ok {
		return nil, &fetcher.FetchError{URL: url, StatusCode: 404, Attempts: 1, Err: &fetcher.StatusError{StatusCode: 404}}
	}
	ct := s.types[url]
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &fetcher.Response{URL: url, StatusCode: 200, ContentType: ct, Body: []byte(body)}, nil
}

func (s *stubFetcher) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// drain runs discovery and extraction the way the run controller does and
// returns every result plus the discovery error, if any.
func drain(t *testing.T, st Strategy) ([]Result, error) {
	t.Helper()
	ctx := context.Background()
	var results []Result
	for item, err := range st.Discover(ctx) {
		if err != nil {
			return results, err
		}
		res := st.ExtractOne(ctx, item)
		require.Contains(t, []ResultKind{ResultRecord, ResultSkip, ResultError}, res.Kind)
		results = append(results, res)
	}
	return results, nil
}

func records(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Kind == ResultRecord {
			out = append(out, r)
		}
	}
	return out
}

func countKind(results []Result, kind ResultKind) int {
	n := 0
	for _, r := range results {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
