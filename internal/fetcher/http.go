package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/sells-group/council-scraper/internal/resilience"
)

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	// Council tags retry logs with the council being scraped.
	Council string

	UserAgent string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// Retry bounds attempts for transient failures.
	Retry resilience.Policy

	// RatePerSecond and Burst throttle requests made by this fetcher.
	RatePerSecond float64
	Burst         int

	// MaxBodyBytes caps how much of a body is read. Default: 16 MiB.
	MaxBodyBytes int64

	// BreakerThreshold is the number of exhausted fetches to one host after
	// which further requests to it fail immediately. Zero disables it.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Transport overrides the default transport; used by tests.
	Transport http.RoundTripper
}

// AdaptiveLimiter halves its rate on a 429 and recovers by 20% per success,
// never exceeding the configured rate or dropping below a quarter of it.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at r.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(r, burst),
		ceiling: r,
		floor:   r / 4,
		current: r,
	}
}

// Wait blocks until a request may be made.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate towards the ceiling.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(min(a.current*1.2, a.ceiling))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(max(a.current*0.5, a.floor))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.current = r
	a.limiter.SetLimit(r)
}

// HTTPFetcher implements Fetcher over net/http. Create one per council run:
// it owns its client, cookie jar, limiter and breaker, so nothing leaks
// between councils.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
	breaker *resilience.Breaker
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher with defaults applied.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "council-scraper/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 20
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
		}
	}

	// cookiejar.New never returns an error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: resilience.NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
	}
}

// Get fetches rawURL, retrying transient failures per the retry policy.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if err == nil {
			err = eris.Errorf("missing host")
		}
		return nil, &FetchError{URL: rawURL, Err: eris.Wrap(err, "parse url")}
	}

	if err := f.breaker.Allow(u.Host); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	policy := f.opts.Retry
	policy.OnRetry = resilience.RetryLogger(f.opts.Council, rawURL)

	resp, attempts, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (*Response, error) {
		return f.once(ctx, rawURL)
	})

	// A 404 says the host is up; only transient exhaustion counts against it.
	if err != nil && resilience.IsTransient(err) {
		f.breaker.Record(u.Host, err)
	} else {
		f.breaker.Record(u.Host, nil)
	}

	if err != nil {
		fe := &FetchError{URL: rawURL, Attempts: attempts, Err: err}
		var se *StatusError
		if errors.As(err, &se) {
			fe.StatusCode = se.StatusCode
		}
		return nil, fe
	}
	return resp, nil
}

func (f *HTTPFetcher) once(ctx context.Context, rawURL string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "get")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		f.limiter.OnRateLimit()
		zap.L().Warn("rate limited (429), backing off",
			zap.String("council", f.opts.Council),
			zap.String("url", rawURL),
			zap.Float64("new_rate", float64(f.limiter.Limit())),
		)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		se := &StatusError{StatusCode: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(se, resp.StatusCode)
		}
		return nil, se
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}
	f.limiter.OnSuccess()

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
