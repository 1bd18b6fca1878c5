package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a host has failed too often in this run.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// Breaker counts consecutive exhausted fetches per host. Once a host reaches
// the threshold further requests to it are refused until the cooldown
// elapses, after which a single probe is let through.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState

	now func() time.Time
}

type hostState struct {
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker. A threshold of zero or less disables it.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		hosts:     make(map[string]*hostState),
		now:       time.Now,
	}
}

// Allow returns ErrCircuitOpen if host is currently refused.
func (b *Breaker) Allow(host string) error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.hosts[host]
	if !ok || st.failures < b.threshold {
		return nil
	}
	if st.probing || b.now().Sub(st.openedAt) < b.cooldown {
		return eris.Wrapf(ErrCircuitOpen, "host %s", host)
	}
	st.probing = true
	return nil
}

// Record notes the result of a fetch to host.
func (b *Breaker) Record(host string, err error) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.hosts[host]
	if !ok {
		st = &hostState{}
		b.hosts[host] = st
	}
	st.probing = false
	if err == nil {
		st.failures = 0
		return
	}
	st.failures++
	if st.failures >= b.threshold {
		st.openedAt = b.now()
	}
}

// Open reports whether host is currently refused, without side effects.
func (b *Breaker) Open(host string) bool {
	if b == nil || b.threshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.hosts[host]
	return ok && st.failures >= b.threshold && b.now().Sub(st.openedAt) < b.cooldown
}
