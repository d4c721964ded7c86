package registry

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
)

// Registry tracks every connected client and its liveness. All mutations
// are serialized behind a single mutex; readers get value snapshots.
type Registry struct {
	mu        sync.Mutex
	proxies   map[string]*Proxy
	threshold int
	now       func() time.Time
}

type Option func(*Registry)

// WithEvictionThreshold sets how many consecutive failures a client may
// accumulate; the next one removes it. Zero disables eviction.
func WithEvictionThreshold(n int) Option {
	return func(r *Registry) {
		r.threshold = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		proxies: make(map[string]*Proxy),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register admits a client or refreshes an existing one. A client taking
// part in an in-flight round cannot be re-registered.
func (r *Registry) Register(id string, ch fl.Trainer) (Proxy, error) {
	if id == "" {
		return Proxy{}, fl.ErrEmptyClientID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p, ok := r.proxies[id]
	if !ok {
		p = &Proxy{ID: id, RegisteredAt: now}
		r.proxies[id] = p
	}
	if p.State == Busy {
		return *p, fl.ErrDuplicateActiveClient
	}
	p.State = Available
	p.LastSeen = now
	if ch != nil {
		p.channel = ch
	}

	return *p, nil
}

// ListAvailable returns the selectable proxies ordered by id.
func (r *Registry) ListAvailable() []Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshot(func(p *Proxy) bool { return p.State == Available })
}

func (r *Registry) List() []Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshot(func(*Proxy) bool { return true })
}

func (r *Registry) Get(id string) (Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return Proxy{}, fl.ErrClientNotFound
	}

	return *p, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.proxies)
}

// Acquire marks the given proxies Busy for the duration of a round and
// returns their refreshed snapshots. Ids no longer registered or no longer
// Available are skipped.
func (r *Registry) Acquire(ids []string) []Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	acquired := make([]Proxy, 0, len(ids))
	for _, id := range ids {
		p, ok := r.proxies[id]
		if !ok || p.State != Available {
			continue
		}
		p.State = Busy
		acquired = append(acquired, *p)
	}

	return acquired
}

type resultOptions struct {
	samples    uint64
	hasSamples bool
	err        error
}

type ResultOption func(*resultOptions)

func WithSamples(n uint64) ResultOption {
	return func(o *resultOptions) {
		o.samples = n
		o.hasSamples = true
	}
}

func WithError(err error) ResultOption {
	return func(o *resultOptions) {
		o.err = err
	}
}

// MarkResult records the outcome of a call to a client. Success makes the
// client available again and clears its failure streak; failure marks it
// unreachable and extends the streak.
func (r *Registry) MarkResult(id string, success bool, opts ...ResultOption) {
	var o resultOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return
	}
	if success {
		p.State = Available
		p.Failures = 0
		p.LastError = ""
		p.LastSeen = r.now()
		if o.hasSamples {
			p.NumSamples = o.samples
		}

		return
	}

	p.State = Unreachable
	p.Failures++
	if o.err != nil {
		p.LastError = o.err.Error()
	}
}

// Release returns Busy proxies that were not marked by the round to the
// available pool.
func (r *Registry) Release(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if p, ok := r.proxies[id]; ok && p.State == Busy {
			p.State = Available
		}
	}
}

// EvictIfExhausted removes the client once its consecutive failures exceed
// the threshold and reports whether it did.
func (r *Registry) EvictIfExhausted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok || r.threshold <= 0 || p.Failures <= r.threshold {
		return false
	}
	delete(r.proxies, id)

	return true
}

// Heartbeat refreshes liveness. An unreachable client becomes selectable
// again but keeps its failure streak.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return fl.ErrClientNotFound
	}
	p.LastSeen = r.now()
	if p.State == Unreachable {
		p.State = Available
	}

	return nil
}

// Disconnect marks a client unreachable without counting a failure.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return fl.ErrClientNotFound
	}
	if p.State != Busy {
		p.State = Unreachable
	}

	return nil
}

// Expire marks available clients not seen within timeout as unreachable and
// returns their ids.
func (r *Registry) Expire(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-timeout)
	var expired []string
	for id, p := range r.proxies {
		if p.State == Available && p.LastSeen.Before(cutoff) {
			p.State = Unreachable
			expired = append(expired, id)
		}
	}
	slices.Sort(expired)

	return expired
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return fl.ErrClientNotFound
	}
	if p.State == Busy {
		return fl.ErrDuplicateActiveClient
	}
	delete(r.proxies, id)

	return nil
}

// WaitForAvailable blocks until at least n clients are available or ctx is
// done.
func (r *Registry) WaitForAvailable(ctx context.Context, n int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if len(r.ListAvailable()) >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Registry) snapshot(keep func(*Proxy) bool) []Proxy {
	out := make([]Proxy, 0, len(r.proxies))
	for _, p := range r.proxies {
		if keep(p) {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b Proxy) int {
		return strings.Compare(a.ID, b.ID)
	})

	return out
}
