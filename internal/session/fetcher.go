package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/natalyineu/db-sub000/internal/gateway"
	"github.com/natalyineu/db-sub000/internal/profile"
)

const (
	// ColdStartTimeout bounds the very first profile resolution at app
	// boot, which tolerates a slower provider handshake.
	ColdStartTimeout = 15 * time.Second
	// SteadyTimeout bounds every steady-state profile resolution.
	SteadyTimeout = 5 * time.Second
	// MinFetchInterval is the floor between consecutive fetch attempts.
	// The throttle is global, not per-user: every dashboard widget asks
	// for "the" profile on mount, so attempts are collapsed process-wide.
	MinFetchInterval = 500 * time.Millisecond
)

// Metrics records fetch outcomes. The prometheus-backed implementation
// lives in internal/metrics.
type Metrics interface {
	RecordCacheHit()
	RecordGuardRefusal()
	RecordFetchSuccess()
	RecordFetchTimeout()
	RecordFetchError()
	RecordProfileCreated()
	RecordFetchLatency(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheHit()                    {}
func (nopMetrics) RecordGuardRefusal()                {}
func (nopMetrics) RecordFetchSuccess()                {}
func (nopMetrics) RecordFetchTimeout()                {}
func (nopMetrics) RecordFetchError()                  {}
func (nopMetrics) RecordProfileCreated()              {}
func (nopMetrics) RecordFetchLatency(_ time.Duration) {}

// Fetcher performs a single guarded, deadline-bounded fetch-or-create
// round trip against the profile store. The in-flight flag and attempt
// timestamp form the process-wide fetch guard: the check and the set
// happen under one mutex so concurrent callers cannot race past it.
type Fetcher struct {
	store   profile.Store
	cache   *profile.Cache
	metrics Metrics
	logger  *slog.Logger

	mu           sync.Mutex
	inFlight     bool
	inFlightDone chan struct{}
	lastAttempt  time.Time

	minInterval time.Duration
	now         func() time.Time

	wg sync.WaitGroup
}

// FetcherOption configures a Fetcher during construction.
type FetcherOption func(*Fetcher)

// WithMetrics installs a metrics recorder.
func WithMetrics(m Metrics) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithMinInterval overrides the inter-attempt floor, mainly for tests.
func WithMinInterval(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.minInterval = d
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(store profile.Store, cache *profile.Cache, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		store:       store,
		cache:       cache,
		metrics:     nopMetrics{},
		logger:      logger,
		minInterval: MinFetchInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve returns the profile for the given user.
//
// A live cache entry is served immediately; a guarded revalidation still
// runs in the background so the snapshot does not go stale. Without a
// cache entry the call fetches synchronously under the guard. A
// guard-refused call with nothing cached returns (nil, nil); callers
// treat that as a no-op and keep their current state.
func (f *Fetcher) Resolve(ctx context.Context, user gateway.User, accessToken string, timeout time.Duration) (*profile.Profile, error) {
	return f.resolve(ctx, user, accessToken, timeout, false)
}

// ResolveWait behaves like Resolve, except that a refusal caused by an
// in-flight attempt blocks until that attempt completes and then serves
// whatever it cached. Sign-in resolves through it: the concurrent
// event-driven resolution cannot leave the caller with an authenticated
// snapshot and no profile.
func (f *Fetcher) ResolveWait(ctx context.Context, user gateway.User, accessToken string, timeout time.Duration) (*profile.Profile, error) {
	return f.resolve(ctx, user, accessToken, timeout, true)
}

func (f *Fetcher) resolve(ctx context.Context, user gateway.User, accessToken string, timeout time.Duration, wait bool) (*profile.Profile, error) {
	if cached, ok := f.cache.Get(user.ID); ok {
		f.metrics.RecordCacheHit()
		f.wg.Add(1)
		go f.revalidate(user, accessToken, timeout)
		return &cached, nil
	}

	return f.fetch(ctx, user, accessToken, timeout, wait)
}

// revalidate refreshes the cached snapshot without a caller waiting on
// it. The deadline comes from the fetch itself, so the goroutine cannot
// outlive timeout; the caller's context is deliberately not inherited.
func (f *Fetcher) revalidate(user gateway.User, accessToken string, timeout time.Duration) {
	defer f.wg.Done()
	if _, err := f.fetch(context.Background(), user, accessToken, timeout, false); err != nil {
		f.logger.Debug("background profile revalidation failed", "user_id", user.ID, "error", err)
	}
}

func (f *Fetcher) fetch(ctx context.Context, user gateway.User, accessToken string, timeout time.Duration, wait bool) (*profile.Profile, error) {
	acquired, inFlight := f.acquire()
	if !acquired {
		f.metrics.RecordGuardRefusal()
		if wait && inFlight != nil {
			select {
			case <-inFlight:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if cached, ok := f.cache.Get(user.ID); ok {
			return &cached, nil
		}
		return nil, nil
	}
	defer f.release()

	start := f.now()
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := f.store.FetchByID(fetchCtx, user.ID, accessToken)
	f.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		// The existing cache entry is left untouched: stale-but-present
		// beats empty.
		if errors.Is(err, context.DeadlineExceeded) {
			f.metrics.RecordFetchTimeout()
			return nil, fmt.Errorf("%w (limit %s)", ErrFetchTimeout, timeout)
		}
		f.metrics.RecordFetchError()
		return nil, fmt.Errorf("%w: %s", ErrStore, err)
	}

	if p == nil {
		created, err := f.create(ctx, user, accessToken, timeout)
		if err != nil {
			f.metrics.RecordFetchError()
			return nil, err
		}
		p = created
	}

	f.cache.Set(user.ID, *p)
	f.metrics.RecordFetchSuccess()
	return p, nil
}

// create runs the auto-provisioning path: insert the seed record, then
// re-issue the fetch once. No further retry on either leg.
func (f *Fetcher) create(ctx context.Context, user gateway.User, accessToken string, timeout time.Duration) (*profile.Profile, error) {
	seed := profile.New(user.ID, user.Email, f.now())

	insertCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := f.store.Insert(insertCtx, seed, accessToken); err != nil {
		return nil, fmt.Errorf("%w: insert: %s", ErrProfileCreateFailed, err)
	}

	refetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p, err := f.store.FetchByID(refetchCtx, user.ID, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: refetch: %s", ErrProfileCreateFailed, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: profile %s still missing after insert", ErrProfileCreateFailed, user.ID)
	}

	f.metrics.RecordProfileCreated()
	f.logger.Info("profile auto-provisioned", "user_id", user.ID)
	return p, nil
}

// acquire claims the guard. On an in-flight refusal the second return
// value carries the running attempt's completion channel; a throttle
// refusal has nothing to wait for and returns nil.
func (f *Fetcher) acquire() (bool, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight {
		return false, f.inFlightDone
	}
	now := f.now()
	if now.Sub(f.lastAttempt) < f.minInterval {
		return false, nil
	}
	f.inFlight = true
	f.inFlightDone = make(chan struct{})
	f.lastAttempt = now
	return true, nil
}

func (f *Fetcher) release() {
	f.mu.Lock()
	close(f.inFlightDone)
	f.inFlight = false
	f.mu.Unlock()
}

// Wait blocks until every background revalidation has finished.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}
