// Package collection keeps a TTL-bound local copy of a user-owned list,
// serves it stale-while-revalidate and applies optimistic mutations that
// roll back when the server rejects them.
package collection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/gateway"
	"github.com/wolfeidau/wayfarer/internal/storage"
	"github.com/wolfeidau/wayfarer/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultTTL             = time.Hour
	DefaultRevalidateAfter = 5 * time.Minute

	keyPrefix = "cache:"

	defaultRevalidateTimeout = 30 * time.Second
	defaultMaxTries          = 3
)

// ErrNoMutator is returned by Mutate on a read-only cache.
var ErrNoMutator = errors.New("collection has no mutator")

// Fetcher loads the full collection from the server.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Mutator applies a single change on the server.
type Mutator[T any] func(ctx context.Context, op Op, item T) error

// ReadResult is returned by Read.
type ReadResult[T any] struct {
	Snapshot        *Snapshot[T]
	ServedFromCache bool
}

// Items returns the items of the snapshot. The slice must not be modified.
func (r ReadResult[T]) Items() []T {
	if r.Snapshot == nil {
		return nil
	}
	return r.Snapshot.Items
}

type settings struct {
	ttl               time.Duration
	revalidateAfter   time.Duration
	revalidateTimeout time.Duration
	retryInterval     time.Duration
	maxTries          uint
	retryable         func(error) bool
	now               func() time.Time
	metrics           *telemetry.Metrics
}

// Option configures a Cache.
type Option func(*settings)

// WithTTL sets how long a snapshot is served without an inline fetch.
func WithTTL(d time.Duration) Option {
	return func(s *settings) {
		s.ttl = d
	}
}

// WithRevalidateAfter sets the snapshot age from which a cached read also
// dispatches a background revalidation.
func WithRevalidateAfter(d time.Duration) Option {
	return func(s *settings) {
		s.revalidateAfter = d
	}
}

// WithRetry configures the background revalidation retries.
func WithRetry(maxTries uint, initialInterval time.Duration) Option {
	return func(s *settings) {
		s.maxTries = maxTries
		s.retryInterval = initialInterval
	}
}

// WithRetryable decides which revalidation failures are retried.
// Defaults to network and server errors.
func WithRetryable(fn func(error) bool) Option {
	return func(s *settings) {
		s.retryable = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithMetrics overrides the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// Cache is a cached collection. It is safe for concurrent use.
type Cache[T any] struct {
	name   string
	kv     storage.KV
	key    func(T) string
	fetch  Fetcher[T]
	mutate Mutator[T]
	settings

	mu           sync.Mutex
	snap         *Snapshot[T]
	generation   uint64
	revalidating bool
	wg           sync.WaitGroup
}

// New creates a cache named name, seeded from any snapshot persisted in kv.
// mutate may be nil for read-only collections.
func New[T any](name string, kv storage.KV, key func(T) string, fetch Fetcher[T], mutate Mutator[T], opts ...Option) *Cache[T] {
	c := &Cache[T]{
		name:   name,
		kv:     kv,
		key:    key,
		fetch:  fetch,
		mutate: mutate,
		settings: settings{
			ttl:               DefaultTTL,
			revalidateAfter:   DefaultRevalidateAfter,
			revalidateTimeout: defaultRevalidateTimeout,
			retryInterval:     500 * time.Millisecond,
			maxTries:          defaultMaxTries,
			retryable:         retryableFetchError,
			now:               time.Now,
			metrics:           telemetry.GetMetrics(),
		},
	}
	for _, opt := range opts {
		opt(&c.settings)
	}

	c.snap = c.load()

	return c
}

// Name returns the collection name.
func (c *Cache[T]) Name() string {
	return c.name
}

// Snapshot returns the current snapshot without fetching, or nil.
func (c *Cache[T]) Snapshot() *Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Read returns the collection.
//
// A snapshot younger than the TTL is returned as is with ServedFromCache set;
// if it is older than the revalidate age a background fetch is dispatched
// that replaces it when done. Read never waits for that fetch. A stale or
// missing snapshot is fetched inline.
func (c *Cache[T]) Read(ctx context.Context) (ReadResult[T], error) {
	now := c.now()

	c.mu.Lock()
	snap := c.snap
	if snap != nil && !snap.Stale(now, c.ttl) {
		if snap.Age(now) >= c.revalidateAfter {
			c.startRevalidation(ctx)
		}
		c.mu.Unlock()

		c.metrics.CacheHitsTotal.Add(ctx, 1, c.attrs())
		return ReadResult[T]{Snapshot: snap, ServedFromCache: true}, nil
	}
	gen := c.generation
	c.mu.Unlock()

	c.metrics.CacheMissesTotal.Add(ctx, 1, c.attrs())

	items, err := c.fetch(ctx)
	if err != nil {
		log.Debug().Err(err).Str("collection", c.name).Msg("collection fetch failed")
		return ReadResult[T]{}, err
	}

	fresh := &Snapshot[T]{Items: items, FetchedAt: c.now()}
	c.replace(fresh, gen)

	return ReadResult[T]{Snapshot: fresh}, nil
}

// Mutate applies op to item immediately, then on the server. If the server
// call fails the pre-mutation snapshot is restored and the error returned.
func (c *Cache[T]) Mutate(ctx context.Context, op Op, item T) error {
	if c.mutate == nil {
		return ErrNoMutator
	}

	c.mu.Lock()
	before := c.snap
	after := apply(before, op, item, c.key)
	c.snap = after
	c.mu.Unlock()

	if err := c.mutate(ctx, op, item); err != nil {
		c.rollback(ctx, op, item, before, after)
		log.Debug().
			Err(err).
			Str("collection", c.name).
			Str("op", op.String()).
			Str("key", c.key(item)).
			Msg("mutation rejected, rolled back")
		return err
	}

	c.mu.Lock()
	current := c.snap
	c.mu.Unlock()

	if current != nil {
		c.persist(current)
	}

	return nil
}

// Wait blocks until background revalidations have finished.
func (c *Cache[T]) Wait() {
	c.wg.Wait()
}

// Invalidate drops the snapshot from memory and storage. Revalidations
// already in flight are discarded when they land.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.generation++
	c.mu.Unlock()

	if err := c.kv.Delete(c.storageKey()); err != nil {
		log.Warn().Err(err).Str("collection", c.name).Msg("failed to delete cached collection")
	}
}

// startRevalidation must be called with c.mu held.
func (c *Cache[T]) startRevalidation(ctx context.Context) {
	if c.revalidating {
		return
	}
	c.revalidating = true
	gen := c.generation

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.revalidate(context.WithoutCancel(ctx), gen)
	}()
}

func (c *Cache[T]) revalidate(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithTimeout(ctx, c.revalidateTimeout)
	defer cancel()

	defer func() {
		c.mu.Lock()
		c.revalidating = false
		c.mu.Unlock()
	}()

	c.metrics.CacheRevalidationsTotal.Add(ctx, 1, c.attrs())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	items, err := backoff.Retry(ctx, func() ([]T, error) {
		items, err := c.fetch(ctx)
		if err != nil && !c.retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return items, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		log.Warn().Err(err).Str("collection", c.name).Msg("background revalidation failed, keeping cached snapshot")
		return
	}

	c.replace(&Snapshot[T]{Items: items, FetchedAt: c.now()}, gen)

	log.Debug().Str("collection", c.name).Int("items", len(items)).Msg("collection revalidated")
}

// replace publishes a fetched snapshot unless the cache was invalidated
// since the fetch started.
func (c *Cache[T]) replace(s *Snapshot[T], gen uint64) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		log.Debug().Str("collection", c.name).Msg("discarding fetch for invalidated collection")
		return
	}
	c.snap = s
	c.mu.Unlock()

	c.persist(s)
}

func (c *Cache[T]) rollback(ctx context.Context, op Op, item T, before, after *Snapshot[T]) {
	c.metrics.CacheRollbacksTotal.Add(ctx, 1, c.attrs())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap == after {
		c.snap = before
		return
	}
	if c.snap != nil {
		c.snap = revert(c.snap, op, item, before, c.key)
	}
}

func (c *Cache[T]) persist(s *Snapshot[T]) {
	raw, err := encodeSnapshot(s)
	if err != nil {
		log.Warn().Err(err).Str("collection", c.name).Msg("failed to encode collection")
		return
	}
	if err := c.kv.Set(c.storageKey(), raw); err != nil {
		log.Warn().Err(err).Str("collection", c.name).Msg("failed to persist collection")
	}
}

func (c *Cache[T]) load() *Snapshot[T] {
	raw, ok, err := c.kv.Get(c.storageKey())
	if err != nil {
		log.Warn().Err(err).Str("collection", c.name).Msg("failed to read cached collection")
		return nil
	}
	if !ok {
		return nil
	}

	snap, err := decodeSnapshot[T](raw)
	if err != nil {
		log.Warn().Err(err).Str("collection", c.name).Msg("discarding corrupt cached collection")
		_ = c.kv.Delete(c.storageKey())
		return nil
	}

	log.Debug().
		Str("collection", c.name).
		Int("items", len(snap.Items)).
		Time("fetchedAt", snap.FetchedAt).
		Msg("seeded collection from storage")

	return snap
}

func (c *Cache[T]) storageKey() string {
	return keyPrefix + c.name
}

func (c *Cache[T]) attrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("collection", c.name))
}

func retryableFetchError(err error) bool {
	switch gateway.KindOf(err) {
	case gateway.KindNetwork, gateway.KindServer:
		return true
	default:
		return false
	}
}
