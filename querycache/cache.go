package querycache

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

// Tag labels cached entries so that mutations can invalidate them as a group.
type Tag string

// Status is the lifecycle phase reported to subscribers.
type Status int

const (
	// StatusLoading is reported before the first result of an entry arrives.
	StatusLoading Status = iota

	// StatusSuccess is reported when the entry holds a fetched value.
	StatusSuccess

	// StatusError is reported when the latest fetch failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Cache owns the entries of all queries bound to it. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	// epochs counts the invalidations per tag. A fetch remembers the epochs it started under;
	// its result is not stored once one of them has moved on.
	epochs map[Tag]uint64

	flight    singleflight.Group
	nextSubID uint64
	now       func() time.Time
	observer  telemetry.Observer
}

// request identifies one cached read: the query it belongs to, its key, and how to fetch it.
type request struct {
	query string
	key   string
	tags  []Tag
	fetch func(ctx context.Context) (any, error)
}

type entry struct {
	req       *request
	data      any
	hasData   bool
	err       error
	stale     bool
	updatedAt time.Time
	subs      map[uint64]*subscriber
}

func (e *entry) fresh() bool {
	return e.hasData && !e.stale && e.err == nil
}

func (e *entry) state() rawState {
	status := StatusLoading
	switch {
	case e.err != nil:
		status = StatusError
	case e.hasData:
		status = StatusSuccess
	}

	return rawState{status: status, data: e.data, hasData: e.hasData, err: e.err, updatedAt: e.updatedAt}
}

func (e *entry) subscribers() []*subscriber {
	subs := make([]*subscriber, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}

	return subs
}

func (e *entry) carriesAny(tags []Tag) bool {
	for _, tag := range e.req.tags {
		if slices.Contains(tags, tag) {
			return true
		}
	}

	return false
}

// rawState is the untyped State handed from the cache to a subscriber.
type rawState struct {
	status    Status
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
}

// subscriber serializes deliveries to one listener. Once inactive it is never called again.
type subscriber struct {
	mu      sync.Mutex
	active  bool
	deliver func(rawState)
}

func (s *subscriber) notify(state rawState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.deliver(state)
	}
}

// New creates an empty Cache.
func New(options ...Option) (*Cache, error) {
	c := &Cache{
		entries: make(map[string]*entry),
		epochs:  make(map[Tag]uint64),
		now:     time.Now,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Len returns the number of cached entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Invalidate marks every entry carrying one of the tags stale and re-fetches the subscribed ones.
// It returns once those refetches have settled. Refetch failures are delivered to the subscribers
// and are not returned.
func (c *Cache) Invalidate(ctx context.Context, tags ...Tag) {
	if len(tags) == 0 {
		return
	}

	var refetch []*request

	c.mu.Lock()
	for _, tag := range tags {
		c.epochs[tag]++
	}

	for key, e := range c.entries {
		if !e.carriesAny(tags) {
			continue
		}

		if e.stale && len(e.subs) == 0 {
			delete(c.entries, key)
			continue
		}

		e.stale = true

		if len(e.subs) > 0 {
			refetch = append(refetch, e.req)
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	c.observer.RecordValue(ctx, EntriesMetric, float64(count), nil)
	for _, tag := range tags {
		c.observer.IncrementCounter(ctx, InvalidationsMetric, map[string]string{LogAttrTag: string(tag)})
	}
	c.observer.Log(ctx, telemetry.LevelDebug, LogMsgInvalidated,
		LogAttrTags, joinTags(tags),
		LogAttrRefetches, len(refetch),
	)

	var group errgroup.Group
	for _, req := range refetch {
		group.Go(func() error {
			_, err := c.fetch(ctx, req)
			c.observer.IncrementCounter(ctx, RefetchesMetric, map[string]string{
				LogAttrQuery:            req.query,
				telemetry.LogAttrStatus: telemetry.StatusFor(err),
			})

			return err
		})
	}

	if err := group.Wait(); err != nil {
		c.observer.Log(ctx, telemetry.LevelWarn, LogMsgRefetchFailed,
			LogAttrTags, joinTags(tags),
			telemetry.LogAttrError, err.Error(),
		)
	}
}

// get returns the cached value when fresh and fetches otherwise.
func (c *Cache) get(ctx context.Context, req *request) (any, error) {
	result := lookupMiss

	c.mu.Lock()
	if e, ok := c.entries[req.key]; ok {
		switch {
		case e.fresh():
			data := e.data
			c.mu.Unlock()
			c.recordLookup(ctx, req.query, lookupHit)

			return data, nil
		case e.stale:
			result = lookupStale
			if len(e.subs) == 0 {
				delete(c.entries, req.key)
			}
		}
	}
	c.mu.Unlock()

	c.recordLookup(ctx, req.query, result)

	return c.fetch(ctx, req)
}

// peek returns the cached value when fresh, without fetching.
func (c *Cache) peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.fresh() {
		return nil, false
	}

	return e.data, true
}

// peekQuery returns the fresh values of every entry belonging to query.
func (c *Cache) peekQuery(query string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var values []any
	for _, e := range c.entries {
		if e.req.query == query && e.fresh() {
			values = append(values, e.data)
		}
	}

	return values
}

// attach registers sub on the entry for req, creating the entry when missing. It reports the
// state to deliver first and whether the entry needs a fetch.
func (c *Cache) attach(req *request, sub *subscriber) (uint64, rawState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[req.key]
	if !ok {
		e = &entry{req: req}
		c.entries[req.key] = e
	}
	if e.subs == nil {
		e.subs = make(map[uint64]*subscriber)
	}

	c.nextSubID++
	e.subs[c.nextSubID] = sub

	return c.nextSubID, e.state(), !e.fresh()
}

// detach removes a subscriber. A stale or never-filled entry left without subscribers is dropped.
func (c *Cache) detach(key string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}

	delete(e.subs, id)

	if len(e.subs) == 0 && (e.stale || !e.hasData) {
		delete(c.entries, key)
	}
}

// fetch runs req.fetch at most once per key and invalidation epoch at a time, so a call made
// after an invalidation never joins a fetch that started before it. The fetch itself is not
// bound to the caller's cancellation since other callers may be waiting for the same result.
func (c *Cache) fetch(ctx context.Context, req *request) (any, error) {
	flightKey, epochs := c.flightKey(req)

	results := c.flight.DoChan(flightKey, func() (any, error) {
		return c.run(context.WithoutCancel(ctx), req, epochs)
	})

	select {
	case res := <-results:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flightKey combines the entry key with the current epochs of the entry's tags.
func (c *Cache) flightKey(req *request) (string, []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	epochs := make([]uint64, len(req.tags))
	var key strings.Builder
	key.WriteString(req.key)
	for i, tag := range req.tags {
		epochs[i] = c.epochs[tag]
		key.WriteByte('@')
		key.WriteString(strconv.FormatUint(epochs[i], 10))
	}

	return key.String(), epochs
}

// supersededLocked reports whether one of req's tags was invalidated since epochs were taken.
func (c *Cache) supersededLocked(req *request, epochs []uint64) bool {
	for i, tag := range req.tags {
		if c.epochs[tag] != epochs[i] {
			return true
		}
	}

	return false
}

func (c *Cache) run(ctx context.Context, req *request, epochs []uint64) (any, error) {
	started := time.Now()
	ctx, span := c.observer.StartSpan(ctx, SpanNameFetch, map[string]string{LogAttrQuery: req.query})

	data, err := req.fetch(ctx)

	duration := time.Since(started)
	status := telemetry.StatusFor(err)
	c.observer.RecordDuration(ctx, FetchDurationMetric, duration, map[string]string{
		LogAttrQuery:            req.query,
		telemetry.LogAttrStatus: status,
	})
	c.observer.FinishSpan(span, status, duration, err)

	if err != nil {
		c.observer.Log(ctx, telemetry.LevelWarn, LogMsgFetchFailed,
			LogAttrQuery, req.query,
			telemetry.LogAttrError, err.Error(),
		)
	}

	c.store(ctx, req, epochs, data, err)

	return data, err
}

// store records a fetch outcome and notifies the subscribers outside the lock. Among the fetches
// started since the latest invalidation, the last outcome to arrive wins. Outcomes of fetches that
// started before it are discarded; the caller still receives them.
func (c *Cache) store(ctx context.Context, req *request, epochs []uint64, data any, err error) {
	c.mu.Lock()
	if c.supersededLocked(req, epochs) {
		c.mu.Unlock()
		c.observer.Log(ctx, telemetry.LevelDebug, LogMsgFetchSuperseded, LogAttrQuery, req.query)

		return
	}

	e, ok := c.entries[req.key]
	if !ok {
		if err != nil {
			c.mu.Unlock()
			return
		}

		e = &entry{req: req}
		c.entries[req.key] = e
	}

	if err != nil {
		e.err = err
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.stale = false
		e.updatedAt = c.now()
	}

	state := e.state()
	subs := e.subscribers()
	count := len(c.entries)
	c.mu.Unlock()

	c.observer.RecordValue(ctx, EntriesMetric, float64(count), nil)

	for _, sub := range subs {
		sub.notify(state)
	}
}

func (c *Cache) recordLookup(ctx context.Context, query, result string) {
	c.observer.IncrementCounter(ctx, LookupsMetric, map[string]string{
		LogAttrQuery:  query,
		LogAttrResult: result,
	})
}

func joinTags(tags []Tag) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, string(tag))
	}

	return strings.Join(names, ",")
}
