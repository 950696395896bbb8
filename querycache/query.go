package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// ErrUnkeyableArgument is returned when a query argument cannot be encoded into a cache key.
var ErrUnkeyableArgument = errors.New("query argument cannot be used as cache key")

// json sorts map keys, so equal arguments always produce equal keys.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is what a subscriber sees of an entry.
type State[R any] struct {
	Status Status

	// Data is the last successfully fetched value. It is kept while a later fetch fails.
	Data    R
	HasData bool

	// Err is the failure of the latest fetch, if any.
	Err error

	// UpdatedAt is when Data was fetched.
	UpdatedAt time.Time
}

// Query is a cached read endpoint taking A and producing R.
type Query[A, R any] struct {
	cache *Cache
	name  string
	fetch func(ctx context.Context, arg A) (R, error)
	tags  []Tag
}

// NewQuery binds a read endpoint to the cache. Every entry it creates provides the given tags.
func NewQuery[A, R any](cache *Cache, name string, fetch func(ctx context.Context, arg A) (R, error), provides ...Tag) *Query[A, R] {
	return &Query[A, R]{
		cache: cache,
		name:  name,
		fetch: fetch,
		tags:  provides,
	}
}

// Name returns the query name.
func (q *Query[A, R]) Name() string {
	return q.name
}

// Get returns the cached result for arg, fetching it when missing, stale or failed.
// Concurrent calls for the same arg share one fetch.
func (q *Query[A, R]) Get(ctx context.Context, arg A) (R, error) {
	var zero R

	req, err := q.request(arg)
	if err != nil {
		return zero, err
	}

	data, err := q.cache.get(ctx, req)
	if err != nil {
		return zero, err
	}

	value, _ := data.(R)

	return value, nil
}

// Peek returns the cached result for arg when it is fresh. It never fetches.
func (q *Query[A, R]) Peek(arg A) (R, bool) {
	var zero R

	key, err := q.key(arg)
	if err != nil {
		return zero, false
	}

	data, ok := q.cache.peek(key)
	if !ok {
		return zero, false
	}

	value, _ := data.(R)

	return value, true
}

// Cached returns the fresh results of every argument this query currently holds, in no
// particular order. It never fetches.
func (q *Query[A, R]) Cached() []R {
	values := q.cache.peekQuery(q.name)

	results := make([]R, 0, len(values))
	for _, data := range values {
		if value, ok := data.(R); ok {
			results = append(results, value)
		}
	}

	return results
}

// Subscribe registers listener for the entry of arg and delivers its current state right away.
// When the entry is not fresh it is fetched before Subscribe returns, and the outcome is
// delivered to the listener. Every later refetch caused by an invalidation is delivered too.
//
// Deliveries to one listener never overlap. The listener must not call Unsubscribe itself.
// An error is returned only when ctx ends before the initial fetch settles; the listener is
// then unregistered.
func (q *Query[A, R]) Subscribe(ctx context.Context, arg A, listener func(State[R])) (*Subscription, error) {
	req, err := q.request(arg)
	if err != nil {
		return nil, err
	}

	sub := &subscriber{
		deliver: func(raw rawState) {
			listener(typedState[R](raw))
		},
	}

	// Holding sub.mu until the initial state is delivered keeps a concurrent fetch result from
	// overtaking it.
	sub.mu.Lock()
	id, initial, needsFetch := q.cache.attach(req, sub)
	sub.active = true
	sub.deliver(initial)
	sub.mu.Unlock()

	subscription := &Subscription{cache: q.cache, key: req.key, id: id, sub: sub}

	if needsFetch {
		if _, err := q.cache.fetch(ctx, req); err != nil && ctx.Err() != nil {
			subscription.Unsubscribe()
			return nil, err
		}
	}

	return subscription, nil
}

func (q *Query[A, R]) key(arg A) (string, error) {
	encoded, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnkeyableArgument, q.name, err)
	}

	return q.name + "(" + string(encoded) + ")", nil
}

func (q *Query[A, R]) request(arg A) (*request, error) {
	key, err := q.key(arg)
	if err != nil {
		return nil, err
	}

	return &request{
		query: q.name,
		key:   key,
		tags:  q.tags,
		fetch: func(ctx context.Context) (any, error) {
			return q.fetch(ctx, arg)
		},
	}, nil
}

func typedState[R any](raw rawState) State[R] {
	state := State[R]{
		Status:    raw.status,
		HasData:   raw.hasData,
		Err:       raw.err,
		UpdatedAt: raw.updatedAt,
	}

	if raw.hasData {
		state.Data, _ = raw.data.(R)
	}

	return state
}

// Subscription ties a listener to one cache entry.
type Subscription struct {
	cache *Cache
	key   string
	id    uint64
	sub   *subscriber
	once  sync.Once
}

// Unsubscribe removes the listener. After it returns the listener is not called again, even by
// fetches that were already in flight. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cache.detach(s.key, s.id)

		s.sub.mu.Lock()
		s.sub.active = false
		s.sub.mu.Unlock()
	})
}
