package querycache_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/bookshelf-sync/querycache"
	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
	"github.com/AntonStoeckl/bookshelf-sync/testutil/observability/testdoubles"
)

const (
	tagItems  querycache.Tag = "Items"
	tagOrders querycache.Tag = "Orders"
)

var errBackend = errors.New("backend unavailable")

// backend is a fake remote: values per key, a fetch counter per key, and an optional failure.
type backend struct {
	mu      sync.Mutex
	values  map[string]int
	calls   map[string]int
	failing bool
}

func newBackend() *backend {
	return &backend{values: make(map[string]int), calls: make(map[string]int)}
}

func (b *backend) fetch(_ context.Context, key string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[key]++
	if b.failing {
		return 0, errBackend
	}

	return b.values[key], nil
}

func (b *backend) set(key string, value int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values[key] = value
}

func (b *backend) fail(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failing = failing
}

func (b *backend) callsFor(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls[key]
}

// stateRecorder collects every state delivered to a listener.
type stateRecorder[R any] struct {
	mu     sync.Mutex
	states []querycache.State[R]
}

func (r *stateRecorder[R]) listen(state querycache.State[R]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, state)
}

func (r *stateRecorder[R]) all() []querycache.State[R] {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]querycache.State[R](nil), r.states...)
}

func (r *stateRecorder[R]) last() querycache.State[R] {
	all := r.all()
	return all[len(all)-1]
}

func newCache(t *testing.T, options ...querycache.Option) *querycache.Cache {
	t.Helper()

	cache, err := querycache.New(options...)
	require.NoError(t, err)

	return cache
}

func setUp(t *testing.T, options ...querycache.Option) (*querycache.Cache, *backend, *querycache.Query[string, int]) {
	t.Helper()

	cache := newCache(t, options...)
	remote := newBackend()
	query := querycache.NewQuery(cache, "item", remote.fetch, tagItems)

	return cache, remote, query
}

func Test_New_RejectsNilClock(t *testing.T) {
	_, err := querycache.New(querycache.WithClock(nil))

	assert.ErrorIs(t, err, querycache.ErrNilClock)
}

func Test_Query_Get_ServesFromCache(t *testing.T) {
	// arrange
	_, remote, query := setUp(t)
	remote.set("a", 1)

	// act
	first, err1 := query.Get(context.Background(), "a")
	remote.set("a", 2)
	second, err2 := query.Get(context.Background(), "a")

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second, "a fresh entry is served without fetching")
	assert.Equal(t, 1, remote.callsFor("a"))
}

func Test_Query_Get_KeysByCanonicalArgument(t *testing.T) {
	cache := newCache(t)
	var calls atomic.Int32
	query := querycache.NewQuery(cache, "filtered", func(_ context.Context, filter map[string]string) (int, error) {
		calls.Add(1)
		return len(filter), nil
	})

	_, err := query.Get(context.Background(), map[string]string{"genre": "fiction", "sort": "asc"})
	require.NoError(t, err)
	_, err = query.Get(context.Background(), map[string]string{"sort": "asc", "genre": "fiction"})
	require.NoError(t, err)
	_, err = query.Get(context.Background(), map[string]string{"genre": "history"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, cache.Len())
}

func Test_Query_Get_RejectsUnkeyableArgument(t *testing.T) {
	cache := newCache(t)
	query := querycache.NewQuery(cache, "ratio", func(_ context.Context, ratio float64) (float64, error) {
		return ratio, nil
	})

	_, err := query.Get(context.Background(), math.NaN())

	assert.ErrorIs(t, err, querycache.ErrUnkeyableArgument)
}

func Test_Query_Get_CollapsesConcurrentFetches(t *testing.T) {
	// arrange
	cache := newCache(t)
	release := make(chan struct{})
	var calls atomic.Int32
	query := querycache.NewQuery(cache, "slow", func(_ context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "value of " + key, nil
	})

	// act
	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = query.Get(context.Background(), "k")
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// assert
	assert.Equal(t, int32(1), calls.Load())
	for _, result := range results {
		assert.Equal(t, "value of k", result)
	}
}

func Test_Query_Get_DoesNotCacheErrors(t *testing.T) {
	_, remote, query := setUp(t)
	remote.set("a", 7)
	remote.fail(true)

	_, err := query.Get(context.Background(), "a")
	require.ErrorIs(t, err, errBackend)

	remote.fail(false)
	value, err := query.Get(context.Background(), "a")

	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Equal(t, 2, remote.callsFor("a"))
}

func Test_Query_Get_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	// arrange
	cache := newCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	query := querycache.NewQuery(cache, "slow", func(ctx context.Context, _ string) (int, error) {
		close(started)
		<-release
		return 42, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan error, 1)
	go func() {
		_, err := query.Get(ctx, "k")
		canceled <- err
	}()
	<-started

	// act
	cancel()
	err := <-canceled
	close(release)
	value, secondErr := query.Get(context.Background(), "k")

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, secondErr)
	assert.Equal(t, 42, value)
}

func Test_Query_Get_FetchStartedBeforeMutationIsNotServedAfterIt(t *testing.T) {
	// arrange
	logger := testdoubles.NewContextualLoggerSpy()
	cache := newCache(t, querycache.WithContextualLogger(logger))
	started := make(chan struct{})
	release := make(chan struct{})
	var current, calls atomic.Int32
	current.Store(1)
	query := querycache.NewQuery(cache, "slow", func(_ context.Context, _ string) (int, error) {
		value := int(current.Load())
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return value, nil
	}, tagItems)
	update := querycache.NewMutation(cache, "updateItem", func(_ context.Context, value int32) (int32, error) {
		current.Store(value)
		return value, nil
	}, tagItems)

	early := make(chan int, 1)
	go func() {
		value, _ := query.Get(context.Background(), "k")
		early <- value
	}()
	<-started

	// act
	_, err := update.Run(context.Background(), 2)
	require.NoError(t, err)
	late, lateErr := query.Get(context.Background(), "k")
	close(release)
	earlyValue := <-early

	// assert
	require.NoError(t, lateErr)
	assert.Equal(t, 2, late)
	assert.Equal(t, 1, earlyValue, "the caller that started the fetch still receives its result")
	assert.Equal(t, int32(2), calls.Load())

	cached, found := query.Peek("k")
	assert.True(t, found)
	assert.Equal(t, 2, cached)
	assert.True(t, logger.HasDebugLog(querycache.LogMsgFetchSuperseded))
}

func Test_Mutation_Run_OlderRefetchDoesNotOverwriteNewerOne(t *testing.T) {
	// arrange
	cache := newCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var current, calls atomic.Int32
	current.Store(1)
	query := querycache.NewQuery(cache, "slow", func(_ context.Context, _ string) (int, error) {
		value := int(current.Load())
		if calls.Add(1) == 2 {
			close(started)
			<-release
		}
		return value, nil
	}, tagItems)
	update := querycache.NewMutation(cache, "updateItem", func(_ context.Context, value int32) (int32, error) {
		current.Store(value)
		return value, nil
	}, tagItems)

	recorder := &stateRecorder[int]{}
	subscription, err := query.Subscribe(context.Background(), "k", recorder.listen)
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	first := make(chan error, 1)
	go func() {
		_, runErr := update.Run(context.Background(), 2)
		first <- runErr
	}()
	<-started

	// act
	_, err = update.Run(context.Background(), 3)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-first)

	// assert
	value, found := query.Peek("k")
	assert.True(t, found)
	assert.Equal(t, 3, value)
	assert.Equal(t, 3, recorder.last().Data)
	for _, state := range recorder.all() {
		assert.NotEqual(t, 2, state.Data, "the older refetch result was delivered")
	}
}

func Test_Query_Peek(t *testing.T) {
	cache, remote, query := setUp(t)
	remote.set("a", 3)

	_, found := query.Peek("a")
	assert.False(t, found)

	_, err := query.Get(context.Background(), "a")
	require.NoError(t, err)

	value, found := query.Peek("a")
	assert.True(t, found)
	assert.Equal(t, 3, value)

	cache.Invalidate(context.Background(), tagItems)

	_, found = query.Peek("a")
	assert.False(t, found, "stale entries are not peeked")
	assert.Equal(t, 1, remote.callsFor("a"), "peek never fetches")
}

func Test_Mutation_Run_InvalidatesUnsubscribedEntriesLazily(t *testing.T) {
	// arrange
	cache, remote, items := setUp(t)
	orders := querycache.NewQuery(cache, "order", remote.fetch, tagOrders)
	update := querycache.NewMutation(cache, "updateItem", func(_ context.Context, value int) (int, error) {
		remote.set("a", value)
		return value, nil
	}, tagItems)

	remote.set("a", 1)
	_, _ = items.Get(context.Background(), "a")
	_, _ = orders.Get(context.Background(), "o")

	// act
	_, err := update.Run(context.Background(), 2)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, remote.callsFor("a"), "nobody watches the entry, so it is not refetched eagerly")

	value, err := items.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	assert.Equal(t, 2, remote.callsFor("a"))

	_, _ = orders.Get(context.Background(), "o")
	assert.Equal(t, 1, remote.callsFor("o"), "entries with other tags stay fresh")
}

func Test_Mutation_Run_FailureInvalidatesNothing(t *testing.T) {
	// arrange
	cache, remote, items := setUp(t)
	remote.set("a", 1)
	_, _ = items.Get(context.Background(), "a")

	mutationErr := errors.New("rejected")
	reject := querycache.NewMutation(cache, "rejectItem", func(_ context.Context, _ int) (int, error) {
		return 0, mutationErr
	}, tagItems)

	// act
	_, err := reject.Run(context.Background(), 5)

	// assert
	assert.ErrorIs(t, err, mutationErr)
	_, found := items.Peek("a")
	assert.True(t, found, "the entry is still fresh")

	_, _ = items.Get(context.Background(), "a")
	assert.Equal(t, 1, remote.callsFor("a"))
}

func Test_Mutation_Run_RefetchesSubscribedEntriesBeforeReturning(t *testing.T) {
	// arrange
	cache, remote, items := setUp(t)
	update := querycache.NewMutation(cache, "updateItem", func(_ context.Context, value int) (int, error) {
		remote.set("a", value)
		return value, nil
	}, tagItems)

	remote.set("a", 1)
	recorder := &stateRecorder[int]{}
	subscription, err := items.Subscribe(context.Background(), "a", recorder.listen)
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	// act
	_, err = update.Run(context.Background(), 2)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, remote.callsFor("a"))

	states := recorder.all()
	require.Len(t, states, 3)
	assert.Equal(t, querycache.StatusLoading, states[0].Status)
	assert.False(t, states[0].HasData)
	assert.Equal(t, querycache.StatusSuccess, states[1].Status)
	assert.Equal(t, 1, states[1].Data)
	assert.Equal(t, querycache.StatusSuccess, states[2].Status)
	assert.Equal(t, 2, states[2].Data)

	value, found := items.Peek("a")
	assert.True(t, found)
	assert.Equal(t, 2, value)
}

func Test_Mutation_Run_RefetchFailureIsDeliveredNotReturned(t *testing.T) {
	// arrange
	logger := testdoubles.NewContextualLoggerSpy()
	cache, remote, items := setUp(t, querycache.WithContextualLogger(logger))
	update := querycache.NewMutation(cache, "updateItem", func(_ context.Context, value int) (int, error) {
		remote.set("a", value)
		remote.fail(true)
		return value, nil
	}, tagItems)

	remote.set("a", 1)
	recorder := &stateRecorder[int]{}
	subscription, err := items.Subscribe(context.Background(), "a", recorder.listen)
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	// act
	result, err := update.Run(context.Background(), 2)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, result)

	last := recorder.last()
	assert.Equal(t, querycache.StatusError, last.Status)
	assert.ErrorIs(t, last.Err, errBackend)
	assert.True(t, last.HasData)
	assert.Equal(t, 1, last.Data, "the previous data is kept")
	assert.True(t, logger.HasWarnLog(querycache.LogMsgRefetchFailed))
}

func Test_Mutation_InvalidatesWith_DerivesTags(t *testing.T) {
	cache, remote, items := setUp(t)
	orders := querycache.NewQuery(cache, "order", remote.fetch, tagOrders)
	place := querycache.NewMutation(cache, "placeOrder", func(_ context.Context, quantity int) (int, error) {
		return quantity, nil
	}).InvalidatesWith(func(_ int, quantity int) []querycache.Tag {
		if quantity > 0 {
			return []querycache.Tag{tagOrders, tagItems}
		}
		return []querycache.Tag{tagOrders}
	})

	_, _ = items.Get(context.Background(), "a")
	_, _ = orders.Get(context.Background(), "o")

	_, err := place.Run(context.Background(), 0)
	require.NoError(t, err)

	_, itemFresh := items.Peek("a")
	_, orderFresh := orders.Peek("o")
	assert.True(t, itemFresh)
	assert.False(t, orderFresh)

	_, err = place.Run(context.Background(), 3)
	require.NoError(t, err)

	_, itemFresh = items.Peek("a")
	assert.False(t, itemFresh)
}

func Test_Subscription_Unsubscribe_StopsDeliveries(t *testing.T) {
	// arrange
	cache, remote, items := setUp(t)
	remote.set("a", 1)

	recorder := &stateRecorder[int]{}
	subscription, err := items.Subscribe(context.Background(), "a", recorder.listen)
	require.NoError(t, err)
	delivered := len(recorder.all())

	// act
	subscription.Unsubscribe()
	subscription.Unsubscribe()
	cache.Invalidate(context.Background(), tagItems)

	// assert
	assert.Len(t, recorder.all(), delivered)
	assert.Equal(t, 1, remote.callsFor("a"), "an unwatched entry is not refetched")
}

func Test_Subscription_Unsubscribe_DiscardsInFlightResult(t *testing.T) {
	// arrange
	cache := newCache(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	query := querycache.NewQuery(cache, "slow", func(_ context.Context, _ string) (int, error) {
		if calls.Add(1) > 1 {
			started <- struct{}{}
			<-release
		}
		return int(calls.Load()), nil
	}, tagItems)

	recorder := &stateRecorder[int]{}
	subscription, err := query.Subscribe(context.Background(), "k", recorder.listen)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		cache.Invalidate(context.Background(), tagItems)
		close(done)
	}()
	<-started

	// act
	subscription.Unsubscribe()
	close(release)
	<-done

	// assert
	for _, state := range recorder.all() {
		assert.NotEqual(t, 2, state.Data, "the refetch result arrived after unsubscribing")
	}
}

func Test_Query_Subscribe_ServesFreshEntryWithoutFetching(t *testing.T) {
	_, remote, items := setUp(t)
	remote.set("a", 5)
	_, _ = items.Get(context.Background(), "a")

	recorder := &stateRecorder[int]{}
	subscription, err := items.Subscribe(context.Background(), "a", recorder.listen)
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	states := recorder.all()
	require.Len(t, states, 1)
	assert.Equal(t, querycache.StatusSuccess, states[0].Status)
	assert.Equal(t, 5, states[0].Data)
	assert.Equal(t, 1, remote.callsFor("a"))
}

func Test_Query_Subscribe_CanceledBeforeFirstResult(t *testing.T) {
	cache := newCache(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	query := querycache.NewQuery(cache, "slow", func(_ context.Context, _ string) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	subscription, err := query.Subscribe(ctx, "k", func(querycache.State[int]) {})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, subscription)
}

func Test_Cache_Invalidate_DropsStaleUnwatchedEntries(t *testing.T) {
	cache, _, items := setUp(t)
	_, _ = items.Get(context.Background(), "a")
	_, _ = items.Get(context.Background(), "b")
	require.Equal(t, 2, cache.Len())

	cache.Invalidate(context.Background(), tagItems)
	assert.Equal(t, 2, cache.Len(), "first invalidation only marks entries stale")

	cache.Invalidate(context.Background(), tagItems)
	assert.Equal(t, 0, cache.Len(), "entries stale since the last invalidation are dropped")
}

func Test_Cache_UsesClockForUpdatedAt(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	_, remote, items := setUp(t, querycache.WithClock(func() time.Time { return fixed }))
	remote.set("a", 1)

	recorder := &stateRecorder[int]{}
	subscription, err := items.Subscribe(context.Background(), "a", recorder.listen)
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	assert.Equal(t, fixed, recorder.last().UpdatedAt)
}

func Test_Cache_Observability(t *testing.T) {
	// arrange
	metrics := testdoubles.NewMetricsCollectorSpy()
	tracing := testdoubles.NewTracingCollectorSpy()
	logger := testdoubles.NewContextualLoggerSpy()
	cache, remote, items := setUp(t,
		querycache.WithMetrics(metrics),
		querycache.WithTracing(tracing),
		querycache.WithContextualLogger(logger),
	)
	update := querycache.NewMutation(cache, "updateItem", func(_ context.Context, value int) (int, error) {
		return value, nil
	}, tagItems)

	subscription, err := items.Subscribe(context.Background(), "watched", func(querycache.State[int]) {})
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	// act
	_, _ = items.Get(context.Background(), "a")
	_, _ = items.Get(context.Background(), "a")
	_, _ = update.Run(context.Background(), 1)
	_, _ = items.Get(context.Background(), "a")
	remote.fail(true)
	_, _ = items.Get(context.Background(), "b")

	// assert
	assert.True(t, metrics.HasCounterRecordForMetric(querycache.LookupsMetric).
		WithLabel(querycache.LogAttrQuery, "item").WithLabel(querycache.LogAttrResult, "miss").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(querycache.LookupsMetric).
		WithLabel(querycache.LogAttrResult, "hit").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(querycache.LookupsMetric).
		WithLabel(querycache.LogAttrResult, "stale").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(querycache.InvalidationsMetric).
		WithLabel(querycache.LogAttrTag, string(tagItems)).Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(querycache.RefetchesMetric).
		WithLabel(querycache.LogAttrQuery, "item").WithStatus(telemetry.StatusSuccess).Assert())
	assert.True(t, metrics.HasDurationRecordForMetric(querycache.FetchDurationMetric).
		WithStatus(telemetry.StatusError).Assert())
	_, hasEntries := metrics.LastValueForMetric(querycache.EntriesMetric)
	assert.True(t, hasEntries)

	assert.True(t, tracing.HasFinishedSpan(querycache.SpanNameFetch, telemetry.StatusSuccess))
	assert.True(t, tracing.HasFinishedSpan(querycache.SpanNameFetch, telemetry.StatusError))
	assert.True(t, tracing.HasFinishedSpan(querycache.SpanNameMutation, telemetry.StatusSuccess))
	assert.Zero(t, tracing.UnfinishedSpanCount())

	assert.True(t, logger.HasDebugLog(querycache.LogMsgInvalidated))
	assert.True(t, logger.HasInfoLog(querycache.LogMsgMutationComplete))
	assert.True(t, logger.HasWarnLog(querycache.LogMsgFetchFailed))
}

func Test_Query_Cached_ReturnsFreshEntriesOfThatQuery(t *testing.T) {
	cache, remote, items := setUp(t)
	orders := querycache.NewQuery(cache, "order", remote.fetch, tagOrders)
	remote.set("a", 1)
	remote.set("b", 2)
	remote.set("o", 9)

	_, _ = items.Get(context.Background(), "a")
	_, _ = items.Get(context.Background(), "b")
	_, _ = orders.Get(context.Background(), "o")

	assert.ElementsMatch(t, []int{1, 2}, items.Cached())

	cache.Invalidate(context.Background(), tagItems)

	assert.Empty(t, items.Cached())
	assert.Equal(t, []int{9}, orders.Cached())
}
