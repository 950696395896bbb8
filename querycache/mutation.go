package querycache

import (
	"context"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

// Mutation is a write endpoint taking A and producing R. A successful run invalidates tags.
type Mutation[A, R any] struct {
	cache       *Cache
	name        string
	exec        func(ctx context.Context, arg A) (R, error)
	invalidates func(arg A, result R) []Tag
}

// NewMutation binds a write endpoint to the cache. A successful run invalidates the given tags.
func NewMutation[A, R any](cache *Cache, name string, exec func(ctx context.Context, arg A) (R, error), invalidates ...Tag) *Mutation[A, R] {
	return &Mutation[A, R]{
		cache: cache,
		name:  name,
		exec:  exec,
		invalidates: func(A, R) []Tag {
			return invalidates
		},
	}
}

// InvalidatesWith derives the invalidated tags from the argument and the result instead.
func (m *Mutation[A, R]) InvalidatesWith(tags func(arg A, result R) []Tag) *Mutation[A, R] {
	m.invalidates = tags
	return m
}

// Name returns the mutation name.
func (m *Mutation[A, R]) Name() string {
	return m.name
}

// Run executes the mutation. A failed run returns the error and invalidates nothing.
// A successful run invalidates its tags and returns after the resulting refetches settled.
func (m *Mutation[A, R]) Run(ctx context.Context, arg A) (R, error) {
	started := time.Now()
	observer := m.cache.observer

	ctx, span := observer.StartSpan(ctx, SpanNameMutation, map[string]string{LogAttrMutation: m.name})

	result, err := m.exec(ctx, arg)
	if err != nil {
		duration := time.Since(started)
		observer.FinishSpan(span, telemetry.StatusFor(err), duration, err)
		observer.Log(ctx, telemetry.LevelError, LogMsgMutationFailed,
			LogAttrMutation, m.name,
			telemetry.LogAttrError, err.Error(),
		)

		return result, err
	}

	tags := m.invalidates(arg, result)
	m.cache.Invalidate(ctx, tags...)

	duration := time.Since(started)
	if span != nil {
		span.AddAttribute(LogAttrTags, joinTags(tags))
	}
	observer.FinishSpan(span, telemetry.StatusSuccess, duration, nil)
	observer.Log(ctx, telemetry.LevelInfo, LogMsgMutationComplete,
		LogAttrMutation, m.name,
		LogAttrTags, joinTags(tags),
		telemetry.LogAttrDurationMS, telemetry.ToMilliseconds(duration),
	)

	return result, nil
}
