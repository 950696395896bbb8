package librarystore

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/querycache"
)

var (
	// ErrNilAPI is returned by New when no API is supplied.
	ErrNilAPI = errors.New("nil library api supplied")

	// ErrNilCache is returned by WithCache(nil).
	ErrNilCache = errors.New("nil cache supplied")

	// ErrNilClock is returned by WithClock(nil).
	ErrNilClock = errors.New("nil clock supplied")
)

// Option configures a Store.
type Option func(*Store) error

// WithCache binds the store to an existing cache, e.g. one configured with observability.
func WithCache(cache *querycache.Cache) Option {
	return func(s *Store) error {
		if cache == nil {
			return ErrNilCache
		}

		s.cache = cache

		return nil
	}
}

// WithClock replaces time.Now for due date validation and overdue classification.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		if now == nil {
			return ErrNilClock
		}

		s.now = now

		return nil
	}
}
