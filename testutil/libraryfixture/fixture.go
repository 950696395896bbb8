// Package libraryfixture runs the reference library server in-process for tests and counts the
// requests it receives.
package libraryfixture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
)

// Fixture is a running library server backed by memory.
type Fixture struct {
	Server *httptest.Server
	Repo   *libraryserver.MemoryRepository

	mu       sync.Mutex
	requests []string
}

// New starts a server and stops it when the test ends.
func New(t *testing.T, options ...libraryserver.Option) *Fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	f := &Fixture{Repo: libraryserver.NewMemoryRepository(nil)}

	server, err := libraryserver.New(f.Repo, options...)
	require.NoError(t, err)

	handler := server.Handler()
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()

		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)

	return f
}

// BaseURL is the API root, e.g. for libraryapi.New.
func (f *Fixture) BaseURL() string {
	return f.Server.URL + libraryserver.APIPrefix
}

// Client returns an API client talking to the fixture.
func (f *Fixture) Client(t *testing.T, options ...libraryapi.Option) *libraryapi.Client {
	t.Helper()

	client, err := libraryapi.New(f.BaseURL(), options...)
	require.NoError(t, err)

	return client
}

// Requests counts the requests with the given method whose path starts with prefix,
// e.g. Requests("GET", "/api/books").
func (f *Fixture) Requests(method, prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, request := range f.requests {
		if strings.HasPrefix(request, method+" "+prefix) {
			count++
		}
	}

	return count
}

// TotalRequests counts every request received.
func (f *Fixture) TotalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

// WriteRequests counts requests that are not GET.
func (f *Fixture) WriteRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, request := range f.requests {
		if !strings.HasPrefix(request, http.MethodGet+" ") {
			count++
		}
	}

	return count
}

// ResetRequests forgets the requests counted so far.
func (f *Fixture) ResetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = nil
}

// SeedBook stores a book directly in the repository, without a request.
func (f *Fixture) SeedBook(t *testing.T, fields library.BookFields) library.Book {
	t.Helper()

	book, err := f.Repo.CreateBook(context.Background(), fields)
	require.NoError(t, err)

	return book
}

// Copies returns the stored copies of a book, without a request.
func (f *Fixture) Copies(t *testing.T, bookID string) int {
	t.Helper()

	book, err := f.Repo.GetBook(context.Background(), bookID)
	require.NoError(t, err)

	return book.Copies
}
