package librarystore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
	"github.com/AntonStoeckl/bookshelf-sync/librarystore"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
	"github.com/AntonStoeckl/bookshelf-sync/querycache"
	"github.com/AntonStoeckl/bookshelf-sync/testutil/libraryfixture"
	"github.com/AntonStoeckl/bookshelf-sync/testutil/repositorycontract"
)

var today = time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

func clockAt(instant time.Time) func() time.Time {
	return func() time.Time { return instant }
}

func setUp(t *testing.T) (*libraryfixture.Fixture, *librarystore.Store) {
	t.Helper()

	fixture := libraryfixture.New(t, libraryserver.WithClock(clockAt(today)))
	store, err := librarystore.New(fixture.Client(t), librarystore.WithClock(clockAt(today)))
	require.NoError(t, err)

	return fixture, store
}

// borrowListings counts GET /api/borrows without the summary requests that share the prefix.
func borrowListings(fixture *libraryfixture.Fixture) int {
	return fixture.Requests("GET", "/api/borrows") - fixture.Requests("GET", "/api/borrows/summary")
}

func Test_New_OptionErrors(t *testing.T) {
	client, err := libraryapi.New("http://localhost:5000/api")
	require.NoError(t, err)

	_, err = librarystore.New(nil)
	assert.ErrorIs(t, err, librarystore.ErrNilAPI)

	_, err = librarystore.New(client, librarystore.WithCache(nil))
	assert.ErrorIs(t, err, librarystore.ErrNilCache)

	_, err = librarystore.New(client, librarystore.WithClock(nil))
	assert.ErrorIs(t, err, librarystore.ErrNilClock)
}

func Test_New_UsesSuppliedCache(t *testing.T) {
	client, err := libraryapi.New("http://localhost:5000/api")
	require.NoError(t, err)
	cache, err := querycache.New()
	require.NoError(t, err)

	store, err := librarystore.New(client, librarystore.WithCache(cache))

	require.NoError(t, err)
	assert.Same(t, cache, store.Cache())
}

func Test_Store_RepeatedReads_AreServedFromCache(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 2))
	ctx := context.Background()

	// act
	for range 3 {
		_, err := store.ListBooks(ctx, libraryapi.ListBooksParams{})
		require.NoError(t, err)
		_, err = store.GetBook(ctx, book.ID)
		require.NoError(t, err)
		_, err = store.GetBorrowSummary(ctx)
		require.NoError(t, err)
	}

	// assert
	assert.Equal(t, 1, fixture.Requests("GET", "/api/books/"+book.ID))
	assert.Equal(t, 3, fixture.TotalRequests())
}

func Test_Store_DifferentParams_AreCachedSeparately(t *testing.T) {
	fixture, store := setUp(t)
	ctx := context.Background()

	_, err := store.ListBooks(ctx, libraryapi.ListBooksParams{Page: 1})
	require.NoError(t, err)
	_, err = store.ListBooks(ctx, libraryapi.ListBooksParams{Page: 2})
	require.NoError(t, err)
	_, err = store.ListBooks(ctx, libraryapi.ListBooksParams{Page: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, fixture.Requests("GET", "/api/books"))
}

func Test_Store_CreateBorrow_InvalidatesBooksAndBorrows(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	ctx := context.Background()
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 3))

	_, err := store.ListBooks(ctx, libraryapi.ListBooksParams{})
	require.NoError(t, err)
	_, err = store.ListBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)
	_, err = store.GetBorrowSummary(ctx)
	require.NoError(t, err)

	// act
	borrow, err := store.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 2, DueDate: today})
	require.NoError(t, err)

	books, err := store.ListBooks(ctx, libraryapi.ListBooksParams{})
	require.NoError(t, err)
	borrows, err := store.ListBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)
	total, err := store.TotalBorrowed(ctx)
	require.NoError(t, err)

	// assert
	require.Len(t, books.Books, 1)
	assert.Equal(t, 1, books.Books[0].Copies)
	require.Len(t, borrows.Borrows, 1)
	assert.Equal(t, borrow.ID, borrows.Borrows[0].ID)
	assert.Equal(t, 2, total)

	assert.Equal(t, 2, fixture.Requests("GET", "/api/books"))
	assert.Equal(t, 2, borrowListings(fixture))
	assert.Equal(t, 2, fixture.Requests("GET", "/api/borrows/summary"))
	assert.Zero(t, fixture.Requests("GET", "/api/books/"), "copies were taken from the cached listing")
}

func Test_Store_ReturnBorrow_InvalidatesBooksAndBorrows(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	ctx := context.Background()
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 3))

	borrow, err := store.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 3, DueDate: today})
	require.NoError(t, err)

	before, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	_, err = store.ActiveBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)
	fixture.ResetRequests()

	// act
	require.NoError(t, store.ReturnBorrow(ctx, borrow.ID))

	after, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	active, err := store.ActiveBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)

	// assert
	assert.False(t, before.Available())
	assert.True(t, after.Available())
	assert.Equal(t, 3, after.Copies)
	assert.Empty(t, active)
	assert.Equal(t, 1, fixture.Requests("GET", "/api/books/"+book.ID))
	assert.Equal(t, 1, borrowListings(fixture))
}

func Test_Store_BookMutations_LeaveBorrowsCached(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	ctx := context.Background()

	_, err := store.ListBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)
	_, err = store.ListBooks(ctx, libraryapi.ListBooksParams{})
	require.NoError(t, err)

	// act
	created, err := store.CreateBook(ctx, repositorycontract.BookFields("Emma", library.GenreRomance, 1))
	require.NoError(t, err)
	require.NoError(t, store.DeleteBook(ctx, created.ID))

	books, err := store.ListBooks(ctx, libraryapi.ListBooksParams{})
	require.NoError(t, err)
	_, err = store.ListBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)

	// assert
	assert.Empty(t, books.Books)
	assert.Equal(t, 2, fixture.Requests("GET", "/api/books"))
	assert.Equal(t, 1, borrowListings(fixture))
}

func Test_Store_UpdateBook_RefetchesBook(t *testing.T) {
	fixture, store := setUp(t)
	ctx := context.Background()
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 3))

	_, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)

	fields := book.Fields()
	fields.Title = "Dune Messiah"
	_, err = store.UpdateBook(ctx, book.ID, fields)
	require.NoError(t, err)

	fetched, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)

	assert.Equal(t, "Dune Messiah", fetched.Title)
}

func Test_Store_FailedMutation_InvalidatesNothing(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	ctx := context.Background()

	_, err := store.ListBooks(ctx, libraryapi.ListBooksParams{})
	require.NoError(t, err)
	_, err = store.ListBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)

	// act
	returnErr := store.ReturnBorrow(ctx, "missing")

	_, err = store.ListBooks(ctx, libraryapi.ListBooksParams{})
	require.NoError(t, err)
	_, err = store.ListBorrows(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)

	// assert
	assert.ErrorIs(t, returnErr, libraryapi.ErrNotFound)
	assert.Equal(t, 1, fixture.Requests("GET", "/api/books"))
	assert.Equal(t, 1, borrowListings(fixture))
}

func Test_Store_CreateBorrow_RejectsQuantityAboveCopiesWithoutWriting(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 2))

	// act
	_, err := store.CreateBorrow(context.Background(), library.BorrowRequest{BookID: book.ID, Quantity: 3, DueDate: today})

	// assert
	assert.ErrorIs(t, err, libraryapi.ErrValidation)
	assert.Equal(t, "Only 2 copies available", libraryapi.FieldErrors(err)["quantity"])
	assert.Zero(t, fixture.WriteRequests())
	assert.Equal(t, 2, fixture.Copies(t, book.ID))
}

func Test_Store_CreateBorrow_RejectsInvalidRequestWithoutAnyRequest(t *testing.T) {
	fixture, store := setUp(t)
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 2))

	testCases := map[string]struct {
		req   library.BorrowRequest
		field string
	}{
		"due date yesterday": {
			req:   library.BorrowRequest{BookID: book.ID, Quantity: 1, DueDate: today.AddDate(0, 0, -1)},
			field: "dueDate",
		},
		"missing due date": {
			req:   library.BorrowRequest{BookID: book.ID, Quantity: 1},
			field: "dueDate",
		},
		"zero quantity": {
			req:   library.BorrowRequest{BookID: book.ID, DueDate: today},
			field: "quantity",
		},
		"missing book": {
			req:   library.BorrowRequest{Quantity: 1, DueDate: today},
			field: "book",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := store.CreateBorrow(context.Background(), tc.req)

			assert.ErrorIs(t, err, libraryapi.ErrValidation)
			assert.Contains(t, libraryapi.FieldErrors(err), tc.field)
		})
	}

	assert.Zero(t, fixture.TotalRequests())
}

func Test_Store_CreateBorrow_FetchesCopiesWhenNotCached(t *testing.T) {
	fixture, store := setUp(t)
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 1))

	_, err := store.CreateBorrow(context.Background(), library.BorrowRequest{BookID: book.ID, Quantity: 1, DueDate: today})

	require.NoError(t, err)
	assert.Equal(t, 1, fixture.Requests("GET", "/api/books/"+book.ID))
	assert.Zero(t, fixture.Copies(t, book.ID))
}

func Test_Store_LocalValidation_SendsNothing(t *testing.T) {
	fixture, store := setUp(t)
	ctx := context.Background()

	_, getErr := store.GetBook(ctx, " ")
	_, createErr := store.CreateBook(ctx, library.BookFields{Title: "Dune"})
	returnErr := store.ReturnBorrow(ctx, "")

	assert.ErrorIs(t, getErr, libraryapi.ErrValidation)
	assert.ErrorIs(t, createErr, libraryapi.ErrValidation)
	assert.Contains(t, libraryapi.FieldErrors(createErr), "author")
	assert.ErrorIs(t, returnErr, libraryapi.ErrValidation)
	assert.Zero(t, fixture.TotalRequests())
}

func Test_Store_LoanStats_UsesStoreClock(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	ctx := context.Background()
	dune := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 5))
	emma := fixture.SeedBook(t, repositorycontract.BookFields("Emma", library.GenreRomance, 5))

	_, err := store.CreateBorrow(ctx, library.BorrowRequest{BookID: dune.ID, Quantity: 1, DueDate: today.AddDate(0, 0, 1)})
	require.NoError(t, err)
	returned, err := store.CreateBorrow(ctx, library.BorrowRequest{BookID: emma.ID, Quantity: 1, DueDate: today})
	require.NoError(t, err)
	_, err = store.CreateBorrow(ctx, library.BorrowRequest{BookID: emma.ID, Quantity: 2, DueDate: today.AddDate(0, 0, 7)})
	require.NoError(t, err)
	require.NoError(t, store.ReturnBorrow(ctx, returned.ID))

	later, err := librarystore.New(fixture.Client(t), librarystore.WithClock(clockAt(today.AddDate(0, 0, 2))))
	require.NoError(t, err)

	// act
	todayStats, err := store.LoanStats(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)
	laterStats, err := later.LoanStats(ctx, libraryapi.ListBorrowsParams{})
	require.NoError(t, err)

	// assert
	assert.Equal(t, library.LoanStats{Active: 2, Returned: 1}, todayStats)
	assert.Equal(t, library.LoanStats{Active: 1, Returned: 1, Overdue: 1}, laterStats)
	assert.Equal(t, today, store.Now())
}

type stateRecorder[R any] struct {
	mu     sync.Mutex
	states []querycache.State[R]
}

func (r *stateRecorder[R]) record(state querycache.State[R]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, state)
}

func (r *stateRecorder[R]) last() querycache.State[R] {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.states[len(r.states)-1]
}

func (r *stateRecorder[R]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.states)
}

func Test_Store_WatchBooks_SeesMutationBeforeItReturns(t *testing.T) {
	// arrange
	_, store := setUp(t)
	ctx := context.Background()
	recorder := &stateRecorder[library.BookPage]{}

	subscription, err := store.WatchBooks(ctx, libraryapi.ListBooksParams{}, recorder.record)
	require.NoError(t, err)
	defer subscription.Unsubscribe()

	require.Eventually(t, func() bool {
		return recorder.len() > 0 && recorder.last().Status == querycache.StatusSuccess
	}, time.Second, 5*time.Millisecond)

	// act
	_, err = store.CreateBook(ctx, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 1))
	require.NoError(t, err)

	// assert
	last := recorder.last()
	assert.Equal(t, querycache.StatusSuccess, last.Status)
	require.Len(t, last.Data.Books, 1)
	assert.Equal(t, "Dune", last.Data.Books[0].Title)
}

func Test_Store_WatchBorrowSummary_FollowsBorrows(t *testing.T) {
	// arrange
	fixture, store := setUp(t)
	ctx := context.Background()
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 4))
	recorder := &stateRecorder[[]library.BorrowSummary]{}

	subscription, err := store.WatchBorrowSummary(ctx, recorder.record)
	require.NoError(t, err)
	defer subscription.Unsubscribe()

	require.Eventually(t, func() bool {
		return recorder.len() > 0 && recorder.last().Status == querycache.StatusSuccess
	}, time.Second, 5*time.Millisecond)

	// act
	_, err = store.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 4, DueDate: today})
	require.NoError(t, err)

	// assert
	assert.Equal(t, []library.BorrowSummary{
		{BookTitle: "Dune", ISBN: "isbn-Dune", TotalQuantityBorrowed: 4},
	}, recorder.last().Data)
}

func Test_Store_WatchBook_RequiresID(t *testing.T) {
	_, store := setUp(t)

	_, err := store.WatchBook(context.Background(), "", func(querycache.State[library.Book]) {})

	assert.ErrorIs(t, err, libraryapi.ErrValidation)
}

func Test_Store_WatchBorrows_AfterUnsubscribe_NoMoreStates(t *testing.T) {
	fixture, store := setUp(t)
	ctx := context.Background()
	book := fixture.SeedBook(t, repositorycontract.BookFields("Dune", library.GenreScienceFiction, 4))
	recorder := &stateRecorder[library.BorrowPage]{}

	subscription, err := store.WatchBorrows(ctx, libraryapi.ListBorrowsParams{}, recorder.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return recorder.len() > 0 && recorder.last().Status == querycache.StatusSuccess
	}, time.Second, 5*time.Millisecond)

	subscription.Unsubscribe()
	seen := recorder.len()

	_, err = store.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 1, DueDate: today})
	require.NoError(t, err)

	assert.Equal(t, seen, recorder.len())
}
