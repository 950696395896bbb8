package librarystore

import (
	"context"
	"strings"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
	"github.com/AntonStoeckl/bookshelf-sync/querycache"
)

const (
	// TagBooks is provided by book reads.
	TagBooks querycache.Tag = "Books"

	// TagBorrows is provided by borrow reads.
	TagBorrows querycache.Tag = "Borrows"
)

// API is the remote the store reads from and writes to. *libraryapi.Client implements it.
type API interface {
	ListBooks(ctx context.Context, params libraryapi.ListBooksParams) (library.BookPage, error)
	GetBook(ctx context.Context, id string) (library.Book, error)
	CreateBook(ctx context.Context, fields library.BookFields) (library.Book, error)
	UpdateBook(ctx context.Context, id string, fields library.BookFields) (library.Book, error)
	DeleteBook(ctx context.Context, id string) error
	ListBorrows(ctx context.Context, params libraryapi.ListBorrowsParams) (library.BorrowPage, error)
	CreateBorrow(ctx context.Context, req library.BorrowRequest) (library.Borrow, error)
	ReturnBorrow(ctx context.Context, id string) error
	GetBorrowSummary(ctx context.Context) ([]library.BorrowSummary, error)
}

var _ API = (*libraryapi.Client)(nil)

type bookUpdate struct {
	id     string
	fields library.BookFields
}

type summaryArgs struct{}

// Store is the cached view of the library. It is safe for concurrent use.
type Store struct {
	api   API
	cache *querycache.Cache
	now   func() time.Time

	listBooks   *querycache.Query[libraryapi.ListBooksParams, library.BookPage]
	getBook     *querycache.Query[string, library.Book]
	listBorrows *querycache.Query[libraryapi.ListBorrowsParams, library.BorrowPage]
	summary     *querycache.Query[summaryArgs, []library.BorrowSummary]

	createBook   *querycache.Mutation[library.BookFields, library.Book]
	updateBook   *querycache.Mutation[bookUpdate, library.Book]
	deleteBook   *querycache.Mutation[string, struct{}]
	createBorrow *querycache.Mutation[library.BorrowRequest, library.Borrow]
	returnBorrow *querycache.Mutation[string, struct{}]
}

// New creates a Store on top of api. Without WithCache the store owns a fresh cache.
func New(api API, options ...Option) (*Store, error) {
	if api == nil {
		return nil, ErrNilAPI
	}

	s := &Store{
		api: api,
		now: time.Now,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if s.cache == nil {
		cache, err := querycache.New(querycache.WithClock(s.now))
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	s.bind()

	return s, nil
}

func (s *Store) bind() {
	api := s.api

	s.listBooks = querycache.NewQuery(s.cache, libraryapi.OpListBooks, api.ListBooks, TagBooks)
	s.getBook = querycache.NewQuery(s.cache, libraryapi.OpGetBook, api.GetBook, TagBooks)
	s.listBorrows = querycache.NewQuery(s.cache, libraryapi.OpListBorrows, api.ListBorrows, TagBorrows)
	s.summary = querycache.NewQuery(s.cache, libraryapi.OpGetBorrowSummary,
		func(ctx context.Context, _ summaryArgs) ([]library.BorrowSummary, error) {
			return api.GetBorrowSummary(ctx)
		}, TagBorrows)

	s.createBook = querycache.NewMutation(s.cache, libraryapi.OpCreateBook, api.CreateBook, TagBooks)
	s.updateBook = querycache.NewMutation(s.cache, libraryapi.OpUpdateBook,
		func(ctx context.Context, update bookUpdate) (library.Book, error) {
			return api.UpdateBook(ctx, update.id, update.fields)
		}, TagBooks)
	s.deleteBook = querycache.NewMutation(s.cache, libraryapi.OpDeleteBook,
		func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, api.DeleteBook(ctx, id)
		}, TagBooks)
	s.createBorrow = querycache.NewMutation(s.cache, libraryapi.OpCreateBorrow, api.CreateBorrow, TagBorrows, TagBooks)
	s.returnBorrow = querycache.NewMutation(s.cache, libraryapi.OpReturnBorrow,
		func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, api.ReturnBorrow(ctx, id)
		}, TagBorrows, TagBooks)
}

// Cache returns the cache the store is bound to.
func (s *Store) Cache() *querycache.Cache {
	return s.cache
}

// Now returns the current time of the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// ListBooks returns one page of books.
func (s *Store) ListBooks(ctx context.Context, params libraryapi.ListBooksParams) (library.BookPage, error) {
	return s.listBooks.Get(ctx, params)
}

// GetBook returns one book.
func (s *Store) GetBook(ctx context.Context, id string) (library.Book, error) {
	if err := requireID("id", id); err != nil {
		return library.Book{}, err
	}

	return s.getBook.Get(ctx, id)
}

// CreateBook validates fields locally and creates the book.
func (s *Store) CreateBook(ctx context.Context, fields library.BookFields) (library.Book, error) {
	if err := fields.Validate(); err != nil {
		return library.Book{}, err
	}

	return s.createBook.Run(ctx, fields)
}

// UpdateBook validates fields locally and replaces the book's fields.
func (s *Store) UpdateBook(ctx context.Context, id string, fields library.BookFields) (library.Book, error) {
	if err := requireID("id", id); err != nil {
		return library.Book{}, err
	}

	if err := fields.Validate(); err != nil {
		return library.Book{}, err
	}

	return s.updateBook.Run(ctx, bookUpdate{id: id, fields: fields})
}

// DeleteBook deletes the book.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	if err := requireID("id", id); err != nil {
		return err
	}

	_, err := s.deleteBook.Run(ctx, id)

	return err
}

// ListBorrows returns one page of borrow records.
func (s *Store) ListBorrows(ctx context.Context, params libraryapi.ListBorrowsParams) (library.BorrowPage, error) {
	return s.listBorrows.Get(ctx, params)
}

// CreateBorrow validates req locally and records the loan. A quantity above the book's copies is
// rejected without writing anything. The copies are taken from the cache when a fresh copy of the
// book is held and fetched otherwise.
func (s *Store) CreateBorrow(ctx context.Context, req library.BorrowRequest) (library.Borrow, error) {
	if err := req.Validate(s.now()); err != nil {
		return library.Borrow{}, err
	}

	copies, err := s.copiesOf(ctx, req.BookID)
	if err != nil {
		return library.Borrow{}, err
	}

	if err := req.CheckCopies(copies); err != nil {
		return library.Borrow{}, err
	}

	return s.createBorrow.Run(ctx, req)
}

// ReturnBorrow marks the loan returned.
func (s *Store) ReturnBorrow(ctx context.Context, id string) error {
	if err := requireID("id", id); err != nil {
		return err
	}

	_, err := s.returnBorrow.Run(ctx, id)

	return err
}

// GetBorrowSummary returns the borrowed quantities per book.
func (s *Store) GetBorrowSummary(ctx context.Context) ([]library.BorrowSummary, error) {
	return s.summary.Get(ctx, summaryArgs{})
}

// ActiveBorrows returns the borrows of one page that are not returned yet.
func (s *Store) ActiveBorrows(ctx context.Context, params libraryapi.ListBorrowsParams) ([]library.Borrow, error) {
	page, err := s.ListBorrows(ctx, params)
	if err != nil {
		return nil, err
	}

	return page.Active(), nil
}

// LoanStats counts the loans of one page by state. Overdue is evaluated against the store's clock.
func (s *Store) LoanStats(ctx context.Context, params libraryapi.ListBorrowsParams) (library.LoanStats, error) {
	page, err := s.ListBorrows(ctx, params)
	if err != nil {
		return library.LoanStats{}, err
	}

	return library.CountLoans(page.Borrows, s.now()), nil
}

// TotalBorrowed sums the borrowed quantities of the summary.
func (s *Store) TotalBorrowed(ctx context.Context) (int, error) {
	rows, err := s.GetBorrowSummary(ctx)
	if err != nil {
		return 0, err
	}

	return library.TotalBorrowed(rows), nil
}

func (s *Store) copiesOf(ctx context.Context, bookID string) (int, error) {
	if book, ok := s.getBook.Peek(bookID); ok {
		return book.Copies, nil
	}

	for _, page := range s.listBooks.Cached() {
		if book, ok := page.FindBook(bookID); ok {
			return book.Copies, nil
		}
	}

	book, err := s.getBook.Get(ctx, bookID)
	if err != nil {
		return 0, err
	}

	return book.Copies, nil
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return library.NewValidationError(field, "Id is required")
	}

	return nil
}
