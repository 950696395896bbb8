package libraryserver

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

// MemoryRepository keeps everything in process memory. The zero value is not usable; call
// NewMemoryRepository.
type MemoryRepository struct {
	mu      sync.RWMutex
	books   []library.Book
	borrows []library.Borrow
	now     func() time.Time
}

// NewMemoryRepository creates an empty repository that timestamps records with now.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}

	return &MemoryRepository{now: now}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) ListBooks(_ context.Context, query BookQuery) ([]library.Book, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []library.Book
	for _, book := range r.books {
		if query.Genre == "" || book.Genre == query.Genre {
			matching = append(matching, book)
		}
	}

	sortBooks(matching, query.SortBy, query.SortOrder)

	return pageOf(matching, query.PageRequest), len(matching), nil
}

func (r *MemoryRepository) GetBook(_ context.Context, id string) (library.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.bookIndex(id)
	if i < 0 {
		return library.Book{}, ErrBookNotFound
	}

	return r.books[i], nil
}

func (r *MemoryRepository) CreateBook(_ context.Context, fields library.BookFields) (library.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	book := library.Book{
		ID:          uuid.NewString(),
		Title:       fields.Title,
		Author:      fields.Author,
		Genre:       fields.Genre,
		ISBN:        fields.ISBN,
		Description: fields.Description,
		Copies:      fields.Copies,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.books = append(r.books, book)

	return book, nil
}

func (r *MemoryRepository) UpdateBook(_ context.Context, id string, fields library.BookFields) (library.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.bookIndex(id)
	if i < 0 {
		return library.Book{}, ErrBookNotFound
	}

	book := &r.books[i]
	book.Title = fields.Title
	book.Author = fields.Author
	book.Genre = fields.Genre
	book.ISBN = fields.ISBN
	book.Description = fields.Description
	book.Copies = fields.Copies
	book.UpdatedAt = r.now().UTC()

	return *book, nil
}

func (r *MemoryRepository) DeleteBook(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.bookIndex(id)
	if i < 0 {
		return ErrBookNotFound
	}

	for _, borrow := range r.borrows {
		if borrow.BookID == id && borrow.IsActive() {
			return ErrBookHasLoans
		}
	}

	r.books = slices.Delete(r.books, i, i+1)

	return nil
}

func (r *MemoryRepository) ListBorrows(_ context.Context, query BorrowQuery) ([]library.Borrow, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []library.Borrow
	for _, borrow := range r.borrows {
		if query.Status == "" || borrow.Status == query.Status {
			matching = append(matching, borrow)
		}
	}

	// newest first
	slices.Reverse(matching)

	return pageOf(matching, query.PageRequest), len(matching), nil
}

func (r *MemoryRepository) CreateBorrow(_ context.Context, req library.BorrowRequest) (library.Borrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.bookIndex(req.BookID)
	if i < 0 {
		return library.Borrow{}, ErrBookNotFound
	}

	book := &r.books[i]
	if book.Copies < req.Quantity {
		return library.Borrow{}, ErrInsufficientCopies
	}

	now := r.now().UTC()
	book.Copies -= req.Quantity
	book.UpdatedAt = now

	borrow := library.Borrow{
		ID:     uuid.NewString(),
		BookID: book.ID,
		Book: &library.BookRef{
			Title:  book.Title,
			Author: book.Author,
			Genre:  book.Genre,
			ISBN:   book.ISBN,
		},
		Quantity:   req.Quantity,
		BorrowedAt: now,
		DueDate:    req.DueDate,
		Status:     library.BorrowStatusActive,
	}
	r.borrows = append(r.borrows, borrow)

	return borrow, nil
}

func (r *MemoryRepository) ReturnBorrow(_ context.Context, id string) (library.Borrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.borrows, func(b library.Borrow) bool { return b.ID == id })
	if i < 0 {
		return library.Borrow{}, ErrBorrowNotFound
	}

	borrow := &r.borrows[i]
	if !borrow.IsActive() {
		return library.Borrow{}, ErrAlreadyReturned
	}

	now := r.now().UTC()
	borrow.Status = library.BorrowStatusReturned
	borrow.ReturnedAt = &now

	// The book may have been deleted since; the loan is closed either way.
	if b := r.bookIndex(borrow.BookID); b >= 0 {
		r.books[b].Copies += borrow.Quantity
		r.books[b].UpdatedAt = now
	}

	return *borrow, nil
}

func (r *MemoryRepository) BorrowSummary(_ context.Context) ([]library.BorrowSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := make(map[string]*library.BorrowSummary)
	var order []string

	for _, borrow := range r.borrows {
		row, ok := totals[borrow.BookID]
		if !ok {
			row = &library.BorrowSummary{}
			if borrow.Book != nil {
				row.BookTitle = borrow.Book.Title
				row.ISBN = borrow.Book.ISBN
			}
			totals[borrow.BookID] = row
			order = append(order, borrow.BookID)
		}
		row.TotalQuantityBorrowed += borrow.Quantity
	}

	rows := make([]library.BorrowSummary, 0, len(order))
	for _, bookID := range order {
		rows = append(rows, *totals[bookID])
	}
	sortSummary(rows)

	return rows, nil
}

func (r *MemoryRepository) bookIndex(id string) int {
	return slices.IndexFunc(r.books, func(b library.Book) bool { return b.ID == id })
}

func pageOf[T any](items []T, page PageRequest) []T {
	start := min(page.Offset(), len(items))
	end := min(start+page.Limit, len(items))

	return slices.Clone(items[start:end])
}

func sortBooks(books []library.Book, sortBy, order string) {
	var compare func(a, b library.Book) int

	switch sortBy {
	case "title":
		compare = func(a, b library.Book) int { return strings.Compare(a.Title, b.Title) }
	case "author":
		compare = func(a, b library.Book) int { return strings.Compare(a.Author, b.Author) }
	case "genre":
		compare = func(a, b library.Book) int { return strings.Compare(string(a.Genre), string(b.Genre)) }
	case "copies":
		compare = func(a, b library.Book) int { return cmp.Compare(a.Copies, b.Copies) }
	case "createdAt":
		compare = func(a, b library.Book) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return
	}

	if order == "desc" {
		asc := compare
		compare = func(a, b library.Book) int { return asc(b, a) }
	}

	slices.SortStableFunc(books, compare)
}

// sortSummary orders by borrowed quantity, largest first, then by title.
func sortSummary(rows []library.BorrowSummary) {
	slices.SortStableFunc(rows, func(a, b library.BorrowSummary) int {
		if c := cmp.Compare(b.TotalQuantityBorrowed, a.TotalQuantityBorrowed); c != 0 {
			return c
		}

		return strings.Compare(a.BookTitle, b.BookTitle)
	})
}
