package libraryserver

import (
	"context"
	"errors"
	"math"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrBorrowNotFound     = errors.New("borrow not found")
	ErrAlreadyReturned    = errors.New("borrow already returned")
	ErrInsufficientCopies = errors.New("not enough copies available")
	ErrBookHasLoans       = errors.New("book has active borrows")
)

// PageRequest selects one page. Page is 1-based.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset is the number of items before the page. It saturates at math.MaxInt.
func (p PageRequest) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}

	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}

	return (p.Page - 1) * p.Limit
}

// Pagination describes the page for a total number of items.
func (p PageRequest) Pagination(total int) library.Pagination {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}

	return library.Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
	}
}

// BookQuery filters and orders a book listing.
type BookQuery struct {
	PageRequest
	Genre     library.Genre
	SortBy    string
	SortOrder string
}

// BorrowQuery filters a borrow listing.
type BorrowQuery struct {
	PageRequest
	Status library.BorrowStatus
}

// Repository stores books and borrows. Implementations keep copy counts and borrow status
// consistent under concurrent borrows and returns.
type Repository interface {
	ListBooks(ctx context.Context, query BookQuery) ([]library.Book, int, error)
	GetBook(ctx context.Context, id string) (library.Book, error)
	CreateBook(ctx context.Context, fields library.BookFields) (library.Book, error)
	UpdateBook(ctx context.Context, id string, fields library.BookFields) (library.Book, error)
	DeleteBook(ctx context.Context, id string) error

	ListBorrows(ctx context.Context, query BorrowQuery) ([]library.Borrow, int, error)

	// CreateBorrow takes req.Quantity copies from the book, failing with ErrInsufficientCopies
	// when it has fewer.
	CreateBorrow(ctx context.Context, req library.BorrowRequest) (library.Borrow, error)

	// ReturnBorrow gives the copies back, failing with ErrAlreadyReturned the second time.
	ReturnBorrow(ctx context.Context, id string) (library.Borrow, error)

	BorrowSummary(ctx context.Context) ([]library.BorrowSummary, error)
}

// SortableBookColumns maps the accepted sortBy values to column names.
var SortableBookColumns = map[string]string{
	"title":     "title",
	"author":    "author",
	"genre":     "genre",
	"copies":    "copies",
	"createdAt": "created_at",
}
