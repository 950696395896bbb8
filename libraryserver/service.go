package libraryserver

import (
	"context"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

// Service applies the business rules in front of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service. now decides whether a due date lies in the past.
func NewService(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}

	return &Service{repo: repo, now: now}
}

func (s *Service) ListBooks(ctx context.Context, query BookQuery) ([]library.Book, library.Pagination, error) {
	books, total, err := s.repo.ListBooks(ctx, query)
	if err != nil {
		return nil, library.Pagination{}, err
	}

	return books, query.Pagination(total), nil
}

func (s *Service) GetBook(ctx context.Context, id string) (library.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) CreateBook(ctx context.Context, fields library.BookFields) (library.Book, error) {
	if err := fields.Validate(); err != nil {
		return library.Book{}, err
	}

	return s.repo.CreateBook(ctx, fields)
}

func (s *Service) UpdateBook(ctx context.Context, id string, fields library.BookFields) (library.Book, error) {
	if err := fields.Validate(); err != nil {
		return library.Book{}, err
	}

	return s.repo.UpdateBook(ctx, id, fields)
}

func (s *Service) DeleteBook(ctx context.Context, id string) error {
	return s.repo.DeleteBook(ctx, id)
}

func (s *Service) ListBorrows(ctx context.Context, query BorrowQuery) ([]library.Borrow, library.Pagination, error) {
	borrows, total, err := s.repo.ListBorrows(ctx, query)
	if err != nil {
		return nil, library.Pagination{}, err
	}

	return borrows, query.Pagination(total), nil
}

// CreateBorrow checks the request against the book's current copies. The repository enforces the
// same rule atomically, so a concurrent borrow still cannot overdraw the book.
func (s *Service) CreateBorrow(ctx context.Context, req library.BorrowRequest) (library.Borrow, error) {
	if err := req.Validate(s.now()); err != nil {
		return library.Borrow{}, err
	}

	book, err := s.repo.GetBook(ctx, req.BookID)
	if err != nil {
		return library.Borrow{}, err
	}

	if err := req.CheckCopies(book.Copies); err != nil {
		return library.Borrow{}, err
	}

	return s.repo.CreateBorrow(ctx, req)
}

func (s *Service) ReturnBorrow(ctx context.Context, id string) (library.Borrow, error) {
	return s.repo.ReturnBorrow(ctx, id)
}

func (s *Service) BorrowSummary(ctx context.Context) ([]library.BorrowSummary, error) {
	return s.repo.BorrowSummary(ctx)
}
