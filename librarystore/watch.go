package librarystore

import (
	"context"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
	"github.com/AntonStoeckl/bookshelf-sync/querycache"
)

// WatchBooks keeps listener informed about one page of books until the subscription ends.
func (s *Store) WatchBooks(
	ctx context.Context,
	params libraryapi.ListBooksParams,
	listener func(querycache.State[library.BookPage]),
) (*querycache.Subscription, error) {
	return s.listBooks.Subscribe(ctx, params, listener)
}

// WatchBook keeps listener informed about one book.
func (s *Store) WatchBook(
	ctx context.Context,
	id string,
	listener func(querycache.State[library.Book]),
) (*querycache.Subscription, error) {
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	return s.getBook.Subscribe(ctx, id, listener)
}

// WatchBorrows keeps listener informed about one page of borrow records.
func (s *Store) WatchBorrows(
	ctx context.Context,
	params libraryapi.ListBorrowsParams,
	listener func(querycache.State[library.BorrowPage]),
) (*querycache.Subscription, error) {
	return s.listBorrows.Subscribe(ctx, params, listener)
}

// WatchBorrowSummary keeps listener informed about the borrow summary.
func (s *Store) WatchBorrowSummary(
	ctx context.Context,
	listener func(querycache.State[[]library.BorrowSummary]),
) (*querycache.Subscription, error) {
	return s.summary.Subscribe(ctx, summaryArgs{}, listener)
}
