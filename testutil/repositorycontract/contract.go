// Package repositorycontract holds the behaviour every libraryserver.Repository must show,
// as a test suite that each implementation runs against itself.
package repositorycontract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
)

// Factory returns an empty repository.
type Factory func(t *testing.T) libraryserver.Repository

var dueDate = time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)

func firstPage(limit int) libraryserver.PageRequest {
	return libraryserver.PageRequest{Page: 1, Limit: limit}
}

// BookFields returns valid fields for a book with the given title, genre and copies.
func BookFields(title string, genre library.Genre, copies int) library.BookFields {
	return library.BookFields{
		Title:       title,
		Author:      "Author of " + title,
		Genre:       genre,
		ISBN:        "isbn-" + title,
		Description: "About " + title,
		Copies:      copies,
	}
}

// Run executes the suite.
func Run(t *testing.T, newRepository Factory) {
	t.Run("create and get book", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		created, err := repo.CreateBook(ctx, BookFields("Dune", library.GenreScienceFiction, 3))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		found, err := repo.GetBook(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "Dune", found.Title)
		assert.Equal(t, library.GenreScienceFiction, found.Genre)
		assert.Equal(t, 3, found.Copies)

		_, err = repo.GetBook(ctx, "missing")
		assert.ErrorIs(t, err, libraryserver.ErrBookNotFound)
	})

	t.Run("list books filters sorts and pages", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		for _, title := range []string{"Alpha", "Bravo", "Charlie"} {
			_, err := repo.CreateBook(ctx, BookFields(title, library.GenreFiction, 1))
			require.NoError(t, err)
		}
		_, err := repo.CreateBook(ctx, BookFields("Delta", library.GenreHistory, 1))
		require.NoError(t, err)

		books, total, err := repo.ListBooks(ctx, libraryserver.BookQuery{
			PageRequest: firstPage(2),
			Genre:       library.GenreFiction,
			SortBy:      "title",
			SortOrder:   "desc",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, books, 2)
		assert.Equal(t, "Charlie", books[0].Title)
		assert.Equal(t, "Bravo", books[1].Title)

		books, total, err = repo.ListBooks(ctx, libraryserver.BookQuery{
			PageRequest: libraryserver.PageRequest{Page: 2, Limit: 3},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, books, 1)
	})

	t.Run("update book", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		created, err := repo.CreateBook(ctx, BookFields("Emma", library.GenreRomance, 1))
		require.NoError(t, err)

		fields := created.Fields()
		fields.Copies = 5
		updated, err := repo.UpdateBook(ctx, created.ID, fields)
		require.NoError(t, err)
		assert.Equal(t, 5, updated.Copies)

		_, err = repo.UpdateBook(ctx, "missing", fields)
		assert.ErrorIs(t, err, libraryserver.ErrBookNotFound)
	})

	t.Run("borrow takes copies and return gives them back", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		book, err := repo.CreateBook(ctx, BookFields("Dune", library.GenreScienceFiction, 3))
		require.NoError(t, err)

		borrow, err := repo.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 2, DueDate: dueDate})
		require.NoError(t, err)
		assert.Equal(t, book.ID, borrow.BookID)
		assert.Equal(t, 2, borrow.Quantity)
		assert.Equal(t, library.BorrowStatusActive, borrow.Status)
		assert.Equal(t, dueDate.Format(time.DateOnly), borrow.DueDate.Format(time.DateOnly))
		require.NotNil(t, borrow.Book)
		assert.Equal(t, "Dune", borrow.Book.Title)

		afterBorrow, err := repo.GetBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, afterBorrow.Copies)

		returned, err := repo.ReturnBorrow(ctx, borrow.ID)
		require.NoError(t, err)
		assert.Equal(t, library.BorrowStatusReturned, returned.Status)
		assert.NotNil(t, returned.ReturnedAt)

		afterReturn, err := repo.GetBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, afterReturn.Copies)

		_, err = repo.ReturnBorrow(ctx, borrow.ID)
		assert.ErrorIs(t, err, libraryserver.ErrAlreadyReturned)

		unchanged, err := repo.GetBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, unchanged.Copies)
	})

	t.Run("borrow rejects more copies than available", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		book, err := repo.CreateBook(ctx, BookFields("Dune", library.GenreScienceFiction, 1))
		require.NoError(t, err)

		_, err = repo.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 2, DueDate: dueDate})
		assert.ErrorIs(t, err, libraryserver.ErrInsufficientCopies)

		_, err = repo.CreateBorrow(ctx, library.BorrowRequest{BookID: "missing", Quantity: 1, DueDate: dueDate})
		assert.ErrorIs(t, err, libraryserver.ErrBookNotFound)

		unchanged, err := repo.GetBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, unchanged.Copies)

		borrows, total, err := repo.ListBorrows(ctx, libraryserver.BorrowQuery{PageRequest: firstPage(10)})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, borrows)
	})

	t.Run("return unknown borrow", func(t *testing.T) {
		repo := newRepository(t)

		_, err := repo.ReturnBorrow(context.Background(), "missing")

		assert.ErrorIs(t, err, libraryserver.ErrBorrowNotFound)
	})

	t.Run("list borrows filters by status", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		book, err := repo.CreateBook(ctx, BookFields("Dune", library.GenreScienceFiction, 5))
		require.NoError(t, err)

		first, err := repo.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 1, DueDate: dueDate})
		require.NoError(t, err)
		_, err = repo.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 1, DueDate: dueDate})
		require.NoError(t, err)
		_, err = repo.ReturnBorrow(ctx, first.ID)
		require.NoError(t, err)

		active, total, err := repo.ListBorrows(ctx, libraryserver.BorrowQuery{
			PageRequest: firstPage(10),
			Status:      library.BorrowStatusActive,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, active, 1)
		assert.NotEqual(t, first.ID, active[0].ID)

		all, total, err := repo.ListBorrows(ctx, libraryserver.BorrowQuery{PageRequest: firstPage(10)})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, all, 2)
	})

	t.Run("delete book", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		book, err := repo.CreateBook(ctx, BookFields("Dune", library.GenreScienceFiction, 2))
		require.NoError(t, err)
		borrow, err := repo.CreateBorrow(ctx, library.BorrowRequest{BookID: book.ID, Quantity: 1, DueDate: dueDate})
		require.NoError(t, err)

		err = repo.DeleteBook(ctx, book.ID)
		assert.ErrorIs(t, err, libraryserver.ErrBookHasLoans)

		_, err = repo.ReturnBorrow(ctx, borrow.ID)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteBook(ctx, book.ID))

		_, err = repo.GetBook(ctx, book.ID)
		assert.ErrorIs(t, err, libraryserver.ErrBookNotFound)

		err = repo.DeleteBook(ctx, book.ID)
		assert.ErrorIs(t, err, libraryserver.ErrBookNotFound)
	})

	t.Run("borrow summary aggregates per book", func(t *testing.T) {
		repo := newRepository(t)
		ctx := context.Background()

		dune, err := repo.CreateBook(ctx, BookFields("Dune", library.GenreScienceFiction, 10))
		require.NoError(t, err)
		emma, err := repo.CreateBook(ctx, BookFields("Emma", library.GenreRomance, 10))
		require.NoError(t, err)

		for _, req := range []library.BorrowRequest{
			{BookID: dune.ID, Quantity: 2, DueDate: dueDate},
			{BookID: emma.ID, Quantity: 1, DueDate: dueDate},
			{BookID: dune.ID, Quantity: 3, DueDate: dueDate},
		} {
			_, err := repo.CreateBorrow(ctx, req)
			require.NoError(t, err)
		}

		summary, err := repo.BorrowSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, []library.BorrowSummary{
			{BookTitle: "Dune", ISBN: "isbn-Dune", TotalQuantityBorrowed: 5},
			{BookTitle: "Emma", ISBN: "isbn-Emma", TotalQuantityBorrowed: 1},
		}, summary)
	})
}
