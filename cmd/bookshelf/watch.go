package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
	"github.com/AntonStoeckl/bookshelf-sync/querycache"
)

// newWatchCommand keeps the book list, the borrow list and the summary subscribed and prints every
// state they go through until interrupted.
func newWatchCommand(current appFunc) *cobra.Command {
	var (
		books   libraryapi.ListBooksParams
		borrows libraryapi.ListBorrowsParams
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print books, borrows and the summary whenever they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var mu sync.Mutex

			booksSub, err := a.store.WatchBooks(ctx, books, func(state querycache.State[library.BookPage]) {
				mu.Lock()
				defer mu.Unlock()

				if printState(a, "books", state.Status, state.Err) {
					_ = printBooks(a.out, state.Data)
				}
			})
			if err != nil {
				return err
			}
			defer booksSub.Unsubscribe()

			borrowsSub, err := a.store.WatchBorrows(ctx, borrows, func(state querycache.State[library.BorrowPage]) {
				mu.Lock()
				defer mu.Unlock()

				if printState(a, "borrows", state.Status, state.Err) {
					_ = printBorrows(a.out, state.Data, a.now())
				}
			})
			if err != nil {
				return err
			}
			defer borrowsSub.Unsubscribe()

			summarySub, err := a.store.WatchBorrowSummary(ctx, func(state querycache.State[[]library.BorrowSummary]) {
				mu.Lock()
				defer mu.Unlock()

				if printState(a, "summary", state.Status, state.Err) {
					_ = printSummary(a.out, state.Data)
				}
			})
			if err != nil {
				return err
			}
			defer summarySub.Unsubscribe()

			<-ctx.Done()

			return nil
		},
	}

	cmd.Flags().IntVar(&books.Limit, "books-limit", 0, "books per page")
	cmd.Flags().IntVar(&borrows.Limit, "borrows-limit", 0, "borrows per page")

	return cmd
}

// printState writes the header of one delivery and reports whether data follows.
func printState(a *app, view string, status querycache.Status, err error) bool {
	switch status {
	case querycache.StatusLoading:
		fmt.Fprintf(a.out, "== %s: loading\n", view)
		return false
	case querycache.StatusError:
		fmt.Fprintf(a.out, "== %s: %v\n", view, err)
		return false
	default:
		fmt.Fprintf(a.out, "== %s\n", view)
		return true
	}
}
