package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/bookshelf-sync/config"
	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryapi"
)

var errNoApp = errors.New("command ran without configuration")

// newRootCommand builds the command tree. Subcommands get the app through the closure once
// PersistentPreRunE has run.
func newRootCommand(out, errOut io.Writer) *cobra.Command {
	var (
		a       *app
		apiURL  string
		timeout time.Duration
	)

	root := &cobra.Command{
		Use:           "bookshelf",
		Short:         "Browse and lend the books of a library server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("api-url") {
				cfg.API.BaseURL = apiURL
			}
			if cmd.Flags().Changed("timeout") {
				cfg.API.Timeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err = newApp(cfg, out, errOut)

			return err
		},
	}

	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&apiURL, "api-url", config.DefaultAPIBaseURL, "base URL of the library API")
	root.PersistentFlags().DurationVar(&timeout, "timeout", config.DefaultAPITimeout, "timeout of one API request")

	current := func() (*app, error) {
		if a == nil {
			return nil, errNoApp
		}

		return a, nil
	}

	root.AddCommand(
		newBooksCommand(current),
		newBookCommand(current),
		newBorrowCommand(current),
		newReturnCommand(current),
		newBorrowsCommand(current),
		newSummaryCommand(current),
		newStatsCommand(current),
		newWatchCommand(current),
		newGenresCommand(),
	)

	return root
}

type appFunc func() (*app, error)

func newBooksCommand(current appFunc) *cobra.Command {
	var (
		params libraryapi.ListBooksParams
		genre  string
		order  string
	)

	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			params.Genre = library.Genre(genre)
			params.SortOrder = libraryapi.SortOrder(order)

			page, err := a.store.ListBooks(cmd.Context(), params)
			if err != nil {
				return err
			}

			return printBooks(a.out, page)
		},
	}

	cmd.Flags().StringVar(&genre, "genre", "", "only books of this genre")
	cmd.Flags().StringVar(&params.SortBy, "sort-by", "", "title, author, genre, copies or createdAt")
	cmd.Flags().StringVar(&order, "order", "", "asc or desc")
	cmd.Flags().IntVar(&params.Page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "books per page")

	return cmd
}

func newBookCommand(current appFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Show, add, update or delete one book",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one book",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := current()
				if err != nil {
					return err
				}

				book, err := a.store.GetBook(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				printBook(a.out, book)

				return nil
			},
		},
		newBookAddCommand(current),
		newBookUpdateCommand(current),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete one book",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := current()
				if err != nil {
					return err
				}

				if err := a.store.DeleteBook(cmd.Context(), args[0]); err != nil {
					return err
				}

				fmt.Fprintf(a.out, "Deleted book %s\n", args[0])

				return nil
			},
		},
	)

	return cmd
}

func bindDraftFlags(cmd *cobra.Command, draft *library.BookDraft) {
	cmd.Flags().StringVar(&draft.Title, "title", "", "title")
	cmd.Flags().StringVar(&draft.Author, "author", "", "author")
	cmd.Flags().StringVar(&draft.Genre, "genre", "", "genre, see the genres command")
	cmd.Flags().StringVar(&draft.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&draft.Description, "description", "", "description")
	cmd.Flags().StringVar(&draft.Copies, "copies", "", "number of copies")
}

func newBookAddCommand(current appFunc) *cobra.Command {
	var draft library.BookDraft

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			fields, err := draft.Fields()
			if err != nil {
				return err
			}

			book, err := a.store.CreateBook(cmd.Context(), fields)
			if err != nil {
				return err
			}

			printBook(a.out, book)

			return nil
		},
	}

	bindDraftFlags(cmd, &draft)

	return cmd
}

func newBookUpdateCommand(current appFunc) *cobra.Command {
	var changes library.BookDraft

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a book; flags not given keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			book, err := a.store.GetBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			draft := library.NewBookDraft(book)
			overrideChanged(cmd, &draft, changes)

			fields, err := draft.Fields()
			if err != nil {
				return err
			}

			updated, err := a.store.UpdateBook(cmd.Context(), book.ID, fields)
			if err != nil {
				return err
			}

			printBook(a.out, updated)

			return nil
		},
	}

	bindDraftFlags(cmd, &changes)

	return cmd
}

func overrideChanged(cmd *cobra.Command, draft *library.BookDraft, changes library.BookDraft) {
	flags := cmd.Flags()

	if flags.Changed("title") {
		draft.Title = changes.Title
	}
	if flags.Changed("author") {
		draft.Author = changes.Author
	}
	if flags.Changed("genre") {
		draft.Genre = changes.Genre
	}
	if flags.Changed("isbn") {
		draft.ISBN = changes.ISBN
	}
	if flags.Changed("description") {
		draft.Description = changes.Description
	}
	if flags.Changed("copies") {
		draft.Copies = changes.Copies
	}
}

func newBorrowCommand(current appFunc) *cobra.Command {
	var (
		quantity int
		due      string
	)

	cmd := &cobra.Command{
		Use:   "borrow <book-id>",
		Short: "Borrow copies of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			now := a.now()
			draft := library.NewBorrowDraft(args[0], now)
			draft.Quantity = quantity

			if due != "" {
				dueDate, err := time.ParseInLocation(time.DateOnly, due, now.Location())
				if err != nil {
					return library.NewValidationError("dueDate", "Due date must look like 2006-01-02")
				}
				draft.DueDate = dueDate
			}

			req, err := draft.Request(now)
			if err != nil {
				return err
			}

			borrow, err := a.store.CreateBorrow(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Borrowed %d of %q until %s (borrow %s)\n",
				borrow.Quantity, borrow.BookTitle(), borrow.DueDate.Format(time.DateOnly), borrow.ID)

			return nil
		},
	}

	cmd.Flags().IntVar(&quantity, "quantity", 1, "number of copies")
	cmd.Flags().StringVar(&due, "due", "", "due date as YYYY-MM-DD, two weeks from today if not given")

	return cmd
}

func newReturnCommand(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "return <borrow-id>",
		Short: "Return borrowed copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			if err := a.store.ReturnBorrow(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Returned borrow %s\n", args[0])

			return nil
		},
	}
}

func newBorrowsCommand(current appFunc) *cobra.Command {
	var (
		params     libraryapi.ListBorrowsParams
		status     string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "borrows",
		Short: "List borrow records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			params.Status = library.BorrowStatus(status)

			page, err := a.store.ListBorrows(cmd.Context(), params)
			if err != nil {
				return err
			}

			if activeOnly {
				page.Borrows = page.Active()
			}

			return printBorrows(a.out, page, a.now())
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "active or returned")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "hide returned borrows of the page")
	cmd.Flags().IntVar(&params.Page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "borrows per page")

	return cmd
}

func newSummaryCommand(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show borrowed quantities per book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			rows, err := a.store.GetBorrowSummary(cmd.Context())
			if err != nil {
				return err
			}

			return printSummary(a.out, rows)
		},
	}
}

func newStatsCommand(current appFunc) *cobra.Command {
	var params libraryapi.ListBorrowsParams

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count the borrows of a page by loan state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := current()
			if err != nil {
				return err
			}

			stats, err := a.store.LoanStats(cmd.Context(), params)
			if err != nil {
				return err
			}

			printStats(a.out, stats)

			return nil
		},
	}

	cmd.Flags().IntVar(&params.Page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "borrows per page")

	return cmd
}

func newGenresCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "genres",
		Short: "List the genres a book can have",
		Args:  cobra.NoArgs,
		// The genre list is static, no API configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, genre := range library.KnownGenres() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", genre, genre.Label())
			}

			return nil
		},
	}
}
