package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func printBooks(out io.Writer, page library.BookPage) error {
	if len(page.Books) == 0 {
		fmt.Fprintln(out, "No books found")
		return nil
	}

	table := newTable(out)
	fmt.Fprintln(table, "ID\tTITLE\tAUTHOR\tGENRE\tCOPIES\tAVAILABLE")
	for _, book := range page.Books {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%d\t%s\n",
			book.ID, book.Title, book.Author, book.Genre.Label(), book.Copies, yesNo(book.Available()))
	}
	if err := table.Flush(); err != nil {
		return err
	}

	printPagination(out, page.Pagination)

	return nil
}

func printBook(out io.Writer, book library.Book) {
	fmt.Fprintf(out, "%s\n  by %s\n", book.Title, book.Author)
	fmt.Fprintf(out, "  id:          %s\n", book.ID)
	fmt.Fprintf(out, "  genre:       %s\n", book.Genre.Label())
	fmt.Fprintf(out, "  isbn:        %s\n", book.ISBN)
	fmt.Fprintf(out, "  copies:      %d (available: %s)\n", book.Copies, yesNo(book.Available()))
	fmt.Fprintf(out, "  description: %s\n", book.Description)
}

func printBorrows(out io.Writer, page library.BorrowPage, now time.Time) error {
	if len(page.Borrows) == 0 {
		fmt.Fprintln(out, "No borrows found")
		return nil
	}

	table := newTable(out)
	fmt.Fprintln(table, "ID\tBOOK\tQUANTITY\tBORROWED\tDUE\tSTATE")
	for _, borrow := range page.Borrows {
		fmt.Fprintf(table, "%s\t%s\t%d\t%s\t%s\t%s\n",
			borrow.ID,
			borrow.BookTitle(),
			borrow.Quantity,
			borrow.BorrowedAt.Format(time.DateOnly),
			borrow.DueDate.Format(time.DateOnly),
			borrow.Classify(now).Label(),
		)
	}
	if err := table.Flush(); err != nil {
		return err
	}

	printPagination(out, page.Pagination)

	return nil
}

func printSummary(out io.Writer, rows []library.BorrowSummary) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "Nothing borrowed yet")
		return nil
	}

	table := newTable(out)
	fmt.Fprintln(table, "TITLE\tISBN\tBORROWED")
	for _, row := range rows {
		fmt.Fprintf(table, "%s\t%s\t%d\n", row.BookTitle, row.ISBN, row.TotalQuantityBorrowed)
	}
	fmt.Fprintf(table, "TOTAL\t\t%d\n", library.TotalBorrowed(rows))

	return table.Flush()
}

func printStats(out io.Writer, stats library.LoanStats) {
	fmt.Fprintf(out, "%s: %d\n", library.LoanActive.Label(), stats.Active)
	fmt.Fprintf(out, "%s: %d\n", library.LoanOverdue.Label(), stats.Overdue)
	fmt.Fprintf(out, "%s: %d\n", library.LoanReturned.Label(), stats.Returned)
	fmt.Fprintf(out, "Total: %d\n", stats.Total())
}

func printPagination(out io.Writer, p library.Pagination) {
	if p.TotalPages > 1 {
		fmt.Fprintf(out, "Page %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}

	return "no"
}
