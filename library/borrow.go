package library

import (
	"strconv"
	"time"
)

// BorrowStatus is the stored status of a borrow. Overdue is not a stored status, see Borrow.Classify.
type BorrowStatus string

const (
	BorrowStatusActive   BorrowStatus = "active"
	BorrowStatusReturned BorrowStatus = "returned"
)

// LoanState is the read-time classification of a borrow.
type LoanState string

const (
	LoanActive   LoanState = "active"
	LoanReturned LoanState = "returned"
	LoanOverdue  LoanState = "overdue"
)

// Label returns the display label of the loan state.
func (s LoanState) Label() string {
	switch s {
	case LoanReturned:
		return "Returned"
	case LoanOverdue:
		return "Overdue"
	default:
		return "Borrowed"
	}
}

// BookRef is the snapshot of book details a borrow carries for display.
type BookRef struct {
	Title  string
	Author string
	Genre  Genre
	ISBN   string
}

// Borrow is a persisted loan of one or more copies of a book.
type Borrow struct {
	ID         string
	BookID     string
	Book       *BookRef
	Quantity   int
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
	Status     BorrowStatus
}

// IsActive reports whether the borrowed copies are still out.
func (b Borrow) IsActive() bool {
	return b.Status != BorrowStatusReturned
}

// IsOverdue reports whether the borrow is still active and its due date lies before now.
// A returned borrow is never overdue, whatever its due date.
func (b Borrow) IsOverdue(now time.Time) bool {
	return b.IsActive() && b.DueDate.Before(now)
}

// Classify derives the loan state at the given instant.
func (b Borrow) Classify(now time.Time) LoanState {
	switch {
	case !b.IsActive():
		return LoanReturned
	case b.IsOverdue(now):
		return LoanOverdue
	default:
		return LoanActive
	}
}

// BookTitle returns the title of the borrowed book, or an empty string when no snapshot is present.
func (b Borrow) BookTitle() string {
	if b.Book == nil {
		return ""
	}

	return b.Book.Title
}

// BorrowPage is one page of a borrow listing.
type BorrowPage struct {
	Borrows    []Borrow
	Pagination Pagination
}

// Active returns the borrows that are not returned, preserving order.
func (p BorrowPage) Active() []Borrow {
	active := make([]Borrow, 0, len(p.Borrows))
	for _, borrow := range p.Borrows {
		if borrow.IsActive() {
			active = append(active, borrow)
		}
	}

	return active
}

// BorrowRequest asks the server to lend Quantity copies of BookID until DueDate.
type BorrowRequest struct {
	BookID   string
	Quantity int
	DueDate  time.Time
}

// Validate checks the request at the given instant.
// The due date is compared by calendar day in now's location, so a due date of today is accepted.
func (r BorrowRequest) Validate(now time.Time) error {
	errs := fieldErrors{}

	if r.BookID == "" {
		errs.add("book", "Book is required")
	}
	if r.Quantity < 1 {
		errs.add("quantity", "Quantity must be at least 1")
	}
	if r.DueDate.IsZero() {
		errs.add("dueDate", "Due date is required")
	} else if StartOfDay(r.DueDate.In(now.Location())).Before(StartOfDay(now)) {
		errs.add("dueDate", "Due date cannot be in the past")
	}

	return errs.err()
}

// CheckCopies rejects a request for more copies than the book has.
func (r BorrowRequest) CheckCopies(copies int) error {
	if r.Quantity > copies {
		return NewValidationError("quantity", "Only "+strconv.Itoa(copies)+" copies available")
	}

	return nil
}

// LoanStats counts borrows by loan state.
type LoanStats struct {
	Active   int
	Returned int
	Overdue  int
}

// Total is the number of borrows counted.
func (s LoanStats) Total() int {
	return s.Active + s.Returned + s.Overdue
}

// CountLoans classifies every borrow at the given instant.
func CountLoans(borrows []Borrow, now time.Time) LoanStats {
	var stats LoanStats

	for _, borrow := range borrows {
		switch borrow.Classify(now) {
		case LoanReturned:
			stats.Returned++
		case LoanOverdue:
			stats.Overdue++
		default:
			stats.Active++
		}
	}

	return stats
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
