package library

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultLoanPeriod is the due date offset a new BorrowDraft starts with.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// BookDraft is the unsaved state of a book form. Copies is kept as text, as typed.
type BookDraft struct {
	Title       string
	Author      string
	Genre       string
	ISBN        string
	Description string
	Copies      string
}

// NewBookDraft prefills a draft from a persisted book, for editing.
func NewBookDraft(book Book) BookDraft {
	return BookDraft{
		Title:       book.Title,
		Author:      book.Author,
		Genre:       string(book.Genre),
		ISBN:        book.ISBN,
		Description: book.Description,
		Copies:      strconv.Itoa(book.Copies),
	}
}

// Fields converts the draft into validated BookFields.
func (d BookDraft) Fields() (BookFields, error) {
	fields := BookFields{
		Title:       strings.TrimSpace(d.Title),
		Author:      strings.TrimSpace(d.Author),
		Genre:       Genre(strings.TrimSpace(d.Genre)),
		ISBN:        strings.TrimSpace(d.ISBN),
		Description: strings.TrimSpace(d.Description),
	}

	errs := fieldErrors{}

	copiesText := strings.TrimSpace(d.Copies)
	if copiesText == "" {
		fields.Copies = 0
	} else if copies, err := strconv.Atoi(copiesText); err != nil {
		errs.add("copies", "Copies must be a whole number")
	} else {
		fields.Copies = copies
	}

	var validationErr *ValidationError
	if errors.As(fields.Validate(), &validationErr) {
		for field, message := range validationErr.Fields {
			errs.add(field, message)
		}
	}

	if err := errs.err(); err != nil {
		return BookFields{}, err
	}

	return fields, nil
}

// BorrowDraft is the unsaved state of a borrow form for one book.
type BorrowDraft struct {
	BookID   string
	Quantity int
	DueDate  time.Time
}

// NewBorrowDraft starts a draft for one copy, due DefaultLoanPeriod after now.
func NewBorrowDraft(bookID string, now time.Time) BorrowDraft {
	return BorrowDraft{
		BookID:   bookID,
		Quantity: 1,
		DueDate:  StartOfDay(now.Add(DefaultLoanPeriod)),
	}
}

// Request converts the draft into a BorrowRequest validated at the given instant.
func (d BorrowDraft) Request(now time.Time) (BorrowRequest, error) {
	req := BorrowRequest{BookID: d.BookID, Quantity: d.Quantity, DueDate: d.DueDate}
	if err := req.Validate(now); err != nil {
		return BorrowRequest{}, err
	}

	return req, nil
}
