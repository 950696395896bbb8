package libraryserver

import (
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

const dateLayout = "2006-01-02"

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Data       any             `json:"data"`
	Pagination *paginationJSON `json:"pagination,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   errorJSON `json:"error"`
}

type errorJSON struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type paginationJSON struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

func newPaginationJSON(p library.Pagination) *paginationJSON {
	return &paginationJSON{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
	}
}

type bookJSON struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre"`
	ISBN        string    `json:"isbn"`
	Description string    `json:"description"`
	Copies      int       `json:"copies"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newBookJSON(book library.Book) bookJSON {
	return bookJSON{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Genre:       string(book.Genre),
		ISBN:        book.ISBN,
		Description: book.Description,
		Copies:      book.Copies,
		Available:   book.Available(),
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
}

type bookRefJSON struct {
	ID     string `json:"_id"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Genre  string `json:"genre,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}

type borrowJSON struct {
	ID         string      `json:"_id"`
	Book       bookRefJSON `json:"book"`
	Quantity   int         `json:"quantity"`
	BorrowDate time.Time   `json:"borrowDate"`
	DueDate    string      `json:"dueDate"`
	ReturnedAt *time.Time  `json:"returnedAt,omitempty"`
	Status     string      `json:"status"`
}

func newBorrowJSON(borrow library.Borrow) borrowJSON {
	ref := bookRefJSON{ID: borrow.BookID}
	if borrow.Book != nil {
		ref.Title = borrow.Book.Title
		ref.Author = borrow.Book.Author
		ref.Genre = string(borrow.Book.Genre)
		ref.ISBN = borrow.Book.ISBN
	}

	return borrowJSON{
		ID:         borrow.ID,
		Book:       ref,
		Quantity:   borrow.Quantity,
		BorrowDate: borrow.BorrowedAt,
		DueDate:    borrow.DueDate.Format(dateLayout),
		ReturnedAt: borrow.ReturnedAt,
		Status:     string(borrow.Status),
	}
}

type summaryJSON struct {
	BookTitle             string `json:"bookTitle"`
	ISBN                  string `json:"isbn"`
	TotalQuantityBorrowed int    `json:"totalQuantityBorrowed"`
}

type bookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Copies      int    `json:"copies"`
}

func (r bookRequest) fields() library.BookFields {
	return library.BookFields{
		Title:       r.Title,
		Author:      r.Author,
		Genre:       library.Genre(r.Genre),
		ISBN:        r.ISBN,
		Description: r.Description,
		Copies:      r.Copies,
	}
}

type borrowRequest struct {
	Book     string `json:"book"`
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
	DueDate  string `json:"dueDate"`
}

// toDomain accepts the due date as a bare date or an RFC 3339 timestamp.
func (r borrowRequest) toDomain() (library.BorrowRequest, error) {
	req := library.BorrowRequest{
		BookID:   r.BookID,
		Quantity: r.Quantity,
	}
	if req.BookID == "" {
		req.BookID = r.Book
	}

	if r.DueDate == "" {
		return req, nil
	}

	due, err := time.Parse(dateLayout, r.DueDate)
	if err != nil {
		if due, err = time.Parse(time.RFC3339, r.DueDate); err != nil {
			return req, library.NewValidationError("dueDate", "Due date must be a date")
		}
	}
	req.DueDate = due

	return req, nil
}
