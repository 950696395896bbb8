package libraryapi

import (
	"bytes"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const dateLayout = "2006-01-02"

// wireTime decodes RFC 3339 timestamps as well as bare dates. Empty strings and null decode to
// the zero time.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw == nil || strings.TrimSpace(*raw) == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := parseWireTime(*raw)
	if err != nil {
		return err
	}
	t.Time = parsed

	return nil
}

func parseWireTime(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed, nil
	}

	return time.Parse(dateLayout, raw)
}

func (t wireTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}

	v := t.Time
	return &v
}

type envelope struct {
	Success    *bool               `json:"success"`
	Message    string              `json:"message"`
	Data       jsoniter.RawMessage `json:"data"`
	Pagination *paginationDTO      `json:"pagination"`
}

// payload returns the enveloped data, or the whole body when the response is not enveloped.
func (e envelope) payload(body []byte) []byte {
	if len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null")) {
		return e.Data
	}

	return body
}

type paginationDTO struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      *int  `json:"total"`
	TotalItems *int  `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
	HasNext    *bool `json:"hasNext"`
}

func (p *paginationDTO) toDomain(itemCount int) library.Pagination {
	if p == nil {
		return library.Pagination{Page: 1, Limit: itemCount, Total: itemCount, TotalPages: 1}
	}

	pagination := library.Pagination{Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages}

	switch {
	case p.Total != nil:
		pagination.Total = *p.Total
	case p.TotalItems != nil:
		pagination.Total = *p.TotalItems
	default:
		pagination.Total = itemCount
	}

	if p.HasNext != nil {
		pagination.HasNext = *p.HasNext
	} else {
		pagination.HasNext = p.Page < p.TotalPages
	}

	return pagination
}

type bookDTO struct {
	ID          string   `json:"id"`
	MongoID     string   `json:"_id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genre       string   `json:"genre"`
	ISBN        string   `json:"isbn"`
	Description string   `json:"description"`
	Copies      int      `json:"copies"`
	CreatedAt   wireTime `json:"createdAt"`
	UpdatedAt   wireTime `json:"updatedAt"`
}

// toDomain drops any "available" flag sent by the server; availability is derived from copies.
func (b bookDTO) toDomain() library.Book {
	return library.Book{
		ID:          firstNonEmpty(b.MongoID, b.ID),
		Title:       b.Title,
		Author:      b.Author,
		Genre:       library.Genre(b.Genre),
		ISBN:        b.ISBN,
		Description: b.Description,
		Copies:      b.Copies,
		CreatedAt:   b.CreatedAt.Time,
		UpdatedAt:   b.UpdatedAt.Time,
	}
}

type bookFieldsDTO struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Copies      int    `json:"copies"`
	Available   bool   `json:"available"`
}

func newBookFieldsDTO(fields library.BookFields) bookFieldsDTO {
	return bookFieldsDTO{
		Title:       fields.Title,
		Author:      fields.Author,
		Genre:       string(fields.Genre),
		ISBN:        fields.ISBN,
		Description: fields.Description,
		Copies:      fields.Copies,
		Available:   fields.Copies > 0,
	}
}

type bookRefDTO struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Genre   string `json:"genre"`
	ISBN    string `json:"isbn"`
}

type borrowDTO struct {
	ID             string              `json:"id"`
	MongoID        string              `json:"_id"`
	Book           jsoniter.RawMessage `json:"book"`
	BookID         string              `json:"bookId"`
	BookTitle      string              `json:"bookTitle"`
	Author         string              `json:"author"`
	Genre          string              `json:"genre"`
	ISBN           string              `json:"isbn"`
	Quantity       *int                `json:"quantity"`
	BorrowedCopies *int                `json:"borrowedCopies"`
	BorrowDate     wireTime            `json:"borrowDate"`
	CreatedAt      wireTime            `json:"createdAt"`
	DueDate        wireTime            `json:"dueDate"`
	ReturnDate     wireTime            `json:"returnDate"`
	ReturnedAt     wireTime            `json:"returnedAt"`
	Status         string              `json:"status"`
	Returned       *bool               `json:"returned"`
}

func (b borrowDTO) toDomain() library.Borrow {
	borrow := library.Borrow{
		ID:         firstNonEmpty(b.MongoID, b.ID),
		BookID:     b.BookID,
		BorrowedAt: b.BorrowDate.Time,
		DueDate:    b.DueDate.Time,
		ReturnedAt: b.ReturnedAt.ptr(),
		Status:     library.BorrowStatusActive,
	}

	if borrow.BorrowedAt.IsZero() {
		borrow.BorrowedAt = b.CreatedAt.Time
	}

	// The older shape has no dueDate and uses returnDate for it.
	if borrow.DueDate.IsZero() {
		borrow.DueDate = b.ReturnDate.Time
	}

	switch {
	case b.Quantity != nil:
		borrow.Quantity = *b.Quantity
	case b.BorrowedCopies != nil:
		borrow.Quantity = *b.BorrowedCopies
	}

	switch {
	case b.Status == string(library.BorrowStatusReturned):
		borrow.Status = library.BorrowStatusReturned
	case b.Status == "" && b.Returned != nil && *b.Returned:
		borrow.Status = library.BorrowStatusReturned
	}

	b.applyBook(&borrow)

	return borrow
}

// applyBook reads "book" as either an ID string or an embedded book object and falls back to the
// flattened bookTitle/author/genre/isbn fields.
func (b borrowDTO) applyBook(borrow *library.Borrow) {
	ref := bookRefDTO{Title: b.BookTitle, Author: b.Author, Genre: b.Genre, ISBN: b.ISBN}

	if len(b.Book) > 0 {
		var id string
		if err := json.Unmarshal(b.Book, &id); err == nil {
			if borrow.BookID == "" {
				borrow.BookID = id
			}
		} else {
			var embedded bookRefDTO
			if err := json.Unmarshal(b.Book, &embedded); err == nil {
				if borrow.BookID == "" {
					borrow.BookID = firstNonEmpty(embedded.MongoID, embedded.ID)
				}
				ref = embedded
			}
		}
	}

	if ref.Title == "" && ref.Author == "" && ref.ISBN == "" {
		return
	}

	borrow.Book = &library.BookRef{
		Title:  ref.Title,
		Author: ref.Author,
		Genre:  library.Genre(ref.Genre),
		ISBN:   ref.ISBN,
	}
}

type borrowRequestDTO struct {
	Book     string `json:"book"`
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
	DueDate  string `json:"dueDate"`
}

func newBorrowRequestDTO(req library.BorrowRequest) borrowRequestDTO {
	return borrowRequestDTO{
		Book:     req.BookID,
		BookID:   req.BookID,
		Quantity: req.Quantity,
		DueDate:  req.DueDate.Format(dateLayout),
	}
}

type summaryDTO struct {
	BookTitle             string          `json:"bookTitle"`
	ISBN                  string          `json:"isbn"`
	TotalQuantityBorrowed int             `json:"totalQuantityBorrowed"`
	TotalQuantity         *int            `json:"totalQuantity"`
	Book                  *summaryBookDTO `json:"book"`
}

type summaryBookDTO struct {
	Title string `json:"title"`
	ISBN  string `json:"isbn"`
}

// toDomain also reads the aggregated {book: {title, isbn}, totalQuantity} shape.
func (s summaryDTO) toDomain() library.BorrowSummary {
	summary := library.BorrowSummary{
		BookTitle:             s.BookTitle,
		ISBN:                  s.ISBN,
		TotalQuantityBorrowed: s.TotalQuantityBorrowed,
	}

	if s.Book != nil {
		summary.BookTitle = firstNonEmpty(summary.BookTitle, s.Book.Title)
		summary.ISBN = firstNonEmpty(summary.ISBN, s.Book.ISBN)
	}

	if s.TotalQuantity != nil && summary.TotalQuantityBorrowed == 0 {
		summary.TotalQuantityBorrowed = *s.TotalQuantity
	}

	return summary
}

type errorBody struct {
	Message string              `json:"message"`
	Error   jsoniter.RawMessage `json:"error"`
	Errors  jsoniter.RawMessage `json:"errors"`
}

type errorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  jsoniter.RawMessage `json:"fields"`
	Errors  jsoniter.RawMessage `json:"errors"`
}

// parseErrorBody extracts a message and field messages from the error shapes the API has used:
// {message, error: {code, message, fields}}, {message, error: {errors: {f: {message}}}},
// {errors: {f: "..."}} and {error: "..."}.
func parseErrorBody(body []byte) (string, map[string]string) {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body)), nil
	}

	message := parsed.Message
	fields := parseFieldMap(parsed.Errors)

	if len(parsed.Error) > 0 {
		var text string
		if err := json.Unmarshal(parsed.Error, &text); err == nil {
			message = firstNonEmpty(message, text)
		} else {
			var detail errorDetail
			if err := json.Unmarshal(parsed.Error, &detail); err == nil {
				message = firstNonEmpty(message, detail.Message)
				mergeFields(&fields, parseFieldMap(detail.Fields))
				mergeFields(&fields, parseFieldMap(detail.Errors))
			}
		}
	}

	return message, fields
}

func parseFieldMap(raw jsoniter.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var entries map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	fields := make(map[string]string, len(entries))
	for name, value := range entries {
		var text string
		if err := json.Unmarshal(value, &text); err == nil {
			fields[name] = text
			continue
		}

		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(value, &nested); err == nil && nested.Message != "" {
			fields[name] = nested.Message
		}
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}

func mergeFields(into *map[string]string, from map[string]string) {
	if len(from) == 0 {
		return
	}

	if *into == nil {
		*into = make(map[string]string, len(from))
	}

	for name, message := range from {
		if _, exists := (*into)[name]; !exists {
			(*into)[name] = message
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
