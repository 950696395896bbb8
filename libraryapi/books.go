package libraryapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

const (
	OpListBooks  = "listBooks"
	OpGetBook    = "getBook"
	OpCreateBook = "createBook"
	OpUpdateBook = "updateBook"
	OpDeleteBook = "deleteBook"

	booksPath = "/books"
)

// SortOrder orders a listing.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListBooksParams filters and pages the book listing. Zero values are left to the server defaults.
type ListBooksParams struct {
	Genre     library.Genre `json:"genre,omitempty"`
	SortBy    string        `json:"sortBy,omitempty"`
	SortOrder SortOrder     `json:"sort,omitempty"`
	Page      int           `json:"page,omitempty"`
	Limit     int           `json:"limit,omitempty"`
}

func (p ListBooksParams) query() url.Values {
	query := url.Values{}

	if p.Genre != "" {
		query.Set("filter", string(p.Genre))
	}
	if p.SortBy != "" {
		query.Set("sortBy", p.SortBy)
	}
	if p.SortOrder != "" {
		query.Set("sort", string(p.SortOrder))
	}
	setPositive(query, "page", p.Page)
	setPositive(query, "limit", p.Limit)

	return query
}

// ListBooks fetches one page of books.
func (c *Client) ListBooks(ctx context.Context, params ListBooksParams) (library.BookPage, error) {
	var page library.BookPage

	err := c.send(ctx, request{
		operation: OpListBooks,
		method:    http.MethodGet,
		path:      booksPath,
		query:     params.query(),
	}, func(body []byte) error {
		var books []bookDTO
		pagination, err := decodeEnvelope(body, &books)
		if err != nil {
			return err
		}

		page.Books = make([]library.Book, 0, len(books))
		for _, book := range books {
			page.Books = append(page.Books, book.toDomain())
		}
		page.Pagination = pagination.toDomain(len(books))

		return nil
	})

	return page, err
}

// GetBook fetches a single book. An unknown ID fails with ErrNotFound.
func (c *Client) GetBook(ctx context.Context, id string) (library.Book, error) {
	return c.sendBook(ctx, request{
		operation: OpGetBook,
		method:    http.MethodGet,
		path:      pathFor(booksPath, id),
	})
}

// CreateBook creates a book and returns it as persisted.
func (c *Client) CreateBook(ctx context.Context, fields library.BookFields) (library.Book, error) {
	return c.sendBook(ctx, request{
		operation: OpCreateBook,
		method:    http.MethodPost,
		path:      booksPath,
		body:      newBookFieldsDTO(fields),
	})
}

// UpdateBook replaces the writable fields of a book and returns it as persisted.
func (c *Client) UpdateBook(ctx context.Context, id string, fields library.BookFields) (library.Book, error) {
	return c.sendBook(ctx, request{
		operation: OpUpdateBook,
		method:    http.MethodPut,
		path:      pathFor(booksPath, id),
		body:      newBookFieldsDTO(fields),
	})
}

// DeleteBook deletes a book. Deleting it again fails with ErrNotFound.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.send(ctx, request{
		operation: OpDeleteBook,
		method:    http.MethodDelete,
		path:      pathFor(booksPath, id),
	}, nil)
}

func (c *Client) sendBook(ctx context.Context, req request) (library.Book, error) {
	var book library.Book

	err := c.send(ctx, req, func(body []byte) error {
		var dto bookDTO
		if _, err := decodeEnvelope(body, &dto); err != nil {
			return err
		}
		book = dto.toDomain()

		return nil
	})

	return book, err
}

func setPositive(query url.Values, key string, value int) {
	if value > 0 {
		query.Set(key, strconv.Itoa(value))
	}
}
