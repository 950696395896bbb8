package library

import (
	"strings"
	"time"
)

// Genre classifies a book. The known values are offered by forms, but any free text is accepted.
type Genre string

const (
	GenreFiction        Genre = "fiction"
	GenreNonFiction     Genre = "non-fiction"
	GenreMystery        Genre = "mystery"
	GenreRomance        Genre = "romance"
	GenreScienceFiction Genre = "science-fiction"
	GenreFantasy        Genre = "fantasy"
	GenreBiography      Genre = "biography"
	GenreHistory        Genre = "history"
	GenreSelfHelp       Genre = "self-help"
	GenreOther          Genre = "other"
)

var genreLabels = map[Genre]string{
	GenreFiction:        "Fiction",
	GenreNonFiction:     "Non-Fiction",
	GenreMystery:        "Mystery",
	GenreRomance:        "Romance",
	GenreScienceFiction: "Science Fiction",
	GenreFantasy:        "Fantasy",
	GenreBiography:      "Biography",
	GenreHistory:        "History",
	GenreSelfHelp:       "Self-Help",
	GenreOther:          "Other",
}

// KnownGenres returns the genres offered by forms, in display order.
func KnownGenres() []Genre {
	return []Genre{
		GenreFiction, GenreNonFiction, GenreMystery, GenreRomance, GenreScienceFiction,
		GenreFantasy, GenreBiography, GenreHistory, GenreSelfHelp, GenreOther,
	}
}

// Label returns the human-readable name of a known genre, or the raw value otherwise.
func (g Genre) Label() string {
	if label, ok := genreLabels[g]; ok {
		return label
	}

	return string(g)
}

// BookFields are the writable fields of a book, as sent on create and update.
type BookFields struct {
	Title       string
	Author      string
	Genre       Genre
	ISBN        string
	Description string
	Copies      int
}

// Validate checks the fields the same way the server does and reports every invalid field at once.
func (f BookFields) Validate() error {
	errs := fieldErrors{}

	if strings.TrimSpace(f.Title) == "" {
		errs.add("title", "Title is required")
	}
	if strings.TrimSpace(f.Author) == "" {
		errs.add("author", "Author is required")
	}
	if strings.TrimSpace(string(f.Genre)) == "" {
		errs.add("genre", "Genre is required")
	}
	if strings.TrimSpace(f.ISBN) == "" {
		errs.add("isbn", "ISBN is required")
	}
	if strings.TrimSpace(f.Description) == "" {
		errs.add("description", "Description is required")
	}
	if f.Copies < 0 {
		errs.add("copies", "Copies must be a non-negative number")
	}

	return errs.err()
}

// Book is a persisted book record.
type Book struct {
	ID          string
	Title       string
	Author      string
	Genre       Genre
	ISBN        string
	Description string
	Copies      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available reports whether at least one copy can be borrowed.
func (b Book) Available() bool {
	return b.Copies > 0
}

// Fields returns the writable part of the book, e.g. to prefill an edit form.
func (b Book) Fields() BookFields {
	return BookFields{
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		ISBN:        b.ISBN,
		Description: b.Description,
		Copies:      b.Copies,
	}
}

// BookPage is one page of a book listing.
type BookPage struct {
	Books      []Book
	Pagination Pagination
}

// FindBook returns the book with the given ID from the page.
func (p BookPage) FindBook(id string) (Book, bool) {
	for _, book := range p.Books {
		if book.ID == id {
			return book, true
		}
	}

	return Book{}, false
}
