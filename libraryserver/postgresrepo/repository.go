package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/bookshelf-sync/library"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver/postgresrepo/internal/adapters"
)

const (
	dialectPostgres = "postgres"

	tableBooks   = "books"
	tableBorrows = "borrows"

	colID          = "id"
	colTitle       = "title"
	colAuthor      = "author"
	colGenre       = "genre"
	colISBN        = "isbn"
	colDescription = "description"
	colCopies      = "copies"
	colCreatedAt   = "created_at"
	colUpdatedAt   = "updated_at"
	colBookID      = "book_id"
	colBookTitle   = "book_title"
	colBookAuthor  = "book_author"
	colBookGenre   = "book_genre"
	colBookISBN    = "book_isbn"
	colQuantity    = "quantity"
	colBorrowedAt  = "borrowed_at"
	colDueDate     = "due_date"
	colReturnedAt  = "returned_at"
	colStatus      = "status"
	aliasTotal     = "total"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor gets a nil connection.
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")

	// ErrBuildingQueryFailed wraps goqu errors.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrQueryingFailed wraps database errors.
	ErrQueryingFailed = errors.New("querying database failed")

	// ErrScanningFailed wraps row scanning errors.
	ErrScanningFailed = errors.New("scanning database row failed")

	bookColumns = []any{
		colID, colTitle, colAuthor, colGenre, colISBN, colDescription, colCopies, colCreatedAt, colUpdatedAt,
	}
	borrowColumns = []any{
		colID, colBookID, colBookTitle, colBookAuthor, colBookGenre, colBookISBN,
		colQuantity, colBorrowedAt, colDueDate, colReturnedAt, colStatus,
	}
)

// Schema creates the tables the repository needs.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
	id          text PRIMARY KEY,
	title       text NOT NULL,
	author      text NOT NULL,
	genre       text NOT NULL,
	isbn        text NOT NULL,
	description text NOT NULL,
	copies      integer NOT NULL CHECK (copies >= 0),
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS books_genre_idx ON books (genre);
CREATE TABLE IF NOT EXISTS borrows (
	id          text PRIMARY KEY,
	book_id     text NOT NULL,
	book_title  text NOT NULL,
	book_author text NOT NULL,
	book_genre  text NOT NULL,
	book_isbn   text NOT NULL,
	quantity    integer NOT NULL CHECK (quantity > 0),
	borrowed_at timestamptz NOT NULL,
	due_date    date NOT NULL,
	returned_at timestamptz,
	status      text NOT NULL
);
CREATE INDEX IF NOT EXISTS borrows_status_idx ON borrows (status, borrowed_at DESC);
CREATE INDEX IF NOT EXISTS borrows_book_idx ON borrows (book_id);
`

// Repository stores books and borrows in PostgreSQL.
type Repository struct {
	db  adapters.DBAdapter
	now func() time.Time
}

// Option configures a Repository.
type Option func(*Repository) error

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) error {
		if now == nil {
			return libraryserver.ErrNilClock
		}

		r.now = now

		return nil
	}
}

var _ libraryserver.Repository = (*Repository)(nil)

// NewFromPGXPool creates a Repository on a pgx pool.
func NewFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Repository, error) {
	if pool == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newRepository(adapters.NewPGXAdapter(pool), options)
}

// NewFromSQLDB creates a Repository on a database/sql handle.
func NewFromSQLDB(db *sql.DB, options ...Option) (*Repository, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newRepository(adapters.NewSQLAdapter(db), options)
}

// NewFromSQLX creates a Repository on a sqlx handle.
func NewFromSQLX(db *sqlx.DB, options ...Option) (*Repository, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newRepository(adapters.NewSQLXAdapter(db), options)
}

func newRepository(db adapters.DBAdapter, options []Option) (*Repository, error) {
	r := &Repository{db: db, now: time.Now}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Migrate creates the schema if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return errors.Join(ErrQueryingFailed, err)
	}

	return nil
}

func (r *Repository) ListBooks(ctx context.Context, query libraryserver.BookQuery) ([]library.Book, int, error) {
	builder := goqu.Dialect(dialectPostgres).From(tableBooks)
	if query.Genre != "" {
		builder = builder.Where(goqu.C(colGenre).Eq(string(query.Genre)))
	}

	total, err := r.count(ctx, builder)
	if err != nil {
		return nil, 0, err
	}

	order := goqu.I(colCreatedAt).Asc()
	if column, ok := libraryserver.SortableBookColumns[query.SortBy]; ok {
		order = goqu.I(column).Asc()
		if query.SortOrder == "desc" {
			order = goqu.I(column).Desc()
		}
	}

	selectStmt := builder.
		Select(bookColumns...).
		Order(order, goqu.I(colID).Asc()).
		Limit(uint(query.Limit)).
		Offset(uint(query.Offset()))

	books, err := r.queryBooks(ctx, selectStmt)
	if err != nil {
		return nil, 0, err
	}

	return books, total, nil
}

func (r *Repository) GetBook(ctx context.Context, id string) (library.Book, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(tableBooks).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(id))

	books, err := r.queryBooks(ctx, selectStmt)
	if err != nil {
		return library.Book{}, err
	}

	if len(books) == 0 {
		return library.Book{}, libraryserver.ErrBookNotFound
	}

	return books[0], nil
}

func (r *Repository) CreateBook(ctx context.Context, fields library.BookFields) (library.Book, error) {
	now := r.now().UTC()

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(tableBooks).
		Rows(goqu.Record{
			colID:          uuid.NewString(),
			colTitle:       fields.Title,
			colAuthor:      fields.Author,
			colGenre:       string(fields.Genre),
			colISBN:        fields.ISBN,
			colDescription: fields.Description,
			colCopies:      fields.Copies,
			colCreatedAt:   now,
			colUpdatedAt:   now,
		}).
		Returning(bookColumns...)

	books, err := r.queryBooks(ctx, insertStmt)
	if err != nil {
		return library.Book{}, err
	}

	return books[0], nil
}

func (r *Repository) UpdateBook(ctx context.Context, id string, fields library.BookFields) (library.Book, error) {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(tableBooks).
		Set(goqu.Record{
			colTitle:       fields.Title,
			colAuthor:      fields.Author,
			colGenre:       string(fields.Genre),
			colISBN:        fields.ISBN,
			colDescription: fields.Description,
			colCopies:      fields.Copies,
			colUpdatedAt:   r.now().UTC(),
		}).
		Where(goqu.C(colID).Eq(id)).
		Returning(bookColumns...)

	books, err := r.queryBooks(ctx, updateStmt)
	if err != nil {
		return library.Book{}, err
	}

	if len(books) == 0 {
		return library.Book{}, libraryserver.ErrBookNotFound
	}

	return books[0], nil
}

func (r *Repository) DeleteBook(ctx context.Context, id string) error {
	if _, err := r.GetBook(ctx, id); err != nil {
		return err
	}

	active, err := r.count(ctx, goqu.Dialect(dialectPostgres).
		From(tableBorrows).
		Where(goqu.C(colBookID).Eq(id), goqu.C(colStatus).Eq(string(library.BorrowStatusActive))))
	if err != nil {
		return err
	}

	if active > 0 {
		return libraryserver.ErrBookHasLoans
	}

	deleteStmt := goqu.Dialect(dialectPostgres).Delete(tableBooks).Where(goqu.C(colID).Eq(id))

	affected, err := r.exec(ctx, deleteStmt)
	if err != nil {
		return err
	}

	if affected == 0 {
		return libraryserver.ErrBookNotFound
	}

	return nil
}

func (r *Repository) ListBorrows(ctx context.Context, query libraryserver.BorrowQuery) ([]library.Borrow, int, error) {
	builder := goqu.Dialect(dialectPostgres).From(tableBorrows)
	if query.Status != "" {
		builder = builder.Where(goqu.C(colStatus).Eq(string(query.Status)))
	}

	total, err := r.count(ctx, builder)
	if err != nil {
		return nil, 0, err
	}

	selectStmt := builder.
		Select(borrowColumns...).
		Order(goqu.I(colBorrowedAt).Desc(), goqu.I(colID).Desc()).
		Limit(uint(query.Limit)).
		Offset(uint(query.Offset()))

	borrows, err := r.queryBorrows(ctx, selectStmt)
	if err != nil {
		return nil, 0, err
	}

	return borrows, total, nil
}

// CreateBorrow takes the copies with a conditional update, so two concurrent borrows can never
// overdraw a book. The loan row is written afterwards; if that fails the copies are given back.
func (r *Repository) CreateBorrow(ctx context.Context, req library.BorrowRequest) (library.Borrow, error) {
	now := r.now().UTC()

	takeStmt := goqu.Dialect(dialectPostgres).
		Update(tableBooks).
		Set(goqu.Record{
			colCopies:    goqu.L(colCopies+" - ?", req.Quantity),
			colUpdatedAt: now,
		}).
		Where(goqu.C(colID).Eq(req.BookID), goqu.C(colCopies).Gte(req.Quantity)).
		Returning(bookColumns...)

	taken, err := r.queryBooks(ctx, takeStmt)
	if err != nil {
		return library.Borrow{}, err
	}

	if len(taken) == 0 {
		if _, err := r.GetBook(ctx, req.BookID); err != nil {
			return library.Borrow{}, err
		}

		return library.Borrow{}, libraryserver.ErrInsufficientCopies
	}

	book := taken[0]

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(tableBorrows).
		Rows(goqu.Record{
			colID:         uuid.NewString(),
			colBookID:     book.ID,
			colBookTitle:  book.Title,
			colBookAuthor: book.Author,
			colBookGenre:  string(book.Genre),
			colBookISBN:   book.ISBN,
			colQuantity:   req.Quantity,
			colBorrowedAt: now,
			colDueDate:    req.DueDate.Format(time.DateOnly),
			colStatus:     string(library.BorrowStatusActive),
		}).
		Returning(borrowColumns...)

	borrows, err := r.queryBorrows(ctx, insertStmt)
	if err != nil {
		if _, restoreErr := r.exec(ctx, r.giveBackStmt(book.ID, req.Quantity, now)); restoreErr != nil {
			return library.Borrow{}, errors.Join(err, restoreErr)
		}

		return library.Borrow{}, err
	}

	return borrows[0], nil
}

// ReturnBorrow closes the loan with a conditional update, so a second return finds nothing to close.
func (r *Repository) ReturnBorrow(ctx context.Context, id string) (library.Borrow, error) {
	now := r.now().UTC()

	closeStmt := goqu.Dialect(dialectPostgres).
		Update(tableBorrows).
		Set(goqu.Record{
			colStatus:     string(library.BorrowStatusReturned),
			colReturnedAt: now,
		}).
		Where(goqu.C(colID).Eq(id), goqu.C(colStatus).Eq(string(library.BorrowStatusActive))).
		Returning(borrowColumns...)

	closed, err := r.queryBorrows(ctx, closeStmt)
	if err != nil {
		return library.Borrow{}, err
	}

	if len(closed) == 0 {
		exists, err := r.count(ctx, goqu.Dialect(dialectPostgres).From(tableBorrows).Where(goqu.C(colID).Eq(id)))
		if err != nil {
			return library.Borrow{}, err
		}

		if exists == 0 {
			return library.Borrow{}, libraryserver.ErrBorrowNotFound
		}

		return library.Borrow{}, libraryserver.ErrAlreadyReturned
	}

	borrow := closed[0]

	// The book may have been deleted since; the loan is closed either way.
	if _, err := r.exec(ctx, r.giveBackStmt(borrow.BookID, borrow.Quantity, now)); err != nil {
		return library.Borrow{}, err
	}

	return borrow, nil
}

func (r *Repository) BorrowSummary(ctx context.Context) ([]library.BorrowSummary, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(tableBorrows).
		Select(colBookTitle, colBookISBN, goqu.SUM(colQuantity).As(aliasTotal)).
		GroupBy(colBookID, colBookTitle, colBookISBN).
		Order(goqu.I(aliasTotal).Desc(), goqu.I(colBookTitle).Asc())

	sqlQuery, err := toSQL(selectStmt)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sqlQuery)
	if err != nil {
		return nil, errors.Join(ErrQueryingFailed, err)
	}
	defer rows.Close()

	summary := make([]library.BorrowSummary, 0)
	for rows.Next() {
		var (
			row   library.BorrowSummary
			total int64
		)

		if err := rows.Scan(&row.BookTitle, &row.ISBN, &total); err != nil {
			return nil, errors.Join(ErrScanningFailed, err)
		}

		row.TotalQuantityBorrowed = int(total)
		summary = append(summary, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryingFailed, err)
	}

	return summary, nil
}

func (r *Repository) giveBackStmt(bookID string, quantity int, now time.Time) *goqu.UpdateDataset {
	return goqu.Dialect(dialectPostgres).
		Update(tableBooks).
		Set(goqu.Record{
			colCopies:    goqu.L(colCopies+" + ?", quantity),
			colUpdatedAt: now,
		}).
		Where(goqu.C(colID).Eq(bookID))
}

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func toSQL(builder sqlBuilder) (string, error) {
	sqlQuery, _, err := builder.ToSQL()
	if err != nil {
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

func (r *Repository) exec(ctx context.Context, builder sqlBuilder) (int64, error) {
	sqlQuery, err := toSQL(builder)
	if err != nil {
		return 0, err
	}

	affected, err := r.db.Exec(ctx, sqlQuery)
	if err != nil {
		return 0, errors.Join(ErrQueryingFailed, err)
	}

	return affected, nil
}

func (r *Repository) count(ctx context.Context, builder *goqu.SelectDataset) (int, error) {
	sqlQuery, err := toSQL(builder.Select(goqu.COUNT(goqu.Star())))
	if err != nil {
		return 0, err
	}

	rows, err := r.db.Query(ctx, sqlQuery)
	if err != nil {
		return 0, errors.Join(ErrQueryingFailed, err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, errors.Join(ErrScanningFailed, err)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, errors.Join(ErrQueryingFailed, err)
	}

	return int(count), nil
}

func (r *Repository) queryBooks(ctx context.Context, builder sqlBuilder) ([]library.Book, error) {
	sqlQuery, err := toSQL(builder)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sqlQuery)
	if err != nil {
		return nil, errors.Join(ErrQueryingFailed, err)
	}
	defer rows.Close()

	books := make([]library.Book, 0)
	for rows.Next() {
		var (
			book  library.Book
			genre string
		)

		if err := rows.Scan(
			&book.ID, &book.Title, &book.Author, &genre, &book.ISBN, &book.Description,
			&book.Copies, &book.CreatedAt, &book.UpdatedAt,
		); err != nil {
			return nil, errors.Join(ErrScanningFailed, err)
		}

		book.Genre = library.Genre(genre)
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryingFailed, err)
	}

	return books, nil
}

func (r *Repository) queryBorrows(ctx context.Context, builder sqlBuilder) ([]library.Borrow, error) {
	sqlQuery, err := toSQL(builder)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sqlQuery)
	if err != nil {
		return nil, errors.Join(ErrQueryingFailed, err)
	}
	defer rows.Close()

	borrows := make([]library.Borrow, 0)
	for rows.Next() {
		var (
			borrow     library.Borrow
			ref        library.BookRef
			genre      string
			status     string
			returnedAt sql.NullTime
		)

		if err := rows.Scan(
			&borrow.ID, &borrow.BookID, &ref.Title, &ref.Author, &genre, &ref.ISBN,
			&borrow.Quantity, &borrow.BorrowedAt, &borrow.DueDate, &returnedAt, &status,
		); err != nil {
			return nil, errors.Join(ErrScanningFailed, fmt.Errorf("borrow row: %w", err))
		}

		ref.Genre = library.Genre(genre)
		borrow.Book = &ref
		borrow.Status = library.BorrowStatus(status)
		if returnedAt.Valid {
			returned := returnedAt.Time
			borrow.ReturnedAt = &returned
		}

		borrows = append(borrows, borrow)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryingFailed, err)
	}

	return borrows, nil
}
