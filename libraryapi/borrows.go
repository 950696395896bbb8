package libraryapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

const (
	OpListBorrows      = "listBorrows"
	OpCreateBorrow     = "createBorrow"
	OpReturnBorrow     = "returnBorrow"
	OpGetBorrowSummary = "getBorrowSummary"

	borrowsPath = "/borrows"
)

// ListBorrowsParams filters and pages the borrow listing.
type ListBorrowsParams struct {
	Status library.BorrowStatus `json:"status,omitempty"`
	Page   int                  `json:"page,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
}

func (p ListBorrowsParams) query() url.Values {
	query := url.Values{}

	if p.Status != "" {
		query.Set("status", string(p.Status))
	}
	setPositive(query, "page", p.Page)
	setPositive(query, "limit", p.Limit)

	return query
}

// ListBorrows fetches one page of borrows.
func (c *Client) ListBorrows(ctx context.Context, params ListBorrowsParams) (library.BorrowPage, error) {
	var page library.BorrowPage

	err := c.send(ctx, request{
		operation: OpListBorrows,
		method:    http.MethodGet,
		path:      borrowsPath,
		query:     params.query(),
	}, func(body []byte) error {
		var borrows []borrowDTO
		pagination, err := decodeEnvelope(body, &borrows)
		if err != nil {
			return err
		}

		page.Borrows = make([]library.Borrow, 0, len(borrows))
		for _, borrow := range borrows {
			page.Borrows = append(page.Borrows, borrow.toDomain())
		}
		page.Pagination = pagination.toDomain(len(borrows))

		return nil
	})

	return page, err
}

// CreateBorrow lends copies of a book. The server rejects a quantity above the available copies
// and a due date in the past with ErrValidation.
func (c *Client) CreateBorrow(ctx context.Context, req library.BorrowRequest) (library.Borrow, error) {
	var borrow library.Borrow

	err := c.send(ctx, request{
		operation: OpCreateBorrow,
		method:    http.MethodPost,
		path:      borrowsPath,
		body:      newBorrowRequestDTO(req),
	}, func(body []byte) error {
		var dto borrowDTO
		if _, err := decodeEnvelope(body, &dto); err != nil {
			return err
		}
		borrow = dto.toDomain()

		return nil
	})

	return borrow, err
}

// ReturnBorrow marks a borrow as returned. Returning it twice fails with ErrConflict.
func (c *Client) ReturnBorrow(ctx context.Context, id string) error {
	return c.send(ctx, request{
		operation: OpReturnBorrow,
		method:    http.MethodPatch,
		path:      pathFor(borrowsPath, id, "return"),
	}, nil)
}

// GetBorrowSummary fetches the total borrowed quantity per book.
func (c *Client) GetBorrowSummary(ctx context.Context) ([]library.BorrowSummary, error) {
	var rows []library.BorrowSummary

	err := c.send(ctx, request{
		operation: OpGetBorrowSummary,
		method:    http.MethodGet,
		path:      pathFor(borrowsPath, "summary"),
	}, func(body []byte) error {
		var dtos []summaryDTO
		if _, err := decodeEnvelope(body, &dtos); err != nil {
			return err
		}

		rows = make([]library.BorrowSummary, 0, len(dtos))
		for _, dto := range dtos {
			rows = append(rows, dto.toDomain())
		}

		return nil
	})

	return rows, err
}
