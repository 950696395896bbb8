package libraryserver

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

type handler struct {
	service *Service
	metrics *serverMetrics
}

func (h *handler) register(r gin.IRoutes) {
	r.GET("/books", h.listBooks)
	r.POST("/books", h.createBook)
	r.GET("/books/:id", h.getBook)
	r.PUT("/books/:id", h.updateBook)
	r.DELETE("/books/:id", h.deleteBook)

	r.GET("/borrows", h.listBorrows)
	r.POST("/borrows", h.createBorrow)
	r.GET("/borrows/summary", h.borrowSummary)
	r.PATCH("/borrows/:id/return", h.returnBorrow)
}

func (h *handler) listBooks(c *gin.Context) {
	page, err := pageRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	genre := c.Query("genre")
	if genre == "" {
		genre = c.Query("filter")
	}
	if genre == "all" {
		genre = ""
	}

	sortBy := c.Query("sortBy")
	if _, ok := SortableBookColumns[sortBy]; sortBy != "" && !ok {
		respondError(c, library.NewValidationError("sortBy", "Unsupported sort field"))
		return
	}

	books, pagination, err := h.service.ListBooks(c.Request.Context(), BookQuery{
		PageRequest: page,
		Genre:       library.Genre(genre),
		SortBy:      sortBy,
		SortOrder:   c.DefaultQuery("sort", "asc"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	data := make([]bookJSON, 0, len(books))
	for _, book := range books {
		data = append(data, newBookJSON(book))
	}

	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Pagination: newPaginationJSON(pagination)})
}

func (h *handler) getBook(c *gin.Context) {
	book, err := h.service.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, envelope{Success: true, Data: newBookJSON(book)})
}

func (h *handler) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, library.NewValidationError("body", "Request body must be a JSON object"))
		return
	}

	book, err := h.service.CreateBook(c.Request.Context(), req.fields())
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", APIPrefix+"/books/"+book.ID)
	c.JSON(http.StatusCreated, envelope{Success: true, Message: "Book created", Data: newBookJSON(book)})
}

func (h *handler) updateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, library.NewValidationError("body", "Request body must be a JSON object"))
		return
	}

	book, err := h.service.UpdateBook(c.Request.Context(), c.Param("id"), req.fields())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, envelope{Success: true, Message: "Book updated", Data: newBookJSON(book)})
}

func (h *handler) deleteBook(c *gin.Context) {
	if err := h.service.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, envelope{Success: true, Message: "Book deleted"})
}

func (h *handler) listBorrows(c *gin.Context) {
	page, err := pageRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	status := library.BorrowStatus(c.Query("status"))
	switch status {
	case "", library.BorrowStatusActive, library.BorrowStatusReturned:
	default:
		respondError(c, library.NewValidationError("status", "Status must be active or returned"))
		return
	}

	borrows, pagination, err := h.service.ListBorrows(c.Request.Context(), BorrowQuery{PageRequest: page, Status: status})
	if err != nil {
		respondError(c, err)
		return
	}

	data := make([]borrowJSON, 0, len(borrows))
	for _, borrow := range borrows {
		data = append(data, newBorrowJSON(borrow))
	}

	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Pagination: newPaginationJSON(pagination)})
}

func (h *handler) createBorrow(c *gin.Context) {
	var body borrowRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, library.NewValidationError("body", "Request body must be a JSON object"))
		return
	}

	req, err := body.toDomain()
	if err != nil {
		respondError(c, err)
		return
	}

	borrow, err := h.service.CreateBorrow(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.metrics.loans.WithLabelValues(loanEventBorrowed).Add(float64(borrow.Quantity))

	c.JSON(http.StatusCreated, envelope{Success: true, Message: "Book borrowed", Data: newBorrowJSON(borrow)})
}

func (h *handler) returnBorrow(c *gin.Context) {
	borrow, err := h.service.ReturnBorrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	h.metrics.loans.WithLabelValues(loanEventReturned).Add(float64(borrow.Quantity))

	c.JSON(http.StatusOK, envelope{Success: true, Message: "Book returned", Data: newBorrowJSON(borrow)})
}

func (h *handler) borrowSummary(c *gin.Context) {
	rows, err := h.service.BorrowSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	data := make([]summaryJSON, 0, len(rows))
	for _, row := range rows {
		data = append(data, summaryJSON{
			BookTitle:             row.BookTitle,
			ISBN:                  row.ISBN,
			TotalQuantityBorrowed: row.TotalQuantityBorrowed,
		})
	}

	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, err error) {
	status, body := errorFromErr(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, body)
}

// pageRequest reads page and limit. Missing values default; limit is capped.
func pageRequest(c *gin.Context) (PageRequest, error) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		return PageRequest{}, err
	}

	limit, err := positiveQuery(c, "limit", DefaultPageLimit)
	if err != nil {
		return PageRequest{}, err
	}

	limit = min(limit, MaxPageLimit)
	if page-1 > math.MaxInt/limit {
		return PageRequest{}, library.NewValidationError("page", "Is out of range")
	}

	return PageRequest{Page: page, Limit: limit}, nil
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, library.NewValidationError(key, "Must be a positive whole number")
	}

	return value, nil
}
