package libraryserver

import (
	"errors"
	"net/http"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// toHTTPStatus maps a service error to its status code and error code.
func toHTTPStatus(err error) (int, string) {
	switch {
	case errors.Is(err, library.ErrValidation), errors.Is(err, ErrInsufficientCopies):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrBorrowNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ErrAlreadyReturned), errors.Is(err, ErrBookHasLoans):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func errorFromErr(err error) (int, errorEnvelope) {
	status, code := toHTTPStatus(err)

	message := err.Error()
	var fields map[string]string

	var validation *library.ValidationError
	switch {
	case errors.As(err, &validation):
		message = "Validation failed"
		fields = validation.Fields
	case errors.Is(err, ErrInsufficientCopies):
		message = "Validation failed"
		fields = map[string]string{"quantity": "Not enough copies available"}
	case status == http.StatusInternalServerError:
		message = "Internal server error"
	}

	return status, errorEnvelope{
		Success: false,
		Message: message,
		Error: errorJSON{
			Code:    code,
			Message: message,
			Fields:  fields,
		},
	}
}
