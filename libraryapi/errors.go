package libraryapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AntonStoeckl/bookshelf-sync/library"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindServer     ErrorKind = "server"
)

var (
	// ErrNetwork matches failures where no response was received.
	ErrNetwork = errors.New("network error")

	// ErrValidation matches rejected input. It is the same sentinel as library.ErrValidation.
	ErrValidation = library.ErrValidation

	// ErrNotFound matches requests for unknown resources.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches requests that conflict with the current server state.
	ErrConflict = errors.New("conflict")

	// ErrServer matches server failures and unexpected responses.
	ErrServer = errors.New("server error")

	// ErrInvalidBaseURL is returned by New for a base URL that is not absolute.
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// Error describes a failed request.
type Error struct {
	Kind       ErrorKind
	Operation  string
	Method     string
	Path       string
	StatusCode int
	Message    string
	Fields     map[string]string
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("libraryapi %s: %s %s", e.Operation, e.Method, e.Path)

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	default:
		return ErrServer
	}
}

// kindForStatus maps a non-2xx HTTP status onto an error kind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindServer
	}
}

// KindOf returns the kind of a client error, or "" for errors that did not come from this package.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	return ""
}

// FieldErrors returns the per-field messages of a validation failure, whether it was detected
// by the server or by a client-side check.
func FieldErrors(err error) map[string]string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindValidation {
		return apiErr.Fields
	}

	var validationErr *library.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}

	return nil
}
