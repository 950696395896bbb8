// Package libraryapi is the remote data client of the library REST API.
//
// Every server operation is one method on Client and one HTTP round trip. Nothing is cached and
// nothing is retried here; caching and invalidation belong to the querycache and librarystore
// packages.
//
// Failures are returned as *Error, classified by Kind. Each kind has a sentinel so callers can use
// errors.Is:
//
//	ErrNetwork     the request never produced a response
//	ErrValidation  400 or 422, with per-field messages when the server sends them
//	ErrNotFound    404
//	ErrConflict    409, e.g. returning a borrow twice
//	ErrServer      5xx, any other unexpected status and undecodable bodies
//
// ErrValidation is library.ErrValidation, so a server-side rejection and a client-side pre-check
// match the same sentinel. Context cancellation is passed through unclassified.
//
// The decoder accepts the response shapes the API has used over time: identities as "_id" or
// "id", enveloped or bare payloads, and borrows with the tri-state "status" or the older
// "returned" flag.
package libraryapi
