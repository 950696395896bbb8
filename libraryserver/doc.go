// Package libraryserver is a reference implementation of the library REST API.
//
// It serves books and borrow records under /api with the same envelope, pagination and error
// shapes the client understands, and keeps the copy accounting consistent: borrowing takes copies
// away from a book, returning gives them back. Storage is pluggable through Repository.
package libraryserver
