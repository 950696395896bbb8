// Package librarystore binds the library API to a query cache.
//
// Book reads provide the "Books" tag and borrow reads provide the "Borrows" tag. Book mutations
// invalidate "Books". Creating or returning a borrow changes the number of available copies, so
// those mutations invalidate both tags. A failed mutation invalidates nothing.
package librarystore
