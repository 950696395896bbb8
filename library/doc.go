// Package library holds the domain types of the library client: books, borrows and the borrow summary.
//
// Values that can be derived are never stored. A Book is available exactly when it has copies left,
// and a Borrow is overdue exactly when it is still active and its due date has passed. Both are computed
// on read (Book.Available, Borrow.Classify), so no code path can let them drift from the data they
// are derived from.
//
// Unsaved form state lives in drafts (BookDraft, BorrowDraft). Drafts are client-only and never
// mixed with persisted entities.
package library
