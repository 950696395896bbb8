package library

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
	HasNext    bool
}

// HasPrevious reports whether a page before this one exists.
func (p Pagination) HasPrevious() bool {
	return p.Page > 1
}
