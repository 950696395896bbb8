package library

// BorrowSummary is the server-computed total of borrowed copies per book.
type BorrowSummary struct {
	BookTitle             string
	ISBN                  string
	TotalQuantityBorrowed int
}

// TotalBorrowed sums the borrowed copies over all summary rows.
func TotalBorrowed(rows []BorrowSummary) int {
	total := 0
	for _, row := range rows {
		total += row.TotalQuantityBorrowed
	}

	return total
}
