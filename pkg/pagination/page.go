package pagination

// Page is the page-number navigation model rendered by the catalog.
type Page struct {
	CurrentPage     int  `json:"currentPage"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	NextPage        int  `json:"nextPage"`
	PreviousPage    int  `json:"previousPage"`
	LastPage        int  `json:"lastPage"`
}

// Compute derives navigation for currentPage given the page size and the
// total number of items. Out-of-range pages are not clamped; they yield an
// empty listing with consistent flags.
func Compute(itemsPerPage, currentPage int, totalItems int64) Page {
	if itemsPerPage <= 0 {
		itemsPerPage = 1
	}
	per := int64(itemsPerPage)
	current := int64(currentPage)
	last := (totalItems + per - 1) / per
	return Page{
		CurrentPage:     currentPage,
		HasNextPage:     per*current < totalItems,
		HasPreviousPage: currentPage > 1,
		NextPage:        currentPage + 1,
		PreviousPage:    currentPage - 1,
		LastPage:        int(last),
	}
}

// Offset returns the number of rows to skip for page (1-based).
func Offset(page, perPage int) int {
	if page < 1 || perPage <= 0 {
		return 0
	}
	return (page - 1) * perPage
}

// ParsePage reads a 1-based page number, defaulting to 1 for missing or
// invalid values.
func ParsePage(value int) int {
	if value < 1 {
		return 1
	}
	return value
}
