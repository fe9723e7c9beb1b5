package domain

// DefaultPageSize matches the page size used by the dashboard lists.
const DefaultPageSize = 21

// Page selects one page of a paginated listing. Zero values mean
// "backend default".
type Page struct {
	Page     int
	PageSize int
	Limit    int
}

// PageMeta is the pagination metadata of a listing response.
type PageMeta struct {
	Total       int `json:"total"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

// HasNext reports whether another page follows the current one.
func (m PageMeta) HasNext() bool {
	return m.CurrentPage < m.TotalPages
}

// NextPage returns the following page number, or 0 when on the last page.
func (m PageMeta) NextPage() int {
	if !m.HasNext() {
		return 0
	}
	return m.CurrentPage + 1
}

// Paginated is one page of results plus its metadata.
type Paginated[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}
