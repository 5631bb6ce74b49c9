package domain

// maxVisiblePages is how many page links a pagination control shows.
const maxVisiblePages = 5

// PageWindow describes one page of a listing of Total items.
type PageWindow struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	Start      int   `json:"start"` // zero-based offset of the first item
	End        int   `json:"end"`   // exclusive
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
	Pages      []int `json:"pages"` // page numbers to display
}

// NewPageWindow computes the window for a 1-based page. Pages below 1 clamp
// to 1; pages beyond the last produce an empty window (Start == End).
func NewPageWindow(page, perPage, total int) PageWindow {
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}
	if total < 0 {
		total = 0
	}

	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := max(start, min(start+perPage, total))

	return PageWindow{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		Start:      start,
		End:        end,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
		Pages:      visiblePages(page, totalPages),
	}
}

// Offset is the backend offset for the window.
func (w PageWindow) Offset() int { return w.Start }

// visiblePages returns up to maxVisiblePages page numbers centered on the
// current page where possible, pinned to the first or last pages near the edges.
func visiblePages(current, totalPages int) []int {
	pages := make([]int, 0, maxVisiblePages)
	for i := range min(maxVisiblePages, totalPages) {
		var n int
		switch {
		case current <= 3:
			n = i + 1
		case current >= totalPages-2:
			n = totalPages - 4 + i
		default:
			n = current - 2 + i
		}
		if n < 1 || n > totalPages {
			continue
		}
		pages = append(pages, n)
	}
	return pages
}

// SlicePage returns the items of a fully materialized list that fall inside w.
func SlicePage[T any](items []T, w PageWindow) []T {
	start := min(w.Start, len(items))
	end := min(w.End, len(items))
	return items[start:end]
}
