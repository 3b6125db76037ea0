package search

import "cinefinder/searchservice/internal/domain"

const DefaultMaxButtons = 7

// Window computes the page numbers to display around current. The window is
// min(maxButtons, total) wide and always contains current once it is clamped
// into [1, total].
func Window(current, total, maxButtons int) domain.PageWindow {
	if maxButtons <= 0 {
		maxButtons = DefaultMaxButtons
	}
	if total <= 0 {
		return domain.PageWindow{Current: max(current, 1), Pages: []int{}}
	}
	current = min(max(current, 1), total)

	start := max(1, current-maxButtons/2)
	end := min(total, start+maxButtons-1)
	start = max(1, end-maxButtons+1)

	pages := make([]int, 0, end-start+1)
	for page := start; page <= end; page++ {
		pages = append(pages, page)
	}
	return domain.PageWindow{
		Current:     current,
		Total:       total,
		PrevEnabled: current > 1,
		NextEnabled: current < total,
		Pages:       pages,
	}
}
