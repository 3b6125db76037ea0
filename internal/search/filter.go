package search

import "cinefinder/searchservice/internal/domain"

// FilterItems keeps the items accepted by the media filter, preserving order.
// The all filter still drops kinds the client cannot render, such as people.
func FilterItems(items []domain.SearchResultItem, filter domain.MediaFilter) []domain.SearchResultItem {
	filter = domain.NormalizeMediaFilter(string(filter))
	filtered := make([]domain.SearchResultItem, 0, len(items))
	for _, item := range items {
		if filter.Accepts(item.MediaKind) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// completeItems drops items that would render as a partial card.
func completeItems(items []domain.SearchResultItem) []domain.SearchResultItem {
	complete := make([]domain.SearchResultItem, 0, len(items))
	for _, item := range items {
		if item.ID == 0 || item.Title == "" {
			continue
		}
		complete = append(complete, item)
	}
	return complete
}
