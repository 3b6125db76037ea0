package domain

import "strings"

type SearchQuery struct {
	Text   string
	Page   int
	Filter MediaFilter
}

// Normalize trims the text, clamps the page to >= 1 and defaults the filter.
func (q SearchQuery) Normalize() SearchQuery {
	q.Text = strings.TrimSpace(q.Text)
	if q.Page < 1 {
		q.Page = 1
	}
	q.Filter = NormalizeMediaFilter(string(q.Filter))
	return q
}

type SearchResultItem struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	MediaKind   MediaKind `json:"mediaKind"`
	ReleaseDate string    `json:"releaseDate,omitempty"`
	PosterPath  string    `json:"posterPath,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
}

type PageResult struct {
	Query       string             `json:"query"`
	Filter      MediaFilter        `json:"filter"`
	Items       []SearchResultItem `json:"items"`
	CurrentPage int                `json:"currentPage"`
	TotalPages  int                `json:"totalPages"`
}

type PageWindow struct {
	Current     int   `json:"current"`
	Total       int   `json:"total"`
	PrevEnabled bool  `json:"prevEnabled"`
	NextEnabled bool  `json:"nextEnabled"`
	Pages       []int `json:"pages"`
}

// SearchState is the committed query state of a controller.
type SearchState struct {
	Query  string      `json:"query"`
	Page   int         `json:"page"`
	Filter MediaFilter `json:"filter"`
}

func (s SearchState) HasQuery() bool {
	return s.Query != ""
}
