package tmdb

import (
	"strings"

	"cinefinder/searchservice/internal/domain"
)

// MultiSearchResponse is the response from /search/multi.
type MultiSearchResponse struct {
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
	Results      []MultiResult `json:"results"`
}

// MultiResult is one hit of a multi search. Movies carry title/release_date,
// series carry name/first_air_date, people carry neither.
type MultiResult struct {
	ID           int      `json:"id"`
	MediaType    string   `json:"media_type"`
	Title        *string  `json:"title"`
	Name         *string  `json:"name"`
	ReleaseDate  *string  `json:"release_date"`
	FirstAirDate *string  `json:"first_air_date"`
	PosterPath   *string  `json:"poster_path"`
	VoteAverage  *float64 `json:"vote_average"`
}

// Item converts the hit into a domain item without dropping anything; callers
// filter by kind and completeness afterwards.
func (r MultiResult) Item() domain.SearchResultItem {
	item := domain.SearchResultItem{
		ID:          r.ID,
		Title:       firstNonEmpty(r.Title, r.Name),
		MediaKind:   domain.MediaKind(strings.ToLower(strings.TrimSpace(r.MediaType))),
		ReleaseDate: firstNonEmpty(r.ReleaseDate, r.FirstAirDate),
		PosterPath:  deref(r.PosterPath),
	}
	if r.VoteAverage != nil && *r.VoteAverage >= 0 && *r.VoteAverage <= 10 {
		rating := *r.VoteAverage
		item.Rating = &rating
	}
	return item
}

// Details covers both /movie/{id} and /tv/{id}.
type Details struct {
	ID               int          `json:"id"`
	Title            *string      `json:"title"`
	Name             *string      `json:"name"`
	Overview         *string      `json:"overview"`
	Genres           []Genre      `json:"genres"`
	OriginalLanguage *string      `json:"original_language"`
	VoteAverage      *float64     `json:"vote_average"`
	VoteCount        *int         `json:"vote_count"`
	ReleaseDate      *string      `json:"release_date"`
	FirstAirDate     *string      `json:"first_air_date"`
	PosterPath       *string      `json:"poster_path"`
	ImdbID           *string      `json:"imdb_id"`
	ExternalIDs      *ExternalIDs `json:"external_ids,omitempty"`
}

// IMDbID returns the movie imdb_id or, for series, the appended external id.
func (d Details) IMDbID() string {
	if id := deref(d.ImdbID); id != "" {
		return id
	}
	if d.ExternalIDs != nil {
		return deref(d.ExternalIDs.ImdbID)
	}
	return ""
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ExternalIDs struct {
	ImdbID *string `json:"imdb_id"`
	TvdbID *int    `json:"tvdb_id"`
}

// Images is the response from /{kind}/{id}/images.
type Images struct {
	ID        int     `json:"id"`
	Backdrops []Image `json:"backdrops"`
	Posters   []Image `json:"posters"`
}

type Image struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	VoteAverage float64 `json:"vote_average"`
}

// Videos is the response from /{kind}/{id}/videos.
type Videos struct {
	ID      int     `json:"id"`
	Results []Video `json:"results"`
}

type Video struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// Credits is the response from /{kind}/{id}/credits.
type Credits struct {
	ID   int          `json:"id"`
	Cast []CastMember `json:"cast"`
}

type CastMember struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Character   string  `json:"character"`
	Order       int     `json:"order"`
	ProfilePath *string `json:"profile_path"`
}

// Reviews is the response from /{kind}/{id}/reviews.
type Reviews struct {
	ID           int      `json:"id"`
	Page         int      `json:"page"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
	Results      []Review `json:"results"`
}

type Review struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// ErrorResponse is the error body TMDB returns on non-2xx responses.
type ErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Success       bool   `json:"success"`
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func firstNonEmpty(values ...*string) string {
	for _, value := range values {
		if v := deref(value); v != "" {
			return v
		}
	}
	return ""
}
