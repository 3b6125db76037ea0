package domain

// DetailViewModel is the composite detail payload for one item. Overview is always
// present; every other section is nil when the upstream data for it is missing.
type DetailViewModel struct {
	ID           int           `json:"id"`
	MediaKind    MediaKind     `json:"mediaKind"`
	Overview     Overview      `json:"overview"`
	Gallery      *Gallery      `json:"gallery,omitempty"`
	Cast         *Cast         `json:"cast,omitempty"`
	Trailer      *Trailer      `json:"trailer,omitempty"`
	Reviews      *Reviews      `json:"reviews,omitempty"`
	ExternalLink *ExternalLink `json:"externalLink,omitempty"`
}

type Overview struct {
	Title            string   `json:"title"`
	Synopsis         string   `json:"synopsis,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	OriginalLanguage string   `json:"originalLanguage,omitempty"`
	VoteAverage      *float64 `json:"voteAverage,omitempty"`
	VoteCount        *int     `json:"voteCount,omitempty"`
	ReleaseDate      string   `json:"releaseDate,omitempty"`
	PosterPath       string   `json:"posterPath,omitempty"`
}

type Gallery struct {
	Backdrops []string `json:"backdrops"`
}

type CastMember struct {
	Name        string `json:"name"`
	Character   string `json:"character,omitempty"`
	ProfilePath string `json:"profilePath"`
}

type Cast struct {
	Members []CastMember `json:"members"`
}

type Trailer struct {
	Name string `json:"name,omitempty"`
	Key  string `json:"key"`
	Site string `json:"site"`
}

type Review struct {
	Author    string `json:"author,omitempty"`
	Excerpt   string `json:"excerpt"`
	Truncated bool   `json:"truncated"`
}

type Reviews struct {
	Entries []Review `json:"entries"`
}

type ExternalLink struct {
	IMDbID string `json:"imdbId"`
}
