// Package render maps domain values to presentation descriptors. It performs
// no I/O and holds no mutable state.
package render

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cinefinder/searchservice/internal/domain"
)

const (
	DefaultImageBaseURL = "https://image.tmdb.org/t/p"
	DefaultPlaceholder  = "img/no-image.png"

	NotAvailable = "N/A"
	NoDate       = "No date"

	SizeCardPoster   = "w342"
	SizeDetailPoster = "w500"
	SizeBackdrop     = "w780"
	SizeProfile      = "w185"

	youtubeEmbedBase = "https://www.youtube.com/embed/"
	imdbTitleBase    = "https://www.imdb.com/title/"
	whatsappShare    = "https://api.whatsapp.com/send"
	sharePrefix      = "Watch this: "
)

// Section kinds in the order they appear in a detail view.
const (
	SectionGallery = "gallery"
	SectionCast    = "cast"
	SectionTrailer = "trailer"
	SectionReviews = "reviews"
	SectionLinks   = "links"
)

const (
	ButtonPrev = "prev"
	ButtonPage = "page"
	ButtonNext = "next"
)

type Card struct {
	ID        int              `json:"id"`
	MediaKind domain.MediaKind `json:"mediaKind"`
	Title     string           `json:"title"`
	PosterURL string           `json:"posterUrl"`
	Rating    string           `json:"rating"`
	Date      string           `json:"date"`
}

type Button struct {
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Page     int    `json:"page"`
	Active   bool   `json:"active,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

type OverviewBlock struct {
	Title       string `json:"title"`
	PosterURL   string `json:"posterUrl"`
	Synopsis    string `json:"synopsis,omitempty"`
	Genres      string `json:"genres,omitempty"`
	Language    string `json:"language,omitempty"`
	Vote        string `json:"vote"`
	VoteCount   int    `json:"voteCount,omitempty"`
	ReleaseDate string `json:"releaseDate"`
}

type CastCard struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	PhotoURL  string `json:"photoUrl"`
}

type ReviewBlock struct {
	Author    string `json:"author,omitempty"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

type Link struct {
	Kind string `json:"kind"`
	Href string `json:"href"`
}

// Section is one optional block of a detail view; only the field matching
// Kind is set.
type Section struct {
	Kind       string        `json:"kind"`
	Images     []string      `json:"images,omitempty"`
	Cast       []CastCard    `json:"cast,omitempty"`
	TrailerURL string        `json:"trailerUrl,omitempty"`
	Reviews    []ReviewBlock `json:"reviews,omitempty"`
	Links      []Link        `json:"links,omitempty"`
}

type DetailView struct {
	ID        int              `json:"id"`
	MediaKind domain.MediaKind `json:"mediaKind"`
	Overview  OverviewBlock    `json:"overview"`
	Sections  []Section        `json:"sections"`
}

type Renderer struct {
	imageBaseURL string
	placeholder  string
}

func NewRenderer(imageBaseURL, placeholder string) *Renderer {
	imageBaseURL = strings.TrimRight(strings.TrimSpace(imageBaseURL), "/")
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}
	placeholder = strings.TrimSpace(placeholder)
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Renderer{imageBaseURL: imageBaseURL, placeholder: placeholder}
}

// ImageURL joins size and path onto the image host, or returns the placeholder
// when path is empty.
func (r *Renderer) ImageURL(size, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return r.placeholder
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.imageBaseURL + "/" + size + path
}

func (r *Renderer) Cards(items []domain.SearchResultItem) []Card {
	cards := make([]Card, 0, len(items))
	for _, item := range items {
		date := strings.TrimSpace(item.ReleaseDate)
		if date == "" {
			date = NoDate
		}
		cards = append(cards, Card{
			ID:        item.ID,
			MediaKind: item.MediaKind,
			Title:     item.Title,
			PosterURL: r.ImageURL(SizeCardPoster, item.PosterPath),
			Rating:    formatVote(item.Rating),
			Date:      date,
		})
	}
	return cards
}

// Pagination renders prev, one button per window page and next. An empty
// window renders nothing.
func (r *Renderer) Pagination(window domain.PageWindow) []Button {
	if len(window.Pages) == 0 {
		return []Button{}
	}
	buttons := make([]Button, 0, len(window.Pages)+2)
	buttons = append(buttons, Button{
		Kind:     ButtonPrev,
		Label:    "Previous",
		Page:     window.Current - 1,
		Disabled: !window.PrevEnabled,
	})
	for _, page := range window.Pages {
		buttons = append(buttons, Button{
			Kind:   ButtonPage,
			Label:  strconv.Itoa(page),
			Page:   page,
			Active: page == window.Current,
		})
	}
	buttons = append(buttons, Button{
		Kind:     ButtonNext,
		Label:    "Next",
		Page:     window.Current + 1,
		Disabled: !window.NextEnabled,
	})
	return buttons
}

// Detail renders the overview followed by the present sections in fixed order.
func (r *Renderer) Detail(model domain.DetailViewModel) DetailView {
	view := DetailView{
		ID:        model.ID,
		MediaKind: model.MediaKind,
		Overview:  r.overview(model.Overview),
		Sections:  []Section{},
	}

	if model.Gallery != nil {
		images := make([]string, 0, len(model.Gallery.Backdrops))
		for _, path := range model.Gallery.Backdrops {
			images = append(images, r.ImageURL(SizeBackdrop, path))
		}
		view.Sections = append(view.Sections, Section{Kind: SectionGallery, Images: images})
	}
	if model.Cast != nil {
		cast := make([]CastCard, 0, len(model.Cast.Members))
		for _, member := range model.Cast.Members {
			cast = append(cast, CastCard{
				Name:      member.Name,
				Character: member.Character,
				PhotoURL:  r.ImageURL(SizeProfile, member.ProfilePath),
			})
		}
		view.Sections = append(view.Sections, Section{Kind: SectionCast, Cast: cast})
	}
	if model.Trailer != nil {
		view.Sections = append(view.Sections, Section{
			Kind:       SectionTrailer,
			TrailerURL: youtubeEmbedBase + url.PathEscape(model.Trailer.Key),
		})
	}
	if model.Reviews != nil {
		reviews := make([]ReviewBlock, 0, len(model.Reviews.Entries))
		for _, entry := range model.Reviews.Entries {
			reviews = append(reviews, ReviewBlock{
				Author:    entry.Author,
				Text:      entry.Excerpt,
				Truncated: entry.Truncated,
			})
		}
		view.Sections = append(view.Sections, Section{Kind: SectionReviews, Reviews: reviews})
	}
	if model.ExternalLink != nil {
		imdbURL := imdbTitleBase + url.PathEscape(model.ExternalLink.IMDbID)
		view.Sections = append(view.Sections, Section{
			Kind: SectionLinks,
			Links: []Link{
				{Kind: "imdb", Href: imdbURL},
				{Kind: "whatsapp", Href: ShareURL(model.Overview.Title, imdbURL)},
			},
		})
	}
	return view
}

// ShareURL builds a WhatsApp share link whose text carries the title and the
// IMDb page on separate lines.
func ShareURL(title, imdbURL string) string {
	text := sharePrefix + title + "\n" + imdbURL
	return whatsappShare + "?" + url.Values{"text": {text}}.Encode()
}

func (r *Renderer) overview(overview domain.Overview) OverviewBlock {
	block := OverviewBlock{
		Title:       overview.Title,
		PosterURL:   r.ImageURL(SizeDetailPoster, overview.PosterPath),
		Synopsis:    overview.Synopsis,
		Genres:      strings.Join(overview.Genres, ", "),
		Language:    upperLanguage(overview.OriginalLanguage),
		Vote:        formatVote(overview.VoteAverage),
		ReleaseDate: overview.ReleaseDate,
	}
	if block.ReleaseDate == "" {
		block.ReleaseDate = NoDate
	}
	if overview.VoteCount != nil {
		block.VoteCount = *overview.VoteCount
	}
	return block
}

func formatVote(vote *float64) string {
	if vote == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*vote, 'f', 1, 64)
}

func upperLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	// Casers carry state and are not shared between goroutines.
	return cases.Upper(language.Und).String(code)
}
