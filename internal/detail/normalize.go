package detail

import (
	"strings"
	"unicode/utf8"

	"cinefinder/searchservice/internal/domain"
	"cinefinder/searchservice/internal/providers/tmdb"
)

const (
	UntitledPlaceholder = "Untitled"
	TruncationMarker    = "..."
)

// Limits bounds the optional sections of a detail view.
type Limits struct {
	GalleryMax    int
	CastMax       int
	ReviewsMax    int
	ReviewExcerpt int
	TrailerSite   string
	TrailerType   string
}

func DefaultLimits() Limits {
	return Limits{
		GalleryMax:    10,
		CastMax:       7,
		ReviewsMax:    2,
		ReviewExcerpt: 360,
		TrailerSite:   "YouTube",
		TrailerType:   "Trailer",
	}
}

func (l Limits) withDefaults() Limits {
	defaults := DefaultLimits()
	if l.GalleryMax <= 0 {
		l.GalleryMax = defaults.GalleryMax
	}
	if l.CastMax <= 0 {
		l.CastMax = defaults.CastMax
	}
	if l.ReviewsMax <= 0 {
		l.ReviewsMax = defaults.ReviewsMax
	}
	if l.ReviewExcerpt <= 0 {
		l.ReviewExcerpt = defaults.ReviewExcerpt
	}
	if strings.TrimSpace(l.TrailerSite) == "" {
		l.TrailerSite = defaults.TrailerSite
	}
	if strings.TrimSpace(l.TrailerType) == "" {
		l.TrailerType = defaults.TrailerType
	}
	return l
}

// Normalize merges the five sub-resources into a view model. Every fallback for
// missing upstream data is applied here; a missing section leaves its pointer
// nil and never affects the others.
func Normalize(kind domain.MediaKind, id int, raw Raw, limits Limits) domain.DetailViewModel {
	limits = limits.withDefaults()
	return domain.DetailViewModel{
		ID:           id,
		MediaKind:    kind,
		Overview:     normalizeOverview(raw.Details),
		Gallery:      normalizeGallery(raw.Images, limits.GalleryMax),
		Cast:         normalizeCast(raw.Credits, limits.CastMax),
		Trailer:      pickTrailer(raw.Videos, limits.TrailerSite, limits.TrailerType),
		Reviews:      normalizeReviews(raw.Reviews, limits.ReviewsMax, limits.ReviewExcerpt),
		ExternalLink: normalizeExternalLink(raw.Details),
	}
}

func normalizeOverview(details tmdb.Details) domain.Overview {
	overview := domain.Overview{
		Title:            firstNonBlank(details.Title, details.Name),
		Synopsis:         trimmed(details.Overview),
		OriginalLanguage: trimmed(details.OriginalLanguage),
		ReleaseDate:      firstNonBlank(details.ReleaseDate, details.FirstAirDate),
		PosterPath:       trimmed(details.PosterPath),
	}
	if overview.Title == "" {
		overview.Title = UntitledPlaceholder
	}
	for _, genre := range details.Genres {
		if name := strings.TrimSpace(genre.Name); name != "" {
			overview.Genres = append(overview.Genres, name)
		}
	}
	if details.VoteAverage != nil && *details.VoteAverage >= 0 && *details.VoteAverage <= 10 {
		vote := *details.VoteAverage
		overview.VoteAverage = &vote
	}
	if details.VoteCount != nil && *details.VoteCount >= 0 {
		count := *details.VoteCount
		overview.VoteCount = &count
	}
	return overview
}

func normalizeGallery(images tmdb.Images, limit int) *domain.Gallery {
	backdrops := make([]string, 0, min(len(images.Backdrops), limit))
	for _, image := range images.Backdrops {
		if len(backdrops) == limit {
			break
		}
		if path := strings.TrimSpace(image.FilePath); path != "" {
			backdrops = append(backdrops, path)
		}
	}
	if len(backdrops) == 0 {
		return nil
	}
	return &domain.Gallery{Backdrops: backdrops}
}

// normalizeCast keeps the first limit billed members and drops the ones
// without a profile image. It does not pad from further down the list.
func normalizeCast(credits tmdb.Credits, limit int) *domain.Cast {
	billed := credits.Cast
	if len(billed) > limit {
		billed = billed[:limit]
	}
	members := make([]domain.CastMember, 0, len(billed))
	for _, member := range billed {
		profile := trimmed(member.ProfilePath)
		if profile == "" {
			continue
		}
		members = append(members, domain.CastMember{
			Name:        strings.TrimSpace(member.Name),
			Character:   strings.TrimSpace(member.Character),
			ProfilePath: profile,
		})
	}
	if len(members) == 0 {
		return nil
	}
	return &domain.Cast{Members: members}
}

func pickTrailer(videos tmdb.Videos, site, videoType string) *domain.Trailer {
	for _, video := range videos.Results {
		key := strings.TrimSpace(video.Key)
		if key == "" {
			continue
		}
		if video.Site != site || video.Type != videoType {
			continue
		}
		return &domain.Trailer{
			Name: strings.TrimSpace(video.Name),
			Key:  key,
			Site: site,
		}
	}
	return nil
}

func normalizeReviews(reviews tmdb.Reviews, limit, excerptRunes int) *domain.Reviews {
	entries := make([]domain.Review, 0, min(len(reviews.Results), limit))
	for _, review := range reviews.Results {
		if len(entries) == limit {
			break
		}
		content := strings.TrimSpace(review.Content)
		if content == "" {
			continue
		}
		excerpt, truncated := Truncate(content, excerptRunes)
		entries = append(entries, domain.Review{
			Author:    strings.TrimSpace(review.Author),
			Excerpt:   excerpt,
			Truncated: truncated,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return &domain.Reviews{Entries: entries}
}

func normalizeExternalLink(details tmdb.Details) *domain.ExternalLink {
	id := details.IMDbID()
	if id == "" {
		return nil
	}
	return &domain.ExternalLink{IMDbID: id}
}

// Truncate cuts text to limit runes and appends the marker, but only when text
// is longer than limit.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]) + TruncationMarker, true
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func firstNonBlank(values ...*string) string {
	for _, value := range values {
		if v := trimmed(value); v != "" {
			return v
		}
	}
	return ""
}
