package domain

import "strings"

type MediaKind string

const (
	MediaKindMovie MediaKind = "movie"
	MediaKindTV    MediaKind = "tv"
)

// Valid reports whether the kind is one the client can render.
func (k MediaKind) Valid() bool {
	return k == MediaKindMovie || k == MediaKindTV
}

func ParseMediaKind(raw string) (MediaKind, bool) {
	kind := MediaKind(strings.ToLower(strings.TrimSpace(raw)))
	return kind, kind.Valid()
}

type MediaFilter string

const (
	MediaFilterAll   MediaFilter = "all"
	MediaFilterMovie MediaFilter = "movie"
	MediaFilterTV    MediaFilter = "tv"
)

func NormalizeMediaFilter(raw string) MediaFilter {
	switch MediaFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaFilterMovie:
		return MediaFilterMovie
	case MediaFilterTV:
		return MediaFilterTV
	default:
		return MediaFilterAll
	}
}

// ParseMediaFilter is the strict form of NormalizeMediaFilter: empty input is
// all, unknown input is rejected.
func ParseMediaFilter(raw string) (MediaFilter, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return MediaFilterAll, true
	}
	filter := NormalizeMediaFilter(value)
	return filter, string(filter) == value
}

// Accepts reports whether an item of the given kind passes the filter.
func (f MediaFilter) Accepts(kind MediaKind) bool {
	switch f {
	case MediaFilterMovie:
		return kind == MediaKindMovie
	case MediaFilterTV:
		return kind == MediaKindTV
	default:
		return kind.Valid()
	}
}
