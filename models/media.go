package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MediaType distinguishes the two catalog namespaces. Catalog ids are only
// unique within one namespace, so it is always carried next to the id.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

var ErrInvalidMediaType = errors.New("media type must be movie or tv")

// ParseMediaType normalises and validates a media type string.
func ParseMediaType(raw string) (MediaType, error) {
	switch MediaType(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaTypeMovie:
		return MediaTypeMovie, nil
	case MediaTypeTV:
		return MediaTypeTV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, raw)
	}
}

// MediaItem is the denormalized catalog snapshot captured when an entry is
// created, so lists render without a second catalog fetch. Field names follow
// the catalog API payload because snapshots round-trip through opaque blobs.
type MediaItem struct {
	ID           int64     `json:"id"`
	MediaType    MediaType `json:"media_type"`
	Title        string    `json:"title,omitempty"`
	Name         string    `json:"name,omitempty"`
	Overview     string    `json:"overview,omitempty"`
	PosterPath   string    `json:"poster_path,omitempty"`
	BackdropPath string    `json:"backdrop_path,omitempty"`
	VoteAverage  float64   `json:"vote_average,omitempty"`
	VoteCount    int64     `json:"vote_count,omitempty"`
	ReleaseDate  string    `json:"release_date,omitempty"`
	FirstAirDate string    `json:"first_air_date,omitempty"`
	GenreIDs     []int64   `json:"genre_ids,omitempty"`
	Popularity   float64   `json:"popularity,omitempty"`
}

// DisplayTitle returns whichever of the movie/TV title fields is populated.
func (m MediaItem) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

var ErrInvalidSnapshot = errors.New("invalid media snapshot")

// DecodeSnapshot deserializes a stored metadata blob into a MediaItem,
// validating the fields the rest of the engine relies on. Unknown shapes are
// rejected here instead of being spread into typed records downstream.
func DecodeSnapshot(raw json.RawMessage) (MediaItem, error) {
	var item MediaItem
	if len(raw) == 0 {
		return MediaItem{}, fmt.Errorf("%w: empty blob", ErrInvalidSnapshot)
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return MediaItem{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if item.ID <= 0 {
		return MediaItem{}, fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	mediaType, err := ParseMediaType(string(item.MediaType))
	if err != nil {
		return MediaItem{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	item.MediaType = mediaType
	return item, nil
}

// MediaPage is one page of a browse or search result.
type MediaPage struct {
	Page         int         `json:"page"`
	Results      []MediaItem `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

// Genre is a catalog genre tag.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Video references a trailer/teaser hosted by an external video site.
type Video struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Site        string `json:"site"`
	Type        string `json:"type"`
	Official    bool   `json:"official"`
	PublishedAt string `json:"published_at,omitempty"`
}

// MovieDetails extends the browse snapshot with detail-page fields.
type MovieDetails struct {
	MediaItem
	Tagline string  `json:"tagline,omitempty"`
	Runtime int     `json:"runtime,omitempty"`
	Status  string  `json:"status,omitempty"`
	IMDBID  string  `json:"imdb_id,omitempty"`
	Genres  []Genre `json:"genres,omitempty"`
}

// TVDetails extends the browse snapshot with series-level fields. The IMDB
// id arrives nested under external_ids rather than at the top level.
type TVDetails struct {
	MediaItem
	Tagline          string      `json:"tagline,omitempty"`
	Status           string      `json:"status,omitempty"`
	NumberOfSeasons  int         `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes int         `json:"number_of_episodes,omitempty"`
	Genres           []Genre     `json:"genres,omitempty"`
	Seasons          []Season    `json:"seasons,omitempty"`
	ExternalIDs      ExternalIDs `json:"external_ids"`
}

// ExternalIDs maps a catalog title to ids in other databases.
type ExternalIDs struct {
	IMDBID string `json:"imdb_id,omitempty"`
}

// Season summarises one season of a series; Episodes is populated only by a
// season-detail lookup.
type Season struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Overview     string    `json:"overview,omitempty"`
	PosterPath   string    `json:"poster_path,omitempty"`
	SeasonNumber int       `json:"season_number"`
	EpisodeCount int       `json:"episode_count,omitempty"`
	AirDate      string    `json:"air_date,omitempty"`
	Episodes     []Episode `json:"episodes,omitempty"`
}

// Episode is a single episode within a season.
type Episode struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Overview      string `json:"overview,omitempty"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	AirDate       string `json:"air_date,omitempty"`
	Runtime       int    `json:"runtime,omitempty"`
	StillPath     string `json:"still_path,omitempty"`
}

// RatingSummary aggregates third-party ratings for a title.
type RatingSummary struct {
	IMDBRating     string `json:"imdbRating,omitempty"`
	IMDBVotes      string `json:"imdbVotes,omitempty"`
	RottenTomatoes string `json:"rottenTomatoes,omitempty"`
	Metacritic     string `json:"metacritic,omitempty"`
}
