package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"streamflix/models"
)

var ErrQueryRequired = errors.New("search query is required")

// Service provides browse, search, and detail lookups against the movie/TV
// catalog. Every call goes to the upstream API; the client's throttle keeps
// the request rate within its limits.
type Service struct {
	client *tmdbClient
}

func NewService(apiKey, language string) *Service {
	return &Service{client: newTMDBClient(apiKey, language, "", nil)}
}

// NewServiceWithTransport allows tests to point the client at a fake
// upstream.
func NewServiceWithTransport(apiKey, language, baseURL string, httpc *http.Client) *Service {
	return &Service{client: newTMDBClient(apiKey, language, baseURL, httpc)}
}

// Configured reports whether an API key is present.
func (s *Service) Configured() bool {
	return s.client.isConfigured()
}

func (s *Service) Trending(ctx context.Context, window string, page int) (models.MediaPage, error) {
	return s.client.trending(ctx, window, page)
}

func (s *Service) Popular(ctx context.Context, mediaType models.MediaType, page int) (models.MediaPage, error) {
	return s.client.popular(ctx, mediaType, page)
}

func (s *Service) TopRated(ctx context.Context, mediaType models.MediaType, page int) (models.MediaPage, error) {
	return s.client.topRated(ctx, mediaType, page)
}

func (s *Service) Upcoming(ctx context.Context, page int) (models.MediaPage, error) {
	return s.client.upcoming(ctx, page)
}

func (s *Service) Discover(ctx context.Context, mediaType models.MediaType, genreID int64, page int) (models.MediaPage, error) {
	return s.client.discover(ctx, mediaType, genreID, page)
}

// Search runs a multi-search across movies and series.
func (s *Service) Search(ctx context.Context, query string, page int) (models.MediaPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.MediaPage{}, ErrQueryRequired
	}
	return s.client.search(ctx, query, page)
}

func (s *Service) MovieDetails(ctx context.Context, id int64) (models.MovieDetails, error) {
	return s.client.movieDetails(ctx, id)
}

func (s *Service) TVDetails(ctx context.Context, id int64) (models.TVDetails, error) {
	return s.client.tvDetails(ctx, id)
}

func (s *Service) Season(ctx context.Context, tvID int64, seasonNumber int) (models.Season, error) {
	return s.client.season(ctx, tvID, seasonNumber)
}

func (s *Service) Genres(ctx context.Context, mediaType models.MediaType) ([]models.Genre, error) {
	return s.client.genres(ctx, mediaType)
}

func (s *Service) Videos(ctx context.Context, mediaType models.MediaType, id int64) ([]models.Video, error) {
	return s.client.videos(ctx, mediaType, id)
}
