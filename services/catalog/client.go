package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"streamflix/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
)

var (
	ErrNotConfigured = errors.New("tmdb api key not configured")
	ErrNotFound      = errors.New("title not found")
)

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(apiKey, language, baseURL string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = tmdbBaseURL
	}
	return &tmdbClient{
		apiKey:      strings.TrimSpace(apiKey),
		language:    strings.TrimSpace(language),
		baseURL:     baseURL,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond,
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

func (c *tmdbClient) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", normalizeLanguage(c.language))
	} else {
		params.Set("language", "en-US")
	}
	return c.baseURL + path + "?" + params.Encode()
}

// doGET performs an HTTP GET with rate limiting and retry with exponential
// backoff on transient failures.
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, v any) error {
	var lastErr error
	backoff := 300 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		c.throttleMu.Lock()
		since := time.Since(c.lastRequest)
		if since < c.minInterval {
			time.Sleep(c.minInterval - since)
		}
		c.lastRequest = time.Now()
		c.throttleMu.Unlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[catalog] http error (attempt %d/3): %v", attempt+1, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			log.Printf("[catalog] rate limited or server error (attempt %d/3): status %d", attempt+1, resp.StatusCode)
			lastErr = fmt.Errorf("tmdb request failed: %s", resp.Status)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return ErrNotFound
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("tmdb request failed: %s", resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return err
		}
		return nil
	}

	return lastErr
}

type tmdbListResponse struct {
	Page         int                `json:"page"`
	Results      []models.MediaItem `json:"results"`
	TotalPages   int                `json:"total_pages"`
	TotalResults int                `json:"total_results"`
}

type tmdbGenresResponse struct {
	Genres []models.Genre `json:"genres"`
}

type tmdbVideosResponse struct {
	Results []models.Video `json:"results"`
}

func (c *tmdbClient) list(ctx context.Context, path string, params url.Values, fallbackType models.MediaType) (models.MediaPage, error) {
	if !c.isConfigured() {
		return models.MediaPage{}, ErrNotConfigured
	}
	var payload tmdbListResponse
	if err := c.doGET(ctx, c.endpoint(path, params), &payload); err != nil {
		return models.MediaPage{}, err
	}

	// List endpoints other than trending and multi-search omit media_type.
	items := payload.Results[:0]
	for _, item := range payload.Results {
		if item.MediaType == "" {
			item.MediaType = fallbackType
		}
		if item.MediaType != models.MediaTypeMovie && item.MediaType != models.MediaTypeTV {
			continue
		}
		items = append(items, item)
	}
	return models.MediaPage{
		Page:         payload.Page,
		Results:      items,
		TotalPages:   payload.TotalPages,
		TotalResults: payload.TotalResults,
	}, nil
}

func (c *tmdbClient) trending(ctx context.Context, window string, page int) (models.MediaPage, error) {
	if window != "day" {
		window = "week"
	}
	params := url.Values{}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.list(ctx, "/trending/all/"+window, params, "")
}

func (c *tmdbClient) popular(ctx context.Context, mediaType models.MediaType, page int) (models.MediaPage, error) {
	params := url.Values{}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.list(ctx, "/"+string(mediaType)+"/popular", params, mediaType)
}

func (c *tmdbClient) topRated(ctx context.Context, mediaType models.MediaType, page int) (models.MediaPage, error) {
	params := url.Values{}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.list(ctx, "/"+string(mediaType)+"/top_rated", params, mediaType)
}

func (c *tmdbClient) upcoming(ctx context.Context, page int) (models.MediaPage, error) {
	params := url.Values{}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.list(ctx, "/movie/upcoming", params, models.MediaTypeMovie)
}

func (c *tmdbClient) discover(ctx context.Context, mediaType models.MediaType, genreID int64, page int) (models.MediaPage, error) {
	params := url.Values{}
	if genreID > 0 {
		params.Set("with_genres", strconv.FormatInt(genreID, 10))
	}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	params.Set("sort_by", "popularity.desc")
	return c.list(ctx, "/discover/"+string(mediaType), params, mediaType)
}

func (c *tmdbClient) search(ctx context.Context, query string, page int) (models.MediaPage, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.list(ctx, "/search/multi", params, "")
}

func (c *tmdbClient) movieDetails(ctx context.Context, id int64) (models.MovieDetails, error) {
	if !c.isConfigured() {
		return models.MovieDetails{}, ErrNotConfigured
	}
	var details models.MovieDetails
	if err := c.doGET(ctx, c.endpoint("/movie/"+strconv.FormatInt(id, 10), nil), &details); err != nil {
		return models.MovieDetails{}, err
	}
	details.MediaType = models.MediaTypeMovie
	return details, nil
}

func (c *tmdbClient) tvDetails(ctx context.Context, id int64) (models.TVDetails, error) {
	if !c.isConfigured() {
		return models.TVDetails{}, ErrNotConfigured
	}
	params := url.Values{}
	params.Set("append_to_response", "external_ids")
	var details models.TVDetails
	if err := c.doGET(ctx, c.endpoint("/tv/"+strconv.FormatInt(id, 10), params), &details); err != nil {
		return models.TVDetails{}, err
	}
	details.MediaType = models.MediaTypeTV
	return details, nil
}

func (c *tmdbClient) season(ctx context.Context, tvID int64, seasonNumber int) (models.Season, error) {
	if !c.isConfigured() {
		return models.Season{}, ErrNotConfigured
	}
	path := fmt.Sprintf("/tv/%d/season/%d", tvID, seasonNumber)
	var season models.Season
	if err := c.doGET(ctx, c.endpoint(path, nil), &season); err != nil {
		return models.Season{}, err
	}
	return season, nil
}

func (c *tmdbClient) genres(ctx context.Context, mediaType models.MediaType) ([]models.Genre, error) {
	if !c.isConfigured() {
		return nil, ErrNotConfigured
	}
	var payload tmdbGenresResponse
	if err := c.doGET(ctx, c.endpoint("/genre/"+string(mediaType)+"/list", nil), &payload); err != nil {
		return nil, err
	}
	return payload.Genres, nil
}

func (c *tmdbClient) videos(ctx context.Context, mediaType models.MediaType, id int64) ([]models.Video, error) {
	if !c.isConfigured() {
		return nil, ErrNotConfigured
	}
	path := fmt.Sprintf("/%s/%d/videos", mediaType, id)
	var payload tmdbVideosResponse
	if err := c.doGET(ctx, c.endpoint(path, nil), &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// normalizeLanguage expands a bare ISO 639-1 code to the region form TMDB
// prefers.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if strings.Contains(lang, "-") {
		return lang
	}
	switch strings.ToLower(lang) {
	case "en":
		return "en-US"
	case "de":
		return "de-DE"
	case "fr":
		return "fr-FR"
	case "es":
		return "es-ES"
	case "pt":
		return "pt-BR"
	default:
		return lang
	}
}

// ImageURL builds a CDN URL for a TMDB image path, or "" when the path is
// empty.
func ImageURL(path, size string) string {
	if path == "" {
		return ""
	}
	if size == "" {
		size = "w500"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return tmdbImageBaseURL + "/" + size + path
}
