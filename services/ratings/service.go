package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"streamflix/models"
)

const omdbBaseURL = "https://www.omdbapi.com/"

var (
	ErrNotConfigured = errors.New("omdb api key not configured")
	ErrIMDBIDInvalid = errors.New("imdb id must start with tt")
)

// Service enriches catalog titles with third-party ratings looked up by IMDB
// id. Lookups are best-effort; detail pages render without them.
type Service struct {
	apiKey  string
	baseURL string
	httpc   *http.Client

	cacheMu sync.Mutex
	cache   map[string]cachedRating
}

type cachedRating struct {
	summary models.RatingSummary
	expires time.Time
}

const cacheTTL = 12 * time.Hour

func NewService(apiKey string) *Service {
	return NewServiceWithTransport(apiKey, "", nil)
}

// NewServiceWithTransport allows tests to point the client at a fake
// upstream.
func NewServiceWithTransport(apiKey, baseURL string, httpc *http.Client) *Service {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = omdbBaseURL
	}
	return &Service{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		httpc:   httpc,
		cache:   make(map[string]cachedRating),
	}
}

// Configured reports whether an API key is present.
func (s *Service) Configured() bool {
	return s.apiKey != ""
}

type omdbResponse struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	IMDBRating string `json:"imdbRating"`
	IMDBVotes  string `json:"imdbVotes"`
	Metascore  string `json:"Metascore"`
	Ratings    []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
}

// Lookup fetches the rating summary for an IMDB id.
func (s *Service) Lookup(ctx context.Context, imdbID string) (models.RatingSummary, error) {
	if !s.Configured() {
		return models.RatingSummary{}, ErrNotConfigured
	}
	imdbID = strings.TrimSpace(imdbID)
	if !strings.HasPrefix(imdbID, "tt") {
		return models.RatingSummary{}, fmt.Errorf("%w: %q", ErrIMDBIDInvalid, imdbID)
	}

	s.cacheMu.Lock()
	if entry, ok := s.cache[imdbID]; ok && time.Now().Before(entry.expires) {
		s.cacheMu.Unlock()
		return entry.summary, nil
	}
	s.cacheMu.Unlock()

	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("i", imdbID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.RatingSummary{}, err
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return models.RatingSummary{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return models.RatingSummary{}, fmt.Errorf("omdb request failed: %s", resp.Status)
	}

	var payload omdbResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.RatingSummary{}, err
	}
	if !strings.EqualFold(payload.Response, "True") {
		return models.RatingSummary{}, fmt.Errorf("omdb: %s", payload.Error)
	}

	summary := models.RatingSummary{
		IMDBRating: cleanValue(payload.IMDBRating),
		IMDBVotes:  cleanValue(payload.IMDBVotes),
		Metacritic: cleanValue(payload.Metascore),
	}
	for _, rating := range payload.Ratings {
		if rating.Source == "Rotten Tomatoes" {
			summary.RottenTomatoes = cleanValue(rating.Value)
		}
	}

	s.cacheMu.Lock()
	s.cache[imdbID] = cachedRating{summary: summary, expires: time.Now().Add(cacheTTL)}
	s.cacheMu.Unlock()
	return summary, nil
}

// cleanValue drops OMDB's "N/A" placeholder.
func cleanValue(v string) string {
	if v == "N/A" {
		return ""
	}
	return v
}
