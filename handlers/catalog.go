package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"streamflix/models"
	"streamflix/services/catalog"
	"streamflix/services/ratings"
)

type catalogService interface {
	Trending(ctx context.Context, window string, page int) (models.MediaPage, error)
	Popular(ctx context.Context, mediaType models.MediaType, page int) (models.MediaPage, error)
	TopRated(ctx context.Context, mediaType models.MediaType, page int) (models.MediaPage, error)
	Upcoming(ctx context.Context, page int) (models.MediaPage, error)
	Discover(ctx context.Context, mediaType models.MediaType, genreID int64, page int) (models.MediaPage, error)
	Search(ctx context.Context, query string, page int) (models.MediaPage, error)
	MovieDetails(ctx context.Context, id int64) (models.MovieDetails, error)
	TVDetails(ctx context.Context, id int64) (models.TVDetails, error)
	Season(ctx context.Context, tvID int64, seasonNumber int) (models.Season, error)
	Genres(ctx context.Context, mediaType models.MediaType) ([]models.Genre, error)
	Videos(ctx context.Context, mediaType models.MediaType, id int64) ([]models.Video, error)
}

type ratingsService interface {
	Configured() bool
	Lookup(ctx context.Context, imdbID string) (models.RatingSummary, error)
}

var (
	_ catalogService = (*catalog.Service)(nil)
	_ ratingsService = (*ratings.Service)(nil)
)

type CatalogHandler struct {
	Catalog catalogService
	Ratings ratingsService
}

func NewCatalogHandler(catalogSvc catalogService, ratingsSvc ratingsService) *CatalogHandler {
	return &CatalogHandler{Catalog: catalogSvc, Ratings: ratingsSvc}
}

func (h *CatalogHandler) writePage(w http.ResponseWriter, page models.MediaPage, err error) {
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	if page.Results == nil {
		page.Results = []models.MediaItem{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func catalogStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, catalog.ErrQueryRequired), errors.Is(err, models.ErrInvalidMediaType):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func mediaTypeVar(w http.ResponseWriter, r *http.Request) (models.MediaType, bool) {
	mediaType, err := models.ParseMediaType(mux.Vars(r)["type"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return mediaType, true
}

func idVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *CatalogHandler) Trending(w http.ResponseWriter, r *http.Request) {
	page, err := h.Catalog.Trending(r.Context(), r.URL.Query().Get("window"), pageParam(r))
	h.writePage(w, page, err)
}

func (h *CatalogHandler) Popular(w http.ResponseWriter, r *http.Request) {
	mediaType, ok := mediaTypeVar(w, r)
	if !ok {
		return
	}
	page, err := h.Catalog.Popular(r.Context(), mediaType, pageParam(r))
	h.writePage(w, page, err)
}

func (h *CatalogHandler) TopRated(w http.ResponseWriter, r *http.Request) {
	mediaType, ok := mediaTypeVar(w, r)
	if !ok {
		return
	}
	page, err := h.Catalog.TopRated(r.Context(), mediaType, pageParam(r))
	h.writePage(w, page, err)
}

func (h *CatalogHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	page, err := h.Catalog.Upcoming(r.Context(), pageParam(r))
	h.writePage(w, page, err)
}

func (h *CatalogHandler) Discover(w http.ResponseWriter, r *http.Request) {
	mediaType, ok := mediaTypeVar(w, r)
	if !ok {
		return
	}
	var genreID int64
	if raw := r.URL.Query().Get("genre"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid genre id", http.StatusBadRequest)
			return
		}
		genreID = parsed
	}
	page, err := h.Catalog.Discover(r.Context(), mediaType, genreID, pageParam(r))
	h.writePage(w, page, err)
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, err := h.Catalog.Search(r.Context(), r.URL.Query().Get("q"), pageParam(r))
	h.writePage(w, page, err)
}

type movieDetailsResponse struct {
	models.MovieDetails
	Ratings *models.RatingSummary `json:"ratings,omitempty"`
}

// MovieDetails returns the detail payload, enriched with third-party
// ratings when the ratings source is configured. Rating failures degrade to
// a payload without ratings.
func (h *CatalogHandler) MovieDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r)
	if !ok {
		return
	}

	details, err := h.Catalog.MovieDetails(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}

	resp := movieDetailsResponse{MovieDetails: details}
	if h.Ratings.Configured() && details.IMDBID != "" {
		if summary, err := h.Ratings.Lookup(r.Context(), details.IMDBID); err == nil {
			resp.Ratings = &summary
		} else {
			log.Printf("[catalog] ratings lookup for %s: %v", details.IMDBID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type tvDetailsResponse struct {
	models.TVDetails
	Ratings *models.RatingSummary `json:"ratings,omitempty"`
}

func (h *CatalogHandler) TVDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r)
	if !ok {
		return
	}

	details, err := h.Catalog.TVDetails(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}

	resp := tvDetailsResponse{TVDetails: details}
	if h.Ratings.Configured() && details.ExternalIDs.IMDBID != "" {
		if summary, err := h.Ratings.Lookup(r.Context(), details.ExternalIDs.IMDBID); err == nil {
			resp.Ratings = &summary
		} else {
			log.Printf("[catalog] ratings lookup for %s: %v", details.ExternalIDs.IMDBID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *CatalogHandler) Season(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r)
	if !ok {
		return
	}
	seasonNumber, err := strconv.Atoi(mux.Vars(r)["season"])
	if err != nil || seasonNumber < 0 {
		http.Error(w, "invalid season number", http.StatusBadRequest)
		return
	}

	season, err := h.Catalog.Season(r.Context(), id, seasonNumber)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(season)
}

func (h *CatalogHandler) Genres(w http.ResponseWriter, r *http.Request) {
	mediaType, ok := mediaTypeVar(w, r)
	if !ok {
		return
	}
	genres, err := h.Catalog.Genres(r.Context(), mediaType)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	if genres == nil {
		genres = []models.Genre{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(genres)
}

func (h *CatalogHandler) Videos(w http.ResponseWriter, r *http.Request) {
	mediaType, ok := mediaTypeVar(w, r)
	if !ok {
		return
	}
	id, ok := idVar(w, r)
	if !ok {
		return
	}

	videos, err := h.Catalog.Videos(r.Context(), mediaType, id)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(videos)
}
