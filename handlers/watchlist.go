package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"streamflix/models"
	"streamflix/services/sync"
)

type watchlistSyncer interface {
	Entries() []models.WatchlistEntry
	Add(item models.MediaItem) error
	Remove(mediaID int64)
	Contains(mediaID int64) bool
	Hydrated() bool
}

var _ watchlistSyncer = (*sync.Watchlist)(nil)

type WatchlistHandler struct {
	Syncer watchlistSyncer
}

func NewWatchlistHandler(syncer watchlistSyncer) *WatchlistHandler {
	return &WatchlistHandler{Syncer: syncer}
}

type watchlistResponse struct {
	Entries  []models.WatchlistEntry `json:"entries"`
	Hydrated bool                    `json:"hydrated"`
}

// List returns the in-memory collection. Hydrated is false while the initial
// load for the current owner is still in flight.
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := watchlistResponse{
		Entries:  h.Syncer.Entries(),
		Hydrated: h.Syncer.Hydrated(),
	}
	if resp.Entries == nil {
		resp.Entries = []models.WatchlistEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Add saves a title from its catalog snapshot. The mutation is optimistic;
// a 202 means it was accepted, not that it is durably mirrored.
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var item models.MediaItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Syncer.Add(item); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrInvalidSnapshot) || errors.Is(err, models.ErrInvalidMediaType) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Remove drops every saved entry with the given media id.
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || mediaID <= 0 {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}

	h.Syncer.Remove(mediaID)
	w.WriteHeader(http.StatusAccepted)
}

// Contains reports whether a title with the given media id is saved.
func (h *WatchlistHandler) Contains(w http.ResponseWriter, r *http.Request) {
	mediaID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || mediaID <= 0 {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"contains": h.Syncer.Contains(mediaID),
	})
}
