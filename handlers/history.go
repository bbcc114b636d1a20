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

type historySyncer interface {
	Entries() []models.WatchHistoryEntry
	Record(entry models.WatchHistoryEntry) error
	Remove(mediaID int64)
	Hydrated() bool
}

var _ historySyncer = (*sync.History)(nil)

type HistoryHandler struct {
	Syncer historySyncer
}

func NewHistoryHandler(syncer historySyncer) *HistoryHandler {
	return &HistoryHandler{Syncer: syncer}
}

type historyResponse struct {
	Entries  []models.WatchHistoryEntry `json:"entries"`
	Hydrated bool                       `json:"hydrated"`
}

// List returns the collection, most recently watched first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{
		Entries:  h.Syncer.Entries(),
		Hydrated: h.Syncer.Hydrated(),
	}
	if resp.Entries == nil {
		resp.Entries = []models.WatchHistoryEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Record notes that playback started. Omitted recency markers default to the
// current time.
func (h *HistoryHandler) Record(w http.ResponseWriter, r *http.Request) {
	var entry models.WatchHistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Syncer.Record(entry); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, models.ErrInvalidSnapshot),
			errors.Is(err, models.ErrInvalidMediaType),
			errors.Is(err, models.ErrTitleRequired):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Remove drops every history entry with the given media id.
func (h *HistoryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || mediaID <= 0 {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}

	h.Syncer.Remove(mediaID)
	w.WriteHeader(http.StatusAccepted)
}
