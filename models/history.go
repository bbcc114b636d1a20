package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrTitleRequired = errors.New("title is required")

// WatchHistoryEntry records that playback of a title (or one of its episodes)
// was started. LastWatched is the authoritative ordering and conflict field;
// Timestamp keeps the originally recorded epoch-millisecond marker and is
// never used to arbitrate merges.
type WatchHistoryEntry struct {
	MediaID      int64     `json:"mediaId"`
	MediaType    MediaType `json:"mediaType"`
	Title        string    `json:"title"`
	PosterPath   string    `json:"posterPath,omitempty"`
	BackdropPath string    `json:"backdropPath,omitempty"`
	Timestamp    int64     `json:"timestamp"`
	LastWatched  time.Time `json:"lastWatched"`

	// TV only
	SeasonNumber  int    `json:"seasonNumber,omitempty"`
	EpisodeNumber int    `json:"episodeNumber,omitempty"`
	EpisodeTitle  string `json:"episodeTitle,omitempty"`
}

// Key returns the (id, type) identity of the entry.
func (e WatchHistoryEntry) Key() EntryKey {
	return EntryKey{MediaID: e.MediaID, MediaType: e.MediaType}
}

// NormalizeHistoryEntry validates an entry and fills the recency markers when
// the caller did not supply them.
func NormalizeHistoryEntry(entry WatchHistoryEntry) (WatchHistoryEntry, error) {
	if entry.MediaID <= 0 {
		return WatchHistoryEntry{}, fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	mediaType, err := ParseMediaType(string(entry.MediaType))
	if err != nil {
		return WatchHistoryEntry{}, err
	}
	entry.MediaType = mediaType
	if entry.Title == "" {
		return WatchHistoryEntry{}, ErrTitleRequired
	}
	now := time.Now().UTC()
	if entry.LastWatched.IsZero() {
		entry.LastWatched = now
	} else {
		entry.LastWatched = entry.LastWatched.UTC()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = entry.LastWatched.UnixMilli()
	}
	if mediaType != MediaTypeTV {
		entry.SeasonNumber = 0
		entry.EpisodeNumber = 0
		entry.EpisodeTitle = ""
	}
	return entry, nil
}

// DecodeHistoryEntry deserializes a locally persisted entry.
func DecodeHistoryEntry(raw json.RawMessage) (WatchHistoryEntry, error) {
	var entry WatchHistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return WatchHistoryEntry{}, fmt.Errorf("decode history entry: %w", err)
	}
	return NormalizeHistoryEntry(entry)
}

// HistoryRow is the remote record store representation of a history entry.
// LastWatched and RecordedAt are lifted into columns so remote ordering and
// conflict checks run on the row, not the blob.
type HistoryRow struct {
	Owner       string
	MediaID     int64
	MediaType   MediaType
	LastWatched time.Time
	RecordedAt  int64
	Metadata    json.RawMessage
}

// Row converts the entry to its remote representation for the given owner.
func (e WatchHistoryEntry) Row(owner string) (HistoryRow, error) {
	blob, err := json.Marshal(e)
	if err != nil {
		return HistoryRow{}, fmt.Errorf("encode history entry: %w", err)
	}
	return HistoryRow{
		Owner:       owner,
		MediaID:     e.MediaID,
		MediaType:   e.MediaType,
		LastWatched: e.LastWatched,
		RecordedAt:  e.Timestamp,
		Metadata:    blob,
	}, nil
}

// EntryFromHistoryRow decodes a remote row. Column values win over whatever
// the blob claims for the key and recency fields.
func EntryFromHistoryRow(row HistoryRow) (WatchHistoryEntry, error) {
	mediaType, err := ParseMediaType(string(row.MediaType))
	if err != nil {
		return WatchHistoryEntry{}, err
	}
	var entry WatchHistoryEntry
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &entry); err != nil {
			return WatchHistoryEntry{}, fmt.Errorf("decode history row: %w", err)
		}
	}
	entry.MediaID = row.MediaID
	entry.MediaType = mediaType
	entry.LastWatched = row.LastWatched.UTC()
	entry.Timestamp = row.RecordedAt
	return NormalizeHistoryEntry(entry)
}
