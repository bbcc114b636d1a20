package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryKey uniquely identifies an entry within one owner's collection.
type EntryKey struct {
	MediaID   int64
	MediaType MediaType
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s:%d", k.MediaType, k.MediaID)
}

// WatchlistEntry represents a media title saved by the user for quick access.
// The snapshot is captured at add-time so the list renders without another
// catalog round trip.
type WatchlistEntry struct {
	MediaID   int64     `json:"mediaId"`
	MediaType MediaType `json:"mediaType"`
	AddedAt   time.Time `json:"addedAt"`
	Snapshot  MediaItem `json:"snapshot"`
}

// Key returns the (id, type) identity of the entry.
func (e WatchlistEntry) Key() EntryKey {
	return EntryKey{MediaID: e.MediaID, MediaType: e.MediaType}
}

// NewWatchlistEntry builds an entry from a catalog snapshot.
func NewWatchlistEntry(item MediaItem) (WatchlistEntry, error) {
	if item.ID <= 0 {
		return WatchlistEntry{}, fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	mediaType, err := ParseMediaType(string(item.MediaType))
	if err != nil {
		return WatchlistEntry{}, err
	}
	item.MediaType = mediaType
	return WatchlistEntry{
		MediaID:   item.ID,
		MediaType: mediaType,
		AddedAt:   time.Now().UTC(),
		Snapshot:  item,
	}, nil
}

// DecodeWatchlistEntry deserializes a locally persisted entry, validating the
// snapshot rather than trusting the stored shape.
func DecodeWatchlistEntry(raw json.RawMessage) (WatchlistEntry, error) {
	var entry WatchlistEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return WatchlistEntry{}, fmt.Errorf("decode watchlist entry: %w", err)
	}

	// Older local payloads stored the bare catalog item without the envelope.
	if entry.MediaID == 0 {
		item, err := DecodeSnapshot(raw)
		if err != nil {
			return WatchlistEntry{}, err
		}
		return WatchlistEntry{
			MediaID:   item.ID,
			MediaType: item.MediaType,
			AddedAt:   time.Now().UTC(),
			Snapshot:  item,
		}, nil
	}

	mediaType, err := ParseMediaType(string(entry.MediaType))
	if err != nil {
		return WatchlistEntry{}, err
	}
	entry.MediaType = mediaType
	entry.Snapshot.ID = entry.MediaID
	entry.Snapshot.MediaType = mediaType
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	return entry, nil
}

// WatchlistRow is the remote record store representation of an entry: the
// conflict key columns plus the snapshot as an opaque blob.
type WatchlistRow struct {
	Owner     string
	MediaID   int64
	MediaType MediaType
	AddedAt   time.Time
	Metadata  json.RawMessage
}

// Row converts the entry to its remote representation for the given owner.
func (e WatchlistEntry) Row(owner string) (WatchlistRow, error) {
	blob, err := json.Marshal(e.Snapshot)
	if err != nil {
		return WatchlistRow{}, fmt.Errorf("encode watchlist snapshot: %w", err)
	}
	return WatchlistRow{
		Owner:     owner,
		MediaID:   e.MediaID,
		MediaType: e.MediaType,
		AddedAt:   e.AddedAt,
		Metadata:  blob,
	}, nil
}

// EntryFromWatchlistRow decodes a remote row back into an entry. The key
// columns are authoritative; the blob only supplies display fields.
func EntryFromWatchlistRow(row WatchlistRow) (WatchlistEntry, error) {
	mediaType, err := ParseMediaType(string(row.MediaType))
	if err != nil {
		return WatchlistEntry{}, err
	}
	var item MediaItem
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &item); err != nil {
			return WatchlistEntry{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	}
	item.ID = row.MediaID
	item.MediaType = mediaType
	row.MediaType = mediaType
	addedAt := row.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	return WatchlistEntry{
		MediaID:   row.MediaID,
		MediaType: row.MediaType,
		AddedAt:   addedAt,
		Snapshot:  item,
	}, nil
}
