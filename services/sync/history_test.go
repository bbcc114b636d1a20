package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"streamflix/models"
	"streamflix/services/localstore"
	"streamflix/services/notify"
	"streamflix/services/session"
)

func seedLocalHistory(t *testing.T, store LocalStore, entries ...models.WatchHistoryEntry) {
	t.Helper()
	items := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		blob, err := json.Marshal(entry)
		if err != nil {
			t.Fatalf("marshal entry: %v", err)
		}
		items = append(items, blob)
	}
	if err := store.Write(localstore.HistoryNamespace, items); err != nil {
		t.Fatalf("seed local history: %v", err)
	}
}

func TestHistoryRecordMovesEntryToFront(t *testing.T) {
	h := NewHistory(newTestLocal(t), newFakeRemote(), notify.NewFeed(0))
	h.SetOwner(session.Anonymous())
	h.Flush()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := h.Record(historyEntryAt(603, models.MediaTypeMovie, "The Matrix", base)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.Record(historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad", base.Add(time.Hour))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.Record(historyEntryAt(603, models.MediaTypeMovie, "The Matrix", base.Add(2*time.Hour))); err != nil {
		t.Fatalf("Record rewatch: %v", err)
	}

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after rewatch, got %d", len(entries))
	}
	if entries[0].MediaID != 603 || entries[1].MediaID != 1396 {
		t.Fatalf("expected rewatch to move entry to front, got %+v", entries)
	}
	if !entries[0].LastWatched.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("expected refreshed recency marker, got %v", entries[0].LastWatched)
	}
}

func TestHistoryRecordFillsRecencyMarkers(t *testing.T) {
	h := NewHistory(newTestLocal(t), newFakeRemote(), notify.NewFeed(0))
	h.SetOwner(session.Anonymous())
	h.Flush()

	before := time.Now().UTC()
	if err := h.Record(models.WatchHistoryEntry{MediaID: 603, MediaType: models.MediaTypeMovie, Title: "The Matrix"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries := h.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LastWatched.Before(before) {
		t.Fatalf("expected LastWatched to default to now, got %v", entries[0].LastWatched)
	}
	if entries[0].Timestamp != entries[0].LastWatched.UnixMilli() {
		t.Fatal("expected Timestamp derived from LastWatched")
	}
}

func TestHistoryRecordValidation(t *testing.T) {
	h := NewHistory(newTestLocal(t), newFakeRemote(), notify.NewFeed(0))
	h.SetOwner(session.Anonymous())
	h.Flush()

	if err := h.Record(models.WatchHistoryEntry{MediaType: models.MediaTypeMovie, Title: "No ID"}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := h.Record(models.WatchHistoryEntry{MediaID: 603, MediaType: models.MediaTypeMovie}); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestHistoryRemoveByMediaIDOnly(t *testing.T) {
	h := NewHistory(newTestLocal(t), newFakeRemote(), notify.NewFeed(0))
	h.SetOwner(session.Anonymous())
	h.Flush()

	now := time.Now().UTC()
	if err := h.Record(historyEntryAt(42, models.MediaTypeMovie, "Forty Two", now)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.Record(historyEntryAt(42, models.MediaTypeTV, "Forty Two: The Series", now.Add(time.Minute))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.Record(historyEntryAt(603, models.MediaTypeMovie, "The Matrix", now.Add(2*time.Minute))); err != nil {
		t.Fatalf("Record: %v", err)
	}

	h.Remove(42)
	entries := h.Entries()
	if len(entries) != 1 || entries[0].MediaID != 603 {
		t.Fatalf("expected both type variants of id 42 removed, got %+v", entries)
	}
}

func TestHistoryMergeLocalNewerWins(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()

	remoteWatched := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	remoteEntry := historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad", remoteWatched)
	row, err := remoteEntry.Row("user-1")
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if err := remote.UpsertHistory(context.Background(), row); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	localWatched := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seedLocalHistory(t, local, historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad", localWatched))

	h := NewHistory(local, remote, notify.NewFeed(0))
	h.SetOwner(session.Identity{UserID: "user-1"})
	h.Flush()

	entries := h.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 merged entry, got %+v", entries)
	}
	if !entries[0].LastWatched.Equal(localWatched) {
		t.Fatalf("strictly newer local watch must win, got %v", entries[0].LastWatched)
	}

	stored, ok := remote.historyRow("user-1", models.EntryKey{MediaID: 1396, MediaType: models.MediaTypeTV})
	if !ok {
		t.Fatal("expected remote row to exist")
	}
	if !stored.LastWatched.Equal(localWatched) {
		t.Fatalf("expected remote row updated to local watch time, got %v", stored.LastWatched)
	}
	if items := local.Read(localstore.HistoryNamespace); len(items) != 0 {
		t.Fatalf("local staging must be cleared after merge, got %d items", len(items))
	}
}

func TestHistoryMergeRemoteNewerStands(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()

	remoteWatched := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	row, err := historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad", remoteWatched).Row("user-1")
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if err := remote.UpsertHistory(context.Background(), row); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	remote.historyUpserts = 0

	seedLocalHistory(t, local, historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad", remoteWatched.Add(-time.Hour)))

	h := NewHistory(local, remote, notify.NewFeed(0))
	h.SetOwner(session.Identity{UserID: "user-1"})
	h.Flush()

	entries := h.Entries()
	if len(entries) != 1 || !entries[0].LastWatched.Equal(remoteWatched) {
		t.Fatalf("older local watch must not replace remote, got %+v", entries)
	}
	if remote.historyUpserts != 0 {
		t.Fatalf("older local entry must not be uploaded, got %d upserts", remote.historyUpserts)
	}
}

func TestHistoryMergeEqualTimestampKeepsRemote(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()

	watched := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	remoteEntry := historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad (remote)", watched)
	row, err := remoteEntry.Row("user-1")
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if err := remote.UpsertHistory(context.Background(), row); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	remote.historyUpserts = 0

	seedLocalHistory(t, local, historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad (local)", watched))

	h := NewHistory(local, remote, notify.NewFeed(0))
	h.SetOwner(session.Identity{UserID: "user-1"})
	h.Flush()

	entries := h.Entries()
	if len(entries) != 1 || entries[0].Title != "Breaking Bad (remote)" {
		t.Fatalf("ties must keep the remote entry, got %+v", entries)
	}
	if remote.historyUpserts != 0 {
		t.Fatalf("tie must not trigger an upload, got %d upserts", remote.historyUpserts)
	}
}

func TestHistoryMergeUploadFailureRetainsLocal(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()
	remote.failHistoryUpsert = true
	feed := notify.NewFeed(0)

	seedLocalHistory(t, local, historyEntryAt(603, models.MediaTypeMovie, "The Matrix", time.Now().UTC()))

	h := NewHistory(local, remote, feed)
	h.SetOwner(session.Identity{UserID: "user-1"})
	h.Flush()

	if entries := h.Entries(); len(entries) != 1 || entries[0].MediaID != 603 {
		t.Fatalf("expected local entry in memory despite upload failure, got %+v", entries)
	}
	if items := local.Read(localstore.HistoryNamespace); len(items) != 1 {
		t.Fatalf("local staging must survive a failed upload, got %d items", len(items))
	}
	if !hasErrorNotification(feed) {
		t.Fatal("expected an error notification for the failed sync")
	}
}

func TestHistoryMutationsQueueDuringHydration(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()
	gate := make(chan struct{})
	remote.historyGate = gate

	h := NewHistory(local, remote, notify.NewFeed(0))
	h.SetOwner(session.Identity{UserID: "user-1"})

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := h.Record(historyEntryAt(603, models.MediaTypeMovie, "The Matrix", base)); err != nil {
		t.Fatalf("Record during hydration: %v", err)
	}
	h.Remove(603)
	if err := h.Record(historyEntryAt(1396, models.MediaTypeTV, "Breaking Bad", base.Add(time.Hour))); err != nil {
		t.Fatalf("Record during hydration: %v", err)
	}
	if entries := h.Entries(); len(entries) != 0 {
		t.Fatalf("queued mutations must not apply early, got %+v", entries)
	}

	close(gate)
	h.Flush()

	entries := h.Entries()
	if len(entries) != 1 || entries[0].MediaID != 1396 {
		t.Fatalf("expected queued ops replayed in order, got %+v", entries)
	}
	if _, ok := remote.historyRow("user-1", models.EntryKey{MediaID: 1396, MediaType: models.MediaTypeTV}); !ok {
		t.Fatal("expected replayed record mirrored remotely")
	}
}

func TestHistoryAnonymousRoundTrip(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()

	h := NewHistory(local, remote, notify.NewFeed(0))
	h.SetOwner(session.Anonymous())
	h.Flush()

	if err := h.Record(historyEntryAt(603, models.MediaTypeMovie, "The Matrix", time.Now().UTC())); err != nil {
		t.Fatalf("Record: %v", err)
	}

	reloaded := NewHistory(local, remote, notify.NewFeed(0))
	reloaded.SetOwner(session.Anonymous())
	reloaded.Flush()

	entries := reloaded.Entries()
	if len(entries) != 1 || entries[0].MediaID != 603 {
		t.Fatalf("expected persisted entry 603, got %+v", entries)
	}
}
