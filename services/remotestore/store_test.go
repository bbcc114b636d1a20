package remotestore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"streamflix/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func watchlistRow(owner string, id int64, mediaType models.MediaType, addedAt time.Time) models.WatchlistRow {
	blob, _ := json.Marshal(map[string]any{"id": id, "media_type": string(mediaType), "title": "Test"})
	return models.WatchlistRow{
		Owner:     owner,
		MediaID:   id,
		MediaType: mediaType,
		AddedAt:   addedAt,
		Metadata:  blob,
	}
}

func historyRow(owner string, id int64, mediaType models.MediaType, watched time.Time) models.HistoryRow {
	blob, _ := json.Marshal(map[string]any{"mediaId": id, "mediaType": string(mediaType), "title": "Test"})
	return models.HistoryRow{
		Owner:       owner,
		MediaID:     id,
		MediaType:   mediaType,
		LastWatched: watched,
		RecordedAt:  watched.UnixMilli(),
		Metadata:    blob,
	}
}

func TestWatchlistUpsertAndSelect(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.UpsertWatchlist(ctx,
		watchlistRow("user-1", 603, models.MediaTypeMovie, base),
		watchlistRow("user-1", 1396, models.MediaTypeTV, base.Add(time.Hour)),
	); err != nil {
		t.Fatalf("UpsertWatchlist: %v", err)
	}

	rows, err := store.SelectWatchlist(ctx, "user-1")
	if err != nil {
		t.Fatalf("SelectWatchlist: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].MediaID != 1396 {
		t.Fatalf("expected most recently added first, got media_id %d", rows[0].MediaID)
	}
}

func TestWatchlistUpsertReplacesOnConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.UpsertWatchlist(ctx, watchlistRow("user-1", 603, models.MediaTypeMovie, base)); err != nil {
		t.Fatalf("UpsertWatchlist: %v", err)
	}
	if err := store.UpsertWatchlist(ctx, watchlistRow("user-1", 603, models.MediaTypeMovie, base.Add(time.Hour))); err != nil {
		t.Fatalf("UpsertWatchlist replace: %v", err)
	}

	rows, err := store.SelectWatchlist(ctx, "user-1")
	if err != nil {
		t.Fatalf("SelectWatchlist: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after conflicting upsert, got %d", len(rows))
	}
	if !rows[0].AddedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected added_at to be replaced, got %v", rows[0].AddedAt)
	}
}

func TestWatchlistOwnerIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.UpsertWatchlist(ctx, watchlistRow("user-1", 603, models.MediaTypeMovie, now)); err != nil {
		t.Fatalf("UpsertWatchlist: %v", err)
	}
	if err := store.UpsertWatchlist(ctx, watchlistRow("user-2", 27205, models.MediaTypeMovie, now)); err != nil {
		t.Fatalf("UpsertWatchlist: %v", err)
	}

	rows, err := store.SelectWatchlist(ctx, "user-2")
	if err != nil {
		t.Fatalf("SelectWatchlist: %v", err)
	}
	if len(rows) != 1 || rows[0].MediaID != 27205 {
		t.Fatalf("expected only user-2 rows, got %+v", rows)
	}
}

func TestDeleteWatchlistByMediaID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	// Same id as both movie and tv; delete is keyed by id only.
	if err := store.UpsertWatchlist(ctx,
		watchlistRow("user-1", 42, models.MediaTypeMovie, now),
		watchlistRow("user-1", 42, models.MediaTypeTV, now),
		watchlistRow("user-1", 603, models.MediaTypeMovie, now),
	); err != nil {
		t.Fatalf("UpsertWatchlist: %v", err)
	}
	if err := store.DeleteWatchlist(ctx, "user-1", 42); err != nil {
		t.Fatalf("DeleteWatchlist: %v", err)
	}

	rows, err := store.SelectWatchlist(ctx, "user-1")
	if err != nil {
		t.Fatalf("SelectWatchlist: %v", err)
	}
	if len(rows) != 1 || rows[0].MediaID != 603 {
		t.Fatalf("expected only media 603 to survive, got %+v", rows)
	}
}

func TestHistoryOrderingAndReplace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := store.UpsertHistory(ctx,
		historyRow("user-1", 1396, models.MediaTypeTV, jan),
		historyRow("user-1", 603, models.MediaTypeMovie, jun),
	); err != nil {
		t.Fatalf("UpsertHistory: %v", err)
	}

	rows, err := store.SelectHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("SelectHistory: %v", err)
	}
	if len(rows) != 2 || rows[0].MediaID != 603 {
		t.Fatalf("expected most recently watched first, got %+v", rows)
	}

	if err := store.UpsertHistory(ctx, historyRow("user-1", 1396, models.MediaTypeTV, jun.Add(time.Hour))); err != nil {
		t.Fatalf("UpsertHistory replace: %v", err)
	}
	rows, err = store.SelectHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("SelectHistory: %v", err)
	}
	if len(rows) != 2 || rows[0].MediaID != 1396 {
		t.Fatalf("expected replaced row to lead, got %+v", rows)
	}
}

func TestDeleteHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.UpsertHistory(ctx, historyRow("user-1", 1396, models.MediaTypeTV, now)); err != nil {
		t.Fatalf("UpsertHistory: %v", err)
	}
	if err := store.DeleteHistory(ctx, "user-1", 1396); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}
	rows, err := store.SelectHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("SelectHistory: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty history, got %+v", rows)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
