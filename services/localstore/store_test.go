package localstore

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
)

func TestReadMissingNamespace(t *testing.T) {
	store, err := NewStoreWithFs(afero.NewMemMapFs(), "data")
	if err != nil {
		t.Fatalf("NewStoreWithFs: %v", err)
	}
	if items := store.Read(WatchlistNamespace); len(items) != 0 {
		t.Fatalf("expected empty read, got %d items", len(items))
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := NewStoreWithFs(afero.NewMemMapFs(), "data")
	if err != nil {
		t.Fatalf("NewStoreWithFs: %v", err)
	}

	items := []json.RawMessage{
		json.RawMessage(`{"mediaId":603,"mediaType":"movie"}`),
		json.RawMessage(`{"mediaId":1396,"mediaType":"tv"}`),
	}
	if err := store.Write(WatchlistNamespace, items); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := store.Read(WatchlistNamespace)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	var first struct {
		MediaID int64 `json:"mediaId"`
	}
	if err := json.Unmarshal(got[0], &first); err != nil {
		t.Fatalf("unmarshal first item: %v", err)
	}
	if first.MediaID != 603 {
		t.Fatalf("expected mediaId 603, got %d", first.MediaID)
	}
}

func TestWriteReplacesContent(t *testing.T) {
	store, err := NewStoreWithFs(afero.NewMemMapFs(), "data")
	if err != nil {
		t.Fatalf("NewStoreWithFs: %v", err)
	}

	if err := store.Write(HistoryNamespace, []json.RawMessage{json.RawMessage(`{"a":1}`)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(HistoryNamespace, nil); err != nil {
		t.Fatalf("Write empty: %v", err)
	}
	if items := store.Read(HistoryNamespace); len(items) != 0 {
		t.Fatalf("expected cleared content, got %d items", len(items))
	}
}

func TestReadMalformedContent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := NewStoreWithFs(fsys, "data")
	if err != nil {
		t.Fatalf("NewStoreWithFs: %v", err)
	}
	if err := afero.WriteFile(fsys, "data/"+WatchlistNamespace+".json", []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed malformed file: %v", err)
	}
	if items := store.Read(WatchlistNamespace); len(items) != 0 {
		t.Fatalf("expected malformed content to read as empty, got %d items", len(items))
	}
}

func TestClear(t *testing.T) {
	store, err := NewStoreWithFs(afero.NewMemMapFs(), "data")
	if err != nil {
		t.Fatalf("NewStoreWithFs: %v", err)
	}
	if err := store.Write(WatchlistNamespace, []json.RawMessage{json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Clear(WatchlistNamespace); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(WatchlistNamespace); err != nil {
		t.Fatalf("Clear missing: %v", err)
	}
	if items := store.Read(WatchlistNamespace); len(items) != 0 {
		t.Fatalf("expected empty after clear, got %d items", len(items))
	}
}

func TestRequiresDirectory(t *testing.T) {
	if _, err := NewStoreWithFs(afero.NewMemMapFs(), "  "); err == nil {
		t.Fatal("expected error for blank directory")
	}
}
