package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"streamflix/models"
	"streamflix/services/localstore"
	"streamflix/services/notify"
)

// fakeRemote is an in-memory record store with failure injection and an
// optional gate that blocks selects until released.
type fakeRemote struct {
	mu        stdsync.Mutex
	watchlist map[string]map[models.EntryKey]models.WatchlistRow
	history   map[string]map[models.EntryKey]models.HistoryRow

	failWatchlistUpsert bool
	failHistoryUpsert   bool
	watchlistGate       chan struct{}
	historyGate         chan struct{}

	watchlistUpserts int
	historyUpserts   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		watchlist: make(map[string]map[models.EntryKey]models.WatchlistRow),
		history:   make(map[string]map[models.EntryKey]models.HistoryRow),
	}
}

func (f *fakeRemote) SelectWatchlist(_ context.Context, owner string) ([]models.WatchlistRow, error) {
	f.mu.Lock()
	gate := f.watchlistGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WatchlistRow
	for _, row := range f.watchlist[owner] {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeRemote) UpsertWatchlist(_ context.Context, rows ...models.WatchlistRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWatchlistUpsert {
		return errors.New("remote unavailable")
	}
	f.watchlistUpserts++
	for _, row := range rows {
		owner := f.watchlist[row.Owner]
		if owner == nil {
			owner = make(map[models.EntryKey]models.WatchlistRow)
			f.watchlist[row.Owner] = owner
		}
		owner[models.EntryKey{MediaID: row.MediaID, MediaType: row.MediaType}] = row
	}
	return nil
}

func (f *fakeRemote) DeleteWatchlist(_ context.Context, owner string, mediaID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.watchlist[owner] {
		if key.MediaID == mediaID {
			delete(f.watchlist[owner], key)
		}
	}
	return nil
}

func (f *fakeRemote) SelectHistory(_ context.Context, owner string) ([]models.HistoryRow, error) {
	f.mu.Lock()
	gate := f.historyGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.HistoryRow
	for _, row := range f.history[owner] {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeRemote) UpsertHistory(_ context.Context, rows ...models.HistoryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistoryUpsert {
		return errors.New("remote unavailable")
	}
	f.historyUpserts++
	for _, row := range rows {
		owner := f.history[row.Owner]
		if owner == nil {
			owner = make(map[models.EntryKey]models.HistoryRow)
			f.history[row.Owner] = owner
		}
		owner[models.EntryKey{MediaID: row.MediaID, MediaType: row.MediaType}] = row
	}
	return nil
}

func (f *fakeRemote) DeleteHistory(_ context.Context, owner string, mediaID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.history[owner] {
		if key.MediaID == mediaID {
			delete(f.history[owner], key)
		}
	}
	return nil
}

func (f *fakeRemote) watchlistRowCount(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchlist[owner])
}

func (f *fakeRemote) historyRow(owner string, key models.EntryKey) (models.HistoryRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.history[owner][key]
	return row, ok
}

func newTestLocal(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.NewStoreWithFs(afero.NewMemMapFs(), "data")
	if err != nil {
		t.Fatalf("localstore: %v", err)
	}
	return store
}

func movieItem(id int64, title string) models.MediaItem {
	return models.MediaItem{ID: id, MediaType: models.MediaTypeMovie, Title: title}
}

func tvItem(id int64, name string) models.MediaItem {
	return models.MediaItem{ID: id, MediaType: models.MediaTypeTV, Name: name}
}

func watchlistEntryAt(item models.MediaItem, addedAt time.Time) models.WatchlistEntry {
	return models.WatchlistEntry{
		MediaID:   item.ID,
		MediaType: item.MediaType,
		AddedAt:   addedAt,
		Snapshot:  item,
	}
}

func historyEntryAt(id int64, mediaType models.MediaType, title string, watched time.Time) models.WatchHistoryEntry {
	return models.WatchHistoryEntry{
		MediaID:     id,
		MediaType:   mediaType,
		Title:       title,
		Timestamp:   watched.UnixMilli(),
		LastWatched: watched,
	}
}

func hasErrorNotification(feed *notify.Feed) bool {
	for _, n := range feed.Drain() {
		if n.Level == notify.LevelError {
			return true
		}
	}
	return false
}
