package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	stdsync "sync"

	"github.com/sourcegraph/conc"

	"streamflix/models"
	"streamflix/services/localstore"
	"streamflix/services/notify"
	"streamflix/services/session"
)

// Watchlist synchronizes the saved-titles collection for the active owner.
//
// Mutations apply to in-memory state immediately and are never rolled back;
// persistence runs as a write-through to the local store for anonymous
// owners and as a background mirror to the remote store for authenticated
// owners. While a hydration is in flight, mutations queue and replay in
// order once the load commits.
type Watchlist struct {
	mu         stdsync.Mutex
	entries    []models.WatchlistEntry
	hydrated   bool
	owner      session.Identity
	generation uint64
	pending    []watchlistOp

	tasks conc.WaitGroup

	local  LocalStore
	remote WatchlistStore
	notify notify.Sink
}

type watchlistOp struct {
	add    *models.WatchlistEntry
	remove int64
}

// NewWatchlist creates an unhydrated synchronizer. Call SetOwner to load
// the initial collection.
func NewWatchlist(local LocalStore, remote WatchlistStore, sink notify.Sink) *Watchlist {
	return &Watchlist{local: local, remote: remote, notify: sink}
}

// SetOwner switches the collection to a new owner. State resets and a
// background hydration starts; results of any in-flight load for a previous
// owner are discarded.
func (w *Watchlist) SetOwner(owner session.Identity) {
	w.mu.Lock()
	w.generation++
	gen := w.generation
	w.owner = owner
	w.entries = nil
	w.hydrated = false
	w.pending = nil
	w.mu.Unlock()

	w.tasks.Go(func() { w.hydrate(owner, gen) })
}

// Entries returns a copy of the in-memory collection, most recently added
// first.
func (w *Watchlist) Entries() []models.WatchlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.WatchlistEntry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Contains reports whether any saved title carries the given media id,
// matching the id-only keying of Add and Remove.
func (w *Watchlist) Contains(mediaID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range w.entries {
		if entry.MediaID == mediaID {
			return true
		}
	}
	return false
}

// Hydrated reports whether the initial load for the current owner has
// committed.
func (w *Watchlist) Hydrated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hydrated
}

// Flush waits for background work (hydration and remote mirrors) to finish.
// Intended for shutdown and tests.
func (w *Watchlist) Flush() {
	w.tasks.Wait()
}

// Add saves a title. Adding a title whose media id is already saved is a
// no-op, regardless of type, mirroring Remove. Validation errors are
// returned synchronously; persistence failures surface as notifications,
// never as rollbacks.
func (w *Watchlist) Add(item models.MediaItem) error {
	entry, err := models.NewWatchlistEntry(item)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if !w.hydrated {
		w.pending = append(w.pending, watchlistOp{add: &entry})
		w.mu.Unlock()
		return nil
	}
	owner := w.owner
	changed := w.applyAdd(entry)
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	if !changed {
		return nil
	}
	w.notify.Success(fmt.Sprintf("Added %q to your watchlist", entry.Snapshot.DisplayTitle()))
	w.persistAdd(owner, entry, snapshot)
	return nil
}

// Remove drops every saved title with the given media id, regardless of
// type. Removing an absent title is a no-op.
func (w *Watchlist) Remove(mediaID int64) {
	w.mu.Lock()
	if !w.hydrated {
		w.pending = append(w.pending, watchlistOp{remove: mediaID})
		w.mu.Unlock()
		return
	}
	owner := w.owner
	removed := w.applyRemove(mediaID)
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	w.notify.Success(fmt.Sprintf("Removed %q from your watchlist", removed[0].Snapshot.DisplayTitle()))
	w.persistRemove(owner, mediaID, snapshot)
}

// applyAdd inserts the entry at the front unless its media id is already
// present. Caller holds mu.
func (w *Watchlist) applyAdd(entry models.WatchlistEntry) bool {
	for _, existing := range w.entries {
		if existing.MediaID == entry.MediaID {
			return false
		}
	}
	w.entries = append([]models.WatchlistEntry{entry}, w.entries...)
	return true
}

// applyRemove drops entries matching the media id and returns them. Caller
// holds mu.
func (w *Watchlist) applyRemove(mediaID int64) []models.WatchlistEntry {
	var kept []models.WatchlistEntry
	var removed []models.WatchlistEntry
	for _, entry := range w.entries {
		if entry.MediaID == mediaID {
			removed = append(removed, entry)
			continue
		}
		kept = append(kept, entry)
	}
	w.entries = kept
	return removed
}

func (w *Watchlist) snapshotLocked() []models.WatchlistEntry {
	out := make([]models.WatchlistEntry, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *Watchlist) persistAdd(owner session.Identity, entry models.WatchlistEntry, snapshot []models.WatchlistEntry) {
	if owner.IsAnonymous() {
		if err := w.writeLocal(snapshot); err != nil {
			log.Printf("[sync] watchlist local write: %v", err)
			w.notify.Error("Couldn't save your watchlist on this device")
		}
		return
	}
	w.tasks.Go(func() {
		row, err := entry.Row(owner.UserID)
		if err != nil {
			log.Printf("[sync] watchlist encode: %v", err)
			return
		}
		if err := w.remote.UpsertWatchlist(context.Background(), row); err != nil {
			log.Printf("[sync] watchlist mirror add %s: %v", entry.Key(), err)
			w.notify.Error("Couldn't sync your watchlist, it will retry on next sign-in")
		}
	})
}

func (w *Watchlist) persistRemove(owner session.Identity, mediaID int64, snapshot []models.WatchlistEntry) {
	if owner.IsAnonymous() {
		if err := w.writeLocal(snapshot); err != nil {
			log.Printf("[sync] watchlist local write: %v", err)
			w.notify.Error("Couldn't save your watchlist on this device")
		}
		return
	}
	w.tasks.Go(func() {
		if err := w.remote.DeleteWatchlist(context.Background(), owner.UserID, mediaID); err != nil {
			log.Printf("[sync] watchlist mirror remove %d: %v", mediaID, err)
		}
	})
}

func (w *Watchlist) hydrate(owner session.Identity, gen uint64) {
	var entries []models.WatchlistEntry
	if owner.IsAnonymous() {
		entries = w.readLocal()
	} else {
		entries = w.mergeAndLoad(owner, gen)
	}
	w.commit(gen, entries)
}

// mergeAndLoad runs the one-time local-to-remote merge for a signed-in
// owner and returns the hydrated collection. On a remote key collision the
// remote entry wins. Local entries are cleared only after their upload
// succeeded; any failure keeps them staged for the next sign-in.
func (w *Watchlist) mergeAndLoad(owner session.Identity, gen uint64) []models.WatchlistEntry {
	ctx := context.Background()
	staged := w.readLocal()

	rows, err := w.remote.SelectWatchlist(ctx, owner.UserID)
	if err != nil {
		// The staged device entries become the view rather than an empty
		// collection; the local store is left untouched so the merge
		// reruns on the next sign-in.
		log.Printf("[sync] watchlist fetch for %s: %v", owner.UserID, err)
		w.notify.Error("Couldn't load your watchlist")
		return staged
	}

	remote := make([]models.WatchlistEntry, 0, len(rows))
	seen := make(map[models.EntryKey]bool, len(rows))
	for _, row := range rows {
		entry, err := models.EntryFromWatchlistRow(row)
		if err != nil {
			log.Printf("[sync] skipping bad watchlist row %d for %s: %v", row.MediaID, owner.UserID, err)
			continue
		}
		remote = append(remote, entry)
		seen[entry.Key()] = true
	}

	var upload []models.WatchlistRow
	merged := remote
	for _, entry := range staged {
		if seen[entry.Key()] {
			continue
		}
		row, err := entry.Row(owner.UserID)
		if err != nil {
			log.Printf("[sync] watchlist encode %s: %v", entry.Key(), err)
			continue
		}
		upload = append(upload, row)
		merged = append(merged, entry)
	}

	if len(upload) == 0 {
		if len(staged) > 0 && w.stillCurrent(gen) {
			// Everything staged already existed remotely.
			if err := w.local.Clear(localstore.WatchlistNamespace); err != nil {
				log.Printf("[sync] watchlist local clear: %v", err)
			}
		}
		sortWatchlist(merged)
		return merged
	}

	if err := w.remote.UpsertWatchlist(ctx, upload...); err != nil {
		log.Printf("[sync] watchlist merge upload for %s: %v", owner.UserID, err)
		w.notify.Error("Couldn't sync your watchlist, it will retry on next sign-in")
		sortWatchlist(merged)
		return merged
	}

	if w.stillCurrent(gen) {
		if err := w.local.Clear(localstore.WatchlistNamespace); err != nil {
			log.Printf("[sync] watchlist local clear: %v", err)
		}
	}

	// Re-fetch so the collection reflects what the remote actually holds.
	rows, err = w.remote.SelectWatchlist(ctx, owner.UserID)
	if err != nil {
		log.Printf("[sync] watchlist refetch for %s: %v", owner.UserID, err)
		sortWatchlist(merged)
		return merged
	}
	refreshed := make([]models.WatchlistEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := models.EntryFromWatchlistRow(row)
		if err != nil {
			continue
		}
		refreshed = append(refreshed, entry)
	}
	sortWatchlist(refreshed)
	return refreshed
}

// commit installs hydrated entries if the owner has not changed since the
// load started, then replays queued mutations in arrival order.
func (w *Watchlist) commit(gen uint64, entries []models.WatchlistEntry) {
	w.mu.Lock()
	if gen != w.generation {
		w.mu.Unlock()
		return
	}
	w.entries = entries
	w.hydrated = true
	pending := w.pending
	w.pending = nil

	owner := w.owner
	type sideEffect struct {
		add    *models.WatchlistEntry
		remove int64
	}
	var effects []sideEffect
	for _, op := range pending {
		if op.add != nil {
			if w.applyAdd(*op.add) {
				effects = append(effects, sideEffect{add: op.add})
			}
			continue
		}
		if removed := w.applyRemove(op.remove); len(removed) > 0 {
			effects = append(effects, sideEffect{remove: op.remove})
		}
	}
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	for _, effect := range effects {
		if effect.add != nil {
			w.persistAdd(owner, *effect.add, snapshot)
			continue
		}
		w.persistRemove(owner, effect.remove, snapshot)
	}
}

func (w *Watchlist) stillCurrent(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen == w.generation
}

func (w *Watchlist) readLocal() []models.WatchlistEntry {
	raw := w.local.Read(localstore.WatchlistNamespace)
	entries := make([]models.WatchlistEntry, 0, len(raw))
	for _, item := range raw {
		entry, err := models.DecodeWatchlistEntry(item)
		if err != nil {
			log.Printf("[sync] skipping bad local watchlist entry: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	sortWatchlist(entries)
	return entries
}

func (w *Watchlist) writeLocal(entries []models.WatchlistEntry) error {
	items := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		blob, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode watchlist entry %s: %w", entry.Key(), err)
		}
		items = append(items, blob)
	}
	return w.local.Write(localstore.WatchlistNamespace, items)
}

func sortWatchlist(entries []models.WatchlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AddedAt.After(entries[j].AddedAt)
	})
}
