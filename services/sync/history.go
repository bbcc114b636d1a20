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

// History synchronizes the watch-history collection for the active owner.
// It follows the same hydration, queueing, and mirroring rules as Watchlist;
// the differences are in the semantics: recording is never a no-op (a
// re-watch moves the entry to the front with a fresh recency marker), and
// the sign-in merge arbitrates key collisions by last-watched time instead
// of always preferring the remote side.
type History struct {
	mu         stdsync.Mutex
	entries    []models.WatchHistoryEntry
	hydrated   bool
	owner      session.Identity
	generation uint64
	pending    []historyOp

	tasks conc.WaitGroup

	local  LocalStore
	remote HistoryStore
	notify notify.Sink
}

type historyOp struct {
	record *models.WatchHistoryEntry
	remove int64
}

// NewHistory creates an unhydrated synchronizer. Call SetOwner to load the
// initial collection.
func NewHistory(local LocalStore, remote HistoryStore, sink notify.Sink) *History {
	return &History{local: local, remote: remote, notify: sink}
}

// SetOwner switches the collection to a new owner, resetting state and
// starting a background hydration.
func (h *History) SetOwner(owner session.Identity) {
	h.mu.Lock()
	h.generation++
	gen := h.generation
	h.owner = owner
	h.entries = nil
	h.hydrated = false
	h.pending = nil
	h.mu.Unlock()

	h.tasks.Go(func() { h.hydrate(owner, gen) })
}

// Entries returns a copy of the collection, most recently watched first.
func (h *History) Entries() []models.WatchHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.WatchHistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Hydrated reports whether the initial load for the current owner has
// committed.
func (h *History) Hydrated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hydrated
}

// Flush waits for background work to finish.
func (h *History) Flush() {
	h.tasks.Wait()
}

// Record notes that playback started. The entry moves to the front of the
// collection even if the title was already there; its recency markers are
// refreshed when the caller left them zero.
func (h *History) Record(entry models.WatchHistoryEntry) error {
	entry, err := models.NormalizeHistoryEntry(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if !h.hydrated {
		h.pending = append(h.pending, historyOp{record: &entry})
		h.mu.Unlock()
		return nil
	}
	owner := h.owner
	h.applyRecord(entry)
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	h.persistRecord(owner, entry, snapshot)
	return nil
}

// Remove drops every history entry with the given media id, regardless of
// type. Removing an absent entry is a no-op.
func (h *History) Remove(mediaID int64) {
	h.mu.Lock()
	if !h.hydrated {
		h.pending = append(h.pending, historyOp{remove: mediaID})
		h.mu.Unlock()
		return
	}
	owner := h.owner
	removed := h.applyRemove(mediaID)
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	if !removed {
		return
	}
	h.persistRemove(owner, mediaID, snapshot)
}

// applyRecord replaces any entry with the same key and puts the new one at
// the front. Caller holds mu.
func (h *History) applyRecord(entry models.WatchHistoryEntry) {
	kept := make([]models.WatchHistoryEntry, 0, len(h.entries)+1)
	kept = append(kept, entry)
	for _, existing := range h.entries {
		if existing.Key() == entry.Key() {
			continue
		}
		kept = append(kept, existing)
	}
	h.entries = kept
}

// applyRemove drops entries matching the media id. Caller holds mu.
func (h *History) applyRemove(mediaID int64) bool {
	var kept []models.WatchHistoryEntry
	removed := false
	for _, entry := range h.entries {
		if entry.MediaID == mediaID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	h.entries = kept
	return removed
}

func (h *History) snapshotLocked() []models.WatchHistoryEntry {
	out := make([]models.WatchHistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) persistRecord(owner session.Identity, entry models.WatchHistoryEntry, snapshot []models.WatchHistoryEntry) {
	if owner.IsAnonymous() {
		if err := h.writeLocal(snapshot); err != nil {
			log.Printf("[sync] history local write: %v", err)
			h.notify.Error("Couldn't save your watch history on this device")
		}
		return
	}
	h.tasks.Go(func() {
		row, err := entry.Row(owner.UserID)
		if err != nil {
			log.Printf("[sync] history encode: %v", err)
			return
		}
		if err := h.remote.UpsertHistory(context.Background(), row); err != nil {
			log.Printf("[sync] history mirror record %s: %v", entry.Key(), err)
			h.notify.Error("Couldn't sync your watch history, it will retry on next sign-in")
		}
	})
}

func (h *History) persistRemove(owner session.Identity, mediaID int64, snapshot []models.WatchHistoryEntry) {
	if owner.IsAnonymous() {
		if err := h.writeLocal(snapshot); err != nil {
			log.Printf("[sync] history local write: %v", err)
			h.notify.Error("Couldn't save your watch history on this device")
		}
		return
	}
	h.tasks.Go(func() {
		if err := h.remote.DeleteHistory(context.Background(), owner.UserID, mediaID); err != nil {
			log.Printf("[sync] history mirror remove %d: %v", mediaID, err)
		}
	})
}

func (h *History) hydrate(owner session.Identity, gen uint64) {
	var entries []models.WatchHistoryEntry
	if owner.IsAnonymous() {
		entries = h.readLocal()
	} else {
		entries = h.mergeAndLoad(owner, gen)
	}
	h.commit(gen, entries)
}

// mergeAndLoad runs the one-time merge for a signed-in owner. A staged local
// entry is uploaded when the remote has no entry for its key, or when the
// local one was watched strictly later; otherwise the remote entry stands.
// Local entries are cleared only after the upload succeeded.
func (h *History) mergeAndLoad(owner session.Identity, gen uint64) []models.WatchHistoryEntry {
	ctx := context.Background()
	staged := h.readLocal()

	rows, err := h.remote.SelectHistory(ctx, owner.UserID)
	if err != nil {
		// The staged device entries become the view rather than an empty
		// collection; the local store is left untouched so the merge
		// reruns on the next sign-in.
		log.Printf("[sync] history fetch for %s: %v", owner.UserID, err)
		h.notify.Error("Couldn't load your watch history")
		return staged
	}

	remote := make(map[models.EntryKey]models.WatchHistoryEntry, len(rows))
	order := make([]models.WatchHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := models.EntryFromHistoryRow(row)
		if err != nil {
			log.Printf("[sync] skipping bad history row %d for %s: %v", row.MediaID, owner.UserID, err)
			continue
		}
		remote[entry.Key()] = entry
		order = append(order, entry)
	}

	var upload []models.HistoryRow
	merged := make(map[models.EntryKey]models.WatchHistoryEntry, len(order)+len(staged))
	for _, entry := range order {
		merged[entry.Key()] = entry
	}
	for _, entry := range staged {
		existing, ok := remote[entry.Key()]
		if ok && !entry.LastWatched.After(existing.LastWatched) {
			continue
		}
		row, err := entry.Row(owner.UserID)
		if err != nil {
			log.Printf("[sync] history encode %s: %v", entry.Key(), err)
			continue
		}
		upload = append(upload, row)
		merged[entry.Key()] = entry
	}

	if len(upload) == 0 {
		if len(staged) > 0 && h.stillCurrent(gen) {
			// Remote already covered everything staged locally.
			if err := h.local.Clear(localstore.HistoryNamespace); err != nil {
				log.Printf("[sync] history local clear: %v", err)
			}
		}
		return sortedHistory(merged)
	}

	if err := h.remote.UpsertHistory(ctx, upload...); err != nil {
		log.Printf("[sync] history merge upload for %s: %v", owner.UserID, err)
		h.notify.Error("Couldn't sync your watch history, it will retry on next sign-in")
		return sortedHistory(merged)
	}

	if h.stillCurrent(gen) {
		if err := h.local.Clear(localstore.HistoryNamespace); err != nil {
			log.Printf("[sync] history local clear: %v", err)
		}
	}

	rows, err = h.remote.SelectHistory(ctx, owner.UserID)
	if err != nil {
		log.Printf("[sync] history refetch for %s: %v", owner.UserID, err)
		return sortedHistory(merged)
	}
	refreshed := make([]models.WatchHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := models.EntryFromHistoryRow(row)
		if err != nil {
			continue
		}
		refreshed = append(refreshed, entry)
	}
	sortHistorySlice(refreshed)
	return refreshed
}

func (h *History) commit(gen uint64, entries []models.WatchHistoryEntry) {
	h.mu.Lock()
	if gen != h.generation {
		h.mu.Unlock()
		return
	}
	h.entries = entries
	h.hydrated = true
	pending := h.pending
	h.pending = nil

	owner := h.owner
	type sideEffect struct {
		record *models.WatchHistoryEntry
		remove int64
	}
	var effects []sideEffect
	for _, op := range pending {
		if op.record != nil {
			h.applyRecord(*op.record)
			effects = append(effects, sideEffect{record: op.record})
			continue
		}
		if h.applyRemove(op.remove) {
			effects = append(effects, sideEffect{remove: op.remove})
		}
	}
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	for _, effect := range effects {
		if effect.record != nil {
			h.persistRecord(owner, *effect.record, snapshot)
			continue
		}
		h.persistRemove(owner, effect.remove, snapshot)
	}
}

func (h *History) stillCurrent(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return gen == h.generation
}

func (h *History) readLocal() []models.WatchHistoryEntry {
	raw := h.local.Read(localstore.HistoryNamespace)
	entries := make([]models.WatchHistoryEntry, 0, len(raw))
	for _, item := range raw {
		entry, err := models.DecodeHistoryEntry(item)
		if err != nil {
			log.Printf("[sync] skipping bad local history entry: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	sortHistorySlice(entries)
	return entries
}

func (h *History) writeLocal(entries []models.WatchHistoryEntry) error {
	items := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		blob, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode history entry %s: %w", entry.Key(), err)
		}
		items = append(items, blob)
	}
	return h.local.Write(localstore.HistoryNamespace, items)
}

func sortedHistory(byKey map[models.EntryKey]models.WatchHistoryEntry) []models.WatchHistoryEntry {
	out := make([]models.WatchHistoryEntry, 0, len(byKey))
	for _, entry := range byKey {
		out = append(out, entry)
	}
	sortHistorySlice(out)
	return out
}

func sortHistorySlice(entries []models.WatchHistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastWatched.After(entries[j].LastWatched)
	})
}
