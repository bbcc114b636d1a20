// Package sync keeps the user's watchlist and watch history consistent
// across three stores: the optimistic in-memory state served to clients,
// the device-local store used by anonymous sessions, and the per-user
// remote record store used by authenticated sessions. A one-time merge
// runs when a sign-in changes the owner.
package sync

import (
	"context"
	"encoding/json"

	"streamflix/models"
)

// LocalStore is the device-local namespaced store. Reads are infallible by
// contract; malformed content degrades to empty.
type LocalStore interface {
	Read(namespace string) []json.RawMessage
	Write(namespace string, items []json.RawMessage) error
	Clear(namespace string) error
}

// WatchlistStore is the remote record store slice the watchlist
// synchronizer needs.
type WatchlistStore interface {
	SelectWatchlist(ctx context.Context, owner string) ([]models.WatchlistRow, error)
	UpsertWatchlist(ctx context.Context, rows ...models.WatchlistRow) error
	DeleteWatchlist(ctx context.Context, owner string, mediaID int64) error
}

// HistoryStore is the remote record store slice the history synchronizer
// needs.
type HistoryStore interface {
	SelectHistory(ctx context.Context, owner string) ([]models.HistoryRow, error)
	UpsertHistory(ctx context.Context, rows ...models.HistoryRow) error
	DeleteHistory(ctx context.Context, owner string, mediaID int64) error
}
