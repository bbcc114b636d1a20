package remotestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"streamflix/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrUnsupportedDriver = errors.New("unsupported remote store driver")

// Store is the per-user record store backing authenticated sessions. Every
// row is scoped to an owner id; the store itself has no notion of the
// active session.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the configured backend and applies migrations. Driver is
// "sqlite" (embedded) or "postgres".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		db       *sql.DB
		postgres bool
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3", "":
		db, err = sql.Open("sqlite3", dsn)
		if err == nil {
			// SQLite serializes writers; a single connection avoids
			// SQLITE_BUSY under concurrent mirror tasks.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres, "pgx", "postgresql":
		db, err = sql.Open("pgx", dsn)
		postgres = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping remote store: %w", err)
	}

	store := &Store{db: db, postgres: postgres}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[remotestore] connected (%s)", driver)
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS watchlist_records (
			owner TEXT NOT NULL,
			media_id BIGINT NOT NULL,
			media_type TEXT NOT NULL,
			added_at TIMESTAMP NOT NULL,
			metadata TEXT NOT NULL,
			PRIMARY KEY (owner, media_id, media_type)
		)`,
		`CREATE TABLE IF NOT EXISTS history_records (
			owner TEXT NOT NULL,
			media_id BIGINT NOT NULL,
			media_type TEXT NOT NULL,
			last_watched TIMESTAMP NOT NULL,
			recorded_at BIGINT NOT NULL,
			metadata TEXT NOT NULL,
			PRIMARY KEY (owner, media_id, media_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_owner_added
			ON watchlist_records (owner, added_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_owner_watched
			ON history_records (owner, last_watched)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate remote store: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to the $N form pgx expects. SQLite takes
// the queries as written.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

// SelectWatchlist returns the owner's watchlist rows, most recently added
// first.
func (s *Store) SelectWatchlist(ctx context.Context, owner string) ([]models.WatchlistRow, error) {
	query := s.rebind(`SELECT media_id, media_type, added_at, metadata
		FROM watchlist_records WHERE owner = ? ORDER BY added_at DESC`)

	var result []models.WatchlistRow
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, owner)
		if err != nil {
			return err
		}
		defer rows.Close()

		var out []models.WatchlistRow
		for rows.Next() {
			row := models.WatchlistRow{Owner: owner}
			var mediaType, metadata string
			if err := rows.Scan(&row.MediaID, &mediaType, &row.AddedAt, &metadata); err != nil {
				return err
			}
			row.MediaType = models.MediaType(mediaType)
			row.Metadata = []byte(metadata)
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select watchlist: %w", err)
	}
	return result, nil
}

// UpsertWatchlist writes the rows in a single transaction. Existing rows for
// the same (owner, media_id, media_type) key are replaced.
func (s *Store) UpsertWatchlist(ctx context.Context, rows ...models.WatchlistRow) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.rebind(`INSERT INTO watchlist_records (owner, media_id, media_type, added_at, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner, media_id, media_type)
		DO UPDATE SET added_at = excluded.added_at, metadata = excluded.metadata`)

	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, query,
				row.Owner, row.MediaID, string(row.MediaType), row.AddedAt.UTC(), string(row.Metadata)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("upsert watchlist: %w", err)
	}
	return nil
}

// DeleteWatchlist removes the owner's rows for the given media id. Removal is
// keyed by id alone, so a movie and a show sharing an id are both dropped.
func (s *Store) DeleteWatchlist(ctx context.Context, owner string, mediaID int64) error {
	query := s.rebind(`DELETE FROM watchlist_records WHERE owner = ? AND media_id = ?`)
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, owner, mediaID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete watchlist: %w", err)
	}
	return nil
}

// SelectHistory returns the owner's history rows, most recently watched first.
func (s *Store) SelectHistory(ctx context.Context, owner string) ([]models.HistoryRow, error) {
	query := s.rebind(`SELECT media_id, media_type, last_watched, recorded_at, metadata
		FROM history_records WHERE owner = ? ORDER BY last_watched DESC`)

	var result []models.HistoryRow
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, owner)
		if err != nil {
			return err
		}
		defer rows.Close()

		var out []models.HistoryRow
		for rows.Next() {
			row := models.HistoryRow{Owner: owner}
			var mediaType, metadata string
			if err := rows.Scan(&row.MediaID, &mediaType, &row.LastWatched, &row.RecordedAt, &metadata); err != nil {
				return err
			}
			row.MediaType = models.MediaType(mediaType)
			row.Metadata = []byte(metadata)
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return result, nil
}

// UpsertHistory writes the rows in a single transaction, replacing existing
// rows for the same key.
func (s *Store) UpsertHistory(ctx context.Context, rows ...models.HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	query := s.rebind(`INSERT INTO history_records (owner, media_id, media_type, last_watched, recorded_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, media_id, media_type)
		DO UPDATE SET last_watched = excluded.last_watched,
			recorded_at = excluded.recorded_at,
			metadata = excluded.metadata`)

	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, query,
				row.Owner, row.MediaID, string(row.MediaType), row.LastWatched.UTC(), row.RecordedAt, string(row.Metadata)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

// DeleteHistory removes the owner's rows for the given media id. Keyed by id
// alone, matching DeleteWatchlist.
func (s *Store) DeleteHistory(ctx context.Context, owner string, mediaID int64) error {
	query := s.rebind(`DELETE FROM history_records WHERE owner = ? AND media_id = ?`)
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, owner, mediaID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
