package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Namespaces used by the synchronizers. They match the keys the web client
// used for its device-local storage, so a data directory survives upgrades.
const (
	WatchlistNamespace = "streamflix-watchlist"
	HistoryNamespace   = "streamflix-watch-history"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrNamespaceRequired  = errors.New("namespace is required")
)

// Store is the device-local key-value store. It is the sole store for
// anonymous sessions and the staging area consumed by the sign-in merge.
// Reads never fail: malformed or missing content degrades to an empty
// collection so a corrupt file cannot take the UI down.
type Store struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string
}

// NewStore creates a store rooted at dir on the real filesystem.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithFs(afero.NewOsFs(), dir)
}

// NewStoreWithFs creates a store on the provided filesystem. Tests use an
// in-memory fs.
func NewStoreWithFs(fsys afero.Fs, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}
	return &Store{fs: fsys, dir: dir}, nil
}

// Read returns the raw items stored under the namespace. Missing files and
// unparseable content both yield an empty result; the latter is logged.
func (s *Store) Read(namespace string) []json.RawMessage {
	path, err := s.path(namespace)
	if err != nil {
		log.Printf("[localstore] read %q: %v", namespace, err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		log.Printf("[localstore] read %q: %v", namespace, err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("[localstore] discarding malformed %q content: %v", namespace, err)
		return nil
	}
	return items
}

// Write replaces the namespace content with the provided items. The write is
// synchronous and atomic (temp file + rename).
func (s *Store) Write(namespace string, items []json.RawMessage) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}
	if items == nil {
		items = []json.RawMessage{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %q: %w", namespace, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", namespace, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace %q: %w", namespace, err)
	}
	return nil
}

// Clear removes the namespace content entirely.
func (s *Store) Clear(namespace string) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear %q: %w", namespace, err)
	}
	return nil
}

func (s *Store) path(namespace string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return "", ErrNamespaceRequired
	}
	return filepath.Join(s.dir, namespace+".json"), nil
}
