package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server  ServerSettings  `json:"server"`
	Catalog CatalogSettings `json:"catalog"`
	Ratings RatingsSettings `json:"ratings"`
	Storage StorageSettings `json:"storage"`
	Remote  RemoteSettings  `json:"remote"`
	Log     LogSettings     `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CatalogSettings configures the movie/TV metadata source.
type CatalogSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

// RatingsSettings configures the secondary ratings source. An empty key
// disables ratings enrichment without failing detail lookups.
type RatingsSettings struct {
	OMDBAPIKey string `json:"omdbApiKey"`
}

// StorageSettings locates the device-local data directory used for the
// anonymous store, account profiles, and the persisted session.
type StorageSettings struct {
	Directory string `json:"directory"`
}

// RemoteSettings configures the per-user record store. Driver is "sqlite"
// (embedded, the default) or "postgres".
type RemoteSettings struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type LogSettings struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:  ServerSettings{Host: "0.0.0.0", Port: 7878},
		Catalog: CatalogSettings{TMDBAPIKey: "", Language: "en"},
		Ratings: RatingsSettings{OMDBAPIKey: ""},
		Storage: StorageSettings{Directory: "data"},
		Remote:  RemoteSettings{Driver: "sqlite", DSN: "data/remote.db"},
		Log: LogSettings{
			File:       "data/logs/streamflix.log",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk or creates defaults if missing. Fields added
// after a config was written are backfilled with their defaults.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7878
	}
	if strings.TrimSpace(s.Catalog.Language) == "" {
		s.Catalog.Language = "en"
	}
	if strings.TrimSpace(s.Storage.Directory) == "" {
		s.Storage.Directory = "data"
	}
	if strings.TrimSpace(s.Remote.Driver) == "" {
		s.Remote.Driver = "sqlite"
	}
	if strings.TrimSpace(s.Remote.DSN) == "" && s.Remote.Driver == "sqlite" {
		s.Remote.DSN = filepath.Join(s.Storage.Directory, "remote.db")
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = filepath.Join(s.Storage.Directory, "logs", "streamflix.log")
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
