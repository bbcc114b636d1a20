package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"streamflix/models"
)

var ErrStorageDirNotSet = errors.New("storage directory not provided")

// Identity names the owner of the synchronized collections. The zero value
// is the anonymous identity.
type Identity struct {
	UserID string `json:"userId"`
}

// Anonymous returns the identity used when no account is signed in.
func Anonymous() Identity {
	return Identity{}
}

// IsAnonymous reports whether the identity has no signed-in account.
func (id Identity) IsAnonymous() bool {
	return id.UserID == ""
}

// Accounts is the slice of the accounts service the session needs.
type Accounts interface {
	Get(id string) (models.Account, error)
	Verify(id, pin string) (models.Account, error)
}

// Listener is invoked on every identity change, including the initial replay
// at subscribe time. Calls are serialized; a listener never observes two
// changes concurrently.
type Listener func(Identity)

// Service is the single authority over the active identity. All ownership
// changes flow through it so every subscriber observes the same sequence of
// identities.
type Service struct {
	// transitions is held across an entire identity change, from the state
	// write through persistence and listener dispatch, so overlapping
	// sign-ins and sign-outs reach subscribers in the order they took
	// effect. mu alone guards the fields for cheap reads.
	transitions sync.Mutex

	mu        sync.Mutex
	current   Identity
	listeners []Listener
	accounts  Accounts
	filePath  string
}

// NewService restores the persisted session, if any, and returns the
// service. A persisted account that no longer verifies falls back to
// anonymous.
func NewService(storageDir string, accounts Accounts) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirNotSet
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	s := &Service{
		accounts: accounts,
		filePath: filepath.Join(storageDir, "session.json"),
	}
	s.restore()
	return s, nil
}

// Current returns the active identity.
func (s *Service) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers a listener and immediately replays the current
// identity to it so late subscribers converge.
func (s *Service) Subscribe(listener Listener) {
	s.transitions.Lock()
	defer s.transitions.Unlock()

	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	current := s.current
	s.mu.Unlock()
	listener(current)
}

// SignIn switches the session to the given account after verifying its PIN.
// Signing in to the already-active account is a no-op.
func (s *Service) SignIn(accountID, pin string) (models.Account, error) {
	account, err := s.accounts.Verify(accountID, pin)
	if err != nil {
		return models.Account{}, err
	}
	s.setIdentity(Identity{UserID: account.ID})
	return account, nil
}

// SignOut reverts the session to anonymous.
func (s *Service) SignOut() {
	s.setIdentity(Anonymous())
}

func (s *Service) setIdentity(next Identity) {
	s.transitions.Lock()
	defer s.transitions.Unlock()

	s.mu.Lock()
	if s.current == next {
		s.mu.Unlock()
		return
	}
	s.current = next
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if err := s.persist(next); err != nil {
		log.Printf("[session] persist: %v", err)
	}
	for _, listener := range listeners {
		listener(next)
	}
}

func (s *Service) restore() {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Printf("[session] restore: %v", err)
		return
	}
	var saved Identity
	if err := json.Unmarshal(data, &saved); err != nil {
		log.Printf("[session] discarding malformed session file: %v", err)
		return
	}
	if saved.IsAnonymous() {
		return
	}
	// Accounts stay signed in across restarts; the PIN gated the original
	// sign-in. Only a deleted account drops back to anonymous.
	if _, err := s.accounts.Get(saved.UserID); err != nil {
		log.Printf("[session] persisted account %s no longer exists", saved.UserID)
		return
	}
	s.current = saved
	log.Printf("[session] restored identity %s", saved.UserID)
}

func (s *Service) persist(id Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
