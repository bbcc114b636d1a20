package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"streamflix/models"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrNameRequired     = errors.New("account name is required")
	ErrNameTaken        = errors.New("account name already in use")
	ErrInvalidPIN       = errors.New("invalid PIN")
	ErrStorageDirNotSet = errors.New("storage directory not provided")
)

// Service manages local viewing profiles. Accounts live in a JSON file under
// the storage directory; PINs are stored as bcrypt hashes.
type Service struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
	filePath string
}

func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirNotSet
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create accounts dir: %w", err)
	}

	s := &Service{
		accounts: make(map[string]models.Account),
		filePath: filepath.Join(storageDir, "accounts.json"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create registers a new account. The PIN is optional; when empty, sign-in
// requires no PIN.
func (s *Service) Create(name, pin string) (models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Account{}, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Name, name) {
			return models.Account{}, ErrNameTaken
		}
	}

	account := models.Account{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return models.Account{}, fmt.Errorf("hash pin: %w", err)
		}
		account.PINHash = string(hash)
	}

	s.accounts[account.ID] = account
	if err := s.save(); err != nil {
		delete(s.accounts, account.ID)
		return models.Account{}, err
	}
	log.Printf("[accounts] created account %s (%s)", account.Name, account.ID)
	return account, nil
}

// Get returns the account with the given id.
func (s *Service) Get(id string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// List returns all accounts ordered by creation time.
func (s *Service) List() []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Remove deletes an account. The caller is responsible for signing the
// session out first if the account is active.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, id)
	if err := s.save(); err != nil {
		s.accounts[id] = account
		return err
	}
	log.Printf("[accounts] removed account %s (%s)", account.Name, account.ID)
	return nil
}

// Verify checks the PIN for an account. Accounts without a PIN accept any
// empty PIN.
func (s *Service) Verify(id, pin string) (models.Account, error) {
	s.mu.RLock()
	account, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return models.Account{}, ErrAccountNotFound
	}
	if !account.HasPIN() {
		return account, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(pin)); err != nil {
		return models.Account{}, ErrInvalidPIN
	}
	return account, nil
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read accounts: %w", err)
	}

	var list []models.Account
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse accounts: %w", err)
	}
	for _, account := range list {
		s.accounts[account.ID] = account
	}
	log.Printf("[accounts] loaded %d accounts", len(s.accounts))
	return nil
}

func (s *Service) save() error {
	list := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		list = append(list, account)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace accounts: %w", err)
	}
	return nil
}
