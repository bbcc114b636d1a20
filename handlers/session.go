package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"streamflix/models"
	"streamflix/services/accounts"
	"streamflix/services/session"
)

type accountService interface {
	Create(name, pin string) (models.Account, error)
	List() []models.Account
	Remove(id string) error
}

type sessionService interface {
	Current() session.Identity
	SignIn(accountID, pin string) (models.Account, error)
	SignOut()
}

var (
	_ accountService = (*accounts.Service)(nil)
	_ sessionService = (*session.Service)(nil)
)

type SessionHandler struct {
	Accounts accountService
	Session  sessionService
}

func NewSessionHandler(accountsSvc accountService, sessionSvc sessionService) *SessionHandler {
	return &SessionHandler{Accounts: accountsSvc, Session: sessionSvc}
}

// accountView is the client-facing account shape; the PIN hash never leaves
// the server.
type accountView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	HasPIN bool   `json:"hasPin"`
}

func toAccountView(a models.Account) accountView {
	return accountView{ID: a.ID, Name: a.Name, HasPIN: a.HasPIN()}
}

func (h *SessionHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list := h.Accounts.List()
	views := make([]accountView, 0, len(list))
	for _, account := range list {
		views = append(views, toAccountView(account))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (h *SessionHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
		PIN  string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.Accounts.Create(payload.Name, payload.PIN)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, accounts.ErrNameRequired):
			status = http.StatusBadRequest
		case errors.Is(err, accounts.ErrNameTaken):
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAccountView(account))
}

// RemoveAccount deletes a profile. If it is the active one, the session is
// signed out first so the synchronizers fall back to anonymous state.
func (h *SessionHandler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := strings.TrimSpace(vars["id"])
	if id == "" {
		http.Error(w, "account id is required", http.StatusBadRequest)
		return
	}

	if h.Session.Current().UserID == id {
		h.Session.SignOut()
	}
	if err := h.Accounts.Remove(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, accounts.ErrAccountNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	Anonymous bool   `json:"anonymous"`
	UserID    string `json:"userId,omitempty"`
}

func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	current := h.Session.Current()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionView{
		Anonymous: current.IsAnonymous(),
		UserID:    current.UserID,
	})
}

func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountID string `json:"accountId"`
		PIN       string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.Session.SignIn(payload.AccountID, payload.PIN)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			status = http.StatusNotFound
		case errors.Is(err, accounts.ErrInvalidPIN):
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountView(account))
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.Session.SignOut()
	w.WriteHeader(http.StatusNoContent)
}
