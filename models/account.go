package models

import "time"

// Account is a local viewing profile. Sign-in against an account is what
// flips the session from anonymous to authenticated.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PINHash   string    `json:"pinHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasPIN reports whether sign-in requires a PIN.
func (a Account) HasPIN() bool {
	return a.PINHash != ""
}
