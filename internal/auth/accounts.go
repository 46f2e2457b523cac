package auth

import (
	"github.com/phrazzld/stockroom/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier defines an interface for password verification operations.
type PasswordVerifier interface {
	Compare(hashedPassword, password string) error
}

// BcryptVerifier implements PasswordVerifier using bcrypt.
type BcryptVerifier struct{}

// Compare checks whether password matches hashedPassword.
func (BcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// dummyHash is compared against when the username is unknown so both paths
// cost one bcrypt comparison.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z8Yxd4J9h6Pq3h8H1nQ1GQ7m"

// Accounts holds the configured operator logins.
type Accounts struct {
	hashes   map[string]string
	verifier PasswordVerifier
}

// NewAccounts creates Accounts from configured users.
func NewAccounts(users []config.UserAccount, verifier PasswordVerifier) *Accounts {
	if verifier == nil {
		verifier = BcryptVerifier{}
	}
	a := &Accounts{hashes: make(map[string]string, len(users)), verifier: verifier}
	for _, u := range users {
		a.hashes[u.Username] = u.PasswordHash
	}
	return a
}

// Authenticate checks username and password. All failures return
// ErrInvalidCredentials.
func (a *Accounts) Authenticate(username, password string) error {
	hash, ok := a.hashes[username]
	if !ok {
		_ = a.verifier.Compare(dummyHash, password)
		return ErrInvalidCredentials
	}
	if err := a.verifier.Compare(hash, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
