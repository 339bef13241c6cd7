// Package memory provides process-lifetime implementations of the domain
// stores. Data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// CredentialStore implements domain.CredentialStore with a map.
type CredentialStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.LinkedAccount
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{accounts: make(map[string]domain.LinkedAccount)}
}

// Get returns the account linked to userID.
func (s *CredentialStore) Get(_ context.Context, userID string) (domain.LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return domain.LinkedAccount{}, fmt.Errorf("memory: account %s: %w", userID, domain.ErrNotFound)
	}
	return acct, nil
}

// Put stores account, replacing any previous entry for the user. Accounts
// with incomplete credentials are rejected.
func (s *CredentialStore) Put(_ context.Context, account domain.LinkedAccount) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("memory: put %s: %w", account.UserID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.UserID] = account
	return nil
}

// Delete removes the entry for userID. Deleting an unknown user is not an
// error.
func (s *CredentialStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, userID)
	return nil
}

// Len returns the number of stored accounts.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
