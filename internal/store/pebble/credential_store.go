package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

// CredentialStore implements domain.CredentialStore on Pebble.
type CredentialStore struct {
	db     *pebble.DB
	sealer *crypto.Sealer
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a CredentialStore on d. A nil sealer stores
// secrets in the clear.
func NewCredentialStore(d *DB, sealer *crypto.Sealer) *CredentialStore {
	return &CredentialStore{db: d.db, sealer: sealer}
}

func accountKey(userID string) []byte {
	return []byte("account/" + userID)
}

// Get returns the account for userID.
func (s *CredentialStore) Get(_ context.Context, userID string) (domain.LinkedAccount, error) {
	data, closer, err := s.db.Get(accountKey(userID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return domain.LinkedAccount{}, fmt.Errorf("pebble: account %s: %w", userID, domain.ErrNotFound)
		}
		return domain.LinkedAccount{}, fmt.Errorf("pebble: get account %s: %w", userID, err)
	}
	defer closer.Close()

	var a domain.LinkedAccount
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.LinkedAccount{}, fmt.Errorf("pebble: decode account %s: %w", userID, err)
	}
	if a.Credentials, err = s.sealer.OpenCredentials(a.Credentials); err != nil {
		return domain.LinkedAccount{}, fmt.Errorf("pebble: open credentials for %s: %w", userID, err)
	}
	return a, nil
}

// Put validates and durably writes a.
func (s *CredentialStore) Put(_ context.Context, a domain.LinkedAccount) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("pebble: put account %s: %w", a.UserID, err)
	}
	sealed, err := s.sealer.SealCredentials(a.Credentials)
	if err != nil {
		return fmt.Errorf("pebble: seal credentials for %s: %w", a.UserID, err)
	}
	a.Credentials = sealed
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("pebble: encode account %s: %w", a.UserID, err)
	}
	if err := s.db.Set(accountKey(a.UserID), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble: put account %s: %w", a.UserID, err)
	}
	return nil
}

// Delete removes the account for userID.
func (s *CredentialStore) Delete(_ context.Context, userID string) error {
	if err := s.db.Delete(accountKey(userID), pebble.Sync); err != nil {
		return fmt.Errorf("pebble: delete account %s: %w", userID, err)
	}
	return nil
}
