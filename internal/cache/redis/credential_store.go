package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

// CredentialStore implements domain.CredentialStore with one JSON value per
// user. A positive ttl makes it a cache in front of a durable store.
type CredentialStore struct {
	rdb    *redis.Client
	sealer *crypto.Sealer
	ttl    time.Duration
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a CredentialStore on c. A nil sealer stores
// secrets in the clear; ttl <= 0 keeps entries forever.
func NewCredentialStore(c *Client, sealer *crypto.Sealer, ttl time.Duration) *CredentialStore {
	if ttl < 0 {
		ttl = 0
	}
	return &CredentialStore{rdb: c.rdb, sealer: sealer, ttl: ttl}
}

func accountKey(userID string) string {
	return keyPrefix + "account:" + userID
}

// Get returns the account for userID.
func (s *CredentialStore) Get(ctx context.Context, userID string) (domain.LinkedAccount, error) {
	raw, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.LinkedAccount{}, fmt.Errorf("redis: account %s: %w", userID, domain.ErrNotFound)
		}
		return domain.LinkedAccount{}, fmt.Errorf("redis: get account %s: %w", userID, err)
	}

	var a domain.LinkedAccount
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.LinkedAccount{}, fmt.Errorf("redis: decode account %s: %w", userID, err)
	}
	if a.Credentials, err = s.sealer.OpenCredentials(a.Credentials); err != nil {
		return domain.LinkedAccount{}, fmt.Errorf("redis: open credentials for %s: %w", userID, err)
	}
	return a, nil
}

// Put stores a after validating it.
func (s *CredentialStore) Put(ctx context.Context, a domain.LinkedAccount) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("redis: put account %s: %w", a.UserID, err)
	}
	sealed, err := s.sealer.SealCredentials(a.Credentials)
	if err != nil {
		return fmt.Errorf("redis: seal credentials for %s: %w", a.UserID, err)
	}
	a.Credentials = sealed
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("redis: encode account %s: %w", a.UserID, err)
	}
	if err := s.rdb.Set(ctx, accountKey(a.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put account %s: %w", a.UserID, err)
	}
	return nil
}

// Delete removes the account for userID.
func (s *CredentialStore) Delete(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, accountKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis: delete account %s: %w", userID, err)
	}
	return nil
}
