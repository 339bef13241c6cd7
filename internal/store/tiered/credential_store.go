// Package tiered composes a fast cache store with a durable store of record.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// CredentialStore reads through cache to durable and writes to both. The
// durable store is authoritative; cache failures are logged and skipped.
type CredentialStore struct {
	cache   domain.CredentialStore
	durable domain.CredentialStore
	logger  *slog.Logger
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore layers cache over durable.
func NewCredentialStore(cache, durable domain.CredentialStore, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{
		cache:   cache,
		durable: durable,
		logger:  logger.With(slog.String("component", "tiered_credential_store")),
	}
}

// Get serves from the cache and falls back to the durable store, refilling the
// cache on a durable hit.
func (s *CredentialStore) Get(ctx context.Context, userID string) (domain.LinkedAccount, error) {
	acct, err := s.cache.Get(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	acct, err = s.durable.Get(ctx, userID)
	if err != nil {
		return domain.LinkedAccount{}, err
	}
	if err := s.cache.Put(ctx, acct); err != nil {
		s.logger.WarnContext(ctx, "cache refill failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return acct, nil
}

// Put writes the durable store first so the cache never holds an account the
// store of record rejected.
func (s *CredentialStore) Put(ctx context.Context, account domain.LinkedAccount) error {
	if err := s.durable.Put(ctx, account); err != nil {
		return err
	}
	if err := s.cache.Put(ctx, account); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("user_id", account.UserID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Delete evicts the cache entry before removing the durable row.
func (s *CredentialStore) Delete(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("tiered: evict %s: %w", userID, err)
	}
	return s.durable.Delete(ctx, userID)
}
