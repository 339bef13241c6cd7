package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

// CredentialStore implements domain.CredentialStore using PostgreSQL. API
// secrets and passphrases are sealed before they are written.
type CredentialStore struct {
	pool   *pgxpool.Pool
	sealer *crypto.Sealer
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a CredentialStore backed by pool. A nil sealer
// stores secrets in the clear.
func NewCredentialStore(pool *pgxpool.Pool, sealer *crypto.Sealer) *CredentialStore {
	return &CredentialStore{pool: pool, sealer: sealer}
}

// Get returns the linked account for userID.
func (s *CredentialStore) Get(ctx context.Context, userID string) (domain.LinkedAccount, error) {
	const query = `
		SELECT user_id, topology, signer_address, COALESCE(smart_account_address, ''),
		       api_key, api_secret, api_passphrase, updated_at
		FROM linked_accounts
		WHERE user_id = $1`

	var (
		a        domain.LinkedAccount
		topology string
	)
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&a.UserID, &topology, &a.SignerAddress, &a.SmartAccountAddress,
		&a.Credentials.APIKey, &a.Credentials.APISecret, &a.Credentials.APIPassphrase,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LinkedAccount{}, fmt.Errorf("postgres: account %s: %w", userID, domain.ErrNotFound)
		}
		return domain.LinkedAccount{}, fmt.Errorf("postgres: get account %s: %w", userID, err)
	}
	a.Topology = domain.Topology(topology)

	creds, err := s.sealer.OpenCredentials(a.Credentials)
	if err != nil {
		return domain.LinkedAccount{}, fmt.Errorf("postgres: open credentials for %s: %w", userID, err)
	}
	a.Credentials = creds
	return a, nil
}

// Put upserts account. Accounts with incomplete credentials are rejected
// before any write.
func (s *CredentialStore) Put(ctx context.Context, a domain.LinkedAccount) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("postgres: put account %s: %w", a.UserID, err)
	}
	creds, err := s.sealer.SealCredentials(a.Credentials)
	if err != nil {
		return fmt.Errorf("postgres: seal credentials for %s: %w", a.UserID, err)
	}

	var smart *string
	if a.SmartAccountAddress != "" {
		smart = &a.SmartAccountAddress
	}

	const query = `
		INSERT INTO linked_accounts (
			user_id, topology, signer_address, smart_account_address,
			api_key, api_secret, api_passphrase, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			topology = EXCLUDED.topology,
			signer_address = EXCLUDED.signer_address,
			smart_account_address = EXCLUDED.smart_account_address,
			api_key = EXCLUDED.api_key,
			api_secret = EXCLUDED.api_secret,
			api_passphrase = EXCLUDED.api_passphrase,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		a.UserID, string(a.Topology), a.SignerAddress, smart,
		creds.APIKey, creds.APISecret, creds.APIPassphrase,
	)
	if err != nil {
		return fmt.Errorf("postgres: put account %s: %w", a.UserID, err)
	}
	return nil
}

// Delete removes the account for userID. Unknown users are not an error.
func (s *CredentialStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM linked_accounts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres: delete account %s: %w", userID, err)
	}
	return nil
}
