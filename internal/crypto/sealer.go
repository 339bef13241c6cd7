package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

const sealedPrefix = "v1:"

// sealerSalt binds derived keys to this use; per-value randomness comes from
// the GCM nonce.
var sealerSalt = []byte("walletlink/credential-sealer")

// Sealer encrypts short secrets (API secrets and passphrases) before they are
// written to a persistent store. The AES key is derived once from the
// configured passphrase.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives an AES-256-GCM key from passphrase.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("crypto/sealer: passphrase must not be empty")
	}
	gcm, err := newGCM(deriveKey(passphrase, sealerSalt))
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal returns "v1:" followed by base64(nonce || ciphertext). Empty input
// seals to the empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto/sealer: generating nonce: %w", err)
	}
	out := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", errors.New("crypto/sealer: unknown sealed format")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("crypto/sealer: decode: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(raw) < ns {
		return "", errors.New("crypto/sealer: sealed value too short")
	}
	plain, err := s.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto/sealer: open: %w", err)
	}
	return string(plain), nil
}

// SealCredentials returns c with the secret and passphrase sealed. A nil
// Sealer returns c unchanged.
func (s *Sealer) SealCredentials(c domain.ExchangeCredentials) (domain.ExchangeCredentials, error) {
	if s == nil {
		return c, nil
	}
	secret, err := s.Seal(c.APISecret)
	if err != nil {
		return domain.ExchangeCredentials{}, err
	}
	passphrase, err := s.Seal(c.APIPassphrase)
	if err != nil {
		return domain.ExchangeCredentials{}, err
	}
	return domain.ExchangeCredentials{APIKey: c.APIKey, APISecret: secret, APIPassphrase: passphrase}, nil
}

// OpenCredentials reverses SealCredentials.
func (s *Sealer) OpenCredentials(c domain.ExchangeCredentials) (domain.ExchangeCredentials, error) {
	if s == nil {
		return c, nil
	}
	secret, err := s.Open(c.APISecret)
	if err != nil {
		return domain.ExchangeCredentials{}, err
	}
	passphrase, err := s.Open(c.APIPassphrase)
	if err != nil {
		return domain.ExchangeCredentials{}, err
	}
	return domain.ExchangeCredentials{APIKey: c.APIKey, APISecret: secret, APIPassphrase: passphrase}, nil
}
