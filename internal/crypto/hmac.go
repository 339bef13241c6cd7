package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials required for HMAC-authenticated requests
// against the exchange (L2) and relayer (builder) APIs. Both secrets are
// base64 encoded by the issuer.
type HMACAuth struct {
	Key        string
	Secret     string
	Passphrase string
}

// Enabled reports whether all three credential parts are present.
func (h *HMACAuth) Enabled() bool {
	return h != nil && h.Key != "" && h.Secret != "" && h.Passphrase != ""
}

// BuilderHeaders returns the relayer headers for a request:
// POLY_BUILDER_API_KEY, POLY_BUILDER_TIMESTAMP, POLY_BUILDER_PASSPHRASE and
// POLY_BUILDER_SIGNATURE.
func (h *HMACAuth) BuilderHeaders(method, path, body string) map[string]string {
	return h.BuilderHeadersAt(method, path, body, time.Now().Unix())
}

// BuilderHeadersAt is BuilderHeaders with a caller-supplied unix timestamp.
func (h *HMACAuth) BuilderHeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_BUILDER_API_KEY":    h.Key,
		"POLY_BUILDER_TIMESTAMP":  ts,
		"POLY_BUILDER_PASSPHRASE": h.Passphrase,
		"POLY_BUILDER_SIGNATURE":  Sign(h.Secret, ts+method+path+body),
	}
}

// L2Headers returns the exchange headers for an authenticated request:
// POLY_ADDRESS, POLY_API_KEY, POLY_TIMESTAMP, POLY_PASSPHRASE and
// POLY_SIGNATURE.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with a caller-supplied unix timestamp.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  Sign(h.Secret, ts+method+path+body),
	}
}

// Sign computes HMAC-SHA256 of message keyed by the decoded secret and returns
// it URL-safe base64 encoded. Secrets are accepted in URL-safe or standard
// base64; anything else is used as raw bytes.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, decodeSecret(secret))
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func decodeSecret(secret string) []byte {
	if b, err := base64.URLEncoding.DecodeString(secret); err == nil {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(secret); err == nil {
		return b
	}
	return []byte(secret)
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
