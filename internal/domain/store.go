package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CredentialStore maps a user identifier to its linked account. Implementations
// must reject accounts whose credentials are incomplete with
// ErrInvalidCredentials and return ErrNotFound for unknown users.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (LinkedAccount, error)
	Put(ctx context.Context, account LinkedAccount) error
	Delete(ctx context.Context, userID string) error
}

// Audit event names.
const (
	AuditLinkCompleted = "link.completed"
	AuditLinkFailed    = "link.failed"
	AuditOrderPlaced   = "order.placed"
	AuditOrderRejected = "order.rejected"
	AuditOrderCanceled = "order.canceled"
	AuditClaim         = "claim.submitted"
)

// AuditEntry is a single audit log row. Detail must never carry secrets.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	UserID    string         `json:"user_id"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, userID string, opts ListOpts) ([]AuditEntry, error)
}
