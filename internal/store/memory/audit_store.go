package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// AuditStore implements domain.AuditStore with a slice.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an empty audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Log appends entry.
func (s *AuditStore) Log(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.entries) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, entry)
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, userID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		out     []domain.AuditEntry
		skipped int
	)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		switch {
		case userID != "" && e.UserID != userID,
			opts.Since != nil && e.CreatedAt.Before(*opts.Since),
			opts.Until != nil && e.CreatedAt.After(*opts.Until):
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
