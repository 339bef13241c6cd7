package pebble

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

var auditPrefix = []byte("audit/")

// AuditStore implements domain.AuditStore on Pebble. Keys sort by creation
// time so iteration in reverse yields the newest entries first.
type AuditStore struct {
	db  *pebble.DB
	seq atomic.Int64
	now func() time.Time
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore on d.
func NewAuditStore(d *DB) *AuditStore {
	s := &AuditStore{db: d.db, now: time.Now}
	s.seq.Store(time.Now().UnixNano())
	return s
}

func auditKey(id int64) []byte {
	key := make([]byte, len(auditPrefix)+8)
	copy(key, auditPrefix)
	binary.BigEndian.PutUint64(key[len(auditPrefix):], uint64(id))
	return key
}

// Log appends entry, assigning ID and CreatedAt.
func (s *AuditStore) Log(_ context.Context, entry domain.AuditEntry) error {
	entry.ID = s.seq.Add(1)
	entry.CreatedAt = s.now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("pebble: encode audit entry: %w", err)
	}
	if err := s.db.Set(auditKey(entry.ID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("pebble: log audit event %s: %w", entry.Event, err)
	}
	return nil
}

// List returns entries newest first, filtered by userID when non-empty.
func (s *AuditStore) List(_ context.Context, userID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: auditPrefix,
		UpperBound: prefixUpperBound(auditPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: list audit entries: %w", err)
	}
	defer iter.Close()

	var (
		out     []domain.AuditEntry
		skipped int
	)
	for iter.Last(); iter.Valid(); iter.Prev() {
		var e domain.AuditEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("pebble: decode audit entry: %w", err)
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			break
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
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble: list audit entries: %w", err)
	}
	return out, nil
}
