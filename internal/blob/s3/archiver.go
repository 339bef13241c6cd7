package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// Artifact kinds written by the service.
const (
	KindLink         = "links"
	KindOrder        = "orders"
	KindFeeAuth      = "fee-authorizations"
	KindClaim        = "claims"
	KindCancellation = "cancellations"
)

// Archiver writes JSON artifacts under
// <prefix>/<kind>/<yyyy>/<mm>/<dd>/<id>.json. Callers must strip secrets
// before archiving.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver writing through w.
func NewArchiver(w domain.BlobWriter, prefix string) *Archiver {
	return &Archiver{writer: w, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// Key returns the object key Archive would use.
func (a *Archiver) Key(kind, id string) string {
	day := a.now().UTC().Format("2006/01/02")
	return path.Join(a.prefix, kind, day, sanitize(id)+".json")
}

// Archive encodes v as indented JSON and uploads it.
func (a *Archiver) Archive(ctx context.Context, kind, id string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: encode %s %s: %w", kind, id, err)
	}
	return a.writer.Put(ctx, a.Key(kind, id), bytes.NewReader(body), "application/json")
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
}
