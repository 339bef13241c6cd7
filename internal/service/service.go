// Package service exposes the link, trade and claim flows to the HTTP server
// and CLI, adding locking, rate limiting, auditing, archiving, progress
// fan-out and notifications around the core packages.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// Archiver stores signed artifacts for later inspection.
type Archiver interface {
	Archive(ctx context.Context, kind, id string, v any) error
}

// Notifier alerts operators.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ProgressChannel is the signal bus channel carrying a user's progress.
func ProgressChannel(userID string) string {
	return "progress:" + userID
}

// ProgressEvent is the payload published for each progress step.
type ProgressEvent struct {
	UserID string          `json:"user_id"`
	Flow   string          `json:"flow"`
	At     time.Time       `json:"at"`
	Step   domain.Progress `json:"progress"`
}

// Deps are the ambient collaborators shared by every service. Any of them
// may be nil.
type Deps struct {
	Audit    domain.AuditStore
	Archiver Archiver
	Notifier Notifier
	Bus      domain.SignalBus
	Logger   *slog.Logger
}

func (d Deps) logger(component string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", component))
}

// audit records an event. Failures are logged, never returned: the audited
// operation has already happened.
func (d Deps) audit(ctx context.Context, log *slog.Logger, event, userID string, detail map[string]any) {
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Log(ctx, domain.AuditEntry{Event: event, UserID: userID, Detail: detail}); err != nil {
		log.WarnContext(ctx, "audit write failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (d Deps) archive(ctx context.Context, log *slog.Logger, kind, id string, v any) {
	if d.Archiver == nil {
		return
	}
	if err := d.Archiver.Archive(ctx, kind, id, v); err != nil {
		log.WarnContext(ctx, "archive failed", slog.String("kind", kind), slog.String("id", id), slog.String("error", err.Error()))
	}
}

func (d Deps) notify(ctx context.Context, event, title, message string) {
	if d.Notifier == nil {
		return
	}
	_ = d.Notifier.Notify(ctx, event, title, message)
}

// progressPublisher returns a ProgressFunc that publishes every step on the
// user's channel and then calls next.
func (d Deps) progressPublisher(ctx context.Context, log *slog.Logger, userID, flow string, next domain.ProgressFunc) domain.ProgressFunc {
	return func(p domain.Progress) {
		if d.Bus != nil {
			payload, err := json.Marshal(ProgressEvent{UserID: userID, Flow: flow, At: time.Now().UTC(), Step: p})
			if err == nil {
				err = d.Bus.Publish(ctx, ProgressChannel(userID), payload)
			}
			if err != nil {
				log.DebugContext(ctx, "progress publish failed", slog.String("error", err.Error()))
			}
		}
		next.Emit(p)
	}
}
