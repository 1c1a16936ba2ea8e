package audit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/coach-onboarding/internal/metrics"
)

// Event types recorded across the onboarding lifecycle.
const (
	SessionCreated     = "session.created"
	SessionUpdated     = "session.updated"
	SessionExpired     = "session.expired"
	SessionDeleted     = "session.deleted"
	SessionSwept       = "session.swept"
	InvitationCreated  = "invitation.created"
	InvitationAccepted = "invitation.accepted"
	InvitationRevoked  = "invitation.revoked"
)

// Event is one audit record.
type Event struct {
	Type         string                 `json:"type"`
	SessionID    string                 `json:"session_id,omitempty"`
	Email        string                 `json:"email,omitempty"`
	InvitationID string                 `json:"invitation_id,omitempty"`
	Detail       map[string]interface{} `json:"detail,omitempty"`
	At           time.Time              `json:"at"`
}

// Publisher forwards events to an external subscriber (SNS in production).
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, e Event)
}

type logger struct {
	log *slog.Logger
	pub Publisher
}

// New returns a Logger writing to log and, when pub is non-nil, publishing
// every event. Publish failures are logged and never reach the caller.
func New(log *slog.Logger, pub Publisher) Logger {
	return &logger{log: log.With("component", "audit"), pub: pub}
}

// Discard returns a Logger that drops everything. Intended for tests.
func Discard() Logger {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func (l *logger) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	metrics.RecordEvent(e.Type)
	l.log.InfoContext(ctx, "audit event",
		"type", e.Type,
		"session_id", e.SessionID,
		"email", e.Email,
		"invitation_id", e.InvitationID,
		"detail", e.Detail,
	)
	if l.pub == nil {
		return
	}
	if err := l.pub.Publish(ctx, e.Type, e); err != nil {
		l.log.WarnContext(ctx, "failed to publish audit event", "type", e.Type, "err", err)
	}
}
