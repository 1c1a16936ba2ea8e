package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return m.Called(ctx, eventType, payload).Error(0)
}

func TestRecord_LogsAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, SessionCreated, mock.AnythingOfType("audit.Event")).Return(nil)

	New(slog.New(slog.NewTextHandler(&buf, nil)), pub).Record(context.Background(), Event{Type: SessionCreated, SessionID: "s1"})

	assert.Contains(t, buf.String(), "type=session.created")
	assert.Contains(t, buf.String(), "session_id=s1")
	pub.AssertExpectations(t)
}

func TestRecord_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

	New(slog.New(slog.NewTextHandler(&buf, nil)), pub).Record(context.Background(), Event{Type: SessionDeleted})

	assert.Contains(t, buf.String(), "failed to publish audit event")
}
