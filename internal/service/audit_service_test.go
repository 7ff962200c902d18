package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"reaction_timer_backend/internal/model"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	entries []*model.AuditLog
	err     error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

type recordingPublisher struct {
	subjects []string
	ids      []string
	bodies   [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, subject, msgID string, body []byte) error {
	p.subjects = append(p.subjects, subject)
	p.ids = append(p.ids, msgID)
	p.bodies = append(p.bodies, body)
	return nil
}

func TestAuditServiceDeliversToEverySink(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	failing := &memorySink{err: errors.New("disk full")}
	ok := &memorySink{}
	svc := NewAuditService(clock, 8, failing, ok)
	svc.Start()

	userID := uint(4)
	svc.Record(AuditEvent{Type: model.AuditLogin, UserID: &userID, ClientKey: "ip"})
	svc.Close()

	require.Len(t, ok.entries, 1, "a failing sink must not stop the others")
	require.Len(t, failing.entries, 1)
	entry := ok.entries[0]
	assert.Equal(t, model.AuditLogin, entry.EventType)
	assert.Equal(t, testEpoch, entry.CreatedAt)
	assert.Len(t, entry.EventID, 26)
	assert.Empty(t, entry.Details)
}

func TestAuditServiceDropsWhenFull(t *testing.T) {
	sink := &memorySink{}
	svc := NewAuditService(clockwork.NewFakeClock(), 2, sink)

	// Not started: the buffer fills and further records are dropped.
	for i := 0; i < 5; i++ {
		svc.Record(AuditEvent{Type: model.AuditStart})
	}
	svc.Close()
	assert.Len(t, sink.entries, 2)

	svc.Record(AuditEvent{Type: model.AuditStart})
	assert.Len(t, sink.entries, 2, "records after Close are dropped")
}

func TestPublisherAuditSink(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewPublisherAuditSink(pub)
	sessionID := "s-1"
	entry := &model.AuditLog{
		EventID:   "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		EventType: model.AuditPrematureSubmit,
		SessionID: &sessionID,
		Details:   `{"server_ms":-20}`,
	}

	require.NoError(t, sink.Write(context.Background(), entry))
	assert.Equal(t, []string{"premature_submit"}, pub.subjects)
	assert.Equal(t, []string{entry.EventID}, pub.ids)

	var decoded model.AuditLog
	require.NoError(t, json.Unmarshal(pub.bodies[0], &decoded))
	assert.Equal(t, entry.EventType, decoded.EventType)
	assert.Equal(t, sessionID, *decoded.SessionID)
}
