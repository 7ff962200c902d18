package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/repository"
	"reaction_timer_backend/pkg/logger"
	"reaction_timer_backend/pkg/monitoring"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultAuditBuffer = 1024
	auditWriteTimeout  = 5 * time.Second
)

// AuditEvent is one security-relevant occurrence.
type AuditEvent struct {
	Type      model.AuditEventType
	UserID    *uint
	SessionID *string
	ClientKey string
	Details   map[string]interface{}
}

// AuditSink persists or forwards audit records.
type AuditSink interface {
	Name() string
	Write(ctx context.Context, entry *model.AuditLog) error
}

type DBAuditSink struct {
	repo *repository.AuditRepository
}

func NewDBAuditSink(repo *repository.AuditRepository) *DBAuditSink {
	return &DBAuditSink{repo: repo}
}

func (s *DBAuditSink) Name() string { return "database" }

func (s *DBAuditSink) Write(ctx context.Context, entry *model.AuditLog) error {
	return s.repo.Create(ctx, entry)
}

// EventPublisher is the subset of a message bus client the audit stream
// needs.
type EventPublisher interface {
	Publish(ctx context.Context, subject, msgID string, body []byte) error
}

// PublisherAuditSink forwards records as JSON, one subject per event type.
type PublisherAuditSink struct {
	publisher EventPublisher
}

func NewPublisherAuditSink(publisher EventPublisher) *PublisherAuditSink {
	return &PublisherAuditSink{publisher: publisher}
}

func (s *PublisherAuditSink) Name() string { return "nats" }

func (s *PublisherAuditSink) Write(ctx context.Context, entry *model.AuditLog) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, string(entry.EventType), entry.EventID, body)
}

// AuditService delivers audit records in the background. Record never
// blocks a request: when the buffer is full the record is dropped and
// counted.
type AuditService struct {
	sinks []AuditSink
	clock clockwork.Clock
	queue chan *model.AuditLog

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewAuditService(clock clockwork.Clock, buffer int, sinks ...AuditSink) *AuditService {
	if buffer <= 0 {
		buffer = defaultAuditBuffer
	}
	return &AuditService{
		sinks: sinks,
		clock: clock,
		queue: make(chan *model.AuditLog, buffer),
	}
}

// Start launches the delivery worker. Calling it more than once is a no-op.
func (s *AuditService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.run()
}

func (s *AuditService) Record(event AuditEvent) {
	entry := s.newEntry(event)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop("closed", entry)
		return
	}
	select {
	case s.queue <- entry:
	default:
		s.drop("buffer", entry)
	}
}

// Close stops accepting records and waits until queued ones are delivered.
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	started := s.started
	s.mu.Unlock()

	if !started {
		for entry := range s.queue {
			s.deliver(entry)
		}
		return
	}
	s.wg.Wait()
}

func (s *AuditService) run() {
	defer s.wg.Done()
	for entry := range s.queue {
		s.deliver(entry)
	}
}

func (s *AuditService) deliver(entry *model.AuditLog) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		err := sink.Write(ctx, entry)
		cancel()
		if err != nil {
			monitoring.AuditWriteFailures.WithLabelValues(sink.Name()).Inc()
			logger.Log.Warn("audit write failed",
				zap.String("sink", sink.Name()),
				zap.String("eventType", string(entry.EventType)),
				zap.String("eventId", entry.EventID),
				zap.Error(err),
			)
		}
	}
}

func (s *AuditService) drop(reason string, entry *model.AuditLog) {
	monitoring.AuditWriteFailures.WithLabelValues(reason).Inc()
	logger.Log.Warn("audit record dropped",
		zap.String("reason", reason),
		zap.String("eventType", string(entry.EventType)),
	)
}

func (s *AuditService) newEntry(event AuditEvent) *model.AuditLog {
	now := s.clock.Now()
	entry := &model.AuditLog{
		EventID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		EventType: event.Type,
		UserID:    event.UserID,
		SessionID: event.SessionID,
		ClientKey: event.ClientKey,
		CreatedAt: now,
	}
	if len(event.Details) > 0 {
		if b, err := json.Marshal(event.Details); err == nil {
			entry.Details = string(b)
		}
	}
	return entry
}
