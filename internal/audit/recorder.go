package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"otpguard/pkg/requestcontext"
)

// Publisher ships events to an external sink (Kafka in production).
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists events for per-identity abuse review.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identity string, limit int) ([]Event, error)
}

// Recorder fans an event out to the configured store and publisher. Audit
// failures are logged and swallowed: the request that triggered the event
// must not fail because the trail is degraded.
type Recorder struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

type RecorderOption func(*Recorder)

func WithStore(store Store) RecorderOption {
	return func(r *Recorder) {
		r.store = store
	}
}

func WithPublisher(publisher Publisher) RecorderOption {
	return func(r *Recorder) {
		r.publisher = publisher
	}
}

// NewRecorder builds a Recorder. With no options it is a logging-only trail.
func NewRecorder(logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps and fans out an event. Missing ID, request ID, and timestamp
// are filled from context so call sites stay terse.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, event.Kind,
			"log_type", "audit",
			"event_id", event.ID,
			"identity", event.Identity,
			"purpose", event.Purpose,
			"requesting_ip", event.RequestingIP,
			"request_id", event.RequestID,
		)
	}

	if r.store != nil {
		if err := r.store.Append(ctx, event); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "failed to append audit event", "kind", event.Kind, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Emit(ctx, event); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "failed to publish audit event", "kind", event.Kind, "error", err)
		}
	}
}

// List exposes the store's per-identity view for abuse review endpoints.
// Returns nil when no store is configured.
func (r *Recorder) List(ctx context.Context, identity string, limit int) ([]Event, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.ListByIdentity(ctx, identity, limit)
}

// MemoryStore keeps events in memory for tests and single-instance dev runs.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore constructs an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByIdentity returns events for an identity, newest first.
func (s *MemoryStore) ListByIdentity(_ context.Context, identity string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for i := len(s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.events[i].Identity == identity {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// Events returns a snapshot of everything appended, oldest first.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
