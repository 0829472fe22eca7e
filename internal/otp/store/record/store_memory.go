package record

import (
	"context"
	"fmt"
	"sync"
	"time"

	"otpguard/internal/otp/models"
	"otpguard/pkg/platform/sentinel"
)

// InMemoryRecordStore keeps passcode records in a mutex-guarded map for
// tests/dev and single-instance deployments. All operations on one
// (identity, purpose) pair serialize on the store lock, which satisfies the
// per-pair linearizability contract.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*models.Record
}

// NewInMemory constructs an empty in-memory record store.
func NewInMemory() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		records: make(map[string]*models.Record),
	}
}

func pairKey(identity string, purpose models.Purpose) string {
	return identity + "|" + string(purpose)
}

// Put replaces any existing record for the pair. The map write is the atomic
// supersede point: verification racers holding the read lock either see the
// old record or the new one, never both.
func (s *InMemoryRecordStore) Put(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[pairKey(record.Identity, record.Purpose)] = &cp
	return nil
}

// Get returns a copy of the live record. Expired records are logically absent.
func (s *InMemoryRecordStore) Get(_ context.Context, identity string, purpose models.Purpose, now time.Time) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[pairKey(identity, purpose)]
	if !ok || record.IsExpired(now) {
		return nil, fmt.Errorf("otp record not found: %w", sentinel.ErrNotFound)
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryRecordStore) IncrementAttempt(_ context.Context, identity string, purpose models.Purpose) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[pairKey(identity, purpose)]
	if !ok {
		return 0, fmt.Errorf("otp record not found: %w", sentinel.ErrNotFound)
	}
	record.AttemptsUsed++
	return record.AttemptsUsed, nil
}

func (s *InMemoryRecordStore) MarkConsumed(_ context.Context, identity string, purpose models.Purpose) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[pairKey(identity, purpose)]
	if !ok || record.Consumed {
		return false, nil
	}
	record.Consumed = true
	return true, nil
}

func (s *InMemoryRecordStore) Delete(_ context.Context, identity string, purpose models.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, pairKey(identity, purpose))
	return nil
}

// DeleteExpired removes all records past their expiry as of the given time.
// The time parameter is injected for testability (no hidden time.Now() calls).
func (s *InMemoryRecordStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deletedCount := 0
	for key, record := range s.records {
		if record.IsExpired(now) {
			delete(s.records, key)
			deletedCount++
		}
	}
	return deletedCount, nil
}
