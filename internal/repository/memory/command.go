package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/command"
	"stayhub/internal/repository"

	stayhub_errors "stayhub/pkg/errors"
)

type DispatchStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]command.DispatchRecord
}

func NewDispatchStore() *DispatchStore {
	return &DispatchStore{records: make(map[uuid.UUID]command.DispatchRecord)}
}

var _ repository.DispatchRepository = (*DispatchStore)(nil)

func (s *DispatchStore) Create(_ context.Context, _ repository.DBTX, rec *command.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.CommandID]; ok {
		return nil
	}
	s.records[rec.CommandID] = *rec
	return nil
}

func (s *DispatchStore) UpdateStatus(_ context.Context, commandID uuid.UUID, status command.DispatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[commandID]
	if !ok {
		return stayhub_errors.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	s.records[commandID] = rec
	return nil
}

func (s *DispatchStore) GetByID(_ context.Context, commandID uuid.UUID) (command.DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[commandID]
	if !ok {
		return command.DispatchRecord{}, stayhub_errors.ErrNotFound
	}
	return rec, nil
}

// Len returns the number of audit rows, for assertions.
func (s *DispatchStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]command.IdempotencyRecord
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{records: make(map[string]command.IdempotencyRecord)}
}

var _ repository.IdempotencyRepository = (*IdempotencyStore)(nil)

func (s *IdempotencyStore) Exists(_ context.Context, tenantID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[tenantID+"/"+key]
	return ok, nil
}

func (s *IdempotencyStore) Insert(_ context.Context, rec *command.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapKey := rec.TenantID + "/" + rec.IdempotencyKey
	if _, ok := s.records[mapKey]; ok {
		return nil
	}
	s.records[mapKey] = *rec
	return nil
}

// Len returns the number of idempotency rows, for assertions.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
