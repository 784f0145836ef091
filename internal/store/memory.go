package store

import (
	"context"
	"sync"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps the history log in process memory.
// Messages are lost on restart; used by tests and the "memory" driver.
type MemoryStore struct {
	messages []models.Message
	mu       sync.RWMutex
	clock    *Clock
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clock: NewClock()}
}

// Append stamps and stores a message.
func (s *MemoryStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New().String()
	msg.Timestamp = s.clock.Next()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Recent returns up to limit messages, newest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Message, 0, min(limit, len(s.messages)))
	for i := len(s.messages) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.messages[i])
	}
	return result, nil
}

// Empty reports whether nothing was ever appended.
func (s *MemoryStore) Empty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages) == 0, nil
}

// Count returns the number of stored messages (for debugging)
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
