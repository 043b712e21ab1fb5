package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Conversation)}
}

func (s *MemoryStore) Create(context.Context) (Conversation, error) {
	conv := newConversation()
	s.mu.Lock()
	s.items[conv.ID] = conv
	s.mu.Unlock()
	return conv, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Conversation, error) {
	if !ValidID(id) {
		return Conversation{}, ErrInvalidID
	}
	s.mu.RLock()
	conv, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return Conversation{}, ErrNotFound
	}
	conv.State = append([]byte(nil), conv.State...)
	return conv, nil
}

func (s *MemoryStore) Save(_ context.Context, conv Conversation) error {
	if !ValidID(conv.ID) {
		return ErrInvalidID
	}
	conv.State = append([]byte(nil), conv.State...)
	conv.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.items[conv.ID] = conv
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
