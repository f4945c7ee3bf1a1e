package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxhire/pkg/types"
)

// MemStore is an in-process [Store]. Nothing survives a restart.
type MemStore struct {
	mu        sync.RWMutex
	contexts  map[string]types.InterviewContext
	histories map[string][]types.ConversationMessage
	now       func() time.Time
}

var (
	_ Store         = (*MemStore)(nil)
	_ ContextWriter  = (*MemStore)(nil)
	_ MessageCounter = (*MemStore)(nil)
)

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		contexts:  make(map[string]types.InterviewContext),
		histories: make(map[string][]types.ConversationMessage),
		now:       time.Now,
	}
}

// SaveContext implements [ContextWriter].
func (s *MemStore) SaveContext(_ context.Context, ic types.InterviewContext) error {
	if ic.InterviewID == "" {
		return fmt.Errorf("memory: save context: interview id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[ic.InterviewID] = ic
	return nil
}

// LoadContext implements [Store].
func (s *MemStore) LoadContext(_ context.Context, interviewID string) (*types.InterviewContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.contexts[interviewID]
	if !ok {
		return nil, fmt.Errorf("memory: load context %q: %w", interviewID, ErrNotFound)
	}
	return &ic, nil
}

// LoadRecentMessages implements [Store].
func (s *MemStore) LoadRecentMessages(_ context.Context, interviewID string, limit int) ([]types.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.contexts[interviewID]; !ok {
		return nil, fmt.Errorf("memory: load messages %q: %w", interviewID, ErrNotFound)
	}
	h := s.histories[interviewID]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return slices.Clone(h), nil
}

// CountMessages implements [MessageCounter].
func (s *MemStore) CountMessages(_ context.Context, interviewID string, role types.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.contexts[interviewID]; !ok {
		return 0, fmt.Errorf("memory: count messages %q: %w", interviewID, ErrNotFound)
	}
	n := 0
	for _, m := range s.histories[interviewID] {
		if m.Role == role {
			n++
		}
	}
	return n, nil
}

// AppendMessage implements [Store].
func (s *MemStore) AppendMessage(_ context.Context, interviewID string, msg types.ConversationMessage) (types.ConversationMessage, error) {
	if !msg.Role.Valid() {
		return msg, fmt.Errorf("memory: append message: invalid role %q", msg.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[interviewID]; !ok {
		return msg, fmt.Errorf("memory: append message %q: %w", interviewID, ErrNotFound)
	}
	if msg.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return msg, fmt.Errorf("memory: append message: %w", err)
		}
		msg.ID = id.String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.histories[interviewID] = append(s.histories[interviewID], msg)
	return msg, nil
}
