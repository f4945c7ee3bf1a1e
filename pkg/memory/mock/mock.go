// Package mock provides an in-memory test double for [memory.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use.
//
// Typical usage:
//
//	store := &mock.Store{Context: &types.InterviewContext{InterviewID: "iv-1"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("AppendMessage"); got != 2 {
//	    t.Errorf("expected 2 AppendMessage calls, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxhire/pkg/memory"
	"github.com/MrWong99/voxhire/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [memory.Store].
type Store struct {
	mu sync.Mutex

	calls    []Call
	appended []types.ConversationMessage

	// Context is returned by LoadContext. When nil, LoadContext returns
	// [memory.ErrNotFound].
	Context *types.InterviewContext

	// ContextErr is returned by LoadContext when non-nil.
	ContextErr error

	// History is returned by LoadRecentMessages, trimmed to the limit.
	History []types.ConversationMessage

	// HistoryErr is returned by LoadRecentMessages when non-nil.
	HistoryErr error

	// AppendErr is returned by AppendMessage when non-nil.
	AppendErr error

	// CountErr is returned by CountMessages when non-nil.
	CountErr error
}

var (
	_ memory.Store          = (*Store)(nil)
	_ memory.MessageCounter = (*Store)(nil)
)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Appended returns a copy of every message accepted by AppendMessage.
func (m *Store) Appended() []types.ConversationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ConversationMessage, len(m.appended))
	copy(out, m.appended)
	return out
}

// LoadContext implements [memory.Store].
func (m *Store) LoadContext(_ context.Context, interviewID string) (*types.InterviewContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "LoadContext", Args: []any{interviewID}})
	if m.ContextErr != nil {
		return nil, m.ContextErr
	}
	if m.Context == nil {
		return nil, memory.ErrNotFound
	}
	ic := *m.Context
	return &ic, nil
}

// LoadRecentMessages implements [memory.Store].
func (m *Store) LoadRecentMessages(_ context.Context, interviewID string, limit int) ([]types.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "LoadRecentMessages", Args: []any{interviewID, limit}})
	if m.HistoryErr != nil {
		return nil, m.HistoryErr
	}
	h := m.History
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]types.ConversationMessage, len(h))
	copy(out, h)
	return out, nil
}

// AppendMessage implements [memory.Store]. Accepted messages get a sequential
// ID when none is set.
func (m *Store) AppendMessage(_ context.Context, interviewID string, msg types.ConversationMessage) (types.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "AppendMessage", Args: []any{interviewID, msg}})
	if m.AppendErr != nil {
		return msg, m.AppendErr
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("mock-%d", len(m.appended)+1)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.appended = append(m.appended, msg)
	return msg, nil
}

// CountMessages implements [memory.MessageCounter]. It counts History and
// every appended message with the given role.
func (m *Store) CountMessages(_ context.Context, interviewID string, role types.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "CountMessages", Args: []any{interviewID, role}})
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	n := 0
	for _, msgs := range [][]types.ConversationMessage{m.History, m.appended} {
		for _, msg := range msgs {
			if msg.Role == role {
				n++
			}
		}
	}
	return n, nil
}
