// Package memory defines how interview context and conversation history are
// persisted.
//
// A [Store] answers three questions for a live session: who is interviewing
// for what ([Store.LoadContext]), what has been said so far
// ([Store.LoadRecentMessages]) and how to record the next message
// ([Store.AppendMessage]). The postgres subpackage is the production backend;
// [MemStore] keeps everything in process for development and tests.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"

	"github.com/MrWong99/voxhire/pkg/types"
)

// ErrNotFound is returned when the requested interview does not exist.
var ErrNotFound = errors.New("memory: not found")

// Store persists interview context and conversation history.
type Store interface {
	// LoadContext returns the job, candidate and voice settings for an
	// interview. Returns [ErrNotFound] if the interview is unknown.
	LoadContext(ctx context.Context, interviewID string) (*types.InterviewContext, error)

	// LoadRecentMessages returns at most limit of the most recent messages,
	// oldest first. A limit of zero or less returns the full history.
	LoadRecentMessages(ctx context.Context, interviewID string, limit int) ([]types.ConversationMessage, error)

	// AppendMessage persists msg and returns it with ID and Timestamp filled
	// in when they were empty.
	AppendMessage(ctx context.Context, interviewID string, msg types.ConversationMessage) (types.ConversationMessage, error)
}

// ContextWriter is implemented by stores that can create or replace an
// interview's context. The admin API uses it to seed interviews.
type ContextWriter interface {
	SaveContext(ctx context.Context, ic types.InterviewContext) error
}

// MessageCounter is implemented by stores that can count an interview's
// messages by role without loading them. Sessions load only a bounded window
// of history, so they use it to count every candidate turn.
type MessageCounter interface {
	CountMessages(ctx context.Context, interviewID string, role types.Role) (int, error)
}

// Pinger is implemented by stores with a remote dependency worth probing from
// the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
