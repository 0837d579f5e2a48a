package domain

import "context"

// MemoryHook is the long-term memory collaborator. Storage and retrieval
// live outside this process; the host only loads prior context before a
// reasoning call and persists the finished turn after it.
type MemoryHook interface {
	// LoadContext returns prior conversation context for the actor/session,
	// or "" when none exists.
	LoadContext(ctx context.Context, actorID, sessionID string) (string, error)
	// SaveTurn persists one completed query/answer turn.
	SaveTurn(ctx context.Context, actorID, sessionID, query, answer string) error
}

// NoopMemory is a MemoryHook that remembers nothing.
type NoopMemory struct{}

func (NoopMemory) LoadContext(context.Context, string, string) (string, error) { return "", nil }

func (NoopMemory) SaveTurn(context.Context, string, string, string, string) error { return nil }

var _ MemoryHook = NoopMemory{}
