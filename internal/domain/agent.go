package domain

import "context"

// AgentCard is the capability descriptor a remote specialist agent advertises
// at /.well-known/agent-card.json.
type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version,omitempty"`
	URL         string `json:"url,omitempty"`
}

// AgentDescriptor couples a discovered card with the endpoint it was fetched
// from and an opened connection for sending tasks. Descriptors are immutable
// after creation and owned by the registry.
type AgentDescriptor struct {
	Card     AgentCard
	Endpoint string
	Conn     AgentConnection
}

// AgentConnection sends one task message to a remote agent and returns the
// resulting task object.
type AgentConnection interface {
	SendTask(ctx context.Context, msg TaskMessage) (*Task, error)
}

// DelegateFunc serves one delegation request raised by the reasoning engine
// during a call. The returned string is fed back into the still-open call;
// failures are reported inside the string, never as an error, so a single
// user action cannot amplify into repeated outbound calls.
type DelegateFunc func(ctx context.Context, agentName, task string) string

// EngineRequest is one reasoning call.
type EngineRequest struct {
	Query        string
	SystemPrompt string
	ActorID      string
	SessionID    string

	// Delegate is invoked synchronously whenever the engine requests
	// delegation to a named specialist. May be nil when no specialists
	// are registered.
	Delegate DelegateFunc
}

// ReasoningEngine is the backing reasoning/generation collaborator. Stream
// runs one call, emitting ordered output chunks through emit as they arrive.
// The returned error is classified via the domain sentinels; ErrOverloaded
// is the only classification callers may retry.
type ReasoningEngine interface {
	Stream(ctx context.Context, req EngineRequest, emit func(chunk string)) error
	Name() string
}
