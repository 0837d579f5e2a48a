package remote

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/whchoi98/netaiops/internal/domain"
)

// Fixed results the invoker hands back to the reasoning engine. These are
// plain strings, not errors: a delegation outcome is always fed into the
// still-open engine call.
const (
	duplicateResult = "Request already processed - avoiding duplicate call to prevent multiple invocations"
	emptyResult     = "No response received"
)

const defaultRetryDelay = 2 * time.Second

// Invoker sends tasks to registered specialist agents exactly once per
// distinct (agent, task) pair. The dedup key is claimed before dispatch, so
// two concurrent identical requests can never both reach the remote agent;
// the loser gets the duplicate sentinel immediately.
type Invoker struct {
	registry *Registry
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[dedupKey]struct{}

	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

type dedupKey struct {
	agent string
	task  [sha256.Size]byte
}

// NewInvoker creates an Invoker over the given registry.
func NewInvoker(registry *Registry, logger *slog.Logger) *Invoker {
	return &Invoker{
		registry:   registry,
		logger:     logger,
		seen:       make(map[dedupKey]struct{}),
		retryDelay: defaultRetryDelay,
		sleep:      sleepCtx,
	}
}

// Invoke sends task to the named agent and returns the agent's text output.
// Failures are reported in the returned string, never as an error. A
// repeated (agent, task) pair short-circuits with the duplicate sentinel
// without touching the network. An unknown agent name also claims its key:
// asking again for the same missing agent is still a repeat of the same
// request.
func (iv *Invoker) Invoke(ctx context.Context, agentName, task, sessionID string) string {
	key := dedupKey{agent: agentName, task: sha256.Sum256([]byte(task))}

	iv.mu.Lock()
	if _, dup := iv.seen[key]; dup {
		iv.mu.Unlock()
		iv.logger.Info("duplicate delegation suppressed", "agent", agentName, "session_id", sessionID)
		return duplicateResult
	}
	iv.seen[key] = struct{}{}
	iv.mu.Unlock()

	desc, err := iv.registry.Lookup(agentName)
	if err != nil {
		iv.logger.Warn("delegation to unknown agent", "agent", agentName, "session_id", sessionID)
		return fmt.Sprintf("Agent %s not found", agentName)
	}

	msg := domain.NewTextTask(task, ulid.Make().String(), sessionID)

	text, err := iv.send(ctx, desc, msg)
	if err != nil {
		iv.logger.Error("delegation failed",
			"agent", agentName,
			"session_id", sessionID,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return fmt.Sprintf("Error sending message to %s: %v", agentName, err)
	}

	if text == "" {
		return emptyResult
	}
	return text
}

// send dispatches the message, retrying once when the remote reports
// transient overload. No other classification is retried.
func (iv *Invoker) send(ctx context.Context, desc *domain.AgentDescriptor, msg domain.TaskMessage) (string, error) {
	task, err := desc.Conn.SendTask(ctx, msg)
	if err != nil && domain.IsTransientOverload(err) {
		iv.logger.Warn("remote agent overloaded, retrying once",
			"agent", desc.Card.Name,
			"delay", iv.retryDelay,
		)
		if serr := iv.sleep(ctx, iv.retryDelay); serr != nil {
			return "", serr
		}
		task, err = desc.Conn.SendTask(ctx, msg)
	}
	if err != nil {
		return "", err
	}
	return task.Text(), nil
}

// AsDelegate binds the invoker to one session, producing the callback shape
// the reasoning engine expects.
func (iv *Invoker) AsDelegate(sessionID string) domain.DelegateFunc {
	return func(ctx context.Context, agentName, task string) string {
		return iv.Invoke(ctx, agentName, task, sessionID)
	}
}
