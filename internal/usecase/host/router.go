package host

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/whchoi98/netaiops/internal/domain"
)

// Streamer is the gated engine call surface.
type Streamer interface {
	Stream(ctx context.Context, req domain.EngineRequest, emit func(domain.StreamEvent)) error
}

// AgentLister exposes the current registry contents for prompt assembly.
type AgentLister interface {
	All() []*domain.AgentDescriptor
}

// DelegateProvider binds delegation to one session.
type DelegateProvider interface {
	AsDelegate(sessionID string) domain.DelegateFunc
}

// Request is one inbound user turn.
type Request struct {
	Query     string
	ActorID   string
	SessionID string
}

// Router turns an inbound request into a live output stream. Each routed
// request gets its own bridge fed by a producer goroutine; the caller
// drains the bridge and is guaranteed a clean terminal marker on every
// path, panics included.
type Router struct {
	gate     Streamer
	agents   AgentLister
	delegate DelegateProvider
	memory   domain.MemoryHook
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter creates a Router. memory may be nil, disabling turn persistence.
func NewRouter(gate Streamer, agents AgentLister, delegate DelegateProvider, memory domain.MemoryHook, logger *slog.Logger) *Router {
	if memory == nil {
		memory = domain.NoopMemory{}
	}
	return &Router{
		gate:     gate,
		agents:   agents,
		delegate: delegate,
		memory:   memory,
		logger:   logger,
		now:      time.Now,
	}
}

// Route validates the request and starts its producer. A missing session ID
// is fatal for the request: no stream is started and the caller should
// reject the request outright.
func (r *Router) Route(ctx context.Context, req Request) (*Bridge, error) {
	if req.SessionID == "" {
		return nil, domain.NewDomainError("router.route", domain.ErrInvalidInput, "session id is not set")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.NewDomainError("router.route", domain.ErrInvalidInput, "empty query")
	}

	bridge := NewBridge()
	go r.produce(ctx, req, bridge)
	return bridge, nil
}

func (r *Router) produce(ctx context.Context, req Request, bridge *Bridge) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("routing panic", "session_id", req.SessionID, "panic", rec)
			err := fmt.Errorf("routing panic: %v", rec)
			bridge.Push(domain.ErrorEvent(fmt.Sprintf("Error: %v", err)))
			bridge.Fail(err)
		}
	}()

	memCtx, err := r.memory.LoadContext(ctx, req.ActorID, req.SessionID)
	if err != nil {
		// Memory is best-effort; the turn proceeds without history.
		r.logger.Warn("memory load failed", "session_id", req.SessionID, "error", err)
		memCtx = ""
	}

	query := req.Query
	if memCtx != "" {
		query = memCtx + "\n\n" + req.Query
	}

	engineReq := domain.EngineRequest{
		Query:        query,
		SystemPrompt: SystemPrompt(r.agents.All(), r.now()),
		ActorID:      req.ActorID,
		SessionID:    req.SessionID,
		Delegate:     r.delegate.AsDelegate(req.SessionID),
	}

	var answer strings.Builder
	err = r.gate.Stream(ctx, engineReq, func(ev domain.StreamEvent) {
		if !ev.Notice && !ev.Error {
			answer.WriteString(ev.Content)
		}
		bridge.Push(ev)
	})
	if err != nil {
		r.logger.Error("routing failed",
			"session_id", req.SessionID,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		bridge.Push(domain.ErrorEvent(fmt.Sprintf("Error: %v", err)))
		bridge.Fail(err)
		return
	}

	if saveErr := r.memory.SaveTurn(ctx, req.ActorID, req.SessionID, req.Query, answer.String()); saveErr != nil {
		r.logger.Warn("memory save failed", "session_id", req.SessionID, "error", saveErr)
	}
	bridge.Finish()
}
