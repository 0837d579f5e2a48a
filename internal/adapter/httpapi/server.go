package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/whchoi98/netaiops/internal/domain"
	"github.com/whchoi98/netaiops/internal/infra/config"
	"github.com/whchoi98/netaiops/internal/infra/middleware"
	"github.com/whchoi98/netaiops/internal/usecase/host"
)

// SessionHeader carries the caller's session identity. A request without it
// is rejected outright; session identity is not optional.
const SessionHeader = "X-Session-Id"

// Router is the inbound request surface the server needs.
type Router interface {
	Route(ctx context.Context, req host.Request) (*host.Bridge, error)
}

// Server exposes the host over HTTP: streaming invocations, a health check,
// and the host's own agent card.
type Server struct {
	server *http.Server
	router Router
	card   domain.AgentCard
	logger *slog.Logger
	addr   string

	rateLimitPerMin int
	rateLimitBurst  int

	boundAddr string

	ctx    context.Context
	cancel context.CancelFunc
}

type invokeRequest struct {
	Prompt  string `json:"prompt"`
	ActorID string `json:"actor_id"`
}

type invokeChunk struct {
	Content string `json:"content,omitempty"`
	Notice  bool   `json:"notice,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewServer creates the inbound HTTP server.
func NewServer(cfg config.HostConfig, router Router, logger *slog.Logger) *Server {
	perMin := cfg.RateLimitPerMin
	if perMin < 1 {
		perMin = 100
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 20
	}
	return &Server{
		router: router,
		card: domain.AgentCard{
			Name:        cfg.Name,
			Description: cfg.Description,
			Version:     "1.0.0",
		},
		logger:          logger,
		addr:            cfg.Addr,
		rateLimitPerMin: perMin,
		rateLimitBurst:  burst,
	}
}

// Start begins serving. Non-blocking; the listener is bound before return
// so a bad address fails fast.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/invocations", s.handleInvoke)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/.well-known/agent-card.json", s.handleCard)

	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(s.ctx, s.rateLimitPerMin, s.rateLimitBurst)(mux),
	)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           secureHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: invocations stream for as long as the
		// reasoning call runs.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the actual bound address, useful when Addr was ":0".
func (s *Server) Addr() string { return s.boundAddr }

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, SessionHeader+" header is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	bridge, err := s.router.Route(r.Context(), host.Request{
		Query:     req.Prompt,
		ActorID:   req.ActorID,
		SessionID: sessionID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
		} else {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for {
		ev, ok := bridge.Next()
		if !ok {
			break
		}
		chunk := invokeChunk{Notice: ev.Notice}
		if ev.Error {
			chunk.Error = ev.Content
		} else {
			chunk.Content = ev.Content
		}
		if err := enc.Encode(chunk); err != nil {
			// Client went away; keep draining so the producer finishes.
			s.logger.Debug("client disconnected mid-stream", "session_id", sessionID)
			for {
				if _, more := bridge.Next(); !more {
					break
				}
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := bridge.Err(); err != nil {
		s.logger.Warn("invocation ended with error",
			"session_id", sessionID,
			"code", string(domain.ErrorCodeOf(err)),
		)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.card)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
