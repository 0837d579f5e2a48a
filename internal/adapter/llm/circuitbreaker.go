package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/whchoi98/netaiops/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	// If 0, failures never reset until the circuit opens.
	Interval time.Duration `yaml:"interval"`
}

// CircuitBreakerEngine wraps a ReasoningEngine with circuit breaker
// protection. When the wrapped engine fails repeatedly, the circuit opens
// and subsequent calls fail fast as ErrOverloaded, so upstream dispatch
// treats an open circuit like any other transient overload and backs off.
type CircuitBreakerEngine struct {
	inner   domain.ReasoningEngine
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewCircuitBreakerEngine wraps inner with a circuit breaker.
// If cfg is zero-valued, sensible defaults are used.
func NewCircuitBreakerEngine(inner domain.ReasoningEngine, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerEngine {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "engine:" + inner.Name(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Invalid input is the caller's fault, not the engine's health.
			return err == nil || errors.Is(err, domain.ErrInvalidInput)
		},
	})

	return &CircuitBreakerEngine{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Stream implements domain.ReasoningEngine. Calls are routed through the
// circuit breaker; an open circuit surfaces as ErrOverloaded.
func (e *CircuitBreakerEngine) Stream(ctx context.Context, req domain.EngineRequest, emit func(chunk string)) error {
	_, err := e.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, e.inner.Stream(ctx, req, emit)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: engine %q circuit open: %v", domain.ErrOverloaded, e.inner.Name(), err)
	}
	return err
}

// Name implements domain.ReasoningEngine.
func (e *CircuitBreakerEngine) Name() string { return e.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (e *CircuitBreakerEngine) State() gobreaker.State {
	return e.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (e *CircuitBreakerEngine) Counts() gobreaker.Counts {
	return e.breaker.Counts()
}

var _ domain.ReasoningEngine = (*CircuitBreakerEngine)(nil)
