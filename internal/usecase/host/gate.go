package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/whchoi98/netaiops/internal/domain"
	"github.com/whchoi98/netaiops/internal/infra/config"
)

// Gate bounds calls into the reasoning engine: at most MaxConcurrent calls
// in flight, a minimum spacing between call starts, and bounded retries
// with doubling backoff when the engine reports transient overload. Interim
// notices are emitted before each retry so the consumer sees progress
// instead of silence.
type Gate struct {
	engine  domain.ReasoningEngine
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger

	// sleep is injectable so tests can run backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate wraps engine with dispatch limits from cfg.
func NewGate(engine domain.ReasoningEngine, cfg config.GateConfig, logger *slog.Logger) *Gate {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	minSpacing := cfg.MinSpacing
	if minSpacing <= 0 {
		minSpacing = time.Second
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	return &Gate{
		engine:     engine,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		limiter:    rate.NewLimiter(rate.Every(minSpacing), 1),
		maxRetries: cfg.MaxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Stream runs one gated engine call. Engine output arrives as data events;
// retry progress arrives as notice events. The permit is held across all
// retries of the call and released on every exit path.
func (g *Gate) Stream(ctx context.Context, req domain.EngineRequest, emit func(domain.StreamEvent)) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	for retry := 0; ; retry++ {
		// Spacing applies to every call start, retries included.
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		err := g.engine.Stream(ctx, req, func(chunk string) {
			emit(domain.DataEvent(chunk))
		})
		if err == nil {
			return nil
		}
		if !domain.IsTransientOverload(err) {
			return err
		}
		if retry >= g.maxRetries {
			g.logger.Error("engine still overloaded, giving up",
				"retries", g.maxRetries,
				"session_id", req.SessionID,
			)
			return fmt.Errorf("request throttled after %d retries: %w", g.maxRetries, err)
		}

		delay := g.baseDelay << retry
		g.logger.Warn("engine overloaded, backing off",
			"retry", retry+1,
			"max_retries", g.maxRetries,
			"delay", delay,
			"session_id", req.SessionID,
		)
		emit(domain.NoticeEvent(fmt.Sprintf(
			"Request throttled. Retrying in %.0fs... (attempt %d/%d)",
			delay.Seconds(), retry+1, g.maxRetries,
		)))
		if err := g.sleep(ctx, delay); err != nil {
			return err
		}
	}
}
