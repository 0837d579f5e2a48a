package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/whchoi98/netaiops/internal/domain"
	"github.com/whchoi98/netaiops/internal/infra/config"
)

func testLogger() *slog.Logger { return slog.Default() }

type fakeEngine struct {
	mu         sync.Mutex
	calls      int
	streamFunc func(call int, ctx context.Context, req domain.EngineRequest, emit func(string)) error
}

func (f *fakeEngine) Stream(ctx context.Context, req domain.EngineRequest, emit func(chunk string)) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.streamFunc(call, ctx, req, emit)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gateCfg has no spacing so tests run fast.
func gateCfg(maxConcurrent, maxRetries int) config.GateConfig {
	return config.GateConfig{
		MaxConcurrent: maxConcurrent,
		MinSpacing:    time.Nanosecond,
		MaxRetries:    maxRetries,
		BaseDelay:     2 * time.Second,
	}
}

func newTestGate(engine *fakeEngine, cfg config.GateConfig) (*Gate, *[]time.Duration) {
	g := NewGate(engine, cfg, testLogger())
	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return g, &slept
}

func collectEvents(events *[]domain.StreamEvent) func(domain.StreamEvent) {
	var mu sync.Mutex
	return func(ev domain.StreamEvent) {
		mu.Lock()
		*events = append(*events, ev)
		mu.Unlock()
	}
}

func TestGatePassesThroughOutput(t *testing.T) {
	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, emit func(string)) error {
		emit("hello ")
		emit("world")
		return nil
	}}
	g, _ := newTestGate(engine, gateCfg(2, 3))

	var events []domain.StreamEvent
	err := g.Stream(context.Background(), domain.EngineRequest{}, collectEvents(&events))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(events) != 2 || events[0].Content != "hello " || events[1].Content != "world" {
		t.Errorf("events = %+v", events)
	}
}

func TestGateRetriesOnOverloadWithDoublingBackoff(t *testing.T) {
	engine := &fakeEngine{streamFunc: func(call int, _ context.Context, _ domain.EngineRequest, emit func(string)) error {
		if call <= 2 {
			return fmt.Errorf("%w: throttled", domain.ErrOverloaded)
		}
		emit("recovered")
		return nil
	}}
	g, slept := newTestGate(engine, gateCfg(2, 3))

	var events []domain.StreamEvent
	err := g.Stream(context.Background(), domain.EngineRequest{}, collectEvents(&events))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if engine.callCount() != 3 {
		t.Errorf("engine calls = %d, want 3", engine.callCount())
	}

	// Two failures produce two interim notices, then the data arrives.
	var notices, data int
	for _, ev := range events {
		if ev.Notice {
			notices++
		} else {
			data++
		}
	}
	if notices != 2 || data != 1 {
		t.Errorf("notices = %d, data = %d, events = %+v", notices, data, events)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("backoff = %v, want %v", *slept, want)
	}
}

func TestGateExhaustsRetries(t *testing.T) {
	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		return fmt.Errorf("%w: throttled", domain.ErrOverloaded)
	}}
	g, slept := newTestGate(engine, gateCfg(2, 3))

	var events []domain.StreamEvent
	err := g.Stream(context.Background(), domain.EngineRequest{}, collectEvents(&events))
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsTransientOverload(err) {
		t.Errorf("error lost its classification: %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 retries") {
		t.Errorf("err = %v", err)
	}

	// 1 initial call + 3 retries, never a 5th.
	if engine.callCount() != 4 {
		t.Errorf("engine calls = %d, want 4", engine.callCount())
	}
	if len(events) != 3 {
		t.Errorf("interim notices = %d, want 3: %+v", len(events), events)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*slept) != 3 {
		t.Fatalf("backoff = %v", *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestGateNoRetryOnTerminalError(t *testing.T) {
	wantErr := errors.New("validation failed")
	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		return wantErr
	}}
	g, _ := newTestGate(engine, gateCfg(2, 3))

	err := g.Stream(context.Background(), domain.EngineRequest{}, func(domain.StreamEvent) {})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if engine.callCount() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.callCount())
	}
}

func TestGateZeroRetriesConfigured(t *testing.T) {
	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		return domain.ErrOverloaded
	}}
	g, _ := newTestGate(engine, gateCfg(2, 0))

	err := g.Stream(context.Background(), domain.EngineRequest{}, func(domain.StreamEvent) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if engine.callCount() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.callCount())
	}
}

func TestGateConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	block := make(chan struct{})

	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		cur := inFlight.Add(1)
		for {
			max := maxInFlight.Load()
			if cur <= max || maxInFlight.CompareAndSwap(max, cur) {
				break
			}
		}
		<-block
		inFlight.Add(-1)
		return nil
	}}
	g, _ := newTestGate(engine, gateCfg(2, 0))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Stream(context.Background(), domain.EngineRequest{}, func(domain.StreamEvent) {})
		}()
	}

	// Let the first two acquire, then release everyone.
	time.Sleep(50 * time.Millisecond)
	if got := maxInFlight.Load(); got > 2 {
		t.Errorf("max in flight = %d, want <= 2", got)
	}
	close(block)
	wg.Wait()

	if engine.callCount() != 5 {
		t.Errorf("engine calls = %d, want 5", engine.callCount())
	}
	if got := maxInFlight.Load(); got > 2 {
		t.Errorf("max in flight = %d, want <= 2", got)
	}
}

func TestGateMinSpacingBetweenCallStarts(t *testing.T) {
	const spacing = 100 * time.Millisecond

	var mu sync.Mutex
	var starts []time.Time
	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	}}
	g, _ := newTestGate(engine, config.GateConfig{
		MaxConcurrent: 4,
		MinSpacing:    spacing,
		BaseDelay:     2 * time.Second,
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Stream(context.Background(), domain.EngineRequest{}, func(domain.StreamEvent) {})
		}()
	}
	wg.Wait()

	if len(starts) != 4 {
		t.Fatalf("engine calls = %d, want 4", len(starts))
	}
	sortTimes(starts)
	// Timestamps are taken after the limiter admits the call, so scheduling
	// jitter can only shrink an observed gap slightly.
	const tolerance = 20 * time.Millisecond
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < spacing-tolerance {
			t.Errorf("gap between call %d and %d = %v, want >= %v", i-1, i, gap, spacing)
		}
	}
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}

func TestGatePermitReleasedAfterFailure(t *testing.T) {
	engine := &fakeEngine{streamFunc: func(call int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		if call == 1 {
			return errors.New("boom")
		}
		return nil
	}}
	g, _ := newTestGate(engine, gateCfg(1, 0))

	g.Stream(context.Background(), domain.EngineRequest{}, func(domain.StreamEvent) {})

	// A second call must not deadlock on a leaked permit.
	done := make(chan error, 1)
	go func() {
		done <- g.Stream(context.Background(), domain.EngineRequest{}, func(domain.StreamEvent) {})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("second call: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("permit leaked, second call blocked")
	}
}

func TestGateContextCanceledDuringBackoff(t *testing.T) {
	engine := &fakeEngine{streamFunc: func(_ int, _ context.Context, _ domain.EngineRequest, _ func(string)) error {
		return domain.ErrOverloaded
	}}
	g := NewGate(engine, gateCfg(2, 3), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	g.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := g.Stream(ctx, domain.EngineRequest{}, func(domain.StreamEvent) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if engine.callCount() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.callCount())
	}
}
