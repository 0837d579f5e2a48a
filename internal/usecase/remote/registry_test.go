package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/whchoi98/netaiops/internal/domain"
)

func testLogger() *slog.Logger { return slog.Default() }

type stubConn struct {
	sendFunc func(ctx context.Context, msg domain.TaskMessage) (*domain.Task, error)
}

func (c *stubConn) SendTask(ctx context.Context, msg domain.TaskMessage) (*domain.Task, error) {
	return c.sendFunc(ctx, msg)
}

func makeDescriptor(name, endpoint string) *domain.AgentDescriptor {
	return &domain.AgentDescriptor{
		Card:     domain.AgentCard{Name: name, Description: name + " specialist"},
		Endpoint: endpoint,
		Conn:     &stubConn{},
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(makeDescriptor("VPC_Analyzer", "http://vpc:9000"))

	got, err := r.Lookup("VPC_Analyzer")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Endpoint != "http://vpc:9000" {
		t.Errorf("Endpoint = %q", got.Endpoint)
	}
}

func TestRegistryLookupNotFound(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Lookup("nope")
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(makeDescriptor("TGW_Analyzer", "http://old:9000"))
	r.Register(makeDescriptor("TGW_Analyzer", "http://new:9000"))

	got, err := r.Lookup("TGW_Analyzer")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Endpoint != "http://new:9000" {
		t.Errorf("Endpoint = %q, want the replacement", got.Endpoint)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(makeDescriptor("Zed", "http://z:9000"))
	r.Register(makeDescriptor("Alpha", "http://a:9000"))
	r.Register(makeDescriptor("Mid", "http://m:9000"))

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	want := []string{"Alpha", "Mid", "Zed"}
	for i, desc := range all {
		if desc.Card.Name != want[i] {
			t.Errorf("all[%d] = %q, want %q", i, desc.Card.Name, want[i])
		}
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(makeDescriptor("A", "http://a:9000"))

	if err := r.Remove("A"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove("A"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(testLogger())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("agent-%d", n%5)
			r.Register(makeDescriptor(name, "http://x:9000"))
			r.Lookup(name)
			r.All()
		}(i)
	}
	wg.Wait()

	if r.Len() != 5 {
		t.Errorf("Len = %d, want 5", r.Len())
	}
}
