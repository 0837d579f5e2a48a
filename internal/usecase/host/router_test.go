package host

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/whchoi98/netaiops/internal/domain"
)

type fakeStreamer struct {
	fn func(ctx context.Context, req domain.EngineRequest, emit func(domain.StreamEvent)) error
}

func (f *fakeStreamer) Stream(ctx context.Context, req domain.EngineRequest, emit func(domain.StreamEvent)) error {
	return f.fn(ctx, req, emit)
}

type fakeLister struct{ agents []*domain.AgentDescriptor }

func (f *fakeLister) All() []*domain.AgentDescriptor { return f.agents }

type fakeDelegates struct{ lastSession string }

func (f *fakeDelegates) AsDelegate(sessionID string) domain.DelegateFunc {
	f.lastSession = sessionID
	return func(context.Context, string, string) string { return "" }
}

type recordingMemory struct {
	context  string
	loadErr  error
	saveErr  error
	saved    bool
	savedQ   string
	savedA   string
}

func (m *recordingMemory) LoadContext(_ context.Context, _, _ string) (string, error) {
	return m.context, m.loadErr
}

func (m *recordingMemory) SaveTurn(_ context.Context, _, _, query, answer string) error {
	m.saved = true
	m.savedQ = query
	m.savedA = answer
	return m.saveErr
}

func newTestRouter(streamer Streamer, memory domain.MemoryHook) (*Router, *fakeDelegates) {
	delegates := &fakeDelegates{}
	r := NewRouter(streamer, &fakeLister{agents: descs("VPC_Analyzer", "Analyzes VPCs")}, delegates, memory, testLogger())
	return r, delegates
}

func TestRouteMissingSessionFatal(t *testing.T) {
	r, _ := newTestRouter(&fakeStreamer{}, nil)

	_, err := r.Route(context.Background(), Request{Query: "hello", ActorID: "a"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestRouteEmptyQueryRejected(t *testing.T) {
	r, _ := newTestRouter(&fakeStreamer{}, nil)

	_, err := r.Route(context.Background(), Request{Query: "   ", SessionID: "s"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestRouteStreamsAndFinishes(t *testing.T) {
	streamer := &fakeStreamer{fn: func(_ context.Context, req domain.EngineRequest, emit func(domain.StreamEvent)) error {
		if req.SessionID != "sess-1" {
			t.Errorf("SessionID = %q", req.SessionID)
		}
		if !strings.Contains(req.SystemPrompt, "VPC_Analyzer") {
			t.Error("system prompt missing registered agent")
		}
		if req.Delegate == nil {
			t.Error("delegate not bound")
		}
		emit(domain.DataEvent("routing "))
		emit(domain.DataEvent("done"))
		return nil
	}}
	mem := &recordingMemory{}
	r, delegates := newTestRouter(streamer, mem)

	bridge, err := r.Route(context.Background(), Request{Query: "check vpc", ActorID: "actor", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	events := drain(bridge)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if bridge.Err() != nil {
		t.Errorf("Err = %v", bridge.Err())
	}
	if delegates.lastSession != "sess-1" {
		t.Errorf("delegate session = %q", delegates.lastSession)
	}
	if !mem.saved || mem.savedQ != "check vpc" || mem.savedA != "routing done" {
		t.Errorf("memory save: %+v", mem)
	}
}

func TestRouteNoticesExcludedFromSavedAnswer(t *testing.T) {
	streamer := &fakeStreamer{fn: func(_ context.Context, _ domain.EngineRequest, emit func(domain.StreamEvent)) error {
		emit(domain.NoticeEvent("Request throttled. Retrying..."))
		emit(domain.DataEvent("answer"))
		return nil
	}}
	mem := &recordingMemory{}
	r, _ := newTestRouter(streamer, mem)

	bridge, _ := r.Route(context.Background(), Request{Query: "q", SessionID: "s"})
	drain(bridge)

	if mem.savedA != "answer" {
		t.Errorf("saved answer = %q", mem.savedA)
	}
}

func TestRouteFailureTerminatesCleanly(t *testing.T) {
	wantErr := errors.New("engine down")
	streamer := &fakeStreamer{fn: func(_ context.Context, _ domain.EngineRequest, emit func(domain.StreamEvent)) error {
		emit(domain.DataEvent("partial"))
		return wantErr
	}}
	mem := &recordingMemory{}
	r, _ := newTestRouter(streamer, mem)

	bridge, err := r.Route(context.Background(), Request{Query: "q", SessionID: "s"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	events := drain(bridge)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	last := events[len(events)-1]
	if !last.Error || !strings.Contains(last.Content, "engine down") {
		t.Errorf("terminal event = %+v", last)
	}
	if !errors.Is(bridge.Err(), wantErr) {
		t.Errorf("Err = %v", bridge.Err())
	}
	if mem.saved {
		t.Error("failed turns must not be persisted")
	}
}

func TestRouteMemoryLoadFailureNonFatal(t *testing.T) {
	streamer := &fakeStreamer{fn: func(_ context.Context, req domain.EngineRequest, emit func(domain.StreamEvent)) error {
		if req.Query != "q" {
			t.Errorf("Query = %q, history must be dropped on load failure", req.Query)
		}
		emit(domain.DataEvent("ok"))
		return nil
	}}
	mem := &recordingMemory{loadErr: errors.New("memory unavailable")}
	r, _ := newTestRouter(streamer, mem)

	bridge, _ := r.Route(context.Background(), Request{Query: "q", SessionID: "s"})
	events := drain(bridge)
	if len(events) != 1 || events[0].Content != "ok" {
		t.Errorf("events = %+v", events)
	}
}

func TestRouteMemoryContextPrepended(t *testing.T) {
	var gotQuery string
	streamer := &fakeStreamer{fn: func(_ context.Context, req domain.EngineRequest, _ func(domain.StreamEvent)) error {
		gotQuery = req.Query
		return nil
	}}
	mem := &recordingMemory{context: "Previous conversation:\nuser asked about VPCs"}
	r, _ := newTestRouter(streamer, mem)

	bridge, _ := r.Route(context.Background(), Request{Query: "and peering?", SessionID: "s"})
	drain(bridge)

	if !strings.HasPrefix(gotQuery, "Previous conversation:") || !strings.HasSuffix(gotQuery, "and peering?") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestRoutePanicRecovered(t *testing.T) {
	streamer := &fakeStreamer{fn: func(context.Context, domain.EngineRequest, func(domain.StreamEvent)) error {
		panic("boom")
	}}
	r, _ := newTestRouter(streamer, nil)

	bridge, err := r.Route(context.Background(), Request{Query: "q", SessionID: "s"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	events := drain(bridge)
	if len(events) != 1 || !events[0].Error {
		t.Fatalf("events = %+v", events)
	}
	if bridge.Err() == nil || !strings.Contains(bridge.Err().Error(), "boom") {
		t.Errorf("Err = %v", bridge.Err())
	}
}
