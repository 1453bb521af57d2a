package correlate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentmesh/commcore/broker"
	"github.com/agentmesh/commcore/event"
	"github.com/agentmesh/commcore/object"
	"github.com/agentmesh/commcore/registry"
	"github.com/agentmesh/commcore/topic"
)

// Source ids of the simulated agents; topic encoding requires UUIDs.
const (
	agentA = "3d34eb53-2536-4134-b0cd-8c406b94bb80"
	agentB = "0ea293e5-f8be-4a5d-886b-0e231e8234b2"
	agentC = "5b7f7b4c-2f1e-4d8a-9c3b-1a2b3c4d5e6f"
)

func newTestEngine(t *testing.T, sourceID string) (*Engine, *broker.Fake) {
	t.Helper()
	f := broker.NewFake()
	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	reg := registry.New(f)
	return New(f, reg, sourceID, nil, false), f
}

// respondWithResolve simulates a peer (sourceID) replying to a Discover
// request with a Resolve event addressed back at the requester's
// response filter.
func respondWithResolve(t *testing.T, f *broker.Fake, requestTopic, sourceID string) {
	t.Helper()
	reqTopic, err := topic.Decode(requestTopic)
	if err != nil {
		t.Fatalf("decode request topic: %v", err)
	}
	obj, _ := object.New(object.CoreObject, "coaty.test.MockObject", "n")
	body, err := event.EncodeBody(event.ResolveData{Object: &obj})
	if err != nil {
		t.Fatalf("EncodeBody error: %v", err)
	}
	respTopic := topic.Topic{
		Kind:   event.KindResolve,
		Source: topic.Identifier{ID: sourceID},
		Token:  reqTopic.Token,
	}
	wire, err := respTopic.Encode(false)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	f.Deliver(wire, body)
}

func TestDiscoverResolve_TwoAgentsRespond(t *testing.T) {
	engine, f := newTestEngine(t, agentA)

	req, err := engine.Publish(event.KindDiscover, "", event.DiscoverData{ObjectTypes: []string{"coaty.test.MockObject"}})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	ch, err := req.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe error: %v", err)
	}

	published := f.Published()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	requestTopic := published[0].Topic

	respondWithResolve(t, f, requestTopic, agentB)
	respondWithResolve(t, f, requestTopic, agentC)

	var got []Response
	for i := 0; i < 2; i++ {
		select {
		case r := <-ch:
			got = append(got, r)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for response %d", i+1)
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d responses, want 2", len(got))
	}
	for _, r := range got {
		if r.Raw.SourceID == agentA {
			t.Errorf("received a response with our own sourceId (echo not suppressed)")
		}
		if r.Request.MessageToken != req.Token() {
			t.Errorf("Request.MessageToken = %q, want %q", r.Request.MessageToken, req.Token())
		}
	}
}

func TestDiscoverResolve_EchoSuppressed(t *testing.T) {
	engine, f := newTestEngine(t, agentA)

	req, _ := engine.Publish(event.KindDiscover, "", event.DiscoverData{ObjectTypes: []string{"x"}})
	ch, err := req.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe error: %v", err)
	}

	requestTopic := f.Published()[0].Topic
	respondWithResolve(t, f, requestTopic, agentA) // echo: same source as requester

	select {
	case r := <-ch:
		t.Fatalf("expected no response (echo), got %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestObserve_SecondCallForbidden(t *testing.T) {
	engine, _ := newTestEngine(t, agentA)
	req, _ := engine.Publish(event.KindDiscover, "", event.DiscoverData{ObjectTypes: []string{"x"}})

	if _, err := req.Observe(context.Background()); err != nil {
		t.Fatalf("first Observe error: %v", err)
	}
	if _, err := req.Observe(context.Background()); err != ErrResubscribeForbidden {
		t.Fatalf("second Observe error = %v, want ErrResubscribeForbidden", err)
	}
}

func TestResubscribeForbidden_AfterDetach(t *testing.T) {
	engine, f := newTestEngine(t, agentA)
	req, _ := engine.Publish(event.KindUpdate, "com.example.Thing", event.UpdateData{ObjectID: "thing-1"})

	if _, err := req.Observe(context.Background()); err != nil {
		t.Fatalf("Observe error: %v", err)
	}
	if err := req.Detach(context.Background()); err != nil {
		t.Fatalf("Detach error: %v", err)
	}

	before := f.ActiveFilterCount(req.filter)
	if _, err := req.Observe(context.Background()); err != ErrResubscribeForbidden {
		t.Fatalf("Observe after Detach error = %v, want ErrResubscribeForbidden", err)
	}
	if got := f.ActiveFilterCount(req.filter); got != before {
		t.Fatalf("forbidden resubscribe attempt produced broker traffic: filter count %d -> %d", before, got)
	}
}

func TestPublish_CallUsesOperationNameFilter(t *testing.T) {
	engine, _ := newTestEngine(t, agentA)
	req, err := engine.Publish(event.KindCall, "switchLight", event.CallData{
		Operation:  "switchLight",
		Parameters: json.RawMessage(`{"on":true}`),
	})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	want := "coaty/1/Return:switchLight/+/+/" + req.Token()
	if req.filter != want {
		t.Fatalf("response filter = %q, want %q", req.filter, want)
	}
}

func TestPublish_UpdateWildcardsCompleteFilter(t *testing.T) {
	engine, _ := newTestEngine(t, agentA)
	req, err := engine.Publish(event.KindUpdate, "com.example.Thing", event.UpdateData{ObjectID: "thing-1"})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	want := "coaty/1/Complete:+/+/+/" + req.Token()
	if req.filter != want {
		t.Fatalf("response filter = %q, want %q", req.filter, want)
	}
}

func TestPublish_RejectsNonCorrelatedKind(t *testing.T) {
	engine, _ := newTestEngine(t, agentA)
	if _, err := engine.Publish(event.KindAdvertise, "x", nil); err == nil {
		t.Fatal("expected error publishing Advertise as a correlated request")
	}
}
