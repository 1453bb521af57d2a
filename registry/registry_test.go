package registry

import (
	"context"
	"testing"

	"github.com/agentmesh/commcore/broker"
)

func TestAttach_SubscribesOnFirstAttach(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	if _, err := r.Attach(context.Background(), "coaty/1/Advertise:+/+/+/+", func(broker.Message) {}); err != nil {
		t.Fatalf("Attach error: %v", err)
	}
	if got := f.ActiveFilterCount("coaty/1/Advertise:+/+/+/+"); got != 1 {
		t.Fatalf("broker filter count = %d, want 1", got)
	}
}

func TestAttach_SharedFilterSubscribesOnce(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	filter := "coaty/1/Discover/+/+/+"
	r.Attach(context.Background(), filter, func(broker.Message) {})
	r.Attach(context.Background(), filter, func(broker.Message) {})

	if got := f.ActiveFilterCount(filter); got != 1 {
		t.Fatalf("broker filter count = %d, want 1 (registry must not double-subscribe)", got)
	}
	if got := r.RefCount(filter); got != 2 {
		t.Fatalf("RefCount = %d, want 2", got)
	}
}

func TestDetach_UnsubscribesOnlyAfterLastDetach(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	filter := "coaty/1/Discover/+/+/+"
	id1, _ := r.Attach(context.Background(), filter, func(broker.Message) {})
	id2, _ := r.Attach(context.Background(), filter, func(broker.Message) {})

	if err := r.Detach(context.Background(), filter, id1); err != nil {
		t.Fatalf("Detach error: %v", err)
	}
	if got := f.ActiveFilterCount(filter); got != 1 {
		t.Fatalf("after first detach, broker filter count = %d, want 1", got)
	}

	if err := r.Detach(context.Background(), filter, id2); err != nil {
		t.Fatalf("Detach error: %v", err)
	}
	if got := f.ActiveFilterCount(filter); got != 0 {
		t.Fatalf("after last detach, broker filter count = %d, want 0", got)
	}
}

func TestDispatch_DeliversOnlyToMatchingFilters(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	var advertiseCount, discoverCount int
	r.Attach(context.Background(), "coaty/1/Advertise:+/+/+/+", func(broker.Message) { advertiseCount++ })
	r.Attach(context.Background(), "coaty/1/Discover/+/+/+", func(broker.Message) { discoverCount++ })

	f.Deliver("coaty/1/Advertise:com.example.Sensor/-/src-1/src-1_1", []byte(`{}`))

	if advertiseCount != 1 {
		t.Errorf("advertiseCount = %d, want 1", advertiseCount)
	}
	if discoverCount != 0 {
		t.Errorf("discoverCount = %d, want 0", discoverCount)
	}
}

func TestDispatch_FansOutToAllSharedHandlers(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	filter := "coaty/1/Discover/+/+/+"
	var calls int
	r.Attach(context.Background(), filter, func(broker.Message) { calls++ })
	r.Attach(context.Background(), filter, func(broker.Message) { calls++ })

	f.Deliver("coaty/1/Discover/-/src-1/src-1_1", []byte(`{}`))

	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (both attached handlers should fire)", calls)
	}
}

// TestDispatch_DeliversInAttachOrder exercises spec §4.4's insertion-
// order guarantee: handlers sharing a filter fire in the order they
// were attached, not in map iteration order.
func TestDispatch_DeliversInAttachOrder(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	filter := "coaty/1/Discover/+/+/+"
	var order []int
	for i := 0; i < 8; i++ {
		i := i
		r.Attach(context.Background(), filter, func(broker.Message) { order = append(order, i) })
	}

	f.Deliver("coaty/1/Discover/-/src-1/src-1_1", []byte(`{}`))

	if len(order) != 8 {
		t.Fatalf("order = %v, want 8 entries", order)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("handler fired in position %d reported id %d, want %d (attach order)", i, got, i)
		}
	}
}

func TestReconnect_RestoresActiveFilters(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)

	filter := "coaty/1/Discover/+/+/+"
	r.Attach(context.Background(), filter, func(broker.Message) {})

	f.SimulateDisconnect(nil)
	f.SimulateReconnect()

	if got := f.ActiveFilterCount(filter); got != 1 {
		t.Fatalf("after reconnect, broker filter count = %d, want 1", got)
	}
}

func TestDetach_UnknownFilterErrors(t *testing.T) {
	f := broker.NewFake()
	f.Connect(context.Background())
	r := New(f)
	if err := r.Detach(context.Background(), "no/such/filter", 1); err == nil {
		t.Fatal("expected error detaching from a filter with no attachments")
	}
}
