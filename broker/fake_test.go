package broker

import (
	"context"
	"testing"
)

func TestFake_PublishRequiresConnection(t *testing.T) {
	f := NewFake()
	if err := f.Publish(context.Background(), "a/b", []byte("x"), false); err != ErrNotConnected {
		t.Fatalf("Publish before Connect error = %v, want ErrNotConnected", err)
	}
}

func TestFake_DeliverMatchesSubscribedFilter(t *testing.T) {
	f := NewFake()
	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	var got Message
	received := make(chan struct{}, 1)
	f.OnMessage(func(m Message) {
		got = m
		received <- struct{}{}
	})

	if err := f.Subscribe(context.Background(), "coaty/1/Advertise:+/+/+/+"); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	f.Deliver("coaty/1/Advertise:com.example.Sensor/-/src-1/src-1_1", []byte(`{}`))
	<-received

	if got.Topic == "" {
		t.Fatal("handler was not invoked with a message")
	}
}

func TestFake_DeliverIgnoresUnmatchedTopic(t *testing.T) {
	f := NewFake()
	f.Connect(context.Background())
	calls := 0
	f.OnMessage(func(m Message) { calls++ })
	f.Subscribe(context.Background(), "coaty/1/Advertise:+/+/+/+")
	f.Deliver("coaty/1/Discover/-/src-1/src-1_1", []byte(`{}`))
	if calls != 0 {
		t.Fatalf("handler invoked %d times, want 0 for non-matching topic", calls)
	}
}

func TestFake_SubscribeReferenceCounting(t *testing.T) {
	f := NewFake()
	f.Connect(context.Background())
	f.Subscribe(context.Background(), "x/y")
	f.Subscribe(context.Background(), "x/y")
	if got := f.ActiveFilterCount("x/y"); got != 2 {
		t.Fatalf("ActiveFilterCount = %d, want 2", got)
	}
	f.Unsubscribe(context.Background(), "x/y")
	if got := f.ActiveFilterCount("x/y"); got != 1 {
		t.Fatalf("ActiveFilterCount after one unsubscribe = %d, want 1", got)
	}
	f.Unsubscribe(context.Background(), "x/y")
	if got := f.ActiveFilterCount("x/y"); got != 0 {
		t.Fatalf("ActiveFilterCount after second unsubscribe = %d, want 0", got)
	}
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/b/c", false},
		{"a/#", "a/b/c/d", true},
		{"a/#", "a", true},
		{"a/b", "a/b/c", false},
		{"+/+/+/+/+/+", "coaty/1/Advertise:x/-/src/src_1", true},
	}
	for _, c := range cases {
		if got := topicMatches(c.filter, c.topic); got != c.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestFake_ConnectErrorInjection(t *testing.T) {
	f := NewFake()
	f.SetConnectError(ErrNotConnected)
	if err := f.Connect(context.Background()); err == nil {
		t.Fatal("expected injected connect error")
	}
	// Error is consumed once; next Connect should succeed.
	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect error: %v", err)
	}
}

func TestFake_ReconnectNotifiesObserver(t *testing.T) {
	f := NewFake()
	f.Connect(context.Background())

	events := make(chan bool, 2)
	f.OnConnectionChange(func(up bool, lost error) { events <- up })

	f.SimulateDisconnect(nil)
	if up := <-events; up {
		t.Fatal("expected down notification first")
	}
	f.SimulateReconnect()
	if up := <-events; !up {
		t.Fatal("expected up notification second")
	}
}
