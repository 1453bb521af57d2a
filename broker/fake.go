package broker

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-process Client used by this module's own tests and by
// any controller test that wants to exercise pub/sub without a real
// broker. It implements MQTT-style topic matching for '+' and '#'
// wildcards so Subscription Registry and Correlation Engine tests can
// run against it unmodified from the real adapter's wiring.
type Fake struct {
	mu          sync.Mutex
	connected   bool
	filters     map[string]int
	handler     Handler
	connObserv  ConnectionObserver
	published   []Message
	connectErr  error
}

// NewFake returns a disconnected Fake broker.
func NewFake() *Fake {
	return &Fake{filters: map[string]int{}}
}

// SetConnectError makes the next Connect call fail with err.
func (f *Fake) SetConnectError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.connectErr != nil {
		err := f.connectErr
		f.connectErr = nil
		f.mu.Unlock()
		return err
	}
	f.connected = true
	o := f.connObserv
	f.mu.Unlock()

	if o != nil {
		o(true, nil)
	}
	return nil
}

// Deliver simulates an inbound broker message, dispatching to the
// registered handler if topic matches at least one active filter.
func (f *Fake) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	matches := false
	for filter := range f.filters {
		if topicMatches(filter, topic) {
			matches = true
			break
		}
	}
	h := f.handler
	f.mu.Unlock()
	if matches && h != nil {
		h(Message{Topic: topic, Payload: payload})
	}
}

// Published returns every message Publish has sent so far, in order.
func (f *Fake) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.published))
	copy(out, f.published)
	return out
}

// SimulateDisconnect notifies the connection observer of a dropped
// link and forgets every subscribed filter, as a broker does for a
// session it loses, letting tests exercise reconnect/resubscribe
// behavior.
func (f *Fake) SimulateDisconnect(err error) {
	f.mu.Lock()
	f.connected = false
	f.filters = map[string]int{}
	o := f.connObserv
	f.mu.Unlock()
	if o != nil {
		o(false, err)
	}
}

// SimulateReconnect notifies the connection observer of a restored
// link.
func (f *Fake) SimulateReconnect() {
	f.mu.Lock()
	f.connected = true
	o := f.connObserv
	f.mu.Unlock()
	if o != nil {
		o(true, nil)
	}
}

func (f *Fake) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.published = append(f.published, Message{Topic: topic, Payload: cp})
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters[filter]++
	return nil
}

func (f *Fake) Unsubscribe(ctx context.Context, filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filters[filter] <= 1 {
		delete(f.filters, filter)
	} else {
		f.filters[filter]--
	}
	return nil
}

// ActiveFilterCount reports how many times filter is currently
// subscribed (tests use this to assert reference-counting behavior at
// the transport boundary, though the real reference counting lives in
// the Subscription Registry).
func (f *Fake) ActiveFilterCount(filter string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[filter]
}

func (f *Fake) OnMessage(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *Fake) OnConnectionChange(o ConnectionObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connObserv = o
}

func (f *Fake) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// topicMatches implements MQTT topic-filter matching: '+' matches
// exactly one level, '#' (only legal as the final level) matches all
// remaining levels.
func topicMatches(filter, topic string) bool {
	fLevels := strings.Split(filter, "/")
	tLevels := strings.Split(topic, "/")

	for i, fl := range fLevels {
		if fl == "#" {
			return true
		}
		if i >= len(tLevels) {
			return false
		}
		if fl != "+" && fl != tLevels[i] {
			return false
		}
	}
	return len(fLevels) == len(tLevels)
}
