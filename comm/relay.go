package comm

import (
	"context"

	"github.com/agentmesh/commcore/broker"
	"github.com/agentmesh/commcore/event"
	"github.com/agentmesh/commcore/topic"
)

// relay sits between the Manager's broker.Client and the Subscription
// Registry it drives. It implements broker.Client itself so the
// Registry can be constructed exactly as it is anywhere else, while
// giving the Manager two things a plain passthrough cannot: a second
// connection observer slot (the Registry already claims the one
// broker.Client exposes) and echo suppression of our own published
// events before they ever reach the Registry's dispatch (spec §4.6 —
// every inbound event whose sourceId is our own is dropped, except
// Raw, which bypasses the topic grammar entirely).
type relay struct {
	client   broker.Client
	sourceID string

	handler          broker.Handler
	registryObserver broker.ConnectionObserver
	extraObservers   []broker.ConnectionObserver
}

func newRelay(client broker.Client, sourceID string) *relay {
	r := &relay{client: client, sourceID: sourceID}
	client.OnMessage(r.onMessage)
	client.OnConnectionChange(r.onConnectionChange)
	return r
}

// addConnectionObserver registers an additional observer notified after
// the Registry's own. Not part of broker.Client; only the Manager calls
// this, once, at construction.
func (r *relay) addConnectionObserver(o broker.ConnectionObserver) {
	r.extraObservers = append(r.extraObservers, o)
}

func (r *relay) onMessage(m broker.Message) {
	if t, err := topic.Decode(m.Topic); err == nil {
		if t.Kind != event.KindRaw && t.Source.ID == r.sourceID {
			return
		}
	}
	if r.handler != nil {
		r.handler(m)
	}
}

func (r *relay) onConnectionChange(up bool, lost error) {
	if r.registryObserver != nil {
		r.registryObserver(up, lost)
	}
	for _, o := range r.extraObservers {
		o(up, lost)
	}
}

func (r *relay) Connect(ctx context.Context) error { return r.client.Connect(ctx) }

func (r *relay) Publish(ctx context.Context, t string, payload []byte, retain bool) error {
	return r.client.Publish(ctx, t, payload, retain)
}

func (r *relay) Subscribe(ctx context.Context, filter string) error {
	return r.client.Subscribe(ctx, filter)
}

func (r *relay) Unsubscribe(ctx context.Context, filter string) error {
	return r.client.Unsubscribe(ctx, filter)
}

func (r *relay) OnMessage(h broker.Handler) { r.handler = h }

func (r *relay) OnConnectionChange(o broker.ConnectionObserver) { r.registryObserver = o }

func (r *relay) Disconnect(ctx context.Context) error { return r.client.Disconnect(ctx) }
