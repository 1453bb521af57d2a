// Package broker defines the transport boundary between the
// communication core and an MQTT broker (spec §4.3): connect/publish/
// subscribe/unsubscribe over a topic-filter abstraction, independent of
// which MQTT client library backs it.
package broker

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by operations attempted before Connect
// has completed, or after the connection has been permanently closed.
var ErrNotConnected = errors.New("broker: not connected")

// Message is an inbound publication delivered to a subscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives every inbound message matching any active
// subscription filter. Implementations must be safe for concurrent use
// and must not block the adapter's dispatch goroutine for long.
type Handler func(Message)

// ConnectionObserver is notified when the adapter's link to the broker
// goes up or down. lost is nil on a successful (re-)connect.
type ConnectionObserver func(up bool, lost error)

// Client is the transport abstraction the Communication Manager drives
// (spec §4.3, §4.6). A Client does not interpret topic strings; it
// moves bytes and filters.
type Client interface {
	// Connect establishes the broker connection. An implementation may
	// return before the first handshake completes: PahoAdapter waits at
	// most its ConnectTimeout, returns nil, and keeps retrying in the
	// background. Connect may be called once;
	// reconnection after a transient network failure is handled
	// internally and reported via ConnectionObserver.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. retain requests a broker-retained
	// publication (used for Advertise/Deadvertise-style presence state
	// when the underlying transport supports it).
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error

	// Subscribe registers filter with the broker and arranges for
	// matching messages to reach the handler registered with OnMessage.
	// The adapter does not deduplicate
	// filters; reference counting across multiple logical subscribers
	// is the Subscription Registry's responsibility (spec §4.4).
	Subscribe(ctx context.Context, filter string) error

	// Unsubscribe removes a previously registered filter.
	Unsubscribe(ctx context.Context, filter string) error

	// OnMessage registers the handler invoked for every inbound message.
	// Only one handler is active at a time; registering a new one
	// replaces the previous.
	OnMessage(h Handler)

	// OnConnectionChange registers the handler invoked on every
	// connect/disconnect transition.
	OnConnectionChange(o ConnectionObserver)

	// Disconnect closes the connection cleanly. The broker does not send
	// a configured last will for a clean disconnect; it sends it only
	// when the link drops uncleanly.
	Disconnect(ctx context.Context) error
}
