// Package registry implements the Subscription Registry (spec §4.4):
// reference-counted MQTT topic-filter subscriptions shared by every
// controller that wants the same wire-level filter, and automatic
// restoration of the registry's filters after a broker reconnect.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentmesh/commcore/broker"
)

// Handler receives every inbound message matching the filter it was
// attached under.
type Handler func(broker.Message)

// SubscriptionID identifies one Attach call so it can be individually
// Detached without affecting other subscribers sharing the same wire
// filter.
type SubscriptionID uint64

type attachment struct {
	id      SubscriptionID
	handler Handler
}

type entry struct {
	filter      string
	attachments []attachment
}

// indexOf returns the slice index of id's attachment, or -1.
func (e *entry) indexOf(id SubscriptionID) int {
	for i, a := range e.attachments {
		if a.id == id {
			return i
		}
	}
	return -1
}

// Registry multiplexes any number of logical subscribers onto a
// smaller number of broker-level SUBSCRIBE calls: the broker sees one
// subscription per distinct filter string regardless of how many
// Attach calls share it (spec §4.4 "at most one broker subscription
// per distinct filter").
type Registry struct {
	client broker.Client

	mu      sync.Mutex
	entries map[string]*entry
	nextID  SubscriptionID
}

// New creates a Registry driving client. It takes over client's
// message and connection-change handlers; callers must not register
// their own after calling New.
func New(client broker.Client) *Registry {
	r := &Registry{client: client, entries: map[string]*entry{}}
	client.OnMessage(r.dispatch)
	client.OnConnectionChange(r.onConnectionChange)
	return r
}

// Attach subscribes to filter if this is the first attachment for it,
// and registers h to receive every message matching filter. The
// returned SubscriptionID is later passed to Detach.
func (r *Registry) Attach(ctx context.Context, filter string, h Handler) (SubscriptionID, error) {
	r.mu.Lock()
	e, exists := r.entries[filter]
	if !exists {
		e = &entry{filter: filter}
		r.entries[filter] = e
	}
	r.nextID++
	id := r.nextID
	e.attachments = append(e.attachments, attachment{id: id, handler: h})
	needsSubscribe := !exists
	r.mu.Unlock()

	if needsSubscribe {
		if err := r.client.Subscribe(ctx, filter); err != nil {
			r.mu.Lock()
			if i := e.indexOf(id); i >= 0 {
				e.attachments = append(e.attachments[:i], e.attachments[i+1:]...)
			}
			if len(e.attachments) == 0 {
				delete(r.entries, filter)
			}
			r.mu.Unlock()
			return 0, fmt.Errorf("registry: subscribe %q: %w", filter, err)
		}
	}
	return id, nil
}

// Detach removes the subscriber registered under id. The broker-level
// filter is unsubscribed only once every Attach sharing that filter has
// been Detached (spec §4.4 reference counting).
func (r *Registry) Detach(ctx context.Context, filter string, id SubscriptionID) error {
	r.mu.Lock()
	e, exists := r.entries[filter]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("registry: no active subscription for filter %q", filter)
	}
	if i := e.indexOf(id); i >= 0 {
		e.attachments = append(e.attachments[:i], e.attachments[i+1:]...)
	}
	empty := len(e.attachments) == 0
	if empty {
		delete(r.entries, filter)
	}
	r.mu.Unlock()

	if empty {
		if err := r.client.Unsubscribe(ctx, filter); err != nil {
			return fmt.Errorf("registry: unsubscribe %q: %w", filter, err)
		}
	}
	return nil
}

// ActiveFilters returns every filter currently subscribed at the
// broker, i.e. with at least one attached handler.
func (r *Registry) ActiveFilters() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for f := range r.entries {
		out = append(out, f)
	}
	return out
}

// RefCount reports how many handlers are currently attached to filter,
// for tests asserting the invariant in spec §4.4 ("broker subscribe
// count minus unsubscribe count is 0 or 1" translated to "attach count
// minus detach count for a filter equals its handler count").
func (r *Registry) RefCount(filter string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[filter]
	if !ok {
		return 0
	}
	return len(e.attachments)
}

// dispatch delivers m to every handler attached to a filter matching
// m.Topic, in the order each handler was attached (spec §4.4 "delivers
// the parsed event to each observer in insertion order").
func (r *Registry) dispatch(m broker.Message) {
	r.mu.Lock()
	var matched []Handler
	for filter, e := range r.entries {
		if topicMatchesFilter(filter, m.Topic) {
			for _, a := range e.attachments {
				matched = append(matched, a.handler)
			}
		}
	}
	r.mu.Unlock()

	for _, h := range matched {
		h(m)
	}
}

// onConnectionChange restores every active filter after a reconnect.
// The registry does not rely on the broker client to remember
// subscriptions across a connection loss (spec §4.6 "ungraceful
// disconnection"); it is the single source of truth for what should be
// subscribed.
func (r *Registry) onConnectionChange(up bool, lost error) {
	if !up {
		return
	}
	r.mu.Lock()
	filters := make([]string, 0, len(r.entries))
	for f := range r.entries {
		filters = append(filters, f)
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, f := range filters {
		_ = r.client.Subscribe(ctx, f)
	}
}

// topicMatchesFilter implements MQTT topic-filter matching ('+' single
// level, '#' tail wildcard as the final level only).
func topicMatchesFilter(filter, topic string) bool {
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
