package correlate

import (
	"context"
	"fmt"

	"github.com/agentmesh/commcore/broker"
	"github.com/agentmesh/commcore/event"
	"github.com/agentmesh/commcore/topic"
)

// Token is the message token this request and its correlated responses
// share on the wire.
func (r *Request) Token() string { return r.token }

// Observe subscribes to the response filter and publishes the request,
// in that order (spec §4.5 step 3: "only then publish the request
// topic so that no response can race ahead of subscription"), and
// returns a channel delivering every correlated response. It may be
// called only once per Request; a second call — even after Detach —
// fails with ErrResubscribeForbidden.
func (r *Request) Observe(ctx context.Context) (<-chan Response, error) {
	if r.observed {
		return nil, ErrResubscribeForbidden
	}
	r.observed = true

	subID, err := r.engine.registry.Attach(ctx, r.filter, r.onMessage)
	if err != nil {
		return nil, fmt.Errorf("correlate: attach response filter: %w", err)
	}
	r.subID = subID

	if err := r.engine.client.Publish(ctx, r.wireTopic, r.requestRaw.Body, false); err != nil {
		_ = r.engine.registry.Detach(ctx, r.filter, r.subID)
		return nil, fmt.Errorf("correlate: publish request: %w", err)
	}

	return r.stream.channel(), nil
}

// Detach unsubscribes from the response filter. Responses already in
// flight when Detach is called may or may not be delivered afterward;
// consumers must be idempotent (spec §4.5 step 5).
func (r *Request) Detach(ctx context.Context) error {
	if !r.observed || r.detached {
		return nil
	}
	r.detached = true
	r.stream.close()
	return r.engine.registry.Detach(ctx, r.filter, r.subID)
}

func (r *Request) onMessage(m broker.Message) {
	if r.detached {
		return
	}
	wireTopic, err := topic.Decode(m.Topic)
	if err != nil {
		return
	}
	if wireTopic.Source.ID == r.engine.sourceID {
		// Echo suppression applies to responses too: never correlate a
		// reply to ourselves (spec §4.6).
		return
	}
	r.stream.push(Response{
		Raw:     rawFromTopic(wireTopic, m.Payload),
		Request: r.requestRaw,
	})
}

func rawFromTopic(t topic.Topic, body []byte) event.Raw {
	raw := event.Raw{
		Kind:         t.Kind,
		Filter:       t.Filter,
		SourceID:     t.Source.ID,
		MessageToken: t.Token,
		Body:         body,
	}
	if t.AssociatedUser != nil {
		raw.AssociatedUserID = t.AssociatedUser.ID
	}
	return raw
}
