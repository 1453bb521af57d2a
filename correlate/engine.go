// Package correlate implements the Correlation Engine (spec §4.5):
// couples request kinds (Discover, Query, Update, Call) to their
// response kinds via a per-request message token and a subscription on
// the Subscription Registry, exposed as a lazy, unbounded stream of
// responses with no global timeout.
package correlate

import (
	"errors"
	"fmt"

	"github.com/agentmesh/commcore/broker"
	"github.com/agentmesh/commcore/event"
	"github.com/agentmesh/commcore/registry"
	"github.com/agentmesh/commcore/topic"
)

// ErrResubscribeForbidden is returned by Request.Observe when called a
// second time on the same request: a request consumes one token, and a
// second observer would see only partial history and leak a
// subscription (spec §4.5 "re-attach policy").
var ErrResubscribeForbidden = errors.New("correlate: resubscribe forbidden")

// Response is one correlated reply delivered to a request's stream.
type Response struct {
	Raw     event.Raw
	Request event.Raw // the original outgoing request, cross-linked per dispatch
}

// Engine publishes requests and correlates their responses for one
// communication manager's identity. Engines are never shared across
// managers (spec §9 "no shared token counters, no shared registries").
type Engine struct {
	client         broker.Client
	registry       *registry.Registry
	sourceID       string
	associatedUser *topic.Identifier
	readable       bool
	tokens         *tokenCounter
}

// New constructs an Engine. associatedUser may be nil.
func New(client broker.Client, reg *registry.Registry, sourceID string, associatedUser *topic.Identifier, readable bool) *Engine {
	return &Engine{
		client:         client,
		registry:       reg,
		sourceID:       sourceID,
		associatedUser: associatedUser,
		readable:       readable,
		tokens:         newTokenCounter(sourceID, associatedUser != nil),
	}
}

// Request is a published request awaiting correlated responses.
type Request struct {
	engine     *Engine
	token      string
	filter     string
	wireTopic  string
	requestRaw event.Raw
	observed   bool
	detached   bool
	subID      registry.SubscriptionID
	stream     *responseStream
}

// NextToken allocates a fresh message token from this engine's shared
// per-process counter, for one-way events that still need a wire token
// but have no correlated response (spec §3 "MessageToken").
func (e *Engine) NextToken() string {
	return e.tokens.Next()
}

// Publish allocates a token, builds the response subscription filter,
// and prepares (without yet subscribing or sending) a Request for
// requestKind. requestFilter is the event-type-name suffix the request
// itself carries (an object type, operation name, etc. — empty if the
// kind takes none). Call Observe to actually subscribe and publish.
func (e *Engine) Publish(kind event.Kind, requestFilter string, data any) (*Request, error) {
	responseKind, ok := event.ResponseKind(kind)
	if !ok {
		return nil, fmt.Errorf("correlate: %q is not a correlated request kind", kind)
	}

	token := e.tokens.Next()
	respEventTypeName, err := responseEventTypeName(responseKind, requestFilter)
	if err != nil {
		return nil, err
	}
	filter, err := topic.ResponseFilter(respEventTypeName, token)
	if err != nil {
		return nil, err
	}

	body, err := event.EncodeBody(data)
	if err != nil {
		return nil, err
	}

	wireTopic := topic.Topic{
		Kind:           kind,
		Filter:         requestFilter,
		AssociatedUser: e.associatedUser,
		Source:         topic.Identifier{ID: e.sourceID},
		Token:          token,
	}
	wire, err := wireTopic.Encode(e.readable)
	if err != nil {
		return nil, err
	}

	req := &Request{
		engine:    e,
		token:     token,
		filter:    filter,
		wireTopic: wire,
		requestRaw: event.Raw{
			Kind:         kind,
			Filter:       requestFilter,
			SourceID:     e.sourceID,
			MessageToken: token,
			Body:         body,
		},
		stream: newResponseStream(),
	}
	return req, nil
}

// responseEventTypeName builds the exact-match or wildcarded
// eventTypeName a response subscription should pin (spec §4.5 step 2):
// Resolve/Retrieve never carry a filter; Complete's object-type filter
// is usually unknown to the requester ahead of time and is wildcarded;
// Return's operation-name filter is always known, since the requester
// specified it in the Call.
func responseEventTypeName(responseKind event.Kind, requestFilter string) (string, error) {
	switch responseKind {
	case event.KindResolve, event.KindRetrieve:
		return topic.EventTypeNameFor(responseKind, ""), nil
	case event.KindComplete:
		return topic.EventTypeNameFor(responseKind, topic.WildcardOne), nil
	case event.KindReturn:
		if requestFilter == "" {
			return "", fmt.Errorf("correlate: Call requires an operation name")
		}
		return topic.EventTypeNameFor(responseKind, requestFilter), nil
	default:
		return "", fmt.Errorf("correlate: %q has no known response filter strategy", responseKind)
	}
}
