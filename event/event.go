package event

import (
	"encoding/json"
	"fmt"
)

// Validatable is implemented by every typed payload so Envelope can
// enforce its invariants before publish and after decode.
type Validatable interface {
	Validate() error
}

// Envelope is the generic wire envelope carrying a typed payload of kind
// D alongside the routing metadata every event needs regardless of its
// kind (spec §3 CommunicationEvent): the source that published it, the
// associated user if any, and — for response kinds — the request this
// event answers.
type Envelope[D any] struct {
	Kind             Kind   `json:"-"`
	Filter           string `json:"-"`
	SourceID         string `json:"-"`
	AssociatedUserID string `json:"-"`
	MessageToken     string `json:"-"`

	Data D `json:"-"`

	// request is the non-nil originating request when this envelope is a
	// response, as recorded by RespondingTo; it never appears on the
	// wire.
	request *Envelope[json.RawMessage]
}

// NewEnvelope constructs an envelope ready to publish. filter is the
// event-type-name suffix appropriate to kind (an object type, channel
// id, operation name, or IO context id), or empty for kinds that carry
// none.
func NewEnvelope[D any](kind Kind, filter, sourceID string, data D) (Envelope[D], error) {
	if !kind.Valid() {
		return Envelope[D]{}, fmt.Errorf("event: %q is not a recognized event kind", kind)
	}
	if sourceID == "" {
		return Envelope[D]{}, fmt.Errorf("event: sourceId must not be empty")
	}
	if v, ok := any(data).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return Envelope[D]{}, err
		}
	}
	return Envelope[D]{Kind: kind, Filter: filter, SourceID: sourceID, Data: data}, nil
}

// RespondingTo returns a copy of e marked as a response to req: it
// copies req's message token, which a response must carry so the
// original requester's subscription matches it, and records req.
func (e Envelope[D]) RespondingTo(req Envelope[json.RawMessage]) Envelope[D] {
	e.MessageToken = req.MessageToken
	e.request = &req
	return e
}

// wireEnvelope is the JSON shape exchanged on the wire: only the
// payload, under "data"; every routing field travels in the topic.
type wireEnvelope[D any] struct {
	Data D `json:"data"`
}

// MarshalPayload encodes only Data, the portion of the envelope carried
// in the MQTT message body; SourceID/AssociatedUserID/MessageToken/Kind
// travel in the topic string instead (spec §4.1, §4.2).
func (e Envelope[D]) MarshalPayload() ([]byte, error) {
	if v, ok := any(e.Data).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(wireEnvelope[D]{Data: e.Data})
}

// UnmarshalPayload decodes a message body into Data. Routing metadata
// must be filled in separately by the caller from the decoded Topic.
func (e *Envelope[D]) UnmarshalPayload(body []byte) error {
	var w wireEnvelope[D]
	if err := json.Unmarshal(body, &w); err != nil {
		return fmt.Errorf("event: decode payload: %w", err)
	}
	if v, ok := any(w.Data).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	e.Data = w.Data
	return nil
}
