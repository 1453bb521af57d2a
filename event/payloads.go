package event

import (
	"encoding/json"
	"fmt"

	"github.com/agentmesh/commcore/ctxfilter"
	"github.com/agentmesh/commcore/object"
)

// DeadvertiseData announces that an object is no longer available.
// Unlike Advertise, which carries the full object, Deadvertise carries
// only the objectId(s) being withdrawn (spec §4.2).
type DeadvertiseData struct {
	ObjectIDs []string `json:"objectIds"`
}

// Validate checks that at least one objectId was supplied.
func (d DeadvertiseData) Validate() error {
	if len(d.ObjectIDs) == 0 {
		return fmt.Errorf("event: Deadvertise data requires at least one objectId")
	}
	return nil
}

// ChannelData broadcasts one or more objects on a named channel (spec
// §4.2): the channel identifier travels in the topic's event-type suffix
// and is also serialized in the payload as channelId.
type ChannelData struct {
	Objects     []object.Object `json:"objects"`
	ChannelID   string          `json:"channelId"`
	PrivateData json.RawMessage `json:"privateData,omitempty"`
}

// Validate checks that a Channel event carries its identifier and at
// least one object (spec §4.2 "one or more Objects plus a channel
// identifier").
func (c ChannelData) Validate() error {
	if c.ChannelID == "" {
		return fmt.Errorf("event: Channel data requires a non-empty channelId")
	}
	if len(c.Objects) == 0 {
		return fmt.Errorf("event: Channel data requires at least one object")
	}
	return nil
}

// DiscoverData selects objects by exactly one of ObjectID, ExternalID, or
// a combination of ObjectTypes/CoreTypes (spec §4.2): the request kinds
// are mutually exclusive ways of asking "who matches?".
type DiscoverData struct {
	ObjectID    string   `json:"objectId,omitempty"`
	ExternalID  string   `json:"externalId,omitempty"`
	ObjectTypes []string `json:"objectTypes,omitempty"`
	CoreTypes   []string `json:"coreTypes,omitempty"`
}

// Validate checks the mutual-exclusion rule of spec §4.2: exactly one
// selection strategy may be used per Discover event.
func (d DiscoverData) Validate() error {
	set := 0
	if d.ObjectID != "" {
		set++
	}
	if d.ExternalID != "" {
		set++
	}
	if len(d.ObjectTypes) > 0 || len(d.CoreTypes) > 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("event: Discover data must set exactly one of objectId, externalId, or objectTypes/coreTypes (got %d)", set)
	}
	return nil
}

// ResolveData carries the object discovered in response to a Discover
// event. Exactly one of Object or RelatedObjects is set (spec §4.2).
type ResolveData struct {
	Object         *object.Object   `json:"object,omitempty"`
	RelatedObjects []object.Object  `json:"relatedObjects,omitempty"`
	PrivateData    json.RawMessage  `json:"privateData,omitempty"`
}

// Validate checks the exactly-one-of rule of spec §4.2.
func (r ResolveData) Validate() error {
	set := 0
	if r.Object != nil {
		set++
	}
	if r.RelatedObjects != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("event: Resolve data must set exactly one of object or relatedObjects (got %d)", set)
	}
	return nil
}

// QueryData selects objects with a structured filter evaluated by the
// context matcher (spec §4.2, §5).
type QueryData struct {
	ObjectTypes []string        `json:"objectTypes,omitempty"`
	CoreTypes   []string        `json:"coreTypes,omitempty"`
	ConditionID string          `json:"conditionId,omitempty"`
	Condition   json.RawMessage `json:"condition,omitempty"`
}

// RetrieveData carries the objects matched by a Query event.
type RetrieveData struct {
	Objects     []object.Object `json:"objects"`
	PrivateData json.RawMessage `json:"privateData,omitempty"`
}

// UpdateData carries either the full replacement object or a partial
// patch for an Update event (spec §4.2): a partial update carries only
// the changed properties in Partial, and must identify its target via
// ObjectID since Object is absent.
type UpdateData struct {
	Object   *object.Object  `json:"object,omitempty"`
	ObjectID string          `json:"objectId,omitempty"`
	Partial  json.RawMessage `json:"partial,omitempty"`
}

// Validate checks that an Update event carries a full object or, for a
// partial update, identifies the target object by objectId (spec §4.2).
func (u UpdateData) Validate() error {
	if u.Object != nil {
		return nil
	}
	if u.ObjectID == "" {
		return fmt.Errorf("event: Update data requires objectId for a partial update")
	}
	return nil
}

// CompleteData confirms the update applied to an object.
type CompleteData struct {
	Object      object.Object   `json:"object"`
	PrivateData json.RawMessage `json:"privateData,omitempty"`
}

// CallData invokes a remote operation by name with positional or named
// parameters (spec §4.2): Parameters holds whichever shape the operation
// expects, decoded lazily by the handler. ContextFilter, when set, gates
// execution: a receiver runs the operation only if its local context
// object matches (spec §4.2, §4.7); non-matches silently drop the
// invocation rather than returning an error.
type CallData struct {
	Operation     string            `json:"operation"`
	Parameters    json.RawMessage   `json:"parameters,omitempty"`
	ContextID     string            `json:"contextId,omitempty"`
	ContextFilter *ctxfilter.Filter `json:"contextFilter,omitempty"`
}

// Validate checks that an operation name was supplied.
func (c CallData) Validate() error {
	if c.Operation == "" {
		return fmt.Errorf("event: Call data requires a non-empty operation name")
	}
	return nil
}

// ErrCodeInvalidParameters is the reserved Return error code for a Call
// whose Parameters fail the receiving operation's own validation (spec
// §4.2, §7), mirroring the JSON-RPC reserved range.
const ErrCodeInvalidParameters = -32602

// ReturnError reports an operation failure, Coaty-style: a numeric code
// plus a human-readable message.
type ReturnError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ReturnData carries exactly one of Result or Error (spec §4.2).
type ReturnData struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ReturnError    `json:"error,omitempty"`
}

// Validate checks the exactly-one-of rule of spec §4.2.
func (r ReturnData) Validate() error {
	hasResult := r.Result != nil
	hasError := r.Error != nil
	if hasResult == hasError {
		return fmt.Errorf("event: Return data must set exactly one of result or error")
	}
	return nil
}

// AssociateData links an object to an associated user, with optional
// private side data (SPEC_FULL §4.2.2).
type AssociateData struct {
	ObjectID         string          `json:"objectId"`
	AssociatedUserID string          `json:"associatedUserId,omitempty"`
	PrivateData      json.RawMessage `json:"privateData,omitempty"`
}

// Validate checks that the associated object was identified.
func (a AssociateData) Validate() error {
	if a.ObjectID == "" {
		return fmt.Errorf("event: Associate data requires a non-empty objectId")
	}
	return nil
}

// IoValueData carries one or more values sampled from an IO source,
// addressed by the IO context the subscriber registered for
// (SPEC_FULL §4.2.1).
type IoValueData struct {
	IoSourceID string            `json:"ioSourceId"`
	Values     []json.RawMessage `json:"values"`
}

// Validate checks that the data identifies its source and carries at
// least one value.
func (v IoValueData) Validate() error {
	if v.IoSourceID == "" {
		return fmt.Errorf("event: IoValue data requires a non-empty ioSourceId")
	}
	if len(v.Values) == 0 {
		return fmt.Errorf("event: IoValue data requires at least one value")
	}
	return nil
}
