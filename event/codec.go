package event

import (
	"encoding/json"
	"fmt"
)

// Raw is a received envelope whose payload has not yet been decoded
// into its kind-specific struct. The comm package decodes the topic
// (which kind?) and hands the Raw to the observer's handler, which calls
// DecodePayload or one of the typed Decode* helpers to get the struct
// out.
type Raw struct {
	Kind             Kind
	Filter           string
	SourceID         string
	AssociatedUserID string
	MessageToken     string
	Body             json.RawMessage
}

// DecodePayload decodes r.Body's data field into dst, the way a
// controller that already knows its own payload type would. Most
// callers should prefer the Decode* helpers below, which additionally
// check the kind and run the payload type's Validate where it has one.
func (r Raw) DecodePayload(dst any) error {
	var w struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &w); err != nil {
		return fmt.Errorf("event: decode payload envelope: %w", err)
	}
	if err := json.Unmarshal(w.Data, dst); err != nil {
		return fmt.Errorf("event: decode %s data: %w", r.Kind, err)
	}
	return nil
}

func decodeValidated[D any](r Raw) (D, error) {
	var data D
	if err := r.DecodePayload(&data); err != nil {
		return data, err
	}
	if v, ok := any(data).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return data, err
		}
	}
	return data, nil
}

// DecodeDeadvertise decodes a Deadvertise event's payload.
func (r Raw) DecodeDeadvertise() (DeadvertiseData, error) {
	if r.Kind != KindDeadvertise {
		return DeadvertiseData{}, fmt.Errorf("event: DecodeDeadvertise called on a %s event", r.Kind)
	}
	return decodeValidated[DeadvertiseData](r)
}

// DecodeChannel decodes a Channel event's payload.
func (r Raw) DecodeChannel() (ChannelData, error) {
	if r.Kind != KindChannel {
		return ChannelData{}, fmt.Errorf("event: DecodeChannel called on a %s event", r.Kind)
	}
	return decodeValidated[ChannelData](r)
}

// DecodeDiscover decodes a Discover event's payload.
func (r Raw) DecodeDiscover() (DiscoverData, error) {
	if r.Kind != KindDiscover {
		return DiscoverData{}, fmt.Errorf("event: DecodeDiscover called on a %s event", r.Kind)
	}
	return decodeValidated[DiscoverData](r)
}

// DecodeResolve decodes a Resolve event's payload.
func (r Raw) DecodeResolve() (ResolveData, error) {
	if r.Kind != KindResolve {
		return ResolveData{}, fmt.Errorf("event: DecodeResolve called on a %s event", r.Kind)
	}
	return decodeValidated[ResolveData](r)
}

// DecodeQuery decodes a Query event's payload.
func (r Raw) DecodeQuery() (QueryData, error) {
	if r.Kind != KindQuery {
		return QueryData{}, fmt.Errorf("event: DecodeQuery called on a %s event", r.Kind)
	}
	var data QueryData
	if err := r.DecodePayload(&data); err != nil {
		return QueryData{}, err
	}
	return data, nil
}

// DecodeRetrieve decodes a Retrieve event's payload.
func (r Raw) DecodeRetrieve() (RetrieveData, error) {
	if r.Kind != KindRetrieve {
		return RetrieveData{}, fmt.Errorf("event: DecodeRetrieve called on a %s event", r.Kind)
	}
	var data RetrieveData
	if err := r.DecodePayload(&data); err != nil {
		return RetrieveData{}, err
	}
	return data, nil
}

// DecodeUpdate decodes an Update event's payload.
func (r Raw) DecodeUpdate() (UpdateData, error) {
	if r.Kind != KindUpdate {
		return UpdateData{}, fmt.Errorf("event: DecodeUpdate called on a %s event", r.Kind)
	}
	return decodeValidated[UpdateData](r)
}

// DecodeComplete decodes a Complete event's payload.
func (r Raw) DecodeComplete() (CompleteData, error) {
	if r.Kind != KindComplete {
		return CompleteData{}, fmt.Errorf("event: DecodeComplete called on a %s event", r.Kind)
	}
	var data CompleteData
	if err := r.DecodePayload(&data); err != nil {
		return CompleteData{}, err
	}
	return data, nil
}

// DecodeCall decodes a Call event's payload.
func (r Raw) DecodeCall() (CallData, error) {
	if r.Kind != KindCall {
		return CallData{}, fmt.Errorf("event: DecodeCall called on a %s event", r.Kind)
	}
	return decodeValidated[CallData](r)
}

// DecodeReturn decodes a Return event's payload.
func (r Raw) DecodeReturn() (ReturnData, error) {
	if r.Kind != KindReturn {
		return ReturnData{}, fmt.Errorf("event: DecodeReturn called on a %s event", r.Kind)
	}
	return decodeValidated[ReturnData](r)
}

// DecodeAssociate decodes an Associate event's payload.
func (r Raw) DecodeAssociate() (AssociateData, error) {
	if r.Kind != KindAssociate {
		return AssociateData{}, fmt.Errorf("event: DecodeAssociate called on a %s event", r.Kind)
	}
	return decodeValidated[AssociateData](r)
}

// DecodeIoValue decodes an IoValue event's payload.
func (r Raw) DecodeIoValue() (IoValueData, error) {
	if r.Kind != KindIoValue {
		return IoValueData{}, fmt.Errorf("event: DecodeIoValue called on a %s event", r.Kind)
	}
	return decodeValidated[IoValueData](r)
}

// EncodeBody builds the wire payload body for data, the inverse of
// DecodePayload.
func EncodeBody(data any) (json.RawMessage, error) {
	if v, ok := data.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	body, err := json.Marshal(struct {
		Data any `json:"data"`
	}{Data: data})
	if err != nil {
		return nil, fmt.Errorf("event: encode payload: %w", err)
	}
	return body, nil
}
