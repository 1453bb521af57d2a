package event

import (
	"encoding/json"
	"testing"

	"github.com/agentmesh/commcore/object"
)

func TestDiscoverData_Validate_MutualExclusion(t *testing.T) {
	cases := []struct {
		name    string
		data    DiscoverData
		wantErr bool
	}{
		{"none set", DiscoverData{}, true},
		{"objectId only", DiscoverData{ObjectID: "x"}, false},
		{"externalId only", DiscoverData{ExternalID: "x"}, false},
		{"types only", DiscoverData{ObjectTypes: []string{"t"}}, false},
		{"objectId and externalId", DiscoverData{ObjectID: "x", ExternalID: "y"}, true},
		{"objectId and types", DiscoverData{ObjectID: "x", CoreTypes: []string{"Task"}}, true},
	}
	for _, c := range cases {
		err := c.data.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestResolveData_Validate_ExactlyOneOf(t *testing.T) {
	obj, _ := object.New(object.CoreDevice, "t", "n")

	if err := (ResolveData{}).Validate(); err == nil {
		t.Error("expected error when neither object nor relatedObjects set")
	}
	if err := (ResolveData{Object: &obj, RelatedObjects: []object.Object{obj}}).Validate(); err == nil {
		t.Error("expected error when both object and relatedObjects set")
	}
	if err := (ResolveData{Object: &obj}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReturnData_Validate_ExactlyOneOf(t *testing.T) {
	if err := (ReturnData{}).Validate(); err == nil {
		t.Error("expected error when neither result nor error set")
	}
	if err := (ReturnData{Result: json.RawMessage(`1`), Error: &ReturnError{Code: 1, Message: "x"}}).Validate(); err == nil {
		t.Error("expected error when both result and error set")
	}
	if err := (ReturnData{Result: json.RawMessage(`1`)}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeadvertiseData_Validate(t *testing.T) {
	if err := (DeadvertiseData{}).Validate(); err == nil {
		t.Error("expected error for no objectIds")
	}
	if err := (DeadvertiseData{ObjectIDs: []string{"x"}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestChannelData_Validate(t *testing.T) {
	obj, _ := object.New(object.CoreObject, "t", "n")
	cases := []struct {
		name    string
		data    ChannelData
		wantErr bool
	}{
		{"no channelId", ChannelData{Objects: []object.Object{obj}}, true},
		{"no objects", ChannelData{ChannelID: "room-42"}, true},
		{"both set", ChannelData{ChannelID: "room-42", Objects: []object.Object{obj}}, false},
	}
	for _, c := range cases {
		err := c.data.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestUpdateData_Validate_PartialRequiresObjectID(t *testing.T) {
	obj, _ := object.New(object.CoreObject, "t", "n")
	if err := (UpdateData{}).Validate(); err == nil {
		t.Error("expected error for a partial update with no objectId")
	}
	if err := (UpdateData{ObjectID: "x"}).Validate(); err != nil {
		t.Errorf("unexpected error for partial update with objectId: %v", err)
	}
	if err := (UpdateData{Object: &obj}).Validate(); err != nil {
		t.Errorf("unexpected error for full object update: %v", err)
	}
}

func TestIoValueData_Validate(t *testing.T) {
	if err := (IoValueData{}).Validate(); err == nil {
		t.Error("expected error for missing ioSourceId and values")
	}
	ok := IoValueData{IoSourceID: "src-1", Values: []json.RawMessage{json.RawMessage(`42`)}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewEnvelope_RejectsInvalidData(t *testing.T) {
	_, err := NewEnvelope(KindDiscover, "", "src-1", DiscoverData{})
	if err == nil {
		t.Fatal("expected error for Discover envelope with no selection criteria")
	}
}

func TestNewEnvelope_RejectsEmptySourceID(t *testing.T) {
	_, err := NewEnvelope(KindDiscover, "", "", DiscoverData{ObjectID: "x"})
	if err == nil {
		t.Fatal("expected error for empty sourceId")
	}
}

func TestEnvelope_PayloadRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindCall, "switchLight", "src-1", CallData{
		Operation:  "switchLight",
		Parameters: json.RawMessage(`{"on":true}`),
	})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}

	body, err := env.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload error: %v", err)
	}

	raw := Raw{Kind: KindCall, Body: body}
	decoded, err := raw.DecodeCall()
	if err != nil {
		t.Fatalf("DecodeCall error: %v", err)
	}
	if decoded.Operation != "switchLight" {
		t.Errorf("Operation = %q, want switchLight", decoded.Operation)
	}
}

func TestRaw_DecodeWrongKindRejected(t *testing.T) {
	body, _ := EncodeBody(CallData{Operation: "x"})
	raw := Raw{Kind: KindCall, Body: body}
	if _, err := raw.DecodeReturn(); err == nil {
		t.Fatal("expected error decoding a Call body as Return")
	}
}

func TestRespondingTo_StampsMessageToken(t *testing.T) {
	req := Envelope[json.RawMessage]{Kind: KindDiscover, MessageToken: "src-1_1"}
	resp, err := NewEnvelope(KindResolve, "", "src-2", ResolveData{Object: func() *object.Object {
		o, _ := object.New(object.CoreDevice, "t", "n")
		return &o
	}()})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}
	resp = resp.RespondingTo(req)
	if resp.MessageToken != "src-1_1" {
		t.Errorf("MessageToken = %q, want src-1_1", resp.MessageToken)
	}
}

func TestResponseKind(t *testing.T) {
	cases := map[Kind]Kind{
		KindDiscover: KindResolve,
		KindQuery:    KindRetrieve,
		KindUpdate:   KindComplete,
		KindCall:     KindReturn,
	}
	for req, want := range cases {
		got, ok := ResponseKind(req)
		if !ok || got != want {
			t.Errorf("ResponseKind(%s) = (%s, %v), want (%s, true)", req, got, ok, want)
		}
	}
	if _, ok := ResponseKind(KindAdvertise); ok {
		t.Error("ResponseKind(Advertise) should report false, Advertise has no response")
	}
}
