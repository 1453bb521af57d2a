// Package object defines the base entity exchanged on the wire by the
// communication core (Object and its Component specialization) and the
// helpers to create and validate them.
//
// Extra fields that a peer attaches to an Object beyond the ones this
// package knows about are preserved verbatim in Extra, so a decode
// followed by a re-encode reproduces the original payload byte-for-byte
// modulo key order — the round-trip law required by spec §8.
package object

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CoreType is the closed discriminator set for Object.CoreType.
type CoreType string

// The fixed set of core types (spec §3). Extensions live in ObjectType,
// not here.
const (
	CoreObject     CoreType = "Object"
	CoreComponent  CoreType = "Component"
	CoreDevice     CoreType = "Device"
	CoreUser       CoreType = "User"
	CoreTask       CoreType = "Task"
	CoreLocation   CoreType = "Location"
	CoreSnapshot   CoreType = "Snapshot"
	CoreLog        CoreType = "Log"
	CoreConfig     CoreType = "Config"
	CoreAnnotation CoreType = "Annotation"
)

// Valid reports whether c is one of the closed core types.
func (c CoreType) Valid() bool {
	switch c {
	case CoreObject, CoreComponent, CoreDevice, CoreUser, CoreTask,
		CoreLocation, CoreSnapshot, CoreLog, CoreConfig, CoreAnnotation:
		return true
	default:
		return false
	}
}

// Object is the base entity exchanged between agents (spec §3).
type Object struct {
	ObjectID          string   `json:"objectId"`
	CoreType          CoreType `json:"coreType"`
	ObjectType        string   `json:"objectType"`
	Name              string   `json:"name"`
	ParentObjectID    string   `json:"parentObjectId,omitempty"`
	CreationTimestamp int64    `json:"creationTimestamp,omitempty"`
	Tags              []string `json:"tags,omitempty"`

	// Extra holds fields this package does not model, keyed exactly as
	// received on the wire, so they round-trip verbatim (spec §9 "ad-hoc
	// JSON payloads").
	Extra map[string]json.RawMessage `json:"-"`
}

// New creates an Object with a fresh random UUID v4 identifier and the
// creation timestamp set to now (milliseconds since epoch). objectType
// should be a reverse-DNS string, e.g. "com.example.sensor.Temperature".
func New(coreType CoreType, objectType, name string) (Object, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Object{}, fmt.Errorf("object: generate id: %w", err)
	}
	return Object{
		ObjectID:          id.String(),
		CoreType:          coreType,
		ObjectType:        objectType,
		Name:              name,
		CreationTimestamp: time.Now().UnixMilli(),
	}, nil
}

// Validate checks the required attributes of spec §3: a UUID v4
// ObjectID, a closed CoreType, and a non-empty ObjectType and Name.
func (o Object) Validate() error {
	if o.ObjectID == "" {
		return fmt.Errorf("object: objectId must not be empty")
	}
	id, err := uuid.Parse(o.ObjectID)
	if err != nil {
		return fmt.Errorf("object: objectId %q is not a UUID: %w", o.ObjectID, err)
	}
	if id.Version() != 4 {
		return fmt.Errorf("object: objectId %q is not a UUID v4 (version %d)", o.ObjectID, id.Version())
	}
	if !o.CoreType.Valid() {
		return fmt.Errorf("object: coreType %q is not one of the closed set", o.CoreType)
	}
	if o.ObjectType == "" {
		return fmt.Errorf("object: objectType must not be empty")
	}
	if o.Name == "" {
		return fmt.Errorf("object: name must not be empty")
	}
	return nil
}

// MarshalJSON flattens Extra's keys alongside the modeled fields so
// unknown attributes survive a round trip.
func (o Object) MarshalJSON() ([]byte, error) {
	type alias Object
	base, err := json.Marshal(alias(o))
	if err != nil {
		return nil, err
	}
	if len(o.Extra) == 0 {
		return base, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range o.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the modeled fields and stashes every other key
// into Extra.
func (o *Object) UnmarshalJSON(data []byte) error {
	type alias Object
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range knownObjectFields {
		delete(raw, known)
	}

	*o = Object(a)
	if len(raw) > 0 {
		o.Extra = raw
	}
	return nil
}

var knownObjectFields = []string{
	"objectId", "coreType", "objectType", "name", "parentObjectId",
	"creationTimestamp", "tags",
}
