// Package topic implements the bijective encoding between structured
// topic descriptors and MQTT topic strings described in spec §4.1: the
// wire format, readable-mode identifier escaping, and the validation
// rules that reject malformed topics and illegal identifiers.
package topic

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentmesh/commcore/event"
)

// Protocol is the fixed protocol name that opens every wire topic.
const Protocol = "coaty"

// Version is the protocol version this module implements. Peers at a
// different version MUST NOT interop (spec §6); Decode rejects topics
// whose version segment does not match.
const Version = 1

// ErrInvalidTopic is wrapped by every decode/validation failure so
// callers can test with errors.Is.
var ErrInvalidTopic = errors.New("invalid topic")

// illegalChars is the set of bytes forbidden in operation names,
// channel identifiers, and object-type filters (spec §4.1).
const illegalChars = "\x00#+/"

// Identifier is a sender, user, or device identity carried in a topic
// level: a UUID, optionally paired with a human name for readable mode.
type Identifier struct {
	Name string
	ID   string
}

// Topic is the structured, authoritative descriptor of a wire topic
// (spec §3). Filter holds the event-type-name suffix: an object type,
// operation name, or channel id depending on Kind, or empty for kinds
// that carry none.
type Topic struct {
	Version        int
	Kind           event.Kind
	Filter         string
	AssociatedUser *Identifier
	Source         Identifier
	Token          string
}

// filterRole describes what Filter means for a given kind, and whether
// it is required on encode.
type filterRole int

const (
	filterNone filterRole = iota
	filterObjectType
	filterChannelID
	filterOperationName
	filterIOContextID
)

func roleFor(k event.Kind) filterRole {
	switch k {
	case event.KindAdvertise, event.KindUpdate, event.KindComplete, event.KindAssociate:
		return filterObjectType
	case event.KindChannel:
		return filterChannelID
	case event.KindIoValue:
		return filterIOContextID
	case event.KindCall, event.KindReturn:
		return filterOperationName
	default:
		return filterNone
	}
}

// requiresFilter reports whether kind must carry a non-empty Filter.
func requiresFilter(k event.Kind) bool {
	return roleFor(k) != filterNone
}

// ValidateFilterValue checks the identifier-naming rules shared by
// operation names, channel identifiers, and object-type filters
// (spec §4.1): non-empty, and free of NUL, '#', '+', '/'.
func ValidateFilterValue(v string) error {
	if v == "" {
		return fmt.Errorf("%w: filter value must not be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(v, illegalChars) {
		return fmt.Errorf("%w: filter value %q contains an illegal character", ErrInvalidTopic, v)
	}
	return nil
}

// Encode renders t as a wire topic string. readable enables name-prefixed
// identifier encoding (spec §4.1 readable mode) for AssociatedUser and
// Source.
func (t Topic) Encode(readable bool) (string, error) {
	if t.Version == 0 {
		t.Version = Version
	}
	if !t.Kind.Valid() || t.Kind == event.KindRaw {
		return "", fmt.Errorf("%w: kind %q cannot use the structured topic grammar (Raw bypasses it)", ErrInvalidTopic, t.Kind)
	}

	role := roleFor(t.Kind)
	if role != filterNone {
		if err := ValidateFilterValue(t.Filter); err != nil {
			return "", err
		}
	} else if t.Filter != "" {
		return "", fmt.Errorf("%w: kind %q does not take a filter suffix", ErrInvalidTopic, t.Kind)
	}

	eventTypeName := string(t.Kind)
	if t.Filter != "" {
		eventTypeName += ":" + t.Filter
	}

	userSeg := "-"
	if t.AssociatedUser != nil {
		seg, err := encodeIdentifier(*t.AssociatedUser, readable)
		if err != nil {
			return "", err
		}
		userSeg = seg
	}

	sourceSeg, err := encodeIdentifier(t.Source, readable)
	if err != nil {
		return "", err
	}

	if err := validateTokenValue(t.Token); err != nil {
		return "", err
	}

	return strings.Join([]string{
		Protocol,
		strconv.Itoa(t.Version),
		eventTypeName,
		userSeg,
		sourceSeg,
		t.Token,
	}, "/"), nil
}

// Decode parses a wire topic string into its structured form. It
// rejects the empty string, topics with the wrong number of levels, a
// mismatched protocol name or version, and malformed identifiers.
func Decode(s string) (Topic, error) {
	if s == "" {
		return Topic{}, fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if strings.ContainsRune(s, 0) {
		return Topic{}, fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}

	levels := strings.Split(s, "/")
	if len(levels) != 6 {
		return Topic{}, fmt.Errorf("%w: expected 6 topic levels, got %d (%q)", ErrInvalidTopic, len(levels), s)
	}

	if levels[0] != Protocol {
		return Topic{}, fmt.Errorf("%w: protocol name %q, want %q", ErrInvalidTopic, levels[0], Protocol)
	}

	version, err := strconv.Atoi(levels[1])
	if err != nil {
		return Topic{}, fmt.Errorf("%w: protocol version %q is not an integer", ErrInvalidTopic, levels[1])
	}
	if version != Version {
		return Topic{}, fmt.Errorf("%w: protocol version %d, this process implements %d", ErrInvalidTopic, version, Version)
	}

	kindStr, filter, _ := strings.Cut(levels[2], ":")
	kind, err := event.ParseKind(kindStr)
	if err != nil {
		return Topic{}, fmt.Errorf("%w: %v", ErrInvalidTopic, err)
	}
	role := roleFor(kind)
	if role != filterNone {
		if err := ValidateFilterValue(filter); err != nil {
			return Topic{}, err
		}
	} else if filter != "" {
		return Topic{}, fmt.Errorf("%w: kind %q does not take a filter suffix, got %q", ErrInvalidTopic, kind, filter)
	}

	var user *Identifier
	if levels[3] != "-" {
		id, err := decodeIdentifier(levels[3])
		if err != nil {
			return Topic{}, fmt.Errorf("%w: associated user: %v", ErrInvalidTopic, err)
		}
		user = &id
	}

	source, err := decodeIdentifier(levels[4])
	if err != nil {
		return Topic{}, fmt.Errorf("%w: source: %v", ErrInvalidTopic, err)
	}

	if err := validateTokenValue(levels[5]); err != nil {
		return Topic{}, err
	}

	return Topic{
		Version:        version,
		Kind:           kind,
		Filter:         filter,
		AssociatedUser: user,
		Source:         source,
		Token:          levels[5],
	}, nil
}

func validateTokenValue(token string) error {
	if token == "" {
		return fmt.Errorf("%w: message token must not be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(token, illegalChars) {
		return fmt.Errorf("%w: message token %q contains an illegal character", ErrInvalidTopic, token)
	}
	return nil
}

var uuidShape = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// sanitizeName replaces every character in {NUL, #, +, /} with '_', the
// readable-mode escaping rule of spec §4.1.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 0, '#', '+', '/':
			return '_'
		default:
			return r
		}
	}, name)
}

func encodeIdentifier(id Identifier, readable bool) (string, error) {
	if id.ID == "" {
		return "", fmt.Errorf("%w: identifier has no id", ErrInvalidTopic)
	}
	if !uuidShape.MatchString(id.ID) {
		return "", fmt.Errorf("%w: identifier id %q is not a UUID", ErrInvalidTopic, id.ID)
	}
	if readable && id.Name != "" {
		return sanitizeName(id.Name) + "_" + id.ID, nil
	}
	return id.ID, nil
}

// decodeIdentifier recovers an Identifier from a topic level. It
// matches the trailing 36 characters against the canonical UUID shape;
// anything preceding an underscore directly before that suffix is
// treated as an informational name (spec §4.1).
func decodeIdentifier(s string) (Identifier, error) {
	if uuidShape.MatchString(s) {
		return Identifier{ID: s}, nil
	}
	if len(s) > 37 && s[len(s)-37] == '_' {
		tail := s[len(s)-36:]
		if uuidShape.MatchString(tail) {
			return Identifier{Name: s[:len(s)-37], ID: tail}, nil
		}
	}
	return Identifier{}, fmt.Errorf("%q is not a valid identifier", s)
}
