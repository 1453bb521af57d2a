package topic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentmesh/commcore/event"
)

// WildcardOne is the broker's single-level wildcard.
const WildcardOne = "+"

// WildcardTail is the broker's multi-level (tail) wildcard.
const WildcardTail = "#"

// ResponseFilter builds the subscription filter for a response event
// correlated to a request carrying messageToken (spec §4.5): the
// message-token level is pinned, and source/user are wildcarded since
// any peer's response is acceptable. eventTypeName is the exact
// "Kind" or "Kind:filter" string when the caller knows it in advance
// (e.g. "Resolve", "Return:switchLight"), or WildcardOne when the
// caller cannot predict the response's filter suffix (e.g. Complete's
// object-type filter, which the caller may not know ahead of time).
func ResponseFilter(eventTypeName, messageToken string) (string, error) {
	if eventTypeName == "" {
		return "", fmt.Errorf("%w: eventTypeName must not be empty", ErrInvalidTopic)
	}
	if err := validateTokenValue(messageToken); err != nil {
		return "", err
	}
	return strings.Join([]string{
		Protocol, strconv.Itoa(Version), eventTypeName, WildcardOne, WildcardOne, messageToken,
	}, "/"), nil
}

// EventTypeNameFor builds the "Kind" or "Kind:filter" segment used both
// when publishing and when constructing an exact-match response filter.
func EventTypeNameFor(kind event.Kind, filter string) string {
	if filter == "" {
		return string(kind)
	}
	return string(kind) + ":" + filter
}

// SubscribeFilter builds a subscription filter for all events of a
// given kind (and, for kinds that take one, a specific filter value).
// Passing an empty filter for a kind that normally requires one yields
// a wildcarded eventTypeName level, matching any filter value for that
// kind — used by controllers that want every Advertise regardless of
// object type, for instance.
func SubscribeFilter(kind event.Kind, filter string) (string, error) {
	eventTypeName := string(kind)
	role := roleFor(kind)
	switch {
	case filter != "":
		if err := ValidateFilterValue(filter); err != nil {
			return "", err
		}
		eventTypeName += ":" + filter
	case role != filterNone:
		eventTypeName += ":" + WildcardOne
	}
	return strings.Join([]string{
		Protocol, strconv.Itoa(Version), eventTypeName, WildcardOne, WildcardOne, WildcardOne,
	}, "/"), nil
}

// ValidateRawPublish checks a Raw event's topic for publishing: it must
// be non-empty, free of NUL, and must not contain the broker wildcard
// characters (spec §4.1 "Raw topics").
func ValidateRawPublish(t string) error {
	if t == "" {
		return fmt.Errorf("%w: raw topic must not be empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(t, 0) {
		return fmt.Errorf("%w: raw topic contains NUL", ErrInvalidTopic)
	}
	if strings.ContainsAny(t, "+#") {
		return fmt.Errorf("%w: raw topic %q must not contain wildcards on publish", ErrInvalidTopic, t)
	}
	return nil
}

// ValidateRawSubscribe checks a Raw event's topic filter for
// subscribing: non-empty and free of NUL, but wildcards are permitted.
func ValidateRawSubscribe(t string) error {
	if t == "" {
		return fmt.Errorf("%w: raw topic filter must not be empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(t, 0) {
		return fmt.Errorf("%w: raw topic filter contains NUL", ErrInvalidTopic)
	}
	return nil
}
