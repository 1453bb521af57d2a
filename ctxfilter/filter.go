// Package ctxfilter implements the Context Matcher (spec §4.7):
// structured boolean filters over an object's JSON representation, used
// by Call events to decide whether a receiver's local context qualifies
// for the invocation, and by Query events to select objects.
package ctxfilter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is the closed set of comparison operators a Condition may
// use (spec §4.7).
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpLessThan           Operator = "lessThan"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpGreaterThan        Operator = "greaterThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpBetween            Operator = "between"
	OpLike               Operator = "like"
	OpExists             Operator = "exists"
	OpContains           Operator = "contains"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "notIn"
)

// Condition is a single leaf test: does the value at PropertyPath
// satisfy Operator against Operand? PropertyPath uses "." to address
// nested objects (spec §4.7).
type Condition struct {
	PropertyPath string   `json:"propertyPath"`
	Operator     Operator `json:"operator"`
	Operand      any      `json:"operand,omitempty"`
}

// Filter is a tree of conjunctions (And) or disjunctions (Or) of
// Conditions and nested Filters. Exactly one of And, Or, or Condition
// should be set; a zero-value Filter with none set matches everything,
// letting a ContextFilter default to "always match" when unspecified.
type Filter struct {
	And       []Filter   `json:"and,omitempty"`
	Or        []Filter   `json:"or,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
}

// Match evaluates f against subject, the JSON representation of a
// CoatyObject (or any JSON object). It never returns an error for a
// well-formed Filter; malformed operand shapes (e.g. "between" without
// exactly two bounds) evaluate to false rather than panicking.
func Match(f Filter, subject json.RawMessage) bool {
	var doc any
	if err := json.Unmarshal(subject, &doc); err != nil {
		return false
	}
	return matchNode(f, doc)
}

func matchNode(f Filter, doc any) bool {
	switch {
	case len(f.And) > 0:
		for _, child := range f.And {
			if !matchNode(child, doc) {
				return false
			}
		}
		return true
	case len(f.Or) > 0:
		for _, child := range f.Or {
			if matchNode(child, doc) {
				return true
			}
		}
		return false
	case f.Condition != nil:
		return evalCondition(*f.Condition, doc)
	default:
		return true
	}
}

func evalCondition(c Condition, doc any) bool {
	value, found := resolvePath(doc, c.PropertyPath)

	if c.Operator == OpExists {
		want, _ := c.Operand.(bool)
		return found == want
	}
	if !found {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return looseEqual(value, c.Operand)
	case OpNotEquals:
		return !looseEqual(value, c.Operand)
	case OpLessThan:
		return compareNumbers(value, c.Operand, func(a, b float64) bool { return a < b })
	case OpLessThanOrEqual:
		return compareNumbers(value, c.Operand, func(a, b float64) bool { return a <= b })
	case OpGreaterThan:
		return compareNumbers(value, c.Operand, func(a, b float64) bool { return a > b })
	case OpGreaterThanOrEqual:
		return compareNumbers(value, c.Operand, func(a, b float64) bool { return a >= b })
	case OpBetween:
		return evalBetween(value, c.Operand)
	case OpLike:
		return evalLike(value, c.Operand)
	case OpContains:
		return evalContains(value, c.Operand)
	case OpIn:
		return evalIn(value, c.Operand, true)
	case OpNotIn:
		return evalIn(value, c.Operand, false)
	default:
		return false
	}
}

// resolvePath walks doc through the dotted property path, returning the
// value found and whether the full path resolved. Any non-object
// encountered before the path is exhausted counts as "missing"
// (spec §4.7: "missing path yields exists=false").
func resolvePath(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareNumbers(value, operand any, cmp func(a, b float64) bool) bool {
	vf, vok := toFloat(value)
	of, ook := toFloat(operand)
	if !vok || !ook {
		return false
	}
	return cmp(vf, of)
}

func evalBetween(value, operand any) bool {
	bounds, ok := operand.([]any)
	if !ok || len(bounds) != 2 {
		return false
	}
	vf, ok := toFloat(value)
	if !ok {
		return false
	}
	lo, loOK := toFloat(bounds[0])
	hi, hiOK := toFloat(bounds[1])
	if !loOK || !hiOK {
		return false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return vf >= lo && vf <= hi
}

// evalLike implements SQL-style wildcard matching: '%' matches any
// run of characters, '_' matches exactly one.
func evalLike(value, operand any) bool {
	vs, vok := value.(string)
	pattern, pok := operand.(string)
	if !vok || !pok {
		return false
	}
	return likeMatch(vs, pattern)
}

func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := range s {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}

func evalContains(value, operand any) bool {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if looseEqual(item, operand) {
				return true
			}
		}
		return false
	case string:
		sub, ok := operand.(string)
		if !ok {
			return false
		}
		return strings.Contains(v, sub)
	case map[string]any:
		key, ok := operand.(string)
		if !ok {
			return false
		}
		_, exists := v[key]
		return exists
	default:
		return false
	}
}

func evalIn(value, operand any, wantMembership bool) bool {
	list, ok := operand.([]any)
	if !ok {
		return false
	}
	member := false
	for _, item := range list {
		if looseEqual(value, item) {
			member = true
			break
		}
	}
	return member == wantMembership
}
