// Package realtime fans record change events out to WebSocket subscribers.
// Delivery is at-most-once: a slow subscriber loses events rather than
// stalling the dispatcher.
package realtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexabase-io/nexabase/internal/records"
)

// SubscriptionType selects the matching rule a subscription uses
type SubscriptionType string

const (
	// SubCollection matches every event on the collection
	SubCollection SubscriptionType = "collection"
	// SubRecord matches events for one record id
	SubRecord SubscriptionType = "record"
	// SubQuery matches events whose payload satisfies every filter
	SubQuery SubscriptionType = "query"
)

var (
	// ErrBadSubscription is returned for malformed subscribe requests
	ErrBadSubscription = errors.New("invalid subscription")
)

// SubscriptionData is one registered subscription on a connection. Filters
// map field names to "op:value" predicates using the list query operators.
type SubscriptionData struct {
	ID         string            `json:"subscription_id"`
	Collection string            `json:"collection_name"`
	Type       SubscriptionType  `json:"subscription_type"`
	RecordID   int64             `json:"record_id,omitempty"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// Validate checks the subscription shape for its declared type
func (s *SubscriptionData) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: subscription_id is required", ErrBadSubscription)
	}
	if s.Collection == "" {
		return fmt.Errorf("%w: collection_name is required", ErrBadSubscription)
	}
	switch s.Type {
	case SubCollection:
	case SubRecord:
		if s.RecordID <= 0 {
			return fmt.Errorf("%w: record subscriptions need a record_id", ErrBadSubscription)
		}
	case SubQuery:
		if len(s.Filters) == 0 {
			return fmt.Errorf("%w: query subscriptions need filters", ErrBadSubscription)
		}
		for field, predicate := range s.Filters {
			if _, _, err := splitPredicate(predicate); err != nil {
				return fmt.Errorf("%w: filter %q on %q", ErrBadSubscription, predicate, field)
			}
		}
	default:
		return fmt.Errorf("%w: unknown subscription_type %q", ErrBadSubscription, s.Type)
	}
	return nil
}

// Matches reports whether an event should be delivered to this subscription.
// Query filters evaluate against the new payload, or the old one for deletes.
func (s *SubscriptionData) Matches(e records.Event) bool {
	if e.Collection != s.Collection {
		return false
	}
	switch s.Type {
	case SubCollection:
		return true
	case SubRecord:
		return e.RecordID == s.RecordID
	case SubQuery:
		payload := e.Record
		if e.Action == records.ActionDeleted {
			payload = e.OldRecord
		}
		if payload == nil {
			return false
		}
		for field, predicate := range s.Filters {
			op, value, err := splitPredicate(predicate)
			if err != nil {
				return false
			}
			if !evalPredicate(payload[field], op, value) {
				return false
			}
		}
		return true
	}
	return false
}

func splitPredicate(predicate string) (op, value string, err error) {
	parts := strings.SplitN(predicate, ":", 2)
	op = parts[0]
	if len(parts) == 2 {
		value = parts[1]
	}
	switch op {
	case "eq", "ne", "gt", "gte", "lt", "lte", "like", "notlike", "in", "notin", "isnull", "isnotnull":
		return op, value, nil
	}
	return "", "", fmt.Errorf("unknown operator %q", op)
}

// evalPredicate mirrors the list query operators against an in-memory value
func evalPredicate(actual interface{}, op, expected string) bool {
	switch op {
	case "isnull":
		return actual == nil
	case "isnotnull":
		return actual != nil
	}
	if actual == nil {
		return false
	}

	switch op {
	case "eq":
		return equalValue(actual, expected)
	case "ne":
		return !equalValue(actual, expected)
	case "gt", "gte", "lt", "lte":
		a, aok := toNumber(actual)
		b, err := strconv.ParseFloat(expected, 64)
		if !aok || err != nil {
			return compareStrings(fmt.Sprintf("%v", actual), expected, op)
		}
		switch op {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	case "like":
		return containsFold(actual, expected)
	case "notlike":
		return !containsFold(actual, expected)
	case "in", "notin":
		found := false
		for _, candidate := range strings.Split(expected, ";") {
			if equalValue(actual, candidate) {
				found = true
				break
			}
		}
		if op == "in" {
			return found
		}
		return !found
	}
	return false
}

func equalValue(actual interface{}, expected string) bool {
	switch expected {
	case "true", "false":
		if b, ok := actual.(bool); ok {
			return strconv.FormatBool(b) == expected
		}
	}
	if a, ok := toNumber(actual); ok {
		if b, err := strconv.ParseFloat(expected, 64); err == nil {
			return a == b
		}
		return false
	}
	return fmt.Sprintf("%v", actual) == expected
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func compareStrings(a, b, op string) bool {
	switch op {
	case "gt":
		return a > b
	case "gte":
		return a >= b
	case "lt":
		return a < b
	case "lte":
		return a <= b
	}
	return false
}

func containsFold(actual interface{}, needle string) bool {
	s, ok := actual.(string)
	if !ok {
		s = fmt.Sprintf("%v", actual)
	}
	needle = strings.Trim(needle, "%")
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}
