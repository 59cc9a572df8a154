package domain

import (
	"fmt"
	"strings"
)

// OrderingPolicy decides which completed evaluation may be committed when calls overlap.
type OrderingPolicy string

const (
	// OrderingMonotonic commits a result only if its sequence number is higher than the
	// last committed one. Stale results never overwrite newer ones, and intermediate
	// results still show up while the user keeps typing. An older result may be committed
	// while a newer call is in flight; OrderingLatestStarted forbids that.
	OrderingMonotonic OrderingPolicy = "monotonic"

	// OrderingLatestStarted commits a result only if no newer call has been started.
	OrderingLatestStarted OrderingPolicy = "latest-started"

	// OrderingLastCompleted commits every result as it completes; the last call to
	// complete wins even when it was started earlier.
	OrderingLastCompleted OrderingPolicy = "last-completed"
)

// DefaultOrdering is the policy used when none is configured.
const DefaultOrdering = OrderingMonotonic

// OrderingPolicies lists every valid policy.
var OrderingPolicies = []OrderingPolicy{OrderingMonotonic, OrderingLatestStarted, OrderingLastCompleted}

// Admits reports whether a result with sequence number seq may be committed given the
// newest started call and the last committed call.
func (p OrderingPolicy) Admits(seq, latestStarted, lastCommitted uint64) bool {
	switch p {
	case OrderingLastCompleted:
		return true
	case OrderingLatestStarted:
		return seq == latestStarted && seq > lastCommitted
	default:
		return seq > lastCommitted
	}
}

// ParseOrdering parses a policy name. The empty string yields DefaultOrdering.
func ParseOrdering(s string) (OrderingPolicy, error) {
	name := OrderingPolicy(strings.ToLower(strings.TrimSpace(s)))
	if name == "" {
		return DefaultOrdering, nil
	}
	for _, p := range OrderingPolicies {
		if p == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrdering, s)
}
