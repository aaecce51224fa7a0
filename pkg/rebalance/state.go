// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package rebalance

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/klog/v2"
)

// State is the lifecycle state of a rebalance resource, as derived from
// its status conditions.
type State string

const (
	New                  State = "New"
	PendingProposal      State = "PendingProposal"
	ProposalReady        State = "ProposalReady"
	Rebalancing          State = "Rebalancing"
	Ready                State = "Ready"
	NotReady             State = "NotReady"
	Stopped              State = "Stopped"
	ReconciliationPaused State = "ReconciliationPaused"
	// Unknown is derived when the resource has no state-bearing
	// condition yet.
	Unknown State = "Unknown"
)

// States lists every state except Unknown.
var States = []State{
	New,
	PendingProposal,
	ProposalReady,
	Rebalancing,
	Ready,
	NotReady,
	Stopped,
	ReconciliationPaused,
}

// ParseState converts a string to a State.
func ParseState(s string) (State, error) {
	for _, state := range append(States, Unknown) {
		if string(state) == s {
			return state, nil
		}
	}
	return Unknown, fmt.Errorf("unknown rebalance state %q", s)
}

// transitions lists the states reachable from each state in one step.
// A resource may also stay in its current state, fall to NotReady, or
// be paused from anywhere.
var transitions = map[State][]State{
	New:             {PendingProposal},
	PendingProposal: {ProposalReady, Stopped},
	ProposalReady:   {Rebalancing, PendingProposal, Stopped},
	Rebalancing:     {Ready, Stopped},
	Ready:           {PendingProposal},
	Stopped:         {PendingProposal},
	NotReady:        {PendingProposal, New},
}

// CanTransition reports whether the controller may move a resource from
// one state to another. Observations involving Unknown or
// ReconciliationPaused are always allowed since nothing is known about
// the state before or after them.
func CanTransition(from, to State) bool {
	switch {
	case from == to:
		return true
	case from == Unknown || from == ReconciliationPaused:
		return true
	case to == NotReady || to == ReconciliationPaused:
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// forward lists the one-step transitions that advance a resource toward
// Ready or Stopped. Refresh and restart edges back to PendingProposal or
// New are left out so the graph has no cycles.
var forward = map[State][]State{
	New:             {PendingProposal},
	PendingProposal: {ProposalReady, Stopped},
	ProposalReady:   {Rebalancing, Stopped},
	Rebalancing:     {Ready, Stopped},
}

// Reachable reports whether to follows from along the forward lifecycle,
// possibly through states that were never observed. A poller that
// misses ProposalReady -> Rebalancing sees ProposalReady -> Ready, which
// is reachable. Ready -> Rebalancing is not.
func Reachable(from, to State) bool {
	if CanTransition(from, to) {
		return true
	}
	seen := map[State]bool{from: true}
	queue := []State{from}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, next := range forward[s] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Condition is a status condition reported by the rebalance controller.
type Condition struct {
	Type               string
	Status             string
	Reason             string
	Message            string
	LastTransitionTime time.Time
}

// stateRule maps a condition to a state. An empty Reason matches any
// reason.
type stateRule struct {
	Type   string
	Reason string
	State  State
}

// stateTable is the only place that knows how the controller reports
// states. It is checked in order, rules with an explicit reason must
// come before the wildcard rule for the same type.
var stateTable = []stateRule{
	{Type: "New", State: New},
	{Type: "PendingProposal", State: PendingProposal},
	{Type: "ProposalReady", State: ProposalReady},
	{Type: "Rebalancing", State: Rebalancing},
	{Type: "Ready", State: Ready},
	{Type: "NotReady", State: NotReady},
	{Type: "Stopped", State: Stopped},
	{Type: "ReconciliationPaused", State: ReconciliationPaused},
}

// lookupState maps a condition type and reason through stateTable.
func lookupState(conditionType, reason string) (State, bool) {
	for _, rule := range stateTable {
		if rule.Type != conditionType {
			continue
		}
		if rule.Reason == "" || rule.Reason == reason {
			return rule.State, true
		}
	}
	return Unknown, false
}

// stateBearing reports whether c describes the resource's state. The
// controller also writes Warning conditions next to the state
// condition, those are ignored.
func stateBearing(c Condition) bool {
	if c.Status == "False" {
		return false
	}
	_, found := lookupState(c.Type, c.Reason)
	return found
}

// DeriveState returns the state described by the state-bearing
// condition with the latest transition time. Conditions with equal
// times are resolved in favor of the one listed last. Without any
// state-bearing condition the state is Unknown.
func DeriveState(conditions []Condition) State {
	var latest *Condition
	for i := range conditions {
		c := &conditions[i]
		if !stateBearing(*c) {
			continue
		}
		if latest == nil || !c.LastTransitionTime.Before(latest.LastTransitionTime) {
			latest = c
		}
	}
	if latest == nil {
		return Unknown
	}
	state, _ := lookupState(latest.Type, latest.Reason)
	return state
}

// transitionTimeLayouts are tried in order. The second accepts offsets
// without a colon, e.g. 2026-01-01T12:00:00+0000.
var transitionTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
}

func parseTransitionTime(ts string) (time.Time, bool) {
	for _, layout := range transitionTimeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ConditionsFromUnstructured reads status.conditions. Missing or
// unparsable transition times are left zero.
func ConditionsFromUnstructured(u *unstructured.Unstructured) ([]Condition, error) {
	objc, found, err := unstructured.NestedSlice(u.Object, "status", "conditions")
	if err != nil {
		return nil, fmt.Errorf("failed to read conditions of %s %s/%s: %w",
			u.GetKind(), u.GetNamespace(), u.GetName(), err)
	}
	if !found {
		return nil, nil
	}

	conditions := make([]Condition, 0, len(objc))
	for i, item := range objc {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("condition %d of %s %s/%s is of the type %T, expected map[string]interface{}",
				i, u.GetKind(), u.GetNamespace(), u.GetName(), item)
		}
		c := Condition{
			Type:    stringField(m, "type"),
			Status:  stringField(m, "status"),
			Reason:  stringField(m, "reason"),
			Message: stringField(m, "message"),
		}
		if ts := stringField(m, "lastTransitionTime"); ts != "" {
			if t, ok := parseTransitionTime(ts); ok {
				c.LastTransitionTime = t
			} else {
				klog.V(4).Infof("%s %s/%s: condition %s has unparsable lastTransitionTime %q",
					u.GetKind(), u.GetNamespace(), u.GetName(), c.Type, ts)
			}
		}
		conditions = append(conditions, c)
	}
	return conditions, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// DeriveStateFromUnstructured derives the state of a rebalance resource.
func DeriveStateFromUnstructured(u *unstructured.Unstructured) (State, error) {
	conditions, err := ConditionsFromUnstructured(u)
	if err != nil {
		return Unknown, err
	}
	return DeriveState(conditions), nil
}
