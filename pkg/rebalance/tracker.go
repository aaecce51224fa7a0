// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package rebalance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
)

var (
	// KafkaRebalanceGVK is the kind tracked by default.
	KafkaRebalanceGVK = schema.GroupVersionKind{
		Group:   "kafka.strimzi.io",
		Version: "v1beta2",
		Kind:    "KafkaRebalance",
	}

	// KafkaGVK is the kind of the Kafka cluster a rebalance belongs to.
	KafkaGVK = schema.GroupVersionKind{
		Group:   "kafka.strimzi.io",
		Version: "v1beta2",
		Kind:    "Kafka",
	}
)

// DefaultStateTimeout is used when WaitForState is called without a
// positive timeout and the Tracker has no DefaultTimeout. Proposals can
// take several minutes to compute.
const DefaultStateTimeout = 10 * time.Minute

// Tracker waits for rebalance resources to reach a given state.
type Tracker struct {
	Client cluster.Client
	Poller *poll.Poller

	// GVK of the tracked resource. Defaults to KafkaRebalanceGVK.
	GVK schema.GroupVersionKind

	// Interval between reads. Defaults to poll.DefaultInterval.
	Interval time.Duration

	// DefaultTimeout is used when a wait is given a non-positive timeout.
	DefaultTimeout time.Duration
}

// NewTracker returns a Tracker for KafkaRebalance resources.
func NewTracker(c cluster.Client, p *poll.Poller) *Tracker {
	return &Tracker{
		Client: c,
		Poller: p,
		GVK:    KafkaRebalanceGVK,
	}
}

// State reads the resource once and derives its state.
func (t *Tracker) State(ctx context.Context, ref object.ObjRef) (State, error) {
	u, err := t.Client.GetResource(ctx, t.gvk(), ref)
	if err != nil {
		return Unknown, err
	}
	return DeriveStateFromUnstructured(u)
}

// WaitForState blocks until the resource is in the expected state. It
// returns a *poll.TimeoutError if the state is not reached within
// timeout, or a *poll.NotFoundError if the resource does not exist.
func (t *Tracker) WaitForState(ctx context.Context, ref object.ObjRef, expected State, timeout time.Duration) error {
	gvk := t.gvk()
	previous := Unknown
	return t.poller().Poll(ctx, poll.Spec{
		Timeout:     t.timeout(timeout),
		Interval:    t.Interval,
		Description: fmt.Sprintf("%s %s to reach state %s", gvk.Kind, ref, expected),
		Condition: func(ctx context.Context) (bool, error) {
			state, err := t.State(ctx, ref)
			if err != nil {
				return false, err
			}
			if state != previous {
				switch {
				case CanTransition(previous, state):
					klog.V(3).Infof("%s %s: %s -> %s", gvk.Kind, ref, previous, state)
				case Reachable(previous, state):
					klog.V(3).Infof("%s %s: %s -> %s, intermediate states not observed", gvk.Kind, ref, previous, state)
				default:
					klog.Warningf("%s %s: unexpected transition %s -> %s", gvk.Kind, ref, previous, state)
				}
				previous = state
			}
			klog.V(4).Infof("%s %s: state %s, waiting for %s", gvk.Kind, ref, state, expected)
			return state == expected, nil
		},
	})
}

// WaitForConditionMessage blocks until one of the status conditions of
// the object has a message containing substr.
func (t *Tracker) WaitForConditionMessage(ctx context.Context, gvk schema.GroupVersionKind, ref object.ObjRef, substr string, timeout time.Duration) error {
	return t.poller().Poll(ctx, poll.Spec{
		Timeout:     t.timeout(timeout),
		Interval:    t.Interval,
		Description: fmt.Sprintf("%s %s to report %q", gvk.Kind, ref, substr),
		Condition: func(ctx context.Context) (bool, error) {
			found, err := t.HasConditionMessage(ctx, gvk, ref, substr)
			if err != nil {
				return false, err
			}
			return found, nil
		},
	})
}

// HasConditionMessage reads the object once and reports whether any of
// its status conditions has a message containing substr.
func (t *Tracker) HasConditionMessage(ctx context.Context, gvk schema.GroupVersionKind, ref object.ObjRef, substr string) (bool, error) {
	u, err := t.Client.GetResource(ctx, gvk, ref)
	if err != nil {
		return false, err
	}
	conditions, err := ConditionsFromUnstructured(u)
	if err != nil {
		return false, err
	}
	for _, c := range conditions {
		if strings.Contains(c.Message, substr) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tracker) gvk() schema.GroupVersionKind {
	if t.GVK.Empty() {
		return KafkaRebalanceGVK
	}
	return t.GVK
}

func (t *Tracker) poller() *poll.Poller {
	if t.Poller == nil {
		return poll.NewPoller()
	}
	return t.Poller
}

func (t *Tracker) timeout(timeout time.Duration) time.Duration {
	switch {
	case timeout > 0:
		return timeout
	case t.DefaultTimeout > 0:
		return t.DefaultTimeout
	default:
		return DefaultStateTimeout
	}
}
