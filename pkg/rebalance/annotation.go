// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package rebalance

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
)

// AnnotationKey is the annotation the rebalance controller watches for
// transition requests.
const AnnotationKey = "strimzi.io/rebalance"

// Annotation is a one-shot transition request.
type Annotation string

const (
	Approve Annotation = "approve"
	Stop    Annotation = "stop"
	Refresh Annotation = "refresh"
)

// compatibleStates lists the states in which the controller acts on
// each annotation.
var compatibleStates = map[Annotation][]State{
	Approve: {ProposalReady},
	Stop:    {PendingProposal, ProposalReady, Rebalancing},
	Refresh: {ProposalReady, Ready, Stopped, NotReady},
}

// ParseAnnotation converts a string to an Annotation.
func ParseAnnotation(s string) (Annotation, error) {
	a := Annotation(s)
	if _, found := compatibleStates[a]; !found {
		return "", fmt.Errorf("unknown rebalance annotation %q (must be one of approve, stop, refresh)", s)
	}
	return a, nil
}

// CompatibleStates returns the states in which a is acted on.
func (a Annotation) CompatibleStates() []State {
	return compatibleStates[a]
}

// CompatibleWith reports whether a is acted on in state s.
func (a Annotation) CompatibleWith(s State) bool {
	for _, c := range compatibleStates[a] {
		if c == s {
			return true
		}
	}
	return false
}

// PreconditionError is returned by Annotator.Apply when the resource is
// not in a state in which the annotation would be acted on.
type PreconditionError struct {
	Ref        object.ObjRef
	Annotation Annotation
	State      State
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot apply %s=%s to %s in state %s (allowed in %v)",
		AnnotationKey, e.Annotation, e.Ref, e.State, e.Annotation.CompatibleStates())
}

// IsPreconditionError returns the *PreconditionError in err's chain, if
// any.
func IsPreconditionError(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Annotator requests state transitions by annotating the resource.
//
// Apply makes exactly one mutating call and never retries it: repeating
// an approve is not guaranteed to be harmless. Retrying is up to the
// caller.
type Annotator struct {
	Client cluster.Client

	// GVK of the annotated resource. Defaults to KafkaRebalanceGVK.
	GVK schema.GroupVersionKind

	// ValidatePrecondition makes Apply read the resource first and
	// return a *PreconditionError, without mutating anything, if its
	// state is not compatible with the annotation. When false the
	// caller is expected to have waited for a compatible state.
	ValidatePrecondition bool
}

// Apply sets the rebalance annotation on the resource and returns the
// value the server reports back.
func (a *Annotator) Apply(ctx context.Context, ref object.ObjRef, annotation Annotation) (string, error) {
	if _, err := ParseAnnotation(string(annotation)); err != nil {
		return "", err
	}
	gvk := a.gvk()

	if a.ValidatePrecondition {
		u, err := a.Client.GetResource(ctx, gvk, ref)
		if err != nil {
			return "", fmt.Errorf("failed to read %s %s: %w", gvk.Kind, ref, err)
		}
		state, err := DeriveStateFromUnstructured(u)
		if err != nil {
			return "", err
		}
		if !annotation.CompatibleWith(state) {
			return "", &PreconditionError{Ref: ref, Annotation: annotation, State: state}
		}
	}

	klog.V(2).Infof("annotating %s %s with %s=%s", gvk.Kind, ref, AnnotationKey, annotation)
	u, err := a.Client.PatchAnnotation(ctx, gvk, ref, AnnotationKey, string(annotation))
	if err != nil {
		return "", fmt.Errorf("failed to annotate %s %s with %s=%s: %w",
			gvk.Kind, ref, AnnotationKey, annotation, err)
	}
	return u.GetAnnotations()[AnnotationKey], nil
}

func (a *Annotator) gvk() schema.GroupVersionKind {
	if a.GVK.Empty() {
		return KafkaRebalanceGVK
	}
	return a.GVK
}
