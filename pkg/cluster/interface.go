// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
)

// Client is the narrow read/write surface the verification engine
// needs from a cluster. Implementations must be safe for concurrent use
// and must not cache: every call observes the current cluster state.
type Client interface {
	// GetResource fetches the object of the given kind identified by ref.
	// A missing object is reported with an error for which
	// apierrors.IsNotFound returns true.
	GetResource(ctx context.Context, gvk schema.GroupVersionKind, ref object.ObjRef) (*unstructured.Unstructured, error)

	// PatchAnnotation sets a single annotation on the object and returns
	// the object as written by the server.
	PatchAnnotation(ctx context.Context, gvk schema.GroupVersionKind, ref object.ObjRef, key, value string) (*unstructured.Unstructured, error)

	// ListPods returns the pods in namespace matching selector, sorted
	// by name.
	ListPods(ctx context.Context, namespace string, selector labels.Selector) ([]PodInfo, error)

	// ExecInPod runs command in the given container and returns stdout.
	ExecInPod(ctx context.Context, pod PodRef, container string, command ...string) (string, error)
}

// PodRef identifies a pod.
type PodRef = object.ObjRef

// PodInfo is the part of a pod that rollout detection looks at.
type PodInfo struct {
	Name string
	// Fingerprint identifies the pod template the pod was created from.
	Fingerprint string
	// Ready is true if the pod is running and its Ready condition is true.
	Ready bool
	// Terminating is true if the pod is being deleted or has finished.
	Terminating bool
}
