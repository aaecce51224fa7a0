// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0
//
// ObjRef is the minimal set of information needed to
// address one object of a kind that the caller already
// knows:
//
//   Namespace
//   Name
//
// The GroupVersionKind is not part of the
// reference. Every component that reads or writes objects
// is configured with the kind it works on, so a single
// ObjRef can name both a KafkaRebalance and the Kafka
// cluster it targets.

package object

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

const (
	// Separates the namespace and name in the string form.
	fieldSeparator = "/"
)

// ObjRef identifies one namespaced object. It is a value type and
// must not be modified after creation.
type ObjRef struct {
	Namespace string
	Name      string
}

// CreateObjRef returns an ObjRef filled with the passed values. The
// fields are trimmed, and an error is returned if either is empty.
func CreateObjRef(namespace, name string) (ObjRef, error) {
	namespace = strings.TrimSpace(namespace)
	name = strings.TrimSpace(name)
	if name == "" {
		return ObjRef{}, fmt.Errorf("empty name for object")
	}
	if namespace == "" {
		return ObjRef{}, fmt.Errorf("empty namespace for object %q", name)
	}
	if strings.Contains(name, fieldSeparator) {
		return ObjRef{}, fmt.Errorf("invalid object name %q", name)
	}
	return ObjRef{
		Namespace: namespace,
		Name:      name,
	}, nil
}

// ParseObjRef parses "namespace/name". A bare name is resolved in
// defaultNamespace.
func ParseObjRef(s, defaultNamespace string) (ObjRef, error) {
	parts := strings.Split(strings.TrimSpace(s), fieldSeparator)
	switch len(parts) {
	case 1:
		return CreateObjRef(defaultNamespace, parts[0])
	case 2:
		return CreateObjRef(parts[0], parts[1])
	default:
		return ObjRef{}, fmt.Errorf("too many %q separators in object reference %q", fieldSeparator, s)
	}
}

// RefFromUnstructured returns the ObjRef for the given object.
func RefFromUnstructured(u *unstructured.Unstructured) ObjRef {
	return ObjRef{
		Namespace: u.GetNamespace(),
		Name:      u.GetName(),
	}
}

// NamespacedName returns the key used by controller-runtime clients.
func (r ObjRef) NamespacedName() types.NamespacedName {
	return types.NamespacedName{
		Namespace: r.Namespace,
		Name:      r.Name,
	}
}

// Empty returns true if the ref has neither name nor namespace.
func (r ObjRef) Empty() bool {
	return r == ObjRef{}
}

func (r ObjRef) String() string {
	return r.Namespace + fieldSeparator + r.Name
}
