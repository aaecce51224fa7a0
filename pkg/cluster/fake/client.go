// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

// Package fake provides an in-memory cluster.Client for tests. Objects
// and pods can be changed at any time from another goroutine, which is
// how tests play the part of the operator being verified.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
)

type objKey struct {
	gk  schema.GroupKind
	ref object.ObjRef
}

type execKey struct {
	pod       object.ObjRef
	container string
	command   string
}

// Patch records a PatchAnnotation call.
type Patch struct {
	GVK   schema.GroupVersionKind
	Ref   object.ObjRef
	Key   string
	Value string
}

// GetHook is called after every GetResource with the number of reads
// of that object so far, including the current one. It runs without the
// client lock held, so it may modify the client.
type GetHook func(gvk schema.GroupVersionKind, ref object.ObjRef, reads int)

// Client is an in-memory implementation of cluster.Client.
type Client struct {
	mu sync.Mutex

	objects   map[objKey]*unstructured.Unstructured
	pods      map[object.ObjRef]*corev1.Pod
	getErrors map[objKey][]error
	exec      map[execKey]execResult
	reads     map[objKey]int
	podLists  int
	patches   []Patch

	// OnGet, if set, is called after every GetResource.
	OnGet GetHook

	// OnPatch, if set, is called after every successful PatchAnnotation
	// without the client lock held.
	OnPatch func(p Patch)
}

type execResult struct {
	stdout string
	err    error
}

var _ cluster.Client = &Client{}

// NewClient returns an empty Client.
func NewClient() *Client {
	return &Client{
		objects:   make(map[objKey]*unstructured.Unstructured),
		pods:      make(map[object.ObjRef]*corev1.Pod),
		getErrors: make(map[objKey][]error),
		exec:      make(map[execKey]execResult),
		reads:     make(map[objKey]int),
	}
}

func keyFor(gvk schema.GroupVersionKind, ref object.ObjRef) objKey {
	return objKey{gk: gvk.GroupKind(), ref: ref}
}

func notFound(gvk schema.GroupVersionKind, name string) error {
	return apierrors.NewNotFound(schema.GroupResource{
		Group:    gvk.Group,
		Resource: strings.ToLower(gvk.Kind) + "s",
	}, name)
}

// Set stores a copy of u, replacing any existing object with the same
// kind, namespace and name.
func (c *Client) Set(u *unstructured.Unstructured) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[keyFor(u.GroupVersionKind(), object.RefFromUnstructured(u))] = u.DeepCopy()
}

// Update applies mutate to the stored object. It returns a NotFound
// error if there is no such object.
func (c *Client) Update(gvk schema.GroupVersionKind, ref object.ObjRef, mutate func(u *unstructured.Unstructured)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, found := c.objects[keyFor(gvk, ref)]
	if !found {
		return notFound(gvk, ref.Name)
	}
	mutate(u)
	return nil
}

// Delete removes the object, if present.
func (c *Client) Delete(gvk schema.GroupVersionKind, ref object.ObjRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, keyFor(gvk, ref))
}

// FailGets makes the next len(errs) reads of the object return errs in
// order, before the stored object is served again.
func (c *Client) FailGets(gvk schema.GroupVersionKind, ref object.ObjRef, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyFor(gvk, ref)
	c.getErrors[k] = append(c.getErrors[k], errs...)
}

// Reads returns the number of GetResource calls for the object.
func (c *Client) Reads(gvk schema.GroupVersionKind, ref object.ObjRef) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[keyFor(gvk, ref)]
}

// Patches returns the recorded PatchAnnotation calls.
func (c *Client) Patches() []Patch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Patch(nil), c.patches...)
}

// PodLists returns the number of ListPods calls.
func (c *Client) PodLists() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.podLists
}

// SetPods replaces all pods in namespace with pods.
func (c *Client) SetPods(namespace string, pods ...*corev1.Pod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ref := range c.pods {
		if ref.Namespace == namespace {
			delete(c.pods, ref)
		}
	}
	for _, p := range pods {
		p = p.DeepCopy()
		p.Namespace = namespace
		c.pods[object.ObjRef{Namespace: namespace, Name: p.Name}] = p
	}
}

// UpdatePod applies mutate to a stored pod.
func (c *Client) UpdatePod(ref object.ObjRef, mutate func(p *corev1.Pod)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, found := c.pods[ref]
	if !found {
		return notFound(corev1.SchemeGroupVersion.WithKind("Pod"), ref.Name)
	}
	mutate(p)
	return nil
}

// DeletePod removes a pod, if present.
func (c *Client) DeletePod(ref object.ObjRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pods, ref)
}

// SetExec scripts the result of running command in the container.
func (c *Client) SetExec(pod object.ObjRef, container string, command []string, stdout string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exec[execKey{pod: pod, container: container, command: strings.Join(command, " ")}] = execResult{
		stdout: stdout,
		err:    err,
	}
}

func (c *Client) GetResource(_ context.Context, gvk schema.GroupVersionKind, ref object.ObjRef) (*unstructured.Unstructured, error) {
	u, reads, err := c.get(gvk, ref)
	if c.OnGet != nil {
		c.OnGet(gvk, ref, reads)
	}
	return u, err
}

func (c *Client) get(gvk schema.GroupVersionKind, ref object.ObjRef) (*unstructured.Unstructured, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyFor(gvk, ref)
	c.reads[k]++
	reads := c.reads[k]

	if errs := c.getErrors[k]; len(errs) > 0 {
		c.getErrors[k] = errs[1:]
		return nil, reads, errs[0]
	}
	u, found := c.objects[k]
	if !found {
		return nil, reads, notFound(gvk, ref.Name)
	}
	return u.DeepCopy(), reads, nil
}

func (c *Client) PatchAnnotation(_ context.Context, gvk schema.GroupVersionKind, ref object.ObjRef, key, value string) (*unstructured.Unstructured, error) {
	u, p, err := c.patch(gvk, ref, key, value)
	if err != nil {
		return nil, err
	}
	if c.OnPatch != nil {
		c.OnPatch(p)
	}
	return u, nil
}

func (c *Client) patch(gvk schema.GroupVersionKind, ref object.ObjRef, key, value string) (*unstructured.Unstructured, Patch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, found := c.objects[keyFor(gvk, ref)]
	if !found {
		return nil, Patch{}, notFound(gvk, ref.Name)
	}
	annotations := u.GetAnnotations()
	if annotations == nil {
		annotations = make(map[string]string)
	}
	annotations[key] = value
	u.SetAnnotations(annotations)

	p := Patch{GVK: gvk, Ref: ref, Key: key, Value: value}
	c.patches = append(c.patches, p)
	return u.DeepCopy(), p, nil
}

func (c *Client) ListPods(_ context.Context, namespace string, selector labels.Selector) ([]cluster.PodInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.podLists++

	var pods []cluster.PodInfo
	for ref, p := range c.pods {
		if ref.Namespace != namespace || !selector.Matches(labels.Set(p.Labels)) {
			continue
		}
		pods = append(pods, cluster.NewPodInfo(p))
	}
	sort.Slice(pods, func(i, j int) bool {
		return pods[i].Name < pods[j].Name
	})
	return pods, nil
}

func (c *Client) ExecInPod(_ context.Context, pod cluster.PodRef, container string, command ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.pods[pod]; !found {
		return "", notFound(corev1.SchemeGroupVersion.WithKind("Pod"), pod.Name)
	}
	res, found := c.exec[execKey{pod: pod, container: container, command: strings.Join(command, " ")}]
	if !found {
		return "", fmt.Errorf("exec %q in pod %s failed: command terminated with exit code 127",
			strings.Join(command, " "), pod)
	}
	return res.stdout, res.err
}
