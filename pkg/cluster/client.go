// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
)

// ExecutorFactory creates the stream executor used by ExecInPod.
// remotecommand.NewSPDYExecutor is the production implementation.
type ExecutorFactory func(config *rest.Config, method string, url *url.URL) (remotecommand.Executor, error)

// ClusterClient implements Client against a live API server. Reads and
// patches go through a controller-runtime client; exec goes through the
// pods/exec subresource.
type ClusterClient struct {
	Client     client.Client
	Clientset  kubernetes.Interface
	RestConfig *rest.Config

	NewExecutor ExecutorFactory
}

var _ Client = &ClusterClient{}

// NewClusterClient creates a ClusterClient for the given config. The
// mapper is used to resolve custom resource kinds.
func NewClusterClient(config *rest.Config, mapper meta.RESTMapper) (*ClusterClient, error) {
	c, err := client.New(config, client.Options{Scheme: scheme.Scheme, Mapper: mapper})
	if err != nil {
		return nil, fmt.Errorf("error creating client: %w", err)
	}
	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("error creating clientset: %w", err)
	}
	return &ClusterClient{
		Client:      c,
		Clientset:   cs,
		RestConfig:  config,
		NewExecutor: remotecommand.NewSPDYExecutor,
	}, nil
}

func (c *ClusterClient) GetResource(ctx context.Context, gvk schema.GroupVersionKind, ref object.ObjRef) (*unstructured.Unstructured, error) {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(gvk)
	if err := c.Client.Get(ctx, ref.NamespacedName(), u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *ClusterClient) PatchAnnotation(ctx context.Context, gvk schema.GroupVersionKind, ref object.ObjRef, key, value string) (*unstructured.Unstructured, error) {
	patch, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": map[string]string{key: value},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build annotation patch: %w", err)
	}

	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(gvk)
	u.SetNamespace(ref.Namespace)
	u.SetName(ref.Name)
	klog.V(4).Infof("patching %s %s: %s", gvk.Kind, ref, patch)
	if err := c.Client.Patch(ctx, u, client.RawPatch(types.MergePatchType, patch)); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *ClusterClient) ListPods(ctx context.Context, namespace string, selector labels.Selector) ([]PodInfo, error) {
	var podList corev1.PodList
	err := c.Client.List(ctx, &podList,
		client.InNamespace(namespace),
		client.MatchingLabelsSelector{Selector: selector})
	if err != nil {
		return nil, err
	}

	pods := make([]PodInfo, 0, len(podList.Items))
	for i := range podList.Items {
		pods = append(pods, NewPodInfo(&podList.Items[i]))
	}
	sort.Slice(pods, func(i, j int) bool {
		return pods[i].Name < pods[j].Name
	})
	return pods, nil
}

func (c *ClusterClient) ExecInPod(ctx context.Context, pod PodRef, container string, command ...string) (string, error) {
	if len(command) == 0 {
		return "", fmt.Errorf("no command given for exec in pod %s", pod)
	}
	req := c.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(pod.Namespace).
		Name(pod.Name).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	newExecutor := c.NewExecutor
	if newExecutor == nil {
		newExecutor = remotecommand.NewSPDYExecutor
	}
	exec, err := newExecutor(c.RestConfig, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("error creating executor for pod %s: %w", pod, err)
	}

	var stdout, stderr bytes.Buffer
	klog.V(3).Infof("exec in pod %s (container %q): %s", pod, container, strings.Join(command, " "))
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return "", fmt.Errorf("exec %q in pod %s failed: %w: %s",
			strings.Join(command, " "), pod, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
