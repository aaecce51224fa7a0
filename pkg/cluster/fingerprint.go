// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// fingerprintLabels are set by workload controllers to a hash of the
// pod template. They are preferred over hashing the pod ourselves.
var fingerprintLabels = []string{
	appsv1.DefaultDeploymentUniqueLabelKey,
	appsv1.ControllerRevisionHashLabelKey,
}

// platformAnnotationPrefixes match annotations written to pods by
// admission plugins and network providers. They are not part of the
// owning workload's template. kubectl.kubernetes.io/restartedAt is, and
// must change the fingerprint.
var platformAnnotationPrefixes = []string{
	"kubernetes.io/",
	"cni.projectcalico.org/",
	"k8s.v1.cni.cncf.io/",
	"openshift.io/",
}

func isPlatformAnnotation(key string) bool {
	for _, prefix := range platformAnnotationPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

type containerSignature struct {
	Name      string                      `json:"name"`
	Image     string                      `json:"image"`
	Command   []string                    `json:"command,omitempty"`
	Args      []string                    `json:"args,omitempty"`
	Env       []corev1.EnvVar             `json:"env,omitempty"`
	EnvFrom   []corev1.EnvFromSource      `json:"envFrom,omitempty"`
	Ports     []corev1.ContainerPort      `json:"ports,omitempty"`
	Resources corev1.ResourceRequirements `json:"resources"`
}

type templateSignature struct {
	Containers     []containerSignature `json:"containers"`
	InitContainers []containerSignature `json:"initContainers,omitempty"`
	HostAliases    []corev1.HostAlias   `json:"hostAliases,omitempty"`
	Annotations    map[string]string    `json:"annotations,omitempty"`
}

// Fingerprint returns a signature of the template-defining fields of the
// pod. Two pods created from the same template have the same
// fingerprint; a configuration change to the owning workload yields a
// different one.
func Fingerprint(pod *corev1.Pod) string {
	for _, key := range fingerprintLabels {
		if v := pod.Labels[key]; v != "" {
			return v
		}
	}

	sig := templateSignature{
		Containers:     containerSignatures(pod.Spec.Containers),
		InitContainers: containerSignatures(pod.Spec.InitContainers),
		HostAliases:    pod.Spec.HostAliases,
	}
	for k, v := range pod.Annotations {
		if isPlatformAnnotation(k) {
			continue
		}
		if sig.Annotations == nil {
			sig.Annotations = make(map[string]string)
		}
		sig.Annotations[k] = v
	}

	// Map keys are sorted by encoding/json, so the encoding is stable.
	data, err := json.Marshal(sig)
	if err != nil {
		// Only unsupported values can fail here, and the signature
		// contains none.
		panic(fmt.Errorf("failed to encode pod template signature: %w", err))
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

func containerSignatures(containers []corev1.Container) []containerSignature {
	if len(containers) == 0 {
		return nil
	}
	sigs := make([]containerSignature, 0, len(containers))
	for _, c := range containers {
		sigs = append(sigs, containerSignature{
			Name:      c.Name,
			Image:     c.Image,
			Command:   c.Command,
			Args:      c.Args,
			Env:       c.Env,
			EnvFrom:   c.EnvFrom,
			Ports:     c.Ports,
			Resources: c.Resources,
		})
	}
	return sigs
}

// NewPodInfo extracts the rollout-relevant view of a pod.
func NewPodInfo(pod *corev1.Pod) PodInfo {
	return PodInfo{
		Name:        pod.Name,
		Fingerprint: Fingerprint(pod),
		Ready:       isPodReady(pod),
		Terminating: isPodTerminating(pod),
	}
}

func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func isPodTerminating(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil {
		return true
	}
	return pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed
}
