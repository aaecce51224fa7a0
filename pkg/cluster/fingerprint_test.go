// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func ccPod(name string, mutate ...func(*corev1.Pod)) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "kafka",
			Labels: map[string]string{
				"strimzi.io/name": "my-cluster-cruise-control",
			},
			Annotations: map[string]string{
				"strimzi.io/server-config-hash": "abc123",
			},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:  "cruise-control",
					Image: "quay.io/strimzi/kafka:0.45.0-kafka-3.9.0",
					Env: []corev1.EnvVar{
						{Name: "CRUISE_CONTROL_METRICS_TOPIC", Value: "strimzi.cruisecontrol.metrics"},
					},
					Resources: corev1.ResourceRequirements{
						Limits: corev1.ResourceList{
							corev1.ResourceMemory: resource.MustParse("512Mi"),
						},
					},
				},
			},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
	for _, m := range mutate {
		m(pod)
	}
	return pod
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint(ccPod("cc-1"))

	testCases := map[string]struct {
		mutate      func(*corev1.Pod)
		expectEqual bool
	}{
		"pod name does not matter": {
			mutate:      func(p *corev1.Pod) { p.Name = "cc-2" },
			expectEqual: true,
		},
		"status does not matter": {
			mutate:      func(p *corev1.Pod) { p.Status.Phase = corev1.PodPending },
			expectEqual: true,
		},
		"platform annotations do not matter": {
			mutate: func(p *corev1.Pod) {
				p.Annotations["kubernetes.io/psp"] = "restricted"
				p.Annotations["cni.projectcalico.org/podIP"] = "10.244.1.7/32"
				p.Annotations["k8s.v1.cni.cncf.io/network-status"] = "[]"
				p.Annotations["openshift.io/scc"] = "restricted-v2"
			},
			expectEqual: true,
		},
		"rollout restart": {
			mutate: func(p *corev1.Pod) {
				p.Annotations["kubectl.kubernetes.io/restartedAt"] = "2026-01-01T00:00:00Z"
			},
		},
		"image change": {
			mutate: func(p *corev1.Pod) { p.Spec.Containers[0].Image = "quay.io/strimzi/kafka:0.46.0-kafka-4.0.0" },
		},
		"env change": {
			mutate: func(p *corev1.Pod) {
				p.Spec.Containers[0].Env[0].Value = "other.metrics"
			},
		},
		"resource change": {
			mutate: func(p *corev1.Pod) {
				p.Spec.Containers[0].Resources.Limits[corev1.ResourceMemory] = resource.MustParse("1Gi")
			},
		},
		"config hash annotation change": {
			mutate: func(p *corev1.Pod) { p.Annotations["strimzi.io/server-config-hash"] = "def456" },
		},
		"host alias added": {
			mutate: func(p *corev1.Pod) {
				p.Spec.HostAliases = []corev1.HostAlias{{IP: "10.0.0.1", Hostnames: []string{"broker-0"}}}
			},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			fp := Fingerprint(ccPod("cc-1", tc.mutate))
			if tc.expectEqual {
				assert.Equal(t, base, fp)
			} else {
				assert.NotEqual(t, base, fp)
			}
		})
	}
}

func TestFingerprintPrefersTemplateHashLabel(t *testing.T) {
	withHash := func(key, value string) func(*corev1.Pod) {
		return func(p *corev1.Pod) { p.Labels[key] = value }
	}

	assert.Equal(t, "6d4cf56db6",
		Fingerprint(ccPod("cc-1", withHash("pod-template-hash", "6d4cf56db6"))))
	assert.Equal(t, "my-cluster-kafka-7b9c",
		Fingerprint(ccPod("cc-1", withHash("controller-revision-hash", "my-cluster-kafka-7b9c"))))

	// The label wins even if the containers differ.
	a := ccPod("cc-1", withHash("pod-template-hash", "same"))
	b := ccPod("cc-2", withHash("pod-template-hash", "same"), func(p *corev1.Pod) {
		p.Spec.Containers[0].Image = "other"
	})
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintRestartedAt(t *testing.T) {
	restartedAt := func(value string) func(*corev1.Pod) {
		return func(p *corev1.Pod) { p.Annotations["kubectl.kubernetes.io/restartedAt"] = value }
	}

	first := Fingerprint(ccPod("cc-1", restartedAt("2026-01-01T00:00:00Z")))
	second := Fingerprint(ccPod("cc-2", restartedAt("2026-01-01T00:05:00Z")))
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, Fingerprint(ccPod("cc-3", restartedAt("2026-01-01T00:00:00Z"))))
}

func TestNewPodInfo(t *testing.T) {
	now := metav1.Now()

	testCases := map[string]struct {
		pod      *corev1.Pod
		expected PodInfo
	}{
		"running and ready": {
			pod:      ccPod("cc-1"),
			expected: PodInfo{Name: "cc-1", Ready: true},
		},
		"running but not ready": {
			pod: ccPod("cc-1", func(p *corev1.Pod) {
				p.Status.Conditions[0].Status = corev1.ConditionFalse
			}),
			expected: PodInfo{Name: "cc-1"},
		},
		"pending": {
			pod: ccPod("cc-1", func(p *corev1.Pod) {
				p.Status.Phase = corev1.PodPending
			}),
			expected: PodInfo{Name: "cc-1"},
		},
		"being deleted": {
			pod: ccPod("cc-1", func(p *corev1.Pod) {
				p.DeletionTimestamp = &now
			}),
			expected: PodInfo{Name: "cc-1", Ready: true, Terminating: true},
		},
		"failed": {
			pod: ccPod("cc-1", func(p *corev1.Pod) {
				p.Status.Phase = corev1.PodFailed
			}),
			expected: PodInfo{Name: "cc-1", Terminating: true},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			info := NewPodInfo(tc.pod)
			tc.expected.Fingerprint = Fingerprint(tc.pod)
			assert.Equal(t, tc.expected, info)
		})
	}
}
