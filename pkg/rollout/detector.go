// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package rollout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
)

// DeploymentGVK is the workload kind used by default.
var DeploymentGVK = appsv1.SchemeGroupVersion.WithKind("Deployment")

// DefaultRolloutTimeout is used when WaitForRollout is called without a
// positive timeout and the Detector has no DefaultTimeout.
const DefaultRolloutTimeout = 5 * time.Minute

// Detector tells whether a workload has replaced all of its pods after
// a configuration change.
type Detector struct {
	Client cluster.Client
	Poller *poll.Poller

	// WorkloadGVK is the kind of workload. Any kind with spec.selector
	// works. Defaults to DeploymentGVK.
	WorkloadGVK schema.GroupVersionKind

	Interval       time.Duration
	DefaultTimeout time.Duration
}

// NewDetector returns a Detector for Deployments.
func NewDetector(c cluster.Client, p *poll.Poller) *Detector {
	return &Detector{
		Client:      c,
		Poller:      p,
		WorkloadGVK: DeploymentGVK,
	}
}

// Snapshot records the pods currently backing the workload.
func (d *Detector) Snapshot(ctx context.Context, ref object.ObjRef) (Snapshot, error) {
	pods, err := d.listPods(ctx, ref)
	if err != nil {
		return Snapshot{}, err
	}
	s := NewSnapshot(pods)
	klog.V(2).Infof("%s %s: snapshot of %d pod(s)", d.gvk().Kind, ref, s.Replicas)
	return s, nil
}

// Progress is the rollout status observed by one poll.
type Progress struct {
	// Expected is the number of replicas the rollout should end with.
	Expected int
	// Ready counts ready pods that are not terminating.
	Ready int
	// Stale lists non-terminating pods whose fingerprint is in the
	// baseline.
	Stale []string
	// Current is the snapshot of this observation.
	Current Snapshot
}

// Complete reports whether no pod from the old template is left and the
// expected number of pods is ready.
func (p Progress) Complete() bool {
	return len(p.Stale) == 0 && p.Ready == p.Expected
}

func (p Progress) String() string {
	if len(p.Stale) == 0 {
		return fmt.Sprintf("%d/%d ready, no stale pods", p.Ready, p.Expected)
	}
	return fmt.Sprintf("%d/%d ready, stale pods: %s", p.Ready, p.Expected, strings.Join(p.Stale, ", "))
}

// Evaluate compares the observed pods with the baseline.
func Evaluate(pods []cluster.PodInfo, baseline Snapshot, expectedReplicas int) Progress {
	old := baseline.Fingerprints()
	p := Progress{
		Expected: expectedReplicas,
		Current:  NewSnapshot(pods),
	}
	for _, pod := range pods {
		if pod.Terminating {
			continue
		}
		if old.Has(pod.Fingerprint) {
			p.Stale = append(p.Stale, pod.Name)
		}
		if pod.Ready {
			p.Ready++
		}
	}
	sort.Strings(p.Stale)
	return p
}

// WaitForRollout blocks until every pod of the workload was created
// from a template not present in baseline and expectedReplicas of them
// are ready. Pods of the old and new template coexisting is not enough.
// It returns a *poll.NotFoundError if the workload disappears and a
// *poll.TimeoutError if the rollout does not complete in time.
func (d *Detector) WaitForRollout(ctx context.Context, ref object.ObjRef, baseline Snapshot, expectedReplicas int, timeout time.Duration) error {
	var last *Progress
	err := d.poller().Poll(ctx, poll.Spec{
		Timeout:     d.timeout(timeout),
		Interval:    d.Interval,
		Description: fmt.Sprintf("%s %s to roll out %d replica(s)", d.gvk().Kind, ref, expectedReplicas),
		Condition: func(ctx context.Context) (bool, error) {
			pods, err := d.listPods(ctx, ref)
			if err != nil {
				return false, err
			}
			progress := Evaluate(pods, baseline, expectedReplicas)
			last = &progress
			klog.V(4).Infof("%s %s: %s", d.gvk().Kind, ref, progress)
			return progress.Complete(), nil
		},
	})
	if _, ok := poll.IsTimeoutError(err); ok && last != nil {
		klog.V(2).Infof("%s %s: rollout incomplete (%s), pods changed since baseline (-baseline +current):\n%s",
			d.gvk().Kind, ref, last, Diff(baseline, last.Current))
	}
	return err
}

// listPods reads the workload and lists the pods its selector matches.
// The workload is read every time so that its deletion is noticed.
func (d *Detector) listPods(ctx context.Context, ref object.ObjRef) ([]cluster.PodInfo, error) {
	u, err := d.Client.GetResource(ctx, d.gvk(), ref)
	if err != nil {
		return nil, err
	}
	selector, err := Selector(u)
	if err != nil {
		return nil, err
	}
	return d.Client.ListPods(ctx, ref.Namespace, selector)
}

// Selector returns the pod selector of a workload from spec.selector.
func Selector(u *unstructured.Unstructured) (labels.Selector, error) {
	selector, found, err := unstructured.NestedMap(u.Object, "spec", "selector")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no selector found for %s %s/%s", u.GetKind(), u.GetNamespace(), u.GetName())
	}
	var s metav1.LabelSelector
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(selector, &s); err != nil {
		return nil, fmt.Errorf("invalid selector for %s %s/%s: %w", u.GetKind(), u.GetNamespace(), u.GetName(), err)
	}
	return metav1.LabelSelectorAsSelector(&s)
}

func (d *Detector) gvk() schema.GroupVersionKind {
	if d.WorkloadGVK.Empty() {
		return DeploymentGVK
	}
	return d.WorkloadGVK
}

func (d *Detector) poller() *poll.Poller {
	if d.Poller == nil {
		return poll.NewPoller()
	}
	return d.Poller
}

func (d *Detector) timeout(timeout time.Duration) time.Duration {
	switch {
	case timeout > 0:
		return timeout
	case d.DefaultTimeout > 0:
		return d.DefaultTimeout
	default:
		return DefaultRolloutTimeout
	}
}
