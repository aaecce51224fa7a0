// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package e2eutil

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"
	testingclock "k8s.io/utils/clock/testing"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster/fake"
	"sigs.k8s.io/rebalance-verifier/pkg/config"
	"sigs.k8s.io/rebalance-verifier/pkg/metrics"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
	"sigs.k8s.io/rebalance-verifier/pkg/rebalance"
	"sigs.k8s.io/rebalance-verifier/pkg/rollout"
	"sigs.k8s.io/rebalance-verifier/pkg/testutil"
)

// Env bundles the verification engine and the simulated cluster one
// suite runs against. All of its parts are safe for concurrent use, so
// scenarios in different namespaces can share one Env.
type Env struct {
	Client    *fake.Client
	Operator  *Operator
	Clock     *testingclock.FakeClock
	Collector *metrics.Collector
	Tracker   *rebalance.Tracker
	Detector  *rollout.Detector
	Annotator *rebalance.Annotator
	Defaults  config.Defaults
	stopClock func()
}

// NewEnv builds an Env. Budgets come from config.LoadDefaults, so they
// can be tuned through a .env file, while time itself is simulated.
func NewEnv() *Env {
	defaults, err := config.LoadDefaults()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	c := fake.NewClient()
	fc := testutil.NewFakeClock()
	collector := metrics.NewCollector()
	p := &poll.Poller{Clock: fc, Observer: collector}

	tracker := rebalance.NewTracker(c, p)
	tracker.Interval = defaults.PollInterval
	tracker.DefaultTimeout = defaults.StateTimeout

	detector := rollout.NewDetector(c, p)
	detector.Interval = defaults.PollInterval
	detector.DefaultTimeout = defaults.RolloutTimeout

	return &Env{
		Client:    c,
		Operator:  NewOperator(c),
		Clock:     fc,
		Collector: collector,
		Tracker:   tracker,
		Detector:  detector,
		Annotator: &rebalance.Annotator{Client: c},
		Defaults:  defaults,
		stopClock: testutil.StepClock(fc, defaults.PollInterval),
	}
}

// Stop releases the simulated clock.
func (e *Env) Stop() {
	e.stopClock()
}

// ExecContext returns a context bounded by the exec timeout.
func (e *Env) ExecContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.Defaults.ExecTimeout)
}

// RandomNamespace returns a namespace name that is unique per call, so
// concurrent scenarios never touch each other's resources.
func RandomNamespace(prefix string) string {
	return fmt.Sprintf("%s%s", prefix, strings.Split(uuid.New().String(), "-")[0])
}

func WithNamespace(obj *unstructured.Unstructured, namespace string) *unstructured.Unstructured {
	obj.SetNamespace(namespace)
	return obj
}

// Ref returns the reference of a named object in the namespace.
func Ref(namespace, name string) object.ObjRef {
	ref, err := object.CreateObjRef(namespace, name)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return ref
}

func ManifestToUnstructured(manifest []byte) *unstructured.Unstructured {
	u := make(map[string]interface{})
	err := yaml.Unmarshal(manifest, &u)
	if err != nil {
		panic(fmt.Errorf("failed to parse manifest yaml: %w", err))
	}
	return &unstructured.Unstructured{
		Object: u,
	}
}

func TemplateToUnstructured(tmpl string, data interface{}) *unstructured.Unstructured {
	t, err := template.New("manifest").Parse(tmpl)
	if err != nil {
		panic(fmt.Errorf("failed to parse manifest go-template: %w", err))
	}
	var buffer bytes.Buffer
	err = t.Execute(&buffer, data)
	if err != nil {
		panic(fmt.Errorf("failed to execute manifest go-template: %w", err))
	}
	return ManifestToUnstructured(buffer.Bytes())
}

// AssertStateWithin waits for the rebalance to reach state and fails the
// spec otherwise.
func AssertStateWithin(ctx context.Context, e *Env, ref object.ObjRef, state rebalance.State, timeout time.Duration) {
	err := e.Tracker.WaitForState(ctx, ref, state, timeout)
	gomega.Expect(err).NotTo(gomega.HaveOccurred(), "waiting for %s to reach %s", ref, state)
}
