// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package waitrollout

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	cmdtesting "k8s.io/kubectl/pkg/cmd/testing"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster/fake"
	"sigs.k8s.io/rebalance-verifier/pkg/config"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
	"sigs.k8s.io/rebalance-verifier/pkg/rollout"
	"sigs.k8s.io/rebalance-verifier/pkg/testutil"
)

var ccDeployment = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: my-cluster-cruise-control
  namespace: kafka
spec:
  replicas: 1
  selector:
    matchLabels:
      strimzi.io/name: my-cluster-cruise-control
`

func ccPod(name, templateHash string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				"strimzi.io/name":   "my-cluster-cruise-control",
				"pod-template-hash": templateHash,
			},
		},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
}

func TestWaitRollout(t *testing.T) {
	baseline := rollout.Snapshot{
		Pods:     map[string]string{"my-cluster-cruise-control-abc": "abc"},
		Replicas: 1,
	}

	testCases := map[string]struct {
		pods           []*corev1.Pod
		replicas       int
		expectedOutput string
		expectedErrMsg string
		expectTimeout  bool
	}{
		"rotated": {
			pods:           []*corev1.Pod{ccPod("my-cluster-cruise-control-def", "def")},
			replicas:       1,
			expectedOutput: "Deployment kafka/my-cluster-cruise-control rolled out 1 replica(s)\n",
		},
		"not rotated": {
			pods:          []*corev1.Pod{ccPod("my-cluster-cruise-control-abc", "abc")},
			replicas:      1,
			expectTimeout: true,
		},
		"old and new pods together": {
			pods: []*corev1.Pod{
				ccPod("my-cluster-cruise-control-abc", "abc"),
				ccPod("my-cluster-cruise-control-def", "def"),
			},
			replicas:      1,
			expectTimeout: true,
		},
		"invalid replicas": {
			replicas:       0,
			expectedErrMsg: "--replicas must be at least 1, got 0",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			tf := cmdtesting.NewTestFactory().WithNamespace("kafka")
			defer tf.Cleanup()

			path := filepath.Join(t.TempDir(), "baseline.yaml")
			require.NoError(t, baseline.WriteFile(path))

			c := fake.NewClient()
			c.Set(testutil.Unstructured(t, ccDeployment))
			c.SetPods("kafka", tc.pods...)

			fc := testutil.NewFakeClock()
			defer testutil.StepClock(fc, time.Second)()

			o := flagutils.NewOptions(config.BuiltinDefaults())
			o.PollPeriod = time.Second
			o.Clock = fc
			o.ClientFactoryFunc = flagutils.FakeClientFactory(c)

			ioStreams, _, out, _ := genericiooptions.NewTestIOStreams()
			runner := &Runner{
				factory:   tf,
				options:   o,
				ioStreams: ioStreams,
				baseline:  path,
				replicas:  tc.replicas,
				timeout:   5 * time.Second,
				kind:      "Deployment",
			}

			cmd := &cobra.Command{
				RunE: runner.runE,
			}
			cmd.SetArgs([]string{"my-cluster-cruise-control"})
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true

			err := cmd.Execute()

			switch {
			case tc.expectTimeout:
				te, ok := poll.IsTimeoutError(err)
				require.True(t, ok, "expected TimeoutError, got %v", err)
				assert.Equal(t, "Deployment kafka/my-cluster-cruise-control to roll out 1 replica(s)", te.Description)
			case tc.expectedErrMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.expectedOutput, out.String())
			}
		})
	}
}
