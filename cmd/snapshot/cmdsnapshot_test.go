// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"path/filepath"
	"testing"

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
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func newRunner(t *testing.T, output, kind string) (*Runner, *fake.Client, func() string) {
	tf := cmdtesting.NewTestFactory().WithNamespace("kafka")
	t.Cleanup(tf.Cleanup)

	c := fake.NewClient()
	c.Set(testutil.Unstructured(t, ccDeployment))
	c.SetPods("kafka", ccPod("my-cluster-cruise-control-abc", "abc"))

	o := flagutils.NewOptions(config.BuiltinDefaults())
	o.ClientFactoryFunc = flagutils.FakeClientFactory(c)

	ioStreams, _, out, _ := genericiooptions.NewTestIOStreams()
	return &Runner{
		factory:   tf,
		options:   o,
		ioStreams: ioStreams,
		output:    output,
		kind:      kind,
	}, c, out.String
}

func execute(r *Runner, args ...string) error {
	cmd := &cobra.Command{
		RunE: r.runE,
	}
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func TestSnapshotToStdout(t *testing.T) {
	r, _, out := newRunner(t, "", "Deployment")

	require.NoError(t, execute(r, "my-cluster-cruise-control"))
	assert.Equal(t, `pods:
  my-cluster-cruise-control-abc: abc
replicas: 1
`, out())
}

func TestSnapshotToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.yaml")
	r, _, out := newRunner(t, path, "deployment")

	require.NoError(t, execute(r, "kafka/my-cluster-cruise-control"))
	assert.Equal(t, "Deployment kafka/my-cluster-cruise-control: 1 pod(s) written to "+path+"\n", out())

	s, err := rollout.ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, rollout.Snapshot{
		Pods:     map[string]string{"my-cluster-cruise-control-abc": "abc"},
		Replicas: 1,
	}, s)
}

func TestSnapshotErrors(t *testing.T) {
	r, _, _ := newRunner(t, "", "Deployment")
	err := execute(r, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing" not found`)

	r, _, _ = newRunner(t, "", "CruiseControl")
	err = execute(r, "my-cluster-cruise-control")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `kind "CruiseControl" must be one of`)
}
