// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package waitrollout

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
	"sigs.k8s.io/rebalance-verifier/pkg/rollout"
)

func GetRunner(f cmdutil.Factory, o *flagutils.Options, ioStreams genericiooptions.IOStreams) *Runner {
	r := &Runner{
		factory:   f,
		options:   o,
		ioStreams: ioStreams,
	}
	c := &cobra.Command{
		Use:   "wait-rollout WORKLOAD",
		Short: "Wait for a workload to replace all pods recorded in a snapshot",
		Long: `Wait for a workload to replace all pods recorded in a snapshot.

The rollout is complete when no running pod carries a fingerprint from the
baseline snapshot and the expected number of new pods are ready.`,
		Example: `  # Wait for the Cruise Control deployment to pick up a configuration change
  rbverify wait-rollout my-cluster-cruise-control --baseline baseline.yaml --replicas 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().StringVar(&r.baseline, "baseline", "",
		"Snapshot file written by the snapshot command before the change.")
	c.Flags().IntVar(&r.replicas, "replicas", 1, "Number of ready pods expected after the rollout.")
	c.Flags().DurationVar(&r.timeout, flagutils.TimeoutFlag, 0,
		"How long to wait. Defaults to the configured rollout timeout.")
	c.Flags().StringVar(&r.kind, flagutils.KindFlag, "Deployment", "Kind of the workload.")
	_ = c.MarkFlagRequired("baseline")

	r.command = c
	return r
}

func Command(f cmdutil.Factory, o *flagutils.Options, ioStreams genericiooptions.IOStreams) *cobra.Command {
	return GetRunner(f, o, ioStreams).command
}

// Runner captures the parameters for the command and contains
// the run function.
type Runner struct {
	command   *cobra.Command
	factory   cmdutil.Factory
	options   *flagutils.Options
	ioStreams genericiooptions.IOStreams

	baseline string
	replicas int
	timeout  time.Duration
	kind     string
}

func (r *Runner) runE(cmd *cobra.Command, args []string) error {
	if r.replicas < 1 {
		return fmt.Errorf("--replicas must be at least 1, got %d", r.replicas)
	}
	gvk, err := flagutils.ParseKind(r.kind)
	if err != nil {
		return err
	}
	baseline, err := rollout.ReadSnapshotFile(r.baseline)
	if err != nil {
		return err
	}
	ref, err := flagutils.ParseRef(r.factory, args[0])
	if err != nil {
		return err
	}
	c, err := r.options.Client(r.factory)
	if err != nil {
		return err
	}

	detector := r.options.Detector(c)
	detector.WorkloadGVK = gvk
	if err := detector.WaitForRollout(cmd.Context(), ref, baseline, r.replicas, r.timeout); err != nil {
		return err
	}
	fmt.Fprintf(r.ioStreams.Out, "%s %s rolled out %d replica(s)\n", gvk.Kind, ref, r.replicas)
	return nil
}
