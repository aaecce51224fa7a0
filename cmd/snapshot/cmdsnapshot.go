// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
	"sigs.k8s.io/yaml"
)

func GetRunner(f cmdutil.Factory, o *flagutils.Options, ioStreams genericiooptions.IOStreams) *Runner {
	r := &Runner{
		factory:   f,
		options:   o,
		ioStreams: ioStreams,
	}
	c := &cobra.Command{
		Use:   "snapshot WORKLOAD",
		Short: "Record the pods currently backing a workload",
		Long: `Record the pods currently backing a workload, together with the
fingerprint of the template each pod was created from.

Take the snapshot before changing the workload and pass it to wait-rollout
with --baseline.`,
		Example: `  # Snapshot the Cruise Control deployment before changing its configuration
  rbverify snapshot my-cluster-cruise-control -o baseline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().StringVarP(&r.output, "output", "o", "",
		"File to write the snapshot to. Defaults to stdout.")
	c.Flags().StringVar(&r.kind, flagutils.KindFlag, "Deployment", "Kind of the workload.")

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

	output string
	kind   string
}

func (r *Runner) runE(cmd *cobra.Command, args []string) error {
	gvk, err := flagutils.ParseKind(r.kind)
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
	s, err := detector.Snapshot(cmd.Context(), ref)
	if err != nil {
		return err
	}

	if r.output != "" {
		if err := s.WriteFile(r.output); err != nil {
			return err
		}
		fmt.Fprintf(r.ioStreams.Out, "%s %s: %d pod(s) written to %s\n", gvk.Kind, ref, s.Replicas, r.output)
		return nil
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = r.ioStreams.Out.Write(data)
	return err
}
