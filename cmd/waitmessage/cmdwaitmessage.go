// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package waitmessage

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
)

func GetRunner(f cmdutil.Factory, o *flagutils.Options, ioStreams genericiooptions.IOStreams) *Runner {
	r := &Runner{
		factory:   f,
		options:   o,
		ioStreams: ioStreams,
	}
	c := &cobra.Command{
		Use:   "wait-message NAME",
		Short: "Wait for a status condition message to appear",
		Long: `Wait for a status condition of a resource to report a message that
contains the given text. Useful to check that an invalid configuration is
rejected by the operator.`,
		Example: `  # Wait for the operator to reject an invalid Cruise Control goal
  rbverify wait-message my-cluster --kind Kafka --contains "is not a valid goal"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().StringVar(&r.contains, "contains", "", "Text the condition message must contain.")
	c.Flags().StringVar(&r.kind, flagutils.KindFlag, "Kafka", "Kind of the resource.")
	c.Flags().DurationVar(&r.timeout, flagutils.TimeoutFlag, 0,
		"How long to wait. Defaults to the configured state timeout.")
	_ = c.MarkFlagRequired("contains")

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

	contains string
	kind     string
	timeout  time.Duration
}

func (r *Runner) runE(cmd *cobra.Command, args []string) error {
	if r.contains == "" {
		return fmt.Errorf("--contains must not be empty")
	}
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

	tracker := r.options.Tracker(c)
	if err := tracker.WaitForConditionMessage(cmd.Context(), gvk, ref, r.contains, r.timeout); err != nil {
		return err
	}
	fmt.Fprintf(r.ioStreams.Out, "%s %s reported %q\n", gvk.Kind, ref, r.contains)
	return nil
}
