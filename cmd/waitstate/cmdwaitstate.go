// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package waitstate

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
	"sigs.k8s.io/rebalance-verifier/pkg/rebalance"
)

func GetRunner(f cmdutil.Factory, o *flagutils.Options, ioStreams genericiooptions.IOStreams) *Runner {
	r := &Runner{
		factory:   f,
		options:   o,
		ioStreams: ioStreams,
	}
	c := &cobra.Command{
		Use:   "wait-state NAME",
		Short: "Wait for a KafkaRebalance to reach a state",
		Long: `Wait for a KafkaRebalance to reach a state.

The state is derived from the most recent status condition of the resource.
Valid states are New, PendingProposal, ProposalReady, Rebalancing, Stopped,
NotReady, Ready and ReconciliationPaused.`,
		Example: `  # Wait up to 15 minutes for the proposal of my-rebalance
  rbverify wait-state my-rebalance --state ProposalReady --timeout 15m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().StringVar(&r.state, "state", string(rebalance.Ready), "The state to wait for.")
	c.Flags().DurationVar(&r.timeout, flagutils.TimeoutFlag, 0,
		"How long to wait. Defaults to the configured state timeout.")

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

	state   string
	timeout time.Duration
}

func (r *Runner) runE(cmd *cobra.Command, args []string) error {
	expected, err := rebalance.ParseState(r.state)
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
	if err := tracker.WaitForState(cmd.Context(), ref, expected, r.timeout); err != nil {
		return err
	}
	fmt.Fprintf(r.ioStreams.Out, "%s %s reached state %s\n", tracker.GVK.Kind, ref, expected)
	return nil
}
