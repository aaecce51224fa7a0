// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package annotate

import (
	"fmt"

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
		Use:   "annotate NAME approve|stop|refresh",
		Short: "Request a rebalance state change",
		Long: `Request a rebalance state change by setting the strimzi.io/rebalance
annotation on a KafkaRebalance.

The annotation is written once and not retried. With --validate the
current state is checked first and nothing is written if the controller
would ignore the request.`,
		Example: `  # Approve the proposal of my-rebalance
  rbverify annotate my-rebalance approve --validate`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(rebalance.Approve), string(rebalance.Stop), string(rebalance.Refresh)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().BoolVar(&r.validate, "validate", false,
		"Check that the current state accepts the annotation before writing it.")

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

	validate bool
}

func (r *Runner) runE(cmd *cobra.Command, args []string) error {
	annotation, err := rebalance.ParseAnnotation(args[1])
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

	annotator := &rebalance.Annotator{
		Client:               c,
		ValidatePrecondition: r.validate,
	}
	ack, err := annotator.Apply(cmd.Context(), ref, annotation)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.ioStreams.Out, "%s annotated %s=%s\n", ref, rebalance.AnnotationKey, ack)
	return nil
}
