// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package exec

import (
	"context"
	"fmt"
	"io"
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
		Use:   "exec POD [-c CONTAINER] -- COMMAND [args...]",
		Short: "Run a command in a pod and print its output",
		Long: `Run a command in a pod and print its output.

Unlike kubectl exec there is no stdin and no TTY. A command that does not
finish within --timeout is aborted.`,
		Example: `  # Show the configuration Cruise Control was started with
  rbverify exec my-cluster-cruise-control-5b7d -c cruise-control -- cat /tmp/cruisecontrol.properties`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().StringVarP(&r.container, "container", "c", "",
		"Container name. Required if the pod has more than one container.")
	c.Flags().DurationVar(&r.timeout, flagutils.TimeoutFlag, 0,
		"How long the command may run. Defaults to the configured exec timeout.")

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

	container string
	timeout   time.Duration
}

func (r *Runner) runE(cmd *cobra.Command, args []string) error {
	if dash := cmd.ArgsLenAtDash(); dash > 1 {
		return fmt.Errorf("exactly one pod must be given before --, got %d", dash)
	}
	ref, err := flagutils.ParseRef(r.factory, args[0])
	if err != nil {
		return err
	}
	c, err := r.options.Client(r.factory)
	if err != nil {
		return err
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = r.options.Defaults.ExecTimeout
	}
	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stdout, err := c.ExecInPod(ctx, ref, r.container, args[1:]...)
	if err != nil {
		return err
	}
	_, err = io.WriteString(r.ioStreams.Out, stdout)
	return err
}
