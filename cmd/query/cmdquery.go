// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
	"sigs.k8s.io/rebalance-verifier/pkg/jsonpath"
)

func GetRunner(f cmdutil.Factory, o *flagutils.Options, ioStreams genericiooptions.IOStreams) *Runner {
	r := &Runner{
		factory:   f,
		options:   o,
		ioStreams: ioStreams,
	}
	c := &cobra.Command{
		Use:   "query NAME",
		Short: "Print fields of a resource selected by a JSONPath expression",
		Long: `Print fields of a resource selected by a JSONPath expression.

The resource is read once. Every match is printed on its own line, strings
as they are and other values as JSON. Nothing is printed if the expression
does not match.`,
		Example: `  # List the topics excluded from the optimization proposal
  rbverify query my-rebalance --path '$.status.optimizationResult.excludedTopics[*]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Finish(ioStreams.ErrOut, r.runE(cmd, args))
		},
	}
	c.Flags().StringVar(&r.path, "path", "", "JSONPath expression to evaluate.")
	c.Flags().StringVar(&r.kind, flagutils.KindFlag, "KafkaRebalance", "Kind of the resource.")
	_ = c.MarkFlagRequired("path")

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

	path string
	kind string
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

	u, err := c.GetResource(cmd.Context(), gvk, ref)
	if err != nil {
		return err
	}
	values, err := jsonpath.Get(u.Object, r.path)
	if err != nil {
		return err
	}
	for _, v := range values {
		if s, ok := v.(string); ok {
			fmt.Fprintln(r.ioStreams.Out, s)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode query result: %w", err)
		}
		fmt.Fprintln(r.ioStreams.Out, string(data))
	}
	return nil
}
