// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/genericiooptions"
	"k8s.io/client-go/rest"
	"k8s.io/component-base/cli"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/cmd/annotate"
	"sigs.k8s.io/rebalance-verifier/cmd/exec"
	"sigs.k8s.io/rebalance-verifier/cmd/flagutils"
	"sigs.k8s.io/rebalance-verifier/cmd/query"
	"sigs.k8s.io/rebalance-verifier/cmd/snapshot"
	"sigs.k8s.io/rebalance-verifier/cmd/waitmessage"
	"sigs.k8s.io/rebalance-verifier/cmd/waitrollout"
	"sigs.k8s.io/rebalance-verifier/cmd/waitstate"
	"sigs.k8s.io/rebalance-verifier/pkg/config"
	"sigs.k8s.io/rebalance-verifier/pkg/flowcontrol"
	"sigs.k8s.io/rebalance-verifier/pkg/util/factory"

	// This is here rather than in the libraries because of
	// https://github.com/kubernetes-sigs/kustomize/issues/2060
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

func main() {
	cmd := &cobra.Command{
		Use:   flagutils.CommandName,
		Short: "Verify the behavior of a Kafka rebalance controller",
		Long: `Verify the behavior of a Kafka rebalance controller.

Each subcommand performs one step of a verification scenario: waiting for a
KafkaRebalance state, requesting a transition, or checking that a workload
rolled out after a configuration change. Failed waits exit with code 3 on
timeout and 4 when the resource does not exist. Rejected annotations exit
with code 5.`,
		// We silence error reporting from Cobra here since we want to improve
		// the error messages coming from the commands.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	defaults, err := config.LoadDefaults()
	util.CheckErr(err)
	options := flagutils.NewOptions(defaults)

	// configure kubectl dependencies and flags
	flags := cmd.PersistentFlags()
	kubeConfigFlags := genericclioptions.NewConfigFlags(true).WithDeprecatedPasswordFlag()
	kubeConfigFlags.AddFlags(flags)
	matchVersionKubeConfigFlags := util.NewMatchVersionFlags(kubeConfigFlags)
	matchVersionKubeConfigFlags.AddFlags(flags)
	options.AddFlags(flags)
	flags.AddGoFlagSet(flag.CommandLine)
	f := util.NewFactory(&factory.CachingRESTClientGetter{
		Delegate: matchVersionKubeConfigFlags,
	})

	// Update ConfigFlags before subcommands run that talk to the server.
	preRunE := newConfigFilerPreRunE(kubeConfigFlags)

	ioStreams := genericiooptions.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}

	subCmds := []*cobra.Command{
		waitstate.Command(f, options, ioStreams),
		annotate.Command(f, options, ioStreams),
		waitmessage.Command(f, options, ioStreams),
		snapshot.Command(f, options, ioStreams),
		waitrollout.Command(f, options, ioStreams),
		exec.Command(f, options, ioStreams),
		query.Command(f, options, ioStreams),
	}
	for _, subCmd := range subCmds {
		subCmd.PreRunE = preRunE
		cmd.AddCommand(subCmd)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd.SetContext(ctx)

	code := cli.Run(cmd)
	stop()
	os.Exit(code)
}

// newConfigFilerPreRunE returns a cobra command PreRunE function that
// performs a lookup to determine if server-side throttling is enabled. If so,
// client-side throttling is disabled in the ConfigFlags.
//
// The lookup reads the config from the flags directly. The caching getter
// handed to the subcommands has not resolved a config yet, so it picks up
// the wrapped config on first use.
func newConfigFilerPreRunE(configFlags *genericclioptions.ConfigFlags) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		restConfig, err := configFlags.ToRESTConfig()
		if err != nil {
			return err
		}
		enabled, err := flowcontrol.IsEnabled(ctx, restConfig)
		if err != nil {
			return fmt.Errorf("checking server-side throttling enablement: %w", err)
		}
		if enabled {
			// Disable client-side throttling.
			klog.V(3).Infof("Client-side throttling disabled")
			// WrapConfigFn will affect future Factory.ToRESTConfig() calls.
			configFlags.WrapConfigFn = func(cfg *rest.Config) *rest.Config {
				cfg.QPS = -1
				cfg.Burst = -1
				return cfg
			}
		}
		return nil
	}
}
