// Copyright 2021 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package flagutils

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/utils/clock"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/rebalance-verifier/pkg/config"
	"sigs.k8s.io/rebalance-verifier/pkg/errors"
	"sigs.k8s.io/rebalance-verifier/pkg/metrics"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
	"sigs.k8s.io/rebalance-verifier/pkg/rebalance"
	"sigs.k8s.io/rebalance-verifier/pkg/rollout"
	"sigs.k8s.io/rebalance-verifier/pkg/util/factory"
)

const (
	PollPeriodFlag  = "poll-period"
	MetricsFileFlag = "metrics-file"
	TimeoutFlag     = "timeout"
	KindFlag        = "kind"

	// CommandName is used in help and error messages.
	CommandName = "rbverify"
)

// ClientFactoryFunc builds the cluster client for a command.
type ClientFactoryFunc func(cmdutil.Factory) (cluster.Client, error)

// Options holds the settings shared by all subcommands.
type Options struct {
	Defaults    config.Defaults
	PollPeriod  time.Duration
	MetricsFile string

	// Collector receives every attempt and wait made by the command.
	Collector *metrics.Collector

	// Clock overrides the real clock. Only tests set it.
	Clock clock.Clock

	ClientFactoryFunc ClientFactoryFunc
}

// NewOptions returns Options that talk to the cluster configured by the
// kube config flags.
func NewOptions(defaults config.Defaults) *Options {
	return &Options{
		Defaults:          defaults,
		PollPeriod:        defaults.PollInterval,
		Collector:         metrics.NewCollector(),
		ClientFactoryFunc: factory.NewClusterClient,
	}
}

// AddFlags registers the shared flags. They are meant for the persistent
// flag set of the root command.
func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.DurationVar(&o.PollPeriod, PollPeriodFlag, o.PollPeriod,
		"Interval between two reads of the awaited resource.")
	flags.StringVar(&o.MetricsFile, MetricsFileFlag, "",
		"If set, poll and wait metrics are written to this file in Prometheus text format.")
}

// Client returns the cluster client for the factory.
func (o *Options) Client(f cmdutil.Factory) (cluster.Client, error) {
	newClient := o.ClientFactoryFunc
	if newClient == nil {
		newClient = factory.NewClusterClient
	}
	return newClient(f)
}

// Poller returns a poller that reports to the collector.
func (o *Options) Poller() *poll.Poller {
	p := poll.NewPoller()
	if o.Clock != nil {
		p.Clock = o.Clock
	}
	if o.Collector != nil {
		p.Observer = o.Collector
	}
	return p
}

func (o *Options) Tracker(c cluster.Client) *rebalance.Tracker {
	t := rebalance.NewTracker(c, o.Poller())
	t.Interval = o.PollPeriod
	t.DefaultTimeout = o.Defaults.StateTimeout
	return t
}

func (o *Options) Detector(c cluster.Client) *rollout.Detector {
	d := rollout.NewDetector(c, o.Poller())
	d.Interval = o.PollPeriod
	d.DefaultTimeout = o.Defaults.RolloutTimeout
	return d
}

// Finish writes the metrics file, if one was requested, and then hands a
// non-nil err to the error printer, which exits the process with the code
// registered for the error type.
func (o *Options) Finish(w io.Writer, err error) error {
	var writeErr error
	if o.MetricsFile != "" && o.Collector != nil {
		writeErr = o.Collector.Write(o.MetricsFile)
		if writeErr != nil {
			klog.Warningf("failed to write metrics to %s: %v", o.MetricsFile, writeErr)
		}
	}
	if err != nil {
		errors.CheckErr(w, err, CommandName)
	}
	return writeErr
}

// Namespace returns the namespace selected by the kube config flags.
func Namespace(f cmdutil.Factory) (string, error) {
	namespace, _, err := f.ToRawKubeConfigLoader().Namespace()
	if err != nil {
		return "", fmt.Errorf("error getting namespace: %w", err)
	}
	return namespace, nil
}

// ParseRef resolves a NAME or NAMESPACE/NAME argument. A bare name is
// looked up in the namespace of the kube config flags.
func ParseRef(f cmdutil.Factory, arg string) (object.ObjRef, error) {
	namespace, err := Namespace(f)
	if err != nil {
		return object.ObjRef{}, err
	}
	return object.ParseObjRef(arg, namespace)
}

var knownKinds = map[string]schema.GroupVersionKind{
	"kafkarebalance": rebalance.KafkaRebalanceGVK,
	"kafka":          rebalance.KafkaGVK,
	"deployment":     rollout.DeploymentGVK,
	"statefulset":    {Group: "apps", Version: "v1", Kind: "StatefulSet"},
}

// ParseKind resolves the value of a --kind flag. Short names of the
// kinds the verifier works with are accepted case-insensitively, other
// kinds must be given as Kind.version.group.
func ParseKind(kind string) (schema.GroupVersionKind, error) {
	if gvk, found := knownKinds[strings.ToLower(strings.TrimSpace(kind))]; found {
		return gvk, nil
	}
	gvk, _ := schema.ParseKindArg(kind)
	if gvk == nil || gvk.Kind == "" || gvk.Version == "" {
		return schema.GroupVersionKind{}, fmt.Errorf(
			"kind %q must be one of KafkaRebalance, Kafka, Deployment, StatefulSet or of the form Kind.version.group", kind)
	}
	return *gvk, nil
}

// FakeClientFactory returns a ClientFactoryFunc that always hands out c.
func FakeClientFactory(c cluster.Client) ClientFactoryFunc {
	return func(cmdutil.Factory) (cluster.Client, error) {
		return c, nil
	}
}
