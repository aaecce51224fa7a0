// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive
	"github.com/onsi/gomega/format"
	"k8s.io/klog/v2"
	"sigs.k8s.io/rebalance-verifier/test/e2e/e2eutil"
)

// Parse optional logging flags
// Ex: ginkgo ./test/e2e/... -- -v=5
// Allow init for e2e test (not imported by external code)
// nolint:gochecknoinits
func init() {
	klog.InitFlags(nil)
	klog.SetOutput(GinkgoWriter)
}

var defaultTestTimeout = 5 * time.Minute

var env *e2eutil.Env

var _ = BeforeSuite(func() {
	// increase from 4000 to show full conditions on failure
	format.MaxLength = 10000

	env = e2eutil.NewEnv()
})

var _ = AfterSuite(func() {
	env.Stop()
})

var _ = Describe("Verifier", func() {

	Context("CruiseControl", func() {
		var namespace string
		var clusterName string
		var ctx context.Context
		var cancel context.CancelFunc

		BeforeEach(func() {
			ctx, cancel = context.WithTimeout(context.Background(), defaultTestTimeout)
			namespace = e2eutil.RandomNamespace("e2e-test-")
			clusterName = "my-cluster"
		})

		AfterEach(func() {
			Expect(ctx.Err()).To(BeNil(), "test context cancelled or timed out")
			cancel()
		})

		It("RebalanceLifecycle", func() {
			rebalanceLifecycleTest(ctx, env, namespace, clusterName)
		})

		It("TopicExclusion", func() {
			topicExclusionTest(ctx, env, namespace, clusterName)
		})

		It("UnapprovedProposal", func() {
			unapprovedProposalTest(ctx, env, namespace, clusterName)
		})

		It("StopAndRefresh", func() {
			stopAndRefreshTest(ctx, env, namespace, clusterName)
		})

		It("SingleNodeKafka", func() {
			singleNodeKafkaTest(ctx, env, namespace, clusterName)
		})

		It("ReplicaMovementStrategy", func() {
			replicaMovementStrategyTest(ctx, env, namespace, clusterName)
		})

		It("AutoCreatedTopics", func() {
			autoCreatedTopicsTest(ctx, env, namespace, clusterName)
		})

		It("HostAliases", func() {
			hostAliasesTest(ctx, env, namespace, clusterName)
		})

		It("ConcurrentNamespaces", func() {
			concurrentNamespacesTest(ctx, env, clusterName)
		})
	})
})
