// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive
	"sigs.k8s.io/rebalance-verifier/pkg/jsonpath"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/poll"
	"sigs.k8s.io/rebalance-verifier/pkg/rebalance"
	"sigs.k8s.io/rebalance-verifier/pkg/testutil"
	"sigs.k8s.io/rebalance-verifier/test/e2e/e2eutil"
)

func createCluster(env *e2eutil.Env, namespace, clusterName string, replicas int) object.ObjRef {
	env.Operator.CreateKafka(e2eutil.TemplateToUnstructured(kafkaTemplate, manifestFields{
		Name:      clusterName,
		Namespace: namespace,
		Replicas:  replicas,
	}))
	return e2eutil.Ref(namespace, clusterName)
}

func createRebalance(env *e2eutil.Env, namespace, clusterName, name, excludedTopics string) object.ObjRef {
	env.Operator.CreateRebalance(e2eutil.TemplateToUnstructured(rebalanceTemplate, manifestFields{
		Name:           name,
		Namespace:      namespace,
		Cluster:        clusterName,
		ExcludedTopics: excludedTopics,
	}))
	return e2eutil.Ref(namespace, name)
}

func approve(ctx context.Context, env *e2eutil.Env, ref object.ObjRef) {
	value, err := env.Annotator.Apply(ctx, ref, rebalance.Approve)
	Expect(err).NotTo(HaveOccurred())
	Expect(value).To(Equal(string(rebalance.Approve)))
}

func rebalanceLifecycleTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	createCluster(env, namespace, clusterName, 3)

	By("Create KafkaRebalance")
	ref := createRebalance(env, namespace, clusterName, "my-rebalance", "")

	By("Wait for PendingProposal")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.PendingProposal, env.Defaults.StateTimeout)

	By("Wait for ProposalReady")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.ProposalReady, env.Defaults.StateTimeout)

	By("Verify optimization result")
	u, err := env.Client.GetResource(ctx, rebalance.KafkaRebalanceGVK, ref)
	Expect(err).NotTo(HaveOccurred())
	moves, err := jsonpath.Get(u.Object, "$.status.optimizationResult.numReplicaMovements")
	Expect(err).NotTo(HaveOccurred())
	Expect(moves).To(HaveLen(1))
	Expect(moves[0]).To(BeNumerically(">", 0))

	By("Approve proposal")
	approve(ctx, env, ref)

	By("Wait for Rebalancing")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.Rebalancing, env.Defaults.StateTimeout)

	By("Wait for Ready")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.Ready, env.Defaults.StateTimeout)

	By("Verify the annotation was consumed")
	u, err = env.Client.GetResource(ctx, rebalance.KafkaRebalanceGVK, ref)
	Expect(err).NotTo(HaveOccurred())
	Expect(u.GetAnnotations()).NotTo(HaveKey(rebalance.AnnotationKey))
}

func topicExclusionTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	createCluster(env, namespace, clusterName, 3)

	By("Create topics")
	for _, topic := range []string{"excluded-topic-1", "excluded-topic-2", "included-topic"} {
		env.Operator.CreateTopic(namespace, topic)
	}

	By("Create KafkaRebalance excluding topics")
	ref := createRebalance(env, namespace, clusterName, "my-rebalance", "excluded-.*")

	By("Wait for ProposalReady")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.ProposalReady, env.Defaults.StateTimeout)

	By("Verify excluded topics in the optimization result")
	u, err := env.Client.GetResource(ctx, rebalance.KafkaRebalanceGVK, ref)
	Expect(err).NotTo(HaveOccurred())
	excluded, err := jsonpath.GetStrings(u.Object, "$.status.optimizationResult.excludedTopics")
	Expect(err).NotTo(HaveOccurred())
	Expect(excluded).To(Equal([]string{"excluded-topic-1", "excluded-topic-2"}))

	By("Approve proposal")
	approve(ctx, env, ref)

	By("Wait for Ready")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.Ready, env.Defaults.StateTimeout)
}

func stopAndRefreshTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	createCluster(env, namespace, clusterName, 3)

	By("Create KafkaRebalance")
	ref := createRebalance(env, namespace, clusterName, "my-rebalance", "")

	By("Wait for ProposalReady")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.ProposalReady, env.Defaults.StateTimeout)

	strict := &rebalance.Annotator{Client: env.Client, ValidatePrecondition: true}

	By("Approve with precondition validation")
	_, err := strict.Apply(ctx, ref, rebalance.Approve)
	Expect(err).NotTo(HaveOccurred())
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.Ready, env.Defaults.StateTimeout)

	By("Reject stop once the rebalance is Ready")
	patches := len(env.Client.Patches())
	_, err = strict.Apply(ctx, ref, rebalance.Stop)
	pe, ok := rebalance.IsPreconditionError(err)
	Expect(ok).To(BeTrue(), "expected PreconditionError, got %v", err)
	Expect(pe.State).To(Equal(rebalance.Ready))
	Expect(env.Client.Patches()).To(HaveLen(patches))

	By("Refresh the proposal")
	_, err = strict.Apply(ctx, ref, rebalance.Refresh)
	Expect(err).NotTo(HaveOccurred())
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.ProposalReady, env.Defaults.StateTimeout)

	By("Stop the rebalance")
	_, err = strict.Apply(ctx, ref, rebalance.Stop)
	Expect(err).NotTo(HaveOccurred())
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.Stopped, env.Defaults.StateTimeout)

	By("Approve is rejected once stopped")
	_, err = strict.Apply(ctx, ref, rebalance.Approve)
	pe, ok = rebalance.IsPreconditionError(err)
	Expect(ok).To(BeTrue(), "expected PreconditionError, got %v", err)
	Expect(pe.State).To(Equal(rebalance.Stopped))
}

type waitResult struct {
	State rebalance.State
	Err   error
}

func unapprovedProposalTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	createCluster(env, namespace, clusterName, 3)

	By("Create KafkaRebalance")
	ref := createRebalance(env, namespace, clusterName, "my-rebalance", "")

	By("Wait for ProposalReady")
	e2eutil.AssertStateWithin(ctx, env, ref, rebalance.ProposalReady, env.Defaults.StateTimeout)

	By("Waiting for Ready without approval times out")
	err := env.Tracker.WaitForState(ctx, ref, rebalance.Ready, 3*env.Defaults.PollInterval)
	state, stateErr := env.Tracker.State(ctx, ref)
	Expect(stateErr).NotTo(HaveOccurred())
	Expect(waitResult{State: state, Err: err}).To(testutil.Equal(waitResult{
		State: rebalance.ProposalReady,
		Err:   testutil.EqualErrorType(&poll.TimeoutError{}),
	}))

	te, _ := poll.IsTimeoutError(err)
	Expect(te.Attempts).To(Equal(3))
}

func concurrentNamespacesTest(ctx context.Context, env *e2eutil.Env, clusterName string) {
	const parallelism = 3

	By(fmt.Sprintf("Run %d rebalances in separate namespaces", parallelism))
	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		namespace := e2eutil.RandomNamespace(fmt.Sprintf("e2e-concurrent-%d-", i))
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()

			createCluster(env, namespace, clusterName, 3)
			ref := createRebalance(env, namespace, clusterName, "my-rebalance", "")
			e2eutil.AssertStateWithin(ctx, env, ref, rebalance.ProposalReady, env.Defaults.StateTimeout)
			approve(ctx, env, ref)
			e2eutil.AssertStateWithin(ctx, env, ref, rebalance.Ready, env.Defaults.StateTimeout)
		}()
	}
	wg.Wait()
}
