// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/rebalance-verifier/pkg/jsonpath"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/rebalance"
	"sigs.k8s.io/rebalance-verifier/test/e2e/e2eutil"
)

const replicaMovementStrategy = "com.linkedin.kafka.cruisecontrol.executor.strategy.PrioritizeSmallReplicaMovementStrategy"

// cruiseControlPod returns the single running Cruise Control pod of the
// cluster.
func cruiseControlPod(ctx context.Context, env *e2eutil.Env, kafka object.ObjRef) cluster.PodRef {
	selector := labels.SelectorFromSet(labels.Set{"strimzi.io/name": e2eutil.CruiseControlName(kafka.Name)})
	pods, err := env.Client.ListPods(ctx, kafka.Namespace, selector)
	Expect(err).NotTo(HaveOccurred())

	var running []cluster.PodInfo
	for _, p := range pods {
		if !p.Terminating {
			running = append(running, p)
		}
	}
	Expect(running).To(HaveLen(1), "expected one Cruise Control pod, got %v", pods)
	return e2eutil.Ref(kafka.Namespace, running[0].Name)
}

func execInCruiseControl(ctx context.Context, env *e2eutil.Env, kafka object.ObjRef, command ...string) string {
	pod := cruiseControlPod(ctx, env, kafka)
	execCtx, cancel := env.ExecContext(ctx)
	defer cancel()
	out, err := env.Client.ExecInPod(execCtx, pod, e2eutil.CruiseControlContainer, command...)
	Expect(err).NotTo(HaveOccurred())
	return out
}

// updateCruiseControl changes the Cruise Control spec of the cluster and
// waits until the change is rolled out.
func updateCruiseControl(ctx context.Context, env *e2eutil.Env, kafka object.ObjRef, mutate func(cc map[string]interface{})) {
	depRef := e2eutil.Ref(kafka.Namespace, e2eutil.CruiseControlName(kafka.Name))

	By("Snapshot Cruise Control pods")
	baseline, err := env.Detector.Snapshot(ctx, depRef)
	Expect(err).NotTo(HaveOccurred())
	Expect(baseline.Replicas).To(Equal(1))

	By("Update Cruise Control spec")
	env.Operator.UpdateKafka(kafka, func(u *unstructured.Unstructured) {
		cc, _, err := unstructured.NestedMap(u.Object, "spec", "cruiseControl")
		Expect(err).NotTo(HaveOccurred())
		if cc == nil {
			cc = map[string]interface{}{}
		}
		mutate(cc)
		Expect(unstructured.SetNestedMap(u.Object, cc, "spec", "cruiseControl")).To(Succeed())
	})

	By("Wait for Cruise Control rollout")
	err = env.Detector.WaitForRollout(ctx, depRef, baseline, 1, env.Defaults.RolloutTimeout)
	Expect(err).NotTo(HaveOccurred())

	By("Verify no pod survived the rollout")
	current, err := env.Detector.Snapshot(ctx, depRef)
	Expect(err).NotTo(HaveOccurred())
	for name := range baseline.Pods {
		Expect(current.Pods).NotTo(HaveKey(name))
	}
}

func replicaMovementStrategyTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	kafka := createCluster(env, namespace, clusterName, 3)

	By("Verify default Cruise Control configuration")
	config := execInCruiseControl(ctx, env, kafka, "cat", e2eutil.CruiseControlConfigFile)
	Expect(config).To(ContainSubstring("webserver.http.port=9090"))
	Expect(config).NotTo(ContainSubstring("default.replica.movement.strategies"))

	updateCruiseControl(ctx, env, kafka, func(cc map[string]interface{}) {
		cc["config"] = map[string]interface{}{
			"default.replica.movement.strategies": replicaMovementStrategy,
		}
	})

	By("Verify new Cruise Control configuration")
	config = execInCruiseControl(ctx, env, kafka, "cat", e2eutil.CruiseControlConfigFile)
	Expect(config).To(ContainSubstring("default.replica.movement.strategies=" + replicaMovementStrategy))
}

func hostAliasesTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	kafka := createCluster(env, namespace, clusterName, 3)

	updateCruiseControl(ctx, env, kafka, func(cc map[string]interface{}) {
		cc["template"] = map[string]interface{}{
			"pod": map[string]interface{}{
				"hostAliases": []interface{}{
					map[string]interface{}{
						"ip":        "34.89.152.196",
						"hostnames": []interface{}{"strimzi", "myproduct"},
					},
				},
			},
		}
	})

	By("Verify host aliases in the Cruise Control pod")
	hosts := execInCruiseControl(ctx, env, kafka, "cat", e2eutil.HostsFile)
	Expect(hosts).To(ContainSubstring("# Entries added by HostAliases.\n34.89.152.196\tstrimzi\tmyproduct"))
}

func singleNodeKafkaTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create single-node Kafka cluster with Cruise Control")
	kafka := createCluster(env, namespace, clusterName, 1)
	message := e2eutil.SingleNodeMessage(kafka)

	By("Wait for the invalid configuration to be reported")
	err := env.Tracker.WaitForConditionMessage(ctx, rebalance.KafkaGVK, kafka, message, env.Defaults.StateTimeout)
	Expect(err).NotTo(HaveOccurred())

	By("Scale Kafka to three nodes")
	env.Operator.UpdateKafka(kafka, func(u *unstructured.Unstructured) {
		Expect(unstructured.SetNestedField(u.Object, int64(3), "spec", "kafka", "replicas")).To(Succeed())
	})

	By("Verify the invalid configuration is no longer reported")
	found, err := env.Tracker.HasConditionMessage(ctx, rebalance.KafkaGVK, kafka, message)
	Expect(err).NotTo(HaveOccurred())
	Expect(found).To(BeFalse())

	By("Verify Cruise Control is deployed")
	Expect(execInCruiseControl(ctx, env, kafka, "cat", e2eutil.CruiseControlConfigFile)).
		To(ContainSubstring("bootstrap.servers=" + clusterName + "-kafka-bootstrap:9091"))
}

func autoCreatedTopicsTest(ctx context.Context, env *e2eutil.Env, namespace, clusterName string) {
	By("Create Kafka cluster with Cruise Control")
	createCluster(env, namespace, clusterName, 3)

	for _, tc := range []struct {
		topic      string
		partitions int
		replicas   int
	}{
		{topic: e2eutil.MetricsTopic, partitions: 1, replicas: 1},
		{topic: e2eutil.ModelTrainingSamplesTopic, partitions: 32, replicas: 2},
		{topic: e2eutil.PartitionMetricSamplesTopic, partitions: 32, replicas: 2},
	} {
		By(fmt.Sprintf("Verify partitions and replicas of %s", tc.topic))
		u, err := env.Client.GetResource(ctx, e2eutil.KafkaTopicGVK, e2eutil.Ref(namespace, tc.topic))
		Expect(err).NotTo(HaveOccurred())

		partitions, err := jsonpath.Get(u.Object, "$.spec.partitions")
		Expect(err).NotTo(HaveOccurred())
		Expect(partitions).To(ConsistOf(BeNumerically("==", tc.partitions)))

		replicas, err := jsonpath.Get(u.Object, "$.spec.replicas")
		Expect(err).NotTo(HaveOccurred())
		Expect(replicas).To(ConsistOf(BeNumerically("==", tc.replicas)))
	}
}
