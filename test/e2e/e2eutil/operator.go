// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package e2eutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/klog/v2"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster/fake"
	"sigs.k8s.io/rebalance-verifier/pkg/object"
	"sigs.k8s.io/rebalance-verifier/pkg/rebalance"
	"sigs.k8s.io/rebalance-verifier/pkg/rollout"
	"sigs.k8s.io/rebalance-verifier/pkg/testutil"
)

const (
	CruiseControlContainer  = "cruise-control"
	CruiseControlConfigFile = "/tmp/cruisecontrol.properties"
	HostsFile               = "/etc/hosts"

	MetricsTopic                = "strimzi.cruisecontrol.metrics"
	ModelTrainingSamplesTopic   = "strimzi.cruisecontrol.modeltrainingsamples"
	PartitionMetricSamplesTopic = "strimzi.cruisecontrol.partitionmetricsamples"

	invalidResourceReason = "InvalidResourceException"
	templateHashLabel     = "pod-template-hash"
	nameLabel             = "strimzi.io/name"
)

// KafkaTopicGVK is the kind of the topics the operator creates for
// Cruise Control.
var KafkaTopicGVK = schema.GroupVersionKind{
	Group:   "kafka.strimzi.io",
	Version: "v1beta2",
	Kind:    "KafkaTopic",
}

// cruiseControlTopics lists the topics created with Cruise Control and
// their partitions and replicas.
var cruiseControlTopics = []struct {
	name       string
	partitions int64
	replicas   int64
}{
	{name: MetricsTopic, partitions: 1, replicas: 1},
	{name: ModelTrainingSamplesTopic, partitions: 32, replicas: 2},
	{name: PartitionMetricSamplesTopic, partitions: 32, replicas: 2},
}

// SingleNodeMessage is the condition message the operator reports for a
// Kafka cluster that is too small for Cruise Control.
func SingleNodeMessage(ref object.ObjRef) string {
	return fmt.Sprintf("Kafka %s has invalid configuration. Cruise Control cannot be deployed "+
		"with a single-node Kafka cluster. It requires at least two Kafka nodes.", ref)
}

// CruiseControlName returns the name of the Cruise Control deployment of
// a Kafka cluster.
func CruiseControlName(cluster string) string {
	return cluster + "-cruise-control"
}

// Operator simulates the cluster operator and the Deployment controller
// on top of a fake.Client.
//
// Rebalances advance one step per read, the way the real operator
// advances them on reconciliation. Kafka resources are reconciled when
// they are written through CreateKafka or UpdateKafka; the first valid
// reconcile also creates the Cruise Control topics. Cruise Control
// rollouts advance one step per read of the Deployment: start a new pod,
// mark it ready, terminate the old pod, remove it.
type Operator struct {
	client *fake.Client

	// ProposalReads is how many reads a rebalance stays in PendingProposal.
	ProposalReads int
	// RebalanceReads is how many reads a rebalance stays in Rebalancing.
	RebalanceReads int

	mu         sync.Mutex
	now        time.Time
	podSeq     int
	rebalances map[object.ObjRef]int
	topics     map[string][]string
	rollouts   map[object.ObjRef]*ccRollout
	pods       map[string]map[string]*corev1.Pod
}

type ccRollout struct {
	replicas int
	target   string
	config   map[string]interface{}
	aliases  []corev1.HostAlias
}

// NewOperator returns an Operator that handles every read and patch of c.
func NewOperator(c *fake.Client) *Operator {
	o := &Operator{
		client:         c,
		ProposalReads:  3,
		RebalanceReads: 3,
		now:            time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		rebalances:     make(map[object.ObjRef]int),
		topics:         make(map[string][]string),
		rollouts:       make(map[object.ObjRef]*ccRollout),
		pods:           make(map[string]map[string]*corev1.Pod),
	}
	c.OnGet = o.onGet
	c.OnPatch = o.onPatch
	return o
}

// CreateTopic registers a topic of the Kafka cluster in namespace.
func (o *Operator) CreateTopic(namespace, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.topics[namespace] = append(o.topics[namespace], name)
}

// CreateRebalance stores a new rebalance. It has no status until the
// operator first sees it.
func (o *Operator) CreateRebalance(u *unstructured.Unstructured) {
	o.client.Set(u)
}

// CreateKafka stores a Kafka resource and reconciles it.
func (o *Operator) CreateKafka(u *unstructured.Unstructured) {
	o.client.Set(u)
	o.reconcileKafka(object.RefFromUnstructured(u))
}

// UpdateKafka changes a Kafka resource and reconciles it.
func (o *Operator) UpdateKafka(ref object.ObjRef, mutate func(u *unstructured.Unstructured)) {
	err := o.client.Update(rebalance.KafkaGVK, ref, mutate)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	o.reconcileKafka(ref)
}

func (o *Operator) onGet(gvk schema.GroupVersionKind, ref object.ObjRef, _ int) {
	switch gvk.GroupKind() {
	case rebalance.KafkaRebalanceGVK.GroupKind():
		o.reconcileRebalance(ref)
	case rollout.DeploymentGVK.GroupKind():
		o.stepRollout(ref)
	}
}

func (o *Operator) onPatch(p fake.Patch) {
	if p.GVK.GroupKind() != rebalance.KafkaRebalanceGVK.GroupKind() || p.Key != rebalance.AnnotationKey {
		return
	}
	annotation, err := rebalance.ParseAnnotation(p.Value)
	if err != nil {
		klog.Warningf("operator: ignoring %s=%s on %s", p.Key, p.Value, p.Ref)
		return
	}
	next := map[rebalance.Annotation]rebalance.State{
		rebalance.Approve: rebalance.Rebalancing,
		rebalance.Stop:    rebalance.Stopped,
		rebalance.Refresh: rebalance.PendingProposal,
	}[annotation]

	o.mu.Lock()
	defer o.mu.Unlock()
	o.update(rebalance.KafkaRebalanceGVK, p.Ref, func(u *unstructured.Unstructured) {
		state, err := rebalance.DeriveStateFromUnstructured(u)
		if err != nil || !annotation.CompatibleWith(state) {
			// The annotation is left in place and has no effect.
			return
		}
		annotations := u.GetAnnotations()
		delete(annotations, rebalance.AnnotationKey)
		u.SetAnnotations(annotations)
		o.setState(u, next, "")
		o.rebalances[p.Ref] = 0
	})
}

func (o *Operator) reconcileRebalance(ref object.ObjRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	found := o.update(rebalance.KafkaRebalanceGVK, ref, func(u *unstructured.Unstructured) {
		state, err := rebalance.DeriveStateFromUnstructured(u)
		if err != nil {
			return
		}
		switch state {
		case rebalance.Unknown:
			o.setState(u, rebalance.PendingProposal, "")
			o.rebalances[ref] = 0
		case rebalance.PendingProposal:
			o.rebalances[ref]++
			if o.rebalances[ref] >= o.ProposalReads {
				o.setOptimizationResult(u, ref.Namespace)
				o.setState(u, rebalance.ProposalReady, "")
				o.rebalances[ref] = 0
			}
		case rebalance.Rebalancing:
			o.rebalances[ref]++
			if o.rebalances[ref] >= o.RebalanceReads {
				o.setState(u, rebalance.Ready, "")
				o.rebalances[ref] = 0
			}
		}
	})
	if !found {
		delete(o.rebalances, ref)
	}
}

func (o *Operator) setOptimizationResult(u *unstructured.Unstructured, namespace string) {
	excluded := []interface{}{}
	pattern, _, _ := unstructured.NestedString(u.Object, "spec", "excludedTopics")
	if pattern != "" {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err == nil {
			topics := append([]string(nil), o.topics[namespace]...)
			sort.Strings(topics)
			for _, topic := range topics {
				if re.MatchString(topic) {
					excluded = append(excluded, topic)
				}
			}
		}
	}
	result := map[string]interface{}{
		"numReplicaMovements": int64(12),
		"numLeaderMovements":  int64(3),
		"dataToMoveMB":        int64(0),
		"excludedTopics":      excluded,
	}
	_ = unstructured.SetNestedMap(u.Object, result, "status", "optimizationResult")
}

func (o *Operator) reconcileKafka(ref object.ObjRef) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var cc map[string]interface{}
	var replicas int64
	o.update(rebalance.KafkaGVK, ref, func(u *unstructured.Unstructured) {
		replicas, _, _ = unstructured.NestedInt64(u.Object, "spec", "kafka", "replicas")
		cc, _, _ = unstructured.NestedMap(u.Object, "spec", "cruiseControl")
		if cc != nil && replicas < 2 {
			o.setCondition(u, "NotReady", invalidResourceReason, SingleNodeMessage(ref))
			return
		}
		o.setCondition(u, "Ready", "", "")
	})
	if cc == nil || replicas < 2 {
		return
	}

	config, _, _ := unstructured.NestedMap(cc, "config")
	var aliases []corev1.HostAlias
	if raw, found, _ := unstructured.NestedSlice(cc, "template", "pod", "hostAliases"); found {
		data, err := json.Marshal(raw)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(json.Unmarshal(data, &aliases)).To(gomega.Succeed())
	}
	o.syncCruiseControl(ref, config, aliases)
}

func (o *Operator) syncCruiseControl(kafka object.ObjRef, config map[string]interface{}, aliases []corev1.HostAlias) {
	depRef := object.ObjRef{Namespace: kafka.Namespace, Name: CruiseControlName(kafka.Name)}
	hash := templateHash(config, aliases)

	r, found := o.rollouts[depRef]
	if !found {
		r = &ccRollout{replicas: 1}
		o.rollouts[depRef] = r
		o.client.Set(deployment(depRef))
		o.createCruiseControlTopics(kafka)
	}
	if r.target == hash {
		return
	}
	r.target = hash
	r.config = config
	r.aliases = aliases
	if !found {
		for i := 0; i < r.replicas; i++ {
			o.startPod(depRef, r, true)
		}
		o.syncPods(depRef.Namespace)
	}
}

func (o *Operator) createCruiseControlTopics(kafka object.ObjRef) {
	for _, t := range cruiseControlTopics {
		u := &unstructured.Unstructured{Object: map[string]interface{}{
			"spec": map[string]interface{}{
				"partitions": t.partitions,
				"replicas":   t.replicas,
			},
		}}
		u.SetGroupVersionKind(KafkaTopicGVK)
		u.SetNamespace(kafka.Namespace)
		u.SetName(t.name)
		u.SetLabels(map[string]string{"strimzi.io/cluster": kafka.Name})
		o.client.Set(u)
		o.topics[kafka.Namespace] = append(o.topics[kafka.Namespace], t.name)
	}
}

// stepRollout moves the rollout of a Cruise Control deployment one
// step forward.
func (o *Operator) stepRollout(ref object.ObjRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, found := o.rollouts[ref]
	if !found {
		return
	}

	var current, stale []*corev1.Pod
	for _, p := range o.pods[ref.Namespace] {
		if p.Labels[nameLabel] != ref.Name {
			continue
		}
		if p.Labels[templateHashLabel] == r.target {
			current = append(current, p)
		} else {
			stale = append(stale, p)
		}
	}

	switch {
	case len(current) < r.replicas:
		o.startPod(ref, r, false)
	case anyPod(current, func(p *corev1.Pod) bool { return !podReady(p) }):
		for _, p := range current {
			setPodReady(p)
		}
	case anyPod(stale, func(p *corev1.Pod) bool { return p.DeletionTimestamp == nil }):
		now := metav1.NewTime(o.tick())
		for _, p := range stale {
			p.DeletionTimestamp = &now
		}
	case len(stale) > 0:
		for _, p := range stale {
			delete(o.pods[ref.Namespace], p.Name)
		}
	default:
		return
	}
	o.syncPods(ref.Namespace)
}

func (o *Operator) startPod(depRef object.ObjRef, r *ccRollout, ready bool) {
	o.podSeq++
	name := fmt.Sprintf("%s-%s-%s", depRef.Name, r.target, rand.SafeEncodeString(fmt.Sprintf("%05d", o.podSeq)))
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: depRef.Namespace,
			Labels: map[string]string{
				nameLabel:         depRef.Name,
				templateHashLabel: r.target,
			},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:  CruiseControlContainer,
				Image: "quay.io/strimzi/kafka:latest",
			}},
			HostAliases: r.aliases,
		},
		Status: corev1.PodStatus{Phase: corev1.PodPending},
	}
	if ready {
		setPodReady(p)
	}
	if o.pods[depRef.Namespace] == nil {
		o.pods[depRef.Namespace] = make(map[string]*corev1.Pod)
	}
	o.pods[depRef.Namespace][name] = p

	podRef := object.ObjRef{Namespace: depRef.Namespace, Name: name}
	o.client.SetExec(podRef, CruiseControlContainer, []string{"cat", CruiseControlConfigFile},
		renderProperties(depRef, r.config), nil)
	o.client.SetExec(podRef, CruiseControlContainer, []string{"cat", HostsFile},
		renderHosts(r.aliases), nil)
}

func (o *Operator) syncPods(namespace string) {
	pods := make([]*corev1.Pod, 0, len(o.pods[namespace]))
	for _, p := range o.pods[namespace] {
		pods = append(pods, p)
	}
	o.client.SetPods(namespace, pods...)
}

// update applies mutate to the stored object. It returns false if the
// object does not exist.
func (o *Operator) update(gvk schema.GroupVersionKind, ref object.ObjRef, mutate func(u *unstructured.Unstructured)) bool {
	err := o.client.Update(gvk, ref, mutate)
	if apierrors.IsNotFound(err) {
		return false
	}
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return true
}

// setState replaces the conditions with the single condition of state.
func (o *Operator) setState(u *unstructured.Unstructured, state rebalance.State, message string) {
	o.setCondition(u, string(state), "", message)
}

func (o *Operator) setCondition(u *unstructured.Unstructured, conditionType, reason, message string) {
	conditions, err := rebalance.ConditionsFromUnstructured(u)
	if err == nil && len(conditions) == 1 && conditions[0].Type == conditionType &&
		conditions[0].Reason == reason && conditions[0].Message == message {
		return
	}
	_ = testutil.SetConditions(u, testutil.Condition(conditionType, reason, message, o.tick()))
}

func (o *Operator) tick() time.Time {
	o.now = o.now.Add(time.Second)
	return o.now
}

func deployment(ref object.ObjRef) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]interface{}{
		"spec": map[string]interface{}{
			"replicas": int64(1),
			"selector": map[string]interface{}{
				"matchLabels": map[string]interface{}{
					nameLabel: ref.Name,
				},
			},
		},
	}}
	u.SetGroupVersionKind(rollout.DeploymentGVK)
	u.SetNamespace(ref.Namespace)
	u.SetName(ref.Name)
	return u
}

func templateHash(config map[string]interface{}, aliases []corev1.HostAlias) string {
	data, err := json.Marshal(struct {
		Config  map[string]interface{} `json:"config"`
		Aliases []corev1.HostAlias     `json:"aliases"`
	}{config, aliases})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	h := fnv.New32a()
	_, _ = h.Write(data)
	return rand.SafeEncodeString(fmt.Sprint(h.Sum32()))
}

func renderProperties(depRef object.ObjRef, config map[string]interface{}) string {
	cluster := strings.TrimSuffix(depRef.Name, "-cruise-control")
	lines := []string{
		fmt.Sprintf("bootstrap.servers=%s-kafka-bootstrap:9091", cluster),
		"webserver.http.port=9090",
	}
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", k, config[k]))
	}
	return strings.Join(lines, "\n") + "\n"
}

func renderHosts(aliases []corev1.HostAlias) string {
	var b strings.Builder
	b.WriteString("# Kubernetes-managed hosts file.\n127.0.0.1\tlocalhost\n")
	if len(aliases) > 0 {
		b.WriteString("\n# Entries added by HostAliases.\n")
		for _, a := range aliases {
			fmt.Fprintf(&b, "%s\t%s\n", a.IP, strings.Join(a.Hostnames, "\t"))
		}
	}
	return b.String()
}

func anyPod(pods []*corev1.Pod, pred func(p *corev1.Pod) bool) bool {
	for _, p := range pods {
		if pred(p) {
			return true
		}
	}
	return false
}

func podReady(p *corev1.Pod) bool {
	for _, c := range p.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func setPodReady(p *corev1.Pod) {
	p.Status.Phase = corev1.PodRunning
	p.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}}
}
