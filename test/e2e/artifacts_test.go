// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package e2e

var kafkaTemplate = `
apiVersion: kafka.strimzi.io/v1beta2
kind: Kafka
metadata:
  name: {{.Name}}
  namespace: {{.Namespace}}
spec:
  kafka:
    replicas: {{.Replicas}}
    listeners:
    - name: plain
      port: 9092
      type: internal
      tls: false
    storage:
      type: ephemeral
  zookeeper:
    replicas: 3
    storage:
      type: ephemeral
  cruiseControl: {}
`

var rebalanceTemplate = `
apiVersion: kafka.strimzi.io/v1beta2
kind: KafkaRebalance
metadata:
  name: {{.Name}}
  namespace: {{.Namespace}}
  labels:
    strimzi.io/cluster: {{.Cluster}}
spec:
  {{- if .ExcludedTopics}}
  excludedTopics: "{{.ExcludedTopics}}"
  {{- end}}
  goals:
  - CpuCapacityGoal
  - NetworkInboundCapacityGoal
  - DiskCapacityGoal
`

type manifestFields struct {
	Name           string
	Namespace      string
	Cluster        string
	Replicas       int
	ExcludedTopics string
}
