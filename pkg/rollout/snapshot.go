// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package rollout

import (
	"fmt"
	"os"

	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
	"sigs.k8s.io/yaml"
)

// Snapshot records which pods back a workload, and the template each of
// them was created from, at one point in time. It must be taken before
// the change whose rollout is awaited.
type Snapshot struct {
	// Pods maps pod name to fingerprint.
	Pods map[string]string `json:"pods"`
	// Replicas is the number of pods in the snapshot.
	Replicas int `json:"replicas"`
}

// NewSnapshot builds a Snapshot from the non-terminating pods.
func NewSnapshot(pods []cluster.PodInfo) Snapshot {
	s := Snapshot{Pods: make(map[string]string)}
	for _, p := range pods {
		if p.Terminating {
			continue
		}
		s.Pods[p.Name] = p.Fingerprint
	}
	s.Replicas = len(s.Pods)
	return s
}

// Fingerprints returns the distinct fingerprints in the snapshot.
func (s Snapshot) Fingerprints() sets.Set[string] {
	fps := sets.New[string]()
	for _, fp := range s.Pods {
		fps.Insert(fp)
	}
	return fps
}

// Diff returns a human-readable diff between two snapshots, or an empty
// string if they are equal.
func Diff(baseline, current Snapshot) string {
	return cmp.Diff(baseline, current)
}

// WriteFile stores the snapshot as YAML.
func (s Snapshot) WriteFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshotFile loads a snapshot written by WriteFile.
func ReadSnapshotFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s Snapshot
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	if s.Pods == nil {
		s.Pods = make(map[string]string)
	}
	return s, nil
}
