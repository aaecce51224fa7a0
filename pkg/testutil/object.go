// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0
//
// The testutil package houses utility function for testing.

package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	sigsyaml "sigs.k8s.io/yaml"
)

// Unstructured translates the passed object config string into an
// object in Unstructured format. The mutators modify the object before
// it is returned.
func Unstructured(t *testing.T, manifest string, mutators ...Mutator) *unstructured.Unstructured {
	data, err := sigsyaml.YAMLToJSON([]byte(manifest))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	u := &unstructured.Unstructured{}
	err = u.UnmarshalJSON(data)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	for _, m := range mutators {
		m.Mutate(u)
	}
	return u
}

// YamlToUnstructured decodes yml without requiring apiVersion and kind,
// for fixtures that are only fed to field accessors.
func YamlToUnstructured(t *testing.T, yml string) *unstructured.Unstructured {
	m := make(map[string]interface{})
	err := yaml.Unmarshal([]byte(yml), &m)
	if err != nil {
		t.Fatalf("error parsing yaml: %v", err)
		return nil
	}
	return &unstructured.Unstructured{Object: normalize(m).(map[string]interface{})}
}

// normalize converts yaml.v3 values into the types unstructured
// objects are allowed to hold.
func normalize(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		for k, val := range typed {
			typed[k] = normalize(val)
		}
		return typed
	case []interface{}:
		for i, val := range typed {
			typed[i] = normalize(val)
		}
		return typed
	case int:
		return int64(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

// Mutator inteface defines a function to update an object
// while translating it unto Unstructured format from yaml config.
type Mutator interface {
	Mutate(u *unstructured.Unstructured)
}

// MutatorFunc adapts a function to the Mutator interface.
type MutatorFunc func(u *unstructured.Unstructured)

func (f MutatorFunc) Mutate(u *unstructured.Unstructured) {
	f(u)
}

// Condition builds a status condition as the rebalance controller
// writes it.
func Condition(conditionType, reason, message string, lastTransitionTime time.Time) map[string]interface{} {
	c := map[string]interface{}{
		"type":               conditionType,
		"status":             "True",
		"lastTransitionTime": lastTransitionTime.UTC().Format(time.RFC3339),
	}
	if reason != "" {
		c["reason"] = reason
	}
	if message != "" {
		c["message"] = message
	}
	return c
}

// WithConditions returns a Mutator which replaces status.conditions.
func WithConditions(t *testing.T, conditions ...map[string]interface{}) Mutator {
	return conditionsMutator{
		t:          t,
		conditions: conditions,
	}
}

// conditionsMutator encapsulates the conditions to write. This
// structure implements the Mutator interface.
type conditionsMutator struct {
	t          *testing.T
	conditions []map[string]interface{}
}

// Mutate overwrites the conditions of the passed object.
func (c conditionsMutator) Mutate(u *unstructured.Unstructured) {
	err := SetConditions(u, c.conditions...)
	if !assert.NoError(c.t, err) {
		c.t.FailNow()
	}
}

// SetConditions replaces status.conditions of u.
func SetConditions(u *unstructured.Unstructured, conditions ...map[string]interface{}) error {
	items := make([]interface{}, 0, len(conditions))
	for _, c := range conditions {
		items = append(items, c)
	}
	return unstructured.SetNestedSlice(u.Object, items, "status", "conditions")
}

// AddAnnotation returns a Mutator which sets an annotation.
func AddAnnotation(key, value string) Mutator {
	return MutatorFunc(func(u *unstructured.Unstructured) {
		annos := u.GetAnnotations()
		if annos == nil {
			annos = make(map[string]string)
		}
		annos[key] = value
		u.SetAnnotations(annos)
	})
}
