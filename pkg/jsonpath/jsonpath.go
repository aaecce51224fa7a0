// Copyright 2021 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

// Package jsonpath evaluates JSONPath expressions against unstructured
// objects, for checks on status fields the rebalance controller reports,
// like the topics excluded from an optimization proposal.
package jsonpath

import (
	"encoding/json"
	"fmt"

	"github.com/spyzhov/ajson"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Get evaluates the JSONPath expression to extract values from a
// map-based object. Returns an empty list, not an error, if the path
// matches nothing.
func Get(obj map[string]interface{}, expression string) ([]interface{}, error) {
	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input to json: %w", err)
	}

	klog.V(7).Infof("jsonpath.Get input as json:\n%s", jsonBytes)

	nodes, err := ajson.JSONPath(jsonBytes, expression)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate jsonpath expression (%s): %w", expression, err)
	}

	result := make([]interface{}, len(nodes))
	for i, node := range nodes {
		nodeBytes, err := ajson.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jsonpath result to json: %w", err)
		}
		klog.V(7).Infof("jsonpath.Get output as json:\n%s", nodeBytes)

		// JSON is YAML. Decoding it as YAML keeps integers as ints.
		var value interface{}
		if err := yaml.Unmarshal(nodeBytes, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal jsonpath result: %w", err)
		}
		result[i] = value
	}
	return result, nil
}

// GetStrings is like Get, but flattens list results and requires every
// value to be a string.
func GetStrings(obj map[string]interface{}, expression string) ([]string, error) {
	values, err := Get(obj, expression)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, v := range values {
		switch typed := v.(type) {
		case string:
			result = append(result, typed)
		case []interface{}:
			for _, item := range typed {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("jsonpath expression (%s) matched %T, expected string", expression, item)
				}
				result = append(result, s)
			}
		default:
			return nil, fmt.Errorf("jsonpath expression (%s) matched %T, expected string", expression, v)
		}
	}
	return result, nil
}
