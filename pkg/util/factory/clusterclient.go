// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"fmt"

	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"sigs.k8s.io/rebalance-verifier/pkg/cluster"
)

// NewClusterClient creates a new cluster client from the passed in
// factory.
func NewClusterClient(f cmdutil.Factory) (cluster.Client, error) {
	config, err := f.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("error getting RESTConfig: %w", err)
	}

	mapper, err := f.ToRESTMapper()
	if err != nil {
		return nil, fmt.Errorf("error getting RESTMapper: %w", err)
	}

	c, err := cluster.NewClusterClient(config, mapper)
	if err != nil {
		return nil, err
	}
	return c, nil
}
