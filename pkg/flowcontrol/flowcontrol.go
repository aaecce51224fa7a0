// Copyright 2022 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package flowcontrol

import (
	"context"
	"fmt"
	"io"
	"net/http"

	flowcontrolapi "k8s.io/api/flowcontrol/v1"
	"k8s.io/client-go/rest"
)

const pingPath = "/livez/ping"

// IsEnabled returns true if the server has the PriorityAndFairness flow
// control filter enabled. The check pings the livez endpoint, which does
// not require authentication, and looks for the flow schema header that
// the filter adds to every response.
func IsEnabled(ctx context.Context, config *rest.Config) (bool, error) {
	// Use a copy so the caller's transport settings are not altered.
	config = rest.CopyConfig(config)

	httpClient, err := rest.HTTPClientFor(config)
	if err != nil {
		return false, fmt.Errorf("building http client: %w", err)
	}

	serverURL, _, err := rest.DefaultServerUrlFor(config)
	if err != nil {
		return false, fmt.Errorf("resolving server url: %w", err)
	}
	serverURL.Path = pingPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL.String(), nil)
	if err != nil {
		return false, fmt.Errorf("building ping request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("pinging api server: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Header.Get(flowcontrolapi.ResponseHeaderMatchedFlowSchemaUID) != "", nil
}
