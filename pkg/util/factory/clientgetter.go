// Copyright 2020 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// CachingRESTClientGetter resolves the REST config and the RESTMapper
// once and hands out the same instances afterwards. Every wait builds
// its client from the getter, and discovery for custom resource kinds
// should only happen once per process.
type CachingRESTClientGetter struct {
	mx       sync.Mutex
	Delegate genericclioptions.RESTClientGetter

	config *rest.Config
	mapper meta.RESTMapper
}

var _ genericclioptions.RESTClientGetter = &CachingRESTClientGetter{}

// ToRESTConfig returns a copy of the cached config, so callers can
// adjust it without affecting each other.
func (c *CachingRESTClientGetter) ToRESTConfig() (*rest.Config, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.config == nil {
		config, err := c.Delegate.ToRESTConfig()
		if err != nil {
			return nil, err
		}
		c.config = config
	}
	return rest.CopyConfig(c.config), nil
}

func (c *CachingRESTClientGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	return c.Delegate.ToDiscoveryClient()
}

func (c *CachingRESTClientGetter) ToRESTMapper() (meta.RESTMapper, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.mapper != nil {
		return c.mapper, nil
	}
	mapper, err := c.Delegate.ToRESTMapper()
	if err != nil {
		return nil, err
	}
	c.mapper = mapper
	return c.mapper, nil
}

func (c *CachingRESTClientGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	return c.Delegate.ToRawKubeConfigLoader()
}
