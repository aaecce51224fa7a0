// Copyright 2026 The Kubernetes Authors.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"
)

// Environment variables that override the built-in defaults.
const (
	PollIntervalEnv   = "RBV_POLL_INTERVAL"
	StateTimeoutEnv   = "RBV_STATE_TIMEOUT"
	RolloutTimeoutEnv = "RBV_ROLLOUT_TIMEOUT"
	ExecTimeoutEnv    = "RBV_EXEC_TIMEOUT"
)

// Defaults holds the timing defaults for waits. Command-line flags take
// precedence over these.
type Defaults struct {
	// PollInterval is the spacing between reads.
	PollInterval time.Duration
	// StateTimeout bounds waits for a rebalance state. Proposals are
	// computed by the controller and can take minutes.
	StateTimeout time.Duration
	// RolloutTimeout bounds waits for a workload rollout.
	RolloutTimeout time.Duration
	// ExecTimeout bounds a single command run in a pod.
	ExecTimeout time.Duration
}

// BuiltinDefaults returns the defaults used when nothing is configured.
func BuiltinDefaults() Defaults {
	return Defaults{
		PollInterval:   5 * time.Second,
		StateTimeout:   10 * time.Minute,
		RolloutTimeout: 5 * time.Minute,
		ExecTimeout:    30 * time.Second,
	}
}

// LoadDefaults loads a .env file from the working directory or one of
// its parents, if there is one, and applies the RBV_* environment
// variables on top of the built-in defaults. Variables already set in
// the environment win over the .env file.
func LoadDefaults() (Defaults, error) {
	dir, err := os.Getwd()
	if err != nil {
		return Defaults{}, err
	}
	return LoadDefaultsFrom(dir)
}

// LoadDefaultsFrom is like LoadDefaults, but starts looking for the
// .env file in dir.
func LoadDefaultsFrom(dir string) (Defaults, error) {
	if err := loadEnvFile(dir); err != nil {
		return Defaults{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	d := BuiltinDefaults()
	for _, v := range []struct {
		env    string
		target *time.Duration
	}{
		{env: PollIntervalEnv, target: &d.PollInterval},
		{env: StateTimeoutEnv, target: &d.StateTimeout},
		{env: RolloutTimeoutEnv, target: &d.RolloutTimeout},
		{env: ExecTimeoutEnv, target: &d.ExecTimeout},
	} {
		value := strings.TrimSpace(os.Getenv(v.env))
		if value == "" {
			continue
		}
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Defaults{}, fmt.Errorf("invalid value for %s: %w", v.env, err)
		}
		if duration <= 0 {
			return Defaults{}, fmt.Errorf("invalid value for %s: must be positive, got %s", v.env, value)
		}
		*v.target = duration
	}
	return d, nil
}

// loadEnvFile traverses up the directory tree to find a .env file.
func loadEnvFile(dir string) error {
	for {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			klog.V(4).Infof("loading environment from %s", envFile)
			return godotenv.Load(envFile)
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			return nil
		}
		dir = parentDir
	}
}
