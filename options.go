// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flowbird

import (
	"fmt"
	"time"
)

// Option configures a Lifecycle
type Option func(*lifecycleConfig) error

type lifecycleConfig struct {
	deployer    *Deployer
	feedback    Feedback
	requests    map[string]ServiceRequest
	bindTimeout time.Duration
}

func defaultLifecycleConfig() lifecycleConfig {
	return lifecycleConfig{
		bindTimeout: DefaultBindTimeout,
		requests:    DefaultServiceRequests(),
	}
}

// WithBindTimeout sets how long Initialize waits for the driver to join
func WithBindTimeout(timeout time.Duration) Option {
	return func(c *lifecycleConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("bind timeout must be positive, got %v", timeout)
		}
		c.bindTimeout = timeout
		return nil
	}
}

// WithResources deploys feedback resources through deployer before binding
func WithResources(deployer *Deployer) Option {
	return func(c *lifecycleConfig) error {
		c.deployer = deployer
		return nil
	}
}

// WithFeedback replaces the UIManager built from the bound sub-services
func WithFeedback(feedback Feedback) Option {
	return func(c *lifecycleConfig) error {
		c.feedback = feedback
		return nil
	}
}

// WithServiceRequests replaces the set of sub-services requested from the binder
func WithServiceRequests(requests map[string]ServiceRequest) Option {
	return func(c *lifecycleConfig) error {
		if _, ok := requests[ServiceAPDUReader]; !ok {
			return fmt.Errorf("service requests must include %q", ServiceAPDUReader)
		}
		c.requests = requests
		return nil
	}
}
