// Copyright (c) 2024 Doc.ai and/or its affiliates.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netdevice

import (
	"time"

	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice/capability"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/driverregistry"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultSettleDelay = time.Second
)

type options struct {
	timeout      time.Duration
	settleDelay  time.Duration
	prompt       string
	capabilities *capability.Registry
	drivers      DriverRegistry
}

// Option is an option pattern for New and NewVirtualFunction
type Option func(o *options)

// WithTimeout sets the timeout of every host command
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithSettleDelay sets the fixed wait after driver binding and VF provisioning.
// The wait lets the OS finish attaching drivers and instantiating VFs; it is not a readiness check.
func WithSettleDelay(delay time.Duration) Option {
	return func(o *options) {
		o.settleDelay = delay
	}
}

// WithPrompt sets the prompt expected after every host command
func WithPrompt(prompt string) Option {
	return func(o *options) {
		o.prompt = prompt
	}
}

// WithCapabilities sets the procedure registry
func WithCapabilities(capabilities *capability.Registry) Option {
	return func(o *options) {
		o.capabilities = capabilities
	}
}

// WithDriverRegistry sets the vendor:device -> driver lookup table
func WithDriverRegistry(drivers DriverRegistry) Option {
	return func(o *options) {
		o.drivers = drivers
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout:     defaultTimeout,
		settleDelay: defaultSettleDelay,
		prompt:      hostsession.RootPrompt,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.capabilities == nil {
		o.capabilities = NewCapabilities()
	}
	if o.drivers == nil {
		o.drivers = driverregistry.Default()
	}
	return o
}
