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
	"context"

	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice/capability"
)

// BindDriver binds driver to d. An empty driver means the default driver for the d vendor:device ID.
func (d *Device) BindDriver(ctx context.Context, driver string) error {
	if driver == "" {
		driver = d.defaultDriver
	}
	if driver == "" {
		return errors.Wrapf(ErrNoDriverSpecified, "no default driver for the device %s", d)
	}

	if err := d.bind(ctx, d.target(), driver); err != nil {
		return err
	}
	log.FromContext(ctx).WithField("netDevice", "BindDriver").Infof("bound %s to %s", driver, d.PCIAddress())

	d.settle(ctx)
	return nil
}

// UnbindDriver unbinds the current driver from d, doing nothing if no driver is bound.
// An empty driver selects the generic procedure, any other name is resolved with no fallback.
func (d *Device) UnbindDriver(ctx context.Context, driver string) error {
	if ok, err := d.hasDriver(ctx); !ok {
		return err
	}

	if driver == "" {
		driver = capability.Generic
	}
	proc, err := capability.ResolveExact[UnbindFunc](d.opts.capabilities, OpUnbindDriver, d.host.OSType(), driver)
	if err != nil {
		return err
	}

	if err := proc(ctx, d, d.target()); err != nil {
		return err
	}
	log.FromContext(ctx).WithField("netDevice", "UnbindDriver").Infof("unbound %s from %s", d.currentDriver, d.PCIAddress())
	d.currentDriver = ""

	d.settle(ctx)
	return nil
}

func (d *Device) bind(ctx context.Context, target Target, driver string) error {
	proc, err := capability.Resolve[BindFunc](d.opts.capabilities, OpBindDriver, d.host.OSType(), driver)
	if err != nil {
		return err
	}
	return proc(ctx, d, target, driver)
}
