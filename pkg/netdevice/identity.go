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

	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice/capability"
)

// InterfaceName returns the OS network interface name of d, "" if no driver is bound
func (d *Device) InterfaceName(ctx context.Context) (string, error) {
	if ok, err := d.hasDriver(ctx); !ok {
		return "", err
	}
	return d.resolveInterfaceName(ctx)
}

// MACAddress returns the MAC address of the d interface, "" if no driver is bound
func (d *Device) MACAddress(ctx context.Context) (string, error) {
	return d.address(ctx, OpMACAddress)
}

// IPv4Address returns the first IPv4 address of the d interface.
// It returns "" if no driver is bound or the interface has no IPv4 address.
func (d *Device) IPv4Address(ctx context.Context) (string, error) {
	return d.address(ctx, OpIPv4Address)
}

// IPv6Address returns the first IPv6 address of the d interface.
// It returns "" if no driver is bound or the interface has no IPv6 address.
func (d *Device) IPv6Address(ctx context.Context) (string, error) {
	return d.address(ctx, OpIPv6Address)
}

// NUMANode returns the NUMA node of d, -1 if the host OS doesn't report it
func (d *Device) NUMANode(ctx context.Context) (int, error) {
	return d.host.NUMANode(ctx, d.busID, d.devfunID)
}

// CardType returns the "vendor:device" ID of d as reported by the host now
func (d *Device) CardType(ctx context.Context) (string, error) {
	return d.host.PCIDeviceID(ctx, d.busID, d.devfunID)
}

func (d *Device) resolveInterfaceName(ctx context.Context) (string, error) {
	proc, err := capability.Resolve[InterfaceNameFunc](d.opts.capabilities, OpInterfaceName, d.host.OSType(), d.currentDriver)
	if err != nil {
		return "", err
	}

	name, err := proc(ctx, d)
	if err != nil {
		return "", err
	}
	d.interfaceName = name

	return name, nil
}

func (d *Device) address(ctx context.Context, operation string) (string, error) {
	if ok, err := d.hasDriver(ctx); !ok {
		return "", err
	}

	proc, err := capability.Resolve[AddressFunc](d.opts.capabilities, operation, d.host.OSType(), d.currentDriver)
	if err != nil {
		return "", err
	}

	ifaceName, err := d.resolveInterfaceName(ctx)
	if err != nil {
		return "", err
	}

	return proc(ctx, d, ifaceName)
}
