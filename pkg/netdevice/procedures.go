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
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

// Operations resolved through the capability registry
const (
	OpInterfaceName = "interface_name"
	OpMACAddress    = "mac_address"
	OpIPv4Address   = "ipv4_address"
	OpIPv6Address   = "ipv6_address"
	OpSRIOVVFs      = "sriov_vfs_pci"
	OpGenerateVFs   = "generate_sriov_vfs"
	OpBindDriver    = "bind_driver"
	OpUnbindDriver  = "unbind_driver"
)

// InterfaceNameFunc returns the network interface name of d
type InterfaceNameFunc func(ctx context.Context, d *Device) (string, error)

// AddressFunc returns an address (MAC, IPv4 or IPv6) of the ifaceName interface of d.
// IP procedures return "" if the interface has no address.
type AddressFunc func(ctx context.Context, d *Device, ifaceName string) (string, error)

// VFListFunc returns the PCI addresses of the VFs provisioned from d
type VFListFunc func(ctx context.Context, d *Device) ([]string, error)

// VFCountFunc sets the number of VFs provisioned from d
type VFCountFunc func(ctx context.Context, d *Device, count int) error

// BindFunc binds driver to target
type BindFunc func(ctx context.Context, d *Device, target Target, driver string) error

// UnbindFunc unbinds the current driver from target
type UnbindFunc func(ctx context.Context, d *Device, target Target) error

// Target is the PCI function a bind/unbind procedure operates on: d itself or one of its VFs
type Target struct {
	BusID          string
	DevfunID       string
	VendorDeviceID string
}

// PCIAddress returns the short PCI address of t
func (t Target) PCIAddress() string {
	return pciaddr.Join(t.BusID, t.DevfunID)
}

// NewCapabilities returns a new registry with the built-in Linux and FreeBSD procedures
func NewCapabilities() *capability.Registry {
	r := capability.NewRegistry()
	registerLinux(r)
	registerFreeBSD(r)
	return r
}
