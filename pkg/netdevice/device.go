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

// Package netdevice provides a NIC port (physical or virtual function) on a host
// identified by its PCI bus address.
//
// Every OS- and driver-specific step is resolved through a capability.Registry:
// the procedure registered for the currently bound driver wins, the generic one is the fallback.
package netdevice

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

// Host is the host a Device is managed through
type Host interface {
	// Execute runs command and waits for expected to appear within timeout
	Execute(ctx context.Context, command, expected string, timeout time.Duration) (string, error)
	// OSType returns the host OS tag
	OSType() string
	// PCIDeviceDriver returns the driver bound to the device, "" if there is no one
	PCIDeviceDriver(ctx context.Context, busID, devfunID string) (string, error)
	// NUMANode returns the NUMA node of the device
	NUMANode(ctx context.Context, busID, devfunID string) (int, error)
	// PCIDeviceID returns the "vendor:device" ID of the device
	PCIDeviceID(ctx context.Context, busID, devfunID string) (string, error)
}

// DriverRegistry maps a "vendor:device" ID to the default driver name
type DriverRegistry interface {
	Lookup(vendorDeviceID string) string
}

// Device is a PCI network function on a host.
// WARNING: it is thread unsafe - if you want to use it concurrently, use some synchronization outside
type Device struct {
	host Host
	opts *options

	busID          string
	devfunID       string
	vendorDeviceID string
	defaultDriver  string
	physical       bool

	defaultVFDriver string
	interfaceName   string
	currentDriver   string
	vfAddresses     []string
}

// New returns a new physical function Device at busID:devfunID on host
func New(ctx context.Context, host Host, busID, devfunID string, opts ...Option) (*Device, error) {
	return newDevice(ctx, host, busID, devfunID, true, opts)
}

// NewVirtualFunction returns a new virtual function Device at busID:devfunID on host
func NewVirtualFunction(ctx context.Context, host Host, busID, devfunID string, opts ...Option) (*Device, error) {
	return newDevice(ctx, host, busID, devfunID, false, opts)
}

func newDevice(ctx context.Context, host Host, busID, devfunID string, physical bool, opts []Option) (*Device, error) {
	pciAddress := pciaddr.Join(busID, devfunID)
	logger := log.FromContext(ctx).WithField("netDevice", "New")

	if host == nil {
		return nil, &constructionError{pciAddress: pciAddress, err: errors.New("host is not set")}
	}
	if busID == "" || devfunID == "" {
		return nil, &constructionError{pciAddress: pciAddress, err: errors.New("bus address is not set")}
	}

	d := &Device{
		host:     host,
		opts:     newOptions(opts),
		busID:    busID,
		devfunID: devfunID,
		physical: physical,
	}

	vendorDeviceID, err := host.PCIDeviceID(ctx, busID, devfunID)
	if err != nil {
		return nil, &constructionError{pciAddress: pciAddress, err: err}
	}
	d.vendorDeviceID = vendorDeviceID
	d.defaultDriver = d.opts.drivers.Lookup(vendorDeviceID)

	if _, err := d.InterfaceName(ctx); err != nil {
		logger.Warnf("failed to get interface name for the device %s: %v", pciAddress, err)
	}

	logger.Infof("device %s: id %s, default driver %q, interface %q", pciAddress, vendorDeviceID, d.defaultDriver, d.interfaceName)

	return d, nil
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s)", d.PCIAddress(), d.vendorDeviceID)
}

// Host returns the host d is managed through
func (d *Device) Host() Host {
	return d.host
}

// BusID returns the PCI bus
func (d *Device) BusID() string {
	return d.busID
}

// DevfunID returns the PCI device.function
func (d *Device) DevfunID() string {
	return d.devfunID
}

// PCIAddress returns "<bus>:<devfun>"
func (d *Device) PCIAddress() string {
	return pciaddr.Join(d.busID, d.devfunID)
}

// VendorDeviceID returns the "vendor:device" ID read at construction
func (d *Device) VendorDeviceID() string {
	return d.vendorDeviceID
}

// DefaultDriver returns the driver registered for the vendor:device ID, "" if unknown
func (d *Device) DefaultDriver() string {
	return d.defaultDriver
}

// DefaultVFDriver returns the driver observed on the first VF at the last provisioning
func (d *Device) DefaultVFDriver() string {
	return d.defaultVFDriver
}

// IsPhysicalFunction returns true for PF devices
func (d *Device) IsPhysicalFunction() bool {
	return d.physical
}

// TrackedVFs returns the VF addresses found at the last provisioning
func (d *Device) TrackedVFs() []string {
	return append([]string(nil), d.vfAddresses...)
}

// CurrentDriver queries the driver bound to d, "" if there is no one
func (d *Device) CurrentDriver(ctx context.Context) (string, error) {
	if _, err := d.hasDriver(ctx); err != nil {
		return "", err
	}
	return d.currentDriver, nil
}

// Execute runs command on the host and waits for the prompt
func (d *Device) Execute(ctx context.Context, command string) (string, error) {
	return d.host.Execute(ctx, command, regexp.QuoteMeta(d.opts.prompt), d.opts.timeout)
}

// Executef formats and runs a command on the host
func (d *Device) Executef(ctx context.Context, format string, args ...interface{}) (string, error) {
	return d.Execute(ctx, fmt.Sprintf(format, args...))
}

// hasDriver refreshes the current driver. Driver-gated operations return an empty result on false.
func (d *Device) hasDriver(ctx context.Context) (bool, error) {
	driver, err := d.host.PCIDeviceDriver(ctx, d.busID, d.devfunID)
	if err != nil {
		return false, err
	}
	d.currentDriver = driver
	return driver != "", nil
}

func (d *Device) target() Target {
	return Target{
		BusID:          d.busID,
		DevfunID:       d.devfunID,
		VendorDeviceID: d.vendorDeviceID,
	}
}

func (d *Device) settle(ctx context.Context) {
	if d.opts.settleDelay <= 0 {
		return
	}

	timer := time.NewTimer(d.opts.settleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
