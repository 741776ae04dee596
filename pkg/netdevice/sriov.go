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
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

// VFAddresses returns the PCI addresses of the VFs currently provisioned from d.
// It returns nil if no driver is bound to d.
func (d *Device) VFAddresses(ctx context.Context) ([]string, error) {
	if err := d.requirePhysicalFunction(); err != nil {
		return nil, err
	}
	if ok, err := d.hasDriver(ctx); !ok {
		return nil, err
	}
	return d.listVFs(ctx)
}

// GenerateVFs provisions count VFs from d. Zero count destroys all VFs, first rebinding the tracked
// VFs to the default VF driver. Tracked VFs are forgotten even if destroying fails.
// It does nothing if no driver is bound to d.
func (d *Device) GenerateVFs(ctx context.Context, count int) error {
	if err := d.requirePhysicalFunction(); err != nil {
		return err
	}
	if count < 0 {
		return errors.Errorf("invalid VF count for the device %s: %d", d, count)
	}
	if ok, err := d.hasDriver(ctx); !ok {
		return err
	}

	logger := log.FromContext(ctx).WithField("netDevice", "GenerateVFs")

	proc, err := capability.Resolve[VFCountFunc](d.opts.capabilities, OpGenerateVFs, d.host.OSType(), d.currentDriver)
	if err != nil {
		return err
	}

	if count == 0 {
		if len(d.vfAddresses) > 0 && d.defaultVFDriver != "" {
			err := d.BindVFDriver(ctx, "", "")
			switch {
			case errors.Is(err, ErrNoDriverSpecified), errors.Is(err, ErrNoVFsPresent):
				logger.Debugf("skip VF driver restore for %s: %v", d.PCIAddress(), err)
			case err != nil:
				// VFs are left in place, VFAddresses re-enumerates them
				d.vfAddresses = nil
				return err
			}
		}

		err := proc(ctx, d, 0)
		d.vfAddresses = nil
		if err != nil {
			return err
		}
		logger.Infof("destroyed VFs of %s", d.PCIAddress())

		d.settle(ctx)
		return nil
	}

	if err := proc(ctx, d, count); err != nil {
		return err
	}

	vfs, err := d.listVFs(ctx)
	if err != nil {
		return err
	}
	d.vfAddresses = vfs
	if len(vfs) == 0 {
		return errors.Wrapf(ErrNoVFsPresent, "%d VFs requested, none found for the device %s", count, d)
	}

	busID, devfunID, err := pciaddr.Split(vfs[0])
	if err != nil {
		return err
	}
	if d.defaultVFDriver, err = d.host.PCIDeviceDriver(ctx, busID, devfunID); err != nil {
		return err
	}
	logger.Infof("generated %d VFs of %s: %v, default VF driver %q", count, d.PCIAddress(), vfs, d.defaultVFDriver)

	d.settle(ctx)
	return nil
}

// DestroyVFs destroys all VFs of d
func (d *Device) DestroyVFs(ctx context.Context) error {
	return d.GenerateVFs(ctx, 0)
}

// BindVFDriver binds driver to the VF at pciAddress or, if pciAddress is empty, to every tracked VF.
// An empty driver means the default VF driver.
func (d *Device) BindVFDriver(ctx context.Context, pciAddress, driver string) error {
	if err := d.requirePhysicalFunction(); err != nil {
		return err
	}

	if driver == "" {
		driver = d.defaultVFDriver
	}
	if driver == "" {
		return errors.Wrapf(ErrNoDriverSpecified, "no default VF driver for the device %s", d)
	}

	vfs := d.vfAddresses
	if pciAddress != "" {
		vfs = []string{pciAddress}
	}
	if len(vfs) == 0 {
		return errors.Wrapf(ErrNoVFsPresent, "device %s", d)
	}

	logger := log.FromContext(ctx).WithField("netDevice", "BindVFDriver")
	for _, vf := range vfs {
		target, err := d.vfTarget(ctx, vf)
		if err != nil {
			return err
		}
		if err := d.bind(ctx, target, driver); err != nil {
			return err
		}
		logger.Infof("bound %s to VF %s", driver, vf)
	}

	d.settle(ctx)
	return nil
}

func (d *Device) listVFs(ctx context.Context) ([]string, error) {
	proc, err := capability.Resolve[VFListFunc](d.opts.capabilities, OpSRIOVVFs, d.host.OSType(), d.currentDriver)
	if err != nil {
		return nil, err
	}
	return proc(ctx, d)
}

func (d *Device) vfTarget(ctx context.Context, pciAddress string) (Target, error) {
	busID, devfunID, err := pciaddr.Split(pciAddress)
	if err != nil {
		return Target{}, err
	}

	vendorDeviceID, err := d.host.PCIDeviceID(ctx, busID, devfunID)
	if err != nil {
		return Target{}, err
	}

	return Target{
		BusID:          busID,
		DevfunID:       devfunID,
		VendorDeviceID: vendorDeviceID,
	}, nil
}

func (d *Device) requirePhysicalFunction() error {
	if !d.physical {
		return errors.Wrapf(ErrNotPhysicalFunction, "%s", d)
	}
	return nil
}
