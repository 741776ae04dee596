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
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice/capability"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

const (
	pciStubDriver = "pci-stub"
	igbUIODriver  = "igb_uio"
	i40eDriver    = "i40e"

	idAlreadyRegistered = "File exists"
)

var (
	linuxMACAddress  = regexp.MustCompile(`^(?i:[0-9a-f]{2}(?::[0-9a-f]{2}){5})$`)
	linuxIPv4Address = regexp.MustCompile(`inet\s+([0-9.]+)`)
	linuxIPv6Address = regexp.MustCompile(`inet6\s+([0-9a-f:]+)`)
	linuxVFSlotName  = regexp.MustCompile(`PCI_SLOT_NAME=0000:([0-9a-f]{2}:[0-9a-f]{2}\.[0-7])`)
)

func registerLinux(r *capability.Registry) {
	r.Register(OpInterfaceName, hostsession.OSLinux, capability.Generic, InterfaceNameFunc(linuxInterfaceName))
	r.Register(OpMACAddress, hostsession.OSLinux, capability.Generic, AddressFunc(linuxMAC))
	r.Register(OpIPv4Address, hostsession.OSLinux, capability.Generic, AddressFunc(linuxIPv4))
	r.Register(OpIPv6Address, hostsession.OSLinux, capability.Generic, AddressFunc(linuxIPv6))
	r.Register(OpSRIOVVFs, hostsession.OSLinux, capability.Generic, VFListFunc(linuxVFAddresses))
	r.Register(OpGenerateVFs, hostsession.OSLinux, capability.Generic, VFCountFunc(linuxGenerateVFs))
	r.Register(OpGenerateVFs, hostsession.OSLinux, igbUIODriver, VFCountFunc(linuxGenerateIgbUIOVFs))
	r.Register(OpBindDriver, hostsession.OSLinux, capability.Generic, BindFunc(linuxBindDriver))
	r.Register(OpBindDriver, hostsession.OSLinux, pciStubDriver, BindFunc(linuxBindPCIStub))
	r.Register(OpUnbindDriver, hostsession.OSLinux, capability.Generic, UnbindFunc(linuxUnbindDriver))
}

func linuxInterfaceName(ctx context.Context, d *Device) (string, error) {
	out, err := d.Executef(ctx, "ls --color=never %s/net", pciaddr.DevicePath(d.busID, d.devfunID))
	if err != nil {
		return "", err
	}

	names := strings.Fields(out)
	if len(names) != 1 {
		return "", errors.Wrapf(ErrParse, "expected a single net interface for the device %s: %v", d, names)
	}
	return names[0], nil
}

func linuxMAC(ctx context.Context, d *Device, ifaceName string) (string, error) {
	out, err := d.Executef(ctx, "cat %s/net/%s/address", pciaddr.DevicePath(d.busID, d.devfunID), ifaceName)
	if err != nil {
		return "", err
	}

	if !linuxMACAddress.MatchString(out) {
		return "", errors.Wrapf(ErrParse, "invalid MAC address of %s: %q", ifaceName, out)
	}
	return out, nil
}

func linuxIPv4(ctx context.Context, d *Device, ifaceName string) (string, error) {
	return linuxIPAddress(ctx, d, "inet", ifaceName, linuxIPv4Address)
}

func linuxIPv6(ctx context.Context, d *Device, ifaceName string) (string, error) {
	return linuxIPAddress(ctx, d, "inet6", ifaceName, linuxIPv6Address)
}

func linuxIPAddress(ctx context.Context, d *Device, family, ifaceName string, pattern *regexp.Regexp) (string, error) {
	out, err := d.Executef(ctx, "ip -family %s address show dev %s", family, ifaceName)
	if err != nil {
		return "", err
	}

	if match := pattern.FindStringSubmatch(out); match != nil {
		return match[1], nil
	}
	return "", nil
}

func linuxVFAddresses(ctx context.Context, d *Device) ([]string, error) {
	logger := log.FromContext(ctx).WithField("netDevice", "linuxVFAddresses")
	devicePath := pciaddr.DevicePath(d.busID, d.devfunID)

	out, err := d.Executef(ctx, "cat %s/sriov_numvfs", devicePath)
	if err != nil {
		return nil, err
	}
	numVFs, err := strconv.Atoi(out)
	if err != nil {
		return nil, errors.Wrapf(ErrParse, "invalid VF count of the device %s: %q", d, out)
	}

	vfs := []string{}
	if numVFs == 0 {
		return vfs, nil
	}

	out, err = d.Executef(ctx, "ls -d %s/virtfn*", devicePath)
	if err != nil {
		logger.Errorf("failed to list VFs of the device %s: %v", d, err)
		return vfs, nil
	}

	for _, virtfn := range strings.Fields(out) {
		uevent, err := d.Executef(ctx, "cat %s", path.Join(virtfn, "uevent"))
		if err != nil {
			logger.Errorf("failed to read %s: %v", virtfn, err)
			break
		}

		match := linuxVFSlotName.FindStringSubmatch(uevent)
		if match == nil {
			logger.Errorf("no PCI slot name for %s", virtfn)
			break
		}
		vfs = append(vfs, match[1])
	}
	return vfs, nil
}

func linuxGenerateVFs(ctx context.Context, d *Device, count int) error {
	_, err := d.Executef(ctx, "echo %d > %s/sriov_numvfs", count, pciaddr.DevicePath(d.busID, d.devfunID))
	return err
}

// igb_uio exposes max_vfs instead of sriov_numvfs. For i40e cards the attribute lives outside
// of the device directory and has to be looked up.
func linuxGenerateIgbUIOVFs(ctx context.Context, d *Device, count int) error {
	maxVFsPath := pciaddr.DevicePath(d.busID, d.devfunID) + "/max_vfs"
	if d.defaultDriver == i40eDriver {
		out, err := d.Executef(ctx, "find /sys -name max_vfs | grep %s", d.PCIAddress())
		if err != nil {
			return err
		}
		paths := strings.Fields(out)
		if len(paths) == 0 {
			return errors.Wrapf(ErrParse, "no max_vfs for the device %s", d)
		}
		maxVFsPath = paths[0]
	}

	_, err := d.Executef(ctx, "echo %d > %s", count, maxVFsPath)
	return err
}

// linuxBindPCIStub binds the pci-stub directory whatever spelling of the driver was asked for
func linuxBindPCIStub(ctx context.Context, d *Device, target Target, _ string) error {
	return linuxBindDriver(ctx, d, target, pciStubDriver)
}

func linuxBindDriver(ctx context.Context, d *Device, target Target, driver string) error {
	current, err := d.host.PCIDeviceDriver(ctx, target.BusID, target.DevfunID)
	if err != nil {
		return err
	}
	if current == driver {
		return nil
	}

	driverPath := pciaddr.DriverPath(driver)
	longAddr := pciaddr.Long(target.BusID, target.DevfunID)

	newID := strings.Replace(target.VendorDeviceID, ":", " ", 1)
	if _, err := d.Executef(ctx, "echo %s > %s/new_id", newID, driverPath); err != nil && !commandOutputContains(err, idAlreadyRegistered) {
		return err
	}

	if current != "" {
		if _, err := d.Executef(ctx, "echo %s > %s/driver/unbind", longAddr, pciaddr.DevicePath(target.BusID, target.DevfunID)); err != nil {
			return err
		}
	}

	if _, err := d.Executef(ctx, "echo %s > %s/bind", longAddr, driverPath); err != nil {
		// new_id makes the driver claim all matching unbound devices, so it may already own the device
		if bound, driverErr := d.host.PCIDeviceDriver(ctx, target.BusID, target.DevfunID); driverErr == nil && bound == driver {
			return nil
		}
		return err
	}
	return nil
}

func linuxUnbindDriver(ctx context.Context, d *Device, target Target) error {
	_, err := d.Executef(ctx, "echo %s > %s/driver/unbind",
		pciaddr.Long(target.BusID, target.DevfunID), pciaddr.DevicePath(target.BusID, target.DevfunID))
	return err
}

func commandOutputContains(err error, s string) bool {
	var cmdErr *hostsession.CommandError
	return errors.As(err, &cmdErr) && strings.Contains(cmdErr.Output, s)
}
