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
	"regexp"

	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice/capability"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

var (
	freebsdMACAddress  = regexp.MustCompile(`ether ([\da-f:]+)`)
	freebsdIPv4Address = regexp.MustCompile(`inet ([\d.]+)`)
	freebsdIPv6Address = regexp.MustCompile(`inet6 ([\da-f:]+)%`)
)

// FreeBSD has no sysfs SR-IOV or driver binding, only identity queries are registered
func registerFreeBSD(r *capability.Registry) {
	r.Register(OpInterfaceName, hostsession.OSFreeBSD, capability.Generic, InterfaceNameFunc(freebsdInterfaceName))
	r.Register(OpMACAddress, hostsession.OSFreeBSD, capability.Generic, AddressFunc(freebsdMAC))
	r.Register(OpIPv4Address, hostsession.OSFreeBSD, capability.Generic, AddressFunc(freebsdIPv4))
	r.Register(OpIPv6Address, hostsession.OSFreeBSD, capability.Generic, AddressFunc(freebsdIPv6))
}

func freebsdInterfaceName(ctx context.Context, d *Device) (string, error) {
	selector, err := pciaddr.FreeBSDSelector(d.busID, d.devfunID)
	if err != nil {
		return "", err
	}

	out, err := d.Execute(ctx, "pciconf -l")
	if err != nil {
		return "", err
	}

	pattern := regexp.MustCompile(`(?m)^(\w+)@` + regexp.QuoteMeta(selector) + `:`)
	match := pattern.FindStringSubmatch(out)
	if match == nil {
		return "", errors.Wrapf(ErrParse, "no interface for %s in pciconf output", selector)
	}
	return match[1], nil
}

func freebsdMAC(ctx context.Context, d *Device, ifaceName string) (string, error) {
	out, err := d.Executef(ctx, "ifconfig %s", ifaceName)
	if err != nil {
		return "", err
	}

	match := freebsdMACAddress.FindStringSubmatch(out)
	if match == nil {
		return "", errors.Wrapf(ErrParse, "no MAC address of %s", ifaceName)
	}
	return match[1], nil
}

func freebsdIPv4(ctx context.Context, d *Device, ifaceName string) (string, error) {
	return freebsdIPAddress(ctx, d, ifaceName, freebsdIPv4Address)
}

func freebsdIPv6(ctx context.Context, d *Device, ifaceName string) (string, error) {
	return freebsdIPAddress(ctx, d, ifaceName, freebsdIPv6Address)
}

func freebsdIPAddress(ctx context.Context, d *Device, ifaceName string, pattern *regexp.Regexp) (string, error) {
	out, err := d.Executef(ctx, "ifconfig %s", ifaceName)
	if err != nil {
		return "", err
	}

	if match := pattern.FindStringSubmatch(out); match != nil {
		return match[1], nil
	}
	return "", nil
}
