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

// Package pciaddr provides PCI address parsing and sysfs path helpers
package pciaddr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	bdfDomain      = "0000:"
	pciDevicesPath = "/sys/bus/pci/devices/"
	pciDriversPath = "/sys/bus/pci/drivers/"
)

var (
	validLongPCIAddr  = regexp.MustCompile(`^[0-9a-f]{4}:[0-9a-f]{2}:[0-9a-f]{2}\.[0-7]{1}$`)
	validShortPCIAddr = regexp.MustCompile(`^[0-9a-f]{2}:[0-9a-f]{2}\.[0-7]{1}$`)
)

// ErrInvalid is returned for PCI addresses not in BDF notation
var ErrInvalid = errors.New("invalid PCI address")

// Split splits a short (BB:DD.F) or long (0000:BB:DD.F) PCI address into bus and device.function parts
func Split(pciAddress string) (busID, devfunID string, err error) {
	addr := strings.ToLower(strings.TrimSpace(pciAddress))
	switch {
	case validShortPCIAddr.MatchString(addr):
	case validLongPCIAddr.MatchString(addr) && strings.HasPrefix(addr, bdfDomain):
		addr = strings.TrimPrefix(addr, bdfDomain)
	default:
		return "", "", errors.Wrapf(ErrInvalid, "%q", pciAddress)
	}

	idx := strings.Index(addr, ":")
	return addr[:idx], addr[idx+1:], nil
}

// Join returns the short PCI address for busID and devfunID
func Join(busID, devfunID string) string {
	return busID + ":" + devfunID
}

// Long returns the sysfs form of the PCI address (0000:BB:DD.F)
func Long(busID, devfunID string) string {
	return bdfDomain + Join(busID, devfunID)
}

// DevicePath returns /sys/bus/pci/devices/0000:<bus>:<devfun>
func DevicePath(busID, devfunID string) string {
	return pciDevicesPath + Long(busID, devfunID)
}

// DriverPath returns /sys/bus/pci/drivers/<driver>
func DriverPath(driver string) string {
	return pciDriversPath + driver
}

// FreeBSDSelector returns the pciconf selector for the device, e.g. "pci0:4:0:0".
// pciconf prints bus, slot and function in decimal while sysfs uses hex.
func FreeBSDSelector(busID, devfunID string) (string, error) {
	parts := strings.SplitN(devfunID, ".", 2)
	if len(parts) != 2 {
		return "", errors.Wrapf(ErrInvalid, "device.function %q", devfunID)
	}

	var nums [3]uint64
	for i, s := range []string{busID, parts[0], parts[1]} {
		n, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return "", errors.Wrapf(ErrInvalid, "%q: %v", Join(busID, devfunID), err)
		}
		nums[i] = n
	}

	return fmt.Sprintf("pci0:%d:%d:%d", nums[0], nums[1], nums[2]), nil
}
