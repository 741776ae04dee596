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

// Package host provides bus-wide PCI queries on a host reached through a command session
package host

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

const (
	defaultTimeout = 15 * time.Second
	noDriver       = "none"
	unknownNUMA    = -1
)

var (
	ueventDriver = regexp.MustCompile(`(?m)^DRIVER=(\S+)`)
	pciconfChip = regexp.MustCompile(`chip=0x([0-9a-f]{4})([0-9a-f]{4})`)
	pciconfIDs  = regexp.MustCompile(`vendor=0x([0-9a-f]{4})\s+device=0x([0-9a-f]{4})`)
)

// ErrUnsupportedOS is returned for hosts running an OS without PCI query support
var ErrUnsupportedOS = errors.New("unsupported OS type")

// Session is a hostsession.Session interface
type Session interface {
	Execute(ctx context.Context, command, expected string, timeout time.Duration) (string, error)
	OSType() string
	HostName() string
}

// Host runs PCI queries through a Session
type Host struct {
	session Session
	prompt  string
	timeout time.Duration
}

// Option is an option pattern for New
type Option func(h *Host)

// WithPrompt sets the prompt expected after each query
func WithPrompt(prompt string) Option {
	return func(h *Host) {
		h.prompt = prompt
	}
}

// WithTimeout sets the timeout of each query
func WithTimeout(timeout time.Duration) Option {
	return func(h *Host) {
		h.timeout = timeout
	}
}

// New returns a new Host
func New(session Session, opts ...Option) *Host {
	h := &Host{
		session: session,
		prompt:  hostsession.RootPrompt,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute runs command through the session
func (h *Host) Execute(ctx context.Context, command, expected string, timeout time.Duration) (string, error) {
	return h.session.Execute(ctx, command, expected, timeout)
}

// OSType returns the host OS tag
func (h *Host) OSType() string {
	return h.session.OSType()
}

// HostName returns the host name
func (h *Host) HostName() string {
	return h.session.HostName()
}

// PCIDeviceDriver returns the driver bound to the device, "" if there is no one
func (h *Host) PCIDeviceDriver(ctx context.Context, busID, devfunID string) (string, error) {
	switch h.OSType() {
	case hostsession.OSLinux:
		out, err := h.query(ctx, "cat %s/uevent", pciaddr.DevicePath(busID, devfunID))
		if err != nil {
			return "", err
		}
		if match := ueventDriver.FindStringSubmatch(out); match != nil {
			return match[1], nil
		}
		return "", nil
	case hostsession.OSFreeBSD:
		line, err := h.pciconfLine(ctx, busID, devfunID)
		if err != nil {
			return "", err
		}
		driver := strings.TrimRight(line[:strings.Index(line, "@")], "0123456789")
		if driver == noDriver {
			return "", nil
		}
		return driver, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedOS, "%s", h.OSType())
	}
}

// NUMANode returns the NUMA node of the device, -1 if unknown
func (h *Host) NUMANode(ctx context.Context, busID, devfunID string) (int, error) {
	if h.OSType() != hostsession.OSLinux {
		return unknownNUMA, nil
	}

	out, err := h.query(ctx, "cat %s/numa_node", pciaddr.DevicePath(busID, devfunID))
	if err != nil {
		return unknownNUMA, err
	}

	numa, err := strconv.Atoi(out)
	if err != nil {
		return unknownNUMA, errors.Wrapf(err, "invalid NUMA node for the device: %v", pciaddr.Join(busID, devfunID))
	}
	return numa, nil
}

// PCIDeviceID returns the "vendor:device" ID of the device, e.g. "8086:10fb"
func (h *Host) PCIDeviceID(ctx context.Context, busID, devfunID string) (string, error) {
	switch h.OSType() {
	case hostsession.OSLinux:
		devicePath := pciaddr.DevicePath(busID, devfunID)
		vendor, err := h.query(ctx, "cat %s/vendor", devicePath)
		if err != nil {
			return "", err
		}
		device, err := h.query(ctx, "cat %s/device", devicePath)
		if err != nil {
			return "", err
		}
		return strings.TrimPrefix(vendor, "0x") + ":" + strings.TrimPrefix(device, "0x"), nil
	case hostsession.OSFreeBSD:
		line, err := h.pciconfLine(ctx, busID, devfunID)
		if err != nil {
			return "", err
		}
		if match := pciconfIDs.FindStringSubmatch(line); match != nil {
			return match[1] + ":" + match[2], nil
		}
		if match := pciconfChip.FindStringSubmatch(line); match != nil {
			return match[2] + ":" + match[1], nil
		}
		return "", errors.Errorf("no vendor/device ID for the device: %v", pciaddr.Join(busID, devfunID))
	default:
		return "", errors.Wrapf(ErrUnsupportedOS, "%s", h.OSType())
	}
}

func (h *Host) pciconfLine(ctx context.Context, busID, devfunID string) (string, error) {
	selector, err := pciaddr.FreeBSDSelector(busID, devfunID)
	if err != nil {
		return "", err
	}

	out, err := h.query(ctx, "pciconf -l")
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "@"); idx > 0 && strings.HasPrefix(line[idx+1:], selector+":") {
			return line, nil
		}
	}
	return "", errors.Errorf("PCI device doesn't exist: %v", selector)
}

func (h *Host) query(ctx context.Context, format string, args ...interface{}) (string, error) {
	command := fmt.Sprintf(format, args...)
	log.FromContext(ctx).WithField("host", "query").Debugf("%s: %s", h.HostName(), command)
	return h.session.Execute(ctx, command, regexp.QuoteMeta(h.prompt), h.timeout)
}
