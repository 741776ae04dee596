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

// Package provision brings the physical functions of a host to the state described by config.Config
package provision

import (
	"context"
	"time"

	"github.com/edwarnicke/genericsync"
	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/networkservicemesh/sdk-netdevice/pkg/config"
	"github.com/networkservicemesh/sdk-netdevice/pkg/host"
	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/driverregistry"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
)

// Plan is the set of physical functions provisioned by Apply
type Plan struct {
	devices genericsync.Map[string, *netdevice.Device]
	order   []string
}

// NewHost returns a host.Host over session using the prompt and command timeout from cfg
func NewHost(session host.Session, cfg *config.Config) *host.Host {
	var opts []host.Option
	if cfg.Prompt != "" {
		opts = append(opts, host.WithPrompt(cfg.Prompt))
	}
	if cfg.CommandTimeout > 0 {
		opts = append(opts, host.WithTimeout(time.Duration(cfg.CommandTimeout)))
	}
	return host.New(session, opts...)
}

// Apply provisions every physical function from cfg in PCI address order: binds the PF driver,
// generates the VFs and binds the VF driver. opts are applied after the options derived from cfg.
// The prompt and command timeout from cfg only reach the device commands, host queries use
// whatever host was built with, see NewHost.
func Apply(ctx context.Context, h netdevice.Host, cfg *config.Config, opts ...netdevice.Option) (*Plan, error) {
	logger := log.FromContext(ctx).WithField("provision", "Apply")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options, err := deviceOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	options = append(options, opts...)

	p := &Plan{}
	for _, pciAddr := range cfg.PCIAddresses() {
		busID, devfunID, err := pciaddr.Split(pciAddr)
		if err != nil {
			return nil, err
		}

		pf, err := netdevice.New(ctx, h, busID, devfunID, options...)
		if err != nil {
			return nil, err
		}

		if err := apply(ctx, pf, cfg.PhysicalFunctions[pciAddr]); err != nil {
			return nil, errors.Wrapf(err, "failed to provision %s", pciAddr)
		}
		logger.Infof("provisioned %s: VFs %v", pf.PCIAddress(), pf.TrackedVFs())

		p.devices.Store(pf.PCIAddress(), pf)
		p.order = append(p.order, pf.PCIAddress())
	}

	return p, nil
}

// Device returns the provisioned physical function for the given short or long PCI address
func (p *Plan) Device(pciAddr string) (*netdevice.Device, bool) {
	busID, devfunID, err := pciaddr.Split(pciAddr)
	if err != nil {
		return nil, false
	}
	return p.devices.Load(pciaddr.Join(busID, devfunID))
}

// Devices returns the provisioned physical functions in PCI address order
func (p *Plan) Devices() []*netdevice.Device {
	var devices []*netdevice.Device
	for _, pciAddr := range p.order {
		if pf, ok := p.devices.Load(pciAddr); ok {
			devices = append(devices, pf)
		}
	}
	return devices
}

// Teardown destroys the VFs of every provisioned physical function
func (p *Plan) Teardown(ctx context.Context) error {
	var err error
	for _, pf := range p.Devices() {
		if len(pf.TrackedVFs()) == 0 {
			continue
		}
		err = multierr.Append(err, errors.Wrapf(pf.DestroyVFs(ctx), "failed to destroy VFs of %s", pf.PCIAddress()))
	}
	return err
}

func apply(ctx context.Context, pf *netdevice.Device, pfCfg *config.PhysicalFunction) error {
	if pfCfg.PFDriver != "" {
		current, err := pf.CurrentDriver(ctx)
		if err != nil {
			return err
		}
		if current != pfCfg.PFDriver {
			if err := pf.BindDriver(ctx, pfCfg.PFDriver); err != nil {
				return err
			}
		}
	}

	if pfCfg.VFCount == 0 {
		return nil
	}

	vfs, err := pf.VFAddresses(ctx)
	if err != nil {
		return err
	}
	// sriov_numvfs rejects changing a non-zero count to another non-zero count
	if len(vfs) != 0 && len(vfs) != pfCfg.VFCount {
		if err := pf.DestroyVFs(ctx); err != nil {
			return err
		}
	}

	if err := pf.GenerateVFs(ctx, pfCfg.VFCount); err != nil {
		return err
	}
	if len(pf.TrackedVFs()) == 0 {
		return errors.Wrapf(netdevice.ErrNoVFsPresent, "no driver bound to %s", pf.PCIAddress())
	}

	if pfCfg.VFDriver != "" {
		return pf.BindVFDriver(ctx, "", pfCfg.VFDriver)
	}
	return nil
}

func deviceOptions(ctx context.Context, cfg *config.Config) ([]netdevice.Option, error) {
	var opts []netdevice.Option
	if cfg.CommandTimeout > 0 {
		opts = append(opts, netdevice.WithTimeout(time.Duration(cfg.CommandTimeout)))
	}
	if cfg.SettleDelay > 0 {
		opts = append(opts, netdevice.WithSettleDelay(time.Duration(cfg.SettleDelay)))
	}
	if cfg.Prompt != "" {
		opts = append(opts, netdevice.WithPrompt(cfg.Prompt))
	}
	if cfg.DriverTable != "" {
		drivers, err := driverregistry.Load(ctx, cfg.DriverTable)
		if err != nil {
			return nil, err
		}
		opts = append(opts, netdevice.WithDriverRegistry(drivers))
	}
	return opts, nil
}
