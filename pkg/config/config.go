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

// Package config provides host SR-IOV provisioning config
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/pciaddr"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/yamlhelper"
)

// Duration is a time.Duration read from a duration string, e.g. "15s"
type Duration time.Duration

// UnmarshalJSON parses a duration string
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrapf(err, "duration must be a string: %s", data)
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration: %s", s)
	}
	*d = Duration(duration)

	return nil
}

// MarshalJSON formats d as a duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config contains host settings and the desired state of its physical functions
type Config struct {
	HostName          string                       `yaml:"hostName"`
	OS                string                       `yaml:"os"`
	Prompt            string                       `yaml:"prompt"`
	CommandTimeout    Duration                     `yaml:"commandTimeout"`
	SettleDelay       Duration                     `yaml:"settleDelay"`
	DriverTable       string                       `yaml:"driverTable"`
	PhysicalFunctions map[string]*PhysicalFunction `yaml:"physicalFunctions"`
}

// PCIAddresses returns the physical function addresses in sorted order
func (c *Config) PCIAddresses() []string {
	addrs := make([]string, 0, len(c.PhysicalFunctions))
	for pciAddr := range c.PhysicalFunctions {
		addrs = append(addrs, pciAddr)
	}
	sort.Strings(addrs)
	return addrs
}

func (c *Config) String() string {
	sb := &strings.Builder{}
	_, _ = sb.WriteString("&{")

	_, _ = sb.WriteString("HostName:")
	_, _ = sb.WriteString(c.HostName)

	_, _ = sb.WriteString(" OS:")
	_, _ = sb.WriteString(c.OS)

	_, _ = sb.WriteString(" CommandTimeout:")
	_, _ = sb.WriteString(time.Duration(c.CommandTimeout).String())

	_, _ = sb.WriteString(" SettleDelay:")
	_, _ = sb.WriteString(time.Duration(c.SettleDelay).String())

	if c.DriverTable != "" {
		_, _ = sb.WriteString(" DriverTable:")
		_, _ = sb.WriteString(c.DriverTable)
	}

	_, _ = sb.WriteString(" PhysicalFunctions:map[")
	var strs []string
	for _, pciAddr := range c.PCIAddresses() {
		strs = append(strs, fmt.Sprintf("%s:%+v", pciAddr, c.PhysicalFunctions[pciAddr]))
	}
	_, _ = sb.WriteString(strings.Join(strs, " "))
	_, _ = sb.WriteString("]")

	_, _ = sb.WriteString("}")
	return sb.String()
}

// PhysicalFunction contains the desired drivers and VF count of a physical function
type PhysicalFunction struct {
	PFDriver string `yaml:"pfDriver"`
	VFDriver string `yaml:"vfDriver"`
	VFCount  int    `yaml:"vfCount"`
}

// ReadConfig reads configuration from file
func ReadConfig(ctx context.Context, configFile string) (*Config, error) {
	logger := log.FromContext(ctx).WithField("Config", "ReadConfig")

	cfg := &Config{}
	if err := yamlhelper.UnmarshalFile(configFile, cfg); err != nil {
		return nil, err
	}

	if cfg.OS == "" {
		cfg.OS = hostsession.OSLinux
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Infof("unmarshalled Config: %+v", cfg)

	return cfg, nil
}

// Validate checks c for malformed addresses, unknown OS and invalid VF settings
func (c *Config) Validate() error {
	switch c.OS {
	case hostsession.OSLinux, hostsession.OSFreeBSD:
	default:
		return errors.Errorf("unsupported OS: %q", c.OS)
	}

	if c.CommandTimeout < 0 {
		return errors.Errorf("negative commandTimeout: %v", time.Duration(c.CommandTimeout))
	}
	if c.SettleDelay < 0 {
		return errors.Errorf("negative settleDelay: %v", time.Duration(c.SettleDelay))
	}

	for pciAddr, pfCfg := range c.PhysicalFunctions {
		if _, _, err := pciaddr.Split(pciAddr); err != nil {
			return err
		}
		if pfCfg == nil {
			return errors.Errorf("%s has no settings", pciAddr)
		}
		if pfCfg.VFCount < 0 {
			return errors.Errorf("%s has negative vfCount: %d", pciAddr, pfCfg.VFCount)
		}
		if pfCfg.VFDriver != "" && pfCfg.VFCount == 0 {
			return errors.Errorf("%s has vfDriver set with no VFs", pciAddr)
		}
	}

	return nil
}
