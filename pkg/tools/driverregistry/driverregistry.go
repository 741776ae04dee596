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

// Package driverregistry maps PCI vendor:device IDs to kernel driver names
package driverregistry

import (
	"context"
	_ "embed" // default driver table
	"strings"
	"sync"

	"github.com/ghodss/yaml"
	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/yamlhelper"
)

//go:embed drivers.yaml
var defaultTable []byte

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

type table struct {
	Drivers map[string]string `json:"drivers"`
}

// Registry is a read-only vendor:device -> driver lookup table
type Registry struct {
	drivers map[string]string
}

// New returns a new Registry for the given vendor:device -> driver table
func New(drivers map[string]string) *Registry {
	r := &Registry{
		drivers: make(map[string]string, len(drivers)),
	}
	for id, driver := range drivers {
		r.drivers[normalize(id)] = driver
	}
	return r
}

// Default returns the Registry built from the embedded driver table
func Default() *Registry {
	defaultOnce.Do(func() {
		t := &table{}
		if err := yaml.Unmarshal(defaultTable, t); err != nil {
			panic(errors.Wrap(err, "invalid embedded driver table"))
		}
		defaultRegistry = New(t.Drivers)
	})
	return defaultRegistry
}

// Load returns the default Registry overridden by the entries from the given YAML file
func Load(ctx context.Context, filename string) (*Registry, error) {
	logger := log.FromContext(ctx).WithField("driverRegistry", "Load")

	t := &table{}
	if err := yamlhelper.UnmarshalFile(filename, t); err != nil {
		return nil, err
	}

	drivers := make(map[string]string, len(Default().drivers)+len(t.Drivers))
	for id, driver := range Default().drivers {
		drivers[id] = driver
	}
	for id, driver := range t.Drivers {
		if driver == "" {
			return nil, errors.Errorf("%s has no driver set", id)
		}
		drivers[normalize(id)] = driver
	}

	logger.Infof("loaded %d driver entries from %s", len(t.Drivers), filename)

	return New(drivers), nil
}

// Lookup returns the driver name for vendorDeviceID ("8086:10fb"), "" if unknown
func (r *Registry) Lookup(vendorDeviceID string) string {
	return r.drivers[normalize(vendorDeviceID)]
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
