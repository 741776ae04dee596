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

// Package capability provides a registry of OS- and driver-specific procedures.
//
// Procedures are keyed by (operation, os, driver). Resolve returns the procedure
// registered for the exact driver and falls back to the one registered for Generic.
// New hardware support is added by registering a procedure, never by changing callers.
package capability

import (
	"fmt"
	"strings"

	"github.com/edwarnicke/genericsync"
	"github.com/pkg/errors"
)

// Generic is the driver name of the fallback procedure
const Generic = "generic"

var (
	// ErrNotFound is returned when neither a specific nor a generic procedure is registered
	ErrNotFound = errors.New("capability not found")
	// ErrInvalidProcedure is returned when the registered procedure has an unexpected type
	ErrInvalidProcedure = errors.New("invalid capability procedure")
)

// Key identifies a registered procedure
type Key struct {
	Operation string
	OS        string
	Driver    string
}

// NewKey returns a Key with the driver name normalized
func NewKey(operation, osType, driver string) Key {
	return Key{
		Operation: operation,
		OS:        osType,
		Driver:    NormalizeDriver(driver),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Operation, k.OS, k.Driver)
}

// NormalizeDriver maps kernel driver names to procedure identifiers: "pci-stub" -> "pci_stub"
func NormalizeDriver(driver string) string {
	return strings.ReplaceAll(driver, "-", "_")
}

// Registry is a flat (operation, os, driver) -> procedure map
type Registry struct {
	procedures genericsync.Map[Key, interface{}]
}

// NewRegistry returns a new empty Registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores procedure for (operation, os, driver), replacing any previous one
func (r *Registry) Register(operation, osType, driver string, procedure interface{}) {
	r.procedures.Store(NewKey(operation, osType, driver), procedure)
}

// Lookup returns the procedure registered for exactly (operation, os, driver)
func (r *Registry) Lookup(operation, osType, driver string) (interface{}, bool) {
	return r.procedures.Load(NewKey(operation, osType, driver))
}

// Keys returns all registered keys
func (r *Registry) Keys() []Key {
	var keys []Key
	r.procedures.Range(func(key Key, _ interface{}) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Resolve returns the procedure for (operation, os, driver), falling back to
// (operation, os, Generic). An empty driver resolves the generic procedure.
// A registered procedure of a type other than P is an error, never a reason to fall back.
func Resolve[P any](r *Registry, operation, osType, driver string) (P, error) {
	if driver != "" {
		if p, ok, err := lookup[P](r, operation, osType, driver); ok || err != nil {
			return p, err
		}
	}
	if p, ok, err := lookup[P](r, operation, osType, Generic); ok || err != nil {
		return p, err
	}

	var zero P
	return zero, errors.Wrapf(ErrNotFound, "%v", NewKey(operation, osType, driver))
}

// ResolveExact returns the procedure for exactly (operation, os, driver) without fallback
func ResolveExact[P any](r *Registry, operation, osType, driver string) (P, error) {
	if p, ok, err := lookup[P](r, operation, osType, driver); ok || err != nil {
		return p, err
	}

	var zero P
	return zero, errors.Wrapf(ErrNotFound, "%v", NewKey(operation, osType, driver))
}

func lookup[P any](r *Registry, operation, osType, driver string) (p P, ok bool, err error) {
	v, ok := r.Lookup(operation, osType, driver)
	if !ok {
		return p, false, nil
	}
	if p, ok = v.(P); !ok {
		return p, false, errors.Wrapf(ErrInvalidProcedure, "%v: %T", NewKey(operation, osType, driver), v)
	}
	return p, true, nil
}
