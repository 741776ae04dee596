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

// Package yamlhelper provides helpers for reading YAML files
package yamlhelper

import (
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// UnmarshalFile reads filename and unmarshals its YAML content into v
func UnmarshalFile(filename string, v interface{}) error {
	rawBytes, err := os.ReadFile(filepath.Clean(filename))
	if err != nil {
		return errors.Wrapf(err, "error reading file: %v", filename)
	}

	if err = yaml.Unmarshal(rawBytes, v); err != nil {
		return errors.Wrapf(err, "error unmarshalling yaml: %s", rawBytes)
	}

	return nil
}
