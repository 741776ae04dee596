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
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConstruction is matched by every error returned from New and NewVirtualFunction
	ErrConstruction = errors.New("failed to construct device")
	// ErrNoDriverSpecified is returned when binding without an explicit and a default driver
	ErrNoDriverSpecified = errors.New("no driver specified")
	// ErrNoVFsPresent is returned for VF operations with no known VF addresses
	ErrNoVFsPresent = errors.New("no VFs present")
	// ErrNotPhysicalFunction is returned for SR-IOV operations on a VF
	ErrNotPhysicalFunction = errors.New("device is not a physical function")
	// ErrParse is returned when an expected value is missing from a command output
	ErrParse = errors.New("unexpected command output")
)

type constructionError struct {
	pciAddress string
	err        error
}

func (e *constructionError) Error() string {
	return fmt.Sprintf("%v %s: %v", ErrConstruction, e.pciAddress, e.err)
}

func (e *constructionError) Is(target error) bool {
	return target == ErrConstruction
}

func (e *constructionError) Unwrap() error {
	return e.err
}
