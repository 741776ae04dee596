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

// Package local provides a hostsession.Transport running commands on the local host
package local

import (
	"os"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
)

const defaultShell = "/bin/sh"

// Transport runs every command in a new shell process
type Transport struct {
	shell  string
	prompt string
}

// Option is an option pattern for New
type Option func(t *Transport)

// WithShell sets the shell used to run commands
func WithShell(shell string) Option {
	return func(t *Transport) {
		t.shell = shell
	}
}

// WithPrompt overrides the prompt reported to the session
func WithPrompt(prompt string) Option {
	return func(t *Transport) {
		t.prompt = prompt
	}
}

// New returns a new local Transport
func New(opts ...Option) *Transport {
	t := &Transport{
		shell:  defaultShell,
		prompt: hostsession.UserPrompt,
	}
	if os.Geteuid() == 0 {
		t.prompt = hostsession.RootPrompt
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Prompt returns the prompt of the local shell
func (t *Transport) Prompt() string {
	return t.prompt
}

// Close does nothing
func (t *Transport) Close() error {
	return nil
}
