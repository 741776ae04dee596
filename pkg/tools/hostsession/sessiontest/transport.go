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

// Package sessiontest provides a scripted hostsession.Transport for tests
package sessiontest

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
)

// Handler produces the output for a command
type Handler func() (string, error)

// Transport replies to known commands with scripted output and records every command it runs.
// Unknown commands fail.
type Transport struct {
	lock     sync.Mutex
	prompt   string
	handlers map[string]Handler
	commands []string
	closed   bool
}

// New returns a new Transport printing the root prompt
func New() *Transport {
	return &Transport{
		prompt:   hostsession.RootPrompt,
		handlers: map[string]Handler{},
	}
}

// Set replies output to command
func (t *Transport) Set(command, output string) *Transport {
	return t.Handle(command, func() (string, error) {
		return output, nil
	})
}

// SetError fails command with err
func (t *Transport) SetError(command string, err error) *Transport {
	return t.Handle(command, func() (string, error) {
		return "", err
	})
}

// Handle replies to command with the handler result
func (t *Transport) Handle(command string, handler Handler) *Transport {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.handlers[command] = handler
	return t
}

// Run records command and returns the scripted reply. Like a real transport it gives up once ctx is done.
func (t *Transport) Run(ctx context.Context, command string) (string, error) {
	t.lock.Lock()
	t.commands = append(t.commands, command)
	handler, ok := t.handlers[command]
	t.lock.Unlock()

	if !ok {
		return "", errors.Errorf("unexpected command: %s", command)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		output string
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		output, err := handler()
		resultCh <- result{output: output, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.output, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Commands returns the commands run so far
func (t *Transport) Commands() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.commands...)
}

// Reset forgets the recorded commands
func (t *Transport) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.commands = nil
}

// Prompt returns the root prompt
func (t *Transport) Prompt() string {
	return t.prompt
}

// Close marks t closed
func (t *Transport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.closed = true
	return nil
}

// Closed returns true if Close was called
func (t *Transport) Closed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.closed
}
