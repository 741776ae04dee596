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

// Package hostsession provides serialized command/response exchanges with a host
package hostsession

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/edwarnicke/serialize"
	"github.com/google/uuid"
	"github.com/networkservicemesh/sdk/pkg/tools/log"
	"github.com/pkg/errors"
)

const (
	// OSLinux is the Linux OS tag
	OSLinux = "linux"
	// OSFreeBSD is the FreeBSD OS tag
	OSFreeBSD = "freebsd"

	// RootPrompt is the prompt printed by a root shell
	RootPrompt = "# "
	// UserPrompt is the prompt printed by a non-root shell
	UserPrompt = "$ "
)

var (
	// ErrCommand is matched by every error returned from Session.Execute
	ErrCommand = errors.New("host command failed")
	// ErrTimeout is returned when the command does not complete within the timeout
	ErrTimeout = errors.New("host command timed out")
)

// Transport runs a single command on a host
type Transport interface {
	// Run runs command and returns its combined output. It must return once ctx is done.
	Run(ctx context.Context, command string) (string, error)
	// Prompt returns the prompt the host shell prints after a command completes
	Prompt() string
	// Close releases the transport
	Close() error
}

// CommandError describes a failed exchange
type CommandError struct {
	Host    string
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%v: %s: %q: %v", ErrCommand, e.Host, e.Command, e.Err)
}

// Is reports whether target is ErrCommand
func (e *CommandError) Is(target error) bool {
	return target == ErrCommand
}

// Unwrap returns the underlying error
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Session is a single request/response channel to a host.
// Exchanges are serialized: there is at most one outstanding command per Session.
type Session struct {
	id        string
	hostName  string
	osType    string
	transport Transport
	executor  serialize.Executor
}

// NewSession returns a new Session to hostName running osType over transport
func NewSession(hostName, osType string, transport Transport) *Session {
	return &Session{
		id:        uuid.New().String(),
		hostName:  hostName,
		osType:    osType,
		transport: transport,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// HostName returns the host name
func (s *Session) HostName() string {
	return s.hostName
}

// OSType returns the host OS tag
func (s *Session) OSType() string {
	return s.osType
}

// Execute runs command and waits for expected to appear in the output followed by the prompt.
// It returns the output with the trailing prompt and white space removed.
// A timeout is terminal: the command is killed and ErrTimeout is returned.
func (s *Session) Execute(ctx context.Context, command, expected string, timeout time.Duration) (string, error) {
	logger := log.FromContext(ctx).WithField("hostSession", "Execute").
		WithField("host", s.hostName).
		WithField("session", s.id)

	pattern, err := regexp.Compile(expected)
	if err != nil {
		return "", s.commandError(command, "", errors.Wrapf(err, "invalid expected pattern: %q", expected))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var output string
	var timedOut bool
	<-s.executor.AsyncExec(func() {
		if err = ctx.Err(); err == nil {
			logger.Debugf("> %s", command)
			output, err = s.transport.Run(ctx, command)
			logger.Debugf("< %s", output)
		}
		// a command completed before the deadline keeps its result
		timedOut = err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
	})

	switch {
	case timedOut:
		return "", s.commandError(command, output, errors.Wrapf(ErrTimeout, "after %v", timeout))
	case err != nil:
		return "", s.commandError(command, output, err)
	}

	transcript := output + s.transport.Prompt()
	if !pattern.MatchString(transcript) {
		return "", s.commandError(command, output, errors.Errorf("expected %q not found", expected))
	}

	return strings.TrimSpace(output), nil
}

// Close closes the underlying transport
func (s *Session) Close() error {
	return s.transport.Close()
}

func (s *Session) commandError(command, output string, err error) error {
	return &CommandError{
		Host:    s.hostName,
		Command: command,
		Output:  output,
		Err:     err,
	}
}
