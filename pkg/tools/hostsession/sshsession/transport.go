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

// Package sshsession provides a hostsession.Transport running commands over SSH
package sshsession

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
)

const (
	defaultPort        = "22"
	defaultDialTimeout = 10 * time.Second
	rootUser           = "root"
)

// Config contains SSH connection settings
type Config struct {
	Address    string
	User       string
	Password   string
	PrivateKey []byte
	// HostKey is the expected server key. Required unless InsecureIgnoreHostKey is set.
	HostKey               ssh.PublicKey
	InsecureIgnoreHostKey bool
	DialTimeout           time.Duration
}

// Transport runs each command in a new SSH session over one client connection
type Transport struct {
	client *ssh.Client
	prompt string
}

// Dial connects to cfg.Address and returns a new Transport
func Dial(ctx context.Context, cfg *Config) (*Transport, error) {
	clientConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := cfg.Address
	if _, _, err = net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}

	dialer := &net.Dialer{Timeout: clientConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "SSH handshake with %s failed", addr)
	}

	prompt := hostsession.UserPrompt
	if cfg.User == rootUser {
		prompt = hostsession.RootPrompt
	}

	return &Transport{
		client: ssh.NewClient(c, chans, reqs),
		prompt: prompt,
	}, nil
}

func clientConfig(cfg *Config) (*ssh.ClientConfig, error) {
	if cfg.Address == "" {
		return nil, errors.New("SSH address is not set")
	}
	if cfg.User == "" {
		return nil, errors.New("SSH user is not set")
	}

	var auth []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, errors.Wrap(err, "invalid SSH private key")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.Errorf("no SSH auth method set for %s@%s", cfg.User, cfg.Address)
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch {
	case cfg.HostKey != nil:
		hostKeyCallback = ssh.FixedHostKey(cfg.HostKey)
	case cfg.InsecureIgnoreHostKey:
		// #nosec G106
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	default:
		return nil, errors.Errorf("no SSH host key set for %s", cfg.Address)
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// Run runs command in a new SSH session. On ctx done the remote command is killed.
func (t *Transport) Run(ctx context.Context, command string) (string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "failed to open SSH session")
	}
	defer func() { _ = session.Close() }()

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	if err = session.Start(command); err != nil {
		return "", errors.Wrapf(err, "failed to start: %s", command)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- session.Wait()
	}()

	select {
	case err = <-waitCh:
		if err != nil {
			return buf.String(), errors.Wrapf(err, "%s", buf.String())
		}
		return buf.String(), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-waitCh
		return buf.String(), ctx.Err()
	}
}

// Prompt returns the prompt of the remote shell
func (t *Transport) Prompt() string {
	return t.prompt
}

// Close closes the SSH connection
func (t *Transport) Close() error {
	return t.client.Close()
}
