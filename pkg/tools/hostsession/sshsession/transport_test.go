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

package sshsession_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession/sshsession"
)

func TestDial_InvalidConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	for name, cfg := range map[string]*sshsession.Config{
		"no address":  {User: "root", Password: "pass", InsecureIgnoreHostKey: true},
		"no user":     {Address: "127.0.0.1", Password: "pass", InsecureIgnoreHostKey: true},
		"no auth":     {Address: "127.0.0.1", User: "root", InsecureIgnoreHostKey: true},
		"no host key": {Address: "127.0.0.1", User: "root", Password: "pass"},
		"invalid key": {Address: "127.0.0.1", User: "root", PrivateKey: []byte("key"), InsecureIgnoreHostKey: true},
	} {
		_, err := sshsession.Dial(context.Background(), cfg)
		require.Error(t, err, name)
	}
}

func TestDial_ConnectionRefused(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = sshsession.Dial(context.Background(), &sshsession.Config{
		Address:               addr,
		User:                  "root",
		Password:              "pass",
		InsecureIgnoreHostKey: true,
		DialTimeout:           time.Second,
	})
	require.Error(t, err)
}

func dial(t *testing.T, s *server) *sshsession.Transport {
	transport, err := sshsession.Dial(context.Background(), &sshsession.Config{
		Address:     s.addr(),
		User:        serverUser,
		Password:    serverPassword,
		HostKey:     s.hostKey.PublicKey(),
		DialTimeout: time.Second,
	})
	require.NoError(t, err)
	return transport
}

func TestTransport_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newServer(t)
	defer s.close()

	transport := dial(t, s)
	defer func() { _ = transport.Close() }()

	require.Equal(t, hostsession.RootPrompt, transport.Prompt())

	out, err := transport.Run(context.Background(), numVFsCommand)
	require.NoError(t, err)
	require.Equal(t, "4\n", out)

	session := hostsession.NewSession("dut", hostsession.OSLinux, transport)
	out, err = session.Execute(context.Background(), numVFsCommand, "# ", time.Second)
	require.NoError(t, err)
	require.Equal(t, "4", out)
}

func TestTransport_Run_ExitStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newServer(t)
	defer s.close()

	transport := dial(t, s)
	defer func() { _ = transport.Close() }()

	out, err := transport.Run(context.Background(), failCommand)
	require.Error(t, err)
	require.Contains(t, out, "No such device")

	_, err = transport.Run(context.Background(), "unknown")
	require.Error(t, err)
}

func TestTransport_Run_ContextDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newServer(t)
	defer s.close()

	transport := dial(t, s)
	defer func() { _ = transport.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := transport.Run(ctx, hangCommand)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	out, err := transport.Run(context.Background(), numVFsCommand)
	require.NoError(t, err)
	require.Equal(t, "4\n", out)
}

func TestDial_WrongHostKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newServer(t)
	defer s.close()

	other := newServer(t)
	defer other.close()

	_, err := sshsession.Dial(context.Background(), &sshsession.Config{
		Address:  s.addr(),
		User:     serverUser,
		Password: serverPassword,
		HostKey:  other.hostKey.PublicKey(),
	})
	require.Error(t, err)
}
