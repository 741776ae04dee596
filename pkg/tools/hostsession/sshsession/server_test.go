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
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	serverUser     = "root"
	serverPassword = "secret"

	numVFsCommand = "cat /sys/bus/pci/devices/0000:04:00.0/sriov_numvfs"
	failCommand   = "echo 0000:04:00.0 > /sys/bus/pci/drivers/vfio-pci/bind"
	hangCommand   = "sleep 3600"
)

// server is an in-process SSH server replying to a fixed set of exec requests
type server struct {
	listener net.Listener
	hostKey  ssh.Signer
	wg       sync.WaitGroup
}

func newServer(t *testing.T) *server {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostKey, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == serverUser && string(password) == serverPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &server{
		listener: listener,
		hostKey:  hostKey,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveConn(conn, cfg)
			}()
		}
	}()

	return s
}

func (s *server) addr() string {
	return s.listener.Addr().String()
}

func (s *server) close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *server) serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	serverConn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() { _ = serverConn.Close() }()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ssh.DiscardRequests(reqs)
	}()

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, channelReqs, err := newChannel.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			serveSession(channel, channelReqs)
		}()
	}
}

func serveSession(channel ssh.Channel, reqs <-chan *ssh.Request) {
	defer func() { _ = channel.Close() }()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)

			switch payload.Command {
			case numVFsCommand:
				_, _ = channel.Write([]byte("4\n"))
				exit(channel, 0)
				return
			case failCommand:
				_, _ = channel.Stderr().Write([]byte("sh: write error: No such device\n"))
				exit(channel, 1)
				return
			case hangCommand:
				// runs until a signal arrives or the client closes the channel
			default:
				exit(channel, 127)
				return
			}
		case "signal":
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func exit(channel ssh.Channel, status uint32) {
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}
