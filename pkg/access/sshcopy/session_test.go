/*
 * SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.
 * SPDX-License-Identifier: Apache-2.0
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sshcopy

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/common/credential"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// startServer runs an SSH server with an sftp subsystem on a loopback port.
func startServer(t *testing.T) int {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %s", c.User())
		},
	}
	config.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, config)
		}
	}()

	return l.Addr().(*net.TCPAddr).Port
}

func serveConn(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}

		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := false
				if req.Type == "subsystem" && len(req.Payload) > 4 {
					n := binary.BigEndian.Uint32(req.Payload[:4])
					ok = string(req.Payload[4:4+n]) == "sftp"
				}
				_ = req.Reply(ok, nil)
			}
		}(requests)

		server, err := sftp.NewServer(ch)
		if err != nil {
			_ = ch.Close()
			continue
		}
		go func() {
			_ = server.Serve()
			_ = server.Close()
		}()
	}
}

func newTarget(port int, password string) *target.Target {
	return &target.Target{
		Host:       "127.0.0.1:" + strconv.Itoa(port),
		Credential: *credential.New("admin", password),
		Transport:  target.TransportSSH,
	}
}

func TestCopy(t *testing.T) {
	port := startServer(t)

	local := filepath.Join(t.TempDir(), "nvos.bin")
	require.NoError(t, os.WriteFile(local, []byte("switch-image"), 0o600))
	remoteDir := filepath.Join(t.TempDir(), "fw-images", "nvos")

	s := New(newTarget(port, "secret"), optsForTest())
	require.NoError(t, s.IsReachable(context.Background()))

	resp, err := s.UploadFile(context.Background(), remoteDir, local)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, filepath.Join(remoteDir, "nvos.bin"), resp.String("Path"))

	data, err := os.ReadFile(filepath.Join(remoteDir, "nvos.bin"))
	require.NoError(t, err)
	assert.Equal(t, "switch-image", string(data))
}

func TestAuthFailure(t *testing.T) {
	port := startServer(t)

	err := New(newTarget(port, "wrong"), optsForTest()).IsReachable(context.Background())
	require.Error(t, err)
	assert.True(t, fwerr.IsAuthentication(err))
}

func TestUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	err = New(newTarget(port, "secret"), optsForTest()).IsReachable(context.Background())
	require.Error(t, err)
	assert.True(t, fwerr.IsConnectivity(err))
}

func TestUnsupportedOperations(t *testing.T) {
	s := New(newTarget(1, "x"), optsForTest())

	_, err := s.Dispatch(context.Background(), http.MethodGet, "/", nil)
	assert.True(t, fwerr.IsProtocol(err))
	_, err = s.PollJob(context.Background(), "1")
	assert.True(t, fwerr.IsProtocol(err))
	_, err = s.UploadMultipart(context.Background(), "/", "f", nil)
	assert.True(t, fwerr.IsProtocol(err))
}

func TestRemoteDir(t *testing.T) {
	assert.Equal(t, "/host/fw-images/nvos", RemoteDir("NVOS"))
	assert.Equal(t, "/host/fw-images/cpld1", RemoteDir(" CPLD1 "))
	assert.Equal(t, "10.0.0.1:22", withDefaultPort("10.0.0.1"))
	assert.Equal(t, "10.0.0.1:2222", withDefaultPort("10.0.0.1:2222"))
}

func optsForTest() access.Options {
	return access.Options{ConnectTimeout: 5 * time.Second}
}
