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

// Package sshcopy pushes firmware files to controllers over SSH/SFTP. It is
// the access.Session for pure file-copy targets and the upload leg of NVUE
// switch updates.
package sshcopy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/common/util"
	"github.com/nvidia/nvfwupd/pkg/target"
)

const (
	defaultPort = "22"

	// ImageRoot is where switch images are staged before installation.
	ImageRoot = "/host/fw-images"
)

// RemoteDir is the staging directory for one component kind.
func RemoteDir(component string) string {
	return path.Join(ImageRoot, strings.ToLower(strings.TrimSpace(component)))
}

var _ access.Session = (*Session)(nil)

// Session copies files to one controller.
type Session struct {
	target *target.Target
	opts   access.Options
	logger *log.Entry
}

// New returns a Session for t. Nothing is dialed until used.
func New(t *target.Target, opts access.Options) *Session {
	return &Session{
		target: t,
		opts:   opts.WithDefaults(),
		logger: log.WithFields(log.Fields{"target": t.Name(), "transport": string(target.TransportSSH)}),
	}
}

func (s *Session) Kind() target.Transport      { return target.TransportSSH }
func (s *Session) Target() *target.Target      { return s.target }
func (s *Session) Identity() access.Identity   { return access.Identity{} }
func (s *Session) Close() error                { return nil }
func (s *Session) address() string             { return withDefaultPort(s.target.Address()) }
func (s *Session) unsupported(op string) error { return fwerr.New(fwerr.KindProtocol, op, "not supported over ssh") }

// IsReachable opens and closes one SSH connection.
func (s *Session) IsReachable(ctx context.Context) error {
	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	return client.Close()
}

func (s *Session) Dispatch(_ context.Context, method, p string, _ any, _ ...access.RequestOption) (*access.Response, error) {
	return nil, s.unsupported(access.Op(method, p))
}

func (s *Session) UploadMultipart(_ context.Context, p, _ string, _ []byte) (*access.Response, error) {
	return nil, s.unsupported(access.Op(http.MethodPost, p))
}

func (s *Session) PollJob(_ context.Context, jobID string) (*access.Response, error) {
	return nil, s.unsupported("poll " + jobID)
}

// UploadFile copies file into the remote directory dir.
func (s *Session) UploadFile(ctx context.Context, dir, file string) (*access.Response, error) {
	remote, err := s.Copy(ctx, file, dir)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf(`{"Path":%q}`, remote)
	return access.NewResponse(http.StatusOK, nil, []byte(body)), nil
}

// Copy pushes the local file into dir, creating it when missing, and returns
// the remote path.
func (s *Session) Copy(ctx context.Context, file, dir string) (string, error) {
	op := "copy " + filepath.Base(file)

	local, err := os.Open(file)
	if err != nil {
		return "", fwerr.Wrap(fwerr.KindPackageParse, op, err)
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return "", fwerr.Wrap(fwerr.KindPackageParse, op, err)
	}

	client, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	// no mid-copy cancellation API in sftp, closing the connection aborts it
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return "", fwerr.Wrap(fwerr.KindProtocol, op, err)
	}
	defer sc.Close()

	if err := sc.MkdirAll(dir); err != nil {
		return "", fwerr.Wrap(fwerr.KindProtocol, op, fmt.Errorf("failed to create %s: %w", dir, err))
	}

	remote := path.Join(dir, filepath.Base(file))
	s.logger.Infof("Copying %s (%s) to %s", filepath.Base(file), util.HumanReadableSize(info.Size()), remote)

	dst, err := sc.Create(remote)
	if err != nil {
		return "", fwerr.Wrap(fwerr.KindProtocol, op, err)
	}

	n, err := dst.ReadFrom(local)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fwerr.Wrap(fwerr.KindConnectivity, op, err)
	}
	if n != info.Size() {
		return "", fwerr.New(fwerr.KindConnectivity, op, "short copy: %d of %d bytes", n, info.Size())
	}

	return remote, nil
}

func (s *Session) dial(ctx context.Context) (*ssh.Client, error) {
	addr := s.address()
	op := "ssh " + addr

	config := &ssh.ClientConfig{
		User: s.target.Credential.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.target.Credential.Password.Value),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = s.target.Credential.Password.Value
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // controllers regenerate host keys on reflash
		Timeout:         s.opts.ConnectTimeout,
	}

	d := net.Dialer{Timeout: s.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fwerr.Wrap(fwerr.KindConnectivity, op, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fwerr.Wrap(fwerr.KindAuthentication, op, err)
		}
		return nil, fwerr.Wrap(fwerr.KindConnectivity, op, err)
	}

	return ssh.NewClient(c, chans, reqs), nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}
