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

// Package nvue implements access.Session for the NVUE REST API of NVOS
// switches. Requests go over HTTPS only; image files are staged over SFTP.
package nvue

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/access/restclient"
	"github.com/nvidia/nvfwupd/pkg/access/sshcopy"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/target"
)

const (
	PlatformPath = "/nvue_v1/platform"
	FirmwarePath = "/nvue_v1/platform/firmware"
	ActionPath   = "/nvue_v1/action/"
)

// Copier stages a local file in a remote directory.
type Copier interface {
	UploadFile(ctx context.Context, dir, file string) (*access.Response, error)
}

var _ access.Session = (*Session)(nil)

// Session is an NVUE access.Session.
type Session struct {
	rc      *restclient.Client
	target  *target.Target
	copier  Copier
	copyErr error // set when no copier can be built for the target

	mu       sync.RWMutex
	identity access.Identity
}

// New returns a Session for t. Files are copied with an SSH session on the
// same host, or through the SSH forward of a port-forwarded target.
func New(t *target.Target, opts access.Options) *Session {
	s := &Session{
		rc:     restclient.New(t, target.TransportNVUE, opts),
		target: t,
	}
	if ct, err := t.CopyTarget(); err != nil {
		s.copyErr = err
	} else {
		s.copier = sshcopy.New(ct, opts)
	}
	return s
}

// WithCopier replaces the file copier.
func (s *Session) WithCopier(c Copier) *Session {
	s.copier, s.copyErr = c, nil
	return s
}

func (s *Session) Kind() target.Transport { return target.TransportNVUE }

func (s *Session) Target() *target.Target { return s.target }

func (s *Session) Identity() access.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// IsReachable reads the platform resource, which also yields the identity.
func (s *Session) IsReachable(ctx context.Context) error {
	resp, err := s.Dispatch(ctx, http.MethodGet, PlatformPath, nil, access.ExpectJSON())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.identity = access.Identity{
		Model:        firstString(resp, "product-name", "model"),
		PartNumber:   firstString(resp, "part-number"),
		SerialNumber: firstString(resp, "serial-number"),
	}
	s.mu.Unlock()

	return nil
}

func (s *Session) Dispatch(ctx context.Context, method, path string, body any, opts ...access.RequestOption) (*access.Response, error) {
	return s.rc.Do(ctx, method, path, body, access.ApplyOptions(opts))
}

// UploadFile stages file in the remote directory dir over SFTP.
func (s *Session) UploadFile(ctx context.Context, dir, file string) (*access.Response, error) {
	if s.copier == nil {
		if s.copyErr != nil {
			return nil, fwerr.Wrap(fwerr.KindFatal, "copy "+file, s.copyErr)
		}
		return nil, fwerr.New(fwerr.KindProtocol, "copy "+file, "no file copier configured")
	}
	return s.copier.UploadFile(ctx, dir, file)
}

func (s *Session) UploadMultipart(_ context.Context, path, _ string, _ []byte) (*access.Response, error) {
	return nil, fwerr.New(fwerr.KindProtocol, access.Op(http.MethodPost, path), "multipart upload is not supported by NVUE")
}

// PollJob reads an NVUE action.
func (s *Session) PollJob(ctx context.Context, jobID string) (*access.Response, error) {
	path := jobID
	if !strings.HasPrefix(jobID, "/") {
		path = ActionPath + jobID
	}
	return s.Dispatch(ctx, http.MethodGet, path, nil)
}

func (s *Session) Close() error {
	s.rc.Logger().Debug(s.rc.Stats().String())
	return nil
}

func firstString(r *access.Response, keys ...string) string {
	for _, k := range keys {
		if v := r.String(k); v != "" {
			return v
		}
	}
	return ""
}
