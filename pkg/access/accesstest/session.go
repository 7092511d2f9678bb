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

// Package accesstest provides a scripted access.Session for unit tests.
package accesstest

import (
	"context"
	"net/http"
	"sync"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// Pseudo methods used to script the non-Dispatch calls.
const (
	MethodUpload    = "UPLOAD"
	MethodMultipart = "MULTIPART"
	MethodPoll      = "POLL"
)

// Call records one request made on the Session.
type Call struct {
	Method string
	Path   string
	Body   any
	File   string
	Params []byte
}

// Handler answers one scripted request.
type Handler func(call Call) (*access.Response, error)

var _ access.Session = (*Session)(nil)

// Session answers requests from handlers keyed by method and path.
type Session struct {
	mu       sync.Mutex
	target   *target.Target
	kind     target.Transport
	identity access.Identity
	reachErr error
	handlers map[string]Handler
	calls    []Call
	closed   bool
}

// New returns an empty scripted session for t.
func New(t *target.Target) *Session {
	if t == nil {
		t = &target.Target{Host: "fake", Transport: target.TransportRedfish}
	}
	return &Session{
		target:   t,
		kind:     t.Transport,
		handlers: map[string]Handler{},
	}
}

// WithIdentity sets the reported identity.
func (s *Session) WithIdentity(id access.Identity) *Session {
	s.identity = id
	return s
}

// Unreachable makes IsReachable fail with err.
func (s *Session) Unreachable(err error) *Session {
	s.reachErr = err
	return s
}

// On registers h for method and path.
func (s *Session) On(method, path string, h Handler) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method+" "+path] = h
	return s
}

// OnJSON answers method and path with a fixed status and body.
func (s *Session) OnJSON(method, path string, status int, body string) *Session {
	return s.On(method, path, func(Call) (*access.Response, error) {
		return access.NewResponse(status, nil, []byte(body)), nil
	})
}

// OnSequence answers successive calls with successive bodies (status 200). The
// last body repeats once the sequence is exhausted.
func (s *Session) OnSequence(method, path string, bodies ...string) *Session {
	var (
		mu sync.Mutex
		i  int
	)
	return s.On(method, path, func(Call) (*access.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		body := bodies[min(i, len(bodies)-1)]
		i++
		return access.NewResponse(http.StatusOK, nil, []byte(body)), nil
	})
}

// Calls returns a copy of the recorded calls.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls for method and path.
func (s *Session) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Kind() target.Transport    { return s.kind }
func (s *Session) Target() *target.Target    { return s.target }
func (s *Session) Identity() access.Identity { return s.identity }

func (s *Session) IsReachable(_ context.Context) error {
	return s.reachErr
}

func (s *Session) Dispatch(_ context.Context, method, path string, body any, opts ...access.RequestOption) (*access.Response, error) {
	resp, err := s.serve(Call{Method: method, Path: path, Body: body})
	if err != nil || resp == nil {
		return resp, err
	}

	if err := access.CheckStatus(access.Op(method, path), method, resp); err != nil {
		return resp, err
	}

	if access.ApplyOptions(opts).RequireJSON {
		return resp, access.RequireJSON(access.Op(method, path), resp)
	}

	return resp, nil
}

func (s *Session) UploadFile(_ context.Context, path, file string) (*access.Response, error) {
	resp, err := s.serve(Call{Method: MethodUpload, Path: path, File: file})
	if err != nil || resp == nil {
		return resp, err
	}
	return resp, access.CheckStatus(access.Op(http.MethodPost, path), http.MethodPost, resp)
}

func (s *Session) UploadMultipart(_ context.Context, path, file string, params []byte) (*access.Response, error) {
	resp, err := s.serve(Call{Method: MethodMultipart, Path: path, File: file, Params: params})
	if err != nil || resp == nil {
		return resp, err
	}
	return resp, access.CheckStatus(access.Op(http.MethodPost, path), http.MethodPost, resp)
}

func (s *Session) PollJob(_ context.Context, jobID string) (*access.Response, error) {
	resp, err := s.serve(Call{Method: MethodPoll, Path: jobID})
	if err != nil || resp == nil {
		return resp, err
	}
	return resp, access.CheckStatus(access.Op(http.MethodGet, jobID), http.MethodGet, resp)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) serve(call Call) (*access.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	h, ok := s.handlers[call.Method+" "+call.Path]
	s.mu.Unlock()

	if !ok {
		resp := access.NewResponse(http.StatusNotFound, nil, []byte(`{"error":"not scripted"}`))
		return resp, fwerr.New(fwerr.KindProtocol, access.Op(call.Method, call.Path), "status 404").WithBody(resp.Body)
	}

	return h(call)
}
