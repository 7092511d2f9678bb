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

// Package redfish implements access.Session for Redfish services over HTTP
// Basic or session-token authentication, reached directly or through a local
// port forwarder.
package redfish

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/stmcginnis/gofish"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/access/restclient"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/target"
)

const (
	probePath    = "/redfish/v1/Chassis"
	sessionsPath = "/redfish/v1/SessionService/Sessions"
)

var _ access.Session = (*Session)(nil)

// Session is a Redfish access.Session.
type Session struct {
	*restclient.Client

	target *target.Target
	opts   access.Options

	mu       sync.RWMutex
	tokenURI string
	identity access.Identity

	// listen probes the local forwarded port.
	listen func(network, address string) (net.Listener, error)
	// identify reads model/part/serial once reachable; nil disables it.
	identify func(ctx context.Context) (access.Identity, error)
}

// New returns a Session for t. No network traffic happens until IsReachable.
func New(t *target.Target, opts access.Options) *Session {
	opts = opts.WithDefaults()

	s := &Session{
		Client: restclient.New(t, target.TransportRedfish, opts),
		target: t,
		opts:   opts,
		listen: net.Listen,
	}
	s.identify = s.identifyWithGofish

	return s
}

// WithoutIdentity disables the gofish identity probe.
func (s *Session) WithoutIdentity() *Session {
	s.identify = nil
	return s
}

func (s *Session) Kind() target.Transport { return target.TransportRedfish }

func (s *Session) Target() *target.Target { return s.target }

func (s *Session) Identity() access.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// IsReachable probes the service. HTTPS is tried first; a connection level
// failure falls back to HTTP. Port-forwarded targets additionally require a
// process holding the local port.
func (s *Session) IsReachable(ctx context.Context) error {
	if s.target.IsPortForward() {
		if err := s.checkForwarder(); err != nil {
			return err
		}
	}

	err := s.firstContact(ctx)
	if err != nil && fwerr.IsConnectivity(err) && s.Scheme() == restclient.SchemeHTTPS {
		s.Logger().WithError(err).Debug("HTTPS probe failed, falling back to HTTP")
		s.SetScheme(restclient.SchemeHTTP)

		if httpErr := s.firstContact(ctx); httpErr != nil {
			if fwerr.IsConnectivity(httpErr) {
				s.SetScheme(restclient.SchemeHTTPS)
				return err
			}
			return httpErr
		}
		err = nil
	}
	if err != nil {
		return err
	}

	if s.identify != nil {
		id, err := s.identify(ctx)
		if err != nil {
			s.Logger().WithError(err).Debug("Failed to read chassis identity")
		} else {
			s.mu.Lock()
			s.identity = id
			s.mu.Unlock()
		}
	}

	return nil
}

// checkForwarder binds the local port: failing to bind means a forwarder owns it.
func (s *Session) checkForwarder() error {
	addr := s.target.Address()

	l, err := s.listen("tcp", addr)
	if err != nil {
		s.Logger().Debugf("Port forwarder detected on %s", addr)
		return nil
	}
	_ = l.Close()

	return fwerr.New(fwerr.KindConnectivity, "port-forward", "no port forwarder is listening on %s", addr)
}

func (s *Session) firstContact(ctx context.Context) error {
	if s.target.SessionAuth {
		if err := s.login(ctx); err != nil {
			return err
		}
	}

	_, err := s.Dispatch(ctx, http.MethodGet, probePath, nil)
	return err
}

// login exchanges the credential for a session token.
func (s *Session) login(ctx context.Context) error {
	body := map[string]string{
		"UserName": s.target.Credential.User,
		"Password": s.target.Credential.Password.Value,
	}

	resp, err := s.DoBasic(ctx, http.MethodPost, sessionsPath, body, access.RequestOptions{})
	if err != nil {
		return err
	}

	token := resp.Header.Get(restclient.TokenHeader)
	if token == "" {
		return fwerr.New(fwerr.KindAuthentication, access.Op(http.MethodPost, sessionsPath), "no %s in login response", restclient.TokenHeader).WithBody(resp.Body)
	}

	uri := resp.Header.Get("Location")
	if uri == "" {
		uri = resp.String("@odata.id")
	}

	s.SetToken(token)
	s.mu.Lock()
	s.tokenURI = uri
	s.mu.Unlock()

	return nil
}

func (s *Session) Dispatch(ctx context.Context, method, path string, body any, opts ...access.RequestOption) (*access.Response, error) {
	return s.Do(ctx, method, path, body, access.ApplyOptions(opts))
}

// PollJob reads a task. Absolute task URIs are used as-is, anything else is
// appended to the task service path.
func (s *Session) PollJob(ctx context.Context, jobID string) (*access.Response, error) {
	path := jobID
	if !strings.HasPrefix(jobID, "/") {
		path = strings.TrimSuffix(s.opts.TaskServicePath, "/") + "/" + jobID
	}

	return s.Dispatch(ctx, http.MethodGet, path, nil)
}

// Close ends a token session when one was opened.
func (s *Session) Close() error {
	defer s.Logger().Debug(s.Stats().String())

	s.mu.RLock()
	uri := s.tokenURI
	s.mu.RUnlock()

	if s.Token() == "" || uri == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	_, err := s.Dispatch(ctx, http.MethodDelete, uri, nil)
	return err
}

// identifyWithGofish reads the first chassis that reports a serial or model.
func (s *Session) identifyWithGofish(ctx context.Context) (access.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	c, err := gofish.ConnectContext(ctx, gofish.ClientConfig{
		Endpoint:  s.BaseURL(),
		Username:  s.target.Credential.User,
		Password:  s.target.Credential.Password.Value,
		Insecure:  true,
		BasicAuth: true,
	})
	if err != nil {
		return access.Identity{}, err
	}
	defer c.Logout()

	chassis, err := c.Service.Chassis()
	if err != nil {
		return access.Identity{}, err
	}

	for _, ch := range chassis {
		if ch.SerialNumber == "" && ch.Model == "" {
			continue
		}

		part := ch.PartNumber
		if part == "" {
			part = ch.SKU
		}

		return access.Identity{Model: ch.Model, PartNumber: part, SerialNumber: ch.SerialNumber}, nil
	}

	return access.Identity{}, fmt.Errorf("no chassis reports an identity")
}
