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

// Package restclient is the resty based HTTP core shared by the Redfish and
// NVUE sessions: authentication headers, request/response logging, status
// classification and file uploads.
package restclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/common/perfstat"
	"github.com/nvidia/nvfwupd/pkg/common/util"
	"github.com/nvidia/nvfwupd/pkg/target"
)

const (
	SchemeHTTPS = "https"
	SchemeHTTP  = "http"

	// TokenHeader carries a Redfish session token.
	TokenHeader = "X-Auth-Token"

	// bodies above this size are cut in debug logs
	maxLoggedBody = 4096
)

// Client talks HTTP(S) to one controller.
type Client struct {
	target *target.Target
	api    *resty.Client
	upload *resty.Client

	mu     sync.RWMutex
	scheme string
	token  string

	stats  *perfstat.PerfStat
	logger *log.Entry
}

// New returns a Client for t speaking HTTPS.
func New(t *target.Target, transport target.Transport, opts access.Options) *Client {
	opts = opts.WithDefaults()

	c := &Client{
		target: t,
		scheme: SchemeHTTPS,
		stats:  perfstat.New(string(transport) + " " + t.Name()),
		logger: log.WithFields(log.Fields{"target": t.Name(), "transport": string(transport)}),
	}

	c.api = c.newResty(opts.RequestTimeout)
	c.upload = c.newResty(opts.UploadTimeout)

	return c
}

func (c *Client) newResty(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}). //nolint:gosec // controllers use self-signed certificates
		SetTimeout(timeout).
		SetLogger(c.logger).
		SetHeader("Accept", "application/json")
}

// Logger is the per-target log entry.
func (c *Client) Logger() *log.Entry { return c.logger }

// Stats holds the request latency counters.
func (c *Client) Stats() *perfstat.PerfStat { return c.stats }

// BaseURL is the scheme and address currently in use.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scheme + "://" + c.target.Address()
}

// Scheme returns the scheme in use.
func (c *Client) Scheme() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scheme
}

// SetScheme switches between HTTPS and HTTP.
func (c *Client) SetScheme(scheme string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheme = scheme
}

// Token returns the session token, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken makes later requests authenticate with token instead of Basic auth.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Do sends one request with the session token when set, Basic auth otherwise.
// body may be nil, raw JSON bytes or string, or any value marshaled as JSON.
func (c *Client) Do(ctx context.Context, method, path string, body any, o access.RequestOptions) (*access.Response, error) {
	return c.do(ctx, method, path, body, o, true)
}

// DoBasic sends one request with Basic auth regardless of any session token.
func (c *Client) DoBasic(ctx context.Context, method, path string, body any, o access.RequestOptions) (*access.Response, error) {
	return c.do(ctx, method, path, body, o, false)
}

func (c *Client) do(ctx context.Context, method, path string, body any, o access.RequestOptions, useToken bool) (*access.Response, error) {
	req := c.request(ctx, c.api, o, useToken)

	logged := ""
	if body != nil {
		switch b := body.(type) {
		case []byte:
			req.SetHeader("Content-Type", "application/json").SetBody(b)
			logged = string(b)
		case string:
			req.SetHeader("Content-Type", "application/json").SetBody(b)
			logged = b
		default:
			req.SetBody(b)
			if data, err := json.Marshal(b); err == nil {
				logged = string(data)
			}
		}
	}

	return c.send(req, method, path, logged, o)
}

// UploadFile streams file as an application/octet-stream POST body.
func (c *Client) UploadFile(ctx context.Context, path, file string) (*access.Response, error) {
	f, size, err := openFile(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c.logger.Infof("Uploading %s (%s) to %s", filepath.Base(file), util.HumanReadableSize(size), path)

	req := c.request(ctx, c.upload, access.RequestOptions{}, true).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(f)

	return c.send(req, http.MethodPost, path, "<file "+filepath.Base(file)+" elided>", access.RequestOptions{})
}

// UploadMultipart posts UpdateParameters (JSON) and UpdateFile as a multipart form.
func (c *Client) UploadMultipart(ctx context.Context, path, file string, params []byte) (*access.Response, error) {
	f, size, err := openFile(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if len(params) == 0 {
		params = []byte("{}")
	}

	c.logger.Infof("Uploading %s (%s) to %s with parameters %s", filepath.Base(file), util.HumanReadableSize(size), path, params)

	req := c.request(ctx, c.upload, access.RequestOptions{}, true).
		SetMultipartFields(
			&resty.MultipartField{
				Param:       "UpdateParameters",
				ContentType: "application/json",
				Reader:      bytes.NewReader(params),
			},
			&resty.MultipartField{
				Param:       "UpdateFile",
				FileName:    filepath.Base(file),
				ContentType: "application/octet-stream",
				Reader:      f,
			},
		)

	return c.send(req, http.MethodPost, path, "<multipart "+filepath.Base(file)+" elided>", access.RequestOptions{})
}

func (c *Client) request(ctx context.Context, rc *resty.Client, o access.RequestOptions, useToken bool) *resty.Request {
	req := rc.R().SetContext(ctx)

	if token := c.Token(); useToken && token != "" {
		req.SetHeader(TokenHeader, token)
	} else {
		req.SetBasicAuth(c.target.Credential.User, c.target.Credential.Password.Value)
	}

	for k, v := range o.Headers {
		req.SetHeader(k, v)
	}

	return req
}

func (c *Client) send(req *resty.Request, method, path, loggedBody string, o access.RequestOptions) (*access.Response, error) {
	url := c.URL(path)
	op := access.Op(method, path)

	c.logger.WithFields(log.Fields{"method": method, "url": url, "headers": redactHeaders(req.Header)}).
		Debugf("Request body: %s", util.Truncate(loggedBody, maxLoggedBody))

	it := c.stats.Start()
	resp, err := req.Execute(method, url)
	elapsed := it.End()

	if err != nil {
		c.logger.WithError(err).Warnf("%s failed after %v", op, elapsed)
		return nil, fwerr.Wrap(fwerr.KindConnectivity, op, err)
	}

	r := access.NewResponse(resp.StatusCode(), resp.Header(), resp.Body())

	c.logger.WithFields(log.Fields{"status": r.StatusCode, "headers": redactHeaders(r.Header), "elapsed": elapsed.String()}).
		Debugf("Response body: %s", util.Truncate(string(r.Body), maxLoggedBody))

	if err := access.CheckStatus(op, method, r); err != nil {
		if o.SuppressErrors && method == http.MethodGet {
			c.logger.Debugf("%s returned %d", op, r.StatusCode)
		} else {
			c.logger.Warnf("%s returned %d: %s", op, r.StatusCode, util.Truncate(string(r.Body), maxLoggedBody))
		}
		return r, err
	}

	if o.RequireJSON {
		if err := access.RequireJSON(op, r); err != nil {
			return r, err
		}
	}

	return r, nil
}

// URL resolves path against BaseURL. Absolute URLs are returned unchanged.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL() + path
}

func openFile(file string) (*os.File, int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, 0, fwerr.Wrap(fwerr.KindPackageParse, "open "+file, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fwerr.Wrap(fwerr.KindPackageParse, "stat "+file, err)
	}

	return f, info.Size(), nil
}

func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, k := range []string{"Authorization", TokenHeader} {
		if out.Get(k) != "" {
			out.Set(k, "<redacted>")
		}
	}
	return out
}
