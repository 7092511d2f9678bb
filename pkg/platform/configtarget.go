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

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

// ConfigTarget replaces the push of the wrapped Behavior with the one set in
// the config file. Everything else is delegated.
type ConfigTarget struct {
	Behavior
	sess access.Session
	push PushConfig
}

// NewConfigTarget wraps b. The push method must be http_push or multipart.
func NewConfigTarget(b Behavior, sess access.Session, push PushConfig) (*ConfigTarget, error) {
	switch push.Method {
	case PushMethodHTTP, PushMethodMultipart:
	default:
		return nil, fwerr.New(fwerr.KindFatal, "config", "unknown update_method %q", push.Method)
	}
	return &ConfigTarget{Behavior: b, sess: sess, push: push}, nil
}

// GetUpdateURI prefers the configured URI.
func (c *ConfigTarget) GetUpdateURI(updateService map[string]any) string {
	if c.push.URI != "" {
		return c.push.URI
	}

	key := "HttpPushUri"
	if c.push.Method == PushMethodMultipart {
		key = "MultipartHttpPushUri"
	}
	if uri, _ := access.Lookup(updateService, key).(string); uri != "" {
		return uri
	}
	return c.Behavior.GetUpdateURI(updateService)
}

func (c *ConfigTarget) UpdateComponent(ctx context.Context, args UpdateArgs, updateURI, packageFile string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if updateURI == "" {
		updateURI = c.GetUpdateURI(nil)
	}
	if err := patchUpdateService(ctx, c.sess, args.Special); err != nil {
		return "", err
	}

	var (
		resp *access.Response
		err  error
	)
	switch c.push.Method {
	case PushMethodMultipart:
		params := c.push.Parameters
		if params == nil {
			params = map[string]any{}
		}
		data, merr := json.Marshal(params)
		if merr != nil {
			return "", fwerr.Wrap(fwerr.KindFatal, "update_parameters", merr)
		}
		resp, err = c.sess.UploadMultipart(ctx, updateURI, packageFile, data)
	default:
		resp, err = c.sess.UploadFile(ctx, updateURI, packageFile)
	}
	if err != nil {
		return "", err
	}
	return taskmonitor.JobID(resp), nil
}

func (c *ConfigTarget) Describe() string {
	inner := c.Behavior.Tag().Name
	if d, ok := c.Behavior.(Describer); ok {
		inner = d.Describe()
	}
	return fmt.Sprintf("%s with configured %s push", inner, c.push.Method)
}

// NeedsRebootWait delegates to the wrapped Behavior.
func (c *ConfigTarget) NeedsRebootWait(pkg *fwpkg.Package) bool {
	rw, ok := c.Behavior.(RebootWaiter)
	return ok && rw.NeedsRebootWait(pkg)
}
