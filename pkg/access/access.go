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

// Package access abstracts one transport session to one controller. Concrete
// sessions live in the redfish, nvue and sshcopy sub-packages; callers only
// see the Session interface and the Response it returns.
package access

import (
	"context"
	"time"

	"github.com/nvidia/nvfwupd/pkg/target"
)

// Identity is what the reached system reports about itself.
type Identity struct {
	Model        string
	PartNumber   string
	SerialNumber string
}

// Session allows us to have one implementation per transport, plus a scripted
// one for unit tests, switched transparently.
type Session interface {
	// Kind is the transport of the session.
	Kind() target.Transport

	// Target is the controller the session belongs to.
	Target() *target.Target

	// Identity returns the model, part and serial number once the session is reachable.
	Identity() Identity

	// IsReachable probes the controller. The error kind tells connectivity
	// failures apart from authentication failures.
	IsReachable(ctx context.Context) error

	// Dispatch sends one request. A nil error means the request succeeded; the
	// Response is returned whenever the controller answered, even on failure.
	Dispatch(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error)

	// UploadFile streams a single file to path.
	UploadFile(ctx context.Context, path, file string) (*Response, error)

	// UploadMultipart posts file together with a JSON UpdateParameters part.
	UploadMultipart(ctx context.Context, path, file string, params []byte) (*Response, error)

	// PollJob fetches the status of a remote job.
	PollJob(ctx context.Context, jobID string) (*Response, error)

	// Close releases the session.
	Close() error
}

// Options configures a concrete session.
type Options struct {
	RequestTimeout  time.Duration // per HTTP request
	UploadTimeout   time.Duration // per file push; RequestTimeout when zero
	ConnectTimeout  time.Duration // TCP/SSH dial
	TaskServicePath string        // job polling prefix override
}

const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultUploadTimeout   = 30 * time.Minute
	DefaultConnectTimeout  = 30 * time.Second
	DefaultTaskServicePath = "/redfish/v1/TaskService/Tasks/"
)

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = DefaultUploadTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.TaskServicePath == "" {
		o.TaskServicePath = DefaultTaskServicePath
	}
	return o
}
