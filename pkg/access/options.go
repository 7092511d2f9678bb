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

package access

// RequestOptions is the resolved set of per-request options.
type RequestOptions struct {
	SuppressErrors bool
	RequireJSON    bool
	Headers        map[string]string
}

// RequestOption tunes a single Dispatch.
type RequestOption func(*RequestOptions)

// SuppressErrors logs a failing status at debug level only, for probes of optional resources.
func SuppressErrors() RequestOption {
	return func(o *RequestOptions) { o.SuppressErrors = true }
}

// ExpectJSON turns a non-JSON success body into a protocol error.
func ExpectJSON() RequestOption {
	return func(o *RequestOptions) { o.RequireJSON = true }
}

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[key] = value
	}
}

// ApplyOptions resolves opts.
func ApplyOptions(opts []RequestOption) RequestOptions {
	var o RequestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
