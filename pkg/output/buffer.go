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

// Package output collects per-target messages during a run and renders the
// aggregated report as text tables or as one JSON object.
package output

import (
	"fmt"
	"sync"

	cmnlog "github.com/nvidia/nvfwupd/pkg/common/log"
)

// Buffer holds the messages of one target. Workers write only their own
// Buffer; the report is rendered after every worker has finished.
type Buffer struct {
	mu     sync.Mutex
	lines  []string
	errors []string
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Printf appends a sanitized message.
func (b *Buffer) Printf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, cmnlog.Sanitize(fmt.Sprintf(format, args...)))
}

// Errorf appends a sanitized error message.
func (b *Buffer) Errorf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, cmnlog.Sanitize(fmt.Sprintf(format, args...)))
}

// Lines returns a copy of the messages.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Errors returns a copy of the error messages.
func (b *Buffer) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}
