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

package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Options configures the process logger.
type Options struct {
	File    string   // log file path; stderr when empty
	Level   string   // logrus level name; "info" when empty
	Verbose bool     // forces debug level
	Secrets []string // values redacted from every line
	ShowIPs bool     // leave IPv4/IPv6 addresses unredacted
}

var (
	setupOnce sync.Once
	setupErr  error
	active    *Sanitizer
)

// Setup configures the standard logrus logger once for the process. Later
// calls are no-ops and return the first result.
func Setup(opts Options) error {
	setupOnce.Do(func() {
		setupErr = configure(log.StandardLogger(), opts)
	})
	return setupErr
}

// Sanitize redacts text with the process sanitizer. Before Setup it returns text unchanged.
func Sanitize(text string) string {
	return active.Sanitize(text)
}

func configure(logger *log.Logger, opts Options) error {
	level := log.InfoLevel
	if opts.Level != "" {
		l, err := log.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}
	if opts.Verbose {
		level = log.DebugLevel
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		out = f
	}

	active = NewSanitizer(opts.Secrets)
	if opts.ShowIPs {
		active = active.KeepIPs()
	}

	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetReportCaller(true)
	logger.SetFormatter(&SanitizingFormatter{
		Inner:     &LineFormatter{},
		Sanitizer: active,
	})

	return nil
}
