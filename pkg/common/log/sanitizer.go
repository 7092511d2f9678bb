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
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

const redacted = "[REDACTED]"

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\b`)
	ipv6Pattern = regexp.MustCompile(`(?i)(?:\b(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b|\b(?:[0-9a-f]{1,4}:){1,7}:(?:[0-9a-f]{1,4}(?::[0-9a-f]{1,4}){0,6})?)`)
)

// Sanitizer redacts secrets and IP addresses from text. It is immutable once built
// and safe for concurrent use.
type Sanitizer struct {
	secrets []string
	keepIPs bool
}

// NewSanitizer returns a Sanitizer for the given secrets that also redacts
// IPv4 and IPv6 addresses. Empty secrets are ignored.
func NewSanitizer(secrets []string) *Sanitizer {
	s := &Sanitizer{}
	for _, sec := range secrets {
		if strings.TrimSpace(sec) != "" {
			s.secrets = append(s.secrets, sec)
		}
	}

	// longest first so a secret containing another is redacted whole
	sort.SliceStable(s.secrets, func(i, j int) bool { return len(s.secrets[i]) > len(s.secrets[j]) })

	return s
}

// KeepIPs returns a copy of s that leaves IP addresses in place.
func (s *Sanitizer) KeepIPs() *Sanitizer {
	return &Sanitizer{secrets: s.secrets, keepIPs: true}
}

// Sanitize returns text with every secret and IP address replaced.
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil {
		return text
	}

	for _, sec := range s.secrets {
		text = strings.ReplaceAll(text, sec, redacted)
	}

	if !s.keepIPs {
		text = ipv4Pattern.ReplaceAllString(text, redacted)
		text = ipv6Pattern.ReplaceAllString(text, redacted)
	}

	return text
}

// SanitizingFormatter applies a Sanitizer to the output of another formatter.
type SanitizingFormatter struct {
	Inner     log.Formatter
	Sanitizer *Sanitizer
}

// Format formats with the inner formatter and then redacts the line.
func (f *SanitizingFormatter) Format(entry *log.Entry) ([]byte, error) {
	line, err := f.Inner.Format(entry)
	if err != nil {
		return nil, err
	}

	return []byte(f.Sanitizer.Sanitize(string(line))), nil
}
