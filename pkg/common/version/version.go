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

// Package version compares firmware version strings made of dotted, dashed or
// underscored segments, such as "GB2-CX8.25.05-09" or "1.3.8".
package version

import (
	"regexp"
	"strings"
)

// Operator is a comparison operator understood by Compare.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

var operators = map[string]Operator{
	string(OpEqual):        OpEqual,
	string(OpNotEqual):     OpNotEqual,
	string(OpGreater):      OpGreater,
	string(OpLess):         OpLess,
	string(OpGreaterEqual): OpGreaterEqual,
	string(OpLessEqual):    OpLessEqual,
}

var separators = regexp.MustCompile(`[._-]`)

// ParseOperator maps a textual operator to an Operator. An empty string maps to OpEqual.
func ParseOperator(s string) (Operator, bool) {
	if strings.TrimSpace(s) == "" {
		return OpEqual, true
	}

	op, ok := operators[strings.TrimSpace(s)]
	return op, ok
}

// StripFunc removes platform specific decoration from a version before comparison.
type StripFunc func(string) string

// StripPrefixes returns a StripFunc that removes the first matching prefix, ignoring case.
func StripPrefixes(prefixes ...string) StripFunc {
	return func(v string) string {
		upper := strings.ToUpper(v)
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(upper, strings.ToUpper(p)) {
				return v[len(p):]
			}
		}
		return v
	}
}

// segments splits a version on '.', '-' and '_' after folding it to upper case.
func segments(v string) []string {
	return separators.Split(strings.ToUpper(strings.TrimSpace(v)), -1)
}

// cmp compares two segment lists of equal length; returns -1 if a<b, 0 if equal, 1 if a>b.
// Each pair of segments is left padded with zeros to a common width first, so
// numeric and hex-like segments order correctly as strings.
func cmp(a, b []string) int {
	for i := range a {
		sa, sb := a[i], b[i]
		width := max(len(sa), len(sb))
		sa = strings.Repeat("0", width-len(sa)) + sa
		sb = strings.Repeat("0", width-len(sb)) + sb

		if c := strings.Compare(sa, sb); c != 0 {
			return c
		}
	}

	return 0
}

// Compare reports whether "a op b" holds. Versions with a different number of
// segments are never equal nor ordered: only OpNotEqual reports true for them.
// Unknown operators report false. An empty operator means OpEqual.
func Compare(a, b string, op Operator) bool {
	if op == "" {
		op = OpEqual
	}

	if _, ok := operators[string(op)]; !ok {
		return false
	}

	sa, sb := segments(a), segments(b)
	if len(sa) != len(sb) {
		return op == OpNotEqual
	}

	c := cmp(sa, sb)

	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpGreater:
		return c > 0
	case OpLess:
		return c < 0
	case OpGreaterEqual:
		return c >= 0
	case OpLessEqual:
		return c <= 0
	default:
		return false
	}
}

// IsNewer reports whether the package version is strictly newer than the
// running version once strip (if any) has been applied to both.
func IsNewer(pkgVersion, sysVersion string, strip StripFunc) bool {
	if strip != nil {
		pkgVersion = strip(pkgVersion)
		sysVersion = strip(sysVersion)
	}

	return Compare(pkgVersion, sysVersion, OpGreater)
}
