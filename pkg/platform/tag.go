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
	"fmt"

	"github.com/nvidia/nvfwupd/pkg/target"
)

// Tag identifies a platform family with a numeric code and a display name.
type Tag struct {
	Code TagCode `json:"code"`
	Name string  `json:"name"`
}

// TagCode enumerates known platforms; TagCodeMax is sentinel for iteration bounds.
type TagCode int

const (
	TagCodeUnsupported TagCode = iota
	TagCodeHGX
	TagCodeDGX
	TagCodeGB200
	TagCodeGH200
	TagCodePowerShelf
	TagCodeNVSwitch
	TagCodeMax
)

const (
	TagHGX        = "hgx"
	TagDGX        = "dgx"
	TagGB200      = "gb200"
	TagGH200      = "gh200"
	TagPowerShelf = "powershelf"
	TagNVSwitch   = "nvswitch"
)

// CodeToTag maps a platform code to a Tag.
func CodeToTag(code TagCode) Tag {
	var name string

	switch code {
	case TagCodeHGX:
		name = TagHGX
	case TagCodeDGX:
		name = TagDGX
	case TagCodeGB200:
		name = TagGB200
	case TagCodeGH200:
		name = TagGH200
	case TagCodePowerShelf:
		name = TagPowerShelf
	case TagCodeNVSwitch:
		name = TagNVSwitch
	default:
		name = "unsupported"
	}

	return Tag{code, name}
}

// ParseTag maps a configured platform name to a Tag, case-insensitively.
func ParseTag(s string) Tag {
	name := target.CanonicalPlatform(s)

	for code := TagCodeUnsupported + 1; code < TagCodeMax; code++ {
		if t := CodeToTag(code); t.Name == name {
			return t
		}
	}

	return Tag{TagCodeUnsupported, s}
}

// Tags lists every supported platform.
func Tags() []Tag {
	out := make([]Tag, 0, TagCodeMax-1)
	for code := TagCodeUnsupported + 1; code < TagCodeMax; code++ {
		out = append(out, CodeToTag(code))
	}
	return out
}

// String returns the platform name or an error string if unsupported.
func (t Tag) String() string {
	if err := t.IsSupported(); err != nil {
		return err.Error()
	}

	return t.Name
}

// IsSupported reports whether the code is within supported range.
func (t Tag) IsSupported() error {
	if t.Code > TagCodeUnsupported && t.Code < TagCodeMax {
		return nil
	}

	return fmt.Errorf("unsupported platform: %s (%v)", t.Name, t.Code)
}

// Transport is the access transport the platform is reached with.
func (t Tag) Transport() target.Transport {
	if t.Code == TagCodeNVSwitch {
		return target.TransportNVUE
	}
	return target.TransportRedfish
}

// ReachableOver reports whether the platform can be driven over kind. NVOS
// switches also accept plain SSH targets, which only stage images.
func (t Tag) ReachableOver(kind target.Transport) bool {
	if t.Code == TagCodeNVSwitch && kind == target.TransportSSH {
		return true
	}
	return t.Transport() == kind
}
