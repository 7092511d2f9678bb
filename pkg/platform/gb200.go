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
	"strings"

	"github.com/nvidia/nvfwupd/pkg/fwpkg"
)

// gb200 is a Grace Blackwell compute tray. SBIOS images reboot the tray, so
// their jobs are followed across the reboot.
type gb200 struct {
	*base
}

func newGB200(deps Deps) Behavior {
	return &gb200{newBase(profile{
		tag:             CodeToTag(TagCodeGB200),
		namePrefixes:    []string{"hgx_fw_", "hgx_", "fw_"},
		fungible:        []string{"gpu_", "cx7_", "cx8_"},
		versionPrefixes: []string{"GB2-", "GB200-", "GB200"},
		multipart:       true,
		forceParam:      true,
	}, deps.Session)}
}

func (g *gb200) NeedsRebootWait(pkg *fwpkg.Package) bool {
	if pkg == nil {
		return false
	}
	if strings.Contains(strings.ToLower(pkg.Name()), "sbios") {
		return true
	}
	for key := range pkg.Index() {
		if strings.Contains(strings.ToLower(key), "sbios") {
			return true
		}
	}
	return false
}

func (g *gb200) Describe() string {
	return "GB200 compute tray (multipart push, SBIOS reboot wait)"
}
