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

func newGH200(deps Deps) Behavior {
	return newBase(profile{
		tag:             CodeToTag(TagCodeGH200),
		namePrefixes:    []string{"hgx_fw_", "hgx_"},
		versionPrefixes: []string{"HGX_", "GH200-"},
		multipart:       true,
		forceParam:      true,
	}, deps.Session)
}
