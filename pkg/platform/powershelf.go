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
	"net/http"
	"path"
	"time"

	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

// powerShelf is the PMC of a power shelf. Its firmware versions read r<major>.<minor>.<patch>.
type powerShelf struct {
	*base
}

func newPowerShelf(deps Deps) Behavior {
	return &powerShelf{newBase(profile{
		tag:             CodeToTag(TagCodePowerShelf),
		namePrefixes:    []string{"pmc_", "powershelf_"},
		fungible:        []string{"psu"},
		versionPrefixes: []string{"r"},
	}, deps.Session)}
}

// GetUpdateURI always returns the UpdateService itself; the PMC accepts pushes there.
func (ps *powerShelf) GetUpdateURI(map[string]any) string {
	return UpdateServicePath
}

// UpdateComponent sets apply time to Immediate then uploads the image.
func (ps *powerShelf) UpdateComponent(ctx context.Context, args UpdateArgs, updateURI, packageFile string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if err := patchUpdateService(ctx, ps.sess, args.Special); err != nil {
		return "", err
	}

	body := map[string]any{
		"HttpPushUriOptions": map[string]any{
			"HttpPushUriApplyTime": map[string]any{
				"ApplyTime": "Immediate",
			},
		},
	}
	if _, err := ps.sess.Dispatch(ctx, http.MethodPatch, UpdateServicePath, body); err != nil {
		return "", err
	}

	ps.logger.Infof("Uploading %s to %s", path.Base(packageFile), updateURI)
	resp, err := ps.sess.UploadFile(ctx, updateURI, packageFile)
	if err != nil {
		return "", err
	}
	return taskmonitor.JobID(resp), nil
}

func (ps *powerShelf) Describe() string {
	return "Power shelf PMC (immediate apply, octet-stream push)"
}
