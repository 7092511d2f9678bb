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
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/access/nvue"
	"github.com/nvidia/nvfwupd/pkg/access/sshcopy"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/common/version"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// DefaultSwitchComponent is installed when no component is named.
const DefaultSwitchComponent = "nvos"

// nvSwitch is an NVOS switch managed through NVUE. Images are copied over SFTP
// and installed with an NVUE action.
type nvSwitch struct {
	sess   access.Session
	logger *log.Entry
}

func newNVSwitch(deps Deps) Behavior {
	return &nvSwitch{
		sess:   deps.Session,
		logger: log.WithFields(log.Fields{"target": deps.Session.Target().Name(), "platform": TagNVSwitch}),
	}
}

func (s *nvSwitch) Tag() Tag { return CodeToTag(TagCodeNVSwitch) }

func (s *nvSwitch) IsFungible(string) bool { return false }

func (s *nvSwitch) GetIdentifierFromChassis(context.Context, string) (string, bool) { return "", false }

func (s *nvSwitch) GetComponentVersion(index fwpkg.Index, apName string) string {
	want := switchName(apName)
	for _, key := range sortedKeys(index) {
		if switchName(key) == want {
			return index[key].Version
		}
	}
	return NA
}

func (s *nvSwitch) GetVersionForIdentifier(identifier string, index fwpkg.Index, apName string) string {
	return versionForIdentifier(identifier, index, switchName(apName), switchName)
}

func (s *nvSwitch) IsPackageNewer(pkgVersion, sysVersion string) bool {
	return version.IsNewer(pkgVersion, sysVersion, version.StripPrefixes("nvos-", "v"))
}

func (s *nvSwitch) GetUpdateURI(map[string]any) string {
	return nvue.FirmwarePath
}

// UpdateComponent copies the image to the switch and starts the install action.
func (s *nvSwitch) UpdateComponent(ctx context.Context, args UpdateArgs, updateURI, packageFile string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	component := strings.ToLower(strings.TrimSpace(args.Component))
	if component == "" {
		component = DefaultSwitchComponent
	}
	if updateURI == "" {
		updateURI = nvue.FirmwarePath
	}

	s.logger.Infof("Copying %s for %s", filepath.Base(packageFile), component)
	if _, err := s.sess.UploadFile(ctx, sshcopy.RemoteDir(component), packageFile); err != nil {
		return "", err
	}

	// copy-only targets have no NVUE to start the install
	if s.sess.Kind() == target.TransportSSH {
		s.logger.Infof("Staged %s in %s", filepath.Base(packageFile), sshcopy.RemoteDir(component))
		return "", nil
	}

	installURI := path.Join(updateURI, component, "files", url.PathEscape(filepath.Base(packageFile)))
	body := map[string]any{
		"@install": map[string]any{
			"state": "start",
			"parameters": map[string]any{
				"force": args.ForceUpdate,
			},
		},
	}

	resp, err := s.sess.Dispatch(ctx, http.MethodPost, installURI, body)
	if err != nil {
		return "", err
	}

	id := actionID(resp)
	if id == "" {
		return "", fwerr.New(fwerr.KindProtocol, access.Op(http.MethodPost, installURI), "no action id in install response").WithBody(resp.Body)
	}
	return id, nil
}

func (s *nvSwitch) Describe() string {
	if s.sess.Kind() == target.TransportSSH {
		return "NVOS switch (SFTP copy only)"
	}
	return "NVOS switch (SFTP copy, NVUE install action)"
}

// actionID reads the NVUE action id: a bare number, an object keyed by the id,
// an id field, or a Location header.
func actionID(resp *access.Response) string {
	raw := strings.Trim(strings.TrimSpace(string(resp.Body)), `"`)
	if raw != "" && strings.Trim(raw, "0123456789") == "" {
		return raw
	}

	for _, key := range []string{"id", "action-id", "action_id"} {
		switch v := resp.Lookup(key).(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%d", int64(v))
		}
	}

	if len(resp.JSON) == 1 {
		keys := lo.Keys(resp.JSON)
		sort.Strings(keys)
		if strings.Trim(keys[0], "0123456789") == "" {
			return keys[0]
		}
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		return path.Base(loc)
	}
	return ""
}

func switchName(name string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(name)))
}
