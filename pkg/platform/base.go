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
	"encoding/hex"
	"encoding/json"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/common/version"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

const (
	UpdateServicePath = "/redfish/v1/UpdateService"
	ChassisPath       = "/redfish/v1/Chassis/"
)

// profile is what tells one Redfish family apart from another.
type profile struct {
	tag             Tag
	namePrefixes    []string // lower case, stripped from component names
	nameSuffixes    []string // lower case, stripped from component names
	fungible        []string // lower case name prefixes of interchangeable components
	versionPrefixes []string // stripped before version comparison
	multipart       bool     // push through MultipartHttpPushUri when offered
	forceParam      bool     // send ForceUpdate in the multipart parameters
}

// base implements Behavior for Redfish families from a profile.
type base struct {
	profile
	sess   access.Session
	logger *log.Entry

	multipartURI string
}

func newBase(p profile, sess access.Session) *base {
	return &base{
		profile: p,
		sess:    sess,
		logger:  log.WithFields(log.Fields{"target": sess.Target().Name(), "platform": p.tag.Name}),
	}
}

func (b *base) Tag() Tag { return b.tag }

func (b *base) trim(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range b.namePrefixes {
		if strings.HasPrefix(n, p) {
			n = n[len(p):]
			break
		}
	}
	for _, s := range b.nameSuffixes {
		if strings.HasSuffix(n, s) {
			n = n[:len(n)-len(s)]
			break
		}
	}
	return n
}

// normalize reduces a component name to its comparable core. Names scoped to
// the HGX baseboard call their management controller the HMC.
func (b *base) normalize(name string) string {
	hgxScoped := strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "hgx_fw_")
	n := strings.NewReplacer("_", "", "-", "").Replace(b.trim(name))
	if hgxScoped {
		n = strings.Replace(n, "bmc", "hmc", 1)
	}
	return n
}

func (b *base) IsFungible(component string) bool {
	n := b.trim(component)
	return lo.SomeBy(b.fungible, func(prefix string) bool { return strings.HasPrefix(n, prefix) })
}

// GetComponentVersion matches the normalized names; the longest package name
// contained in the component name wins.
func (b *base) GetComponentVersion(index fwpkg.Index, apName string) string {
	want := b.normalize(apName)
	if want == "" {
		return NA
	}

	best, bestLen := NA, 0
	for _, key := range sortedKeys(index) {
		k := b.normalize(key)
		if k == "" {
			continue
		}
		if k == want {
			return index[key].Version
		}
		if strings.Contains(want, k) && len(k) > bestLen {
			best, bestLen = index[key].Version, len(k)
		}
	}
	return best
}

func (b *base) GetIdentifierFromChassis(ctx context.Context, inventoryURI string) (string, bool) {
	return chassisIdentifier(ctx, b.sess, inventoryURI)
}

func (b *base) GetVersionForIdentifier(identifier string, index fwpkg.Index, apName string) string {
	return versionForIdentifier(identifier, index, b.normalize(apName), b.normalize)
}

func (b *base) IsPackageNewer(pkgVersion, sysVersion string) bool {
	return version.IsNewer(pkgVersion, sysVersion, version.StripPrefixes(b.versionPrefixes...))
}

func (b *base) GetUpdateURI(updateService map[string]any) string {
	if b.multipart {
		if uri, _ := access.Lookup(updateService, "MultipartHttpPushUri").(string); uri != "" {
			b.multipartURI = uri
			return uri
		}
	}
	if uri, _ := access.Lookup(updateService, "HttpPushUri").(string); uri != "" {
		return uri
	}
	return UpdateServicePath
}

func (b *base) UpdateComponent(ctx context.Context, args UpdateArgs, updateURI, packageFile string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if err := patchUpdateService(ctx, b.sess, args.Special); err != nil {
		return "", err
	}

	if b.multipart && updateURI != "" && updateURI == b.multipartURI {
		params, err := json.Marshal(b.multipartParams(args))
		if err != nil {
			return "", fwerr.Wrap(fwerr.KindFatal, "update parameters", err)
		}

		b.logger.Infof("Pushing %s to %s (multipart)", path.Base(packageFile), updateURI)
		resp, err := b.sess.UploadMultipart(ctx, updateURI, packageFile, params)
		if err != nil {
			return "", err
		}
		return taskmonitor.JobID(resp), nil
	}

	if len(args.Targets) > 0 {
		if err := patchUpdateService(ctx, b.sess, map[string]any{"HttpPushUriTargets": args.Targets}); err != nil {
			return "", err
		}
	}

	b.logger.Infof("Pushing %s to %s", path.Base(packageFile), updateURI)
	resp, err := b.sess.UploadFile(ctx, updateURI, packageFile)
	if err != nil {
		return "", err
	}
	return taskmonitor.JobID(resp), nil
}

func (b *base) multipartParams(args UpdateArgs) map[string]any {
	targets := args.Targets
	if targets == nil {
		targets = []string{}
	}

	params := map[string]any{"Targets": targets}
	if b.forceParam || args.ForceUpdate {
		params["ForceUpdate"] = args.ForceUpdate
	}
	return params
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func patchUpdateService(ctx context.Context, sess access.Session, body map[string]any) error {
	if len(body) == 0 {
		return nil
	}
	_, err := sess.Dispatch(ctx, http.MethodPatch, UpdateServicePath, body)
	return err
}

// chassisIdentifier follows RelatedItem to the chassis of an inventory member,
// falling back to the chassis named like the member without its FW_ tag.
func chassisIdentifier(ctx context.Context, sess access.Session, inventoryURI string) (string, bool) {
	chassis := ""
	if resp, err := sess.Dispatch(ctx, http.MethodGet, inventoryURI, nil, access.SuppressErrors()); err == nil {
		items, _ := resp.Lookup("RelatedItem").([]any)
		for _, item := range items {
			m, _ := item.(map[string]any)
			id, _ := m["@odata.id"].(string)
			if uri := chassisRoot(id); uri != "" {
				chassis = uri
				break
			}
		}
	}
	if chassis == "" {
		chassis = ChassisPath + strings.Replace(path.Base(inventoryURI), "FW_", "", 1)
	}

	resp, err := sess.Dispatch(ctx, http.MethodGet, chassis, nil, access.SuppressErrors())
	if err != nil {
		return "", false
	}
	for _, key := range []string{"SKU", "PartNumber"} {
		if v := strings.TrimSpace(resp.String(key)); v != "" {
			return v, true
		}
	}
	return "", false
}

// chassisRoot cuts a URI below /Chassis/<id>.
func chassisRoot(uri string) string {
	idx := strings.Index(uri, ChassisPath)
	if idx < 0 {
		return ""
	}
	rest := uri[idx+len(ChassisPath):]
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return ""
	}
	return ChassisPath + id
}

func versionForIdentifier(identifier string, index fwpkg.Index, apName string, normalize func(string) string) string {
	id := descriptorForm(identifier)
	if id == "" {
		return NA
	}
	ascii := hex.EncodeToString([]byte(strings.TrimSpace(identifier)))

	matches := lo.Filter(sortedKeys(index), func(key string, _ int) bool {
		d := descriptorForm(index[key].Descriptor)
		return d != "" && (d == id || d == ascii)
	})

	switch len(matches) {
	case 0:
		return NA
	case 1:
		return index[matches[0]].Version
	}

	if key, ok := lo.Find(matches, func(key string) bool {
		k := normalize(key)
		return k != "" && strings.Contains(apName, k)
	}); ok {
		return index[key].Version
	}
	return index[matches[0]].Version
}

func descriptorForm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}

func sortedKeys(index fwpkg.Index) []string {
	keys := lo.Keys(index)
	sort.Strings(keys)
	return keys
}
