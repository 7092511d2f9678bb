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
	"strings"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// ReadUpdateService fetches the UpdateService and fails when updates are disabled.
func ReadUpdateService(ctx context.Context, sess access.Session) (map[string]any, error) {
	resp, err := sess.Dispatch(ctx, http.MethodGet, UpdateServicePath, nil, access.ExpectJSON())
	if err != nil {
		return nil, err
	}
	if enabled, ok := resp.Lookup("ServiceEnabled").(bool); ok && !enabled {
		return nil, fwerr.New(fwerr.KindProtocol, access.Op(http.MethodGet, UpdateServicePath), "update service is disabled")
	}
	return resp.JSON, nil
}

// SetForceUpdate toggles HttpPushUriOptions.ForceUpdate.
func SetForceUpdate(ctx context.Context, sess access.Session, enable bool) error {
	body := map[string]any{
		"HttpPushUriOptions": map[string]any{
			"ForceUpdate": enable,
		},
	}
	_, err := sess.Dispatch(ctx, http.MethodPatch, UpdateServicePath, body)
	return err
}

// ForceUpdateStatus reads HttpPushUriOptions.ForceUpdate.
func ForceUpdateStatus(ctx context.Context, sess access.Session) (bool, error) {
	resp, err := sess.Dispatch(ctx, http.MethodGet, UpdateServicePath, nil, access.ExpectJSON())
	if err != nil {
		return false, err
	}
	enabled, ok := resp.Lookup("HttpPushUriOptions", "ForceUpdate").(bool)
	if !ok {
		return false, fwerr.New(fwerr.KindProtocol, access.Op(http.MethodGet, UpdateServicePath), "ForceUpdate is not reported").WithBody(resp.Body)
	}
	return enabled, nil
}

// Resolve picks the platform of a reachable session. A configured platform
// must be reachable over the session's transport; otherwise the platform is
// derived from what the controller reports.
func Resolve(ctx context.Context, sess access.Session) (Tag, error) {
	t := sess.Target()
	op := "platform " + t.Name()

	if t.Platform != "" {
		tag := ParseTag(t.Platform)
		if err := tag.IsSupported(); err != nil {
			return tag, fwerr.Wrap(fwerr.KindPlatformMismatch, op, err)
		}
		if !tag.ReachableOver(sess.Kind()) {
			return tag, fwerr.New(fwerr.KindPlatformMismatch, op, "%s is not reachable over %s", tag.Name, sess.Kind())
		}
		return tag, nil
	}

	if kind := sess.Kind(); kind == target.TransportNVUE || kind == target.TransportSSH {
		return CodeToTag(TagCodeNVSwitch), nil
	}
	return detect(ctx, sess)
}

var modelHints = []struct {
	hint string
	code TagCode
}{
	{"gb200", TagCodeGB200},
	{"gb300", TagCodeGB200},
	{"gh200", TagCodeGH200},
	{"mgx", TagCodeGH200},
	{"power shelf", TagCodePowerShelf},
	{"powershelf", TagCodePowerShelf},
	{"dgx", TagCodeDGX},
	{"hgx", TagCodeHGX},
}

func detect(ctx context.Context, sess access.Session) (Tag, error) {
	clues := []string{strings.ToLower(sess.Identity().Model)}

	if resp, err := sess.Dispatch(ctx, http.MethodGet, strings.TrimSuffix(ChassisPath, "/"), nil, access.SuppressErrors()); err == nil {
		members, _ := resp.Lookup("Members").([]any)
		for _, m := range members {
			if obj, ok := m.(map[string]any); ok {
				id, _ := obj["@odata.id"].(string)
				clues = append(clues, strings.ToLower(id))
			}
		}
	}

	for _, h := range modelHints {
		for _, c := range clues {
			if strings.Contains(c, h.hint) {
				return CodeToTag(h.code), nil
			}
		}
	}

	return Tag{}, fwerr.New(fwerr.KindPlatformMismatch, "platform "+sess.Target().Name(),
		"cannot determine the platform from %q", clues)
}
