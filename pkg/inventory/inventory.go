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

// Package inventory merges what a controller runs with what a package carries.
package inventory

import (
	"context"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/access/nvue"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/platform"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// Path is the Redfish FirmwareInventory collection.
const Path = "/redfish/v1/UpdateService/FirmwareInventory"

const fetchWidth = 8

// Record is one firmware component of a controller.
type Record struct {
	Name        string
	URI         string
	Running     string
	Staged      string // inactive slot version; empty when none is reported
	StagedState string
	Package     string // empty without a package, platform.NA when the package has no match
	UpToDate    bool
	Comparable  bool // a package version was found
}

// UpToDateString renders the comparison for tables.
func (r Record) UpToDateString() string {
	switch {
	case !r.Comparable:
		return platform.NA
	case r.UpToDate:
		return "Yes"
	default:
		return "No"
	}
}

// member is what we read from one inventory resource.
type member struct {
	name, uri, running, staged, stagedState string
}

// Collect reads the firmware inventory and, when index is not nil, compares
// every component against the package.
func Collect(ctx context.Context, sess access.Session, b platform.Behavior, index fwpkg.Index) ([]Record, error) {
	var (
		members []member
		err     error
	)
	switch sess.Kind() {
	case target.TransportNVUE:
		members, err = nvueMembers(ctx, sess)
	case target.TransportSSH:
		err = fwerr.New(fwerr.KindProtocol, "inventory "+sess.Target().Name(), "firmware inventory is not available over ssh, use transport=nvue")
	default:
		members, err = redfishMembers(ctx, sess)
	}
	if err != nil {
		return nil, err
	}

	records := lo.Map(members, func(m member, _ int) Record {
		return compare(ctx, b, index, m)
	})
	sort.SliceStable(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func compare(ctx context.Context, b platform.Behavior, index fwpkg.Index, m member) Record {
	r := Record{Name: m.name, URI: m.uri, Running: m.running, Staged: m.staged, StagedState: m.stagedState}
	if index == nil || b == nil {
		return r
	}

	r.Package = platform.NA
	if b.IsFungible(m.name) {
		if id, ok := b.GetIdentifierFromChassis(ctx, m.uri); ok {
			r.Package = b.GetVersionForIdentifier(id, index, m.name)
		}
	}
	if r.Package == platform.NA {
		r.Package = b.GetComponentVersion(index, m.name)
	}

	if r.Package != platform.NA && r.Running != "" && r.Running != platform.NA {
		r.Comparable = true
		r.UpToDate = !b.IsPackageNewer(r.Package, r.Running)
	}
	return r
}

func redfishMembers(ctx context.Context, sess access.Session) ([]member, error) {
	resp, err := sess.Dispatch(ctx, http.MethodGet, Path, nil, access.ExpectJSON())
	if err != nil {
		return nil, err
	}

	uris := lo.FilterMap(listOf(resp.Lookup("Members")), func(item any, _ int) (string, bool) {
		m, _ := item.(map[string]any)
		uri, _ := m["@odata.id"].(string)
		return uri, uri != ""
	})

	logger := log.WithField("target", sess.Target().Name())
	out := make([]member, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWidth)
	for i, uri := range uris {
		g.Go(func() error {
			r, err := sess.Dispatch(gctx, http.MethodGet, uri, nil, access.ExpectJSON())
			if fwerr.IsConnectivity(err) || fwerr.IsAuthentication(err) {
				return err
			}
			if err != nil {
				// one unreadable member does not hide the rest
				logger.Warnf("Failed to read %s: %v", uri, err)
				out[i] = member{name: path.Base(uri), uri: uri, running: platform.NA}
				return nil
			}
			out[i] = memberOf(uri, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func memberOf(uri string, r *access.Response) member {
	m := member{
		name:    r.String("Id"),
		uri:     uri,
		running: strings.TrimSpace(r.String("Version")),
	}
	if m.name == "" {
		m.name = uri[strings.LastIndex(uri, "/")+1:]
	}
	m.staged = strings.TrimSpace(r.String("Oem", "Nvidia", "InactiveFirmwareSlot", "Version"))
	m.stagedState = r.String("Oem", "Nvidia", "InactiveFirmwareSlot", "FirmwareState")
	return m
}

func nvueMembers(ctx context.Context, sess access.Session) ([]member, error) {
	resp, err := sess.Dispatch(ctx, http.MethodGet, nvue.FirmwarePath, nil, access.ExpectJSON())
	if err != nil {
		return nil, err
	}

	out := make([]member, 0, len(resp.JSON))
	for name, v := range resp.JSON {
		obj, ok := v.(map[string]any)
		if !ok {
			log.WithField("target", sess.Target().Name()).Debugf("skipping firmware entry %s", name)
			continue
		}

		m := member{name: name, uri: nvue.FirmwarePath + "/" + name}
		m.running, _ = obj["actual-firmware"].(string)
		installed, _ := obj["installed-firmware"].(string)
		if m.running == "" {
			m.running = installed
		} else if installed != "" && installed != m.running {
			m.staged, m.stagedState = installed, "installed"
		}
		out = append(out, m)
	}
	return out, nil
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}
