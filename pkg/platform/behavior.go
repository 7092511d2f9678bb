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

// Package platform holds the per-family update behavior. Each family registers
// a Factory; New returns the Behavior for a Tag.
package platform

import (
	"context"
	"time"

	"github.com/nvidia/nvfwupd/pkg/access"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
)

// NA is reported when a version is unknown.
const NA = "N/A"

// Behavior allows us to have different platform implementations behind the
// same update flow.
type Behavior interface {
	// Tag is the platform family.
	Tag() Tag

	// IsFungible reports whether component instances are interchangeable and
	// must be matched to the package by SKU rather than by name.
	IsFungible(component string) bool

	// GetComponentVersion finds the package version for a named component.
	GetComponentVersion(index fwpkg.Index, apName string) string

	// GetIdentifierFromChassis reads the SKU or part number of the chassis
	// behind a FirmwareInventory member.
	GetIdentifierFromChassis(ctx context.Context, inventoryURI string) (string, bool)

	// GetVersionForIdentifier finds the package version for a SKU.
	GetVersionForIdentifier(identifier string, index fwpkg.Index, apName string) string

	// IsPackageNewer compares a package version against a running one.
	IsPackageNewer(pkgVersion, sysVersion string) bool

	// UpdateComponent pushes packageFile and returns the job id, or "" when
	// the controller did not create a task.
	UpdateComponent(ctx context.Context, args UpdateArgs, updateURI, packageFile string, timeout time.Duration) (string, error)

	// GetUpdateURI picks the push URI from an UpdateService resource.
	GetUpdateURI(updateService map[string]any) string
}

// RebootWaiter is implemented by platforms whose updates reboot the controller.
type RebootWaiter interface {
	NeedsRebootWait(pkg *fwpkg.Package) bool
}

// Describer gives a short human summary of a platform.
type Describer interface {
	Describe() string
}

// UpdateArgs are the per-update options.
type UpdateArgs struct {
	Package     *fwpkg.Package
	Targets     []string       // FirmwareInventory URIs to restrict the update to
	Component   string         // component name for platforms that update one component per push
	ForceUpdate bool           // update even when versions match
	Special     map[string]any // UpdateService PATCH applied before the push
}

// Push methods understood by ConfigTarget.
const (
	PushMethodHTTP      = "http_push"
	PushMethodMultipart = "multipart"
)

// PushConfig is the config-file override of the push method.
type PushConfig struct {
	Method     string
	URI        string
	Parameters map[string]any
}

// Deps are the collaborators handed to a platform Factory.
type Deps struct {
	Session access.Session
	Push    PushConfig
}
