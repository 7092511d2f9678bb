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

package fwpkg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Records is the structured description of a binary firmware package.
type Records struct {
	PackageVersion string           `json:"PackageVersion"`
	Devices        []DeviceRecord   `json:"Devices"`
	Components     []ComponentImage `json:"Components"`
}

// DeviceRecord is one firmware device the package applies to.
type DeviceRecord struct {
	Name                 string       `json:"Name"` // component image set version string
	ApplicableComponents []int        `json:"ApplicableComponents"`
	Descriptors          []Descriptor `json:"Descriptors"`
}

// Descriptor identifies a device. Title is set for vendor-defined descriptors.
type Descriptor struct {
	Type  uint16 `json:"Type"`
	Title string `json:"Title,omitempty"`
	Data  []byte `json:"Data"`
}

// ComponentImage is one image carried by the package.
type ComponentImage struct {
	Index           int    `json:"Index"`
	Classification  uint16 `json:"Classification"`
	Identifier      uint16 `json:"Identifier"`
	ComparisonStamp uint32 `json:"ComparisonStamp"`
	Offset          uint32 `json:"Offset"`
	Size            uint32 `json:"Size"`
	Version         string `json:"Version"`
}

// Unpacker turns a binary package into Records and extracts component images.
type Unpacker interface {
	// Unpack describes the package at path. outDir is scratch space owned by the caller.
	Unpack(ctx context.Context, path, outDir string) (*Records, error)

	// Extract writes the image of component index to outFile.
	Extract(ctx context.Context, path string, index int, outFile string) error
}

// Placeholders substituted in ExecUnpacker arguments.
const (
	PlaceholderPackage = "{package}"
	PlaceholderOutDir  = "{outdir}"
	PlaceholderIndex   = "{index}"
	PlaceholderOutFile = "{outfile}"
)

// DefaultRecordsFile is read from the output directory after the unpack command ran.
const DefaultRecordsFile = "records.json"

// ExecUnpacker runs an external tool. The unpack command must write a JSON
// encoded Records document named RecordsFile into the output directory.
type ExecUnpacker struct {
	Command     string
	Args        []string // unpack arguments
	ExtractArgs []string // extract arguments
	RecordsFile string
}

// Unpack runs the unpack command and reads back its records file.
func (u *ExecUnpacker) Unpack(ctx context.Context, path, outDir string) (*Records, error) {
	if err := u.run(ctx, u.Args, map[string]string{
		PlaceholderPackage: path,
		PlaceholderOutDir:  outDir,
	}); err != nil {
		return nil, err
	}

	name := u.RecordsFile
	if name == "" {
		name = DefaultRecordsFile
	}

	data, err := os.ReadFile(filepath.Join(outDir, name))
	if err != nil {
		return nil, fmt.Errorf("unpacker produced no records: %w", err)
	}

	var recs Records
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("invalid unpacker records: %w", err)
	}

	return &recs, nil
}

// Extract runs the extract command for one component.
func (u *ExecUnpacker) Extract(ctx context.Context, path string, index int, outFile string) error {
	if len(u.ExtractArgs) == 0 {
		return fmt.Errorf("unpacker %s has no extract arguments", u.Command)
	}

	if err := u.run(ctx, u.ExtractArgs, map[string]string{
		PlaceholderPackage: path,
		PlaceholderIndex:   strconv.Itoa(index),
		PlaceholderOutFile: outFile,
		PlaceholderOutDir:  filepath.Dir(outFile),
	}); err != nil {
		return err
	}

	if _, err := os.Stat(outFile); err != nil {
		return fmt.Errorf("unpacker did not extract component %d: %w", index, err)
	}

	return nil
}

func (u *ExecUnpacker) run(ctx context.Context, args []string, vars map[string]string) error {
	expanded := make([]string, len(args))
	for i, a := range args {
		for k, v := range vars {
			a = strings.ReplaceAll(a, k, v)
		}
		expanded[i] = a
	}

	cmd := exec.CommandContext(ctx, u.Command, expanded...)
	log.Debugf("Running unpacker: %s %s", u.Command, strings.Join(expanded, " "))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("unpacker %s failed: %w: %s", u.Command, err, strings.TrimSpace(string(out)))
	}

	return nil
}
