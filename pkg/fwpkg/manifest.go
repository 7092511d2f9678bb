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
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Manifest describes the components of a tar package.
type Manifest struct {
	FWID       string              `json:"FW-ID"`
	Components []ManifestComponent `json:"Components"`
}

// ManifestComponent is one manifest entry.
type ManifestComponent struct {
	Name     string `json:"ComponentName"`
	Version  string `json:"Version"`
	SKU      string `json:"SKU,omitempty"`
	FileName string `json:"FileName,omitempty"`
}

// Validate checks the required keys are present and non-empty.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.FWID) == "" {
		return errors.New("manifest is missing FW-ID")
	}
	if len(m.Components) == 0 {
		return errors.New("manifest is missing Components")
	}
	return nil
}

func (m *Manifest) index() Index {
	idx := Index{}
	for _, c := range m.Components {
		if c.Name == "" {
			continue
		}
		idx[c.Name] = Entry{Version: c.Version, Descriptor: strings.ToLower(strings.TrimSpace(c.SKU))}
	}
	return idx
}

// readTarManifest finds and validates the first *.json member of the archive.
func readTarManifest(file string, gz bool) (*Manifest, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("tar package has no JSON manifest")
		}
		if err != nil {
			return nil, fmt.Errorf("invalid tar package: %w", err)
		}

		if hdr.Typeflag != tar.TypeReg || !strings.EqualFold(path.Ext(hdr.Name), ".json") {
			continue
		}

		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, fmt.Errorf("invalid manifest %s: %w", hdr.Name, err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", hdr.Name, err)
		}

		return &m, nil
	}
}
