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

// Package fwpkg parses firmware packages into a per-component version map
// without installing them. Binary packages go through an Unpacker; tar
// packages carry a JSON manifest.
package fwpkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
)

// Entry is the package data for one component.
type Entry struct {
	Version    string
	Descriptor string // lower case hex of the vendor SKU; empty when the package has none
}

// Index maps a component descriptor name to its Entry.
type Index map[string]Entry

// Format is the container format of a package.
type Format string

const (
	FormatUnknown Format = ""
	FormatPLDM    Format = "pldm"
	FormatTar     Format = "tar"
)

// DefaultFamilies are the package family tokens recognized in package versions.
var DefaultFamilies = []string{"HGX", "DGX", "GB200", "GB300", "GH200", "MGX"}

// Options configures parsing.
type Options struct {
	Unpacker Unpacker // PLDMUnpacker when nil
	TempDir  string   // parent of extraction directories; os.TempDir() when empty
	Families []string // DefaultFamilies when nil
}

// Package is one firmware package file. Parse once, then read ComponentMap
// any number of times. Cleanup removes every extracted file.
type Package struct {
	path string
	opts Options

	mu       sync.Mutex
	parsed   bool
	parseErr error
	format   Format
	version  string
	combined bool
	index    map[string]Index
	manifest *Manifest
	tempDirs []string
	cleaned  bool
}

// Open returns an unparsed Package for path.
func Open(path string, opts Options) *Package {
	if opts.Unpacker == nil {
		opts.Unpacker = &PLDMUnpacker{}
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Families == nil {
		opts.Families = DefaultFamilies
	}

	return &Package{path: path, opts: opts}
}

// Path is the package file on disk.
func (p *Package) Path() string { return p.path }

// Name is the package file name.
func (p *Package) Name() string { return filepath.Base(p.path) }

// Validate checks the package file exists and is a regular file.
func (p *Package) Validate() error {
	info, err := os.Stat(p.path)
	if err != nil {
		return fwerr.Wrap(fwerr.KindPackageParse, "open "+p.path, err)
	}
	if !info.Mode().IsRegular() {
		return fwerr.New(fwerr.KindPackageParse, "open "+p.path, "not a regular file")
	}
	return nil
}

// Parse builds the component map. It is idempotent: later calls return the
// first result without touching the file again.
func (p *Package) Parse(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.parsed {
		return p.parseErr
	}
	p.parsed = true

	p.parseErr = p.parse(ctx)
	if p.parseErr != nil {
		p.format, p.version, p.combined = FormatUnknown, "", false
		p.index, p.manifest = nil, nil
		if err := p.removeTempDirs(); err != nil {
			log.WithError(err).Warn("Failed to clean up after a failed parse")
		}
		p.parseErr = fwerr.Wrap(fwerr.KindPackageParse, "parse "+p.Name(), p.parseErr)
	}

	return p.parseErr
}

func (p *Package) parse(ctx context.Context) error {
	if err := p.Validate(); err != nil {
		return err
	}

	format, gz, err := detect(p.path)
	if err != nil {
		return err
	}

	switch format {
	case FormatTar:
		m, err := readTarManifest(p.path, gz)
		if err != nil {
			return err
		}
		p.format, p.manifest, p.version = FormatTar, m, m.FWID
		p.index = map[string]Index{m.FWID: m.index()}
		return nil

	default:
		return p.parsePLDM(ctx)
	}
}

func (p *Package) parsePLDM(ctx context.Context) error {
	outDir, err := p.newTempDir()
	if err != nil {
		return err
	}

	recs, err := p.opts.Unpacker.Unpack(ctx, p.path, outDir)
	if err != nil {
		return err
	}

	fams := familiesIn(recs.PackageVersion, p.opts.Families)
	if len(fams) >= 2 {
		nested, err := p.unpackNested(ctx, recs, fams[1])
		if err != nil {
			return err
		}
		log.Debugf("Combined package %s (%s), using the nested %s package %s", p.Name(), recs.PackageVersion, fams[1], nested.PackageVersion)
		recs = nested
		p.combined = true
	}

	p.format = FormatPLDM
	p.version = recs.PackageVersion
	p.index = map[string]Index{recs.PackageVersion: buildIndex(recs)}

	return nil
}

// unpackNested extracts the component whose version names family into its
// own directory and parses it. Every call uses a fresh directory, so combined
// packages parsed one after the other never share extracted files.
func (p *Package) unpackNested(ctx context.Context, outer *Records, family string) (*Records, error) {
	comp, ok := lo.Find(outer.Components, func(c ComponentImage) bool {
		return strings.Contains(strings.ToUpper(c.Version), strings.ToUpper(family))
	})
	if !ok {
		return nil, fmt.Errorf("combined package %s has no %s component", outer.PackageVersion, family)
	}

	dir, err := p.newTempDir()
	if err != nil {
		return nil, err
	}

	nested := filepath.Join(dir, fmt.Sprintf("component-%d.bin", comp.Index))
	if err := p.opts.Unpacker.Extract(ctx, p.path, comp.Index, nested); err != nil {
		return nil, fmt.Errorf("failed to extract %s component: %w", family, err)
	}

	recs, err := p.opts.Unpacker.Unpack(ctx, nested, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nested %s package: %w", family, err)
	}

	return recs, nil
}

func (p *Package) newTempDir() (string, error) {
	dir := filepath.Join(p.opts.TempDir, "nvfwupd-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}
	p.tempDirs = append(p.tempDirs, dir)
	return dir, nil
}

// ComponentMap returns packageVersion -> descriptor name -> Entry. The result
// is a copy; nil before a successful Parse.
func (p *Package) ComponentMap() map[string]Index {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index == nil {
		return nil
	}

	out := make(map[string]Index, len(p.index))
	for ver, idx := range p.index {
		out[ver] = lo.Assign(idx)
	}
	return out
}

// Index returns the component index of the parsed package version.
func (p *Package) Index() Index {
	return p.ComponentMap()[p.Version()]
}

// Version is the package version, empty before a successful Parse.
func (p *Package) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Format is the detected container format.
func (p *Package) Format() Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

// Combined reports whether the package was a combined bundle re-parsed from its nested image.
func (p *Package) Combined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.combined
}

// Manifest is the tar manifest, nil for binary packages.
func (p *Package) Manifest() *Manifest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manifest
}

// Cleanup removes every extraction directory. It is safe to call any number of
// times; only the first call does work.
func (p *Package) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleaned {
		return nil
	}
	p.cleaned = true

	return p.removeTempDirs()
}

func (p *Package) removeTempDirs() error {
	var errs []error
	for _, dir := range p.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	p.tempDirs = nil

	return errors.Join(errs...)
}

// TempDirs lists the extraction directories still owned by the package.
func (p *Package) TempDirs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tempDirs...)
}

func buildIndex(recs *Records) Index {
	idx := Index{}
	for _, dev := range recs.Devices {
		comp, ok := firstApplicable(dev, recs.Components)
		if !ok {
			continue
		}

		key := dev.Name
		sku := dev.SKU()
		if existing, dup := idx[key]; dup && existing.Descriptor != sku {
			key = key + "_" + sku
		}

		idx[key] = Entry{Version: comp.Version, Descriptor: sku}
	}
	return idx
}

func firstApplicable(dev DeviceRecord, comps []ComponentImage) (ComponentImage, bool) {
	for _, i := range dev.ApplicableComponents {
		if i >= 0 && i < len(comps) {
			return comps[i], true
		}
	}
	return ComponentImage{}, false
}

// familiesIn returns the families named in version, ordered by first appearance.
func familiesIn(version string, families []string) []string {
	upper := strings.ToUpper(version)

	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, f := range lo.Uniq(families) {
		if pos := strings.Index(upper, strings.ToUpper(f)); pos >= 0 {
			hits = append(hits, hit{name: f, pos: pos})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	return lo.Map(hits, func(h hit, _ int) string { return h.name })
}

var gzipMagic = []byte{0x1f, 0x8b}

// detect sniffs the container format. gz reports a gzip compressed tar.
func detect(path string) (Format, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, false, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, false, err
	}
	head = head[:n]

	if bytes.HasPrefix(head, gzipMagic) {
		return FormatTar, true, nil
	}
	if len(head) >= 262 && bytes.Equal(head[257:262], []byte("ustar")) {
		return FormatTar, false, nil
	}

	return FormatPLDM, false, nil
}
