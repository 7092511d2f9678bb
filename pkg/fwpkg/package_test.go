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
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
)

func gb200Package(t *testing.T) []byte {
	return buildPLDM(t, "GB200-FW-25.05.09",
		[]testDevice{
			{name: "HGX_FW_GPU", sku: []byte{0x23, 0x35}, comps: []int{1}},
			{name: "HGX_FW_BMC", comps: []int{0}},
			{name: "UNUSED_DEVICE"},
		},
		[]testComp{
			{version: "GB200Nvl-25.05-A", image: []byte("bmc-image")},
			{version: "96.00.AB.00.01", image: []byte("gpu-image")},
		})
}

func TestParsePLDM(t *testing.T) {
	path := writeFile(t, "gb200.fwpkg", gb200Package(t))

	pkg := Open(path, Options{TempDir: t.TempDir()})
	defer pkg.Cleanup()

	require.NoError(t, pkg.Parse(context.Background()))
	assert.Equal(t, FormatPLDM, pkg.Format())
	assert.Equal(t, "GB200-FW-25.05.09", pkg.Version())
	assert.False(t, pkg.Combined())

	want := map[string]Index{
		"GB200-FW-25.05.09": {
			"HGX_FW_GPU": {Version: "96.00.AB.00.01", Descriptor: "2335"},
			"HGX_FW_BMC": {Version: "GB200Nvl-25.05-A", Descriptor: ""},
		},
	}
	assert.Equal(t, want, pkg.ComponentMap())
}

func TestParseIsIdempotent(t *testing.T) {
	path := writeFile(t, "gb200.fwpkg", gb200Package(t))

	pkg := Open(path, Options{TempDir: t.TempDir()})
	defer pkg.Cleanup()

	require.NoError(t, pkg.Parse(context.Background()))
	first := pkg.Index()["HGX_FW_GPU"].Version

	// a second parse must not go back to the file
	require.NoError(t, os.Remove(path))
	require.NoError(t, pkg.Parse(context.Background()))

	assert.Equal(t, first, pkg.Index()["HGX_FW_GPU"].Version)
	assert.Equal(t, pkg.ComponentMap(), pkg.ComponentMap())

	// callers cannot mutate the parsed map
	pkg.ComponentMap()["GB200-FW-25.05.09"]["HGX_FW_GPU"] = Entry{Version: "x"}
	assert.Equal(t, first, pkg.Index()["HGX_FW_GPU"].Version)
}

func TestParseCorruptPLDM(t *testing.T) {
	good := gb200Package(t)

	testCases := map[string][]byte{
		"checksum mismatch": func() []byte {
			b := append([]byte(nil), good...)
			b[40] ^= 0xFF
			return b
		}(),
		"truncated header": good[:30],
		"tiny file":        []byte("abc"),
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			tmp := t.TempDir()
			pkg := Open(writeFile(t, "bad.fwpkg", data), Options{TempDir: tmp})

			err := pkg.Parse(context.Background())
			require.Error(t, err)
			assert.True(t, fwerr.IsPackageParse(err))
			assert.Nil(t, pkg.ComponentMap())
			assert.Empty(t, pkg.Version())
			assert.Empty(t, pkg.TempDirs())

			entries, err := os.ReadDir(tmp)
			require.NoError(t, err)
			assert.Empty(t, entries)

			// the failure is sticky
			assert.Error(t, pkg.Parse(context.Background()))
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	pkg := Open(filepath.Join(t.TempDir(), "absent.fwpkg"), Options{})
	assert.True(t, fwerr.IsPackageParse(pkg.Validate()))
	assert.True(t, fwerr.IsPackageParse(pkg.Parse(context.Background())))
}

func combinedPackage(t *testing.T, dgxVersion, gpuVersion string) []byte {
	inner := buildPLDM(t, dgxVersion,
		[]testDevice{{name: "DGX_FW_GPU", sku: []byte{0x29, 0x01}, comps: []int{0}}},
		[]testComp{{version: gpuVersion, image: []byte("dgx-gpu")}})

	return buildPLDM(t, "HGX-DGX-B200-COMBINED-1.0",
		[]testDevice{{name: "HGX_FW_GPU", sku: []byte{0x23, 0x35}, comps: []int{0}}},
		[]testComp{
			{version: "HGX-B200-1.0", image: []byte("hgx-part")},
			{version: "DGX-B200-2.0", image: inner},
		})
}

func TestParseCombinedBundle(t *testing.T) {
	tmp := t.TempDir()
	pkg := Open(writeFile(t, "combined.fwpkg", combinedPackage(t, "DGX-B200-2.0", "97.00.01")), Options{TempDir: tmp})

	require.NoError(t, pkg.Parse(context.Background()))
	assert.True(t, pkg.Combined())
	assert.Equal(t, "DGX-B200-2.0", pkg.Version())
	assert.Equal(t, map[string]Index{
		"DGX-B200-2.0": {"DGX_FW_GPU": {Version: "97.00.01", Descriptor: "2901"}},
	}, pkg.ComponentMap())

	dirs := pkg.TempDirs()
	require.Len(t, dirs, 2)
	for _, d := range dirs {
		assert.DirExists(t, d)
	}

	require.NoError(t, pkg.Cleanup())
	require.NoError(t, pkg.Cleanup())
	for _, d := range dirs {
		assert.NoDirExists(t, d)
	}
}

func TestSequentialCombinedBundlesDoNotShareExtraction(t *testing.T) {
	tmp := t.TempDir()
	opts := Options{TempDir: tmp}

	a := Open(writeFile(t, "a.fwpkg", combinedPackage(t, "DGX-B200-2.0", "97.00.01")), opts)
	b := Open(writeFile(t, "b.fwpkg", combinedPackage(t, "DGX-B200-3.0", "98.00.02")), opts)

	require.NoError(t, a.Parse(context.Background()))
	require.NoError(t, b.Parse(context.Background()))

	assert.Equal(t, "97.00.01", a.Index()["DGX_FW_GPU"].Version)
	assert.Equal(t, "98.00.02", b.Index()["DGX_FW_GPU"].Version)

	aDirs, bDirs := a.TempDirs(), b.TempDirs()
	for _, d := range aDirs {
		assert.NotContains(t, bDirs, d)
	}

	require.NoError(t, a.Cleanup())
	for _, d := range bDirs {
		assert.DirExists(t, d)
	}
	require.NoError(t, b.Cleanup())
}

func TestCombinedBundleWithoutNestedComponent(t *testing.T) {
	data := buildPLDM(t, "HGX-DGX-B200-COMBINED-1.0",
		[]testDevice{{name: "HGX_FW_GPU", comps: []int{0}}},
		[]testComp{{version: "HGX-B200-1.0", image: []byte("x")}})

	pkg := Open(writeFile(t, "c.fwpkg", data), Options{TempDir: t.TempDir()})
	err := pkg.Parse(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no DGX component")
}

func tarPackage(t *testing.T, manifest any, gz bool) []byte {
	var buf bytes.Buffer
	var w = &buf

	var tw *tar.Writer
	var zw *gzip.Writer
	if gz {
		zw = gzip.NewWriter(w)
		tw = tar.NewWriter(zw)
	} else {
		tw = tar.NewWriter(w)
	}

	img := []byte("image-bytes")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "images/cpld.bin", Mode: 0o600, Size: int64(len(img)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(img)
	require.NoError(t, err)

	if manifest != nil {
		data, err := json.Marshal(manifest)
		require.NoError(t, err)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.json", Mode: 0o600, Size: int64(len(data)), Typeflag: tar.TypeReg}))
		_, err = tw.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	if zw != nil {
		require.NoError(t, zw.Close())
	}
	return buf.Bytes()
}

func TestParseTarManifest(t *testing.T) {
	manifest := map[string]any{
		"FW-ID": "NVSWITCH-TRAY-1.4",
		"Components": []map[string]any{
			{"ComponentName": "CPLD1", "Version": "0.1D"},
			{"ComponentName": "BIOS", "Version": "1.2.3", "SKU": "ABCD"},
		},
	}

	for name, gz := range map[string]bool{"plain": false, "gzip": true} {
		t.Run(name, func(t *testing.T) {
			pkg := Open(writeFile(t, "pkg.tar", tarPackage(t, manifest, gz)), Options{TempDir: t.TempDir()})
			require.NoError(t, pkg.Parse(context.Background()))

			assert.Equal(t, FormatTar, pkg.Format())
			assert.Equal(t, map[string]Index{
				"NVSWITCH-TRAY-1.4": {
					"CPLD1": {Version: "0.1D"},
					"BIOS":  {Version: "1.2.3", Descriptor: "abcd"},
				},
			}, pkg.ComponentMap())
			require.NotNil(t, pkg.Manifest())
			assert.Len(t, pkg.Manifest().Components, 2)
		})
	}
}

func TestParseTarManifestErrors(t *testing.T) {
	testCases := map[string]struct {
		manifest any
		wantMsg  string
	}{
		"no manifest":      {manifest: nil, wantMsg: "no JSON manifest"},
		"missing FW-ID":    {manifest: map[string]any{"Components": []any{map[string]any{"ComponentName": "a"}}}, wantMsg: "missing FW-ID"},
		"empty Components": {manifest: map[string]any{"FW-ID": "x", "Components": []any{}}, wantMsg: "missing Components"},
		"not an object":    {manifest: []int{1}, wantMsg: "invalid manifest"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			pkg := Open(writeFile(t, "pkg.tar", tarPackage(t, tc.manifest, false)), Options{TempDir: t.TempDir()})

			err := pkg.Parse(context.Background())
			require.Error(t, err)
			assert.True(t, fwerr.IsPackageParse(err))
			assert.Contains(t, err.Error(), tc.wantMsg)
			assert.Nil(t, pkg.ComponentMap())
			assert.Nil(t, pkg.Manifest())
		})
	}
}

func TestExecUnpacker(t *testing.T) {
	recs := Records{
		PackageVersion: "EXT-1.0",
		Devices:        []DeviceRecord{{Name: "FPGA", ApplicableComponents: []int{0}, Descriptors: []Descriptor{{Type: DescriptorVendorDefined, Title: "SKU", Data: []byte{0xBE, 0xEF}}}}},
		Components:     []ComponentImage{{Index: 0, Version: "2.1"}},
	}
	data, err := json.Marshal(recs)
	require.NoError(t, err)

	// the "package" is already the records document, so copying it is unpacking it
	unpacker := &ExecUnpacker{
		Command:     "cp",
		Args:        []string{PlaceholderPackage, filepath.Join(PlaceholderOutDir, DefaultRecordsFile)},
		ExtractArgs: []string{PlaceholderPackage, PlaceholderOutFile},
	}

	pkg := Open(writeFile(t, "ext.bin", data), Options{Unpacker: unpacker, TempDir: t.TempDir()})
	defer pkg.Cleanup()

	require.NoError(t, pkg.Parse(context.Background()))
	assert.Equal(t, Entry{Version: "2.1", Descriptor: "beef"}, pkg.Index()["FPGA"])

	out := filepath.Join(t.TempDir(), "c0.bin")
	require.NoError(t, unpacker.Extract(context.Background(), pkg.Path(), 0, out))
	assert.FileExists(t, out)
}

func TestExecUnpackerFailure(t *testing.T) {
	pkg := Open(writeFile(t, "ext.bin", []byte("x")), Options{Unpacker: &ExecUnpacker{Command: "false"}, TempDir: t.TempDir()})
	err := pkg.Parse(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unpacker false failed")
}

func TestPLDMExtract(t *testing.T) {
	path := writeFile(t, "gb200.fwpkg", gb200Package(t))
	out := filepath.Join(t.TempDir(), "gpu.bin")

	u := &PLDMUnpacker{}
	require.NoError(t, u.Extract(context.Background(), path, 1, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "gpu-image", string(data))

	assert.Error(t, u.Extract(context.Background(), path, 5, out))
}

func TestFamiliesIn(t *testing.T) {
	assert.Equal(t, []string{"HGX", "DGX"}, familiesIn("hgx-dgx-b200", DefaultFamilies))
	assert.Equal(t, []string{"DGX", "HGX"}, familiesIn("DGX_HGX", DefaultFamilies))
	assert.Equal(t, []string{"GB200"}, familiesIn("GB200-FW-1", DefaultFamilies))
	assert.Empty(t, familiesIn("1.2.3", DefaultFamilies))
}
