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
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testDevice struct {
	name  string
	sku   []byte
	comps []int
}

type testComp struct {
	version string
	image   []byte
}

// buildPLDM lays out a revision 1 package header followed by the component images.
func buildPLDM(t *testing.T, version string, devs []testDevice, comps []testComp) []byte {
	t.Helper()

	bitmapBytes := (len(comps) + 7) / 8
	if bitmapBytes == 0 {
		bitmapBytes = 1
	}

	build := func(size int) []byte {
		var b bytes.Buffer
		le := func(v any) { require.NoError(t, binary.Write(&b, binary.LittleEndian, v)) }

		b.Write(bytes.Repeat([]byte{0xAB}, 16))
		le(uint8(1))
		le(uint16(size))
		b.Write(make([]byte, 13))
		le(uint16(bitmapBytes * 8))
		le(uint8(1))
		le(uint8(len(version)))
		b.WriteString(version)

		le(uint8(len(devs)))
		for _, d := range devs {
			var rec bytes.Buffer
			rle := func(v any) { require.NoError(t, binary.Write(&rec, binary.LittleEndian, v)) }

			descs := 1
			if d.sku != nil {
				descs++
			}
			rle(uint8(descs))
			rle(uint32(0))
			rle(uint8(1))
			rle(uint8(len(d.name)))
			rle(uint16(0))
			bitmap := make([]byte, bitmapBytes)
			for _, c := range d.comps {
				bitmap[c/8] |= 1 << (c % 8)
			}
			rec.Write(bitmap)
			rec.WriteString(d.name)

			// IANA enterprise id
			rle(DescriptorIANAEnterprise)
			rle(uint16(4))
			rle(uint32(5703))

			if d.sku != nil {
				title := "SKU"
				rle(DescriptorVendorDefined)
				rle(uint16(2 + len(title) + len(d.sku)))
				rle(uint8(1))
				rle(uint8(len(title)))
				rec.WriteString(title)
				rec.Write(d.sku)
			}

			le(uint16(rec.Len() + 2))
			b.Write(rec.Bytes())
		}

		le(uint16(len(comps)))
		offset := size
		for i, c := range comps {
			le(uint16(0x000A))
			le(uint16(i))
			le(uint32(0))
			le(uint16(0))
			le(uint16(0))
			le(uint32(offset))
			le(uint32(len(c.image)))
			le(uint8(1))
			le(uint8(len(c.version)))
			b.WriteString(c.version)
			offset += len(c.image)
		}

		le(uint32(0)) // checksum placeholder
		return b.Bytes()
	}

	size := len(build(0))
	hdr := build(size)
	binary.LittleEndian.PutUint32(hdr[size-4:], crc32.ChecksumIEEE(hdr[:size-4]))

	out := append([]byte(nil), hdr...)
	for _, c := range comps {
		out = append(out, c.image...)
	}
	return out
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}
