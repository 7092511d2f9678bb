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
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"
	"unicode/utf16"
)

// Descriptor types used by the component map.
const (
	DescriptorPCIVendorID    uint16 = 0x0000
	DescriptorIANAEnterprise uint16 = 0x0001
	DescriptorUUID           uint16 = 0x0002
	DescriptorVendorDefined  uint16 = 0xFFFF
)

// string types of version strings
const (
	strTypeUnknown uint8 = iota
	strTypeASCII
	strTypeUTF8
	strTypeUTF16
	strTypeUTF16LE
	strTypeUTF16BE
)

// maxHeaderSize bounds the header read so a corrupt size field cannot exhaust memory.
const maxHeaderSize = 16 << 20

var errShortHeader = errors.New("truncated package header")

// PLDMUnpacker reads firmware packages laid out as a PLDM firmware update
// package header followed by component images.
type PLDMUnpacker struct {
	// SkipChecksum disables the header CRC32 check.
	SkipChecksum bool
}

// Unpack parses the package header. outDir is not written to.
func (u *PLDMUnpacker) Unpack(_ context.Context, path, _ string) (*Records, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return u.read(f)
}

// Extract copies the image of component index to outFile.
func (u *PLDMUnpacker) Extract(ctx context.Context, path string, index int, outFile string) error {
	recs, err := u.Unpack(ctx, path, "")
	if err != nil {
		return err
	}

	if index < 0 || index >= len(recs.Components) {
		return fmt.Errorf("component %d out of range, package has %d", index, len(recs.Components))
	}
	comp := recs.Components[index]

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(outFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, io.NewSectionReader(in, int64(comp.Offset), int64(comp.Size)))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n != int64(comp.Size) {
		return fmt.Errorf("component %d truncated: %d of %d bytes", index, n, comp.Size)
	}

	return nil
}

func (u *PLDMUnpacker) read(r io.ReaderAt) (*Records, error) {
	// UUID(16) + revision(1) + header size(2)
	fixed := make([]byte, 19)
	if _, err := r.ReadAt(fixed, 0); err != nil {
		return nil, errShortHeader
	}

	size := int(binary.LittleEndian.Uint16(fixed[17:19]))
	if size < len(fixed)+4 || size > maxHeaderSize {
		return nil, fmt.Errorf("invalid package header size %d", size)
	}

	hdr := make([]byte, size)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, errShortHeader
	}

	if !u.SkipChecksum {
		want := binary.LittleEndian.Uint32(hdr[size-4:])
		if got := crc32.ChecksumIEEE(hdr[:size-4]); got != want {
			return nil, fmt.Errorf("package header checksum mismatch: got %08x, want %08x", got, want)
		}
	}

	return parseHeader(hdr[:size-4])
}

// cursor reads little endian fields and remembers the first overrun.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.off+n > len(c.b) {
		c.err = errShortHeader
		return nil
	}
	out := c.b[c.off : c.off+n]
	c.off += n
	return out
}

func (c *cursor) u8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) u32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) str(typ uint8, n int) string {
	return decodeString(typ, c.take(n))
}

func parseHeader(hdr []byte) (*Records, error) {
	c := &cursor{b: hdr}

	c.take(16) // identifier
	revision := c.u8()
	c.u16()    // header size
	c.take(13) // release date time
	bitmapLen := int(c.u16())
	verType := c.u8()
	verLen := int(c.u8())

	recs := &Records{PackageVersion: c.str(verType, verLen)}

	bitmapBytes := (bitmapLen + 7) / 8

	devCount := int(c.u8())
	for i := 0; i < devCount && c.err == nil; i++ {
		dev, err := parseDeviceRecord(c, bitmapBytes)
		if err != nil {
			return nil, fmt.Errorf("device record %d: %w", i, err)
		}
		recs.Devices = append(recs.Devices, dev)
	}

	if revision >= 2 {
		// downstream device records are not used for version lookup
		downCount := int(c.u8())
		for i := 0; i < downCount && c.err == nil; i++ {
			recLen := int(c.u16())
			c.take(recLen - 2)
		}
	}

	compCount := int(c.u16())
	for i := 0; i < compCount && c.err == nil; i++ {
		comp := ComponentImage{
			Index:           i,
			Classification:  c.u16(),
			Identifier:      c.u16(),
			ComparisonStamp: c.u32(),
		}
		c.u16() // options
		c.u16() // requested activation method
		comp.Offset = c.u32()
		comp.Size = c.u32()
		typ := c.u8()
		n := int(c.u8())
		comp.Version = c.str(typ, n)

		recs.Components = append(recs.Components, comp)
	}

	if c.err != nil {
		return nil, c.err
	}

	return recs, nil
}

func parseDeviceRecord(c *cursor, bitmapBytes int) (DeviceRecord, error) {
	start := c.off
	recLen := int(c.u16())
	descCount := int(c.u8())
	c.u32() // update option flags
	setType := c.u8()
	setLen := int(c.u8())
	pkgDataLen := int(c.u16())
	bitmap := c.take(bitmapBytes)
	name := c.str(setType, setLen)

	dev := DeviceRecord{Name: name}
	for bit := 0; bit < bitmapBytes*8; bit++ {
		if bitmap != nil && bitmap[bit/8]&(1<<(bit%8)) != 0 {
			dev.ApplicableComponents = append(dev.ApplicableComponents, bit)
		}
	}

	for i := 0; i < descCount && c.err == nil; i++ {
		d := Descriptor{Type: c.u16()}
		n := int(c.u16())
		data := c.take(n)

		if d.Type == DescriptorVendorDefined && len(data) >= 2 {
			titleType, titleLen := data[0], int(data[1])
			if 2+titleLen <= len(data) {
				d.Title = decodeString(titleType, data[2:2+titleLen])
				data = data[2+titleLen:]
			}
		}
		d.Data = append([]byte(nil), data...)

		dev.Descriptors = append(dev.Descriptors, d)
	}

	c.take(pkgDataLen)

	if c.err != nil {
		return dev, c.err
	}

	// honour the declared record length when it covers more than was read
	if end := start + recLen; recLen > 0 && end > c.off {
		c.take(end - c.off)
	} else if recLen > 0 && end < c.off {
		return dev, fmt.Errorf("record length %d shorter than its content", recLen)
	}

	return dev, c.err
}

// SKU returns the lower case hex of the vendor-defined SKU descriptor, or "".
func (d DeviceRecord) SKU() string {
	for _, desc := range d.Descriptors {
		if desc.Type == DescriptorVendorDefined && strings.EqualFold(strings.TrimSpace(desc.Title), "SKU") {
			return strings.ToLower(hex.EncodeToString(desc.Data))
		}
	}
	return ""
}

func decodeString(typ uint8, b []byte) string {
	switch typ {
	case strTypeUTF16, strTypeUTF16LE, strTypeUTF16BE:
		if len(b)%2 != 0 {
			b = b[:len(b)-1]
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			if typ == strTypeUTF16BE {
				units[i] = binary.BigEndian.Uint16(b[2*i:])
			} else {
				units[i] = binary.LittleEndian.Uint16(b[2*i:])
			}
		}
		return strings.TrimRight(string(utf16.Decode(units)), "\x00")
	default:
		return strings.TrimRight(string(b), "\x00")
	}
}
