// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bgzf provides support for reading and writing BGZF blocks and for
// addressing data inside BGZF files.
package bgzf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

// LastAddress is the maximum valid BGZF address.
const LastAddress = Address(0xffffffffffffffff)

// MaximumBlockSize is the maximum size of a compressed or uncompressed block.
const MaximumBlockSize = 65536

// The fixed gzip header through XLEN, and the BGZF extra subfield.
const (
	headerSize    = 12
	subfieldSize  = 6
	minimumBlock  = headerSize + subfieldSize + 8
	subfieldBC    = "BC"
	subfieldBSize = 2
)

var (
	// ErrInvalidBlock is returned when data does not start with a BGZF block.
	ErrInvalidBlock = errors.New("invalid BGZF block")
)

// Address is a BGZF virtual file offset.  The upper 48 bits are the offset of
// a compressed block in the file and the lower 16 bits an offset in the
// uncompressed data of that block.
type Address uint64

// NewAddress returns the Address of dataOffset in the block at blockOffset.
func NewAddress(blockOffset uint64, dataOffset uint16) Address {
	return Address(blockOffset<<16 | uint64(dataOffset))
}

// BlockOffset returns the offset of the compressed block.
func (v Address) BlockOffset() uint64 {
	return uint64(v >> 16)
}

// DataOffset returns the offset in the uncompressed block.
func (v Address) DataOffset() uint16 {
	return uint16(v & 0xffff)
}

// String formats v in hexadecimal so that ParseAddress can read it back.
func (v Address) String() string {
	return strconv.FormatUint(uint64(v), 16)
}

// ParseAddress parses an Address formatted by String.
func ParseAddress(input string) (Address, error) {
	v, err := strconv.ParseUint(input, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing address %q: %w", input, err)
	}
	return Address(v), nil
}

// Chunk is the data between two addresses of a BGZF file.  End is exclusive.
type Chunk struct {
	Start, End Address
}

func (c *Chunk) String() string {
	return fmt.Sprintf("[%s-%s]", c.Start, c.End)
}

// Merge sorts chunks and joins those that overlap or touch, unless the result
// could exceed sizeLimit compressed bytes.  The input slice is reordered.
func Merge(chunks []*Chunk, sizeLimit uint64) []*Chunk {
	if len(chunks) == 0 {
		return nil
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Start < chunks[j].Start
	})

	current := &Chunk{Start: chunks[0].Start, End: chunks[0].End}
	merged := []*Chunk{current}
	for _, c := range chunks[1:] {
		var size uint64
		if c.End.BlockOffset() == current.Start.BlockOffset() {
			size = uint64(c.End.DataOffset() - current.Start.DataOffset())
		} else {
			// The last block may be as large as the maximum.
			size = c.End.BlockOffset() - current.Start.BlockOffset() + MaximumBlockSize
		}

		if c.Start <= current.End && size <= sizeLimit {
			if current.End < c.End {
				current.End = c.End
			}
			continue
		}
		current = &Chunk{Start: c.Start, End: c.End}
		merged = append(merged, current)
	}
	return merged
}

// BlockSize returns the compressed size of the BGZF block at the start of
// data, which must hold at least its header.
func BlockSize(data []byte) (int, error) {
	if len(data) < headerSize {
		return 0, fmt.Errorf("block header of %d bytes: %w", len(data), ErrInvalidBlock)
	}
	if data[0] != 0x1f || data[1] != 0x8b || data[2] != 8 || data[3]&4 == 0 {
		return 0, fmt.Errorf("wrong gzip magic %x: %w", data[:4], ErrInvalidBlock)
	}

	extra := int(binary.LittleEndian.Uint16(data[10:12]))
	if len(data) < headerSize+extra {
		return 0, fmt.Errorf("truncated extra field: %w", ErrInvalidBlock)
	}
	fields := data[headerSize : headerSize+extra]
	for len(fields) >= 4 {
		length := int(binary.LittleEndian.Uint16(fields[2:4]))
		if len(fields) < 4+length {
			break
		}
		if string(fields[:2]) == subfieldBC && length == subfieldBSize {
			return int(binary.LittleEndian.Uint16(fields[4:6])) + 1, nil
		}
		fields = fields[4+length:]
	}
	return 0, fmt.Errorf("missing BSIZE subfield: %w", ErrInvalidBlock)
}

// DecodeBlock inflates the BGZF block at the start of data and returns the
// uncompressed bytes and the compressed size of the block.
func DecodeBlock(data []byte) ([]byte, int, error) {
	size, err := BlockSize(data)
	if err != nil {
		return nil, 0, err
	}
	if size < minimumBlock || size > len(data) {
		return nil, 0, fmt.Errorf("block of %d bytes with %d available: %w", size, len(data), ErrInvalidBlock)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(data[:size]))
	if err != nil {
		return nil, 0, fmt.Errorf("initializing gzip reader: %w", err)
	}
	defer gzr.Close()
	gzr.Multistream(false)

	inflated, err := ioutil.ReadAll(io.LimitReader(gzr, MaximumBlockSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("decompressing block: %w", err)
	}
	if len(inflated) > MaximumBlockSize {
		return nil, 0, fmt.Errorf("block inflates past %d bytes: %w", MaximumBlockSize, ErrInvalidBlock)
	}
	return inflated, size, nil
}

// EncodeBlock returns a single BGZF block holding data.
func EncodeBlock(data []byte) ([]byte, error) {
	if len(data) > MaximumBlockSize {
		return nil, errors.New("data exceeds maximum block size")
	}

	var buffer bytes.Buffer
	gzw := gzip.NewWriter(&buffer)
	gzw.Header.Extra = []byte{
		'B', 'C',
		subfieldBSize, 0,
		0, 0, // BSIZE, patched below.
	}
	if _, err := gzw.Write(data); err != nil {
		return nil, fmt.Errorf("writing compressed data: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}

	encoded := buffer.Bytes()
	if len(encoded) > MaximumBlockSize {
		return nil, errors.New("compressed block exceeds maximum block size")
	}
	binary.LittleEndian.PutUint16(encoded[16:18], uint16(len(encoded)-1))
	return encoded, nil
}

// EOF is the empty block that terminates BGZF files.
var EOF = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}
