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

package bam

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/googlegenomics/straw/internal/bgzf"
	"github.com/googlegenomics/straw/internal/binary"
)

const (
	baiMagic = "BAI\x01"
	csiMagic = "CSI\x01"

	// Auxiliary data of CSI files larger than this is rejected.
	maximumAuxiliaryLength = 1 << 20
)

// Errors returned while reading an index.
var (
	ErrInvalidIndex = errors.New("invalid index")
)

// ReadBAI reads a BAI index from r.
func ReadBAI(r io.Reader) (*Index, error) {
	r = bufio.NewReader(r)
	if err := binary.ExpectBytes(r, []byte(baiMagic)); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}

	idx := &Index{Format: BAI, MinShift: baiMinShift, Depth: baiDepth}
	err := idx.readReferences(r, func(r io.Reader, ref *Reference) error {
		var count int32
		if err := binary.Read(r, &count); err != nil {
			return fmt.Errorf("reading interval count: %w", err)
		}
		if count < 0 || count > maximumCount {
			return fmt.Errorf("%w: invalid interval count (%d intervals)", ErrInvalidIndex, count)
		}
		ref.Intervals = make([]bgzf.Address, count)
		if err := binary.Read(r, ref.Intervals); err != nil {
			return fmt.Errorf("reading offsets: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The number of unplaced reads is optional.
	var unplaced uint64
	switch err := binary.Read(r, &unplaced); {
	case err == nil:
		idx.Unplaced = unplaced
	case errors.Is(err, io.EOF):
	default:
		return nil, fmt.Errorf("reading unplaced read count: %w", err)
	}
	return idx, nil
}

// ReadCSI reads a gzip compressed CSI index from r.
func ReadCSI(r io.Reader) (*Index, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("initializing gzip reader: %w", err)
	}
	defer gz.Close()

	csi := bufio.NewReader(gz)
	if err := binary.ExpectBytes(csi, []byte(csiMagic)); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	var header struct {
		MinShift        int32
		Depth           int32
		AuxiliaryLength int32
	}
	if err := binary.Read(csi, &header); err != nil {
		return nil, fmt.Errorf("reading the csi header: %w", err)
	}
	if header.MinShift < 0 || header.Depth < 0 || header.MinShift+header.Depth*3 > 62 {
		return nil, fmt.Errorf("%w: unsupported binning scheme (min_shift %d, depth %d)", ErrInvalidIndex, header.MinShift, header.Depth)
	}
	if header.AuxiliaryLength < 0 || header.AuxiliaryLength > maximumAuxiliaryLength {
		return nil, fmt.Errorf("%w: invalid auxiliary length (%d bytes)", ErrInvalidIndex, header.AuxiliaryLength)
	}
	if _, err := io.CopyN(io.Discard, csi, int64(header.AuxiliaryLength)); err != nil {
		return nil, fmt.Errorf("reading past auxiliary data: %w", err)
	}

	idx := &Index{Format: CSI, MinShift: header.MinShift, Depth: header.Depth}
	if err := idx.readReferences(csi, nil); err != nil {
		return nil, err
	}

	var unplaced uint64
	switch err := binary.Read(csi, &unplaced); {
	case err == nil:
		idx.Unplaced = unplaced
	case errors.Is(err, io.EOF):
	default:
		return nil, fmt.Errorf("reading unplaced read count: %w", err)
	}
	return idx, nil
}

// readReferences reads the reference count followed by the bins of every
// reference.  If trailer is not nil, it is called after the bins of each
// reference.
func (idx *Index) readReferences(r io.Reader, trailer func(io.Reader, *Reference) error) error {
	var count int32
	if err := binary.Read(r, &count); err != nil {
		return fmt.Errorf("reading reference count: %w", err)
	}
	if count < 0 || count > maximumCount {
		return fmt.Errorf("%w: invalid reference count (%d references)", ErrInvalidIndex, count)
	}

	idx.References = make([]Reference, count)
	for i := range idx.References {
		ref := &idx.References[i]
		if err := idx.readBins(r, ref); err != nil {
			return fmt.Errorf("reference %d: %w", i, err)
		}
		if trailer != nil {
			if err := trailer(r, ref); err != nil {
				return fmt.Errorf("reference %d: %w", i, err)
			}
		}
	}
	return nil
}

func (idx *Index) readBins(r io.Reader, ref *Reference) error {
	var count int32
	if err := binary.Read(r, &count); err != nil {
		return fmt.Errorf("reading bin count: %w", err)
	}
	if count < 0 || count > maximumCount {
		return fmt.Errorf("%w: invalid bin count (%d bins)", ErrInvalidIndex, count)
	}

	metadata := pseudoBin(idx.Depth)
	ref.Bins = make([]Bin, 0, count)
	for j := int32(0); j < count; j++ {
		var bin Bin
		if err := binary.Read(r, &bin.ID); err != nil {
			return fmt.Errorf("reading bin header: %w", err)
		}
		if idx.Format == CSI {
			if err := binary.Read(r, &bin.Offset); err != nil {
				return fmt.Errorf("reading bin offset: %w", err)
			}
		}
		var chunks int32
		if err := binary.Read(r, &chunks); err != nil {
			return fmt.Errorf("reading chunk count: %w", err)
		}
		if chunks < 0 || chunks > maximumCount {
			return fmt.Errorf("%w: invalid chunk count (%d chunks)", ErrInvalidIndex, chunks)
		}
		bin.Chunks = make([]bgzf.Chunk, chunks)
		if err := binary.Read(r, bin.Chunks); err != nil {
			return fmt.Errorf("reading chunks: %w", err)
		}

		if bin.ID == metadata {
			if len(bin.Chunks) != 2 {
				return fmt.Errorf("%w: metadata bin has %d chunks", ErrInvalidIndex, len(bin.Chunks))
			}
			ref.Metadata = &Metadata{
				Start:    bin.Chunks[0].Start,
				End:      bin.Chunks[0].End,
				Mapped:   uint64(bin.Chunks[1].Start),
				Unmapped: uint64(bin.Chunks[1].End),
			}
			continue
		}
		ref.Bins = append(ref.Bins, bin)
	}
	return nil
}
