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
	"math"

	"github.com/googlegenomics/straw/internal/bgzf"
	"github.com/googlegenomics/straw/internal/genomics"
)

// Format identifies the layout an Index was read from.
type Format string

// Index formats.
const (
	BAI Format = "BAI"
	CSI Format = "CSI"
)

const (
	// The binning scheme of BAI files, as specified in the SAM specification
	// section 5.1.1.
	baiMinShift = 14
	baiDepth    = 5

	// The size of each tiling window from the linear index, as specified in the
	// SAM specification section 5.1.3.
	linearWindowSize = 1 << baiMinShift

	// This is just to prevent arbitrarily long allocations due to malformed
	// data.
	maximumCount = 1 << 24
)

// Index holds the bins of a BAI or CSI index.
type Index struct {
	Format   Format
	MinShift int32
	Depth    int32

	References []Reference

	// Unplaced is the number of reads without a position, or zero if the
	// index does not record it.
	Unplaced uint64
}

// Reference holds the index of one reference sequence.
type Reference struct {
	Bins []Bin

	// Intervals is the linear index of BAI files: the address of the first
	// read overlapping each 16 kbp window.
	Intervals []bgzf.Address

	// Metadata is read from the pseudo-bin, if the index has one.
	Metadata *Metadata
}

// Bin is a bin of the binning index.
type Bin struct {
	ID uint32
	// Offset is the address of the first read overlapping the bin.  It is only
	// stored by CSI files.
	Offset bgzf.Address
	Chunks []bgzf.Chunk
}

// Metadata summarizes the reads placed on a reference.
type Metadata struct {
	Start, End       bgzf.Address
	Mapped, Unmapped uint64
}

// pseudoBin returns the ID of the bin holding metadata in an index of depth.
func pseudoBin(depth int32) uint32 {
	return uint32(((1<<uint((depth+1)*3))-1)/7) + 1
}

// Chunks returns the chunks that may hold reads overlapping region, merged
// where they touch.  The first chunk always covers the header of the indexed
// file, from its start to the first indexed read.
func (idx *Index) Chunks(region genomics.Region) []*bgzf.Chunk {
	return idx.chunks(region, math.MaxUint64)
}

// chunks is like Chunks but does not merge chunks into one larger than
// sizeLimit compressed bytes.
func (idx *Index) chunks(region genomics.Region, sizeLimit uint64) []*bgzf.Chunk {
	bins := binsForRange(region.Start, region.End, idx.MinShift, idx.Depth)

	header := &bgzf.Chunk{End: bgzf.LastAddress}
	var candidates []*bgzf.Chunk
	for i := range idx.References {
		ref := &idx.References[i]
		minimum := idx.linearOffset(ref, region)
		for _, bin := range ref.Bins {
			include := regionContainsBin(region, int32(i), bin.ID, bins)
			offset := minimum
			if idx.Format == CSI {
				offset = bin.Offset
			}
			for j := range bin.Chunks {
				chunk := bin.Chunks[j]
				if header.End > chunk.Start {
					header.End = chunk.Start
				}
				if include && chunk.End > offset {
					candidates = append(candidates, &chunk)
				}
			}
		}
	}
	return append([]*bgzf.Chunk{header}, bgzf.Merge(candidates, sizeLimit)...)
}

// linearOffset returns the smallest address at which reads overlapping
// region can end according to the linear index of ref.
func (idx *Index) linearOffset(ref *Reference, region genomics.Region) bgzf.Address {
	if region.ReferenceID < 0 {
		return 0
	}
	if i := int(region.Start / linearWindowSize); i < len(ref.Intervals) {
		return ref.Intervals[i]
	}
	return 0
}

func regionContainsBin(region genomics.Region, referenceID int32, binID uint32, bins []uint32) bool {
	if region.ReferenceID >= 0 && referenceID != region.ReferenceID {
		return false
	}

	if region.Start == 0 && region.End == 0 {
		return true
	}

	for _, id := range bins {
		if id == binID {
			return true
		}
	}
	return false
}

// binsForRange returns the bins overlapping [start, end) in a binning scheme
// with the given minimum shift and depth.  It is derived from the C examples
// in the CSI index specification.
func binsForRange(start, end uint32, minShift, depth int32) []uint32 {
	limit := uint32(math.MaxUint32)
	if width := uint64(1) << uint(minShift+depth*3); width < math.MaxUint32 {
		limit = uint32(width)
	}
	if end == 0 || end > limit {
		end = limit
	}
	if end <= start || start > limit {
		return nil
	}

	end--
	var bins []uint32
	for l, t, s := uint(0), uint64(0), uint(minShift+depth*3); l <= uint(depth); l++ {
		b := t + uint64(start>>s)
		e := t + uint64(end>>s)
		for i := b; i <= e; i++ {
			bins = append(bins, uint32(i))
		}
		s -= 3
		t += 1 << (l * 3)
	}
	return bins
}
