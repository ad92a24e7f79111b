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

package hic

import (
	"context"
	"fmt"

	"github.com/googlegenomics/straw/internal/binary"
	"github.com/googlegenomics/straw/source"
)

// Estimated bytes per master index entry, used to size the speculative read
// of the index since its length is unknown until it is parsed.
const masterIndexEntrySize = 100 + 64 + 32

type footer struct {
	masterIndex map[string]IndexEntry

	// expectedPosition is the start of the expected value vectors that follow
	// the master index.  normExpectedPosition is the start of the normalized
	// expected value vectors (version 6 and later) or zero.
	expectedPosition     int64
	normExpectedPosition int64
}

func readFooter(ctx context.Context, src source.Source, h *Header) (*footer, error) {
	skip := 8
	if h.Version >= 9 {
		skip = 12
	}
	data, err := src.ReadRange(ctx, h.FooterPosition, skip)
	if err != nil {
		return nil, fmt.Errorf("reading footer size: %w", err)
	}

	c := binary.NewCursor(data)
	var nBytes int64
	if h.Version < 9 {
		nBytes = int64(c.Int())
	} else {
		nBytes = c.Long()
	}
	entries, err := readCount(c, "master index entry")
	if err != nil {
		return nil, err
	}
	if nBytes < 0 {
		return nil, fmt.Errorf("invalid footer size %d: %w", nBytes, ErrCorrupt)
	}

	size := int64(entries) * masterIndexEntrySize
	if size > nBytes {
		size = nBytes
	}
	data, err = source.ReadAvailable(ctx, src, h.FooterPosition+int64(skip), int(size))
	if err != nil {
		return nil, fmt.Errorf("reading master index: %w", err)
	}

	ft := &footer{masterIndex: make(map[string]IndexEntry, entries)}
	c = binary.NewCursor(data)
	for i := 0; i < entries; i++ {
		key := c.CString()
		position := c.Long()
		size := c.Int()
		ft.masterIndex[key] = IndexEntry{Position: position, Size: int64(size)}
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("reading master index: %w", err)
	}

	ft.expectedPosition = h.FooterPosition + int64(skip) + int64(c.Pos())
	if h.Version > 5 {
		width := int64(4)
		if h.Version >= 9 {
			width = 8
		}
		ft.normExpectedPosition = h.FooterPosition + width + nBytes
	}
	return ft, nil
}

// bodyEnd returns the offset of the first matrix, which bounds the header.
func (ft *footer) bodyEnd(fallback int64) int64 {
	end := fallback
	for _, entry := range ft.masterIndex {
		if entry.Position < end {
			end = entry.Position
		}
	}
	return end
}
