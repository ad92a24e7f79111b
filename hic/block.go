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
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/googlegenomics/straw/internal/binary"
)

// Block type identifiers of version 7 and later files.
const (
	blockTypeRows = 1
	blockTypeGrid = 2
)

// Marks an empty cell of a grid block with short counts.
const emptyShortCount = math.MinInt16

// Block is a decoded tile of a contact matrix.
type Block struct {
	Number  int32
	ZoomKey string
	Records []ContactRecord
}

// readBlock fetches and decodes the numbered block of zd.  Missing blocks
// are not an error: a nil Block is returned.
func (f *File) readBlock(ctx context.Context, number int32, zd *ZoomData) (*Block, error) {
	entry, ok := zd.Block(number)
	if !ok {
		return nil, nil
	}
	compressed, err := f.src.ReadRange(ctx, entry.Position, int(entry.Size))
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", number, err)
	}
	data, err := inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("inflating block %d: %w", number, err)
	}
	records, err := decodeBlockRecords(data, f.header.Version)
	if err != nil {
		return nil, fmt.Errorf("decoding block %d of %s: %w", number, zd.Key(), err)
	}
	return &Block{Number: number, ZoomKey: zd.Key(), Records: records}, nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// decodeBlockRecords decodes an inflated block.  Files before version 7 store
// plain (x, y, count) triples; later files start with a header selecting
// either a list of rows or a dense grid.
func decodeBlockRecords(data []byte, version int32) ([]ContactRecord, error) {
	c := binary.NewCursor(data)
	n, err := readCount(c, "record")
	if err != nil {
		return nil, err
	}
	// A record takes at least four bytes, which bounds the allocation for
	// corrupt counts.
	capacity := n
	if limit := len(data) / 4; capacity > limit {
		capacity = limit
	}
	records := make([]ContactRecord, 0, capacity)

	if version < 7 {
		for i := 0; i < n && c.Err() == nil; i++ {
			records = append(records, ContactRecord{Bin1: c.Int(), Bin2: c.Int(), Counts: c.Float()})
		}
		if err := c.Err(); err != nil {
			return nil, err
		}
		return records, nil
	}

	var (
		xOffset       = c.Int()
		yOffset       = c.Int()
		floatCounts   = c.Byte() == 1
		intXPositions bool
		intYPositions bool
	)
	if version >= 9 {
		intXPositions = c.Byte() == 1
		intYPositions = c.Byte() == 1
	}
	blockType := c.Byte()
	if err := c.Err(); err != nil {
		return nil, err
	}

	readCounts := func() float32 {
		if floatCounts {
			return c.Float()
		}
		return float32(c.Short())
	}

	switch blockType {
	case blockTypeRows:
		rows := readPosition(c, intYPositions)
		for i := int32(0); i < rows && c.Err() == nil; i++ {
			y := yOffset + readPosition(c, intYPositions)
			columns := readPosition(c, intXPositions)
			for j := int32(0); j < columns && c.Err() == nil; j++ {
				x := xOffset + readPosition(c, intXPositions)
				records = append(records, ContactRecord{Bin1: x, Bin2: y, Counts: readCounts()})
			}
		}

	case blockTypeGrid:
		points := c.Int()
		width := int32(c.Short())
		if c.Err() == nil && points > 0 && width <= 0 {
			return nil, fmt.Errorf("grid block with width %d: %w", width, ErrCorrupt)
		}
		for i := int32(0); i < points && c.Err() == nil; i++ {
			row, column := i/width, i%width
			record := ContactRecord{Bin1: xOffset + column, Bin2: yOffset + row}
			if floatCounts {
				record.Counts = c.Float()
				if math.IsNaN(float64(record.Counts)) {
					continue
				}
			} else {
				counts := c.Short()
				if counts == emptyShortCount {
					continue
				}
				record.Counts = float32(counts)
			}
			records = append(records, record)
		}

	default:
		return nil, fmt.Errorf("block type %d: %w", blockType, ErrUnknownBlockType)
	}

	if err := c.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func readPosition(c *binary.Cursor, wide bool) int32 {
	if wide {
		return c.Int()
	}
	return int32(c.Short())
}
