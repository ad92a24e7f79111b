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
)

// Matrix holds the zoom levels stored for a pair of chromosomes.  Chr1 is
// never greater than Chr2.
type Matrix struct {
	Chr1, Chr2 int
	BP         []*ZoomData
	Frag       []*ZoomData
}

// ZoomData returns the zoom level for unit and binSize, or nil.
func (m *Matrix) ZoomData(unit string, binSize int32) *ZoomData {
	levels := m.BP
	if unit == UnitFrag {
		levels = m.Frag
	}
	for _, zd := range levels {
		if zd.BinSize == binSize {
			return zd
		}
	}
	return nil
}

// ZoomData is one resolution of a matrix: the layout of its blocks and the
// index locating them.
type ZoomData struct {
	Chr1, Chr2 Chromosome
	Unit       string
	ZoomIndex  int32
	BinSize    int32

	// BlockBinCount is the width of a block in bins and BlockColumnCount the
	// number of blocks in each row of the block grid.
	BlockBinCount    int32
	BlockColumnCount int32

	SumCounts         float32
	OccupiedCellCount float32
	StdDev            float32
	Percent95         float32

	blocks map[int32]IndexEntry
}

// Key identifies the zoom level within a file.
func (zd *ZoomData) Key() string {
	return fmt.Sprintf("%s_%s_%s_%d", zd.Chr1.Name, zd.Chr2.Name, zd.Unit, zd.BinSize)
}

// BlockCount returns the number of non-empty blocks.
func (zd *ZoomData) BlockCount() int {
	return len(zd.blocks)
}

// Block returns the location of the numbered block, if it exists.
func (zd *ZoomData) Block(number int32) (IndexEntry, bool) {
	entry, ok := zd.blocks[number]
	return entry, ok
}

// AverageCount returns the mean count over every cell of the matrix.
func (zd *ZoomData) AverageCount() float64 {
	bins1 := float64(zd.Chr1.Size) / float64(zd.BinSize)
	bins2 := float64(zd.Chr2.Size) / float64(zd.BinSize)
	return float64(zd.SumCounts) / bins1 / bins2
}

func matrixKey(a, b int) string {
	return fmt.Sprintf("%d_%d", a, b)
}

// Matrix returns the matrix for chromosomes a and b, in either order.  It
// returns an error wrapping ErrNoSuchMatrix if the file has no data for the
// pair.
func (f *File) Matrix(ctx context.Context, a, b int) (*Matrix, error) {
	if err := f.Init(ctx); err != nil {
		return nil, err
	}
	if a > b {
		a, b = b, a
	}
	if a < 0 || b >= len(f.header.Chromosomes) {
		return nil, fmt.Errorf("chromosome pair %d, %d out of range: %w", a, b, ErrUnknownChromosome)
	}

	key := matrixKey(a, b)
	if m, ok := f.matrices.Get(key); ok {
		return m, nil
	}

	v, err, _ := f.loads.Do("matrix:"+key, func() (interface{}, error) {
		if m, ok := f.matrices.Get(key); ok {
			return m, nil
		}
		entry, ok := f.footer.masterIndex[key]
		if !ok {
			return nil, fmt.Errorf("matrix %s: %w", key, ErrNoSuchMatrix)
		}
		data, err := f.src.ReadRange(ctx, entry.Position, int(entry.Size))
		if err != nil {
			return nil, fmt.Errorf("reading matrix %s: %w", key, err)
		}
		m, err := parseMatrix(data, f.header, a, b)
		if err != nil {
			return nil, fmt.Errorf("parsing matrix %s: %w", key, err)
		}
		f.matrices.Set(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Matrix), nil
}

func parseMatrix(data []byte, h *Header, a, b int) (*Matrix, error) {
	c := binary.NewCursor(data)
	m := &Matrix{Chr1: int(c.Int()), Chr2: int(c.Int())}
	if err := c.Err(); err != nil {
		return nil, err
	}
	if m.Chr1 != a || m.Chr2 != b {
		return nil, fmt.Errorf("matrix is for chromosomes %d and %d: %w", m.Chr1, m.Chr2, ErrCorrupt)
	}

	levels, err := readCount(c, "resolution")
	if err != nil {
		return nil, err
	}
	for i := 0; i < levels; i++ {
		zd, err := parseZoomData(c, h.Chromosomes[a], h.Chromosomes[b])
		if err != nil {
			return nil, fmt.Errorf("reading zoom level %d: %w", i, err)
		}
		if zd.Unit == UnitFrag {
			m.Frag = append(m.Frag, zd)
		} else {
			m.BP = append(m.BP, zd)
		}
	}
	return m, nil
}

func parseZoomData(c *binary.Cursor, chr1, chr2 Chromosome) (*ZoomData, error) {
	zd := &ZoomData{
		Chr1:              chr1,
		Chr2:              chr2,
		Unit:              c.CString(),
		ZoomIndex:         c.Int(),
		SumCounts:         c.Float(),
		OccupiedCellCount: c.Float(),
		StdDev:            c.Float(),
		Percent95:         c.Float(),
		BinSize:           c.Int(),
		BlockBinCount:     c.Int(),
		BlockColumnCount:  c.Int(),
	}
	n, err := readCount(c, "block")
	if err != nil {
		return nil, err
	}
	if zd.BinSize <= 0 || zd.BlockBinCount <= 0 || zd.BlockColumnCount <= 0 {
		return nil, fmt.Errorf("invalid block layout (bin size %d, %d bins and %d columns per block): %w",
			zd.BinSize, zd.BlockBinCount, zd.BlockColumnCount, ErrCorrupt)
	}

	zd.blocks = make(map[int32]IndexEntry, n)
	for i := 0; i < n; i++ {
		number := c.Int()
		position := c.Long()
		size := c.Int()
		zd.blocks[number] = IndexEntry{Position: position, Size: int64(size)}
	}
	return zd, c.Err()
}
