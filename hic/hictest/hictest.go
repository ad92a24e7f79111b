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

// Package hictest builds .hic files in memory for tests.
package hictest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/klauspost/compress/zlib"
)

// Block encodings of version 7 and later files.
const (
	Rows = iota
	Grid
)

// Record is a count for a pair of bins.  X is a bin of the first chromosome
// of the matrix and Y of the second.
type Record struct {
	X, Y   int32
	Counts float32
}

// Chromosome is a chromosome of the file.  The first chromosome is usually
// "All".
type Chromosome struct {
	Name string
	Size int64
}

// Zoom is one resolution of a matrix.  Records are distributed over blocks
// the way the file format requires.
type Zoom struct {
	Unit             string
	BinSize          int32
	BlockBinCount    int32
	BlockColumnCount int32
	Records          []Record

	// Encoding, ShortCounts and WidePositions select the block encoding of
	// version 7 and later files.  WidePositions only applies to version 9.
	Encoding      int
	ShortCounts   bool
	WidePositions bool
}

// Matrix is the contact matrix for a pair of chromosome indices with
// Chr1 <= Chr2.
type Matrix struct {
	Chr1, Chr2 int
	Zooms      []Zoom
}

// NormVector is a normalization vector for one chromosome and resolution.
type NormVector struct {
	Type    string
	Chr     int
	Unit    string
	BinSize int32
	Values  []float64
}

// Expected is an expected value vector.  Type is ignored for raw vectors.
type Expected struct {
	Type        string
	Unit        string
	BinSize     int32
	Values      []float64
	NormFactors map[int]float64
}

// File describes the contents of a .hic file.
type File struct {
	Version         int32
	Genome          string
	Attributes      map[string]string
	Chromosomes     []Chromosome
	BPResolutions   []int32
	FragResolutions []int32
	Matrices        []Matrix

	Expected     []Expected
	NormExpected []Expected
	NormVectors  []NormVector

	// OmitIndexPosition leaves the normalization vector index location out
	// of version 9 headers.
	OmitIndexPosition bool
}

// Layout records where parts of a file built by Bytes were written.
type Layout struct {
	FooterPosition   int64
	IndexPosition    int64
	IndexSize        int64
	Blocks           map[string]int // blocks written per zoom, keyed "chr1_chr2_unit_binSize"
	NormVectorOffset map[string]int64
}

type writer struct {
	bytes.Buffer
}

func (w *writer) put(v interface{}) {
	// Writes to a bytes.Buffer never fail.
	binary.Write(&w.Buffer, binary.LittleEndian, v)
}

func (w *writer) cstring(s string) {
	w.WriteString(s)
	w.WriteByte(0)
}

func (w *writer) pos() int64 {
	return int64(w.Len())
}

func (w *writer) patch(offset int64, v interface{}) {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, v)
	copy(w.Bytes()[offset:], b.Bytes())
}

type indexEntry struct {
	position int64
	size     int32
}

// Bytes encodes the file.
func (f *File) Bytes() ([]byte, error) {
	data, _, err := f.Build()
	return data, err
}

// MustBytes is like Bytes but panics on error.
func (f *File) MustBytes() []byte {
	data, err := f.Bytes()
	if err != nil {
		panic(err)
	}
	return data
}

// Build encodes the file and reports its layout.
func (f *File) Build() ([]byte, *Layout, error) {
	var (
		w      writer
		wide   = f.Version >= 9
		layout = &Layout{Blocks: make(map[string]int), NormVectorOffset: make(map[string]int64)}
	)

	w.cstring("HIC")
	w.put(f.Version)
	footerPatch := w.pos()
	w.put(int64(0))

	w.cstring(f.Genome)
	indexPatch := int64(-1)
	if wide {
		indexPatch = w.pos()
		w.put(int64(0))
		w.put(int64(0))
	}

	keys := make([]string, 0, len(f.Attributes))
	for key := range f.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	w.put(int32(len(keys)))
	for _, key := range keys {
		w.cstring(key)
		w.cstring(f.Attributes[key])
	}

	w.put(int32(len(f.Chromosomes)))
	for _, chr := range f.Chromosomes {
		w.cstring(chr.Name)
		if wide {
			w.put(chr.Size)
		} else {
			w.put(int32(chr.Size))
		}
	}
	w.put(int32(len(f.BPResolutions)))
	for _, r := range f.BPResolutions {
		w.put(r)
	}
	w.put(int32(len(f.FragResolutions)))
	for _, r := range f.FragResolutions {
		w.put(r)
	}

	// Blocks, then the matrix records that index them.
	blockIndices := make([][]map[int32]indexEntry, len(f.Matrices))
	for i, m := range f.Matrices {
		if m.Chr1 > m.Chr2 {
			return nil, nil, fmt.Errorf("matrix %d_%d is not ordered", m.Chr1, m.Chr2)
		}
		blockIndices[i] = make([]map[int32]indexEntry, len(m.Zooms))
		for j, z := range m.Zooms {
			if z.BlockBinCount <= 0 || z.BlockColumnCount <= 0 {
				return nil, nil, fmt.Errorf("zoom %s %d has no block layout", z.Unit, z.BinSize)
			}
			blocks := make(map[int32][]Record)
			for _, r := range z.Records {
				number := BlockNumber(f.Version, m.Chr1 == m.Chr2, z.BlockBinCount, z.BlockColumnCount, r.X, r.Y)
				blocks[number] = append(blocks[number], r)
			}
			numbers := make([]int32, 0, len(blocks))
			for number := range blocks {
				numbers = append(numbers, number)
			}
			sort.Slice(numbers, func(a, b int) bool { return numbers[a] < numbers[b] })

			index := make(map[int32]indexEntry, len(blocks))
			for _, number := range numbers {
				compressed, err := encodeBlock(f.Version, z, blocks[number])
				if err != nil {
					return nil, nil, err
				}
				index[number] = indexEntry{position: w.pos(), size: int32(len(compressed))}
				w.Write(compressed)
			}
			blockIndices[i][j] = index
			layout.Blocks[fmt.Sprintf("%d_%d_%s_%d", m.Chr1, m.Chr2, z.Unit, z.BinSize)] = len(blocks)
		}
	}

	masterIndex := make(map[string]indexEntry, len(f.Matrices))
	var matrixKeys []string
	for i, m := range f.Matrices {
		start := w.pos()
		w.put(int32(m.Chr1))
		w.put(int32(m.Chr2))
		w.put(int32(len(m.Zooms)))
		for j, z := range m.Zooms {
			var sum float32
			for _, r := range z.Records {
				sum += r.Counts
			}
			w.cstring(z.Unit)
			w.put(int32(j))
			w.put(sum)
			w.put(float32(len(z.Records)))
			w.put(float32(0))
			w.put(float32(0))
			w.put(z.BinSize)
			w.put(z.BlockBinCount)
			w.put(z.BlockColumnCount)

			index := blockIndices[i][j]
			numbers := make([]int32, 0, len(index))
			for number := range index {
				numbers = append(numbers, number)
			}
			sort.Slice(numbers, func(a, b int) bool { return numbers[a] < numbers[b] })
			w.put(int32(len(numbers)))
			for _, number := range numbers {
				w.put(number)
				w.put(index[number].position)
				w.put(index[number].size)
			}
		}
		key := fmt.Sprintf("%d_%d", m.Chr1, m.Chr2)
		masterIndex[key] = indexEntry{position: start, size: int32(w.pos() - start)}
		matrixKeys = append(matrixKeys, key)
	}

	nviEntries := make([]indexEntry, len(f.NormVectors))
	for i, nv := range f.NormVectors {
		start := w.pos()
		if wide {
			w.put(int64(len(nv.Values)))
		} else {
			w.put(int32(len(nv.Values)))
		}
		putFloats(&w, nv.Values, wide)
		nviEntries[i] = indexEntry{position: start, size: int32(w.pos() - start)}
		layout.NormVectorOffset[fmt.Sprintf("%s_%d_%s_%d", nv.Type, nv.Chr, nv.Unit, nv.BinSize)] = start
	}

	// Footer: its size, the master index and the raw expected values.
	footerPosition := w.pos()
	layout.FooterPosition = footerPosition
	w.patch(footerPatch, footerPosition)
	sizePatch := w.pos()
	if wide {
		w.put(int64(0))
	} else {
		w.put(int32(0))
	}
	footerStart := w.pos()
	w.put(int32(len(matrixKeys)))
	for _, key := range matrixKeys {
		w.cstring(key)
		w.put(masterIndex[key].position)
		w.put(masterIndex[key].size)
	}
	writeExpected(&w, f.Expected, false, wide)
	if wide {
		w.patch(sizePatch, w.pos()-footerStart)
	} else {
		w.patch(sizePatch, int32(w.pos()-footerStart))
	}

	if f.Version < 6 {
		return w.Bytes(), layout, nil
	}

	writeExpected(&w, f.NormExpected, true, wide)

	layout.IndexPosition = w.pos()
	w.put(int32(len(f.NormVectors)))
	for i, nv := range f.NormVectors {
		w.cstring(nv.Type)
		w.put(int32(nv.Chr))
		w.cstring(nv.Unit)
		w.put(nv.BinSize)
		w.put(nviEntries[i].position)
		if wide {
			w.put(int64(nviEntries[i].size))
		} else {
			w.put(nviEntries[i].size)
		}
	}
	layout.IndexSize = w.pos() - layout.IndexPosition
	if wide && !f.OmitIndexPosition {
		w.patch(indexPatch, layout.IndexPosition)
		w.patch(indexPatch+8, layout.IndexSize)
	}
	return w.Bytes(), layout, nil
}

func putFloats(w *writer, values []float64, wide bool) {
	for _, v := range values {
		if wide {
			w.put(float32(v))
		} else {
			w.put(v)
		}
	}
}

func writeExpected(w *writer, vectors []Expected, normalized, wide bool) {
	w.put(int32(len(vectors)))
	for _, e := range vectors {
		if normalized {
			w.cstring(e.Type)
		}
		w.cstring(e.Unit)
		w.put(e.BinSize)
		if wide {
			w.put(int64(len(e.Values)))
		} else {
			w.put(int32(len(e.Values)))
		}
		putFloats(w, e.Values, wide)

		chrs := make([]int, 0, len(e.NormFactors))
		for chr := range e.NormFactors {
			chrs = append(chrs, chr)
		}
		sort.Ints(chrs)
		w.put(int32(len(chrs)))
		for _, chr := range chrs {
			w.put(int32(chr))
			putFloats(w, []float64{e.NormFactors[chr]}, wide)
		}
	}
}

// BlockNumber returns the number of the block holding bins x and y.  Version
// 9 intra-chromosomal matrices are tiled along the diagonal; all others use a
// row major grid over the upper triangle.
func BlockNumber(version int32, intra bool, blockBinCount, blockColumnCount, x, y int32) int32 {
	if version >= 9 && intra {
		position := int32(math.Floor(float64(x+y) / 2 / float64(blockBinCount)))
		depth := int32(math.Floor(math.Log2(1 + math.Abs(float64(x-y))/math.Sqrt2/float64(blockBinCount))))
		return depth*blockColumnCount + position
	}
	column, row := x/blockBinCount, y/blockBinCount
	if intra && row < column {
		row, column = column, row
	}
	return row*blockColumnCount + column
}

func encodeBlock(version int32, z Zoom, records []Record) ([]byte, error) {
	var w writer
	w.put(int32(len(records)))
	switch {
	case version < 7:
		for _, r := range records {
			w.put(r.X)
			w.put(r.Y)
			w.put(r.Counts)
		}
	case z.Encoding == Grid:
		encodeGrid(&w, version, z, records)
	default:
		encodeRows(&w, version, z, records)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(w.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

func offsets(records []Record) (x0, y0, x1, y1 int32) {
	x0, y0 = math.MaxInt32, math.MaxInt32
	x1, y1 = math.MinInt32, math.MinInt32
	for _, r := range records {
		if r.X < x0 {
			x0 = r.X
		}
		if r.Y < y0 {
			y0 = r.Y
		}
		if r.X > x1 {
			x1 = r.X
		}
		if r.Y > y1 {
			y1 = r.Y
		}
	}
	return x0, y0, x1, y1
}

func putFlag(w *writer, set bool) {
	if set {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func blockHeader(w *writer, version int32, z Zoom, x0, y0 int32, blockType byte) {
	w.put(x0)
	w.put(y0)
	putFlag(w, !z.ShortCounts)
	if version >= 9 {
		putFlag(w, z.WidePositions)
		putFlag(w, z.WidePositions)
	}
	w.WriteByte(blockType)
}

func putCounts(w *writer, z Zoom, counts float32) {
	if z.ShortCounts {
		w.put(int16(counts))
	} else {
		w.put(counts)
	}
}

func encodeRows(w *writer, version int32, z Zoom, records []Record) {
	x0, y0, _, _ := offsets(records)
	wide := version >= 9 && z.WidePositions
	position := func(v int32) {
		if wide {
			w.put(v)
		} else {
			w.put(int16(v))
		}
	}

	rows := make(map[int32][]Record)
	var ys []int32
	for _, r := range records {
		if _, ok := rows[r.Y]; !ok {
			ys = append(ys, r.Y)
		}
		rows[r.Y] = append(rows[r.Y], r)
	}
	sort.Slice(ys, func(a, b int) bool { return ys[a] < ys[b] })

	blockHeader(w, version, z, x0, y0, 1)
	position(int32(len(ys)))
	for _, y := range ys {
		position(y - y0)
		position(int32(len(rows[y])))
		for _, r := range rows[y] {
			position(r.X - x0)
			putCounts(w, z, r.Counts)
		}
	}
}

func encodeGrid(w *writer, version int32, z Zoom, records []Record) {
	x0, y0, x1, y1 := offsets(records)
	width, height := x1-x0+1, y1-y0+1

	cells := make([]float32, width*height)
	set := make([]bool, len(cells))
	for _, r := range records {
		i := (r.Y-y0)*width + (r.X - x0)
		cells[i], set[i] = r.Counts, true
	}

	blockHeader(w, version, z, x0, y0, 2)
	w.put(int32(len(cells)))
	w.put(int16(width))
	for i, v := range cells {
		switch {
		case set[i]:
			putCounts(w, z, v)
		case z.ShortCounts:
			w.put(int16(math.MinInt16))
		default:
			w.put(float32(math.NaN()))
		}
	}
}
