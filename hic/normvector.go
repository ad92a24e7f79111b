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
	"sync"

	"github.com/googlegenomics/straw/internal/binary"
	"github.com/googlegenomics/straw/source"
)

// Values are fetched with this many extra entries on each side of a request
// so that nearby queries are served from memory.
const normVectorWindowPadding = 1000

// NormalizationVector holds the per-bin scale factors of one chromosome at
// one resolution.  Values are read lazily.
type NormalizationVector struct {
	Type    string
	Chr     int
	Unit    string
	BinSize int32
	NValues int64

	src        source.Source
	position   int64
	valueWidth int64

	mu     sync.Mutex
	start  int64
	values []float64
}

// Values returns the entries in [start, end).  The result is shorter than
// requested if end is past the last entry.
func (nv *NormalizationVector) Values(ctx context.Context, start, end int64) ([]float64, error) {
	if start < 0 {
		start = 0
	}
	if end > nv.NValues {
		end = nv.NValues
	}
	if start >= end {
		return nil, nil
	}

	nv.mu.Lock()
	defer nv.mu.Unlock()

	if nv.values == nil || start < nv.start || end > nv.start+int64(len(nv.values)) {
		if err := nv.fetch(ctx, start, end); err != nil {
			return nil, err
		}
	}
	return append([]float64(nil), nv.values[start-nv.start:end-nv.start]...), nil
}

func (nv *NormalizationVector) fetch(ctx context.Context, start, end int64) error {
	start -= normVectorWindowPadding
	if start < 0 {
		start = 0
	}
	end += normVectorWindowPadding
	if end > nv.NValues {
		end = nv.NValues
	}

	data, err := nv.src.ReadRange(ctx, nv.position+start*nv.valueWidth, int((end-start)*nv.valueWidth))
	if err != nil {
		return fmt.Errorf("reading %s normalization values %d-%d: %w", nv.Type, start, end, err)
	}
	c := binary.NewCursor(data)
	values := make([]float64, end-start)
	for i := range values {
		if nv.valueWidth == 8 {
			values[i] = c.Double()
		} else {
			values[i] = float64(c.Float())
		}
	}
	if err := c.Err(); err != nil {
		return err
	}
	nv.start, nv.values = start, values
	return nil
}

// NormalizationVector returns the vector of normType for the named
// chromosome at a resolution.  It returns an error wrapping
// ErrNormalizationUnavailable if the file has no such vector.
func (f *File) NormalizationVector(ctx context.Context, normType, chr, unit string, binSize int32) (*NormalizationVector, error) {
	if err := f.Init(ctx); err != nil {
		return nil, err
	}
	idx, err := f.chromosomeIndex(chr)
	if err != nil {
		return nil, err
	}
	return f.normVector(ctx, normType, idx, unit, binSize)
}

// HasNormalizationVector reports whether the vector exists without reading it.
func (f *File) HasNormalizationVector(ctx context.Context, normType, chr, unit string, binSize int32) (bool, error) {
	if err := f.Init(ctx); err != nil {
		return false, err
	}
	idx, err := f.chromosomeIndex(chr)
	if err != nil {
		return false, err
	}
	_, ok, err := f.normVectorIndexEntry(ctx, normVectorKey(normType, idx, unit, binSize))
	return ok, err
}

func (f *File) normVector(ctx context.Context, normType string, chr int, unit string, binSize int32) (*NormalizationVector, error) {
	key := normVectorKey(normType, chr, unit, binSize)
	if nv, ok := f.normVectors.Get(key); ok {
		return nv, nil
	}

	entry, ok, err := f.normVectorIndexEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNormalizationUnavailable)
	}

	countWidth, valueWidth := valueWidths(f.header.Version)
	data, err := f.src.ReadRange(ctx, entry.Position, int(countWidth))
	if err != nil {
		return nil, fmt.Errorf("reading normalization vector %s: %w", key, err)
	}
	c := binary.NewCursor(data)
	var n int64
	if countWidth == 4 {
		n = int64(c.Int())
	} else {
		n = c.Long()
	}
	if n < 0 {
		return nil, fmt.Errorf("normalization vector %s has %d values: %w", key, n, ErrCorrupt)
	}

	nv := &NormalizationVector{
		Type:       normType,
		Chr:        chr,
		Unit:       unit,
		BinSize:    binSize,
		NValues:    n,
		src:        f.src,
		position:   entry.Position + countWidth,
		valueWidth: valueWidth,
	}
	f.normVectors.Set(key, nv)
	return nv, nil
}
