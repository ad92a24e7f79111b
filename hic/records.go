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
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ContactRecords returns the records of the matrix for r1 and r2 at the
// resolution given by unit and binSize.  Unless normType is empty or None,
// counts are divided by the normalization values of both bins, and records
// whose bins have no usable normalization value are dropped.
//
// Bin1 of every record lies in r1 and Bin2 in r2, whichever order the
// underlying matrix is stored in.  Unknown chromosomes and chromosome pairs
// without data yield no records; a resolution the matrix does not have is an
// error wrapping ErrResolutionUnavailable.
func (f *File) ContactRecords(ctx context.Context, normType string, r1, r2 Region, unit string, binSize int32) ([]ContactRecord, error) {
	if err := f.Init(ctx); err != nil {
		return nil, err
	}
	if binSize <= 0 {
		return nil, fmt.Errorf("invalid bin size %d", binSize)
	}
	log := f.log.WithFields(logrus.Fields{"region1": r1.String(), "region2": r2.String(), "binSize": binSize})

	idx1, err := f.chromosomeIndex(r1.Chr)
	if err != nil {
		return nil, warnIfUnknown(log, err)
	}
	idx2, err := f.chromosomeIndex(r2.Chr)
	if err != nil {
		return nil, warnIfUnknown(log, err)
	}

	// Matrices are stored with the lower chromosome index as the x axis, and
	// intra-chromosomal matrices hold the upper triangle.
	transposed := idx1 > idx2 || (idx1 == idx2 && r1.Start >= r2.End)
	requested := r1.Chr + "-" + r2.Chr
	if transposed {
		r1, r2 = r2, r1
		idx1, idx2 = idx2, idx1
	}

	m, err := f.Matrix(ctx, idx1, idx2)
	if errors.Is(err, ErrNoSuchMatrix) {
		log.Warnf("No matrix for %s-%s", r1.Chr, r2.Chr)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	zd := m.ZoomData(unit, binSize)
	if zd == nil {
		return nil, fmt.Errorf("%s %d for %s: %w", unit, binSize, requested, ErrResolutionUnavailable)
	}

	x, y := newBinRange(r1, binSize), newBinRange(r2, binSize)
	blocks, err := f.blocksFor(ctx, zd, x, y)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	var (
		xFirst = firstBin(x)
		yFirst = firstBin(y)
		xNorm  []float64
		yNorm  []float64
	)
	normalize := normType != "" && normType != None
	if normalize {
		xNorm, yNorm, err = f.normValues(ctx, normType, idx1, idx2, unit, binSize, x, y)
		if errors.Is(err, ErrNormalizationUnavailable) {
			log.Warnf("Normalization %s unavailable, using raw counts: %v", normType, err)
			normalize = false
		} else if err != nil {
			return nil, err
		}
	}

	var records []ContactRecord
	for _, block := range blocks {
		for _, record := range block.Records {
			bin1, bin2 := float64(record.Bin1), float64(record.Bin2)
			if bin1 < x.start || bin1 >= x.end || bin2 < y.start || bin2 >= y.end {
				continue
			}
			if normalize {
				product := valueAt(xNorm, int64(record.Bin1)-xFirst) * valueAt(yNorm, int64(record.Bin2)-yFirst)
				if product == 0 || math.IsNaN(product) || math.IsInf(product, 0) {
					continue
				}
				record.Counts = float32(float64(record.Counts) / product)
			}
			if transposed {
				record.Bin1, record.Bin2 = record.Bin2, record.Bin1
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func warnIfUnknown(log logrus.FieldLogger, err error) error {
	if errors.Is(err, ErrUnknownChromosome) {
		log.Warnf("Returning no records: %v", err)
		return nil
	}
	return err
}

// firstBin is the index of the first normalization value fetched for r.
func firstBin(r binRange) int64 {
	if r.start < 0 {
		return 0
	}
	return int64(math.Floor(r.start))
}

func valueAt(values []float64, i int64) float64 {
	if i < 0 || i >= int64(len(values)) {
		return math.NaN()
	}
	return values[i]
}

func (f *File) normValues(ctx context.Context, normType string, idx1, idx2 int, unit string, binSize int32, x, y binRange) ([]float64, []float64, error) {
	nv1, err := f.normVector(ctx, normType, idx1, unit, binSize)
	if err != nil {
		return nil, nil, err
	}
	nv2 := nv1
	if idx2 != idx1 {
		if nv2, err = f.normVector(ctx, normType, idx2, unit, binSize); err != nil {
			return nil, nil, err
		}
	}

	xValues, err := nv1.Values(ctx, firstBin(x), int64(math.Ceil(x.end)))
	if err != nil {
		return nil, nil, err
	}
	yValues, err := nv2.Values(ctx, firstBin(y), int64(math.Ceil(y.end)))
	if err != nil {
		return nil, nil, err
	}
	return xValues, yValues, nil
}

func blockKey(zd *ZoomData, number int32) string {
	return fmt.Sprintf("%s_%d", zd.Key(), number)
}

// blocksFor returns the blocks of zd that may hold records in x by y.  Blocks
// missing from the cache are read concurrently.
func (f *File) blocksFor(ctx context.Context, zd *ZoomData, x, y binRange) ([]*Block, error) {
	numbers := blockNumbers(zd, x, y, f.header.Version)
	blocks := make([]*Block, len(numbers))

	g, gctx := errgroup.WithContext(ctx)
	if f.opts.MaxConcurrentReads > 0 {
		g.SetLimit(f.opts.MaxConcurrentReads)
	}
	for i, number := range numbers {
		key := blockKey(zd, number)
		if block, ok := f.blocks.get(zd.BinSize, key); ok {
			blocks[i] = block
			continue
		}

		i, number := i, number
		g.Go(func() error {
			block, err := f.readBlock(gctx, number, zd)
			if err != nil {
				return err
			}
			if block != nil {
				f.blocks.set(zd.BinSize, key, block)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := blocks[:0]
	for _, block := range blocks {
		if block != nil {
			found = append(found, block)
		}
	}
	return found, nil
}
