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
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxDenseCells bounds the size of matrices built by Dense.
const MaxDenseCells = 10000 * 10000

// Dense arranges records returned for r1 and r2 into a matrix with one row per
// bin of r1 and one column per bin of r2.  Cells without a record are zero.
// When both regions are on the same chromosome the stored upper triangle is
// mirrored into cells below the diagonal.
func Dense(records []ContactRecord, r1, r2 Region, binSize int32) (*mat.Dense, error) {
	if binSize <= 0 {
		return nil, fmt.Errorf("invalid bin size %d", binSize)
	}
	row0, rows := binSpan(r1, binSize)
	col0, cols := binSpan(r2, binSize)
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("empty region %s by %s", r1, r2)
	}
	if rows*cols > MaxDenseCells {
		return nil, fmt.Errorf("%d by %d bins exceeds %d cells", rows, cols, MaxDenseCells)
	}

	m := mat.NewDense(int(rows), int(cols), nil)
	set := func(bin1, bin2 int32, v float64) {
		i, j := int64(bin1)-row0, int64(bin2)-col0
		if i >= 0 && i < rows && j >= 0 && j < cols {
			m.Set(int(i), int(j), v)
		}
	}
	for _, record := range records {
		set(record.Bin1, record.Bin2, float64(record.Counts))
		if r1.Chr == r2.Chr && record.Bin1 != record.Bin2 {
			set(record.Bin2, record.Bin1, float64(record.Counts))
		}
	}
	return m, nil
}

func binSpan(r Region, binSize int32) (first, n int64) {
	first = int64(math.Floor(float64(r.Start) / float64(binSize)))
	last := int64(math.Ceil(float64(r.End) / float64(binSize)))
	return first, last - first
}
