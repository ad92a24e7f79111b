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

import "math"

// binRange is a half open range of bins.  Bounds are fractional because they
// are genomic positions divided by the bin size.
type binRange struct {
	start, end float64
}

func newBinRange(r Region, binSize int32) binRange {
	return binRange{float64(r.Start) / float64(binSize), float64(r.End) / float64(binSize)}
}

// blockNumbers returns the numbers of the blocks of zd that may hold records
// in the rectangle x by y.  Version 9 files tile intra-chromosomal matrices
// along the diagonal; every other matrix uses a row major grid.
func blockNumbers(zd *ZoomData, x, y binRange, version int32) []int32 {
	if version < 9 || zd.Chr1.Index != zd.Chr2.Index {
		return gridBlockNumbers(zd, x, y)
	}
	return diagonalBlockNumbers(zd, x, y)
}

func gridBlockNumbers(zd *ZoomData, x, y binRange) []int32 {
	var (
		binCount    = float64(zd.BlockBinCount)
		columnCount = zd.BlockColumnCount
		sameChr     = zd.Chr1.Index == zd.Chr2.Index

		col1 = int32(math.Floor(x.start / binCount))
		col2 = int32(math.Floor((x.end - 1) / binCount))
		row1 = int32(math.Floor(y.start / binCount))
		row2 = int32(math.Floor((y.end - 1) / binCount))
	)

	seen := make(map[int32]bool)
	var numbers []int32
	for row := row1; row <= row2; row++ {
		for column := col1; column <= col2; column++ {
			// Intra-chromosomal matrices only store the upper triangle.
			number := row*columnCount + column
			if sameChr && row < column {
				number = column*columnCount + row
			}
			if !seen[number] {
				seen[number] = true
				numbers = append(numbers, number)
			}
		}
	}
	return numbers
}

func diagonalBlockNumbers(zd *ZoomData, x, y binRange) []int32 {
	binCount := float64(zd.BlockBinCount)

	// Blocks are indexed by their position along the diagonal and their
	// depth away from it on a logarithmic scale.
	lowerPosition := int32(math.Floor((x.start + y.start) / 2 / binCount))
	higherPosition := int32(math.Floor((x.end + y.end) / 2 / binCount))
	nearDepth := int32(math.Floor(math.Log2(1 + math.Abs(x.start-y.end)/math.Sqrt2/binCount)))
	farDepth := int32(math.Floor(math.Log2(1 + math.Abs(x.end-y.start)/math.Sqrt2/binCount)))

	// The corners lie on opposite sides of the diagonal.
	containsDiagonal := (x.end-y.start)*(x.start-y.end) < 0

	nearer, further := nearDepth, farDepth
	if nearer > further {
		nearer, further = further, nearer
	}
	if containsDiagonal {
		nearer = 0
	}

	var numbers []int32
	for depth := nearer; depth <= further; depth++ {
		for position := lowerPosition; position <= higherPosition; position++ {
			numbers = append(numbers, depth*zd.BlockColumnCount+position)
		}
	}
	return numbers
}
