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

package hictest

import (
	"math"
	"strconv"
)

// hg19 chromosome sizes.
var hg19 = []int64{
	249250621, 243199373, 198022430, 191154276, 180915260, 171115067,
	159138663, 146364022, 141213431, 135534747, 135006516, 133851895,
	115169878, 107349540, 102531392, 90354753, 81195210, 78077248,
	59128983, 63025520, 48129895, 51304566,
}

// Parameters of the Chr22 fixture.
const (
	Chr22Index     = 22
	Chr22Size      = 51304566
	Chr22BinSize   = 100000
	Chr22NormSize  = 515
	Chr22Distance  = 10
	chr22BlockBins = 100
)

// Chr22Counts is the count stored for bins x and y of chromosome 22.
func Chr22Counts(x, y int32) float32 {
	return float32(1000 / (1 + y - x))
}

// Chr22KR is the KR normalization value of bin i of chromosome 22.  Every
// fiftieth value is NaN.
func Chr22KR(i int) float64 {
	if i%50 == 0 {
		return math.NaN()
	}
	return 1 + float64(i%7)/10
}

// Chr22 returns a file with chromosomes All and 1 to 22 in which only the
// intra-chromosomal matrix of chromosome 22 has data.  Bins up to
// Chr22Distance apart have records at a 100 kb resolution.
func Chr22(version int32) *File {
	chromosomes := []Chromosome{{Name: "All", Size: 3095677}}
	for i, size := range hg19 {
		chromosomes = append(chromosomes, Chromosome{Name: strconv.Itoa(i + 1), Size: size})
	}

	bins := int32(Chr22Size/Chr22BinSize + 1)
	var records []Record
	for x := int32(0); x < bins; x++ {
		for y := x; y < bins && y <= x+Chr22Distance; y++ {
			records = append(records, Record{X: x, Y: y, Counts: Chr22Counts(x, y)})
		}
	}

	kr := make([]float64, Chr22NormSize)
	vc := make([]float64, Chr22NormSize)
	for i := range kr {
		kr[i] = Chr22KR(i)
		vc[i] = 2
	}
	expected := make([]float64, Chr22Distance+1)
	for i := range expected {
		expected[i] = 1000 / float64(1+i)
	}

	return &File{
		Version:       version,
		Genome:        "hg19",
		Attributes:    map[string]string{"software": "hictest"},
		Chromosomes:   chromosomes,
		BPResolutions: []int32{2500000, 1000000, 500000, 250000, Chr22BinSize},
		Matrices: []Matrix{{
			Chr1: Chr22Index,
			Chr2: Chr22Index,
			Zooms: []Zoom{
				{
					Unit:             "BP",
					BinSize:          2500000,
					BlockBinCount:    21,
					BlockColumnCount: 1,
					Records:          []Record{{X: 0, Y: 0, Counts: 10}, {X: 3, Y: 20, Counts: 4}},
				},
				{
					Unit:             "BP",
					BinSize:          Chr22BinSize,
					BlockBinCount:    chr22BlockBins,
					BlockColumnCount: 6,
					Records:          records,
				},
			},
		}},
		Expected: []Expected{{
			Unit:        "BP",
			BinSize:     Chr22BinSize,
			Values:      expected,
			NormFactors: map[int]float64{Chr22Index: 2},
		}},
		NormExpected: []Expected{{
			Type:    "KR",
			Unit:    "BP",
			BinSize: Chr22BinSize,
			Values:  expected,
		}},
		NormVectors: []NormVector{
			{Type: "KR", Chr: Chr22Index, Unit: "BP", BinSize: Chr22BinSize, Values: kr},
			{Type: "VC", Chr: Chr22Index, Unit: "BP", BinSize: Chr22BinSize, Values: vc},
		},
	}
}

// Parameters of the FullGrid fixture.
const (
	FullGridChr     = "0"
	FullGridIndex   = 1
	FullGridBinSize = 10000
	FullGridBins    = 50
)

// FullGrid returns a file whose single chromosome has a record for every pair
// of its 50 bins, all stored in one block with the given encoding.
func FullGrid(version int32, encoding int) *File {
	var records []Record
	for y := int32(0); y < FullGridBins; y++ {
		for x := int32(0); x < FullGridBins; x++ {
			records = append(records, Record{X: x, Y: y, Counts: float32(x + y + 1)})
		}
	}
	return &File{
		Version:       version,
		Genome:        "test",
		Chromosomes:   []Chromosome{{Name: "All", Size: 500}, {Name: FullGridChr, Size: FullGridBins * FullGridBinSize}},
		BPResolutions: []int32{FullGridBinSize},
		Matrices: []Matrix{{
			Chr1: FullGridIndex,
			Chr2: FullGridIndex,
			Zooms: []Zoom{{
				Unit:             "BP",
				BinSize:          FullGridBinSize,
				BlockBinCount:    FullGridBins,
				BlockColumnCount: 1,
				Records:          records,
				Encoding:         encoding,
			}},
		}},
	}
}

// Parameters of the InterChromosomal fixture.
const (
	InterChr1    = "1"
	InterChr2    = "2"
	InterBinSize = 10000
	InterBins1   = 100
	InterBins2   = 50
)

// InterCounts is the count stored for bin x of chromosome 1 and bin y of
// chromosome 2 in the InterChromosomal fixture.
func InterCounts(x, y int32) float32 {
	return float32(x*100 + y + 1)
}

// InterChromosomal returns a file whose only matrix lies between chromosomes
// 1 and 2.  Every seventh bin of chromosome 1 has a record with every third
// bin of chromosome 2, spread over several blocks.
func InterChromosomal(version int32) *File {
	var records []Record
	for x := int32(0); x < InterBins1; x += 7 {
		for y := int32(0); y < InterBins2; y += 3 {
			records = append(records, Record{X: x, Y: y, Counts: InterCounts(x, y)})
		}
	}
	return &File{
		Version: version,
		Genome:  "test",
		Chromosomes: []Chromosome{
			{Name: "All", Size: 150},
			{Name: InterChr1, Size: InterBins1 * InterBinSize},
			{Name: InterChr2, Size: InterBins2 * InterBinSize},
		},
		BPResolutions: []int32{InterBinSize},
		Matrices: []Matrix{{
			Chr1: 1,
			Chr2: 2,
			Zooms: []Zoom{{
				Unit:             "BP",
				BinSize:          InterBinSize,
				BlockBinCount:    20,
				BlockColumnCount: InterBins1 / 20,
				Records:          records,
			}},
		}},
	}
}

// VersionName names a file version in subtests.
func VersionName(version int32) string {
	return "v" + strconv.Itoa(int(version))
}
