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

// Package hic reads contact matrices from .hic files produced by Juicer.
//
// A File answers range queries against local or remote files without
// loading them: the header and footer are read once, and matrices, blocks and
// normalization vectors are fetched on demand and kept in small LRU caches.
package hic

import (
	"fmt"
	"strings"
)

// MinimumVersion is the oldest file format version that can be read.
const MinimumVersion = 5

// Units of bin sizes.
const (
	UnitBP   = "BP"
	UnitFrag = "FRAG"
)

// Normalization types written by Juicer tools.  Files may contain others.
const (
	None    = "NONE"
	VC      = "VC"
	VCSqrt  = "VC_SQRT"
	KR      = "KR"
	SCALE   = "SCALE"
	GWKR    = "GW_KR"
	GWVC    = "GW_VC"
	InterKR = "INTER_KR"
	InterVC = "INTER_VC"
)

// Chromosome is a sequence described in the file header.  Index is the
// position of the chromosome in the header list.
type Chromosome struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

// IsWholeGenome reports whether c is the synthetic "All" chromosome.
func (c Chromosome) IsWholeGenome() bool {
	return strings.EqualFold(c.Name, "All")
}

// Region is a half open range of base pairs (or fragments) on a chromosome.
type Region struct {
	Chr        string
	Start, End int64
}

func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chr, r.Start, r.End)
}

// ContactRecord is one non-empty cell of a contact matrix.  Bins are
// positions divided by the bin size of the queried resolution.
type ContactRecord struct {
	Bin1, Bin2 int32
	Counts     float32
}

// IndexEntry locates a range of bytes in the file.
type IndexEntry struct {
	Position int64
	Size     int64
}

// Metadata summarizes a file.
type Metadata struct {
	Version         int32             `json:"version"`
	Genome          string            `json:"genome"`
	Chromosomes     []Chromosome      `json:"chromosomes"`
	BPResolutions   []int32           `json:"bpResolutions"`
	FragResolutions []int32           `json:"fragResolutions,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}
