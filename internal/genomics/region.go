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

// Package genomics contains types describing genomic coordinates.
package genomics

import (
	"fmt"
	"strconv"
	"strings"
)

// AllMappedReads is a region that matches every reference.
var AllMappedReads = Region{ReferenceID: -1}

// Region is a range on a numbered reference sequence.
type Region struct {
	// ReferenceID specifies the reference to match.  If it is negative, any
	// reference matches the region.
	ReferenceID int32
	// Start and End specify the open range (in base pairs) relative to the
	// reference.  If End is zero, it is treated as though it was set to the last
	// possible position.
	Start, End uint32
}

func (region Region) String() string {
	return fmt.Sprintf("[region:%d, start:%d, end:%d]", region.ReferenceID, region.Start, region.End)
}

// Locus is a range on a named chromosome as written by users, for example
// "chr1:1,000,000-2,000,000".  A zero End means the end of the chromosome.
type Locus struct {
	Chr        string
	Start, End int64
}

// ParseLocus parses "name", "name:start" or "name:start-end".  Commas in
// positions are ignored.
func ParseLocus(input string) (Locus, error) {
	name, positions := input, ""
	if i := strings.LastIndexByte(input, ':'); i >= 0 {
		name, positions = input[:i], input[i+1:]
	}
	if name == "" {
		return Locus{}, fmt.Errorf("missing chromosome name in %q", input)
	}

	locus := Locus{Chr: name}
	if positions == "" {
		return locus, nil
	}

	start, end := positions, ""
	if i := strings.IndexByte(positions, '-'); i >= 0 {
		start, end = positions[:i], positions[i+1:]
	}
	var err error
	if locus.Start, err = parsePosition(start); err != nil {
		return Locus{}, fmt.Errorf("parsing start of %q: %w", input, err)
	}
	if end != "" {
		if locus.End, err = parsePosition(end); err != nil {
			return Locus{}, fmt.Errorf("parsing end of %q: %w", input, err)
		}
		if locus.End < locus.Start {
			return Locus{}, fmt.Errorf("%q: start > end", input)
		}
	}
	return locus, nil
}

func parsePosition(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.Replace(s, ",", "", -1), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative position %d", n)
	}
	return n, nil
}
