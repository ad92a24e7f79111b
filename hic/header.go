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

	"github.com/googlegenomics/straw/internal/binary"
)

const (
	magic = "HIC"

	// The magic string, version and footer position.
	preambleSize = 16

	// Used to reject absurd counts before allocating for them.
	maximumCount = 1 << 24
)

// Header is the fixed part of a .hic file that precedes the matrices.
type Header struct {
	Magic          string
	Version        int32
	FooterPosition int64
	Genome         string

	// NormVectorIndexPosition and NormVectorIndexSize are only stored by
	// version 9 and later files.
	NormVectorIndexPosition int64
	NormVectorIndexSize     int64

	Attributes      map[string]string
	Chromosomes     []Chromosome
	BPResolutions   []int32
	FragResolutions []int32

	// WholeGenomeResolution is the bin size used for the "All" chromosome,
	// if the file has one.
	WholeGenomeResolution int32
}

func parsePreamble(data []byte) (*Header, error) {
	c := binary.NewCursor(data)
	h := &Header{
		Magic:          c.CString(),
		Version:        c.Int(),
		FooterPosition: c.Long(),
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("reading preamble: %w", err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("wrong magic %q (wanted %q): %w", h.Magic, magic, ErrCorrupt)
	}
	if h.Version < MinimumVersion {
		return nil, fmt.Errorf("version %d (minimum %d): %w", h.Version, MinimumVersion, ErrUnsupportedVersion)
	}
	return h, nil
}

// parseBody parses the part of the header following the preamble.
func (h *Header) parseBody(data []byte, fragments bool) error {
	c := binary.NewCursor(data)

	h.Genome = c.CString()
	if h.Version >= 9 {
		h.NormVectorIndexPosition = c.Long()
		h.NormVectorIndexSize = c.Long()
	}

	n, err := readCount(c, "attribute")
	if err != nil {
		return err
	}
	h.Attributes = make(map[string]string, n)
	for i := 0; i < n; i++ {
		key := c.CString()
		h.Attributes[key] = c.CString()
	}

	if n, err = readCount(c, "chromosome"); err != nil {
		return err
	}
	h.Chromosomes = make([]Chromosome, n)
	for i := range h.Chromosomes {
		chr := Chromosome{Index: i, Name: c.CString()}
		if h.Version < 9 {
			chr.Size = int64(c.Int())
		} else {
			chr.Size = c.Long()
		}
		if chr.IsWholeGenome() {
			h.WholeGenomeResolution = int32(math.Round(float64(chr.Size) * 1000 / 500))
		}
		h.Chromosomes[i] = chr
	}

	if h.BPResolutions, err = readResolutions(c, "bp resolution"); err != nil {
		return err
	}
	if fragments {
		if h.FragResolutions, err = readResolutions(c, "fragment resolution"); err != nil {
			return err
		}
	}

	if err := c.Err(); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	return nil
}

func readCount(c *binary.Cursor, what string) (int, error) {
	n := c.Int()
	if err := c.Err(); err != nil {
		return 0, fmt.Errorf("reading %s count: %w", what, err)
	}
	if n < 0 || n > maximumCount {
		return 0, fmt.Errorf("invalid %s count %d: %w", what, n, ErrCorrupt)
	}
	return int(n), nil
}

func readResolutions(c *binary.Cursor, what string) ([]int32, error) {
	n, err := readCount(c, what)
	if err != nil {
		return nil, err
	}
	resolutions := make([]int32, n)
	for i := range resolutions {
		resolutions[i] = c.Int()
	}
	return resolutions, c.Err()
}
