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
	"bufio"
	"context"
	"fmt"

	"github.com/googlegenomics/straw/internal/binary"
	"github.com/googlegenomics/straw/source"
)

const expectedStringLimit = 1024

// ExpectedValueFunction holds the expected count at each distance from the
// diagonal, in bins, for one normalization and resolution.  NormFactors maps
// chromosome indices to the factor that expected values for that chromosome
// are divided by.
type ExpectedValueFunction struct {
	Type        string
	Unit        string
	BinSize     int32
	Values      []float64
	NormFactors map[int]float64
}

// ExpectedValue returns the expected count for a pair of bins distance bins
// apart on chromosome chr.  Distances past the end of the vector use its
// last value.
func (e *ExpectedValueFunction) ExpectedValue(chr int, distance int) float64 {
	if len(e.Values) == 0 {
		return 0
	}
	if distance < 0 {
		distance = -distance
	}
	if distance >= len(e.Values) {
		distance = len(e.Values) - 1
	}
	value := e.Values[distance]
	if factor, ok := e.NormFactors[chr]; ok && factor != 0 {
		value /= factor
	}
	return value
}

func expectedKey(normType, unit string, binSize int32) string {
	return fmt.Sprintf("%s_%s_%d", normType, unit, binSize)
}

// ExpectedValues returns the expected value function for a normalization
// and resolution.  Raw expected values are requested with an empty normType
// or None.
func (f *File) ExpectedValues(ctx context.Context, normType, unit string, binSize int32) (*ExpectedValueFunction, error) {
	if err := f.Init(ctx); err != nil {
		return nil, err
	}
	if normType == "" {
		normType = None
	}

	position, normalized := f.footer.expectedPosition, false
	if normType != None {
		position, normalized = f.footer.normExpectedPosition, true
	}
	key := expectedKey(normType, unit, binSize)

	f.expectedMu.Lock()
	defer f.expectedMu.Unlock()

	if position > 0 && !f.expectedLoaded[position] {
		functions, err := f.readExpectedValues(ctx, position, normalized)
		if err != nil {
			return nil, fmt.Errorf("reading expected values at %d: %w", position, err)
		}
		if f.expected == nil {
			f.expected = make(map[string]*ExpectedValueFunction)
			f.expectedLoaded = make(map[int64]bool)
		}
		for _, e := range functions {
			f.expected[expectedKey(e.Type, e.Unit, e.BinSize)] = e
		}
		f.expectedLoaded[position] = true
	}

	e, ok := f.expected[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrExpectedUnavailable)
	}
	return e, nil
}

func (f *File) readExpectedValues(ctx context.Context, position int64, normalized bool) ([]*ExpectedValueFunction, error) {
	r := source.NewReader(ctx, f.src, position, expectedScanBufferSize)

	var n int32
	if err := binary.Read(r, &n); err != nil {
		return nil, err
	}
	if n < 0 || n > maximumCount {
		return nil, fmt.Errorf("invalid expected value count %d: %w", n, ErrCorrupt)
	}

	functions := make([]*ExpectedValueFunction, 0, n)
	for i := int32(0); i < n; i++ {
		e, err := f.readExpectedValueFunction(r, normalized)
		if err != nil {
			return nil, fmt.Errorf("expected value record %d: %w", i, err)
		}
		functions = append(functions, e)
	}
	return functions, nil
}

func (f *File) readExpectedValueFunction(r *bufio.Reader, normalized bool) (*ExpectedValueFunction, error) {
	e := &ExpectedValueFunction{Type: None}
	var err error
	if normalized {
		if e.Type, err = binary.ReadCString(r, expectedStringLimit); err != nil {
			return nil, err
		}
	}
	if e.Unit, err = binary.ReadCString(r, expectedStringLimit); err != nil {
		return nil, err
	}
	if err := binary.Read(r, &e.BinSize); err != nil {
		return nil, err
	}

	wide := f.header.Version >= 9
	count, err := readExpectedCount(r, wide)
	if err != nil {
		return nil, err
	}
	if e.Values, err = readExpectedFloats(r, count, wide); err != nil {
		return nil, err
	}

	var factors int32
	if err := binary.Read(r, &factors); err != nil {
		return nil, err
	}
	if factors < 0 || factors > maximumCount {
		return nil, fmt.Errorf("invalid factor count %d: %w", factors, ErrCorrupt)
	}
	e.NormFactors = make(map[int]float64, factors)
	for j := int32(0); j < factors; j++ {
		var chr int32
		if err := binary.Read(r, &chr); err != nil {
			return nil, err
		}
		factor, err := readExpectedFloats(r, 1, wide)
		if err != nil {
			return nil, err
		}
		e.NormFactors[int(chr)] = factor[0]
	}
	return e, nil
}

func readExpectedCount(r *bufio.Reader, wide bool) (int64, error) {
	var count int64
	if wide {
		if err := binary.Read(r, &count); err != nil {
			return 0, err
		}
	} else {
		var n int32
		if err := binary.Read(r, &n); err != nil {
			return 0, err
		}
		count = int64(n)
	}
	if count < 0 || count > maximumCount {
		return 0, fmt.Errorf("invalid value count %d: %w", count, ErrCorrupt)
	}
	return count, nil
}

// readExpectedFloats reads n values stored as float32 in version 9 and as
// float64 before.
func readExpectedFloats(r *bufio.Reader, n int64, wide bool) ([]float64, error) {
	values := make([]float64, n)
	if !wide {
		if err := binary.Read(r, values); err != nil {
			return nil, err
		}
		return values, nil
	}
	floats := make([]float32, n)
	if err := binary.Read(r, floats); err != nil {
		return nil, err
	}
	for i, v := range floats {
		values[i] = float64(v)
	}
	return values, nil
}

// ObservedOverExpected returns records of an intra-chromosomal matrix of
// chromosome chr with counts divided by the expected count at their distance
// from the diagonal.  Records with no positive expected count are dropped.
func ObservedOverExpected(records []ContactRecord, e *ExpectedValueFunction, chr int) []ContactRecord {
	out := make([]ContactRecord, 0, len(records))
	for _, record := range records {
		expected := e.ExpectedValue(chr, int(record.Bin2-record.Bin1))
		if !(expected > 0) {
			continue
		}
		record.Counts = float32(float64(record.Counts) / expected)
		out = append(out, record)
	}
	return out
}
