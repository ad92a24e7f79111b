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
	"strings"
	"testing"

	"github.com/googlegenomics/straw/hic/hictest"
)

func TestNormalizationOptions(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name    string
		fixture *hictest.File
		want    []string
	}{
		{"v5", hictest.Chr22(5), []string{None}},
		{"v6", hictest.Chr22(6), []string{None, KR, VC}},
		{"v8", hictest.Chr22(8), []string{None, KR, VC}},
		{"v9", hictest.Chr22(9), []string{None, KR, VC}},
		{"v9 without index position", func() *hictest.File {
			f := hictest.Chr22(9)
			f.OmitIndexPosition = true
			return f
		}(), []string{None, KR, VC}},
		{"no vectors", func() *hictest.File {
			f := hictest.Chr22(8)
			f.NormVectors = nil
			return f
		}(), []string{None}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := openFixture(t, tc.fixture, nil)
			got, err := f.NormalizationOptions(ctx)
			if err != nil {
				t.Fatalf("NormalizationOptions() failed: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Fatalf("Wrong normalizations: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormVectorIndexRange(t *testing.T) {
	ctx := context.Background()
	for _, version := range []int32{6, 7, 8, 9} {
		t.Run(hictest.VersionName(version), func(t *testing.T) {
			data, layout := buildFixture(t, hictest.Chr22(version))
			f := New(bytesSource(data), nil)
			got, err := f.NormVectorIndexRange(ctx)
			if err != nil {
				t.Fatalf("NormVectorIndexRange() failed: %v", err)
			}
			if want := fmt.Sprintf("%d,%d", layout.IndexPosition, layout.IndexSize); got != want {
				t.Fatalf("Wrong index range: got %q, want %q", got, want)
			}
		})
	}
}

func TestNormVectorIndexRange_Remembered(t *testing.T) {
	ctx := context.Background()
	data, layout := buildFixture(t, hictest.Chr22(8))
	location := fmt.Sprintf("%d,%d", layout.IndexPosition, layout.IndexSize)

	testCases := []struct {
		name     string
		location string
	}{
		{"plain", location},
		{"escaped", strings.Replace(location, ",", "%2C", 1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &countingSource{Source: bytesSource(data)}
			f := New(src, &Options{NormVectorIndex: tc.location})
			if err := f.Init(ctx); err != nil {
				t.Fatalf("Init() failed: %v", err)
			}
			before := src.count()
			got, err := f.NormalizationOptions(ctx)
			if err != nil {
				t.Fatalf("NormalizationOptions() failed: %v", err)
			}
			if want := []string{None, KR, VC}; fmt.Sprint(got) != fmt.Sprint(want) {
				t.Fatalf("Wrong normalizations: got %v, want %v", got, want)
			}
			if reads := src.count() - before; reads != 1 {
				t.Errorf("Wrong number of reads: got %d, want 1", reads)
			}
			if rng, _ := f.NormVectorIndexRange(ctx); rng != location {
				t.Errorf("Wrong index range: got %q, want %q", rng, location)
			}
		})
	}
}

func TestNormVectorIndexRange_Invalid(t *testing.T) {
	for _, location := range []string{"abc", "1,2,3", "x,10", "10,y", "-1,10", "10,2", "%zz"} {
		t.Run(location, func(t *testing.T) {
			f := openFixture(t, hictest.Chr22(8), &Options{NormVectorIndex: location})
			if _, err := f.NormalizationOptions(context.Background()); err == nil {
				t.Fatalf("NormalizationOptions(): expected error, not success")
			}
		})
	}
}

func TestNormVectorIndex_Scan(t *testing.T) {
	ctx := context.Background()
	fixture := hictest.Chr22(8)
	for i := 0; i < 100; i++ {
		fixture.NormVectors = append(fixture.NormVectors, hictest.NormVector{
			Type:    fmt.Sprintf("LONG_NORMALIZATION_TYPE_%02d", i),
			Chr:     hictest.Chr22Index,
			Unit:    UnitBP,
			BinSize: hictest.Chr22BinSize,
			Values:  []float64{1, 2, 3},
		})
	}
	data, layout := buildFixture(t, fixture)

	testCases := []struct {
		name string
		data []byte
	}{
		{"at end of file", data},
		{"before trailing bytes", append(append([]byte(nil), data...), make([]byte, 20000)...)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := New(bytesSource(tc.data), nil)
			got, err := f.NormalizationOptions(ctx)
			if err != nil {
				t.Fatalf("NormalizationOptions() failed: %v", err)
			}
			if want := 103; len(got) != want {
				t.Fatalf("Wrong number of normalizations: got %d, want %d", len(got), want)
			}
			rng, _ := f.NormVectorIndexRange(ctx)
			if want := fmt.Sprintf("%d,%d", layout.IndexPosition, layout.IndexSize); rng != want {
				t.Errorf("Wrong index range: got %q, want %q", rng, want)
			}
			ok, err := f.HasNormalizationVector(ctx, "LONG_NORMALIZATION_TYPE_99", "22", UnitBP, hictest.Chr22BinSize)
			if err != nil || !ok {
				t.Errorf("Missing last normalization vector: %v, %v", ok, err)
			}
		})
	}
}

func TestNormVectorIndex_Truncated(t *testing.T) {
	data, layout := buildFixture(t, hictest.Chr22(8))
	f := New(bytesSource(data[:layout.IndexPosition+2]), nil)
	got, err := f.NormalizationOptions(context.Background())
	if err != nil {
		t.Fatalf("NormalizationOptions() failed: %v", err)
	}
	if want := []string{None}; fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Wrong normalizations: got %v, want %v", got, want)
	}
}
