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

package source

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// countingSource records the offset of every read passed to the wrapped
// source.
type countingSource struct {
	Source
	mu      sync.Mutex
	offsets []int64
}

func (c *countingSource) ReadRange(ctx context.Context, offset int64, length int) ([]byte, error) {
	c.mu.Lock()
	c.offsets = append(c.offsets, offset)
	c.mu.Unlock()
	return c.Source.ReadRange(ctx, offset, length)
}

func (c *countingSource) reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.offsets)
}

func TestFile_ReadRange(t *testing.T) {
	data := testData(1000)
	src := NewReaderAt(bytes.NewReader(data), int64(len(data)))
	ctx := context.Background()

	testCases := []struct {
		name           string
		offset         int64
		length         int
		want           []byte
		notSatisfiable bool
	}{
		{"start", 0, 16, data[:16], false},
		{"middle", 500, 100, data[500:600], false},
		{"last byte", 999, 1, data[999:], false},
		{"past end", 990, 20, data[990:], true},
		{"at end", 1000, 10, nil, true},
		{"beyond end", 2000, 10, nil, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := src.ReadRange(ctx, tc.offset, tc.length)
			if tc.notSatisfiable {
				if !errors.Is(err, ErrRangeNotSatisfiable) {
					t.Fatalf("Wrong error: got %v, want %v", err, ErrRangeNotSatisfiable)
				}
			} else if err != nil {
				t.Fatalf("ReadRange() failed: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("Wrong data: got %d bytes, want %d bytes", len(got), len(tc.want))
			}
		})
	}
}

func TestReadAvailable(t *testing.T) {
	data := testData(100)
	src := NewReaderAt(bytes.NewReader(data), int64(len(data)))

	got, err := ReadAvailable(context.Background(), src, 90, 64)
	if err != nil {
		t.Fatalf("ReadAvailable() failed: %v", err)
	}
	if !bytes.Equal(got, data[90:]) {
		t.Errorf("Wrong data: got %v, want %v", got, data[90:])
	}

	got, err = ReadAvailable(context.Background(), src, 200, 64)
	if err != nil || len(got) != 0 {
		t.Errorf("Wrong result past the end: got (%v, %v), want no data and no error", got, err)
	}
}

func TestOpenFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "source")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "data.bin")
	data := testData(64)
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}

	src, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer src.Close()

	got, err := src.ReadRange(context.Background(), 8, 8)
	if err != nil {
		t.Fatalf("ReadRange() failed: %v", err)
	}
	if !bytes.Equal(got, data[8:16]) {
		t.Errorf("Wrong data: got %v, want %v", got, data[8:16])
	}

	if _, err := Open(context.Background(), filepath.Join(dir, "missing"), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Wrong error for missing file: got %v, want %v", err, ErrNotFound)
	}
}

func TestParseGCSURI(t *testing.T) {
	testCases := []struct {
		uri            string
		bucket, object string
		fail           bool
	}{
		{"gs://bucket/object.hic", "bucket", "object.hic", false},
		{"gs://bucket/dir/object.hic", "bucket", "dir/object.hic", false},
		{"gs://bucket", "", "", true},
		{"gs:///object", "", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.uri, func(t *testing.T) {
			bucket, object, err := parseGCSURI(tc.uri)
			if tc.fail {
				if err == nil {
					t.Fatalf("parseGCSURI(%q) succeeded, wanted error", tc.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGCSURI(%q) failed: %v", tc.uri, err)
			}
			if bucket != tc.bucket || object != tc.object {
				t.Errorf("Wrong result: got (%q, %q), want (%q, %q)", bucket, object, tc.bucket, tc.object)
			}
		})
	}
}

func TestOpen_GoogleDriveIsThrottled(t *testing.T) {
	src, err := Open(context.Background(), "https://www.googleapis.com/drive/v3/files/abc?alt=media", nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, ok := src.(*Throttled); !ok {
		t.Errorf("Wrong source type: got %T, want *Throttled", src)
	}

	src, err = Open(context.Background(), "https://example.com/data.hic", nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, ok := src.(*HTTP); !ok {
		t.Errorf("Wrong source type: got %T, want *HTTP", src)
	}
}
