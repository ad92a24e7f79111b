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
	"context"
	"fmt"
	"io"
	"os"
)

// File is a Source backed by an io.ReaderAt of known size, usually a local
// file.
type File struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer
}

// OpenFile opens the named local file.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading file size: %w", err)
	}
	return &File{r: f, size: info.Size(), closer: f}, nil
}

// NewReaderAt returns a Source that reads from r, which holds size bytes.
func NewReaderAt(r io.ReaderAt, size int64) *File {
	return &File{r: r, size: size}
}

// Size returns the size of the underlying data.
func (f *File) Size() int64 {
	return f.size
}

// ReadRange implements Source.
func (f *File) ReadRange(ctx context.Context, offset int64, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range: %d bytes at offset %d", length, offset)
	}
	if offset >= f.size && length > 0 {
		return nil, newRangeError(offset, length, 0)
	}

	n := length
	if remaining := f.size - offset; int64(n) > remaining {
		n = int(remaining)
	}
	buf := make([]byte, n)
	if got, err := f.r.ReadAt(buf, offset); got < n {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", n, offset, err)
	}
	if n < length {
		return buf, newRangeError(offset, length, n)
	}
	return buf, nil
}

// Close closes the underlying file, if the File opened it.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
