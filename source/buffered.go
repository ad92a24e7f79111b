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
	"sync"
)

// Buffered keeps a single window of an underlying Source in memory and serves
// small reads from it, fetching a new window only when a read falls outside
// the current one.  Reads larger than the window go straight to the
// underlying source.
type Buffered struct {
	src  Source
	size int

	mu     sync.Mutex
	start  int64
	window []byte
}

// NewBuffered returns a Source buffering size bytes of src at a time.
func NewBuffered(src Source, size int) *Buffered {
	return &Buffered{src: src, size: size}
}

// ReadRange implements Source.
func (b *Buffered) ReadRange(ctx context.Context, offset int64, length int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if length > b.size {
		return b.src.ReadRange(ctx, offset, length)
	}

	var (
		end       = offset + int64(length)
		bufferEnd = b.start + int64(len(b.window))
		loaded    = b.window != nil
	)
	switch {
	case loaded && offset >= b.start && end <= bufferEnd:
		lo, hi := offset-b.start, end-b.start
		return b.window[lo:hi:hi], nil

	case loaded && offset < bufferEnd && end > bufferEnd && offset >= b.start:
		// The read starts inside the window and runs past it: keep the tail
		// and move the window to where it ended.
		head := b.window[offset-b.start:]
		next, err := ReadAvailable(ctx, b.src, bufferEnd, b.size)
		if err != nil {
			return nil, err
		}
		b.start, b.window = bufferEnd, next

		data := make([]byte, 0, length)
		data = append(data, head...)
		if want := length - len(head); want < len(next) {
			next = next[:want]
		}
		data = append(data, next...)
		if len(data) < length {
			return data, newRangeError(offset, length, len(data))
		}
		return data, nil

	default:
		// No overlap.  Reads that start before the window and run into it are
		// rare, so they refill from offset as well.
		return b.fill(ctx, offset, length)
	}
}

func (b *Buffered) fill(ctx context.Context, offset int64, length int) ([]byte, error) {
	data, err := ReadAvailable(ctx, b.src, offset, b.size)
	if err != nil {
		return nil, err
	}
	b.start, b.window = offset, data

	if length > len(data) {
		return data[:len(data):len(data)], newRangeError(offset, length, len(data))
	}
	return data[:length:length], nil
}

// Close implements Source.
func (b *Buffered) Close() error {
	return b.src.Close()
}
