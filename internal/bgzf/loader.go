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

package bgzf

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/googlegenomics/straw/internal/cache"
	"github.com/googlegenomics/straw/source"
)

// DefaultCacheSize is the number of inflated blocks a Loader keeps by default.
const DefaultCacheSize = 64

type block struct {
	data []byte
	size int
}

// Loader reads and inflates blocks of a BGZF file, keeping recently used
// blocks in memory.
type Loader struct {
	src    source.Source
	blocks *cache.LRU[uint64, block]
	loads  singleflight.Group
}

// NewLoader returns a Loader for src caching up to capacity blocks.  A
// capacity of zero selects DefaultCacheSize.
func NewLoader(src source.Source, capacity int) *Loader {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Loader{src: src, blocks: cache.NewLRU[uint64, block](capacity)}
}

// Block returns the inflated block starting at offset and its compressed
// size.  It returns io.EOF at the end of the file.
func (l *Loader) Block(ctx context.Context, offset uint64) ([]byte, int, error) {
	if b, ok := l.blocks.Get(offset); ok {
		return b.data, b.size, nil
	}

	v, err, _ := l.loads.Do(strconv.FormatUint(offset, 10), func() (interface{}, error) {
		data, err := source.ReadAvailable(ctx, l.src, int64(offset), MaximumBlockSize)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, io.EOF
		}
		inflated, size, err := DecodeBlock(data)
		if err != nil {
			return nil, fmt.Errorf("block at offset %d: %w", offset, err)
		}
		b := block{data: inflated, size: size}
		l.blocks.Set(offset, b)
		return b, nil
	})
	if err != nil {
		return nil, 0, err
	}
	b := v.(block)
	return b.data, b.size, nil
}

// Read returns the uncompressed bytes of chunk.  A chunk ending at
// LastAddress extends to the end of the file.
func (l *Loader) Read(ctx context.Context, chunk *Chunk) ([]byte, error) {
	if chunk.End < chunk.Start {
		return nil, fmt.Errorf("chunk %s ends before it starts", chunk)
	}

	var (
		out    []byte
		offset = chunk.Start.BlockOffset()
		last   = chunk.End.BlockOffset()
	)
	for offset <= last {
		data, size, err := l.Block(ctx, offset)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		lo, hi := 0, len(data)
		if offset == chunk.Start.BlockOffset() {
			lo = int(chunk.Start.DataOffset())
		}
		if offset == last && int(chunk.End.DataOffset()) < hi {
			hi = int(chunk.End.DataOffset())
		}
		if lo < hi {
			out = append(out, data[lo:hi]...)
		}
		offset += uint64(size)
	}
	return out, nil
}

// Reader returns a stream of the uncompressed data starting at start.
func (l *Loader) Reader(ctx context.Context, start Address) io.Reader {
	return &reader{ctx: ctx, loader: l, offset: start.BlockOffset(), skip: int(start.DataOffset())}
}

type reader struct {
	ctx    context.Context
	loader *Loader
	offset uint64
	skip   int
	data   []byte
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.data) == 0 {
		data, size, err := r.loader.Block(r.ctx, r.offset)
		if err != nil {
			return 0, err
		}
		r.offset += uint64(size)
		if r.skip > len(data) {
			return 0, fmt.Errorf("data offset %d past block of %d bytes: %w", r.skip, len(data), ErrInvalidBlock)
		}
		r.data, r.skip = data[r.skip:], 0
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
