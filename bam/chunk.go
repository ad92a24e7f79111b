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

package bam

import (
	"context"
	"fmt"
	"io"

	"github.com/googlegenomics/straw/internal/bgzf"
	"github.com/googlegenomics/straw/source"
)

// Compressed data between the partial blocks of a chunk is copied this many
// bytes at a time.
const copySize = 1 << 20

// WriteChunk writes the data of chunk to w as a sequence of BGZF blocks.
// Blocks lying wholly inside the chunk are copied without being inflated and
// the partial blocks at either end are encoded again.
func (r *Reader) WriteChunk(ctx context.Context, w io.Writer, chunk *bgzf.Chunk) error {
	return writeChunk(ctx, w, r.data, r.blocks, chunk)
}

// WriteChunk writes chunk of the BGZF file served by data to w, like
// (*Reader).WriteChunk, without reading the header or the index of the file.
func WriteChunk(ctx context.Context, w io.Writer, data source.Source, chunk *bgzf.Chunk) error {
	return writeChunk(ctx, w, data, bgzf.NewLoader(data, 2), chunk)
}

func writeChunk(ctx context.Context, w io.Writer, data source.Source, blocks *bgzf.Loader, chunk *bgzf.Chunk) error {
	start, end := chunk.Start, chunk.End
	if end < start {
		return fmt.Errorf("chunk %s ends before it starts", chunk)
	}
	head, tail := start.BlockOffset(), end.BlockOffset()

	// The simple (unlikely) case is when the chunk resides in a single block.
	if head == tail {
		data, _, err := blocks.Block(ctx, head)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		lo, hi := int(start.DataOffset()), int(end.DataOffset())
		if hi > len(data) {
			hi = len(data)
		}
		if lo > hi {
			return fmt.Errorf("chunk %s: %w", chunk, bgzf.ErrInvalidBlock)
		}
		return writeBlock(w, data[lo:hi])
	}

	if start.DataOffset() != 0 {
		data, size, err := blocks.Block(ctx, head)
		if err != nil {
			return fmt.Errorf("reading first block: %w", err)
		}
		if int(start.DataOffset()) > len(data) {
			return fmt.Errorf("chunk %s: %w", chunk, bgzf.ErrInvalidBlock)
		}
		if err := writeBlock(w, data[start.DataOffset():]); err != nil {
			return err
		}
		head += uint64(size)
	}

	for head < tail {
		n := tail - head
		if n > copySize {
			n = copySize
		}
		data, err := source.ReadAvailable(ctx, data, int64(head), int(n))
		if err != nil {
			return fmt.Errorf("reading blocks at offset %d: %w", head, err)
		}
		if len(data) == 0 {
			// Chunks ending at LastAddress run to the end of the file.
			return nil
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		head += uint64(len(data))
	}

	if end.DataOffset() != 0 {
		data, _, err := blocks.Block(ctx, tail)
		if err != nil {
			return fmt.Errorf("reading last block: %w", err)
		}
		hi := int(end.DataOffset())
		if hi > len(data) {
			hi = len(data)
		}
		return writeBlock(w, data[:hi])
	}
	return nil
}

func writeBlock(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	encoded, err := bgzf.EncodeBlock(data)
	if err != nil {
		return fmt.Errorf("encoding block: %w", err)
	}
	_, err = w.Write(encoded)
	return err
}
