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

// Package bam provides support for locating the reads of a region in an
// indexed BAM file.
package bam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/googlegenomics/straw/internal/bgzf"
	"github.com/googlegenomics/straw/internal/binary"
	"github.com/googlegenomics/straw/internal/genomics"
	"github.com/googlegenomics/straw/source"
)

const (
	bamMagic = "BAM\x01"

	// This is just to prevent arbitrarily long allocations due to malformed
	// data.  No reference name should be longer than this in practice.
	maximumNameLength = 1024

	// Larger SAM headers are rejected.
	maximumTextLength = 1 << 26

	indexReadSize = 1 << 16
)

var gzipMagic = []byte{0x1f, 0x8b}

// ErrUnknownReference is returned when a reference name matches neither a
// reference of the BAM header nor one of its aliases.
var ErrUnknownReference = errors.New("unknown reference")

// Options configures a Reader.  The zero value is usable.
type Options struct {
	// Logger receives debug messages.  Nothing is logged if it is nil.
	Logger logrus.FieldLogger

	// BlockCacheSize is the number of inflated BGZF blocks kept in memory.
	// Zero selects bgzf.DefaultCacheSize.
	BlockCacheSize int

	// MergeLimit is a soft limit on the compressed size of the chunks returned
	// by Chunks.  Touching chunks are not merged past it, though a single chunk
	// may still exceed it.  Zero means no limit.
	MergeLimit uint64
}

// Sequence is a reference sequence listed in the BAM header.
type Sequence struct {
	Name   string
	Length int32
}

// Reader reads an indexed BAM file.  It is safe for concurrent use.
type Reader struct {
	data       source.Source
	index      *Index
	blocks     *bgzf.Loader
	log        logrus.FieldLogger
	mergeLimit uint64

	// Text is the plain text SAM header.
	Text      string
	Sequences []Sequence

	ids     map[string]int32
	aliases genomics.Aliases
}

// Open reads the index and the header of the BAM file served by data.  The
// index may be either a BAI or a CSI file, and is closed once it has been
// read.  Closing the Reader closes data.
func Open(ctx context.Context, data, index source.Source, opts *Options) (*Reader, error) {
	idx, err := ReadIndex(ctx, index)
	index.Close()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return New(ctx, data, idx, opts)
}

// New reads the header of the BAM file served by data, which is indexed by
// idx.
func New(ctx context.Context, data source.Source, idx *Index, opts *Options) (*Reader, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	r := &Reader{
		data:       data,
		index:      idx,
		blocks:     bgzf.NewLoader(data, o.BlockCacheSize),
		log:        o.Logger,
		mergeLimit: o.MergeLimit,
	}
	if r.log == nil {
		logger := logrus.New()
		logger.Out = ioutil.Discard
		r.log = logger
	}
	if r.mergeLimit == 0 {
		r.mergeLimit = math.MaxUint64
	}

	if err := r.readHeader(ctx); err != nil {
		return nil, fmt.Errorf("reading BAM header: %w", err)
	}
	if len(r.Sequences) != len(idx.References) && idx.Format == BAI {
		return nil, fmt.Errorf("%w: %d references in the index, %d in the header", ErrInvalidIndex, len(idx.References), len(r.Sequences))
	}
	r.log.WithFields(logrus.Fields{
		"format":     idx.Format,
		"references": len(r.Sequences),
	}).Debug("opened BAM file")
	return r, nil
}

// ReadIndex reads a BAI or CSI index from src, telling them apart by the gzip
// magic of CSI files.
func ReadIndex(ctx context.Context, src source.Source) (*Index, error) {
	in := source.NewReader(ctx, src, 0, indexReadSize)
	magic, err := in.Peek(len(gzipMagic))
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if bytes.Equal(magic, gzipMagic) {
		return ReadCSI(in)
	}
	return ReadBAI(in)
}

// readHeader reads the BAM header at the start of the file.  It is adapted
// from the SAM specification section 4.2.
func (r *Reader) readHeader(ctx context.Context) error {
	bam := r.blocks.Reader(ctx, 0)
	if err := binary.ExpectBytes(bam, []byte(bamMagic)); err != nil {
		return fmt.Errorf("reading magic: %w", err)
	}
	var length int32
	if err := binary.Read(bam, &length); err != nil {
		return fmt.Errorf("reading SAM header length: %w", err)
	}
	if length < 0 || length > maximumTextLength {
		return fmt.Errorf("invalid SAM header length (%d bytes)", length)
	}
	text := make([]byte, length)
	if _, err := io.ReadFull(bam, text); err != nil {
		return fmt.Errorf("reading SAM header: %w", err)
	}
	r.Text = string(bytes.TrimRight(text, "\x00"))

	var count int32
	if err := binary.Read(bam, &count); err != nil {
		return fmt.Errorf("reading references count: %w", err)
	}
	if count < 0 || count > maximumCount {
		return fmt.Errorf("invalid reference count (%d references)", count)
	}
	r.Sequences = make([]Sequence, count)
	r.ids = make(map[string]int32, count)
	names := make([]string, count)
	for i := range r.Sequences {
		if err := binary.Read(bam, &length); err != nil {
			return fmt.Errorf("reading name length: %w", err)
		}
		// The name length includes a null terminating character.
		if length < 1 || length > maximumNameLength {
			return fmt.Errorf("invalid name length (%d bytes)", length)
		}
		name := make([]byte, length)
		if _, err := io.ReadFull(bam, name); err != nil {
			return fmt.Errorf("reading name: %w", err)
		}
		seq := &r.Sequences[i]
		seq.Name = string(name[:length-1])
		if err := binary.Read(bam, &seq.Length); err != nil {
			return fmt.Errorf("reading reference length: %w", err)
		}
		r.ids[seq.Name] = int32(i)
		names[i] = seq.Name
	}
	r.aliases = genomics.NewAliases(names)
	return nil
}

// Index returns the index of the file.
func (r *Reader) Index() *Index {
	return r.index
}

// ReferenceID returns the ID of the named reference.  Names are also matched
// against their usual aliases, so "chr1" finds a reference named "1".
func (r *Reader) ReferenceID(name string) (int32, error) {
	resolved, ok := r.aliases.Resolve(name, func(name string) bool {
		_, ok := r.ids[name]
		return ok
	})
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownReference, name)
	}
	return r.ids[resolved], nil
}

// Region converts locus to a region of the file.  An empty chromosome name
// selects all mapped reads.
func (r *Reader) Region(locus genomics.Locus) (genomics.Region, error) {
	if locus.Chr == "" {
		return genomics.AllMappedReads, nil
	}
	id, err := r.ReferenceID(locus.Chr)
	if err != nil {
		return genomics.Region{}, err
	}
	if locus.End > int64(r.Sequences[id].Length) {
		locus.End = int64(r.Sequences[id].Length)
	}
	if locus.Start > locus.End && locus.End != 0 {
		return genomics.Region{}, fmt.Errorf("start %d is past the end of %s", locus.Start, locus.Chr)
	}
	return genomics.Region{ReferenceID: id, Start: uint32(locus.Start), End: uint32(locus.End)}, nil
}

// Chunks returns the chunks covering the header and the reads of region.
func (r *Reader) Chunks(region genomics.Region) []*bgzf.Chunk {
	chunks := r.index.chunks(region, r.mergeLimit)
	r.log.WithFields(logrus.Fields{
		"region": region.String(),
		"chunks": len(chunks),
	}).Debug("selected chunks")
	return chunks
}

// ReadChunk returns the uncompressed bytes covered by chunk.
func (r *Reader) ReadChunk(ctx context.Context, chunk *bgzf.Chunk) ([]byte, error) {
	return r.blocks.Read(ctx, chunk)
}

// Close closes the data source.
func (r *Reader) Close() error {
	return r.data.Close()
}
