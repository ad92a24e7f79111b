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
	"io/ioutil"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/googlegenomics/straw/internal/cache"
	"github.com/googlegenomics/straw/internal/genomics"
	"github.com/googlegenomics/straw/source"
)

// Default cache sizes.
const (
	DefaultMatrixCacheSize     = 10
	DefaultBlockCacheSize      = 6
	DefaultNormVectorCacheSize = 10
)

// Options configures a File.  The zero value is usable.
type Options struct {
	// Logger receives warnings about queries that return partial results,
	// such as unknown chromosomes or unavailable normalizations.  Nothing is
	// logged if it is nil.
	Logger logrus.FieldLogger

	// NormVectorIndex is a location of the normalization vector index
	// previously returned by NormVectorIndexRange, formatted "start,size".
	// Setting it avoids scanning the footer of old files.
	NormVectorIndex string

	// LoadFragmentResolutions enables parsing of fragment resolutions.
	LoadFragmentResolutions bool

	// Canonicalize is applied to chromosome names before they are looked up,
	// for example to map genome specific aliases.
	Canonicalize func(string) string

	// Cache sizes.  Zero selects the default.
	MatrixCacheSize     int
	BlockCacheSize      int
	NormVectorCacheSize int

	// MaxConcurrentReads bounds the number of block reads issued in parallel
	// by one query.  Zero means no limit.
	MaxConcurrentReads int
}

// File reads a .hic file through a Source.  It is safe for concurrent use.
type File struct {
	src  source.Source
	opts Options
	log  logrus.FieldLogger

	loads singleflight.Group

	mu          sync.Mutex
	initialized bool
	header      *Header
	footer      *footer
	aliases     genomics.Aliases
	indices     map[string]int

	nviMu     sync.Mutex
	nviLoaded bool
	nvi       map[string]NormVectorIndexEntry
	normTypes []string
	nviRange  string

	expectedMu     sync.Mutex
	expected       map[string]*ExpectedValueFunction
	expectedLoaded map[int64]bool

	matrices    *cache.LRU[string, *Matrix]
	blocks      *blockCache
	normVectors *cache.LRU[string, *NormalizationVector]
}

// New returns a File reading from src.  Nothing is read until the first
// call that needs the header.
func New(src source.Source, opts *Options) *File {
	f := &File{src: src}
	if opts != nil {
		f.opts = *opts
	}

	f.log = f.opts.Logger
	if f.log == nil {
		logger := logrus.New()
		logger.Out = ioutil.Discard
		f.log = logger
	}

	f.matrices = cache.NewLRU[string, *Matrix](sizeOrDefault(f.opts.MatrixCacheSize, DefaultMatrixCacheSize))
	f.blocks = newBlockCache(sizeOrDefault(f.opts.BlockCacheSize, DefaultBlockCacheSize))
	f.normVectors = cache.NewLRU[string, *NormalizationVector](sizeOrDefault(f.opts.NormVectorCacheSize, DefaultNormVectorCacheSize))
	return f
}

func sizeOrDefault(size, fallback int) int {
	if size > 0 {
		return size
	}
	return fallback
}

// Open opens the .hic file at uri (see source.Open).
func Open(ctx context.Context, uri string, sourceOpts *source.Options, opts *Options) (*File, error) {
	src, err := source.Open(ctx, uri, sourceOpts)
	if err != nil {
		return nil, err
	}
	f := New(src, opts)
	if err := f.Init(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return f, nil
}

// Close closes the underlying source.
func (f *File) Close() error {
	return f.src.Close()
}

// Init reads the header and footer.  It is called implicitly by every query
// and only reads the file once; concurrent callers share one read.  A failed
// Init may be retried.
func (f *File) Init(ctx context.Context) error {
	f.mu.Lock()
	initialized := f.initialized
	f.mu.Unlock()
	if initialized {
		return nil
	}

	_, err, _ := f.loads.Do("init", func() (interface{}, error) {
		return nil, f.init(ctx)
	})
	return err
}

func (f *File) init(ctx context.Context) error {
	f.mu.Lock()
	initialized := f.initialized
	f.mu.Unlock()
	if initialized {
		return nil
	}

	data, err := f.src.ReadRange(ctx, 0, preambleSize)
	if err != nil {
		return fmt.Errorf("reading preamble: %w", err)
	}
	h, err := parsePreamble(data)
	if err != nil {
		return err
	}

	ft, err := readFooter(ctx, f.src, h)
	if err != nil {
		return fmt.Errorf("reading footer: %w", err)
	}

	end := ft.bodyEnd(h.FooterPosition)
	if end < preambleSize {
		return fmt.Errorf("matrix at offset %d overlaps header: %w", end, ErrCorrupt)
	}
	data, err = source.ReadAvailable(ctx, f.src, preambleSize, int(end-preambleSize))
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if err := h.parseBody(data, f.opts.LoadFragmentResolutions); err != nil {
		return err
	}

	names := make([]string, len(h.Chromosomes))
	indices := make(map[string]int, len(h.Chromosomes))
	for i, chr := range h.Chromosomes {
		names[i] = chr.Name
		indices[chr.Name] = i
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.header = h
	f.footer = ft
	f.aliases = genomics.NewAliases(names)
	f.indices = indices
	f.initialized = true
	return nil
}

// Header returns the file header.
func (f *File) Header(ctx context.Context) (*Header, error) {
	if err := f.Init(ctx); err != nil {
		return nil, err
	}
	return f.header, nil
}

// Metadata returns a summary of the file.
func (f *File) Metadata(ctx context.Context) (*Metadata, error) {
	h, err := f.Header(ctx)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Version:         h.Version,
		Genome:          h.Genome,
		Chromosomes:     h.Chromosomes,
		BPResolutions:   h.BPResolutions,
		FragResolutions: h.FragResolutions,
		Attributes:      h.Attributes,
	}, nil
}

// Chromosome returns the chromosome called name, accepting aliases such as
// "1" for "chr1".
func (f *File) Chromosome(ctx context.Context, name string) (Chromosome, error) {
	if err := f.Init(ctx); err != nil {
		return Chromosome{}, err
	}
	idx, err := f.chromosomeIndex(name)
	if err != nil {
		return Chromosome{}, err
	}
	return f.header.Chromosomes[idx], nil
}

func (f *File) chromosomeIndex(name string) (int, error) {
	if f.opts.Canonicalize != nil {
		name = f.opts.Canonicalize(name)
	}
	resolved, ok := f.aliases.Resolve(name, func(n string) bool {
		_, ok := f.indices[n]
		return ok
	})
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownChromosome)
	}
	return f.indices[resolved], nil
}
