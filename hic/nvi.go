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
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/googlegenomics/straw/internal/binary"
	"github.com/googlegenomics/straw/source"
)

const (
	// Window used while skipping the expected value vectors.
	expectedScanBufferSize = 256000
	// Enough bytes for the strings and counts that start an expected value
	// record.
	expectedRecordProbeSize = 500

	// Estimated bytes per normalization vector index entry.
	normVectorIndexEntrySize = 30
	// Entries are read in chunks; a chunk is refetched once fewer than this
	// many bytes are left in it.
	normVectorIndexMinimumChunk  = 100
	normVectorIndexMinimumRead   = 1000
	normVectorIndexMaximumString = 1024
)

// NormVectorIndexEntry locates one normalization vector.
type NormVectorIndexEntry struct {
	Type     string
	Chr      int
	Unit     string
	BinSize  int32
	Position int64
	Size     int64
}

func normVectorKey(normType string, chr int, unit string, binSize int32) string {
	return fmt.Sprintf("%s_%d_%s_%d", normType, chr, unit, binSize)
}

func (e NormVectorIndexEntry) key() string {
	return normVectorKey(e.Type, e.Chr, e.Unit, e.BinSize)
}

// NormalizationOptions returns the normalization types available in the file.
// The first is always None.
func (f *File) NormalizationOptions(ctx context.Context) ([]string, error) {
	if err := f.loadNormVectorIndex(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), f.normTypes...), nil
}

// NormVectorIndexRange returns the location of the normalization vector index
// formatted for Options.NormVectorIndex, or "" if the file has no index.
// Persisting it lets later opens of the same file skip locating the index.
func (f *File) NormVectorIndexRange(ctx context.Context) (string, error) {
	if err := f.loadNormVectorIndex(ctx); err != nil {
		return "", err
	}
	return f.nviRange, nil
}

func (f *File) normVectorIndexEntry(ctx context.Context, key string) (NormVectorIndexEntry, bool, error) {
	if err := f.loadNormVectorIndex(ctx); err != nil {
		return NormVectorIndexEntry{}, false, err
	}
	entry, ok := f.nvi[key]
	return entry, ok, nil
}

func (f *File) loadNormVectorIndex(ctx context.Context) error {
	if err := f.Init(ctx); err != nil {
		return err
	}

	f.nviMu.Lock()
	defer f.nviMu.Unlock()
	if f.nviLoaded {
		return nil
	}

	entries, location, err := f.locateNormVectorIndex(ctx)
	if err != nil {
		return fmt.Errorf("reading normalization vector index: %w", err)
	}

	f.nvi = make(map[string]NormVectorIndexEntry, len(entries))
	f.normTypes = []string{None}
	known := map[string]bool{None: true}
	for _, entry := range entries {
		f.nvi[entry.key()] = entry
		if !known[entry.Type] {
			known[entry.Type] = true
			f.normTypes = append(f.normTypes, entry.Type)
		}
	}
	f.nviRange = location
	f.nviLoaded = true
	return nil
}

// locateNormVectorIndex finds and reads the normalization vector index.  It
// uses, in order: a location remembered by the caller, the location stored in
// version 9 headers, and a scan over the expected value vectors which precede
// the index in older files.
func (f *File) locateNormVectorIndex(ctx context.Context) ([]NormVectorIndexEntry, string, error) {
	h := f.header
	if h.Version < 6 {
		return nil, "", nil
	}

	if location := f.opts.NormVectorIndex; location != "" {
		start, size, err := parseIndexRange(location)
		if err != nil {
			return nil, "", err
		}
		entries, err := f.readNormVectorIndex(ctx, start, size)
		return entries, formatIndexRange(start, size), err
	}

	if h.Version >= 9 && h.NormVectorIndexPosition > 0 && h.NormVectorIndexSize > 0 {
		entries, err := f.readNormVectorIndex(ctx, h.NormVectorIndexPosition, h.NormVectorIndexSize)
		return entries, formatIndexRange(h.NormVectorIndexPosition, h.NormVectorIndexSize), err
	}

	if f.footer.normExpectedPosition == 0 {
		return nil, "", nil
	}
	start, err := f.skipExpectedValues(ctx, f.footer.normExpectedPosition)
	if errors.Is(err, source.ErrRangeNotSatisfiable) {
		f.log.Warnf("No normalization vectors found before the end of the file")
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("skipping normalized expected values: %w", err)
	}

	entries, size, err := f.scanNormVectorIndex(ctx, start)
	if errors.Is(err, source.ErrRangeNotSatisfiable) {
		f.log.Warnf("No normalization vectors found before the end of the file")
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return entries, formatIndexRange(start, size), nil
}

func parseIndexRange(location string) (int64, int64, error) {
	decoded, err := url.QueryUnescape(location)
	if err != nil {
		return 0, 0, fmt.Errorf("decoding index location %q: %w", location, err)
	}
	parts := strings.Split(decoded, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid index location %q", location)
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing index start: %w", err)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing index size: %w", err)
	}
	if start < 0 || size < 4 {
		return 0, 0, fmt.Errorf("invalid index location %q", location)
	}
	return start, size, nil
}

func formatIndexRange(start, size int64) string {
	return fmt.Sprintf("%d,%d", start, size)
}

func (f *File) readNormVectorIndex(ctx context.Context, start, size int64) ([]NormVectorIndexEntry, error) {
	data, err := f.src.ReadRange(ctx, start, int(size))
	if err != nil {
		return nil, err
	}
	c := binary.NewCursor(data)
	n, err := readCount(c, "normalization vector")
	if err != nil {
		return nil, err
	}
	entries := make([]NormVectorIndexEntry, 0, n)
	for i := 0; i < n && c.Err() == nil; i++ {
		entries = append(entries, parseNormVectorIndexEntry(c, f.header.Version))
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseNormVectorIndexEntry(c *binary.Cursor, version int32) NormVectorIndexEntry {
	e := NormVectorIndexEntry{
		Type:     c.CString(),
		Chr:      int(c.Int()),
		Unit:     c.CString(),
		BinSize:  c.Int(),
		Position: c.Long(),
	}
	if version < 9 {
		e.Size = int64(c.Int())
	} else {
		e.Size = c.Long()
	}
	return e
}

// valueWidths returns the widths of value counts and values in expected value
// and normalization vectors.
func valueWidths(version int32) (count, value int64) {
	if version < 9 {
		return 4, 8
	}
	return 8, 4
}

// skipExpectedValues walks the normalized expected value records starting at
// start and returns the offset just past them, where the normalization vector
// index begins.
func (f *File) skipExpectedValues(ctx context.Context, start int64) (int64, error) {
	buffered := source.NewBuffered(f.src, expectedScanBufferSize)
	countWidth, valueWidth := valueWidths(f.header.Version)

	data, err := buffered.ReadRange(ctx, start, 4)
	if err != nil {
		return 0, err
	}
	n, err := readCount(binary.NewCursor(data), "normalized expected value")
	if err != nil {
		return 0, err
	}

	position := start + 4
	for i := 0; i < n; i++ {
		data, err := source.ReadAvailable(ctx, buffered, position, expectedRecordProbeSize)
		if err != nil {
			return 0, err
		}
		c := binary.NewCursor(data)
		c.CString() // type
		c.CString() // unit
		c.Int()     // bin size
		var values int64
		if countWidth == 4 {
			values = int64(c.Int())
		} else {
			values = c.Long()
		}
		if err := c.Err(); err != nil {
			if len(data) < expectedRecordProbeSize {
				return 0, fmt.Errorf("expected value record %d: %w", i, source.ErrRangeNotSatisfiable)
			}
			return 0, fmt.Errorf("expected value record %d: %w", i, err)
		}
		if values < 0 {
			return 0, fmt.Errorf("expected value record %d has %d values: %w", i, values, ErrCorrupt)
		}

		size := int64(c.Pos()) + values*valueWidth
		data, err = buffered.ReadRange(ctx, position+size, 4)
		if err != nil {
			return 0, err
		}
		factors := int64(binary.NewCursor(data).Int())
		if factors < 0 {
			return 0, fmt.Errorf("expected value record %d has %d factors: %w", i, factors, ErrCorrupt)
		}
		size += 4 + factors*(4+valueWidth)
		position += size
	}
	return position, nil
}

// scanNormVectorIndex reads the normalization vector index at start without
// knowing its size, fetching entries in chunks sized from the number of
// entries left.  It returns the entries and the size of the index.
func (f *File) scanNormVectorIndex(ctx context.Context, start int64) ([]NormVectorIndexEntry, int64, error) {
	data, err := f.src.ReadRange(ctx, start, 4)
	if err != nil {
		return nil, 0, err
	}
	n, err := readCount(binary.NewCursor(data), "normalization vector")
	if err != nil {
		return nil, 0, err
	}

	entries := make([]NormVectorIndexEntry, 0, n)
	size := int64(4)
	minimum := normVectorIndexMinimumRead
	for len(entries) < n {
		want := (n - len(entries)) * normVectorIndexEntrySize
		if want < minimum {
			want = minimum
		}
		chunk, err := source.ReadAvailable(ctx, f.src, start+size, want)
		if err != nil {
			return nil, 0, err
		}
		last := len(chunk) < want

		offset := 0
		for len(entries) < n && (last || len(chunk)-offset >= normVectorIndexMinimumChunk) {
			c := binary.NewCursor(chunk[offset:])
			entry := parseNormVectorIndexEntry(c, f.header.Version)
			if err := c.Err(); err != nil {
				if last {
					return nil, 0, fmt.Errorf("reading entry %d: %w", len(entries), err)
				}
				// The entry continues past the chunk.
				break
			}
			entries = append(entries, entry)
			offset += c.Pos()
		}

		if offset == 0 {
			if last {
				return nil, 0, fmt.Errorf("entry %d: %w", len(entries), source.ErrRangeNotSatisfiable)
			}
			minimum = 2 * want
		}
		size += int64(offset)
	}
	return entries, size, nil
}
