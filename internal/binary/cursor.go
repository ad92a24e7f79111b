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

package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is reported when a read extends past the end of a buffer.
var ErrTruncated = errors.New("truncated buffer")

// Cursor decodes little endian values from a byte slice, advancing its
// position after every read.
//
// Errors are sticky: once a read runs past the end of the buffer every later
// read returns the zero value and Err reports the first failure.  This lets
// parsers decode a whole record and check for truncation once.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Err returns the first error encountered by the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int {
	return c.pos
}

// Available returns the number of unread bytes.
func (c *Cursor) Available() int {
	return len(c.buf) - c.pos
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) {
	c.next(n)
}

func (c *Cursor) next(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > len(c.buf)-c.pos {
		c.err = fmt.Errorf("reading %d bytes at offset %d of %d: %w", n, c.pos, len(c.buf), ErrTruncated)
		c.pos = len(c.buf)
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Byte reads a single byte.
func (c *Cursor) Byte() byte {
	if b := c.next(1); b != nil {
		return b[0]
	}
	return 0
}

// Short reads a signed 16 bit integer.
func (c *Cursor) Short() int16 {
	if b := c.next(2); b != nil {
		return int16(binary.LittleEndian.Uint16(b))
	}
	return 0
}

// Int reads a signed 32 bit integer.
func (c *Cursor) Int() int32 {
	if b := c.next(4); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

// Long reads a signed 64 bit integer.
func (c *Cursor) Long() int64 {
	if b := c.next(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// Float reads an IEEE 754 single precision value.
func (c *Cursor) Float() float32 {
	if b := c.next(4); b != nil {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return 0
}

// Double reads an IEEE 754 double precision value.
func (c *Cursor) Double() float64 {
	if b := c.next(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// CString reads a null terminated string.  A string that is not terminated
// before the end of the buffer is a truncation error.
func (c *Cursor) CString() string {
	if c.err != nil {
		return ""
	}
	n := bytes.IndexByte(c.buf[c.pos:], 0)
	if n < 0 {
		c.err = fmt.Errorf("unterminated string at offset %d: %w", c.pos, ErrTruncated)
		c.pos = len(c.buf)
		return ""
	}
	s := string(c.buf[c.pos : c.pos+n])
	c.pos += n + 1
	return s
}
