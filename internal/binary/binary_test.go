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
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestExpectBytes(t *testing.T) {
	testCases := []struct {
		want  []byte
		input []byte
		match bool
	}{
		{[]byte("HIC\x00"), []byte("HIC\x00"), true},
		{[]byte("BAI\x01"), []byte("BAI\x01EXTRA"), true},
		{[]byte("BAI\x01"), []byte("BAI\x02"), false},
		{[]byte("HIC\x00"), []byte("HI"), false},
		{[]byte("HIC\x00"), []byte(""), false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.input), func(t *testing.T) {
			err := ExpectBytes(bytes.NewReader(tc.input), tc.want)
			if err != nil && tc.match {
				t.Fatalf("ExpectBytes returned unexpected error: %v", err)
			} else if err == nil && !tc.match {
				t.Fatalf("ExpectBytes accepted mismatched input %q", tc.input)
			}
		})
	}
}

func TestReadCString(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
		fail  bool
	}{
		{"simple", "BP\x00rest", "BP", false},
		{"empty", "\x00", "", false},
		{"unterminated", "BP", "", true},
		{"too long", "abcdefghij\x00", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReadCString(bufio.NewReader(strings.NewReader(tc.input)), 8)
			if tc.fail {
				if err == nil {
					t.Fatalf("ReadCString(%q) succeeded, wanted error", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadCString(%q) failed: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("Wrong string: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCursor(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("HIC\x00")
	binary.Write(&buf, binary.LittleEndian, int32(8))
	binary.Write(&buf, binary.LittleEndian, int64(1)<<40)
	binary.Write(&buf, binary.LittleEndian, int16(-32768))
	buf.WriteByte(7)
	binary.Write(&buf, binary.LittleEndian, float32(1.5))
	binary.Write(&buf, binary.LittleEndian, math.Pi)

	c := NewCursor(buf.Bytes())
	if got, want := c.CString(), "HIC"; got != want {
		t.Errorf("Wrong magic: got %q, want %q", got, want)
	}
	if got, want := c.Int(), int32(8); got != want {
		t.Errorf("Wrong int: got %d, want %d", got, want)
	}
	if got, want := c.Long(), int64(1)<<40; got != want {
		t.Errorf("Wrong long: got %d, want %d", got, want)
	}
	if got, want := c.Short(), int16(-32768); got != want {
		t.Errorf("Wrong short: got %d, want %d", got, want)
	}
	if got, want := c.Byte(), byte(7); got != want {
		t.Errorf("Wrong byte: got %d, want %d", got, want)
	}
	if got, want := c.Float(), float32(1.5); got != want {
		t.Errorf("Wrong float: got %v, want %v", got, want)
	}
	if got, want := c.Double(), math.Pi; got != want {
		t.Errorf("Wrong double: got %v, want %v", got, want)
	}
	if got, want := c.Available(), 0; got != want {
		t.Errorf("Wrong available count: got %d, want %d", got, want)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestCursor_Truncated(t *testing.T) {
	testCases := []struct {
		name string
		read func(*Cursor)
	}{
		{"int", func(c *Cursor) { c.Int() }},
		{"long", func(c *Cursor) { c.Long() }},
		{"double", func(c *Cursor) { c.Double() }},
		{"string", func(c *Cursor) { c.CString() }},
		{"skip", func(c *Cursor) { c.Skip(4) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCursor([]byte{1, 2, 3})
			tc.read(c)
			if err := c.Err(); !errors.Is(err, ErrTruncated) {
				t.Fatalf("Wrong error: got %v, want %v", err, ErrTruncated)
			}
			if got := c.Int(); got != 0 {
				t.Errorf("Read after error returned %d, want 0", got)
			}
		})
	}
}
