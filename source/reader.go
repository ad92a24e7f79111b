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
	"bufio"
	"context"
	"io"
)

type rangeReader struct {
	ctx    context.Context
	src    Source
	offset int64
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data, err := ReadAvailable(r.ctx, r.src, r.offset, len(p))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	r.offset += int64(len(data))
	return copy(p, data), nil
}

// NewReader returns a buffered reader over src starting at offset that
// reads chunk bytes per request.
func NewReader(ctx context.Context, src Source, offset int64, chunk int) *bufio.Reader {
	return bufio.NewReaderSize(&rangeReader{ctx: ctx, src: src, offset: offset}, chunk)
}
