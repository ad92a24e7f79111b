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

// Package source provides random access to byte ranges of local and remote
// objects.
package source

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRangeNotSatisfiable is returned when a requested range extends past
	// the end of the object.  Any bytes that were available are returned with
	// it, so callers reading speculatively near the end of a file can treat it
	// as a short read.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Source reads byte ranges from a single object.  Implementations must be
// safe for concurrent use.
type Source interface {
	// ReadRange returns length bytes starting at offset.  If the range extends
	// past the end of the object the available bytes are returned together
	// with an error wrapping ErrRangeNotSatisfiable.
	ReadRange(ctx context.Context, offset int64, length int) ([]byte, error)

	// Close releases any resources held by the source.
	Close() error
}

// ReadAvailable reads up to length bytes at offset from src.  Unlike
// ReadRange, a range that extends past the end of the object is not an error:
// the bytes that exist (possibly none) are returned.
func ReadAvailable(ctx context.Context, src Source, offset int64, length int) ([]byte, error) {
	data, err := src.ReadRange(ctx, offset, length)
	if errors.Is(err, ErrRangeNotSatisfiable) {
		return data, nil
	}
	return data, err
}

func newRangeError(offset int64, length, got int) error {
	return fmt.Errorf("read %d of %d bytes at offset %d: %w", got, length, offset, ErrRangeNotSatisfiable)
}
