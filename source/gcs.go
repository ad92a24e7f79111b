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
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ObjectHandle is an interface to the storage engine holding an object.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified range.
	// Length of -1 means to capture everything until the end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

// GCS is a Source backed by an object in Google Cloud Storage.
type GCS struct {
	object ObjectHandle
	closer io.Closer
}

// NewGCS returns a Source that reads from object.
func NewGCS(object ObjectHandle) *GCS {
	return &GCS{object: object}
}

// NewGCSObject returns a Source that reads the named object with client.
func NewGCSObject(client *storage.Client, bucket, object string) *GCS {
	return NewGCS(gcsObjectHandle{client.Bucket(bucket).Object(object)})
}

// ReadRange implements Source.
func (g *GCS) ReadRange(ctx context.Context, offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	r, err := g.object.NewRangeReader(ctx, offset, int64(length))
	if err != nil {
		return nil, newGCSError(offset, length, err)
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, err)
	}
	if len(data) < length {
		return data, newRangeError(offset, length, len(data))
	}
	return data, nil
}

// Close closes the storage client if the source owns it.
func (g *GCS) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

func newGCSError(offset int64, length int, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("opening object: %w", ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestedRangeNotSatisfiable {
		return newRangeError(offset, length, 0)
	}
	return err
}
