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

package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/googlegenomics/straw/source"
)

// Storage opens the objects named by requests.
type Storage interface {
	// Open returns a source reading object from bucket on behalf of req.  Any
	// headers clients must send to fetch blocks of the object, such as
	// forwarded credentials, are returned as well.  Opened files are only
	// shared between requests carrying the same Authorization header.
	Open(req *http.Request, bucket, object string) (source.Source, http.Header, error)
}

// NewStorageClientFunc is the type of function that constructs the appropriate
// storage.Client to satisfy the incoming request. Any headers that caused this
// particular client to be created are returned to allow block requests to be
// generated correctly.
type NewStorageClientFunc func(*http.Request) (*storage.Client, http.Header, error)

type gcsStorage NewStorageClientFunc

// GCS returns a Storage reading objects from Google Cloud Storage with the
// clients returned by newClient.
func GCS(newClient NewStorageClientFunc) Storage {
	return gcsStorage(newClient)
}

func (newClient gcsStorage) Open(req *http.Request, bucket, object string) (source.Source, http.Header, error) {
	client, headers, err := newClient(req)
	if err != nil {
		return nil, nil, newStorageError("creating client", err)
	}
	return source.NewGCSObject(client, bucket, object), headers, nil
}

type directoryStorage string

// Directory returns a Storage reading local files.  Buckets are the
// subdirectories of root.
func Directory(root string) Storage {
	return directoryStorage(root)
}

func (root directoryStorage) Open(_ *http.Request, bucket, object string) (source.Source, http.Header, error) {
	if bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return nil, nil, newInvalidInputError("resolving bucket", errInvalidOrUnspecifiedID)
	}
	base := filepath.Join(string(root), bucket)
	path := filepath.Join(base, filepath.FromSlash(object))
	if rel, err := filepath.Rel(base, path); err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, nil, newInvalidInputError("resolving object", errInvalidOrUnspecifiedID)
	}

	src, err := source.OpenFile(path)
	if err != nil {
		return nil, nil, newStorageError("opening object", err)
	}
	return src, nil, nil
}

var (
	defaultStorageClient           *storage.Client
	defaultStorageClientErr        error
	initializeDefaultStorageClient sync.Once
)

func newClientWithOptions(opts ...option.ClientOption) (*storage.Client, http.Header, error) {
	initializeDefaultStorageClient.Do(func() {
		defaultStorageClient, defaultStorageClientErr = storage.NewClient(context.Background(), opts...)
	})
	if defaultStorageClientErr != nil {
		return nil, nil, fmt.Errorf("creating default storage client: %w", defaultStorageClientErr)
	}
	return defaultStorageClient, nil, nil
}

// NewDefaultClient returns a storage client that uses the application default
// credentials.  It caches the storage client for efficiency.
func NewDefaultClient(_ *http.Request) (*storage.Client, http.Header, error) {
	return newClientWithOptions()
}

// NewPublicClient returns a storage client that does not use any form of
// client authorization.  It can only be used to read publicly-readable
// objects. It caches the storage client for efficiency.
func NewPublicClient(_ *http.Request) (*storage.Client, http.Header, error) {
	return newClientWithOptions(option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromBearerToken constructs a storage client that uses the OAuth2
// bearer token found in req to make storage requests.  It returns the
// authorization header containing the bearer token as well to allow subsequent
// requests to be authenticated correctly.
func NewClientFromBearerToken(req *http.Request) (*storage.Client, http.Header, error) {
	authorization := req.Header.Get("Authorization")

	fields := strings.Split(authorization, " ")
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, nil, errMissingOrInvalidToken
	}

	token := oauth2.Token{
		TokenType:   fields[0],
		AccessToken: fields[1],
	}
	client, err := storage.NewClient(req.Context(), option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return nil, nil, fmt.Errorf("creating client with token source: %w", err)
	}

	return client, http.Header{
		"Authorization": []string{authorization},
	}, nil
}
