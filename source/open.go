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
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// DriveDelay is the minimum delay between requests to Google Drive.
const DriveDelay = 100 * time.Millisecond

// Options configures Open.  The zero value is usable.
type Options struct {
	// HTTPClient is used for http and https URIs.
	HTTPClient *http.Client
	// Header is added to every HTTP request.
	Header http.Header
	// Storage is used for gs:// URIs.  If nil, a client using the application
	// default credentials is created and closed with the source.
	Storage *storage.Client
}

// Open returns a Source for uri.  Supported forms are gs://bucket/object,
// http(s) URLs (Google Drive URLs are throttled) and local paths.
func Open(ctx context.Context, uri string, opts *Options) (Source, error) {
	if opts == nil {
		opts = &Options{}
	}

	switch {
	case strings.HasPrefix(uri, "gs://"):
		bucket, object, err := parseGCSURI(uri)
		if err != nil {
			return nil, err
		}
		if opts.Storage != nil {
			return NewGCSObject(opts.Storage, bucket, object), nil
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		src := NewGCSObject(client, bucket, object)
		src.closer = client
		return src, nil

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		var src Source = NewHTTP(opts.HTTPClient, uri, opts.Header)
		if isGoogleDrive(uri) {
			src = NewThrottled(src, DriveDelay)
		}
		return src, nil

	default:
		return OpenFile(strings.TrimPrefix(uri, "file://"))
	}
}

func parseGCSURI(uri string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI %q", uri)
	}
	return parts[0], parts[1], nil
}

func isGoogleDrive(uri string) bool {
	return strings.Contains(uri, "drive.google.com") || strings.Contains(uri, "www.googleapis.com/drive")
}
