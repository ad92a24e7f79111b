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
	"io"
	"io/ioutil"
	"net/http"
)

// HTTP is a Source that issues a GET with a Range header for every read.
type HTTP struct {
	client *http.Client
	url    string
	header http.Header
}

// NewHTTP returns a Source reading url with client.  Any headers in header
// (for example Authorization) are added to every request.  If client is nil
// http.DefaultClient is used.
func NewHTTP(client *http.Client, url string, header http.Header) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, url: url, header: header}
}

func formatRange(offset int64, length int) string {
	return fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1)
}

// ReadRange implements Source.
func (h *HTTP) ReadRange(ctx context.Context, offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range h.header {
		req.Header[k] = v
	}
	req.Header.Set("Range", formatRange(offset, length))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", req.Header.Get("Range"), err)
	}
	defer resp.Body.Close()

	var body io.Reader
	switch resp.StatusCode {
	case http.StatusPartialContent:
		body = resp.Body
	case http.StatusOK:
		// The server ignored the range and is sending the whole object.
		if _, err := io.CopyN(ioutil.Discard, resp.Body, offset); err == io.EOF {
			return nil, newRangeError(offset, length, 0)
		} else if err != nil {
			return nil, fmt.Errorf("skipping to offset %d: %w", offset, err)
		}
		body = resp.Body
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, newRangeError(offset, length, 0)
	case http.StatusNotFound:
		return nil, fmt.Errorf("requesting %s: %w", h.url, ErrNotFound)
	default:
		return nil, fmt.Errorf("requesting %s: unexpected status %q", req.Header.Get("Range"), resp.Status)
	}

	data, err := ioutil.ReadAll(io.LimitReader(body, int64(length)))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(data) < length {
		return data, newRangeError(offset, length, len(data))
	}
	return data, nil
}

// Close implements Source.
func (h *HTTP) Close() error {
	return nil
}
