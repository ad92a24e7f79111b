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

// Package analytics sends anonymous usage events to Google Analytics.
package analytics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultEndpoint  = "https://www.google-analytics.com"
	defaultBatchSize = 20 // The maximum number supported by batch endpoint.

	hitsKey = "analytics.hits"
)

// Hit represents a single analytics event (called a 'hit').
type Hit map[string]string

// Event generates a new event typed hit.  The label may be empty and the
// value may be nil but category and action are required.
func Event(category, action, label string, value *int64) Hit {
	hit := Hit{
		"t":  "event",
		"ec": category,
		"ea": action,
	}
	if label != "" {
		hit["el"] = label
	}
	if value != nil {
		hit["ev"] = strconv.FormatInt(*value, 10)
	}
	return hit
}

// Timing generates a user timing hit measuring d, rounded to milliseconds.
func Timing(category, variable string, d time.Duration) Hit {
	return Hit{
		"t":   "timing",
		"utc": category,
		"utv": variable,
		"utt": strconv.FormatInt(int64(d/time.Millisecond), 10),
	}
}

// Client uploads hits to analytics.  Create one with NewClient.
type Client struct {
	// HTTPClient is used to upload hits.  If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	propertyID string
	clientID   string
	endpoint   string
	batchSize  int
}

// NewClient returns a Client sending hits for propertyID on behalf of the
// anonymous clientID.
func NewClient(propertyID, clientID string) *Client {
	return &Client{
		propertyID: propertyID,
		clientID:   clientID,
		endpoint:   defaultEndpoint,
		batchSize:  defaultBatchSize,
	}
}

// Send uploads hits in batches.
func (c *Client) Send(ctx context.Context, hits []Hit) error {
	for i := 0; i < len(hits); i += c.batchSize {
		end := i + c.batchSize
		if end > len(hits) {
			end = len(hits)
		}
		if err := c.upload(ctx, hits[i:end]); err != nil {
			return fmt.Errorf("uploading hits: %w", err)
		}
	}
	return nil
}

func (c *Client) upload(ctx context.Context, hits []Hit) error {
	var body bytes.Buffer
	for _, hit := range hits {
		payload := url.Values{
			"v":   []string{"1"},
			"tid": []string{c.propertyID},
			"cid": []string{c.clientID},
		}
		for key, value := range hit {
			payload.Add(key, value)
		}
		body.WriteString(payload.Encode())
		body.WriteByte('\n')
	}

	request, err := http.NewRequest("POST", c.endpoint+"/batch", &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %v", response.Status)
	}
	return nil
}

// Middleware returns a gin handler that collects the hits recorded through
// Tracker while the rest of the chain runs, adds a timing hit for the matched
// route and passes them all to track.
func Middleware(track func([]Hit)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var hits []Hit
		c.Set(hitsKey, &hits)
		start := time.Now()
		c.Next()

		hits = append(hits, Timing("Requests", endpoint(c.Request.URL.Path), time.Since(start)))
		track(hits)
	}
}

// endpoint returns the first element of path, which names the API endpoint
// without identifying the object requested.
func endpoint(path string) string {
	if len(path) > 1 {
		if i := strings.IndexByte(path[1:], '/'); i >= 0 {
			return path[:i+1]
		}
	}
	return path
}

// Tracker returns a function that records hits for the request of c.  If the
// request did not pass through Middleware, hits are discarded.
func Tracker(c *gin.Context) func(Hit) {
	if v, ok := c.Get(hitsKey); ok {
		if hits, ok := v.(*[]Hit); ok {
			return func(hit Hit) { *hits = append(*hits, hit) }
		}
	}
	return func(Hit) {}
}
