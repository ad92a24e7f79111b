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
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttled serializes reads from an underlying Source and keeps at least a
// fixed delay between the start of consecutive requests.  It is intended for
// providers that reject bursts of requests, such as Google Drive.
type Throttled struct {
	src     Source
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewThrottled returns a Source that reads from src no more often than once
// per delay.
func NewThrottled(src Source, delay time.Duration) *Throttled {
	return &Throttled{
		src:     src,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// ReadRange implements Source.
func (t *Throttled) ReadRange(ctx context.Context, offset int64, length int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.src.ReadRange(ctx, offset, length)
}

// Close implements Source.
func (t *Throttled) Close() error {
	return t.src.Close()
}
