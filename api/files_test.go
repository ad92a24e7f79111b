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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedFile(t *testing.T) {
	var closes int
	f := &cachedFile[string]{value: "data", close: func() error {
		closes++
		return nil
	}}

	require.True(t, f.acquire())
	require.True(t, f.acquire())
	f.evict()
	assert.Equal(t, 0, closes, "closed while in use")
	assert.False(t, f.acquire(), "acquired after eviction")

	f.release()
	assert.Equal(t, 0, closes, "closed while in use")
	f.release()
	assert.Equal(t, 1, closes)

	f.evict()
	assert.Equal(t, 1, closes, "closed twice")

	idle := &cachedFile[string]{close: func() error {
		closes++
		return nil
	}}
	idle.evict()
	assert.Equal(t, 2, closes, "idle file not closed on eviction")
}

func TestFileCache_ClosesEvictedFiles(t *testing.T) {
	counting := newCountingStorage(t)
	handler := NewServer(counting, &Options{CacheSize: 1}).Handler()

	for _, target := range []string{"/metadata/bucket/grid.hic", "/reads/bucket/sample.bam"} {
		require.Equal(t, http.StatusOK, testQuery(t, handler, target, nil).Code, target)
	}
	for _, object := range []string{"grid.hic", "sample.bam"} {
		opens, closes := counting.counts(object)
		assert.Equal(t, 1, opens, object)
		assert.Equal(t, 0, closes, "cached %s closed", object)
	}

	for _, target := range []string{"/metadata/bucket/chr22.hic", "/reads/bucket/short.bam"} {
		require.Equal(t, http.StatusOK, testQuery(t, handler, target, nil).Code, target)
	}
	testCases := []struct {
		object string
		closes int
	}{
		{"grid.hic", 1},
		{"sample.bam", 1},
		{"chr22.hic", 0},
		{"short.bam", 0},
	}
	for _, tc := range testCases {
		opens, closes := counting.counts(tc.object)
		if opens != 1 {
			t.Errorf("Wrong opens of %s: got %d, want 1", tc.object, opens)
		}
		if closes != tc.closes {
			t.Errorf("Wrong closes of %s: got %d, want %d", tc.object, closes, tc.closes)
		}
	}

	require.Equal(t, http.StatusOK, testQuery(t, handler, "/metadata/bucket/grid.hic", nil).Code)
	opens, _ := counting.counts("grid.hic")
	assert.Equal(t, 2, opens, "evicted file not reopened")
	_, closes := counting.counts("chr22.hic")
	assert.Equal(t, 1, closes)
}
