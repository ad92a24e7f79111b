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

package hic

import (
	"sync"

	"github.com/googlegenomics/straw/internal/cache"
)

// blockCache caches decoded blocks of a single resolution.  Block numbers are
// only unique within one zoom level, so switching resolution empties the
// cache before anything is stored or served.
type blockCache struct {
	mu         sync.Mutex
	resolution int32
	blocks     *cache.LRU[string, *Block]
}

func newBlockCache(capacity int) *blockCache {
	return &blockCache{blocks: cache.NewLRU[string, *Block](capacity)}
}

func (bc *blockCache) get(resolution int32, key string) (*Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if resolution != bc.resolution {
		return nil, false
	}
	return bc.blocks.Get(key)
}

func (bc *blockCache) set(resolution int32, key string, block *Block) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if resolution != bc.resolution {
		bc.blocks.Clear()
		bc.resolution = resolution
	}
	bc.blocks.Set(key, block)
}
