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
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/googlegenomics/straw/bam"
	"github.com/googlegenomics/straw/hic"
	"github.com/googlegenomics/straw/internal/cache"
	"github.com/googlegenomics/straw/source"
)

// DefaultCacheSize is the number of opened files of each kind a Server keeps
// by default.
const DefaultCacheSize = 16

// Opens give up after this many attempts to use a file that is evicted as
// soon as it is loaded.
const maximumOpenAttempts = 3

var (
	errNoIndex     = errors.New("no index found")
	errFileEvicted = errors.New("file evicted while opening")
)

type fileCache struct {
	hic   *cache.LRU[string, *cachedFile[*hic.File]]
	bam   *cache.LRU[string, *cachedFile[*bamFile]]
	loads singleflight.Group
}

type bamFile struct {
	*bam.Reader
	headers http.Header
}

// cachedFile counts the requests using an opened file.  The file is closed
// once it has been evicted and no request holds it.
type cachedFile[T any] struct {
	value T
	close func() error

	mu      sync.Mutex
	refs    int
	evicted bool
}

func (f *cachedFile[T]) acquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evicted {
		return false
	}
	f.refs++
	return true
}

func (f *cachedFile[T]) release() {
	f.mu.Lock()
	f.refs--
	closing := f.evicted && f.refs == 0
	f.mu.Unlock()
	if closing {
		f.close()
	}
}

func (f *cachedFile[T]) evict() {
	f.mu.Lock()
	closing := !f.evicted && f.refs == 0
	f.evicted = true
	f.mu.Unlock()
	if closing {
		f.close()
	}
}

func evictFile[T any](_ string, f *cachedFile[T]) {
	f.evict()
}

func newFileCache(size int) *fileCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &fileCache{
		hic: cache.NewEvictingLRU[string, *cachedFile[*hic.File]](size, evictFile[*hic.File]),
		bam: cache.NewEvictingLRU[string, *cachedFile[*bamFile]](size, evictFile[*bamFile]),
	}
}

func cacheKey(req *http.Request, bucket, object string) string {
	return req.Header.Get("Authorization") + "\x00" + bucket + "/" + object
}

// acquireFile returns the cached file for key, opening it if needed.  Callers
// must call the returned release function once they are done with the file.
func acquireFile[T any](files *cache.LRU[string, *cachedFile[T]], loads *singleflight.Group, key string, open func() (T, func() error, error)) (T, func(), error) {
	var zero T
	for attempt := 0; attempt < maximumOpenAttempts; attempt++ {
		if f, ok := files.Get(key); ok && f.acquire() {
			return f.value, f.release, nil
		}
		v, err, _ := loads.Do(key, func() (interface{}, error) {
			if f, ok := files.Get(key); ok {
				return f, nil
			}
			value, closer, err := open()
			if err != nil {
				return nil, err
			}
			f := &cachedFile[T]{value: value, close: closer}
			files.Set(key, f)
			return f, nil
		})
		if err != nil {
			return zero, nil, err
		}
		if f := v.(*cachedFile[T]); f.acquire() {
			return f.value, f.release, nil
		}
	}
	return zero, nil, errFileEvicted
}

func (server *Server) openHiC(c *gin.Context) (*hic.File, func(), error) {
	bucket, object, err := server.parseID(c)
	if err != nil {
		return nil, nil, err
	}

	key := "hic:" + cacheKey(c.Request, bucket, object)
	return acquireFile(server.files.hic, &server.files.loads, key, func() (*hic.File, func() error, error) {
		src, _, err := server.storage.Open(c.Request, bucket, object)
		if err != nil {
			return nil, nil, err
		}

		opts := server.opts.HiC
		opts.Logger = server.log.WithField("object", bucket+"/"+object)
		f := hic.New(src, &opts)
		if err := f.Init(c.Request.Context()); err != nil {
			f.Close()
			return nil, nil, newFileError("reading header", err)
		}
		return f, f.Close, nil
	})
}

func (server *Server) openBAM(c *gin.Context, bucket, object string) (*bamFile, func(), error) {
	key := "bam:" + cacheKey(c.Request, bucket, object)
	return acquireFile(server.files.bam, &server.files.loads, key, func() (*bamFile, func() error, error) {
		ctx := c.Request.Context()
		idx, err := server.readIndex(ctx, c.Request, bucket, object)
		if err != nil {
			return nil, nil, err
		}

		data, headers, err := server.storage.Open(c.Request, bucket, object)
		if err != nil {
			return nil, nil, err
		}
		r, err := bam.New(ctx, data, idx, &bam.Options{
			Logger:     server.log.WithField("object", bucket+"/"+object),
			MergeLimit: server.opts.BlockSizeLimit,
		})
		if err != nil {
			data.Close()
			return nil, nil, newFileError("opening data", err)
		}
		return &bamFile{Reader: r, headers: headers}, r.Close, nil
	})
}

func (server *Server) readIndex(ctx context.Context, req *http.Request, bucket, object string) (*bam.Index, error) {
	candidates := []string{
		object + ".bai",
		strings.TrimSuffix(object, ".bam") + ".bai",
		object + ".csi",
	}
	for _, name := range candidates {
		src, _, err := server.storage.Open(req, bucket, name)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		idx, err := bam.ReadIndex(ctx, src)
		src.Close()
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, newFileError(fmt.Sprintf("reading index %s", name), err)
		}
		return idx, nil
	}
	return nil, newNotFoundError("opening index", errNoIndex)
}

func isNotFound(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.code == http.StatusNotFound
	}
	return errors.Is(err, source.ErrNotFound)
}
