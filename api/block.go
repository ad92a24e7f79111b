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

	"github.com/gin-gonic/gin"

	"github.com/googlegenomics/straw/bam"
)

func (server *Server) serveBlock(c *gin.Context) {
	bucket, object, err := server.parseID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	chunk, err := decodeChunk(c.Request.URL.RawQuery)
	if err != nil {
		writeError(c, newInvalidInputError("decoding raw query", err))
		return
	}

	data, _, err := server.storage.Open(c.Request, bucket, object)
	if err != nil {
		writeError(c, err)
		return
	}
	defer data.Close()

	w := &blockWriter{c: c}
	if err := bam.WriteChunk(c.Request.Context(), w, data, chunk); err != nil {
		if !w.started {
			writeError(c, newStorageError("reading block", err))
			return
		}
		requestLogger(c).WithError(err).Error("failed to copy response")
		return
	}
	if !w.started {
		w.start()
	}
}

// blockWriter sends the response header with the first block, so that
// failures before then are still reported with an error status.
type blockWriter struct {
	c       *gin.Context
	started bool
}

func (w *blockWriter) start() {
	w.started = true
	w.c.Header("Content-Type", "application/octet-stream")
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *blockWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.start()
	}
	return w.c.Writer.Write(p)
}
