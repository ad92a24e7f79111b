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
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/googlegenomics/straw/internal/analytics"
	"github.com/googlegenomics/straw/internal/bgzf"
	"github.com/googlegenomics/straw/internal/genomics"
)

const eofMarkerDataURL = "data:;base64,H4sIBAAAAAAA/wYAQkMCABsAAwAAAAAAAAAAAA=="

type ticket struct {
	Htsget struct {
		Format string      `json:"format"`
		URLs   []ticketURL `json:"urls"`
	} `json:"htsget"`
}

type ticketURL struct {
	URL string `json:"url"`
	// The htsget specification does not support multiple values for a single
	// header.
	Headers map[string]string `json:"headers,omitempty"`
}

func (server *Server) serveReads(c *gin.Context) {
	track := analytics.Tracker(c)
	track(analytics.Event("Reads", "Reads Request Received", "", nil))

	query := c.Request.URL.Query()
	if err := parseFormat(query.Get("format")); err != nil {
		writeError(c, newUnsupportedFormatError(err))
		return
	}

	bucket, object, err := server.parseID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	locus, err := parseLocus(query)
	if err != nil {
		writeError(c, newInvalidInputError("parsing region", err))
		return
	}
	if locus.End > 0 && locus.Start > locus.End {
		writeError(c, newInvalidRangeError(fmt.Errorf("%s:%d-%d: start > end", locus.Chr, locus.Start, locus.End)))
		return
	}

	f, release, err := server.openBAM(c, bucket, object)
	if err != nil {
		track(analytics.Event("Reads", "Reads Internal Error", "", nil))
		writeError(c, err)
		return
	}
	defer release()

	region, err := f.Region(locus)
	if err != nil {
		writeError(c, newFileError("resolving region", err))
		return
	}

	base := strings.Replace(c.Request.URL.Path, readsPath, blockPath, 1)
	if host := c.Request.Host; host != "" {
		scheme := "http://"
		if c.Request.TLS != nil {
			scheme = "https://"
		}
		base = scheme + host + base
	}

	var headers map[string]string
	if len(f.headers) > 0 {
		headers = make(map[string]string)
		for k, v := range f.headers {
			headers[k] = v[0]
		}
	}

	var response ticket
	response.Htsget.Format = "BAM"
	for _, chunk := range f.Chunks(region) {
		encoded, err := encodeChunk(chunk)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Htsget.URLs = append(response.Htsget.URLs, ticketURL{
			URL:     base + "?" + encoded,
			Headers: headers,
		})
	}
	response.Htsget.URLs = append(response.Htsget.URLs, ticketURL{URL: eofMarkerDataURL})
	c.JSON(http.StatusOK, response)

	count := int64(len(response.Htsget.URLs))
	track(analytics.Event("Reads", "Reads Response URL Count", "", &count))
	track(analytics.Event("Reads", "Reads Response Sent", "", nil))
}

func encodeChunk(chunk *bgzf.Chunk) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunk); err != nil {
		return "", fmt.Errorf("encoding chunk: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeChunk(rawQuery string) (*bgzf.Chunk, error) {
	b, err := base64.URLEncoding.DecodeString(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	var chunk bgzf.Chunk
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&chunk); err != nil {
		return nil, fmt.Errorf("gob: %w", err)
	}
	return &chunk, nil
}

func parseFormat(format string) error {
	if format != "" && format != "BAM" {
		return fmt.Errorf("unsupported format %q", format)
	}
	return nil
}

func parseLocus(query url.Values) (genomics.Locus, error) {
	var (
		name  = query.Get("referenceName")
		start = query.Get("start")
		end   = query.Get("end")
	)
	if name == "" && start == "" && end == "" {
		return genomics.Locus{}, nil
	}
	if name == "" {
		return genomics.Locus{}, errMissingReferenceName
	}

	locus := genomics.Locus{Chr: name}
	if start != "" {
		n, err := strconv.ParseUint(start, 10, 32)
		if err != nil {
			return genomics.Locus{}, fmt.Errorf("parsing start: %w", err)
		}
		locus.Start = int64(n)
	}
	if end != "" {
		n, err := strconv.ParseUint(end, 10, 32)
		if err != nil {
			return genomics.Locus{}, fmt.Errorf("parsing end: %w", err)
		}
		locus.End = int64(n)
	}
	return locus, nil
}
