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

// Package api serves Hi-C contact matrices and the reads of indexed BAM files
// over HTTP.
//
// Contact matrices are described and queried through JSON endpoints.  Reads
// follow the htsget protocol defined at
// http://samtools.github.io/hts-specs/htsget.html: a ticket lists the URLs of
// the BGZF blocks covering a region, which are served by the block endpoint.
package api

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/googlegenomics/straw/hic"
	"github.com/googlegenomics/straw/internal/analytics"
)

const (
	readsPath = "/reads/"
	blockPath = "/block/"

	requestIDHeader = "X-Request-Id"
	loggerKey       = "api.logger"
)

var (
	errInvalidOrUnspecifiedID = errors.New("invalid or unspecified ID")
	errMissingReferenceName   = errors.New("no reference name specified")
	errMissingOrInvalidToken  = errors.New("missing or invalid token")
	errMissingChromosome      = errors.New("no chromosome specified")
	errMissingBinSize         = errors.New("no bin size specified")
)

// Options configures a Server.  The zero value is usable.
type Options struct {
	// Logger receives a line per request and the details of failures.
	// Nothing is logged if it is nil.
	Logger logrus.FieldLogger

	// CacheSize is the number of opened files of each kind kept between
	// requests.  Zero selects DefaultCacheSize.
	CacheSize int

	// BlockSizeLimit is a soft limit on the compressed size of each block
	// listed in a reads ticket.  Zero means no limit.
	BlockSizeLimit uint64

	// HiC configures the .hic files opened by the server.  Its Logger is
	// replaced by one derived from Logger.
	HiC hic.Options

	// Track, if set, receives the usage hits of each request.
	Track func([]analytics.Hit)
}

// Server serves the API.  Create one with NewServer.
type Server struct {
	storage   Storage
	opts      Options
	log       logrus.FieldLogger
	whitelist map[string]bool
	files     *fileCache
}

// NewServer returns a Server reading objects from storage.
func NewServer(storage Storage, opts *Options) *Server {
	server := &Server{storage: storage, whitelist: make(map[string]bool)}
	if opts != nil {
		server.opts = *opts
	}
	server.log = server.opts.Logger
	if server.log == nil {
		logger := logrus.New()
		logger.Out = ioutil.Discard
		server.log = logger
	}
	server.files = newFileCache(server.opts.CacheSize)
	return server
}

// Whitelist adds buckets to the set of buckets which the server is allowed to
// access. If Whitelist is never called for a given Server then reads from any
// bucket are allowed.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		if bucket = strings.TrimSpace(bucket); bucket != "" {
			server.whitelist[bucket] = true
		}
	}
}

// Export registers the API endpoints with router.
func (server *Server) Export(router gin.IRoutes) {
	router.GET("/metadata/:bucket/*object", server.serveMetadata)
	router.GET("/normalizations/:bucket/*object", server.serveNormalizations)
	router.GET("/records/:bucket/*object", server.serveRecords)
	router.GET("/expected/:bucket/*object", server.serveExpected)
	router.GET(readsPath+":bucket/*object", server.serveReads)
	router.GET(blockPath+":bucket/*object", server.serveBlock)
}

// Handler returns a handler serving the API.  Every response carries a request
// ID and the Origin of CORS requests is allowed.
func (server *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), server.requestID, forwardOrigin)
	if server.opts.Track != nil {
		router.Use(analytics.Middleware(server.opts.Track))
	}
	server.Export(router)
	return router
}

// requestID tags the request with an ID, taken from the request if the client
// supplied one, and logs the request once it has been handled.
func (server *Server) requestID(c *gin.Context) {
	id := c.Request.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.New().String()
	}
	c.Header(requestIDHeader, id)

	log := server.log.WithField("request", id)
	c.Set(loggerKey, log)

	start := time.Now()
	c.Next()
	log.WithFields(logrus.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"elapsed": time.Since(start).String(),
	}).Info("handled request")
}

func requestLogger(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(logrus.FieldLogger); ok {
			return log
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func forwardOrigin(c *gin.Context) {
	if origin := c.Request.Header.Get("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}

// parseID returns the bucket and object named by the request path.
func (server *Server) parseID(c *gin.Context) (string, string, error) {
	bucket := c.Param("bucket")
	object := strings.TrimPrefix(c.Param("object"), "/")
	if bucket == "" || object == "" {
		return "", "", newInvalidInputError("parsing ID", errInvalidOrUnspecifiedID)
	}
	if err := server.checkWhitelist(bucket); err != nil {
		return "", "", newPermissionDeniedError("checking whitelist", err)
	}
	return bucket, object, nil
}

func (server *Server) checkWhitelist(bucket string) error {
	if len(server.whitelist) == 0 || server.whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", bucket)
}
