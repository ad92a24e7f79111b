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

// This binary serves .hic contact matrices and htsget reads tickets for BAM
// files stored in GCS or in a local directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/googlegenomics/straw/api"
	"github.com/googlegenomics/straw/internal/analytics"
)

var (
	port      = flag.Int("port", 80, "HTTP service port")
	blockSize = flag.Uint64("block_size", 1024*1024*1024, "block size soft limit")
	cacheSize = flag.Int("cache_size", api.DefaultCacheSize, "number of opened files of each kind to keep")

	secure    = flag.Bool("secure", false, "serve in HTTPS-only mode and forward client bearer tokens")
	httpsCert = flag.String("https_cert", "", "HTTPS certificate file")
	httpsKey  = flag.String("https_key", "", "HTTPS key file")

	buckets   = flag.String("buckets", "", "if set, restricts reads to a comma-separated list of buckets")
	directory = flag.String("directory", "", "if set, serves buckets from subdirectories of this directory instead of GCS")

	// If enabled, anonymous information about requests handled by the server
	// is sent to Google Analytics.  No user identifying information is sent.
	trackUsage = flag.Bool("track_usage", false, "anonymous usage tracking")
	trackingID = flag.String("tracking_id", "", "analytics property receiving usage hits")

	profileMode = flag.String("profile", "", "write a cpu or mem profile to the current directory")
	verbose     = flag.Bool("verbose", false, "log debug messages")
)

func main() {
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *secure && (*httpsCert == "" || *httpsKey == "") {
		log.Fatalf("You must specify both -https_cert and -https_key in secure mode.")
	}
	if *trackUsage && *trackingID == "" {
		log.Fatalf("You must specify -tracking_id to enable usage tracking.")
	}

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		log.Fatalf("Unknown profile mode %q (want cpu or mem).", *profileMode)
	}

	storage := newStorage(log)
	opts := &api.Options{
		Logger:         log,
		CacheSize:      *cacheSize,
		BlockSizeLimit: *blockSize,
	}
	if *trackUsage {
		log.Infof("Enabling anonymous usage tracking")

		client := analytics.NewClient(*trackingID, uuid.New().String())
		opts.Track = func(hits []analytics.Hit) {
			if err := client.Send(context.Background(), hits); err != nil {
				log.WithError(err).Warnf("Failed to send %d hits to analytics", len(hits))
			}
		}
	}

	server := api.NewServer(storage, opts)
	if *buckets != "" {
		server.Whitelist(strings.Split(*buckets, ","))
	}
	handler := server.Handler()

	address := fmt.Sprintf(":%d", *port)
	log.WithField("address", address).Info("Serving")
	if *secure {
		if err := http.ListenAndServeTLS(address, *httpsCert, *httpsKey, handler); err != nil {
			log.Fatalf("HTTPS server returned an error: %v", err)
		}
	} else {
		if err := http.ListenAndServe(address, handler); err != nil {
			log.Fatalf("HTTP server returned an error: %v", err)
		}
	}
}

func newStorage(log logrus.FieldLogger) api.Storage {
	if *directory != "" {
		log.WithField("directory", *directory).Info("Serving local files")
		return api.Directory(*directory)
	}
	if *secure {
		return api.GCS(api.NewClientFromBearerToken)
	}
	return api.GCS(api.NewPublicClient)
}
