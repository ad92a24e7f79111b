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

// Package straw is an App Engine application serving the straw API for
// objects readable with the bearer token of each request.
package straw

import (
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/appengine"

	"github.com/googlegenomics/straw/api"
)

func init() {
	log := logrus.New()
	log.Formatter = &logrus.JSONFormatter{}

	server := api.NewServer(api.GCS(newAppEngineClient), &api.Options{
		Logger:         log,
		BlockSizeLimit: 8 * 1024 * 1024,
	})
	if list := os.Getenv("BUCKET_WHITELIST"); list != "" {
		server.Whitelist(strings.Split(list, ","))
	}
	http.Handle("/", server.Handler())
}

func newAppEngineClient(req *http.Request) (*storage.Client, http.Header, error) {
	return api.NewClientFromBearerToken(req.WithContext(appengine.NewContext(req)))
}
