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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/straw/hic/hictest"
)

func writeFixture(t *testing.T, fixture *hictest.File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hic")
	require.NoError(t, ioutil.WriteFile(path, fixture.MustBytes(), 0644))
	return path
}

func testRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	log := logrus.New()
	log.Out = ioutil.Discard
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"straw-dump"}, args...), &out, log)
	return out.String(), err
}

func TestRun_Records(t *testing.T) {
	path := writeFixture(t, hictest.Chr22(8))

	out, err := testRun(t, "-r", "100000", path, "chr22:0-300000")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, lines, "0\t0\t1000")
	assert.Contains(t, lines, "100000\t200000\t500")
}

func TestRun_Dense(t *testing.T) {
	path := writeFixture(t, hictest.Chr22(8))

	out, err := testRun(t, "--resolution", "100000", "--dense", path, "22:0-200000")
	require.NoError(t, err)
	assert.Equal(t, "1000\t500\n500\t1000\n", out)
}

func TestRun_Metadata(t *testing.T) {
	path := writeFixture(t, hictest.Chr22(9))

	out, err := testRun(t, "--meta", path)
	require.NoError(t, err)
	var metadata struct {
		Genome string `json:"genome"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &metadata))
	assert.Equal(t, "hg19", metadata.Genome)
}

func TestRun_Errors(t *testing.T) {
	path := writeFixture(t, hictest.Chr22(8))
	interPath := writeFixture(t, hictest.InterChromosomal(8))

	testCases := []struct {
		name  string
		args  []string
		usage bool
	}{
		{"no arguments", nil, true},
		{"missing resolution", []string{path, "22"}, true},
		{"unknown option", []string{"--bogus", path, "22"}, true},
		{"missing file", []string{"-r", "100000", filepath.Join(t.TempDir(), "missing.hic"), "22"}, false},
		{"unknown chromosome", []string{"-r", "100000", path, "chrZ"}, false},
		{"invalid locus", []string{"-r", "100000", path, "22:abc"}, false},
		{"observed over expected between chromosomes", []string{"-r", "10000", "--oe", interPath, "1", "2"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testRun(t, tc.args...)
			require.Error(t, err)
			if got := err == errUsage; got != tc.usage {
				t.Errorf("Wrong usage error for %v: got %v, want %v", err, got, tc.usage)
			}
		})
	}
}
