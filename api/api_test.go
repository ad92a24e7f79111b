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
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/googlegenomics/straw/hic/hictest"
	"github.com/googlegenomics/straw/internal/analytics"
	"github.com/googlegenomics/straw/internal/bgzf"
	"github.com/googlegenomics/straw/source"
)

const testBucket = "bucket"

func init() {
	gin.SetMode(gin.TestMode)
}

// testBAM holds a BAM file with one reference named "1", a header block and
// two blocks of reads.
type testBAM struct {
	data    []byte
	header  []byte
	offsets []uint64
}

func newTestBAM(t *testing.T) *testBAM {
	t.Helper()
	var header bytes.Buffer
	put := func(v interface{}) {
		if err := binary.Write(&header, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write() failed: %v", err)
		}
	}
	text := "@HD\tVN:1.6\n"
	header.WriteString("BAM\x01")
	put(int32(len(text)))
	header.WriteString(text)
	put(int32(1))
	put(int32(2))
	header.WriteString("1\x00")
	put(int32(50000))

	bam := &testBAM{header: header.Bytes()}
	for _, block := range [][]byte{bam.header, []byte("read-a|"), []byte("read-b|")} {
		encoded, err := bgzf.EncodeBlock(block)
		if err != nil {
			t.Fatalf("EncodeBlock() failed: %v", err)
		}
		bam.offsets = append(bam.offsets, uint64(len(bam.data)))
		bam.data = append(bam.data, encoded...)
	}
	bam.offsets = append(bam.offsets, uint64(len(bam.data)))
	bam.data = append(bam.data, bgzf.EOF...)
	return bam
}

// index returns a BAI or CSI index placing the first block of reads in the
// first 16 kbp window and the second in the next.
func (b *testBAM) index(t *testing.T, csi bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	put := func(v interface{}) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write() failed: %v", err)
		}
	}
	first := bgzf.Chunk{Start: bgzf.NewAddress(b.offsets[1], 0), End: bgzf.NewAddress(b.offsets[2], 0)}
	second := bgzf.Chunk{Start: bgzf.NewAddress(b.offsets[2], 0), End: bgzf.NewAddress(b.offsets[3], 0)}

	if csi {
		buf.WriteString("CSI\x01")
		put([]int32{14, 5, 0})
	} else {
		buf.WriteString("BAI\x01")
	}
	put(int32(1))
	put(int32(2))
	for i, chunk := range []bgzf.Chunk{first, second} {
		put(uint32(4681 + i))
		if csi {
			put(chunk.Start)
		}
		put(int32(1))
		put(chunk)
	}
	if !csi {
		put(int32(2))
		put([]bgzf.Address{first.Start, second.Start})
		return buf.Bytes()
	}

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write(buf.Bytes()); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	return gz.Bytes()
}

// testObjects returns the objects of the test bucket.
func testObjects(t *testing.T) map[string][]byte {
	t.Helper()
	bam := newTestBAM(t)
	return map[string][]byte{
		"grid.hic":        hictest.FullGrid(8, hictest.Rows).MustBytes(),
		"chr22.hic":       hictest.Chr22(9).MustBytes(),
		"sample.bam":      bam.data,
		"sample.bam.bai":  bam.index(t, false),
		"short.bam":       bam.data,
		"short.bai":       bam.index(t, false),
		"csi.bam":         bam.data,
		"csi.bam.csi":     bam.index(t, true),
		"noindex.bam":     bam.data,
		"corrupt.bam":     bam.data,
		"corrupt.bam.bai": []byte("BAI\x01\xff\xff\xff\xff"),
	}
}

func testDirectory(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, testBucket)
	require.NoError(t, os.Mkdir(dir, 0755))
	for name, data := range testObjects(t) {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return root
}

func newTestServer(t *testing.T, opts *Options) (*Server, http.Handler) {
	t.Helper()
	server := NewServer(Directory(testDirectory(t)), opts)
	return server, server.Handler()
}

func testQuery(t *testing.T, handler http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func expectError(t *testing.T, name string, code int, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, code, w.Code, "status code")
	body := make(map[string]interface{})
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	assert.Equal(t, name, body["error"], "'error' field value")
	assert.NotEmpty(t, body["message"])
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, "status code (body %q)", w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestInvalidInputs(t *testing.T) {
	_, handler := newTestServer(t, nil)
	testCases := []struct{ name, url string }{
		{"missing object", "/reads/bucket/?format=BAM"},
		{"escaping bucket", "/metadata/bucket/../other/grid.hic"},
		{"escaping root", "/metadata/bucket/../../grid.hic"},
		{"parent bucket", "/metadata/../grid.hic"},
		{"missing chromosome", "/records/bucket/grid.hic?binSize=10000"},
		{"unknown chromosome", "/records/bucket/grid.hic?chr1=chrZ&binSize=10000"},
		{"missing bin size", "/records/bucket/grid.hic?chr1=0"},
		{"invalid bin size", "/records/bucket/grid.hic?chr1=0&binSize=ten"},
		{"negative bin size", "/records/bucket/grid.hic?chr1=0&binSize=-5"},
		{"invalid start", "/records/bucket/grid.hic?chr1=0&start1=x&binSize=10000"},
		{"unavailable resolution", "/records/bucket/grid.hic?chr1=0&binSize=5"},
		{"reads start without name", "/reads/bucket/sample.bam?start=10"},
		{"reads invalid end", "/reads/bucket/sample.bam?referenceName=1&end=x"},
		{"unknown reference", "/reads/bucket/sample.bam?referenceName=chr2"},
		{"undecodable block", "/block/bucket/sample.bam?not-base64"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, "InvalidInput", http.StatusBadRequest, testQuery(t, handler, tc.url, nil))
		})
	}
}

func TestInvalidRanges(t *testing.T) {
	_, handler := newTestServer(t, nil)
	testCases := []struct{ name, url string }{
		{"records", "/records/bucket/grid.hic?chr1=0&start1=500&end1=100&binSize=10000"},
		{"reads", "/reads/bucket/sample.bam?referenceName=1&start=500&end=100"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, "InvalidRange", http.StatusBadRequest, testQuery(t, handler, tc.url, nil))
		})
	}
}

func TestUnsupportedFormats(t *testing.T) {
	_, handler := newTestServer(t, nil)
	testCases := []struct{ name, url string }{
		{"unknown format", "/reads/bucket/sample.bam?format=XYZ"},
		{"cram format", "/reads/bucket/sample.bam?format=CRAM"},
		{"lowercase bam", "/reads/bucket/sample.bam?format=bam"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := testQuery(t, handler, tc.url, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, "status code (body %q)", w.Body.String())
		})
	}
}

func TestMissingObjects(t *testing.T) {
	_, handler := newTestServer(t, nil)
	testCases := []struct{ name, url string }{
		{"hic", "/metadata/bucket/missing.hic"},
		{"bam", "/reads/bucket/missing.bam"},
		{"no index", "/reads/bucket/noindex.bam"},
		{"block", "/block/bucket/missing.bam?" + mustEncodeChunk(t, &bgzf.Chunk{End: 10})},
		{"bucket", "/metadata/other/grid.hic"},
		{"expected values", "/expected/bucket/grid.hic?binSize=10000"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, "NotFound", http.StatusNotFound, testQuery(t, handler, tc.url, nil))
		})
	}
}

func TestCorruptFiles(t *testing.T) {
	_, handler := newTestServer(t, nil)
	for _, target := range []string{"/reads/bucket/corrupt.bam", "/metadata/bucket/sample.bam"} {
		w := testQuery(t, handler, target, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code, "status code for %s", target)
	}
}

func TestWhitelist(t *testing.T) {
	server, handler := newTestServer(t, nil)
	server.Whitelist([]string{"other", " "})

	for _, target := range []string{"/metadata/bucket/grid.hic", "/reads/bucket/sample.bam", "/block/bucket/sample.bam"} {
		expectError(t, "PermissionDenied", http.StatusForbidden, testQuery(t, handler, target, nil))
	}

	server.Whitelist([]string{testBucket})
	assert.Equal(t, http.StatusOK, testQuery(t, handler, "/metadata/bucket/grid.hic", nil).Code)
}

func TestMetadata(t *testing.T) {
	_, handler := newTestServer(t, nil)

	var body struct {
		Version     int32  `json:"version"`
		Genome      string `json:"genome"`
		Chromosomes []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"chromosomes"`
		BPResolutions []int32 `json:"bpResolutions"`
	}
	decode(t, testQuery(t, handler, "/metadata/bucket/chr22.hic", nil), &body)

	assert.Equal(t, int32(9), body.Version)
	assert.Equal(t, "hg19", body.Genome)
	require.Len(t, body.Chromosomes, 23)
	assert.Equal(t, "22", body.Chromosomes[22].Name)
	assert.Equal(t, int64(hictest.Chr22Size), body.Chromosomes[22].Size)
	assert.Contains(t, body.BPResolutions, int32(hictest.Chr22BinSize))
}

func TestNormalizations(t *testing.T) {
	_, handler := newTestServer(t, nil)

	var body struct {
		Normalizations  []string `json:"normalizations"`
		NormVectorIndex string   `json:"normVectorIndex"`
	}
	decode(t, testQuery(t, handler, "/normalizations/bucket/chr22.hic", nil), &body)
	assert.Contains(t, body.Normalizations, "KR")
	assert.Contains(t, body.Normalizations, "VC")
	assert.NotEmpty(t, body.NormVectorIndex)
}

type recordsBody struct {
	Records []struct {
		Bin1   int32   `json:"bin1"`
		Bin2   int32   `json:"bin2"`
		Counts float32 `json:"counts"`
	} `json:"records"`
}

func TestRecords(t *testing.T) {
	_, handler := newTestServer(t, nil)

	var body recordsBody
	decode(t, testQuery(t, handler, "/records/bucket/grid.hic?chr1=0&binSize=10000", nil), &body)
	require.Len(t, body.Records, hictest.FullGridBins*hictest.FullGridBins)
	for _, r := range body.Records {
		assert.Equal(t, float32(r.Bin1+r.Bin2+1), r.Counts)
	}

	body = recordsBody{}
	decode(t, testQuery(t, handler, "/records/bucket/grid.hic?chr1=0&start1=0&end1=95000&chr2=0&start2=200000&end2=305000&binSize=10000&unit=BP", nil), &body)
	require.NotEmpty(t, body.Records)
	for _, r := range body.Records {
		assert.True(t, r.Bin1 <= 10, "bin1 %d out of range", r.Bin1)
		assert.True(t, r.Bin2 >= 20 && r.Bin2 <= 31, "bin2 %d out of range", r.Bin2)
	}
}

func TestRecords_Normalized(t *testing.T) {
	_, handler := newTestServer(t, nil)

	var raw, normalized recordsBody
	decode(t, testQuery(t, handler, "/records/bucket/chr22.hic?chr1=chr22&start1=0&end1=5000000&binSize=100000", nil), &raw)
	decode(t, testQuery(t, handler, "/records/bucket/chr22.hic?chr1=chr22&start1=0&end1=5000000&binSize=100000&norm=VC", nil), &normalized)

	require.NotEmpty(t, raw.Records)
	require.Len(t, normalized.Records, len(raw.Records))
	for i := range raw.Records {
		assert.InDelta(t, raw.Records[i].Counts/4, normalized.Records[i].Counts, 1e-3)
	}
}

func TestRecords_Empty(t *testing.T) {
	_, handler := newTestServer(t, nil)

	w := testQuery(t, handler, "/records/bucket/chr22.hic?chr1=1&chr2=2&binSize=100000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"records": []}`, w.Body.String())
}

func TestExpected(t *testing.T) {
	_, handler := newTestServer(t, nil)

	var body struct {
		Unit        string             `json:"unit"`
		BinSize     int32              `json:"binSize"`
		Values      []float64          `json:"values"`
		NormFactors map[string]float64 `json:"normFactors"`
	}
	decode(t, testQuery(t, handler, "/expected/bucket/chr22.hic?binSize=100000", nil), &body)
	assert.Equal(t, "BP", body.Unit)
	assert.Equal(t, int32(hictest.Chr22BinSize), body.BinSize)
	assert.Len(t, body.Values, hictest.Chr22Distance+1)
	assert.Equal(t, map[string]float64{"22": 2}, body.NormFactors)

	decode(t, testQuery(t, handler, "/expected/bucket/chr22.hic?binSize=100000&norm=KR", nil), &body)
	assert.Len(t, body.Values, hictest.Chr22Distance+1)
}

type ticketBody struct {
	Htsget struct {
		Format string `json:"format"`
		URLs   []struct {
			URL     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		} `json:"urls"`
	} `json:"htsget"`
}

// fetchReads requests a ticket for target and returns the inflated
// concatenation of its blocks.
func fetchReads(t *testing.T, handler http.Handler, target string, header http.Header) (*ticketBody, []byte) {
	t.Helper()
	var ticket ticketBody
	decode(t, testQuery(t, handler, target, header), &ticket)
	require.Equal(t, "BAM", ticket.Htsget.Format)
	require.NotEmpty(t, ticket.Htsget.URLs)

	last := ticket.Htsget.URLs[len(ticket.Htsget.URLs)-1]
	require.Equal(t, eofMarkerDataURL, last.URL)

	var data []byte
	for _, u := range ticket.Htsget.URLs[:len(ticket.Htsget.URLs)-1] {
		parsed, err := url.Parse(u.URL)
		require.NoError(t, err)
		w := testQuery(t, handler, parsed.RequestURI(), header)
		require.Equal(t, http.StatusOK, w.Code, "status code (body %q)", w.Body.String())
		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
		data = append(data, w.Body.Bytes()...)
	}
	data = append(data, bgzf.EOF...)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	inflated, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	return &ticket, inflated
}

func TestReads(t *testing.T) {
	_, handler := newTestServer(t, nil)
	header := newTestBAM(t).header

	testCases := []struct {
		name, url, want string
	}{
		{"all reads", "/reads/bucket/sample.bam", "read-a|read-b|"},
		{"first window", "/reads/bucket/sample.bam?format=BAM&referenceName=chr1&start=0&end=100", "read-a|"},
		{"second window", "/reads/bucket/sample.bam?referenceName=1&start=16384&end=20000", "read-b|"},
		{"short index name", "/reads/bucket/short.bam?referenceName=1&start=0&end=100", "read-a|"},
		{"csi index", "/reads/bucket/csi.bam?referenceName=1&start=16384&end=16385", "read-b|"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ticket, got := fetchReads(t, handler, tc.url, nil)
			assert.Equal(t, string(header)+tc.want, string(got))
			for _, u := range ticket.Htsget.URLs {
				assert.Empty(t, u.Headers)
			}
		})
	}
}

func TestReads_BlockSizeLimit(t *testing.T) {
	_, handler := newTestServer(t, &Options{BlockSizeLimit: 1})

	var ticket ticketBody
	decode(t, testQuery(t, handler, "/reads/bucket/sample.bam", nil), &ticket)
	// The header, two unmerged chunks of reads and the EOF marker.
	assert.Len(t, ticket.Htsget.URLs, 4)

	_, unlimited := newTestServer(t, nil)
	decode(t, testQuery(t, unlimited, "/reads/bucket/sample.bam", nil), &ticket)
	assert.Len(t, ticket.Htsget.URLs, 3)
}

func TestReads_URLs(t *testing.T) {
	_, handler := newTestServer(t, nil)

	var ticket ticketBody
	decode(t, testQuery(t, handler, "/reads/bucket/sample.bam", nil), &ticket)
	for _, u := range ticket.Htsget.URLs[:len(ticket.Htsget.URLs)-1] {
		parsed, err := url.Parse(u.URL)
		require.NoError(t, err)
		assert.Equal(t, "http", parsed.Scheme)
		assert.Equal(t, "example.com", parsed.Host)
		assert.Equal(t, "/block/bucket/sample.bam", parsed.Path)

		chunk, err := decodeChunk(parsed.RawQuery)
		require.NoError(t, err)
		assert.True(t, chunk.Start <= chunk.End)
	}
}

func TestBlock_Empty(t *testing.T) {
	_, handler := newTestServer(t, nil)
	w := testQuery(t, handler, "/block/bucket/sample.bam?"+mustEncodeChunk(t, &bgzf.Chunk{Start: 5, End: 5}), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func mustEncodeChunk(t *testing.T, chunk *bgzf.Chunk) string {
	t.Helper()
	encoded, err := encodeChunk(chunk)
	require.NoError(t, err)
	return encoded
}

func TestRequestID(t *testing.T) {
	_, handler := newTestServer(t, nil)

	w := testQuery(t, handler, "/metadata/bucket/grid.hic", nil)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = testQuery(t, handler, "/metadata/bucket/grid.hic", http.Header{requestIDHeader: []string{"abc"}})
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))
}

func TestForwardOrigin(t *testing.T) {
	_, handler := newTestServer(t, nil)

	w := testQuery(t, handler, "/metadata/bucket/grid.hic", http.Header{"Origin": []string{"https://example.org"}})
	assert.Equal(t, "https://example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = testQuery(t, handler, "/metadata/bucket/grid.hic", nil)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTracking(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []analytics.Hit
	)
	_, handler := newTestServer(t, &Options{Track: func(h []analytics.Hit) {
		mu.Lock()
		hits = append(hits, h...)
		mu.Unlock()
	}})

	testQuery(t, handler, "/records/bucket/grid.hic?chr1=0&binSize=10000", nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, hits, analytics.Event("Records", "Records Request Received", "", nil))
	count := int64(hictest.FullGridBins * hictest.FullGridBins)
	assert.Contains(t, hits, analytics.Event("Records", "Records Response Count", "", &count))
}

// countingStorage counts the objects opened and closed through it.
type countingStorage struct {
	Storage

	mu     sync.Mutex
	opens  map[string]int
	closes map[string]int
}

func newCountingStorage(t *testing.T) *countingStorage {
	return &countingStorage{
		Storage: Directory(testDirectory(t)),
		opens:   make(map[string]int),
		closes:  make(map[string]int),
	}
}

func (s *countingStorage) Open(req *http.Request, bucket, object string) (source.Source, http.Header, error) {
	s.mu.Lock()
	s.opens[object]++
	s.mu.Unlock()

	src, headers, err := s.Storage.Open(req, bucket, object)
	if err != nil {
		return nil, nil, err
	}
	return &closeCountingSource{src, func() {
		s.mu.Lock()
		s.closes[object]++
		s.mu.Unlock()
	}}, headers, nil
}

func (s *countingStorage) counts(object string) (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[object], s.closes[object]
}

type closeCountingSource struct {
	source.Source
	closed func()
}

func (s *closeCountingSource) Close() error {
	s.closed()
	return s.Source.Close()
}

func TestFileCache(t *testing.T) {
	counting := newCountingStorage(t)
	handler := NewServer(counting, nil).Handler()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			testQuery(t, handler, "/metadata/bucket/grid.hic", nil)
		}()
	}
	wg.Wait()
	testQuery(t, handler, "/reads/bucket/sample.bam", nil)
	testQuery(t, handler, "/reads/bucket/sample.bam?referenceName=1", nil)

	assert.Equal(t, 1, counting.opens["grid.hic"])
	assert.Equal(t, 1, counting.opens["sample.bam"])
	assert.Equal(t, 1, counting.opens["sample.bam.bai"])

	testQuery(t, handler, "/metadata/bucket/grid.hic", http.Header{"Authorization": []string{"Bearer other"}})
	assert.Equal(t, 2, counting.opens["grid.hic"], "files are not shared between credentials")
}

// fakeGCS serves in-memory objects keyed by their base name.
type fakeGCS map[string][]byte

func (fake fakeGCS) RoundTrip(req *http.Request) (*http.Response, error) {
	name := path.Base(req.URL.Path)
	w := httptest.NewRecorder()

	content, ok := fake[name]
	if !ok {
		http.Error(w, fmt.Sprintf("no object named %q", name), http.StatusNotFound)
		return w.Result(), nil
	}
	http.ServeContent(w, req, name, time.Now(), bytes.NewReader(content))
	return w.Result(), nil
}

type fixedStatus int

func (code fixedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		Status:     http.StatusText(int(code)),
		StatusCode: int(code),
		Body:       http.NoBody,
	}, nil
}

func newGCSServer(t *testing.T, transport http.RoundTripper, headers http.Header) http.Handler {
	t.Helper()
	gcs, err := storage.NewClient(context.Background(), option.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("Failed to create storage client: %v", err)
	}
	newStorageClient := func(*http.Request) (*storage.Client, http.Header, error) {
		return gcs, headers, nil
	}
	return NewServer(GCS(newStorageClient), nil).Handler()
}

func TestGCS(t *testing.T) {
	headers := http.Header{"Authorization": []string{"Bearer token"}}
	handler := newGCSServer(t, fakeGCS(testObjects(t)), headers)

	var metadata struct {
		Genome string `json:"genome"`
	}
	decode(t, testQuery(t, handler, "/metadata/bucket/chr22.hic", nil), &metadata)
	assert.Equal(t, "hg19", metadata.Genome)

	ticket, reads := fetchReads(t, handler, "/reads/bucket/sample.bam?referenceName=1&start=0&end=100", nil)
	assert.Contains(t, string(reads), "read-a|")
	for _, u := range ticket.Htsget.URLs[:len(ticket.Htsget.URLs)-1] {
		assert.Equal(t, map[string]string{"Authorization": "Bearer token"}, u.Headers)
	}
}

// This test ensures that the undocumented error handling behaviour of the GCS
// storage client does not change.
func TestGoogleAPIInternalErrors(t *testing.T) {
	testCases := []struct {
		name       string
		transport  http.RoundTripper
		statusCode int
	}{
		{"unauthorized", fixedStatus(http.StatusUnauthorized), http.StatusUnauthorized},
		{"forbidden", fixedStatus(http.StatusForbidden), http.StatusForbidden},
		{"not found", fixedStatus(http.StatusNotFound), http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newGCSServer(t, tc.transport, nil)
			for _, target := range []string{"/metadata/bucket/chr22.hic", "/reads/bucket/sample.bam"} {
				w := testQuery(t, handler, target, nil)
				assert.Equal(t, tc.statusCode, w.Code, "status code for %s", target)
			}
		})
	}
}

func TestNewClientFromBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/metadata/bucket/object", nil)
	if _, _, err := NewClientFromBearerToken(req); err != errMissingOrInvalidToken {
		t.Errorf("Wrong error for missing token: got %v, want %v", err, errMissingOrInvalidToken)
	}

	req.Header.Set("Authorization", "Basic abc")
	if _, _, err := NewClientFromBearerToken(req); err != errMissingOrInvalidToken {
		t.Errorf("Wrong error for basic authorization: got %v, want %v", err, errMissingOrInvalidToken)
	}

	req.Header.Set("Authorization", "Bearer abc")
	client, headers, err := NewClientFromBearerToken(req)
	if err != nil {
		t.Fatalf("NewClientFromBearerToken() failed: %v", err)
	}
	defer client.Close()
	if got, want := headers.Get("Authorization"), "Bearer abc"; got != want {
		t.Errorf("Wrong forwarded header: got %q, want %q", got, want)
	}

	handler := NewServer(GCS(NewClientFromBearerToken), nil).Handler()
	expectError(t, "PermissionDenied", http.StatusForbidden, testQuery(t, handler, "/metadata/bucket/grid.hic", nil))
}
