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
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/googlegenomics/straw/hic"
	"github.com/googlegenomics/straw/internal/analytics"
)

type record struct {
	Bin1   int32   `json:"bin1"`
	Bin2   int32   `json:"bin2"`
	Counts float32 `json:"counts"`
}

func (server *Server) serveMetadata(c *gin.Context) {
	f, release, err := server.openHiC(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer release()
	metadata, err := f.Metadata(c.Request.Context())
	if err != nil {
		writeError(c, newFileError("reading metadata", err))
		return
	}
	c.JSON(http.StatusOK, metadata)
}

func (server *Server) serveNormalizations(c *gin.Context) {
	f, release, err := server.openHiC(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer release()

	ctx := c.Request.Context()
	types, err := f.NormalizationOptions(ctx)
	if err != nil {
		writeError(c, newFileError("reading normalization vector index", err))
		return
	}
	location, err := f.NormVectorIndexRange(ctx)
	if err != nil {
		writeError(c, newFileError("locating normalization vector index", err))
		return
	}

	response := gin.H{"normalizations": types}
	if location != "" {
		response["normVectorIndex"] = location
	}
	c.JSON(http.StatusOK, response)
}

func (server *Server) serveRecords(c *gin.Context) {
	track := analytics.Tracker(c)
	track(analytics.Event("Records", "Records Request Received", "", nil))

	f, release, err := server.openHiC(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer release()

	ctx := c.Request.Context()
	query := c.Request.URL.Query()
	r1, err := parseRegion(c, f, query, "1")
	if err != nil {
		writeError(c, err)
		return
	}
	r2 := r1
	if query.Get("chr2") != "" {
		if r2, err = parseRegion(c, f, query, "2"); err != nil {
			writeError(c, err)
			return
		}
	}
	binSize, err := parseBinSize(query)
	if err != nil {
		writeError(c, err)
		return
	}

	records, err := f.ContactRecords(ctx, query.Get("norm"), r1, r2, unit(query), binSize)
	if err != nil {
		writeError(c, newFileError("reading records", err))
		return
	}

	response := make([]record, len(records))
	for i, r := range records {
		response[i] = record{r.Bin1, r.Bin2, r.Counts}
	}
	c.JSON(http.StatusOK, gin.H{"records": response})

	count := int64(len(records))
	track(analytics.Event("Records", "Records Response Count", "", &count))
}

func (server *Server) serveExpected(c *gin.Context) {
	f, release, err := server.openHiC(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer release()

	query := c.Request.URL.Query()
	binSize, err := parseBinSize(query)
	if err != nil {
		writeError(c, err)
		return
	}
	e, err := f.ExpectedValues(c.Request.Context(), query.Get("norm"), unit(query), binSize)
	if err != nil {
		writeError(c, newFileError("reading expected values", err))
		return
	}

	factors := make(map[string]float64, len(e.NormFactors))
	for chr, factor := range e.NormFactors {
		factors[strconv.Itoa(chr)] = factor
	}
	c.JSON(http.StatusOK, gin.H{
		"type":        e.Type,
		"unit":        e.Unit,
		"binSize":     e.BinSize,
		"values":      e.Values,
		"normFactors": factors,
	})
}

func unit(query url.Values) string {
	if u := query.Get("unit"); u != "" {
		return u
	}
	return hic.UnitBP
}

func parseBinSize(query url.Values) (int32, error) {
	value := query.Get("binSize")
	if value == "" {
		return 0, newInvalidInputError("parsing bin size", errMissingBinSize)
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil || n <= 0 {
		return 0, newInvalidInputError("parsing bin size", fmt.Errorf("invalid bin size %q", value))
	}
	return int32(n), nil
}

// parseRegion reads the region named by the chr, start and end parameters
// with the given suffix.  Missing positions select the whole chromosome.
func parseRegion(c *gin.Context, f *hic.File, query url.Values, suffix string) (hic.Region, error) {
	name := query.Get("chr" + suffix)
	if name == "" {
		return hic.Region{}, newInvalidInputError("parsing region", errMissingChromosome)
	}
	chr, err := f.Chromosome(c.Request.Context(), name)
	if err != nil {
		return hic.Region{}, newFileError("parsing region", err)
	}

	region := hic.Region{Chr: name, End: chr.Size}
	if start := query.Get("start" + suffix); start != "" {
		if region.Start, err = strconv.ParseInt(start, 10, 64); err != nil || region.Start < 0 {
			return hic.Region{}, newInvalidInputError("parsing region", fmt.Errorf("invalid start %q", start))
		}
	}
	if end := query.Get("end" + suffix); end != "" {
		if region.End, err = strconv.ParseInt(end, 10, 64); err != nil || region.End < 0 {
			return hic.Region{}, newInvalidInputError("parsing region", fmt.Errorf("invalid end %q", end))
		}
	}
	if region.Start > region.End {
		return hic.Region{}, newInvalidRangeError(fmt.Errorf("%s: start > end", region))
	}
	return region, nil
}
