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

// This binary prints the contact records of a .hic file, in the manner of the
// straw command line tool.
//
//	straw-dump [options] <file> <chr1>[:start[-end]] [<chr2>[:start[-end]]]
//
// The file may be a local path, an http(s) URL or a gs://bucket/object URI.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pborman/getopt"
	"github.com/sirupsen/logrus"

	"github.com/googlegenomics/straw/hic"
	"github.com/googlegenomics/straw/internal/genomics"
)

type config struct {
	norm       string
	unit       string
	resolution int
	meta       bool
	dense      bool
	oe         bool
}

var errUsage = errors.New("invalid arguments")

func main() {
	log := logrus.New()
	log.Out = os.Stderr

	if err := run(context.Background(), os.Args, os.Stdout, log); err != nil {
		if err != errUsage {
			log.Errorf("%v", err)
		}
		os.Exit(1)
	}
}

// run executes the command line args, writing results to stdout.  Usage
// errors are reported on the standard error and returned as errUsage.
func run(ctx context.Context, args []string, stdout io.Writer, log *logrus.Logger) error {
	options := getopt.New()
	options.SetProgram(args[0])
	options.SetParameters("<file> <chr1>[:start[-end]] [<chr2>[:start[-end]]]")

	optNorm := options.StringLong("norm", 'n', hic.None, "normalization (NONE, KR, VC, VC_SQRT, ...)")
	optUnit := options.StringLong("unit", 'u', hic.UnitBP, "bin unit, BP or FRAG")
	optResolution := options.IntLong("resolution", 'r', 0, "bin size")
	optMeta := options.BoolLong("meta", 0, "print the metadata of the file")
	optDense := options.BoolLong("dense", 0, "print a dense matrix instead of records")
	optOE := options.BoolLong("oe", 0, "divide counts by the expected count (intra-chromosomal only)")
	optVerbose := options.BoolLong("verbose", 'v', "log warnings")
	optHelp := options.BoolLong("help", 'h', "print help")

	if err := options.Getopt(args, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		options.PrintUsage(os.Stderr)
		return errUsage
	}
	if *optHelp {
		options.PrintUsage(stdout)
		return nil
	}
	if !*optVerbose {
		log.SetLevel(logrus.ErrorLevel)
	}

	params := options.Args()
	if len(params) < 1 || (!*optMeta && (len(params) < 2 || len(params) > 3 || *optResolution <= 0)) {
		options.PrintUsage(os.Stderr)
		return errUsage
	}

	cfg := config{
		norm:       *optNorm,
		unit:       *optUnit,
		resolution: *optResolution,
		meta:       *optMeta,
		dense:      *optDense,
		oe:         *optOE,
	}

	f, err := hic.Open(ctx, params[0], nil, &hic.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("opening %s: %w", params[0], err)
	}
	defer f.Close()

	w := bufio.NewWriter(stdout)
	if cfg.meta {
		err = printMetadata(ctx, w, f)
	} else {
		err = dump(ctx, w, f, cfg, params[1:])
	}
	if err != nil {
		return err
	}
	return w.Flush()
}

func printMetadata(ctx context.Context, w io.Writer, f *hic.File) error {
	metadata, err := f.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(metadata)
}

func dump(ctx context.Context, w io.Writer, f *hic.File, cfg config, loci []string) error {
	r1, err := parseRegion(ctx, f, loci[0])
	if err != nil {
		return err
	}
	r2 := r1
	if len(loci) > 1 {
		if r2, err = parseRegion(ctx, f, loci[1]); err != nil {
			return err
		}
	}

	binSize := int32(cfg.resolution)
	records, err := f.ContactRecords(ctx, cfg.norm, r1, r2, cfg.unit, binSize)
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}

	if cfg.oe {
		chr1, err := f.Chromosome(ctx, r1.Chr)
		if err != nil {
			return err
		}
		chr2, err := f.Chromosome(ctx, r2.Chr)
		if err != nil {
			return err
		}
		if chr1.Index != chr2.Index {
			return fmt.Errorf("observed over expected needs a single chromosome, got %s and %s", r1.Chr, r2.Chr)
		}
		e, err := f.ExpectedValues(ctx, cfg.norm, cfg.unit, binSize)
		if err != nil {
			return fmt.Errorf("reading expected values: %w", err)
		}
		records = hic.ObservedOverExpected(records, e, chr1.Index)
	}

	if cfg.dense {
		m, err := hic.Dense(records, r1, r2, binSize)
		if err != nil {
			return err
		}
		rows, cols := m.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				sep := '\t'
				if j == cols-1 {
					sep = '\n'
				}
				if _, err := fmt.Fprintf(w, "%g%c", m.At(i, j), sep); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, r := range records {
		x, y := int64(r.Bin1)*int64(binSize), int64(r.Bin2)*int64(binSize)
		if _, err := fmt.Fprintf(w, "%d\t%d\t%g\n", x, y, r.Counts); err != nil {
			return err
		}
	}
	return nil
}

// parseRegion resolves a locus, filling in the end of the chromosome when it
// is not given.
func parseRegion(ctx context.Context, f *hic.File, input string) (hic.Region, error) {
	locus, err := genomics.ParseLocus(input)
	if err != nil {
		return hic.Region{}, err
	}
	chr, err := f.Chromosome(ctx, locus.Chr)
	if err != nil {
		return hic.Region{}, err
	}
	region := hic.Region{Chr: locus.Chr, Start: locus.Start, End: locus.End}
	if region.End == 0 {
		region.End = chr.Size
	}
	return region, nil
}
