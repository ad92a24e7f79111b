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

package hic

import "errors"

var (
	// ErrUnsupportedVersion is returned for files older than MinimumVersion.
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrUnknownChromosome is returned when a chromosome name does not match
	// the file's chromosomes or their aliases.
	ErrUnknownChromosome = errors.New("unknown chromosome")

	// ErrNoSuchMatrix is returned when the file has no matrix for a pair of
	// chromosomes.  Sparse files commonly omit inter-chromosomal pairs.
	ErrNoSuchMatrix = errors.New("no such matrix")

	// ErrResolutionUnavailable is returned when a matrix has no zoom level for
	// the requested unit and bin size.
	ErrResolutionUnavailable = errors.New("resolution unavailable")

	// ErrUnknownBlockType is returned when a block uses an encoding that this
	// package does not understand.
	ErrUnknownBlockType = errors.New("unknown block type")

	// ErrNormalizationUnavailable is returned when there is no normalization
	// vector of the requested type for a chromosome and resolution.
	ErrNormalizationUnavailable = errors.New("normalization unavailable")

	// ErrExpectedUnavailable is returned when the file has no expected values
	// of the requested type and resolution.
	ErrExpectedUnavailable = errors.New("expected values unavailable")

	// ErrCorrupt is returned when the file contents are inconsistent.
	ErrCorrupt = errors.New("corrupt file")
)
