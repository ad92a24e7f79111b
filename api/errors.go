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
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"google.golang.org/api/googleapi"

	"github.com/googlegenomics/straw/bam"
	"github.com/googlegenomics/straw/hic"
	"github.com/googlegenomics/straw/source"
)

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newAPIError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %w", context, err)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newAPIError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newAPIError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newAPIError("PermissionDenied", http.StatusForbidden, context, err)
}

func newUnsupportedFormatError(err error) error {
	return &apiError{"UnsupportedFormat", http.StatusBadRequest, err}
}

func newNotFoundError(context string, err error) error {
	return newAPIError("NotFound", http.StatusNotFound, context, err)
}

// newStorageError maps the errors of storage clients to API errors.  Other
// errors are returned unchanged.
func newStorageError(context string, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, errMissingOrInvalidToken) {
		return newPermissionDeniedError(context, err)
	}
	if errors.Is(err, source.ErrNotFound) || errors.Is(err, storage.ErrObjectNotExist) {
		return newNotFoundError(context, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return newInvalidAuthenticationError(context, err)
		case http.StatusForbidden:
			return newPermissionDeniedError(context, err)
		case http.StatusNotFound:
			return newNotFoundError(context, err)
		}
	}
	return err
}

// newFileError maps the errors of reading .hic and BAM files to API errors.
func newFileError(context string, err error) error {
	switch {
	case errors.Is(err, hic.ErrUnsupportedVersion):
		return newUnsupportedFormatError(fmt.Errorf("%s: %w", context, err))
	case errors.Is(err, hic.ErrUnknownChromosome),
		errors.Is(err, hic.ErrResolutionUnavailable),
		errors.Is(err, hic.ErrNormalizationUnavailable),
		errors.Is(err, bam.ErrUnknownReference):
		return newInvalidInputError(context, err)
	case errors.Is(err, hic.ErrExpectedUnavailable):
		return newNotFoundError(context, err)
	}
	return newStorageError(context, err)
}

// writeError writes either a JSON object or bare HTTP error describing err.
// A JSON object is written only when the error has a name and code defined by
// the API.
func writeError(c *gin.Context, err error) {
	log := requestLogger(c)
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		log.WithError(err).Warn("request failed")
		c.JSON(apiErr.code, gin.H{
			"error":   apiErr.name,
			"message": fmt.Sprintf("%s: %v", http.StatusText(apiErr.code), apiErr.cause),
		})
		c.Abort()
		return
	}

	log.WithError(err).Error("request failed")
	code := http.StatusInternalServerError
	c.Error(err)
	c.String(code, "%s: %v", http.StatusText(code), err)
	c.Abort()
}
