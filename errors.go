/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package deviceatlas holds the error kinds shared by the device and carrier
// detection engines. The engines themselves live in the device and carrier
// sub-packages.
package deviceatlas

import (
	"errors"
	"fmt"
)

var (
	ErrNoDataFile          = errors.New("No data file loaded")
	ErrTruncatedInput      = errors.New("Truncated input")
	ErrInvalidDataFile     = errors.New("Invalid data file")
	ErrCrcMismatch         = errors.New("CRC-32 mismatch")
	ErrUnsupportedVersion  = errors.New("Unsupported data file version")
	ErrBadEncoding         = errors.New("Invalid UTF-8 encoding")
	ErrUnknownProperty     = errors.New("Unknown property")
	ErrBadClientProperties = errors.New("Bad client properties")
)

// CrcMismatchError is returned when a carrier bucket fails its checksum.
type CrcMismatchError struct {
	Bucket   int
	Expected uint32
	Actual   uint32
}

func (e *CrcMismatchError) Error() string {
	return fmt.Sprintf("CRC-32 mismatch on bucket %d: expected %#08x, got %#08x", e.Bucket, e.Expected, e.Actual)
}

func (e *CrcMismatchError) Unwrap() error {
	return ErrCrcMismatch
}

// InvalidDataFileError carries the reason a data file was rejected.
type InvalidDataFileError struct {
	Cause string
	Err   error
}

// NewInvalidDataFile builds an InvalidDataFileError, err may be nil.
func NewInvalidDataFile(cause string, err error) error {
	return &InvalidDataFileError{Cause: cause, Err: err}
}

func (e *InvalidDataFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Invalid data file: %s: %v", e.Cause, e.Err)
	}
	return "Invalid data file: " + e.Cause
}

func (e *InvalidDataFileError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidDataFile, e.Err}
	}
	return []error{ErrInvalidDataFile}
}

// UnknownProperty wraps ErrUnknownProperty with the offending name.
func UnknownProperty(name string) error {
	return fmt.Errorf("%w %q", ErrUnknownProperty, name)
}

// BadClientProperties wraps ErrBadClientProperties with a reason.
func BadClientProperties(reason string) error {
	return fmt.Errorf("%w: %s", ErrBadClientProperties, reason)
}
