//go:build !linux

/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mmap

import (
	"io"
	"os"
)

// without a mapping we just read the whole thing in
func mapFile(f *os.File, sz int64) (*FileMap, error) {
	b := make([]byte, sz)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, err
	}
	return &FileMap{Buff: b, open: true}, nil
}

func unmap(b []byte) error {
	return nil
}

func advise(b []byte, pattern int) error {
	return nil
}
