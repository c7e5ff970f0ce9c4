/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mmap

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, sz int64) (*FileMap, error) {
	b, err := unix.Mmap(int(f.Fd()), 0, int(sz), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	//make sure we don't allow this region to be dumped on a segfault
	unix.Madvise(b, unix.MADV_DONTDUMP)
	return &FileMap{
		Buff:   b,
		open:   true,
		mapped: true,
	}, nil
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

func advise(b []byte, pattern int) error {
	switch pattern {
	case AccessNormal:
		return unix.Madvise(b, unix.MADV_NORMAL)
	case AccessRandom:
		return unix.Madvise(b, unix.MADV_RANDOM)
	case AccessSequential:
		if err := unix.Madvise(b, unix.MADV_WILLNEED); err != nil {
			return err
		}
		return unix.Madvise(b, unix.MADV_SEQUENTIAL)
	}
	return errors.New("Unknown pattern")
}
