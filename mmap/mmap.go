/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package mmap provides read-only file mappings for data files that are
// decoded once and released.
package mmap

import (
	"errors"
	"os"
)

const (
	maxMapSize int64 = 0x100000000 //4GB, no data file gets anywhere close

	AccessNormal     = 0
	AccessRandom     = 1
	AccessSequential = 2
)

var (
	ErrInvalidFileHandle = errors.New("Invalid file handle")
	ErrMapClosed         = errors.New("File mapping closed")
	ErrFileTooLarge      = errors.New("Mapped file is too large")
)

// FileMap is a read-only view of a file. Buff must not be referenced once
// Close has been called.
type FileMap struct {
	Buff   []byte
	open   bool
	mapped bool
}

// Open maps the file at p read-only.
func Open(p string) (fm *FileMap, err error) {
	var f *os.File
	if f, err = os.Open(p); err != nil {
		return
	}
	fm, err = MapFile(f)
	if lerr := f.Close(); lerr != nil && err == nil {
		fm.Close()
		fm, err = nil, lerr
	}
	return
}

// MapFile maps f read-only, the caller may close f once this returns.
func MapFile(f *os.File) (*FileMap, error) {
	if f == nil {
		return nil, ErrInvalidFileHandle
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	} else if fi.Size() > maxMapSize {
		return nil, ErrFileTooLarge
	} else if fi.Size() == 0 {
		//zero length maps are not allowed, hand back an empty buffer
		return &FileMap{Buff: []byte{}, open: true}, nil
	}
	return mapFile(f, fi.Size())
}

func (m *FileMap) Size() int64 {
	return int64(len(m.Buff))
}

func (m *FileMap) Close() (err error) {
	if !m.open {
		return ErrMapClosed
	}
	if m.mapped {
		if err = unmap(m.Buff); err != nil {
			return
		}
	}
	m.Buff = nil
	m.open = false
	return
}

// Advise hints the expected access pattern, it is a no-op where unsupported.
func (m *FileMap) Advise(pattern int) error {
	if !m.open {
		return ErrMapClosed
	} else if !m.mapped || len(m.Buff) == 0 {
		return nil
	}
	return advise(m.Buff, pattern)
}
