/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package datafile implements the little-endian cursor used to decode
// binary data files.
package datafile

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"unicode/utf8"

	"github.com/gravwell/deviceatlas"
)

// Reader is a cursor over an immutable byte buffer.
// A failed read never moves the cursor.
type Reader struct {
	buff []byte
	off  int
}

func NewReader(b []byte) *Reader {
	return &Reader{buff: b}
}

// Len is the total size of the underlying buffer.
func (r *Reader) Len() int {
	return len(r.buff)
}

func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) Remaining() int {
	return len(r.buff) - r.off
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buff) {
		return deviceatlas.ErrTruncatedInput
	}
	r.off = off
	return nil
}

func (r *Reader) Skip(n int) error {
	_, err := r.take(n)
	return err
}

func (r *Reader) take(n int) (b []byte, err error) {
	if n < 0 || n > len(r.buff)-r.off {
		err = deviceatlas.ErrTruncatedInput
		return
	}
	b = r.buff[r.off : r.off+n]
	r.off += n
	return
}

func (r *Reader) Uint8() (v uint8, err error) {
	var b []byte
	if b, err = r.take(1); err == nil {
		v = b[0]
	}
	return
}

func (r *Reader) Bool() (v bool, err error) {
	var b uint8
	if b, err = r.Uint8(); err == nil {
		v = b != 0
	}
	return
}

func (r *Reader) Uint16() (v uint16, err error) {
	var b []byte
	if b, err = r.take(2); err == nil {
		v = binary.LittleEndian.Uint16(b)
	}
	return
}

func (r *Reader) Int16() (v int16, err error) {
	var u uint16
	u, err = r.Uint16()
	v = int16(u)
	return
}

func (r *Reader) Uint32() (v uint32, err error) {
	var b []byte
	if b, err = r.take(4); err == nil {
		v = binary.LittleEndian.Uint32(b)
	}
	return
}

func (r *Reader) Int32() (v int32, err error) {
	var u uint32
	u, err = r.Uint32()
	v = int32(u)
	return
}

func (r *Reader) Int64() (v int64, err error) {
	var b []byte
	if b, err = r.take(8); err == nil {
		v = int64(binary.LittleEndian.Uint64(b))
	}
	return
}

func (r *Reader) Float32() (v float32, err error) {
	var u uint32
	if u, err = r.Uint32(); err == nil {
		v = math.Float32frombits(u)
	}
	return
}

func (r *Reader) Float64() (v float64, err error) {
	var b []byte
	if b, err = r.take(8); err == nil {
		v = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return
}

// Bytes hands back a sub-slice of the underlying buffer, it is NOT a copy.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// ASCII reads n bytes as a string, bytes above 0x7f are rejected.
func (r *Reader) ASCII(n int) (s string, err error) {
	var b []byte
	if b, err = r.take(n); err != nil {
		return
	}
	for _, c := range b {
		if c > 0x7f {
			r.off -= n
			err = deviceatlas.ErrBadEncoding
			return
		}
	}
	s = string(b)
	return
}

// UTF8 reads n bytes as a validated UTF-8 string.
func (r *Reader) UTF8(n int) (s string, err error) {
	var b []byte
	if b, err = r.take(n); err != nil {
		return
	} else if !utf8.Valid(b) {
		r.off -= n
		err = deviceatlas.ErrBadEncoding
		return
	}
	s = string(b)
	return
}

// Checksum is the IEEE (zlib) CRC-32 of b.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
