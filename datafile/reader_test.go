/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package datafile

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gravwell/deviceatlas"
)

func TestPrimitives(t *testing.T) {
	b := []byte{0x01, 0x00}
	b = binary.LittleEndian.AppendUint16(b, 0xfffe)
	b = binary.LittleEndian.AppendUint32(b, 0xdeadbeef)
	b = binary.LittleEndian.AppendUint64(b, uint64(1)<<40)
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(1.5))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(-2.25))

	r := NewReader(b)
	if v, err := r.Bool(); err != nil || !v {
		t.Fatal("bad bool", v, err)
	}
	if v, err := r.Bool(); err != nil || v {
		t.Fatal("bad bool", v, err)
	}
	if v, err := r.Int16(); err != nil || v != -2 {
		t.Fatal("bad int16", v, err)
	}
	if v, err := r.Uint32(); err != nil || v != 0xdeadbeef {
		t.Fatal("bad uint32", v, err)
	}
	if v, err := r.Int64(); err != nil || v != 1<<40 {
		t.Fatal("bad int64", v, err)
	}
	if v, err := r.Float32(); err != nil || v != 1.5 {
		t.Fatal("bad float32", v, err)
	}
	if v, err := r.Float64(); err != nil || v != -2.25 {
		t.Fatal("bad float64", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatal("bytes left over", r.Remaining())
	}
}

func TestTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.Uint32(); !errors.Is(err, deviceatlas.ErrTruncatedInput) {
		t.Fatal("missed truncation", err)
	}
	//failed reads must not move the cursor
	if r.Offset() != 0 {
		t.Fatal("cursor moved", r.Offset())
	}
	if err := r.Skip(4); !errors.Is(err, deviceatlas.ErrTruncatedInput) {
		t.Fatal("missed skip truncation", err)
	}
	if _, err := r.Bytes(-1); err == nil {
		t.Fatal("accepted negative length")
	}
	if b, err := r.Bytes(3); err != nil || len(b) != 3 {
		t.Fatal("bad bytes", b, err)
	}
	if _, err := r.Uint8(); !errors.Is(err, deviceatlas.ErrTruncatedInput) {
		t.Fatal("read past EOF")
	}
}

func TestStrings(t *testing.T) {
	r := NewReader([]byte("DAcafé\xff\xfe"))
	if s, err := r.ASCII(2); err != nil || s != `DA` {
		t.Fatal("bad ascii", s, err)
	}
	if _, err := r.ASCII(5); !errors.Is(err, deviceatlas.ErrBadEncoding) {
		t.Fatal("accepted non-ascii", err)
	}
	if s, err := r.UTF8(5); err != nil || s != `café` {
		t.Fatal("bad utf8", s, err)
	}
	if _, err := r.UTF8(2); !errors.Is(err, deviceatlas.ErrBadEncoding) {
		t.Fatal("accepted invalid utf8", err)
	}
	if r.Remaining() != 2 {
		t.Fatal("cursor moved on bad encoding")
	}
}

func TestChecksum(t *testing.T) {
	//the zlib check value
	if v := Checksum([]byte("123456789")); v != 0xcbf43926 {
		t.Fatalf("bad checksum %x", v)
	}
	if v := Checksum(nil); v != 0 {
		t.Fatalf("bad empty checksum %x", v)
	}
}
