/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package carrier

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
)

const testCreated = `2025-06-01T12:00:00+0000` //exactly 24 bytes

type testName struct {
	name string
	tp   uint8
}

type testPrefix struct {
	ip   uint32
	bits int
	set  int32
}

// fileBuilder assembles carrier data files for tests
type fileBuilder struct {
	copyright string
	major     uint8
	minor     uint8
	license   uint32

	names    []testName
	values   [][]byte
	sets     [][][2]int32
	prefixes []testPrefix
	rootSet  int32

	skipBucket  int             //bucket id to leave out, -1 for none
	emptyBucket map[uint16]bool //buckets written with zero length
	badCrc      map[uint16]bool //buckets whose checksum is corrupted
	badFileCrc  bool
	extraHeader int //padding appended to the header
}

func newFileBuilder() *fileBuilder {
	return &fileBuilder{
		copyright:   `(c) test data`,
		major:       1,
		minor:       2,
		license:     1234,
		rootSet:     nullIndex,
		skipBucket:  -1,
		emptyBucket: map[uint16]bool{},
		badCrc:      map[uint16]bool{},
	}
}

func (fb *fileBuilder) addName(name string, tp uint8) int32 {
	fb.names = append(fb.names, testName{name: name, tp: tp})
	return int32(len(fb.names) - 1)
}

func (fb *fileBuilder) addValue(raw []byte) int32 {
	fb.values = append(fb.values, raw)
	return int32(len(fb.values) - 1)
}

func (fb *fileBuilder) addSet(pairs ...[2]int32) int32 {
	fb.sets = append(fb.sets, pairs)
	return int32(len(fb.sets) - 1)
}

func (fb *fileBuilder) addPrefix(ip uint32, bits int, set int32) {
	fb.prefixes = append(fb.prefixes, testPrefix{ip: ip, bits: bits, set: set})
}

func le(vals ...interface{}) []byte {
	bb := bytes.NewBuffer(nil)
	for _, v := range vals {
		if s, ok := v.(string); ok {
			bb.WriteString(s)
			continue
		}
		binary.Write(bb, binary.LittleEndian, v)
	}
	return bb.Bytes()
}

func strValue(s string) []byte {
	return le(containerScalar, uint8(7), uint16(len(s)), s)
}

// encodedStrValue writes s using one of the string sub-types
func encodedStrValue(tp uint8, s string) []byte {
	switch tp {
	case wireStringLen8:
		return le(containerScalar, tp, uint8(len(s)), s)
	case wireStringLen16:
		return le(containerScalar, tp, uint16(len(s)), s)
	case wireStringLen32:
		return le(containerScalar, tp, uint32(len(s)), s)
	}
	return le(containerScalar, tp, s) //fixed width
}

func intValue(v int32) []byte {
	return le(containerScalar, uint8(3), v)
}

func boolValue(v bool) []byte {
	return le(containerScalar, uint8(0), v)
}

func doubleValue(v float64) []byte {
	return le(containerScalar, uint8(6), math.Float64bits(v))
}

func setValue(items ...string) []byte {
	b := le(containerSet, uint8(7), uint16(len(items)))
	for _, s := range items {
		b = append(b, le(wireStringLen8, uint8(len(s)), s)...)
	}
	return b
}

func (fb *fileBuilder) namesBucket() []byte {
	b := le(uint16(len(fb.names)))
	for _, n := range fb.names {
		b = append(b, le(n.tp, uint8(len(n.name)), n.name)...)
	}
	return b
}

func (fb *fileBuilder) valuesBucket() []byte {
	b := le(uint16(len(fb.values)))
	for _, v := range fb.values {
		b = append(b, v...)
	}
	return b
}

func (fb *fileBuilder) setsBucket() []byte {
	b := le(uint16(len(fb.sets)))
	for _, s := range fb.sets {
		b = append(b, le(uint16(len(s)))...)
		for _, p := range s {
			b = append(b, le(p[0], p[1])...)
		}
	}
	return b
}

func (fb *fileBuilder) treeBucket() []byte {
	props := []int32{fb.rootSet}
	lefts := []int32{nullIndex}
	rights := []int32{nullIndex}
	for _, p := range fb.prefixes {
		var node int32
		for depth := 0; depth < p.bits; depth++ {
			right := p.ip&(1<<(31-depth)) != 0
			child := lefts[node]
			if right {
				child = rights[node]
			}
			if child == nullIndex {
				props = append(props, nullIndex)
				lefts = append(lefts, nullIndex)
				rights = append(rights, nullIndex)
				child = int32(len(props) - 1)
				if right {
					rights[node] = child
				} else {
					lefts[node] = child
				}
			}
			node = child
		}
		props[node] = p.set
	}
	var b []byte
	for i := range props {
		b = append(b, le(props[i], lefts[i], rights[i])...)
	}
	return b
}

func (fb *fileBuilder) build() []byte {
	body := bytes.NewBuffer(nil)
	buckets := [][]byte{fb.namesBucket(), fb.valuesBucket(), fb.setsBucket(), fb.treeBucket()}
	for i, data := range buckets {
		id := uint16(i)
		if int(id) == fb.skipBucket {
			continue
		} else if fb.emptyBucket[id] {
			data = nil
		}
		crc := crc32.ChecksumIEEE(data)
		if fb.badCrc[id] {
			crc ^= 0xdeadbeef
		}
		body.Write(le(id, crc, uint32(len(data))))
		body.Write(data)
	}
	hdrLen := 2 + 1 + 2 + 2 + len(fb.copyright) + creationDateLen + 1 + 1 + 4 + 4 + fb.extraHeader
	crc := crc32.ChecksumIEEE(body.Bytes())
	if fb.badFileCrc {
		crc++
	}
	out := le(magic, fileType, uint16(hdrLen), uint16(len(fb.copyright)), fb.copyright,
		testCreated, fb.major, fb.minor, fb.license, crc)
	out = append(out, make([]byte, fb.extraHeader)...)
	return append(out, body.Bytes()...)
}

func ipv4(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// standardFile is a small file with an overlapping /8 and /24
func standardFile() *fileBuilder {
	fb := newFileBuilder()
	op := fb.addName(`networkOperator`, 7)
	mcc := fb.addName(`mcc`, 3)
	mobile := fb.addName(`isMobile`, 0)
	wide := fb.addValue(strValue(`Wide Telecom`))
	narrow := fb.addValue(strValue(`Narrow Mobile`))
	code := fb.addValue(intValue(310))
	yes := fb.addValue(boolValue(true))
	s8 := fb.addSet([2]int32{op, wide})
	s24 := fb.addSet([2]int32{op, narrow}, [2]int32{mcc, code}, [2]int32{mobile, yes})
	fb.addPrefix(ipv4(8, 0, 0, 0), 8, s8)
	fb.addPrefix(ipv4(8, 8, 8, 0), 24, s24)
	return fb
}
