/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package carrier

import (
	"fmt"

	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/datafile"
	"github.com/gravwell/deviceatlas/property"
)

const (
	bucketPropertyNames  uint16 = 0
	bucketPropertyValues uint16 = 1
	bucketPropertySets   uint16 = 2
	bucketIPv4Tree       uint16 = 3

	allBuckets uint8 = 0xf

	containerScalar uint8 = 0
	containerSet    uint8 = 1

	treeNodeSize = 12
	nullIndex    = -1
)

// string encodings, these only exist inside the file
const (
	wireStringFixed1 uint8 = 9
	wireStringFixed2 uint8 = 10
	wireStringFixed3 uint8 = 11
	wireStringFixed4 uint8 = 12
	wireStringFixed5 uint8 = 13
	wireStringLen8   uint8 = 14
	wireStringLen16  uint8 = 15
	wireStringLen32  uint8 = 16
)

// propertySet maps property name ids to property value ids
type propertySet map[int32]int32

// bucketCodec consumes buckets until all four tables have been seen.
type bucketCodec struct {
	seen   uint8
	names  []property.Name
	values []property.Value
	sets   []propertySet
	props  []int32
	lefts  []int32
	rights []int32
}

func (bc *bucketCodec) complete() bool {
	return bc.seen&allBuckets == allBuckets
}

func (bc *bucketCodec) processBucket(id uint16, crc uint32, data []byte) (err error) {
	if actual := datafile.Checksum(data); actual != crc {
		return &deviceatlas.CrcMismatchError{Bucket: int(id), Expected: crc, Actual: actual}
	}
	r := datafile.NewReader(data)
	switch id {
	case bucketPropertyNames:
		err = bc.parseNames(r)
	case bucketPropertyValues:
		err = bc.parseValues(r)
	case bucketPropertySets:
		err = bc.parseSets(r)
	case bucketIPv4Tree:
		err = bc.parseTree(data)
	default:
		return //unknown buckets are skipped
	}
	if err != nil {
		err = deviceatlas.NewInvalidDataFile(fmt.Sprintf("bucket %d", id), err)
		return
	}
	bc.seen |= 1 << id
	return
}

// countOf reads the u16 entry count, an empty bucket is an empty table
func countOf(r *datafile.Reader) (int, error) {
	if r.Len() == 0 {
		return 0, nil
	}
	c, err := r.Uint16()
	return int(c), err
}

func (bc *bucketCodec) parseNames(r *datafile.Reader) (err error) {
	var cnt int
	if cnt, err = countOf(r); err != nil {
		return
	}
	bc.names = make([]property.Name, 0, cnt)
	for i := 0; i < cnt; i++ {
		var tp, l uint8
		var n property.Name
		if tp, err = r.Uint8(); err != nil {
			return
		} else if l, err = r.Uint8(); err != nil {
			return
		} else if n.Name, err = r.ASCII(int(l)); err != nil {
			return
		}
		n.Type = exposedType(tp)
		bc.names = append(bc.names, n)
	}
	return
}

func (bc *bucketCodec) parseValues(r *datafile.Reader) (err error) {
	var cnt int
	if cnt, err = countOf(r); err != nil {
		return
	}
	bc.values = make([]property.Value, 0, cnt)
	for i := 0; i < cnt; i++ {
		var container, tp uint8
		var v property.Value
		if container, err = r.Uint8(); err != nil {
			return
		} else if tp, err = r.Uint8(); err != nil {
			return
		}
		switch container {
		case containerScalar:
			v, err = decodeValue(r, tp)
		case containerSet:
			v, err = decodeSet(r, tp)
		default:
			err = fmt.Errorf("unknown container tag %d on value %d", container, i)
		}
		if err != nil {
			return
		}
		bc.values = append(bc.values, v)
	}
	return
}

func (bc *bucketCodec) parseSets(r *datafile.Reader) (err error) {
	var cnt int
	if cnt, err = countOf(r); err != nil {
		return
	}
	bc.sets = make([]propertySet, 0, cnt)
	for i := 0; i < cnt; i++ {
		var pairs uint16
		if pairs, err = r.Uint16(); err != nil {
			return
		}
		ps := make(propertySet, pairs)
		for j := 0; j < int(pairs); j++ {
			var nid, vid int32
			if nid, err = r.Int32(); err != nil {
				return
			} else if vid, err = r.Int32(); err != nil {
				return
			}
			ps[nid] = vid
		}
		bc.sets = append(bc.sets, ps)
	}
	return
}

func (bc *bucketCodec) parseTree(data []byte) (err error) {
	if len(data)%treeNodeSize != 0 {
		return fmt.Errorf("tree bucket length %d is not a multiple of %d", len(data), treeNodeSize)
	}
	sz := len(data) / treeNodeSize
	bc.props = make([]int32, sz)
	bc.lefts = make([]int32, sz)
	bc.rights = make([]int32, sz)
	r := datafile.NewReader(data)
	for i := 0; i < sz; i++ {
		if bc.props[i], err = r.Int32(); err != nil {
			return
		} else if bc.lefts[i], err = r.Int32(); err != nil {
			return
		} else if bc.rights[i], err = r.Int32(); err != nil {
			return
		}
	}
	return
}

// validate checks every cross-table reference so lookups never index out of range
func (bc *bucketCodec) validate() error {
	for i, ps := range bc.sets {
		for nid, vid := range ps {
			if nid < 0 || int(nid) >= len(bc.names) {
				return fmt.Errorf("property set %d references unknown name %d", i, nid)
			} else if vid < 0 || int(vid) >= len(bc.values) {
				return fmt.Errorf("property set %d references unknown value %d", i, vid)
			}
		}
	}
	for i := range bc.props {
		if p := bc.props[i]; p != nullIndex && (p < 0 || int(p) >= len(bc.sets)) {
			return fmt.Errorf("tree node %d references unknown property set %d", i, p)
		}
		for _, c := range [2]int32{bc.lefts[i], bc.rights[i]} {
			if c != nullIndex && (c <= 0 || int(c) >= len(bc.props)) {
				return fmt.Errorf("tree node %d has invalid child %d", i, c)
			}
		}
	}
	return nil
}

// exposedType collapses the string encodings down to property.String
func exposedType(tp uint8) property.DataType {
	if isStringType(tp) {
		return property.String
	} else if dt := property.DataType(tp); dt.Valid() {
		return dt
	}
	return property.Unknown
}

func isStringType(tp uint8) bool {
	return tp == uint8(property.String) || (tp >= wireStringFixed1 && tp <= wireStringLen32)
}

func decodeValue(r *datafile.Reader, tp uint8) (v property.Value, err error) {
	if isStringType(tp) {
		var s string
		if s, err = decodeString(r, tp); err == nil {
			v = property.StringValue(s)
		}
		return
	}
	switch property.DataType(tp) {
	case property.Boolean:
		var b bool
		if b, err = r.Bool(); err == nil {
			v = property.BoolValue(b)
		}
	case property.Byte:
		var b uint8
		if b, err = r.Uint8(); err == nil {
			v = property.ByteValue(int8(b))
		}
	case property.Short:
		var s int16
		if s, err = r.Int16(); err == nil {
			v = property.ShortValue(s)
		}
	case property.Integer:
		var i int32
		if i, err = r.Int32(); err == nil {
			v = property.IntegerValue(i)
		}
	case property.Long:
		var l int64
		if l, err = r.Int64(); err == nil {
			v = property.LongValue(l)
		}
	case property.Float:
		var f float32
		if f, err = r.Float32(); err == nil {
			v = property.FloatValue(f)
		}
	case property.Double:
		var d float64
		if d, err = r.Float64(); err == nil {
			v = property.DoubleValue(d)
		}
	default:
		err = fmt.Errorf("unsupported value type %d", tp)
	}
	return
}

// decodeSet reads an ordered set, each item carries its own string encoding
func decodeSet(r *datafile.Reader, tp uint8) (v property.Value, err error) {
	if !isStringType(tp) {
		err = fmt.Errorf("unsupported ordered set type %d", tp)
		return
	}
	var cnt uint16
	if cnt, err = r.Uint16(); err != nil {
		return
	}
	items := make([]string, 0, cnt)
	for i := 0; i < int(cnt); i++ {
		var sub uint8
		var s string
		if sub, err = r.Uint8(); err != nil {
			return
		} else if !isStringType(sub) {
			err = fmt.Errorf("set item %d has non-string type %d", i, sub)
			return
		} else if s, err = decodeString(r, sub); err != nil {
			return
		}
		items = append(items, s)
	}
	v = property.StringSetValue(items)
	return
}

func decodeString(r *datafile.Reader, tp uint8) (s string, err error) {
	var l int
	switch tp {
	case wireStringFixed1, wireStringFixed2, wireStringFixed3, wireStringFixed4, wireStringFixed5:
		l = int(tp-wireStringFixed1) + 1
	case wireStringLen8:
		var x uint8
		x, err = r.Uint8()
		l = int(x)
	case uint8(property.String), wireStringLen16:
		var x uint16
		x, err = r.Uint16()
		l = int(x)
	case wireStringLen32:
		var x uint32
		if x, err = r.Uint32(); err == nil && int64(x) > int64(r.Remaining()) {
			err = deviceatlas.ErrTruncatedInput
		}
		l = int(x)
	default:
		err = fmt.Errorf("unknown string encoding %d", tp)
	}
	if err != nil {
		return
	}
	return r.UTF8(l)
}
