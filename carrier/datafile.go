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
	magic          = `DA`
	fileType uint8 = 1

	creationDateLen = 24
	bucketFrameLen  = 10 // u16 id, u32 crc, u32 length

	// 32 bits of prefix plus the root
	maxTreeDepth = 33
)

// dataFile is a fully decoded and validated carrier data file, it is never modified after parsing.
type dataFile struct {
	copyright string
	created   string
	major     uint8
	minor     uint8
	licenseID uint32

	names  []property.Name
	values []property.Value
	sets   []propertySet
	props  []int32
	lefts  []int32
	rights []int32

	nameIndex map[string]int32
}

func parseDataFile(b []byte) (df *dataFile, err error) {
	r := datafile.NewReader(b)
	var hdrLen int
	df = &dataFile{}
	if hdrLen, err = df.parseHeader(r); err != nil {
		df = nil
		return
	}
	var crc uint32
	if crc, err = r.Uint32(); err != nil {
		df = nil
		err = deviceatlas.NewInvalidDataFile("header", err)
		return
	}
	if hdrLen < r.Offset() || hdrLen > r.Len() {
		df = nil
		err = deviceatlas.NewInvalidDataFile(fmt.Sprintf("header length %d out of range", hdrLen), nil)
		return
	}
	r.Seek(hdrLen)

	var bc bucketCodec
	for !bc.complete() && r.Remaining() > 0 {
		var id uint16
		var bcrc, l uint32
		var data []byte
		if id, err = r.Uint16(); err == nil {
			if bcrc, err = r.Uint32(); err == nil {
				if l, err = r.Uint32(); err == nil {
					data, err = r.Bytes(int(l))
				}
			}
		}
		if err != nil {
			df = nil
			err = deviceatlas.NewInvalidDataFile("bucket framing", err)
			return
		}
		if err = bc.processBucket(id, bcrc, data); err != nil {
			df = nil
			err = deviceatlas.NewInvalidDataFile(fmt.Sprintf("bucket %d", id), err)
			return
		}
	}
	if !bc.complete() {
		df = nil
		err = deviceatlas.NewInvalidDataFile("missing buckets", nil)
		return
	}
	//the whole file checksum is only checked once every bucket decoded cleanly
	if actual := datafile.Checksum(b[hdrLen:]); actual != crc {
		df = nil
		err = deviceatlas.NewInvalidDataFile("file checksum",
			&deviceatlas.CrcMismatchError{Bucket: -1, Expected: crc, Actual: actual})
		return
	}
	if err = bc.validate(); err != nil {
		df = nil
		err = deviceatlas.NewInvalidDataFile("dangling reference", err)
		return
	}
	df.names, df.values, df.sets = bc.names, bc.values, bc.sets
	df.props, df.lefts, df.rights = bc.props, bc.lefts, bc.rights
	df.nameIndex = make(map[string]int32, len(df.names))
	for i, n := range df.names {
		df.nameIndex[n.Name] = int32(i)
	}
	return
}

// parseHeader consumes everything up to, but not including, the file checksum
func (df *dataFile) parseHeader(r *datafile.Reader) (hdrLen int, err error) {
	var m string
	var ft uint8
	var hl, cl uint16
	if m, err = r.ASCII(len(magic)); err != nil || m != magic {
		err = deviceatlas.NewInvalidDataFile("bad magic", err)
		return
	} else if ft, err = r.Uint8(); err != nil || ft != fileType {
		err = deviceatlas.NewInvalidDataFile("bad file type", err)
		return
	}
	if hl, err = r.Uint16(); err == nil {
		if cl, err = r.Uint16(); err == nil {
			if df.copyright, err = r.ASCII(int(cl)); err == nil {
				if df.created, err = r.ASCII(creationDateLen); err == nil {
					if df.major, err = r.Uint8(); err == nil {
						if df.minor, err = r.Uint8(); err == nil {
							df.licenseID, err = r.Uint32()
						}
					}
				}
			}
		}
	}
	if err != nil {
		err = deviceatlas.NewInvalidDataFile("header", err)
		return
	}
	hdrLen = int(hl)
	return
}

// lookup walks the trie most significant bit first and returns the deepest property set seen.
func (df *dataFile) lookup(ip uint32) (ps propertySet, ok bool) {
	if len(df.props) == 0 {
		return
	}
	var node int32
	for depth := 0; node != nullIndex && depth < maxTreeDepth; depth++ {
		if p := df.props[node]; p != nullIndex {
			ps, ok = df.sets[p], true
		}
		if depth == 32 {
			break
		}
		if ip&(1<<(31-depth)) != 0 {
			node = df.rights[node]
		} else {
			node = df.lefts[node]
		}
	}
	return
}

// properties resolves a property set into a bag
func (df *dataFile) properties(ps propertySet) property.Bag {
	bag := make(property.Bag, len(ps))
	for nid, vid := range ps {
		bag.Set(df.names[nid].Name, df.values[vid])
	}
	return bag
}

func (df *dataFile) property(ps propertySet, name string) (v property.Value, ok bool, err error) {
	nid, exists := df.nameIndex[name]
	if !exists {
		err = deviceatlas.UnknownProperty(name)
		return
	}
	var vid int32
	if vid, ok = ps[nid]; ok {
		v = df.values[vid]
	}
	return
}

func (df *dataFile) version() string {
	return fmt.Sprintf("%d.%d", df.major, df.minor)
}
