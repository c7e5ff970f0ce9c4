/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package property implements the typed property model shared by the device
// and carrier engines.
package property

import "strings"

// DataType is the declared type of a property. The numeric values match the
// type codes used in binary carrier files.
type DataType uint8

const (
	//we don't use iota, the values are part of the carrier file format
	Boolean DataType = 0
	Byte    DataType = 1
	Short   DataType = 2
	Integer DataType = 3
	Long    DataType = 4
	Float   DataType = 5
	Double  DataType = 6
	String  DataType = 7
	Unknown DataType = 8
)

func (dt DataType) String() string {
	switch dt {
	case Boolean:
		return `boolean`
	case Byte:
		return `byte`
	case Short:
		return `short`
	case Integer:
		return `integer`
	case Long:
		return `long`
	case Float:
		return `float`
	case Double:
		return `double`
	case String:
		return `string`
	}
	return `unknown`
}

func (dt DataType) Valid() bool {
	return dt <= String
}

// Integral is true for the fixed width integer types.
func (dt DataType) Integral() bool {
	switch dt {
	case Byte, Short, Integer, Long:
		return true
	}
	return false
}

// Numeric is true for every integer and floating point type.
func (dt DataType) Numeric() bool {
	return dt.Integral() || dt == Float || dt == Double
}

// TypeFromTag maps the single character type tags used by device data files
// and client property cookies.
func TypeFromTag(c byte) (DataType, bool) {
	switch c {
	case 's':
		return String, true
	case 'b':
		return Boolean, true
	case 'i':
		return Integer, true
	case 'd':
		return Double, true
	}
	return Unknown, false
}

// Tag is the inverse of TypeFromTag, types without a tag map to 's'.
func (dt DataType) Tag() byte {
	switch dt {
	case Boolean:
		return 'b'
	case Byte, Short, Integer, Long:
		return 'i'
	case Float, Double:
		return 'd'
	}
	return 's'
}

// Name is a property name with its declared type. Two names are equal only
// when both fields match.
type Name struct {
	Name string
	Type DataType
}

// ParseTaggedName splits a tagged name such as "sbrowserName".
func ParseTaggedName(v string) (n Name, ok bool) {
	if len(v) < 2 {
		return
	}
	if n.Type, ok = TypeFromTag(v[0]); ok {
		n.Name = v[1:]
	}
	return
}

func (n Name) String() string {
	return n.Name + `(` + n.Type.String() + `)`
}

// Names implements sort.Interface by name.
type Names []Name

func (n Names) Len() int           { return len(n) }
func (n Names) Swap(i, j int)      { n[i], n[j] = n[j], n[i] }
func (n Names) Less(i, j int) bool { return strings.Compare(n[i].Name, n[j].Name) < 0 }
