/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package property

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownType  = errors.New("unknown native type")
	ErrNotCoercible = errors.New("value cannot be converted to the declared type")
	ErrOutOfRange   = errors.New("value is out of range for the declared type")
)

// Value is a tagged property value. Integers of every width are held in an
// int64, floats in a float64, the tag decides how they come back out.
type Value struct {
	ok  bool
	typ DataType
	set bool
	i   int64
	f   float64
	s   string
	ss  []string
}

func BoolValue(v bool) Value {
	var i int64
	if v {
		i = 1
	}
	return Value{ok: true, typ: Boolean, i: i}
}

func ByteValue(v int8) Value {
	return Value{ok: true, typ: Byte, i: int64(v)}
}

func ShortValue(v int16) Value {
	return Value{ok: true, typ: Short, i: int64(v)}
}

func IntegerValue(v int32) Value {
	return Value{ok: true, typ: Integer, i: int64(v)}
}

func LongValue(v int64) Value {
	return Value{ok: true, typ: Long, i: v}
}

func FloatValue(v float32) Value {
	return Value{ok: true, typ: Float, f: float64(v)}
}

func DoubleValue(v float64) Value {
	return Value{ok: true, typ: Double, f: v}
}

func StringValue(v string) Value {
	return Value{ok: true, typ: String, s: v}
}

// StringSetValue creates an ordered set of strings, the slice is copied.
func StringSetValue(v []string) Value {
	return Value{ok: true, typ: String, set: true, ss: append([]string(nil), v...)}
}

// InferValue builds a Value from a native type, JSON decoded numbers
// (float64 and json.Number) become Integer, Long or Double depending on
// their magnitude and whether they are integral.
func InferValue(val interface{}) (Value, error) {
	switch v := val.(type) {
	case Value:
		return v, nil
	case bool:
		return BoolValue(v), nil
	case int8:
		return ByteValue(v), nil
	case int16:
		return ShortValue(v), nil
	case int32:
		return IntegerValue(v), nil
	case int:
		return inferInt(int64(v)), nil
	case int64:
		return LongValue(v), nil
	case float32:
		return FloatValue(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < (1<<53) {
			return inferInt(int64(v)), nil
		}
		return DoubleValue(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return inferInt(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(f), nil
	case string:
		return StringValue(v), nil
	case []string:
		return StringSetValue(v), nil
	case []interface{}:
		ss := make([]string, 0, len(v))
		for _, x := range v {
			s, ok := x.(string)
			if !ok {
				return Value{}, ErrUnknownType
			}
			ss = append(ss, s)
		}
		return StringSetValue(ss), nil
	}
	return Value{}, ErrUnknownType
}

func inferInt(v int64) Value {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return IntegerValue(int32(v))
	}
	return LongValue(v)
}

// Coerce converts a native value or its string form into a Value of the
// declared type.
func Coerce(dt DataType, val interface{}) (v Value, err error) {
	if x, ok := val.(Value); ok {
		if x.typ == dt {
			return x, nil
		}
		val = x.Interface()
	}
	switch dt {
	case Boolean:
		var b bool
		if b, err = toBool(val); err == nil {
			v = BoolValue(b)
		}
	case Byte, Short, Integer, Long:
		var i int64
		if i, err = toInt(val); err != nil {
			return
		} else if err = checkRange(dt, i); err == nil {
			v = Value{ok: true, typ: dt, i: i}
		}
	case Float, Double:
		var f float64
		if f, err = toFloat(val); err == nil {
			if dt == Float {
				v = FloatValue(float32(f))
			} else {
				v = DoubleValue(f)
			}
		}
	case String:
		switch x := val.(type) {
		case []string:
			v = StringSetValue(x)
		case []interface{}:
			v, err = InferValue(x)
		default:
			v = StringValue(nativeString(val))
		}
	default:
		err = ErrUnknownType
	}
	return
}

func toBool(val interface{}) (bool, error) {
	switch x := val.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case `true`, `1`:
			return true, nil
		case `false`, `0`:
			return false, nil
		}
	default:
		if f, err := toFloat(val); err == nil {
			if f == 1 {
				return true, nil
			} else if f == 0 {
				return false, nil
			}
		}
	}
	return false, ErrNotCoercible
}

func toInt(val interface{}) (int64, error) {
	switch x := val.(type) {
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case json.Number:
		return x.Int64()
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, ErrNotCoercible
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrNotCoercible
	}
	return int64(f), nil
}

func toFloat(val interface{}) (float64, error) {
	switch x := val.(type) {
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f, nil
		}
	}
	return 0, ErrNotCoercible
}

func checkRange(dt DataType, i int64) error {
	switch dt {
	case Byte:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return ErrOutOfRange
		}
	case Short:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return ErrOutOfRange
		}
	case Integer:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return ErrOutOfRange
		}
	}
	return nil
}

func nativeString(val interface{}) string {
	switch x := val.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case nil:
		return ``
	}
	return fmt.Sprintf("%v", val)
}

func (v Value) Type() DataType {
	return v.typ
}

// IsSet is true when the value is an ordered set of strings.
func (v Value) IsSet() bool {
	return v.set
}

func (v Value) Bool() bool {
	switch {
	case v.typ.Integral() || v.typ == Boolean:
		return v.i != 0
	case v.typ == Float || v.typ == Double:
		return v.f != 0
	}
	return false
}

func (v Value) Int() int64 {
	if v.typ == Float || v.typ == Double {
		return int64(v.f)
	}
	return v.i
}

func (v Value) Float() float64 {
	if v.typ == Float || v.typ == Double {
		return v.f
	}
	return float64(v.i)
}

// Strings returns the members of a string set, a scalar string comes back
// as a single element.
func (v Value) Strings() []string {
	if v.set {
		return v.ss
	} else if v.typ == String {
		return []string{v.s}
	}
	return nil
}

// Interface hands back the value as its native Go type.
func (v Value) Interface() interface{} {
	if !v.ok {
		return nil
	}
	switch v.typ {
	case Boolean:
		return v.i != 0
	case Byte:
		return int8(v.i)
	case Short:
		return int16(v.i)
	case Integer:
		return int32(v.i)
	case Long:
		return v.i
	case Float:
		return float32(v.f)
	case Double:
		return v.f
	case String:
		if v.set {
			return v.ss
		}
		return v.s
	}
	return nil
}

func (v Value) String() string {
	if !v.ok {
		return ``
	}
	switch v.typ {
	case Boolean:
		if v.i != 0 {
			return `true`
		}
		return `false`
	case Byte, Short, Integer, Long:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'G', -1, 32)
	case Double:
		return strconv.FormatFloat(v.f, 'G', -1, 64)
	case String:
		if v.set {
			return strings.Join(v.ss, `,`)
		}
		return v.s
	}
	return `` //return empty string on default
}

// Valid is false for the zero Value and anything with an unknown tag.
func (v Value) Valid() bool {
	return v.ok && v.typ.Valid()
}

// Truthy mirrors the skip list semantics, zero, false and empty are not truthy.
func (v Value) Truthy() bool {
	if !v.ok {
		return false
	}
	switch v.typ {
	case String:
		if v.set {
			return len(v.ss) > 0
		}
		return v.s != `` && v.s != `0`
	case Unknown:
		return false
	}
	return v.Bool()
}

func (v Value) Equal(o Value) bool {
	if v.ok != o.ok || v.typ != o.typ || v.set != o.set {
		return false
	}
	switch v.typ {
	case Float, Double:
		return v.f == o.f
	case String:
		if v.set {
			if len(v.ss) != len(o.ss) {
				return false
			}
			for i := range v.ss {
				if v.ss[i] != o.ss[i] {
					return false
				}
			}
			return true
		}
		return v.s == o.s
	}
	return v.i == o.i
}

// Compare orders two numeric values, ok is false when either side is not
// numeric.
func (v Value) Compare(o Value) (r int, ok bool) {
	if !v.typ.Numeric() || !o.typ.Numeric() {
		return
	}
	ok = true
	if v.typ.Integral() && o.typ.Integral() {
		switch {
		case v.i < o.i:
			r = -1
		case v.i > o.i:
			r = 1
		}
		return
	}
	a, b := v.Float(), o.Float()
	switch {
	case a < b:
		r = -1
	case a > b:
		r = 1
	}
	return
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
