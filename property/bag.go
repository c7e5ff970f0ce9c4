/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package property

import (
	"sort"
)

// Bag maps property names to typed values. A nil Bag is a valid empty bag
// for reads.
type Bag map[string]Value

func NewBag() Bag {
	return make(Bag)
}

func (b Bag) Get(name string) (v Value, ok bool) {
	v, ok = b[name]
	return
}

func (b Bag) Set(name string, v Value) {
	b[name] = v
}

// Contains checks that name is present and equal to expected once expected
// has been coerced to the declared type of the entry.
func (b Bag) Contains(name string, expected interface{}) bool {
	v, ok := b[name]
	if !ok {
		return false
	}
	ev, err := Coerce(v.Type(), expected)
	if err != nil {
		return false
	}
	if v.IsSet() && !ev.IsSet() {
		//a scalar matches a member of a set
		for _, s := range v.Strings() {
			if s == ev.String() {
				return true
			}
		}
		return false
	}
	return v.Equal(ev)
}

// Names returns the sorted property names in the bag.
func (b Bag) Names() []string {
	r := make([]string, 0, len(b))
	for k := range b {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

// Merge copies every entry of o into b, o wins on collisions.
func (b Bag) Merge(o Bag) {
	for k, v := range o {
		b[k] = v
	}
}

func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}
	r := make(Bag, len(b))
	for k, v := range b {
		r[k] = v
	}
	return r
}

// Native converts the bag to plain Go types, handy for encoders.
func (b Bag) Native() map[string]interface{} {
	r := make(map[string]interface{}, len(b))
	for k, v := range b {
		r[k] = v.Interface()
	}
	return r
}
