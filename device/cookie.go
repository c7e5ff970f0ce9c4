/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"strings"
	"unicode/utf8"

	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/property"
)

const (
	entrySep = '|'
	valueSep = ':'
	quote    = '"'
)

var (
	htmlEscaper   = strings.NewReplacer(`&`, `&amp;`, `"`, `&quot;`, `<`, `&lt;`, `>`, `&gt;`)
	htmlUnescaper = strings.NewReplacer(`&quot;`, `"`, `&lt;`, `<`, `&gt;`, `>`, `&amp;`, `&`)
)

// ClientProperty is a single cookie entry. Value is stored escaped and
// uncoerced, the tag travels with it until the merge.
type ClientProperty struct {
	Tag   byte
	Name  string
	Value string
}

// ClientProperties is an ordered list of entries parsed from a client
// properties cookie such as "bjs.webGl:true|iusableDisplayHeight:1050".
type ClientProperties []ClientProperty

// ParseClientProperties decodes a cookie. Entries with malformed keys are
// dropped, input that is not UTF-8 is rejected.
func ParseClientProperties(cookie string) (cp ClientProperties, err error) {
	if !utf8.ValidString(cookie) {
		err = deviceatlas.BadClientProperties("cookie is not valid UTF-8")
		return
	}
	for len(cookie) > 0 {
		var entry string
		entry, cookie = nextEntry(cookie)
		if p, ok := parseEntry(entry); ok {
			cp = append(cp, p)
		}
	}
	return
}

// nextEntry splits off the first entry. A separator inside a value that
// opens with a quote does not end the entry until the quote is closed.
func nextEntry(cookie string) (entry, rest string) {
	inValue, quoted := false, false
	for i := 0; i < len(cookie); i++ {
		switch c := cookie[i]; {
		case !inValue && c == valueSep:
			inValue = true
			quoted = i+1 < len(cookie) && cookie[i+1] == quote
			if quoted {
				i++
			}
		case quoted && c == quote:
			//a doubled quote is an escaped quote
			if i+1 < len(cookie) && cookie[i+1] == quote {
				i++
			} else {
				quoted = false
			}
		case !quoted && c == entrySep:
			return cookie[:i], cookie[i+1:]
		}
	}
	return cookie, ``
}

func parseEntry(entry string) (p ClientProperty, ok bool) {
	idx := strings.IndexByte(entry, valueSep)
	if idx < 0 {
		return
	}
	key := strings.ReplaceAll(entry[:idx], `"`, ``)
	if len(key) < 2 || !validKey(key) {
		return
	}
	if _, ok = property.TypeFromTag(key[0]); !ok {
		return
	}
	p = ClientProperty{
		Tag:   key[0],
		Name:  key[1:],
		Value: htmlEscaper.Replace(unquote(entry[idx+1:])),
	}
	return
}

func validKey(k string) bool {
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' {
			continue
		}
		return false
	}
	return true
}

// unquote strips a pair of outer quotes and collapses doubled quotes
func unquote(v string) string {
	if len(v) >= 2 && v[0] == quote && v[len(v)-1] == quote {
		v = v[1 : len(v)-1]
	}
	return strings.ReplaceAll(v, `""`, `"`)
}

// String serializes the entries back into cookie form.
func (cp ClientProperties) String() string {
	var sb strings.Builder
	for i, p := range cp {
		if i > 0 {
			sb.WriteByte(entrySep)
		}
		sb.WriteByte(p.Tag)
		sb.WriteString(p.Name)
		sb.WriteByte(valueSep)
		v := htmlUnescaper.Replace(p.Value)
		if strings.IndexByte(v, quote) >= 0 || strings.IndexByte(v, entrySep) >= 0 {
			v = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		sb.WriteString(v)
	}
	return sb.String()
}

// Bag coerces every entry to the type named by its tag, later entries win.
func (cp ClientProperties) Bag() (bag property.Bag, err error) {
	bag = make(property.Bag, len(cp))
	for _, p := range cp {
		var v property.Value
		if v, err = p.coerce(); err != nil {
			bag = nil
			return
		}
		bag.Set(p.Name, v)
	}
	return
}

func (p ClientProperty) coerce() (v property.Value, err error) {
	dt, _ := property.TypeFromTag(p.Tag)
	if v, err = property.Coerce(dt, p.Value); err != nil && dt == property.Integer {
		//integers too wide for 32 bits are carried as longs
		v, err = property.Coerce(property.Long, p.Value)
	}
	if err != nil {
		err = deviceatlas.BadClientProperties(`property ` + p.Name + `: ` + err.Error())
	}
	return
}
