/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"strconv"
	"strings"

	"github.com/gravwell/deviceatlas/property"
)

const (
	LanguageProperty       = `language`
	LanguageLocaleProperty = `languageLocale`

	anyLanguage = `*`
)

type langCandidate struct {
	locale string
	q      float64
}

// NegotiateLanguage picks the preferred locale from an Accept-Language
// header. The highest quality wins, ties go to the more specific locale of
// the same language. ok is false when nothing usable was offered.
func NegotiateLanguage(accept string) (lang, locale string, ok bool) {
	best, found := bestLocale(accept)
	if !found || best == anyLanguage {
		return
	}
	best = strings.ReplaceAll(best, `_`, `-`)
	if len(best) < 2 || !isAlpha(best[:2]) {
		return
	}
	lang = strings.ToLower(best[:2])
	ok = true
	if len(best) == 5 && best[2] == '-' && isAlpha(best[3:5]) {
		locale = lang + `-` + strings.ToUpper(best[3:5])
	}
	return
}

func bestLocale(accept string) (best string, ok bool) {
	accept = strings.ReplaceAll(accept, ` `, ``)
	var cur langCandidate
	for _, part := range strings.Split(accept, `,`) {
		c, valid := parseLangPart(part)
		if !valid {
			continue
		}
		switch {
		case !ok || c.q > cur.q:
		case c.q == cur.q && sameLanguage(c.locale, cur.locale) && len(c.locale) > len(cur.locale):
		default:
			continue
		}
		cur, ok = c, true
	}
	best = cur.locale
	return
}

func parseLangPart(part string) (c langCandidate, ok bool) {
	params := strings.Split(part, `;`)
	if c.locale = params[0]; c.locale == `` {
		return
	}
	c.q = 1
	for _, p := range params[1:] {
		if v, found := strings.CutPrefix(p, `q=`); found {
			var err error
			if c.q, err = strconv.ParseFloat(v, 64); err != nil || c.q < 0 || c.q > 1 {
				c.q = 0
			}
		}
	}
	ok = c.q > 0
	return
}

func sameLanguage(a, b string) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	return strings.EqualFold(a[:2], b[:2])
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i] | 0x20; c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// languageProps writes the negotiated language into bag
func languageProps(accept string, bag property.Bag) {
	lang, locale, ok := NegotiateLanguage(accept)
	if !ok {
		return
	}
	bag.Set(LanguageProperty, property.StringValue(lang))
	if locale != `` {
		bag.Set(LanguageLocaleProperty, property.StringValue(locale))
	}
}
