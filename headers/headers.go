/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package headers normalizes HTTP header maps the way both detection engines
// expect them.
package headers

import (
	"net/http"
	"strings"
)

const (
	UserAgent      = `user-agent`
	AcceptLanguage = `accept-language`

	cgiPrefix = `http-`
)

// Key lowercases a header name, swaps underscores for dashes and strips a
// leading "http-" so CGI style names (HTTP_USER_AGENT) line up with wire names.
func Key(k string) string {
	k = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), `_`, `-`)
	return strings.TrimPrefix(k, cgiPrefix)
}

// Normalize returns a new map with normalized keys. When two keys collapse
// to the same name the lexically smaller original key wins so the result
// does not depend on map iteration order.
func Normalize(h map[string]string) map[string]string {
	r := make(map[string]string, len(h))
	orig := make(map[string]string, len(h))
	for k, v := range h {
		nk := Key(k)
		if prev, ok := orig[nk]; ok && prev < k {
			continue
		}
		orig[nk] = k
		r[nk] = v
	}
	return r
}

// FromHTTP flattens an http.Header, multiple values are joined with ", ".
func FromHTTP(h http.Header) map[string]string {
	r := make(map[string]string, len(h))
	for k, vs := range h {
		r[Key(k)] = strings.Join(vs, `, `)
	}
	return r
}
