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

	"github.com/dlclark/regexp2"
	"github.com/gravwell/deviceatlas/property"
)

// idMap is the raw walk output, property id to value id
type idMap map[int]int

// idSet is a set of property ids, a nil idSet means everything is wanted
type idSet map[int]bool

var uaNormalizer = strings.NewReplacer(`\/`, `/`)

func normalizeUA(ua string) string {
	return uaNormalizer.Replace(strings.TrimSpace(ua))
}

// walkResult records what the last walked candidate consumed
type walkResult struct {
	matched   string
	unmatched string
}

// walk runs the trie over a single user agent, merging into out.
// The returned string is whatever the walk did not consume.
func (t *Tree) walk(ua string, out idMap, sought idSet) walkResult {
	var matched strings.Builder
	ua = normalizeUA(ua)
	for n := t.root; n != nil; {
		if sought != nil && len(sought) == 0 {
			break
		}
		n.merge(out, sought)
		for _, re := range n.regexes {
			ua = stripMatches(re, ua)
		}
		next, k := n.child(ua)
		if next == nil {
			break
		}
		matched.WriteString(ua[:k])
		ua = ua[k:]
		n = next
	}
	return walkResult{matched: matched.String(), unmatched: ua}
}

// walkCandidates walks each candidate in order until the device is identified
func (t *Tree) walkCandidates(candidates []string, out idMap) (wr walkResult) {
	if len(candidates) == 0 {
		return t.walk(``, out, nil)
	}
	for _, c := range candidates {
		wr = t.walk(c, out, nil)
		if t.identified(out) {
			break
		}
	}
	return
}

func (t *Tree) identified(out idMap) bool {
	if t.iid < 0 {
		return false
	}
	_, ok := out[t.iid]
	return ok
}

// merge applies the node's properties. Masked entries only fill gaps unless
// the caller is explicitly seeking them.
func (n *node) merge(out idMap, sought idSet) {
	for _, p := range n.props {
		if sought != nil && !sought[p.prop] {
			continue
		}
		if n.masked[p.prop] {
			if _, ok := out[p.prop]; ok && sought == nil {
				continue
			}
			out[p.prop] = p.value
			continue
		}
		out[p.prop] = p.value
		if sought != nil {
			delete(sought, p.prop)
		}
	}
}

// child finds the longest key that prefixes ua
func (n *node) child(ua string) (*node, int) {
	if len(n.children) == 0 {
		return nil, 0
	}
	k := n.maxKey
	if len(ua) < k {
		k = len(ua)
	}
	for ; k >= 0; k-- {
		if c, ok := n.children[ua[:k]]; ok {
			return c, k
		}
	}
	return nil, 0
}

// bag converts the walk output into typed properties, values that cannot be
// coerced to their declared type are dropped
func (t *Tree) bag(ids idMap, into property.Bag) {
	for pid, vid := range ids {
		if v, err := t.value(pid, vid); err == nil {
			into.Set(t.propertyName(pid), v)
		}
	}
}

func stripMatches(re *regexp2.Regexp, s string) string {
	r, err := re.Replace(s, ``, -1, -1)
	if err != nil {
		return s
	}
	return r
}

func regexMatches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// regexGroup returns capture group idx of the first match
func regexGroup(re *regexp2.Regexp, s string, idx int) (string, bool) {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return ``, false
	}
	g := m.GroupByNumber(idx)
	if g == nil || len(g.Captures) == 0 {
		return ``, false
	}
	return g.String(), true
}
