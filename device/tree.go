/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/goccy/go-json"
	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/property"
)

const (
	minMajor = 0
	minMinor = 7

	identifiedProperty = `iid`

	// regex tables are keyed by API id, this engine is API 5
	defaultRegexTable = `d`
	apiRegexTable     = `5`

	regexTimeout = 250 * time.Millisecond
)

// stock UA headers used when the data file does not carry its own list
var defaultStockUAHeaders = []string{
	`x-device-user-agent`,
	`x-original-user-agent`,
	`x-operamini-phone-ua`,
	`x-skyfire-phone`,
	`x-bolt-phone-ua`,
	`device-stock-ua`,
	`x-ucbrowser-ua`,
	`x-ucbrowser-device-ua`,
	`x-ucbrowser-device`,
	`x-puffin-ua`,
}

type rawMeta struct {
	Ver json.RawMessage `json:"Ver"`
	Rev json.RawMessage `json:"Rev"`
	Utc json.RawMessage `json:"Utc"`
}

type rawNode struct {
	D map[string]int      `json:"d"`
	C map[string]*rawNode `json:"c"`
	R []int               `json:"r"`
	M []int               `json:"m"`
}

type rawHeaders struct {
	StockUA []string `json:"sl"`
}

type rawTree struct {
	Meta    rawMeta                    `json:"$"`
	Props   []string                   `json:"p"`
	Values  []interface{}              `json:"v"`
	Regexes map[string]json.RawMessage `json:"r"`
	Headers *rawHeaders                `json:"h"`
	Trie    *rawNode                   `json:"t"`
	Uar     *rawUaRules                `json:"uar"`
	Cpr     *rawClientRules            `json:"cpr"`
}

type regexTable map[int]*regexp2.Regexp

type node struct {
	props    []idPair
	masked   map[int]bool
	regexes  []*regexp2.Regexp
	children map[string]*node
	maxKey   int
}

type idPair struct {
	prop  int
	value int
}

// Tree is a decoded device data file. It is never modified after loading
// so it may be shared between goroutines.
type Tree struct {
	version  string
	revision string
	created  int64

	names     []property.Name
	nameIndex map[string]int
	values    []interface{}
	regexes   regexTable
	stockUA   []string
	root      *node
	iid       int

	uar *uaRules
	cpr *clientRules
}

// ParseTree decodes a JSON device data file.
func ParseTree(rdr io.Reader) (t *Tree, err error) {
	var rt rawTree
	dec := json.NewDecoder(rdr)
	dec.UseNumber()
	if err = dec.Decode(&rt); err != nil {
		err = deviceatlas.NewInvalidDataFile("json", err)
		return
	}
	return compileTree(&rt)
}

// ParseTreeBytes is ParseTree over an in-memory buffer.
func ParseTreeBytes(b []byte) (*Tree, error) {
	return ParseTree(bytes.NewReader(b))
}

func compileTree(rt *rawTree) (t *Tree, err error) {
	t = &Tree{
		iid:     -1,
		values:  rt.Values,
		stockUA: defaultStockUAHeaders,
	}
	if t.version, err = metaString(rt.Meta.Ver); err != nil || t.version == `` {
		t = nil
		err = deviceatlas.NewInvalidDataFile("missing version", err)
		return
	} else if !supportedVersion(t.version) {
		err = fmt.Errorf("%w %s", deviceatlas.ErrUnsupportedVersion, t.version)
		t = nil
		return
	}
	t.revision, _ = metaString(rt.Meta.Rev)
	if ts, lerr := metaString(rt.Meta.Utc); lerr == nil && ts != `` {
		t.created, _ = strconv.ParseInt(ts, 10, 64)
	}
	if err = t.loadNames(rt.Props); err != nil {
		t = nil
		return
	}
	if t.regexes, err = compileRegexTables(rt.Regexes, nil); err != nil {
		t = nil
		err = deviceatlas.NewInvalidDataFile("regex table", err)
		return
	}
	if rt.Headers != nil && len(rt.Headers.StockUA) > 0 {
		t.stockUA = make([]string, 0, len(rt.Headers.StockUA))
		for _, h := range rt.Headers.StockUA {
			t.stockUA = append(t.stockUA, strings.ToLower(h))
		}
	}
	if rt.Trie == nil {
		t = nil
		err = deviceatlas.NewInvalidDataFile("missing trie", nil)
		return
	}
	if t.root, err = t.compileNode(rt.Trie); err != nil {
		t = nil
		err = deviceatlas.NewInvalidDataFile("trie", err)
		return
	}
	if rt.Uar != nil {
		if t.uar, err = t.compileUaRules(rt.Uar); err != nil {
			t = nil
			err = deviceatlas.NewInvalidDataFile("uar", err)
			return
		}
	}
	if rt.Cpr != nil {
		if t.cpr, err = t.compileClientRules(rt.Cpr); err != nil {
			t = nil
			err = deviceatlas.NewInvalidDataFile("cpr", err)
			return
		}
	}
	return
}

// metaString accepts either a JSON string or a bare number
func metaString(raw json.RawMessage) (s string, err error) {
	if len(raw) == 0 {
		return
	}
	if raw[0] == '"' {
		err = json.Unmarshal(raw, &s)
		return
	}
	var n json.Number
	if err = json.Unmarshal(raw, &n); err == nil {
		s = n.String()
	}
	return
}

// supportedVersion compares major.minor numerically so 0.10 sorts after 0.7
func supportedVersion(v string) bool {
	maj, min, _ := strings.Cut(v, `.`)
	major, err := strconv.Atoi(maj)
	if err != nil {
		return false
	}
	var minor int
	if min != `` {
		if idx := strings.IndexByte(min, '.'); idx >= 0 {
			min = min[:idx]
		}
		if minor, err = strconv.Atoi(min); err != nil {
			return false
		}
	}
	return major > minMajor || (major == minMajor && minor >= minMinor)
}

func (t *Tree) loadNames(props []string) error {
	t.names = make([]property.Name, 0, len(props))
	t.nameIndex = make(map[string]int, len(props))
	for i, p := range props {
		n, ok := property.ParseTaggedName(p)
		if !ok {
			return deviceatlas.NewInvalidDataFile(fmt.Sprintf("bad property name %q", p), nil)
		}
		t.names = append(t.names, n)
		t.nameIndex[n.Name] = i
		if n.Name == identifiedProperty {
			t.iid = i
		}
	}
	return nil
}

// compileRegexTables builds the effective regex table, the API specific
// table overlays the default one and base fills in anything missing.
func compileRegexTables(tables map[string]json.RawMessage, base regexTable) (rt regexTable, err error) {
	rt = make(regexTable, len(base))
	for k, v := range base {
		rt[k] = v
	}
	for _, name := range []string{defaultRegexTable, apiRegexTable} {
		raw, ok := tables[name]
		if !ok {
			continue
		}
		var patterns map[int]string
		if patterns, err = decodeRegexTable(raw); err != nil {
			return
		}
		for id, p := range patterns {
			var re *regexp2.Regexp
			if re, err = regexp2.Compile(p, regexp2.None); err != nil {
				err = fmt.Errorf("regex %d: %w", id, err)
				return
			}
			re.MatchTimeout = regexTimeout
			rt[id] = re
		}
	}
	return
}

// decodeRegexTable accepts either a JSON array or an object keyed by decimal id
func decodeRegexTable(raw json.RawMessage) (r map[int]string, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte(`null`)) {
		return
	}
	if raw[0] == '[' {
		var lst []string
		if err = json.Unmarshal(raw, &lst); err != nil {
			return
		}
		r = make(map[int]string, len(lst))
		for i, p := range lst {
			r[i] = p
		}
		return
	}
	var m map[string]string
	if err = json.Unmarshal(raw, &m); err != nil {
		return
	}
	r = make(map[int]string, len(m))
	for k, p := range m {
		var id int
		if id, err = strconv.Atoi(k); err != nil {
			err = fmt.Errorf("bad regex id %q", k)
			return
		}
		r[id] = p
	}
	return
}

func (t *Tree) compileNode(rn *rawNode) (n *node, err error) {
	n = &node{}
	if len(rn.D) > 0 {
		n.props = make([]idPair, 0, len(rn.D))
		for k, v := range rn.D {
			var pid int
			if pid, err = t.propID(k); err != nil {
				return
			} else if err = t.checkValue(v); err != nil {
				return
			}
			n.props = append(n.props, idPair{prop: pid, value: v})
		}
		sort.Slice(n.props, func(i, j int) bool { return n.props[i].prop < n.props[j].prop })
	}
	if len(rn.M) > 0 {
		n.masked = make(map[int]bool, len(rn.M))
		for _, p := range rn.M {
			if err = t.checkProp(p); err != nil {
				return
			}
			n.masked[p] = true
		}
	}
	for _, id := range rn.R {
		var re *regexp2.Regexp
		if re, err = t.regexes.get(id); err != nil {
			return
		}
		n.regexes = append(n.regexes, re)
	}
	if len(rn.C) > 0 {
		n.children = make(map[string]*node, len(rn.C))
		for k, c := range rn.C {
			if c == nil {
				continue
			}
			var cn *node
			if cn, err = t.compileNode(c); err != nil {
				return
			}
			n.children[k] = cn
			if len(k) > n.maxKey {
				n.maxKey = len(k)
			}
		}
	}
	return
}

func (rt regexTable) get(id int) (*regexp2.Regexp, error) {
	if re, ok := rt[id]; ok {
		return re, nil
	}
	return nil, fmt.Errorf("unknown regex id %d", id)
}

func (t *Tree) propID(k string) (id int, err error) {
	if id, err = strconv.Atoi(k); err != nil {
		err = fmt.Errorf("bad property id %q", k)
		return
	}
	err = t.checkProp(id)
	return
}

func (t *Tree) checkProp(id int) error {
	if id < 0 || id >= len(t.names) {
		return fmt.Errorf("unknown property id %d", id)
	}
	return nil
}

func (t *Tree) checkValue(id int) error {
	if id < 0 || id >= len(t.values) {
		return fmt.Errorf("unknown value id %d", id)
	}
	return nil
}

// value resolves a value id as the declared type of property pid
func (t *Tree) value(pid, vid int) (property.Value, error) {
	return property.Coerce(t.names[pid].Type, t.values[vid])
}

func (t *Tree) propertyName(pid int) string {
	return t.names[pid].Name
}

// Version is the data file version from the $ header.
func (t *Tree) Version() string {
	return t.version
}

func (t *Tree) Revision() string {
	return t.revision
}

// Created is the data file creation time as a unix timestamp.
func (t *Tree) Created() int64 {
	return t.created
}

// PropertyNames returns every property declared by the data file.
func (t *Tree) PropertyNames() property.Names {
	r := make(property.Names, len(t.names))
	copy(r, t.names)
	return r
}

// StockUAHeaders is the ordered list of headers that may carry the original user agent.
func (t *Tree) StockUAHeaders() []string {
	return t.stockUA
}

// HasClientRules reports whether the data file can process client property cookies.
func (t *Tree) HasClientRules() bool {
	return t.cpr != nil
}
