/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package device implements the DeviceAtlas device detection engine. A
// JSON data file is walked as a character trie against the user agent, the
// result is refined by user agent rules, the Accept-Language header and
// client side properties.
package device

import (
	"bytes"
	"crypto/rand"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/carrier"
	"github.com/gravwell/deviceatlas/headers"
	"github.com/gravwell/deviceatlas/log"
	"github.com/gravwell/deviceatlas/property"
	"github.com/minio/highwayhash"
)

const (
	DefaultCookieName = `DAPROPS`

	MatchedProperty   = `_matched`
	UnmatchedProperty = `_unmatched`
)

// Config controls which stages contribute to a result.
type Config struct {
	IncludeUaProps             bool
	IncludeLangProps           bool
	IncludeMatchInfo           bool
	CookieName                 string
	ReturnNoneWhenNoProperties bool
}

func DefaultConfig() Config {
	return Config{
		IncludeUaProps:   true,
		IncludeLangProps: true,
		CookieName:       DefaultCookieName,
	}
}

type hsh [highwayhash.Size]byte

// Api is the detection façade. Loads swap the data file atomically and
// queries may run concurrently with each other and with loads.
type Api struct {
	cfg Config
	lgr *log.Logger

	mtx  sync.RWMutex
	tree *Tree
	cr   *carrier.Carrier

	memoMtx sync.Mutex
	memoKey []byte
	memo    *memoEntry
}

type memoEntry struct {
	key  hsh
	tree *Tree
	gen  uint64
	bag  property.Bag
}

func NewApi(cfg Config) *Api {
	if cfg.CookieName == `` {
		cfg.CookieName = DefaultCookieName
	}
	key := make([]byte, 32)
	rand.Read(key) //never fails, crypto/rand aborts the process instead
	lgr := log.NewDiscardLogger()
	return &Api{
		cfg:     cfg,
		lgr:     lgr,
		cr:      carrier.NewWithLogger(lgr),
		memoKey: key,
	}
}

// SetLogger routes load events to lgr.
func (a *Api) SetLogger(lgr *log.Logger) {
	if lgr == nil {
		return
	}
	a.mtx.Lock()
	a.lgr = lgr.Component(`device`)
	a.mtx.Unlock()
	a.cr.SetLogger(lgr)
}

func (a *Api) logger() *log.Logger {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.lgr
}

func (a *Api) Config() Config {
	return a.cfg
}

// LoadDataFromFile loads a JSON device data file, the previous data file
// stays in service if the load fails.
func (a *Api) LoadDataFromFile(p string) (err error) {
	var fin *os.File
	if fin, err = os.Open(p); err != nil {
		return
	}
	defer fin.Close()
	if err = a.LoadDataFromReader(fin); err != nil {
		a.logger().Error("failed to load device data file", log.KV("path", p), log.KVErr(err))
	}
	return
}

func (a *Api) LoadDataFromString(s string) error {
	return a.LoadDataFromReader(strings.NewReader(s))
}

func (a *Api) LoadDataFromBytes(b []byte) error {
	return a.LoadDataFromReader(bytes.NewReader(b))
}

func (a *Api) LoadDataFromReader(rdr io.Reader) error {
	t, err := ParseTree(rdr)
	if err != nil {
		return err
	}
	a.SetTree(t)
	return nil
}

// SetTree installs an already parsed tree.
func (a *Api) SetTree(t *Tree) {
	a.mtx.Lock()
	a.tree = t
	lgr := a.lgr
	a.mtx.Unlock()
	a.resetMemo()
	lgr.Info("loaded device data file",
		log.KV("version", t.Version()),
		log.KV("revision", t.Revision()),
		log.KV("properties", len(t.names)))
}

// LoadCarrierFromFile loads the binary carrier data file used to enrich
// header based lookups.
func (a *Api) LoadCarrierFromFile(p string) error {
	err := a.Carrier().LoadDataFromFile(p)
	if err == nil {
		a.resetMemo()
	}
	return err
}

// Carrier hands back the carrier engine for direct IP lookups.
func (a *Api) Carrier() *carrier.Carrier {
	return a.cr
}

func (a *Api) current() (*Tree, error) {
	a.mtx.RLock()
	t := a.tree
	a.mtx.RUnlock()
	if t == nil {
		return nil, deviceatlas.ErrNoDataFile
	}
	return t, nil
}

// GetProperties detects a device from a bare user agent.
func (a *Api) GetProperties(ua string) (property.Bag, error) {
	return a.GetPropertiesFromHeaders(map[string]string{headers.UserAgent: ua}, ``)
}

// GetPropertiesFromHeaders detects a device from a full set of request
// headers and an optional client properties cookie. The result must not
// be modified by the caller.
func (a *Api) GetPropertiesFromHeaders(hdrs map[string]string, cookie string) (bag property.Bag, err error) {
	var t *Tree
	if t, err = a.current(); err != nil {
		return
	}
	norm := headers.Normalize(hdrs)
	key := a.fingerprint(norm, cookie)
	gen := a.cr.Generation()
	if bag = a.memoized(t, gen, key); bag == nil {
		if bag, err = a.detect(t, norm, cookie); err != nil {
			return
		}
		a.store(t, gen, key, bag)
	}
	if len(bag) == 0 && a.cfg.ReturnNoneWhenNoProperties {
		bag = nil
	}
	return
}

// GetProperty detects a device from a user agent and returns a single property.
func (a *Api) GetProperty(ua, name string) (property.Value, bool, error) {
	return a.GetPropertyFromHeaders(map[string]string{headers.UserAgent: ua}, ``, name)
}

func (a *Api) GetPropertyFromHeaders(hdrs map[string]string, cookie, name string) (v property.Value, ok bool, err error) {
	if err = a.PropertyNameExists(name); err != nil {
		return
	}
	var bag property.Bag
	if bag, err = a.GetPropertiesFromHeaders(hdrs, cookie); err != nil {
		return
	}
	v, ok = bag.Get(name)
	return
}

// PropertyNameExists returns ErrUnknownProperty for names no stage can produce.
func (a *Api) PropertyNameExists(name string) error {
	t, err := a.current()
	if err != nil {
		return err
	}
	if _, ok := t.nameIndex[name]; ok {
		return nil
	}
	switch name {
	case LanguageProperty, LanguageLocaleProperty, MatchedProperty, UnmatchedProperty:
		return nil
	}
	if cr := a.Carrier(); cr.Loaded() {
		return cr.PropertyNameExists(name)
	}
	return deviceatlas.UnknownProperty(name)
}

// PropertyNames lists the device properties plus carrier properties when a
// carrier file is loaded, sorted by name.
func (a *Api) PropertyNames() (property.Names, error) {
	t, err := a.current()
	if err != nil {
		return nil, err
	}
	r := t.PropertyNames()
	if cn, err := a.Carrier().PropertyNames(); err == nil {
		r = append(r, cn...)
	}
	sort.Sort(r)
	return r, nil
}

func (a *Api) DataVersion() (string, error) {
	t, err := a.current()
	if err != nil {
		return ``, err
	}
	return t.Version(), nil
}

func (a *Api) DataRevision() (string, error) {
	t, err := a.current()
	if err != nil {
		return ``, err
	}
	return t.Revision(), nil
}

// DataCreationTimestamp is the unix timestamp the data file was generated at.
func (a *Api) DataCreationTimestamp() (int64, error) {
	t, err := a.current()
	if err != nil {
		return 0, err
	}
	return t.Created(), nil
}

// detect runs the stages in order: walk, user agent rules, language, client properties, carrier.
func (a *Api) detect(t *Tree, hdrs map[string]string, cookie string) (bag property.Bag, err error) {
	ua := hdrs[headers.UserAgent]
	ids := idMap{}
	wr := t.walkCandidates(stockCandidates(t, hdrs), ids)
	bag = property.NewBag()
	t.bag(ids, bag)
	if a.cfg.IncludeMatchInfo {
		bag.Set(MatchedProperty, property.StringValue(wr.matched))
		bag.Set(UnmatchedProperty, property.StringValue(wr.unmatched))
	}
	if a.cfg.IncludeUaProps && t.uar != nil {
		t.uar.apply(t, ua, ids, bag, nil)
	}
	if al, ok := hdrs[headers.AcceptLanguage]; ok && a.cfg.IncludeLangProps {
		languageProps(al, bag)
	}
	if cookie != `` {
		if t.cpr == nil {
			bag = nil
			err = deviceatlas.BadClientProperties("data file has no client property rules")
			return
		}
		var cp ClientProperties
		var client property.Bag
		if cp, err = ParseClientProperties(cookie); err != nil {
			bag = nil
			return
		} else if client, err = cp.Bag(); err != nil {
			bag = nil
			return
		}
		t.cpr.apply(t, ua, bag, client)
	}
	if cr := a.Carrier(); cr.Loaded() {
		if cb, lerr := cr.GetPropertiesFromHeaders(hdrs); lerr == nil {
			bag.Merge(cb)
		}
	}
	return
}

// stockCandidates lists the user agents to walk, stock headers first
func stockCandidates(t *Tree, hdrs map[string]string) (r []string) {
	for _, h := range t.stockUA {
		if v, ok := hdrs[h]; ok {
			r = append(r, v)
		}
	}
	if v, ok := hdrs[headers.UserAgent]; ok {
		r = append(r, v)
	}
	return
}

func (a *Api) fingerprint(hdrs map[string]string, cookie string) (h hsh) {
	keys := make([]string, 0, len(hdrs))
	for k := range hdrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var bb bytes.Buffer
	for _, k := range keys {
		bb.WriteString(k)
		bb.WriteByte(0)
		bb.WriteString(hdrs[k])
		bb.WriteByte(0)
	}
	bb.WriteByte(1)
	bb.WriteString(cookie)
	return highwayhash.Sum(bb.Bytes(), a.memoKey)
}

// memoized returns the cached result for key when neither the tree nor the
// carrier file changed since it was stored.
func (a *Api) memoized(t *Tree, gen uint64, key hsh) property.Bag {
	a.memoMtx.Lock()
	defer a.memoMtx.Unlock()
	if a.memo == nil || a.memo.tree != t || a.memo.gen != gen || a.memo.key != key {
		return nil
	}
	return a.memo.bag
}

func (a *Api) store(t *Tree, gen uint64, key hsh, bag property.Bag) {
	a.memoMtx.Lock()
	a.memo = &memoEntry{key: key, tree: t, gen: gen, bag: bag}
	a.memoMtx.Unlock()
}

func (a *Api) resetMemo() {
	a.memoMtx.Lock()
	a.memo = nil
	a.memoMtx.Unlock()
}
