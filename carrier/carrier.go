/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package carrier resolves IPv4 addresses to mobile network operator
// properties using the binary carrier data file.
package carrier

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/log"
	"github.com/gravwell/deviceatlas/mmap"
	"github.com/gravwell/deviceatlas/property"
)

// Carrier is safe for concurrent use, a reload swaps the loaded file atomically.
type Carrier struct {
	mtx sync.RWMutex
	df  *dataFile
	gen uint64
	lgr *log.Logger
}

func New() *Carrier {
	return &Carrier{lgr: log.NewDiscardLogger()}
}

// NewWithLogger is New with load events reported to lgr.
func NewWithLogger(lgr *log.Logger) *Carrier {
	if lgr == nil {
		lgr = log.NewDiscardLogger()
	}
	return &Carrier{lgr: lgr.Component(`carrier`)}
}

// SetLogger routes load events to lgr.
func (c *Carrier) SetLogger(lgr *log.Logger) {
	if lgr == nil {
		return
	}
	c.mtx.Lock()
	c.lgr = lgr.Component(`carrier`)
	c.mtx.Unlock()
}

func (c *Carrier) logger() *log.Logger {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.lgr
}

// LoadDataFromFile maps and decodes the carrier file at p.
// On failure the previously loaded file, if any, is retained.
func (c *Carrier) LoadDataFromFile(p string) (err error) {
	var fm *mmap.FileMap
	if fm, err = mmap.Open(p); err != nil {
		c.logger().Error("failed to open carrier data file", log.KV("path", p), log.KVErr(err))
		return
	}
	defer fm.Close()
	fm.Advise(mmap.AccessSequential)
	//everything decoded is copied out of the map, so it is safe to drop it afterwards
	if err = c.LoadDataFromBytes(fm.Buff); err != nil {
		c.logger().Error("failed to load carrier data file", log.KV("path", p), log.KVErr(err))
	}
	return
}

// LoadDataFromBytes decodes a carrier file already held in memory.
func (c *Carrier) LoadDataFromBytes(b []byte) error {
	df, err := parseDataFile(b)
	if err != nil {
		return err
	}
	c.mtx.Lock()
	c.df = df
	c.gen++
	c.mtx.Unlock()
	c.logger().Info("loaded carrier data file",
		log.KV("version", df.version()),
		log.KV("created", df.created),
		log.KV("properties", len(df.names)),
		log.KV("nodes", len(df.props)))
	return nil
}

func (c *Carrier) current() (*dataFile, error) {
	c.mtx.RLock()
	df := c.df
	c.mtx.RUnlock()
	if df == nil {
		return nil, deviceatlas.ErrNoDataFile
	}
	return df, nil
}

// Generation is bumped by every successful load.
func (c *Carrier) Generation() uint64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.gen
}

// Loaded reports whether a data file has been successfully loaded.
func (c *Carrier) Loaded() bool {
	_, err := c.current()
	return err == nil
}

// GetProperties returns the properties of the longest matching prefix for ip.
// A nil bag with a nil error means no prefix covers the address.
func (c *Carrier) GetProperties(ip netip.Addr) (property.Bag, error) {
	df, err := c.current()
	if err != nil {
		return nil, err
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return nil, nil
	}
	ps, ok := df.lookup(ipToUint32(ip))
	if !ok {
		return nil, nil
	}
	return df.properties(ps), nil
}

// GetProperty returns a single property for ip, ok is false when the
// address has no value for it.
func (c *Carrier) GetProperty(ip netip.Addr, name string) (v property.Value, ok bool, err error) {
	var df *dataFile
	if df, err = c.current(); err != nil {
		return
	} else if _, exists := df.nameIndex[name]; !exists {
		err = deviceatlas.UnknownProperty(name)
		return
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return
	}
	ps, found := df.lookup(ipToUint32(ip))
	if !found {
		return
	}
	return df.property(ps, name)
}

// GetPropertiesFromHeaders extracts the client address from hdrs and looks it up.
func (c *Carrier) GetPropertiesFromHeaders(hdrs map[string]string) (property.Bag, error) {
	if _, err := c.current(); err != nil {
		return nil, err
	}
	ip, ok := ExtractIP(hdrs)
	if !ok {
		return nil, nil
	}
	return c.GetProperties(ip)
}

func (c *Carrier) GetPropertyFromHeaders(hdrs map[string]string, name string) (v property.Value, ok bool, err error) {
	if err = c.PropertyNameExists(name); err != nil {
		return
	}
	ip, found := ExtractIP(hdrs)
	if !found {
		return
	}
	return c.GetProperty(ip, name)
}

// PropertyNameExists returns ErrUnknownProperty when name is not in the loaded file.
func (c *Carrier) PropertyNameExists(name string) error {
	df, err := c.current()
	if err != nil {
		return err
	} else if _, ok := df.nameIndex[name]; !ok {
		return deviceatlas.UnknownProperty(name)
	}
	return nil
}

// PropertyNames lists every property the loaded file can return, sorted by name.
func (c *Carrier) PropertyNames() (property.Names, error) {
	df, err := c.current()
	if err != nil {
		return nil, err
	}
	r := make(property.Names, len(df.names))
	copy(r, df.names)
	sort.Sort(r)
	return r, nil
}

func (c *Carrier) Copyright() (string, error) {
	df, err := c.current()
	if err != nil {
		return ``, err
	}
	return df.copyright, nil
}

// CreationDate is the ISO-8601 timestamp embedded in the file header.
func (c *Carrier) CreationDate() (string, error) {
	df, err := c.current()
	if err != nil {
		return ``, err
	}
	return df.created, nil
}

// Version is the data file version as major.minor.
func (c *Carrier) Version() (string, error) {
	df, err := c.current()
	if err != nil {
		return ``, err
	}
	return df.version(), nil
}

func (c *Carrier) LicenseID() (uint32, error) {
	df, err := c.current()
	if err != nil {
		return 0, err
	}
	return df.licenseID, nil
}
