/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package enrich attaches device properties to JSON events. Fields are read
// and written with jsonparser so events are never fully decoded.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/goccy/go-json"
	"github.com/gravwell/deviceatlas/config"
	"github.com/gravwell/deviceatlas/device"
	"github.com/gravwell/deviceatlas/headers"
	"github.com/gravwell/deviceatlas/log"
	"github.com/gravwell/deviceatlas/property"
	"github.com/gravwell/jsonparser"
	"golang.org/x/sync/errgroup"
)

const (
	ErrorPrefix = `[Error] `
	// ErrorField receives event level errors when every property is requested.
	ErrorField = `deviceatlasError`

	// clientIPHeader carries the IP field when the headers do not name one.
	clientIPHeader = `client-ip`
	fieldSep       = `.`
	defaultWorkers = 4
)

var (
	ErrNilApi      = errors.New("nil detection api")
	ErrNoUserAgent = errors.New("no user agent or headers in event")
	ErrNotObject   = errors.New("event is not a JSON object")
)

type Config struct {
	UserAgentField   string
	HeadersField     string
	ClientPropsField string
	IPField          string
	Properties       []string
	Filters          []string
	Workers          int
}

// FromConfig maps the [Enrich] section onto an enricher config.
func FromConfig(c *config.Config) Config {
	return Config{
		UserAgentField:   c.Enrich.User_Agent_Field,
		HeadersField:     c.Enrich.Headers_Field,
		ClientPropsField: c.Enrich.Client_Props_Field,
		IPField:          c.Enrich.IP_Field,
		Properties:       c.Enrich.Property,
		Filters:          c.Enrich.Property_Filter,
		Workers:          c.Enrich.Workers,
	}
}

type Enricher struct {
	Config
	api     *device.Api
	lgr     *log.Logger
	filters []glob.Glob
}

func New(api *device.Api, cfg Config, lgr *log.Logger) (e *Enricher, err error) {
	if api == nil {
		err = ErrNilApi
		return
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if lgr == nil {
		lgr = log.NewDiscardLogger()
	}
	e = &Enricher{
		Config: cfg,
		api:    api,
		lgr:    lgr.Component(`enrich`),
	}
	var g glob.Glob
	for _, f := range cfg.Filters {
		if g, err = glob.Compile(f); err != nil {
			err = fmt.Errorf("Invalid property filter %s: %w", f, err)
			e = nil
			return
		}
		e.filters = append(e.filters, g)
	}
	return
}

// Process enriches a batch of events concurrently, results come back in
// input order. Errors about individual fields are written into the event.
func (e *Enricher) Process(ctx context.Context, events [][]byte) (r [][]byte, err error) {
	if len(events) == 0 {
		return
	}
	var sel *selection
	if sel, err = e.selectProperties(); err != nil {
		return
	}
	r = make([][]byte, len(events))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(e.Workers)
	for i := range events {
		i := i // per-iteration copy; go.mod targets go1.21 loop semantics
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			r[i] = e.enrich(events[i], sel)
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		r = nil
	}
	return
}

// Enrich handles a single event.
func (e *Enricher) Enrich(event []byte) ([]byte, error) {
	sel, err := e.selectProperties()
	if err != nil {
		return nil, err
	}
	return e.enrich(event, sel), nil
}

// selection is the resolved set of output properties, all is set when
// neither names nor filters were given.
type selection struct {
	all   bool
	names []string
	bad   map[string]error
}

func (e *Enricher) selectProperties() (sel *selection, err error) {
	sel = &selection{}
	if len(e.Properties) == 0 && len(e.filters) == 0 {
		sel.all = true
		return
	}
	seen := map[string]bool{}
	for _, p := range e.Properties {
		if seen[p] {
			continue
		}
		seen[p] = true
		sel.names = append(sel.names, p)
		if lerr := e.api.PropertyNameExists(p); lerr != nil {
			if sel.bad == nil {
				sel.bad = map[string]error{}
			}
			sel.bad[p] = lerr
		}
	}
	if len(e.filters) > 0 {
		var names property.Names
		if names, err = e.api.PropertyNames(); err != nil {
			return
		}
		for _, n := range names {
			if seen[n.Name] || !e.matchFilter(n.Name) {
				continue
			}
			seen[n.Name] = true
			sel.names = append(sel.names, n.Name)
		}
	}
	return
}

func (e *Enricher) matchFilter(name string) bool {
	for _, g := range e.filters {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (e *Enricher) enrich(event []byte, sel *selection) []byte {
	if _, dt, _, err := jsonparser.Get(event); err != nil || dt != jsonparser.Object {
		e.lgr.Debug("skipping event", log.KVErr(ErrNotObject))
		return event
	}
	event = append([]byte(nil), event...) //Set may write into the source buffer
	hdrs, cookie, err := e.extract(event)
	if err != nil {
		return e.writeErrors(event, sel, err)
	}
	bag, err := e.api.GetPropertiesFromHeaders(hdrs, cookie)
	if err != nil {
		return e.writeErrors(event, sel, err)
	}
	if sel.all {
		for _, name := range bag.Names() {
			v, _ := bag.Get(name)
			event = e.setValue(event, name, v)
		}
		return event
	}
	for _, name := range sel.names {
		if lerr, ok := sel.bad[name]; ok {
			event = e.setError(event, name, lerr)
		} else if v, ok := bag.Get(name); ok {
			event = e.setValue(event, name, v)
		}
	}
	return event
}

// extract pulls the header set and cookie out of an event.
func (e *Enricher) extract(event []byte) (hdrs map[string]string, cookie string, err error) {
	hdrs = map[string]string{}
	if e.HeadersField != `` {
		if v, dt, _, lerr := jsonparser.Get(event, fieldPath(e.HeadersField)...); lerr == nil && dt == jsonparser.Object {
			err = jsonparser.ObjectEach(v, func(key, val []byte, dt jsonparser.ValueType, _ int) error {
				if dt == jsonparser.String {
					s, perr := jsonparser.ParseString(val)
					if perr != nil {
						return perr
					}
					hdrs[string(key)] = s
				}
				return nil
			})
			if err != nil {
				return
			}
		}
	}
	if e.UserAgentField != `` {
		if ua, lerr := jsonparser.GetString(event, fieldPath(e.UserAgentField)...); lerr == nil && ua != `` {
			hdrs[headers.UserAgent] = ua
		}
	}
	if len(hdrs) == 0 {
		err = ErrNoUserAgent
		return
	}
	if e.IPField != `` {
		if ip, lerr := jsonparser.GetString(event, fieldPath(e.IPField)...); lerr == nil && ip != `` {
			if _, ok := hdrs[clientIPHeader]; !ok {
				hdrs[clientIPHeader] = ip
			}
		}
	}
	if e.ClientPropsField != `` {
		cookie, _ = jsonparser.GetString(event, fieldPath(e.ClientPropsField)...)
	}
	return
}

func (e *Enricher) writeErrors(event []byte, sel *selection, err error) []byte {
	if sel.all {
		return e.setError(event, ErrorField, err)
	}
	for _, name := range sel.names {
		event = e.setError(event, name, err)
	}
	return event
}

func (e *Enricher) setValue(event []byte, name string, v property.Value) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return e.setError(event, name, err)
	}
	return e.set(event, name, b)
}

func (e *Enricher) setError(event []byte, name string, err error) []byte {
	b, _ := json.Marshal(ErrorPrefix + err.Error())
	return e.set(event, name, b)
}

func (e *Enricher) set(event []byte, name string, val []byte) []byte {
	r, err := jsonparser.Set(event, val, name)
	if err != nil {
		e.lgr.Warn("failed to set field", log.KV("field", name), log.KVErr(err))
		return event
	}
	return r
}

func fieldPath(f string) []string {
	return strings.Split(f, fieldSep)
}
