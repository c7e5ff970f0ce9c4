/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package log is the leveled RFC5424 logger used by the detection engines,
// the updater and the command line tools. Component loggers created with
// With share writers and level with their parent.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	FATAL
)

const (
	DEFAULT_DEPTH = 3

	// DefaultID names the structured data element every KV lands in.
	DefaultID = `da@1`

	maxAppname  = 48
	maxHostname = 255
	maxMsgID    = 32
	filePerm    = 0640
)

var (
	ErrNotOpen      = errors.New("Logger is not open")
	ErrInvalidLevel = errors.New("Log level is invalid")
	ErrNilWriter    = errors.New("Invalid writer, is nil")
)

var levels = [...]struct {
	name string
	prio rfc5424.Priority
}{
	OFF:      {`OFF`, rfc5424.User | rfc5424.Debug},
	DEBUG:    {`DEBUG`, rfc5424.User | rfc5424.Debug},
	INFO:     {`INFO`, rfc5424.User | rfc5424.Info},
	WARN:     {`WARN`, rfc5424.User | rfc5424.Warning},
	ERROR:    {`ERROR`, rfc5424.User | rfc5424.Error},
	CRITICAL: {`CRITICAL`, rfc5424.User | rfc5424.Crit},
	FATAL:    {`FATAL`, rfc5424.User | rfc5424.Emergency},
}

// sink is the state shared by a logger and every component logger made from it.
type sink struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	open     bool
	hostname string
	appname  string
}

type Logger struct {
	*sink
	kvs []rfc5424.SDParam
}

// NewFile appends to the file at p, creating it if needed.
func NewFile(p string) (*Logger, error) {
	fout, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, err
	}
	return New(fout), nil
}

// New logs to wtr at INFO.
func New(wtr io.WriteCloser) *Logger {
	s := &sink{
		wtrs:    []io.WriteCloser{wtr},
		lvl:     INFO,
		open:    true,
		appname: exeName(),
	}
	if h, err := os.Hostname(); err == nil {
		s.hostname = trimLength(maxHostname, h)
	}
	return &Logger{sink: s}
}

// NewDiscardLogger is the default for library code that was not handed a logger.
func NewDiscardLogger() *Logger {
	l := New(discard{})
	l.lvl = OFF
	return l
}

// With returns a component logger that adds kvs to every line.
func (l *Logger) With(kvs ...rfc5424.SDParam) *Logger {
	n := make([]rfc5424.SDParam, 0, len(l.kvs)+len(kvs))
	return &Logger{
		sink: l.sink,
		kvs:  append(append(n, l.kvs...), kvs...),
	}
}

// Component is With for the common component KV.
func (l *Logger) Component(name string) *Logger {
	return l.With(KV(`component`, name))
}

func (l *Logger) SetAppname(appname string) error {
	if err := checkName(appname); err != nil {
		return err
	}
	l.mtx.Lock()
	l.appname = trimLength(maxAppname, appname)
	l.mtx.Unlock()
	return nil
}

// Close closes every writer, component loggers stop working too.
func (l *Logger) Close() (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return ErrNotOpen
	}
	l.open = false
	for _, w := range l.wtrs {
		if lerr := w.Close(); lerr != nil {
			err = lerr
		}
	}
	return
}

func (l *Logger) AddWriter(wtr io.WriteCloser) error {
	if wtr == nil {
		return ErrNilWriter
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return ErrNotOpen
	}
	l.wtrs = append(l.wtrs, wtr)
	return nil
}

// SetLevelString takes config file values directly.
func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	return l.SetLevel(lvl)
}

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return ErrNotOpen
	}
	l.lvl = lvl
	return nil
}

func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return OFF
	}
	return l.lvl
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) error {
	return l.output(DEFAULT_DEPTH, DEBUG, msg, sds)
}

func (l *Logger) Info(msg string, sds ...rfc5424.SDParam) error {
	return l.output(DEFAULT_DEPTH, INFO, msg, sds)
}

func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam) error {
	return l.output(DEFAULT_DEPTH, WARN, msg, sds)
}

func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) error {
	return l.output(DEFAULT_DEPTH, ERROR, msg, sds)
}

func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) error {
	return l.output(DEFAULT_DEPTH, CRITICAL, msg, sds)
}

// Fatal logs, closes the logger and exits with -1.
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.FatalCode(-1, msg, sds...)
}

func (l *Logger) FatalCode(code int, msg string, sds ...rfc5424.SDParam) {
	l.output(DEFAULT_DEPTH, FATAL, msg, sds)
	l.Close()
	os.Exit(code)
}

func (l *Logger) output(depth int, lvl Level, msg string, sds []rfc5424.SDParam) (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.open {
		return ErrNotOpen
	} else if l.lvl == OFF || lvl < l.lvl {
		return
	}
	if len(l.kvs) > 0 {
		sds = append(append(make([]rfc5424.SDParam, 0, len(l.kvs)+len(sds)), l.kvs...), sds...)
	}
	var b []byte
	if b, err = formatLine(time.Now(), lvl.priority(), l.hostname, l.appname, callLoc(depth), msg, sds); err != nil {
		return
	}
	for _, w := range l.wtrs {
		if _, lerr := w.Write(b); lerr != nil {
			err = lerr
		}
	}
	return
}

// formatLine renders one newline terminated RFC5424 message, the caller
// location goes in the MsgID.
func formatLine(ts time.Time, prio rfc5424.Priority, hostname, appname, msgid, msg string, sds []rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  hostname,
		AppName:   trimLength(maxAppname, appname),
		MessageID: trimPathLength(maxMsgID, msgid),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: DefaultID, Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(trimNewlines(b), '\n'), nil
}

func (l Level) String() string {
	if !l.Valid() {
		return `UNKNOWN`
	}
	return levels[l].name
}

func (l Level) Valid() bool {
	return l >= OFF && l <= FATAL
}

func (l Level) priority() rfc5424.Priority {
	if !l.Valid() {
		return levels[DEBUG].prio
	}
	return levels[l].prio
}

// LevelFromString is case insensitive, an empty string means INFO.
func LevelFromString(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == `` {
		return INFO, nil
	}
	for i, v := range levels {
		if v.name == s {
			return Level(i), nil
		}
	}
	return OFF, ErrInvalidLevel
}

type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }
func (discard) Close() error                { return nil }

func callLoc(depth int) string {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return ``
	}
	dir, file := filepath.Split(file)
	return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(dir), file), line)
}

func exeName() string {
	if len(os.Args) == 0 {
		return ``
	}
	exe := filepath.Base(os.Args[0])
	if ext := filepath.Ext(exe); ext != `` && len(ext) < len(exe) {
		exe = strings.TrimSuffix(exe, ext)
	}
	return trimLength(maxAppname, exe)
}

// checkName limits app names to what RFC5424 allows without escaping.
func checkName(v string) error {
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune(`._-:`, r):
		default:
			return fmt.Errorf("name character %c is invalid", r)
		}
	}
	return nil
}

// trimPathLength keeps at most i bytes, falling back to the base name of a
// long caller path so "carrier/carrier.go:352" becomes "carrier.go:352".
func trimPathLength(i int, input string) string {
	if len(input) <= i {
		return input
	}
	return trimLength(i, filepath.Base(input))
}

func trimLength(i int, input string) string {
	if len(input) <= i {
		return input
	}
	return input[:i]
}

func trimNewlines(b []byte) []byte {
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', '\t':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}
