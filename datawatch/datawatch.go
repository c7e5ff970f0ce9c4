/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package datawatch reloads data files when they change on disk.
package datawatch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gravwell/deviceatlas/log"
)

const (
	DefaultDebounce = 2 * time.Second

	triggerOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename
)

var (
	ErrNotReady       = errors.New("fsnotify watcher is not ready")
	ErrAlreadyStarted = errors.New("Watcher already started")
	ErrNoFilesWatched = errors.New("No files have been added to the watch list")
	ErrNilReload      = errors.New("nil reload function")
)

// ReloadFunc is handed the path of the file that changed.
type ReloadFunc func(path string) error

type Watcher struct {
	mtx        sync.Mutex
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	files      map[string]ReloadFunc
	dirs       map[string]bool
	pending    map[string]*time.Timer
	logger     *log.Logger
	routineRet chan error
}

// NewWatcher creates a watcher that waits debounce after the last change to
// a file before reloading it.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  w,
		debounce: debounce,
		files:    map[string]ReloadFunc{},
		dirs:     map[string]bool{},
		pending:  map[string]*time.Timer{},
		logger:   log.NewDiscardLogger(),
	}, nil
}

func (w *Watcher) SetLogger(lgr *log.Logger) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if lgr == nil {
		w.logger = log.NewDiscardLogger()
	} else {
		w.logger = lgr.Component(`datawatch`)
	}
}

// Add watches the directory holding p, the file itself need not exist yet.
// Files are watched through their directory so atomic replacements are seen.
func (w *Watcher) Add(p string, reload ReloadFunc) (err error) {
	if reload == nil {
		return ErrNilReload
	}
	if p, err = filepath.Abs(p); err != nil {
		return
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.watcher == nil {
		return ErrNotReady
	}
	dir := filepath.Dir(p)
	if !w.dirs[dir] {
		if err = w.watcher.Add(dir); err != nil {
			return
		}
		w.dirs[dir] = true
	}
	w.files[p] = reload
	return
}

func (w *Watcher) Start() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.watcher == nil {
		return ErrNotReady
	} else if w.routineRet != nil {
		return ErrAlreadyStarted
	} else if len(w.files) == 0 {
		return ErrNoFilesWatched
	}
	w.routineRet = make(chan error, 1)
	go w.routine(w.watcher.Events, w.watcher.Errors, w.routineRet)
	return nil
}

func (w *Watcher) Close() (err error) {
	var retCh chan error
	w.mtx.Lock()
	if w.watcher == nil {
		w.mtx.Unlock()
		return
	}
	err = w.watcher.Close()
	w.watcher = nil
	retCh = w.routineRet
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mtx.Unlock()
	if retCh != nil {
		if rerr := <-retCh; err == nil {
			err = rerr
		}
	}
	return
}

func (w *Watcher) routine(evts chan fsnotify.Event, errs chan error, errch chan error) {
	var err error
watchRoutine:
	for {
		select {
		case lerr, ok := <-errs:
			if !ok {
				break watchRoutine
			}
			w.lgr().Error("filesystem notification error", log.KVErr(lerr))
		case evt, ok := <-evts:
			if !ok {
				break watchRoutine
			}
			if evt.Op&triggerOps != 0 {
				w.trigger(filepath.Clean(evt.Name))
			}
		}
	}
	errch <- err
}

// trigger schedules a reload, repeated events push the reload back.
func (w *Watcher) trigger(p string) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if _, ok := w.files[p]; !ok || w.watcher == nil {
		return
	}
	if t, ok := w.pending[p]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[p] = time.AfterFunc(w.debounce, func() {
		w.fire(p)
	})
}

func (w *Watcher) fire(p string) {
	w.mtx.Lock()
	delete(w.pending, p)
	reload, ok := w.files[p]
	lgr := w.logger
	closed := w.watcher == nil
	w.mtx.Unlock()
	if !ok || closed {
		return
	}
	if err := reload(p); err != nil {
		lgr.Error("failed to reload data file, keeping previous data", log.KV("path", p), log.KVErr(err))
	} else {
		lgr.Info("reloaded data file", log.KV("path", p))
	}
}

func (w *Watcher) lgr() *log.Logger {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.logger
}
