/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package debug traps SIGUSR1 in the long running tools and dumps a stack
// trace plus heap and CPU profiles into a temporary directory.
package debug

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/gravwell/deviceatlas/log"
)

const (
	cpuSample    = 10 * time.Second
	maxStackSize = 256 * 1024 * 1024

	stackFile = `stack`
	memFile   = `mem.prof`
	cpuFile   = `cpu.prof`
)

// HandleDebugSignals dumps debug files on every SIGUSR1 until ctx is done.
// Each dump goes to a new directory under the system temp dir prefixed with name.
func HandleDebugSignals(ctx context.Context, name string, lgr *log.Logger) {
	if lgr == nil {
		lgr = log.NewDiscardLogger()
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGUSR1)
	defer signal.Stop(c)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c:
		}
		dir, err := os.MkdirTemp(``, name)
		if err != nil {
			lgr.Error("failed to create debug directory", log.KVErr(err))
			continue
		}
		if err = DumpDebugFiles(dir, cpuSample); err != nil {
			lgr.Error("failed to write debug files", log.KV("path", dir), log.KVErr(err))
		} else {
			lgr.Info("wrote debug files", log.KV("path", dir))
		}
	}
}

// DumpDebugFiles writes the stack, heap profile and a CPU profile sampled
// for cpuDur into dir. A zero cpuDur skips the CPU profile.
func DumpDebugFiles(dir string, cpuDur time.Duration) (err error) {
	if err = writeStackTrace(filepath.Join(dir, stackFile)); err != nil {
		return
	} else if err = writeMemoryProfile(filepath.Join(dir, memFile)); err != nil {
		return
	}
	if cpuDur > 0 {
		err = writeCPUProfile(filepath.Join(dir, cpuFile), cpuDur)
	}
	return
}

func writeStackTrace(p string) error {
	// grow the buffer until the whole trace fits
	size := 1024 * 1024
	var buf []byte
	var n int
	for {
		buf = make([]byte, size)
		if n = runtime.Stack(buf, true); n < size {
			break
		}
		if size *= 2; size >= maxStackSize {
			break
		}
	}
	return os.WriteFile(p, buf[:n], 0600)
}

func writeMemoryProfile(p string) error {
	bb := bytes.NewBuffer(nil)
	runtime.GC()
	if err := pprof.WriteHeapProfile(bb); err != nil {
		return err
	}
	return os.WriteFile(p, bb.Bytes(), 0600)
}

func writeCPUProfile(p string, d time.Duration) error {
	bb := bytes.NewBuffer(nil)
	if err := pprof.StartCPUProfile(bb); err != nil {
		return err
	}
	time.Sleep(d)
	pprof.StopCPUProfile()
	return os.WriteFile(p, bb.Bytes(), 0600)
}
