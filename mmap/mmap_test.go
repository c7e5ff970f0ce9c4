/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mmap

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"
)

var testDir string

func TestMain(m *testing.M) {
	var err error
	if testDir, err = os.MkdirTemp(os.TempDir(), "mmap"); err != nil {
		log.Fatal("Failed to create temp dir", err)
	}

	r := m.Run()
	if err = os.RemoveAll(testDir); err != nil {
		log.Fatal("Failed to clean up", err)
	}
	os.Exit(r)
}

func TestMapFile(t *testing.T) {
	p := filepath.Join(testDir, `data`)
	content := bytes.Repeat([]byte("DA\x01"), 5000)
	if err := os.WriteFile(p, content, 0640); err != nil {
		t.Fatal(err)
	}
	fm, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Size() != int64(len(content)) {
		t.Fatal("bad size", fm.Size())
	}
	if err = fm.Advise(AccessSequential); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fm.Buff, content) {
		t.Fatal("mapped content mismatch")
	}
	if err = fm.Close(); err != nil {
		t.Fatal(err)
	}
	if err = fm.Close(); err != ErrMapClosed {
		t.Fatal("double close not caught", err)
	}
	if err = fm.Advise(AccessNormal); err != ErrMapClosed {
		t.Fatal("advise on closed map", err)
	}
}

func TestEmptyFile(t *testing.T) {
	p := filepath.Join(testDir, `empty`)
	if err := os.WriteFile(p, nil, 0640); err != nil {
		t.Fatal(err)
	}
	fm, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Size() != 0 {
		t.Fatal("bad size", fm.Size())
	}
	if err = fm.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(testDir, `nope`)); err == nil {
		t.Fatal("opened a missing file")
	}
	if _, err := MapFile(nil); err != ErrInvalidFileHandle {
		t.Fatal("nil file not caught", err)
	}
}
