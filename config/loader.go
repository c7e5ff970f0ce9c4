/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gravwell/gcfg"
)

const (
	kb = 1024
	mb = 1024 * kb

	maxConfigSize int64  = 4 * mb
	confExt       string = `.conf`
)

var (
	ErrConfigFileTooLarge = errors.New("Config file is too large")
	ErrIsNotDirectory     = errors.New("path is not a directory")
)

// LoadConfigFile reads the INI file at p into v.
func LoadConfigFile(v interface{}, p string) error {
	fin, err := os.Open(p)
	if err != nil {
		return err
	}
	defer fin.Close()
	b, err := io.ReadAll(io.LimitReader(fin, maxConfigSize+1))
	if err != nil {
		return err
	}
	if err = LoadConfigBytes(v, b); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	return nil
}

// LoadConfigOverlays applies every .conf file in dir on top of v in name
// order. A missing directory is not an error.
func LoadConfigOverlays(v interface{}, dir string) error {
	if dir == `` {
		return nil
	}
	if fi, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	} else if !fi.IsDir() {
		return ErrIsNotDirectory
	}
	matches, err := filepath.Glob(filepath.Join(dir, `*`+confExt))
	if err != nil {
		return err
	}
	for _, p := range matches {
		if fi, err := os.Stat(p); err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if err = LoadConfigFile(v, p); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfigBytes parses an INI buffer into v, unknown sections and keys are errors.
func LoadConfigBytes(v interface{}, b []byte) error {
	if int64(len(b)) > maxConfigSize {
		return ErrConfigFileTooLarge
	}
	return gcfg.ReadStringInto(v, string(b))
}
