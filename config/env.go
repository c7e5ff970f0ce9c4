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
	"os"
	"strings"
)

const (
	envLogLevel    = `DEVICEATLAS_LOG_LEVEL`
	envDownloadURL = `DEVICEATLAS_DOWNLOAD_URL`
	envDataFile    = `DEVICEATLAS_JSON_DATA_FILE`

	// a variable named with this suffix holds the path of a file with the value
	envFileSuffix = `_FILE`
)

var ErrEmptyEnvFile = errors.New("Environment secret file is empty")

// envOverride fills target from the environment when the config left it empty.
type envOverride struct {
	name   string
	target *string
	def    string
}

func (c *Config) envOverrides() []envOverride {
	return []envOverride{
		{name: envLogLevel, target: &c.Global.Log_Level, def: defaultLogLevel},
		{name: envDownloadURL, target: &c.DeviceAtlas.Download_URL},
		{name: envDataFile, target: &c.DeviceAtlas.JSON_Data_File_Path},
	}
}

func applyEnv(overrides []envOverride) error {
	for _, o := range overrides {
		if *o.target != `` {
			continue
		}
		v, ok, err := lookupEnv(o.name)
		if err != nil {
			return fmt.Errorf("%s %w", o.name, err)
		} else if ok {
			*o.target = v
		} else {
			*o.target = o.def
		}
	}
	return nil
}

// lookupEnv checks name and then name_FILE, only the first line of the
// file is used so licence keys can live in a secrets mount.
func lookupEnv(name string) (v string, ok bool, err error) {
	if v, ok = os.LookupEnv(name); ok {
		return
	}
	var p string
	if p, ok = os.LookupEnv(name + envFileSuffix); !ok {
		return
	}
	var b []byte
	if b, err = os.ReadFile(p); err != nil {
		return
	}
	v, _, _ = strings.Cut(string(b), "\n")
	if v = strings.TrimRight(v, "\r"); v == `` {
		err = ErrEmptyEnvFile
	}
	return
}
