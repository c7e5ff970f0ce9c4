/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the INI style configuration shared by the
// deviceatlas tools.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gravwell/deviceatlas/device"
	"github.com/gravwell/deviceatlas/log"
	"github.com/inhies/go-bytesize"
)

const (
	defaultLogLevel        = `INFO`
	defaultUpdateInterval  = 24 * time.Hour
	defaultMaxDownloadSize = 256 * mb
	defaultWorkers         = 4

	defaultUserAgentField = `useragent`

	schemeHTTP  = `http`
	schemeHTTPS = `https`
	schemeS3    = `s3`
)

var (
	ErrInvalidLogLevel     = errors.New("Invalid Log Level")
	ErrNoDownloadURL       = errors.New("Daily updates require a Download-URL")
	ErrNoDataFilePath      = errors.New("JSON-Data-File-Path is required")
	ErrBadDownloadScheme   = errors.New("Download-URL must be http, https, or s3")
	ErrUpdateIntervalShort = errors.New("Update-Interval must be at least 24h")
	ErrInvalidWorkerCount  = errors.New("Workers must be greater than zero")
)

type GlobalConfig struct {
	Log_Level  string
	Log_File   string
	State_File string
}

type DeviceAtlasConfig struct {
	Download_URL                   string
	JSON_Data_File_Path            string
	Carrier_Data_File_Path         string
	Enable_Daily_Update            bool
	Update_Interval                string
	Max_Download_Size              string
	Include_UA_Props               bool
	Include_Lang_Props             bool
	Include_Match_Info             bool
	Return_None_When_No_Properties bool
	Cookie_Name                    string
	Watch_Data_Files               bool
}

type EnrichConfig struct {
	User_Agent_Field   string
	Headers_Field      string
	Client_Props_Field string
	IP_Field           string
	Property           []string
	Property_Filter    []string
	Workers            int
}

type Config struct {
	Global      GlobalConfig
	DeviceAtlas DeviceAtlasConfig
	Enrich      EnrichConfig
}

// Default returns a config with every default filled in, loading a file
// over it only replaces the keys present in the file.
func Default() Config {
	return Config{
		DeviceAtlas: DeviceAtlasConfig{
			Include_UA_Props:   true,
			Include_Lang_Props: true,
			Cookie_Name:        device.DefaultCookieName,
		},
		Enrich: EnrichConfig{
			User_Agent_Field: defaultUserAgentField,
			Workers:          defaultWorkers,
		},
	}
}

// GetConfig loads the config file at path plus any overlays in overlayDir and verifies it.
func GetConfig(path, overlayDir string) (*Config, error) {
	c := Default()
	if err := LoadConfigFile(&c, path); err != nil {
		return nil, err
	} else if err = LoadConfigOverlays(&c, overlayDir); err != nil {
		return nil, err
	} else if err = c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseConfig is GetConfig over an in-memory buffer.
func ParseConfig(b []byte) (*Config, error) {
	c := Default()
	if err := LoadConfigBytes(&c, b); err != nil {
		return nil, err
	} else if err = c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) loadDefaults() error {
	if err := applyEnv(c.envOverrides()); err != nil {
		return err
	}
	if c.DeviceAtlas.Cookie_Name == `` {
		c.DeviceAtlas.Cookie_Name = device.DefaultCookieName
	}
	if c.Enrich.User_Agent_Field == `` {
		c.Enrich.User_Agent_Field = defaultUserAgentField
	}
	if c.Enrich.Workers == 0 {
		c.Enrich.Workers = defaultWorkers
	}
	return nil
}

// Verify fills in defaults and makes sure values are sensible.
func (c *Config) Verify() (err error) {
	if err = c.loadDefaults(); err != nil {
		return
	}
	c.Global.Log_Level = strings.ToUpper(strings.TrimSpace(c.Global.Log_Level))
	if _, err = log.LevelFromString(c.Global.Log_Level); err != nil {
		return ErrInvalidLogLevel
	}
	if c.DeviceAtlas.JSON_Data_File_Path == `` {
		return ErrNoDataFilePath
	}
	if _, err = c.UpdateInterval(); err != nil {
		return
	} else if _, err = c.MaxDownloadSize(); err != nil {
		return
	}
	if c.DeviceAtlas.Enable_Daily_Update {
		if c.DeviceAtlas.Download_URL == `` {
			return ErrNoDownloadURL
		} else if _, err = c.DownloadURL(); err != nil {
			return
		}
	}
	if c.Enrich.Workers < 0 {
		return ErrInvalidWorkerCount
	}
	return
}

// UpdateInterval is the time between daily downloads, it is never less than 24h.
func (c *Config) UpdateInterval() (d time.Duration, err error) {
	s := strings.TrimSpace(c.DeviceAtlas.Update_Interval)
	if s == `` {
		d = defaultUpdateInterval
		return
	}
	if d, err = time.ParseDuration(s); err != nil {
		err = fmt.Errorf("invalid Update-Interval %q %w", s, err)
	} else if d < defaultUpdateInterval {
		err = ErrUpdateIntervalShort
	}
	return
}

// MaxDownloadSize is the largest payload the updater will accept, in bytes.
func (c *Config) MaxDownloadSize() (sz int64, err error) {
	s := strings.TrimSpace(c.DeviceAtlas.Max_Download_Size)
	if s == `` {
		sz = defaultMaxDownloadSize
		return
	}
	var bs bytesize.ByteSize
	if bs, err = bytesize.Parse(s); err != nil {
		err = fmt.Errorf("invalid Max-Download-Size %q %w", s, err)
	} else if sz = int64(bs); sz <= 0 {
		err = fmt.Errorf("invalid Max-Download-Size %q", s)
	}
	return
}

func (c *Config) DownloadURL() (u *url.URL, err error) {
	if u, err = url.Parse(c.DeviceAtlas.Download_URL); err != nil {
		return
	}
	switch strings.ToLower(u.Scheme) {
	case schemeHTTP, schemeHTTPS, schemeS3:
	default:
		err = ErrBadDownloadScheme
	}
	return
}

// DeviceConfig translates the [DeviceAtlas] section into engine options.
func (c *Config) DeviceConfig() device.Config {
	return device.Config{
		IncludeUaProps:             c.DeviceAtlas.Include_UA_Props,
		IncludeLangProps:           c.DeviceAtlas.Include_Lang_Props,
		IncludeMatchInfo:           c.DeviceAtlas.Include_Match_Info,
		CookieName:                 c.DeviceAtlas.Cookie_Name,
		ReturnNoneWhenNoProperties: c.DeviceAtlas.Return_None_When_No_Properties,
	}
}

// GetLogger opens the configured log file, no file means a discard logger.
func (c *Config) GetLogger() (l *log.Logger, err error) {
	var ll log.Level
	if ll, err = log.LevelFromString(c.Global.Log_Level); err != nil {
		return
	}
	if c.Global.Log_File == `` {
		l = log.NewDiscardLogger()
	} else {
		l, err = log.NewFile(c.Global.Log_File)
	}
	if err == nil {
		err = l.SetLevel(ll)
	}
	return
}
