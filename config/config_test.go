/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gravwell/deviceatlas/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tempDir string

func TestMain(m *testing.M) {
	var err error
	if tempDir, err = os.MkdirTemp(os.TempDir(), `config`); err != nil {
		fmt.Println("Failed to make tempdir", err)
		os.Exit(-1)
	}
	r := m.Run()
	if err = os.RemoveAll(tempDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to remove tempdir: %v\n", err)
		os.Exit(-1)
	}
	os.Exit(r)
}

const fullConfig = `
[Global]
Log-Level=debug
Log-File=/tmp/deviceatlas.log
State-File=/tmp/deviceatlas.state

[DeviceAtlas]
Download-URL="https://example.com/data/deviceatlas.json.gz?licencekey=abc"
JSON-Data-File-Path=/opt/deviceatlas/deviceatlas.json
Carrier-Data-File-Path=/opt/deviceatlas/carrier.dat
Enable-Daily-Update=true
Update-Interval=48h
Max-Download-Size=64MB
Include-UA-Props=false
Include-Match-Info=true
Return-None-When-No-Properties=true
Cookie-Name=MYPROPS
Watch-Data-Files=true

[Enrich]
User-Agent-Field=ua
Headers-Field=headers
Client-Props-Field=cookie
IP-Field=src
Property=vendor
Property=model
Property-Filter=os*
Workers=2
`

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(fullConfig))
	require.NoError(t, err)
	assert.Equal(t, `DEBUG`, c.Global.Log_Level)
	assert.Equal(t, `/tmp/deviceatlas.state`, c.Global.State_File)
	assert.True(t, c.DeviceAtlas.Enable_Daily_Update)
	assert.True(t, c.DeviceAtlas.Watch_Data_Files)
	assert.Equal(t, `/opt/deviceatlas/carrier.dat`, c.DeviceAtlas.Carrier_Data_File_Path)

	d, err := c.UpdateInterval()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)
	sz, err := c.MaxDownloadSize()
	require.NoError(t, err)
	assert.Equal(t, int64(64*mb), sz)
	u, err := c.DownloadURL()
	require.NoError(t, err)
	assert.Equal(t, `example.com`, u.Host)

	assert.Equal(t, device.Config{
		IncludeUaProps:             false,
		IncludeLangProps:           true,
		IncludeMatchInfo:           true,
		CookieName:                 `MYPROPS`,
		ReturnNoneWhenNoProperties: true,
	}, c.DeviceConfig())

	assert.Equal(t, `ua`, c.Enrich.User_Agent_Field)
	assert.Equal(t, []string{`vendor`, `model`}, c.Enrich.Property)
	assert.Equal(t, []string{`os*`}, c.Enrich.Property_Filter)
	assert.Equal(t, 2, c.Enrich.Workers)
}

func TestDefaults(t *testing.T) {
	c, err := ParseConfig([]byte("[DeviceAtlas]\nJSON-Data-File-Path=/tmp/x.json\n"))
	require.NoError(t, err)
	assert.Equal(t, `INFO`, c.Global.Log_Level)
	assert.Equal(t, device.DefaultConfig(), c.DeviceConfig())
	assert.Equal(t, defaultUserAgentField, c.Enrich.User_Agent_Field)
	assert.Equal(t, defaultWorkers, c.Enrich.Workers)
	d, err := c.UpdateInterval()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
	sz, err := c.MaxDownloadSize()
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxDownloadSize), sz)

	l, err := c.GetLogger()
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestVerifyFailures(t *testing.T) {
	base := "[DeviceAtlas]\nJSON-Data-File-Path=/tmp/x.json\n"
	tests := []struct {
		cfg string
		err error
	}{
		{"[Global]\nLog-Level=LOUD\n" + base, ErrInvalidLogLevel},
		{"[DeviceAtlas]\nEnable-Daily-Update=false\n", ErrNoDataFilePath},
		{base + "Enable-Daily-Update=true\n", ErrNoDownloadURL},
		{base + "Enable-Daily-Update=true\nDownload-URL=ftp://example.com/x\n", ErrBadDownloadScheme},
		{base + "Update-Interval=1h\n", ErrUpdateIntervalShort},
		{base + "[Enrich]\nWorkers=-1\n", ErrInvalidWorkerCount},
	}
	for _, tc := range tests {
		_, err := ParseConfig([]byte(tc.cfg))
		assert.ErrorIs(t, err, tc.err, tc.cfg)
	}
	_, err := ParseConfig([]byte(base + "Max-Download-Size=lots\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte(base + "Update-Interval=soon\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte(base + "Bogus-Key=1\n"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(envLogLevel, `WARN`)
	p := filepath.Join(tempDir, `url`)
	require.NoError(t, os.WriteFile(p, []byte("s3://bucket/deviceatlas.json.gz\n"), 0600))
	t.Setenv(envDownloadURL+`_FILE`, p)
	c, err := ParseConfig([]byte("[DeviceAtlas]\nJSON-Data-File-Path=/tmp/x.json\nEnable-Daily-Update=true\n"))
	require.NoError(t, err)
	assert.Equal(t, `WARN`, c.Global.Log_Level)
	assert.Equal(t, `s3://bucket/deviceatlas.json.gz`, c.DeviceAtlas.Download_URL)
}

func TestLoadFileAndOverlays(t *testing.T) {
	p := filepath.Join(tempDir, `deviceatlas.conf`)
	require.NoError(t, os.WriteFile(p, []byte(fullConfig), 0640))
	od := filepath.Join(tempDir, `deviceatlas.conf.d`)
	require.NoError(t, os.MkdirAll(od, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(od, `workers.conf`), []byte("[Enrich]\nWorkers=9\n"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(od, `ignored.txt`), []byte("garbage"), 0640))

	c, err := GetConfig(p, od)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Enrich.Workers)
	assert.Equal(t, `MYPROPS`, c.DeviceAtlas.Cookie_Name)

	//a missing overlay directory is fine, a file is not
	_, err = GetConfig(p, filepath.Join(tempDir, `nope`))
	assert.NoError(t, err)
	_, err = GetConfig(p, p)
	assert.ErrorIs(t, err, ErrIsNotDirectory)

	_, err = GetConfig(filepath.Join(tempDir, `missing.conf`), ``)
	assert.Error(t, err)
}

func TestConfigTooLarge(t *testing.T) {
	var c Config
	assert.ErrorIs(t, LoadConfigBytes(&c, make([]byte, maxConfigSize+1)), ErrConfigFileTooLarge)
}

func TestEnvDataFile(t *testing.T) {
	t.Setenv(envDataFile, `/srv/da/deviceatlas.json`)
	c, err := ParseConfig([]byte("[Global]\nLog-Level=ERROR\n"))
	require.NoError(t, err)
	assert.Equal(t, `/srv/da/deviceatlas.json`, c.DeviceAtlas.JSON_Data_File_Path)
	assert.Equal(t, `ERROR`, c.Global.Log_Level)

	//the config file wins over the environment
	c, err = ParseConfig([]byte("[DeviceAtlas]\nJSON-Data-File-Path=/tmp/x.json\n"))
	require.NoError(t, err)
	assert.Equal(t, `/tmp/x.json`, c.DeviceAtlas.JSON_Data_File_Path)
}

func TestEmptyEnvFile(t *testing.T) {
	p := filepath.Join(tempDir, `empty`)
	require.NoError(t, os.WriteFile(p, nil, 0600))
	t.Setenv(envDownloadURL+envFileSuffix, p)
	_, err := ParseConfig([]byte("[DeviceAtlas]\nJSON-Data-File-Path=/tmp/x.json\n"))
	assert.ErrorIs(t, err, ErrEmptyEnvFile)
}
