/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package updater keeps the DeviceAtlas JSON data file current by
// downloading it on an interval and atomically replacing the local copy.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dchest/safefile"
	"github.com/gofrs/flock"
	"github.com/google/renameio"
	"github.com/gravwell/deviceatlas/config"
	"github.com/gravwell/deviceatlas/device"
	"github.com/gravwell/deviceatlas/log"
	ft "github.com/h2non/filetype"
	"github.com/klauspost/compress/gzip"
)

const (
	StateFileName = `last_device_atlas_db_download`

	defaultInterval     = 24 * time.Hour
	defaultMaxSize      = 256 * 1024 * 1024
	defaultTimeout      = 10 * time.Minute
	defaultCheckPeriod  = time.Hour
	lockRetry           = 250 * time.Millisecond
	sniffLen            = 262
	statePerm           = 0640
	dataPerm            = 0640
	lockSuffix          = `.lock`
	stateTimeFormat     = time.RFC3339
	minimumUpdatePeriod = 24 * time.Hour
)

var (
	ErrNoURL            = errors.New("no download URL")
	ErrNoDestination    = errors.New("no data file path")
	ErrDownloadTooLarge = errors.New("download exceeds the maximum size")
	ErrEmptyDownload    = errors.New("download is empty")
	ErrBadStatus        = errors.New("bad HTTP status")
	ErrUnsupportedURL   = errors.New("unsupported download URL scheme")
	ErrLocked           = errors.New("another update is in progress")
)

// Config drives an Updater, zero values get defaults.
type Config struct {
	URL         string
	Destination string
	StateFile   string
	Interval    time.Duration
	MaxSize     int64
	Timeout     time.Duration
	CheckPeriod time.Duration

	// HTTPClient is used for http and https URLs.
	HTTPClient *http.Client
	// S3 fetches s3:// URLs, nil builds a client from the default AWS credential chain.
	S3 ObjectGetter
	// OnInstall is called with the destination path after every successful install.
	OnInstall func(path string) error
}

type Updater struct {
	Config
	Logger *log.Logger
}

// FromConfig builds updater settings from the [Global] and [DeviceAtlas] sections.
func FromConfig(c *config.Config) (cfg Config, err error) {
	if cfg.Interval, err = c.UpdateInterval(); err != nil {
		return
	} else if cfg.MaxSize, err = c.MaxDownloadSize(); err != nil {
		return
	}
	cfg.URL = c.DeviceAtlas.Download_URL
	cfg.Destination = c.DeviceAtlas.JSON_Data_File_Path
	cfg.StateFile = c.Global.State_File
	return
}

func New(cfg Config, lgr *log.Logger) (u *Updater, err error) {
	if cfg.URL == `` {
		err = ErrNoURL
		return
	} else if cfg.Destination == `` {
		err = ErrNoDestination
		return
	}
	if cfg.Interval < minimumUpdatePeriod {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CheckPeriod <= 0 {
		cfg.CheckPeriod = defaultCheckPeriod
	}
	if cfg.StateFile == `` {
		cfg.StateFile = filepath.Join(filepath.Dir(cfg.Destination), StateFileName)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if lgr == nil {
		lgr = log.NewDiscardLogger()
	}
	u = &Updater{
		Config: cfg,
		Logger: lgr.Component(`updater`),
	}
	return
}

// LastDownload reads the state file, the zero time means no download has happened.
func (u *Updater) LastDownload() (t time.Time, err error) {
	var b []byte
	if b, err = os.ReadFile(u.StateFile); err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	if t, err = time.Parse(stateTimeFormat, strings.TrimSpace(string(b))); err != nil {
		err = fmt.Errorf("invalid state file %s %w", u.StateFile, err)
	}
	return
}

// Due reports whether an update should run at now. A missing data file or
// an unreadable state file always means an update is due.
func (u *Updater) Due(now time.Time) bool {
	if _, err := os.Stat(u.Destination); err != nil {
		return true
	}
	last, err := u.LastDownload()
	if err != nil {
		u.Logger.Warn("failed to read update state", log.KV("path", u.StateFile), log.KVErr(err))
		return true
	} else if last.IsZero() {
		return true
	}
	return now.Sub(last) >= u.Interval
}

// Update downloads, validates and installs the data file. The previous file
// is left in place on any failure.
func (u *Updater) Update(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, u.Timeout)
	defer cancel()

	lck := flock.New(u.Destination + lockSuffix)
	var ok bool
	if ok, err = lck.TryLockContext(ctx, lockRetry); err != nil {
		return
	} else if !ok {
		return ErrLocked
	}
	defer lck.Unlock()

	start := time.Now()
	var b []byte
	if b, err = u.download(ctx); err != nil {
		u.Logger.Error("failed to download data file", log.KV("url", redact(u.URL)), log.KVErr(err))
		return
	}
	if b, err = u.decode(b); err != nil {
		u.Logger.Error("failed to decode data file", log.KV("url", redact(u.URL)), log.KVErr(err))
		return
	}
	if err = validate(b); err != nil {
		u.Logger.Error("downloaded data file is invalid", log.KV("url", redact(u.URL)), log.KVErr(err))
		return
	}
	if err = install(u.Destination, b); err != nil {
		u.Logger.Error("failed to install data file", log.KV("path", u.Destination), log.KVErr(err))
		return
	}
	if err = u.writeState(time.Now()); err != nil {
		u.Logger.Error("failed to write update state", log.KV("path", u.StateFile), log.KVErr(err))
		return
	}
	u.Logger.Info("installed data file",
		log.KV("path", u.Destination),
		log.KVSize("size", int64(len(b))),
		log.KVDuration("duration", time.Since(start)))
	if u.OnInstall != nil {
		if err = u.OnInstall(u.Destination); err != nil {
			u.Logger.Error("install hook failed", log.KV("path", u.Destination), log.KVErr(err))
		}
	}
	return
}

// Run updates whenever an update is due until the context is cancelled.
func (u *Updater) Run(ctx context.Context) error {
	tckr := time.NewTicker(u.CheckPeriod)
	defer tckr.Stop()
	for {
		if u.Due(time.Now()) {
			if err := u.Update(ctx); err != nil && ctx.Err() == nil {
				u.Logger.Warn("update failed, will retry", log.KV("retry", u.CheckPeriod.String()), log.KVErr(err))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tckr.C:
		}
	}
}

func (u *Updater) download(ctx context.Context) (b []byte, err error) {
	var uri *url.URL
	if uri, err = url.Parse(u.URL); err != nil {
		return
	}
	var rc io.ReadCloser
	switch strings.ToLower(uri.Scheme) {
	case `http`, `https`:
		rc, err = u.fetchHTTP(ctx, uri)
	case `s3`:
		rc, err = u.fetchS3(ctx, uri)
	default:
		err = ErrUnsupportedURL
	}
	if err != nil {
		return
	}
	b, err = readLimited(rc, u.MaxSize)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	return
}

func (u *Updater) fetchHTTP(ctx context.Context, uri *url.URL) (rc io.ReadCloser, err error) {
	var req *http.Request
	if req, err = http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil); err != nil {
		return
	}
	var resp *http.Response
	if resp, err = u.HTTPClient.Do(req); err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err = fmt.Errorf("%w %d", ErrBadStatus, resp.StatusCode)
		return
	}
	if resp.ContentLength > u.MaxSize {
		resp.Body.Close()
		err = ErrDownloadTooLarge
		return
	}
	rc = resp.Body
	return
}

// decode hands back the JSON payload, gzip is detected from the content
// rather than the URL since the download service does not always name it.
func (u *Updater) decode(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrEmptyDownload
	}
	hdr := b
	if len(hdr) > sniffLen {
		hdr = hdr[:sniffLen]
	}
	tp, err := ft.Match(hdr)
	if err != nil {
		return nil, err
	}
	if tp.MIME.Subtype != `gzip` {
		return b, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	if b, err = readLimited(gz, u.MaxSize); err == nil && len(b) == 0 {
		err = ErrEmptyDownload
	}
	return b, err
}

func (u *Updater) writeState(t time.Time) error {
	return safefile.WriteFile(u.StateFile, []byte(t.UTC().Format(stateTimeFormat)+"\n"), statePerm)
}

func readLimited(r io.Reader, max int64) (b []byte, err error) {
	if b, err = io.ReadAll(io.LimitReader(r, max+1)); err == nil && int64(len(b)) > max {
		b = nil
		err = ErrDownloadTooLarge
	}
	return
}

// validate makes sure the payload loads before it replaces a good file.
func validate(b []byte) error {
	return device.NewApi(device.DefaultConfig()).LoadDataFromBytes(b)
}

func install(dst string, b []byte) (err error) {
	var pf *renameio.PendingFile
	if pf, err = renameio.TempFile(``, dst); err != nil {
		return
	}
	defer pf.Cleanup()
	if _, err = pf.Write(b); err != nil {
		return
	} else if err = pf.Chmod(dataPerm); err != nil {
		return
	}
	err = pf.CloseAtomicallyReplace()
	return
}

// redact drops the query string, download URLs carry the licence key there.
func redact(s string) string {
	uri, err := url.Parse(s)
	if err != nil {
		return ``
	}
	uri.RawQuery = ``
	uri.User = nil
	return uri.String()
}
