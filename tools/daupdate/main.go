/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// daupdate keeps the DeviceAtlas data file current, either once or as a
// long running service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gravwell/deviceatlas/config"
	"github.com/gravwell/deviceatlas/debug"
	"github.com/gravwell/deviceatlas/device"
	"github.com/gravwell/deviceatlas/log"
	"github.com/gravwell/deviceatlas/updater"
	"github.com/gravwell/deviceatlas/version"
)

const (
	defaultConfigLoc  = `/opt/gravwell/etc/deviceatlas.conf`
	defaultConfigDLoc = `/opt/gravwell/etc/deviceatlas.conf.d`
	appName           = `daupdate`
)

var (
	confLoc  = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	confdLoc = flag.String("config-overlays", defaultConfigDLoc, "Location for configuration overlay files")
	once     = flag.Bool("once", false, "Run a single update and exit")
	force    = flag.Bool("force", false, "With -once, update even if the interval has not elapsed")
	stderr   = flag.Bool("stderr", false, "Log to stderr")
	ver      = flag.Bool("version", false, "Print the version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		log.PrintOSInfo(os.Stdout)
		os.Exit(0)
	}
	cfg, err := config.GetConfig(*confLoc, *confdLoc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", *confLoc, err)
		os.Exit(-1)
	}
	var lg *log.Logger
	if *stderr {
		lg = log.New(os.Stderr)
		err = lg.SetLevelString(cfg.Global.Log_Level)
	} else {
		lg, err = cfg.GetLogger()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open logger: %v\n", err)
		os.Exit(-1)
	}
	lg.SetAppname(appName)
	defer lg.Close()

	if !cfg.DeviceAtlas.Enable_Daily_Update && !*once {
		lg.FatalCode(0, "daily updates are disabled")
	}
	ucfg, err := updater.FromConfig(cfg)
	if err != nil {
		lg.FatalCode(-1, "invalid updater configuration", log.KVErr(err))
	}
	ucfg.OnInstall = func(p string) error {
		//make sure the installed file loads with the configured options
		api := device.NewApi(cfg.DeviceConfig())
		if err := api.LoadDataFromFile(p); err != nil {
			return err
		}
		version.PrintDataVersion(os.Stdout, api)
		return nil
	}
	u, err := updater.New(ucfg, lg)
	if err != nil {
		lg.FatalCode(-1, "failed to create updater", log.KVErr(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		if !*force && !u.Due(time.Now()) {
			lg.Info("data file is current, skipping update", log.KV("path", ucfg.Destination))
			return
		}
		if err = u.Update(ctx); err != nil {
			lg.FatalCode(-1, "update failed", log.KVErr(err))
		}
		return
	}
	go debug.HandleDebugSignals(ctx, appName, lg)
	lg.Info("updater started", log.KV("interval", u.Interval.String()), log.KV("path", u.Destination))
	if err = u.Run(ctx); err != nil {
		lg.Error("updater exited", log.KVErr(err))
	}
}
