/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// dalookup reads JSON events or raw user agents from stdin and writes the
// events back out with device properties attached.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/gravwell/deviceatlas/config"
	"github.com/gravwell/deviceatlas/datawatch"
	"github.com/gravwell/deviceatlas/debug"
	"github.com/gravwell/deviceatlas/device"
	"github.com/gravwell/deviceatlas/enrich"
	"github.com/gravwell/deviceatlas/log"
	"github.com/gravwell/deviceatlas/version"
)

const (
	defaultConfigLoc   = `/opt/gravwell/etc/deviceatlas.conf`
	defaultConfigDLoc  = `/opt/gravwell/etc/deviceatlas.conf.d`
	appName            = `dalookup`
	maxLineSize        = 4 * 1024 * 1024
	defaultBatchSize   = 256
	stderrLogOverrideV = `stderr`
)

var (
	confLoc     = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	confdLoc    = flag.String("config-overlays", defaultConfigDLoc, "Location for configuration overlay files")
	rawUA       = flag.Bool("ua", false, "Treat each input line as a raw user agent")
	watch       = flag.Bool("watch", false, "Reload data files when they change")
	batchSize   = flag.Int("batch", defaultBatchSize, "Number of events enriched concurrently")
	logOverride = flag.String("log", ``, "Log destination override, use stderr to log to the terminal")
	ver         = flag.Bool("version", false, "Print the version information and exit")
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
	lg, err := getLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open logger: %v\n", err)
		os.Exit(-1)
	}
	lg.SetAppname(appName)
	defer lg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go debug.HandleDebugSignals(ctx, appName, lg)

	api := device.NewApi(cfg.DeviceConfig())
	api.SetLogger(lg)
	if err = api.LoadDataFromFile(cfg.DeviceAtlas.JSON_Data_File_Path); err != nil {
		lg.FatalCode(-1, "failed to load data file", log.KV("path", cfg.DeviceAtlas.JSON_Data_File_Path), log.KVErr(err))
	}
	if p := cfg.DeviceAtlas.Carrier_Data_File_Path; p != `` {
		if err = api.LoadCarrierFromFile(p); err != nil {
			lg.FatalCode(-1, "failed to load carrier file", log.KV("path", p), log.KVErr(err))
		}
	}
	if *watch || cfg.DeviceAtlas.Watch_Data_Files {
		w, err := startWatcher(cfg, api, lg)
		if err != nil {
			lg.FatalCode(-1, "failed to start data file watcher", log.KVErr(err))
		}
		defer w.Close()
	}

	ecfg := enrich.FromConfig(cfg)
	enr, err := enrich.New(api, ecfg, lg)
	if err != nil {
		lg.FatalCode(-1, "failed to create enricher", log.KVErr(err))
	}
	if err = run(ctx, enr, ecfg.UserAgentField, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		lg.FatalCode(-1, "failed to process input", log.KVErr(err))
	}
}

func getLogger(cfg *config.Config) (lg *log.Logger, err error) {
	if *logOverride != stderrLogOverrideV {
		return cfg.GetLogger()
	}
	lg = log.New(os.Stderr)
	err = lg.SetLevelString(cfg.Global.Log_Level)
	return
}

func startWatcher(cfg *config.Config, api *device.Api, lg *log.Logger) (w *datawatch.Watcher, err error) {
	if w, err = datawatch.NewWatcher(datawatch.DefaultDebounce); err != nil {
		return
	}
	w.SetLogger(lg)
	if err = w.Add(cfg.DeviceAtlas.JSON_Data_File_Path, api.LoadDataFromFile); err != nil {
		w.Close()
		return
	}
	if p := cfg.DeviceAtlas.Carrier_Data_File_Path; p != `` {
		if err = w.Add(p, api.LoadCarrierFromFile); err != nil {
			w.Close()
			return
		}
	}
	if err = w.Start(); err != nil {
		w.Close()
	}
	return
}

// run reads stdin line by line and writes enriched events in batches.
func run(ctx context.Context, enr *enrich.Enricher, uaField string, in io.Reader, out io.Writer) (err error) {
	bsz := *batchSize
	if bsz <= 0 {
		bsz = defaultBatchSize
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	wtr := bufio.NewWriter(out)
	batch := make([][]byte, 0, bsz)
	flush := func() error {
		r, err := enr.Process(ctx, batch)
		if err != nil {
			return err
		}
		for _, ev := range r {
			wtr.Write(ev)
			wtr.WriteByte('\n')
		}
		batch = batch[:0]
		return wtr.Flush()
	}
	for sc.Scan() {
		ln := sc.Bytes()
		if len(ln) == 0 {
			continue
		}
		var ev []byte
		if *rawUA {
			if ev, err = json.Marshal(map[string]string{uaField: string(ln)}); err != nil {
				return
			}
		} else {
			ev = append([]byte(nil), ln...)
		}
		if batch = append(batch, ev); len(batch) >= bsz {
			if err = flush(); err != nil {
				return
			}
		}
	}
	if err = sc.Err(); err != nil {
		return
	}
	if len(batch) > 0 {
		err = flush()
	}
	return
}
