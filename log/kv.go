/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/crewjam/rfc5424"
	"github.com/inhies/go-bytesize"
	"github.com/shirou/gopsutil/host"
)

func KV(name string, value interface{}) rfc5424.SDParam {
	r := rfc5424.SDParam{Name: name}
	switch v := value.(type) {
	case string:
		r.Value = v
	case fmt.Stringer:
		r.Value = v.String()
	case error:
		r.Value = v.Error()
	default:
		r.Value = fmt.Sprintf("%v", value)
	}
	return r
}

// KVErr is the error KV, a nil error logs as an empty value.
func KVErr(err error) rfc5424.SDParam {
	if err == nil {
		return KV(`error`, ``)
	}
	return KV(`error`, err.Error())
}

// KVSize logs a byte count in human form.
func KVSize(name string, sz int64) rfc5424.SDParam {
	return KV(name, bytesize.New(float64(sz)).String())
}

// KVDuration logs a duration rounded to milliseconds.
func KVDuration(name string, d time.Duration) rfc5424.SDParam {
	return KV(name, d.Round(time.Millisecond).String())
}

// PrintOSInfo writes the platform line shown by the tools -version flag.
func PrintOSInfo(wtr io.Writer) {
	platform, _, version, err := host.PlatformInformation()
	if err != nil {
		fmt.Fprintf(wtr, "OS:\t\tERROR %v\n", err)
		return
	}
	fmt.Fprintf(wtr, "OS:\t\t%s %s (%s %s)\n", runtime.GOOS, runtime.GOARCH, platform, version)
}
