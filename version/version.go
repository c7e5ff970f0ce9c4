/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package version

import (
	"fmt"
	"io"
	"time"
)

const (
	MajorVersion = 1
	MinorVersion = 0
	PointVersion = 0

	// MinimumDataVersion is the oldest JSON data file format the engine loads.
	MinimumDataVersion = `0.7`
)

var (
	BuildDate time.Time = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

// DataInfo is implemented by anything that can describe its loaded data file.
type DataInfo interface {
	DataVersion() (string, error)
	DataRevision() (string, error)
	DataCreationTimestamp() (int64, error)
}

func PrintVersion(wtr io.Writer) {
	fmt.Fprintf(wtr, "Version:\t%d.%d.%d\n", MajorVersion, MinorVersion, PointVersion)
	fmt.Fprintf(wtr, "BuildDate:\t%s\n", BuildDate.Format(`2006-01-02 15:04:05`))
	fmt.Fprintf(wtr, "DataFormat:\t>= %s\n", MinimumDataVersion)
}

// PrintDataVersion describes the loaded data file, nothing is printed when no file is loaded.
func PrintDataVersion(wtr io.Writer, di DataInfo) {
	ver, err := di.DataVersion()
	if err != nil {
		return
	}
	rev, _ := di.DataRevision()
	fmt.Fprintf(wtr, "DataVersion:\t%s\n", ver)
	fmt.Fprintf(wtr, "DataRevision:\t%s\n", rev)
	if ts, err := di.DataCreationTimestamp(); err == nil && ts > 0 {
		fmt.Fprintf(wtr, "DataCreated:\t%s\n", time.Unix(ts, 0).UTC().Format(`2006-01-02 15:04:05`))
	}
}

func GetVersion() string {
	return fmt.Sprintf("%d.%d.%d", MajorVersion, MinorVersion, PointVersion)
}
