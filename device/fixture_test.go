/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	galaxyUA  = `Mozilla/5.0 (Linux; U; Android 2.3.3; en-gb; GT-I9100 Build/GINGERBREAD) AppleWebKit/533.1 (KHTML, like Gecko) Version/4.0 Mobile Safari/533.1`
	operaUA   = `Mozilla/5.0 (Linux; U; Android 2.3.3; en-gb; GT-I9100) Opera Mini/7.1`
	genericUA = `Mozilla/5.0 (Linux; U; Android 2.3.3; en-gb; XYZ)`
	botUA     = `Bot/1.0 Safari/533.1`
)

// property ids
const (
	pIID = iota
	pVendor
	pModel
	pOsName
	pOsVersion
	pBrowserName
	pIsBrowser
	pAspect
	pUsableHeight
	pMobile
	pBrowserVersion
	pWebkitMajor
	pHdCapable
	pMarketingName
)

const testTreeJSON = `{
	"$": {"Ver": "0.7", "Rev": "31337", "Utc": 1700000000},
	"p": ["iiid", "svendor", "smodel", "sosName", "sosVersion", "sbrowserName",
		"bisBrowser", "sdeviceAspectRatio", "iusableDisplayHeight", "bmobileDevice",
		"sbrowserVersion", "iwebkitMajor", "bhdCapable", "smarketingName"],
	"v": [12345, "Samsung", "GT-I9100", "Android", "Android Browser", false, "4/3",
		true, "Unknown", "Opera Mobile", "generic",
		"Mozilla/5.0 (Linux; U; Android 2.3.3; en-gb; GT-N7000 Build/GINGERBREAD)",
		"GT-N7000", "16/10", 1000, "Galaxy"],
	"r": {
		"d": ["^Linux; U; ", "^ [0-9.]+; [a-z]{2}-[a-z]{2}; ", "Android ([0-9.]+);",
			"Version/[0-9.]+ Mobile Safari", "NeverMatchesThis", "Safari/([0-9.]+)", "WebKit/([0-9])"],
		"5": {"4": "Opera Mini"}
	},
	"h": {"sl": ["X-Device-User-Agent", "x-operamini-phone-ua"]},
	"t": {
		"d": {"1": 8, "6": 5},
		"m": [1],
		"c": {
			"Mozilla/5.0 (": {
				"r": [0],
				"c": {
					"Android": {
						"d": {"3": 3, "7": 6, "1": 10},
						"m": [1],
						"r": [1],
						"c": {
							"GT-I9": {"d": {"0": 0, "1": 1, "2": 2}},
							"GT-": {"d": {"2": 10}},
							"GT-N7": {"d": {"0": 0, "1": 1, "2": 12, "13": 15}}
						}
					}
				}
			},
			"Mozilla/": {"d": {"2": 10}},
			"Bot/": {"d": {"6": 7}}
		}
	},
	"uar": {
		"sk": [6],
		"reg": {"d": {"6": "AppleWebKit/([0-9]+)"}},
		"rg": [
			{"p": {"3": 3}, "t": [{"r": [{"p": 4, "r": 2, "m": 1}]}]},
			{"p": {"3": 3}, "t": [
				{"f": 3, "r": [{"p": 5, "v": 4}]},
				{"f": 4, "r": [{"p": 5, "v": 9}]}
			]},
			{"p": {}, "t": [{"s": 5, "r": [{"p": 10, "r": 5, "m": 1}]}]},
			{"t": [{"s": 6, "r": [{"p": 11, "r": 6, "m": 1}]}]}
		]
	},
	"cpr": {
		"rg": [
			{"p": [{"p": 7, "o": "=", "v": 13}], "t": [{"u": 11, "r": [{"p": 9, "v": 7}]}]},
			{"p": [{"p": 8, "o": ">", "v": 14}], "t": [{"r": [{"p": 12, "v": 7}]}]},
			{"p": [{"p": 13, "o": ">", "v": 15}], "t": [{"r": [{"p": 12, "v": 5}]}]}
		]
	}
}`

// noClientRulesJSON is the test tree without the cpr branch
func noClientRulesJSON() string {
	idx := strings.Index(testTreeJSON, `,
	"cpr"`)
	return testTreeJSON[:idx] + "\n}"
}

func withVersion(ver string) string {
	return strings.Replace(testTreeJSON, `"Ver": "0.7"`, `"Ver": `+ver, 1)
}

func testTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := ParseTreeBytes([]byte(testTreeJSON))
	require.NoError(t, err)
	return tr
}

func testApi(t *testing.T, cfg Config) *Api {
	t.Helper()
	a := NewApi(cfg)
	require.NoError(t, a.LoadDataFromString(testTreeJSON))
	return a
}
