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

	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTree(t *testing.T) {
	tr := testTree(t)
	assert.Equal(t, `0.7`, tr.Version())
	assert.Equal(t, `31337`, tr.Revision())
	assert.Equal(t, int64(1700000000), tr.Created())
	assert.Equal(t, pIID, tr.iid)
	assert.True(t, tr.HasClientRules())
	assert.NotNil(t, tr.uar)
	assert.Equal(t, []string{`x-device-user-agent`, `x-operamini-phone-ua`}, tr.StockUAHeaders())

	names := tr.PropertyNames()
	require.Len(t, names, 14)
	assert.Equal(t, property.Name{Name: `iid`, Type: property.Integer}, names[pIID])
	assert.Equal(t, property.Name{Name: `isBrowser`, Type: property.Boolean}, names[pIsBrowser])

	//the api specific table overlays the default one
	re, err := tr.regexes.get(4)
	require.NoError(t, err)
	assert.Equal(t, `Opera Mini`, re.String())
}

func TestParseTreeDefaults(t *testing.T) {
	js := strings.Replace(testTreeJSON, `"h": {"sl": ["X-Device-User-Agent", "x-operamini-phone-ua"]},`, ``, 1)
	tr, err := ParseTreeBytes([]byte(js))
	require.NoError(t, err)
	assert.Equal(t, defaultStockUAHeaders, tr.StockUAHeaders())

	tr, err = ParseTreeBytes([]byte(noClientRulesJSON()))
	require.NoError(t, err)
	assert.False(t, tr.HasClientRules())
}

func TestTreeVersions(t *testing.T) {
	tests := []struct {
		ver string
		ok  bool
	}{
		{`"0.7"`, true},
		{`0.7`, true},
		{`"0.10"`, true},
		{`"1.0"`, true},
		{`"2"`, true},
		{`"0.6"`, false},
		{`0.6`, false},
		{`"0.6.9"`, false},
		{`"banana"`, false},
	}
	for _, tc := range tests {
		_, err := ParseTreeBytes([]byte(withVersion(tc.ver)))
		if tc.ok {
			assert.NoError(t, err, tc.ver)
		} else {
			assert.ErrorIs(t, err, deviceatlas.ErrUnsupportedVersion, tc.ver)
		}
	}
}

func TestParseTreeInvalid(t *testing.T) {
	tests := map[string]string{
		`not json`:        `{"$": `,
		`missing version`: `{"p": [], "v": [], "t": {}}`,
		`missing trie`:    `{"$": {"Ver": "0.7"}, "p": [], "v": []}`,
		`bad name`:        `{"$": {"Ver": "0.7"}, "p": ["xfoo"], "v": [], "t": {}}`,
		`bad prop id`:     `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"], "t": {"d": {"3": 0}}}`,
		`bad value id`:    `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"], "t": {"d": {"0": 4}}}`,
		`bad regex id`:    `{"$": {"Ver": "0.7"}, "p": [], "v": [], "t": {"r": [2]}}`,
		`bad regex`:       `{"$": {"Ver": "0.7"}, "p": [], "v": [], "r": {"d": ["(unclosed"]}, "t": {}}`,
		`bad uar rule`:    `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"], "t": {}, "uar": {"rg": [{"t": [{"r": [{"p": 0}]}]}]}}`,
		`cpr regex rule`:  `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"], "r": {"d": ["a"]}, "t": {}, "cpr": {"rg": [{"t": [{"r": [{"p": 0, "r": 0, "m": 0}]}]}]}}`,
		`cpr bad op`:      `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"], "t": {}, "cpr": {"rg": [{"p": [{"p": 0, "o": "~", "v": 0}]}]}}`,
		`cpr ua not str`:  `{"$": {"Ver": "0.7"}, "p": ["ifoo"], "v": [1], "t": {}, "cpr": {"rg": [{"t": [{"u": 0}]}]}}`,
	}
	for name, js := range tests {
		_, err := ParseTreeBytes([]byte(js))
		assert.ErrorIs(t, err, deviceatlas.ErrInvalidDataFile, name)
	}
}

func TestRegexTableObjectForm(t *testing.T) {
	js := `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"],
		"r": {"d": {"0": "x+", "7": "y+"}}, "t": {"r": [7]}}`
	tr, err := ParseTreeBytes([]byte(js))
	require.NoError(t, err)
	require.Len(t, tr.root.regexes, 1)
	assert.Equal(t, `y+`, tr.root.regexes[0].String())
}

func TestSupportedVersion(t *testing.T) {
	assert.True(t, supportedVersion(`0.7`))
	assert.True(t, supportedVersion(`0.7.1`))
	assert.True(t, supportedVersion(`1`))
	assert.False(t, supportedVersion(`0`))
	assert.False(t, supportedVersion(``))
	assert.False(t, supportedVersion(`-1.9`))
}
