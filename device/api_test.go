/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gravwell/deviceatlas"
	"github.com/gravwell/deviceatlas/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiNotLoaded(t *testing.T) {
	a := NewApi(DefaultConfig())
	_, err := a.GetProperties(galaxyUA)
	assert.ErrorIs(t, err, deviceatlas.ErrNoDataFile)
	_, _, err = a.GetProperty(galaxyUA, `vendor`)
	assert.ErrorIs(t, err, deviceatlas.ErrNoDataFile)
	_, err = a.DataVersion()
	assert.ErrorIs(t, err, deviceatlas.ErrNoDataFile)
	_, err = a.PropertyNames()
	assert.ErrorIs(t, err, deviceatlas.ErrNoDataFile)
}

func TestApiGalaxy(t *testing.T) {
	a := testApi(t, DefaultConfig())
	bag, err := a.GetProperties(galaxyUA)
	require.NoError(t, err)
	assert.Equal(t, `Samsung`, bag[`vendor`].String())
	assert.Equal(t, `GT-I9100`, bag[`model`].String())
	assert.Equal(t, `Android`, bag[`osName`].String())
	assert.Equal(t, `2.3.3`, bag[`osVersion`].String())
	assert.Equal(t, `Android Browser`, bag[`browserName`].String())
	assert.Equal(t, int32(12345), bag[`iid`].Interface())
	_, ok := bag[MatchedProperty]
	assert.False(t, ok)

	v, ok, err := a.GetProperty(galaxyUA, `osVersion`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `2.3.3`, v.String())

	_, ok, err = a.GetProperty(galaxyUA, `hdCapable`)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = a.GetProperty(galaxyUA, `noSuchThing`)
	assert.ErrorIs(t, err, deviceatlas.ErrUnknownProperty)
}

func TestApiMeta(t *testing.T) {
	a := testApi(t, DefaultConfig())
	v, err := a.DataVersion()
	require.NoError(t, err)
	assert.Equal(t, `0.7`, v)
	r, err := a.DataRevision()
	require.NoError(t, err)
	assert.Equal(t, `31337`, r)
	ts, err := a.DataCreationTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)
	names, err := a.PropertyNames()
	require.NoError(t, err)
	require.Len(t, names, 14)
	assert.Equal(t, `browserName`, names[0].Name)
	assert.NoError(t, a.PropertyNameExists(LanguageLocaleProperty))
}

func TestApiConfigToggles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeUaProps = false
	cfg.IncludeLangProps = false
	cfg.IncludeMatchInfo = true
	a := testApi(t, cfg)
	bag, err := a.GetPropertiesFromHeaders(map[string]string{
		`User-Agent`:      galaxyUA,
		`Accept-Language`: `fr-CA`,
	}, ``)
	require.NoError(t, err)
	_, ok := bag[`osVersion`]
	assert.False(t, ok)
	_, ok = bag[LanguageProperty]
	assert.False(t, ok)
	assert.Equal(t, `Mozilla/5.0 (AndroidGT-I9`, bag[MatchedProperty].String())
	assert.Equal(t, property.String, bag[UnmatchedProperty].Type())
}

func TestApiLanguage(t *testing.T) {
	a := testApi(t, DefaultConfig())
	bag, err := a.GetPropertiesFromHeaders(map[string]string{
		`user-agent`:      galaxyUA,
		`accept_language`: `en;q=0.5, fr-CA;q=1, fr;q=0.9`,
	}, ``)
	require.NoError(t, err)
	assert.Equal(t, `fr`, bag[LanguageProperty].String())
	assert.Equal(t, `fr-CA`, bag[LanguageLocaleProperty].String())

	bag, err = a.GetPropertiesFromHeaders(map[string]string{
		`user-agent`:      galaxyUA,
		`accept-language`: `*`,
	}, ``)
	require.NoError(t, err)
	_, ok := bag[LanguageProperty]
	assert.False(t, ok)
}

func TestApiClientProperties(t *testing.T) {
	a := testApi(t, DefaultConfig())
	hdrs := map[string]string{`User-Agent`: galaxyUA}
	bag, err := a.GetPropertiesFromHeaders(hdrs, `sdeviceAspectRatio:16/10|iusableDisplayHeight:1050`)
	require.NoError(t, err)
	assert.Equal(t, property.String, bag[`deviceAspectRatio`].Type())
	assert.Equal(t, `16/10`, bag[`deviceAspectRatio`].String())
	assert.Equal(t, property.Integer, bag[`usableDisplayHeight`].Type())
	assert.Equal(t, int64(1050), bag[`usableDisplayHeight`].Int())
	assert.True(t, bag[`hdCapable`].Bool())

	_, err = a.GetPropertiesFromHeaders(hdrs, `iusableDisplayHeight:huge`)
	assert.ErrorIs(t, err, deviceatlas.ErrBadClientProperties)

	//a failed query does not disturb later ones
	bag, err = a.GetPropertiesFromHeaders(hdrs, ``)
	require.NoError(t, err)
	assert.Equal(t, `4/3`, bag[`deviceAspectRatio`].String())
}

func TestApiClientPropertiesWithoutRules(t *testing.T) {
	a := NewApi(DefaultConfig())
	require.NoError(t, a.LoadDataFromString(noClientRulesJSON()))
	_, err := a.GetPropertiesFromHeaders(map[string]string{`user-agent`: galaxyUA}, `sfoo:bar`)
	assert.ErrorIs(t, err, deviceatlas.ErrBadClientProperties)
}

func TestApiStockHeaders(t *testing.T) {
	a := testApi(t, DefaultConfig())
	bag, err := a.GetPropertiesFromHeaders(map[string]string{
		`User-Agent`:           `Opera/9.80 (J2ME/MIDP; Opera Mini/9.80)`,
		`X-OperaMini-Phone-UA`: galaxyUA,
	}, ``)
	require.NoError(t, err)
	assert.Equal(t, `GT-I9100`, bag[`model`].String())
	//rules run on the real user agent header
	assert.Equal(t, `Opera Mobile`, bag[`browserName`].String())
	_, ok := bag[`osVersion`]
	assert.False(t, ok)
}

func TestApiHeadersEqualUA(t *testing.T) {
	a := testApi(t, DefaultConfig())
	for _, ua := range []string{galaxyUA, operaUA, genericUA, botUA, ``, `   `} {
		b1, err := a.GetProperties(ua)
		require.NoError(t, err)
		b2, err := a.GetPropertiesFromHeaders(map[string]string{`HTTP_USER_AGENT`: ua}, ``)
		require.NoError(t, err)
		assert.Equal(t, b1, b2, ua)
	}
}

func TestApiIdempotent(t *testing.T) {
	a := testApi(t, DefaultConfig())
	hdrs := map[string]string{`user-agent`: galaxyUA, `accept-language`: `de`}
	b1, err := a.GetPropertiesFromHeaders(hdrs, ``)
	require.NoError(t, err)
	b2, err := a.GetPropertiesFromHeaders(hdrs, ``)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	//a fresh api without a warm memo agrees
	fresh := testApi(t, DefaultConfig())
	b3, err := fresh.GetPropertiesFromHeaders(hdrs, ``)
	require.NoError(t, err)
	assert.Equal(t, b1, b3)
}

func TestApiReturnNone(t *testing.T) {
	js := `{"$": {"Ver": "0.7"}, "p": ["sfoo"], "v": ["a"], "t": {"c": {"x": {"d": {"0": 0}}}}}`
	cfg := DefaultConfig()
	a := NewApi(cfg)
	require.NoError(t, a.LoadDataFromString(js))
	bag, err := a.GetProperties(`nothing`)
	require.NoError(t, err)
	assert.NotNil(t, bag)
	assert.Empty(t, bag)

	cfg.ReturnNoneWhenNoProperties = true
	a = NewApi(cfg)
	require.NoError(t, a.LoadDataFromString(js))
	bag, err = a.GetProperties(`nothing`)
	require.NoError(t, err)
	assert.Nil(t, bag)
	bag, err = a.GetProperties(`xyz`)
	require.NoError(t, err)
	assert.Equal(t, `a`, bag[`foo`].String())
}

func TestApiReloadKeepsState(t *testing.T) {
	a := testApi(t, DefaultConfig())
	before, err := a.GetProperties(galaxyUA)
	require.NoError(t, err)

	assert.ErrorIs(t, a.LoadDataFromString(withVersion(`"0.6"`)), deviceatlas.ErrUnsupportedVersion)
	assert.Error(t, a.LoadDataFromString(`{`))
	assert.Error(t, a.LoadDataFromFile(filepath.Join(t.TempDir(), `missing.json`)))

	after, err := a.GetProperties(galaxyUA)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	v, err := a.DataVersion()
	require.NoError(t, err)
	assert.Equal(t, `0.7`, v)
}

func TestApiLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), `device.json`)
	require.NoError(t, os.WriteFile(p, []byte(testTreeJSON), 0640))
	a := NewApi(DefaultConfig())
	require.NoError(t, a.LoadDataFromFile(p))
	v, ok, err := a.GetProperty(galaxyUA, `vendor`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `Samsung`, v.String())
}

func TestApiConcurrent(t *testing.T) {
	a := testApi(t, DefaultConfig())
	uas := []string{galaxyUA, operaUA, genericUA, botUA}
	want := make([]property.Bag, len(uas))
	for i, ua := range uas {
		b, err := a.GetProperties(ua)
		require.NoError(t, err)
		want[i] = b.Clone()
	}
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				idx := (w + i) % len(uas)
				b, err := a.GetProperties(uas[idx])
				if err != nil || len(b) != len(want[idx]) {
					errs <- uas[idx]
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for ua := range errs {
		t.Errorf("concurrent lookup mismatch for %q", ua)
	}
}

func TestApiCarrierMerge(t *testing.T) {
	a := testApi(t, DefaultConfig())
	require.NoError(t, a.LoadCarrierFromFile(filepath.Join(`testdata`, `carrier.dat`)))

	bag, err := a.GetPropertiesFromHeaders(map[string]string{
		`User-Agent`:      galaxyUA,
		`X-Forwarded-For`: `8.8.8.8, 10.1.1.1`,
	}, ``)
	require.NoError(t, err)
	assert.Equal(t, `Samsung`, bag[`vendor`].String())
	assert.Equal(t, `Test Mobile`, bag[`networkOperator`].String())
	assert.Equal(t, `US`, bag[`countryCode`].String())

	//private addresses get no carrier properties
	bag, err = a.GetPropertiesFromHeaders(map[string]string{
		`User-Agent`:      galaxyUA,
		`X-Forwarded-For`: `10.0.0.1, 8.8.8.8`,
	}, ``)
	require.NoError(t, err)
	_, ok := bag[`networkOperator`]
	assert.False(t, ok)

	assert.NoError(t, a.PropertyNameExists(`networkOperator`))
	names, err := a.PropertyNames()
	require.NoError(t, err)
	assert.Len(t, names, 16)

	ver, err := a.Carrier().Version()
	require.NoError(t, err)
	assert.Equal(t, `1.0`, ver)
}

func TestApiCarrierReloadThroughHandle(t *testing.T) {
	a := testApi(t, DefaultConfig())
	hdrs := map[string]string{
		`User-Agent`:      galaxyUA,
		`X-Forwarded-For`: `8.8.8.8`,
	}
	bag, err := a.GetPropertiesFromHeaders(hdrs, ``)
	require.NoError(t, err)
	_, ok := bag[`networkOperator`]
	require.False(t, ok)

	//loading straight into the carrier must not leave the cached result behind
	require.NoError(t, a.Carrier().LoadDataFromFile(filepath.Join(`testdata`, `carrier.dat`)))
	bag, err = a.GetPropertiesFromHeaders(hdrs, ``)
	require.NoError(t, err)
	assert.Equal(t, `Test Mobile`, bag[`networkOperator`].String())
}
