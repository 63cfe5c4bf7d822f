// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity = `
identity {
  dev_eui = "0004A30B001A55ED"
  app_eui = "70B3D57ED0000000"
  app_key = "2B7E151628AED2A6ABF7158809CF4F3C"
}
`

func TestConfigDefaults(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(testIdentity))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS0", cfg.Lora.Port)
	assert.Equal(t, 57600, cfg.Lora.Baud)
	assert.Equal(t, 868, cfg.Lora.Band)
	assert.Equal(t, 24, cfg.Lora.ResetPin)
	assert.Equal(t, 5*time.Second, cfg.UplinkInterval())
	assert.False(t, cfg.Uplink.Unconfirmed)

	assert.Equal(t, []byte{0x00, 0x04, 0xA3, 0x0B, 0x00, 0x1A, 0x55, 0xED}, cfg.devEUI)
	assert.Len(t, cfg.appEUI, 8)
	assert.Len(t, cfg.appKey, 16)
}

func TestConfigFull(t *testing.T) {
	const conf = testIdentity + `
lora {
  port      = "/dev/ttyUSB0"
  baud      = 9600
  band      = 915
  reset_pin = 0
}
uplink {
  interval_sec = 60
  unconfirmed  = true
}
position {
  lat    = 35.6585805
  lon    = 139.7454316
  height = 40.5
}
log {
  debug = true
}
`
	cfg, err := ReadConfig(strings.NewReader(conf))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Lora.Port)
	assert.Equal(t, 9600, cfg.Lora.Baud)
	assert.Equal(t, 915, cfg.Lora.Band)
	assert.Equal(t, 0, cfg.Lora.ResetPin)
	assert.Equal(t, time.Minute, cfg.UplinkInterval())
	assert.True(t, cfg.Uplink.Unconfirmed)
	assert.Equal(t, 35.6585805, cfg.Position.Lat)
	assert.True(t, cfg.Log.Debug)
}

func TestConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name      string
		input     string
		expectErr string
	}{
		{"empty", "", "identity.dev_eui"},
		{"bad hex",
			`identity { dev_eui = "zz04A30B001A55ED" app_eui = "70B3D57ED0000000" app_key = "2B7E151628AED2A6ABF7158809CF4F3C" }`,
			"identity.dev_eui"},
		{"short key",
			`identity { dev_eui = "0004A30B001A55ED" app_eui = "70B3D57ED0000000" app_key = "2B7E1516" }`,
			"identity.app_key must be 16 bytes"},
		{"bad interval",
			testIdentity + `uplink { interval_sec = 0 }`,
			"interval_sec must be positive"},
		{"bad band",
			testIdentity + `lora { band = 500 }`,
			"lora.band"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ReadConfig(strings.NewReader(c.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expectErr)
		})
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERIAL", "/dev/tty.usbserial")
	t.Setenv("VERBOSE", "1")
	t.Setenv("LAT", "51.5")
	t.Setenv("LON", "-0.12")
	t.Setenv("ALT", "11")

	cfg, err := ReadConfig(strings.NewReader(testIdentity))
	require.NoError(t, err)

	assert.Equal(t, "/dev/tty.usbserial", cfg.Lora.Port)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, 51.5, cfg.Position.Lat)
	assert.Equal(t, -0.12, cfg.Position.Lon)
	assert.Equal(t, 11.0, cfg.Position.Height)
}
