// Copyright 2017 Inca Roads LLC.  All rights reserved.
// Use of this source code is governed by licenses granted by the
// copyright holder including that found in the LICENSE file.

// Node configuration
package main

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

// Config is the node's HCL configuration.  Identity is provisioned at
// deploy time; everything else has workable defaults.  A handful of
// environment variables override the file for bench debugging in
// non-RPi environments, like your Mac.
type Config struct {
	Lora struct {
		Port     string `hcl:"port"`
		Baud     int    `hcl:"baud"`
		Band     int    `hcl:"band"`
		ResetPin int    `hcl:"reset_pin"` // BCM pin wired to the module's /RESET, 0 to disable
	} `hcl:"lora"`
	Identity struct {
		DevEUI string `hcl:"dev_eui"`
		AppEUI string `hcl:"app_eui"`
		AppKey string `hcl:"app_key"`
	} `hcl:"identity"`
	Uplink struct {
		IntervalSec int  `hcl:"interval_sec"`
		Unconfirmed bool `hcl:"unconfirmed"`
	} `hcl:"uplink"`
	Position struct {
		Lat    float64 `hcl:"lat"`
		Lon    float64 `hcl:"lon"`
		Height float64 `hcl:"height"`
	} `hcl:"position"`
	Log struct {
		Debug bool `hcl:"debug"`
	} `hcl:"log"`

	// decoded identity, filled in by validation
	devEUI []byte
	appEUI []byte
	appKey []byte
}

func (c *Config) UplinkInterval() time.Duration {
	return time.Duration(c.Uplink.IntervalSec) * time.Second
}

// ReadConfig parses and validates configuration from a reader.
func ReadConfig(r io.Reader) (*Config, error) {
	c := &Config{}
	c.Lora.Port = "/dev/ttyS0"
	c.Lora.Baud = 57600 // default speed for the Microchip RN2483/RN2903
	c.Lora.Band = 868
	c.Lora.ResetPin = 24
	c.Uplink.IntervalSec = 5

	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Annotate(err, "config read")
	}
	if err = hcl.Unmarshal(bs, c); err != nil {
		return nil, errors.Annotate(err, "config unmarshal")
	}

	c.applyEnv()

	if err = c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads the named config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "config %s", path)
	}
	defer f.Close()
	c, err := ReadConfig(f)
	return c, errors.Annotatef(err, "config %s", path)
}

// applyEnv folds in the environment overrides.
func (c *Config) applyEnv() {
	if port := os.Getenv("SERIAL"); port != "" {
		c.Lora.Port = port
	}
	if os.Getenv("VERBOSE") != "" {
		c.Log.Debug = true
	}
	if lat := os.Getenv("LAT"); lat != "" {
		if f64, err := strconv.ParseFloat(lat, 64); err == nil {
			c.Position.Lat = f64
		}
	}
	if lon := os.Getenv("LON"); lon != "" {
		if f64, err := strconv.ParseFloat(lon, 64); err == nil {
			c.Position.Lon = f64
		}
	}
	if alt := os.Getenv("ALT"); alt != "" {
		if f64, err := strconv.ParseFloat(alt, 64); err == nil {
			c.Position.Height = f64
		}
	}
}

// validate decodes the identity keys and rejects anything the module
// would later refuse.  Misconfiguration fails loudly here, at startup,
// never silently on the wire.
func (c *Config) validate() error {
	var err error
	if c.devEUI, err = decodeKey("dev_eui", c.Identity.DevEUI, 8); err != nil {
		return err
	}
	if c.appEUI, err = decodeKey("app_eui", c.Identity.AppEUI, 8); err != nil {
		return err
	}
	if c.appKey, err = decodeKey("app_key", c.Identity.AppKey, 16); err != nil {
		return err
	}
	if c.Uplink.IntervalSec <= 0 {
		return errors.Errorf("uplink.interval_sec must be positive, got %d", c.Uplink.IntervalSec)
	}
	switch c.Lora.Band {
	case 433, 868, 915:
	default:
		return errors.Errorf("lora.band must be 433, 868 or 915, got %d", c.Lora.Band)
	}
	return nil
}

func decodeKey(name string, value string, length int) ([]byte, error) {
	if value == "" {
		return nil, errors.NotFoundf("identity.%s", name)
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, errors.Annotatef(err, "identity.%s", name)
	}
	if len(b) != length {
		return nil, errors.Errorf("identity.%s must be %d bytes, got %d", name, length, len(b))
	}
	return b, nil
}
